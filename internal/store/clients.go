package store

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/persistorai/anonforum/internal/models"
)

// ClientStore handles API client lookups (API key → client ID).
type ClientStore struct {
	DB DB
}

// NewClientStore creates a new ClientStore.
func NewClientStore(db DB) *ClientStore {
	return &ClientStore{DB: db}
}

// HashAPIKey returns the stored form of an API key.
func HashAPIKey(apiKey string) string {
	hash := sha256.Sum256([]byte(apiKey))

	return hex.EncodeToString(hash[:])
}

// GetClientByAPIKey looks up a client ID by API key hash.
func (s *ClientStore) GetClientByAPIKey(ctx context.Context, apiKey string) (string, error) {
	rows, err := s.DB.Query(ctx, "SELECT id FROM {api_clients} WHERE api_key_hash = ?", HashAPIKey(apiKey))
	if err != nil {
		return "", fmt.Errorf("looking up client by API key: %w", err)
	}
	if len(rows) == 0 {
		return "", models.ErrClientNotFound
	}

	return stringCol(rows[0], "id"), nil
}

// CreateClient registers a client under name and returns its id.
func (s *ClientStore) CreateClient(ctx context.Context, name, apiKey string) (string, error) {
	id := uuid.NewString()

	_, err := s.DB.Exec(ctx,
		"INSERT INTO {api_clients} (id, name, api_key_hash, created_at) VALUES (?, ?, ?, ?)",
		id, name, HashAPIKey(apiKey), time.Now().Unix())
	if err != nil {
		return "", fmt.Errorf("creating client %s: %w", name, err)
	}

	return id, nil
}
