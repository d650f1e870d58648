package middleware

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/persistorai/anonforum/internal/models"
)

const (
	knownKeyTTL   = 5 * time.Minute
	unknownKeyTTL = 30 * time.Second
	maxCachedKeys = 10_000
	cacheSweep    = time.Minute
)

// hashKey hex-encodes the SHA-256 of an API key. Raw keys are never kept in
// memory tables.
func hashKey(apiKey string) string {
	sum := sha256.Sum256([]byte(apiKey))

	return hex.EncodeToString(sum[:])
}

// lookupResult is a cached answer. An empty clientID means the key is
// unknown.
type lookupResult struct {
	clientID string
	expires  time.Time
}

// CachedClientLookup memoizes API key lookups. Unknown keys are remembered
// briefly; lookup failures of any other kind are never cached.
type CachedClientLookup struct {
	inner  ClientLookup
	flight singleflight.Group
	now    func() time.Time

	mu      sync.RWMutex
	results map[string]lookupResult
}

// NewCachedClientLookup wraps inner. Expired entries are swept until ctx is
// done.
func NewCachedClientLookup(ctx context.Context, inner ClientLookup) *CachedClientLookup {
	c := &CachedClientLookup{
		inner:   inner,
		now:     time.Now,
		results: make(map[string]lookupResult),
	}
	go c.sweepLoop(ctx)

	return c
}

// GetClientByAPIKey implements ClientLookup.
func (c *CachedClientLookup) GetClientByAPIKey(ctx context.Context, apiKey string) (string, error) {
	hk := hashKey(apiKey)

	if res, ok := c.cached(hk); ok {
		if res.clientID == "" {
			return "", models.ErrClientNotFound
		}

		return res.clientID, nil
	}

	v, err, _ := c.flight.Do(hk, func() (any, error) {
		id, err := c.inner.GetClientByAPIKey(ctx, apiKey)
		switch {
		case err == nil:
			c.store(hk, lookupResult{clientID: id, expires: c.now().Add(knownKeyTTL)})
		case errors.Is(err, models.ErrClientNotFound):
			c.store(hk, lookupResult{expires: c.now().Add(unknownKeyTTL)})
		}

		return id, err
	})
	if err != nil {
		return "", err
	}

	return v.(string), nil //nolint:forcetypeassert // the flight func only returns strings.
}

func (c *CachedClientLookup) cached(hk string) (lookupResult, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	res, ok := c.results[hk]
	if !ok || !c.now().Before(res.expires) {
		return lookupResult{}, false
	}

	return res, true
}

func (c *CachedClientLookup) store(hk string, res lookupResult) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.results) >= maxCachedKeys {
		c.dropExpired(c.now())
	}
	for k := range c.results {
		if len(c.results) < maxCachedKeys {
			break
		}
		delete(c.results, k)
	}
	c.results[hk] = res
}

func (c *CachedClientLookup) sweepLoop(ctx context.Context) {
	ticker := time.NewTicker(cacheSweep)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.mu.Lock()
			c.dropExpired(c.now())
			c.mu.Unlock()
		}
	}
}

// dropExpired must be called with c.mu held.
func (c *CachedClientLookup) dropExpired(now time.Time) {
	for k, res := range c.results {
		if !now.Before(res.expires) {
			delete(c.results, k)
		}
	}
}
