package service

import (
	"context"
	"fmt"

	"github.com/persistorai/anonforum/internal/models"
)

// postLister is the store interface consumed by PostService.
type postLister interface {
	ListUserPosts(ctx context.Context, q models.PostQuery) (*models.PostPage, error)
}

// PostService lists the posts a user wrote across forum activities.
type PostService struct {
	store postLister
}

// NewPostService creates a PostService.
func NewPostService(store postLister) *PostService {
	return &PostService{store: store}
}

// ListUserPosts validates q, applies its defaults and returns one page.
func (s *PostService) ListUserPosts(ctx context.Context, q models.PostQuery) (*models.PostPage, error) {
	if err := q.Normalize(); err != nil {
		return nil, err
	}

	page, err := s.store.ListUserPosts(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("listing posts of user %d: %w", q.UserID, err)
	}

	return page, nil
}
