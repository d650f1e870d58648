package client

import (
	"context"
	"net/url"
	"strconv"
)

// PostService lists the posts a user wrote.
type PostService struct {
	c *Client
}

// List returns one page of a user's posts or started discussions.
func (s *PostService) List(ctx context.Context, userID int64, opts *PostListOptions) (*PostPage, error) {
	params := url.Values{}
	if opts != nil {
		if opts.CourseID > 0 {
			params.Set("course", strconv.FormatInt(opts.CourseID, 10))
		}
		if opts.Discussions {
			params.Set("mode", "discussions")
		}
		if opts.Page > 0 {
			params.Set("page", strconv.Itoa(opts.Page))
		}
		if opts.PerPage > 0 {
			params.Set("perpage", strconv.Itoa(opts.PerPage))
		}
	}

	var page PostPage
	if err := s.c.get(ctx, "/api/v1/users/"+strconv.FormatInt(userID, 10)+"/posts", params, &page); err != nil {
		return nil, err
	}
	return &page, nil
}
