package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/persistorai/anonforum/internal/models"
)

// PostStore lists the posts written by a user.
type PostStore struct {
	DB DB
}

// NewPostStore creates a new PostStore.
func NewPostStore(db DB) *PostStore {
	return &PostStore{DB: db}
}

// postFilter renders the shared FROM/WHERE clause of a post listing.
func postFilter(q models.PostQuery) (string, []any) {
	var b strings.Builder
	b.WriteString(`
	  FROM {anonforum_posts} p
	  JOIN {anonforum_discussions} d ON d.id = p.discussion
	  JOIN {anonforum} f ON f.id = d.forum
	 WHERE p.userid = ?`)
	args := []any{q.UserID}

	if q.CourseID > 0 {
		b.WriteString(" AND f.course = ?")
		args = append(args, q.CourseID)
	}
	if q.Mode == models.PostModeDiscussions {
		b.WriteString(" AND p.parent = 0")
	}

	return b.String(), args
}

// ListUserPosts returns one page of the user's posts, newest first. The query
// must already be normalized.
func (s *PostStore) ListUserPosts(ctx context.Context, q models.PostQuery) (*models.PostPage, error) {
	from, args := postFilter(q)

	countRows, err := s.DB.Query(ctx, "SELECT COUNT(*) AS total"+from, args...)
	if err != nil {
		return nil, fmt.Errorf("counting posts of user %d: %w", q.UserID, err)
	}

	var total int64
	if len(countRows) > 0 {
		if total, err = int64Col(countRows[0], "total"); err != nil {
			return nil, err
		}
	}

	page := &models.PostPage{
		Mode:       q.Mode,
		Page:       q.Page,
		PerPage:    q.PerPage,
		TotalCount: int(total),
		Posts:      []models.UserPost{},
	}
	if total == 0 || q.Offset() >= int(total) {
		return page, nil
	}

	query := `SELECT p.id, p.discussion, p.parent, p.subject, p.created, p.modified,
	       d.name AS discussionname, f.id AS forumid, f.name AS forumname, f.course` +
		from + " ORDER BY p.modified DESC, p.id DESC LIMIT ? OFFSET ?"

	rows, err := s.DB.Query(ctx, query, append(args, q.PerPage, q.Offset())...)
	if err != nil {
		return nil, fmt.Errorf("listing posts of user %d: %w", q.UserID, err)
	}

	for _, row := range rows {
		p := models.UserPost{
			Subject:    stringCol(row, "subject"),
			Discussion: stringCol(row, "discussionname"),
			Forum:      stringCol(row, "forumname"),
		}
		for col, dst := range map[string]*int64{
			"id":         &p.ID,
			"discussion": &p.DiscussionID,
			"parent":     &p.ParentID,
			"forumid":    &p.ForumID,
			"course":     &p.CourseID,
			"created":    &p.Created,
			"modified":   &p.Modified,
		} {
			if *dst, err = int64Col(row, col); err != nil {
				return nil, err
			}
		}
		page.Posts = append(page.Posts, p)
	}

	return page, nil
}
