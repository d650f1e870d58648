package models

// Post listing modes.
const (
	PostModePosts       = "posts"
	PostModeDiscussions = "discussions"
)

// Paging bounds for post listings.
const (
	DefaultPostsPerPage = 5
	MaxPostsPerPage     = 100
)

// PostQuery selects the posts written by one user.
type PostQuery struct {
	UserID   int64  `json:"user_id"`
	CourseID int64  `json:"course_id,omitempty"` // 0 means every course
	Mode     string `json:"mode"`
	Page     int    `json:"page"`
	PerPage  int    `json:"perpage"`
}

// Normalize applies defaults and validates the query.
func (q *PostQuery) Normalize() error {
	if q.UserID <= 0 {
		return ErrInvalidID
	}
	if q.CourseID < 0 {
		return ErrInvalidID
	}

	switch q.Mode {
	case "":
		q.Mode = PostModePosts
	case PostModePosts, PostModeDiscussions:
	default:
		return ErrInvalidMode
	}

	if q.PerPage == 0 {
		q.PerPage = DefaultPostsPerPage
	}
	if q.PerPage < 1 || q.PerPage > MaxPostsPerPage {
		return ErrOutOfRange("perpage", 1, MaxPostsPerPage)
	}
	if q.Page < 0 {
		return ErrInvalidPage
	}

	return nil
}

// Offset returns the number of rows skipped before the requested page.
func (q *PostQuery) Offset() int { return q.Page * q.PerPage }

// UserPost is one post in a user's post listing.
type UserPost struct {
	ID           int64  `json:"id"`
	DiscussionID int64  `json:"discussion_id"`
	ParentID     int64  `json:"parent_id"`
	ForumID      int64  `json:"forum_id"`
	CourseID     int64  `json:"course_id"`
	Subject      string `json:"subject"`
	Discussion   string `json:"discussion"`
	Forum        string `json:"forum"`
	Created      int64  `json:"created"`
	Modified     int64  `json:"modified"`
}

// PostPage is one page of a user's posts.
type PostPage struct {
	Mode       string     `json:"mode"`
	Page       int        `json:"page"`
	PerPage    int        `json:"perpage"`
	TotalCount int        `json:"total_count"`
	Posts      []UserPost `json:"posts"`
}
