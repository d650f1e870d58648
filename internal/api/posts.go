package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/persistorai/anonforum/internal/models"
)

// PostHandler serves a user's post listing.
type PostHandler struct {
	svc PostService
	log *logrus.Logger
}

// NewPostHandler creates a PostHandler.
func NewPostHandler(svc PostService, log *logrus.Logger) *PostHandler {
	return &PostHandler{svc: svc, log: log}
}

// List handles GET /users/:id/posts.
func (h *PostHandler) List(c *gin.Context) {
	userID, ok := pathID(c, "id")
	if !ok {
		return
	}
	courseID, ok := queryInt(c, "course", 0)
	if !ok {
		return
	}
	page, ok := queryInt(c, "page", 0)
	if !ok {
		return
	}
	perPage, ok := queryInt(c, "perpage", 0)
	if !ok {
		return
	}

	result, err := h.svc.ListUserPosts(c.Request.Context(), models.PostQuery{
		UserID:   userID,
		CourseID: courseID,
		Mode:     c.Query("mode"),
		Page:     int(page),
		PerPage:  int(perPage),
	})
	if err != nil {
		respondServiceError(c, h.log, err, "failed to list posts")

		return
	}
	if result.Posts == nil {
		result.Posts = []models.UserPost{}
	}

	c.JSON(http.StatusOK, result)
}
