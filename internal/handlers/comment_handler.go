package handlers

import (
	"fmt"
	"net/http"
	"strings"

	"taskboard/internal/models"
	"taskboard/internal/realtime"

	"github.com/gin-gonic/gin"
)

// CommentRequest is the body of POST .../tasks/:id/comments.
type CommentRequest struct {
	Content string `json:"content" binding:"required"`
}

// GetComments handles GET .../tasks/:id/comments, oldest first.
func (h *Handler) GetComments(c *gin.Context) {
	task, err := findTask(h.DB, scopeOf(c), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	comments := []models.TaskComment{}
	if err := h.DB.Where("task_id = ?", task.ID).Order("created_at, id").Find(&comments).Error; err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"comments": comments, "count": len(comments)})
}

// CreateComment handles POST .../tasks/:id/comments
func (h *Handler) CreateComment(c *gin.Context) {
	sc := scopeOf(c)
	var req CommentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindFailed(c, err)
		return
	}
	content := strings.TrimSpace(req.Content)
	if content == "" {
		h.fail(c, fmt.Errorf("%w: comment is empty", models.ErrValidation))
		return
	}
	task, err := findTask(h.DB, sc, c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}

	comment := models.TaskComment{ID: newID(), TaskID: task.ID, AuthorID: sc.UserID, Content: content}
	if err := h.DB.Create(&comment).Error; err != nil {
		h.fail(c, err)
		return
	}

	h.publish(realtime.Event{
		Type: realtime.EventCommentAdded, WorkspaceID: sc.WorkspaceID, ProjectID: sc.ProjectID,
		TaskID: task.ID, ActorID: sc.UserID,
	})
	c.JSON(http.StatusCreated, comment)
}
