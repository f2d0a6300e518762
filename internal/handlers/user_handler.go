package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"taskboard/internal/models"
	"taskboard/internal/realtime"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type UserResponse struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

// MemberRequest grants a role to a user by name.
type MemberRequest struct {
	Username string      `json:"username" binding:"required"`
	Role     models.Role `json:"role" binding:"required"`
}

// MemberResponse is one row of the member list.
type MemberResponse struct {
	UserID   string      `json:"user_id"`
	Username string      `json:"username"`
	Role     models.Role `json:"role"`
}

// GetAllUsers returns all users (protected)
// GET /api/users
func (h *Handler) GetAllUsers(c *gin.Context) {
	var users []models.User
	if err := h.DB.Order("username").Find(&users).Error; err != nil {
		h.fail(c, err)
		return
	}

	// Map to safe response payload
	resp := make([]UserResponse, 0, len(users))
	for _, u := range users {
		resp = append(resp, UserResponse{ID: u.ID, Username: u.Username})
	}

	c.JSON(http.StatusOK, gin.H{
		"users": resp,
		"count": len(resp),
	})
}

// ListMembers handles GET /api/workspaces/:ws/members
func (h *Handler) ListMembers(c *gin.Context) {
	ws := scopeOf(c).WorkspaceID
	var rows []MemberResponse
	err := h.DB.Table("memberships").
		Select("memberships.user_id, users.username, memberships.role").
		Joins("JOIN users ON users.id = memberships.user_id").
		Where("memberships.workspace_id = ?", ws).
		Order("users.username").
		Scan(&rows).Error
	if err != nil {
		h.fail(c, err)
		return
	}
	if rows == nil {
		rows = []MemberResponse{}
	}
	c.JSON(http.StatusOK, gin.H{"members": rows, "count": len(rows)})
}

// AddMember handles POST /api/workspaces/:ws/members (owner only). An
// existing membership gets the new role.
func (h *Handler) AddMember(c *gin.Context) {
	sc := scopeOf(c)
	var req MemberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindFailed(c, err)
		return
	}
	if !req.Role.Valid() {
		h.fail(c, fmt.Errorf("%w: invalid role %q", models.ErrValidation, req.Role))
		return
	}

	var user models.User
	if err := h.DB.Where("username = ?", strings.TrimSpace(req.Username)).First(&user).Error; err != nil {
		h.fail(c, notFound(err, "user"))
		return
	}
	if user.ID == sc.UserID && req.Role != models.RoleOwner {
		h.fail(c, fmt.Errorf("%w: the owner can't change their own role", models.ErrValidation))
		return
	}

	m := models.Membership{WorkspaceID: sc.WorkspaceID, UserID: user.ID, Role: req.Role}
	err := h.DB.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "workspace_id"}, {Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"role"}),
	}).Create(&m).Error
	if err != nil && !errors.Is(err, gorm.ErrDuplicatedKey) {
		h.fail(c, err)
		return
	}

	h.publish(realtime.Event{Type: realtime.EventMembershipChange, WorkspaceID: sc.WorkspaceID, ActorID: sc.UserID})
	c.JSON(http.StatusOK, MemberResponse{UserID: user.ID, Username: user.Username, Role: req.Role})
}
