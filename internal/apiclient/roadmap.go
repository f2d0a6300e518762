package apiclient

import (
	"context"
	"fmt"
	"net/http"

	"taskboard/internal/models"
)

// ListPhases returns the roadmap with milestones and their linked tasks.
func (c *Client) ListPhases(ctx context.Context, scope models.Scope) ([]models.RoadmapPhase, error) {
	var out struct {
		Phases []models.RoadmapPhase `json:"phases"`
	}
	if err := c.do(ctx, http.MethodGet, projectPath(scope, "/roadmap/phases"), nil, &out); err != nil {
		return nil, err
	}
	return out.Phases, nil
}

// CreatePhase appends a phase to the roadmap.
func (c *Client) CreatePhase(ctx context.Context, scope models.Scope, in models.PhaseInput) (models.RoadmapPhase, error) {
	var p models.RoadmapPhase
	err := c.do(ctx, http.MethodPost, projectPath(scope, "/roadmap/phases"), in, &p)
	return p, err
}

// DeletePhase removes a phase and its milestones.
func (c *Client) DeletePhase(ctx context.Context, scope models.Scope, phaseID string) error {
	return c.do(ctx, http.MethodDelete, projectPath(scope, "/roadmap/phases/"+segment(phaseID)), nil, nil)
}

// CreateMilestone appends a milestone to a phase.
func (c *Client) CreateMilestone(ctx context.Context, scope models.Scope, phaseID string, in models.MilestoneInput) (models.RoadmapMilestone, error) {
	var m models.RoadmapMilestone
	err := c.do(ctx, http.MethodPost, projectPath(scope, "/roadmap/phases/"+segment(phaseID)+"/milestones"), in, &m)
	return m, err
}

// DeleteMilestone removes a milestone and its links.
func (c *Client) DeleteMilestone(ctx context.Context, scope models.Scope, milestoneID string) error {
	return c.do(ctx, http.MethodDelete, projectPath(scope, "/roadmap/milestones/"+segment(milestoneID)), nil, nil)
}

// LinkTask links or unlinks one task. Both directions are idempotent on the
// server.
func (c *Client) LinkTask(ctx context.Context, scope models.Scope, milestoneID, taskID string, mode models.LinkMode) error {
	body := map[string]any{"task_id": taskID, "mode": mode}
	var out struct {
		Linked bool `json:"linked"`
	}
	path := projectPath(scope, "/roadmap/milestones/"+segment(milestoneID)+"/tasks")
	if err := c.do(ctx, http.MethodPost, path, body, &out); err != nil {
		return err
	}
	if out.Linked != (mode == models.LinkModeLink) {
		return fmt.Errorf("%s %s: server reports linked=%t", mode, taskID, out.Linked)
	}
	return nil
}

// Member is one row of a workspace's member list.
type Member struct {
	UserID   string      `json:"user_id"`
	Username string      `json:"username"`
	Role     models.Role `json:"role"`
}

// ListMembers returns the members of a workspace.
func (c *Client) ListMembers(ctx context.Context, workspaceID string) ([]Member, error) {
	var out struct {
		Members []Member `json:"members"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/workspaces/"+segment(workspaceID)+"/members", nil, &out); err != nil {
		return nil, err
	}
	return out.Members, nil
}

// AddMember grants username a role. Only owners may call it.
func (c *Client) AddMember(ctx context.Context, workspaceID, username string, role models.Role) (Member, error) {
	var m Member
	body := map[string]any{"username": username, "role": role}
	err := c.do(ctx, http.MethodPost, "/api/workspaces/"+segment(workspaceID)+"/members", body, &m)
	return m, err
}

// Role returns the caller's role in the workspace. The first caller of an
// empty workspace becomes its owner.
func (c *Client) Role(ctx context.Context, workspaceID string) (models.Role, error) {
	userID, err := c.UserID()
	if err != nil {
		return "", err
	}
	members, err := c.ListMembers(ctx, workspaceID)
	if err != nil {
		return "", fmt.Errorf("resolve role: %w", err)
	}
	for _, m := range members {
		if m.UserID == userID {
			return m.Role, nil
		}
	}
	return "", fmt.Errorf("resolve role: %w", models.ErrForbidden)
}
