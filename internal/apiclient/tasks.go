package apiclient

import (
	"context"
	"fmt"
	"net/http"

	"taskboard/internal/board"
	"taskboard/internal/detail"
	"taskboard/internal/intake"
	"taskboard/internal/linkgraph"
	"taskboard/internal/models"
)

var (
	_ board.Backend     = (*Client)(nil)
	_ linkgraph.Backend = (*Client)(nil)
	_ detail.Backend    = (*Client)(nil)
	_ intake.Generator  = (*Client)(nil)
)

func projectPath(scope models.Scope, rest string) string {
	return "/api/workspaces/" + segment(scope.WorkspaceID) + "/projects/" + segment(scope.ProjectID) + rest
}

func taskPath(scope models.Scope, id, rest string) string {
	return projectPath(scope, "/tasks/"+segment(id)+rest)
}

// ListTasks returns the project's tasks in board order.
func (c *Client) ListTasks(ctx context.Context, scope models.Scope) ([]models.Task, error) {
	var out struct {
		Tasks []models.Task `json:"tasks"`
	}
	if err := c.do(ctx, http.MethodGet, projectPath(scope, "/tasks"), nil, &out); err != nil {
		return nil, err
	}
	return out.Tasks, nil
}

// GetTask fetches one task.
func (c *Client) GetTask(ctx context.Context, scope models.Scope, id string) (models.Task, error) {
	var t models.Task
	err := c.do(ctx, http.MethodGet, taskPath(scope, id, ""), nil, &t)
	return t, err
}

// CreateTask creates a task at the end of its lane.
func (c *Client) CreateTask(ctx context.Context, scope models.Scope, in models.TaskInput) (models.Task, error) {
	var t models.Task
	err := c.do(ctx, http.MethodPost, projectPath(scope, "/tasks"), in, &t)
	return t, err
}

// UpdateTask applies patch and returns the stored task.
func (c *Client) UpdateTask(ctx context.Context, scope models.Scope, id string, patch models.TaskPatch) (models.Task, error) {
	var t models.Task
	err := c.do(ctx, http.MethodPut, taskPath(scope, id, ""), patch, &t)
	return t, err
}

// MoveTask asks the server to place the task and renumber its lanes.
func (c *Client) MoveTask(ctx context.Context, scope models.Scope, req models.MoveRequest) (models.MoveAck, error) {
	body := struct {
		Status     models.TaskStatus `json:"status"`
		OrderIndex int               `json:"order_index"`
		Version    int               `json:"version,omitempty"`
	}{req.Status, req.OrderIndex, req.Version}
	var ack models.MoveAck
	err := c.do(ctx, http.MethodPatch, taskPath(scope, req.TaskID, "/move"), body, &ack)
	return ack, err
}

// DeleteTask deletes a task with its comments and milestone links.
func (c *Client) DeleteTask(ctx context.Context, scope models.Scope, id string) error {
	return c.do(ctx, http.MethodDelete, taskPath(scope, id, ""), nil, nil)
}

// ListComments returns a task's thread oldest first.
func (c *Client) ListComments(ctx context.Context, scope models.Scope, taskID string) ([]models.TaskComment, error) {
	var out struct {
		Comments []models.TaskComment `json:"comments"`
	}
	if err := c.do(ctx, http.MethodGet, taskPath(scope, taskID, "/comments"), nil, &out); err != nil {
		return nil, err
	}
	return out.Comments, nil
}

// AddComment appends a comment.
func (c *Client) AddComment(ctx context.Context, scope models.Scope, taskID, content string) (models.TaskComment, error) {
	var cm models.TaskComment
	err := c.do(ctx, http.MethodPost, taskPath(scope, taskID, "/comments"), map[string]string{"content": content}, &cm)
	return cm, err
}

// GenerateTasks asks the server for drafts. Nothing is persisted.
func (c *Client) GenerateTasks(ctx context.Context, scope models.Scope, instructions string) ([]models.TaskGenerationItem, error) {
	var out struct {
		Items []models.TaskGenerationItem `json:"items"`
	}
	err := c.do(ctx, http.MethodPost, projectPath(scope, "/tasks/generate"), map[string]string{"instructions": instructions}, &out)
	if err != nil {
		return nil, fmt.Errorf("generate tasks: %w", err)
	}
	return out.Items, nil
}
