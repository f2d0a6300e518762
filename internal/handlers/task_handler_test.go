package handlers

import (
	"net/http"
	"testing"

	"taskboard/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateTask_AppendsToLane(t *testing.T) {
	s := newTestServer(t)
	token := s.member("u-1", models.RoleEditor)

	a := s.createTask(token, "A", models.StatusTodo)
	b := s.createTask(token, "  B  ", "")
	d := s.createTask(token, "D", models.StatusDone)

	assert.Equal(t, 0, a.OrderIndex)
	assert.Equal(t, 1, b.OrderIndex)
	assert.Equal(t, "B", b.Title)
	assert.Equal(t, models.StatusTodo, b.Status)
	assert.Equal(t, models.PriorityMedium, b.Priority)
	assert.Equal(t, 0, d.OrderIndex)
	assert.Equal(t, 1, a.Version)
	assert.Equal(t, "ws-1", a.WorkspaceID)
	assert.Equal(t, "p-1", a.ProjectID)
	assert.Equal(t, "u-1", a.CreatedBy)
}

func TestCreateTask_AppendsAfterHighestIndex(t *testing.T) {
	s := newTestServer(t)
	token := s.member("u-1", models.RoleEditor)
	require.NoError(t, s.db.Create(&models.Task{
		ID: "gap", WorkspaceID: "ws-1", ProjectID: "p-1", Title: "G",
		Status: models.StatusTodo, Priority: models.PriorityMedium, OrderIndex: 5, Version: 1,
	}).Error)

	a := s.createTask(token, "A", models.StatusTodo)
	b := s.createTask(token, "B", models.StatusTodo)
	d := s.createTask(token, "D", models.StatusDone)

	assert.Equal(t, 6, a.OrderIndex)
	assert.Equal(t, 7, b.OrderIndex)
	assert.Equal(t, 0, d.OrderIndex)
	assert.Equal(t, []string{"G", "A", "B"}, titles(s.lane(models.StatusTodo)))
}

func TestCreateTask_Rejects(t *testing.T) {
	s := newTestServer(t)
	editor := s.member("u-1", models.RoleEditor)
	viewer := s.member("u-2", models.RoleViewer)

	tests := []struct {
		name   string
		token  string
		body   map[string]any
		status int
		code   string
	}{
		{"empty title", editor, map[string]any{"title": "   "}, http.StatusBadRequest, "invalid_request"},
		{"bad status", editor, map[string]any{"title": "x", "status": "blocked"}, http.StatusBadRequest, "invalid_request"},
		{"two kb links", editor, map[string]any{"title": "x", "context_links": []map[string]string{
			{"kind": "kb", "id": "1"}, {"kind": "kb", "id": "2"},
		}}, http.StatusBadRequest, "invalid_request"},
		{"viewer", viewer, map[string]any{"title": "x"}, http.StatusForbidden, "forbidden"},
		{"no token", "", map[string]any{"title": "x"}, http.StatusUnauthorized, "unauthorized"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := s.do(http.MethodPost, base+"/tasks", tt.token, tt.body)
			assert.Equal(t, tt.status, w.Code)
			assert.Contains(t, w.Body.String(), `"code":"`+tt.code+`"`)
		})
	}

	var n int64
	require.NoError(t, s.db.Model(&models.Task{}).Count(&n).Error)
	assert.Zero(t, n)
}

func TestGetTasks_BoardOrder(t *testing.T) {
	s := newTestServer(t)
	token := s.member("u-1", models.RoleViewer)
	require.NoError(t, s.db.Create(&[]models.Task{
		{ID: "t3", WorkspaceID: "ws-1", ProjectID: "p-1", Title: "C", Status: models.StatusDone, OrderIndex: 0, Version: 1},
		{ID: "t2", WorkspaceID: "ws-1", ProjectID: "p-1", Title: "B", Status: models.StatusTodo, OrderIndex: 1, Version: 1},
		{ID: "t1", WorkspaceID: "ws-1", ProjectID: "p-1", Title: "A", Status: models.StatusTodo, OrderIndex: 0, Version: 1},
		{ID: "x", WorkspaceID: "ws-1", ProjectID: "other", Title: "X", Version: 1},
	}).Error)

	w := s.do(http.MethodGet, base+"/tasks", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode[struct {
		Tasks []models.Task `json:"tasks"`
		Count int           `json:"count"`
	}](t, w)
	assert.Equal(t, 3, resp.Count)
	assert.Equal(t, []string{"A", "B", "C"}, titles(resp.Tasks))

	w = s.do(http.MethodGet, base+"/tasks?status=done", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"count":1`)

	w = s.do(http.MethodGet, base+"/tasks?status=nope", token, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetTaskByID_ScopedToProject(t *testing.T) {
	s := newTestServer(t)
	token := s.member("u-1", models.RoleEditor)
	task := s.createTask(token, "A", models.StatusTodo)

	w := s.do(http.MethodGet, base+"/tasks/"+task.ID, token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, task.ID, decode[models.Task](t, w).ID)

	w = s.do(http.MethodGet, "/api/workspaces/ws-1/projects/p-2/tasks/"+task.ID, token, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), `"code":"not_found"`)
}

func TestMoveTask_RenumbersBothLanes(t *testing.T) {
	s := newTestServer(t)
	token := s.member("u-1", models.RoleEditor)
	a := s.createTask(token, "A", models.StatusTodo)
	s.createTask(token, "B", models.StatusTodo)
	s.createTask(token, "C", models.StatusTodo)
	s.createTask(token, "D", models.StatusDone)

	w := s.do(http.MethodPatch, base+"/tasks/"+a.ID+"/move", token, gin.H{
		"status": "done", "order_index": 0, "version": a.Version,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	ack := decode[models.MoveAck](t, w)
	assert.Equal(t, a.ID, ack.TaskID)
	assert.Equal(t, 2, ack.Version)
	assert.Positive(t, ack.Reindexed)

	todo, done := s.lane(models.StatusTodo), s.lane(models.StatusDone)
	assert.Equal(t, []string{"B", "C"}, titles(todo))
	assert.Equal(t, []int{0, 1}, orderIndices(todo))
	assert.Equal(t, []string{"A", "D"}, titles(done))
	assert.Equal(t, []int{0, 1}, orderIndices(done))

	// siblings keep their version
	for _, sib := range todo {
		assert.Equal(t, 1, sib.Version, sib.Title)
	}
}

func TestMoveTask_WithinLane(t *testing.T) {
	s := newTestServer(t)
	token := s.member("u-1", models.RoleEditor)
	s.createTask(token, "A", models.StatusTodo)
	s.createTask(token, "B", models.StatusTodo)
	c := s.createTask(token, "C", models.StatusTodo)

	w := s.do(http.MethodPatch, base+"/tasks/"+c.ID+"/move", token, gin.H{"status": "todo", "order_index": 0})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, []string{"C", "A", "B"}, titles(s.lane(models.StatusTodo)))
	assert.Equal(t, []int{0, 1, 2}, orderIndices(s.lane(models.StatusTodo)))
}

func TestMoveTask_NoOpKeepsVersion(t *testing.T) {
	s := newTestServer(t)
	token := s.member("u-1", models.RoleEditor)
	a := s.createTask(token, "A", models.StatusTodo)

	w := s.do(http.MethodPatch, base+"/tasks/"+a.ID+"/move", token, gin.H{"status": "todo", "order_index": 0, "version": 1})
	require.Equal(t, http.StatusOK, w.Code)
	ack := decode[models.MoveAck](t, w)
	assert.Equal(t, 1, ack.Version)
	assert.Zero(t, ack.Reindexed)
}

func TestMoveTask_Rejects(t *testing.T) {
	s := newTestServer(t)
	editor := s.member("u-1", models.RoleEditor)
	viewer := s.member("u-2", models.RoleViewer)
	a := s.createTask(editor, "A", models.StatusTodo)

	tests := []struct {
		name   string
		token  string
		path   string
		body   gin.H
		status int
		code   string
	}{
		{"stale version", editor, a.ID, gin.H{"status": "done", "order_index": 0, "version": 7}, http.StatusConflict, "conflict"},
		{"viewer", viewer, a.ID, gin.H{"status": "done", "order_index": 0}, http.StatusForbidden, "forbidden"},
		{"unknown lane", editor, a.ID, gin.H{"status": "blocked", "order_index": 0}, http.StatusBadRequest, "invalid_request"},
		{"missing index", editor, a.ID, gin.H{"status": "done"}, http.StatusBadRequest, "invalid_request"},
		{"missing task", editor, "nope", gin.H{"status": "done", "order_index": 0}, http.StatusNotFound, "not_found"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := s.do(http.MethodPatch, base+"/tasks/"+tt.path+"/move", tt.token, tt.body)
			assert.Equal(t, tt.status, w.Code, w.Body.String())
			assert.Contains(t, w.Body.String(), `"code":"`+tt.code+`"`)
		})
	}

	var stored models.Task
	require.NoError(t, s.db.First(&stored, "id = ?", a.ID).Error)
	assert.Equal(t, models.StatusTodo, stored.Status)
	assert.Equal(t, 1, stored.Version)
}

func TestUpdateTask(t *testing.T) {
	s := newTestServer(t)
	token := s.member("u-1", models.RoleEditor)
	a := s.createTask(token, "A", models.StatusTodo)
	b := s.createTask(token, "B", models.StatusTodo)
	s.createTask(token, "D", models.StatusDone)

	w := s.do(http.MethodPut, base+"/tasks/"+a.ID, token, gin.H{
		"title": "A2", "priority": "high", "status": "done", "due_date": "3 Mar 2026", "version": 1,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	got := decode[models.Task](t, w)
	assert.Equal(t, "A2", got.Title)
	assert.Equal(t, models.PriorityHigh, got.Priority)
	assert.Equal(t, models.StatusDone, got.Status)
	assert.Equal(t, 1, got.OrderIndex)
	assert.Equal(t, "2026-03-03", got.DueDate)
	assert.Equal(t, 2, got.Version)

	todo := s.lane(models.StatusTodo)
	require.Len(t, todo, 1)
	assert.Equal(t, b.ID, todo[0].ID)
	assert.Equal(t, 0, todo[0].OrderIndex)

	w = s.do(http.MethodPut, base+"/tasks/"+a.ID, token, gin.H{"title": "again", "version": 1})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = s.do(http.MethodPut, base+"/tasks/"+a.ID, token, gin.H{"effort": 0})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDeleteTask_RemovesLinksAndClosesGap(t *testing.T) {
	s := newTestServer(t)
	token := s.member("u-1", models.RoleEditor)
	a := s.createTask(token, "A", models.StatusTodo)
	s.createTask(token, "B", models.StatusTodo)
	s.createTask(token, "C", models.StatusTodo)

	require.NoError(t, s.db.Create(&models.RoadmapPhase{ID: "ph", WorkspaceID: "ws-1", ProjectID: "p-1", Title: "P", Status: models.PhasePlanned}).Error)
	require.NoError(t, s.db.Create(&models.RoadmapMilestone{ID: "m1", PhaseID: "ph", Title: "M", Status: models.PhasePlanned}).Error)
	require.NoError(t, s.db.Create(&models.MilestoneTask{MilestoneID: "m1", TaskID: a.ID}).Error)
	require.NoError(t, s.db.Create(&models.TaskComment{ID: "c1", TaskID: a.ID, Content: "hi"}).Error)

	w := s.do(http.MethodDelete, base+"/tasks/"+a.ID, token, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), "Task deleted successfully")

	var edges, comments int64
	require.NoError(t, s.db.Model(&models.MilestoneTask{}).Count(&edges).Error)
	require.NoError(t, s.db.Model(&models.TaskComment{}).Count(&comments).Error)
	assert.Zero(t, edges)
	assert.Zero(t, comments)

	todo := s.lane(models.StatusTodo)
	assert.Equal(t, []string{"B", "C"}, titles(todo))
	assert.Equal(t, []int{0, 1}, orderIndices(todo))

	w = s.do(http.MethodDelete, base+"/tasks/"+a.ID, token, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestTaskEventsArePublished(t *testing.T) {
	s := newTestServer(t)
	token := s.member("u-1", models.RoleEditor)
	sub := &recordingClient{}
	s.h.Hub.Register("ws-1", sub)
	other := &recordingClient{}
	s.h.Hub.Register("ws-2", other)

	a := s.createTask(token, "A", models.StatusTodo)
	w := s.do(http.MethodPatch, base+"/tasks/"+a.ID+"/move", token, gin.H{"status": "done", "order_index": 0})
	require.Equal(t, http.StatusOK, w.Code)

	require.Len(t, sub.messages, 2)
	assert.Contains(t, sub.messages[0], `"type":"task_created"`)
	assert.Contains(t, sub.messages[1], `"type":"task_moved"`)
	assert.Empty(t, other.messages)
}

type recordingClient struct {
	messages []string
}

func (c *recordingClient) Send(message []byte) bool {
	c.messages = append(c.messages, string(message))
	return true
}

func (c *recordingClient) Close() {}
