package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"taskboard/internal/auth"
	"taskboard/internal/middleware"
	"taskboard/internal/models"
	"taskboard/internal/testutil"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

const base = "/api/workspaces/ws-1/projects/p-1"

type testServer struct {
	t      *testing.T
	db     *gorm.DB
	h      *Handler
	router *gin.Engine
	tokens *auth.Manager
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	db, err := testutil.NewInMemoryDB()
	require.NoError(t, err)

	tokens := auth.NewManager("test-secret", "taskboard", "taskboard-clients", time.Hour)
	h := New(db, tokens)

	r := gin.New()
	r.POST("/api/login", h.Login)
	api := r.Group("/api", middleware.JWTAuth(tokens))
	api.GET("/users", h.GetAllUsers)
	ws := api.Group("/workspaces/:ws", middleware.WorkspaceAccess(db))
	ws.GET("/members", h.ListMembers)
	ws.POST("/members", middleware.RequireOwner(), h.AddMember)
	p := ws.Group("/projects/:project")
	edit := middleware.RequireEditor()
	p.GET("/tasks", h.GetTasks)
	p.POST("/tasks", edit, h.CreateTask)
	p.POST("/tasks/generate", edit, h.GenerateTasks)
	p.GET("/tasks/:id", h.GetTaskByID)
	p.PUT("/tasks/:id", edit, h.UpdateTask)
	p.PATCH("/tasks/:id/move", edit, h.MoveTask)
	p.DELETE("/tasks/:id", edit, h.DeleteTask)
	p.GET("/tasks/:id/comments", h.GetComments)
	p.POST("/tasks/:id/comments", edit, h.CreateComment)
	p.GET("/roadmap/phases", h.GetPhases)
	p.POST("/roadmap/phases", edit, h.CreatePhase)
	p.DELETE("/roadmap/phases/:phaseId", edit, h.DeletePhase)
	p.POST("/roadmap/phases/:phaseId/milestones", edit, h.CreateMilestone)
	p.DELETE("/roadmap/milestones/:milestoneId", edit, h.DeleteMilestone)
	p.POST("/roadmap/milestones/:milestoneId/tasks", edit, h.LinkTask)

	return &testServer{t: t, db: db, h: h, router: r, tokens: tokens}
}

// member seeds a user with a role in ws-1 and returns a token for them.
func (s *testServer) member(id string, role models.Role) string {
	s.t.Helper()
	require.NoError(s.t, s.db.Create(&models.User{ID: id, Username: id, Password: "x"}).Error)
	require.NoError(s.t, s.db.Create(&models.Membership{WorkspaceID: "ws-1", UserID: id, Role: role}).Error)
	token, err := s.tokens.GenerateToken(id, id)
	require.NoError(s.t, err)
	return token
}

func (s *testServer) do(method, path, token string, body any) *httptest.ResponseRecorder {
	s.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(s.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func (s *testServer) createTask(token, title string, status models.TaskStatus) models.Task {
	s.t.Helper()
	w := s.do(http.MethodPost, base+"/tasks", token, map[string]any{"title": title, "status": status})
	require.Equal(s.t, http.StatusCreated, w.Code, w.Body.String())
	return decode[models.Task](s.t, w)
}

func (s *testServer) lane(status models.TaskStatus) []models.Task {
	s.t.Helper()
	var tasks []models.Task
	require.NoError(s.t, s.db.Where("project_id = ? AND status = ?", "p-1", status).Order("order_index").Find(&tasks).Error)
	return tasks
}

func titles(tasks []models.Task) []string {
	out := make([]string, len(tasks))
	for i, t := range tasks {
		out[i] = t.Title
	}
	return out
}

func orderIndices(tasks []models.Task) []int {
	out := make([]int, len(tasks))
	for i, t := range tasks {
		out[i] = t.OrderIndex
	}
	return out
}
