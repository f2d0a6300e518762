package apiclient

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"taskboard/internal/auth"
	"taskboard/internal/board"
	"taskboard/internal/detail"
	"taskboard/internal/handlers"
	"taskboard/internal/intake"
	"taskboard/internal/linkgraph"
	"taskboard/internal/models"
	"taskboard/internal/routes"
	"taskboard/internal/testutil"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	db, err := testutil.NewInMemoryDB()
	require.NoError(t, err)
	h := handlers.New(db, auth.NewManager("test-secret", "taskboard", "taskboard-clients", time.Hour))
	srv := httptest.NewServer(routes.SetupRoutes(h, routes.Options{}))
	t.Cleanup(srv.Close)
	return srv
}

// session logs username in and returns a client with the caller's scope on
// ws-1/p-1.
func session(t *testing.T, srv *httptest.Server, username string) (*Client, models.Scope) {
	t.Helper()
	ctx := context.Background()
	c := New(srv.URL, WithTimeout(5*time.Second))
	s, err := c.Login(ctx, username, "pw")
	require.NoError(t, err)
	role, err := c.Role(ctx, "ws-1")
	require.NoError(t, err)
	return c, models.Scope{WorkspaceID: "ws-1", ProjectID: "p-1", UserID: s.UserID, Role: role}
}

func laneTitles(s *board.Store, status models.TaskStatus) []string {
	var out []string
	for _, t := range s.LaneView().Lane(status) {
		out = append(out, t.Title)
	}
	return out
}

func serverTitles(t *testing.T, c *Client, scope models.Scope, status models.TaskStatus) []string {
	t.Helper()
	tasks, err := c.ListTasks(context.Background(), scope)
	require.NoError(t, err)
	var out []string
	for _, task := range tasks {
		if task.Status == status {
			out = append(out, task.Title)
		}
	}
	return out
}

func TestHealthAndUserID(t *testing.T) {
	srv := newServer(t)
	c := New(srv.URL)
	require.NoError(t, c.Health(context.Background()))

	_, err := c.UserID()
	require.Error(t, err)

	s, err := c.Login(context.Background(), "alice", "pw")
	require.NoError(t, err)
	id, err := c.UserID()
	require.NoError(t, err)
	assert.Equal(t, s.UserID, id)
	assert.Equal(t, s.Token, c.Token())
}

func TestErrorsUnwrapToSentinels(t *testing.T) {
	srv := newServer(t)
	ctx := context.Background()

	_, err := New(srv.URL).ListTasks(ctx, models.Scope{WorkspaceID: "ws-1", ProjectID: "p-1"})
	require.ErrorIs(t, err, models.ErrUnauthorized)
	var apiErr *Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.Status)
	assert.Equal(t, "unauthorized", apiErr.Code)

	c, scope := session(t, srv, "alice")
	_, err = c.GetTask(ctx, scope, "nope")
	assert.ErrorIs(t, err, models.ErrNotFound)

	_, err = c.CreateTask(ctx, scope, models.TaskInput{})
	assert.ErrorIs(t, err, models.ErrValidation)
	assert.Equal(t, "title is required", models.Describe(err))
}

func TestPlainTextErrorBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream gone", http.StatusBadGateway)
	}))
	defer srv.Close()

	err := New(srv.URL).Health(context.Background())
	var apiErr *Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "upstream gone", apiErr.Message)
	assert.Equal(t, "internal_error", apiErr.Code)
	assert.Nil(t, errors.Unwrap(err))
}

func TestBoardEndToEnd(t *testing.T) {
	srv := newServer(t)
	ctx := context.Background()
	c, scope := session(t, srv, "alice")
	require.Equal(t, models.RoleOwner, scope.Role)

	store := board.NewStore()
	engine := board.NewEngine(store, c, scope)
	for _, title := range []string{"A", "B", "C"} {
		_, err := engine.CreateTask(ctx, models.TaskInput{Title: title})
		require.NoError(t, err)
	}
	_, err := engine.CreateTask(ctx, models.TaskInput{Title: "D", Status: models.StatusDone})
	require.NoError(t, err)

	a := store.LaneView().Lane(models.StatusTodo)[0]
	require.NoError(t, engine.Move(ctx, a.ID, models.StatusTodo, models.StatusDone, 0, 1))
	assert.Equal(t, []string{"B", "C"}, laneTitles(store, models.StatusTodo))
	assert.Equal(t, []string{"D", "A"}, laneTitles(store, models.StatusDone))

	// the server renumbers the same way
	assert.Equal(t, []string{"B", "C"}, serverTitles(t, c, scope, models.StatusTodo))
	assert.Equal(t, []string{"D", "A"}, serverTitles(t, c, scope, models.StatusDone))

	moved, _ := store.Task(a.ID)
	assert.Equal(t, 2, moved.Version)

	require.NoError(t, engine.Reload(ctx))
	assert.Equal(t, []string{"D", "A"}, laneTitles(store, models.StatusDone))
}

func TestStaleMoveRollsBack(t *testing.T) {
	srv := newServer(t)
	ctx := context.Background()
	c, scope := session(t, srv, "alice")

	store := board.NewStore()
	engine := board.NewEngine(store, c, scope)
	a, err := engine.CreateTask(ctx, models.TaskInput{Title: "A"})
	require.NoError(t, err)
	_, err = engine.CreateTask(ctx, models.TaskInput{Title: "B"})
	require.NoError(t, err)

	// another session edits A behind this view's back
	title := "A edited elsewhere"
	_, err = c.UpdateTask(ctx, scope, a.ID, models.TaskPatch{Title: &title, Version: 1})
	require.NoError(t, err)

	err = engine.Move(ctx, a.ID, models.StatusTodo, models.StatusInProgress, 0, 0)
	require.ErrorIs(t, err, models.ErrConflict)
	assert.Equal(t, []string{"A", "B"}, laneTitles(store, models.StatusTodo))
	assert.Empty(t, laneTitles(store, models.StatusInProgress))

	require.NoError(t, engine.Reload(ctx))
	require.NoError(t, engine.Move(ctx, a.ID, models.StatusTodo, models.StatusInProgress, 0, 0))
	assert.Equal(t, []string{"A edited elsewhere"}, serverTitles(t, c, scope, models.StatusInProgress))
}

func TestViewerIsRejectedByServer(t *testing.T) {
	srv := newServer(t)
	ctx := context.Background()
	owner, ownerScope := session(t, srv, "alice")

	bobClient := New(srv.URL)
	_, err := bobClient.Login(ctx, "bob", "pw")
	require.NoError(t, err)
	_, err = owner.AddMember(ctx, "ws-1", "bob", models.RoleViewer)
	require.NoError(t, err)

	bob, scope := session(t, srv, "bob")
	assert.Equal(t, models.RoleViewer, scope.Role)

	task, err := owner.CreateTask(ctx, ownerScope, models.TaskInput{Title: "A"})
	require.NoError(t, err)

	// bypass the client-side role check
	_, err = bob.MoveTask(ctx, scope, models.MoveRequest{TaskID: task.ID, Status: models.StatusDone})
	require.ErrorIs(t, err, models.ErrForbidden)

	engine := board.NewEngine(board.NewStore(), bob, scope)
	require.NoError(t, engine.Reload(ctx))
	assert.False(t, engine.CanDrag())
	assert.ErrorIs(t, engine.Move(ctx, task.ID, models.StatusTodo, models.StatusDone, 0, 0), models.ErrReadOnly)
}

func TestRoadmapEndToEnd(t *testing.T) {
	srv := newServer(t)
	ctx := context.Background()
	c, scope := session(t, srv, "alice")

	store := board.NewStore()
	engine := board.NewEngine(store, c, scope)
	t1, err := engine.CreateTask(ctx, models.TaskInput{Title: "T1", Status: models.StatusDone})
	require.NoError(t, err)
	t2, err := engine.CreateTask(ctx, models.TaskInput{Title: "T2"})
	require.NoError(t, err)
	t3, err := engine.CreateTask(ctx, models.TaskInput{Title: "T3"})
	require.NoError(t, err)

	graph := linkgraph.New(store, c, scope, linkgraph.WithConcurrency(2))
	require.NoError(t, graph.Refresh(ctx))
	phase, err := graph.CreatePhase(ctx, models.PhaseInput{Title: "Launch"})
	require.NoError(t, err)
	m, err := graph.CreateMilestone(ctx, phase.ID, models.MilestoneInput{Title: "Beta"})
	require.NoError(t, err)

	require.NoError(t, graph.SetLinks(ctx, m.ID, []string{t1.ID, t2.ID}))
	assert.InDelta(t, 0.5, graph.Progress(m.ID), 1e-9)

	require.NoError(t, graph.SetLinks(ctx, m.ID, []string{t1.ID, t3.ID}))
	assert.Equal(t, []string{t1.ID, t3.ID}, graph.LinkedIDs(m.ID))

	phases, err := c.ListPhases(ctx, scope)
	require.NoError(t, err)
	require.Len(t, phases, 1)
	require.Len(t, phases[0].Milestones, 1)
	var linked []string
	for _, task := range phases[0].Milestones[0].LinkedTasks {
		linked = append(linked, task.ID)
	}
	assert.Equal(t, []string{t1.ID, t3.ID}, linked)

	// moving T3 to done completes the milestone without a refetch
	require.NoError(t, engine.Move(ctx, t3.ID, models.StatusTodo, models.StatusDone, 1, 1))
	assert.InDelta(t, 1.0, graph.Progress(m.ID), 1e-9)
	assert.InDelta(t, 1.0, graph.PhaseProgress(phase.ID), 1e-9)

	require.NoError(t, engine.DeleteTask(ctx, t1.ID))
	assert.Equal(t, []string{t3.ID}, graph.LinkedIDs(m.ID))
	require.NoError(t, graph.Refresh(ctx))
	assert.Equal(t, []string{t3.ID}, graph.LinkedIDs(m.ID))

	require.NoError(t, graph.DeleteMilestone(ctx, m.ID))
	require.NoError(t, graph.DeletePhase(ctx, phase.ID))
	require.NoError(t, graph.Refresh(ctx))
	assert.Empty(t, graph.Phases())
}

func TestPanelAndIntakeEndToEnd(t *testing.T) {
	srv := newServer(t)
	ctx := context.Background()
	c, scope := session(t, srv, "alice")

	store := board.NewStore()
	engine := board.NewEngine(store, c, scope)
	task, err := engine.CreateTask(ctx, models.TaskInput{Title: "Write release notes"})
	require.NoError(t, err)

	panel, err := detail.Open(ctx, engine, c, task.ID, nil)
	require.NoError(t, err)
	assert.Empty(t, panel.Comments())
	_, err = panel.AddComment(ctx, "draft is in the doc")
	require.NoError(t, err)
	again, err := detail.Open(ctx, engine, c, task.ID, nil)
	require.NoError(t, err)
	require.Len(t, again.Comments(), 1)
	assert.Equal(t, "draft is in the doc", again.Comments()[0].Content)

	done := models.StatusDone
	updated, err := panel.Update(ctx, models.TaskPatch{Status: &done})
	require.NoError(t, err)
	assert.Equal(t, models.StatusDone, updated.Status)

	in := intake.New(engine, c, c, nil)
	p, err := in.Propose(ctx, "- Set up CI\n- Migrate the billing tables")
	require.NoError(t, err)
	require.Len(t, p.Drafts(), 2)
	assert.Equal(t, 1, store.Len(), "drafts stay out of the board")

	created, err := in.Confirm(ctx, p)
	require.NoError(t, err)
	require.Len(t, created, 2)
	for _, t2 := range created {
		assert.True(t, t2.AIGenerated)
		assert.Equal(t, models.StatusTodo, t2.Status)
	}
	assert.Equal(t, []string{"Set up CI", "Migrate the billing tables"}, laneTitles(store, models.StatusTodo))
	assert.Equal(t, []string{"Set up CI", "Migrate the billing tables"}, serverTitles(t, c, scope, models.StatusTodo))

	_, err = in.Confirm(ctx, p)
	assert.ErrorIs(t, err, models.ErrAlreadyConfirmed)

	require.NoError(t, panel.Delete(ctx))
	_, ok := panel.Task()
	assert.False(t, ok)
}
