package detail

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"taskboard/internal/board"
	"taskboard/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAPI struct {
	mu         sync.Mutex
	tasks      map[string]models.Task
	comments   map[string][]models.TaskComment
	posted     int
	commentErr error
	gate       chan struct{}
	entered    chan struct{}
	deleted    []string
}

func newFakeAPI(tasks ...models.Task) *fakeAPI {
	f := &fakeAPI{tasks: map[string]models.Task{}, comments: map[string][]models.TaskComment{}}
	for _, t := range tasks {
		f.tasks[t.ID] = t
	}
	return f
}

func (f *fakeAPI) GetTask(ctx context.Context, scope models.Scope, id string) (models.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tasks[id]
	if !ok {
		return models.Task{}, models.ErrNotFound
	}
	return t, nil
}

func (f *fakeAPI) ListComments(ctx context.Context, scope models.Scope, taskID string) ([]models.TaskComment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.TaskComment(nil), f.comments[taskID]...), nil
}

func (f *fakeAPI) AddComment(ctx context.Context, scope models.Scope, taskID, content string) (models.TaskComment, error) {
	if f.gate != nil {
		f.entered <- struct{}{}
		<-f.gate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.posted++
	if f.commentErr != nil {
		return models.TaskComment{}, f.commentErr
	}
	c := models.TaskComment{
		ID:        fmt.Sprintf("c%d", f.posted),
		TaskID:    taskID,
		AuthorID:  scope.UserID,
		Content:   content,
		CreatedAt: time.Now(),
	}
	f.comments[taskID] = append(f.comments[taskID], c)
	return c, nil
}

func (f *fakeAPI) ListTasks(ctx context.Context, scope models.Scope) ([]models.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]models.Task, 0, len(f.tasks))
	for _, t := range f.tasks {
		out = append(out, t)
	}
	return out, nil
}

func (f *fakeAPI) CreateTask(ctx context.Context, scope models.Scope, in models.TaskInput) (models.Task, error) {
	return models.Task{}, errors.New("not used")
}

func (f *fakeAPI) UpdateTask(ctx context.Context, scope models.Scope, id string, patch models.TaskPatch) (models.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t := f.tasks[id]
	patch.Apply(&t)
	t.Version++
	f.tasks[id] = t
	return t, nil
}

func (f *fakeAPI) MoveTask(ctx context.Context, scope models.Scope, req models.MoveRequest) (models.MoveAck, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t := f.tasks[req.TaskID]
	t.Status = req.Status
	t.OrderIndex = req.OrderIndex
	t.Version++
	f.tasks[req.TaskID] = t
	return models.MoveAck{TaskID: t.ID, Version: t.Version}, nil
}

func (f *fakeAPI) DeleteTask(ctx context.Context, scope models.Scope, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.tasks, id)
	f.deleted = append(f.deleted, id)
	return nil
}

var scope = models.Scope{WorkspaceID: "w", UserID: "u1", ProjectID: "p", Role: models.RoleEditor}

func openPanel(t *testing.T) (*Panel, *board.Engine, *fakeAPI) {
	t.Helper()
	api := newFakeAPI(
		models.Task{ID: "A", Title: "Write docs", Status: models.StatusTodo, OrderIndex: 0, Version: 1, Description: "full text"},
		models.Task{ID: "B", Title: "Ship", Status: models.StatusTodo, OrderIndex: 1, Version: 1},
	)
	older := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	api.comments["A"] = []models.TaskComment{
		{ID: "c-late", TaskID: "A", Content: "second", CreatedAt: older.Add(time.Hour)},
		{ID: "c-early", TaskID: "A", Content: "first", CreatedAt: older},
	}
	store := board.NewStore()
	engine := board.NewEngine(store, api, scope)
	require.NoError(t, engine.Reload(context.Background()))

	p, err := Open(context.Background(), engine, api, "A", nil)
	require.NoError(t, err)
	return p, engine, api
}

func TestOpen_LoadsTaskAndComments(t *testing.T) {
	p, _, _ := openPanel(t)

	task, ok := p.Task()
	require.True(t, ok)
	assert.Equal(t, "full text", task.Description)

	cs := p.Comments()
	require.Len(t, cs, 2)
	assert.Equal(t, "first", cs[0].Content)
	assert.Equal(t, "second", cs[1].Content)
}

func TestOpen_MissingTask(t *testing.T) {
	api := newFakeAPI()
	engine := board.NewEngine(board.NewStore(), api, scope)
	_, err := Open(context.Background(), engine, api, "ghost", nil)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestAddComment(t *testing.T) {
	tests := []struct {
		name    string
		content string
		apiErr  error
		check   func(t *testing.T, p *Panel, api *fakeAPI, err error)
	}{
		{
			name:    "appends after confirmation",
			content: "  looks good  ",
			check: func(t *testing.T, p *Panel, api *fakeAPI, err error) {
				require.NoError(t, err)
				cs := p.Comments()
				require.Len(t, cs, 3)
				assert.Equal(t, "looks good", cs[2].Content)
				assert.Equal(t, "u1", cs[2].AuthorID)
			},
		},
		{
			name:    "blank content sends nothing",
			content: " \n\t ",
			check: func(t *testing.T, p *Panel, api *fakeAPI, err error) {
				assert.ErrorIs(t, err, models.ErrValidation)
				assert.Equal(t, 0, api.posted)
				assert.Len(t, p.Comments(), 2)
			},
		},
		{
			name:    "server failure leaves list alone",
			content: "hello",
			apiErr:  errors.New("502"),
			check: func(t *testing.T, p *Panel, api *fakeAPI, err error) {
				require.Error(t, err)
				assert.Equal(t, 1, api.posted)
				assert.Len(t, p.Comments(), 2)
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, _, api := openPanel(t)
			api.commentErr = tt.apiErr
			_, err := p.AddComment(context.Background(), tt.content)
			tt.check(t, p, api, err)
		})
	}
}

func TestAddComment_DroppedAfterClose(t *testing.T) {
	p, _, api := openPanel(t)
	api.gate = make(chan struct{})
	api.entered = make(chan struct{}, 1)

	done := make(chan error, 1)
	go func() {
		_, err := p.AddComment(context.Background(), "late")
		done <- err
	}()
	<-api.entered
	p.Close()
	close(api.gate)

	require.NoError(t, <-done)
	assert.Len(t, p.Comments(), 2)
}

func TestUpdate_SharesBoardState(t *testing.T) {
	p, engine, _ := openPanel(t)

	done := models.StatusDone
	title := "Write the docs"
	_, err := p.Update(context.Background(), models.TaskPatch{Status: &done, Title: &title})
	require.NoError(t, err)

	fromBoard, ok := engine.Store().Task("A")
	require.True(t, ok)
	fromPanel, _ := p.Task()
	assert.Equal(t, fromBoard, fromPanel)
	assert.Equal(t, models.StatusDone, fromPanel.Status)
	assert.Equal(t, "Write the docs", fromPanel.Title)
	assert.Equal(t, []string{"B"}, idsOf(engine.Store().LaneView().Lane(models.StatusTodo)))
}

func TestDelete_ClosesPanel(t *testing.T) {
	p, engine, api := openPanel(t)

	require.NoError(t, p.Delete(context.Background()))
	assert.Equal(t, []string{"A"}, api.deleted)
	_, ok := p.Task()
	assert.False(t, ok)
	assert.Equal(t, 1, engine.Store().Len())

	_, err := p.AddComment(context.Background(), "after")
	assert.ErrorIs(t, err, models.ErrClosed)
}

func idsOf(ts []models.Task) []string {
	out := make([]string, len(ts))
	for i, t := range ts {
		out[i] = t.ID
	}
	return out
}
