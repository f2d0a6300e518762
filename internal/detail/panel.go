// Package detail backs the task detail view: one task record plus its comment
// thread.
package detail

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"taskboard/internal/board"
	"taskboard/internal/models"
	"taskboard/internal/telemetry"

	"golang.org/x/sync/errgroup"
)

// Backend is the slice of the API the panel reads and appends through.
type Backend interface {
	GetTask(ctx context.Context, scope models.Scope, id string) (models.Task, error)
	ListComments(ctx context.Context, scope models.Scope, taskID string) ([]models.TaskComment, error)
	AddComment(ctx context.Context, scope models.Scope, taskID, content string) (models.TaskComment, error)
}

// Panel shows one task. The task itself lives in the board store and every
// edit goes through the board engine. The panel only owns the comment list.
type Panel struct {
	mu       sync.Mutex
	engine   *board.Engine
	backend  Backend
	taskID   string
	comments []models.TaskComment
	closed   bool
	log      *slog.Logger
}

// Open loads the task and its comments. Both fetches run at once.
func Open(ctx context.Context, engine *board.Engine, backend Backend, taskID string, log *slog.Logger) (*Panel, error) {
	if log == nil {
		log = telemetry.Discard()
	}
	p := &Panel{engine: engine, backend: backend, taskID: taskID, log: log}
	scope := engine.Scope()
	epoch := engine.Store().Epoch()

	var (
		task     models.Task
		comments []models.TaskComment
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		task, err = backend.GetTask(gctx, scope, taskID)
		if err != nil {
			return fmt.Errorf("get task %s: %w", taskID, err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		comments, err = backend.ListComments(gctx, scope, taskID)
		if err != nil {
			return fmt.Errorf("list comments of %s: %w", taskID, err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if !engine.Store().Merge(epoch, task) {
		log.Debug("task fetched after reload, keeping store copy", "task_id", taskID)
	}
	sortComments(comments)
	p.comments = comments
	return p, nil
}

// TaskID returns the id the panel was opened for.
func (p *Panel) TaskID() string { return p.taskID }

// Task returns the live record from the board store. ok is false once the
// task has been deleted.
func (p *Panel) Task() (models.Task, bool) {
	return p.engine.Store().Task(p.taskID)
}

// Comments returns the thread oldest first.
func (p *Panel) Comments() []models.TaskComment {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]models.TaskComment(nil), p.comments...)
}

// AddComment posts content and appends the server's comment once it is
// confirmed. Nothing is shown locally before that.
func (p *Panel) AddComment(ctx context.Context, content string) (models.TaskComment, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return models.TaskComment{}, fmt.Errorf("add comment: %w: comment is empty", models.ErrValidation)
	}
	if !p.engine.Scope().CanEdit() {
		return models.TaskComment{}, fmt.Errorf("add comment: %w", models.ErrReadOnly)
	}
	if p.isClosed() {
		return models.TaskComment{}, models.ErrClosed
	}
	c, err := p.backend.AddComment(ctx, p.engine.Scope(), p.taskID, content)
	if err != nil {
		return models.TaskComment{}, fmt.Errorf("add comment: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return c, nil
	}
	for _, have := range p.comments {
		if have.ID == c.ID {
			return c, nil
		}
	}
	p.comments = append(p.comments, c)
	return c, nil
}

// Update edits the task through the board engine.
func (p *Panel) Update(ctx context.Context, patch models.TaskPatch) (models.Task, error) {
	if p.isClosed() {
		return models.Task{}, models.ErrClosed
	}
	return p.engine.UpdateTask(ctx, p.taskID, patch)
}

// Delete deletes the task through the board engine and closes the panel.
func (p *Panel) Delete(ctx context.Context) error {
	if p.isClosed() {
		return models.ErrClosed
	}
	if err := p.engine.DeleteTask(ctx, p.taskID); err != nil {
		return err
	}
	p.Close()
	return nil
}

// Close marks the panel stale. Late comment responses are dropped.
func (p *Panel) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
}

func (p *Panel) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

func sortComments(cs []models.TaskComment) {
	sort.SliceStable(cs, func(i, j int) bool {
		if !cs[i].CreatedAt.Equal(cs[j].CreatedAt) {
			return cs[i].CreatedAt.Before(cs[j].CreatedAt)
		}
		return cs[i].ID < cs[j].ID
	})
}
