package board

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"taskboard/internal/lanes"
	"taskboard/internal/models"
	"taskboard/internal/telemetry"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Backend is the slice of the API the engine persists through.
type Backend interface {
	ListTasks(ctx context.Context, scope models.Scope) ([]models.Task, error)
	CreateTask(ctx context.Context, scope models.Scope, in models.TaskInput) (models.Task, error)
	UpdateTask(ctx context.Context, scope models.Scope, id string, patch models.TaskPatch) (models.Task, error)
	MoveTask(ctx context.Context, scope models.Scope, req models.MoveRequest) (models.MoveAck, error)
	DeleteTask(ctx context.Context, scope models.Scope, id string) error
}

// Engine applies drag gestures and task edits to the store optimistically
// where the contract allows it and persists them through the backend.
type Engine struct {
	store   *Store
	backend Backend
	scope   models.Scope
	log     *slog.Logger
	tracer  trace.Tracer
	metrics *telemetry.Metrics

	// mu guards chains and is taken before the store's lock.
	mu     sync.Mutex
	chains map[string]*moveChain
}

// moveChain queues the moves of one task that are not yet acknowledged. Each
// request waits for the one before it so it carries the version that reply
// produced.
type moveChain struct {
	last    int
	tail    chan struct{}
	origin  slot // last acknowledged position
	pending int
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine's logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.log = l }
}

// WithTelemetry attaches a tracer and metric instruments.
func WithTelemetry(p *telemetry.Provider, m *telemetry.Metrics) Option {
	return func(e *Engine) {
		if p != nil {
			e.tracer = p.Tracer
		}
		if m != nil {
			e.metrics = m
		}
	}
}

// NewEngine binds store and backend to one project scope.
func NewEngine(store *Store, backend Backend, scope models.Scope, opts ...Option) *Engine {
	e := &Engine{
		store:   store,
		backend: backend,
		scope:   scope,
		log:     telemetry.Discard(),
		tracer:  telemetry.Noop().Tracer,
		metrics: telemetry.NoopMetrics(),
		chains:  make(map[string]*moveChain),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Store returns the store the engine mutates.
func (e *Engine) Store() *Store { return e.store }

// Scope returns the project scope the engine was opened with.
func (e *Engine) Scope() models.Scope { return e.scope }

// CanDrag reports whether drag handles should be enabled. Viewers can't drag.
func (e *Engine) CanDrag() bool {
	return e.scope.CanEdit() && !e.store.Closed()
}

// Reload replaces the store's contents with the backend's. Replies to requests
// issued before the reload are dropped.
func (e *Engine) Reload(ctx context.Context) error {
	tasks, err := e.backend.ListTasks(ctx, e.scope)
	if err != nil {
		return fmt.Errorf("list tasks: %w", err)
	}
	if e.store.Closed() {
		return models.ErrClosed
	}
	e.store.Replace(tasks)
	return nil
}

// Move relocates taskID from (from, fromIdx) to (to, toIdx). The local lanes
// change before the request is sent. Moves of the same task are sent one at a
// time in the order they were made. If the backend rejects the latest of
// them, the task goes back to where it was last acknowledged; when nothing
// else touched the lanes since, both lanes revert to their exact pre-move
// state. A rejected move that a later one already superseded is not reverted.
func (e *Engine) Move(ctx context.Context, taskID string, from, to models.TaskStatus, fromIdx, toIdx int) error {
	if !e.scope.CanEdit() {
		return fmt.Errorf("move task %s: %w", taskID, models.ErrReadOnly)
	}
	m := lanes.Move{TaskID: taskID, From: from, To: to, FromIndex: fromIdx, ToIndex: toIdx}
	if m.NoOp() {
		return nil
	}

	ctx, span := e.tracer.Start(ctx, "board.move", trace.WithAttributes(
		telemetry.AttrProjectID.String(e.scope.ProjectID),
		telemetry.AttrTaskID.String(taskID),
		telemetry.AttrFromLane.String(string(from)),
		telemetry.AttrToLane.String(string(to)),
	))
	defer span.End()

	e.mu.Lock()
	moved, snapshot, after, epoch, err := e.applyMove(m)
	if err != nil {
		e.mu.Unlock()
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("move task %s: %w", taskID, err)
	}
	c := e.chains[taskID]
	if c == nil {
		c = &moveChain{origin: slot{from, fromIdx}}
		e.chains[taskID] = c
	}
	c.last++
	c.pending++
	gen, prev, done := c.last, c.tail, make(chan struct{})
	c.tail = done
	e.mu.Unlock()
	defer e.settle(taskID, c, done)
	telemetry.Add(ctx, e.metrics.Moves, 1)

	dest := slot{to, moved.OrderIndex}
	ack, err := e.sendMove(ctx, prev, epoch, moved)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		e.mu.Lock()
		defer e.mu.Unlock()
		switch {
		case gen != c.last:
			e.log.Warn("move rejected, later move pending", "task_id", taskID, "from", from, "to", to, "error", err)
		case e.store.revert(epoch, taskID, c.origin, slot{from, fromIdx}, snapshot, after):
			telemetry.Add(ctx, e.metrics.MoveRollbacks, 1)
			e.log.Warn("move rejected, lanes restored", "task_id", taskID, "from", from, "to", to, "error", err)
		default:
			telemetry.Add(ctx, e.metrics.DiscardedReplies, 1)
		}
		return fmt.Errorf("move task %s: %w", taskID, err)
	}

	e.mu.Lock()
	c.origin = dest
	e.mu.Unlock()
	if !e.store.setVersion(epoch, taskID, ack.Version) {
		telemetry.Add(ctx, e.metrics.DiscardedReplies, 1)
	}
	return nil
}

// sendMove waits for the previous move of the same task to settle, then
// persists moved with the version the store holds at that point.
func (e *Engine) sendMove(ctx context.Context, prev <-chan struct{}, epoch uint64, moved models.Task) (models.MoveAck, error) {
	if prev != nil {
		select {
		case <-prev:
		case <-ctx.Done():
			return models.MoveAck{}, ctx.Err()
		}
	}
	switch cur, ok := e.store.Task(moved.ID); {
	case e.store.Closed():
		return models.MoveAck{}, models.ErrClosed
	case !e.store.current(epoch):
		return models.MoveAck{}, fmt.Errorf("board reloaded: %w", models.ErrConflict)
	case !ok:
		return models.MoveAck{}, models.ErrNotFound
	default:
		moved.Version = cur.Version
	}
	return e.backend.MoveTask(ctx, e.scope, models.MoveRequest{
		TaskID:     moved.ID,
		Status:     moved.Status,
		OrderIndex: moved.OrderIndex,
		Version:    moved.Version,
	})
}

func (e *Engine) settle(taskID string, c *moveChain, done chan struct{}) {
	e.mu.Lock()
	defer e.mu.Unlock()
	c.pending--
	if c.pending == 0 && e.chains[taskID] == c {
		delete(e.chains, taskID)
	}
	close(done)
}

// waitMoves blocks until every move of taskID made so far has settled.
func (e *Engine) waitMoves(ctx context.Context, taskID string) error {
	e.mu.Lock()
	var tail chan struct{}
	if c := e.chains[taskID]; c != nil {
		tail = c.tail
	}
	e.mu.Unlock()
	if tail == nil {
		return nil
	}
	select {
	case <-tail:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// applyMove relocates the task under the store lock. It returns the moved
// task, a snapshot of the affected lanes before and after, and the epoch.
func (e *Engine) applyMove(m lanes.Move) (models.Task, []models.Task, lanes.View, uint64, error) {
	s := e.store
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return models.Task{}, nil, nil, 0, models.ErrClosed
	}
	view := lanes.Build(s.snapshotLocked())
	next, changed, err := lanes.Relocate(view, m)
	if err != nil {
		return models.Task{}, nil, nil, 0, err
	}

	snapshot := append([]models.Task{}, view.Lane(m.From)...)
	after := lanes.View{m.From: next.Lane(m.From)}
	if m.To != m.From {
		snapshot = append(snapshot, view.Lane(m.To)...)
		after[m.To] = next.Lane(m.To)
	}
	s.putLocked(changed)

	i := next.IndexOf(m.To, m.TaskID)
	return next.Lane(m.To)[i], snapshot, after, s.epoch, nil
}

// CreateTask validates in and creates it. The new task is appended to the end
// of its lane once the backend returns it.
func (e *Engine) CreateTask(ctx context.Context, in models.TaskInput) (models.Task, error) {
	if !e.scope.CanEdit() {
		return models.Task{}, fmt.Errorf("create task: %w", models.ErrReadOnly)
	}
	if err := in.Normalize(); err != nil {
		return models.Task{}, fmt.Errorf("create task: %w", err)
	}
	epoch := e.store.Epoch()
	created, err := e.backend.CreateTask(ctx, e.scope, in)
	if err != nil {
		return models.Task{}, fmt.Errorf("create task: %w", err)
	}
	if placed, ok := e.store.insert(epoch, created); ok {
		return placed, nil
	}
	telemetry.Add(ctx, e.metrics.DiscardedReplies, 1)
	return created, nil
}

// Adopt places tasks the backend already created at the end of their lanes.
// It returns the tasks as stored; nothing is placed if epoch is stale.
func (e *Engine) Adopt(epoch uint64, tasks ...models.Task) []models.Task {
	out := make([]models.Task, 0, len(tasks))
	for _, t := range tasks {
		placed, ok := e.store.insert(epoch, t)
		if !ok {
			return out
		}
		out = append(out, placed)
	}
	return out
}

// UpdateTask applies field edits from the detail form. A status change goes
// through Move to the end of the new lane, so the board and the detail view
// share one mutation path.
func (e *Engine) UpdateTask(ctx context.Context, id string, patch models.TaskPatch) (models.Task, error) {
	if !e.scope.CanEdit() {
		return models.Task{}, fmt.Errorf("update task %s: %w", id, models.ErrReadOnly)
	}
	if err := patch.Validate(); err != nil {
		return models.Task{}, fmt.Errorf("update task %s: %w", id, err)
	}
	cur, ok := e.store.Task(id)
	if !ok {
		return models.Task{}, fmt.Errorf("update task %s: %w", id, models.ErrNotFound)
	}

	if patch.Status != nil && *patch.Status != cur.Status {
		view := e.store.LaneView()
		from := view.IndexOf(cur.Status, id)
		to := len(view.Lane(*patch.Status))
		if err := e.Move(ctx, id, cur.Status, *patch.Status, from, to); err != nil {
			return models.Task{}, err
		}
	}

	fields := patch
	fields.Status = nil
	if fields.Empty() {
		t, _ := e.store.Task(id)
		return t, nil
	}

	if err := e.waitMoves(ctx, id); err != nil {
		return models.Task{}, fmt.Errorf("update task %s: %w", id, err)
	}
	cur, ok = e.store.Task(id)
	if !ok {
		return models.Task{}, fmt.Errorf("update task %s: %w", id, models.ErrNotFound)
	}
	fields.Version = cur.Version
	epoch := e.store.Epoch()

	updated, err := e.backend.UpdateTask(ctx, e.scope, id, fields)
	if err != nil {
		return models.Task{}, fmt.Errorf("update task %s: %w", id, err)
	}
	if !e.store.Merge(epoch, updated) {
		telemetry.Add(ctx, e.metrics.DiscardedReplies, 1)
		return updated, nil
	}
	t, _ := e.store.Task(id)
	return t, nil
}

// DeleteTask removes a task once the backend confirms. Nothing is removed
// locally before that. Milestones referencing the task are notified through
// the store's removal listeners.
func (e *Engine) DeleteTask(ctx context.Context, id string) error {
	if !e.scope.CanEdit() {
		return fmt.Errorf("delete task %s: %w", id, models.ErrReadOnly)
	}
	if _, ok := e.store.Task(id); !ok {
		return fmt.Errorf("delete task %s: %w", id, models.ErrNotFound)
	}
	if err := e.backend.DeleteTask(ctx, e.scope, id); err != nil && !errors.Is(err, models.ErrNotFound) {
		return fmt.Errorf("delete task %s: %w", id, err)
	}
	e.store.remove(id)
	return nil
}
