// Package projectview wires the board components for one open project.
package projectview

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"taskboard/internal/board"
	"taskboard/internal/detail"
	"taskboard/internal/intake"
	"taskboard/internal/linkgraph"
	"taskboard/internal/models"
	"taskboard/internal/realtime"
	"taskboard/internal/telemetry"

	"golang.org/x/sync/errgroup"
)

// Backend is everything a project view talks to.
type Backend interface {
	board.Backend
	linkgraph.Backend
	detail.Backend
	intake.Generator
}

// ListenFunc streams workspace events to fn until ctx is done.
type ListenFunc func(ctx context.Context, fn func(realtime.Event)) error

// Config is what Open needs besides the backend.
type Config struct {
	Scope           models.Scope
	LinkConcurrency int
	Log             *slog.Logger
	Telemetry       *telemetry.Provider
	Metrics         *telemetry.Metrics
}

// View is one open project: its store, the engine that mutates it, the
// roadmap link graph, the intake and any open detail panels.
type View struct {
	scope   models.Scope
	backend Backend
	store   *board.Store
	engine  *board.Engine
	graph   *linkgraph.Graph
	intake  *intake.Intake
	log     *slog.Logger

	mu     sync.Mutex
	panels map[*detail.Panel]struct{}
	stale  atomic.Bool
	stop   context.CancelFunc
	done   chan struct{}
}

// Open loads tasks and roadmap for cfg.Scope. Both loads run at once.
func Open(ctx context.Context, backend Backend, cfg Config) (*View, error) {
	log := cfg.Log
	if log == nil {
		log = telemetry.Discard()
	}
	log = log.With("workspace_id", cfg.Scope.WorkspaceID, "project_id", cfg.Scope.ProjectID)

	store := board.NewStore()
	engine := board.NewEngine(store, backend, cfg.Scope,
		board.WithLogger(log), board.WithTelemetry(cfg.Telemetry, cfg.Metrics))
	opts := []linkgraph.Option{linkgraph.WithLogger(log), linkgraph.WithTelemetry(cfg.Telemetry, cfg.Metrics)}
	if cfg.LinkConcurrency > 0 {
		opts = append(opts, linkgraph.WithConcurrency(cfg.LinkConcurrency))
	}
	graph := linkgraph.New(store, backend, cfg.Scope, opts...)

	v := &View{
		scope:   cfg.Scope,
		backend: backend,
		store:   store,
		engine:  engine,
		graph:   graph,
		intake:  intake.New(engine, backend, backend, log),
		log:     log,
		panels:  make(map[*detail.Panel]struct{}),
	}
	if err := v.load(ctx); err != nil {
		return nil, fmt.Errorf("open project %s: %w", cfg.Scope.ProjectID, err)
	}
	return v, nil
}

func (v *View) load(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return v.engine.Reload(gctx) })
	g.Go(func() error { return v.graph.Refresh(gctx) })
	return g.Wait()
}

// Scope returns the request context the view was opened with.
func (v *View) Scope() models.Scope { return v.scope }

// Store returns the task store.
func (v *View) Store() *board.Store { return v.store }

// Engine returns the drag-reorder engine.
func (v *View) Engine() *board.Engine { return v.engine }

// Graph returns the roadmap link graph.
func (v *View) Graph() *linkgraph.Graph { return v.graph }

// Intake returns the bulk generation intake.
func (v *View) Intake() *intake.Intake { return v.intake }

// OpenPanel opens the detail panel of one task. It is closed with the view.
func (v *View) OpenPanel(ctx context.Context, taskID string) (*detail.Panel, error) {
	if v.store.Closed() {
		return nil, models.ErrClosed
	}
	p, err := detail.Open(ctx, v.engine, v.backend, taskID, v.log)
	if err != nil {
		return nil, err
	}
	v.mu.Lock()
	v.panels[p] = struct{}{}
	v.mu.Unlock()
	return p, nil
}

// ClosePanel closes p and forgets it.
func (v *View) ClosePanel(p *detail.Panel) {
	p.Close()
	v.mu.Lock()
	delete(v.panels, p)
	v.mu.Unlock()
}

// Reload refetches tasks and roadmap and clears the stale flag.
func (v *View) Reload(ctx context.Context) error {
	v.stale.Store(false)
	if err := v.load(ctx); err != nil {
		return fmt.Errorf("reload project %s: %w", v.scope.ProjectID, err)
	}
	return nil
}

// Stale reports whether another session changed this project since the last
// load. The view never merges remote changes on its own.
func (v *View) Stale() bool { return v.stale.Load() }

// Watch starts listening for workspace events in the background. Events of
// this project caused by other users mark the view stale. Watch is a no-op
// when already watching.
func (v *View) Watch(listen ListenFunc) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.stop != nil || v.store.Closed() {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	v.stop = cancel
	v.done = make(chan struct{})
	go func() {
		defer close(v.done)
		err := listen(ctx, v.observe)
		if err != nil && !errors.Is(err, context.Canceled) {
			v.log.Warn("event stream ended", "error", err)
		}
	}()
}

func (v *View) observe(ev realtime.Event) {
	if ev.ProjectID != "" && ev.ProjectID != v.scope.ProjectID {
		return
	}
	if ev.ActorID == v.scope.UserID {
		return
	}
	if !v.stale.Swap(true) {
		v.log.Info("project changed elsewhere", "event", ev.Type, "actor_id", ev.ActorID)
	}
}

// Close tears the view down. Replies still in flight are dropped by every
// component.
func (v *View) Close() {
	v.mu.Lock()
	stop, done := v.stop, v.done
	panels := v.panels
	v.panels = make(map[*detail.Panel]struct{})
	v.mu.Unlock()

	for p := range panels {
		p.Close()
	}
	v.graph.Close()
	v.store.Close()
	if stop != nil {
		stop()
		<-done
	}
}
