// Package linkgraph keeps the association edges between roadmap milestones and
// board tasks and derives milestone and phase progress from them.
package linkgraph

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"strings"
	"sync"

	"taskboard/internal/models"
	"taskboard/internal/telemetry"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

// DefaultConcurrency bounds the link/unlink requests SetLinks keeps in flight.
const DefaultConcurrency = 4

// TaskSource resolves task ids to their live records. *board.Store satisfies it.
type TaskSource interface {
	Task(id string) (models.Task, bool)
	OnRemove(fn func(taskID string))
}

// Backend is the roadmap slice of the API.
type Backend interface {
	ListPhases(ctx context.Context, scope models.Scope) ([]models.RoadmapPhase, error)
	CreatePhase(ctx context.Context, scope models.Scope, in models.PhaseInput) (models.RoadmapPhase, error)
	DeletePhase(ctx context.Context, scope models.Scope, phaseID string) error
	CreateMilestone(ctx context.Context, scope models.Scope, phaseID string, in models.MilestoneInput) (models.RoadmapMilestone, error)
	DeleteMilestone(ctx context.Context, scope models.Scope, milestoneID string) error
	LinkTask(ctx context.Context, scope models.Scope, milestoneID, taskID string, mode models.LinkMode) error
}

// Graph owns only the edges. Tasks are referenced by id and resolved through
// the TaskSource on every read, so progress follows board moves immediately.
type Graph struct {
	mu          sync.RWMutex
	scope       models.Scope
	backend     Backend
	tasks       TaskSource
	phases      []models.RoadmapPhase
	edges       map[string][]string
	snapshots   map[string]models.Task
	dropped     map[string]bool
	epoch       uint64
	closed      bool
	concurrency int

	log     *slog.Logger
	tracer  trace.Tracer
	metrics *telemetry.Metrics
}

// Option configures a Graph.
type Option func(*Graph)

// WithConcurrency caps concurrent link requests; values below 1 are ignored.
func WithConcurrency(n int) Option {
	return func(g *Graph) {
		if n > 0 {
			g.concurrency = n
		}
	}
}

// WithLogger sets the graph's logger.
func WithLogger(l *slog.Logger) Option {
	return func(g *Graph) { g.log = l }
}

// WithTelemetry attaches a tracer and metric instruments.
func WithTelemetry(p *telemetry.Provider, m *telemetry.Metrics) Option {
	return func(g *Graph) {
		if p != nil {
			g.tracer = p.Tracer
		}
		if m != nil {
			g.metrics = m
		}
	}
}

// New creates a graph for one project and subscribes it to task removals.
func New(tasks TaskSource, backend Backend, scope models.Scope, opts ...Option) *Graph {
	g := &Graph{
		scope:       scope,
		backend:     backend,
		tasks:       tasks,
		edges:       make(map[string][]string),
		snapshots:   make(map[string]models.Task),
		dropped:     make(map[string]bool),
		concurrency: DefaultConcurrency,
		log:         telemetry.Discard(),
		tracer:      telemetry.Noop().Tracer,
		metrics:     telemetry.NoopMetrics(),
	}
	for _, opt := range opts {
		opt(g)
	}
	tasks.OnRemove(g.DropTask)
	return g
}

// Refresh reloads the phase/milestone tree and its edges from the backend.
func (g *Graph) Refresh(ctx context.Context) error {
	phases, err := g.backend.ListPhases(ctx, g.scope)
	if err != nil {
		return fmt.Errorf("list phases: %w", err)
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return models.ErrClosed
	}
	g.edges = make(map[string][]string)
	g.snapshots = make(map[string]models.Task)
	g.dropped = make(map[string]bool)
	g.phases = make([]models.RoadmapPhase, 0, len(phases))
	for _, p := range phases {
		ms := make([]models.RoadmapMilestone, 0, len(p.Milestones))
		for _, m := range p.Milestones {
			ids := make([]string, 0, len(m.LinkedTasks))
			for _, t := range m.LinkedTasks {
				ids = append(ids, t.ID)
				g.snapshots[t.ID] = t.Clone()
			}
			g.edges[m.ID] = dedupe(ids)
			m.LinkedTasks = nil
			ms = append(ms, m)
		}
		sortMilestones(ms)
		p.Milestones = ms
		g.phases = append(g.phases, p)
	}
	sortPhases(g.phases)
	g.epoch++
	return nil
}

// Close detaches the graph from its view; late replies are dropped.
func (g *Graph) Close() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.closed = true
	g.epoch++
}

// LinkedTasks returns the milestone's tasks in link insertion order.
func (g *Graph) LinkedTasks(milestoneID string) []models.Task {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.resolveLocked(g.edges[milestoneID])
}

// LinkedIDs returns the milestone's current link set.
func (g *Graph) LinkedIDs(milestoneID string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return append([]string(nil), g.edges[milestoneID]...)
}

// Progress is the done fraction of the milestone's linked tasks.
func (g *Graph) Progress(milestoneID string) float64 {
	return Progress(g.LinkedTasks(milestoneID))
}

// PhaseProgress is the done fraction over the distinct tasks linked to any
// of the phase's milestones.
func (g *Graph) PhaseProgress(phaseID string) float64 {
	g.mu.RLock()
	defer g.mu.RUnlock()
	p, ok := g.phaseLocked(phaseID)
	if !ok {
		return 0
	}
	return Progress(g.phaseTasksLocked(p))
}

// Phases returns the roadmap tree with linked tasks resolved and progress
// derived for every phase and milestone.
func (g *Graph) Phases() []models.RoadmapPhase {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]models.RoadmapPhase, 0, len(g.phases))
	for _, p := range g.phases {
		cp := p
		cp.Milestones = make([]models.RoadmapMilestone, 0, len(p.Milestones))
		for _, m := range p.Milestones {
			m.LinkedTasks = g.resolveLocked(g.edges[m.ID])
			m.Progress = Progress(m.LinkedTasks)
			cp.Milestones = append(cp.Milestones, m)
		}
		cp.Progress = Progress(g.phaseTasksLocked(p))
		out = append(out, cp)
	}
	return out
}

// Milestone looks up one milestone with derived fields filled in.
func (g *Graph) Milestone(milestoneID string) (models.RoadmapMilestone, bool) {
	for _, p := range g.Phases() {
		for _, m := range p.Milestones {
			if m.ID == milestoneID {
				return m, true
			}
		}
	}
	return models.RoadmapMilestone{}, false
}

// Diff previews what SetLinks would send for desired.
func (g *Graph) Diff(milestoneID string, desired []string) Diff {
	return ComputeDiff(g.LinkedIDs(milestoneID), desired)
}

// SetLinks makes desired the milestone's link set. It issues one link
// request per added id and one unlink request per removed id, concurrently,
// then refreshes the tree. If any request fails the local edge set reverts
// and the error is returned.
func (g *Graph) SetLinks(ctx context.Context, milestoneID string, desired []string) error {
	if !g.scope.CanEdit() {
		return fmt.Errorf("set links on %s: %w", milestoneID, models.ErrReadOnly)
	}

	ctx, span := g.tracer.Start(ctx, "linkgraph.set_links", trace.WithAttributes(
		telemetry.AttrProjectID.String(g.scope.ProjectID),
		telemetry.AttrMilestoneID.String(milestoneID),
	))
	defer span.End()

	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return models.ErrClosed
	}
	if !g.hasMilestoneLocked(milestoneID) {
		g.mu.Unlock()
		return fmt.Errorf("set links on %s: %w", milestoneID, models.ErrNotFound)
	}
	prev := append([]string(nil), g.edges[milestoneID]...)
	diff := ComputeDiff(prev, desired)
	if diff.Empty() {
		g.mu.Unlock()
		return nil
	}
	applied := diff.Apply(prev)
	g.edges[milestoneID] = applied
	epoch := g.epoch
	g.mu.Unlock()

	eg := new(errgroup.Group)
	eg.SetLimit(g.concurrency)
	send := func(taskID string, mode models.LinkMode) {
		eg.Go(func() error {
			telemetry.Add(ctx, g.metrics.LinkRequests, 1)
			if err := g.backend.LinkTask(ctx, g.scope, milestoneID, taskID, mode); err != nil {
				return fmt.Errorf("%s task %s: %w", mode, taskID, err)
			}
			return nil
		})
	}
	for _, id := range diff.ToAdd {
		send(id, models.LinkModeLink)
	}
	for _, id := range diff.ToRemove {
		send(id, models.LinkModeUnlink)
	}

	if err := eg.Wait(); err != nil {
		span.SetStatus(codes.Error, err.Error())
		g.mu.Lock()
		if !g.closed && g.epoch == epoch {
			g.edges[milestoneID] = g.revertLocked(milestoneID, prev, applied, diff)
			telemetry.Add(ctx, g.metrics.LinkRollbacks, 1)
		}
		g.mu.Unlock()
		g.log.Warn("link diff failed, edges restored", "milestone_id", milestoneID,
			"to_add", len(diff.ToAdd), "to_remove", len(diff.ToRemove), "error", err)
		return fmt.Errorf("set links on %s: %w", milestoneID, err)
	}

	if err := g.Refresh(ctx); err != nil {
		return fmt.Errorf("set links on %s: %w", milestoneID, err)
	}
	return nil
}

// revertLocked undoes a failed diff. Unless the edges changed while the
// requests were out, prev comes back as it was. Either way a task deleted in
// the meantime is not linked again.
func (g *Graph) revertLocked(milestoneID string, prev, applied []string, diff Diff) []string {
	gone := func(id string) bool { return g.dropped[id] }
	cur := g.edges[milestoneID]
	if !slices.Equal(cur, applied) {
		return diff.Revert(cur, gone)
	}
	out := make([]string, 0, len(prev))
	for _, id := range prev {
		if !gone(id) {
			out = append(out, id)
		}
	}
	return out
}

// DropTask removes taskID from every milestone's link set. It runs when a
// task is deleted from the board. The id is remembered until the next
// Refresh so a failing link diff can't bring it back.
func (g *Graph) DropTask(taskID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.dropped[taskID] = true
	for m, ids := range g.edges {
		g.edges[m] = without(ids, taskID)
	}
	delete(g.snapshots, taskID)
}

// CreatePhase adds a phase at the end of the roadmap.
func (g *Graph) CreatePhase(ctx context.Context, in models.PhaseInput) (models.RoadmapPhase, error) {
	if !g.scope.CanEdit() {
		return models.RoadmapPhase{}, fmt.Errorf("create phase: %w", models.ErrReadOnly)
	}
	in.Title = strings.TrimSpace(in.Title)
	if in.Title == "" {
		return models.RoadmapPhase{}, fmt.Errorf("create phase: %w: title is required", models.ErrValidation)
	}
	if in.Status != "" && !in.Status.Valid() {
		return models.RoadmapPhase{}, fmt.Errorf("create phase: %w: invalid status %q", models.ErrValidation, in.Status)
	}
	p, err := g.backend.CreatePhase(ctx, g.scope, in)
	if err != nil {
		return models.RoadmapPhase{}, fmt.Errorf("create phase: %w", err)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return p, nil
	}
	p.Milestones = nil
	g.phases = append(g.phases, p)
	sortPhases(g.phases)
	return p, nil
}

// DeletePhase removes a phase and the edges of all its milestones.
func (g *Graph) DeletePhase(ctx context.Context, phaseID string) error {
	if !g.scope.CanEdit() {
		return fmt.Errorf("delete phase %s: %w", phaseID, models.ErrReadOnly)
	}
	if err := g.backend.DeletePhase(ctx, g.scope, phaseID); err != nil {
		return fmt.Errorf("delete phase %s: %w", phaseID, err)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	kept := g.phases[:0]
	for _, p := range g.phases {
		if p.ID == phaseID {
			for _, m := range p.Milestones {
				delete(g.edges, m.ID)
			}
			continue
		}
		kept = append(kept, p)
	}
	g.phases = kept
	g.pruneSnapshotsLocked()
	return nil
}

// CreateMilestone adds a milestone to a phase with an empty link set.
func (g *Graph) CreateMilestone(ctx context.Context, phaseID string, in models.MilestoneInput) (models.RoadmapMilestone, error) {
	if !g.scope.CanEdit() {
		return models.RoadmapMilestone{}, fmt.Errorf("create milestone: %w", models.ErrReadOnly)
	}
	in.Title = strings.TrimSpace(in.Title)
	if in.Title == "" {
		return models.RoadmapMilestone{}, fmt.Errorf("create milestone: %w: title is required", models.ErrValidation)
	}
	if in.Status != "" && !in.Status.Valid() {
		return models.RoadmapMilestone{}, fmt.Errorf("create milestone: %w: invalid status %q", models.ErrValidation, in.Status)
	}
	m, err := g.backend.CreateMilestone(ctx, g.scope, phaseID, in)
	if err != nil {
		return models.RoadmapMilestone{}, fmt.Errorf("create milestone: %w", err)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	for i := range g.phases {
		if g.phases[i].ID == phaseID {
			m.LinkedTasks = nil
			g.phases[i].Milestones = append(g.phases[i].Milestones, m)
			sortMilestones(g.phases[i].Milestones)
			g.edges[m.ID] = []string{}
		}
	}
	return m, nil
}

// DeleteMilestone drops the milestone and its whole link set. Linked tasks
// are not touched.
func (g *Graph) DeleteMilestone(ctx context.Context, milestoneID string) error {
	if !g.scope.CanEdit() {
		return fmt.Errorf("delete milestone %s: %w", milestoneID, models.ErrReadOnly)
	}
	if err := g.backend.DeleteMilestone(ctx, g.scope, milestoneID); err != nil {
		return fmt.Errorf("delete milestone %s: %w", milestoneID, err)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	for i := range g.phases {
		ms := g.phases[i].Milestones[:0]
		for _, m := range g.phases[i].Milestones {
			if m.ID != milestoneID {
				ms = append(ms, m)
			}
		}
		g.phases[i].Milestones = ms
	}
	delete(g.edges, milestoneID)
	g.pruneSnapshotsLocked()
	return nil
}

func (g *Graph) resolveLocked(ids []string) []models.Task {
	out := make([]models.Task, 0, len(ids))
	for _, id := range ids {
		if t, ok := g.tasks.Task(id); ok {
			out = append(out, t)
		} else if t, ok := g.snapshots[id]; ok {
			out = append(out, t.Clone())
		} else {
			out = append(out, models.Task{ID: id})
		}
	}
	return out
}

func (g *Graph) phaseLocked(phaseID string) (models.RoadmapPhase, bool) {
	for _, p := range g.phases {
		if p.ID == phaseID {
			return p, true
		}
	}
	return models.RoadmapPhase{}, false
}

func (g *Graph) phaseTasksLocked(p models.RoadmapPhase) []models.Task {
	var ids []string
	for _, m := range p.Milestones {
		ids = append(ids, g.edges[m.ID]...)
	}
	return g.resolveLocked(dedupe(ids))
}

func (g *Graph) hasMilestoneLocked(milestoneID string) bool {
	for _, p := range g.phases {
		for _, m := range p.Milestones {
			if m.ID == milestoneID {
				return true
			}
		}
	}
	return false
}

func (g *Graph) pruneSnapshotsLocked() {
	used := make(map[string]bool)
	for _, ids := range g.edges {
		for _, id := range ids {
			used[id] = true
		}
	}
	for id := range g.snapshots {
		if !used[id] {
			delete(g.snapshots, id)
		}
	}
}

func sortPhases(ps []models.RoadmapPhase) {
	sort.SliceStable(ps, func(i, j int) bool {
		if ps[i].OrderIndex != ps[j].OrderIndex {
			return ps[i].OrderIndex < ps[j].OrderIndex
		}
		return ps[i].CreatedAt.Before(ps[j].CreatedAt)
	})
}

func sortMilestones(ms []models.RoadmapMilestone) {
	sort.SliceStable(ms, func(i, j int) bool {
		if ms[i].OrderIndex != ms[j].OrderIndex {
			return ms[i].OrderIndex < ms[j].OrderIndex
		}
		return ms[i].CreatedAt.Before(ms[j].CreatedAt)
	})
}
