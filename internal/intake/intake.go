// Package intake turns an AI-proposed batch of tasks into real tasks in two
// steps: Propose returns drafts, Confirm persists all of them.
package intake

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"taskboard/internal/board"
	"taskboard/internal/models"
	"taskboard/internal/telemetry"
)

// Generator proposes task drafts for free-form instructions.
type Generator interface {
	GenerateTasks(ctx context.Context, scope models.Scope, instructions string) ([]models.TaskGenerationItem, error)
}

type state int

const (
	stateOpen state = iota
	stateConfirming
	stateConfirmed
	stateDiscarded
)

// Proposal is a batch of drafts. Drafts are never in the board store.
type Proposal struct {
	mu           sync.Mutex
	instructions string
	drafts       []models.TaskGenerationItem
	state        state
}

// Instructions returns the text the drafts were generated from.
func (p *Proposal) Instructions() string { return p.instructions }

// Drafts returns a copy of the proposed items.
func (p *Proposal) Drafts() []models.TaskGenerationItem {
	return append([]models.TaskGenerationItem(nil), p.drafts...)
}

// Settled reports whether the proposal was confirmed or discarded.
func (p *Proposal) Settled() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state == stateConfirmed || p.state == stateDiscarded
}

// Intake runs propose/confirm against one project.
type Intake struct {
	engine  *board.Engine
	gen     Generator
	backend board.Backend
	log     *slog.Logger
}

// New builds an intake. backend is used for the raw creates so drafts reach
// the store only after the whole batch succeeded.
func New(engine *board.Engine, gen Generator, backend board.Backend, log *slog.Logger) *Intake {
	if log == nil {
		log = telemetry.Discard()
	}
	return &Intake{engine: engine, gen: gen, backend: backend, log: log}
}

// Propose asks the generator for drafts. Nothing is stored.
func (in *Intake) Propose(ctx context.Context, instructions string) (*Proposal, error) {
	if !in.engine.Scope().CanEdit() {
		return nil, fmt.Errorf("propose tasks: %w", models.ErrReadOnly)
	}
	instructions = strings.TrimSpace(instructions)
	if instructions == "" {
		return nil, fmt.Errorf("propose tasks: %w: instructions are required", models.ErrValidation)
	}
	items, err := in.gen.GenerateTasks(ctx, in.engine.Scope(), instructions)
	if err != nil {
		return nil, fmt.Errorf("propose tasks: %w", err)
	}
	drafts := make([]models.TaskGenerationItem, 0, len(items))
	for _, it := range items {
		it.Title = strings.TrimSpace(it.Title)
		if it.Title == "" {
			continue
		}
		if !it.Priority.Valid() {
			it.Priority = models.PriorityMedium
		}
		if it.Effort < 1 {
			it.Effort = 1
		}
		drafts = append(drafts, it)
	}
	return &Proposal{instructions: instructions, drafts: drafts}, nil
}

// Confirm persists every draft as a todo task flagged ai_generated. If any
// create fails, the tasks created so far are deleted again and the proposal
// stays open. A proposal confirms once.
func (in *Intake) Confirm(ctx context.Context, p *Proposal) ([]models.Task, error) {
	if !in.engine.Scope().CanEdit() {
		return nil, fmt.Errorf("confirm proposal: %w", models.ErrReadOnly)
	}
	if err := p.begin(); err != nil {
		return nil, fmt.Errorf("confirm proposal: %w", err)
	}

	inputs := make([]models.TaskInput, 0, len(p.drafts))
	for _, d := range p.drafts {
		ti := models.TaskInput{
			Title:       d.Title,
			Description: d.Description,
			Status:      models.StatusTodo,
			Priority:    d.Priority,
			Effort:      d.Effort,
			AIGenerated: true,
		}
		if err := ti.Normalize(); err != nil {
			p.finish(stateOpen)
			return nil, fmt.Errorf("confirm proposal: %w", err)
		}
		inputs = append(inputs, ti)
	}

	scope := in.engine.Scope()
	epoch := in.engine.Store().Epoch()
	created := make([]models.Task, 0, len(inputs))
	for _, ti := range inputs {
		t, err := in.backend.CreateTask(ctx, scope, ti)
		if err != nil {
			leaked := in.compensate(ctx, created)
			in.engine.Adopt(epoch, leaked...)
			p.finish(stateOpen)
			return nil, fmt.Errorf("confirm proposal: create %q: %w", ti.Title, err)
		}
		created = append(created, t)
	}

	p.finish(stateConfirmed)
	placed := in.engine.Adopt(epoch, created...)
	if len(placed) < len(created) {
		return created, nil
	}
	return placed, nil
}

// Discard settles the proposal without touching any stored state.
func (in *Intake) Discard(p *Proposal) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	switch p.state {
	case stateOpen:
		p.state = stateDiscarded
		return nil
	case stateDiscarded:
		return nil
	default:
		return fmt.Errorf("discard proposal: %w", models.ErrAlreadyConfirmed)
	}
}

// compensate deletes tasks from a failed batch and returns those whose delete
// failed.
func (in *Intake) compensate(ctx context.Context, created []models.Task) []models.Task {
	var leaked []models.Task
	for i := len(created) - 1; i >= 0; i-- {
		t := created[i]
		err := in.backend.DeleteTask(context.WithoutCancel(ctx), in.engine.Scope(), t.ID)
		if err != nil && !errors.Is(err, models.ErrNotFound) {
			in.log.Error("compensating delete failed", "task_id", t.ID, "error", err)
			leaked = append([]models.Task{t}, leaked...)
		}
	}
	return leaked
}

func (p *Proposal) begin() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	switch p.state {
	case stateOpen:
	case stateDiscarded:
		return fmt.Errorf("%w: proposal was discarded", models.ErrAlreadyConfirmed)
	default:
		return models.ErrAlreadyConfirmed
	}
	if len(p.drafts) == 0 {
		return fmt.Errorf("%w: nothing to confirm", models.ErrValidation)
	}
	p.state = stateConfirming
	return nil
}

func (p *Proposal) finish(s state) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state = s
}
