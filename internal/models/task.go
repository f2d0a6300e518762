package models

import (
	"fmt"
	"strings"
	"time"
)

// TaskStatus represents the lane a task sits in
type TaskStatus string

const (
	StatusTodo       TaskStatus = "todo"
	StatusInProgress TaskStatus = "in_progress"
	StatusDone       TaskStatus = "done"
)

// Statuses lists the lanes in board order.
var Statuses = []TaskStatus{StatusTodo, StatusInProgress, StatusDone}

// Valid reports whether s is one of the three lanes.
func (s TaskStatus) Valid() bool {
	switch s {
	case StatusTodo, StatusInProgress, StatusDone:
		return true
	}
	return false
}

// TaskPriority represents the priority of a task
type TaskPriority string

const (
	PriorityLow      TaskPriority = "low"
	PriorityMedium   TaskPriority = "medium"
	PriorityHigh     TaskPriority = "high"
	PriorityCritical TaskPriority = "critical"
)

// Valid reports whether p is a known priority.
func (p TaskPriority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical:
		return true
	}
	return false
}

// ContextKind tags what a task's context link points at.
type ContextKind string

const (
	ContextKB      ContextKind = "kb"
	ContextPRD     ContextKind = "prd"
	ContextRoadmap ContextKind = "roadmap"
)

// ContextLink ties a task to one knowledge-base entry, PRD or roadmap item.
type ContextLink struct {
	Kind ContextKind `json:"kind"`
	ID   string      `json:"id"`
}

// Label renders the link for list views.
func (l ContextLink) Label() string {
	switch l.Kind {
	case ContextKB:
		return "KB " + l.ID
	case ContextPRD:
		return "PRD " + l.ID
	case ContextRoadmap:
		return "Roadmap " + l.ID
	default:
		return string(l.Kind) + " " + l.ID
	}
}

// ValidateContextLinks allows at most one link per kind.
func ValidateContextLinks(links []ContextLink) error {
	seen := make(map[ContextKind]bool, len(links))
	for _, l := range links {
		switch l.Kind {
		case ContextKB, ContextPRD, ContextRoadmap:
		default:
			return fmt.Errorf("%w: unknown context kind %q", ErrValidation, l.Kind)
		}
		if strings.TrimSpace(l.ID) == "" {
			return fmt.Errorf("%w: context link %s has no id", ErrValidation, l.Kind)
		}
		if seen[l.Kind] {
			return fmt.Errorf("%w: more than one %s context link", ErrValidation, l.Kind)
		}
		seen[l.Kind] = true
	}
	return nil
}

// Task represents a task on a project board
type Task struct {
	ID           string        `json:"id" gorm:"primaryKey"`
	WorkspaceID  string        `json:"workspace_id" gorm:"column:workspace_id;index:idx_task_lane,priority:1"`
	ProjectID    string        `json:"project_id" gorm:"column:project_id;index:idx_task_lane,priority:2"`
	Title        string        `json:"title" gorm:"not null"`
	Description  string        `json:"description,omitempty"`
	Status       TaskStatus    `json:"status" gorm:"not null;default:'todo';index:idx_task_lane,priority:3"`
	Priority     TaskPriority  `json:"priority" gorm:"not null;default:'medium'"`
	DueDate      string        `json:"due_date,omitempty" gorm:"column:due_date"`
	AssigneeID   string        `json:"assignee_id,omitempty" gorm:"column:assignee_id"`
	ContextLinks []ContextLink `json:"context_links,omitempty" gorm:"column:context_links;serializer:json"`
	AIGenerated  bool          `json:"ai_generated" gorm:"column:ai_generated"`
	Effort       int           `json:"effort" gorm:"default:1"`
	OrderIndex   int           `json:"order_index" gorm:"column:order_index;not null;default:0"`
	Version      int           `json:"version" gorm:"not null;default:1"`
	CreatedBy    string        `json:"created_by,omitempty" gorm:"column:created_by"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
}

// TableName specifies the table name for Task Model
func (Task) TableName() string {
	return "tasks"
}

// Link returns the task's context link of the given kind.
func (t Task) Link(kind ContextKind) (ContextLink, bool) {
	for _, l := range t.ContextLinks {
		if l.Kind == kind {
			return l, true
		}
	}
	return ContextLink{}, false
}

// Clone returns a deep copy, so snapshots don't share the link slice.
func (t Task) Clone() Task {
	if t.ContextLinks != nil {
		t.ContextLinks = append([]ContextLink(nil), t.ContextLinks...)
	}
	return t
}

// TaskInput is the create payload.
type TaskInput struct {
	Title        string        `json:"title"`
	Description  string        `json:"description,omitempty"`
	Status       TaskStatus    `json:"status,omitempty"`
	Priority     TaskPriority  `json:"priority,omitempty"`
	DueDate      string        `json:"due_date,omitempty"`
	AssigneeID   string        `json:"assignee_id,omitempty"`
	ContextLinks []ContextLink `json:"context_links,omitempty"`
	AIGenerated  bool          `json:"ai_generated,omitempty"`
	Effort       int           `json:"effort,omitempty"`
}

// Normalize fills defaults and validates the payload before any request goes out.
func (in *TaskInput) Normalize() error {
	in.Title = strings.TrimSpace(in.Title)
	if in.Title == "" {
		return fmt.Errorf("%w: title is required", ErrValidation)
	}
	if in.Status == "" {
		in.Status = StatusTodo
	}
	if !in.Status.Valid() {
		return fmt.Errorf("%w: invalid status %q", ErrValidation, in.Status)
	}
	if in.Priority == "" {
		in.Priority = PriorityMedium
	}
	if !in.Priority.Valid() {
		return fmt.Errorf("%w: invalid priority %q", ErrValidation, in.Priority)
	}
	if in.DueDate != "" {
		d, ok := ParseDate(in.DueDate)
		if !ok {
			return fmt.Errorf("%w: invalid due date %q", ErrValidation, in.DueDate)
		}
		in.DueDate = d
	}
	if in.Effort < 1 {
		in.Effort = 1
	}
	return ValidateContextLinks(in.ContextLinks)
}

// TaskPatch is the update payload; nil fields are left alone.
type TaskPatch struct {
	Title        *string        `json:"title,omitempty"`
	Description  *string        `json:"description,omitempty"`
	Status       *TaskStatus    `json:"status,omitempty"`
	Priority     *TaskPriority  `json:"priority,omitempty"`
	DueDate      *string        `json:"due_date,omitempty"`
	AssigneeID   *string        `json:"assignee_id,omitempty"`
	ContextLinks *[]ContextLink `json:"context_links,omitempty"`
	Effort       *int           `json:"effort,omitempty"`
	Version      int            `json:"version,omitempty"`
}

// Validate checks the fields that are set.
func (p *TaskPatch) Validate() error {
	if p.Title != nil {
		t := strings.TrimSpace(*p.Title)
		if t == "" {
			return fmt.Errorf("%w: title is required", ErrValidation)
		}
		p.Title = &t
	}
	if p.Status != nil && !p.Status.Valid() {
		return fmt.Errorf("%w: invalid status %q", ErrValidation, *p.Status)
	}
	if p.Priority != nil && !p.Priority.Valid() {
		return fmt.Errorf("%w: invalid priority %q", ErrValidation, *p.Priority)
	}
	if p.DueDate != nil && *p.DueDate != "" {
		d, ok := ParseDate(*p.DueDate)
		if !ok {
			return fmt.Errorf("%w: invalid due date %q", ErrValidation, *p.DueDate)
		}
		p.DueDate = &d
	}
	if p.Effort != nil && *p.Effort < 1 {
		return fmt.Errorf("%w: effort must be at least 1", ErrValidation)
	}
	if p.ContextLinks != nil {
		return ValidateContextLinks(*p.ContextLinks)
	}
	return nil
}

// Apply copies the set fields onto t. Status is left to the caller because it moves lanes.
func (p TaskPatch) Apply(t *Task) {
	if p.Title != nil {
		t.Title = *p.Title
	}
	if p.Description != nil {
		t.Description = *p.Description
	}
	if p.Priority != nil {
		t.Priority = *p.Priority
	}
	if p.DueDate != nil {
		t.DueDate = *p.DueDate
	}
	if p.AssigneeID != nil {
		t.AssigneeID = *p.AssigneeID
	}
	if p.ContextLinks != nil {
		t.ContextLinks = append([]ContextLink(nil), (*p.ContextLinks)...)
	}
	if p.Effort != nil {
		t.Effort = *p.Effort
	}
}

// Empty reports whether the patch changes anything besides status.
func (p TaskPatch) Empty() bool {
	return p.Title == nil && p.Description == nil && p.Priority == nil && p.DueDate == nil &&
		p.AssigneeID == nil && p.ContextLinks == nil && p.Effort == nil
}

// MoveRequest asks the backend to place a task at (status, order_index).
// Sibling reindexing is done by the backend with the same lane algorithm.
type MoveRequest struct {
	TaskID     string     `json:"task_id"`
	Status     TaskStatus `json:"status"`
	OrderIndex int        `json:"order_index"`
	Version    int        `json:"version,omitempty"`
}

// MoveAck is the backend's acknowledgement of a move.
type MoveAck struct {
	TaskID    string `json:"task_id"`
	Version   int    `json:"version"`
	Reindexed int    `json:"reindexed"`
}

// ParseDate accepts the layouts the forms send and returns YYYY-MM-DD.
func ParseDate(s string) (string, bool) {
	s = strings.TrimSpace(s)
	layouts := []string{
		"2006-01-02",
		"2 Jan 2006",
		"02 Jan 2006",
		time.RFC3339,
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format("2006-01-02"), true
		}
	}
	return "", false
}
