package models

import "time"

// PhaseStatus is the lifecycle state of a roadmap phase or milestone.
type PhaseStatus string

const (
	PhasePlanned    PhaseStatus = "planned"
	PhaseInProgress PhaseStatus = "in_progress"
	PhaseCompleted  PhaseStatus = "completed"
)

// Valid reports whether s is a known phase status.
func (s PhaseStatus) Valid() bool {
	switch s {
	case PhasePlanned, PhaseInProgress, PhaseCompleted:
		return true
	}
	return false
}

// RoadmapPhase is an ordered stage of a project roadmap.
// Progress is derived at read time and never persisted.
type RoadmapPhase struct {
	ID          string             `json:"id" gorm:"primaryKey"`
	WorkspaceID string             `json:"workspace_id" gorm:"column:workspace_id;index:idx_phase_project,priority:1"`
	ProjectID   string             `json:"project_id" gorm:"column:project_id;index:idx_phase_project,priority:2"`
	Title       string             `json:"title" gorm:"not null"`
	Description string             `json:"description,omitempty"`
	DueDate     string             `json:"due_date,omitempty" gorm:"column:due_date"`
	Status      PhaseStatus        `json:"status" gorm:"not null;default:'planned'"`
	OrderIndex  int                `json:"order_index" gorm:"column:order_index"`
	Progress    float64            `json:"progress" gorm:"-"`
	Milestones  []RoadmapMilestone `json:"milestones" gorm:"foreignKey:PhaseID"`
	CreatedAt   time.Time          `json:"created_at"`
	UpdatedAt   time.Time          `json:"updated_at"`
}

// TableName specifies the table name for RoadmapPhase Model
func (RoadmapPhase) TableName() string {
	return "roadmap_phases"
}

// RoadmapMilestone belongs to one phase and links to any number of tasks.
type RoadmapMilestone struct {
	ID          string      `json:"id" gorm:"primaryKey"`
	PhaseID     string      `json:"phase_id" gorm:"column:phase_id;index;not null"`
	Title       string      `json:"title" gorm:"not null"`
	Description string      `json:"description,omitempty"`
	DueDate     string      `json:"due_date,omitempty" gorm:"column:due_date"`
	Status      PhaseStatus `json:"status" gorm:"not null;default:'planned'"`
	OrderIndex  int         `json:"order_index" gorm:"column:order_index"`
	Progress    float64     `json:"progress" gorm:"-"`
	LinkedTasks []Task      `json:"linked_tasks" gorm:"-"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// TableName specifies the table name for RoadmapMilestone Model
func (RoadmapMilestone) TableName() string {
	return "roadmap_milestones"
}

// MilestoneTask is one edge of the milestone/task link graph.
// ID keeps insertion order.
type MilestoneTask struct {
	ID          uint      `gorm:"primaryKey;autoIncrement"`
	MilestoneID string    `gorm:"column:milestone_id;not null;uniqueIndex:uq_milestone_task,priority:1"`
	TaskID      string    `gorm:"column:task_id;not null;uniqueIndex:uq_milestone_task,priority:2;index"`
	CreatedAt   time.Time
}

// TableName specifies the table name for MilestoneTask Model
func (MilestoneTask) TableName() string {
	return "milestone_tasks"
}

// LinkMode selects link or unlink on the milestone/task endpoint.
type LinkMode string

const (
	LinkModeLink   LinkMode = "link"
	LinkModeUnlink LinkMode = "unlink"
)

// PhaseInput is the create payload for a phase.
type PhaseInput struct {
	Title       string      `json:"title"`
	Description string      `json:"description,omitempty"`
	DueDate     string      `json:"due_date,omitempty"`
	Status      PhaseStatus `json:"status,omitempty"`
}

// MilestoneInput is the create payload for a milestone.
type MilestoneInput struct {
	Title       string      `json:"title"`
	Description string      `json:"description,omitempty"`
	DueDate     string      `json:"due_date,omitempty"`
	Status      PhaseStatus `json:"status,omitempty"`
}
