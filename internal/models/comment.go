package models

import "time"

// TaskComment is one entry of a task's append-only comment thread.
type TaskComment struct {
	ID        string    `json:"id" gorm:"primaryKey"`
	TaskID    string    `json:"task_id" gorm:"column:task_id;index;not null"`
	AuthorID  string    `json:"author_id" gorm:"column:author_id"`
	Content   string    `json:"content" gorm:"not null"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName specifies the table name for TaskComment Model
func (TaskComment) TableName() string {
	return "task_comments"
}

// TaskGenerationItem is an AI-proposed task draft.
type TaskGenerationItem struct {
	Title       string       `json:"title"`
	Description string       `json:"description,omitempty"`
	Priority    TaskPriority `json:"priority"`
	Effort      int          `json:"effort"`
}
