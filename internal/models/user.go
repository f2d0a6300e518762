package models

import "time"

// User represents a user in the system
type User struct {
	ID        string    `json:"id" gorm:"primaryKey"`
	Username  string    `json:"username" gorm:"unique;not null"`
	Password  string    `json:"-" gorm:"not null"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName specifies the table name for User Model
func (User) TableName() string {
	return "users"
}

// Role is a user's capability inside a workspace.
type Role string

const (
	RoleViewer Role = "viewer"
	RoleEditor Role = "editor"
	RoleOwner  Role = "owner"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleViewer, RoleEditor, RoleOwner:
		return true
	}
	return false
}

// CanEdit reports whether the role may mutate tasks and roadmap items.
func (r Role) CanEdit() bool {
	return r == RoleEditor || r == RoleOwner
}

// Membership grants a user a role in a workspace.
type Membership struct {
	WorkspaceID string    `json:"workspace_id" gorm:"primaryKey;column:workspace_id"`
	UserID      string    `json:"user_id" gorm:"primaryKey;column:user_id"`
	Role        Role      `json:"role" gorm:"not null"`
	CreatedAt   time.Time `json:"created_at"`
}

// TableName specifies the table name for Membership Model
func (Membership) TableName() string {
	return "memberships"
}
