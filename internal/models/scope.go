package models

// Scope is the request context of one open project view. It is passed
// explicitly to every component and backend call.
type Scope struct {
	WorkspaceID string
	UserID      string
	ProjectID   string
	Role        Role
}

// CanEdit reports whether controls that mutate state should be enabled.
// Advisory only: the server enforces roles on its own.
func (s Scope) CanEdit() bool {
	return s.Role.CanEdit()
}
