package realtime

import (
	"encoding/json"
	"sync"
)

// Event types pushed to workspace subscribers.
const (
	EventTaskCreated      = "task_created"
	EventTaskUpdated      = "task_updated"
	EventTaskMoved        = "task_moved"
	EventTaskDeleted      = "task_deleted"
	EventCommentAdded     = "comment_added"
	EventRoadmapChanged   = "roadmap_changed"
	EventMilestoneLinked  = "milestone_linked"
	EventMembershipChange = "membership_changed"
)

// Event tells other sessions that something in a workspace changed. It is a
// hint to refetch, not a state transfer.
type Event struct {
	Type        string `json:"type"`
	WorkspaceID string `json:"workspace_id"`
	ProjectID   string `json:"project_id,omitempty"`
	TaskID      string `json:"task_id,omitempty"`
	MilestoneID string `json:"milestone_id,omitempty"`
	ActorID     string `json:"actor_id,omitempty"`
	Version     int    `json:"version,omitempty"`
}

// Client represents a single websocket client connection.
// The actual network conn is managed in the ws handler.
type Client interface {
	Send(message []byte) bool
	Close()
}

// Hub maintains active connections per workspace and broadcasts events to them.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]map[Client]struct{}
}

// NewHub returns an empty hub.
func NewHub() *Hub {
	return &Hub{clients: make(map[string]map[Client]struct{})}
}

// Register adds a client under a workspace ID.
func (h *Hub) Register(workspaceID string, client Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[workspaceID]; !ok {
		h.clients[workspaceID] = make(map[Client]struct{})
	}
	h.clients[workspaceID][client] = struct{}{}
}

// Unregister removes a client; if the workspace has no more clients, cleans up map.
func (h *Hub) Unregister(workspaceID string, client Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if clients, ok := h.clients[workspaceID]; ok {
		delete(clients, client)
		if len(clients) == 0 {
			delete(h.clients, workspaceID)
		}
	}
}

// Subscribers returns the number of clients listening on a workspace.
func (h *Hub) Subscribers(workspaceID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[workspaceID])
}

// Publish sends ev to every client of its workspace and returns how many
// accepted it. A nil hub publishes nothing.
func (h *Hub) Publish(ev Event) int {
	if h == nil {
		return 0
	}
	msg, err := json.Marshal(ev)
	if err != nil {
		return 0
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	sent := 0
	for c := range h.clients[ev.WorkspaceID] {
		// a failed write is cleaned up by the client's own handler
		if c.Send(msg) {
			sent++
		}
	}
	return sent
}
