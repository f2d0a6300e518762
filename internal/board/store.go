// Package board holds the task record store of one open project view and the
// drag-reorder engine that mutates it.
package board

import (
	"sync"

	"taskboard/internal/lanes"
	"taskboard/internal/models"
)

// Store is the in-memory task collection of one project view. It is the sole
// owner of task identity, status and order; every mutation goes through the
// Engine.
//
// Each Replace or Close bumps the epoch. Completions of requests issued under
// an older epoch are not applied.
type Store struct {
	mu       sync.RWMutex
	tasks    map[string]models.Task
	epoch    uint64
	closed   bool
	onRemove []func(taskID string)
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{tasks: make(map[string]models.Task)}
}

// Replace swaps the whole collection, typically after a fetch.
func (s *Store) Replace(tasks []models.Task) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks = make(map[string]models.Task, len(tasks))
	for _, t := range tasks {
		s.tasks[t.ID] = t.Clone()
	}
	s.epoch++
}

// Task returns a copy of one task.
func (s *Store) Task(id string) (models.Task, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tasks[id]
	return t.Clone(), ok
}

// Len returns the number of tasks held.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tasks)
}

// LaneView projects the store into ordered lanes.
func (s *Store) LaneView() lanes.View {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return lanes.Build(s.snapshotLocked())
}

// Tasks returns every task in board order.
func (s *Store) Tasks() []models.Task {
	return s.LaneView().Tasks()
}

// Epoch identifies the current generation of the store's contents.
func (s *Store) Epoch() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.epoch
}

// Closed reports whether the owning view went away.
func (s *Store) Closed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.closed
}

// Close detaches the store from its view. Later replies are dropped.
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.epoch++
}

// OnRemove registers fn to run after a task leaves the store through a delete.
func (s *Store) OnRemove(fn func(taskID string)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onRemove = append(s.onRemove, fn)
}

// Merge takes a freshly fetched record while keeping the locally owned
// status, order index and version. It returns false when epoch is stale.
func (s *Store) Merge(epoch uint64, t models.Task) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.currentLocked(epoch) {
		return false
	}
	if cur, ok := s.tasks[t.ID]; ok {
		t.Status = cur.Status
		t.OrderIndex = cur.OrderIndex
		if cur.Version > t.Version {
			t.Version = cur.Version
		}
	}
	s.tasks[t.ID] = t.Clone()
	return true
}

func (s *Store) current(epoch uint64) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.currentLocked(epoch)
}

func (s *Store) currentLocked(epoch uint64) bool {
	return !s.closed && s.epoch == epoch
}

func (s *Store) snapshotLocked() []models.Task {
	out := make([]models.Task, 0, len(s.tasks))
	for _, t := range s.tasks {
		out = append(out, t)
	}
	return out
}

func (s *Store) putLocked(tasks []models.Task) {
	for _, t := range tasks {
		s.tasks[t.ID] = t.Clone()
	}
}

// slot is a position in a lane, as an index into the lane's order.
type slot struct {
	status models.TaskStatus
	index  int
}

// revert undoes a rejected move of id. If the lanes the move touched still
// hold what it left behind and origin is where that move started, every task
// in snapshot gets its status and order index back. Otherwise id is relocated
// to origin and both lanes it crosses are renumbered. A task deleted in the
// meantime stays deleted.
func (s *Store) revert(epoch uint64, id string, origin, start slot, snapshot []models.Task, after lanes.View) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.currentLocked(epoch) {
		return false
	}
	view := lanes.Build(s.snapshotLocked())
	if origin == start && sameLanes(view, after) {
		for _, t := range snapshot {
			if cur, ok := s.tasks[t.ID]; ok {
				cur.Status = t.Status
				cur.OrderIndex = t.OrderIndex
				s.tasks[t.ID] = cur
			}
		}
		return true
	}

	status, idx, ok := view.Find(id)
	if !ok {
		return true
	}
	_, changed, err := lanes.Relocate(view, lanes.Move{
		TaskID: id, From: status, FromIndex: idx, To: origin.status, ToIndex: origin.index,
	})
	if err != nil {
		return false
	}
	s.putLocked(changed)
	return true
}

func sameLanes(v, want lanes.View) bool {
	for status, lane := range want {
		got := v.Lane(status)
		if len(got) != len(lane) {
			return false
		}
		for i := range lane {
			if got[i].ID != lane[i].ID || got[i].OrderIndex != lane[i].OrderIndex {
				return false
			}
		}
	}
	return true
}

func (s *Store) setVersion(epoch uint64, id string, version int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.currentLocked(epoch) {
		return false
	}
	t, ok := s.tasks[id]
	if !ok || version <= 0 {
		return false
	}
	t.Version = version
	s.tasks[id] = t
	return true
}

func (s *Store) insert(epoch uint64, t models.Task) (models.Task, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.currentLocked(epoch) {
		return t, false
	}
	if cur, ok := s.tasks[t.ID]; ok {
		return cur.Clone(), true
	}
	_, changed, err := lanes.Append(lanes.Build(s.snapshotLocked()), t)
	if err != nil {
		return t, false
	}
	s.putLocked(changed)
	return changed[0], true
}

// remove drops id and closes its lane's gap. Deletions apply even after a
// reload because the backend already confirmed them.
func (s *Store) remove(id string) bool {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return false
	}
	_, ok := s.tasks[id]
	if ok {
		_, changed, _ := lanes.Remove(lanes.Build(s.snapshotLocked()), id)
		delete(s.tasks, id)
		s.putLocked(changed)
	}
	listeners := append([]func(string){}, s.onRemove...)
	s.mu.Unlock()

	if ok {
		for _, fn := range listeners {
			fn(id)
		}
	}
	return ok
}
