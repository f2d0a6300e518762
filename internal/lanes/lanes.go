// Package lanes groups a project's tasks into the three status lanes and
// implements the order-index arithmetic used by both the board engine and the
// backend move handler.
package lanes

import (
	"fmt"
	"sort"

	"taskboard/internal/models"
)

// View maps every lane to its tasks sorted by display order.
// Build always populates all three lanes, possibly with empty slices.
type View map[models.TaskStatus][]models.Task

// Move describes a drag gesture.
type Move struct {
	TaskID    string
	From      models.TaskStatus
	To        models.TaskStatus
	FromIndex int
	ToIndex   int
}

// NoOp reports whether the gesture drops the task where it started.
func (m Move) NoOp() bool {
	return m.From == m.To && m.FromIndex == m.ToIndex
}

// Build partitions tasks into lanes. The projection is pure: inputs are not
// modified and order indices are not rewritten. Tasks whose indices collide
// or are missing (negative) fall back to creation order, then id. Tasks with
// an unknown status are left out.
func Build(tasks []models.Task) View {
	v := empty()
	for _, t := range tasks {
		if !t.Status.Valid() {
			continue
		}
		v[t.Status] = append(v[t.Status], t.Clone())
	}
	for _, s := range models.Statuses {
		sortLane(v[s])
	}
	return v
}

func empty() View {
	v := make(View, len(models.Statuses))
	for _, s := range models.Statuses {
		v[s] = []models.Task{}
	}
	return v
}

func sortLane(lane []models.Task) {
	sort.SliceStable(lane, func(i, j int) bool {
		a, b := lane[i], lane[j]
		ai, bi := a.OrderIndex, b.OrderIndex
		if (ai < 0) != (bi < 0) {
			return bi < 0
		}
		if ai != bi {
			return ai < bi
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
}

// Lane returns the ordered tasks of one lane.
func (v View) Lane(s models.TaskStatus) []models.Task {
	return v[s]
}

// IndexOf returns the position of id in lane s, or -1.
func (v View) IndexOf(s models.TaskStatus, id string) int {
	for i, t := range v[s] {
		if t.ID == id {
			return i
		}
	}
	return -1
}

// Find returns the lane and position holding id.
func (v View) Find(id string) (models.TaskStatus, int, bool) {
	for _, s := range models.Statuses {
		if i := v.IndexOf(s, id); i >= 0 {
			return s, i, true
		}
	}
	return "", -1, false
}

// Clone copies every lane.
func (v View) Clone() View {
	out := make(View, len(v))
	for s, lane := range v {
		cp := make([]models.Task, len(lane))
		for i, t := range lane {
			cp[i] = t.Clone()
		}
		out[s] = cp
	}
	return out
}

// Tasks flattens the view in lane order.
func (v View) Tasks() []models.Task {
	var out []models.Task
	for _, s := range models.Statuses {
		out = append(out, v[s]...)
	}
	return out
}

// Dense reports whether the lane's indices are exactly 0..n-1 in order.
func Dense(lane []models.Task) bool {
	for i, t := range lane {
		if t.OrderIndex != i {
			return false
		}
	}
	return true
}

// Relocate applies m to a copy of v and returns the new view together with
// every task whose status or order index changed. The task must occupy
// m.FromIndex in m.From. The destination index is clamped to the lane's
// post-removal length, so len(lane) appends.
func Relocate(v View, m Move) (View, []models.Task, error) {
	if !m.From.Valid() || !m.To.Valid() {
		return nil, nil, fmt.Errorf("%w: unknown lane %q -> %q", models.ErrValidation, m.From, m.To)
	}
	out := v.Clone()
	if m.NoOp() {
		return out, nil, nil
	}
	src := out[m.From]
	if m.FromIndex < 0 || m.FromIndex >= len(src) || src[m.FromIndex].ID != m.TaskID {
		return nil, nil, fmt.Errorf("%w: %s at %s[%d]", models.ErrPositionMismatch, m.TaskID, m.From, m.FromIndex)
	}
	before := placements(out, m.From, m.To)

	task := src[m.FromIndex]
	src = append(src[:m.FromIndex:m.FromIndex], src[m.FromIndex+1:]...)
	out[m.From] = src

	dst := out[m.To]
	idx := m.ToIndex
	if idx < 0 {
		idx = 0
	}
	if idx > len(dst) {
		idx = len(dst)
	}
	task.Status = m.To
	dst = append(dst[:idx:idx], append([]models.Task{task}, dst[idx:]...)...)
	out[m.To] = dst

	renumber(out[m.From])
	renumber(out[m.To])
	return out, changedSince(out, before, m.From, m.To), nil
}

// Append places t at the end of its lane.
func Append(v View, t models.Task) (View, []models.Task, error) {
	if !t.Status.Valid() {
		return nil, nil, fmt.Errorf("%w: unknown lane %q", models.ErrValidation, t.Status)
	}
	out := v.Clone()
	t = t.Clone()
	t.OrderIndex = len(out[t.Status])
	out[t.Status] = append(out[t.Status], t)
	return out, []models.Task{t}, nil
}

// Remove drops id from its lane and closes the gap. It returns the siblings
// whose index shifted.
func Remove(v View, id string) (View, []models.Task, bool) {
	s, i, ok := v.Find(id)
	if !ok {
		return v.Clone(), nil, false
	}
	out := v.Clone()
	before := placements(out, s, s)
	lane := out[s]
	out[s] = append(lane[:i:i], lane[i+1:]...)
	renumber(out[s])
	return out, changedSince(out, before, s, s), true
}

// Normalize rewrites every lane's indices to 0..n-1 and returns the tasks
// that changed.
func Normalize(v View) (View, []models.Task) {
	out := v.Clone()
	var changed []models.Task
	for _, s := range models.Statuses {
		for i := range out[s] {
			if out[s][i].OrderIndex != i {
				out[s][i].OrderIndex = i
				changed = append(changed, out[s][i])
			}
		}
	}
	return out, changed
}

func renumber(lane []models.Task) {
	for i := range lane {
		lane[i].OrderIndex = i
	}
}

type placement struct {
	status models.TaskStatus
	index  int
}

func placements(v View, lanes ...models.TaskStatus) map[string]placement {
	out := make(map[string]placement)
	for _, s := range lanes {
		for _, t := range v[s] {
			out[t.ID] = placement{status: t.Status, index: t.OrderIndex}
		}
	}
	return out
}

func changedSince(v View, before map[string]placement, from, to models.TaskStatus) []models.Task {
	var changed []models.Task
	seen := map[models.TaskStatus]bool{}
	for _, s := range []models.TaskStatus{from, to} {
		if seen[s] {
			continue
		}
		seen[s] = true
		for _, t := range v[s] {
			p, ok := before[t.ID]
			if !ok || p.status != t.Status || p.index != t.OrderIndex {
				changed = append(changed, t)
			}
		}
	}
	return changed
}
