package linkgraph

import "taskboard/internal/models"

// Progress returns the fraction of tasks whose status is done. An empty set
// has progress 0.
func Progress(tasks []models.Task) float64 {
	if len(tasks) == 0 {
		return 0
	}
	done := 0
	for _, t := range tasks {
		if t.Status == models.StatusDone {
			done++
		}
	}
	return float64(done) / float64(len(tasks))
}

// Diff is the set of link and unlink requests that turns one link set into
// another.
type Diff struct {
	ToAdd    []string
	ToRemove []string
}

// Empty reports whether nothing needs to be sent.
func (d Diff) Empty() bool {
	return len(d.ToAdd) == 0 && len(d.ToRemove) == 0
}

// Apply returns current with the diff applied. Kept ids keep their order and
// added ids follow in desired order.
func (d Diff) Apply(current []string) []string {
	drop := make(map[string]bool, len(d.ToRemove))
	for _, id := range d.ToRemove {
		drop[id] = true
	}
	out := make([]string, 0, len(current)+len(d.ToAdd))
	for _, id := range current {
		if !drop[id] {
			out = append(out, id)
		}
	}
	return append(out, d.ToAdd...)
}

// Revert undoes d on current, the edge set as it is now. Added ids are
// dropped and removed ids come back at the end unless gone reports that the
// task no longer exists.
func (d Diff) Revert(current []string, gone func(id string) bool) []string {
	added := make(map[string]bool, len(d.ToAdd))
	for _, id := range d.ToAdd {
		added[id] = true
	}
	out := make([]string, 0, len(current)+len(d.ToRemove))
	have := make(map[string]bool, len(current))
	for _, id := range current {
		if !added[id] {
			out = append(out, id)
			have[id] = true
		}
	}
	for _, id := range d.ToRemove {
		if !have[id] && !gone(id) {
			out = append(out, id)
		}
	}
	return out
}

// ComputeDiff compares current with desired. Duplicates and empty ids in
// desired are ignored.
func ComputeDiff(current, desired []string) Diff {
	have := make(map[string]bool, len(current))
	for _, id := range current {
		have[id] = true
	}
	want := make(map[string]bool, len(desired))
	var d Diff
	for _, id := range desired {
		if id == "" || want[id] {
			continue
		}
		want[id] = true
		if !have[id] {
			d.ToAdd = append(d.ToAdd, id)
		}
	}
	for _, id := range dedupe(current) {
		if !want[id] {
			d.ToRemove = append(d.ToRemove, id)
		}
	}
	return d
}

func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

func without(ids []string, id string) []string {
	out := ids[:0:0]
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}
