package pipeline

import "github.com/relabs-tech/stroke_classifier/internal/classify"

// Tally counts accepted strokes per label plus a session total. Counts only
// grow; they reset with the process.
type Tally struct {
	labels classify.Labels
	counts []uint64
	total  uint64
}

// NewTally returns zeroed counters for the label space.
func NewTally(labels classify.Labels) *Tally {
	return &Tally{labels: labels, counts: make([]uint64, labels.Len())}
}

// Record increments the counter of label and the total.
func (t *Tally) Record(label int) {
	t.counts[label]++
	t.total++
}

// Count returns the counter for label.
func (t *Tally) Count(label int) uint64 { return t.counts[label] }

// Total returns the number of accepted strokes.
func (t *Tally) Total() uint64 { return t.total }

// Snapshot copies the non-idle counters for rendering or publishing.
func (t *Tally) Snapshot() Snapshot {
	s := Snapshot{Total: t.total}
	for i, name := range t.labels.Names {
		if i == t.labels.Idle {
			continue
		}
		s.Categories = append(s.Categories, CategoryCount{Name: name, Count: t.counts[i]})
	}
	return s
}

// CategoryCount is one line of a Snapshot.
type CategoryCount struct {
	Name  string `json:"name"`
	Count uint64 `json:"count"`
}

// Snapshot is an immutable copy of the counters, in label order.
type Snapshot struct {
	Categories []CategoryCount `json:"categories"`
	Total      uint64          `json:"total"`
}

// Get returns the count for a category name.
func (s Snapshot) Get(name string) uint64 {
	for _, c := range s.Categories {
		if c.Name == name {
			return c.Count
		}
	}
	return 0
}
