// Package classify defines the classifier call contract used by the pipeline:
// a flattened oldest-first window in, a label index and confidence out.
package classify

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// FailureLabel is the reserved non-label index carried by Failure.
const FailureLabel = -1

// Result is one classification. Confidence is in [0,1].
type Result struct {
	Label      int     `json:"label"`
	Confidence float64 `json:"confidence"`
}

// Failure is returned when the frame could not be processed.
var Failure = Result{Label: FailureLabel, Confidence: 0}

// Failed reports whether r is the failure sentinel.
func (r Result) Failed() bool { return r.Label == FailureLabel }

// Classifier consumes a W×C frame. Implementations must be synchronous and
// must not return errors: anything that goes wrong maps to Failure.
type Classifier interface {
	// InputSize is the frame length (W×C) the classifier was built for.
	InputSize() int
	Classify(frame []float64) Result
}

// Func adapts a plain function to Classifier.
type Func struct {
	Size int
	Fn   func(frame []float64) Result
}

func (f Func) InputSize() int { return f.Size }

func (f Func) Classify(frame []float64) Result {
	if len(frame) != f.Size {
		return Failure
	}
	return f.Fn(frame)
}

// ErrInputSizeMismatch means the configured window does not match what the
// classifier was built for.
var ErrInputSizeMismatch = errors.New("classifier input size mismatch")

// Validate checks that a window of w samples × c channels fits c.
func Validate(cl Classifier, w, c int) error {
	if got := w * c; cl.InputSize() != got {
		return fmt.Errorf("%w: classifier expects %d values, window is %d×%d=%d",
			ErrInputSizeMismatch, cl.InputSize(), w, c, got)
	}
	return nil
}

// Finite reports whether every value in frame is a real number.
func Finite(frame []float64) bool {
	for _, v := range frame {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// Labels is the fixed label space of a classifier.
type Labels struct {
	Names []string
	Idle  int
}

// ParseLabels builds a label space from a comma separated list and the name
// of the idle ("no stroke") label.
func ParseLabels(list, idle string) (Labels, error) {
	var names []string
	for _, n := range strings.Split(list, ",") {
		n = strings.TrimSpace(n)
		if n == "" {
			continue
		}
		names = append(names, n)
	}
	if len(names) < 2 {
		return Labels{}, fmt.Errorf("need at least two labels, got %d", len(names))
	}
	seen := make(map[string]bool, len(names))
	idx := -1
	for i, n := range names {
		if seen[n] {
			return Labels{}, fmt.Errorf("duplicate label %q", n)
		}
		seen[n] = true
		if n == idle {
			idx = i
		}
	}
	if idx < 0 {
		return Labels{}, fmt.Errorf("idle label %q not in %v", idle, names)
	}
	return Labels{Names: names, Idle: idx}, nil
}

// Len returns the label space size.
func (l Labels) Len() int { return len(l.Names) }

// Name returns the name for a label index, or "" when out of range.
func (l Labels) Name(i int) string {
	if i < 0 || i >= len(l.Names) {
		return ""
	}
	return l.Names[i]
}

// Categories returns the non-idle label names in index order.
func (l Labels) Categories() []string {
	out := make([]string, 0, len(l.Names)-1)
	for i, n := range l.Names {
		if i != l.Idle {
			out = append(out, n)
		}
	}
	return out
}
