package pipeline

import (
	"github.com/relabs-tech/stroke_classifier/internal/classify"
	"github.com/relabs-tech/stroke_classifier/internal/imu"
)

// PlausibilityGate rejects windows without a real impact: at least one
// sample must exceed the acceleration threshold. Magnitudes are compared
// squared.
type PlausibilityGate struct {
	thresholdSq float64
}

// NewPlausibilityGate returns a gate for a threshold expressed in g.
func NewPlausibilityGate(thresholdG float64) PlausibilityGate {
	return PlausibilityGate{thresholdSq: thresholdG * thresholdG}
}

// Pass reports whether any sample's |a|² exceeds the threshold².
func (g PlausibilityGate) Pass(window []imu.Sample) bool {
	for i := range window {
		if window[i].AccelNormSq() > g.thresholdSq {
			return true
		}
	}
	return false
}

// Reason tells why a classification was accepted or rejected.
type Reason int

const (
	ReasonAccepted Reason = iota
	ReasonClassifierFailure
	ReasonLowConfidence
	ReasonIdleLabel
	ReasonUnknownLabel
	ReasonImplausible
	numReasons
)

func (r Reason) String() string {
	switch r {
	case ReasonAccepted:
		return "accepted"
	case ReasonClassifierFailure:
		return "classifier_failure"
	case ReasonLowConfidence:
		return "low_confidence"
	case ReasonIdleLabel:
		return "idle_label"
	case ReasonUnknownLabel:
		return "unknown_label"
	case ReasonImplausible:
		return "implausible"
	default:
		return "unknown"
	}
}

// Decision is the outcome of the decision gate.
type Decision struct {
	Accept bool
	Reason Reason
}

// DecisionGate combines the confidence threshold, idle label exclusion and
// the plausibility gate. All must hold for an event to be accepted.
type DecisionGate struct {
	ConfidenceThreshold float64
	Labels              classify.Labels
	Plausibility        PlausibilityGate
}

// Decide evaluates res for the window it was computed on.
func (g DecisionGate) Decide(res classify.Result, window []imu.Sample) Decision {
	switch {
	case res.Failed():
		return Decision{Reason: ReasonClassifierFailure}
	case !(res.Confidence > g.ConfidenceThreshold):
		return Decision{Reason: ReasonLowConfidence}
	case res.Label == g.Labels.Idle:
		return Decision{Reason: ReasonIdleLabel}
	case res.Label < 0 || res.Label >= g.Labels.Len():
		return Decision{Reason: ReasonUnknownLabel}
	case !g.Plausibility.Pass(window):
		return Decision{Reason: ReasonImplausible}
	}
	return Decision{Accept: true, Reason: ReasonAccepted}
}
