package display

import (
	"github.com/relabs-tech/stroke_classifier/internal/pipeline"
	"github.com/relabs-tech/stroke_classifier/internal/presentation"
)

// Multi forwards every call to each renderer in order.
type Multi []presentation.Renderer

func (m Multi) RenderCounters(snap pipeline.Snapshot) {
	for _, r := range m {
		r.RenderCounters(snap)
	}
}

func (m Multi) RenderFlash(category, message string) {
	for _, r := range m {
		r.RenderFlash(category, message)
	}
}

func (m Multi) RenderIdle(phase int) {
	for _, r := range m {
		r.RenderIdle(phase)
	}
}

func (m Multi) RenderIntro(frame int) {
	for _, r := range m {
		r.RenderIntro(frame)
	}
}
