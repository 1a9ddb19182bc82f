package presentation

import "github.com/relabs-tech/stroke_classifier/internal/pipeline"

// Renderer paints what the state machine asks for. It only draws; errors are
// the renderer's to log.
type Renderer interface {
	RenderCounters(snap pipeline.Snapshot)
	RenderFlash(category, message string)
	RenderIdle(phase int)
	RenderIntro(frame int)
}
