package display

import (
	"fmt"
	"io"
	"strings"

	"github.com/relabs-tech/stroke_classifier/internal/pipeline"
)

// Console prints render requests as text lines, one per call.
type Console struct {
	w io.Writer
}

// NewConsole writes to w (usually os.Stdout).
func NewConsole(w io.Writer) *Console {
	return &Console{w: w}
}

func (c *Console) RenderCounters(snap pipeline.Snapshot) {
	parts := make([]string, 0, len(snap.Categories))
	for _, cat := range snap.Categories {
		parts = append(parts, fmt.Sprintf("%s=%d", cat.Name, cat.Count))
	}
	fmt.Fprintf(c.w, "[COUNT] %s total=%d\n", strings.Join(parts, " "), snap.Total)
}

func (c *Console) RenderFlash(category, message string) {
	fmt.Fprintf(c.w, "[FLASH] %s  %s\n", category, message)
}

func (c *Console) RenderIdle(phase int) {
	fmt.Fprintf(c.w, "[IDLE ] swing to start%s\n", strings.Repeat(".", phase%4))
}

func (c *Console) RenderIntro(frame int) {
	fmt.Fprintf(c.w, "[INTRO] frame %d\n", frame)
}
