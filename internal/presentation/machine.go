// Package presentation sequences what the display shows: the intro, live
// counters, a flash after each accepted stroke and an idle prompt.
package presentation

import (
	"time"

	"github.com/relabs-tech/stroke_classifier/internal/pipeline"
)

// State is the active presentation state.
type State int

const (
	Opening State = iota
	Main
	Flash
	Idle
)

func (s State) String() string {
	switch s {
	case Opening:
		return "OPENING"
	case Main:
		return "MAIN"
	case Flash:
		return "FLASH"
	case Idle:
		return "IDLE"
	default:
		return "UNKNOWN"
	}
}

// Timing holds the presentation cadences.
type Timing struct {
	IntroFrames        int
	IntroFrameInterval time.Duration
	RedrawInterval     time.Duration // MAIN counters redraw
	IdleRedrawInterval time.Duration // IDLE animation frame
	FlashDuration      time.Duration
	IdleTimeout        time.Duration // MAIN without strokes before IDLE
}

// DefaultTiming returns the cadences used on the device.
func DefaultTiming() Timing {
	return Timing{
		IntroFrames:        8,
		IntroFrameInterval: 150 * time.Millisecond,
		RedrawInterval:     250 * time.Millisecond,
		IdleRedrawInterval: 600 * time.Millisecond,
		FlashDuration:      1500 * time.Millisecond,
		IdleTimeout:        30 * time.Second,
	}
}

// Machine is the presentation state machine. It observes accepted strokes
// and elapsed time; it never gates sampling or classification. Like the
// pipeline it is owned by the control loop.
type Machine struct {
	timing   Timing
	messages *Messages
	r        Renderer

	state      State
	lastDraw   time.Time // last intro frame, counters redraw or idle frame
	mainSince  time.Time // idle timer origin
	flashAt    time.Time
	lastAccept time.Time
	introFrame int
	idlePhase  int
	category   string
	message    string
}

// New returns a machine in OPENING. Call Start before the first Update.
func New(timing Timing, messages *Messages, r Renderer) *Machine {
	if messages == nil {
		messages = DefaultMessages()
	}
	return &Machine{timing: timing, messages: messages, r: r, state: Opening}
}

// Start plays the first intro frame. With no intro frames configured the
// machine goes straight to MAIN.
func (m *Machine) Start(now time.Time, snap pipeline.Snapshot) {
	m.state = Opening
	m.introFrame = 0
	if m.timing.IntroFrames <= 0 {
		m.enterMain(now, snap)
		return
	}
	m.r.RenderIntro(0)
	m.lastDraw = now
}

// Update advances time-driven transitions and redraws.
func (m *Machine) Update(now time.Time, snap pipeline.Snapshot) {
	switch m.state {
	case Opening:
		if now.Sub(m.lastDraw) < m.timing.IntroFrameInterval {
			return
		}
		m.introFrame++
		if m.introFrame >= m.timing.IntroFrames {
			m.enterMain(now, snap)
			return
		}
		m.r.RenderIntro(m.introFrame)
		m.lastDraw = now

	case Main:
		if now.Sub(m.mainSince) >= m.timing.IdleTimeout {
			m.enterIdle(now)
			return
		}
		if now.Sub(m.lastDraw) >= m.timing.RedrawInterval {
			m.r.RenderCounters(snap)
			m.lastDraw = now
		}

	case Flash:
		if now.Sub(m.flashAt) >= m.timing.FlashDuration {
			m.enterMain(now, snap)
		}

	case Idle:
		if now.Sub(m.lastDraw) >= m.timing.IdleRedrawInterval {
			m.idlePhase++
			m.r.RenderIdle(m.idlePhase)
			m.lastDraw = now
		}
	}
}

// Accept reacts to an accepted stroke of category. From any state it enters
// FLASH; in FLASH it restarts the flash timer and redraws with the next
// message for the new category.
func (m *Machine) Accept(now time.Time, category string) {
	m.state = Flash
	m.flashAt = now
	m.lastAccept = now
	m.category = category
	m.message = m.messages.Next(category)
	m.r.RenderFlash(m.category, m.message)
}

func (m *Machine) enterMain(now time.Time, snap pipeline.Snapshot) {
	m.state = Main
	m.mainSince = now
	m.r.RenderCounters(snap)
	m.lastDraw = now
}

func (m *Machine) enterIdle(now time.Time) {
	m.state = Idle
	m.idlePhase = 0
	m.r.RenderIdle(0)
	m.lastDraw = now
}

// State returns the active state.
func (m *Machine) State() State { return m.state }

// FlashContent returns the category and message of the current or last flash.
func (m *Machine) FlashContent() (category, message string) { return m.category, m.message }

// FlashElapsed returns the time spent in the current flash.
func (m *Machine) FlashElapsed(now time.Time) time.Duration {
	if m.state != Flash {
		return 0
	}
	return now.Sub(m.flashAt)
}

// LastAccept returns the time of the last accepted stroke.
func (m *Machine) LastAccept() time.Time { return m.lastAccept }
