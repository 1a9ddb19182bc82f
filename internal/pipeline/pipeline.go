// Package pipeline implements the windowing-and-decision path: ring buffer
// ingest, hop scheduling, classification, gating and counting.
package pipeline

import (
	"fmt"
	"log"
	"time"

	"github.com/relabs-tech/stroke_classifier/internal/classify"
	"github.com/relabs-tech/stroke_classifier/internal/imu"
	"github.com/relabs-tech/stroke_classifier/internal/ring"
)

// Config fixes the pipeline geometry and gate thresholds at startup.
type Config struct {
	Window              int             // W, samples per classifier frame
	Hop                 int             // samples between classification attempts
	ConfidenceThreshold float64         // strict lower bound on confidence
	PlausibilityG       float64         // impact threshold, g
	Labels              classify.Labels // label space, including the idle label

	// ClassifierBudget is the latency above which a classifier call is
	// reported. Zero disables the check. Calls are never cut short.
	ClassifierBudget time.Duration
}

func (c Config) validate() error {
	if c.Window <= 0 {
		return fmt.Errorf("window must be positive, got %d", c.Window)
	}
	if c.Hop <= 0 || c.Hop > c.Window {
		return fmt.Errorf("hop must be in 1..%d, got %d", c.Window, c.Hop)
	}
	if c.ConfidenceThreshold < 0 || c.ConfidenceThreshold >= 1 {
		return fmt.Errorf("confidence threshold must be in [0,1), got %v", c.ConfidenceThreshold)
	}
	if c.PlausibilityG < 0 {
		return fmt.Errorf("plausibility threshold must not be negative, got %v", c.PlausibilityG)
	}
	if c.Labels.Len() < 2 || c.Labels.Idle < 0 || c.Labels.Idle >= c.Labels.Len() {
		return fmt.Errorf("invalid label space %v (idle %d)", c.Labels.Names, c.Labels.Idle)
	}
	return nil
}

// Outcome describes one classification attempt.
type Outcome struct {
	Result   classify.Result
	Decision Decision
	Category string        // label name when accepted
	Sample   uint64        // index of the newest sample in the window
	Latency  time.Duration // classifier call duration
}

// Stats are running totals for diagnostics.
type Stats struct {
	Samples         uint64
	Classifications uint64
	ByReason        [numReasons]uint64
	OverBudget      uint64
	MaxLatency      time.Duration
}

// Accepted returns the number of accepted classifications.
func (s Stats) Accepted() uint64 { return s.ByReason[ReasonAccepted] }

// Pipeline owns the window, scheduler, gates and counters. It is not safe
// for concurrent use; one control loop drives it.
type Pipeline struct {
	cfg        Config
	classifier classify.Classifier
	buf        *ring.Buffer
	hop        *HopScheduler
	gate       DecisionGate
	tally      *Tally
	stats      Stats

	window []imu.Sample
	frame  []float64
}

// New validates cfg against the classifier. A size mismatch means the model
// and the configuration were built for different windows and is fatal.
func New(cfg Config, cl classify.Classifier) (*Pipeline, error) {
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("pipeline config: %w", err)
	}
	if err := classify.Validate(cl, cfg.Window, imu.Channels); err != nil {
		return nil, err
	}
	return &Pipeline{
		cfg:        cfg,
		classifier: cl,
		buf:        ring.New(cfg.Window),
		hop:        NewHopScheduler(cfg.Hop),
		gate: DecisionGate{
			ConfidenceThreshold: cfg.ConfidenceThreshold,
			Labels:              cfg.Labels,
			Plausibility:        NewPlausibilityGate(cfg.PlausibilityG),
		},
		tally:  NewTally(cfg.Labels),
		window: make([]imu.Sample, 0, cfg.Window),
		frame:  make([]float64, 0, cfg.Window*imu.Channels),
	}, nil
}

// Ingest pushes one sample and, when a hop is due on a full window, runs
// the classifier and the decision gate. ok is false when no classification
// happened on this sample.
func (p *Pipeline) Ingest(s imu.Sample) (out Outcome, ok bool) {
	p.buf.Push(s)
	p.hop.Tick()
	p.stats.Samples++

	if !p.hop.Ready(p.buf.Full()) {
		return Outcome{}, false
	}
	p.hop.Consume()

	p.window = p.buf.MaterializeInto(p.window)
	p.frame = ring.Flatten(p.window, p.frame)

	start := time.Now()
	res := p.classifier.Classify(p.frame)
	lat := time.Since(start)
	p.trackLatency(lat)

	dec := p.gate.Decide(res, p.window)
	p.stats.Classifications++
	p.stats.ByReason[dec.Reason]++

	out = Outcome{
		Result:   res,
		Decision: dec,
		Sample:   p.stats.Samples - 1,
		Latency:  lat,
	}
	if dec.Accept {
		p.tally.Record(res.Label)
		out.Category = p.cfg.Labels.Name(res.Label)
	}
	return out, true
}

func (p *Pipeline) trackLatency(lat time.Duration) {
	if lat > p.stats.MaxLatency {
		p.stats.MaxLatency = lat
	}
	if p.cfg.ClassifierBudget > 0 && lat > p.cfg.ClassifierBudget {
		p.stats.OverBudget++
		// logged on the 1st, 2nd, 4th, 8th... slow call
		if n := p.stats.OverBudget; n&(n-1) == 0 {
			log.Printf("pipeline: classifier took %v (budget %v), %d slow calls so far",
				lat, p.cfg.ClassifierBudget, n)
		}
	}
}

// Snapshot returns a copy of the counters.
func (p *Pipeline) Snapshot() Snapshot { return p.tally.Snapshot() }

// Tally exposes the counters.
func (p *Pipeline) Tally() *Tally { return p.tally }

// Stats returns the running diagnostics.
func (p *Pipeline) Stats() Stats { return p.stats }

// Pending returns the hop scheduler's pending sample count.
func (p *Pipeline) Pending() int { return p.hop.Pending() }

// Labels returns the configured label space.
func (p *Pipeline) Labels() classify.Labels { return p.cfg.Labels }
