// Package capture is the data-collection producer: it watches the sample
// stream for impacts and relays the samples around each one as a labelled
// record, independent of the classification pipeline.
package capture

import (
	"fmt"
	"time"

	"github.com/relabs-tech/stroke_classifier/internal/imu"
	"github.com/relabs-tech/stroke_classifier/internal/ring"
)

// Config sets the record geometry and the trigger.
type Config struct {
	PreSamples  int           // samples kept from before the trigger
	PostSamples int           // samples collected from the trigger on, trigger included
	TriggerG    float64       // |a| strictly above this starts a record
	Cooldown    time.Duration // minimum time between two triggers
	Label       string        // written into every record header
	Interval    time.Duration // sample period, for record timestamps
}

func (c Config) validate() error {
	if c.PreSamples < 0 {
		return fmt.Errorf("pre samples must not be negative, got %d", c.PreSamples)
	}
	if c.PostSamples <= 0 {
		return fmt.Errorf("post samples must be positive, got %d", c.PostSamples)
	}
	if c.TriggerG <= 0 {
		return fmt.Errorf("trigger threshold must be positive, got %v", c.TriggerG)
	}
	if c.Interval <= 0 {
		return fmt.Errorf("sample interval must be positive, got %v", c.Interval)
	}
	return nil
}

// Capturer is a trigger-and-capture state machine fed one sample at a time.
// Not safe for concurrent use.
type Capturer struct {
	cfg         Config
	thresholdSq float64

	pre  *ring.Buffer // nil when PreSamples is 0
	post []imu.Sample
	head []imu.Sample // pre-trigger samples of the record in progress

	collecting  bool
	fired       bool
	lastTrigger time.Time
	triggerAt   time.Time
	seq         uint64
}

// NewCapturer validates cfg and returns an armed capturer.
func NewCapturer(cfg Config) (*Capturer, error) {
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("capture config: %w", err)
	}
	c := &Capturer{
		cfg:         cfg,
		thresholdSq: cfg.TriggerG * cfg.TriggerG,
		post:        make([]imu.Sample, 0, cfg.PostSamples),
	}
	if cfg.PreSamples > 0 {
		c.pre = ring.New(cfg.PreSamples)
	}
	return c, nil
}

// Push feeds one sample taken at now. It returns a record once the last
// post-trigger sample has arrived.
func (c *Capturer) Push(now time.Time, s imu.Sample) (Record, bool) {
	if c.collecting {
		c.post = append(c.post, s)
		if len(c.post) < c.cfg.PostSamples {
			return Record{}, false
		}
		return c.finish(), true
	}

	if c.triggered(now, s) {
		c.collecting = true
		c.fired = true
		c.lastTrigger = now
		c.triggerAt = now
		c.head = c.head[:0]
		if c.pre != nil {
			c.head = c.pre.MaterializeInto(c.head)
			c.pre.Reset()
		}
		c.post = append(c.post[:0], s)
		if len(c.post) >= c.cfg.PostSamples {
			return c.finish(), true
		}
		return Record{}, false
	}

	if c.pre != nil {
		c.pre.Push(s)
	}
	return Record{}, false
}

func (c *Capturer) triggered(now time.Time, s imu.Sample) bool {
	if s.AccelNormSq() <= c.thresholdSq {
		return false
	}
	return !c.fired || now.Sub(c.lastTrigger) >= c.cfg.Cooldown
}

func (c *Capturer) finish() Record {
	c.seq++
	samples := make([]imu.Sample, 0, len(c.head)+len(c.post))
	samples = append(samples, c.head...)
	samples = append(samples, c.post...)
	c.collecting = false
	c.post = c.post[:0]
	return Record{
		Seq:       c.seq,
		Label:     c.cfg.Label,
		TriggerAt: c.triggerAt,
		Trigger:   len(c.head),
		Interval:  c.cfg.Interval,
		Samples:   samples,
	}
}

// Collecting reports whether a record is in progress.
func (c *Capturer) Collecting() bool { return c.collecting }

// Seq returns the sequence number of the last emitted record.
func (c *Capturer) Seq() uint64 { return c.seq }
