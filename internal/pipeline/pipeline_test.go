package pipeline

import (
	"errors"
	"testing"

	"github.com/relabs-tech/stroke_classifier/internal/classify"
	"github.com/relabs-tech/stroke_classifier/internal/imu"
)

func testLabels(t *testing.T) classify.Labels {
	t.Helper()
	l, err := classify.ParseLabels("BHdrive,BHpush,FHdrive,FHloop,FHsmash,idle", "idle")
	if err != nil {
		t.Fatalf("ParseLabels: %v", err)
	}
	return l
}

// fakeClassifier returns a fixed result and counts calls.
type fakeClassifier struct {
	size   int
	result classify.Result
	calls  int
	frames [][]float64
}

func (f *fakeClassifier) InputSize() int { return f.size }

func (f *fakeClassifier) Classify(frame []float64) classify.Result {
	f.calls++
	f.frames = append(f.frames, append([]float64(nil), frame...))
	return f.result
}

func newTestPipeline(t *testing.T, w, hop int, res classify.Result) (*Pipeline, *fakeClassifier) {
	t.Helper()
	fc := &fakeClassifier{size: w * imu.Channels, result: res}
	p, err := New(Config{
		Window:              w,
		Hop:                 hop,
		ConfidenceThreshold: 0.50,
		PlausibilityG:       2.0,
		Labels:              testLabels(t),
	}, fc)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return p, fc
}

var (
	still  = imu.NewSample(0, 0, 1, 0, 0, 0)   // 1g
	impact = imu.NewSample(2.5, 0, 1, 0, 0, 0) // ~2.7g
)

func TestHopScheduler_ConsumeSubtracts(t *testing.T) {
	h := NewHopScheduler(13)
	for i := 0; i < 30; i++ {
		h.Tick()
	}
	if !h.Ready(true) {
		t.Fatalf("expected ready with 30 pending")
	}
	if h.Ready(false) {
		t.Fatalf("must not be ready before the window is full")
	}
	h.Consume()
	if h.Pending() != 17 {
		t.Fatalf("expected pending=17 after consume, got %d", h.Pending())
	}
	h.Consume()
	h.Consume()
	if h.Pending() != -9 {
		t.Fatalf("consume must not clamp, expected -9, got %d", h.Pending())
	}
}

func TestHopScheduler_CatchUpAfterLongFill(t *testing.T) {
	const window = 100
	h := NewHopScheduler(13)
	var due []int
	for n := 1; n <= 130; n++ {
		h.Tick()
		if h.Ready(n >= window) {
			h.Consume()
			due = append(due, n)
		}
	}
	want := []int{100, 101, 102, 103, 104, 105, 106, 107, 117, 130}
	if len(due) != len(want) {
		t.Fatalf("due at %v, want %v", due, want)
	}
	for i := range want {
		if due[i] != want[i] {
			t.Fatalf("due at %v, want %v", due, want)
		}
	}
}

func TestPipeline_NoClassificationBeforeFull(t *testing.T) {
	p, fc := newTestPipeline(t, 25, 13, classify.Result{Label: 4, Confidence: 0.9})
	for i := 0; i < 24; i++ {
		if _, ok := p.Ingest(impact); ok {
			t.Fatalf("classification attempted after %d samples", i+1)
		}
	}
	if fc.calls != 0 {
		t.Fatalf("classifier called %d times before the window filled", fc.calls)
	}
	if _, ok := p.Ingest(impact); !ok {
		t.Fatalf("expected classification once the window is full and a hop is pending")
	}
	if len(fc.frames[0]) != 25*imu.Channels {
		t.Fatalf("frame length %d", len(fc.frames[0]))
	}
}

func TestPipeline_HopCadence(t *testing.T) {
	const w, hop = 25, 13
	p, fc := newTestPipeline(t, w, hop, classify.Failure)
	const ticks = 1000
	for i := 0; i < ticks; i++ {
		p.Ingest(still)
	}
	want := ticks / hop
	if fc.calls < want-1 || fc.calls > want+1 {
		t.Fatalf("expected %d±1 classifications over %d ticks, got %d", want, ticks, fc.calls)
	}
	if got := p.Stats().Classifications; got != uint64(fc.calls) {
		t.Fatalf("stats classifications %d != calls %d", got, fc.calls)
	}
}

func TestPipeline_FrameIsOldestFirst(t *testing.T) {
	const w = 4
	p, fc := newTestPipeline(t, w, 2, classify.Failure)
	for i := 1; i <= 6; i++ {
		p.Ingest(imu.NewSample(float64(i), 0, 0, 0, 0, 0))
	}
	last := fc.frames[len(fc.frames)-1]
	for i := 0; i < w; i++ {
		if got := last[i*imu.Channels+imu.AX]; got != float64(i+3) {
			t.Fatalf("frame row %d ax=%v, want %d", i, got, i+3)
		}
	}
}

func TestDecisionGate_Conjunctive(t *testing.T) {
	g := DecisionGate{
		ConfidenceThreshold: 0.5,
		Labels:              testLabels(t),
		Plausibility:        NewPlausibilityGate(2.0),
	}
	hot := []imu.Sample{still, impact, still}
	cold := []imu.Sample{still, still, still}

	cases := []struct {
		name   string
		res    classify.Result
		window []imu.Sample
		want   Reason
	}{
		{"all pass", classify.Result{Label: 4, Confidence: 0.9}, hot, ReasonAccepted},
		{"confidence ok, implausible", classify.Result{Label: 4, Confidence: 0.9}, cold, ReasonImplausible},
		{"plausible, low confidence", classify.Result{Label: 4, Confidence: 0.3}, hot, ReasonLowConfidence},
		{"confidence equal to threshold", classify.Result{Label: 4, Confidence: 0.5}, hot, ReasonLowConfidence},
		{"idle label", classify.Result{Label: 5, Confidence: 0.99}, hot, ReasonIdleLabel},
		{"failure sentinel", classify.Failure, hot, ReasonClassifierFailure},
		{"out of range label", classify.Result{Label: 9, Confidence: 0.9}, hot, ReasonUnknownLabel},
	}
	for _, c := range cases {
		d := g.Decide(c.res, c.window)
		if d.Reason != c.want {
			t.Errorf("%s: reason=%v, want %v", c.name, d.Reason, c.want)
		}
		if d.Accept != (c.want == ReasonAccepted) {
			t.Errorf("%s: accept=%v", c.name, d.Accept)
		}
	}
}

func TestPlausibilityGate_StrictlyAbove(t *testing.T) {
	g := NewPlausibilityGate(2.0)
	exact := imu.NewSample(2, 0, 0, 0, 0, 0)
	if g.Pass([]imu.Sample{exact}) {
		t.Fatalf("|a| equal to the threshold must not pass")
	}
	if !g.Pass([]imu.Sample{still, imu.NewSample(0, 2.01, 0, 0, 0, 0)}) {
		t.Fatalf("expected pass above threshold")
	}
}

// W=25, hop=13, threshold 0.50, 2g: a confident non-idle result on a window
// that never exceeds 2g is rejected and nothing is counted.
func TestPipeline_ImplausibleWindowRejected(t *testing.T) {
	p, fc := newTestPipeline(t, 25, 13, classify.Result{Label: 4, Confidence: 0.9})
	var outcomes []Outcome
	for i := 0; i < 25+13; i++ {
		if out, ok := p.Ingest(imu.NewSample(1.2, 0.5, 1, 0, 0, 0)); ok {
			outcomes = append(outcomes, out)
		}
	}
	if fc.calls == 0 || len(outcomes) != fc.calls {
		t.Fatalf("expected classifications to run, got %d", fc.calls)
	}
	for _, out := range outcomes {
		if out.Decision.Accept || out.Decision.Reason != ReasonImplausible {
			t.Fatalf("expected implausible rejection, got %+v", out.Decision)
		}
	}
	if p.Snapshot().Total != 0 {
		t.Fatalf("no stroke may be counted, total=%d", p.Snapshot().Total)
	}
}

func TestPipeline_AcceptIncrementsOnlyCategory(t *testing.T) {
	l := testLabels(t)
	p, _ := newTestPipeline(t, 25, 13, classify.Result{Label: 4, Confidence: 0.9})
	for i := 0; i < 24; i++ {
		p.Ingest(still)
	}
	before := p.Snapshot()
	out, ok := p.Ingest(impact)
	if !ok || !out.Decision.Accept {
		t.Fatalf("expected acceptance, got ok=%v %+v", ok, out.Decision)
	}
	if out.Category != "FHsmash" {
		t.Fatalf("category=%q", out.Category)
	}
	after := p.Snapshot()
	if after.Total != before.Total+1 {
		t.Fatalf("total %d -> %d", before.Total, after.Total)
	}
	for _, name := range l.Categories() {
		want := before.Get(name)
		if name == "FHsmash" {
			want++
		}
		if after.Get(name) != want {
			t.Errorf("%s: count %d, want %d", name, after.Get(name), want)
		}
	}
	if p.Tally().Count(l.Idle) != 0 {
		t.Fatalf("idle counter must stay zero")
	}
}

func TestPipeline_ClassifierFailureIsReject(t *testing.T) {
	p, fc := newTestPipeline(t, 10, 5, classify.Failure)
	for i := 0; i < 40; i++ {
		p.Ingest(impact)
	}
	if fc.calls == 0 {
		t.Fatalf("classifier never called")
	}
	st := p.Stats()
	if st.ByReason[ReasonClassifierFailure] != uint64(fc.calls) || st.Accepted() != 0 {
		t.Fatalf("unexpected stats %+v", st)
	}
	if p.Snapshot().Total != 0 {
		t.Fatalf("failures must not count")
	}
}

func TestNew_ConfigMismatch(t *testing.T) {
	fc := &fakeClassifier{size: 24 * imu.Channels}
	_, err := New(Config{
		Window:              25,
		Hop:                 13,
		ConfidenceThreshold: 0.5,
		PlausibilityG:       2,
		Labels:              testLabels(t),
	}, fc)
	if !errors.Is(err, classify.ErrInputSizeMismatch) {
		t.Fatalf("expected ErrInputSizeMismatch, got %v", err)
	}
}

func TestNew_InvalidConfig(t *testing.T) {
	base := Config{Window: 25, Hop: 13, ConfidenceThreshold: 0.5, PlausibilityG: 2, Labels: testLabels(t)}
	bad := map[string]func(c *Config){
		"zero hop":     func(c *Config) { c.Hop = 0 },
		"hop > window": func(c *Config) { c.Hop = 26 },
		"threshold 1":  func(c *Config) { c.ConfidenceThreshold = 1 },
		"negative g":   func(c *Config) { c.PlausibilityG = -1 },
		"no labels":    func(c *Config) { c.Labels = classify.Labels{} },
		"zero window":  func(c *Config) { c.Window = 0 },
	}
	for name, mutate := range bad {
		c := base
		mutate(&c)
		fc := &fakeClassifier{size: c.Window * imu.Channels}
		if _, err := New(c, fc); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}
