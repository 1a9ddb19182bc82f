package capture

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/relabs-tech/stroke_classifier/internal/imu"
)

var t0 = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

func quiet(i int) imu.Sample { return imu.NewSample(0, 0, 1, float64(i), 0, 0) }
func hit(i int) imu.Sample   { return imu.NewSample(3, 0, 1, float64(i), 0, 0) }

func newTestCapturer(t *testing.T, pre, post int, cooldown time.Duration) *Capturer {
	t.Helper()
	c, err := NewCapturer(Config{
		PreSamples:  pre,
		PostSamples: post,
		TriggerG:    2.5,
		Cooldown:    cooldown,
		Label:       "FHsmash",
		Interval:    20 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("NewCapturer: %v", err)
	}
	return c
}

// feed pushes samples 20ms apart starting at start and collects records.
func feed(c *Capturer, start time.Time, samples []imu.Sample) []Record {
	var recs []Record
	for i, s := range samples {
		if rec, ok := c.Push(start.Add(time.Duration(i)*20*time.Millisecond), s); ok {
			recs = append(recs, rec)
		}
	}
	return recs
}

func TestCapturer_RecordHoldsPreAndPostOldestFirst(t *testing.T) {
	c := newTestCapturer(t, 3, 4, time.Second)

	var in []imu.Sample
	for i := 0; i < 5; i++ {
		in = append(in, quiet(i))
	}
	in = append(in, hit(5))
	for i := 6; i < 12; i++ {
		in = append(in, quiet(i))
	}

	recs := feed(c, t0, in)
	if len(recs) != 1 {
		t.Fatalf("got %d records, want 1", len(recs))
	}
	rec := recs[0]
	if len(rec.Samples) != 7 || rec.Trigger != 3 {
		t.Fatalf("got %d samples trigger at %d, want 7 and 3", len(rec.Samples), rec.Trigger)
	}
	// gx carries the input index: pre 2,3,4 then trigger 5 and post 6,7,8
	for i, s := range rec.Samples {
		if want := float64(i + 2); s[imu.GX] != want {
			t.Errorf("sample %d: got index %v, want %v", i, s[imu.GX], want)
		}
	}
	if rec.Seq != 1 || rec.Label != "FHsmash" {
		t.Errorf("unexpected seq/label %d/%q", rec.Seq, rec.Label)
	}
}

func TestCapturer_CooldownSuppressesRetrigger(t *testing.T) {
	c := newTestCapturer(t, 0, 2, 200*time.Millisecond)

	// hits at 0, 40, 80 and 200 ms; the record from the first hit ends at 20 ms
	in := []imu.Sample{hit(0), quiet(1), hit(2), quiet(3), hit(4), quiet(5), quiet(6), quiet(7), quiet(8), quiet(9), hit(10), quiet(11)}
	recs := feed(c, t0, in)

	if len(recs) != 2 {
		t.Fatalf("got %d records, want 2", len(recs))
	}
	if recs[1].Samples[0][imu.GX] != 10 {
		t.Fatalf("second record starts at %v, want 10", recs[1].Samples[0][imu.GX])
	}
	if recs[1].Seq != 2 {
		t.Fatalf("second record seq %d", recs[1].Seq)
	}
}

func TestCapturer_TriggerIsStrict(t *testing.T) {
	c := newTestCapturer(t, 0, 1, 0)
	if _, ok := c.Push(t0, imu.NewSample(2.5, 0, 0, 0, 0, 0)); ok {
		t.Fatalf("|a| equal to the trigger must not fire")
	}
	if _, ok := c.Push(t0, imu.NewSample(2.51, 0, 0, 0, 0, 0)); !ok {
		t.Fatalf("|a| above the trigger with PostSamples=1 must emit at once")
	}
}

func TestNewCapturer_InvalidConfig(t *testing.T) {
	if _, err := NewCapturer(Config{PostSamples: 0, TriggerG: 2, Interval: time.Millisecond}); err == nil {
		t.Fatalf("expected error for zero post samples")
	}
	if _, err := NewCapturer(Config{PostSamples: 1, TriggerG: 0, Interval: time.Millisecond}); err == nil {
		t.Fatalf("expected error for zero trigger")
	}
}

func TestRecord_EncodeDecode(t *testing.T) {
	rec := Record{
		Seq:      7,
		Label:    "BHpush",
		Trigger:  1,
		Interval: 20 * time.Millisecond,
		Samples:  []imu.Sample{quiet(0), hit(1), quiet(2)},
	}
	var buf bytes.Buffer
	if err := rec.Encode(&buf); err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if lines[0] != "BEGIN 7 BHpush" || lines[len(lines)-1] != "END 7" {
		t.Fatalf("bad framing: %q", lines)
	}
	if lines[1] != "Timestamp,AccelX,AccelY,AccelZ,GyroX,GyroY,GyroZ" {
		t.Fatalf("bad header %q", lines[1])
	}
	if !strings.HasPrefix(lines[2], "-20,") || !strings.HasPrefix(lines[3], "0,") {
		t.Fatalf("timestamps not relative to trigger: %q", lines[2:4])
	}

	got, err := DecodeRecord(buf.Bytes())
	if err != nil {
		t.Fatalf("DecodeRecord: %v", err)
	}
	if got.Seq != 7 || got.Label != "BHpush" || len(got.Samples) != 3 || got.Samples[1] != hit(1) {
		t.Fatalf("unexpected decoded record %+v", got)
	}
}

func TestDecodeRecord_MismatchedTrailer(t *testing.T) {
	payload := "BEGIN 1 x\nTimestamp,AccelX,AccelY,AccelZ,GyroX,GyroY,GyroZ\n0,0,0,1,0,0,0\nEND 2\n"
	if _, err := DecodeRecord([]byte(payload)); err == nil {
		t.Fatalf("expected error for mismatched END")
	}
}

type nopCloser struct{ bytes.Buffer }

func (n *nopCloser) Close() error { return nil }

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("port gone") }
func (failingWriter) Close() error              { return nil }

func TestWriterRelay_Send(t *testing.T) {
	var sink nopCloser
	r := NewWriterRelay(&sink, "test")
	rec := Record{Seq: 1, Label: "FHloop", Interval: 20 * time.Millisecond, Samples: []imu.Sample{quiet(0)}}
	if err := r.Send(rec); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if !strings.HasPrefix(sink.String(), "BEGIN 1 FHloop\n") {
		t.Fatalf("unexpected output %q", sink.String())
	}

	if err := NewWriterRelay(failingWriter{}, "broken").Send(rec); err == nil {
		t.Fatalf("expected write error")
	}
}
