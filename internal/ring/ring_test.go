package ring

import (
	"testing"

	"github.com/relabs-tech/stroke_classifier/internal/imu"
)

func sampleN(n int) imu.Sample {
	v := float64(n)
	return imu.NewSample(v, v, v, -v, -v, -v)
}

func TestBuffer_Full(t *testing.T) {
	b := New(4)
	for i := 0; i < 3; i++ {
		b.Push(sampleN(i))
		if b.Full() {
			t.Fatalf("buffer reported full after %d pushes", i+1)
		}
	}
	b.Push(sampleN(3))
	if !b.Full() {
		t.Fatalf("expected full after 4 pushes")
	}
	b.Push(sampleN(4))
	if !b.Full() || b.Len() != 4 {
		t.Fatalf("expected full with len 4 after wrap, got full=%v len=%d", b.Full(), b.Len())
	}
}

func TestBuffer_MaterializeOldestFirst(t *testing.T) {
	const w = 5
	b := New(w)
	for total := 1; total <= 23; total++ {
		b.Push(sampleN(total))
		got := b.Materialize()
		wantLen := min(total, w)
		if len(got) != wantLen {
			t.Fatalf("after %d pushes: expected %d samples, got %d", total, wantLen, len(got))
		}
		first := total - wantLen + 1
		for i, s := range got {
			if s[imu.AX] != float64(first+i) {
				t.Fatalf("after %d pushes: slot %d = %v, want %d", total, i, s[imu.AX], first+i)
			}
		}
	}
}

func TestBuffer_MaterializeDoesNotMutate(t *testing.T) {
	b := New(3)
	for i := 0; i < 4; i++ {
		b.Push(sampleN(i))
	}
	a := b.Materialize()
	a[0][imu.AX] = 99
	c := b.Materialize()
	if c[0][imu.AX] != 1 {
		t.Fatalf("materialized copy aliases buffer storage: got %v", c[0][imu.AX])
	}
	if b.Len() != 3 {
		t.Fatalf("materialize changed length to %d", b.Len())
	}
}

func TestBuffer_MaterializeIntoReuses(t *testing.T) {
	b := New(3)
	for i := 0; i < 7; i++ {
		b.Push(sampleN(i))
	}
	dst := make([]imu.Sample, 0, 3)
	got := b.MaterializeInto(dst)
	if &got[0] != &dst[:1][0] {
		t.Fatalf("expected dst backing array to be reused")
	}
	if got[0][imu.AX] != 4 || got[2][imu.AX] != 6 {
		t.Fatalf("unexpected window %v", got)
	}
}

func TestBuffer_Last(t *testing.T) {
	b := New(4)
	for i := 0; i < 6; i++ {
		b.Push(sampleN(i))
	}
	got := b.Last(2)
	if len(got) != 2 || got[0][imu.AX] != 4 || got[1][imu.AX] != 5 {
		t.Fatalf("unexpected last 2: %v", got)
	}
	if got := b.Last(10); len(got) != 4 {
		t.Fatalf("expected Last to clamp to 4, got %d", len(got))
	}
}

func TestBuffer_Reset(t *testing.T) {
	b := New(2)
	b.Push(sampleN(1))
	b.Push(sampleN(2))
	b.Reset()
	if b.Full() || b.Len() != 0 || len(b.Materialize()) != 0 {
		t.Fatalf("reset did not clear buffer")
	}
	b.Push(sampleN(3))
	if got := b.Materialize(); len(got) != 1 || got[0][imu.AX] != 3 {
		t.Fatalf("unexpected contents after reset: %v", got)
	}
}

func TestFlatten(t *testing.T) {
	win := []imu.Sample{sampleN(1), sampleN(2)}
	frame := Flatten(win, nil)
	if len(frame) != 2*imu.Channels {
		t.Fatalf("expected %d values, got %d", 2*imu.Channels, len(frame))
	}
	if frame[0] != 1 || frame[imu.GZ] != -1 || frame[imu.Channels] != 2 {
		t.Fatalf("unexpected frame layout: %v", frame)
	}
}
