// Package ring holds the fixed-capacity circular sample store shared by the
// classification and capture pipelines.
package ring

import "github.com/relabs-tech/stroke_classifier/internal/imu"

// Buffer keeps the most recent Cap() samples. The write cursor always points
// at the next slot to overwrite.
type Buffer struct {
	slots  []imu.Sample
	next   int
	filled int
}

// New returns an empty buffer of capacity w. w is fixed at construction from
// the classifier window length, so a non-positive value is a programming error.
func New(w int) *Buffer {
	if w <= 0 {
		panic("ring: capacity must be positive")
	}
	return &Buffer{slots: make([]imu.Sample, w)}
}

// Push overwrites the oldest slot and advances the cursor.
func (b *Buffer) Push(s imu.Sample) {
	b.slots[b.next] = s
	b.next++
	if b.next == len(b.slots) {
		b.next = 0
	}
	if b.filled < len(b.slots) {
		b.filled++
	}
}

// Full reports whether Cap() samples have ever been pushed.
func (b *Buffer) Full() bool { return b.filled == len(b.slots) }

// Len returns the number of valid samples (saturates at Cap()).
func (b *Buffer) Len() int { return b.filled }

// Cap returns the window length W.
func (b *Buffer) Cap() int { return len(b.slots) }

// Reset discards the contents.
func (b *Buffer) Reset() {
	b.next = 0
	b.filled = 0
}

// Materialize returns a copy of the stored samples, oldest first.
func (b *Buffer) Materialize() []imu.Sample {
	return b.MaterializeInto(nil)
}

// MaterializeInto is Materialize writing into dst's backing array when it is
// large enough.
func (b *Buffer) MaterializeInto(dst []imu.Sample) []imu.Sample {
	return b.lastInto(dst, b.filled)
}

// Last returns the n most recent samples, oldest first. n is clamped to Len().
func (b *Buffer) Last(n int) []imu.Sample {
	return b.lastInto(nil, n)
}

func (b *Buffer) lastInto(dst []imu.Sample, n int) []imu.Sample {
	if n > b.filled {
		n = b.filled
	}
	if n < 0 {
		n = 0
	}
	if cap(dst) < n {
		dst = make([]imu.Sample, n)
	}
	dst = dst[:n]

	// oldest of the requested n sits n slots behind the cursor
	start := b.next - n
	if start < 0 {
		start += len(b.slots)
	}
	k := copy(dst, b.slots[start:min(start+n, len(b.slots))])
	copy(dst[k:], b.slots[:n-k])
	return dst
}

// Flatten lays a window out as a row-major W×C frame, reusing dst when it is
// large enough.
func Flatten(window []imu.Sample, dst []float64) []float64 {
	n := len(window) * imu.Channels
	if cap(dst) < n {
		dst = make([]float64, n)
	}
	dst = dst[:n]
	for i, s := range window {
		copy(dst[i*imu.Channels:], s[:])
	}
	return dst
}
