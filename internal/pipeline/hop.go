package pipeline

// HopScheduler counts samples since the last classification attempt. It is
// independent of the ring buffer's wraparound.
type HopScheduler struct {
	hop     int
	pending int
}

// NewHopScheduler returns a scheduler that fires every hop samples.
func NewHopScheduler(hop int) *HopScheduler {
	return &HopScheduler{hop: hop}
}

// Tick records one accepted sample.
func (h *HopScheduler) Tick() { h.pending++ }

// Ready reports whether a classification is due: at least one hop of
// samples is pending and the window is full. Ticks counted while the window
// fills are caught up one per sample once it is full, so with W much larger
// than hop the first W/hop classifications see nearly the same window and
// one early stroke can be counted several times.
func (h *HopScheduler) Ready(full bool) bool {
	return full && h.pending >= h.hop
}

// Consume subtracts exactly one hop. Leftover ticks carry over so a late
// caller catches up instead of drifting.
func (h *HopScheduler) Consume() { h.pending -= h.hop }

// Pending returns the number of samples not yet covered by a hop.
func (h *HopScheduler) Pending() int { return h.pending }

// Hop returns the hop size.
func (h *HopScheduler) Hop() int { return h.hop }
