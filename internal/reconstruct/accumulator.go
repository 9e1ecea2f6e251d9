// Package reconstruct turns decoded events back into raster frames. The
// Accumulator writes every event straight into a single buffer; the Framer
// holds whole frames back until every chunk of the image has information.
package reconstruct

import (
	"github.com/bryanchriswhite/addertuner/internal/event"
	"github.com/bryanchriswhite/addertuner/internal/frame"
)

// Accumulator maintains the instantaneous frame for the fast policy
type Accumulator struct {
	buf      *frame.Buffer
	ref      uint32
	times    []uint64
	frontier uint64
}

// NewAccumulator returns an accumulator over a zeroed w×h×c buffer.
// refInterval scales event intensities to one reference interval.
func NewAccumulator(width, height, channels int, refInterval uint32) *Accumulator {
	buf := frame.New(width, height, channels)
	return &Accumulator{
		buf:   buf,
		ref:   refInterval,
		times: make([]uint64, buf.Len()),
	}
}

// Apply advances the addressed pixel's event time and writes the event's
// intensity into the buffer. It reports whether the buffer changed; control
// markers and out-of-range coordinates leave it untouched.
func (a *Accumulator) Apply(ev event.Event) bool {
	x, y, c := int(ev.X), int(ev.Y), int(ev.C)
	if !a.buf.Contains(x, y, c) {
		return false
	}
	idx := a.buf.Index(x, y, c)
	a.times[idx] += uint64(ev.DeltaT)
	if a.times[idx] > a.frontier {
		a.frontier = a.times[idx]
	}

	v, ok := ev.Intensity(a.ref)
	if !ok {
		return false
	}
	a.buf.Pix[idx] = event.ToByte(v)
	return true
}

// Frontier is the largest per-pixel event time seen so far. It serves as the
// running tick counter for the fast policy.
func (a *Accumulator) Frontier() uint64 {
	return a.frontier
}

// Buffer returns the live buffer; callers that hand it off must Clone it
func (a *Accumulator) Buffer() *frame.Buffer {
	return a.buf
}

// Reset zeroes event times. The buffer keeps its last values so a restart
// does not flash black.
func (a *Accumulator) Reset() {
	for i := range a.times {
		a.times[i] = 0
	}
	a.frontier = 0
}
