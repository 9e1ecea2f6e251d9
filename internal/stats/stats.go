// Package stats aggregates event throughput counters for the transcode and
// playback directions.
package stats

import (
	"fmt"

	"github.com/bryanchriswhite/addertuner/internal/event"
	"github.com/dustin/go-humanize"
	"gonum.org/v1/gonum/stat"
)

// DefaultWindow is the number of cycles the smoothed rate is computed over
const DefaultWindow = 30

// Geometry is the pixel-channel extent counters are normalized by
type Geometry struct {
	Width    int
	Height   int
	Channels int
}

// PixelChannels returns width × height × channels
func (g Geometry) PixelChannels() float64 {
	return float64(g.Width) * float64(g.Height) * float64(g.Channels)
}

// Snapshot is a value copy of the counters
type Snapshot struct {
	EventsTotal          uint64  `json:"events_total"`
	EventsPerSecond      float64 `json:"events_per_sec"`
	EventsPPCTotal       float64 `json:"events_ppc_total"`
	EventsPPCPerSecond   float64 `json:"events_ppc_per_sec"`
	EventsPerSecondMean  float64 `json:"events_per_sec_mean"`
	EventsPerSecondStdDv float64 `json:"events_per_sec_stddev"`
}

// String renders the snapshot for logs and the HUD
func (s Snapshot) String() string {
	return fmt.Sprintf("%s events, %s ev/s, %.3f ev/ppc, %.3f ev/ppc/s",
		humanize.Comma(int64(s.EventsTotal)),
		humanize.SIWithDigits(s.EventsPerSecond, 2, ""),
		s.EventsPPCTotal,
		s.EventsPPCPerSecond,
	)
}

// Aggregator holds running throughput counters. EventsTotal only grows until
// Reset. Not safe for concurrent use; it lives on the scheduler goroutine.
type Aggregator struct {
	snap   Snapshot
	window []float64
	size   int
}

// New returns an Aggregator smoothing over window cycles
func New(window int) *Aggregator {
	if window < 1 {
		window = DefaultWindow
	}
	return &Aggregator{size: window}
}

// AddBatches folds the result of one "advance by 1 interval" call into the
// counters. The per-second rate is N × (ticksPerSecond / refTime).
func (a *Aggregator) AddBatches(batches [][]event.Event, g Geometry, ticksPerSecond, refTime uint32) {
	n := event.Count(batches)
	a.snap.EventsTotal += uint64(n)
	if refTime > 0 {
		a.snap.EventsPerSecond = float64(n) * (float64(ticksPerSecond) / float64(refTime))
	} else {
		a.snap.EventsPerSecond = 0
	}
	a.normalize(g)
	a.observe(a.snap.EventsPerSecond)
}

// AddEvents counts decoded events without touching the rates; Recompute
// refreshes them once per cycle.
func (a *Aggregator) AddEvents(n uint64) {
	a.snap.EventsTotal += n
}

// Recompute derives the rates from the elapsed event time ticks / tps
func (a *Aggregator) Recompute(g Geometry, ticks uint64, ticksPerSecond uint32) {
	seconds := 0.0
	if ticksPerSecond > 0 {
		seconds = float64(ticks) / float64(ticksPerSecond)
	}
	if seconds > 0 {
		a.snap.EventsPerSecond = float64(a.snap.EventsTotal) / seconds
	} else {
		a.snap.EventsPerSecond = 0
	}
	a.normalize(g)
	a.observe(a.snap.EventsPerSecond)
}

func (a *Aggregator) normalize(g Geometry) {
	ppc := g.PixelChannels()
	if ppc <= 0 {
		a.snap.EventsPPCTotal = 0
		a.snap.EventsPPCPerSecond = 0
		return
	}
	a.snap.EventsPPCTotal = float64(a.snap.EventsTotal) / ppc
	a.snap.EventsPPCPerSecond = a.snap.EventsPerSecond / ppc
}

func (a *Aggregator) observe(eps float64) {
	if a.size == 0 {
		a.size = DefaultWindow
	}
	if len(a.window) == a.size {
		copy(a.window, a.window[1:])
		a.window = a.window[:a.size-1]
	}
	a.window = append(a.window, eps)
	if len(a.window) < 2 {
		a.snap.EventsPerSecondMean = eps
		a.snap.EventsPerSecondStdDv = 0
		return
	}
	a.snap.EventsPerSecondMean, a.snap.EventsPerSecondStdDv = stat.MeanStdDev(a.window, nil)
}

// Reset zeroes every counter and the smoothing window
func (a *Aggregator) Reset() {
	a.snap = Snapshot{}
	a.window = a.window[:0]
}

// Snapshot returns a copy of the counters
func (a *Aggregator) Snapshot() Snapshot {
	return a.snap
}

// EventsTotal is the cumulative event count since the last Reset
func (a *Aggregator) EventsTotal() uint64 {
	return a.snap.EventsTotal
}
