// Package sourcetest provides a scripted Source for exercising consumers
// without a video backend.
package sourcetest

import (
	"context"

	"github.com/bryanchriswhite/addertuner/internal/config"
	"github.com/bryanchriswhite/addertuner/internal/event"
	"github.com/bryanchriswhite/addertuner/internal/frame"
	"github.com/bryanchriswhite/addertuner/internal/reconstruct"
	"github.com/bryanchriswhite/addertuner/internal/source"
	"github.com/bryanchriswhite/addertuner/internal/workpool"
)

// Step is the outcome of one Advance call
type Step struct {
	Batches [][]event.Event
	Err     error
}

// Fake replays Steps in order and writes every emitted event into its
// instantaneous frame. Once the script runs out Advance reports end of stream.
type Fake struct {
	W, H, C    int
	ScaleValue float64
	Ref        uint32
	TPS        uint32
	DTMax      uint32
	Start      uint32
	Steps      []Step

	Intervals    uint32
	AdvanceCalls int
	Closed       bool
	Pos, Neg     uint8
	Mode         config.ViewMode

	acc *reconstruct.Accumulator
}

// New returns a fake w×h×c source running at tps ticks per second with the
// given reference interval
func New(w, h, c int, ref, tps uint32, steps ...Step) *Fake {
	return &Fake{
		W: w, H: h, C: c,
		ScaleValue: 1,
		Ref:        ref,
		TPS:        tps,
		DTMax:      ref,
		Steps:      steps,
		acc:        reconstruct.NewAccumulator(w, h, c, ref),
	}
}

func (f *Fake) Advance(ctx context.Context, intervals int, pool *workpool.Pool) ([][]event.Event, error) {
	if f.AdvanceCalls >= len(f.Steps) {
		return nil, source.ErrEndOfStream
	}
	step := f.Steps[f.AdvanceCalls]
	f.AdvanceCalls++
	if step.Err != nil {
		return nil, step.Err
	}
	for _, b := range step.Batches {
		for _, ev := range b {
			f.acc.Apply(ev)
		}
	}
	f.Intervals += uint32(intervals)
	return step.Batches, nil
}

func (f *Fake) Width() int { return f.W }
func (f *Fake) Height() int { return f.H }
func (f *Fake) Channels() int { return f.C }
func (f *Fake) Scale() float64 { return f.ScaleValue }
func (f *Fake) RefTime() uint32 { return f.Ref }
func (f *Fake) TicksPerSecond() uint32 { return f.TPS }
func (f *Fake) DeltaTMax() uint32 { return f.DTMax }
func (f *Fake) IntervalCount() uint32 { return f.Intervals }
func (f *Fake) FrameStart() uint32 { return f.Start }

func (f *Fake) SetThresholds(pos, neg uint8) { f.Pos, f.Neg = pos, neg }
func (f *Fake) SetDeltaTMax(ticks uint32) { f.DTMax = ticks }
func (f *Fake) SetViewMode(m config.ViewMode) { f.Mode = m }

func (f *Fake) InstantaneousFrame() *frame.Buffer { return f.acc.Buffer() }

func (f *Fake) Close() error {
	f.Closed = true
	return nil
}

var _ source.Source = (*Fake)(nil)
