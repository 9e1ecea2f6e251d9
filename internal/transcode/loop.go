// Package transcode drives a transcoder source one reference interval per
// scheduling cycle.
package transcode

import (
	"context"
	"errors"
	"fmt"
	"image"

	"github.com/rs/zerolog"

	"github.com/bryanchriswhite/addertuner/internal/config"
	"github.com/bryanchriswhite/addertuner/internal/event"
	"github.com/bryanchriswhite/addertuner/internal/lifecycle"
	"github.com/bryanchriswhite/addertuner/internal/logger"
	"github.com/bryanchriswhite/addertuner/internal/pixconv"
	"github.com/bryanchriswhite/addertuner/internal/scheduler"
	"github.com/bryanchriswhite/addertuner/internal/source"
	"github.com/bryanchriswhite/addertuner/internal/workpool"
)

// States reported in scheduler results
const (
	StateIdle        = "idle"
	StateTranscoding = "transcoding"
	StateFailed      = "error"
	StateFinished    = "finished"
)

// Sink receives every batch the source emits
type Sink interface {
	WriteBatches(batches [][]event.Event) error
}

// Loop is the transcode consumption loop. It is not safe for concurrent use;
// the scheduler goroutine is its only caller.
type Loop struct {
	ctrl   *lifecycle.Controller
	conv   pixconv.Converter
	params config.Params
	pools  workpool.Cache

	looping  bool
	finished bool
	lastErr  error
	sink     Sink

	logger *zerolog.Logger
}

// NewLoop creates a loop that restarts clips from the beginning when they end
func NewLoop(ctrl *lifecycle.Controller, conv pixconv.Converter, p config.Params) *Loop {
	if conv == nil {
		conv = pixconv.BGRA{}
	}
	return &Loop{
		ctrl:    ctrl,
		conv:    conv,
		params:  p,
		looping: true,
		logger:  logger.WithComponent("transcode"),
	}
}

// NotifyConfigurationChanged replaces the desired parameters. Drift is
// checked on the next Tick.
func (l *Loop) NotifyConfigurationChanged(p config.Params) {
	l.params = p
}

// Params returns the desired parameters
func (l *Loop) Params() config.Params {
	return l.params
}

// RequestRebuild opens path with the current parameters, bypassing drift
// detection
func (l *Loop) RequestRebuild(ctx context.Context, path string, resumeFrame uint32) error {
	l.finished = false
	l.lastErr = nil
	return l.ctrl.Rebuild(ctx, path, l.params, resumeFrame)
}

// ResetVideo restarts the current path from its first frame
func (l *Loop) ResetVideo(ctx context.Context) error {
	path := l.ctrl.Path()
	if path == "" {
		return fmt.Errorf("no source selected")
	}
	return l.RequestRebuild(ctx, path, 0)
}

// SetLooping chooses between restarting a finished clip and stopping
func (l *Loop) SetLooping(loop bool) {
	l.looping = loop
}

// SetSink attaches an event sink; nil detaches it
func (l *Loop) SetSink(s Sink) {
	l.sink = s
}

// Finished reports whether a non-looping clip has ended
func (l *Loop) Finished() bool {
	return l.finished
}

// Err is the fault that ended a non-looping clip, nil after a clean end
func (l *Loop) Err() error {
	return l.lastErr
}

func (l *Loop) Controller() *lifecycle.Controller {
	return l.ctrl
}

// Cycle implements scheduler.Cycler
func (l *Loop) Cycle(ctx context.Context) scheduler.Result {
	return l.Tick(ctx)
}

// Tick runs one consumption cycle: drift check, in-place updates, one
// interval of work, statistics and the display raster.
func (l *Loop) Tick(ctx context.Context) scheduler.Result {
	active := l.ctrl.Active()
	src, ok := lifecycle.Transcoder(active)
	if !ok {
		return l.result(nil)
	}

	if d := l.ctrl.Detect(l.params); d.Drifted() {
		resume := src.IntervalCount() + src.FrameStart()
		l.logger.Info().
			Str("reason", d.Reason.String()).
			Uint32("resume_frame", resume).
			Msg("Source drifted from parameters, rebuilding")
		if err := l.ctrl.Rebuild(ctx, l.ctrl.Path(), l.params, resume); err != nil {
			// the controller logs and records the failure as the source name
			l.logger.Debug().Err(err).Str("path", l.ctrl.Path()).Msg("Rebuild after drift failed")
		}
		return l.result(nil)
	}

	l.applyInPlace(active, src)

	batches, err := src.Advance(ctx, 1, l.pools.Get(l.params.ThreadCount))
	if err != nil {
		l.handleAdvanceError(ctx, err)
		return l.result(nil)
	}

	ref := src.RefTime()
	l.ctrl.Stats().AddBatches(batches, active.Geometry(), src.TicksPerSecond(), ref)
	l.ctrl.Clock().AddTicks(uint64(ref))
	l.ctrl.Clock().NextFrame()

	if l.sink != nil {
		if err := l.sink.WriteBatches(batches); err != nil {
			l.logger.Error().Err(err).Msg("Failed to write events, detaching sink")
			l.sink = nil
		}
	}

	img, err := l.conv.Convert(src.InstantaneousFrame().Clone())
	if err != nil {
		l.logger.Warn().Err(err).Msg("Failed to convert display buffer")
		return l.result(nil)
	}
	l.ctrl.Publish(img)
	return l.result(img)
}

// applyInPlace pushes the parameters that never require a rebuild onto the
// bound source
func (l *Loop) applyInPlace(active lifecycle.Active, src source.Source) {
	src.SetThresholds(l.params.ThresholdPos, l.params.ThresholdNeg)
	src.SetDeltaTMax(l.params.DeltaTMaxMult * src.RefTime())
	src.SetViewMode(l.params.ViewMode)
	if cam, ok := active.(*lifecycle.EventCamera); ok && cam.Knobs != nil {
		cam.Knobs.Optimize = l.params.Optimize
	}
}

// handleAdvanceError restarts the clip on anything but a source that is
// still opening. Faults restart too; they are logged so corruption does not
// pass silently as a loop.
func (l *Loop) handleAdvanceError(ctx context.Context, err error) {
	if errors.Is(err, source.ErrNotYetOpen) {
		return
	}

	var fault *source.FaultError
	if errors.As(err, &fault) {
		l.logger.Warn().Err(err).Str("path", l.ctrl.Path()).Msg("Source fault, treating as end of clip")
	} else {
		l.logger.Debug().Err(err).Str("path", l.ctrl.Path()).Msg("End of clip")
	}

	if !l.looping {
		l.finished = true
		if fault != nil {
			l.lastErr = err
		}
		if cerr := l.ctrl.Close(); cerr != nil {
			l.logger.Warn().Err(cerr).Msg("Error closing source")
		}
		return
	}
	if err := l.ctrl.Rebuild(ctx, l.ctrl.Path(), l.params, 0); err != nil {
		l.logger.Debug().Err(err).Str("path", l.ctrl.Path()).Msg("Rebuild for next loop failed")
	}
}

func (l *Loop) state() string {
	switch {
	case l.finished:
		return StateFinished
	case l.ctrl.Active() != nil:
		return StateTranscoding
	case l.ctrl.Failed():
		return StateFailed
	default:
		return StateIdle
	}
}

func (l *Loop) result(img *image.RGBA) scheduler.Result {
	return scheduler.Result{
		Frame:      img,
		Stats:      l.ctrl.Stats().Snapshot(),
		SourceName: l.ctrl.SourceName(),
		Generation: l.ctrl.Generation(),
		State:      l.state(),
		Clock:      l.ctrl.Clock().State(),
	}
}
