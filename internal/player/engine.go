// Package player reconstructs raster frames from an encoded event stream,
// one frame per scheduling cycle.
package player

import (
	"context"
	"errors"
	"fmt"
	"image"

	"github.com/rs/zerolog"

	"github.com/bryanchriswhite/addertuner/internal/codec"
	"github.com/bryanchriswhite/addertuner/internal/config"
	"github.com/bryanchriswhite/addertuner/internal/frame"
	"github.com/bryanchriswhite/addertuner/internal/lifecycle"
	"github.com/bryanchriswhite/addertuner/internal/logger"
	"github.com/bryanchriswhite/addertuner/internal/pixconv"
	"github.com/bryanchriswhite/addertuner/internal/reconstruct"
	"github.com/bryanchriswhite/addertuner/internal/scheduler"
)

// State is the playback state
type State int

const (
	Stopped State = iota
	Playing
	Paused
)

func (s State) String() string {
	switch s {
	case Playing:
		return "playing"
	case Paused:
		return "paused"
	default:
		return "stopped"
	}
}

// ErrNoStream is returned by transport commands when nothing is open
var ErrNoStream = errors.New("no stream open")

// Engine is the playback reconstruction engine. It is not safe for
// concurrent use; the scheduler goroutine is its only caller.
type Engine struct {
	ctrl     *lifecycle.Controller
	conv     pixconv.Converter
	settings config.PlayerParams

	// policy is the one in effect; settings.Policy applies at the next
	// restart boundary
	policy config.Policy
	state  State

	acc    *reconstruct.Accumulator
	framer *reconstruct.Framer
	raster *frame.Buffer

	decoded     uint64
	totalEvents int64
	pending     *image.RGBA

	logger *zerolog.Logger
}

// NewEngine creates an engine with nothing open
func NewEngine(ctrl *lifecycle.Controller, conv pixconv.Converter, settings config.PlayerParams) *Engine {
	if conv == nil {
		conv = pixconv.BGRA{}
	}
	return &Engine{
		ctrl:     ctrl,
		conv:     conv,
		settings: settings,
		policy:   settings.Policy,
		logger:   logger.WithComponent("player"),
	}
}

// Open replaces the stream and starts playing it. Playback streams carry
// their own time base, so no transcoder parameters apply.
func (e *Engine) Open(ctx context.Context, path string) error {
	e.state = Stopped
	e.acc, e.framer, e.raster, e.pending = nil, nil, nil, nil
	e.totalEvents = 0

	if err := e.ctrl.Rebuild(ctx, path, config.Params{}, 0); err != nil {
		return err
	}
	dec := e.decoder()
	if counter, ok := dec.(interface{ EventCount() (int64, error) }); ok {
		if n, err := counter.EventCount(); err == nil {
			e.totalEvents = n
		}
	}
	e.resetReconstruction(dec.Header())
	e.state = Playing

	h := dec.Header()
	e.logger.Info().
		Str("path", path).
		Str("policy", string(e.policy)).
		Float64("frame_rate", h.FrameRate()).
		Int64("events", e.totalEvents).
		Msg("Stream opened")
	return nil
}

func (e *Engine) decoder() codec.StreamDecoder {
	if pb, ok := e.ctrl.Active().(*lifecycle.Playback); ok {
		return pb.Decoder
	}
	return nil
}

// resetReconstruction rebuilds the accumulation state for the policy in
// settings. It is the boundary at which policy, speed and chunking change.
func (e *Engine) resetReconstruction(h codec.Header) {
	w, ht, c := int(h.Width), int(h.Height), int(h.Channels)
	clock := e.ctrl.Clock()
	clock.SetSpeed(e.settings.PlaybackSpeed)
	e.policy = e.settings.Policy
	e.decoded = 0

	switch e.policy {
	case config.PolicyAccurate:
		e.framer = reconstruct.NewFramer(w, ht, c, e.settings.ChunkRows, clock.TicksPerFrame(), h.RefInterval)
		if e.raster == nil || e.raster.Width != w || e.raster.Height != ht || e.raster.Channels != c {
			e.raster = frame.New(w, ht, c)
		}
	default:
		if e.acc == nil || e.acc.Buffer().Width != w || e.acc.Buffer().Height != ht || e.acc.Buffer().Channels != c {
			e.acc = reconstruct.NewAccumulator(w, ht, c, h.RefInterval)
		} else {
			e.acc.Reset()
		}
	}
}

// clearTimeline zeroes statistics and the clock and restarts reconstruction
func (e *Engine) clearTimeline(h codec.Header) {
	e.ctrl.Stats().Reset()
	e.ctrl.Clock().Reset()
	e.resetReconstruction(h)
}

// restart rewinds after the end of the stream or a decode error. The two are
// handled alike; errors are logged so corruption is visible.
func (e *Engine) restart(dec codec.StreamDecoder, cause error) {
	if !errors.Is(cause, codec.ErrEndOfStream) {
		e.logger.Warn().Err(cause).Int64("position", dec.Position()).Msg("Decode error, restarting from the beginning")
	}
	if err := dec.SeekToStartOfData(); err != nil {
		e.logger.Error().Err(err).Msg("Failed to rewind stream")
	}
	e.clearTimeline(dec.Header())
	if !e.settings.Loop {
		e.state = Stopped
	}
}

// Cycle implements scheduler.Cycler
func (e *Engine) Cycle(ctx context.Context) scheduler.Result {
	return e.Consume(ctx)
}

// Consume reconstructs at most one frame
func (e *Engine) Consume(ctx context.Context) scheduler.Result {
	dec := e.decoder()
	if dec == nil {
		return e.result(nil)
	}

	// something rewound the stream since the last cycle
	if dec.Position() == dec.Header().DataStart {
		e.clearTimeline(dec.Header())
	}

	if e.state != Playing {
		img := e.pending
		e.pending = nil
		return e.result(img)
	}

	img, _ := e.step(dec)
	e.recompute(dec.Header())
	return e.result(img)
}

// step runs the active policy once. ended reports an end-of-stream restart.
func (e *Engine) step(dec codec.StreamDecoder) (*image.RGBA, bool) {
	if e.policy == config.PolicyAccurate {
		return e.stepAccurate(dec)
	}
	return e.stepFast(dec)
}

// stepFast decodes until the tick counter passes the end of the current
// frame, writing every event straight into the buffer.
func (e *Engine) stepFast(dec codec.StreamDecoder) (*image.RGBA, bool) {
	clock := e.ctrl.Clock()
	clock.SetSpeed(e.settings.PlaybackSpeed)

	for !clock.BoundaryReached() {
		ev, err := dec.DecodeEvent()
		if err != nil {
			e.restart(dec, err)
			return nil, true
		}
		e.decoded++
		e.ctrl.Stats().AddEvents(1)
		e.acc.Apply(ev)
		clock.Observe(e.acc.Frontier())
	}
	clock.NextFrame()
	return e.convert(e.acc.Buffer()), false
}

// stepAccurate publishes the head frame once the framer has it complete,
// then ingests until the framer reports the next boundary.
func (e *Engine) stepAccurate(dec codec.StreamDecoder) (*image.RGBA, bool) {
	clock := e.ctrl.Clock()

	var img *image.RGBA
	if chunks, ok := e.framer.PopFrame(); ok {
		reconstruct.WriteChunks(e.raster, chunks)
		clock.AddTicks(e.framer.TicksPerFrame())
		clock.NextFrame()
		img = e.convert(e.raster)
	}

	for {
		ev, err := dec.DecodeEvent()
		if err != nil {
			e.restart(dec, err)
			return img, true
		}
		e.decoded++
		e.ctrl.Stats().AddEvents(1)
		if e.framer.Ingest(ev) {
			return img, false
		}
	}
}

func (e *Engine) convert(buf *frame.Buffer) *image.RGBA {
	img, err := e.conv.Convert(buf.Clone())
	if err != nil {
		e.logger.Warn().Err(err).Msg("Failed to convert frame")
		return nil
	}
	e.ctrl.Publish(img)
	return img
}

func (e *Engine) recompute(h codec.Header) {
	g := e.ctrl.Active().Geometry()
	e.ctrl.Stats().Recompute(g, e.ctrl.Clock().Ticks(), h.TicksPerSecond)
}

// Play resumes or starts playback
func (e *Engine) Play() error {
	if e.decoder() == nil {
		return ErrNoStream
	}
	e.state = Playing
	return nil
}

// Pause holds the current frame
func (e *Engine) Pause() error {
	if e.decoder() == nil {
		return ErrNoStream
	}
	if e.state == Playing {
		e.state = Paused
	}
	return nil
}

// Stop rewinds to the start of the stream. The next cycle sees the rewound
// position and clears the timeline.
func (e *Engine) Stop() error {
	dec := e.decoder()
	if dec == nil {
		return ErrNoStream
	}
	e.state = Stopped
	return dec.SeekToStartOfData()
}

// StepBack rewinds and re-decodes up to the frame before the one on screen,
// then pauses on it.
func (e *Engine) StepBack() error {
	dec := e.decoder()
	if dec == nil {
		return ErrNoStream
	}
	target := e.ctrl.Clock().FrameIndex()
	if target > 1 {
		target--
	}
	if target < 1 {
		target = 1
	}

	if err := dec.SeekToStartOfData(); err != nil {
		return fmt.Errorf("rewind: %w", err)
	}
	e.clearTimeline(dec.Header())

	// loop and stop settings must not kick in while re-decoding
	loop := e.settings.Loop
	e.settings.Loop = true
	defer func() { e.settings.Loop = loop }()

	var img *image.RGBA
	for e.ctrl.Clock().FrameIndex() < target {
		got, ended := e.step(dec)
		if ended {
			break
		}
		if got != nil {
			img = got
		}
	}
	e.recompute(dec.Header())
	e.pending = img
	e.state = Paused
	return nil
}

// SetPolicy selects the reconstruction policy from the next restart on
func (e *Engine) SetPolicy(p config.Policy) error {
	if p != config.PolicyFast && p != config.PolicyAccurate {
		return fmt.Errorf("unknown policy %q", p)
	}
	e.settings.Policy = p
	return nil
}

// SetPlaybackSpeed changes the frame length multiplier. The fast policy uses
// it immediately, the accurate policy from the next restart.
func (e *Engine) SetPlaybackSpeed(speed float64) error {
	if speed <= 0 {
		return fmt.Errorf("playback speed must be > 0")
	}
	e.settings.PlaybackSpeed = speed
	return nil
}

// SetLoop chooses whether the end of the stream restarts playback
func (e *Engine) SetLoop(loop bool) {
	e.settings.Loop = loop
}

// Apply replaces every setting at once
func (e *Engine) Apply(p config.PlayerParams) error {
	if err := p.Validate(); err != nil {
		return err
	}
	e.settings = p
	return nil
}

func (e *Engine) Settings() config.PlayerParams { return e.settings }

// Policy is the policy in effect
func (e *Engine) Policy() config.Policy { return e.policy }

func (e *Engine) State() State { return e.state }

// Progress is the fraction of the stream's events decoded since the last
// restart; 0 when the total is unknown
func (e *Engine) Progress() float64 {
	if e.totalEvents <= 0 {
		return 0
	}
	return float64(e.decoded) / float64(e.totalEvents)
}

func (e *Engine) Controller() *lifecycle.Controller {
	return e.ctrl
}

func (e *Engine) result(img *image.RGBA) scheduler.Result {
	state := e.state.String()
	switch {
	case e.decoder() != nil:
	case e.ctrl.Failed():
		state = "error"
	default:
		state = "idle"
	}
	return scheduler.Result{
		Frame:      img,
		Stats:      e.ctrl.Stats().Snapshot(),
		SourceName: e.ctrl.SourceName(),
		Generation: e.ctrl.Generation(),
		State:      state,
		Clock:      e.ctrl.Clock().State(),
	}
}
