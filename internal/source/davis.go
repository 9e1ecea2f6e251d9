package source

import (
	"context"
	"fmt"
	"math"

	"github.com/bryanchriswhite/addertuner/internal/config"
	"github.com/bryanchriswhite/addertuner/internal/event"
	"github.com/bryanchriswhite/addertuner/internal/logger"
	"github.com/bryanchriswhite/addertuner/internal/workpool"
)

const (
	// CameraTicksPerSecond is the time base of event-camera sources (1 µs)
	CameraTicksPerSecond = 1_000_000

	// DAVIS346 sensor geometry
	CameraWidth  = 346
	CameraHeight = 260

	DefaultContrastThreshold = 0.15
)

// ReconstructorConfig holds the knobs the frame reconstructor consumes. The
// EventCamera hands out a pointer so knobs can be adjusted live.
type ReconstructorConfig struct {
	OutputFPS         float64 `json:"output_fps"`
	Optimize          bool    `json:"optimize"`
	DeblurOnly        bool    `json:"deblur_only"`
	EventsOnly        bool    `json:"events_only"`
	ContrastThreshold float64 `json:"contrast_threshold"`
	Width             int     `json:"width"`
	Height            int     `json:"height"`
}

// NewReconstructorConfig derives the knobs from the transcoder parameters
func NewReconstructorConfig(p config.Params) ReconstructorConfig {
	return ReconstructorConfig{
		OutputFPS:         p.DavisOutputFPS,
		Optimize:          p.Optimize,
		DeblurOnly:        p.DavisMode.DeblurOnly(),
		EventsOnly:        p.DavisMode.EventsOnly(),
		ContrastThreshold: DefaultContrastThreshold,
		Width:             CameraWidth,
		Height:            CameraHeight,
	}
}

// Reconstructor produces mono intensity frames at the configured output rate
// from an event-camera recording.
type Reconstructor interface {
	// Next returns the next frame as a row-major luma plane
	Next(ctx context.Context) ([]byte, error)
	Size() (width, height int)
	Close() error
}

// EventCamera transcodes reconstructed event-camera frames. It always starts
// from the beginning of the recording.
type EventCamera struct {
	*Video

	rec   Reconstructor
	knobs *ReconstructorConfig
	mode  config.DavisMode
	fps   float64
}

// NewEventCamera builds a camera source over rec. Time runs at 1 MHz, the
// reference interval is one output frame and Δt max is 1 s × multiplier.
func NewEventCamera(rec Reconstructor, knobs *ReconstructorConfig, p config.Params, chunkRows int) (*EventCamera, error) {
	if knobs.OutputFPS <= 0 {
		return nil, fmt.Errorf("output fps must be > 0")
	}
	w, h := rec.Size()
	ref := uint32(math.Round(CameraTicksPerSecond / knobs.OutputFPS))
	if ref == 0 {
		ref = 1
	}
	video, err := NewVideo(VideoConfig{
		Width:        w,
		Height:       h,
		Channels:     1,
		RefTime:      ref,
		DeltaTMax:    uint32(CameraTicksPerSecond * float64(p.DeltaTMaxMult)),
		ThresholdPos: p.ThresholdPos,
		ThresholdNeg: p.ThresholdNeg,
		ChunkRows:    chunkRows,
		ViewMode:     p.ViewMode,
	})
	if err != nil {
		return nil, err
	}

	logger.WithComponent("source").Info().
		Int("width", w).
		Int("height", h).
		Str("mode", string(p.DavisMode)).
		Float64("output_fps", knobs.OutputFPS).
		Uint32("ref_time", ref).
		Msg("Event camera source ready")

	return &EventCamera{
		Video: video,
		rec:   rec,
		knobs: knobs,
		mode:  p.DavisMode,
		fps:   knobs.OutputFPS,
	}, nil
}

func (e *EventCamera) Scale() float64         { return 1 }
func (e *EventCamera) TicksPerSecond() uint32 { return CameraTicksPerSecond }
func (e *EventCamera) FrameStart() uint32     { return 0 }

// Mode is the camera mode the source was built with
func (e *EventCamera) Mode() config.DavisMode { return e.mode }

// OutputFPS is the reconstruction rate the source was built with
func (e *EventCamera) OutputFPS() float64 { return e.fps }

// Knobs is the live reconstructor configuration
func (e *EventCamera) Knobs() *ReconstructorConfig { return e.knobs }

// Advance integrates the next intervals reconstructed frames
func (e *EventCamera) Advance(ctx context.Context, intervals int, pool *workpool.Pool) ([][]event.Event, error) {
	var out [][]event.Event
	for i := 0; i < intervals; i++ {
		plane, err := e.rec.Next(ctx)
		if err != nil {
			if i == 0 {
				return nil, err
			}
			break
		}
		batches, err := e.Integrate(ctx, plane, pool)
		if err != nil {
			return nil, err
		}
		out = append(out, batches...)
	}
	return out, nil
}

// Close releases the reconstructor
func (e *EventCamera) Close() error {
	return e.rec.Close()
}
