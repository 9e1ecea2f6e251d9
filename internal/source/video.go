package source

import (
	"context"
	"fmt"
	"math"

	"github.com/bryanchriswhite/addertuner/internal/config"
	"github.com/bryanchriswhite/addertuner/internal/event"
	"github.com/bryanchriswhite/addertuner/internal/frame"
	"github.com/bryanchriswhite/addertuner/internal/workpool"
)

// VideoConfig sizes a Video integrator
type VideoConfig struct {
	Width        int
	Height       int
	Channels     int
	RefTime      uint32
	DeltaTMax    uint32
	ThresholdPos uint8
	ThresholdNeg uint8
	ChunkRows    int
	ViewMode     config.ViewMode
}

type pixelState struct {
	integration float64
	dt          float64
	d           uint8
	baseline    float64
	started     bool

	lastValue float64
	lastD     uint8
	lastDt    uint32
}

// Video is the per-pixel integrator shared by every source kind. Each pixel
// integrates intensity until it has collected 2^D units, then fires an event
// carrying D and the ticks it took. A contrast change beyond the thresholds
// or reaching Δt max fires early.
type Video struct {
	cfg       VideoConfig
	pixels    []pixelState
	frame     *frame.Buffer
	intervals uint32
}

// NewVideo allocates the integrator state
func NewVideo(cfg VideoConfig) (*Video, error) {
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, fmt.Errorf("invalid dimensions %dx%d", cfg.Width, cfg.Height)
	}
	if cfg.Channels != 1 && cfg.Channels != 3 {
		return nil, fmt.Errorf("unsupported channel count %d", cfg.Channels)
	}
	if cfg.RefTime == 0 {
		return nil, fmt.Errorf("ref_time must be > 0")
	}
	if cfg.DeltaTMax < cfg.RefTime {
		cfg.DeltaTMax = cfg.RefTime
	}
	if cfg.ChunkRows < 1 {
		cfg.ChunkRows = cfg.Height
	}
	if cfg.ViewMode == "" {
		cfg.ViewMode = config.ViewModeIntensity
	}
	buf := frame.New(cfg.Width, cfg.Height, cfg.Channels)
	return &Video{
		cfg:    cfg,
		pixels: make([]pixelState, buf.Len()),
		frame:  buf,
	}, nil
}

func (v *Video) Width() int { return v.cfg.Width }
func (v *Video) Height() int { return v.cfg.Height }
func (v *Video) Channels() int { return v.cfg.Channels }
func (v *Video) RefTime() uint32 { return v.cfg.RefTime }
func (v *Video) DeltaTMax() uint32 { return v.cfg.DeltaTMax }
func (v *Video) IntervalCount() uint32 { return v.intervals }
func (v *Video) ViewMode() config.ViewMode { return v.cfg.ViewMode }

// Thresholds returns the positive and negative contrast thresholds
func (v *Video) Thresholds() (pos, neg uint8) {
	return v.cfg.ThresholdPos, v.cfg.ThresholdNeg
}

// SetThresholds applies new contrast thresholds from the next interval on
func (v *Video) SetThresholds(pos, neg uint8) {
	v.cfg.ThresholdPos = pos
	v.cfg.ThresholdNeg = neg
}

// SetDeltaTMax changes the longest integration; never below ref_time
func (v *Video) SetDeltaTMax(ticks uint32) {
	if ticks < v.cfg.RefTime {
		ticks = v.cfg.RefTime
	}
	v.cfg.DeltaTMax = ticks
}

// SetViewMode changes what the instantaneous frame shows
func (v *Video) SetViewMode(mode config.ViewMode) {
	v.cfg.ViewMode = mode
}

// InstantaneousFrame returns the live reconstruction buffer
func (v *Video) InstantaneousFrame() *frame.Buffer {
	return v.frame
}

// Chunks is the number of row bands integrated in parallel
func (v *Video) Chunks() int {
	return (v.cfg.Height + v.cfg.ChunkRows - 1) / v.cfg.ChunkRows
}

// Integrate folds one interval of intensities (row-major, channel
// interleaved, same layout as the instantaneous frame) into the pixel state
// and returns the emitted events per row chunk.
func (v *Video) Integrate(ctx context.Context, plane []byte, pool *workpool.Pool) ([][]event.Event, error) {
	if len(plane) != len(v.pixels) {
		return nil, Fault(fmt.Errorf("plane has %d elements, want %d", len(plane), len(v.pixels)))
	}

	cfg := v.cfg
	stride := cfg.Width * cfg.Channels
	out := make([][]event.Event, v.Chunks())
	dCeil := math.Log2(255 * float64(cfg.DeltaTMax) / float64(cfg.RefTime))
	if dCeil < 1 {
		dCeil = 1
	}

	err := pool.Run(len(out), func(chunk int) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		start := chunk * cfg.ChunkRows * stride
		end := start + cfg.ChunkRows*stride
		if end > len(plane) {
			end = len(plane)
		}
		var events []event.Event
		for idx := start; idx < end; idx++ {
			row := idx / stride
			col := (idx % stride) / cfg.Channels
			ch := idx % cfg.Channels
			p := &v.pixels[idx]
			emit := func(d uint8, dt float64) {
				ticks := uint32(math.Round(dt))
				if ticks == 0 {
					ticks = 1
				}
				events = append(events, event.Event{
					X:      uint16(col),
					Y:      uint16(row),
					C:      uint8(ch),
					D:      d,
					DeltaT: ticks,
				})
				p.lastD = d
				p.lastDt = ticks
				if d <= event.DMax {
					p.lastValue = math.Ldexp(1, int(d)) * float64(cfg.RefTime) / float64(ticks)
				} else {
					p.lastValue = 0
				}
			}
			integratePixel(p, float64(plane[idx]), cfg, emit)

			switch cfg.ViewMode {
			case config.ViewModeD:
				v.frame.Pix[idx] = event.ToByte(float64(p.lastD) / dCeil * 255)
			case config.ViewModeDeltaT:
				v.frame.Pix[idx] = event.ToByte(float64(p.lastDt) / float64(cfg.DeltaTMax) * 255)
			default:
				v.frame.Pix[idx] = event.ToByte(p.lastValue)
			}
		}
		out[chunk] = events
		return nil
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, err
		}
		return nil, Fault(err)
	}
	v.intervals++
	return out, nil
}

func startD(intensity float64) uint8 {
	if intensity < 1 {
		return 0
	}
	d := math.Floor(math.Log2(intensity))
	if d > float64(event.DMax) {
		return event.DMax
	}
	return uint8(d)
}

// fireEarly closes out a partial integration. Elapsed time is kept exact;
// the magnitude code rounds down.
func fireEarly(p *pixelState, emit func(uint8, float64)) {
	if p.dt <= 0 {
		return
	}
	if p.integration < 1 {
		emit(event.DZeroIntegration, p.dt)
	} else {
		emit(startD(p.integration), p.dt)
	}
	p.integration = 0
	p.dt = 0
}

// integratePixel runs one ref interval of a constant intensity through p
func integratePixel(p *pixelState, intensity float64, cfg VideoConfig, emit func(uint8, float64)) {
	if !p.started {
		p.started = true
		p.baseline = intensity
		p.d = startD(intensity)
		p.lastValue = intensity
	} else if intensity > p.baseline+float64(cfg.ThresholdPos) || intensity < p.baseline-float64(cfg.ThresholdNeg) {
		fireEarly(p, emit)
		p.baseline = intensity
		p.d = startD(intensity)
	}

	ref := float64(cfg.RefTime)
	dtMax := float64(cfg.DeltaTMax)
	rate := intensity / ref
	remaining := ref

	for remaining > 1e-9 {
		if rate > 0 {
			need := (math.Ldexp(1, int(p.d)) - p.integration) / rate
			if need < 0 {
				need = 0
			}
			if need <= remaining && p.dt+need <= dtMax {
				p.dt += need
				remaining -= need
				emit(p.d, p.dt)
				p.integration = 0
				p.dt = 0
				// stable input: grow D while the next fire still lands inside Δt max
				if p.d < event.DMax && math.Ldexp(1, int(p.d)+1)/rate <= dtMax {
					p.d++
				}
				continue
			}
		}
		step := remaining
		if p.dt+step >= dtMax {
			step = math.Max(dtMax-p.dt, 0)
			p.integration += rate * step
			p.dt += step
			remaining -= step
			fireEarly(p, emit)
			continue
		}
		p.integration += rate * step
		p.dt += step
		remaining = 0
	}
}
