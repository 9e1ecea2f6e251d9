package lifecycle

import (
	"github.com/bryanchriswhite/addertuner/internal/config"
)

// SourceConfiguration is what a bound source was built with. It is recorded
// once per successful rebuild and only ever compared.
type SourceConfiguration struct {
	Kind          Kind             `json:"kind"`
	Scale         float64          `json:"scale"`
	ThresholdPos  uint8            `json:"threshold_pos"`
	ThresholdNeg  uint8            `json:"threshold_neg"`
	RefTime       uint32           `json:"ref_time"`
	DeltaTMaxMult uint32           `json:"delta_t_max_mult"`
	Channels      int              `json:"channels"`
	Color         bool             `json:"color"`
	DavisMode     config.DavisMode `json:"davis_mode,omitempty"`
	OutputFPS     float64          `json:"output_fps,omitempty"`
	Optimize      bool             `json:"optimize"`
}

// Configure records the baseline for a freshly built source. Scale, reference
// time and channel count come from the source itself so a source that could
// not honour a request is compared by what it actually is.
func Configure(a Active, p config.Params) SourceConfiguration {
	cfg := SourceConfiguration{
		Kind:          a.Kind(),
		ThresholdPos:  p.ThresholdPos,
		ThresholdNeg:  p.ThresholdNeg,
		DeltaTMaxMult: p.DeltaTMaxMult,
		Color:         p.Color,
		Optimize:      p.Optimize,
	}
	_, cfg.RefTime = a.TimeBase()
	cfg.Channels = a.Geometry().Channels

	switch v := a.(type) {
	case *Framed:
		cfg.Scale = v.Scale()
	case *EventCamera:
		cfg.Scale = v.Scale()
		cfg.DavisMode = p.DavisMode
		cfg.OutputFPS = p.DavisOutputFPS
		if v.Knobs != nil {
			cfg.OutputFPS = v.Knobs.OutputFPS
		}
	case *Playback:
		cfg.Scale = 1
	}
	return cfg
}

// Reason says why a source drifted
type Reason int

const (
	ReasonNone Reason = iota
	ReasonScale
	ReasonRefTime
	ReasonChannels
	ReasonDavisMode
	ReasonOutputFPS
)

func (r Reason) String() string {
	switch r {
	case ReasonScale:
		return "scale changed"
	case ReasonRefTime:
		return "reference time changed"
	case ReasonChannels:
		return "channel mode changed"
	case ReasonDavisMode:
		return "camera mode changed"
	case ReasonOutputFPS:
		return "output rate changed"
	default:
		return "no drift"
	}
}

// Result of a drift check
type Result struct {
	Reason Reason
}

// Drifted reports whether the source must be rebuilt
func (r Result) Drifted() bool {
	return r.Reason != ReasonNone
}

// Detect compares the configuration a source was built with against the
// desired parameters. Thresholds, Δt max, view mode, optimize and thread
// count are applied in place and never drift.
func Detect(built SourceConfiguration, desired config.Params) Result {
	switch built.Kind {
	case KindFramed:
		if built.Scale != desired.Scale {
			return Result{ReasonScale}
		}
		if built.RefTime != desired.RefTime {
			return Result{ReasonRefTime}
		}
		if (built.Channels == 1 && desired.Color) || (built.Channels != 1 && !desired.Color) {
			return Result{ReasonChannels}
		}
	case KindEventCamera:
		if built.DavisMode != desired.DavisMode {
			return Result{ReasonDavisMode}
		}
		if built.OutputFPS != desired.DavisOutputFPS {
			return Result{ReasonOutputFPS}
		}
	}
	return Result{}
}
