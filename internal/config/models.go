package config

import (
	"errors"
	"fmt"
)

// ViewMode selects which per-pixel quantity the instantaneous frame shows
type ViewMode string

const (
	ViewModeIntensity ViewMode = "intensity"
	ViewModeD         ViewMode = "d"
	ViewModeDeltaT    ViewMode = "delta_t"
)

// DavisMode selects how an event-camera recording is turned into frames
type DavisMode string

const (
	DavisModeFramed   DavisMode = "framed"    // reconstructed frames only
	DavisModeRawDavis DavisMode = "raw-davis" // frames plus raw events, no deblur pass
	DavisModeRawDVS   DavisMode = "raw-dvs"   // raw events only
)

// EventsOnly reports whether the reconstructor should skip frame data entirely
func (m DavisMode) EventsOnly() bool {
	return m == DavisModeRawDVS
}

// DeblurOnly reports whether the reconstructor should skip event integration
// between frames.
func (m DavisMode) DeblurOnly() bool {
	return m == DavisModeRawDavis || m == DavisModeRawDVS
}

// Policy selects the playback reconstruction strategy
type Policy string

const (
	PolicyFast     Policy = "fast"
	PolicyAccurate Policy = "accurate"
)

// Params is the live tuning configuration for transcode sessions
type Params struct {
	RefTime        uint32    `json:"ref_time" yaml:"ref_time" mapstructure:"ref_time"`
	DeltaTMaxMult  uint32    `json:"delta_t_max_mult" yaml:"delta_t_max_mult" mapstructure:"delta_t_max_mult"`
	ThresholdPos   uint8     `json:"threshold_pos" yaml:"threshold_pos" mapstructure:"threshold_pos"`
	ThresholdNeg   uint8     `json:"threshold_neg" yaml:"threshold_neg" mapstructure:"threshold_neg"`
	Scale          float64   `json:"scale" yaml:"scale" mapstructure:"scale"`
	ThreadCount    int       `json:"thread_count" yaml:"thread_count" mapstructure:"thread_count"`
	Color          bool      `json:"color" yaml:"color" mapstructure:"color"`
	ViewMode       ViewMode  `json:"view_mode" yaml:"view_mode" mapstructure:"view_mode"`
	DavisMode      DavisMode `json:"davis_mode" yaml:"davis_mode" mapstructure:"davis_mode"`
	DavisOutputFPS float64   `json:"davis_output_fps" yaml:"davis_output_fps" mapstructure:"davis_output_fps"`
	Optimize       bool      `json:"optimize" yaml:"optimize" mapstructure:"optimize"`
}

// DeltaTMax is the longest integration a pixel may run before it must fire
func (p Params) DeltaTMax() uint32 {
	return p.DeltaTMaxMult * p.RefTime
}

// Channels is the channel count a framed source built from p produces
func (p Params) Channels() int {
	if p.Color {
		return 3
	}
	return 1
}

// Validate checks ranges and enum values
func (p Params) Validate() error {
	var errs []error
	if p.RefTime == 0 {
		errs = append(errs, errors.New("ref_time must be > 0"))
	}
	if p.DeltaTMaxMult < 1 {
		errs = append(errs, errors.New("delta_t_max_mult must be >= 1"))
	}
	if p.Scale <= 0 || p.Scale > 1 {
		errs = append(errs, fmt.Errorf("scale must be in (0, 1], got %g", p.Scale))
	}
	if p.ThreadCount < 1 {
		errs = append(errs, errors.New("thread_count must be >= 1"))
	}
	if p.DavisOutputFPS <= 0 {
		errs = append(errs, errors.New("davis_output_fps must be > 0"))
	}
	switch p.ViewMode {
	case ViewModeIntensity, ViewModeD, ViewModeDeltaT:
	default:
		errs = append(errs, fmt.Errorf("unknown view_mode %q", p.ViewMode))
	}
	switch p.DavisMode {
	case DavisModeFramed, DavisModeRawDavis, DavisModeRawDVS:
	default:
		errs = append(errs, fmt.Errorf("unknown davis_mode %q", p.DavisMode))
	}
	return errors.Join(errs...)
}

// PlayerParams controls playback sessions
type PlayerParams struct {
	PlaybackSpeed float64 `json:"playback_speed" yaml:"playback_speed" mapstructure:"playback_speed"`
	Loop          bool    `json:"loop" yaml:"loop" mapstructure:"loop"`
	Policy        Policy  `json:"policy" yaml:"policy" mapstructure:"policy"`
	ChunkRows     int     `json:"chunk_rows" yaml:"chunk_rows" mapstructure:"chunk_rows"`
}

// Validate checks ranges and enum values
func (p PlayerParams) Validate() error {
	var errs []error
	if p.PlaybackSpeed <= 0 {
		errs = append(errs, errors.New("playback_speed must be > 0"))
	}
	if p.ChunkRows < 1 {
		errs = append(errs, errors.New("chunk_rows must be >= 1"))
	}
	switch p.Policy {
	case PolicyFast, PolicyAccurate:
	default:
		errs = append(errs, fmt.Errorf("unknown policy %q", p.Policy))
	}
	return errors.Join(errs...)
}

// OutputConfig represents MJPEG output configuration
type OutputConfig struct {
	Quality int  `json:"quality" yaml:"quality" mapstructure:"quality"`
	Overlay bool `json:"overlay" yaml:"overlay" mapstructure:"overlay"`
}

// Config represents the application configuration
type Config struct {
	ServerPort int          `json:"server_port" yaml:"server_port" mapstructure:"server_port"`
	LogLevel   string       `json:"log_level" yaml:"log_level" mapstructure:"log_level"`
	LogPretty  bool         `json:"log_pretty" yaml:"log_pretty" mapstructure:"log_pretty"`
	CycleHz    int          `json:"cycle_hz" yaml:"cycle_hz" mapstructure:"cycle_hz"`
	Output     OutputConfig `json:"output" yaml:"output" mapstructure:"output"`
	Transcoder Params       `json:"transcoder" yaml:"transcoder" mapstructure:"transcoder"`
	Player     PlayerParams `json:"player" yaml:"player" mapstructure:"player"`
}

// Validate checks the whole configuration
func (c Config) Validate() error {
	var errs []error
	if c.ServerPort < 0 || c.ServerPort > 65535 {
		errs = append(errs, fmt.Errorf("server_port out of range: %d", c.ServerPort))
	}
	if c.CycleHz < 1 {
		errs = append(errs, errors.New("cycle_hz must be >= 1"))
	}
	if c.Output.Quality < 1 || c.Output.Quality > 100 {
		errs = append(errs, fmt.Errorf("output.quality must be in [1, 100], got %d", c.Output.Quality))
	}
	if err := c.Transcoder.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("transcoder: %w", err))
	}
	if err := c.Player.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("player: %w", err))
	}
	return errors.Join(errs...)
}

// DefaultParams returns the transcoder tuning defaults
func DefaultParams() Params {
	return Params{
		RefTime:        255,
		DeltaTMaxMult:  120,
		ThresholdPos:   10,
		ThresholdNeg:   10,
		Scale:          0.5,
		ThreadCount:    4,
		Color:          true,
		ViewMode:       ViewModeIntensity,
		DavisMode:      DavisModeRawDavis,
		DavisOutputFPS: 500,
		Optimize:       true,
	}
}

// DefaultPlayerParams returns the playback defaults
func DefaultPlayerParams() PlayerParams {
	return PlayerParams{
		PlaybackSpeed: 1.0,
		Loop:          true,
		Policy:        PolicyFast,
		ChunkRows:     64,
	}
}

// Defaults returns default configuration
func Defaults() *Config {
	return &Config{
		ServerPort: 8080,
		LogLevel:   "info",
		CycleHz:    30,
		Output: OutputConfig{
			Quality: 80,
			Overlay: true,
		},
		Transcoder: DefaultParams(),
		Player:     DefaultPlayerParams(),
	}
}
