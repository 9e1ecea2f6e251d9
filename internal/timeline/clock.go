// Package timeline maps the event-time tick counter onto frame indices and a
// playback position.
package timeline

import (
	"math"
	"time"
)

// State is a value copy of the clock
type State struct {
	Ticks          uint64  `json:"ticks"`
	FrameIndex     uint64  `json:"frame_index"`
	TicksPerFrame  uint64  `json:"ticks_per_frame"`
	RefInterval    uint32  `json:"ref_interval"`
	TicksPerSecond uint32  `json:"ticks_per_second"`
	PlaybackSpeed  float64 `json:"playback_speed"`
}

// Clock tracks the running tick counter and the target frame index
type Clock struct {
	ticks      uint64
	frameIndex uint64
	ref        uint32
	tps        uint32
	speed      float64
}

// New returns a zeroed clock. A non-positive speed is treated as 1.
func New(ticksPerSecond, refInterval uint32, speed float64) *Clock {
	c := &Clock{}
	c.Configure(ticksPerSecond, refInterval)
	c.SetSpeed(speed)
	return c
}

// Configure sets the time base; used when a new source is bound
func (c *Clock) Configure(ticksPerSecond, refInterval uint32) {
	c.tps = ticksPerSecond
	c.ref = refInterval
}

// SetSpeed changes the playback speed multiplier
func (c *Clock) SetSpeed(speed float64) {
	if speed <= 0 || math.IsNaN(speed) {
		speed = 1
	}
	c.speed = speed
}

// Speed returns the playback speed multiplier
func (c *Clock) Speed() float64 { return c.speed }

// TicksPerFrame is ref_interval × playback_speed, at least one tick
func (c *Clock) TicksPerFrame() uint64 {
	t := uint64(float64(c.ref) * c.speed)
	if t == 0 {
		return 1
	}
	return t
}

// Ticks returns the running tick counter
func (c *Clock) Ticks() uint64 { return c.ticks }

// FrameIndex returns the target frame index
func (c *Clock) FrameIndex() uint64 { return c.frameIndex }

// RefInterval returns the reference interval in ticks
func (c *Clock) RefInterval() uint32 { return c.ref }

// TicksPerSecond returns the time base
func (c *Clock) TicksPerSecond() uint32 { return c.tps }

// Observe raises the tick counter to t; it never moves backwards
func (c *Clock) Observe(t uint64) {
	if t > c.ticks {
		c.ticks = t
	}
}

// AddTicks advances the tick counter by n
func (c *Clock) AddTicks(n uint64) {
	c.ticks += n
}

// BoundaryReached reports whether the tick counter has passed the end of the
// current frame.
func (c *Clock) BoundaryReached() bool {
	return c.ticks > c.frameIndex*c.TicksPerFrame()
}

// NextFrame advances the target frame index by one
func (c *Clock) NextFrame() {
	c.frameIndex++
}

// Seconds is the event time elapsed, ticks / ticks_per_second
func (c *Clock) Seconds() float64 {
	if c.tps == 0 {
		return 0
	}
	return float64(c.ticks) / float64(c.tps)
}

// Elapsed is Seconds as a duration
func (c *Clock) Elapsed() time.Duration {
	return time.Duration(c.Seconds() * float64(time.Second))
}

// Reset zeroes the tick counter and frame index. The time base and speed
// are kept.
func (c *Clock) Reset() {
	c.ticks = 0
	c.frameIndex = 0
}

// State returns a copy of the clock
func (c *Clock) State() State {
	return State{
		Ticks:          c.ticks,
		FrameIndex:     c.frameIndex,
		TicksPerFrame:  c.TicksPerFrame(),
		RefInterval:    c.ref,
		TicksPerSecond: c.tps,
		PlaybackSpeed:  c.speed,
	}
}
