package timeline

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTicksPerFrame(t *testing.T) {
	assert.Equal(t, uint64(255), New(7650, 255, 1).TicksPerFrame())
	assert.Equal(t, uint64(510), New(7650, 255, 2).TicksPerFrame())
	assert.Equal(t, uint64(127), New(7650, 255, 0.5).TicksPerFrame())
	assert.Equal(t, uint64(255), New(7650, 255, -3).TicksPerFrame(), "invalid speed falls back to 1")
	assert.Equal(t, uint64(1), New(10, 1, 0.1).TicksPerFrame(), "never zero")
}

func TestBoundary(t *testing.T) {
	c := New(1000, 100, 1)
	assert.False(t, c.BoundaryReached())

	c.Observe(1)
	assert.True(t, c.BoundaryReached())
	c.NextFrame()
	assert.False(t, c.BoundaryReached())

	c.Observe(100)
	assert.False(t, c.BoundaryReached())
	c.Observe(101)
	assert.True(t, c.BoundaryReached())
}

func TestObserveIsMonotonic(t *testing.T) {
	c := New(1000, 100, 1)
	c.Observe(50)
	c.Observe(20)
	assert.Equal(t, uint64(50), c.Ticks())
	c.AddTicks(25)
	assert.Equal(t, uint64(75), c.Ticks())
}

func TestElapsedAndReset(t *testing.T) {
	c := New(1000, 100, 1)
	c.AddTicks(1500)
	c.NextFrame()
	assert.InDelta(t, 1.5, c.Seconds(), 1e-12)
	assert.Equal(t, 1500*time.Millisecond, c.Elapsed())

	c.SetSpeed(4)
	c.Reset()
	assert.Equal(t, State{
		TicksPerFrame:  400,
		RefInterval:    100,
		TicksPerSecond: 1000,
		PlaybackSpeed:  4,
	}, c.State())
}

func TestZeroTimeBase(t *testing.T) {
	c := New(0, 0, 1)
	c.AddTicks(10)
	assert.Zero(t, c.Seconds())
	assert.Equal(t, uint64(1), c.TicksPerFrame())
}
