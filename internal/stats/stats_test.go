package stats

import (
	"testing"

	"github.com/bryanchriswhite/addertuner/internal/event"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func batchesOf(sizes ...int) [][]event.Event {
	out := make([][]event.Event, len(sizes))
	for i, n := range sizes {
		out[i] = make([]event.Event, n)
	}
	return out
}

func TestThroughputScaling(t *testing.T) {
	tests := []struct {
		name string
		n    []int
		tps  uint32
		ref  uint32
	}{
		{"framed 30fps", []int{5, 7}, 255 * 30, 255},
		{"camera 500fps", []int{1000}, 1_000_000, 2000},
		{"odd ratio", []int{3, 0, 4}, 1000, 7},
		{"empty", nil, 1000, 10},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := New(0)
			b := batchesOf(tt.n...)
			a.AddBatches(b, Geometry{4, 4, 1}, tt.tps, tt.ref)

			n := float64(event.Count(b))
			want := n * (float64(tt.tps) / float64(tt.ref))
			s := a.Snapshot()
			assert.InDelta(t, want, s.EventsPerSecond, 1e-9)
			assert.Equal(t, uint64(n), s.EventsTotal)
			assert.InDelta(t, n/16, s.EventsPPCTotal, 1e-9)
			assert.InDelta(t, want/16, s.EventsPPCPerSecond, 1e-9)
		})
	}
}

func TestTotalIsMonotonicUntilReset(t *testing.T) {
	a := New(4)
	g := Geometry{2, 2, 3}
	var last uint64
	for i := 0; i < 10; i++ {
		a.AddBatches(batchesOf(i, 1), g, 100, 10)
		require.GreaterOrEqual(t, a.EventsTotal(), last)
		last = a.EventsTotal()
	}
	assert.Equal(t, uint64(45+10), last)

	a.Reset()
	assert.Equal(t, Snapshot{}, a.Snapshot())
}

func TestRecomputeFromTicks(t *testing.T) {
	a := New(0)
	a.AddEvents(50)
	a.AddEvents(50)
	a.Recompute(Geometry{10, 10, 1}, 500, 1000)

	s := a.Snapshot()
	assert.Equal(t, uint64(100), s.EventsTotal)
	assert.InDelta(t, 200, s.EventsPerSecond, 1e-9)
	assert.InDelta(t, 1, s.EventsPPCTotal, 1e-9)
	assert.InDelta(t, 2, s.EventsPPCPerSecond, 1e-9)

	a.Recompute(Geometry{10, 10, 1}, 0, 1000)
	assert.Zero(t, a.Snapshot().EventsPerSecond)
}

func TestSmoothedWindow(t *testing.T) {
	a := New(2)
	g := Geometry{1, 1, 1}
	a.AddBatches(batchesOf(1), g, 10, 10)
	a.AddBatches(batchesOf(3), g, 10, 10)
	s := a.Snapshot()
	assert.InDelta(t, 2, s.EventsPerSecondMean, 1e-9)
	assert.Greater(t, s.EventsPerSecondStdDv, 0.0)

	// window of two drops the first sample
	a.AddBatches(batchesOf(3), g, 10, 10)
	s = a.Snapshot()
	assert.InDelta(t, 3, s.EventsPerSecondMean, 1e-9)
	assert.InDelta(t, 0, s.EventsPerSecondStdDv, 1e-9)
}

func TestZeroGeometry(t *testing.T) {
	a := New(0)
	a.AddBatches(batchesOf(3), Geometry{}, 10, 0)
	s := a.Snapshot()
	assert.Equal(t, uint64(3), s.EventsTotal)
	assert.Zero(t, s.EventsPerSecond)
	assert.Zero(t, s.EventsPPCTotal)
}

func TestSnapshotString(t *testing.T) {
	s := Snapshot{EventsTotal: 1234567, EventsPerSecond: 2500}
	assert.Contains(t, s.String(), "1,234,567 events")
}
