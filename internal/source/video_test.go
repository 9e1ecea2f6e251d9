package source

import (
	"context"
	"testing"

	"github.com/bryanchriswhite/addertuner/internal/config"
	"github.com/bryanchriswhite/addertuner/internal/event"
	"github.com/bryanchriswhite/addertuner/internal/workpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestVideo(t *testing.T, w, h, c int) *Video {
	t.Helper()
	v, err := NewVideo(VideoConfig{
		Width:        w,
		Height:       h,
		Channels:     c,
		RefTime:      100,
		DeltaTMax:    1000,
		ThresholdPos: 10,
		ThresholdNeg: 10,
		ChunkRows:    1,
	})
	require.NoError(t, err)
	return v
}

func flat(batches [][]event.Event) []event.Event {
	var out []event.Event
	for _, b := range batches {
		out = append(out, b...)
	}
	return out
}

func TestVideoConstantIntensity(t *testing.T) {
	v := newTestVideo(t, 1, 1, 1)
	ctx := context.Background()

	// 100 per ref interval: 2^6 units take 64 ticks
	evs := flat(must(v.Integrate(ctx, []byte{100}, workpool.New(1))))
	require.Len(t, evs, 1)
	assert.Equal(t, event.Event{D: 6, DeltaT: 64}, evs[0])
	got, ok := evs[0].Intensity(100)
	require.True(t, ok)
	assert.InDelta(t, 100, got, 1e-9)
	assert.Equal(t, uint8(100), v.InstantaneousFrame().Pix[0])

	// D grows once the input is stable: 36 carried + 92 more reaches 2^7
	evs = flat(must(v.Integrate(ctx, []byte{100}, workpool.New(1))))
	require.Len(t, evs, 1)
	assert.Equal(t, event.Event{D: 7, DeltaT: 128}, evs[0])
	assert.Equal(t, uint32(2), v.IntervalCount())
}

func TestVideoContrastChangeFiresEarly(t *testing.T) {
	v := newTestVideo(t, 1, 1, 1)
	ctx := context.Background()
	must(v.Integrate(ctx, []byte{100}, nil))

	// 36 ticks are pending; a jump of 50 exceeds the threshold
	evs := flat(must(v.Integrate(ctx, []byte{150}, nil)))
	require.NotEmpty(t, evs)
	assert.Equal(t, uint32(36), evs[0].DeltaT)
	assert.Equal(t, uint8(5), evs[0].D, "36 units round down to 2^5")

	// within threshold: no early fire
	v2 := newTestVideo(t, 1, 1, 1)
	must(v2.Integrate(ctx, []byte{100}, nil))
	evs = flat(must(v2.Integrate(ctx, []byte{105}, nil)))
	for _, ev := range evs {
		assert.NotEqual(t, uint32(36), ev.DeltaT)
	}
}

func TestVideoDarkPixelFiresAtDeltaTMax(t *testing.T) {
	v := newTestVideo(t, 1, 1, 1)
	ctx := context.Background()
	var evs []event.Event
	for i := 0; i < 10; i++ {
		evs = append(evs, flat(must(v.Integrate(ctx, []byte{0}, nil)))...)
	}
	require.Len(t, evs, 1)
	assert.Equal(t, event.DZeroIntegration, evs[0].D)
	assert.Equal(t, uint32(1000), evs[0].DeltaT)
}

func TestVideoBatchesPerChunk(t *testing.T) {
	v := newTestVideo(t, 4, 3, 3)
	plane := make([]byte, 4*3*3)
	for i := range plane {
		plane[i] = 200
	}
	batches := must(v.Integrate(context.Background(), plane, workpool.New(3)))
	require.Len(t, batches, 3)
	for y, b := range batches {
		require.Len(t, b, 12)
		for _, ev := range b {
			assert.Equal(t, uint16(y), ev.Y)
			assert.Less(t, ev.C, uint8(3))
		}
	}
}

func TestVideoViewModes(t *testing.T) {
	v := newTestVideo(t, 1, 1, 1)
	v.SetViewMode(config.ViewModeDeltaT)
	must(v.Integrate(context.Background(), []byte{100}, nil))
	// Δt 64 of Δt max 1000
	assert.Equal(t, uint8(16), v.InstantaneousFrame().Pix[0])

	v.SetViewMode(config.ViewModeD)
	must(v.Integrate(context.Background(), []byte{100}, nil))
	assert.NotZero(t, v.InstantaneousFrame().Pix[0])
}

func TestVideoLiveUpdates(t *testing.T) {
	v := newTestVideo(t, 1, 1, 1)
	v.SetThresholds(3, 4)
	pos, neg := v.Thresholds()
	assert.Equal(t, uint8(3), pos)
	assert.Equal(t, uint8(4), neg)

	v.SetDeltaTMax(10)
	assert.Equal(t, uint32(100), v.DeltaTMax(), "clamped to ref_time")
	v.SetDeltaTMax(5000)
	assert.Equal(t, uint32(5000), v.DeltaTMax())
}

func TestVideoRejectsBadInput(t *testing.T) {
	_, err := NewVideo(VideoConfig{Width: 2, Height: 2, Channels: 2, RefTime: 1})
	assert.Error(t, err)
	_, err = NewVideo(VideoConfig{Width: 0, Height: 2, Channels: 1, RefTime: 1})
	assert.Error(t, err)

	v := newTestVideo(t, 2, 2, 1)
	_, err = v.Integrate(context.Background(), []byte{1}, nil)
	var fe *FaultError
	assert.ErrorAs(t, err, &fe)
}

func must(b [][]event.Event, err error) [][]event.Event {
	if err != nil {
		panic(err)
	}
	return b
}
