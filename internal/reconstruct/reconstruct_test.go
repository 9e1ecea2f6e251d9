package reconstruct

import (
	"testing"

	"github.com/bryanchriswhite/addertuner/internal/event"
	"github.com/bryanchriswhite/addertuner/internal/frame"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAccumulatorFastPolicyPixelWrite(t *testing.T) {
	acc := NewAccumulator(2, 2, 1, 100)
	acc.Buffer().Fill(77)

	// 2^0 * 100 / 10 = 10 and 2^1 * 100 / 1 = 200
	require.True(t, acc.Apply(event.Event{X: 0, Y: 0, D: 0, DeltaT: 10}))
	require.True(t, acc.Apply(event.Event{X: 1, Y: 1, D: 1, DeltaT: 1}))

	buf := acc.Buffer()
	assert.Equal(t, uint8(10), buf.At(0, 0, 0))
	assert.Equal(t, uint8(200), buf.At(1, 1, 0))
	assert.Equal(t, uint8(77), buf.At(1, 0, 0))
	assert.Equal(t, uint8(77), buf.At(0, 1, 0))
	assert.Equal(t, uint64(10), acc.Frontier())
}

func TestAccumulatorIgnoresControlAndOutOfRange(t *testing.T) {
	acc := NewAccumulator(2, 2, 1, 100)
	acc.Buffer().Fill(5)

	assert.False(t, acc.Apply(event.Event{X: 0, Y: 0, D: event.DEmpty, DeltaT: 40}))
	assert.False(t, acc.Apply(event.Event{X: 1, Y: 0, D: event.DZeroIntegration, DeltaT: 3}))
	assert.False(t, acc.Apply(event.Event{X: 9, Y: 0, D: 1, DeltaT: 1000}))
	assert.False(t, acc.Apply(event.Event{X: 0, Y: 0, C: 2, D: 1, DeltaT: 1000}))

	assert.Equal(t, []byte{5, 5, 5, 5}, acc.Buffer().Pix)
	assert.Equal(t, uint64(40), acc.Frontier(), "control markers still advance pixel time")

	acc.Reset()
	assert.Zero(t, acc.Frontier())
	assert.Equal(t, []byte{5, 5, 5, 5}, acc.Buffer().Pix)
}

func TestAccumulatorFrontierIsPerPixelMax(t *testing.T) {
	acc := NewAccumulator(2, 1, 1, 10)
	acc.Apply(event.Event{X: 0, D: 1, DeltaT: 30})
	acc.Apply(event.Event{X: 1, D: 1, DeltaT: 20})
	acc.Apply(event.Event{X: 1, D: 1, DeltaT: 5})
	assert.Equal(t, uint64(30), acc.Frontier())
	acc.Apply(event.Event{X: 1, D: 1, DeltaT: 20})
	assert.Equal(t, uint64(45), acc.Frontier())
}

func TestFramerFillsHeadFrameAcrossChunks(t *testing.T) {
	f := NewFramer(2, 2, 1, 1, 10, 10)
	require.Equal(t, 2, f.Chunks())

	// intensity 2^D * 10 / 10 = 2^D
	events := []event.Event{
		{X: 0, Y: 0, D: 3, DeltaT: 10},
		{X: 1, Y: 0, D: 4, DeltaT: 10},
		{X: 0, Y: 1, D: 5, DeltaT: 10},
	}
	for _, ev := range events {
		assert.False(t, f.Ingest(ev))
	}
	_, ok := f.PopFrame()
	assert.False(t, ok, "second chunk still incomplete")

	assert.True(t, f.Ingest(event.Event{X: 1, Y: 1, D: 6, DeltaT: 10}))

	chunks, ok := f.PopFrame()
	require.True(t, ok)
	want := []Chunk{
		{Row0: 0, Rows: 1, Values: []uint8{8, 16}, Set: []bool{true, true}},
		{Row0: 1, Rows: 1, Values: []uint8{32, 64}, Set: []bool{true, true}},
	}
	if diff := cmp.Diff(want, chunks); diff != "" {
		t.Errorf("popped frame mismatch (-want +got):\n%s", diff)
	}
	assert.False(t, f.IsFrameFilled())
}

func TestFramerLongEventFillsSeveralFrames(t *testing.T) {
	// ref 35 keeps the long event's intensity at 2^2
	f := NewFramer(1, 1, 1, 64, 10, 35)
	assert.True(t, f.Ingest(event.Event{D: 2, DeltaT: 35}))
	assert.Equal(t, 3, f.Pending())

	for i := 0; i < 3; i++ {
		chunks, ok := f.PopFrame()
		require.True(t, ok)
		assert.Equal(t, []uint8{4}, chunks[0].Values)
	}
	_, ok := f.PopFrame()
	assert.False(t, ok)

	// remaining 5 ticks of the first event plus 5 more close frame 3
	assert.True(t, f.Ingest(event.Event{D: 1, DeltaT: 5}))
	chunks, ok := f.PopFrame()
	require.True(t, ok)
	assert.Equal(t, []uint8{14}, chunks[0].Values)
}

func TestFramerEmptyMarkerKeepsPrevious(t *testing.T) {
	f := NewFramer(2, 1, 1, 1, 10, 10)
	f.Ingest(event.Event{X: 0, D: 1, DeltaT: 10})
	f.Ingest(event.Event{X: 1, D: event.DEmpty, DeltaT: 10})

	chunks, ok := f.PopFrame()
	require.True(t, ok)
	assert.Equal(t, []bool{true, false}, chunks[0].Set)

	buf := frame.New(2, 1, 1)
	buf.Fill(99)
	assert.Equal(t, 1, WriteChunks(buf, chunks))
	assert.Equal(t, []byte{2, 99}, buf.Pix)
}

func TestFramerZeroIntegration(t *testing.T) {
	f := NewFramer(1, 1, 1, 1, 10, 10)
	f.Ingest(event.Event{D: 4, DeltaT: 10})
	f.Ingest(event.Event{D: event.DZeroIntegration, DeltaT: 10})
	f.PopFrame()
	chunks, ok := f.PopFrame()
	require.True(t, ok)
	assert.Equal(t, []uint8{0}, chunks[0].Values)
	assert.Equal(t, []bool{true}, chunks[0].Set)
}

func TestFramerUnevenChunks(t *testing.T) {
	f := NewFramer(1, 5, 1, 2, 1, 1)
	require.Equal(t, 3, f.Chunks())
	for y := 0; y < 5; y++ {
		f.Ingest(event.Event{Y: uint16(y), D: 0, DeltaT: 1})
	}
	chunks, ok := f.PopFrame()
	require.True(t, ok)
	assert.Equal(t, 1, chunks[2].Rows)
	assert.Equal(t, 4, chunks[2].Row0)
}

func TestFramerHugeDeltaTStaysSmall(t *testing.T) {
	f := NewFramer(64, 64, 1, 64, 255, 255)
	for y := 0; y < 64; y++ {
		for x := 0; x < 64; x++ {
			f.Ingest(event.Event{X: uint16(x), Y: uint16(y), D: 5, DeltaT: 255 * 200000})
		}
	}
	require.Equal(t, 200000, f.Pending())
	for _, sp := range f.spans {
		require.Len(t, sp, 1)
	}

	for i := 0; i < 3; i++ {
		chunks, ok := f.PopFrame()
		require.True(t, ok)
		assert.Equal(t, uint8(0), chunks[0].Values[0])
		assert.True(t, chunks[0].Set[4095])
	}
	assert.Equal(t, 199997, f.Pending())

	allocs := testing.AllocsPerRun(10, func() {
		f.Ingest(event.Event{X: 1, Y: 1, D: 5, DeltaT: 255 * 1000})
	})
	assert.LessOrEqual(t, allocs, 1.0)
}
