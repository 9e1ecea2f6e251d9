package lifecycle

import (
	"context"
	"errors"
	"image"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bryanchriswhite/addertuner/internal/codec"
	"github.com/bryanchriswhite/addertuner/internal/config"
	"github.com/bryanchriswhite/addertuner/internal/event"
	"github.com/bryanchriswhite/addertuner/internal/source"
	"github.com/bryanchriswhite/addertuner/internal/source/sourcetest"
)

func framedBaseline(p config.Params) SourceConfiguration {
	fake := sourcetest.New(4, 4, p.Channels(), p.RefTime, 30*p.RefTime)
	fake.ScaleValue = p.Scale
	return Configure(&Framed{Source: fake}, p)
}

func TestDetectFramed(t *testing.T) {
	p := config.DefaultParams()
	built := framedBaseline(p)

	tests := []struct {
		name   string
		mutate func(*config.Params)
		want   Reason
	}{
		{"unchanged", func(*config.Params) {}, ReasonNone},
		{"scale", func(p *config.Params) { p.Scale = 0.25 }, ReasonScale},
		{"ref time", func(p *config.Params) { p.RefTime = 1000 }, ReasonRefTime},
		{"mono requested", func(p *config.Params) { p.Color = false }, ReasonChannels},
		{"threshold", func(p *config.Params) { p.ThresholdPos = 40; p.ThresholdNeg = 3 }, ReasonNone},
		{"delta t multiplier", func(p *config.Params) { p.DeltaTMaxMult = 2 }, ReasonNone},
		{"view mode", func(p *config.Params) { p.ViewMode = config.ViewModeDeltaT }, ReasonNone},
		{"thread count", func(p *config.Params) { p.ThreadCount = 1 }, ReasonNone},
		{"camera mode ignored", func(p *config.Params) { p.DavisMode = config.DavisModeFramed }, ReasonNone},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			desired := p
			tt.mutate(&desired)
			assert.Equal(t, tt.want, Detect(built, desired).Reason)
		})
	}

	mono := p
	mono.Color = false
	monoBuilt := framedBaseline(mono)
	assert.Equal(t, ReasonChannels, Detect(monoBuilt, p).Reason, "color requested on a mono source")
}

func TestDetectEventCamera(t *testing.T) {
	p := config.DefaultParams()
	knobs := source.NewReconstructorConfig(p)
	cam := &EventCamera{Source: sourcetest.New(4, 4, 1, 2000, source.CameraTicksPerSecond), Knobs: &knobs}
	built := Configure(cam, p)
	assert.Equal(t, p.DavisOutputFPS, built.OutputFPS)

	desired := p
	desired.Scale = 0.1
	desired.RefTime = 9
	assert.False(t, Detect(built, desired).Drifted(), "framed-only fields are ignored")

	desired = p
	desired.DavisMode = config.DavisModeRawDVS
	assert.Equal(t, ReasonDavisMode, Detect(built, desired).Reason)

	desired = p
	desired.DavisOutputFPS = 100
	assert.Equal(t, ReasonOutputFPS, Detect(built, desired).Reason)
	assert.Equal(t, "output rate changed", Detect(built, desired).Reason.String())
}

func TestDetectIsIdempotent(t *testing.T) {
	p := config.DefaultParams()
	built := framedBaseline(p)
	desired := p
	desired.ThresholdPos = 99

	first := Detect(built, desired)
	require.False(t, first.Drifted())
	for i := 0; i < 3; i++ {
		assert.Equal(t, first, Detect(built, desired))
	}
	assert.Equal(t, framedBaseline(p), built, "baseline is not mutated")
}

func TestDetectPlaybackNeverDrifts(t *testing.T) {
	built := SourceConfiguration{Kind: KindPlayback, Scale: 1, RefTime: 255, Channels: 1}
	p := config.DefaultParams()
	p.Scale = 0.1
	assert.False(t, Detect(built, p).Drifted())
}

type recordingBuilder struct {
	calls   []uint32
	built   []*sourcetest.Fake
	failOn  map[string]error
	channel int
}

func (b *recordingBuilder) Build(ctx context.Context, path string, p config.Params, resume uint32) (Active, error) {
	b.calls = append(b.calls, resume)
	if err := b.failOn[path]; err != nil {
		return nil, err
	}
	c := b.channel
	if c == 0 {
		c = p.Channels()
	}
	f := sourcetest.New(4, 4, c, p.RefTime, 30*p.RefTime)
	f.ScaleValue = p.Scale
	f.Start = resume
	b.built = append(b.built, f)
	return &Framed{Source: f}, nil
}

func dirtyState(c *Controller) {
	c.Stats().AddBatches([][]event.Event{{{}, {}}}, c.Active().Geometry(), 7650, 255)
	c.Clock().AddTicks(500)
	c.Clock().NextFrame()
	c.Publish(image.NewRGBA(image.Rect(0, 0, 1, 1)))
}

func TestRebuildResetsState(t *testing.T) {
	b := &recordingBuilder{failOn: map[string]error{"bad.mp4": &source.ConstructionError{Reason: "Invalid file type"}}}
	c := NewController(b)
	ctx := context.Background()
	p := config.DefaultParams()

	require.NoError(t, c.Rebuild(ctx, "a.mp4", p, 0))
	gen := c.Generation()
	assert.NotEmpty(t, gen)
	assert.Equal(t, "a.mp4", c.SourceName())
	dirtyState(c)
	require.NotZero(t, c.Stats().EventsTotal())

	require.NoError(t, c.Rebuild(ctx, "b.mp4", p, 12))
	assert.Zero(t, c.Stats().EventsTotal())
	assert.Zero(t, c.Clock().Ticks())
	assert.Zero(t, c.Clock().FrameIndex())
	assert.Nil(t, c.Display())
	assert.NotEqual(t, gen, c.Generation())
	assert.True(t, b.built[0].Closed, "previous source drained before binding")
	assert.Equal(t, uint32(12), b.built[1].Start)
	assert.Equal(t, uint32(30*p.RefTime), c.Clock().TicksPerSecond())

	dirtyState(c)
	err := c.Rebuild(ctx, "bad.mp4", p, 0)
	require.Error(t, err)
	assert.Zero(t, c.Stats().EventsTotal())
	assert.Zero(t, c.Clock().Ticks())
	assert.Nil(t, c.Active())
	assert.True(t, c.Failed())
	assert.Equal(t, "ADDER transcoder: Invalid file type", c.SourceName())
	assert.Empty(t, c.Generation())
	assert.True(t, b.built[1].Closed)
	assert.Equal(t, "bad.mp4", c.Path())
}

func TestFailedRebuildRestoresInitialClock(t *testing.T) {
	b := &recordingBuilder{failOn: map[string]error{"bad.mp4": errors.New("boom")}}
	c := NewController(b)
	initial := c.Clock().State()
	ctx := context.Background()

	require.NoError(t, c.Rebuild(ctx, "a.mp4", config.DefaultParams(), 0))
	c.Clock().SetSpeed(4)
	require.NotEqual(t, initial, c.Clock().State())

	require.Error(t, c.Rebuild(ctx, "bad.mp4", config.DefaultParams(), 0))
	if diff := cmp.Diff(initial, c.Clock().State()); diff != "" {
		t.Errorf("clock mismatch (-initial +after failed rebuild):\n%s", diff)
	}
}

func TestAtMostOneSource(t *testing.T) {
	b := &recordingBuilder{failOn: map[string]error{"broken.mp4": errors.New("boom")}}
	c := NewController(b)
	ctx := context.Background()

	for _, path := range []string{"a.mp4", "b.mp4", "broken.mp4", "c.mp4"} {
		_ = c.Rebuild(ctx, path, config.DefaultParams(), 0)
		open := 0
		for _, f := range b.built {
			if !f.Closed {
				open++
			}
		}
		if c.Active() == nil {
			assert.Zero(t, open, path)
		} else {
			assert.Equal(t, 1, open, path)
			_, ok := Transcoder(c.Active())
			assert.True(t, ok)
		}
	}
	require.NoError(t, c.Close())
	assert.True(t, b.built[len(b.built)-1].Closed)
}

func TestRebuildForcesCameraResumeToZero(t *testing.T) {
	b := &recordingBuilder{}
	c := NewController(b)
	require.NoError(t, c.Rebuild(context.Background(), "rec.txt", config.DefaultParams(), 99))
	require.NoError(t, c.Rebuild(context.Background(), "clip.mp4", config.DefaultParams(), 99))
	assert.Equal(t, []uint32{0, 99}, b.calls)
}

func TestRebuildRecordsActualChannels(t *testing.T) {
	b := &recordingBuilder{channel: 1}
	c := NewController(b)
	p := config.DefaultParams()
	require.NoError(t, c.Rebuild(context.Background(), "gray.mp4", p, 0))

	want := SourceConfiguration{
		Kind:          KindFramed,
		Scale:         p.Scale,
		ThresholdPos:  p.ThresholdPos,
		ThresholdNeg:  p.ThresholdNeg,
		RefTime:       p.RefTime,
		DeltaTMaxMult: p.DeltaTMaxMult,
		Channels:      1,
		Color:         true,
		Optimize:      p.Optimize,
	}
	if diff := cmp.Diff(want, c.Baseline()); diff != "" {
		t.Errorf("baseline mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, ReasonChannels, c.Detect(p).Reason)
}

func TestDetectWithoutSource(t *testing.T) {
	c := NewController(&recordingBuilder{})
	assert.False(t, c.Detect(config.DefaultParams()).Drifted())
	assert.Nil(t, c.Active())
	assert.NoError(t, c.Close())
}

func TestPlaybackBuilder(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "clip.adder")
	w, err := codec.Create(path, codec.Header{Width: 2, Height: 2, Channels: 1, TicksPerSecond: 7650, RefInterval: 255, DeltaTMax: 255})
	require.NoError(t, err)
	require.NoError(t, w.Close())

	c := NewController(PlaybackBuilder{})
	require.NoError(t, c.Rebuild(context.Background(), path, config.DefaultParams(), 0))
	pb, ok := c.Active().(*Playback)
	require.True(t, ok)
	assert.Equal(t, KindPlayback, pb.Kind())
	assert.Equal(t, uint32(7650), c.Clock().TicksPerSecond())
	assert.Equal(t, 2, c.Active().Geometry().Width)

	err = c.Rebuild(context.Background(), filepath.Join(dir, "clip.mp4"), config.DefaultParams(), 0)
	assert.EqualError(t, err, "ADDER player: Invalid file type")

	err = c.Rebuild(context.Background(), filepath.Join(dir, "missing.adder"), config.DefaultParams(), 0)
	var ce *source.ConstructionError
	assert.ErrorAs(t, err, &ce)
	assert.Nil(t, c.Active())
}

func TestTranscodeBuilderRejectsStreams(t *testing.T) {
	c := NewController(TranscodeBuilder{})
	err := c.Rebuild(context.Background(), "out.adder", config.DefaultParams(), 0)
	assert.EqualError(t, err, "ADDER transcoder: Invalid file type")
	assert.True(t, c.Failed())
}
