package source

import (
	"context"
	"errors"
	"image"
	"image/color"
	"image/gif"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/bryanchriswhite/addertuner/internal/config"
	"github.com/bryanchriswhite/addertuner/internal/workpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sliceReader struct {
	frames []image.Image
	next   int
	closed bool
}

func (r *sliceReader) Next(ctx context.Context) (image.Image, error) {
	if r.next >= len(r.frames) {
		return nil, ErrEndOfStream
	}
	img := r.frames[r.next]
	r.next++
	return img, nil
}

func (r *sliceReader) Size() (int, int) {
	b := r.frames[0].Bounds()
	return b.Dx(), b.Dy()
}

func (r *sliceReader) FPS() float64 { return 0 }

func (r *sliceReader) Close() error {
	r.closed = true
	return nil
}

func solid(w, h int, c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = c.R, c.G, c.B, c.A
	}
	return img
}

func testParams() config.Params {
	p := config.DefaultParams()
	p.Scale = 0.5
	p.Color = false
	return p
}

func TestFramedScalesAndConvertsToLuma(t *testing.T) {
	r := &sliceReader{frames: []image.Image{
		solid(8, 4, color.RGBA{R: 100, G: 100, B: 100, A: 255}),
		solid(8, 4, color.RGBA{R: 100, G: 100, B: 100, A: 255}),
	}}
	src, err := NewFramed(r, testParams(), 0, 1)
	require.NoError(t, err)

	assert.Equal(t, 4, src.Width())
	assert.Equal(t, 2, src.Height())
	assert.Equal(t, 1, src.Channels())
	assert.Equal(t, 0.5, src.Scale())
	assert.Equal(t, uint32(255*30), src.TicksPerSecond(), "default 30 fps")

	batches, err := src.Advance(context.Background(), 1, workpool.New(2))
	require.NoError(t, err)
	assert.Len(t, batches, 2, "one batch per row chunk")
	assert.Equal(t, uint32(1), src.IntervalCount())
	for _, v := range src.InstantaneousFrame().Pix {
		assert.InDelta(t, 100, int(v), 1)
	}

	_, err = src.Advance(context.Background(), 1, nil)
	require.NoError(t, err)
	_, err = src.Advance(context.Background(), 1, nil)
	assert.ErrorIs(t, err, ErrEndOfStream)

	require.NoError(t, src.Close())
	assert.True(t, r.closed)
}

func TestFramedColorIsBGR(t *testing.T) {
	p := testParams()
	p.Color = true
	p.Scale = 1
	r := &sliceReader{frames: []image.Image{solid(1, 1, color.RGBA{R: 10, G: 20, B: 30, A: 255})}}
	src, err := NewFramed(r, p, 0, 64)
	require.NoError(t, err)
	_, err = src.Advance(context.Background(), 1, nil)
	require.NoError(t, err)
	assert.Equal(t, []byte{30, 20, 10}, src.InstantaneousFrame().Pix)
}

func TestFramedPartialAdvance(t *testing.T) {
	r := &sliceReader{frames: []image.Image{solid(2, 2, color.RGBA{A: 255})}}
	src, err := NewFramed(r, testParams(), 0, 64)
	require.NoError(t, err)
	batches, err := src.Advance(context.Background(), 3, nil)
	require.NoError(t, err)
	assert.Len(t, batches, 1)
	assert.Equal(t, uint32(1), src.IntervalCount())
}

func writePNG(t *testing.T, path string, img image.Image) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, png.Encode(f, img))
}

func TestImageSequence(t *testing.T) {
	dir := t.TempDir()
	for i, v := range []uint8{10, 20, 30} {
		writePNG(t, filepath.Join(dir, "f"+string(rune('0'+i))+".png"), solid(4, 2, color.RGBA{v, v, v, 255}))
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("skip me"), 0644))

	seq, err := NewImageSequence(dir, 1, 0)
	require.NoError(t, err)
	assert.Equal(t, 3, seq.Len())
	w, h := seq.Size()
	assert.Equal(t, [2]int{4, 2}, [2]int{w, h})
	assert.Equal(t, DefaultFPS, seq.FPS())

	img, err := seq.Next(context.Background())
	require.NoError(t, err)
	r, _, _, _ := img.At(0, 0).RGBA()
	assert.Equal(t, uint32(20), r>>8, "resumed at the second frame")

	_, err = seq.Next(context.Background())
	require.NoError(t, err)
	_, err = seq.Next(context.Background())
	assert.ErrorIs(t, err, ErrEndOfStream)

	_, err = NewImageSequence(t.TempDir(), 0, 0)
	assert.Error(t, err)
}

func TestGIFReader(t *testing.T) {
	pal := color.Palette{color.Black, color.White}
	g := &gif.GIF{Config: image.Config{Width: 2, Height: 2, ColorModel: pal}}
	for i := 0; i < 3; i++ {
		fr := image.NewPaletted(image.Rect(0, 0, 2, 2), pal)
		if i%2 == 1 {
			for j := range fr.Pix {
				fr.Pix[j] = 1
			}
		}
		g.Image = append(g.Image, fr)
		g.Delay = append(g.Delay, 10)
		g.Disposal = append(g.Disposal, gif.DisposalNone)
	}
	path := filepath.Join(t.TempDir(), "clip.gif")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, gif.EncodeAll(f, g))
	require.NoError(t, f.Close())

	r, err := NewGIFReader(path, 1)
	require.NoError(t, err)
	assert.InDelta(t, 10, r.FPS(), 1e-9)

	img, err := r.Next(context.Background())
	require.NoError(t, err)
	red, _, _, _ := img.At(0, 0).RGBA()
	assert.Equal(t, uint32(0xffff), red, "frame 1 is white")

	_, err = r.Next(context.Background())
	require.NoError(t, err)
	_, err = r.Next(context.Background())
	assert.True(t, errors.Is(err, ErrEndOfStream))
}

func TestOpenDirectoryResumes(t *testing.T) {
	dir := t.TempDir()
	for i := 0; i < 4; i++ {
		writePNG(t, filepath.Join(dir, "f"+string(rune('0'+i))+".png"), solid(4, 4, color.RGBA{50, 50, 50, 255}))
	}
	src, err := Open(context.Background(), dir, testParams(), 2, Options{})
	require.NoError(t, err)
	defer src.Close()

	assert.Equal(t, uint32(2), src.FrameStart())
	_, err = src.Advance(context.Background(), 1, nil)
	require.NoError(t, err)
	_, err = src.Advance(context.Background(), 1, nil)
	require.NoError(t, err)
	_, err = src.Advance(context.Background(), 1, nil)
	assert.ErrorIs(t, err, ErrEndOfStream)
}
