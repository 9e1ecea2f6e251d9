package source

import (
	"context"
	"fmt"
	"image"
	"image/gif"
	"os"

	"golang.org/x/image/draw"
)

// GIFReader plays back the frames of an animated GIF, composited onto a
// canvas the way a browser would.
type GIFReader struct {
	g      *gif.GIF
	canvas *image.RGBA
	next   int
	fps    float64
}

// NewGIFReader decodes path fully and positions at frameStart
func NewGIFReader(path string, frameStart uint32) (*GIFReader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	g, err := gif.DecodeAll(f)
	if err != nil {
		return nil, fmt.Errorf("decode gif: %w", err)
	}
	if len(g.Image) == 0 {
		return nil, fmt.Errorf("gif has no frames")
	}

	w, h := g.Config.Width, g.Config.Height
	if w == 0 || h == 0 {
		b := g.Image[0].Bounds()
		w, h = b.Max.X, b.Max.Y
	}

	total := 0
	for _, d := range g.Delay {
		total += d
	}
	fps := 0.0
	if total > 0 {
		// delays are in hundredths of a second
		fps = 100 * float64(len(g.Delay)) / float64(total)
	}

	r := &GIFReader{
		g:      g,
		canvas: image.NewRGBA(image.Rect(0, 0, w, h)),
		fps:    fps,
	}
	for i := uint32(0); i < frameStart && r.next < len(g.Image); i++ {
		r.compose()
	}
	return r, nil
}

// compose draws the next frame onto the canvas and applies its disposal
func (r *GIFReader) compose() *image.RGBA {
	i := r.next
	r.next++
	src := r.g.Image[i]

	var restore *image.RGBA
	disposal := byte(gif.DisposalNone)
	if i < len(r.g.Disposal) {
		disposal = r.g.Disposal[i]
	}
	if disposal == gif.DisposalPrevious {
		restore = image.NewRGBA(r.canvas.Bounds())
		copy(restore.Pix, r.canvas.Pix)
	}

	draw.Draw(r.canvas, src.Bounds(), src, src.Bounds().Min, draw.Over)
	out := image.NewRGBA(r.canvas.Bounds())
	copy(out.Pix, r.canvas.Pix)

	switch disposal {
	case gif.DisposalBackground:
		draw.Draw(r.canvas, src.Bounds(), image.Transparent, image.Point{}, draw.Src)
	case gif.DisposalPrevious:
		r.canvas = restore
	}
	return out
}

func (r *GIFReader) Next(ctx context.Context) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if r.next >= len(r.g.Image) {
		return nil, ErrEndOfStream
	}
	return r.compose(), nil
}

func (r *GIFReader) Size() (int, int) {
	b := r.canvas.Bounds()
	return b.Dx(), b.Dy()
}

func (r *GIFReader) FPS() float64 { return r.fps }

func (r *GIFReader) Close() error { return nil }
