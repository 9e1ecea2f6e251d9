// Package pixconv turns reconstruction buffers into alpha-bearing rasters for
// display and encoding.
package pixconv

import (
	"fmt"
	"image"

	"golang.org/x/image/draw"

	"github.com/bryanchriswhite/addertuner/internal/frame"
)

// Converter converts a display buffer snapshot into an RGBA image
type Converter interface {
	Convert(buf *frame.Buffer) (*image.RGBA, error)
}

// BGRA converts mono and BGR buffers. Mono values are replicated into every
// color channel and alpha is always opaque.
type BGRA struct{}

func (BGRA) Convert(buf *frame.Buffer) (*image.RGBA, error) {
	if buf == nil {
		return nil, fmt.Errorf("nil buffer")
	}
	if buf.Len() != len(buf.Pix) {
		return nil, fmt.Errorf("buffer holds %d bytes, want %d", len(buf.Pix), buf.Len())
	}
	img := image.NewRGBA(image.Rect(0, 0, buf.Width, buf.Height))
	n := buf.Width * buf.Height

	switch buf.Channels {
	case 1:
		for i := 0; i < n; i++ {
			v := buf.Pix[i]
			o := i * 4
			img.Pix[o], img.Pix[o+1], img.Pix[o+2], img.Pix[o+3] = v, v, v, 0xff
		}
	case 3:
		for i := 0; i < n; i++ {
			s, o := i*3, i*4
			img.Pix[o] = buf.Pix[s+2]
			img.Pix[o+1] = buf.Pix[s+1]
			img.Pix[o+2] = buf.Pix[s]
			img.Pix[o+3] = 0xff
		}
	default:
		return nil, fmt.Errorf("unsupported channel count %d", buf.Channels)
	}
	return img, nil
}

// ConverterFunc adapts a function to Converter
type ConverterFunc func(buf *frame.Buffer) (*image.RGBA, error)

func (f ConverterFunc) Convert(buf *frame.Buffer) (*image.RGBA, error) {
	return f(buf)
}

// Scale resizes img to w×h. Upscaling keeps hard pixel edges so sparse
// event updates stay readable; downscaling is bilinear.
func Scale(img *image.RGBA, w, h int) *image.RGBA {
	b := img.Bounds()
	if b.Dx() == w && b.Dy() == h {
		return img
	}
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	var s draw.Scaler = draw.ApproxBiLinear
	if w >= b.Dx() && h >= b.Dy() {
		s = draw.NearestNeighbor
	}
	s.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return dst
}

// FitWidth scales img to width w, keeping its aspect ratio
func FitWidth(img *image.RGBA, w int) *image.RGBA {
	b := img.Bounds()
	if w <= 0 || b.Dx() == 0 || b.Dx() == w {
		return img
	}
	h := b.Dy() * w / b.Dx()
	if h < 1 {
		h = 1
	}
	return Scale(img, w, h)
}
