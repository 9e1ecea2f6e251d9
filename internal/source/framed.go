package source

import (
	"context"
	"fmt"
	"image"
	"math"

	"github.com/bryanchriswhite/addertuner/internal/config"
	"github.com/bryanchriswhite/addertuner/internal/event"
	"github.com/bryanchriswhite/addertuner/internal/logger"
	"github.com/bryanchriswhite/addertuner/internal/workpool"
	"golang.org/x/image/draw"
)

// DefaultFPS is assumed when a reader cannot report its frame rate
const DefaultFPS = 30.0

// FrameReader yields decoded input frames in order. Readers that decode in
// the background return ErrNotYetOpen while no frame is ready.
type FrameReader interface {
	Next(ctx context.Context) (image.Image, error)
	Size() (width, height int)
	FPS() float64
	Close() error
}

// Framed transcodes a conventional video: each input frame is one reference
// interval of constant intensity per pixel.
type Framed struct {
	*Video

	reader     FrameReader
	scale      float64
	frameStart uint32
	tps        uint32

	scaled *image.RGBA
	plane  []byte
}

// NewFramed builds a framed source over reader. The reader is expected to
// have already skipped to frameStart.
func NewFramed(reader FrameReader, p config.Params, frameStart uint32, chunkRows int) (*Framed, error) {
	w, h := reader.Size()
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("reader reported no dimensions")
	}
	scale := p.Scale
	if scale <= 0 || scale > 1 {
		scale = 1
	}
	sw := max(1, int(math.Round(float64(w)*scale)))
	sh := max(1, int(math.Round(float64(h)*scale)))

	video, err := NewVideo(VideoConfig{
		Width:        sw,
		Height:       sh,
		Channels:     p.Channels(),
		RefTime:      p.RefTime,
		DeltaTMax:    p.DeltaTMax(),
		ThresholdPos: p.ThresholdPos,
		ThresholdNeg: p.ThresholdNeg,
		ChunkRows:    chunkRows,
		ViewMode:     p.ViewMode,
	})
	if err != nil {
		return nil, err
	}

	fps := reader.FPS()
	if fps <= 0 {
		fps = DefaultFPS
	}

	logger.WithComponent("source").Info().
		Int("width", sw).
		Int("height", sh).
		Int("channels", p.Channels()).
		Float64("fps", fps).
		Uint32("frame_start", frameStart).
		Msg("Framed source ready")

	return &Framed{
		Video:      video,
		reader:     reader,
		scale:      scale,
		frameStart: frameStart,
		tps:        uint32(math.Round(float64(p.RefTime) * fps)),
		scaled:     image.NewRGBA(image.Rect(0, 0, sw, sh)),
		plane:      make([]byte, sw*sh*p.Channels()),
	}, nil
}

func (f *Framed) Scale() float64         { return f.scale }
func (f *Framed) TicksPerSecond() uint32 { return f.tps }
func (f *Framed) FrameStart() uint32     { return f.frameStart }

// Advance integrates the next intervals input frames. Errors from the first
// frame are returned as is; a later error ends the call early with what was
// already integrated and resurfaces on the next call.
func (f *Framed) Advance(ctx context.Context, intervals int, pool *workpool.Pool) ([][]event.Event, error) {
	var out [][]event.Event
	for i := 0; i < intervals; i++ {
		img, err := f.reader.Next(ctx)
		if err != nil {
			if i == 0 {
				return nil, err
			}
			break
		}
		f.toPlane(img)
		batches, err := f.Integrate(ctx, f.plane, pool)
		if err != nil {
			return nil, err
		}
		out = append(out, batches...)
	}
	return out, nil
}

// toPlane scales img to the source size and writes it as BGR or luma
func (f *Framed) toPlane(img image.Image) {
	if img.Bounds().Size() == f.scaled.Bounds().Size() {
		draw.Draw(f.scaled, f.scaled.Bounds(), img, img.Bounds().Min, draw.Src)
	} else {
		draw.ApproxBiLinear.Scale(f.scaled, f.scaled.Bounds(), img, img.Bounds(), draw.Src, nil)
	}
	ToPlane(f.scaled, f.Channels(), f.plane)
}

// ToPlane writes an RGBA image into dst as BGR-interleaved (3 channels) or
// luma (1 channel) bytes.
func ToPlane(img *image.RGBA, channels int, dst []byte) {
	b := img.Bounds()
	i := 0
	for y := b.Min.Y; y < b.Max.Y; y++ {
		row := img.Pix[(y-b.Min.Y)*img.Stride:]
		for x := 0; x < b.Dx(); x++ {
			r, g, bl := row[x*4], row[x*4+1], row[x*4+2]
			if channels == 1 {
				dst[i] = uint8((299*uint32(r) + 587*uint32(g) + 114*uint32(bl) + 500) / 1000)
				i++
				continue
			}
			dst[i] = bl
			dst[i+1] = g
			dst[i+2] = r
			i += 3
		}
	}
}

// Close releases the reader
func (f *Framed) Close() error {
	return f.reader.Close()
}
