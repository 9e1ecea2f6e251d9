package source

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/bryanchriswhite/addertuner/internal/config"
	"github.com/bryanchriswhite/addertuner/internal/logger"
)

// DefaultChunkRows is the row band height integrated per worker task
const DefaultChunkRows = 64

// Options tunes construction beyond the live parameters
type Options struct {
	ChunkRows int
	// ImageFPS is the frame rate assumed for image sequences
	ImageFPS float64
}

func (o Options) chunkRows() int {
	if o.ChunkRows < 1 {
		return DefaultChunkRows
	}
	return o.ChunkRows
}

// Open builds a transcoder source for path. Framed inputs resume at
// frameStart; event-camera inputs always start from the beginning. Every
// failure is a *ConstructionError.
func Open(ctx context.Context, path string, p config.Params, frameStart uint32, opts Options) (Source, error) {
	log := logger.WithComponent("source")

	kind := Classify(path)
	log.Debug().Str("path", path).Str("kind", kind.String()).Uint32("frame_start", frameStart).Msg("Opening source")

	switch kind {
	case KindFramed:
		reader, err := openFrameReader(ctx, path, frameStart, opts)
		if err != nil {
			return nil, &ConstructionError{Prefix: TranscoderPrefix, Reason: "Invalid file type", Err: err}
		}
		src, err := NewFramed(reader, p, frameStart, opts.chunkRows())
		if err != nil {
			_ = reader.Close()
			return nil, &ConstructionError{Prefix: TranscoderPrefix, Reason: "Invalid file type", Err: err}
		}
		return src, nil

	case KindEventCamera:
		knobs := NewReconstructorConfig(p)
		rec, err := NewDVSTextReconstructor(path, &knobs)
		if err != nil {
			return nil, &ConstructionError{Prefix: TranscoderPrefix, Reason: "Invalid file type", Err: err}
		}
		src, err := NewEventCamera(rec, &knobs, p, opts.chunkRows())
		if err != nil {
			_ = rec.Close()
			return nil, &ConstructionError{Prefix: TranscoderPrefix, Reason: "Invalid file type", Err: err}
		}
		return src, nil

	default:
		return nil, InvalidFileType(TranscoderPrefix)
	}
}

func openFrameReader(ctx context.Context, path string, frameStart uint32, opts Options) (FrameReader, error) {
	if fi, err := os.Stat(path); err == nil && fi.IsDir() {
		return NewImageSequence(path, frameStart, opts.ImageFPS)
	}
	if strings.EqualFold(filepath.Ext(path), ".gif") {
		return NewGIFReader(path, frameStart)
	}
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}
	return NewGstReader(ctx, path, frameStart)
}
