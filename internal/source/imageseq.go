package source

import (
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"sort"
	"strings"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

var imageExts = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true,
	".bmp": true, ".tif": true, ".tiff": true, ".webp": true,
}

// ImageSequence reads a directory of still images in lexical order
type ImageSequence struct {
	files  []string
	next   int
	width  int
	height int
	fps    float64
}

// NewImageSequence lists dir and positions at frameStart. fps <= 0 means
// DefaultFPS.
func NewImageSequence(dir string, frameStart uint32, fps float64) (*ImageSequence, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() || !imageExts[strings.ToLower(filepath.Ext(e.Name()))] {
			continue
		}
		files = append(files, filepath.Join(dir, e.Name()))
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no images in %s", dir)
	}
	sort.Strings(files)

	f, err := os.Open(files[0])
	if err != nil {
		return nil, err
	}
	cfg, _, err := image.DecodeConfig(f)
	f.Close()
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", files[0], err)
	}

	if fps <= 0 {
		fps = DefaultFPS
	}
	next := int(frameStart)
	if next > len(files) {
		next = len(files)
	}
	return &ImageSequence{
		files:  files,
		next:   next,
		width:  cfg.Width,
		height: cfg.Height,
		fps:    fps,
	}, nil
}

func (s *ImageSequence) Next(ctx context.Context) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.next >= len(s.files) {
		return nil, ErrEndOfStream
	}
	path := s.files[s.next]
	s.next++

	f, err := os.Open(path)
	if err != nil {
		return nil, Fault(err)
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	if err != nil {
		return nil, Fault(fmt.Errorf("decode %s: %w", path, err))
	}
	return img, nil
}

func (s *ImageSequence) Size() (int, int) { return s.width, s.height }

func (s *ImageSequence) FPS() float64 { return s.fps }

// Len is the number of frames in the sequence
func (s *ImageSequence) Len() int { return len(s.files) }

func (s *ImageSequence) Close() error { return nil }
