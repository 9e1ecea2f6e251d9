package source

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/bryanchriswhite/addertuner/internal/logger"
)

// GstLaunch is the gst-launch binary used for decoding
var GstLaunch = "gst-launch-1.0"

const (
	gstProbeTimeout = 10 * time.Second
	gstFrameBacklog = 8
)

// GstReader decodes a video file by running gst-launch-1.0 as a subprocess
// and reading raw RGBA frames from its stdout. This avoids CGO.
type GstReader struct {
	path   string
	width  int
	height int
	fps    float64
	skip   uint32

	cmd    *exec.Cmd
	stdout io.ReadCloser
	stderr io.ReadCloser

	frames   chan *image.RGBA
	stopChan chan struct{}

	mu      sync.Mutex
	err     error
	running bool
}

// NewGstReader probes the file for its caps and starts decoding in the
// background, discarding the first frameStart frames.
func NewGstReader(ctx context.Context, path string, frameStart uint32) (*GstReader, error) {
	g := &GstReader{path: path, skip: frameStart}
	if err := g.probe(ctx); err != nil {
		return nil, err
	}
	if err := g.start(); err != nil {
		return nil, err
	}
	return g, nil
}

// probe runs a one-buffer pipeline and parses the negotiated caps
func (g *GstReader) probe(ctx context.Context) error {
	log := logger.WithComponent("gst")

	ctx, cancel := context.WithTimeout(ctx, gstProbeTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, GstLaunch, "-v",
		"filesrc", "location="+g.path, "!",
		"decodebin", "!",
		"videoconvert", "!",
		"video/x-raw,format=RGBA", "!",
		"fakesink", "num-buffers=1",
	)
	output, err := cmd.CombinedOutput()
	if err != nil {
		// caps are usually printed before any error
		log.Debug().Err(err).Str("output", string(output)).Msg("Probe command output")
	}

	w, h, fps, ok := parseCaps(string(output))
	if !ok {
		if err != nil {
			return fmt.Errorf("probe %s: %w", g.path, err)
		}
		return fmt.Errorf("could not determine video dimensions for %s", g.path)
	}
	g.width, g.height, g.fps = w, h, fps
	log.Info().Int("width", w).Int("height", h).Float64("fps", fps).Msg("Video caps")
	return nil
}

// parseCaps finds the first raw video caps line, e.g.
// caps = video/x-raw, format=(string)RGBA, width=(int)640, height=(int)480, framerate=(fraction)30/1
func parseCaps(output string) (width, height int, fps float64, ok bool) {
	for _, line := range strings.Split(output, "\n") {
		if !strings.Contains(line, "video/x-raw") || !strings.Contains(line, "width=") {
			continue
		}
		width = extractIntFromCaps(line, "width")
		height = extractIntFromCaps(line, "height")
		if width > 0 && height > 0 {
			return width, height, extractFractionFromCaps(line, "framerate"), true
		}
	}
	return 0, 0, 0, false
}

// extractIntFromCaps extracts an integer value from GStreamer caps string
func extractIntFromCaps(caps, key string) int {
	// Look for patterns like "width=(int)1920" or "width=1920"
	patterns := []string{
		key + "=(int)",
		key + "=",
	}

	for _, pattern := range patterns {
		idx := strings.Index(caps, pattern)
		if idx >= 0 {
			start := idx + len(pattern)
			end := start
			for end < len(caps) && (caps[end] >= '0' && caps[end] <= '9') {
				end++
			}
			if end > start {
				val, err := strconv.Atoi(caps[start:end])
				if err == nil {
					return val
				}
			}
		}
	}
	return 0
}

// extractFractionFromCaps parses "framerate=(fraction)30000/1001" as a float
func extractFractionFromCaps(caps, key string) float64 {
	for _, pattern := range []string{key + "=(fraction)", key + "="} {
		idx := strings.Index(caps, pattern)
		if idx < 0 {
			continue
		}
		rest := caps[idx+len(pattern):]
		if end := strings.IndexAny(rest, ", ;"); end >= 0 {
			rest = rest[:end]
		}
		num, den, found := strings.Cut(rest, "/")
		n, err := strconv.ParseFloat(num, 64)
		if err != nil {
			continue
		}
		if !found {
			return n
		}
		d, err := strconv.ParseFloat(den, 64)
		if err != nil || d == 0 {
			continue
		}
		return n / d
	}
	return 0
}

// start launches the decoding pipeline
func (g *GstReader) start() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.running {
		return fmt.Errorf("pipeline already running")
	}

	log := logger.WithComponent("gst")

	g.cmd = exec.Command(GstLaunch, "-q",
		"filesrc", "location="+g.path, "!",
		"decodebin", "!",
		"videoconvert", "!",
		fmt.Sprintf("video/x-raw,format=RGBA,width=%d,height=%d", g.width, g.height), "!",
		"fdsink", "fd=1", "sync=false",
	)

	stdout, err := g.cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("failed to get stdout pipe: %w", err)
	}
	g.stdout = stdout

	stderr, err := g.cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("failed to get stderr pipe: %w", err)
	}
	g.stderr = stderr

	if err := g.cmd.Start(); err != nil {
		return fmt.Errorf("failed to start gst-launch: %w", err)
	}

	g.running = true
	g.stopChan = make(chan struct{})
	g.frames = make(chan *image.RGBA, gstFrameBacklog)

	go g.readFrames()
	go g.logStderr()

	log.Info().Str("path", g.path).Int("pid", g.cmd.Process.Pid).Msg("GStreamer subprocess started")
	return nil
}

// readFrames reads fixed-size RGBA frames until EOF or Close
func (g *GstReader) readFrames() {
	log := logger.WithComponent("gst")
	defer close(g.frames)

	frameSize := g.width * g.height * 4
	reader := bufio.NewReaderSize(g.stdout, frameSize*2)
	var skipped uint32

	for {
		img := image.NewRGBA(image.Rect(0, 0, g.width, g.height))
		n, err := io.ReadFull(reader, img.Pix)
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				log.Debug().Int("bytes_read", n).Msg("EOF from GStreamer subprocess")
				g.finish(ErrEndOfStream)
				return
			}
			select {
			case <-g.stopChan:
				g.finish(ErrEndOfStream)
			default:
				log.Error().Err(err).Int("bytes_read", n).Msg("Error reading frame")
				g.finish(Fault(err))
			}
			return
		}

		if skipped < g.skip {
			skipped++
			continue
		}

		select {
		case g.frames <- img:
		case <-g.stopChan:
			log.Debug().Msg("Frame reader stopping")
			g.finish(ErrEndOfStream)
			return
		}
	}
}

func (g *GstReader) finish(err error) {
	g.mu.Lock()
	if g.err == nil {
		g.err = err
	}
	g.mu.Unlock()
}

// logStderr logs any errors from the GStreamer subprocess
func (g *GstReader) logStderr() {
	log := logger.WithComponent("gst")
	scanner := bufio.NewScanner(g.stderr)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.Contains(line, "ERROR") || strings.Contains(line, "WARN") {
			log.Warn().Str("gst", line).Msg("GStreamer message")
		} else {
			log.Debug().Str("gst", line).Msg("GStreamer output")
		}
	}
}

// Next returns the next decoded frame without blocking. ErrNotYetOpen means
// the decoder has not caught up yet.
func (g *GstReader) Next(ctx context.Context) (image.Image, error) {
	select {
	case img, ok := <-g.frames:
		if !ok {
			g.mu.Lock()
			defer g.mu.Unlock()
			if g.err == nil {
				return nil, ErrEndOfStream
			}
			return nil, g.err
		}
		return img, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
		return nil, ErrNotYetOpen
	}
}

// Size returns the decoded frame dimensions
func (g *GstReader) Size() (int, int) { return g.width, g.height }

// FPS returns the probed frame rate, 0 if unknown
func (g *GstReader) FPS() float64 { return g.fps }

// Close stops the GStreamer subprocess
func (g *GstReader) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.running {
		return nil
	}

	log := logger.WithComponent("gst")

	close(g.stopChan)

	if g.cmd != nil && g.cmd.Process != nil {
		log.Debug().Int("pid", g.cmd.Process.Pid).Msg("Killing GStreamer subprocess")
		_ = g.cmd.Process.Kill()
		_ = g.cmd.Wait()
	}

	g.running = false
	log.Info().Str("path", g.path).Msg("GStreamer subprocess stopped")
	return nil
}
