package source

import (
	"bufio"
	"context"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
)

// leak pulls log intensity back toward mid-grey each frame when frames are
// not built from events alone.
const dvsLeak = 0.05

type dvsEvent struct {
	t    float64
	x, y int
	on   bool
}

// DVSTextReconstructor integrates a plain-text DVS recording into frames.
// Each line is "t x y p" with t in seconds and p in {0, 1} or {-1, 1}. An
// optional first line "width height" (or "# width height") sets the
// geometry; otherwise the knobs' sensor size is used. Every event moves its
// pixel's log intensity by ± the contrast threshold.
type DVSTextReconstructor struct {
	f     *os.File
	sc    *bufio.Scanner
	knobs *ReconstructorConfig
	line  int

	width  int
	height int
	logI   []float64
	plane  []byte

	t0      float64
	started bool
	frame   int
	pending *dvsEvent
	eof     bool
}

// NewDVSTextReconstructor opens path and reads the optional header. knobs
// are consulted on every frame.
func NewDVSTextReconstructor(path string, knobs *ReconstructorConfig) (*DVSTextReconstructor, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	r := &DVSTextReconstructor{
		f:      f,
		sc:     bufio.NewScanner(f),
		knobs:  knobs,
		width:  knobs.Width,
		height: knobs.Height,
	}

	// the first line is either a header or the first event
	if r.sc.Scan() {
		r.line++
		raw := strings.TrimSpace(r.sc.Text())
		fields := strings.Fields(strings.TrimPrefix(raw, "#"))
		w, h, isHeader := parseGeometry(fields)
		switch {
		case isHeader:
			r.width, r.height = w, h
		case raw == "" || strings.HasPrefix(raw, "#"):
		default:
			ev, err := r.parse(r.sc.Text())
			if err != nil {
				f.Close()
				return nil, err
			}
			r.pending = ev
		}
	} else if err := r.sc.Err(); err != nil {
		f.Close()
		return nil, err
	}

	if r.width <= 0 || r.height <= 0 {
		f.Close()
		return nil, fmt.Errorf("no sensor geometry")
	}
	r.logI = make([]float64, r.width*r.height)
	r.plane = make([]byte, r.width*r.height)
	return r, nil
}

func parseGeometry(fields []string) (w, h int, ok bool) {
	if len(fields) != 2 {
		return 0, 0, false
	}
	w, err1 := strconv.Atoi(fields[0])
	h, err2 := strconv.Atoi(fields[1])
	if err1 != nil || err2 != nil || w <= 0 || h <= 0 {
		return 0, 0, false
	}
	return w, h, true
}

func (r *DVSTextReconstructor) parse(line string) (*dvsEvent, error) {
	fields := strings.Fields(line)
	if len(fields) != 4 {
		return nil, fmt.Errorf("line %d: want 4 fields, got %d", r.line, len(fields))
	}
	t, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return nil, fmt.Errorf("line %d: timestamp: %w", r.line, err)
	}
	x, err := strconv.Atoi(fields[1])
	if err != nil {
		return nil, fmt.Errorf("line %d: x: %w", r.line, err)
	}
	y, err := strconv.Atoi(fields[2])
	if err != nil {
		return nil, fmt.Errorf("line %d: y: %w", r.line, err)
	}
	p, err := strconv.Atoi(fields[3])
	if err != nil {
		return nil, fmt.Errorf("line %d: polarity: %w", r.line, err)
	}
	return &dvsEvent{t: t, x: x, y: y, on: p > 0}, nil
}

// read fills r.pending with the next event, skipping blanks and comments
func (r *DVSTextReconstructor) read() error {
	for r.sc.Scan() {
		r.line++
		text := strings.TrimSpace(r.sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		ev, err := r.parse(text)
		if err != nil {
			return err
		}
		r.pending = ev
		return nil
	}
	if err := r.sc.Err(); err != nil {
		return err
	}
	r.eof = true
	return nil
}

// Next integrates every event of the next 1/fps window and renders it
func (r *DVSTextReconstructor) Next(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if r.pending == nil && !r.eof {
		if err := r.read(); err != nil {
			return nil, Fault(err)
		}
	}
	if r.pending == nil && r.eof {
		return nil, ErrEndOfStream
	}
	if !r.started {
		r.t0 = r.pending.t
		r.started = true
	}

	fps := r.knobs.OutputFPS
	if fps <= 0 {
		fps = 1
	}
	c := r.knobs.ContrastThreshold
	if c <= 0 {
		c = DefaultContrastThreshold
	}
	end := r.t0 + float64(r.frame+1)/fps

	for r.pending != nil && r.pending.t < end {
		ev := r.pending
		r.pending = nil
		if ev.x >= 0 && ev.y >= 0 && ev.x < r.width && ev.y < r.height {
			if ev.on {
				r.logI[ev.y*r.width+ev.x] += c
			} else {
				r.logI[ev.y*r.width+ev.x] -= c
			}
		}
		if err := r.read(); err != nil {
			return nil, Fault(err)
		}
	}
	r.frame++

	for i, l := range r.logI {
		if !r.knobs.EventsOnly {
			l *= 1 - dvsLeak
			r.logI[i] = l
		}
		v := 128 * math.Exp(l)
		switch {
		case v > 255:
			r.plane[i] = 255
		case v < 0:
			r.plane[i] = 0
		default:
			r.plane[i] = uint8(v)
		}
	}
	out := make([]byte, len(r.plane))
	copy(out, r.plane)
	return out, nil
}

func (r *DVSTextReconstructor) Size() (int, int) { return r.width, r.height }

func (r *DVSTextReconstructor) Close() error {
	if r.f == nil {
		return nil
	}
	err := r.f.Close()
	r.f = nil
	return err
}
