// Package scheduler drives one Cycler from a single goroutine at a fixed
// rate. Everything that touches the cycler's state is funneled through
// Submit and runs on that goroutine.
package scheduler

import (
	"context"
	"errors"
	"image"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/bryanchriswhite/addertuner/internal/logger"
	"github.com/bryanchriswhite/addertuner/internal/output"
	"github.com/bryanchriswhite/addertuner/internal/overlay"
	"github.com/bryanchriswhite/addertuner/internal/stats"
	"github.com/bryanchriswhite/addertuner/internal/timeline"
)

// ErrStopped is returned by Submit and Do once the loop has exited
var ErrStopped = errors.New("scheduler stopped")

// Result is the outcome of one cycle
type Result struct {
	// Frame is the newly produced display raster; nil when the cycle
	// produced none
	Frame      *image.RGBA    `json:"-"`
	Stats      stats.Snapshot `json:"stats"`
	SourceName string         `json:"source_name"`
	Generation string         `json:"generation,omitempty"`
	State      string         `json:"state"`
	Clock      timeline.State `json:"clock"`
}

// Cycler performs one unit of work per scheduling cycle
type Cycler interface {
	Cycle(ctx context.Context) Result
}

// CyclerFunc adapts a function to Cycler
type CyclerFunc func(ctx context.Context) Result

func (f CyclerFunc) Cycle(ctx context.Context) Result { return f(ctx) }

// Scheduler owns the cycle loop
type Scheduler struct {
	cycler   Cycler
	interval time.Duration
	overlay  *overlay.Manager
	outputs  []output.Output

	cmds chan func(context.Context)
	done chan struct{}

	mu     sync.RWMutex
	latest Result
	cycles uint64

	subsMu sync.Mutex
	subs   map[chan Result]struct{}

	logger *zerolog.Logger
}

// New creates a scheduler running c at hz cycles per second
func New(c Cycler, hz float64, ov *overlay.Manager, outputs ...output.Output) *Scheduler {
	if hz <= 0 {
		hz = 30
	}
	return &Scheduler{
		cycler:   c,
		interval: time.Duration(float64(time.Second) / hz),
		overlay:  ov,
		outputs:  outputs,
		cmds:     make(chan func(context.Context), 64),
		done:     make(chan struct{}),
		subs:     make(map[chan Result]struct{}),
		logger:   logger.WithComponent("scheduler"),
	}
}

// Run cycles until ctx is cancelled. Submitted commands run between cycles
// on the same goroutine.
func (s *Scheduler) Run(ctx context.Context) error {
	defer close(s.done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info().Dur("interval", s.interval).Msg("Scheduler started")
	for {
		select {
		case <-ctx.Done():
			// release Do callers queued before shutdown
			s.runPending(ctx)
			s.logger.Info().Uint64("cycles", s.Cycles()).Msg("Scheduler stopped")
			return ctx.Err()
		case fn := <-s.cmds:
			fn(ctx)
		case <-ticker.C:
			s.runPending(ctx)
			s.Step(ctx)
		}
	}
}

func (s *Scheduler) runPending(ctx context.Context) {
	for {
		select {
		case fn := <-s.cmds:
			fn(ctx)
		default:
			return
		}
	}
}

// Step runs one cycle and publishes its result. Run calls it on every tick;
// callers driving the loop themselves must not run it concurrently with Run.
func (s *Scheduler) Step(ctx context.Context) Result {
	r := s.cycler.Cycle(ctx)
	s.publish(r)
	return r
}

func (s *Scheduler) publish(r Result) {
	s.mu.Lock()
	s.latest = r
	s.cycles++
	s.mu.Unlock()

	if r.Frame != nil && len(s.outputs) > 0 {
		img := cloneRGBA(r.Frame)
		s.overlay.Render(img, overlay.Status{
			SourceName: r.SourceName,
			State:      r.State,
			Stats:      r.Stats,
			Clock:      r.Clock,
		})
		for _, o := range s.outputs {
			if !o.IsRunning() {
				continue
			}
			if err := o.WriteFrame(img); err != nil {
				s.logger.Warn().Err(err).Str("output", o.Name()).Msg("Failed to write frame")
			}
		}
	}

	s.subsMu.Lock()
	for ch := range s.subs {
		select {
		case ch <- withoutFrame(r):
		default:
		}
	}
	s.subsMu.Unlock()
}

func withoutFrame(r Result) Result {
	r.Frame = nil
	return r
}

func cloneRGBA(src *image.RGBA) *image.RGBA {
	dst := image.NewRGBA(src.Rect)
	copy(dst.Pix, src.Pix)
	return dst
}

// Submit queues fn to run on the scheduler goroutine
func (s *Scheduler) Submit(fn func(ctx context.Context)) error {
	select {
	case <-s.done:
		return ErrStopped
	default:
	}
	select {
	case <-s.done:
		return ErrStopped
	case s.cmds <- fn:
		return nil
	}
}

// Do runs fn on the scheduler goroutine and waits for its error
func (s *Scheduler) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	errCh := make(chan error, 1)
	if err := s.Submit(func(ctx context.Context) { errCh <- fn(ctx) }); err != nil {
		return err
	}
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-s.done:
		select {
		case err := <-errCh:
			return err
		default:
			return ErrStopped
		}
	}
}

// Latest is the last published result, without its frame
func (s *Scheduler) Latest() Result {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return withoutFrame(s.latest)
}

// Cycles is the number of cycles run so far
func (s *Scheduler) Cycles() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cycles
}

// Subscribe returns a channel receiving every published result. Slow
// subscribers miss results. Call the returned function to unsubscribe.
func (s *Scheduler) Subscribe() (<-chan Result, func()) {
	ch := make(chan Result, 4)
	s.subsMu.Lock()
	s.subs[ch] = struct{}{}
	s.subsMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.subsMu.Lock()
			delete(s.subs, ch)
			s.subsMu.Unlock()
		})
	}
}
