package lifecycle

import (
	"context"
	"errors"
	"image"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/bryanchriswhite/addertuner/internal/config"
	"github.com/bryanchriswhite/addertuner/internal/logger"
	"github.com/bryanchriswhite/addertuner/internal/source"
	"github.com/bryanchriswhite/addertuner/internal/stats"
	"github.com/bryanchriswhite/addertuner/internal/timeline"
)

// Builder constructs the variant for a path
type Builder interface {
	Build(ctx context.Context, path string, p config.Params, resumeFrame uint32) (Active, error)
}

// BuilderFunc adapts a function to Builder
type BuilderFunc func(ctx context.Context, path string, p config.Params, resumeFrame uint32) (Active, error)

func (f BuilderFunc) Build(ctx context.Context, path string, p config.Params, resumeFrame uint32) (Active, error) {
	return f(ctx, path, p, resumeFrame)
}

// Controller is the only writer of the bound source. The statistics, the
// clock and the published display are reset on every rebuild, so replacing
// the source without resetting them cannot be expressed.
type Controller struct {
	builder Builder

	active     Active
	baseline   SourceConfiguration
	path       string
	name       string
	generation string
	failed     bool

	stats   *stats.Aggregator
	clock   *timeline.Clock
	display *image.RGBA

	logger *zerolog.Logger
}

// NewController creates a controller with no source bound
func NewController(b Builder) *Controller {
	return &Controller{
		builder: b,
		stats:   stats.New(stats.DefaultWindow),
		clock:   timeline.New(1, 1, 1),
		name:    "No source selected",
		logger:  logger.WithComponent("lifecycle"),
	}
}

// Rebuild replaces the bound source with one built from path and p. Camera
// recordings always resume at 0. On failure nothing is bound and the error
// message becomes the source name.
func (c *Controller) Rebuild(ctx context.Context, path string, p config.Params, resumeFrame uint32) error {
	c.stats.Reset()
	c.clock.Reset()
	c.clock.Configure(1, 1)
	c.clock.SetSpeed(1)
	c.display = nil

	if err := c.release(); err != nil {
		c.logger.Warn().Err(err).Str("path", c.path).Msg("Error closing previous source")
	}

	if source.Classify(path) == source.KindEventCamera {
		resumeFrame = 0
	}

	c.path = path
	a, err := c.builder.Build(ctx, path, p, resumeFrame)
	if err == nil && a == nil {
		err = errors.New("builder returned no source")
	}
	if err != nil {
		c.failed = true
		c.name = err.Error()
		c.generation = ""
		c.baseline = SourceConfiguration{}
		c.logger.Error().Err(err).Str("path", path).Msg("Failed to build source")
		return err
	}

	c.active = a
	c.failed = false
	c.name = path
	c.generation = uuid.NewString()
	c.baseline = Configure(a, p)
	tps, ref := a.TimeBase()
	c.clock.Configure(tps, ref)

	g := a.Geometry()
	logger.WithSource("lifecycle", c.generation, path).Info().
		Str("kind", a.Kind().String()).
		Int("width", g.Width).
		Int("height", g.Height).
		Int("channels", g.Channels).
		Uint32("ticks_per_second", tps).
		Uint32("ref_interval", ref).
		Uint32("resume_frame", resumeFrame).
		Msg("Source bound")
	return nil
}

func (c *Controller) release() error {
	if c.active == nil {
		return nil
	}
	a := c.active
	c.active = nil
	return a.Close()
}

// Active is the bound source, nil when none is bound
func (c *Controller) Active() Active { return c.active }

// Baseline is the configuration the bound source was built with
func (c *Controller) Baseline() SourceConfiguration { return c.baseline }

// Detect checks the bound source against p. No source never drifts.
func (c *Controller) Detect(p config.Params) Result {
	if c.active == nil {
		return Result{}
	}
	return Detect(c.baseline, p)
}

// SourceName is the bound path, or the failure message of the last rebuild
func (c *Controller) SourceName() string { return c.name }

// Path is the path of the last rebuild attempt
func (c *Controller) Path() string { return c.path }

// Generation identifies the bound source; empty when none is bound
func (c *Controller) Generation() string { return c.generation }

// Failed reports whether the last rebuild failed
func (c *Controller) Failed() bool { return c.failed }

func (c *Controller) Stats() *stats.Aggregator { return c.stats }

func (c *Controller) Clock() *timeline.Clock { return c.clock }

// Publish replaces the display raster
func (c *Controller) Publish(img *image.RGBA) { c.display = img }

// Display is the last published raster, nil after a rebuild
func (c *Controller) Display() *image.RGBA { return c.display }

// Close releases the bound source
func (c *Controller) Close() error {
	c.display = nil
	c.generation = ""
	return c.release()
}
