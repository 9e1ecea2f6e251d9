package output

import (
	"image"
)

// Output receives every published display frame. Implementations must not
// retain frame past WriteFrame unless they copy or encode it.
type Output interface {
	// Start initializes the output mechanism
	Start() error

	// Stop cleanly shuts down the output
	Stop() error

	// WriteFrame publishes a frame; frames arrive from the scheduler goroutine
	WriteFrame(frame *image.RGBA) error

	// Name returns a human-readable name for this output type
	Name() string

	// IsRunning returns true if the output is currently active
	IsRunning() bool
}

// Config holds common configuration for all output types
type Config struct {
	// Quality is the JPEG quality, 1-100
	Quality int
	// FPS is the target publish rate, shown on the stats page
	FPS int
}
