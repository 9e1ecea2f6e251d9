// Package source turns framed video and event-camera recordings into
// address-event batches, one reference interval at a time.
package source

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/bryanchriswhite/addertuner/internal/config"
	"github.com/bryanchriswhite/addertuner/internal/event"
	"github.com/bryanchriswhite/addertuner/internal/frame"
	"github.com/bryanchriswhite/addertuner/internal/workpool"
)

var (
	// ErrNotYetOpen means the backend has not produced data yet; retry on
	// the next cycle.
	ErrNotYetOpen = errors.New("source not yet open")

	// ErrEndOfStream means the input is exhausted
	ErrEndOfStream = errors.New("end of stream")
)

// FaultError wraps malformed input or an internal failure while advancing
type FaultError struct {
	Err error
}

func (e *FaultError) Error() string {
	return fmt.Sprintf("source fault: %v", e.Err)
}

func (e *FaultError) Unwrap() error {
	return e.Err
}

// Fault wraps err as a FaultError; nil stays nil
func Fault(err error) error {
	if err == nil {
		return nil
	}
	var fe *FaultError
	if errors.As(err, &fe) {
		return err
	}
	return &FaultError{Err: err}
}

// Error prefixes for the two directions
const (
	TranscoderPrefix = "ADDER transcoder"
	PlayerPrefix     = "ADDER player"
)

// ConstructionError is returned when a source cannot be built. Its message is
// what gets shown in place of the source name.
type ConstructionError struct {
	Prefix string
	Reason string
	Err    error
}

func (e *ConstructionError) Error() string {
	prefix := e.Prefix
	if prefix == "" {
		prefix = TranscoderPrefix
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: %s", prefix, e.Reason)
}

func (e *ConstructionError) Unwrap() error {
	return e.Err
}

// InvalidFileType is the construction error for an unrecognized input
func InvalidFileType(prefix string) *ConstructionError {
	return &ConstructionError{Prefix: prefix, Reason: "Invalid file type"}
}

// Source is a transcoder input. Implementations are driven from a single
// goroutine; Advance may fan out internally but joins before returning.
type Source interface {
	// Advance integrates the given number of reference intervals and returns
	// the emitted events, one slice per row chunk per interval.
	Advance(ctx context.Context, intervals int, pool *workpool.Pool) ([][]event.Event, error)

	Width() int
	Height() int
	Channels() int
	Scale() float64
	RefTime() uint32
	TicksPerSecond() uint32
	DeltaTMax() uint32

	// IntervalCount is the number of intervals integrated since construction
	IntervalCount() uint32
	// FrameStart is the input frame the source resumed at
	FrameStart() uint32

	SetThresholds(pos, neg uint8)
	SetDeltaTMax(ticks uint32)
	SetViewMode(mode config.ViewMode)

	// InstantaneousFrame is the live reconstruction; clone before handing off
	InstantaneousFrame() *frame.Buffer

	Close() error
}

// Kind classifies an input path
type Kind int

const (
	KindUnknown Kind = iota
	KindFramed
	KindEventCamera
	KindStream
)

func (k Kind) String() string {
	switch k {
	case KindFramed:
		return "framed"
	case KindEventCamera:
		return "event-camera"
	case KindStream:
		return "stream"
	default:
		return "unknown"
	}
}

// StreamExt is the extension of encoded event streams
const StreamExt = ".adder"

var (
	videoExts  = map[string]bool{".mp4": true, ".mkv": true, ".avi": true, ".mov": true, ".webm": true}
	cameraExts = map[string]bool{".txt": true, ".dvs": true}
)

// Classify decides what kind of input path is from its extension, or
// KindFramed for a directory of images.
func Classify(path string) Kind {
	if fi, err := os.Stat(path); err == nil && fi.IsDir() {
		return KindFramed
	}
	ext := strings.ToLower(filepath.Ext(path))
	switch {
	case videoExts[ext], ext == ".gif":
		return KindFramed
	case cameraExts[ext]:
		return KindEventCamera
	case ext == StreamExt:
		return KindStream
	default:
		return KindUnknown
	}
}
