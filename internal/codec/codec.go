// Package codec reads and writes the event stream container: a fixed header
// followed by fixed-size little-endian event records.
package codec

import (
	"errors"
	"fmt"

	"github.com/bryanchriswhite/addertuner/internal/event"
)

// Magic opens every stream
const Magic = "ADDR"

// Version is the only container version this package writes
const Version uint8 = 1

// HeaderSize is the encoded header length; event data starts right after it
const HeaderSize = 4 + 1 + 2 + 2 + 1 + 4 + 4 + 4 + 1

// EventSize is the encoded length of one event record
const EventSize = 2 + 2 + 1 + 1 + 4

var (
	// ErrEndOfStream is returned once every event has been decoded
	ErrEndOfStream = errors.New("codec: end of stream")

	// ErrBadHeader means the stream does not start with a valid header
	ErrBadHeader = errors.New("codec: bad header")

	// ErrUnsupportedVersion means the header names an unknown version
	ErrUnsupportedVersion = errors.New("codec: unsupported version")

	// ErrDeltaTOutOfRange means an event's Δt exceeds the header's Δt max
	ErrDeltaTOutOfRange = errors.New("codec: delta t exceeds header maximum")
)

// SourceCamera records what produced the stream
type SourceCamera uint8

const (
	SourceFramedU8 SourceCamera = iota
	SourceFramedU16
	SourceDavisU8
	SourceDVS
)

func (s SourceCamera) String() string {
	switch s {
	case SourceFramedU8:
		return "framed-u8"
	case SourceFramedU16:
		return "framed-u16"
	case SourceDavisU8:
		return "davis-u8"
	case SourceDVS:
		return "dvs"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(s))
	}
}

// Header holds the stream constants
type Header struct {
	Version        uint8        `json:"version"`
	Width          uint16       `json:"width"`
	Height         uint16       `json:"height"`
	Channels       uint8        `json:"channels"`
	TicksPerSecond uint32       `json:"ticks_per_second"`
	RefInterval    uint32       `json:"ref_interval"`
	DeltaTMax      uint32       `json:"delta_t_max"`
	SourceCamera   SourceCamera `json:"source_camera"`
	// DataStart is the byte offset of the first event
	DataStart int64 `json:"data_start"`
}

// Validate checks the header constants
func (h Header) Validate() error {
	if h.Width == 0 || h.Height == 0 {
		return fmt.Errorf("%w: zero dimensions %dx%d", ErrBadHeader, h.Width, h.Height)
	}
	if h.Channels != 1 && h.Channels != 3 {
		return fmt.Errorf("%w: unsupported channel count %d", ErrBadHeader, h.Channels)
	}
	if h.TicksPerSecond == 0 || h.RefInterval == 0 {
		return fmt.Errorf("%w: zero time base", ErrBadHeader)
	}
	return nil
}

// FrameRate is ticks per second over the reference interval
func (h Header) FrameRate() float64 {
	if h.RefInterval == 0 {
		return 0
	}
	return float64(h.TicksPerSecond) / float64(h.RefInterval)
}

// StreamDecoder is the playback-side view of an encoded stream
type StreamDecoder interface {
	DecodeEvent() (event.Event, error)
	SeekToStartOfData() error
	Position() int64
	Header() Header
	Close() error
}
