// Package lifecycle owns the bound source: what it was built with, when it
// has drifted from the live parameters, and how it is replaced.
package lifecycle

import (
	"github.com/bryanchriswhite/addertuner/internal/codec"
	"github.com/bryanchriswhite/addertuner/internal/source"
	"github.com/bryanchriswhite/addertuner/internal/stats"
)

// Kind names the bound variant
type Kind int

const (
	KindNone Kind = iota
	KindFramed
	KindEventCamera
	KindPlayback
)

func (k Kind) String() string {
	switch k {
	case KindFramed:
		return "framed"
	case KindEventCamera:
		return "event-camera"
	case KindPlayback:
		return "playback"
	default:
		return "none"
	}
}

// Active is the bound source. The only implementations are *Framed,
// *EventCamera and *Playback; no source bound is a nil Active.
type Active interface {
	Kind() Kind
	Geometry() stats.Geometry
	// TimeBase is ticks per second and the reference interval in ticks
	TimeBase() (ticksPerSecond, refInterval uint32)
	Close() error

	sealed()
}

// Framed is a framed-video transcoder source
type Framed struct {
	source.Source
}

// EventCamera is an event-camera transcoder source together with the live
// handle on its reconstruction knobs.
type EventCamera struct {
	source.Source
	Knobs *source.ReconstructorConfig
}

// Playback is a stream decoder for the playback direction
type Playback struct {
	Decoder codec.StreamDecoder
}

func (*Framed) Kind() Kind { return KindFramed }
func (*EventCamera) Kind() Kind { return KindEventCamera }
func (*Playback) Kind() Kind { return KindPlayback }

func (*Framed) sealed() {}
func (*EventCamera) sealed() {}
func (*Playback) sealed() {}

func (f *Framed) Geometry() stats.Geometry {
	return sourceGeometry(f.Source)
}

func (f *Framed) TimeBase() (uint32, uint32) {
	return f.TicksPerSecond(), f.RefTime()
}

func (e *EventCamera) Geometry() stats.Geometry {
	return sourceGeometry(e.Source)
}

func (e *EventCamera) TimeBase() (uint32, uint32) {
	return e.TicksPerSecond(), e.RefTime()
}

func (p *Playback) Geometry() stats.Geometry {
	h := p.Decoder.Header()
	return stats.Geometry{Width: int(h.Width), Height: int(h.Height), Channels: int(h.Channels)}
}

func (p *Playback) TimeBase() (uint32, uint32) {
	h := p.Decoder.Header()
	return h.TicksPerSecond, h.RefInterval
}

func (p *Playback) Close() error {
	return p.Decoder.Close()
}

func sourceGeometry(s source.Source) stats.Geometry {
	return stats.Geometry{Width: s.Width(), Height: s.Height(), Channels: s.Channels()}
}

// Transcoder returns the transcoder source behind a, if any
func Transcoder(a Active) (source.Source, bool) {
	switch v := a.(type) {
	case *Framed:
		return v.Source, true
	case *EventCamera:
		return v.Source, true
	default:
		return nil, false
	}
}
