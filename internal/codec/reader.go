package codec

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/bryanchriswhite/addertuner/internal/event"
)

// Reader decodes a stream from a seekable source
type Reader struct {
	rs     io.ReadSeeker
	br     *bufio.Reader
	closer io.Closer
	header Header
	pos    int64
	rec    [EventSize]byte
}

// Open opens and validates the stream at path
func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	r, err := NewReader(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	r.closer = f
	return r, nil
}

// NewReader decodes the header from rs and positions at the first event
func NewReader(rs io.ReadSeeker) (*Reader, error) {
	if _, err := rs.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	r := &Reader{rs: rs, br: bufio.NewReader(rs)}

	var buf [HeaderSize]byte
	if _, err := io.ReadFull(r.br, buf[:]); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadHeader, err)
	}
	h, err := decodeHeader(buf[:])
	if err != nil {
		return nil, err
	}
	r.header = h
	r.pos = h.DataStart
	return r, nil
}

func decodeHeader(b []byte) (Header, error) {
	if string(b[0:4]) != Magic {
		return Header{}, fmt.Errorf("%w: magic %q", ErrBadHeader, b[0:4])
	}
	h := Header{Version: b[4]}
	if h.Version != Version {
		return Header{}, fmt.Errorf("%w: %d", ErrUnsupportedVersion, h.Version)
	}
	le := binary.LittleEndian
	h.Width = le.Uint16(b[5:])
	h.Height = le.Uint16(b[7:])
	h.Channels = b[9]
	h.TicksPerSecond = le.Uint32(b[10:])
	h.RefInterval = le.Uint32(b[14:])
	h.DeltaTMax = le.Uint32(b[18:])
	h.SourceCamera = SourceCamera(b[22])
	h.DataStart = HeaderSize
	if err := h.Validate(); err != nil {
		return Header{}, err
	}
	return h, nil
}

// Header returns the decoded stream constants
func (r *Reader) Header() Header {
	return r.header
}

// Position is the byte offset of the next event
func (r *Reader) Position() int64 {
	return r.pos
}

// DecodeEvent reads the next event. A clean end returns ErrEndOfStream; a
// partial record is reported as a truncation error and a Δt above the
// header's maximum as ErrDeltaTOutOfRange.
func (r *Reader) DecodeEvent() (event.Event, error) {
	n, err := io.ReadFull(r.br, r.rec[:])
	if err != nil {
		if errors.Is(err, io.EOF) {
			return event.Event{}, ErrEndOfStream
		}
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return event.Event{}, fmt.Errorf("truncated event at offset %d (%d bytes)", r.pos, n)
		}
		return event.Event{}, err
	}
	off := r.pos
	r.pos += EventSize
	le := binary.LittleEndian
	ev := event.Event{
		X:      le.Uint16(r.rec[0:]),
		Y:      le.Uint16(r.rec[2:]),
		C:      r.rec[4],
		D:      r.rec[5],
		DeltaT: le.Uint32(r.rec[6:]),
	}
	if limit := r.header.DeltaTMax; limit > 0 && ev.DeltaT > limit {
		return event.Event{}, fmt.Errorf("%w: %d > %d at offset %d", ErrDeltaTOutOfRange, ev.DeltaT, limit, off)
	}
	return ev, nil
}

// SeekToStartOfData rewinds to the first event
func (r *Reader) SeekToStartOfData() error {
	if _, err := r.rs.Seek(r.header.DataStart, io.SeekStart); err != nil {
		return err
	}
	r.br.Reset(r.rs)
	r.pos = r.header.DataStart
	return nil
}

// EventCount is the number of complete event records in the stream. It does
// not move the read position.
func (r *Reader) EventCount() (int64, error) {
	end, err := r.rs.Seek(0, io.SeekEnd)
	if err != nil {
		return 0, err
	}
	// restore: the buffered reader is ahead of the underlying position
	if _, err := r.rs.Seek(r.pos, io.SeekStart); err != nil {
		return 0, err
	}
	r.br.Reset(r.rs)
	return (end - r.header.DataStart) / EventSize, nil
}

// Close closes the underlying file when the reader owns it
func (r *Reader) Close() error {
	if r.closer == nil {
		return nil
	}
	err := r.closer.Close()
	r.closer = nil
	return err
}
