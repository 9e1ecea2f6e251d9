package codec

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/bryanchriswhite/addertuner/internal/event"
)

// Writer encodes a stream
type Writer struct {
	bw     *bufio.Writer
	closer io.Closer
	count  int64
	rec    [EventSize]byte
}

// Create writes a new stream file at path
func Create(path string, h Header) (*Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	w, err := NewWriter(f, h)
	if err != nil {
		f.Close()
		return nil, err
	}
	w.closer = f
	return w, nil
}

// NewWriter validates h and writes it to out
func NewWriter(out io.Writer, h Header) (*Writer, error) {
	if err := h.Validate(); err != nil {
		return nil, err
	}
	w := &Writer{bw: bufio.NewWriter(out)}
	if err := w.writeHeader(h); err != nil {
		return nil, err
	}
	return w, nil
}

func (w *Writer) writeHeader(h Header) error {
	var b [HeaderSize]byte
	copy(b[0:4], Magic)
	b[4] = Version
	le := binary.LittleEndian
	le.PutUint16(b[5:], h.Width)
	le.PutUint16(b[7:], h.Height)
	b[9] = h.Channels
	le.PutUint32(b[10:], h.TicksPerSecond)
	le.PutUint32(b[14:], h.RefInterval)
	le.PutUint32(b[18:], h.DeltaTMax)
	b[22] = byte(h.SourceCamera)
	if _, err := w.bw.Write(b[:]); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	return nil
}

// WriteEvents appends events in order
func (w *Writer) WriteEvents(events []event.Event) error {
	le := binary.LittleEndian
	for _, ev := range events {
		le.PutUint16(w.rec[0:], ev.X)
		le.PutUint16(w.rec[2:], ev.Y)
		w.rec[4] = ev.C
		w.rec[5] = ev.D
		le.PutUint32(w.rec[6:], ev.DeltaT)
		if _, err := w.bw.Write(w.rec[:]); err != nil {
			return err
		}
		w.count++
	}
	return nil
}

// WriteBatches appends every batch of one advance call
func (w *Writer) WriteBatches(batches [][]event.Event) error {
	for _, b := range batches {
		if err := w.WriteEvents(b); err != nil {
			return err
		}
	}
	return nil
}

// Count is the number of events written
func (w *Writer) Count() int64 {
	return w.count
}

// Close flushes and closes the file when the writer owns it
func (w *Writer) Close() error {
	if err := w.bw.Flush(); err != nil {
		if w.closer != nil {
			w.closer.Close()
		}
		return err
	}
	if w.closer == nil {
		return nil
	}
	err := w.closer.Close()
	w.closer = nil
	return err
}
