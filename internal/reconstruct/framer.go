package reconstruct

import (
	"github.com/bryanchriswhite/addertuner/internal/event"
	"github.com/bryanchriswhite/addertuner/internal/frame"
)

// Chunk is one row band of a popped frame. Set[i] == false means the pixel
// had no information for this frame and the previous value should be kept.
type Chunk struct {
	Row0   int
	Rows   int
	Values []uint8
	Set    []bool
}

// span says the element holds val for every frame before until that an
// earlier span does not cover
type span struct {
	until uint64
	val   uint8
	set   bool
}

// Framer is the chunked instantaneous framer behind the accurate policy.
// Frame k covers ticks [k*tpf, (k+1)*tpf); a pixel contributes to frame k
// once its own event time reaches (k+1)*tpf. Frames are materialized only
// when popped, so memory follows the number of buffered events, not the
// length of their Δt.
type Framer struct {
	width     int
	height    int
	channels  int
	chunkRows int
	tpf       uint64
	ref       uint32

	times []uint64
	next  []uint64
	last  []uint8
	spans [][]span

	base     uint64
	filled   []int
	perChunk []int
}

// NewFramer returns a framer over a w×h×c image split into bands of
// chunkRows rows, emitting one frame every ticksPerFrame ticks.
func NewFramer(width, height, channels, chunkRows int, ticksPerFrame uint64, refInterval uint32) *Framer {
	if chunkRows < 1 {
		chunkRows = height
	}
	if chunkRows < 1 {
		chunkRows = 1
	}
	if ticksPerFrame == 0 {
		ticksPerFrame = 1
	}
	n := width * height * channels
	f := &Framer{
		width:     width,
		height:    height,
		channels:  channels,
		chunkRows: chunkRows,
		tpf:       ticksPerFrame,
		ref:       refInterval,
		times:     make([]uint64, n),
		next:      make([]uint64, n),
		last:      make([]uint8, n),
		spans:     make([][]span, n),
	}
	chunks := (height + chunkRows - 1) / chunkRows
	f.perChunk = make([]int, chunks)
	f.filled = make([]int, chunks)
	for i := range f.perChunk {
		rows := chunkRows
		if rem := height - i*chunkRows; rem < rows {
			rows = rem
		}
		f.perChunk[i] = rows * width * channels
	}
	return f
}

// TicksPerFrame is the frame length in ticks
func (f *Framer) TicksPerFrame() uint64 {
	return f.tpf
}

// Chunks is the number of row bands
func (f *Framer) Chunks() int {
	return len(f.perChunk)
}

func (f *Framer) chunkOf(idx int) int {
	row := idx / (f.width * f.channels)
	return row / f.chunkRows
}

// Ingest integrates one event and reports whether the head frame is now
// complete in every chunk.
func (f *Framer) Ingest(ev event.Event) bool {
	x, y, c := int(ev.X), int(ev.Y), int(ev.C)
	if x >= f.width || y >= f.height || c >= f.channels {
		return f.IsFrameFilled()
	}
	idx := (y*f.width+x)*f.channels + c
	f.times[idx] += uint64(ev.DeltaT)

	set := true
	val := f.last[idx]
	switch ev.D {
	case event.DEmpty:
		set = false
	case event.DZeroIntegration:
		val = 0
	default:
		v, _ := ev.Intensity(f.ref)
		val = event.ToByte(v)
	}

	target := f.times[idx] / f.tpf
	if target > f.next[idx] && target > f.base {
		if f.next[idx] <= f.base {
			f.filled[f.chunkOf(idx)]++
		}
		f.spans[idx] = append(f.spans[idx], span{until: target, val: val, set: set})
		f.next[idx] = target
	}
	if set {
		f.last[idx] = val
	}
	return f.IsFrameFilled()
}

// IsFrameFilled reports whether every chunk of the head frame is complete
func (f *Framer) IsFrameFilled() bool {
	if len(f.perChunk) == 0 {
		return false
	}
	for i, want := range f.perChunk {
		if f.filled[i] < want {
			return false
		}
	}
	return true
}

// PopFrame removes the head frame and returns it as row bands
func (f *Framer) PopFrame() ([]Chunk, bool) {
	if !f.IsFrameFilled() {
		return nil, false
	}

	n := len(f.times)
	values := make([]uint8, n)
	set := make([]bool, n)
	for i := range f.spans {
		head := f.spans[i][0]
		values[i], set[i] = head.val, head.set
	}

	f.base++
	for i := range f.filled {
		f.filled[i] = 0
	}
	for i, sp := range f.spans {
		for len(sp) > 0 && sp[0].until <= f.base {
			sp = sp[1:]
		}
		if len(sp) == 0 {
			sp = nil
		} else {
			f.filled[f.chunkOf(i)]++
		}
		f.spans[i] = sp
	}

	stride := f.width * f.channels
	out := make([]Chunk, len(f.perChunk))
	for i := range f.perChunk {
		row0 := i * f.chunkRows
		start := row0 * stride
		end := start + f.perChunk[i]
		out[i] = Chunk{
			Row0:   row0,
			Rows:   f.perChunk[i] / stride,
			Values: values[start:end],
			Set:    set[start:end],
		}
	}
	return out, true
}

// WriteChunks copies the set entries of a popped frame into buf and returns
// the number of elements written. buf must match the framer's geometry.
func WriteChunks(buf *frame.Buffer, chunks []Chunk) int {
	stride := buf.Width * buf.Channels
	n := 0
	for _, ch := range chunks {
		off := ch.Row0 * stride
		for i, ok := range ch.Set {
			if !ok || off+i >= len(buf.Pix) {
				continue
			}
			buf.Pix[off+i] = ch.Values[i]
			n++
		}
	}
	return n
}

// Pending is the number of complete frames ready to pop
func (f *Framer) Pending() int {
	if len(f.next) == 0 || !f.IsFrameFilled() {
		return 0
	}
	low := f.next[0]
	for _, n := range f.next[1:] {
		if n < low {
			low = n
		}
	}
	return int(low - f.base)
}
