// Package frame holds the raster intensity buffer that reconstruction writes
// into and the display boundary snapshots.
package frame

import "fmt"

// Buffer is a row-major, channel-interleaved byte raster. Three channel
// buffers are stored in BGR order.
type Buffer struct {
	Width    int
	Height   int
	Channels int
	Pix      []byte
}

// New allocates a zeroed buffer.
func New(width, height, channels int) *Buffer {
	if width < 0 || height < 0 || channels < 0 {
		panic(fmt.Sprintf("frame: negative dimensions %dx%dx%d", width, height, channels))
	}
	return &Buffer{
		Width:    width,
		Height:   height,
		Channels: channels,
		Pix:      make([]byte, width*height*channels),
	}
}

// Len is the number of pixel-channel elements.
func (b *Buffer) Len() int {
	return len(b.Pix)
}

// Index returns the offset of (x, y, c) in Pix.
func (b *Buffer) Index(x, y, c int) int {
	return (y*b.Width+x)*b.Channels + c
}

// Contains reports whether (x, y, c) addresses an element of the buffer.
func (b *Buffer) Contains(x, y, c int) bool {
	return x >= 0 && y >= 0 && c >= 0 && x < b.Width && y < b.Height && c < b.Channels
}

// At returns the value at (x, y, c).
func (b *Buffer) At(x, y, c int) uint8 {
	return b.Pix[b.Index(x, y, c)]
}

// Set writes the value at (x, y, c).
func (b *Buffer) Set(x, y, c int, v uint8) {
	b.Pix[b.Index(x, y, c)] = v
}

// Fill sets every element to v.
func (b *Buffer) Fill(v uint8) {
	for i := range b.Pix {
		b.Pix[i] = v
	}
}

// Clone returns a deep copy.
func (b *Buffer) Clone() *Buffer {
	if b == nil {
		return nil
	}
	out := &Buffer{
		Width:    b.Width,
		Height:   b.Height,
		Channels: b.Channels,
		Pix:      make([]byte, len(b.Pix)),
	}
	copy(out.Pix, b.Pix)
	return out
}
