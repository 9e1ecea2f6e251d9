// Package event holds the decoded address-event unit shared by the transcode
// and playback directions.
package event

import "math"

const (
	// DMax is the largest decimation code that carries an intensity.
	DMax uint8 = 127

	// DZeroIntegration marks a pixel that integrated nothing over its Δt.
	DZeroIntegration uint8 = 128

	// DEmpty marks an empty event (no information for the pixel).
	DEmpty uint8 = 255
)

// Event is one pixel/channel update. DeltaT is measured in ticks since the
// previous event at the same coordinate.
type Event struct {
	X      uint16
	Y      uint16
	C      uint8
	D      uint8
	DeltaT uint32
}

// IsControl reports whether the magnitude code is a marker rather than an
// intensity.
func (e Event) IsControl() bool {
	return e.D > DMax
}

// Intensity returns the intensity the event integrates over one reference
// interval: 2^D / Δt, scaled by refInterval ticks. Control codes return
// ok == false.
func (e Event) Intensity(refInterval uint32) (float64, bool) {
	if e.IsControl() {
		return 0, false
	}
	if e.DeltaT == 0 {
		return 0, true
	}
	return math.Ldexp(1, int(e.D)) / float64(e.DeltaT) * float64(refInterval), true
}

// ToByte clamps v into a display byte.
func ToByte(v float64) uint8 {
	switch {
	case math.IsNaN(v) || v <= 0:
		return 0
	case v >= 255:
		return 255
	default:
		return uint8(v + 0.5)
	}
}

// Count returns the number of events across a nested batch.
func Count(batches [][]Event) int {
	n := 0
	for _, b := range batches {
		n += len(b)
	}
	return n
}
