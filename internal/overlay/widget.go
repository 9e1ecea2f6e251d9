package overlay

import (
	"image"
	"image/color"
	"image/draw"

	"github.com/bryanchriswhite/addertuner/internal/stats"
	"github.com/bryanchriswhite/addertuner/internal/timeline"
)

// Status is what widgets may show about the current cycle
type Status struct {
	SourceName string
	State      string
	Stats      stats.Snapshot
	Clock      timeline.State
}

// Widget represents a renderable overlay widget
type Widget interface {
	// ID returns the unique identifier for this widget instance
	ID() string

	// Type returns the widget type name
	Type() string

	// Render draws the widget onto img
	Render(img *image.RGBA, st Status) error

	// IsEnabled returns whether the widget should be rendered
	IsEnabled() bool

	// SetEnabled sets whether the widget should be rendered
	SetEnabled(enabled bool)
}

// BaseWidget provides position, opacity and the enabled flag
type BaseWidget struct {
	id      string
	enabled bool
	x       int
	y       int
	opacity float64 // 0.0 to 1.0
}

// NewBaseWidget creates a new base widget
func NewBaseWidget(id string, x, y int, opacity float64) *BaseWidget {
	w := &BaseWidget{id: id, enabled: true, x: x, y: y}
	w.SetOpacity(opacity)
	return w
}

func (w *BaseWidget) ID() string {
	return w.id
}

func (w *BaseWidget) IsEnabled() bool {
	return w.enabled
}

func (w *BaseWidget) SetEnabled(enabled bool) {
	w.enabled = enabled
}

// SetPosition sets the top-left corner of the widget
func (w *BaseWidget) SetPosition(x, y int) {
	w.x = x
	w.y = y
}

// SetOpacity clamps opacity into [0, 1]
func (w *BaseWidget) SetOpacity(opacity float64) {
	if opacity < 0.0 {
		opacity = 0.0
	}
	if opacity > 1.0 {
		opacity = 1.0
	}
	w.opacity = opacity
}

// BlendImage alpha-blends src onto dst at (x, y), clipped to dst
func BlendImage(dst *image.RGBA, src *image.RGBA, x, y int, opacity float64) {
	sb := src.Bounds()
	db := dst.Bounds()

	for sy := sb.Min.Y; sy < sb.Max.Y; sy++ {
		dy := y + (sy - sb.Min.Y)
		if dy < db.Min.Y || dy >= db.Max.Y {
			continue
		}
		for sx := sb.Min.X; sx < sb.Max.X; sx++ {
			dx := x + (sx - sb.Min.X)
			if dx < db.Min.X || dx >= db.Max.X {
				continue
			}

			s := src.RGBAAt(sx, sy)
			a := float64(s.A) / 255 * opacity
			if a <= 0 {
				continue
			}
			d := dst.RGBAAt(dx, dy)
			dst.SetRGBA(dx, dy, color.RGBA{
				R: blend(s.R, d.R, a),
				G: blend(s.G, d.G, a),
				B: blend(s.B, d.B, a),
				A: 0xff,
			})
		}
	}
}

func blend(s, d uint8, a float64) uint8 {
	return uint8(float64(s)*a + float64(d)*(1-a) + 0.5)
}

// DrawRectangle blends a filled w×h rectangle onto dst
func DrawRectangle(dst *image.RGBA, x, y, w, h int, c color.RGBA, opacity float64) {
	if w <= 0 || h <= 0 {
		return
	}
	tmp := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(tmp, tmp.Bounds(), image.NewUniform(c), image.Point{}, draw.Src)
	BlendImage(dst, tmp, x, y, opacity)
}
