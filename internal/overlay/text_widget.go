package overlay

import (
	"image"
	"image/color"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// lineHeight is the basicfont cell height
const lineHeight = 13

// TextWidget draws fixed lines of text, optionally on a background box
type TextWidget struct {
	*BaseWidget
	lines     []string
	textColor color.RGBA
	bgColor   *color.RGBA
	padding   int
}

// NewTextWidget creates a text widget at (x, y)
func NewTextWidget(id string, x, y int, lines ...string) *TextWidget {
	return &TextWidget{
		BaseWidget: NewBaseWidget(id, x, y, 1.0),
		lines:      lines,
		textColor:  color.RGBA{255, 255, 255, 255},
		bgColor:    &color.RGBA{0, 0, 0, 255},
		padding:    4,
	}
}

func (w *TextWidget) Type() string {
	return "text"
}

func (w *TextWidget) Render(img *image.RGBA, _ Status) error {
	if !w.IsEnabled() {
		return nil
	}
	drawLines(img, w.x, w.y, w.lines, w.textColor, w.bgColor, w.padding, w.opacity)
	return nil
}

// SetText replaces the lines
func (w *TextWidget) SetText(lines ...string) {
	w.lines = lines
}

// SetColor sets the text color
func (w *TextWidget) SetColor(c color.RGBA) {
	w.textColor = c
}

// SetBackground sets the box color; nil draws text only
func (w *TextWidget) SetBackground(c *color.RGBA) {
	w.bgColor = c
}

// measure returns the pixel size of lines set in basicfont plus padding
func measure(lines []string, padding int) (int, int) {
	d := &font.Drawer{Face: basicfont.Face7x13}
	width := 0
	for _, l := range lines {
		if px := d.MeasureString(l).Ceil(); px > width {
			width = px
		}
	}
	return width + padding*2, len(lines)*lineHeight + padding*2
}

func drawLines(img *image.RGBA, x, y int, lines []string, fg color.RGBA, bg *color.RGBA, padding int, opacity float64) {
	if len(lines) == 0 {
		return
	}
	w, h := measure(lines, padding)
	if bg != nil {
		DrawRectangle(img, x, y, w, h, *bg, opacity*0.6)
	}

	text := image.NewRGBA(image.Rect(0, 0, w, h))
	d := &font.Drawer{
		Dst:  text,
		Src:  image.NewUniform(fg),
		Face: basicfont.Face7x13,
	}
	for i, l := range lines {
		d.Dot = fixed.P(padding, padding+(i+1)*lineHeight-3)
		d.DrawString(l)
	}
	BlendImage(img, text, x, y, opacity)
}
