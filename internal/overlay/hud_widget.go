package overlay

import (
	"fmt"
	"image"
	"image/color"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
)

// HUDWidget shows the source, the playback state and throughput
type HUDWidget struct {
	*BaseWidget
	textColor color.RGBA
	bgColor   color.RGBA
}

// NewHUDWidget creates the heads-up display in the top-left corner
func NewHUDWidget(id string) *HUDWidget {
	return &HUDWidget{
		BaseWidget: NewBaseWidget(id, 2, 2, 0.9),
		textColor:  color.RGBA{230, 230, 230, 255},
		bgColor:    color.RGBA{0, 0, 0, 255},
	}
}

func (w *HUDWidget) Type() string {
	return "hud"
}

// Lines formats st the way the HUD shows it
func (w *HUDWidget) Lines(st Status) []string {
	name := st.SourceName
	if name != "" && filepath.IsAbs(name) {
		name = filepath.Base(name)
	}
	elapsed := time.Duration(0)
	if st.Clock.TicksPerSecond > 0 {
		elapsed = time.Duration(float64(st.Clock.Ticks) / float64(st.Clock.TicksPerSecond) * float64(time.Second))
	}
	return []string{
		fmt.Sprintf("%s [%s]", name, st.State),
		fmt.Sprintf("ev/s %s  total %s", humanize.SIWithDigits(st.Stats.EventsPerSecond, 1, ""), humanize.Comma(int64(st.Stats.EventsTotal))),
		fmt.Sprintf("ref %d  t %s  x%.2g", st.Clock.RefInterval, elapsed.Truncate(time.Millisecond), st.Clock.PlaybackSpeed),
	}
}

func (w *HUDWidget) Render(img *image.RGBA, st Status) error {
	if !w.IsEnabled() {
		return nil
	}
	bg := w.bgColor
	drawLines(img, w.x, w.y, w.Lines(st), w.textColor, &bg, 3, w.opacity)
	return nil
}
