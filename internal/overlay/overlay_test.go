package overlay

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bryanchriswhite/addertuner/internal/stats"
	"github.com/bryanchriswhite/addertuner/internal/timeline"
)

func black(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := 3; i < len(img.Pix); i += 4 {
		img.Pix[i] = 0xff
	}
	return img
}

func lit(img *image.RGBA) int {
	n := 0
	for i := 0; i < len(img.Pix); i += 4 {
		if img.Pix[i] > 0 {
			n++
		}
	}
	return n
}

func testStatus() Status {
	return Status{
		SourceName: "/videos/clip.mp4",
		State:      "playing",
		Stats:      stats.Snapshot{EventsTotal: 12345, EventsPerSecond: 2500000},
		Clock:      timeline.State{Ticks: 7650, TicksPerSecond: 7650, RefInterval: 255, PlaybackSpeed: 1},
	}
}

func TestHUDLines(t *testing.T) {
	lines := NewHUDWidget("hud").Lines(testStatus())
	require.Len(t, lines, 3)
	assert.Equal(t, "clip.mp4 [playing]", lines[0])
	assert.Contains(t, lines[1], "12,345")
	assert.Contains(t, lines[1], "2.5 M")
	assert.Contains(t, lines[2], "ref 255")
	assert.Contains(t, lines[2], "t 1s")
}

func TestManagerRender(t *testing.T) {
	m := NewDefaultManager(true)
	img := black(200, 60)
	m.Render(img, testStatus())
	assert.Positive(t, lit(img), "HUD drew text")

	m.SetEnabled(false)
	img = black(200, 60)
	m.Render(img, testStatus())
	assert.Zero(t, lit(img))

	var nilManager *Manager
	nilManager.Render(img, testStatus())
}

func TestManagerWidgets(t *testing.T) {
	m := NewManager()
	label := NewTextWidget("label", 0, 0, "hello")
	require.NoError(t, m.AddWidget(label))
	assert.Error(t, m.AddWidget(NewTextWidget("label", 0, 0)))

	got, ok := m.GetWidget("label")
	require.True(t, ok)
	assert.Equal(t, "text", got.Type())

	label.SetEnabled(false)
	img := black(60, 20)
	m.Render(img, Status{})
	assert.Zero(t, lit(img))

	require.NoError(t, m.RemoveWidget("label"))
	assert.Error(t, m.RemoveWidget("label"))
	_, ok = m.GetWidget("label")
	assert.False(t, ok)
}

func TestBlendClipsAndMixes(t *testing.T) {
	dst := black(2, 2)
	DrawRectangle(dst, 1, 1, 4, 4, color.RGBA{200, 100, 0, 255}, 0.5)
	assert.Equal(t, color.RGBA{0, 0, 0, 255}, dst.RGBAAt(0, 0))
	assert.Equal(t, color.RGBA{100, 50, 0, 255}, dst.RGBAAt(1, 1))
}
