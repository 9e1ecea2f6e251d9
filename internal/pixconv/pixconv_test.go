package pixconv

import (
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bryanchriswhite/addertuner/internal/frame"
)

func TestConvertMono(t *testing.T) {
	buf := frame.New(2, 1, 1)
	buf.Pix = []byte{10, 200}

	img, err := BGRA{}.Convert(buf)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 2, 1), img.Bounds())
	assert.Equal(t, []byte{10, 10, 10, 255, 200, 200, 200, 255}, img.Pix)
}

func TestConvertBGR(t *testing.T) {
	buf := frame.New(1, 1, 3)
	buf.Pix = []byte{30, 20, 10}

	img, err := BGRA{}.Convert(buf)
	require.NoError(t, err)
	assert.Equal(t, []byte{10, 20, 30, 255}, img.Pix)
}

func TestConvertRejects(t *testing.T) {
	_, err := BGRA{}.Convert(nil)
	assert.Error(t, err)

	buf := frame.New(2, 2, 1)
	buf.Pix = buf.Pix[:3]
	_, err = BGRA{}.Convert(buf)
	assert.Error(t, err)

	_, err = BGRA{}.Convert(&frame.Buffer{Width: 1, Height: 1, Channels: 2, Pix: []byte{0, 0}})
	assert.Error(t, err)
}

func TestScale(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 2, 2))
	for i := range src.Pix {
		src.Pix[i] = 0xff
	}
	assert.Same(t, src, Scale(src, 2, 2))

	up := Scale(src, 4, 4)
	assert.Equal(t, image.Rect(0, 0, 4, 4), up.Bounds())
	assert.Equal(t, uint8(0xff), up.Pix[len(up.Pix)-1])

	fit := FitWidth(src, 8)
	assert.Equal(t, image.Rect(0, 0, 8, 8), fit.Bounds())
	assert.Same(t, src, FitWidth(src, 0))
}
