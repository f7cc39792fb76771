package flir

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/stretchr/testify/require"
)

func encodePNG(t *testing.T, colors [][]color.RGBA) []byte {
	t.Helper()
	h := len(colors)
	w := len(colors[0])
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, colors[y][x])
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestPaletteDecoderExactControlPoints(t *testing.T) {
	points := []ControlPoint{
		{R: 0, G: 0, B: 20, Temp: 20},
		{R: 255, G: 255, B: 220, Temp: 120},
	}
	dec, err := NewPaletteDecoder(points, 20, 120)
	require.NoError(t, err)

	data := encodePNG(t, [][]color.RGBA{{
		{R: 0, G: 0, B: 20, A: 255},
		{R: 255, G: 255, B: 220, A: 255},
	}})

	m, err := dec.Decode(data)
	require.NoError(t, err)
	require.False(t, m.Radiometric)
	require.InDelta(t, 20.0, m.At(0, 0), 1e-9)
	require.InDelta(t, 120.0, m.At(1, 0), 1e-9)
}

func TestPaletteDecoderInterpolatesBetweenPoints(t *testing.T) {
	points := []ControlPoint{
		{R: 0, G: 0, B: 0, Temp: 20},
		{R: 200, G: 200, B: 200, Temp: 100},
	}
	dec, err := NewPaletteDecoder(points, 20, 100)
	require.NoError(t, err)

	// Серый посередине между опорными точками.
	data := encodePNG(t, [][]color.RGBA{{{R: 100, G: 100, B: 100, A: 255}}})
	m, err := dec.Decode(data)
	require.NoError(t, err)
	got := m.At(0, 0)
	require.Greater(t, got, 40.0)
	require.Less(t, got, 80.0)
}

func TestPaletteDecoderOutOfGamutNeverFails(t *testing.T) {
	dec, err := NewPaletteDecoder(DefaultIronPalette(20, 120), 20, 120)
	require.NoError(t, err)

	// Чистый зелёный далёк от любой точки палитры iron.
	data := encodePNG(t, [][]color.RGBA{{{G: 255, A: 255}}})
	m, err := dec.Decode(data)
	require.NoError(t, err)
	require.GreaterOrEqual(t, m.At(0, 0), 20.0)
	require.LessOrEqual(t, m.At(0, 0), 120.0)
	require.True(t, m.Validate())
}

func TestPaletteDecoderUndecodableBytes(t *testing.T) {
	dec, err := NewPaletteDecoder(DefaultIronPalette(20, 120), 20, 120)
	require.NoError(t, err)

	_, err = dec.Decode([]byte("not an image at all"))
	require.ErrorIs(t, err, ErrUndecodableImage)
}

func TestNewPaletteDecoderValidation(t *testing.T) {
	_, err := NewPaletteDecoder([]ControlPoint{{Temp: 20}}, 20, 120)
	require.Error(t, err)

	_, err = NewPaletteDecoder(DefaultIronPalette(20, 120), 120, 20)
	require.Error(t, err)
}
