package palette

import (
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fullPalette() *YUVA {
	entries := make([]YUVAEntry, MaxEntries)
	for i := range entries {
		entries[i] = YUVAEntry{uint8(i), uint8(255 - i), uint8(i * 7), uint8(i * 3)}
	}
	return &YUVA{Entries: entries}
}

func TestConvertWhite(t *testing.T) {
	p, err := NewYUVA([]YUVAEntry{{235, 128, 128, 255}})
	require.NoError(t, err)

	argb, err := Convert(p)
	require.NoError(t, err)
	require.Len(t, argb, 1)

	a, r, g, b := argb.Components(0)
	assert.Equal(t, uint8(255), a)
	assert.InDelta(t, 255, r, 2)
	assert.InDelta(t, 255, g, 2)
	assert.InDelta(t, 255, b, 2)
}

func TestConvertBlack(t *testing.T) {
	argb, err := Convert(&YUVA{Entries: []YUVAEntry{{16, 128, 128, 0}}})
	require.NoError(t, err)

	a, r, g, b := argb.Components(0)
	assert.Equal(t, uint8(0), a)
	assert.Equal(t, uint8(0), r)
	assert.Equal(t, uint8(0), g)
	assert.Equal(t, uint8(0), b)
}

func TestConvertDeterministicAndOrdered(t *testing.T) {
	p := fullPalette()

	first, err := Convert(p)
	require.NoError(t, err)
	second, err := Convert(p)
	require.NoError(t, err)

	require.Equal(t, first, second)
	require.Len(t, first, MaxEntries)

	for i, e := range p.Entries {
		a, r, g, b := first.Components(i)
		assert.Equal(t, e[3], a, "alpha of entry %d", i)

		wr, wg, wb := ToRGB(e[0], e[1], e[2])
		assert.Equal(t, [3]uint8{wr, wg, wb}, [3]uint8{r, g, b}, "entry %d", i)
	}
}

func TestToRGBClamps(t *testing.T) {
	// saturated V pushes red far above 255 and green below 0
	r, g, _ := ToRGB(255, 128, 255)
	assert.Equal(t, uint8(255), r)
	assert.Less(t, g, uint8(255))

	r, g, b := ToRGB(0, 0, 0)
	assert.Equal(t, uint8(0), r)
	assert.Equal(t, uint8(135), g) // 1.164*-16 + 0.813*128 + 0.391*128 = 135.4
	assert.Equal(t, uint8(0), b)
}

func TestTooManyEntries(t *testing.T) {
	_, err := NewYUVA(make([]YUVAEntry, MaxEntries+1))
	require.ErrorIs(t, err, ErrTooManyEntries)

	_, err = Convert(&YUVA{Entries: make([]YUVAEntry, MaxEntries+1)})
	require.ErrorIs(t, err, ErrTooManyEntries)
}

func TestFromColorsRoundTrip(t *testing.T) {
	colors := color.Palette{
		color.NRGBA{R: 255, G: 255, B: 255, A: 255},
		color.NRGBA{R: 255, A: 128},
		color.NRGBA{G: 255, A: 255},
		color.NRGBA{B: 255, A: 0},
		color.NRGBA{R: 10, G: 20, B: 30, A: 40},
	}
	yuva, err := FromColors(colors)
	require.NoError(t, err)
	require.Equal(t, len(colors), yuva.Len())

	argb, err := Convert(yuva)
	require.NoError(t, err)
	for i, c := range colors {
		want := c.(color.NRGBA)
		a, r, g, b := argb.Components(i)
		assert.Equal(t, want.A, a)
		assert.InDelta(t, want.R, r, 3, "red of entry %d", i)
		assert.InDelta(t, want.G, g, 3, "green of entry %d", i)
		assert.InDelta(t, want.B, b, 3, "blue of entry %d", i)
	}
}
