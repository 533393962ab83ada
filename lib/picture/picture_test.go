package picture

import (
	"image"
	"image/color"
	"testing"

	"github.com/fosdem/glscale/lib/format"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeapAllocatorLayout(t *testing.T) {
	alloc := &HeapAllocator{Fill: color.RGBA{R: 1, G: 2, B: 3, A: 4}}

	p, err := alloc.Allocate(format.Video{Chroma: format.PackedRGBA32, Width: 5, Height: 3})
	require.NoError(t, err)
	require.Len(t, p.Planes, 1)
	assert.Equal(t, uint32(1), p.ID)

	plane := p.Planes[0]
	assert.Equal(t, 32, plane.Pitch)
	assert.Equal(t, 32*3, len(plane.Pixels))
	for y := 0; y < plane.Height; y++ {
		row := plane.Row(y, 4)
		require.Len(t, row, 20)
		for x := 0; x < len(row); x += 4 {
			assert.Equal(t, []byte{1, 2, 3, 4}, row[x:x+4])
		}
	}

	p, err = alloc.Allocate(format.Video{Chroma: format.PlanarYUVA, Width: 4, Height: 2})
	require.NoError(t, err)
	require.Len(t, p.Planes, 4)
	for _, plane := range p.Planes {
		assert.Equal(t, 32, plane.Pitch)
		assert.Len(t, plane.Pixels, 64)
		assert.Equal(t, make([]byte, 64), plane.Pixels)
	}
	assert.Equal(t, uint32(2), p.ID)
}

func TestHeapAllocatorRejects(t *testing.T) {
	alloc := &HeapAllocator{}
	_, err := alloc.Allocate(format.Video{Chroma: format.ChromaUnknown, Width: 4, Height: 4})
	require.Error(t, err)
	_, err = alloc.Allocate(format.Video{Chroma: format.PackedRGBA32, Width: 0, Height: 4})
	require.Error(t, err)
}

func TestReleaseOnce(t *testing.T) {
	calls := 0
	p := New(format.Video{Chroma: format.PackedRGBA32, Width: 1, Height: 1}, nil, func() { calls++ })
	p.Release()
	assert.Equal(t, 1, calls)
	assert.True(t, p.Released())
	assert.Panics(t, p.Release)
	assert.Equal(t, 1, calls)
}

func TestCopyProperties(t *testing.T) {
	src := &Picture{PTS: 40, Flags: Progressive | Still, NumFields: 2}
	dst := &Picture{}
	dst.CopyProperties(src)
	assert.Equal(t, src.PTS, dst.PTS)
	assert.Equal(t, src.Flags, dst.Flags)
	assert.Equal(t, 2, dst.NumFields)
}

func TestImageRoundTrip(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 3, 2))
	img.Set(0, 0, color.NRGBA{R: 255, A: 255})
	img.Set(2, 1, color.NRGBA{G: 200, B: 100, A: 50})

	p, err := FromImage(img, &HeapAllocator{})
	require.NoError(t, err)
	assert.Equal(t, format.PackedRGBA32, p.Format.Chroma)
	assert.Equal(t, 3, p.Format.Width)

	out, err := ToImage(p)
	require.NoError(t, err)
	assert.Equal(t, img.Pix, out.Pix)
}

func TestFromPalettedImage(t *testing.T) {
	pal := color.Palette{color.NRGBA{A: 255}, color.NRGBA{R: 255, G: 255, B: 255, A: 255}}
	img := image.NewPaletted(image.Rect(0, 0, 2, 2), pal)
	img.SetColorIndex(1, 1, 1)

	p, err := FromImage(img, &HeapAllocator{})
	require.NoError(t, err)
	assert.Equal(t, format.IndexedYUV8, p.Format.Chroma)
	require.Equal(t, 2, p.Format.Palette.Len())
	assert.Equal(t, uint8(235), p.Format.Palette.Entries[1][0])
	assert.Equal(t, []byte{0, 0}, p.Planes[0].Row(0, 1))
	assert.Equal(t, []byte{0, 1}, p.Planes[0].Row(1, 1))

	_, err = ToImage(p)
	require.Error(t, err)
}
