package picture

import (
	"fmt"
	"image/color"
	"sync/atomic"

	"github.com/fosdem/glscale/lib/format"
)

type Allocator interface {
	Allocate(v format.Video) (*Picture, error)
}

// DefaultAlign is the row alignment in bytes of allocated planes
const DefaultAlign = 32

// HeapAllocator allocates pictures on the Go heap. RGBA pictures are
// filled with Fill, so regions nobody draws into have a known colour.
type HeapAllocator struct {
	Fill  color.RGBA
	Align int

	LastID atomic.Uint32
}

func (h *HeapAllocator) Allocate(v format.Video) (*Picture, error) {
	planes, size, err := Layout(v, h.Align)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, size)
	assign(planes, buf)
	fill(v, planes, h.Fill)

	p := New(v, planes, nil)
	p.ID = h.LastID.Add(1)
	return p, nil
}

// Layout computes the planes of a picture of format v with rows
// aligned to align bytes and the total buffer size they need. Plane
// pixels are left nil.
func Layout(v format.Video, align int) ([]Plane, int, error) {
	n := v.Chroma.PlaneCount()
	bpp := v.Chroma.BytesPerPixel()
	if n == 0 || bpp == 0 {
		return nil, 0, fmt.Errorf("cannot allocate pictures of chroma %s", v.Chroma)
	}
	if v.Width <= 0 || v.Height <= 0 {
		return nil, 0, fmt.Errorf("cannot allocate a %dx%d picture", v.Width, v.Height)
	}
	if align <= 0 {
		align = DefaultAlign
	}

	pitch := (v.Width*bpp + align - 1) / align * align
	planes := make([]Plane, n)
	for i := range planes {
		planes[i] = Plane{Pitch: pitch, Width: v.Width, Height: v.Height}
	}
	return planes, n * pitch * v.Height, nil
}

func assign(planes []Plane, buf []byte) {
	off := 0
	for i := range planes {
		size := planes[i].Pitch * planes[i].Height
		planes[i].Pixels = buf[off : off+size : off+size]
		off += size
	}
}

func fill(v format.Video, planes []Plane, c color.RGBA) {
	if v.Chroma != format.PackedRGBA32 || c == (color.RGBA{}) {
		return
	}
	px := [4]byte{c.R, c.G, c.B, c.A}
	for i := range planes {
		for y := 0; y < planes[i].Height; y++ {
			row := planes[i].Row(y, 4)
			for x := 0; x < len(row); x += 4 {
				copy(row[x:x+4], px[:])
			}
		}
	}
}
