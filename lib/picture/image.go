package picture

import (
	"fmt"
	"image"
	"image/draw"

	"github.com/fosdem/glscale/lib/format"
	"github.com/fosdem/glscale/lib/palette"
)

// FromImage copies img into a newly allocated picture. Paletted images
// become IndexedYUV8 with their palette converted to YUVA, everything
// else becomes PackedRGBA32.
func FromImage(img image.Image, alloc Allocator) (*Picture, error) {
	w := img.Bounds().Dx()
	h := img.Bounds().Dy()

	if pal, ok := img.(*image.Paletted); ok && len(pal.Palette) <= palette.MaxEntries {
		yuva, err := palette.FromColors(pal.Palette)
		if err != nil {
			return nil, err
		}
		p, err := alloc.Allocate(format.Video{Chroma: format.IndexedYUV8, Width: w, Height: h, Palette: yuva})
		if err != nil {
			return nil, err
		}
		plane := &p.Planes[0]
		for y := 0; y < h; y++ {
			off := pal.PixOffset(pal.Rect.Min.X, pal.Rect.Min.Y+y)
			copy(plane.Row(y, 1), pal.Pix[off:off+w])
		}
		return p, nil
	}

	p, err := alloc.Allocate(format.Video{Chroma: format.PackedRGBA32, Width: w, Height: h})
	if err != nil {
		return nil, err
	}
	plane := &p.Planes[0]
	nrgba := &image.NRGBA{
		Pix:    plane.Pixels,
		Stride: plane.Pitch,
		Rect:   image.Rect(0, 0, w, h),
	}
	draw.Draw(nrgba, nrgba.Bounds(), img, img.Bounds().Min, draw.Src)
	return p, nil
}

// ToImage copies an RGBA picture into a fresh image
func ToImage(p *Picture) (*image.NRGBA, error) {
	if p.Format.Chroma != format.PackedRGBA32 || len(p.Planes) != 1 {
		return nil, fmt.Errorf("cannot convert %s into an image", p.Format)
	}
	plane := &p.Planes[0]
	img := image.NewNRGBA(image.Rect(0, 0, plane.Width, plane.Height))
	for y := 0; y < plane.Height; y++ {
		copy(img.Pix[y*img.Stride:], plane.Row(y, 4))
	}
	return img, nil
}
