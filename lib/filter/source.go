package filter

import (
	"fmt"

	"github.com/fosdem/glscale/lib/accel"
	"github.com/fosdem/glscale/lib/format"
	"github.com/fosdem/glscale/lib/palette"
	"github.com/fosdem/glscale/lib/picture"
)

type source struct {
	typ     accel.ImageType
	pitch   int
	pixels  []byte
	palette palette.ARGB
}

// prepareSource picks the accelerator image type for a picture and
// produces the bytes to upload
func prepareSource(in *format.Video, pic *picture.Picture) (*source, error) {
	if err := checkPlanes(in, pic); err != nil {
		return nil, err
	}
	plane := &pic.Planes[0]

	switch in.Chroma {
	case format.IndexedYUV8:
		pal, err := palette.Convert(in.Palette)
		if err != nil {
			return nil, err
		}
		return &source{typ: accel.Image8BPP, pitch: plane.Pitch, pixels: plane.Pixels, palette: pal}, nil
	case format.PlanarYUVA:
		return yuvaToRGBA(in, pic), nil
	case format.PackedRGB32:
		return &source{typ: accel.ImageRGBX32, pitch: plane.Pitch, pixels: plane.Pixels}, nil
	case format.PackedRGBA32:
		return &source{typ: accel.ImageRGBA32, pitch: plane.Pitch, pixels: plane.Pixels}, nil
	default:
		return nil, fmt.Errorf("no upload path for %s", in.Chroma)
	}
}

func checkPlanes(in *format.Video, pic *picture.Picture) error {
	if len(pic.Planes) != in.Chroma.PlaneCount() {
		return fmt.Errorf("%s picture has %d planes, expected %d", in.Chroma, len(pic.Planes), in.Chroma.PlaneCount())
	}
	bpp := in.Chroma.BytesPerPixel()
	for i, p := range pic.Planes {
		if p.Pitch < in.Width*bpp || len(p.Pixels) < (in.Height-1)*p.Pitch+in.Width*bpp {
			return fmt.Errorf("plane %d of %d bytes with pitch %d is too small for %s", i, len(p.Pixels), p.Pitch, in)
		}
	}
	return nil
}

// yuvaToRGBA converts 4:4:4 planar YUV with alpha on the host, using
// the same matrix as the palette, so it can be uploaded as RGBA.
func yuvaToRGBA(in *format.Video, pic *picture.Picture) *source {
	pitch := in.Width * 4
	out := make([]byte, pitch*in.Height)
	yp, up, vp, ap := &pic.Planes[0], &pic.Planes[1], &pic.Planes[2], &pic.Planes[3]

	for y := 0; y < in.Height; y++ {
		ys, us, vs, as := yp.Pixels[y*yp.Pitch:], up.Pixels[y*up.Pitch:], vp.Pixels[y*vp.Pitch:], ap.Pixels[y*ap.Pitch:]
		row := out[y*pitch:]
		for x := 0; x < in.Width; x++ {
			r, g, b := palette.ToRGB(ys[x], us[x], vs[x])
			row[x*4+0] = r
			row[x*4+1] = g
			row[x*4+2] = b
			row[x*4+3] = as[x]
		}
	}
	return &source{typ: accel.ImageRGBA32, pitch: pitch, pixels: out}
}
