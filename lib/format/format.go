package format

import (
	"fmt"
	"strings"

	"github.com/fosdem/glscale/lib/palette"
)

type Chroma int

const (
	ChromaUnknown Chroma = iota
	// IndexedYUV8 is one byte per pixel indexing a YUVA palette
	IndexedYUV8
	// PlanarYUVA is 4:4:4 planar Y, U, V and A
	PlanarYUVA
	// PackedRGB32 is R, G, B, X in memory order; X is ignored
	PackedRGB32
	// PackedRGBA32 is R, G, B, A in memory order
	PackedRGBA32
)

var chromaNames = map[Chroma]string{
	IndexedYUV8:  "yuvp",
	PlanarYUVA:   "yuva",
	PackedRGB32:  "rgb32",
	PackedRGBA32: "rgba",
}

func (c Chroma) String() string {
	if name, ok := chromaNames[c]; ok {
		return name
	}
	return fmt.Sprintf("chroma(%d)", int(c))
}

func ParseChroma(s string) (Chroma, error) {
	s = strings.ToLower(s)
	for c, name := range chromaNames {
		if name == s {
			return c, nil
		}
	}
	return ChromaUnknown, fmt.Errorf("unknown chroma %q", s)
}

// PlaneCount is the number of pixel planes a picture of this chroma carries
func (c Chroma) PlaneCount() int {
	switch c {
	case PlanarYUVA:
		return 4
	case IndexedYUV8, PackedRGB32, PackedRGBA32:
		return 1
	default:
		return 0
	}
}

// BytesPerPixel is the size of one pixel within a single plane
func (c Chroma) BytesPerPixel() int {
	switch c {
	case IndexedYUV8, PlanarYUVA:
		return 1
	case PackedRGB32, PackedRGBA32:
		return 4
	default:
		return 0
	}
}

// Orientation follows the EXIF convention: the name says where the
// first stored row and column end up when the picture is displayed.
type Orientation int

const (
	TopLeft Orientation = iota
	TopRight
	BottomLeft
	BottomRight
	LeftTop
	LeftBottom
	RightTop
	RightBottom
)

var orientationNames = [...]string{
	TopLeft:     "top_left",
	TopRight:    "top_right",
	BottomLeft:  "bottom_left",
	BottomRight: "bottom_right",
	LeftTop:     "left_top",
	LeftBottom:  "left_bottom",
	RightTop:    "right_top",
	RightBottom: "right_bottom",
}

func (o Orientation) String() string {
	if o >= 0 && int(o) < len(orientationNames) {
		return orientationNames[o]
	}
	return fmt.Sprintf("orientation(%d)", int(o))
}

func ParseOrientation(s string) (Orientation, error) {
	if s == "" {
		return TopLeft, nil
	}
	for i, name := range orientationNames {
		if name == strings.ToLower(s) {
			return Orientation(i), nil
		}
	}
	return TopLeft, fmt.Errorf("unknown orientation %q", s)
}

// Video describes the pixels of one side of the filter
type Video struct {
	Chroma      Chroma
	Width       int
	Height      int
	Orientation Orientation

	// Palette is only meaningful for IndexedYUV8
	Palette *palette.YUVA
}

func (v Video) String() string {
	return fmt.Sprintf("%s %dx%d", v.Chroma, v.Width, v.Height)
}
