package format

import (
	"errors"
	"fmt"
	"image"
	"math"

	"github.com/fosdem/glscale/lib/palette"
)

var (
	ErrUnsupportedChroma   = errors.New("unsupported input chroma")
	ErrUnsupportedOutput   = errors.New("output chroma must be rgba")
	ErrOrientationMismatch = errors.New("input and output orientation differ")
	ErrZeroSize            = errors.New("zero-sized picture")
	ErrMissingPalette      = errors.New("indexed input without a palette")
	ErrTooLarge            = fmt.Errorf("input larger than %dx%d", MaxInputSize, MaxInputSize)
)

// MaxInputSize bounds input dimensions so the source rectangle fits the
// accelerator's 16.16 fixed point
const MaxInputSize = math.MaxInt16

// ConfigError is returned for any configuration the scaler cannot handle.
// Nothing has been allocated by the time it is returned.
type ConfigError struct {
	In     Video
	Out    Video
	Reason error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("unsupported configuration %s -> %s: %s", e.In, e.Out, e.Reason)
}

func (e *ConfigError) Unwrap() error {
	return e.Reason
}

// Geometry is what a negotiated format pair renders
type Geometry struct {
	// Source covers the whole input picture
	Source image.Rectangle
	// Buffer is the size of the output picture
	Buffer image.Point
	// Render is the part of the buffer the input is scaled into
	Render image.Rectangle
}

var supportedInput = map[Chroma]bool{
	IndexedYUV8:  true,
	PlanarYUVA:   true,
	PackedRGB32:  true,
	PackedRGBA32: true,
}

// Negotiate decides whether in can be scaled into out and computes
// the rectangle the picture is rendered into.
func Negotiate(in, out *Video) (*Geometry, error) {
	reject := func(reason error) (*Geometry, error) {
		return nil, &ConfigError{In: *in, Out: *out, Reason: reason}
	}

	if !supportedInput[in.Chroma] {
		return reject(ErrUnsupportedChroma)
	}
	if out.Chroma != PackedRGBA32 {
		return reject(ErrUnsupportedOutput)
	}
	if in.Orientation != out.Orientation {
		return reject(ErrOrientationMismatch)
	}
	if in.Width <= 0 || in.Height <= 0 || out.Width <= 0 || out.Height <= 0 {
		return reject(ErrZeroSize)
	}
	if in.Width > MaxInputSize || in.Height > MaxInputSize {
		return reject(ErrTooLarge)
	}
	if in.Chroma == IndexedYUV8 {
		if in.Palette == nil || in.Palette.Len() == 0 {
			return reject(ErrMissingPalette)
		}
		if in.Palette.Len() > palette.MaxEntries {
			return reject(palette.ErrTooManyEntries)
		}
	}

	return &Geometry{
		Source: image.Rect(0, 0, in.Width, in.Height),
		Buffer: image.Pt(out.Width, out.Height),
		Render: FitRect(in.Width, in.Height, out.Width, out.Height),
	}, nil
}

// FitRect returns the largest rectangle with the aspect ratio of
// srcW:srcH that fits into dstW x dstH, centred.
func FitRect(srcW, srcH, dstW, dstH int) image.Rectangle {
	w, h := dstW, dstH
	if int64(srcW)*int64(dstH) > int64(dstW)*int64(srcH) {
		// letterbox
		h = int(divRound(int64(dstW)*int64(srcH), int64(srcW)))
	} else {
		// pillarbox
		w = int(divRound(int64(dstH)*int64(srcW), int64(srcH)))
	}
	w = max(1, min(w, dstW))
	h = max(1, min(h, dstH))

	x := (dstW - w) / 2
	y := (dstH - h) / 2
	return image.Rect(x, y, x+w, y+h)
}

func divRound(a, b int64) int64 {
	return (a + b/2) / b
}
