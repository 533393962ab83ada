// Package accel describes the compositing accelerator the scaler drives.
//
// The accelerator owns image resources in its own memory, can bind an
// offscreen display to one of them and composes elements into such a
// display inside update transactions. Every call may fail. Handles are
// plain identifiers; ownership is tracked by the caller (see lib/resource).
package accel

import (
	"errors"
	"fmt"
	"image"
)

type ImageType int

const (
	ImageUnknown ImageType = iota
	// Image8BPP indexes a 256-entry ARGB palette attached to the resource
	Image8BPP
	// ImageRGBA32 is R, G, B, A in memory order
	ImageRGBA32
	// ImageRGBX32 is R, G, B and an ignored byte; it composes opaque
	ImageRGBX32
)

func (t ImageType) String() string {
	switch t {
	case Image8BPP:
		return "8bpp"
	case ImageRGBA32:
		return "rgba32"
	case ImageRGBX32:
		return "rgbx32"
	default:
		return fmt.Sprintf("image(%d)", int(t))
	}
}

func (t ImageType) BytesPerPixel() int {
	switch t {
	case Image8BPP:
		return 1
	case ImageRGBA32, ImageRGBX32:
		return 4
	default:
		return 0
	}
}

type (
	Resource uint32
	Display  uint32
	Element  uint32
	Update   uint32
)

// NoHandle is never returned for a successfully created object
const NoHandle = 0

type Transform int

const (
	NoRotate Transform = iota
	Rotate90
	Rotate180
	Rotate270
)

type AlphaFlags uint32

const (
	AlphaFromSource AlphaFlags = 1 << iota
	AlphaFixedAllPixels
	AlphaMix
)

type Alpha struct {
	Flags   AlphaFlags
	Opacity uint8
}

// FixedRect is a rectangle in 16.16 fixed point
type FixedRect struct {
	X, Y, Width, Height int32
}

const fixedShift = 16

// ToFixed converts a pixel rectangle to 16.16
func ToFixed(r image.Rectangle) FixedRect {
	return FixedRect{
		X:      int32(r.Min.X) << fixedShift,
		Y:      int32(r.Min.Y) << fixedShift,
		Width:  int32(r.Dx()) << fixedShift,
		Height: int32(r.Dy()) << fixedShift,
	}
}

// Float returns the rectangle in (fractional) pixels
func (f FixedRect) Float() (x, y, w, h float32) {
	const one = float32(1 << fixedShift)
	return float32(f.X) / one, float32(f.Y) / one, float32(f.Width) / one, float32(f.Height) / one
}

var (
	ErrNoMemory      = errors.New("accelerator out of memory")
	ErrInvalidHandle = errors.New("invalid accelerator handle")
	ErrBadRect       = errors.New("rectangle outside of resource")
)

type Accelerator interface {
	CreateResource(typ ImageType, width, height int) (Resource, error)
	DeleteResource(res Resource) error
	// Pitch is the physical row length of a resource in bytes; it may
	// exceed width * bytes per pixel.
	Pitch(res Resource) (int, error)
	// SetPalette attaches 0xAARRGGBB entries to an 8bpp resource
	SetPalette(res Resource, entries []uint32) error
	// WriteData copies rect from host memory laid out with srcPitch into
	// the resource. data starts at the top-left pixel of rect.
	WriteData(res Resource, typ ImageType, srcPitch int, data []byte, rect image.Rectangle) error
	// ReadData copies rect out of the resource into host memory laid out
	// with dstPitch. dst starts at the top-left pixel of rect.
	ReadData(res Resource, rect image.Rectangle, dst []byte, dstPitch int) error

	OpenOffscreen(res Resource, t Transform) (Display, error)
	CloseDisplay(d Display) error

	UpdateStart(priority int) (Update, error)
	ElementAdd(u Update, d Display, layer int, dst image.Rectangle, src Resource, srcRect FixedRect, alpha Alpha, t Transform) (Element, error)
	ElementRemove(u Update, e Element) error
	// SubmitSync applies the update and returns once the accelerator has
	// finished composing it.
	SubmitSync(u Update) error
}

// Backend is an accelerator that needs process-wide bring-up
type Backend interface {
	Accelerator
	Name() string
	Init() error
	Deinit() error
}
