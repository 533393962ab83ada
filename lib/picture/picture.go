package picture

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/fosdem/glscale/lib/format"
)

type Flags uint32

const (
	Progressive Flags = 1 << iota
	TopFieldFirst
	Still
	ForceDisplay
)

type Plane struct {
	Pixels []byte
	// Pitch is the length of a row in bytes, padding included
	Pitch int
	// Width and Height are the visible size in pixels
	Width  int
	Height int
}

// Row returns the visible bytes of row y
func (p *Plane) Row(y, bytesPerPixel int) []byte {
	off := y * p.Pitch
	return p.Pixels[off : off+p.Width*bytesPerPixel]
}

type Picture struct {
	Format format.Video
	Planes []Plane

	PTS       time.Duration
	Flags     Flags
	NumFields int

	ID uint32

	release  func()
	released atomic.Bool
}

// New wraps existing planes; release, if not nil, runs on Release
func New(v format.Video, planes []Plane, release func()) *Picture {
	return &Picture{Format: v, Planes: planes, release: release}
}

// Release hands the picture back to whoever allocated it. A picture
// must be released exactly once.
func (p *Picture) Release() {
	if !p.released.CompareAndSwap(false, true) {
		panic(fmt.Sprintf("picture %d released twice", p.ID))
	}
	if p.release != nil {
		p.release()
	}
}

func (p *Picture) Released() bool {
	return p.released.Load()
}

// CopyProperties copies everything but the pixels from src
func (p *Picture) CopyProperties(src *Picture) {
	p.PTS = src.PTS
	p.Flags = src.Flags
	p.NumFields = src.NumFields
}

func (p *Picture) String() string {
	return fmt.Sprintf("picture %d (%s, pts %s)", p.ID, p.Format, p.PTS)
}
