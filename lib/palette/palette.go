// Package palette converts indexed YUV palettes into the packed ARGB
// layout the accelerator consumes.
package palette

import (
	"errors"
	"fmt"
	"image/color"
)

// MaxEntries is the largest palette an 8-bit index can address
const MaxEntries = 256

var ErrTooManyEntries = fmt.Errorf("palette has more than %d entries", MaxEntries)

// YUVAEntry holds Y, U, V and A in that order
type YUVAEntry [4]uint8

type YUVA struct {
	Entries []YUVAEntry
}

func NewYUVA(entries []YUVAEntry) (*YUVA, error) {
	if len(entries) > MaxEntries {
		return nil, ErrTooManyEntries
	}
	return &YUVA{Entries: entries}, nil
}

func (p *YUVA) Len() int {
	if p == nil {
		return 0
	}
	return len(p.Entries)
}

// ARGB is a converted palette, one 0xAARRGGBB word per entry
type ARGB []uint32

func PackARGB(a, r, g, b uint8) uint32 {
	return uint32(a)<<24 | uint32(r)<<16 | uint32(g)<<8 | uint32(b)
}

// Components unpacks entry i back into separate channels
func (p ARGB) Components(i int) (a, r, g, b uint8) {
	v := p[i]
	return uint8(v >> 24), uint8(v >> 16), uint8(v >> 8), uint8(v)
}

// Convert maps every YUVA entry to ARGB, keeping count and order
func Convert(p *YUVA) (ARGB, error) {
	if p == nil {
		return nil, errors.New("no palette")
	}
	if len(p.Entries) > MaxEntries {
		return nil, ErrTooManyEntries
	}
	out := make(ARGB, len(p.Entries))
	for i, e := range p.Entries {
		r, g, b := ToRGB(e[0], e[1], e[2])
		out[i] = PackARGB(e[3], r, g, b)
	}
	return out, nil
}

// ToRGB applies the BT.601 limited-range matrix to one pixel
func ToRGB(y, u, v uint8) (r, g, b uint8) {
	yf := 1.164 * (float64(y) - 16)
	uf := float64(u) - 128
	vf := float64(v) - 128

	r = clamp(yf + 1.596*vf)
	g = clamp(yf - 0.813*vf - 0.391*uf)
	b = clamp(yf + 2.018*uf)
	return
}

// clamp truncates, matching a store into an 8-bit channel
func clamp(x float64) uint8 {
	switch {
	case x <= 0:
		return 0
	case x >= 255:
		return 255
	default:
		return uint8(x)
	}
}

// FromRGB is the inverse of ToRGB, rounded to the nearest code value
func FromRGB(r, g, b uint8) (y, u, v uint8) {
	rf, gf, bf := float64(r), float64(g), float64(b)
	y = clampRound(16 + 0.257*rf + 0.504*gf + 0.098*bf)
	u = clampRound(128 - 0.148*rf - 0.291*gf + 0.439*bf)
	v = clampRound(128 + 0.439*rf - 0.368*gf - 0.071*bf)
	return
}

// FromColors builds a YUVA palette out of arbitrary colours
func FromColors(colors color.Palette) (*YUVA, error) {
	if len(colors) > MaxEntries {
		return nil, ErrTooManyEntries
	}
	entries := make([]YUVAEntry, len(colors))
	for i, c := range colors {
		n := color.NRGBAModel.Convert(c).(color.NRGBA)
		y, u, v := FromRGB(n.R, n.G, n.B)
		entries[i] = YUVAEntry{y, u, v, n.A}
	}
	return &YUVA{Entries: entries}, nil
}

func clampRound(x float64) uint8 {
	return clamp(x + 0.5)
}
