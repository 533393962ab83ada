package utils

import (
	"image/color"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestColour(t *testing.T) {
	assert.True(t, ColourValidate("#0000ffff"))
	assert.True(t, ColourValidate("#A0b0C0d0"))
	assert.False(t, ColourValidate("#0000ff"))
	assert.False(t, ColourValidate("0000ffff"))
	assert.False(t, ColourValidate("#0000ffff00"))

	assert.Equal(t, color.RGBA{R: 0x10, G: 0x20, B: 0x30, A: 0xff}, ColourParse("#102030ff"))
}

func TestDeltaTimer(t *testing.T) {
	var d DeltaTimer
	assert.Zero(t, d.Next())
	d.Set(time.Now().Add(-time.Second))
	assert.GreaterOrEqual(t, d.Next(), time.Second)

	var idle DeltaTimer
	assert.Zero(t, idle.Since(time.Now()))
	start := time.Now()
	idle.Set(start)
	assert.Equal(t, 2*time.Second, idle.Since(start.Add(2*time.Second)))
}
