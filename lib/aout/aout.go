// Package aout is an audio output that plays nothing. It accepts any
// format, asks for blocks of a sensible size and throws away whatever
// it is handed.
package aout

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fosdem/glscale/lib/metrics"
)

const (
	// BlockSamples is the preferred block size for PCM formats
	BlockSamples = 2048
	// SPDIFSamples is the number of samples in one A/52 frame
	SPDIFSamples = 1536
	// SPDIFFrameSize is the size in bytes of one S/PDIF burst
	SPDIFFrameSize = SPDIFSamples * 4
)

type Encoding int

const (
	S16 Encoding = iota
	S32
	Float32
	SPDIF
)

func (e Encoding) String() string {
	switch e {
	case S16:
		return "s16"
	case S32:
		return "s32"
	case Float32:
		return "f32"
	case SPDIF:
		return "spdif"
	default:
		return fmt.Sprintf("encoding(%d)", int(e))
	}
}

type Format struct {
	Encoding Encoding
	Rate     int
	Channels int
	// BytesPerFrame and FrameLength describe how many bytes hold how
	// many samples
	BytesPerFrame int
	FrameLength   int
}

func (f Format) String() string {
	return fmt.Sprintf("%s %dHz %dch", f.Encoding, f.Rate, f.Channels)
}

type Buffer struct {
	Samples []byte
	PTS     time.Duration
	Count   int

	release func()
}

func NewBuffer(samples []byte, count int, pts time.Duration, release func()) *Buffer {
	return &Buffer{Samples: samples, Count: count, PTS: pts, release: release}
}

func (b *Buffer) Release() {
	if b.release != nil {
		b.release()
		b.release = nil
	}
}

type Output struct {
	log    *slog.Logger
	mu     sync.Mutex
	format Format

	played atomic.Uint64
}

func New(log *slog.Logger) *Output {
	if log == nil {
		log = slog.Default()
	}
	return &Output{log: log.With(slog.String("module", "aout"))}
}

// SetFormat pretends to configure the device for f and returns the
// number of samples it wants per block. For S/PDIF it fixes up the
// frame geometry of f.
func (o *Output) SetFormat(f *Format) int {
	samples := BlockSamples
	if f.Encoding == SPDIF {
		samples = SPDIFSamples
		f.BytesPerFrame = SPDIFFrameSize
		f.FrameLength = SPDIFSamples
	}
	o.mu.Lock()
	o.format = *f
	o.mu.Unlock()
	o.log.Debug(fmt.Sprintf("format %s, %d samples per block", f, samples))
	return samples
}

func (o *Output) Format() Format {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.format
}

// Play discards b
func (o *Output) Play(b *Buffer) error {
	if b == nil {
		return nil
	}
	b.Release()
	o.played.Add(1)
	metrics.AudioBuffersDiscarded.Inc()
	return nil
}

// Played is the number of buffers discarded so far
func (o *Output) Played() uint64 {
	return o.played.Load()
}
