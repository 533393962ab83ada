package theatre

import (
	"context"
	"image/color"
	"testing"
	"time"

	"github.com/fosdem/glscale/lib/accel/memaccel"
	"github.com/fosdem/glscale/lib/config"
	"github.com/fosdem/glscale/lib/format"
	"github.com/fosdem/glscale/lib/picture"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTheatre(t *testing.T, listeners ...func(*Theatre)) (*Theatre, *memaccel.Accel) {
	acc := memaccel.New()
	th := NewWithBackend(acc, &picture.HeapAllocator{}, nil)
	th.Profiles["small"] = format.Video{Chroma: format.PackedRGBA32, Width: 8, Height: 8}
	for _, l := range listeners {
		l(th)
	}
	th.Start()
	t.Cleanup(th.Stop)
	return th, acc
}

func redPicture(t *testing.T, w, h int) *picture.Picture {
	alloc := &picture.HeapAllocator{Fill: colourRed}
	p, err := alloc.Allocate(format.Video{Chroma: format.PackedRGBA32, Width: w, Height: h})
	require.NoError(t, err)
	return p
}

func TestScale(t *testing.T) {
	events := make(chan EventFrameData, 4)
	th, acc := newTheatre(t, func(th *Theatre) {
		th.AddEventListener(EventFrameProcessed, func(_ *Theatre, data interface{}) {
			events <- data.(EventFrameData)
		})
	})

	for range 3 {
		out, err := th.Scale(context.Background(), "small", redPicture(t, 4, 4))
		require.NoError(t, err)
		assert.Equal(t, 8, out.Format.Width)
		assert.Equal(t, []byte{255, 0, 0, 255}, out.Planes[0].Pixels[:4])
		out.Release()
	}

	select {
	case ev := <-events:
		assert.Equal(t, "small", ev.Profile)
		assert.Equal(t, EventFrameProcessed, ev.Event)
	case <-time.After(time.Second):
		t.Fatal("no frame-processed event")
	}

	assert.Len(t, th.scalers, 1)
	assert.Equal(t, 1, acc.Inits())
	assert.True(t, acc.Live().Zero())
}

func TestScaleErrors(t *testing.T) {
	th, acc := newTheatre(t)

	in := redPicture(t, 4, 4)
	_, err := th.Scale(context.Background(), "huge", in)
	require.ErrorIs(t, err, ErrNoSuchProfile)
	assert.True(t, in.Released())

	in = redPicture(t, 4, 4)
	in.Format.Orientation = format.BottomRight
	_, err = th.Scale(context.Background(), "small", in)
	var cfgErr *format.ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.True(t, in.Released())

	acc.InjectFailure(memaccel.OpReadData, 1)
	in = redPicture(t, 4, 4)
	_, err = th.Scale(context.Background(), "small", in)
	require.ErrorIs(t, err, ErrDropped)
	assert.True(t, in.Released())
}

func TestScaleAfterStop(t *testing.T) {
	th, acc := newTheatre(t)
	out, err := th.Scale(context.Background(), "small", redPicture(t, 2, 2))
	require.NoError(t, err)
	out.Release()

	th.Stop()
	<-th.Done()
	assert.True(t, th.ShutdownRequested.Load())

	in := redPicture(t, 2, 2)
	_, err = th.Scale(context.Background(), "small", in)
	require.ErrorIs(t, err, ErrStopped)
	assert.True(t, in.Released())
	assert.True(t, acc.Live().Zero())
}

func TestNewFromConfig(t *testing.T) {
	cfg := &config.Config{
		Accelerator: &config.AcceleratorCfg{Cfg: &config.MemAccelCfg{PitchAlign: 64, Interpolator: "catmull_rom"}},
		Allocator:   &config.AllocatorCfg{Type: "heap"},
		FillColour:  "#00ff00ff",
		Profiles:    map[string]*config.ProfileCfg{"hd": {Width: 1280, Height: 720}},
	}
	require.NoError(t, cfg.Profiles["hd"].Validate())

	th, err := New(cfg, nil)
	require.NoError(t, err)
	acc, ok := th.Host.Backend().(*memaccel.Accel)
	require.True(t, ok)
	assert.Equal(t, 64, acc.PitchAlign)
	assert.Equal(t, []string{"hd"}, th.ProfileNames())
	assert.Equal(t, 1280, th.Profiles["hd"].Width)
	th.Stop()
}

var colourRed = color.RGBA{R: 255, A: 255}
