// Package theatre owns the accelerator and runs every scale job on one
// locked OS thread, keeping a scaler per input format and profile.
package theatre

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fosdem/glscale/lib/accel"
	"github.com/fosdem/glscale/lib/aout"
	"github.com/fosdem/glscale/lib/config"
	"github.com/fosdem/glscale/lib/filter"
	"github.com/fosdem/glscale/lib/format"
	"github.com/fosdem/glscale/lib/picture"
)

var (
	ErrNoSuchProfile = errors.New("no such profile")
	ErrDropped       = errors.New("frame dropped")
	ErrStopped       = errors.New("theatre is not running")
)

// maxScalers bounds the scaler cache; it is flushed when full
const maxScalers = 32

type scalerKey struct {
	profile     string
	chroma      format.Chroma
	width       int
	height      int
	orientation format.Orientation
}

type result struct {
	pic *picture.Picture
	err error
}

type job struct {
	profile string
	pic     *picture.Picture
	done    chan result
}

type Theatre struct {
	Profiles map[string]format.Video
	Host     *accel.Host
	Alloc    picture.Allocator
	Audio    *aout.Output
	Registry *filter.Registry

	ShutdownRequested atomic.Bool

	log      *slog.Logger
	jobs     chan job
	quit     chan struct{}
	stopOnce sync.Once
	stopped  chan struct{}
	running  atomic.Bool
	scalers  map[scalerKey]filter.Filter
	listener map[string][]EventListener
}

func New(cfg *config.Config, log *slog.Logger) (*Theatre, error) {
	if log == nil {
		log = slog.Default()
	}
	backend, err := buildBackend(cfg.Accelerator, log)
	if err != nil {
		return nil, err
	}
	t := NewWithBackend(backend, buildAllocator(cfg.Allocator, cfg.FillColour), log)
	for name, p := range cfg.Profiles {
		t.Profiles[name] = p.Video()
	}
	return t, nil
}

func NewWithBackend(backend accel.Backend, alloc picture.Allocator, log *slog.Logger) *Theatre {
	if log == nil {
		log = slog.Default()
	}
	return &Theatre{
		Profiles: make(map[string]format.Video),
		Host:     accel.NewHost(backend),
		Alloc:    alloc,
		Audio:    aout.New(log),
		Registry: filter.Default,
		log:      log.With(slog.String("module", "theatre")),
		jobs:     make(chan job),
		quit:     make(chan struct{}),
		stopped:  make(chan struct{}),
		scalers:  make(map[scalerKey]filter.Filter),
		listener: make(map[string][]EventListener),
	}
}

// Start launches the render thread
func (t *Theatre) Start() {
	t.running.Store(true)
	go t.run()
}

// Stop closes every scaler on the render thread and waits for it to exit
func (t *Theatre) Stop() {
	t.stopOnce.Do(func() {
		t.ShutdownRequested.Store(true)
		close(t.quit)
		if !t.running.Load() {
			close(t.stopped)
			return
		}
		<-t.stopped
	})
}

// Done is closed once the render thread has exited
func (t *Theatre) Done() <-chan struct{} {
	return t.stopped
}

func (t *Theatre) run() {
	// The accelerator context must stay on one thread
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	defer close(t.stopped)

	// keeps the accelerator up while scalers come and go
	if _, err := t.Host.Acquire(); err != nil {
		t.log.Error(fmt.Sprintf("could not bring up accelerator: %s", err))
	} else {
		defer func() {
			if err := t.Host.Release(); err != nil {
				t.log.Warn(fmt.Sprintf("could not shut down accelerator: %s", err))
			}
		}()
	}

	for {
		select {
		case j := <-t.jobs:
			pic, err := t.process(j.profile, j.pic)
			j.done <- result{pic: pic, err: err}
		case <-t.quit:
			t.flushScalers()
			t.log.Info("render thread stopped")
			return
		}
	}
}

// Scale hands pic to the render thread and waits for the result. pic
// is consumed in every case.
func (t *Theatre) Scale(ctx context.Context, profile string, pic *picture.Picture) (*picture.Picture, error) {
	if !t.running.Load() {
		pic.Release()
		return nil, ErrStopped
	}

	j := job{profile: profile, pic: pic, done: make(chan result, 1)}
	select {
	case t.jobs <- j:
	case <-t.quit:
		pic.Release()
		return nil, ErrStopped
	case <-ctx.Done():
		pic.Release()
		return nil, ctx.Err()
	}
	r := <-j.done
	return r.pic, r.err
}

func (t *Theatre) process(profile string, pic *picture.Picture) (*picture.Picture, error) {
	out, ok := t.Profiles[profile]
	if !ok {
		pic.Release()
		return nil, fmt.Errorf("%w: %s", ErrNoSuchProfile, profile)
	}
	event := EventFrameData{Profile: profile, In: pic.Format.String(), Out: out.String()}

	f, err := t.scaler(profile, pic.Format, out)
	if err != nil {
		pic.Release()
		event.Event = EventFrameDropped
		event.Error = err.Error()
		t.invoke(EventFrameDropped, event)
		return nil, err
	}

	start := time.Now()
	res := f.ProcessFrame(pic)
	event.Duration = time.Since(start)
	if res == nil {
		event.Event = EventFrameDropped
		event.Error = ErrDropped.Error()
		t.invoke(EventFrameDropped, event)
		return nil, ErrDropped
	}
	event.Event = EventFrameProcessed
	t.invoke(EventFrameProcessed, event)
	return res, nil
}

func (t *Theatre) scaler(profile string, in, out format.Video) (filter.Filter, error) {
	key := scalerKey{
		profile:     profile,
		chroma:      in.Chroma,
		width:       in.Width,
		height:      in.Height,
		orientation: in.Orientation,
	}
	if f, ok := t.scalers[key]; ok {
		return f, nil
	}
	if len(t.scalers) >= maxScalers {
		t.flushScalers()
	}

	f, err := t.Registry.Open(in, out, filter.Options{
		Name:      profile,
		Host:      t.Host,
		Allocator: t.Alloc,
		Logger:    t.log,
	})
	if err != nil {
		return nil, err
	}
	t.log.Debug(fmt.Sprintf("opened %s", f))
	t.scalers[key] = f
	return f, nil
}

func (t *Theatre) flushScalers() {
	for key, f := range t.scalers {
		if err := f.Close(); err != nil {
			t.log.Warn(fmt.Sprintf("could not close %s: %s", f, err))
		}
		delete(t.scalers, key)
	}
}

func (t *Theatre) ProfileNames() []string {
	names := make([]string, 0, len(t.Profiles))
	for name := range t.Profiles {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
