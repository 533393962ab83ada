// Package filter is the video filter surface of glscale: it negotiates
// a format pair once and then turns every input picture into a scaled
// RGBA picture using the accelerator.
package filter

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/fosdem/glscale/lib/accel"
	"github.com/fosdem/glscale/lib/compositor"
	"github.com/fosdem/glscale/lib/format"
	"github.com/fosdem/glscale/lib/metrics"
	"github.com/fosdem/glscale/lib/picture"
	"github.com/fosdem/glscale/lib/resource"
)

var ErrClosed = errors.New("filter is closed")

// Filter turns input pictures into output pictures. ProcessFrame
// always consumes its input; a nil result means the frame is dropped.
type Filter interface {
	fmt.Stringer
	ProcessFrame(pic *picture.Picture) *picture.Picture
	Close() error
}

type Options struct {
	Name      string
	Host      *accel.Host
	Allocator picture.Allocator
	Logger    *slog.Logger
}

// Scaler scales pictures with a compositing accelerator
type Scaler struct {
	name string
	in   format.Video
	out  format.Video

	host      *accel.Host
	acc       accel.Accelerator
	resources *resource.Manager
	alloc     picture.Allocator

	log     *slog.Logger
	metrics metrics.FilterMetrics

	closed bool
}

var _ Filter = (*Scaler)(nil)

// Open checks that in can be scaled into out and brings the accelerator
// up. A rejected configuration is a *format.ConfigError and touches no
// accelerator state.
func Open(in, out format.Video, opts Options) (*Scaler, error) {
	if opts.Name == "" {
		opts.Name = "scale"
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	log := opts.Logger.With(slog.String("module", opts.Name))

	if _, err := format.Negotiate(&in, &out); err != nil {
		log.Debug(fmt.Sprintf("rejecting %s -> %s: %s", in, out, err))
		return nil, err
	}
	if opts.Host == nil {
		return nil, errors.New("no accelerator host")
	}
	if opts.Allocator == nil {
		return nil, errors.New("no picture allocator")
	}

	acc, err := opts.Host.Acquire()
	if err != nil {
		return nil, err
	}

	log.Debug(fmt.Sprintf("%dx%d -> %dx%d", in.Width, in.Height, out.Width, out.Height))

	return &Scaler{
		name:      opts.Name,
		in:        in,
		out:       out,
		host:      opts.Host,
		acc:       acc,
		resources: resource.NewManager(acc, log),
		alloc:     opts.Allocator,
		log:       log,
		metrics:   metrics.NewFilterMetrics(opts.Name),
	}, nil
}

func (s *Scaler) String() string {
	return fmt.Sprintf("Scaler(%s -> %s)", s.in, s.out)
}

func (s *Scaler) Input() format.Video {
	return s.in
}

func (s *Scaler) Output() format.Video {
	return s.out
}

func (s *Scaler) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	return s.host.Release()
}

// ProcessFrame scales pic into a new RGBA picture. pic is released
// exactly once whatever happens; on failure nil is returned and nothing
// stays allocated.
func (s *Scaler) ProcessFrame(pic *picture.Picture) *picture.Picture {
	if pic == nil {
		s.metrics.Dropped(metrics.ReasonNoPicture)
		return nil
	}
	defer pic.Release()

	if s.closed {
		s.drop(pic, ErrClosed)
		return nil
	}

	out, err := s.process(pic)
	if err != nil {
		s.drop(pic, err)
		return nil
	}
	s.metrics.FramesProcessed.Inc()
	return out
}

func (s *Scaler) drop(pic *picture.Picture, err error) {
	reason := metrics.ReasonCompose
	var cfgErr *format.ConfigError
	switch {
	case errors.As(err, &cfgErr), errors.Is(err, ErrClosed):
		reason = metrics.ReasonConfig
	case errors.Is(err, errAllocate):
		reason = metrics.ReasonAllocate
	case errors.Is(err, resource.ErrResourceExhausted):
		reason = metrics.ReasonResource
	case errors.Is(err, resource.ErrTransfer):
		reason = metrics.ReasonTransfer
	}
	s.metrics.Dropped(reason)
	s.log.Warn(fmt.Sprintf("dropping %s: %s", pic, err))
}

var errAllocate = errors.New("could not allocate output picture")

func (s *Scaler) process(pic *picture.Picture) (_ *picture.Picture, _err error) {
	in := s.frameFormat(pic)
	geom, err := format.Negotiate(&in, &s.out)
	if err != nil {
		return nil, err
	}

	dst, err := s.alloc.Allocate(s.out)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errAllocate, err)
	}
	defer func() {
		if _err != nil {
			dst.Release()
		}
	}()

	set := &resource.Set{}
	defer func() {
		if err := set.Teardown(); err != nil {
			s.log.Warn(fmt.Sprintf("could not tear down frame resources: %s", err))
		}
	}()

	err = s.resources.CreateDestination(set, geom.Buffer.X, geom.Buffer.Y)
	if err != nil {
		return nil, err
	}

	src, err := prepareSource(&in, pic)
	if err != nil {
		return nil, err
	}
	err = s.resources.CreateAndUploadSource(set, src.typ, in.Width, in.Height, src.pitch, src.pixels, src.palette)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	err = compositor.Compose(s.acc, set, geom.Render)
	s.metrics.ComposeSeconds.Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, err
	}

	plane := &dst.Planes[0]
	offset := geom.Render.Min.Y*plane.Pitch + geom.Render.Min.X*4
	err = s.resources.ReadbackAndRelease(set, geom.Render, plane.Pitch, plane.Pixels[offset:])
	if err != nil {
		return nil, err
	}

	dst.CopyProperties(pic)
	return dst, nil
}

// frameFormat is the negotiated input format with the size and palette
// the picture itself carries
func (s *Scaler) frameFormat(pic *picture.Picture) format.Video {
	in := s.in
	if pic.Format.Chroma != format.ChromaUnknown {
		in.Chroma = pic.Format.Chroma
		in.Width = pic.Format.Width
		in.Height = pic.Format.Height
		in.Orientation = pic.Format.Orientation
	}
	if pic.Format.Palette != nil {
		in.Palette = pic.Format.Palette
	}
	return in
}
