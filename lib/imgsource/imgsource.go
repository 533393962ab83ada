// Package imgsource turns image files into pictures and back, and can
// keep a scaled copy of a file up to date as it changes.
package imgsource

import (
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fosdem/glscale/lib/config"
	"github.com/fosdem/glscale/lib/picture"
	"github.com/jhenstridge/go-inotify"
)

// Scaler is what the watcher hands pictures to
type Scaler interface {
	Scale(ctx context.Context, profile string, pic *picture.Picture) (*picture.Picture, error)
}

// Decode reads a PNG, JPEG or GIF into a picture allocated from alloc
func Decode(r io.Reader, alloc picture.Allocator) (*picture.Picture, string, error) {
	img, kind, err := image.Decode(r)
	if err != nil {
		return nil, "", fmt.Errorf("not a valid image: %w", err)
	}
	pic, err := picture.FromImage(img, alloc)
	if err != nil {
		return nil, kind, err
	}
	return pic, kind, nil
}

func Load(path string, alloc picture.Allocator) (*picture.Picture, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func(f *os.File) {
		_ = f.Close()
	}(f)

	pic, _, err := Decode(f, alloc)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return pic, nil
}

// Encode writes an RGBA picture as PNG
func Encode(w io.Writer, pic *picture.Picture) error {
	img, err := picture.ToImage(pic)
	if err != nil {
		return err
	}
	return png.Encode(w, img)
}

// Save writes pic as PNG next to path and renames it into place, so
// readers never see a partial file
func Save(path string, pic *picture.Picture) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	defer func() {
		_ = os.Remove(tmp.Name())
	}()

	if err := Encode(tmp, pic); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// Watcher rescales Input into Output with a profile whenever Input is
// written
type Watcher struct {
	Input   string
	Output  string
	Profile string

	scaler Scaler
	alloc  picture.Allocator
	log    *slog.Logger
}

func NewWatcher(cfg *config.WatchCfg, s Scaler, alloc picture.Allocator, log *slog.Logger) *Watcher {
	if log == nil {
		log = slog.Default()
	}
	return &Watcher{
		Input:   string(cfg.Input),
		Output:  string(cfg.Output),
		Profile: cfg.Profile,
		scaler:  s,
		alloc:   alloc,
		log:     log.With(slog.String("module", "imgsource")),
	}
}

// Rescale loads, scales and saves once
func (w *Watcher) Rescale(ctx context.Context) error {
	in, err := Load(w.Input, w.alloc)
	if err != nil {
		return err
	}
	w.log.Debug(fmt.Sprintf("loaded %s as %s", w.Input, in.Format))

	out, err := w.scaler.Scale(ctx, w.Profile, in)
	if err != nil {
		return fmt.Errorf("could not scale %s: %w", w.Input, err)
	}
	defer out.Release()

	if err := Save(w.Output, out); err != nil {
		return fmt.Errorf("could not save %s: %w", w.Output, err)
	}
	w.log.Info(fmt.Sprintf("wrote %s (%s)", w.Output, out.Format))
	return nil
}

// Run rescales once and then again on every completed write to Input
// until ctx is done
func (w *Watcher) Run(ctx context.Context) error {
	watcher, err := inotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("could not create inotify watcher: %w", err)
	}
	defer func(watcher *inotify.Watcher) {
		_ = watcher.Close()
	}(watcher)

	_, err = watcher.Watch(w.Input)
	if err != nil {
		return fmt.Errorf("could not start inotify watcher: %w", err)
	}

	if err := w.Rescale(ctx); err != nil {
		w.log.Error(err.Error())
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Event:
			if !ok {
				return nil
			}
			if ev.Mask&inotify.IN_CLOSE_WRITE == 0 {
				continue
			}
			w.log.Debug("rescaling due to inotify event")
			// writers often close and reopen right away
			time.Sleep(100 * time.Millisecond)
			if err := w.Rescale(ctx); err != nil {
				w.log.Error(err.Error())
			}
		}
	}
}
