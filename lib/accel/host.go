package accel

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

var ErrNotAcquired = errors.New("accelerator host released more often than acquired")

// Host brings a Backend up on first Acquire and down on the last
// Release. Filters call Acquire from Open, never per frame.
type Host struct {
	mu      sync.Mutex
	backend Backend
	refs    int
	inits   int
}

func NewHost(b Backend) *Host {
	return &Host{backend: b}
}

func (h *Host) Acquire() (Accelerator, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.refs == 0 {
		if err := h.backend.Init(); err != nil {
			return nil, fmt.Errorf("could not initialise accelerator %s: %w", h.backend.Name(), err)
		}
		h.inits++
		slog.Debug(fmt.Sprintf("accelerator %s initialised", h.backend.Name()), slog.String("module", "accel"))
	}
	h.refs++
	return h.backend, nil
}

func (h *Host) Release() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.refs == 0 {
		return ErrNotAcquired
	}
	h.refs--
	if h.refs > 0 {
		return nil
	}
	if err := h.backend.Deinit(); err != nil {
		return fmt.Errorf("could not shut down accelerator %s: %w", h.backend.Name(), err)
	}
	slog.Debug(fmt.Sprintf("accelerator %s shut down", h.backend.Name()), slog.String("module", "accel"))
	return nil
}

// Inits reports how often the backend has been brought up
func (h *Host) Inits() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.inits
}

func (h *Host) Backend() Backend {
	return h.backend
}
