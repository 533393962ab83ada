package picture

import (
	"fmt"
	"image/color"
	"log/slog"
	"sync/atomic"

	"github.com/fosdem/glscale/lib/format"
	"golang.org/x/sys/unix"
)

// MmapAllocator backs every picture with its own anonymous mapping, so
// plane memory is page aligned and returned to the kernel on Release.
type MmapAllocator struct {
	Fill  color.RGBA
	Align int

	LastID atomic.Uint32
	live   atomic.Int64
}

func (m *MmapAllocator) Allocate(v format.Video) (*Picture, error) {
	planes, size, err := Layout(v, m.Align)
	if err != nil {
		return nil, err
	}
	buf, err := unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANONYMOUS)
	if err != nil {
		return nil, fmt.Errorf("could not map %d bytes for a %s picture: %w", size, v, err)
	}
	m.live.Add(1)
	assign(planes, buf)
	fill(v, planes, m.Fill)

	p := New(v, planes, func() {
		m.live.Add(-1)
		if err := unix.Munmap(buf); err != nil {
			slog.Error(fmt.Sprintf("could not unmap picture memory: %s", err), slog.String("module", "picture"))
		}
	})
	p.ID = m.LastID.Add(1)
	return p, nil
}

// Live is the number of pictures allocated and not yet released
func (m *MmapAllocator) Live() int64 {
	return m.live.Load()
}
