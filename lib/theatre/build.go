package theatre

import (
	"fmt"
	"log/slog"

	"github.com/fosdem/glscale/lib/accel"
	"github.com/fosdem/glscale/lib/accel/glaccel"
	"github.com/fosdem/glscale/lib/accel/memaccel"
	"github.com/fosdem/glscale/lib/config"
	"github.com/fosdem/glscale/lib/picture"
	"github.com/fosdem/glscale/lib/utils"
	xdraw "golang.org/x/image/draw"
)

var interpolators = map[string]xdraw.Interpolator{
	"":                xdraw.NearestNeighbor,
	"nearest":         xdraw.NearestNeighbor,
	"approx_bilinear": xdraw.ApproxBiLinear,
	"bilinear":        xdraw.BiLinear,
	"catmull_rom":     xdraw.CatmullRom,
}

func buildBackend(cfg *config.AcceleratorCfg, log *slog.Logger) (accel.Backend, error) {
	switch c := cfg.Cfg.(type) {
	case *config.GLAccelCfg:
		return glaccel.New(glaccel.Options{Logger: log, Debug: c.Debug}), nil
	case *config.MemAccelCfg:
		acc := memaccel.New()
		if c.PitchAlign != 0 {
			acc.PitchAlign = c.PitchAlign
		}
		acc.MaxResources = c.MaxResources
		acc.Interpolator = interpolators[c.Interpolator]
		return acc, nil
	default:
		return nil, fmt.Errorf("unhandled accelerator type: %+v", cfg.Cfg)
	}
}

func buildAllocator(cfg *config.AllocatorCfg, fill string) picture.Allocator {
	colour := utils.ColourParse(fill)
	switch cfg.Type {
	case "mmap":
		return &picture.MmapAllocator{Fill: colour, Align: cfg.Align}
	default:
		return &picture.HeapAllocator{Fill: colour, Align: cfg.Align}
	}
}
