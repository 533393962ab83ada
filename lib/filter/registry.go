package filter

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/fosdem/glscale/lib/format"
)

type OpenFunc func(in, out format.Video, opts Options) (Filter, error)

// Module is a filter implementation a host can pick by capability
type Module struct {
	Name     string
	Priority int
	Open     OpenFunc
}

type Registry struct {
	mu      sync.Mutex
	modules []Module
}

var ErrNoModule = errors.New("no filter module accepts this configuration")

func (r *Registry) Register(m Module) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.modules = append(r.modules, m)
	slices.SortStableFunc(r.modules, func(a, b Module) int { return b.Priority - a.Priority })
}

func (r *Registry) Modules() []Module {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.modules)
}

// Open tries every module from the highest priority down and returns
// the first one that accepts in -> out.
func (r *Registry) Open(in, out format.Video, opts Options) (Filter, error) {
	var errs []error
	for _, m := range r.Modules() {
		o := opts
		if o.Name == "" {
			o.Name = m.Name
		}
		f, err := m.Open(in, out, o)
		if err == nil {
			return f, nil
		}
		errs = append(errs, fmt.Errorf("%s: %w", m.Name, err))
	}
	return nil, fmt.Errorf("%w: %w", ErrNoModule, errors.Join(errs...))
}

// Default holds the accelerator scaler
var Default = &Registry{}

func init() {
	Default.Register(Module{
		Name:     "accel-scale",
		Priority: 200,
		Open: func(in, out format.Video, opts Options) (Filter, error) {
			s, err := Open(in, out, opts)
			if err != nil {
				return nil, err
			}
			return s, nil
		},
	})
}
