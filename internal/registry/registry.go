// Package registry stores the resolved plugins of a running host and drives
// their lifecycle hooks.
package registry

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/HerbHall/strata/pkg/plugin"
)

var (
	// ErrDuplicate is returned when a plugin name is added twice.
	ErrDuplicate = errors.New("plugin already registered")

	// ErrSealed is returned when adding to a sealed registry.
	ErrSealed = errors.New("registry is sealed")
)

// Registry holds resolved plugins by name in insertion order. It is
// populated once at startup, sealed, and read for the rest of the process.
type Registry struct {
	mu      sync.RWMutex
	plugins map[string]*plugin.Plugin
	order   []string
	sealed  bool
	logger  *zap.Logger
}

// New creates an empty registry.
func New(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		plugins: make(map[string]*plugin.Plugin),
		logger:  logger.Named("registry"),
	}
}

// FromMap adds every plugin of m, in order, to a new registry.
func FromMap(m *plugin.Map, logger *zap.Logger) (*Registry, error) {
	r := New(logger)
	for _, name := range m.Names() {
		p, _ := m.Get(name)
		if err := r.Add(name, p); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Add stores p under name. The plugin is stored as is; an extension may
// have replaced it with a partial value.
func (r *Registry) Add(name string, p *plugin.Plugin) error {
	if name == "" {
		return fmt.Errorf("plugin name is required")
	}
	if p == nil {
		return fmt.Errorf("plugin %q: nil plugin", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.sealed {
		return fmt.Errorf("add plugin %q: %w", name, ErrSealed)
	}
	if _, exists := r.plugins[name]; exists {
		return fmt.Errorf("plugin %q: %w", name, ErrDuplicate)
	}
	r.plugins[name] = p
	r.order = append(r.order, name)
	r.logger.Debug("plugin registered", zap.String("plugin", name))
	return nil
}

// Seal forbids further additions.
func (r *Registry) Seal() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sealed = true
}

// Sealed reports whether Seal has been called.
func (r *Registry) Sealed() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sealed
}

// Get returns a plugin by name.
func (r *Registry) Get(name string) (*plugin.Plugin, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.plugins[name]
	return p, ok
}

// Len returns the number of plugins.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// Names returns the plugin names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// All returns all plugins in registration order.
func (r *Registry) All() []*plugin.Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*plugin.Plugin, 0, len(r.order))
	for _, name := range r.order {
		result = append(result, r.plugins[name])
	}
	return result
}

// AllRoutes returns the routes of every plugin that declares any, keyed by
// plugin name.
func (r *Registry) AllRoutes() map[string][]plugin.Route {
	r.mu.RLock()
	defer r.mu.RUnlock()

	routes := make(map[string][]plugin.Route)
	for _, name := range r.order {
		if pr := r.plugins[name].Routes; len(pr) > 0 {
			routes[name] = pr
		}
	}
	return routes
}

// RegisterAll runs every register hook in registration order and stops at
// the first failure.
func (r *Registry) RegisterAll(ctx context.Context, host plugin.Host) error {
	return r.runForward(ctx, host, "register", func(p *plugin.Plugin) plugin.Hook { return p.Register })
}

// BootstrapAll runs every bootstrap hook in registration order and stops at
// the first failure.
func (r *Registry) BootstrapAll(ctx context.Context, host plugin.Host) error {
	return r.runForward(ctx, host, "bootstrap", func(p *plugin.Plugin) plugin.Hook { return p.Bootstrap })
}

func (r *Registry) runForward(ctx context.Context, host plugin.Host, phase string, hook func(*plugin.Plugin) plugin.Hook) error {
	for _, name := range r.Names() {
		if err := ctx.Err(); err != nil {
			return err
		}
		p, _ := r.Get(name)
		h := hook(p)
		if h == nil {
			continue
		}
		r.logger.Debug("running hook", zap.String("plugin", name), zap.String("phase", phase))
		if err := h(ctx, host); err != nil {
			return fmt.Errorf("%s plugin %q: %w", phase, name, err)
		}
	}
	return nil
}

// DestroyAll runs every destroy hook in reverse registration order. All
// hooks run; failures are logged and returned joined.
func (r *Registry) DestroyAll(ctx context.Context, host plugin.Host) error {
	names := r.Names()
	var errs []error
	for i := len(names) - 1; i >= 0; i-- {
		name := names[i]
		p, _ := r.Get(name)
		if p.Destroy == nil {
			continue
		}
		r.logger.Debug("running hook", zap.String("plugin", name), zap.String("phase", "destroy"))
		if err := p.Destroy(ctx, host); err != nil {
			r.logger.Error("failed to destroy plugin", zap.String("plugin", name), zap.Error(err))
			errs = append(errs, fmt.Errorf("destroy plugin %q: %w", name, err))
		}
	}
	return errors.Join(errs...)
}
