package luart

import (
	"context"
	"fmt"
	"sync"

	"github.com/spf13/afero"
	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"

	"github.com/HerbHall/strata/pkg/plugin"
)

// Runtime loads Lua plugin scripts and keeps their states alive for as long
// as the hooks and handlers they produced may be called.
type Runtime struct {
	fs     afero.Fs
	logger *zap.Logger

	mu      sync.Mutex
	scripts []*script
	closed  bool
}

// NewRuntime creates a runtime reading scripts from fs.
func NewRuntime(fs afero.Fs, logger *zap.Logger) *Runtime {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runtime{fs: fs, logger: logger.Named("lua")}
}

func (r *Runtime) open(ctx context.Context, path string) (*script, lua.LValue, error) {
	r.mu.Lock()
	closed := r.closed
	r.mu.Unlock()
	if closed {
		return nil, nil, fmt.Errorf("lua runtime closed")
	}

	src, err := afero.ReadFile(r.fs, path)
	if err != nil {
		return nil, nil, fmt.Errorf("read %s: %w", path, err)
	}
	s, err := newScript(path)
	if err != nil {
		return nil, nil, err
	}
	ret, err := s.eval(ctx, src)
	if err != nil {
		s.close()
		return nil, nil, fmt.Errorf("evaluate %s: %w", path, err)
	}

	r.mu.Lock()
	r.scripts = append(r.scripts, s)
	r.mu.Unlock()
	r.logger.Debug("lua script loaded", zap.String("path", path))
	return s, ret, nil
}

// LoadServer evaluates a server entry script. The script returns either a
// table or a function returning a table.
func (r *Runtime) LoadServer(ctx context.Context, path string) (plugin.Server, error) {
	s, ret, err := r.open(ctx, path)
	if err != nil {
		return plugin.Server{}, err
	}

	var srv plugin.Server
	err = s.locked(func() error {
		if fn, ok := ret.(*lua.LFunction); ok {
			out, err := s.call(ctx, fn, 1)
			if err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
			ret = out[0]
		}
		t, ok := ret.(*lua.LTable)
		if !ok {
			return fmt.Errorf("%s: %w (got %s)", path, ErrNotTable, ret.Type())
		}
		srv, err = s.serverFromTable(t)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		return nil
	})
	return srv, err
}

// LoadExtension evaluates an extension script. The script returns a
// function that receives the plugin table and returns the replacement.
func (r *Runtime) LoadExtension(ctx context.Context, path string) (plugin.Extension, error) {
	s, ret, err := r.open(ctx, path)
	if err != nil {
		return nil, err
	}
	fn, ok := ret.(*lua.LFunction)
	if !ok {
		return nil, fmt.Errorf("%s: %w (got %s)", path, ErrNotFunction, ret.Type())
	}

	return func(ctx context.Context, p *plugin.Plugin) (*plugin.Plugin, error) {
		var out *plugin.Plugin
		err := s.locked(func() error {
			ret, err := s.call(ctx, fn, 1, s.pluginTable(p))
			if err != nil {
				return err
			}
			t, ok := ret[0].(*lua.LTable)
			if !ok {
				return fmt.Errorf("%s: %w (got %s)", path, ErrNotTable, ret[0].Type())
			}
			out, err = s.pluginFromTable(t)
			return err
		})
		return out, err
	}, nil
}

// Close releases every Lua state. Hooks and handlers produced by the
// runtime must not be called afterwards.
func (r *Runtime) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	for _, s := range r.scripts {
		s.close()
	}
	r.scripts = nil
	return nil
}
