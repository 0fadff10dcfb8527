// Package loader turns discovered plugins into fully populated plugin
// values by locating and evaluating their server entries.
package loader

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/HerbHall/strata/internal/discovery"
	"github.com/HerbHall/strata/pkg/plugin"
)

// EntryFile is the server entry looked for under a plugin's install path.
const EntryFile = "strapi-server.lua"

// ErrInvalidEntry is returned when a server entry exists but cannot be
// turned into a plugin.
var ErrInvalidEntry = errors.New("invalid plugin entry")

// ScriptLoader evaluates server entry scripts.
type ScriptLoader interface {
	LoadServer(ctx context.Context, path string) (plugin.Server, error)
}

// Loader locates server entries. A plugin registered in the catalog wins
// over a script under its install path.
type Loader struct {
	fs      afero.Fs
	catalog *plugin.Catalog
	scripts ScriptLoader
	logger  *zap.Logger
}

// New creates a Loader. catalog and scripts may be nil.
func New(fs afero.Fs, catalog *plugin.Catalog, scripts ScriptLoader, logger *zap.Logger) *Loader {
	if catalog == nil {
		catalog = plugin.NewCatalog()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loader{
		fs:      fs,
		catalog: catalog,
		scripts: scripts,
		logger:  logger.Named("loader"),
	}
}

// Load builds a plugin for every descriptor that has a server entry.
// Descriptors without one are skipped.
func (l *Loader) Load(ctx context.Context, descriptors []discovery.Descriptor) (*plugin.Map, error) {
	plugins := plugin.NewMap()
	for _, d := range descriptors {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		srv, found, err := l.entry(ctx, d)
		if err != nil {
			return nil, err
		}
		if !found {
			l.logger.Debug("no server entry, skipping plugin",
				zap.String("plugin", d.Name),
				zap.String("path", d.Path),
			)
			continue
		}
		if err := checkRoutes(srv.Routes); err != nil {
			return nil, fmt.Errorf("%w: plugin %q: %w", ErrInvalidEntry, d.Name, err)
		}

		plugins.Put(d.Name, plugin.Build(d.Name, srv))
		l.logger.Debug("plugin loaded", zap.String("plugin", d.Name), zap.Int("routes", len(srv.Routes)))
	}
	l.logger.Info("plugins loaded", zap.Int("count", plugins.Len()), zap.Int("discovered", len(descriptors)))
	return plugins, nil
}

func (l *Loader) entry(ctx context.Context, d discovery.Descriptor) (plugin.Server, bool, error) {
	if factory, ok := l.catalog.Entry(d.Name); ok {
		return factory(), true, nil
	}
	if d.Builtin() || l.scripts == nil {
		return plugin.Server{}, false, nil
	}

	path := filepath.Join(d.Path, EntryFile)
	exists, err := afero.Exists(l.fs, path)
	if err != nil {
		return plugin.Server{}, false, fmt.Errorf("check %s: %w", path, err)
	}
	if !exists {
		return plugin.Server{}, false, nil
	}

	srv, err := l.scripts.LoadServer(ctx, path)
	if err != nil {
		return plugin.Server{}, false, fmt.Errorf("%w: plugin %q: %w", ErrInvalidEntry, d.Name, err)
	}
	return srv, true, nil
}

func checkRoutes(routes []plugin.Route) error {
	for i, r := range routes {
		if r.Method == "" {
			return fmt.Errorf("route %d: method is required", i)
		}
		if !strings.HasPrefix(r.Path, "/") {
			return fmt.Errorf("route %d: path %q must start with /", i, r.Path)
		}
		if r.Handler == "" {
			return fmt.Errorf("route %d: handler is required", i)
		}
	}
	return nil
}
