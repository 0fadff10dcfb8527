// Package host ties the load pipeline, the plugin registry and the host
// services together into the object handed to plugin hooks and handlers.
package host

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/HerbHall/strata/internal/config"
	"github.com/HerbHall/strata/internal/discovery"
	"github.com/HerbHall/strata/internal/env"
	"github.com/HerbHall/strata/internal/metrics"
	"github.com/HerbHall/strata/internal/pipeline"
	"github.com/HerbHall/strata/internal/registry"
	"github.com/HerbHall/strata/pkg/plugin"
)

// ErrNotLoaded is returned by lifecycle methods called before Load.
var ErrNotLoaded = errors.New("plugins not loaded")

// Options configures an App.
type Options struct {
	Fs      afero.Fs
	Config  *config.Config
	Env     *env.Env
	Catalog *plugin.Catalog
	Bundled *discovery.BundledCatalog
	Metrics *metrics.Metrics
	Logger  *zap.Logger
}

// App is the running host. It implements plugin.Host and the optional
// host capabilities.
type App struct {
	fs      afero.Fs
	cfg     *config.Config
	env     *env.Env
	catalog *plugin.Catalog
	bundled *discovery.BundledCatalog
	metrics *metrics.Metrics
	logger  *zap.Logger

	mu     sync.RWMutex
	result *pipeline.Result
}

var (
	_ plugin.Host           = (*App)(nil)
	_ plugin.ConfigProvider = (*App)(nil)
	_ plugin.EnvProvider    = (*App)(nil)
	_ plugin.PluginLister   = (*App)(nil)
)

// New creates an App. Missing options get working defaults.
func New(opts Options) *App {
	if opts.Fs == nil {
		opts.Fs = afero.NewOsFs()
	}
	if opts.Config == nil {
		opts.Config = config.New(nil)
	}
	if opts.Env == nil {
		opts.Env = env.New()
	}
	if opts.Catalog == nil {
		opts.Catalog = plugin.NewCatalog()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &App{
		fs:      opts.Fs,
		cfg:     opts.Config,
		env:     opts.Env,
		catalog: opts.Catalog,
		bundled: opts.Bundled,
		metrics: opts.Metrics,
		logger:  opts.Logger,
	}
}

// Load runs the plugin load pipeline. It may be called once.
func (a *App) Load(ctx context.Context) error {
	a.mu.RLock()
	loaded := a.result != nil
	a.mu.RUnlock()
	if loaded {
		return fmt.Errorf("plugins already loaded")
	}

	res, err := pipeline.Load(ctx, pipeline.Options{
		Fs:      a.fs,
		Config:  a.cfg,
		Env:     a.env,
		Catalog: a.catalog,
		Bundled: a.bundled,
		Metrics: a.metrics,
		Logger:  a.logger,
	})
	if err != nil {
		return fmt.Errorf("load plugins: %w", err)
	}

	a.mu.Lock()
	a.result = res
	a.mu.Unlock()
	return nil
}

// Start runs the register hooks then the bootstrap hooks.
func (a *App) Start(ctx context.Context) error {
	reg := a.Registry()
	if reg == nil {
		return ErrNotLoaded
	}
	if err := reg.RegisterAll(ctx, a); err != nil {
		return err
	}
	if err := reg.BootstrapAll(ctx, a); err != nil {
		return err
	}
	a.logger.Info("plugins started", zap.Int("count", reg.Len()))
	return nil
}

// Stop runs the destroy hooks in reverse order and releases script states.
func (a *App) Stop(ctx context.Context) error {
	a.mu.RLock()
	res := a.result
	a.mu.RUnlock()
	if res == nil {
		return nil
	}
	err := res.Registry.DestroyAll(ctx, a)
	return errors.Join(err, res.Close())
}

// Close releases script states without running destroy hooks. It is meant
// for callers that load plugins only to inspect them.
func (a *App) Close() error {
	a.mu.RLock()
	res := a.result
	a.mu.RUnlock()
	if res == nil {
		return nil
	}
	return res.Close()
}

// Registry returns the sealed registry, or nil before Load.
func (a *App) Registry() *registry.Registry {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.result == nil {
		return nil
	}
	return a.result.Registry
}

// Report returns the load report. ok is false before Load.
func (a *App) Report() (pipeline.Report, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.result == nil {
		return pipeline.Report{}, false
	}
	return a.result.Report, true
}

// Logger implements plugin.Host.
func (a *App) Logger() *zap.Logger { return a.logger }

// Plugin implements plugin.Host.
func (a *App) Plugin(name string) (*plugin.Plugin, bool) {
	reg := a.Registry()
	if reg == nil {
		return nil, false
	}
	return reg.Get(name)
}

// PluginNames implements plugin.PluginLister.
func (a *App) PluginNames() []string {
	reg := a.Registry()
	if reg == nil {
		return nil
	}
	return reg.Names()
}

// Config implements plugin.ConfigProvider.
func (a *App) Config() plugin.Config { return a.cfg }

// Env implements plugin.EnvProvider.
func (a *App) Env() plugin.Env { return a.env }

// Metrics returns the metrics the pipeline reports to. May be nil.
func (a *App) Metrics() *metrics.Metrics { return a.metrics }
