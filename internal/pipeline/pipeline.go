// Package pipeline runs the plugin load stages in order: discovery, entry
// loading, config resolution, extension overlay, and registration. The
// registry it returns is sealed.
package pipeline

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/afero"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/HerbHall/strata/internal/config"
	"github.com/HerbHall/strata/internal/discovery"
	"github.com/HerbHall/strata/internal/env"
	"github.com/HerbHall/strata/internal/extension"
	"github.com/HerbHall/strata/internal/loader"
	"github.com/HerbHall/strata/internal/luart"
	"github.com/HerbHall/strata/internal/metrics"
	"github.com/HerbHall/strata/internal/registry"
	"github.com/HerbHall/strata/internal/resolver"
	"github.com/HerbHall/strata/pkg/contenttype"
	"github.com/HerbHall/strata/pkg/plugin"
)

// Stage names used in reports, logs and metrics.
const (
	StageDiscover = "discover"
	StageLoad     = "load"
	StageResolve  = "resolve"
	StageExtend   = "extend"
	StageValidate = "validate"
	StageRegister = "register"
)

// Options configures a pipeline run.
type Options struct {
	Fs afero.Fs

	// Config is the host configuration. Paths and the app environment are
	// read from it, and the enabled plugin set is recorded into it.
	Config *config.Config

	// User overrides the user plugin configuration. When nil it is read
	// from the configured config directory.
	User *config.UserPlugins

	// Env is handed to lazy config defaults.
	Env plugin.Env

	Catalog *plugin.Catalog
	Bundled *discovery.BundledCatalog
	Metrics *metrics.Metrics
	Logger  *zap.Logger
}

// StageReport describes one finished stage.
type StageReport struct {
	Name     string        `json:"name"`
	Duration time.Duration `json:"duration"`
	Plugins  int           `json:"plugins"`
}

// Report summarizes a run.
type Report struct {
	LoadID     string        `json:"loadId"`
	Discovered []string      `json:"discovered"`
	Skipped    []string      `json:"skipped"`
	Registered []string      `json:"registered"`
	Stages     []StageReport `json:"stages"`
	Duration   time.Duration `json:"duration"`
}

// Result is the outcome of a successful run.
type Result struct {
	Registry *registry.Registry
	Report   Report

	scripts *luart.Runtime
}

// Close releases the Lua states backing script hooks and handlers. Call it
// after the registry's destroy hooks have run.
func (r *Result) Close() error {
	if r == nil || r.scripts == nil {
		return nil
	}
	return r.scripts.Close()
}

// Load runs every stage and returns the sealed registry. Nothing is
// returned unless all stages succeed.
func Load(ctx context.Context, opts Options) (res *Result, err error) {
	if opts.Config == nil {
		opts.Config = config.New(nil)
	}
	if opts.Fs == nil {
		opts.Fs = afero.NewOsFs()
	}
	if opts.Catalog == nil {
		opts.Catalog = plugin.NewCatalog()
	}
	if opts.Env == nil {
		opts.Env = env.New()
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	loadID := uuid.NewString()
	logger = logger.With(zap.String("loadID", loadID))
	start := time.Now()
	report := Report{LoadID: loadID}

	scripts := luart.NewRuntime(opts.Fs, logger)
	defer func() {
		if err != nil {
			if cerr := scripts.Close(); cerr != nil {
				logger.Warn("release scripts after failed load", zap.Error(cerr))
				err = multierr.Append(err, cerr)
			}
		}
		var registered int
		if res != nil {
			registered = res.Registry.Len()
		}
		opts.Metrics.LoadFinished(err, registered)
	}()

	stage := func(name string, fn func() (int, error)) error {
		t0 := time.Now()
		n, err := fn()
		if err != nil {
			logger.Error("plugin load stage failed", zap.String("stage", name), zap.Error(err))
			return err
		}
		d := time.Since(t0)
		report.Stages = append(report.Stages, StageReport{Name: name, Duration: d, Plugins: n})
		opts.Metrics.ObserveStage(name, d, n)
		logger.Debug("plugin load stage finished", zap.String("stage", name), zap.Duration("took", d), zap.Int("plugins", n))
		return nil
	}

	settings, err := opts.Config.Settings()
	if err != nil {
		return nil, err
	}
	user := opts.User
	if user == nil {
		user, err = config.LoadPlugins(opts.Fs, settings.Path(settings.Paths.Config), settings.App.Env)
		if err != nil {
			return nil, err
		}
	}

	var discovered *discovery.Result
	if err := stage(StageDiscover, func() (int, error) {
		discovered, err = discovery.Discover(ctx, discovery.Options{
			Fs:          opts.Fs,
			AppDir:      settings.App.Dir,
			PackagesDir: settings.Paths.Packages,
			User:        user,
			Bundled:     opts.Bundled,
			Logger:      logger,
		})
		if err != nil {
			return 0, err
		}
		discovered.Record(opts.Config)
		return discovered.Len(), nil
	}); err != nil {
		return nil, err
	}
	report.Discovered = discovered.Names()

	var plugins *plugin.Map
	if err := stage(StageLoad, func() (int, error) {
		plugins, err = loader.New(opts.Fs, opts.Catalog, scripts, logger).Load(ctx, discovered.Descriptors())
		if err != nil {
			return 0, err
		}
		return plugins.Len(), nil
	}); err != nil {
		return nil, err
	}
	for _, name := range report.Discovered {
		if _, ok := plugins.Get(name); !ok {
			report.Skipped = append(report.Skipped, name)
		}
	}

	if err := stage(StageResolve, func() (int, error) {
		return plugins.Len(), resolver.New(opts.Env, logger).Resolve(ctx, plugins, user)
	}); err != nil {
		return nil, err
	}

	if err := stage(StageExtend, func() (int, error) {
		applier := extension.New(extension.Options{
			Fs:      opts.Fs,
			Root:    settings.Path(settings.Paths.Extensions),
			Catalog: opts.Catalog,
			Scripts: scripts,
			Logger:  logger,
		})
		return plugins.Len(), applier.Apply(ctx, plugins)
	}); err != nil {
		return nil, err
	}

	if err := stage(StageValidate, func() (int, error) {
		return plugins.Len(), validateContentTypes(plugins)
	}); err != nil {
		return nil, err
	}

	var reg *registry.Registry
	if err := stage(StageRegister, func() (int, error) {
		reg, err = registry.FromMap(plugins, logger)
		if err != nil {
			return 0, err
		}
		reg.Seal()
		return reg.Len(), nil
	}); err != nil {
		return nil, err
	}

	report.Registered = reg.Names()
	report.Duration = time.Since(start)
	logger.Info("plugins ready",
		zap.Int("registered", reg.Len()),
		zap.Strings("skipped", report.Skipped),
		zap.Duration("took", report.Duration),
	)
	return &Result{Registry: reg, Report: report, scripts: scripts}, nil
}

// validateContentTypes checks every schema after overlays have been
// applied and reports all problems at once.
func validateContentTypes(plugins *plugin.Map) error {
	var errs error
	for _, name := range plugins.Names() {
		p, _ := plugins.Get(name)
		cts := make([]string, 0, len(p.ContentTypes))
		for ct := range p.ContentTypes {
			cts = append(cts, ct)
		}
		sort.Strings(cts)
		for _, ct := range cts {
			if p.ContentTypes[ct] == nil {
				continue
			}
			if err := contenttype.Validate(p.ContentTypes[ct].Schema); err != nil {
				errs = multierr.Append(errs, fmt.Errorf("plugin %q content type %q: %w", name, ct, err))
			}
		}
	}
	return errs
}
