// Package resolver computes each plugin's effective configuration from its
// declared defaults and the user overrides, and validates the result.
package resolver

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/HerbHall/strata/pkg/merge"
	"github.com/HerbHall/strata/pkg/plugin"
)

// ConfigError attributes a configuration failure to a plugin.
type ConfigError struct {
	Plugin string
	Err    error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("error regarding %s config: %v", e.Plugin, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// UserConfig returns the user override for a plugin. *config.UserPlugins
// implements it.
type UserConfig interface {
	Config(name string) map[string]any
}

// Resolver resolves plugin configuration.
type Resolver struct {
	env    plugin.Env
	logger *zap.Logger
}

// New creates a Resolver. env is handed to lazy defaults.
func New(env plugin.Env, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{env: env, logger: logger.Named("resolver")}
}

// Resolve replaces every plugin's config declaration with the validated
// merge of its default and the user override, in map order. The first
// failure aborts the pass.
func (r *Resolver) Resolve(ctx context.Context, plugins *plugin.Map, user UserConfig) error {
	for _, name := range plugins.Names() {
		if err := ctx.Err(); err != nil {
			return err
		}
		p, _ := plugins.Get(name)
		if p.Spec == nil {
			r.logger.Debug("config already resolved", zap.String("plugin", name))
			continue
		}

		var override map[string]any
		if user != nil {
			override = user.Config(name)
		}
		cfg, err := r.resolve(p.Spec, override)
		if err != nil {
			return attribute(name, err)
		}
		p.SetResolved(cfg)
		r.logger.Debug("config resolved", zap.String("plugin", name), zap.Int("keys", len(cfg)))
	}
	return nil
}

func (r *Resolver) resolve(spec *plugin.ConfigSpec, override map[string]any) (map[string]any, error) {
	def := spec.Default
	if spec.DefaultFunc != nil {
		var err error
		if def, err = spec.DefaultFunc(r.env); err != nil {
			return nil, err
		}
	}

	cfg := merge.Deep(def, override)
	if cfg == nil {
		cfg = map[string]any{}
	}
	if spec.Validator != nil {
		if err := spec.Validator(cfg); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// attribute wraps err with the plugin name. Thrown values pass through
// unchanged.
func attribute(name string, err error) error {
	var thrown *plugin.Thrown
	if errors.As(err, &thrown) {
		return err
	}
	return &ConfigError{Plugin: name, Err: err}
}
