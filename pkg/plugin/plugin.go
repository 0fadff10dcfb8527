// Package plugin defines the plugin model shared by the loader pipeline and
// its consumers: the server entry a plugin declares, the fully populated
// Plugin the pipeline produces, and the Host capabilities handed to hooks.
package plugin

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/HerbHall/strata/pkg/contenttype"
)

// Hook is a lifecycle function (register, bootstrap, destroy).
type Hook func(ctx context.Context, host Host) error

// Handler is a named callable contributed by a plugin: a controller action,
// a service method, a policy or a middleware.
type Handler func(ctx context.Context, call Call) (any, error)

// Call carries the inputs of one Handler invocation.
type Call struct {
	Host   Host
	Params map[string]string
	Query  map[string][]string
	Body   map[string]any
	Args   []any
}

// Route maps an HTTP method and path to a controller handler.
type Route struct {
	Method   string         `json:"method" yaml:"method" mapstructure:"method"`
	Path     string         `json:"path" yaml:"path" mapstructure:"path"`
	Handler  string         `json:"handler" yaml:"handler" mapstructure:"handler"`
	Policies []string       `json:"policies,omitempty" yaml:"policies,omitempty" mapstructure:"policies"`
	Config   map[string]any `json:"config,omitempty" yaml:"config,omitempty" mapstructure:"config"`
}

// ContentType is a named schema contributed by a plugin.
type ContentType struct {
	Schema contenttype.Schema
}

// Validator checks a merged plugin configuration.
type Validator func(config map[string]any) error

// DefaultFunc computes default configuration at resolve time.
type DefaultFunc func(env Env) (map[string]any, error)

// ConfigSpec is a plugin's configuration declaration: its defaults and the
// validator run against the merged result.
type ConfigSpec struct {
	Default     map[string]any
	DefaultFunc DefaultFunc
	Validator   Validator
}

// Plugin is a loaded plugin. After Build every structural field is non-nil.
// Spec is set until the configuration is resolved; afterwards Spec is nil
// and Config holds the resolved value.
type Plugin struct {
	Name string

	Register  Hook
	Bootstrap Hook
	Destroy   Hook

	Routes       []Route
	Controllers  map[string]Handler
	Services     map[string]Handler
	Policies     map[string]Handler
	Middlewares  map[string]Handler
	ContentTypes map[string]*ContentType

	Spec   *ConfigSpec
	Config map[string]any

	// Extra holds fields added by extensions that have no typed home.
	Extra map[string]any
}

// Resolved reports whether the configuration has been resolved.
func (p *Plugin) Resolved() bool {
	return p.Spec == nil && p.Config != nil
}

// SetResolved replaces the config declaration with the resolved value.
func (p *Plugin) SetResolved(config map[string]any) {
	if config == nil {
		config = map[string]any{}
	}
	p.Config = config
	p.Spec = nil
}

// Complete reports whether all structural fields are populated.
func (p *Plugin) Complete() bool {
	return p.Register != nil && p.Bootstrap != nil && p.Destroy != nil &&
		p.Routes != nil &&
		p.Controllers != nil && p.Services != nil && p.Policies != nil && p.Middlewares != nil &&
		p.ContentTypes != nil
}

// Host is the capability bundle passed to lifecycle hooks, handlers and
// extensions. Optional capabilities are exposed through the interfaces in
// optional.go.
type Host interface {
	Logger() *zap.Logger
	Plugin(name string) (*Plugin, bool)
}

// Thrown carries a non-error value raised by script code. It is propagated
// as is, without plugin attribution.
type Thrown struct {
	Value any
}

func (t *Thrown) Error() string {
	return fmt.Sprintf("thrown value: %v", t.Value)
}
