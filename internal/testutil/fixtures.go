package testutil

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/spf13/afero"

	"github.com/HerbHall/strata/pkg/contenttype"
	"github.com/HerbHall/strata/pkg/plugin"
)

// NewPlugin returns a built plugin with a resolved, empty configuration,
// suitable for test fixtures. Override individual parts with options.
func NewPlugin(name string, opts ...func(*plugin.Plugin)) *plugin.Plugin {
	p := plugin.Build(name, plugin.Server{})
	p.SetResolved(nil)
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// WithRoute appends a route.
func WithRoute(method, path, handler string, policies ...string) func(*plugin.Plugin) {
	return func(p *plugin.Plugin) {
		p.Routes = append(p.Routes, plugin.Route{
			Method:   method,
			Path:     path,
			Handler:  handler,
			Policies: policies,
		})
	}
}

// WithController sets a controller action.
func WithController(name string, h plugin.Handler) func(*plugin.Plugin) {
	return func(p *plugin.Plugin) { p.Controllers[name] = h }
}

// WithPolicy sets a policy.
func WithPolicy(name string, h plugin.Handler) func(*plugin.Plugin) {
	return func(p *plugin.Plugin) { p.Policies[name] = h }
}

// WithContentType sets a content type schema.
func WithContentType(name string, schema contenttype.Schema) func(*plugin.Plugin) {
	return func(p *plugin.Plugin) { p.ContentTypes[name] = &plugin.ContentType{Schema: schema} }
}

// WithConfig sets the resolved configuration.
func WithConfig(cfg map[string]any) func(*plugin.Plugin) {
	return func(p *plugin.Plugin) { p.SetResolved(cfg) }
}

// WithRecorder makes every lifecycle hook record "<phase>:<name>" on the
// Host it is called with, when that host is a *Host.
func WithRecorder() func(*plugin.Plugin) {
	return func(p *plugin.Plugin) {
		hook := func(phase string) plugin.Hook {
			return func(_ context.Context, host plugin.Host) error {
				if h, ok := host.(*Host); ok {
					h.Record(phase + ":" + p.Name)
				}
				return nil
			}
		}
		p.Register = hook("register")
		p.Bootstrap = hook("bootstrap")
		p.Destroy = hook("destroy")
	}
}

// NewSchema returns a collection type schema with the given attributes,
// each declared as {"type": <type>}.
func NewSchema(attrs map[string]string) contenttype.Schema {
	attributes := make(map[string]any, len(attrs))
	for name, typ := range attrs {
		attributes[name] = map[string]any{"type": typ}
	}
	return contenttype.Schema{
		"kind":       "collectionType",
		"attributes": attributes,
	}
}

// NewFs returns an in-memory filesystem holding files, keyed by absolute
// path. Parent directories are created as needed.
func NewFs(t testing.TB, files map[string]string) afero.Fs {
	t.Helper()
	fs := afero.NewMemMapFs()
	for path, content := range files {
		if err := fs.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatalf("testutil.NewFs: %v", err)
		}
		if err := afero.WriteFile(fs, path, []byte(content), 0o644); err != nil {
			t.Fatalf("testutil.NewFs: %v", err)
		}
	}
	return fs
}
