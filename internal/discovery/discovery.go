// Package discovery enumerates the plugins a host should load: those
// bundled with it, those installed as packages, and those declared in the
// user plugin configuration.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/HerbHall/strata/internal/config"
	"github.com/HerbHall/strata/pkg/plugin"
)

// Source tells where a plugin was found.
type Source string

const (
	SourceBundled   Source = "bundled"
	SourceInstalled Source = "installed"
	SourceDeclared  Source = "declared"
)

// BuiltinPrefix marks the install path of bundled plugins, which have no
// directory of their own.
const BuiltinPrefix = "builtin:"

// PackageFile is the descriptor file looked for in every package directory.
const PackageFile = "package.yaml"

// EnabledPluginsKey is the host configuration key Record writes to.
const EnabledPluginsKey = "enabledPlugins"

// Descriptor identifies one plugin to load.
type Descriptor struct {
	Name    string `json:"name" yaml:"name"`
	Path    string `json:"path" yaml:"path"`
	Source  Source `json:"source" yaml:"source"`
	Enabled bool   `json:"enabled" yaml:"enabled"`
}

// Builtin reports whether the plugin ships with the host.
func (d Descriptor) Builtin() bool {
	return strings.HasPrefix(d.Path, BuiltinPrefix)
}

// NotInstalledError is returned when a plugin is enabled but no source
// provides an install path for it.
type NotInstalledError struct {
	Name string
}

func (e *NotInstalledError) Error() string {
	return fmt.Sprintf("plugin %q is enabled but not installed; install it or set enabled: false", e.Name)
}

// Options configures Discover.
type Options struct {
	Fs afero.Fs

	// AppDir anchors relative paths.
	AppDir string

	// PackagesDir is scanned for installed plugin packages. Relative to
	// AppDir unless absolute. Empty disables the scan.
	PackagesDir string

	// User is the user plugin configuration. May be nil.
	User *config.UserPlugins

	// Bundled overrides the embedded bundled catalog.
	Bundled *BundledCatalog

	Logger *zap.Logger
}

// packageFile is the subset of package.yaml discovery reads.
type packageFile struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
	Strata  struct {
		Kind string `yaml:"kind"`
		Name string `yaml:"name"`
	} `yaml:"strata"`
}

// Discover merges the bundled, installed and declared sources, in that
// order, and returns the enabled plugins. Later sources override earlier
// ones; a declared enabled: false removes a plugin whatever its source.
func Discover(ctx context.Context, opts Options) (*Result, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("discovery")
	if opts.Fs == nil {
		opts.Fs = afero.NewOsFs()
	}

	b := newBuilder()

	bundled := opts.Bundled
	if bundled == nil {
		bundled = NewBundledCatalog()
	}
	entries, err := bundled.Entries()
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		b.put(Descriptor{Name: e.Name, Path: BuiltinPrefix + e.Name, Source: SourceBundled, Enabled: true})
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if opts.PackagesDir != "" {
		if err := scanPackages(opts.Fs, resolvePath(opts.AppDir, opts.PackagesDir), b, logger); err != nil {
			return nil, err
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	for _, name := range opts.User.Names() {
		entry, _ := opts.User.Get(name)
		d, known := b.get(name)
		if entry.Resolve != "" {
			d = Descriptor{Name: name, Path: resolvePath(opts.AppDir, entry.Resolve), Source: SourceDeclared, Enabled: true}
		} else if !known {
			d = Descriptor{Name: name, Source: SourceDeclared}
		}
		d.Enabled = entry.IsEnabled(d.Enabled)
		b.put(d)
	}

	res := &Result{}
	for _, name := range b.order {
		d := b.byName[name]
		if !d.Enabled {
			logger.Debug("plugin disabled", zap.String("plugin", name), zap.String("source", string(d.Source)))
			continue
		}
		if d.Path == "" {
			return nil, &NotInstalledError{Name: name}
		}
		logger.Debug("plugin discovered",
			zap.String("plugin", name),
			zap.String("source", string(d.Source)),
			zap.String("path", d.Path),
		)
		res.descriptors = append(res.descriptors, d)
	}
	logger.Info("plugins discovered", zap.Int("count", len(res.descriptors)))
	return res, nil
}

func scanPackages(fs afero.Fs, dir string, b *builder, logger *zap.Logger) error {
	infos, err := afero.ReadDir(fs, dir)
	if errors.Is(err, os.ErrNotExist) {
		logger.Debug("packages directory not found", zap.String("dir", dir))
		return nil
	}
	if err != nil {
		return fmt.Errorf("scan packages %s: %w", dir, err)
	}

	for _, info := range infos {
		if !info.IsDir() {
			continue
		}
		pkgDir := filepath.Join(dir, info.Name())
		raw, err := afero.ReadFile(fs, filepath.Join(pkgDir, PackageFile))
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return fmt.Errorf("read %s: %w", filepath.Join(pkgDir, PackageFile), err)
		}

		var pkg packageFile
		if err := yaml.Unmarshal(raw, &pkg); err != nil {
			return fmt.Errorf("parse %s: %w", filepath.Join(pkgDir, PackageFile), err)
		}
		if pkg.Strata.Kind != "plugin" {
			continue
		}
		name := pkg.Strata.Name
		if name == "" {
			name = pkg.Name
		}
		if name == "" {
			name = info.Name()
		}
		b.put(Descriptor{Name: name, Path: pkgDir, Source: SourceInstalled, Enabled: true})
	}
	return nil
}

func resolvePath(base, p string) string {
	if filepath.IsAbs(p) || base == "" {
		return filepath.Clean(p)
	}
	return filepath.Join(base, p)
}

// builder keeps descriptors keyed by name in first-seen order.
type builder struct {
	order  []string
	byName map[string]Descriptor
}

func newBuilder() *builder {
	return &builder{byName: make(map[string]Descriptor)}
}

func (b *builder) get(name string) (Descriptor, bool) {
	d, ok := b.byName[name]
	return d, ok
}

func (b *builder) put(d Descriptor) {
	if _, ok := b.byName[d.Name]; !ok {
		b.order = append(b.order, d.Name)
	}
	b.byName[d.Name] = d
}

// Result is the ordered set of enabled plugins.
type Result struct {
	descriptors []Descriptor
}

// NewResult builds a Result from descriptors, keeping their order.
func NewResult(descriptors ...Descriptor) *Result {
	cp := make([]Descriptor, len(descriptors))
	copy(cp, descriptors)
	return &Result{descriptors: cp}
}

// Descriptors returns a copy of the enabled plugins in load order.
func (r *Result) Descriptors() []Descriptor {
	cp := make([]Descriptor, len(r.descriptors))
	copy(cp, r.descriptors)
	return cp
}

// Names returns the enabled plugin names in load order.
func (r *Result) Names() []string {
	names := make([]string, len(r.descriptors))
	for i, d := range r.descriptors {
		names[i] = d.Name
	}
	return names
}

// Get returns the descriptor for name.
func (r *Result) Get(name string) (Descriptor, bool) {
	for _, d := range r.descriptors {
		if d.Name == name {
			return d, true
		}
	}
	return Descriptor{}, false
}

// Len returns the number of enabled plugins.
func (r *Result) Len() int { return len(r.descriptors) }

// Record writes the enabled plugins into host configuration under
// EnabledPluginsKey.
func (r *Result) Record(cfg plugin.Config) {
	enabled := make(map[string]any, len(r.descriptors))
	for _, d := range r.descriptors {
		enabled[d.Name] = map[string]any{
			"name":   d.Name,
			"path":   d.Path,
			"source": string(d.Source),
		}
	}
	cfg.Set(EnabledPluginsKey, enabled)
}
