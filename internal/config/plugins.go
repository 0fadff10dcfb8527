package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	"github.com/HerbHall/strata/pkg/merge"
)

// pluginFileNames are tried in order; the first one present is used.
var pluginFileNames = []string{"plugins.yaml", "plugins.yml", "plugins.json"}

// PluginEntry is one user plugin declaration.
type PluginEntry struct {
	// Enabled is nil when the user did not say.
	Enabled *bool          `mapstructure:"enabled"`
	Resolve string         `mapstructure:"resolve"`
	Config  map[string]any `mapstructure:"config"`
}

// IsEnabled returns the declared enabled flag, or def when unset.
func (e PluginEntry) IsEnabled(def bool) bool {
	if e.Enabled == nil {
		return def
	}
	return *e.Enabled
}

// UserPlugins is the user plugin configuration, keyed by plugin name, in
// declaration order.
type UserPlugins struct {
	order   []string
	entries map[string]PluginEntry
}

// NewUserPlugins builds a UserPlugins from already decoded declarations.
func NewUserPlugins(order []string, entries map[string]PluginEntry) *UserPlugins {
	return &UserPlugins{order: order, entries: entries}
}

// Names returns the declared plugin names in declaration order.
func (u *UserPlugins) Names() []string {
	if u == nil {
		return nil
	}
	out := make([]string, len(u.order))
	copy(out, u.order)
	return out
}

// Get returns the declaration for name.
func (u *UserPlugins) Get(name string) (PluginEntry, bool) {
	if u == nil {
		return PluginEntry{}, false
	}
	e, ok := u.entries[name]
	return e, ok
}

// Config returns the user config override for name, or an empty map.
func (u *UserPlugins) Config(name string) map[string]any {
	e, ok := u.Get(name)
	if !ok || e.Config == nil {
		return map[string]any{}
	}
	return e.Config
}

// LoadPlugins reads <dir>/plugins.{yaml,yml,json} and, when env is set,
// deep-merges <dir>/env/<env>/plugins.{yaml,yml,json} over it. Missing files
// yield an empty configuration.
func LoadPlugins(fs afero.Fs, dir, env string) (*UserPlugins, error) {
	global, order, err := readPluginsFile(fs, dir)
	if err != nil {
		return nil, err
	}

	if env != "" {
		envData, envOrder, err := readPluginsFile(fs, filepath.Join(dir, "env", env))
		if err != nil {
			return nil, err
		}
		global = merge.Deep(global, envData)
		for _, name := range envOrder {
			if !slices.Contains(order, name) {
				order = append(order, name)
			}
		}
	}

	entries := make(map[string]PluginEntry, len(global))
	for _, name := range order {
		entry, err := decodeEntry(global[name])
		if err != nil {
			return nil, fmt.Errorf("plugin %q: %w", name, err)
		}
		entries[name] = entry
	}
	return &UserPlugins{order: order, entries: entries}, nil
}

func readPluginsFile(fs afero.Fs, dir string) (map[string]any, []string, error) {
	for _, name := range pluginFileNames {
		path := filepath.Join(dir, name)
		data, err := afero.ReadFile(fs, path)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, nil, fmt.Errorf("read %s: %w", path, err)
		}
		return parsePlugins(path, data)
	}
	return map[string]any{}, nil, nil
}

func parsePlugins(path string, data []byte) (map[string]any, []string, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if len(doc.Content) == 0 {
		return map[string]any{}, nil, nil
	}
	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil, nil, fmt.Errorf("parse %s: top level must be a mapping of plugin names", path)
	}

	var raw map[string]any
	if err := root.Decode(&raw); err != nil {
		return nil, nil, fmt.Errorf("parse %s: %w", path, err)
	}
	order := make([]string, 0, len(root.Content)/2)
	for i := 0; i+1 < len(root.Content); i += 2 {
		order = append(order, root.Content[i].Value)
	}
	return raw, order, nil
}

// decodeEntry accepts either a declaration object or a bare boolean as a
// shorthand for {enabled: <bool>}.
func decodeEntry(raw any) (PluginEntry, error) {
	var entry PluginEntry
	switch v := raw.(type) {
	case nil:
		return entry, nil
	case bool:
		entry.Enabled = &v
		return entry, nil
	}

	m, ok := merge.AsMap(raw)
	if !ok {
		return entry, fmt.Errorf("declaration must be an object or a boolean, got %T", raw)
	}
	if err := mapstructure.Decode(m, &entry); err != nil {
		return entry, err
	}
	if entry.Config != nil {
		entry.Config = normalize(entry.Config)
	}
	return entry, nil
}

// normalize converts nested map[any]any values into map[string]any.
func normalize(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = normalizeValue(v)
	}
	return out
}

func normalizeValue(v any) any {
	if m, ok := merge.AsMap(v); ok {
		return normalize(m)
	}
	if list, ok := v.([]any); ok {
		out := make([]any, len(list))
		for i, e := range list {
			out[i] = normalizeValue(e)
		}
		return out
	}
	return v
}
