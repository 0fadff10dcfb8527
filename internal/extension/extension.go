// Package extension overlays user-authored content-type schema fragments
// and server extensions onto loaded plugins.
package extension

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/HerbHall/strata/pkg/contenttype"
	"github.com/HerbHall/strata/pkg/plugin"
)

const (
	// SchemaFile is the schema fragment file name under
	// <root>/<plugin>/content-types/<content-type>/.
	SchemaFile = "schema.json"

	// ServerFile is the server extension script under <root>/<plugin>/.
	ServerFile = "strapi-server.lua"

	contentTypesDir = "content-types"
)

// ErrNilPlugin is returned when an extension returns no plugin.
var ErrNilPlugin = errors.New("extension returned no plugin")

// ScriptLoader evaluates server extension scripts.
type ScriptLoader interface {
	LoadExtension(ctx context.Context, path string) (plugin.Extension, error)
}

// Options configures an Applier.
type Options struct {
	Fs afero.Fs

	// Root is the extensions directory. When it does not exist the
	// filesystem overlays are skipped.
	Root string

	// Catalog supplies extensions registered from Go code. May be nil.
	Catalog *plugin.Catalog

	// Scripts evaluates strapi-server.lua extensions. May be nil, in which
	// case script extensions are ignored.
	Scripts ScriptLoader

	Logger *zap.Logger
}

// Applier applies extensions to a plugin map.
type Applier struct {
	fs      afero.Fs
	root    string
	catalog *plugin.Catalog
	scripts ScriptLoader
	logger  *zap.Logger
}

// New creates an Applier.
func New(opts Options) *Applier {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	fs := opts.Fs
	if fs == nil {
		fs = afero.NewOsFs()
	}
	catalog := opts.Catalog
	if catalog == nil {
		catalog = plugin.NewCatalog()
	}
	return &Applier{
		fs:      fs,
		root:    opts.Root,
		catalog: catalog,
		scripts: opts.Scripts,
		logger:  logger.Named("extension"),
	}
}

// Apply overlays, per plugin and in map order, the schema fragments first
// and the code extensions second. A code extension's return value replaces
// the plugin wholesale. Without an extensions root nothing is applied, Go
// catalog extensions included.
func (a *Applier) Apply(ctx context.Context, plugins *plugin.Map) error {
	t, err := a.scan()
	if err != nil {
		return err
	}
	if t == nil {
		return nil
	}

	for _, name := range plugins.Names() {
		if err := ctx.Err(); err != nil {
			return err
		}
		p, _ := plugins.Get(name)
		a.overlaySchemas(name, p, t.schemas[name])

		exts := a.catalog.Extensions(name)
		if path, ok := t.servers[name]; ok && a.scripts != nil {
			ext, err := a.scripts.LoadExtension(ctx, path)
			if err != nil {
				return fmt.Errorf("load extension for plugin %q: %w", name, err)
			}
			exts = append(exts, ext)
		}
		for _, ext := range exts {
			next, err := ext(ctx, p)
			if err != nil {
				return fmt.Errorf("extend plugin %q: %w", name, err)
			}
			if next == nil {
				return fmt.Errorf("extend plugin %q: %w", name, ErrNilPlugin)
			}
			p = next
		}
		if len(exts) > 0 {
			plugins.Put(name, p)
			a.logger.Debug("plugin extended", zap.String("plugin", name), zap.Int("extensions", len(exts)))
		}
	}
	return nil
}

func (a *Applier) overlaySchemas(name string, p *plugin.Plugin, fragments map[string]contenttype.Schema) {
	for ctName, fragment := range fragments {
		ct, ok := p.ContentTypes[ctName]
		if !ok || ct == nil {
			a.logger.Debug("schema fragment for unknown content type",
				zap.String("plugin", name),
				zap.String("contentType", ctName),
			)
			continue
		}
		p.ContentTypes[ctName] = &plugin.ContentType{Schema: contenttype.Overlay(ct.Schema, fragment)}
		a.logger.Debug("schema overlaid", zap.String("plugin", name), zap.String("contentType", ctName))
	}
}

// tree holds the extension files found under the root.
type tree struct {
	// schemas: plugin -> content type -> fragment.
	schemas map[string]map[string]contenttype.Schema
	// servers: plugin -> script path.
	servers map[string]string
}

// scan returns a nil tree when there is no extensions root.
func (a *Applier) scan() (*tree, error) {
	t := &tree{
		schemas: make(map[string]map[string]contenttype.Schema),
		servers: make(map[string]string),
	}
	if a.root == "" {
		a.logger.Debug("no extensions root configured, skipping extensions")
		return nil, nil
	}
	exists, err := afero.DirExists(a.fs, a.root)
	if err != nil {
		return nil, fmt.Errorf("check extensions root %s: %w", a.root, err)
	}
	if !exists {
		a.logger.Debug("extensions root not found, skipping extensions", zap.String("root", a.root))
		return nil, nil
	}

	err = afero.Walk(a.fs, a.root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(a.root, path)
		if err != nil {
			return err
		}
		parts := strings.Split(filepath.ToSlash(rel), "/")

		switch {
		case len(parts) == 2 && parts[1] == ServerFile:
			t.servers[parts[0]] = path
		case len(parts) == 4 && parts[1] == contentTypesDir && parts[3] == SchemaFile:
			schema, err := a.readSchema(path)
			if err != nil {
				return err
			}
			if t.schemas[parts[0]] == nil {
				t.schemas[parts[0]] = make(map[string]contenttype.Schema)
			}
			t.schemas[parts[0]][parts[2]] = schema
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan extensions %s: %w", a.root, err)
	}
	a.logger.Debug("extensions scanned",
		zap.Int("schemaPlugins", len(t.schemas)),
		zap.Int("serverExtensions", len(t.servers)),
	)
	return t, nil
}

func (a *Applier) readSchema(path string) (contenttype.Schema, error) {
	data, err := afero.ReadFile(a.fs, path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	var schema contenttype.Schema
	if err := json.Unmarshal(data, &schema); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return schema, nil
}
