package plugin

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Factory returns the server entry of a statically linked plugin.
type Factory func() Server

// Extension receives the current plugin and returns its replacement.
type Extension func(ctx context.Context, p *Plugin) (*Plugin, error)

// Catalog holds plugin entries and extensions registered from Go code.
// It stands in for loading entry modules from disk.
type Catalog struct {
	mu         sync.RWMutex
	entries    map[string]Factory
	extensions map[string][]Extension
}

// NewCatalog creates an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{
		entries:    make(map[string]Factory),
		extensions: make(map[string][]Extension),
	}
}

// Register adds the server entry for a plugin.
func (c *Catalog) Register(name string, f Factory) error {
	if name == "" {
		return fmt.Errorf("catalog: plugin name is required")
	}
	if f == nil {
		return fmt.Errorf("catalog: nil factory for plugin %q", name)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.entries[name]; exists {
		return fmt.Errorf("catalog: plugin %q already registered", name)
	}
	c.entries[name] = f
	return nil
}

// MustRegister is Register that panics on error, for package init wiring.
func (c *Catalog) MustRegister(name string, f Factory) {
	if err := c.Register(name, f); err != nil {
		panic(err)
	}
}

// Entry returns the factory registered for name.
func (c *Catalog) Entry(name string) (Factory, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	f, ok := c.entries[name]
	return f, ok
}

// Extend registers a code extension for the named plugin. Extensions run in
// registration order.
func (c *Catalog) Extend(name string, ext Extension) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.extensions[name] = append(c.extensions[name], ext)
}

// Extensions returns the code extensions registered for name.
func (c *Catalog) Extensions(name string) []Extension {
	c.mu.RLock()
	defer c.mu.RUnlock()
	exts := c.extensions[name]
	out := make([]Extension, len(exts))
	copy(out, exts)
	return out
}

// Names returns the registered entry names, sorted.
func (c *Catalog) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.entries))
	for name := range c.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
