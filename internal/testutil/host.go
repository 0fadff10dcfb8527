package testutil

import (
	"sync"

	"go.uber.org/zap"

	"github.com/HerbHall/strata/internal/config"
	"github.com/HerbHall/strata/internal/env"
	"github.com/HerbHall/strata/pkg/plugin"
)

// Compile-time interface checks.
var (
	_ plugin.Host           = (*Host)(nil)
	_ plugin.ConfigProvider = (*Host)(nil)
	_ plugin.EnvProvider    = (*Host)(nil)
	_ plugin.PluginLister   = (*Host)(nil)
)

// Host is a thread-safe in-memory plugin host. Hooks and handlers under
// test call Record, and the test inspects Events afterwards.
type Host struct {
	mu      sync.Mutex
	logger  *zap.Logger
	cfg     *config.Config
	env     *env.Env
	plugins *plugin.Map
	events  []string
}

// NewHost returns a Host with an empty configuration and the given
// environment variables.
func NewHost(vars map[string]string) *Host {
	return &Host{
		logger:  zap.NewNop(),
		cfg:     config.New(nil),
		env:     env.FromMap(vars),
		plugins: plugin.NewMap(),
	}
}

// AddPlugin makes p visible through Plugin and PluginNames.
func (h *Host) AddPlugin(p *plugin.Plugin) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.plugins.Put(p.Name, p)
}

func (h *Host) Logger() *zap.Logger { return h.logger }

func (h *Host) Plugin(name string) (*plugin.Plugin, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.plugins.Get(name)
}

func (h *Host) PluginNames() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.plugins.Names()
}

func (h *Host) Config() plugin.Config { return h.cfg }

func (h *Host) Env() plugin.Env { return h.env }

// Record appends an event.
func (h *Host) Record(event string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, event)
}

// Events returns a copy of all recorded events.
func (h *Host) Events() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]string, len(h.events))
	copy(out, h.events)
	return out
}

// Reset clears all recorded events.
func (h *Host) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = nil
}
