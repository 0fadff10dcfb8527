package plugin

// Map is an ordered name to plugin mapping. It is the working set handed
// from one load stage to the next and is not safe for concurrent use.
type Map struct {
	order  []string
	byName map[string]*Plugin
}

// NewMap creates an empty map.
func NewMap() *Map {
	return &Map{byName: make(map[string]*Plugin)}
}

// Put stores p under name. Replacing an existing plugin keeps its position.
func (m *Map) Put(name string, p *Plugin) {
	if _, ok := m.byName[name]; !ok {
		m.order = append(m.order, name)
	}
	m.byName[name] = p
}

// Get returns the plugin stored under name.
func (m *Map) Get(name string) (*Plugin, bool) {
	p, ok := m.byName[name]
	return p, ok
}

// Names returns the plugin names in insertion order.
func (m *Map) Names() []string {
	out := make([]string, len(m.order))
	copy(out, m.order)
	return out
}

// Len returns the number of plugins.
func (m *Map) Len() int { return len(m.order) }
