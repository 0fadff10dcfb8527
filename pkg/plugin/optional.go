package plugin

// ConfigProvider is implemented by hosts that expose their configuration.
type ConfigProvider interface {
	Config() Config
}

// EnvProvider is implemented by hosts that expose the environment accessor.
type EnvProvider interface {
	Env() Env
}

// Config is read/write access to host configuration.
type Config interface {
	Get(key string) any
	Set(key string, value any)
	IsSet(key string) bool
}

// Env reads environment variables with typed defaults. It is the accessor
// handed to DefaultFunc.
type Env interface {
	String(key, def string) string
	Int(key string, def int) int
	Bool(key string, def bool) bool
	Float(key string, def float64) float64
	Array(key string, def []string) []string
	JSON(key string, def any) any
}

// PluginLister is implemented by hosts that can enumerate their plugins.
type PluginLister interface {
	PluginNames() []string
}
