// Package config provides the viper-backed host configuration and the
// loader for user plugin configuration files.
package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of environment variables overriding host settings,
// e.g. STRATA_SERVER_ADDR for server.addr.
const EnvPrefix = "STRATA"

// Config wraps a viper instance. It satisfies plugin.Config.
type Config struct {
	v *viper.Viper
}

// New wraps v. A nil v yields an empty configuration.
func New(v *viper.Viper) *Config {
	if v == nil {
		v = viper.New()
	}
	return &Config{v: v}
}

// Load reads host configuration from path (optional) with defaults and
// STRATA_* environment overrides applied.
func Load(path string) (*Config, error) {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}
	return New(v), nil
}

// SetDefaults registers the host defaults on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("app.dir", ".")
	v.SetDefault("app.env", "development")
	v.SetDefault("paths.config", "config")
	v.SetDefault("paths.packages", "packages")
	v.SetDefault("paths.extensions", "extensions")
	v.SetDefault("server.addr", "127.0.0.1:1337")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)
}

func (c *Config) GetString(key string) string          { return c.v.GetString(key) }
func (c *Config) GetInt(key string) int                { return c.v.GetInt(key) }
func (c *Config) GetBool(key string) bool              { return c.v.GetBool(key) }
func (c *Config) GetDuration(key string) time.Duration { return c.v.GetDuration(key) }
func (c *Config) IsSet(key string) bool                { return c.v.IsSet(key) }
func (c *Config) Get(key string) any                   { return c.v.Get(key) }
func (c *Config) Set(key string, value any)            { c.v.Set(key, value) }

// Sub returns the subtree at key. It never returns nil; a missing key
// yields an empty Config.
func (c *Config) Sub(key string) *Config {
	return New(c.v.Sub(key))
}

// Unmarshal decodes the whole configuration into target.
func (c *Config) Unmarshal(target any) error {
	return c.v.Unmarshal(target)
}

// Viper exposes the underlying viper instance.
func (c *Config) Viper() *viper.Viper { return c.v }

// Settings is the typed view of the host configuration.
type Settings struct {
	App struct {
		Dir string `mapstructure:"dir"`
		Env string `mapstructure:"env"`
	} `mapstructure:"app"`
	Paths struct {
		Config     string `mapstructure:"config"`
		Packages   string `mapstructure:"packages"`
		Extensions string `mapstructure:"extensions"`
	} `mapstructure:"paths"`
	Server struct {
		Addr string `mapstructure:"addr"`
	} `mapstructure:"server"`
	Log struct {
		Level       string `mapstructure:"level"`
		Development bool   `mapstructure:"development"`
	} `mapstructure:"log"`
}

// Settings decodes the typed host settings.
func (c *Config) Settings() (Settings, error) {
	var s Settings
	if err := c.Unmarshal(&s); err != nil {
		return s, fmt.Errorf("decode settings: %w", err)
	}
	return s, nil
}

// Path resolves p against the app directory unless it is absolute.
func (s Settings) Path(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(s.App.Dir, p)
}
