package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
)

func TestViperConfigGetString(t *testing.T) {
	v := viper.New()
	v.Set("name", "test")
	cfg := New(v)

	if got := cfg.GetString("name"); got != "test" {
		t.Errorf("GetString('name') = %q, want %q", got, "test")
	}
}

func TestViperConfigGetInt(t *testing.T) {
	v := viper.New()
	v.Set("port", 8080)
	cfg := New(v)

	if got := cfg.GetInt("port"); got != 8080 {
		t.Errorf("GetInt('port') = %d, want %d", got, 8080)
	}
}

func TestViperConfigGetBool(t *testing.T) {
	v := viper.New()
	v.Set("enabled", true)
	cfg := New(v)

	if got := cfg.GetBool("enabled"); !got {
		t.Error("GetBool('enabled') = false, want true")
	}
}

func TestViperConfigGetDuration(t *testing.T) {
	v := viper.New()
	v.Set("timeout", "5s")
	cfg := New(v)

	want := 5 * time.Second
	if got := cfg.GetDuration("timeout"); got != want {
		t.Errorf("GetDuration('timeout') = %v, want %v", got, want)
	}
}

func TestViperConfigIsSet(t *testing.T) {
	v := viper.New()
	v.Set("exists", true)
	cfg := New(v)

	if !cfg.IsSet("exists") {
		t.Error("IsSet('exists') = false, want true")
	}
	if cfg.IsSet("missing") {
		t.Error("IsSet('missing') = true, want false")
	}
}

func TestViperConfigSub(t *testing.T) {
	v := viper.New()
	v.Set("plugins.upload.enabled", true)
	v.Set("plugins.upload.interval", 30)
	cfg := New(v)

	sub := cfg.Sub("plugins.upload")
	if sub == nil {
		t.Fatal("Sub('plugins.upload') = nil")
	}
	if got := sub.GetBool("enabled"); !got {
		t.Error("sub.GetBool('enabled') = false, want true")
	}
	if got := sub.GetInt("interval"); got != 30 {
		t.Errorf("sub.GetInt('interval') = %d, want %d", got, 30)
	}
}

func TestViperConfigSubMissing(t *testing.T) {
	v := viper.New()
	cfg := New(v)

	sub := cfg.Sub("nonexistent")
	if sub == nil {
		t.Fatal("Sub('nonexistent') should return empty Config, not nil")
	}
	// Should return zero values without panic.
	if got := cfg.GetString("anything"); got != "" {
		t.Errorf("empty config GetString() = %q, want empty", got)
	}
	_ = sub
}

func TestViperConfigUnmarshal(t *testing.T) {
	v := viper.New()
	v.Set("host", "localhost")
	v.Set("port", 9090)
	cfg := New(v)

	var target struct {
		Host string `mapstructure:"host"`
		Port int    `mapstructure:"port"`
	}
	if err := cfg.Unmarshal(&target); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if target.Host != "localhost" {
		t.Errorf("Host = %q, want %q", target.Host, "localhost")
	}
	if target.Port != 9090 {
		t.Errorf("Port = %d, want %d", target.Port, 9090)
	}
}

func TestNilViper(t *testing.T) {
	cfg := New(nil)
	// Should not panic and return zero values.
	if got := cfg.GetString("key"); got != "" {
		t.Errorf("nil viper GetString() = %q, want empty", got)
	}
}

func TestViperConfigSetGet(t *testing.T) {
	cfg := New(nil)
	cfg.Set("enabledPlugins", []string{"upload"})

	got, ok := cfg.Get("enabledPlugins").([]string)
	if !ok || len(got) != 1 || got[0] != "upload" {
		t.Errorf("Get('enabledPlugins') = %v, want [upload]", cfg.Get("enabledPlugins"))
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	s, err := cfg.Settings()
	if err != nil {
		t.Fatalf("Settings() error = %v", err)
	}
	if s.Paths.Extensions != "extensions" {
		t.Errorf("Paths.Extensions = %q, want extensions", s.Paths.Extensions)
	}
	if s.Server.Addr != "127.0.0.1:1337" {
		t.Errorf("Server.Addr = %q, want 127.0.0.1:1337", s.Server.Addr)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("STRATA_SERVER_ADDR", "0.0.0.0:9000")
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got := cfg.GetString("server.addr"); got != "0.0.0.0:9000" {
		t.Errorf("server.addr = %q, want env override", got)
	}
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "strata.yaml")
	if err := os.WriteFile(path, []byte("app:\n  env: production\npaths:\n  extensions: ext\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	s, err := cfg.Settings()
	if err != nil {
		t.Fatalf("Settings() error = %v", err)
	}
	if s.App.Env != "production" {
		t.Errorf("App.Env = %q, want production", s.App.Env)
	}
	if got := s.Path(s.Paths.Extensions); got != filepath.Join(".", "ext") {
		t.Errorf("Path(extensions) = %q", got)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("Load() expected error for missing file")
	}
}

func TestSettingsPathAbsolute(t *testing.T) {
	var s Settings
	s.App.Dir = "/srv/app"
	abs := filepath.Join(string(filepath.Separator), "opt", "ext")
	if got := s.Path(abs); got != abs {
		t.Errorf("Path(%q) = %q, want unchanged", abs, got)
	}
	if got := s.Path("config"); got != filepath.Join("/srv/app", "config") {
		t.Errorf("Path(config) = %q", got)
	}
}
