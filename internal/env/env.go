// Package env implements the environment accessor handed to lazy plugin
// config defaults.
package env

import (
	"encoding/json"
	"strings"

	"github.com/spf13/cast"
	"github.com/spf13/viper"
)

// Env reads environment variables through viper, so values are looked up
// at call time rather than when a plugin declares its defaults.
type Env struct {
	v *viper.Viper
}

// New returns an Env reading the process environment.
func New() *Env {
	v := viper.New()
	v.AutomaticEnv()
	return &Env{v: v}
}

// FromMap returns an Env backed by fixed values, for tests and for hosts
// that snapshot the environment.
func FromMap(values map[string]string) *Env {
	v := viper.New()
	for k, val := range values {
		v.Set(k, val)
	}
	return &Env{v: v}
}

func (e *Env) lookup(key string) (string, bool) {
	if !e.v.IsSet(key) {
		return "", false
	}
	return e.v.GetString(key), true
}

// String returns the variable or def when unset.
func (e *Env) String(key, def string) string {
	if s, ok := e.lookup(key); ok {
		return s
	}
	return def
}

// Int returns the variable parsed as an int, or def when unset or invalid.
func (e *Env) Int(key string, def int) int {
	s, ok := e.lookup(key)
	if !ok {
		return def
	}
	n, err := cast.ToIntE(strings.TrimSpace(s))
	if err != nil {
		return def
	}
	return n
}

// Float returns the variable parsed as a float, or def when unset or invalid.
func (e *Env) Float(key string, def float64) float64 {
	s, ok := e.lookup(key)
	if !ok {
		return def
	}
	f, err := cast.ToFloat64E(strings.TrimSpace(s))
	if err != nil {
		return def
	}
	return f
}

// Bool returns true only for the literal "true" (case-insensitive);
// def when unset.
func (e *Env) Bool(key string, def bool) bool {
	s, ok := e.lookup(key)
	if !ok {
		return def
	}
	return strings.EqualFold(strings.TrimSpace(s), "true")
}

// Array splits the variable on commas, trimming whitespace and an optional
// surrounding pair of brackets. Empty items are dropped.
func (e *Env) Array(key string, def []string) []string {
	s, ok := e.lookup(key)
	if !ok {
		return def
	}
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "[") && strings.HasSuffix(s, "]") {
		s = s[1 : len(s)-1]
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.Trim(strings.TrimSpace(p), `"'`)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// JSON decodes the variable as JSON, or returns def when unset or invalid.
func (e *Env) JSON(key string, def any) any {
	s, ok := e.lookup(key)
	if !ok {
		return def
	}
	var out any
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return def
	}
	return out
}
