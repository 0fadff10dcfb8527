package luart

import (
	"context"
	"fmt"
	"sort"

	"github.com/go-viper/mapstructure/v2"
	lua "github.com/yuin/gopher-lua"

	"github.com/HerbHall/strata/pkg/contenttype"
	"github.com/HerbHall/strata/pkg/merge"
	"github.com/HerbHall/strata/pkg/plugin"
)

// Keys with a typed home in plugin.Server / plugin.Plugin. Anything else in
// a plugin table lands in Extra.
var structuralKeys = map[string]bool{
	"name":         true,
	"register":     true,
	"bootstrap":    true,
	"destroy":      true,
	"routes":       true,
	"controllers":  true,
	"services":     true,
	"policies":     true,
	"middlewares":  true,
	"contentTypes": true,
	"config":       true,
}

// serverFromTable reads a server entry table. Missing keys stay nil so that
// plugin.Build can default them.
func (s *script) serverFromTable(t *lua.LTable) (plugin.Server, error) {
	srv, err := s.structureFromTable(t)
	if err != nil {
		return srv, err
	}
	if srv.Config, err = s.configSpecField(t); err != nil {
		return srv, err
	}
	return srv, nil
}

// structureFromTable reads every key of a plugin table except config, whose
// meaning differs between entries (a declaration) and extension results (a
// resolved value).
func (s *script) structureFromTable(t *lua.LTable) (plugin.Server, error) {
	var srv plugin.Server
	var err error

	srv.Register = s.hookField(t, "register")
	srv.Bootstrap = s.hookField(t, "bootstrap")
	srv.Destroy = s.hookField(t, "destroy")

	if srv.Routes, err = s.routesField(t); err != nil {
		return srv, err
	}
	if srv.Controllers, err = s.handlersField(t, "controllers"); err != nil {
		return srv, err
	}
	if srv.Services, err = s.handlersField(t, "services"); err != nil {
		return srv, err
	}
	if srv.Policies, err = s.handlersField(t, "policies"); err != nil {
		return srv, err
	}
	if srv.Middlewares, err = s.handlersField(t, "middlewares"); err != nil {
		return srv, err
	}
	if srv.ContentTypes, err = s.contentTypesField(t); err != nil {
		return srv, err
	}
	srv.Extra = s.extraFields(t)
	return srv, nil
}

// pluginFromTable reads a plugin table returned by an extension. Nothing is
// defaulted: the result holds exactly what the table declares.
func (s *script) pluginFromTable(t *lua.LTable) (*plugin.Plugin, error) {
	srv, err := s.structureFromTable(t)
	if err != nil {
		return nil, err
	}
	p := &plugin.Plugin{
		Register:     srv.Register,
		Bootstrap:    srv.Bootstrap,
		Destroy:      srv.Destroy,
		Routes:       srv.Routes,
		Controllers:  srv.Controllers,
		Services:     srv.Services,
		Policies:     srv.Policies,
		Middlewares:  srv.Middlewares,
		ContentTypes: srv.ContentTypes,
		Extra:        srv.Extra,
	}
	if name, ok := t.RawGetString("name").(lua.LString); ok {
		p.Name = string(name)
	}
	if cfg, ok := merge.AsMap(s.toGo(t.RawGetString("config"))); ok {
		p.Config = cfg
	}
	return p, nil
}

// pluginTable converts a resolved plugin to the table handed to a Lua
// extension.
func (s *script) pluginTable(p *plugin.Plugin) *lua.LTable {
	L := s.L
	t := L.NewTable()
	for _, k := range sortedKeys(p.Extra) {
		t.RawSetString(k, s.toLua(p.Extra[k]))
	}
	t.RawSetString("name", lua.LString(p.Name))

	for key, h := range map[string]plugin.Hook{
		"register":  p.Register,
		"bootstrap": p.Bootstrap,
		"destroy":   p.Destroy,
	} {
		if h != nil {
			t.RawSetString(key, s.wrapHook(h))
		}
	}

	if p.Routes != nil {
		routes := L.CreateTable(len(p.Routes), 0)
		for _, r := range p.Routes {
			rt := L.NewTable()
			rt.RawSetString("method", lua.LString(r.Method))
			rt.RawSetString("path", lua.LString(r.Path))
			rt.RawSetString("handler", lua.LString(r.Handler))
			if r.Policies != nil {
				rt.RawSetString("policies", s.toLua(r.Policies))
			}
			if r.Config != nil {
				rt.RawSetString("config", s.toLua(r.Config))
			}
			routes.Append(rt)
		}
		t.RawSetString("routes", routes)
	}

	for key, handlers := range map[string]map[string]plugin.Handler{
		"controllers": p.Controllers,
		"services":    p.Services,
		"policies":    p.Policies,
		"middlewares": p.Middlewares,
	} {
		if handlers == nil {
			continue
		}
		ht := L.NewTable()
		for _, name := range sortedKeys(handlers) {
			ht.RawSetString(name, s.wrapHandler(handlers[name]))
		}
		t.RawSetString(key, ht)
	}

	if p.ContentTypes != nil {
		cts := L.NewTable()
		for _, name := range sortedKeys(p.ContentTypes) {
			ct := L.NewTable()
			if p.ContentTypes[name] != nil {
				ct.RawSetString("schema", s.toLua(map[string]any(p.ContentTypes[name].Schema)))
			}
			cts.RawSetString(name, ct)
		}
		t.RawSetString("contentTypes", cts)
	}

	if p.Config != nil {
		t.RawSetString("config", s.toLua(p.Config))
	}
	return t
}

func (s *script) hookField(t *lua.LTable, key string) plugin.Hook {
	switch v := s.toGo(t.RawGetString(key)).(type) {
	case plugin.Hook:
		return v
	case *lua.LFunction:
		return s.luaHook(v)
	default:
		return nil
	}
}

func (s *script) luaHook(fn *lua.LFunction) plugin.Hook {
	return func(ctx context.Context, host plugin.Host) error {
		return s.locked(func() error {
			_, err := s.call(ctx, fn, 0, s.hostTable(host))
			return err
		})
	}
}

func (s *script) luaHandler(fn *lua.LFunction) plugin.Handler {
	return func(ctx context.Context, call plugin.Call) (any, error) {
		var res any
		err := s.locked(func() error {
			ret, err := s.call(ctx, fn, 1, s.callTable(call))
			if err != nil {
				return err
			}
			res = s.toGo(ret[0])
			return nil
		})
		return res, err
	}
}

func (s *script) routesField(t *lua.LTable) ([]plugin.Route, error) {
	raw := s.toGo(t.RawGetString("routes"))
	if raw == nil {
		return nil, nil
	}

	var list []any
	switch v := raw.(type) {
	case []any:
		list = v
	case map[string]any:
		// Either an empty table or named routers: {admin = {routes = {...}}}.
		for _, name := range sortedKeys(v) {
			router, ok := merge.AsMap(v[name])
			if !ok {
				return nil, fmt.Errorf("routes.%s: expected a router table", name)
			}
			if sub, ok := router["routes"].([]any); ok {
				list = append(list, sub...)
			}
		}
	default:
		return nil, fmt.Errorf("routes: expected a list, got %T", raw)
	}

	routes := make([]plugin.Route, 0, len(list))
	for i, item := range list {
		var r plugin.Route
		if err := mapstructure.Decode(item, &r); err != nil {
			return nil, fmt.Errorf("routes[%d]: %w", i+1, err)
		}
		routes = append(routes, r)
	}
	return routes, nil
}

// handlersField flattens a handler table. Functions are taken as is and
// tables of functions are flattened to "<name>.<action>" keys.
func (s *script) handlersField(t *lua.LTable, key string) (map[string]plugin.Handler, error) {
	raw := s.toGo(t.RawGetString(key))
	if raw == nil {
		return nil, nil
	}
	m, ok := raw.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%s: expected a table of functions, got %T", key, raw)
	}

	out := make(map[string]plugin.Handler, len(m))
	for name, v := range m {
		if h, ok := s.asHandler(v); ok {
			out[name] = h
			continue
		}
		actions, ok := v.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%s.%s: expected a function or a table of functions", key, name)
		}
		for action, av := range actions {
			h, ok := s.asHandler(av)
			if !ok {
				return nil, fmt.Errorf("%s.%s.%s: expected a function", key, name, action)
			}
			out[name+"."+action] = h
		}
	}
	return out, nil
}

func (s *script) asHandler(v any) (plugin.Handler, bool) {
	switch fn := v.(type) {
	case plugin.Handler:
		return fn, true
	case *lua.LFunction:
		return s.luaHandler(fn), true
	default:
		return nil, false
	}
}

func (s *script) contentTypesField(t *lua.LTable) (map[string]*plugin.ContentType, error) {
	raw := s.toGo(t.RawGetString("contentTypes"))
	if raw == nil {
		return nil, nil
	}
	m, ok := raw.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("contentTypes: expected a table, got %T", raw)
	}
	out := make(map[string]*plugin.ContentType, len(m))
	for name, v := range m {
		ct, ok := merge.AsMap(v)
		if !ok {
			return nil, fmt.Errorf("contentTypes.%s: expected a table", name)
		}
		schema, _ := merge.AsMap(ct["schema"])
		out[name] = &plugin.ContentType{Schema: contenttype.Schema(schema)}
	}
	return out, nil
}

func (s *script) configSpecField(t *lua.LTable) (*plugin.ConfigSpec, error) {
	lv := t.RawGetString("config")
	if lv == lua.LNil {
		return nil, nil
	}
	ct, ok := lv.(*lua.LTable)
	if !ok {
		return nil, fmt.Errorf("config: expected a table, got %s", lv.Type())
	}

	spec := &plugin.ConfigSpec{}
	switch d := ct.RawGetString("default").(type) {
	case *lua.LFunction:
		spec.DefaultFunc = s.luaDefaultFunc(d)
	case *lua.LTable:
		m, ok := s.toGo(d).(map[string]any)
		if !ok {
			return nil, fmt.Errorf("config.default: expected a table with named keys")
		}
		spec.Default = m
	default:
		if d != lua.LNil {
			return nil, fmt.Errorf("config.default: expected a table or a function, got %s", d.Type())
		}
	}

	if fn, ok := ct.RawGetString("validator").(*lua.LFunction); ok {
		spec.Validator = s.luaValidator(fn)
	}
	return spec, nil
}

func (s *script) luaDefaultFunc(fn *lua.LFunction) plugin.DefaultFunc {
	return func(e plugin.Env) (map[string]any, error) {
		var out map[string]any
		err := s.locked(func() error {
			ret, err := s.call(context.Background(), fn, 1, s.envTable(e))
			if err != nil {
				return err
			}
			m, ok := s.toGo(ret[0]).(map[string]any)
			if !ok && ret[0] != lua.LNil {
				return fmt.Errorf("%s: config.default returned %s, want a table", s.path, ret[0].Type())
			}
			out = m
			return nil
		})
		return out, err
	}
}

func (s *script) luaValidator(fn *lua.LFunction) plugin.Validator {
	return func(config map[string]any) error {
		return s.locked(func() error {
			_, err := s.call(context.Background(), fn, 0, s.toLua(config))
			return err
		})
	}
}

func (s *script) extraFields(t *lua.LTable) map[string]any {
	var extra map[string]any
	var keys []string
	t.ForEach(func(k, _ lua.LValue) {
		if ks, ok := k.(lua.LString); ok && !structuralKeys[string(ks)] {
			keys = append(keys, string(ks))
		}
	})
	sort.Strings(keys)
	for _, k := range keys {
		if extra == nil {
			extra = make(map[string]any, len(keys))
		}
		extra[k] = s.toGo(t.RawGetString(k))
	}
	return extra
}
