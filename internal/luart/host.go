package luart

import (
	"fmt"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"

	"github.com/HerbHall/strata/pkg/merge"
	"github.com/HerbHall/strata/pkg/plugin"
)

const hostKey = "__host"

// hostTable exposes a plugin.Host to Lua:
//
//	host.log(msg)            info log line tagged with the script path
//	host.config(key)         host configuration value (nil if unavailable)
//	host.hasPlugin(name)     whether the registry holds name
//	host.env                 env accessor table, when the host has one
func (s *script) hostTable(host plugin.Host) lua.LValue {
	if host == nil {
		return lua.LNil
	}
	L := s.L
	t := L.NewTable()

	ud := L.NewUserData()
	ud.Value = host
	t.RawSetString(hostKey, ud)

	t.RawSetString("log", L.NewFunction(func(L *lua.LState) int {
		if logger := host.Logger(); logger != nil {
			logger.Info(L.CheckString(1), zap.String("script", s.path))
		}
		return 0
	}))
	t.RawSetString("config", L.NewFunction(func(L *lua.LState) int {
		cp, ok := host.(plugin.ConfigProvider)
		if !ok {
			L.Push(lua.LNil)
			return 1
		}
		L.Push(s.toLua(cp.Config().Get(L.CheckString(1))))
		return 1
	}))
	t.RawSetString("hasPlugin", L.NewFunction(func(L *lua.LState) int {
		_, ok := host.Plugin(L.CheckString(1))
		L.Push(lua.LBool(ok))
		return 1
	}))
	if ep, ok := host.(plugin.EnvProvider); ok {
		t.RawSetString("env", s.envTable(ep.Env()))
	}
	return t
}

// hostFromLua recovers the Go host from a table built by hostTable.
func hostFromLua(lv lua.LValue) plugin.Host {
	t, ok := lv.(*lua.LTable)
	if !ok {
		return nil
	}
	ud, ok := t.RawGetString(hostKey).(*lua.LUserData)
	if !ok {
		return nil
	}
	host, _ := ud.Value.(plugin.Host)
	return host
}

// envTable exposes a plugin.Env to Lua. The table is callable for string
// lookups, env("KEY", "default"), and carries typed helpers:
// env.int, env.float, env.bool, env.array, env.json.
func (s *script) envTable(e plugin.Env) *lua.LTable {
	L := s.L
	t := L.NewTable()

	t.RawSetString("int", L.NewFunction(func(L *lua.LState) int {
		L.Push(lua.LNumber(e.Int(L.CheckString(1), L.OptInt(2, 0))))
		return 1
	}))
	t.RawSetString("float", L.NewFunction(func(L *lua.LState) int {
		L.Push(lua.LNumber(e.Float(L.CheckString(1), float64(L.OptNumber(2, 0)))))
		return 1
	}))
	t.RawSetString("bool", L.NewFunction(func(L *lua.LState) int {
		L.Push(lua.LBool(e.Bool(L.CheckString(1), L.OptBool(2, false))))
		return 1
	}))
	t.RawSetString("array", L.NewFunction(func(L *lua.LState) int {
		var def []string
		if list, ok := s.toGo(L.Get(2)).([]any); ok {
			for _, v := range list {
				def = append(def, fmt.Sprint(v))
			}
		}
		L.Push(s.toLua(e.Array(L.CheckString(1), def)))
		return 1
	}))
	t.RawSetString("json", L.NewFunction(func(L *lua.LState) int {
		L.Push(s.toLua(e.JSON(L.CheckString(1), s.toGo(L.Get(2)))))
		return 1
	}))

	mt := L.NewTable()
	mt.RawSetString("__call", L.NewFunction(func(L *lua.LState) int {
		// Argument 1 is the table itself.
		L.Push(lua.LString(e.String(L.CheckString(2), L.OptString(3, ""))))
		return 1
	}))
	L.SetMetatable(t, mt)
	return t
}

// callTable converts a handler call to Lua.
func (s *script) callTable(call plugin.Call) *lua.LTable {
	t := s.L.NewTable()
	params := make(map[string]any, len(call.Params))
	for k, v := range call.Params {
		params[k] = v
	}
	query := make(map[string]any, len(call.Query))
	for k, v := range call.Query {
		vals := make([]any, len(v))
		for i, e := range v {
			vals[i] = e
		}
		query[k] = vals
	}
	t.RawSetString("params", s.toLua(params))
	t.RawSetString("query", s.toLua(query))
	t.RawSetString("body", s.toLua(call.Body))
	t.RawSetString("args", s.toLua(call.Args))
	if call.Host != nil {
		t.RawSetString("host", s.hostTable(call.Host))
	}
	return t
}

// callFromLua converts a Lua call table back to a plugin.Call.
func (s *script) callFromLua(lv lua.LValue) plugin.Call {
	var call plugin.Call
	t, ok := lv.(*lua.LTable)
	if !ok {
		return call
	}
	if m, ok := merge.AsMap(s.toGo(t.RawGetString("params"))); ok {
		call.Params = make(map[string]string, len(m))
		for k, v := range m {
			call.Params[k] = fmt.Sprint(v)
		}
	}
	if m, ok := merge.AsMap(s.toGo(t.RawGetString("query"))); ok {
		call.Query = make(map[string][]string, len(m))
		for k, v := range m {
			if list, ok := v.([]any); ok {
				for _, e := range list {
					call.Query[k] = append(call.Query[k], fmt.Sprint(e))
				}
				continue
			}
			call.Query[k] = []string{fmt.Sprint(v)}
		}
	}
	if m, ok := merge.AsMap(s.toGo(t.RawGetString("body"))); ok {
		call.Body = m
	}
	if list, ok := s.toGo(t.RawGetString("args")).([]any); ok {
		call.Args = list
	}
	call.Host = hostFromLua(t.RawGetString("host"))
	return call
}
