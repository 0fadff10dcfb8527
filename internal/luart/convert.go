package luart

import (
	"context"
	"fmt"
	"math"
	"reflect"
	"sort"

	lua "github.com/yuin/gopher-lua"

	"github.com/HerbHall/strata/pkg/plugin"
)

// toGo converts a Lua value to plain Go data. Tables with keys 1..n become
// []any, other tables map[string]any. Integral numbers become int.
// Functions are returned as *lua.LFunction.
func (s *script) toGo(lv lua.LValue) any {
	return s.toGoVisited(lv, map[*lua.LTable]bool{})
}

func (s *script) toGoVisited(lv lua.LValue, visited map[*lua.LTable]bool) any {
	switch v := lv.(type) {
	case nil:
		return nil
	case lua.LBool:
		return bool(v)
	case lua.LString:
		return string(v)
	case lua.LNumber:
		f := float64(v)
		if f == math.Trunc(f) && math.Abs(f) < 1<<53 {
			return int(f)
		}
		return f
	case *lua.LTable:
		if visited[v] {
			return nil
		}
		visited[v] = true
		defer delete(visited, v)
		return s.tableToGo(v, visited)
	case *lua.LFunction:
		if orig, ok := s.origins[v]; ok {
			return orig
		}
		return v
	case *lua.LUserData:
		return v.Value
	default:
		if lv == lua.LNil {
			return nil
		}
		return lv.String()
	}
}

func (s *script) tableToGo(t *lua.LTable, visited map[*lua.LTable]bool) any {
	n := t.Len()
	count := 0
	t.ForEach(func(lua.LValue, lua.LValue) { count++ })

	if n > 0 && count == n {
		out := make([]any, 0, n)
		for i := 1; i <= n; i++ {
			out = append(out, s.toGoVisited(t.RawGetInt(i), visited))
		}
		return out
	}

	out := make(map[string]any, count)
	t.ForEach(func(k, v lua.LValue) {
		out[keyString(k)] = s.toGoVisited(v, visited)
	})
	return out
}

func keyString(k lua.LValue) string {
	if n, ok := k.(lua.LNumber); ok && float64(n) == math.Trunc(float64(n)) {
		return fmt.Sprintf("%d", int64(n))
	}
	return k.String()
}

// toLua converts Go data to a Lua value. Plugin hooks and handlers become
// Lua functions that call back into Go.
func (s *script) toLua(v any) lua.LValue {
	L := s.L
	switch tv := v.(type) {
	case nil:
		return lua.LNil
	case lua.LValue:
		return tv
	case bool:
		return lua.LBool(tv)
	case string:
		return lua.LString(tv)
	case int:
		return lua.LNumber(tv)
	case int64:
		return lua.LNumber(tv)
	case int32:
		return lua.LNumber(tv)
	case uint64:
		return lua.LNumber(tv)
	case float64:
		return lua.LNumber(tv)
	case float32:
		return lua.LNumber(tv)
	case []any:
		t := L.CreateTable(len(tv), 0)
		for _, e := range tv {
			t.Append(s.toLua(e))
		}
		return t
	case []string:
		t := L.CreateTable(len(tv), 0)
		for _, e := range tv {
			t.Append(lua.LString(e))
		}
		return t
	case map[string]any:
		t := L.CreateTable(0, len(tv))
		for _, k := range sortedKeys(tv) {
			t.RawSetString(k, s.toLua(tv[k]))
		}
		return t
	case plugin.Hook:
		return s.wrapHook(tv)
	case plugin.Handler:
		return s.wrapHandler(tv)
	default:
		return s.reflectToLua(v)
	}
}

func (s *script) reflectToLua(v any) lua.LValue {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		t := s.L.CreateTable(rv.Len(), 0)
		for i := 0; i < rv.Len(); i++ {
			t.Append(s.toLua(rv.Index(i).Interface()))
		}
		return t
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			break
		}
		t := s.L.CreateTable(0, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			t.RawSetString(iter.Key().String(), s.toLua(iter.Value().Interface()))
		}
		return t
	}
	ud := s.L.NewUserData()
	ud.Value = v
	return ud
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// wrapHook exposes a Go hook to Lua as function(host).
func (s *script) wrapHook(h plugin.Hook) *lua.LFunction {
	fn := s.L.NewFunction(func(L *lua.LState) int {
		host := hostFromLua(L.Get(1))
		if err := h(luaContext(L), host); err != nil {
			raise(L, err)
		}
		return 0
	})
	s.origins[fn] = h
	return fn
}

// wrapHandler exposes a Go handler to Lua as function(call) -> result.
func (s *script) wrapHandler(h plugin.Handler) *lua.LFunction {
	fn := s.L.NewFunction(func(L *lua.LState) int {
		call := s.callFromLua(L.Get(1))
		res, err := h(luaContext(L), call)
		if err != nil {
			raise(L, err)
		}
		L.Push(s.toLua(res))
		return 1
	})
	s.origins[fn] = h
	return fn
}

func luaContext(L *lua.LState) context.Context {
	if ctx := L.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
