// Package luart runs plugin server entries and server extensions written in
// Lua. Each script gets its own sandboxed gopher-lua state.
package luart

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"

	lua "github.com/yuin/gopher-lua"

	"github.com/HerbHall/strata/pkg/plugin"
)

var (
	// ErrNotTable is returned when a server entry does not evaluate to a table.
	ErrNotTable = errors.New("script did not return a table")

	// ErrNotFunction is returned when an extension does not evaluate to a function.
	ErrNotFunction = errors.New("script did not return a function")
)

// ScriptError is a Lua runtime error raised with a string message.
type ScriptError struct {
	Message string
}

func (e *ScriptError) Error() string { return e.Message }

// script is one loaded Lua file. gopher-lua states are not goroutine-safe;
// mu serializes every call into L. Calls are not reentrant: Lua code must
// not call back into a Go-wrapped function of its own script.
type script struct {
	path string
	L    *lua.LState
	mu   sync.Mutex

	// origins maps Lua wrappers of Go callables back to the Go value, so a
	// hook or handler that passes through an extension unchanged keeps its
	// identity.
	origins map[*lua.LFunction]any
}

func newScript(path string) (*script, error) {
	L := lua.NewState(lua.Options{SkipOpenLibs: true})
	for _, lib := range []struct {
		name string
		open lua.LGFunction
	}{
		{lua.BaseLibName, lua.OpenBase},
		{lua.TabLibName, lua.OpenTable},
		{lua.StringLibName, lua.OpenString},
		{lua.MathLibName, lua.OpenMath},
	} {
		if err := L.CallByParam(lua.P{Fn: L.NewFunction(lib.open), NRet: 0, Protect: true}, lua.LString(lib.name)); err != nil {
			L.Close()
			return nil, fmt.Errorf("open lua library %q: %w", lib.name, err)
		}
	}
	// No filesystem access from plugin scripts.
	for _, name := range []string{"dofile", "loadfile"} {
		L.SetGlobal(name, lua.LNil)
	}

	return &script{
		path:    path,
		L:       L,
		origins: make(map[*lua.LFunction]any),
	}, nil
}

// eval compiles and runs src, returning the chunk's first return value.
func (s *script) eval(ctx context.Context, src []byte) (lua.LValue, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	fn, err := s.L.Load(bytes.NewReader(src), s.path)
	if err != nil {
		return nil, fmt.Errorf("compile %s: %w", s.path, err)
	}
	ret, err := s.call(ctx, fn, 1)
	if err != nil {
		return nil, err
	}
	return ret[0], nil
}

// call invokes fn with args and returns nret results. The caller holds mu.
func (s *script) call(ctx context.Context, fn *lua.LFunction, nret int, args ...lua.LValue) ([]lua.LValue, error) {
	L := s.L
	if ctx != nil {
		L.SetContext(ctx)
		defer L.RemoveContext()
	}

	top := L.GetTop()
	if err := L.CallByParam(lua.P{Fn: fn, NRet: nret, Protect: true}, args...); err != nil {
		L.SetTop(top)
		return nil, s.convertError(err)
	}
	out := make([]lua.LValue, nret)
	for i := range out {
		out[i] = L.Get(top + 1 + i)
	}
	L.SetTop(top)
	return out, nil
}

// locked runs fn with mu held.
func (s *script) locked(fn func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn()
}

// convertError maps a Lua error to a Go error. String messages become
// ScriptError, Go errors raised through the bridge come back unchanged, and
// any other raised value becomes plugin.Thrown.
func (s *script) convertError(err error) error {
	var apiErr *lua.ApiError
	if !errors.As(err, &apiErr) {
		return err
	}
	switch obj := apiErr.Object.(type) {
	case lua.LString:
		return &ScriptError{Message: string(obj)}
	case *lua.LUserData:
		if goErr, ok := obj.Value.(error); ok {
			return goErr
		}
		return &plugin.Thrown{Value: obj.Value}
	case nil:
		return err
	default:
		if obj == lua.LNil {
			return &plugin.Thrown{Value: nil}
		}
		return &plugin.Thrown{Value: s.toGo(obj)}
	}
}

// raise aborts the running Lua call with a Go error, keeping its identity.
func raise(L *lua.LState, err error) {
	ud := L.NewUserData()
	ud.Value = err
	L.Error(ud, 1)
}

func (s *script) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.L.Close()
}
