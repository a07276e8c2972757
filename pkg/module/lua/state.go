// Package lua runs plugin modules written in Lua.
package lua

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	lua "github.com/yuin/gopher-lua"
)

// Module is a loaded Lua chunk and the table it returned.
//
// gopher-lua's LState is not goroutine-safe. Every call into the module goes
// through mu, so extensions from one module run one at a time.
type Module struct {
	L    *lua.LState
	path string

	mu      sync.Mutex
	exports *lua.LTable
	closed  bool
}

// Load executes the Lua file at path and keeps the table it returns.
// Only the base, table, string and math libraries are opened.
func Load(ctx context.Context, path string) (*Module, error) {
	L := lua.NewState(lua.Options{SkipOpenLibs: true})
	openSafeLibraries(L)

	m := &Module{L: L, path: path}

	m.mu.Lock()
	defer m.mu.Unlock()

	fn, err := L.LoadFile(path)
	if err != nil {
		L.Close()
		return nil, fmt.Errorf("%w: %v", ErrSyntax, err)
	}

	results, err := m.callLocked(ctx, fn, 1)
	if err != nil {
		L.Close()
		return nil, err
	}

	table, ok := results[0].(*lua.LTable)
	if !ok {
		L.Close()
		return nil, fmt.Errorf("%w: chunk returned %s", ErrNoExports, results[0].Type())
	}
	m.exports = table
	return m, nil
}

// openSafeLibraries opens only the libraries plugin modules may use
func openSafeLibraries(L *lua.LState) {
	for _, lib := range []struct {
		name string
		fn   lua.LGFunction
	}{
		{lua.BaseLibName, lua.OpenBase},
		{lua.TabLibName, lua.OpenTable},
		{lua.StringLibName, lua.OpenString},
		{lua.MathLibName, lua.OpenMath},
	} {
		L.Push(L.NewFunction(lib.fn))
		L.Push(lua.LString(lib.name))
		L.Call(1, 0)
	}

	for _, name := range []string{"dofile", "loadfile", "load", "loadstring", "require"} {
		L.SetGlobal(name, lua.LNil)
	}
}

// Path returns the file the module was loaded from
func (m *Module) Path() string {
	return m.path
}

// Dir returns the directory holding the module file
func (m *Module) Dir() string {
	return filepath.Dir(m.path)
}

// Table returns the table returned by the chunk
func (m *Module) Table() *lua.LTable {
	return m.exports
}

// Call invokes fn with Go arguments and returns its results converted to Go
// values. ctx cancellation interrupts the running Lua code.
func (m *Module) Call(ctx context.Context, fn *lua.LFunction, args ...interface{}) ([]interface{}, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, ErrModuleClosed
	}

	largs := make([]lua.LValue, len(args))
	for i, a := range args {
		largs[i] = ToLua(m.L, a)
	}

	results, err := m.callLocked(ctx, fn, lua.MultRet, largs...)
	if err != nil {
		return nil, err
	}

	out := make([]interface{}, len(results))
	for i, r := range results {
		out[i] = ToGo(r)
	}
	return out, nil
}

func (m *Module) callLocked(ctx context.Context, fn *lua.LFunction, nret int, args ...lua.LValue) (results []lua.LValue, err error) {
	if ctx != nil {
		m.L.SetContext(ctx)
		defer m.L.RemoveContext()
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("lua panic: %v", r)
		}
	}()

	top := m.L.GetTop()
	m.L.Push(fn)
	for _, a := range args {
		m.L.Push(a)
	}
	if err := m.L.PCall(len(args), nret, nil); err != nil {
		m.L.SetTop(top)
		if ctx != nil && ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %v", ctx.Err(), err)
		}
		return nil, fmt.Errorf("%s: %w", m.path, err)
	}

	n := m.L.GetTop() - top
	results = make([]lua.LValue, n)
	for i := 0; i < n; i++ {
		results[i] = m.L.Get(top + i + 1)
	}
	m.L.SetTop(top)
	return results, nil
}

// Close releases the Lua state
func (m *Module) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return
	}
	m.L.Close()
	m.closed = true
}
