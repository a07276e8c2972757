package lua

import "errors"

var (
	// ErrModuleClosed is returned when calling into a closed module
	ErrModuleClosed = errors.New("lua module is closed")

	// ErrSyntax is returned when a module file fails to compile
	ErrSyntax = errors.New("lua syntax error")

	// ErrNoExports is returned when a module chunk does not return a table
	ErrNoExports = errors.New("lua module must return a table")

	// ErrBadReturn is returned when a Lua extension returns a value of the wrong shape
	ErrBadReturn = errors.New("unexpected lua return value")
)
