package module

import "errors"

var (
	// ErrModuleNotFound is returned when a module path does not exist
	ErrModuleNotFound = errors.New("module not found")

	// ErrUnsupportedFormat is returned for file extensions no runtime handles
	ErrUnsupportedFormat = errors.New("unsupported module format")

	// ErrInvalidModule is returned when a declarative module is malformed
	ErrInvalidModule = errors.New("invalid module")
)
