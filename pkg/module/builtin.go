package module

import (
	"path/filepath"
	"sync"

	"github.com/AdamManuel-dev/prompt-template-engine-sub000/pkg/commands"
)

var (
	// builtins holds compiled-in modules keyed by absolute path
	builtins = make(map[string]commands.Exports)
	// builtinsMu protects concurrent access to builtins
	builtinsMu sync.RWMutex
)

// RegisterBuiltin makes exports importable at path without a file on disk.
// Compiled-in plugins use it to provide their entry module.
func RegisterBuiltin(path string, exports commands.Exports) {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = filepath.Clean(path)
	}

	builtinsMu.Lock()
	defer builtinsMu.Unlock()

	builtins[abs] = exports
}

// UnregisterBuiltin removes a builtin module
func UnregisterBuiltin(path string) {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = filepath.Clean(path)
	}

	builtinsMu.Lock()
	defer builtinsMu.Unlock()

	delete(builtins, abs)
}

func lookupBuiltin(abs string) (commands.Exports, bool) {
	builtinsMu.RLock()
	defer builtinsMu.RUnlock()

	exports, ok := builtins[filepath.Clean(abs)]
	return exports, ok
}
