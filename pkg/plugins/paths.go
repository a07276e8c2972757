package plugins

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

const (
	// ProjectPluginDir is the project-local plugin directory
	ProjectPluginDir = ".prompt-templates/plugins"

	// GlobalPluginDirEnv overrides the global plugin directory
	GlobalPluginDirEnv = "PTE_GLOBAL_PLUGIN_DIR"
)

// deniedRoots are system directories plugins may never be loaded from
var deniedRoots = []string{"/etc", "/bin", "/sbin", "/usr/bin", "/system"}

// VetPluginDir normalizes dir and rejects traversal segments and system roots.
// Symlinks are resolved before the deny-list check.
func VetPluginDir(dir string) (string, error) {
	if strings.TrimSpace(dir) == "" {
		return "", fmt.Errorf("%w: empty path", ErrUnsafePath)
	}

	for _, segment := range strings.FieldsFunc(dir, func(r rune) bool { return r == '/' || r == '\\' }) {
		if segment == ".." {
			return "", fmt.Errorf("%w: %s contains a traversal segment", ErrUnsafePath, dir)
		}
	}

	abs, err := filepath.Abs(expandHome(dir))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnsafePath, err)
	}

	candidates := []string{abs}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil && resolved != abs {
		candidates = append(candidates, resolved)
	}
	for _, candidate := range candidates {
		if root, denied := underDeniedRoot(candidate); denied {
			return "", fmt.Errorf("%w: %s is under %s", ErrUnsafePath, dir, root)
		}
	}

	return abs, nil
}

func underDeniedRoot(path string) (string, bool) {
	slashed := filepath.ToSlash(path)
	for _, root := range deniedRoots {
		if slashed == root || strings.HasPrefix(slashed, root+"/") {
			return root, true
		}
	}
	return "", false
}

func expandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}

// GlobalDirResolver returns the global plugin package directory. An empty
// result means there is none.
type GlobalDirResolver func(ctx context.Context) (string, error)

// EnvGlobalDir resolves the global directory from PTE_GLOBAL_PLUGIN_DIR
func EnvGlobalDir(context.Context) (string, error) {
	return os.Getenv(GlobalPluginDirEnv), nil
}

// PackageManagerGlobalDir resolves the global directory by running a package
// manager command such as "npm root -g" and reading its trimmed output.
// The environment variable takes precedence.
func PackageManagerGlobalDir(command []string) GlobalDirResolver {
	return func(ctx context.Context) (string, error) {
		if dir := os.Getenv(GlobalPluginDirEnv); dir != "" {
			return dir, nil
		}
		if len(command) == 0 {
			return "", nil
		}
		if _, err := exec.LookPath(command[0]); err != nil {
			return "", nil
		}

		ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()

		var out bytes.Buffer
		cmd := exec.CommandContext(ctx, command[0], command[1:]...)
		cmd.Stdout = &out
		if err := cmd.Run(); err != nil {
			return "", fmt.Errorf("resolve global plugin dir: %w", err)
		}
		return strings.TrimSpace(out.String()), nil
	}
}

// DefaultPluginDirs returns the project-local, user-home and global plugin
// directories, skipping those that cannot be resolved.
func DefaultPluginDirs(ctx context.Context, global GlobalDirResolver) []string {
	dirs := []string{ProjectPluginDir}

	if home, err := os.UserHomeDir(); err == nil {
		dirs = append(dirs, filepath.Join(home, ProjectPluginDir))
	}

	if global != nil {
		if dir, err := global(ctx); err == nil && dir != "" {
			dirs = append(dirs, dir)
		}
	}

	return dirs
}
