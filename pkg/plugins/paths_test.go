package plugins

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestVetPluginDir(t *testing.T) {
	tests := []struct {
		name string
		dir  string
		ok   bool
	}{
		{"empty", "", false},
		{"blank", "   ", false},
		{"parent traversal", "../plugins", false},
		{"embedded traversal", "plugins/../../etc", false},
		{"windows traversal", `plugins\..\secret`, false},
		{"etc root", "/etc", false},
		{"under etc", "/etc/pte/plugins", false},
		{"bin", "/bin/plugins", false},
		{"sbin", "/sbin", false},
		{"usr bin", "/usr/bin/tools", false},
		{"system", "/system/plugins", false},
		{"similar prefix", "/etcetera/plugins", true},
		{"usr local", "/usr/local/share/pte", true},
		{"relative", "plugins", true},
		{"dots in names", "my..plugins/x", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			abs, err := VetPluginDir(tt.dir)
			if !tt.ok {
				assert.ErrorIs(t, err, ErrUnsafePath)
				return
			}
			require.NoError(t, err)
			assert.True(t, filepath.IsAbs(abs))
		})
	}
}

func TestVetPluginDir_SymlinkIntoDeniedRoot(t *testing.T) {
	dir := t.TempDir()
	link := filepath.Join(dir, "plugins")
	if err := os.Symlink("/etc", link); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}

	_, err := VetPluginDir(link)
	assert.ErrorIs(t, err, ErrUnsafePath)
}

func TestVetPluginDir_ExpandsHome(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory")
	}
	if _, denied := underDeniedRoot(home); denied {
		t.Skip("home directory is under a denied root")
	}

	abs, err := VetPluginDir("~/.prompt-templates/plugins")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, ".prompt-templates", "plugins"), abs)
}

func TestVetPluginDir_RejectsAnyTraversalSegment(t *testing.T) {
	segment := rapid.StringMatching(`[a-zA-Z0-9_.-]{1,8}`)

	rapid.Check(t, func(t *rapid.T) {
		before := rapid.SliceOfN(segment, 0, 4).Draw(t, "before")
		after := rapid.SliceOfN(segment, 0, 4).Draw(t, "after")
		parts := append(append(append([]string{}, before...), ".."), after...)
		dir := strings.Join(parts, "/")
		if rapid.Bool().Draw(t, "absolute") {
			dir = "/" + dir
		}

		if _, err := VetPluginDir(dir); err == nil {
			t.Fatalf("expected %q to be rejected", dir)
		}
	})
}

func TestVetPluginDir_DeniedRootsProperty(t *testing.T) {
	segment := rapid.StringMatching(`[a-z0-9_-]{1,8}`)

	rapid.Check(t, func(t *rapid.T) {
		root := rapid.SampledFrom(deniedRoots).Draw(t, "root")
		rest := rapid.SliceOfN(segment, 0, 3).Draw(t, "rest")
		dir := strings.Join(append([]string{root}, rest...), "/")

		if _, err := VetPluginDir(dir); err == nil {
			t.Fatalf("expected %q to be rejected", dir)
		}
	})
}

func TestPackageManagerGlobalDir(t *testing.T) {
	t.Run("env wins", func(t *testing.T) {
		t.Setenv(GlobalPluginDirEnv, "/opt/pte/global")
		dir, err := PackageManagerGlobalDir([]string{"definitely-not-a-real-binary"})(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "/opt/pte/global", dir)
	})

	t.Run("no command", func(t *testing.T) {
		t.Setenv(GlobalPluginDirEnv, "")
		dir, err := PackageManagerGlobalDir(nil)(context.Background())
		require.NoError(t, err)
		assert.Empty(t, dir)
	})

	t.Run("missing binary", func(t *testing.T) {
		t.Setenv(GlobalPluginDirEnv, "")
		dir, err := PackageManagerGlobalDir([]string{"definitely-not-a-real-binary"})(context.Background())
		require.NoError(t, err)
		assert.Empty(t, dir)
	})

	t.Run("command output", func(t *testing.T) {
		t.Setenv(GlobalPluginDirEnv, "")
		if _, err := os.Stat("/bin/echo"); err != nil {
			t.Skip("echo unavailable")
		}
		dir, err := PackageManagerGlobalDir([]string{"echo", "  /srv/global  "})(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "/srv/global", dir)
	})
}

func TestDefaultPluginDirs(t *testing.T) {
	t.Setenv(GlobalPluginDirEnv, "/opt/pte/global")

	dirs := DefaultPluginDirs(context.Background(), EnvGlobalDir)
	require.NotEmpty(t, dirs)
	assert.Equal(t, ProjectPluginDir, dirs[0])
	assert.Equal(t, "/opt/pte/global", dirs[len(dirs)-1])

	t.Setenv(GlobalPluginDirEnv, "")
	for _, dir := range DefaultPluginDirs(context.Background(), EnvGlobalDir) {
		assert.NotEqual(t, "/opt/pte/global", dir)
	}
}
