package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AdamManuel-dev/prompt-template-engine-sub000/pkg/module"
	"github.com/AdamManuel-dev/prompt-template-engine-sub000/pkg/plugins"
)

var pteEnv = []string{
	ConfigFileEnv,
	"PTE_PLUGIN_DIRS",
	"PTE_DEFAULT_PLUGIN_DIRS",
	plugins.GlobalPluginDirEnv,
	"PTE_GLOBAL_DIR_COMMAND",
	"PTE_IMPORT_TIMEOUT",
	"PTE_HOOK_TIMEOUT",
	"PTE_WATCH",
	"PTE_WATCH_DEBOUNCE",
	"PTE_VERIFY_PLUGINS",
	"PTE_MODULE_CACHE_SIZE",
	"PTE_MODULE_CACHE_TTL",
	"PTE_CATALOG_DIR",
	"PTE_TEMPLATE_DIR",
	"PTE_MARKETPLACE_PLUGIN_DIR",
	"PTE_LOG_LEVEL",
	"PTE_LOG_FORMAT",
	"PTE_METRICS_ENABLED",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range pteEnv {
		t.Setenv(key, "")
	}
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestGetEnv(t *testing.T) {
	tests := []struct {
		name         string
		envValue     string
		defaultValue string
		want         string
	}{
		{"returns env value when set", "custom", "default", "custom"},
		{"returns default when env not set", "", "default", "default"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("PTE_TEST_VAR", tt.envValue)
			assert.Equal(t, tt.want, getEnv("PTE_TEST_VAR", tt.defaultValue))
		})
	}
}

func TestGetEnvBool(t *testing.T) {
	tests := []struct {
		name         string
		envValue     string
		defaultValue bool
		want         bool
	}{
		{"true lowercase", "true", false, true},
		{"true uppercase", "TRUE", false, true},
		{"one", "1", false, true},
		{"false", "false", true, false},
		{"zero", "0", true, false},
		{"garbage is false", "yes", true, false},
		{"default when unset", "", true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("PTE_TEST_BOOL", tt.envValue)
			assert.Equal(t, tt.want, getEnvBool("PTE_TEST_BOOL", tt.defaultValue))
		})
	}
}

func TestGetEnvInt(t *testing.T) {
	tests := []struct {
		name         string
		envValue     string
		defaultValue int
		want         int
	}{
		{"valid", "42", 0, 42},
		{"negative", "-7", 0, -7},
		{"invalid falls back", "many", 9, 9},
		{"default when unset", "", 9, 9},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("PTE_TEST_INT", tt.envValue)
			assert.Equal(t, tt.want, getEnvInt("PTE_TEST_INT", tt.defaultValue))
		})
	}
}

func TestGetEnvDuration(t *testing.T) {
	tests := []struct {
		name         string
		envValue     string
		defaultValue time.Duration
		want         time.Duration
	}{
		{"seconds", "30s", time.Second, 30 * time.Second},
		{"minutes", "5m", time.Second, 5 * time.Minute},
		{"compound", "1h30m", time.Second, 90 * time.Minute},
		{"invalid falls back", "soon", time.Second, time.Second},
		{"default when unset", "", time.Second, time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("PTE_TEST_DURATION", tt.envValue)
			assert.Equal(t, tt.want, getEnvDuration("PTE_TEST_DURATION", tt.defaultValue))
		})
	}
}

func TestLoadConfig_Defaults(t *testing.T) {
	clearEnv(t)
	t.Chdir(t.TempDir())

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.True(t, cfg.Plugins.DefaultDirs)
	assert.True(t, cfg.Plugins.Verify)
	assert.False(t, cfg.Plugins.Watch)
	assert.Equal(t, plugins.DefaultImportTimeout, cfg.Plugins.ImportTimeout)
	assert.Equal(t, plugins.DefaultHookTimeout, cfg.Plugins.HookTimeout)
	assert.Equal(t, module.DefaultCacheSize, cfg.Modules.CacheSize)
	assert.Equal(t, module.DefaultCacheTTL, cfg.Modules.CacheTTL)
	assert.Equal(t, plugins.ProjectPluginDir, cfg.Marketplace.PluginDir)
	assert.NotEmpty(t, cfg.Marketplace.CatalogDir)
	assert.Equal(t, "info", cfg.Observability.LogLevel)
	assert.Equal(t, "text", cfg.Observability.LogFormat)
	assert.True(t, cfg.Observability.MetricsEnabled)
}

func TestLoadConfig_DefaultFile(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	t.Chdir(dir)

	require.NoError(t, os.MkdirAll(filepath.Join(dir, ".prompt-templates"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, DefaultConfigFile), []byte("plugins:\n  watch: true\n"), 0644))

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.True(t, cfg.Plugins.Watch)
}

func TestLoadConfig_File(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
plugins:
  dirs: [./one, ./two]
  default_dirs: false
  global_dir_command: [npm, root, -g]
  import_timeout: 3s
  hook_timeout: 1m
  watch: true
  watch_debounce: 250ms
modules:
  cache_size: 0
  cache_ttl: 0s
marketplace:
  catalog_dir: /srv/catalog
  template_dir: tpl
observability:
  log_level: debug
  log_format: json
  metrics_enabled: false
`)
	t.Setenv(ConfigFileEnv, path)

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, []string{"./one", "./two"}, cfg.Plugins.Dirs)
	assert.False(t, cfg.Plugins.DefaultDirs)
	assert.Equal(t, []string{"npm", "root", "-g"}, cfg.Plugins.GlobalDirCommand)
	assert.Equal(t, 3*time.Second, cfg.Plugins.ImportTimeout)
	assert.Equal(t, time.Minute, cfg.Plugins.HookTimeout)
	assert.True(t, cfg.Plugins.Watch)
	assert.Equal(t, 250*time.Millisecond, cfg.Plugins.WatchDebounce)
	assert.Zero(t, cfg.Modules.CacheSize)
	assert.Equal(t, "/srv/catalog", cfg.Marketplace.CatalogDir)
	assert.Equal(t, "tpl", cfg.Marketplace.TemplateDir)
	assert.Equal(t, plugins.ProjectPluginDir, cfg.Marketplace.PluginDir)
	assert.Equal(t, "debug", cfg.Observability.LogLevel)
	assert.Equal(t, "json", cfg.Observability.LogFormat)
	assert.False(t, cfg.Observability.MetricsEnabled)
}

func TestLoadConfig_EnvOverridesFile(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
plugins:
  dirs: [./from-file]
  hook_timeout: 1m
observability:
  log_format: json
`)
	t.Setenv(ConfigFileEnv, path)
	t.Setenv("PTE_PLUGIN_DIRS", "./a"+string(os.PathListSeparator)+"./b")
	t.Setenv("PTE_HOOK_TIMEOUT", "5s")
	t.Setenv("PTE_LOG_FORMAT", "text")
	t.Setenv("PTE_GLOBAL_DIR_COMMAND", "yarn global dir")
	t.Setenv("PTE_MODULE_CACHE_SIZE", "16")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, []string{"./a", "./b"}, cfg.Plugins.Dirs)
	assert.Equal(t, 5*time.Second, cfg.Plugins.HookTimeout)
	assert.Equal(t, "text", cfg.Observability.LogFormat)
	assert.Equal(t, []string{"yarn", "global", "dir"}, cfg.Plugins.GlobalDirCommand)
	assert.Equal(t, 16, cfg.Modules.CacheSize)
}

func TestLoadConfig_Errors(t *testing.T) {
	t.Run("explicit file missing", func(t *testing.T) {
		clearEnv(t)
		t.Setenv(ConfigFileEnv, filepath.Join(t.TempDir(), "missing.yaml"))
		_, err := LoadConfig()
		assert.ErrorIs(t, err, os.ErrNotExist)
	})

	t.Run("malformed yaml", func(t *testing.T) {
		clearEnv(t)
		t.Setenv(ConfigFileEnv, writeConfig(t, "plugins: [unclosed"))
		_, err := LoadConfig()
		assert.ErrorContains(t, err, "parse config")
	})

	t.Run("invalid values", func(t *testing.T) {
		clearEnv(t)
		t.Chdir(t.TempDir())
		t.Setenv("PTE_LOG_FORMAT", "xml")
		_, err := LoadConfig()
		assert.ErrorContains(t, err, "configuration validation failed")
	})
}

func TestLoadFile(t *testing.T) {
	clearEnv(t)
	cfg, err := LoadFile(writeConfig(t, "modules:\n  cache_size: 4\n"))
	require.NoError(t, err)
	assert.Equal(t, 4, cfg.Modules.CacheSize)

	_, err = LoadFile(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"defaults", func(c *Config) {}, ""},
		{"zero import timeout", func(c *Config) { c.Plugins.ImportTimeout = 0 }, "import timeout must be positive"},
		{"negative hook timeout", func(c *Config) { c.Plugins.HookTimeout = -time.Second }, "hook timeout must be positive"},
		{"watch without debounce", func(c *Config) {
			c.Plugins.Watch = true
			c.Plugins.WatchDebounce = 0
		}, "watch debounce must be positive when watching is enabled"},
		{"debounce ignored without watch", func(c *Config) { c.Plugins.WatchDebounce = 0 }, ""},
		{"blank plugin dir", func(c *Config) { c.Plugins.Dirs = []string{"ok", " "} }, "plugin directories must not be empty"},
		{"negative cache size", func(c *Config) { c.Modules.CacheSize = -1 }, "module cache size must not be negative"},
		{"negative cache ttl", func(c *Config) { c.Modules.CacheTTL = -time.Minute }, "module cache TTL must not be negative"},
		{"missing catalog", func(c *Config) { c.Marketplace.CatalogDir = "" }, "marketplace catalog directory is required"},
		{"missing template dir", func(c *Config) { c.Marketplace.TemplateDir = "" }, "marketplace template directory is required"},
		{"json format", func(c *Config) { c.Observability.LogFormat = "JSON" }, ""},
		{"unknown format", func(c *Config) { c.Observability.LogFormat = "xml" }, "invalid log format: xml (must be text or json)"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.EqualError(t, err, tt.wantErr)
		})
	}
}

func TestGlobalDirResolver(t *testing.T) {
	t.Setenv(plugins.GlobalPluginDirEnv, "")

	cfg := Default()
	cfg.Plugins.GlobalDir = "/opt/pte"
	dir, err := cfg.GlobalDirResolver()(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "/opt/pte", dir)

	cfg = Default()
	dir, err = cfg.GlobalDirResolver()(context.Background())
	require.NoError(t, err)
	assert.Empty(t, dir)
}
