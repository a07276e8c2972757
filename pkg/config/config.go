package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/AdamManuel-dev/prompt-template-engine-sub000/pkg/marketplace"
	"github.com/AdamManuel-dev/prompt-template-engine-sub000/pkg/module"
	"github.com/AdamManuel-dev/prompt-template-engine-sub000/pkg/observability"
	"github.com/AdamManuel-dev/prompt-template-engine-sub000/pkg/plugins"
)

// DefaultConfigFile is read when PTE_CONFIG is unset and the file exists
const DefaultConfigFile = ".prompt-templates/config.yaml"

// ConfigFileEnv names an explicit configuration file
const ConfigFileEnv = "PTE_CONFIG"

// Config holds all application configuration
type Config struct {
	// Plugin discovery and lifecycle
	Plugins PluginConfig `yaml:"plugins"`

	// Module import cache
	Modules ModuleConfig `yaml:"modules"`

	// Marketplace catalog and install locations
	Marketplace MarketplaceConfig `yaml:"marketplace"`

	// Observability configuration
	Observability ObservabilityConfig `yaml:"observability"`
}

// PluginConfig holds plugin discovery settings
type PluginConfig struct {
	// Extra search directories, searched after the defaults
	Dirs []string `yaml:"dirs"`

	// DefaultDirs includes the project, home and global directories
	DefaultDirs bool `yaml:"default_dirs"`

	// GlobalDir overrides the global plugin directory
	GlobalDir string `yaml:"global_dir"`

	// GlobalDirCommand prints the package manager's global directory, e.g. "npm root -g"
	GlobalDirCommand []string `yaml:"global_dir_command"`

	ImportTimeout time.Duration `yaml:"import_timeout"`
	HookTimeout   time.Duration `yaml:"hook_timeout"`

	// Watch reloads plugins when their directories change
	Watch         bool          `yaml:"watch"`
	WatchDebounce time.Duration `yaml:"watch_debounce"`

	// Verify scans discovered plugins for security issues
	Verify bool `yaml:"verify"`
}

// ModuleConfig holds module importer settings
type ModuleConfig struct {
	CacheSize int           `yaml:"cache_size"`
	CacheTTL  time.Duration `yaml:"cache_ttl"`
}

// MarketplaceConfig holds marketplace settings
type MarketplaceConfig struct {
	// CatalogDir is the root of the local catalog
	CatalogDir  string `yaml:"catalog_dir"`
	TemplateDir string `yaml:"template_dir"`
	PluginDir   string `yaml:"plugin_dir"`
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	LogLevel       string `yaml:"log_level"`
	LogFormat      string `yaml:"log_format"`
	MetricsEnabled bool   `yaml:"metrics_enabled"`
}

// Default returns the configuration used when nothing is set
func Default() *Config {
	return &Config{
		Plugins: PluginConfig{
			DefaultDirs:   true,
			ImportTimeout: plugins.DefaultImportTimeout,
			HookTimeout:   plugins.DefaultHookTimeout,
			WatchDebounce: plugins.DefaultDebounce,
			Verify:        true,
		},
		Modules: ModuleConfig{
			CacheSize: module.DefaultCacheSize,
			CacheTTL:  module.DefaultCacheTTL,
		},
		Marketplace: MarketplaceConfig{
			CatalogDir:  defaultCatalogDir(),
			TemplateDir: marketplace.DefaultTemplateDir,
			PluginDir:   plugins.ProjectPluginDir,
		},
		Observability: ObservabilityConfig{
			LogLevel:       "info",
			LogFormat:      string(observability.TextFormat),
			MetricsEnabled: true,
		},
	}
}

// LoadConfig loads the configuration file, if any, and applies environment overrides
func LoadConfig() (*Config, error) {
	cfg := Default()

	path, explicit := configPath()
	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			if explicit || !errors.Is(err, os.ErrNotExist) {
				return nil, err
			}
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// LoadFile loads configuration from a YAML file and applies environment overrides
func LoadFile(path string) (*Config, error) {
	cfg := Default()
	if err := cfg.loadFile(path); err != nil {
		return nil, err
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func configPath() (string, bool) {
	if path := os.Getenv(ConfigFileEnv); path != "" {
		return path, true
	}
	return DefaultConfigFile, false
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

// applyEnv overrides file values with PTE_* environment variables
func (c *Config) applyEnv() {
	if dirs := getEnv("PTE_PLUGIN_DIRS", ""); dirs != "" {
		c.Plugins.Dirs = filepath.SplitList(dirs)
	}
	c.Plugins.DefaultDirs = getEnvBool("PTE_DEFAULT_PLUGIN_DIRS", c.Plugins.DefaultDirs)
	c.Plugins.GlobalDir = getEnv(plugins.GlobalPluginDirEnv, c.Plugins.GlobalDir)
	if command := getEnv("PTE_GLOBAL_DIR_COMMAND", ""); command != "" {
		c.Plugins.GlobalDirCommand = strings.Fields(command)
	}
	c.Plugins.ImportTimeout = getEnvDuration("PTE_IMPORT_TIMEOUT", c.Plugins.ImportTimeout)
	c.Plugins.HookTimeout = getEnvDuration("PTE_HOOK_TIMEOUT", c.Plugins.HookTimeout)
	c.Plugins.Watch = getEnvBool("PTE_WATCH", c.Plugins.Watch)
	c.Plugins.WatchDebounce = getEnvDuration("PTE_WATCH_DEBOUNCE", c.Plugins.WatchDebounce)
	c.Plugins.Verify = getEnvBool("PTE_VERIFY_PLUGINS", c.Plugins.Verify)

	c.Modules.CacheSize = getEnvInt("PTE_MODULE_CACHE_SIZE", c.Modules.CacheSize)
	c.Modules.CacheTTL = getEnvDuration("PTE_MODULE_CACHE_TTL", c.Modules.CacheTTL)

	c.Marketplace.CatalogDir = getEnv("PTE_CATALOG_DIR", c.Marketplace.CatalogDir)
	c.Marketplace.TemplateDir = getEnv("PTE_TEMPLATE_DIR", c.Marketplace.TemplateDir)
	c.Marketplace.PluginDir = getEnv("PTE_MARKETPLACE_PLUGIN_DIR", c.Marketplace.PluginDir)

	c.Observability.LogLevel = getEnv("PTE_LOG_LEVEL", c.Observability.LogLevel)
	c.Observability.LogFormat = getEnv("PTE_LOG_FORMAT", c.Observability.LogFormat)
	c.Observability.MetricsEnabled = getEnvBool("PTE_METRICS_ENABLED", c.Observability.MetricsEnabled)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Plugins.ImportTimeout <= 0 {
		return fmt.Errorf("import timeout must be positive")
	}
	if c.Plugins.HookTimeout <= 0 {
		return fmt.Errorf("hook timeout must be positive")
	}
	if c.Plugins.Watch && c.Plugins.WatchDebounce <= 0 {
		return fmt.Errorf("watch debounce must be positive when watching is enabled")
	}
	for _, dir := range c.Plugins.Dirs {
		if strings.TrimSpace(dir) == "" {
			return fmt.Errorf("plugin directories must not be empty")
		}
	}

	if c.Modules.CacheSize < 0 {
		return fmt.Errorf("module cache size must not be negative")
	}
	if c.Modules.CacheTTL < 0 {
		return fmt.Errorf("module cache TTL must not be negative")
	}

	if c.Marketplace.CatalogDir == "" {
		return fmt.Errorf("marketplace catalog directory is required")
	}
	if c.Marketplace.TemplateDir == "" {
		return fmt.Errorf("marketplace template directory is required")
	}

	switch observability.LogFormat(strings.ToLower(c.Observability.LogFormat)) {
	case observability.TextFormat, observability.JSONFormat:
	default:
		return fmt.Errorf("invalid log format: %s (must be text or json)", c.Observability.LogFormat)
	}

	return nil
}

// GlobalDirResolver returns the resolver matching the global directory settings
func (c *Config) GlobalDirResolver() plugins.GlobalDirResolver {
	if c.Plugins.GlobalDir != "" {
		dir := c.Plugins.GlobalDir
		return func(_ context.Context) (string, error) { return dir, nil }
	}
	return plugins.PackageManagerGlobalDir(c.Plugins.GlobalDirCommand)
}

func defaultCatalogDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".prompt-templates", "catalog")
	}
	return filepath.Join(home, ".prompt-templates", "catalog")
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
