package module

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/sirupsen/logrus"

	"github.com/AdamManuel-dev/prompt-template-engine-sub000/pkg/commands"
	"github.com/AdamManuel-dev/prompt-template-engine-sub000/pkg/module/lua"
	"github.com/AdamManuel-dev/prompt-template-engine-sub000/pkg/observability"
)

// Default cache settings
const (
	DefaultCacheSize = 128
	DefaultCacheTTL  = 10 * time.Minute
)

// Module formats
const (
	FormatBuiltin     = "builtin"
	FormatLua         = "lua"
	FormatDeclarative = "declarative"
)

// Importer resolves module files into exports. Results are cached by path,
// modification time and size, so an edited file is imported again.
type Importer struct {
	log     *logrus.Logger
	metrics *observability.Metrics
	cache   *expirable.LRU[string, commands.Exports]
}

// Option configures an Importer
type Option func(*importerConfig)

type importerConfig struct {
	log       *logrus.Logger
	metrics   *observability.Metrics
	cacheSize int
	cacheTTL  time.Duration
}

// WithLogger sets the importer logger
func WithLogger(log *logrus.Logger) Option {
	return func(c *importerConfig) {
		if log != nil {
			c.log = log
		}
	}
}

// WithMetrics records import durations
func WithMetrics(m *observability.Metrics) Option {
	return func(c *importerConfig) {
		c.metrics = m
	}
}

// WithCache sets the module cache size and TTL. A size of 0 disables caching.
func WithCache(size int, ttl time.Duration) Option {
	return func(c *importerConfig) {
		c.cacheSize = size
		c.cacheTTL = ttl
	}
}

// NewImporter creates a module importer
func NewImporter(opts ...Option) *Importer {
	cfg := &importerConfig{
		log:       logrus.New(),
		cacheSize: DefaultCacheSize,
		cacheTTL:  DefaultCacheTTL,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	i := &Importer{log: cfg.log, metrics: cfg.metrics}
	if cfg.cacheSize > 0 {
		i.cache = expirable.NewLRU[string, commands.Exports](cfg.cacheSize, nil, cfg.cacheTTL)
	}
	return i
}

// Import loads the module at path. Builtin registrations take precedence
// over files on disk.
func (i *Importer) Import(ctx context.Context, path string) (commands.Exports, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve module path: %w", err)
	}

	if exports, ok := lookupBuiltin(abs); ok {
		return exports, nil
	}

	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrModuleNotFound, path)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%w: %s is a directory", ErrModuleNotFound, path)
	}

	key := fmt.Sprintf("%s|%d|%d", abs, info.ModTime().UnixNano(), info.Size())
	if i.cache != nil {
		if exports, ok := i.cache.Get(key); ok {
			return exports, nil
		}
	}

	format := Format(abs)
	started := time.Now()

	var exports commands.Exports
	switch format {
	case FormatLua:
		var m *lua.Module
		m, err = lua.Load(ctx, abs)
		if err == nil {
			exports = m.Exports()
		}
	case FormatDeclarative:
		exports, err = loadDeclarative(abs)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Ext(abs))
	}

	if i.metrics != nil {
		i.metrics.ModuleImportDuration.WithLabelValues(format).Observe(time.Since(started).Seconds())
	}
	if err != nil {
		return nil, fmt.Errorf("import %s: %w", path, err)
	}

	i.log.WithFields(logrus.Fields{
		"module": abs,
		"format": format,
	}).Debug("Imported module")

	if i.cache != nil {
		i.cache.Add(key, exports)
	}
	return exports, nil
}

// Invalidate drops every cached import of path
func (i *Importer) Invalidate(path string) {
	if i.cache == nil {
		return
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return
	}
	prefix := abs + "|"
	for _, key := range i.cache.Keys() {
		if strings.HasPrefix(key, prefix) {
			i.cache.Remove(key)
		}
	}
}

// Purge empties the module cache
func (i *Importer) Purge() {
	if i.cache != nil {
		i.cache.Purge()
	}
}

// Format returns the module format for path based on its extension
func Format(path string) string {
	if _, ok := lookupBuiltin(path); ok {
		return FormatBuiltin
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".lua":
		return FormatLua
	case ".yaml", ".yml", ".json":
		return FormatDeclarative
	default:
		return ""
	}
}

// Exists reports whether path names an importable module
func Exists(path string) bool {
	abs, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	if _, ok := lookupBuiltin(abs); ok {
		return true
	}
	info, err := os.Stat(abs)
	return err == nil && !info.IsDir() && Format(abs) != ""
}
