package plugins

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/AdamManuel-dev/prompt-template-engine-sub000/pkg/commands"
	"github.com/AdamManuel-dev/prompt-template-engine-sub000/pkg/module"
	"github.com/AdamManuel-dev/prompt-template-engine-sub000/pkg/module/lua"
	"github.com/AdamManuel-dev/prompt-template-engine-sub000/pkg/observability"
)

const (
	// CommandsDir is the per-plugin directory scanned for command modules
	CommandsDir = "commands"

	// maxProbeConcurrency bounds concurrent subdirectory probes per search directory
	maxProbeConcurrency = 8
)

// indexModules are the entry modules Load imports for exported commands
var indexModules = []string{"index.lua", "index.yaml", "index.yml", "index.json"}

// DependencyChecker verifies a plugin's declared dependencies
type DependencyChecker interface {
	Check(p *Plugin) error
}

// Loader discovers plugins in search directories and loads their commands
type Loader struct {
	registry  *commands.Registry
	importer  commands.Importer
	deps      DependencyChecker
	validator *Validator
	global    GlobalDirResolver
	log       *logrus.Logger
	metrics   *observability.Metrics
	defaults  bool

	mu      sync.RWMutex
	dirs    []string
	plugins map[string]*Plugin
	order   []string
	owned   map[string][]string // plugin -> commands it registered
	ownerOf map[string]string   // command -> plugin
}

// LoaderOption configures a Loader
type LoaderOption func(*Loader)

// WithLogger sets the loader logger
func WithLogger(log *logrus.Logger) LoaderOption {
	return func(l *Loader) {
		if log != nil {
			l.log = log
		}
	}
}

// WithImporter sets the module importer for entry modules
func WithImporter(importer commands.Importer) LoaderOption {
	return func(l *Loader) {
		if importer != nil {
			l.importer = importer
		}
	}
}

// WithDependencyChecker replaces the default dependency resolver
func WithDependencyChecker(deps DependencyChecker) LoaderOption {
	return func(l *Loader) {
		l.deps = deps
	}
}

// WithValidator enables security scanning of discovered plugins
func WithValidator(v *Validator) LoaderOption {
	return func(l *Loader) {
		l.validator = v
	}
}

// WithMetrics records discovery and load metrics
func WithMetrics(m *observability.Metrics) LoaderOption {
	return func(l *Loader) {
		l.metrics = m
	}
}

// WithGlobalDirResolver sets how the global plugin directory is found
func WithGlobalDirResolver(r GlobalDirResolver) LoaderOption {
	return func(l *Loader) {
		l.global = r
	}
}

// WithoutDefaultDirs leaves the search path empty until AddPluginDir is called
func WithoutDefaultDirs() LoaderOption {
	return func(l *Loader) {
		l.defaults = false
	}
}

// WithPluginDirs adds search directories after the defaults
func WithPluginDirs(dirs ...string) LoaderOption {
	return func(l *Loader) {
		l.dirs = append(l.dirs, dirs...)
	}
}

// NewLoader creates a loader that registers plugin commands into registry
func NewLoader(registry *commands.Registry, opts ...LoaderOption) *Loader {
	l := &Loader{
		registry: registry,
		global:   EnvGlobalDir,
		log:      logrus.New(),
		defaults: true,
		plugins:  make(map[string]*Plugin),
		owned:    make(map[string][]string),
		ownerOf:  make(map[string]string),
	}

	for _, opt := range opts {
		opt(l)
	}

	if l.registry == nil {
		l.registry = commands.NewRegistry(nil, commands.WithLogger(l.log))
	}
	if l.importer == nil {
		l.importer = module.NewImporter(module.WithLogger(l.log), module.WithMetrics(l.metrics))
	}

	extra := l.dirs
	l.dirs = nil
	var seed []string
	if l.defaults {
		seed = DefaultPluginDirs(context.Background(), l.global)
	}
	for _, dir := range append(seed, extra...) {
		l.AddPluginDir(dir)
	}

	if l.deps == nil {
		var packageDirs []string
		if l.global != nil {
			if dir, err := l.global(context.Background()); err == nil && dir != "" {
				packageDirs = append(packageDirs, dir)
			}
		}
		l.deps = NewDependencyResolver(l.versionOf, packageDirs...)
	}

	return l
}

// Registry returns the command registry plugins register into
func (l *Loader) Registry() *commands.Registry {
	return l.registry
}

// Importer returns the module importer used for entry modules
func (l *Loader) Importer() commands.Importer {
	return l.importer
}

// AddPluginDir adds a search directory after vetting it. Rejected and
// duplicate directories are dropped.
func (l *Loader) AddPluginDir(dir string) bool {
	abs, err := VetPluginDir(dir)
	if err != nil {
		l.log.WithError(err).WithField("dir", dir).Warn("Rejected plugin directory")
		return false
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	for _, existing := range l.dirs {
		if existing == abs {
			return false
		}
	}
	l.dirs = append(l.dirs, abs)
	return true
}

// Dirs returns the search directories in order
func (l *Loader) Dirs() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]string(nil), l.dirs...)
}

// Discover scans every search directory concurrently and records the parsed
// plugins by name. Plugins found in later directories replace same-named ones
// from earlier directories, except that a loaded plugin is kept as is.
func (l *Loader) Discover(ctx context.Context) []*Plugin {
	dirs := l.Dirs()
	found := make([][]*Plugin, len(dirs))

	g, gctx := errgroup.WithContext(ctx)
	for i, dir := range dirs {
		i, dir := i, dir
		g.Go(func() error {
			found[i] = l.scanDir(gctx, dir)
			return nil
		})
	}
	_ = g.Wait()

	l.mu.Lock()
	defer l.mu.Unlock()

	var discovered []*Plugin
	for _, batch := range found {
		for _, p := range batch {
			existing, ok := l.plugins[p.Name()]
			if ok && existing.Loaded() {
				if existing.Path != p.Path {
					l.log.WithField("plugin", p.Name()).Debugf("Keeping loaded plugin from %s over %s", existing.Path, p.Path)
				}
				discovered = append(discovered, existing)
				continue
			}
			if !ok {
				l.order = append(l.order, p.Name())
			}
			l.plugins[p.Name()] = p
			discovered = append(discovered, p)
		}
	}

	l.log.Debugf("Discovered %d plugins in %d directories", len(discovered), len(dirs))
	return discovered
}

// scanDir probes the immediate subdirectories of dir
func (l *Loader) scanDir(ctx context.Context, dir string) []*Plugin {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			l.log.Debugf("Plugin directory does not exist: %s", dir)
		} else {
			l.log.Warnf("Failed to read plugin directory %s: %v", dir, err)
		}
		return nil
	}

	probed := make([]*Plugin, len(entries))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxProbeConcurrency)
	for i, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		i, pluginDir := i, filepath.Join(dir, entry.Name())
		g.Go(func() error {
			probed[i] = l.probe(gctx, pluginDir)
			return nil
		})
	}
	_ = g.Wait()

	plugins := make([]*Plugin, 0, len(probed))
	for _, p := range probed {
		if p != nil {
			plugins = append(plugins, p)
		}
	}
	return plugins
}

// probe reads and vets a single plugin directory
func (l *Loader) probe(ctx context.Context, pluginDir string) *Plugin {
	meta, source, err := ReadMetadata(pluginDir)
	if errors.Is(err, ErrNoMetadata) {
		l.log.Debugf("Skipping %s: no plugin metadata", pluginDir)
		l.recordDiscovery("skipped")
		return nil
	}
	if err != nil {
		l.log.WithError(err).WithField("dir", pluginDir).Warn("Invalid plugin metadata")
		l.recordDiscovery("invalid")
		return nil
	}

	p := &Plugin{
		Metadata:     meta,
		Path:         pluginDir,
		Source:       source,
		DiscoveredAt: time.Now(),
	}

	if l.validator != nil {
		for _, problem := range l.validator.ValidateMetadata(meta) {
			if problem.Severity == "warning" {
				l.log.WithField("plugin", meta.Name).Debugf("Metadata warning: %s", problem.Error())
			}
		}

		issues, err := l.validator.ScanForSecurityIssues(ctx, pluginDir)
		if err != nil {
			l.log.WithError(err).WithField("plugin", meta.Name).Warn("Security scan failed")
		}
		p.SecurityIssues = issues
		for _, issue := range issues {
			if issue.Severity == "high" || issue.Severity == "critical" {
				l.log.WithFields(logrus.Fields{
					"plugin":   meta.Name,
					"file":     issue.File,
					"line":     issue.Line,
					"category": issue.Category,
				}).Warn(issue.Description)
			}
		}
	}

	l.recordDiscovery("valid")
	return p
}

func (l *Loader) recordDiscovery(status string) {
	if l.metrics != nil {
		l.metrics.PluginsDiscoveredTotal.WithLabelValues(status).Inc()
	}
}

// Load loads a discovered plugin's commands. It is idempotent and returns
// false when the plugin is unknown or fails to load; the failure is recorded
// on the plugin.
func (l *Loader) Load(ctx context.Context, name string) bool {
	p, ok := l.Plugin(name)
	if !ok {
		l.log.WithField("plugin", name).Warn("Plugin not found")
		return false
	}
	if p.Loaded() {
		return true
	}

	log := observability.PluginLogger(l.log, name)

	if err := l.CheckDependencies(p); err != nil {
		log.WithError(err).Warn("Failed to load plugin")
		l.metrics.RecordPluginLoad(err)
		return false
	}

	var exported []*commands.Command
	if entry := l.findEntry(p, indexModules); entry != "" {
		exports, err := l.importer.Import(ctx, entry)
		if err != nil {
			err = fmt.Errorf("import %s: %w", filepath.Base(entry), err)
			p.setError(err)
			log.WithError(err).Warn("Failed to load plugin")
			l.metrics.RecordPluginLoad(err)
			return false
		}
		if cmds, ok := exports[lua.ExportCommands].([]*commands.Command); ok {
			exported = cmds
		}
	}

	registered := l.LoadCommands(ctx, p, exported)
	p.setLoaded(true)
	l.metrics.RecordPluginLoad(nil)

	log.Infof("Loaded plugin %s v%s with %d commands", name, p.Metadata.Version, len(registered))
	return true
}

// LoadAll loads every discovered plugin sequentially in discovery order and
// returns the names that loaded
func (l *Loader) LoadAll(ctx context.Context) []string {
	var loaded []string
	for _, p := range l.Plugins() {
		if ctx.Err() != nil {
			break
		}
		if l.Load(ctx, p.Name()) {
			loaded = append(loaded, p.Name())
		}
	}
	return loaded
}

// Unload marks a plugin unloaded and retracts the commands it registered.
// It returns false when the plugin is unknown or not loaded.
func (l *Loader) Unload(name string) bool {
	p, ok := l.Plugin(name)
	if !ok || !p.Loaded() {
		return false
	}

	retracted := l.RetractCommands(name)
	p.setLoaded(false)

	l.log.WithField("plugin", name).Infof("Unloaded plugin, retracted %d commands", len(retracted))
	return true
}

// Plugins returns the discovered plugins in first-discovery order
func (l *Loader) Plugins() []*Plugin {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]*Plugin, 0, len(l.order))
	for _, name := range l.order {
		out = append(out, l.plugins[name])
	}
	return out
}

// Plugin returns a discovered plugin by name
func (l *Loader) Plugin(name string) (*Plugin, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	p, ok := l.plugins[name]
	return p, ok
}

// CheckDependencies resolves p's declared dependencies and records a failure on p
func (l *Loader) CheckDependencies(p *Plugin) error {
	if l.deps == nil || len(p.Metadata.Dependencies) == 0 {
		return nil
	}
	if err := l.deps.Check(p); err != nil {
		p.setError(err)
		return err
	}
	return nil
}

// LoadCommands registers a plugin's commands directory and extra commands,
// recording the plugin as their owner. It returns the names registered.
func (l *Loader) LoadCommands(ctx context.Context, p *Plugin, extra []*commands.Command) []string {
	log := observability.PluginLogger(l.log, p.Name())

	var names []string
	if p.Path != "" {
		names = l.registry.Discover(ctx, []string{filepath.Join(p.Path, CommandsDir)})
	}
	for _, cmd := range extra {
		if err := l.registry.Register(cmd); err != nil {
			log.WithError(err).Warn("Skipping invalid command")
			continue
		}
		names = append(names, cmd.Name)
	}

	l.track(p.Name(), names)
	return names
}

// RetractCommands unregisters the commands a plugin registered and that no
// other plugin has since taken over
func (l *Loader) RetractCommands(plugin string) []string {
	l.mu.Lock()
	names := l.owned[plugin]
	delete(l.owned, plugin)
	var retract []string
	for _, name := range names {
		if l.ownerOf[name] == plugin {
			delete(l.ownerOf, name)
			retract = append(retract, name)
		}
	}
	l.mu.Unlock()

	for _, name := range retract {
		l.registry.Unregister(name)
	}
	return retract
}

// CommandOwner returns the plugin that registered a command
func (l *Loader) CommandOwner(command string) (string, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	owner, ok := l.ownerOf[command]
	return owner, ok
}

func (l *Loader) track(plugin string, names []string) {
	if len(names) == 0 {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	for _, name := range names {
		if prev, ok := l.ownerOf[name]; ok && prev != plugin {
			l.owned[prev] = removeString(l.owned[prev], name)
		}
		l.ownerOf[name] = plugin
		if !containsString(l.owned[plugin], name) {
			l.owned[plugin] = append(l.owned[plugin], name)
		}
	}
}

// remember records a plugin that was not found by discovery
func (l *Loader) remember(p *Plugin) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.plugins[p.Name()]; !ok {
		l.order = append(l.order, p.Name())
	}
	l.plugins[p.Name()] = p
}

// findEntry returns the first existing module among the declared main and
// candidates, relative to the plugin directory
func (l *Loader) findEntry(p *Plugin, candidates []string) string {
	if main := p.Metadata.Main; main != "" {
		path, err := withinDir(p.Path, main)
		if err != nil {
			l.log.WithError(err).WithField("plugin", p.Name()).Warn("Ignoring main module")
		} else if module.Exists(path) {
			return path
		}
	}
	for _, name := range candidates {
		path := filepath.Join(p.Path, name)
		if module.Exists(path) {
			return path
		}
	}
	return ""
}

func (l *Loader) versionOf(name string) (string, bool) {
	p, ok := l.Plugin(name)
	if !ok {
		return "", false
	}
	return p.Metadata.Version, true
}

// withinDir joins rel onto dir and rejects results outside dir
func withinDir(dir, rel string) (string, error) {
	if filepath.IsAbs(rel) {
		return "", fmt.Errorf("%w: %s is absolute", ErrUnsafePath, rel)
	}
	path := filepath.Join(dir, rel)
	r, err := filepath.Rel(dir, path)
	if err != nil || r == ".." || len(r) > 2 && r[:3] == ".."+string(filepath.Separator) {
		return "", fmt.Errorf("%w: %s escapes the plugin directory", ErrUnsafePath, rel)
	}
	return path, nil
}

func containsString(items []string, s string) bool {
	for _, item := range items {
		if item == s {
			return true
		}
	}
	return false
}

func removeString(items []string, s string) []string {
	out := items[:0]
	for _, item := range items {
		if item != s {
			out = append(out, item)
		}
	}
	return out
}
