package plugins

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/AdamManuel-dev/prompt-template-engine-sub000/pkg/async"
	"github.com/AdamManuel-dev/prompt-template-engine-sub000/pkg/commands"
	"github.com/AdamManuel-dev/prompt-template-engine-sub000/pkg/extension"
	"github.com/AdamManuel-dev/prompt-template-engine-sub000/pkg/module/lua"
	"github.com/AdamManuel-dev/prompt-template-engine-sub000/pkg/observability"
)

const (
	// DefaultImportTimeout bounds a single entry module import
	DefaultImportTimeout = 10 * time.Second

	// DefaultHookTimeout bounds a single lifecycle hook or extension call
	DefaultHookTimeout = 30 * time.Second
)

// entryModules are probed in order when a plugin declares no main module
var entryModules = []string{"index.lua", "plugin.lua", "index.yaml", "plugin.yaml"}

// Manager loads enhanced plugins and owns the six extension points
type Manager struct {
	loader        *Loader
	log           *logrus.Logger
	metrics       *observability.Metrics
	importTimeout time.Duration
	hookTimeout   time.Duration

	processors       *extension.Point[extension.TemplateProcessor]
	validators       *extension.Point[extension.TemplateValidator]
	transformers     *extension.Point[extension.TemplateTransformer]
	marketplaceHooks *extension.Point[extension.MarketplaceHook]
	contextProviders *extension.Point[extension.ContextProvider]
	fileGenerators   *extension.Point[extension.FileGenerator]

	// opMu serializes register and unload
	opMu   sync.Mutex
	mu     sync.RWMutex
	loaded map[string]*EnhancedPlugin
	order  []string
	owners map[string]map[string]string // point -> extension -> plugin

	events subscribers
}

// ManagerOption configures a Manager
type ManagerOption func(*Manager)

// WithImportTimeout bounds each entry module import
func WithImportTimeout(d time.Duration) ManagerOption {
	return func(m *Manager) {
		if d > 0 {
			m.importTimeout = d
		}
	}
}

// WithHookTimeout bounds each lifecycle hook and extension call
func WithHookTimeout(d time.Duration) ManagerOption {
	return func(m *Manager) {
		if d > 0 {
			m.hookTimeout = d
		}
	}
}

// NewManager creates a manager on top of loader. The manager shares the
// loader's logger, metrics, command registry and importer.
func NewManager(loader *Loader, opts ...ManagerOption) *Manager {
	if loader == nil {
		loader = NewLoader(nil)
	}

	m := &Manager{
		loader:        loader,
		log:           loader.log,
		metrics:       loader.metrics,
		importTimeout: DefaultImportTimeout,
		hookTimeout:   DefaultHookTimeout,

		processors:       extension.NewPoint[extension.TemplateProcessor](lua.ExportProcessors),
		validators:       extension.NewPoint[extension.TemplateValidator](lua.ExportValidators),
		transformers:     extension.NewPoint[extension.TemplateTransformer](lua.ExportTransformers),
		marketplaceHooks: extension.NewPoint[extension.MarketplaceHook](lua.ExportMarketplaceHooks),
		contextProviders: extension.NewPoint[extension.ContextProvider](lua.ExportContextProviders),
		fileGenerators:   extension.NewPoint[extension.FileGenerator](lua.ExportFileGenerators),

		loaded: make(map[string]*EnhancedPlugin),
		owners: make(map[string]map[string]string),
	}
	m.events.log = m.log

	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Loader returns the underlying plugin loader
func (m *Manager) Loader() *Loader { return m.loader }

// Registry returns the command registry
func (m *Manager) Registry() *commands.Registry { return m.loader.registry }

// Processors returns the template processor extension point
func (m *Manager) Processors() *extension.Point[extension.TemplateProcessor] { return m.processors }

// Validators returns the template validator extension point
func (m *Manager) Validators() *extension.Point[extension.TemplateValidator] { return m.validators }

// Transformers returns the template transformer extension point
func (m *Manager) Transformers() *extension.Point[extension.TemplateTransformer] {
	return m.transformers
}

// MarketplaceHooks returns the marketplace hook extension point
func (m *Manager) MarketplaceHooks() *extension.Point[extension.MarketplaceHook] {
	return m.marketplaceHooks
}

// ContextProviders returns the context provider extension point
func (m *Manager) ContextProviders() *extension.Point[extension.ContextProvider] {
	return m.contextProviders
}

// FileGenerators returns the file generator extension point
func (m *Manager) FileGenerators() *extension.Point[extension.FileGenerator] {
	return m.fileGenerators
}

// Subscribe registers fn for plugin events and returns a function that
// removes it. fn runs synchronously on the goroutine that changed state.
func (m *Manager) Subscribe(fn func(Event)) func() {
	return m.events.subscribe(fn)
}

// DiscoverAndLoad discovers plugins, imports their entry modules
// concurrently and registers every plugin that resolves. It returns the
// plugins registered by this call.
func (m *Manager) DiscoverAndLoad(ctx context.Context) []*EnhancedPlugin {
	discovered := m.loader.Discover(ctx)

	// last discovery of a name wins
	byName := make(map[string]int, len(discovered))
	var candidates []*Plugin
	for _, p := range discovered {
		if i, ok := byName[p.Name()]; ok {
			candidates[i] = p
			continue
		}
		byName[p.Name()] = len(candidates)
		candidates = append(candidates, p)
	}

	var pending []*Plugin
	for _, p := range candidates {
		if m.isLoaded(p.Name()) {
			continue
		}
		if err := m.loader.CheckDependencies(p); err != nil {
			observability.PluginLogger(m.log, p.Name()).WithError(err).Warn("Skipping plugin with unresolved dependencies")
			m.metrics.RecordPluginLoad(err)
			m.events.emit(EventError, p.Name(), err)
			continue
		}
		pending = append(pending, p)
	}

	resolved := make([]*EnhancedPlugin, len(pending))
	failures := make([]error, len(pending))

	var g errgroup.Group
	for i, p := range pending {
		i, p := i, p
		g.Go(func() error {
			resolved[i], failures[i] = m.resolve(ctx, p)
			return nil
		})
	}
	_ = g.Wait()

	var registered []*EnhancedPlugin
	for i, ep := range resolved {
		if failures[i] != nil {
			p := pending[i]
			p.setError(failures[i])
			observability.PluginLogger(m.log, p.Name()).WithError(failures[i]).Warn("Failed to load plugin module")
			m.metrics.RecordPluginLoad(failures[i])
			m.events.emit(EventError, p.Name(), failures[i])
			continue
		}
		if err := m.RegisterPlugin(ctx, ep); err != nil {
			observability.PluginLogger(m.log, ep.Name()).WithError(err).Warn("Failed to register plugin")
			continue
		}
		registered = append(registered, ep)
	}

	m.log.Infof("Loaded %d of %d discovered plugins", len(registered), len(candidates))
	return registered
}

// resolve imports a plugin's entry module under the import timeout. A plugin
// without an entry module contributes only its commands directory.
func (m *Manager) resolve(ctx context.Context, p *Plugin) (*EnhancedPlugin, error) {
	entry := m.loader.findEntry(p, entryModules)
	if entry == "" {
		return NewEnhancedPlugin(p, nil), nil
	}

	started := time.Now()
	exports, err := async.CallValue(ctx, m.importTimeout, "import "+p.Name(), func(ctx context.Context) (commands.Exports, error) {
		return m.loader.importer.Import(ctx, entry)
	})
	if err != nil {
		return nil, fmt.Errorf("import %s: %w", entry, err)
	}

	m.log.WithField("plugin", p.Name()).Debugf("Imported %s in %v", entry, time.Since(started))
	return NewEnhancedPlugin(p, exports), nil
}

// RegisterPlugin runs onLoad, registers the plugin's commands and
// extensions, and marks it loaded. onLoad failures are logged and do not
// abort registration.
func (m *Manager) RegisterPlugin(ctx context.Context, ep *EnhancedPlugin) error {
	if ep == nil || ep.Plugin == nil || ep.Metadata == nil {
		return fmt.Errorf("%w: plugin has no metadata", ErrInvalidMetadata)
	}

	m.opMu.Lock()
	defer m.opMu.Unlock()

	name := ep.Name()
	if m.isLoaded(name) {
		return fmt.Errorf("%w: %s", ErrPluginAlreadyLoaded, name)
	}
	log := observability.PluginLogger(m.log, name)

	if ep.Lifecycle != nil && ep.Lifecycle.OnLoad != nil {
		if err := m.callHook(ctx, name, "onLoad", ep.Lifecycle.OnLoad); err != nil {
			log.WithError(err).Warn("onLoad failed")
		}
	}

	if ep.Path != "" {
		m.loader.remember(ep.Plugin)
	}
	cmds := m.loader.LoadCommands(ctx, ep.Plugin, ep.Commands)

	m.mu.Lock()
	registerAll(m, m.processors, name, ep.Processors)
	registerAll(m, m.validators, name, ep.Validators)
	registerAll(m, m.transformers, name, ep.Transformers)
	registerAll(m, m.marketplaceHooks, name, ep.MarketplaceHooks)
	registerAll(m, m.contextProviders, name, ep.ContextProviders)
	registerAll(m, m.fileGenerators, name, ep.FileGenerators)
	m.loaded[name] = ep
	m.order = append(m.order, name)
	count := len(m.loaded)
	m.mu.Unlock()

	ep.setLoaded(true)

	if m.metrics != nil {
		m.metrics.RecordPluginLoad(nil)
		m.metrics.PluginsLoaded.Set(float64(count))
		m.metrics.CommandsRegistered.Set(float64(len(m.loader.registry.Commands())))
	}

	log.WithFields(logrus.Fields{
		"version":    ep.Metadata.Version,
		"commands":   len(cmds),
		"extensions": len(ep.Processors) + len(ep.Validators) + len(ep.Transformers) + len(ep.MarketplaceHooks) + len(ep.ContextProviders) + len(ep.FileGenerators),
	}).Info("Loaded plugin")

	m.events.emit(EventLoaded, name, nil)
	return nil
}

// UnloadPlugin runs onUnload, removes everything the plugin contributed and
// marks it unloaded. The discovered plugin record is kept.
func (m *Manager) UnloadPlugin(ctx context.Context, name string) error {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	m.mu.RLock()
	ep, ok := m.loaded[name]
	m.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrPluginNotLoaded, name)
	}
	log := observability.PluginLogger(m.log, name)

	if ep.Lifecycle != nil && ep.Lifecycle.OnUnload != nil {
		if err := m.callHook(ctx, name, "onUnload", ep.Lifecycle.OnUnload); err != nil {
			log.WithError(err).Warn("onUnload failed")
		}
	}

	m.mu.Lock()
	unregisterOwned(m, m.processors, name, ep.Processors)
	unregisterOwned(m, m.validators, name, ep.Validators)
	unregisterOwned(m, m.transformers, name, ep.Transformers)
	unregisterOwned(m, m.marketplaceHooks, name, ep.MarketplaceHooks)
	unregisterOwned(m, m.contextProviders, name, ep.ContextProviders)
	unregisterOwned(m, m.fileGenerators, name, ep.FileGenerators)
	delete(m.loaded, name)
	m.order = removeString(m.order, name)
	count := len(m.loaded)
	m.mu.Unlock()

	retracted := m.loader.RetractCommands(name)
	ep.setLoaded(false)

	if m.metrics != nil {
		m.metrics.PluginsLoaded.Set(float64(count))
		m.metrics.CommandsRegistered.Set(float64(len(m.loader.registry.Commands())))
	}

	log.Infof("Unloaded plugin, retracted %d commands", len(retracted))
	m.events.emit(EventUnloaded, name, nil)
	return nil
}

// Reload unloads every plugin, drops cached modules and loads again
func (m *Manager) Reload(ctx context.Context) []*EnhancedPlugin {
	names := m.loadedNames()
	for i := len(names) - 1; i >= 0; i-- {
		if err := m.UnloadPlugin(ctx, names[i]); err != nil {
			m.log.WithError(err).WithField("plugin", names[i]).Warn("Failed to unload plugin")
		}
	}

	if purger, ok := m.loader.importer.(interface{ Purge() }); ok {
		purger.Purge()
	}

	return m.DiscoverAndLoad(ctx)
}

// ExecuteMarketplaceHooks runs every hook that handles name concurrently.
// Hook failures, panics and timeouts are logged and never returned.
func (m *Manager) ExecuteMarketplaceHooks(ctx context.Context, name extension.HookName, args ...interface{}) {
	var g errgroup.Group
	for _, h := range m.marketplaceHooks.GetSorted() {
		if !h.Handles(name) {
			continue
		}
		h := h
		g.Go(func() error {
			started := time.Now()
			err := async.Call(ctx, m.hookTimeout, string(name)+" "+h.Name(), func(ctx context.Context) error {
				return h.Handle(ctx, name, args...)
			})
			m.metrics.RecordExtensionCall(m.marketplaceHooks.Name(), started, err)
			if err != nil {
				m.log.WithFields(logrus.Fields{
					"hook":      h.Name(),
					"lifecycle": name,
				}).WithError(err).Warn("Marketplace hook failed")
			}
			return nil
		})
	}
	_ = g.Wait()
}

// ProcessContent runs content through every processor in priority order.
// A failing processor leaves the content unchanged.
func (m *Manager) ProcessContent(ctx context.Context, content string, tctx extension.TemplateContext) string {
	for _, p := range m.processors.GetSorted() {
		p := p
		started := time.Now()
		out, err := async.CallValue(ctx, m.hookTimeout, "processor "+p.Name(), func(ctx context.Context) (string, error) {
			return p.Process(ctx, content, tctx)
		})
		m.metrics.RecordExtensionCall(m.processors.Name(), started, err)
		if err != nil {
			m.log.WithField("processor", p.Name()).WithError(err).Warn("Template processor failed")
			continue
		}
		content = out
	}
	return content
}

// ValidateTemplate runs every validator concurrently and merges their
// results in priority order. A failing validator contributes an error.
func (m *Manager) ValidateTemplate(ctx context.Context, tpl *extension.Template) *extension.ValidationResult {
	validators := m.validators.GetSorted()
	results := make([]*extension.ValidationResult, len(validators))

	var g errgroup.Group
	for i, v := range validators {
		i, v := i, v
		g.Go(func() error {
			started := time.Now()
			res, err := async.CallValue(ctx, m.hookTimeout, "validator "+v.Name(), func(ctx context.Context) (*extension.ValidationResult, error) {
				return v.Validate(ctx, tpl.Clone())
			})
			m.metrics.RecordExtensionCall(m.validators.Name(), started, err)
			if err != nil {
				m.log.WithField("validator", v.Name()).WithError(err).Warn("Template validator failed")
				res = &extension.ValidationResult{
					Errors: []string{fmt.Sprintf("Validator %s failed: %v", v.Name(), err)},
				}
			}
			results[i] = res
			return nil
		})
	}
	_ = g.Wait()

	merged := &extension.ValidationResult{Errors: []string{}, Warnings: []string{}}
	for _, res := range results {
		if res == nil {
			continue
		}
		merged.Errors = append(merged.Errors, res.Errors...)
		merged.Warnings = append(merged.Warnings, res.Warnings...)
	}
	merged.Valid = len(merged.Errors) == 0
	return merged
}

// TransformTemplate runs transformers sequentially in priority order, each
// receiving the previous output. Failures are logged and skipped.
func (m *Manager) TransformTemplate(ctx context.Context, tpl *extension.Template) *extension.Template {
	current := tpl.Clone()
	for _, t := range m.transformers.GetSorted() {
		t := t
		input := current.Clone()
		started := time.Now()
		out, err := async.CallValue(ctx, m.hookTimeout, "transformer "+t.Name(), func(ctx context.Context) (*extension.Template, error) {
			return t.Transform(ctx, input)
		})
		m.metrics.RecordExtensionCall(m.transformers.Name(), started, err)
		if err != nil {
			m.log.WithField("transformer", t.Name()).WithError(err).Warn("Template transformer failed")
			continue
		}
		if out != nil {
			current = out
		}
	}
	return current
}

// GenerateFiles runs every file generator concurrently and concatenates
// their output in priority order. Failing generators contribute nothing.
func (m *Manager) GenerateFiles(ctx context.Context, tpl *extension.Template, gctx extension.GenerateContext) []extension.GeneratedFile {
	generators := m.fileGenerators.GetSorted()
	outputs := make([][]extension.GeneratedFile, len(generators))

	var g errgroup.Group
	for i, gen := range generators {
		i, gen := i, gen
		g.Go(func() error {
			started := time.Now()
			files, err := async.CallValue(ctx, m.hookTimeout, "generator "+gen.Name(), func(ctx context.Context) ([]extension.GeneratedFile, error) {
				return gen.Generate(ctx, tpl.Clone(), gctx)
			})
			m.metrics.RecordExtensionCall(m.fileGenerators.Name(), started, err)
			if err != nil {
				m.log.WithField("generator", gen.Name()).WithError(err).Warn("File generator failed")
				return nil
			}
			outputs[i] = files
			return nil
		})
	}
	_ = g.Wait()

	files := []extension.GeneratedFile{}
	for _, out := range outputs {
		files = append(files, out...)
	}
	return files
}

// AggregatedContext merges the values of every context provider. On key
// collisions the provider with the higher priority wins.
func (m *Manager) AggregatedContext(ctx context.Context) map[string]interface{} {
	providers := m.contextProviders.GetSorted()
	values := make([]map[string]interface{}, len(providers))

	var g errgroup.Group
	for i, p := range providers {
		i, p := i, p
		g.Go(func() error {
			started := time.Now()
			v, err := async.CallValue(ctx, m.hookTimeout, "context provider "+p.Name(), func(ctx context.Context) (map[string]interface{}, error) {
				return p.Provide(ctx)
			})
			m.metrics.RecordExtensionCall(m.contextProviders.Name(), started, err)
			if err != nil {
				m.log.WithField("provider", p.Name()).WithError(err).Warn("Context provider failed")
				return nil
			}
			values[i] = v
			return nil
		})
	}
	_ = g.Wait()

	merged := make(map[string]interface{})
	for i := len(values) - 1; i >= 0; i-- {
		for k, v := range values[i] {
			merged[k] = v
		}
	}
	return merged
}

// Enable runs the plugin's onEnable hook
func (m *Manager) Enable(ctx context.Context, name string) error {
	return m.lifecycle(ctx, name, EventEnabled, "onEnable", func(lc *extension.Lifecycle) func(context.Context) error {
		return lc.OnEnable
	})
}

// Disable runs the plugin's onDisable hook
func (m *Manager) Disable(ctx context.Context, name string) error {
	return m.lifecycle(ctx, name, EventDisabled, "onDisable", func(lc *extension.Lifecycle) func(context.Context) error {
		return lc.OnDisable
	})
}

// UpdateConfig passes cfg to the plugin's onConfigUpdate hook
func (m *Manager) UpdateConfig(ctx context.Context, name string, cfg map[string]interface{}) error {
	return m.lifecycle(ctx, name, EventConfigUpdated, "onConfigUpdate", func(lc *extension.Lifecycle) func(context.Context) error {
		if lc.OnConfigUpdate == nil {
			return nil
		}
		return func(ctx context.Context) error { return lc.OnConfigUpdate(ctx, cfg) }
	})
}

func (m *Manager) lifecycle(ctx context.Context, name string, ev EventType, hook string, pick func(*extension.Lifecycle) func(context.Context) error) error {
	ep, ok := m.Plugin(name)
	if !ok {
		return fmt.Errorf("%w: %s", ErrPluginNotLoaded, name)
	}

	if ep.Lifecycle != nil {
		if fn := pick(ep.Lifecycle); fn != nil {
			if err := m.callHook(ctx, name, hook, fn); err != nil {
				observability.PluginLogger(m.log, name).WithError(err).Warnf("%s failed", hook)
				m.events.emit(EventError, name, err)
				return err
			}
		}
	}

	m.events.emit(ev, name, nil)
	return nil
}

func (m *Manager) callHook(ctx context.Context, plugin, hook string, fn func(context.Context) error) error {
	return async.Call(ctx, m.hookTimeout, hook+" "+plugin, fn)
}

// Plugin returns a loaded enhanced plugin by name
func (m *Manager) Plugin(name string) (*EnhancedPlugin, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ep, ok := m.loaded[name]
	return ep, ok
}

// LoadedPlugins returns the loaded plugins in registration order
func (m *Manager) LoadedPlugins() []*EnhancedPlugin {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*EnhancedPlugin, 0, len(m.order))
	for _, name := range m.order {
		out = append(out, m.loaded[name])
	}
	return out
}

// Stats summarizes plugins, commands and registered extensions
func (m *Manager) Stats() Stats {
	known := make(map[string]bool)
	for _, p := range m.loader.Plugins() {
		known[p.Name()] = true
	}
	for _, name := range m.loadedNames() {
		known[name] = true
	}

	m.mu.RLock()
	loaded := len(m.loaded)
	m.mu.RUnlock()

	return Stats{
		TotalPlugins:     len(known),
		LoadedPlugins:    loaded,
		Commands:         len(m.loader.registry.Commands()),
		Processors:       m.processors.Len(),
		Validators:       m.validators.Len(),
		Transformers:     m.transformers.Len(),
		MarketplaceHooks: m.marketplaceHooks.Len(),
		ContextProviders: m.contextProviders.Len(),
		FileGenerators:   m.fileGenerators.Len(),
	}
}

func (m *Manager) isLoaded(name string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.loaded[name]
	return ok
}

func (m *Manager) loadedNames() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.order...)
}

// registerAll registers exts into point and records plugin as their owner.
// Callers hold m.mu.
func registerAll[T extension.Extension](m *Manager, point *extension.Point[T], plugin string, exts []T) {
	owners := m.owners[point.Name()]
	if owners == nil {
		owners = make(map[string]string)
		m.owners[point.Name()] = owners
	}

	for _, ext := range exts {
		if point.Register(ext) {
			m.log.WithFields(logrus.Fields{
				"plugin":    plugin,
				"point":     point.Name(),
				"extension": ext.Name(),
				"previous":  owners[ext.Name()],
			}).Warn("Extension already registered, overwriting")
		}
		owners[ext.Name()] = plugin
	}

	if m.metrics != nil {
		m.metrics.ExtensionsRegistered.WithLabelValues(point.Name()).Set(float64(point.Len()))
	}
}

// unregisterOwned removes the extensions plugin still owns in point.
// Callers hold m.mu.
func unregisterOwned[T extension.Extension](m *Manager, point *extension.Point[T], plugin string, exts []T) {
	owners := m.owners[point.Name()]
	for _, ext := range exts {
		if owners[ext.Name()] != plugin {
			continue
		}
		point.Unregister(ext.Name())
		delete(owners, ext.Name())
	}

	if m.metrics != nil {
		m.metrics.ExtensionsRegistered.WithLabelValues(point.Name()).Set(float64(point.Len()))
	}
}

// ExtensionOwner returns the plugin that contributed an extension to a point
func (m *Manager) ExtensionOwner(point, ext string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	plugin, ok := m.owners[point][ext]
	return plugin, ok
}
