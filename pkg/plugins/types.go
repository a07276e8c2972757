package plugins

import (
	"sort"
	"sync"
	"time"

	"github.com/AdamManuel-dev/prompt-template-engine-sub000/pkg/commands"
	"github.com/AdamManuel-dev/prompt-template-engine-sub000/pkg/extension"
	"github.com/AdamManuel-dev/prompt-template-engine-sub000/pkg/module/lua"
)

// Metadata describes a plugin. It is parsed once at discovery and never
// modified afterwards.
type Metadata struct {
	Name         string            `json:"name"`
	Version      string            `json:"version"`
	Description  string            `json:"description,omitempty"`
	Author       string            `json:"author,omitempty"`
	Commands     []string          `json:"commands,omitempty"`
	Dependencies map[string]string `json:"dependencies,omitempty"`
	Main         string            `json:"main,omitempty"`
}

// MetadataSource names the file a plugin's metadata was read from
type MetadataSource string

const (
	SourcePluginJSON  MetadataSource = "plugin.json"
	SourcePackageJSON MetadataSource = "package.json"
)

// Plugin is a discovered plugin directory. Metadata and Path are fixed at
// discovery; the loaded flag and error change with load and unload.
type Plugin struct {
	Metadata       *Metadata
	Path           string
	Source         MetadataSource
	DiscoveredAt   time.Time
	SecurityIssues []SecurityIssue

	mu       sync.RWMutex
	loaded   bool
	err      error
	loadedAt time.Time
}

// Name returns the plugin name
func (p *Plugin) Name() string {
	return p.Metadata.Name
}

// Loaded reports whether the plugin is currently loaded
func (p *Plugin) Loaded() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.loaded
}

// Err returns the last load error, if any
func (p *Plugin) Err() error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.err
}

// LoadedAt returns when the plugin was last loaded
func (p *Plugin) LoadedAt() time.Time {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.loadedAt
}

func (p *Plugin) setLoaded(loaded bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.loaded = loaded
	if loaded {
		p.err = nil
		p.loadedAt = time.Now()
	}
}

func (p *Plugin) setError(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.err = err
}

// EnhancedPlugin is a plugin together with everything its entry module
// contributes. Slices are never nil.
type EnhancedPlugin struct {
	*Plugin

	Commands         []*commands.Command
	Processors       []extension.TemplateProcessor
	Validators       []extension.TemplateValidator
	Transformers     []extension.TemplateTransformer
	MarketplaceHooks []extension.MarketplaceHook
	ContextProviders []extension.ContextProvider
	FileGenerators   []extension.FileGenerator
	Lifecycle        *extension.Lifecycle
}

// NewEnhancedPlugin builds an EnhancedPlugin from module exports. Exports of
// the wrong type are ignored.
func NewEnhancedPlugin(p *Plugin, exports commands.Exports) *EnhancedPlugin {
	ep := &EnhancedPlugin{
		Plugin:           p,
		Commands:         []*commands.Command{},
		Processors:       []extension.TemplateProcessor{},
		Validators:       []extension.TemplateValidator{},
		Transformers:     []extension.TemplateTransformer{},
		MarketplaceHooks: []extension.MarketplaceHook{},
		ContextProviders: []extension.ContextProvider{},
		FileGenerators:   []extension.FileGenerator{},
	}
	if exports == nil {
		return ep
	}

	if v, ok := exports[lua.ExportCommands].([]*commands.Command); ok {
		ep.Commands = append(ep.Commands, v...)
	}
	if v, ok := exports[lua.ExportProcessors].([]extension.TemplateProcessor); ok {
		ep.Processors = append(ep.Processors, v...)
	}
	if v, ok := exports[lua.ExportValidators].([]extension.TemplateValidator); ok {
		ep.Validators = append(ep.Validators, v...)
	}
	if v, ok := exports[lua.ExportTransformers].([]extension.TemplateTransformer); ok {
		ep.Transformers = append(ep.Transformers, v...)
	}
	if v, ok := exports[lua.ExportMarketplaceHooks].([]extension.MarketplaceHook); ok {
		ep.MarketplaceHooks = append(ep.MarketplaceHooks, v...)
	}
	if v, ok := exports[lua.ExportContextProviders].([]extension.ContextProvider); ok {
		ep.ContextProviders = append(ep.ContextProviders, v...)
	}
	if v, ok := exports[lua.ExportFileGenerators].([]extension.FileGenerator); ok {
		ep.FileGenerators = append(ep.FileGenerators, v...)
	}
	if v, ok := exports[lua.ExportLifecycle].(*extension.Lifecycle); ok {
		ep.Lifecycle = v
	}
	return ep
}

// ValidationError represents a metadata validation problem
type ValidationError struct {
	Field    string `json:"field"`
	Message  string `json:"message"`
	Severity string `json:"severity"` // error, warning
}

func (e ValidationError) Error() string {
	return e.Field + ": " + e.Message
}

// SecurityIssue represents a security concern found while scanning plugin sources
type SecurityIssue struct {
	Severity       string `json:"severity"`                 // critical, high, medium, low
	Category       string `json:"category"`                 // dangerous-call, hardcoded-secret, ...
	Description    string `json:"description"`              // Human-readable description
	File           string `json:"file,omitempty"`           // Path relative to the plugin root
	Line           int    `json:"line,omitempty"`           // Line number
	Recommendation string `json:"recommendation,omitempty"` // How to fix
	CWEID          string `json:"cwe_id,omitempty"`         // Common Weakness Enumeration ID
}

// Stats summarizes the plugin system state
type Stats struct {
	TotalPlugins     int `json:"total_plugins"`
	LoadedPlugins    int `json:"loaded_plugins"`
	Commands         int `json:"commands"`
	Processors       int `json:"processors"`
	Validators       int `json:"validators"`
	Transformers     int `json:"transformers"`
	MarketplaceHooks int `json:"marketplace_hooks"`
	ContextProviders int `json:"context_providers"`
	FileGenerators   int `json:"file_generators"`
}

// SortByName orders plugins by name in place
func SortByName[T interface{ Name() string }](items []T) {
	sort.Slice(items, func(i, j int) bool { return items[i].Name() < items[j].Name() })
}
