package extension

import (
	"context"
)

// Info holds the identity shared by the function-backed extensions below
type Info struct {
	ExtName        string
	ExtDescription string
	ExtPriority    int
}

func (i Info) Name() string        { return i.ExtName }
func (i Info) Description() string { return i.ExtDescription }
func (i Info) Priority() int       { return i.ExtPriority }

// ProcessFunc is the capability method of a TemplateProcessor
type ProcessFunc func(ctx context.Context, content string, tctx TemplateContext) (string, error)

// ValidateFunc is the capability method of a TemplateValidator
type ValidateFunc func(ctx context.Context, tpl *Template) (*ValidationResult, error)

// TransformFunc is the capability method of a TemplateTransformer
type TransformFunc func(ctx context.Context, tpl *Template) (*Template, error)

// ProvideFunc is the capability method of a ContextProvider
type ProvideFunc func(ctx context.Context) (map[string]interface{}, error)

// GenerateFunc is the capability method of a FileGenerator
type GenerateFunc func(ctx context.Context, tpl *Template, gctx GenerateContext) ([]GeneratedFile, error)

// HookFunc handles one marketplace lifecycle point
type HookFunc func(ctx context.Context, args ...interface{}) error

type funcProcessor struct {
	Info
	fn ProcessFunc
}

func (p *funcProcessor) Process(ctx context.Context, content string, tctx TemplateContext) (string, error) {
	return p.fn(ctx, content, tctx)
}

// NewProcessor builds a TemplateProcessor from a function
func NewProcessor(info Info, fn ProcessFunc) TemplateProcessor {
	return &funcProcessor{Info: info, fn: fn}
}

type funcValidator struct {
	Info
	fn ValidateFunc
}

func (v *funcValidator) Validate(ctx context.Context, tpl *Template) (*ValidationResult, error) {
	return v.fn(ctx, tpl)
}

// NewValidator builds a TemplateValidator from a function
func NewValidator(info Info, fn ValidateFunc) TemplateValidator {
	return &funcValidator{Info: info, fn: fn}
}

type funcTransformer struct {
	Info
	fn TransformFunc
}

func (t *funcTransformer) Transform(ctx context.Context, tpl *Template) (*Template, error) {
	return t.fn(ctx, tpl)
}

// NewTransformer builds a TemplateTransformer from a function
func NewTransformer(info Info, fn TransformFunc) TemplateTransformer {
	return &funcTransformer{Info: info, fn: fn}
}

type funcProvider struct {
	Info
	fn ProvideFunc
}

func (p *funcProvider) Provide(ctx context.Context) (map[string]interface{}, error) {
	return p.fn(ctx)
}

// NewContextProvider builds a ContextProvider from a function
func NewContextProvider(info Info, fn ProvideFunc) ContextProvider {
	return &funcProvider{Info: info, fn: fn}
}

type funcGenerator struct {
	Info
	fn GenerateFunc
}

func (g *funcGenerator) Generate(ctx context.Context, tpl *Template, gctx GenerateContext) ([]GeneratedFile, error) {
	return g.fn(ctx, tpl, gctx)
}

// NewFileGenerator builds a FileGenerator from a function
func NewFileGenerator(info Info, fn GenerateFunc) FileGenerator {
	return &funcGenerator{Info: info, fn: fn}
}

type funcHook struct {
	Info
	handlers map[HookName]HookFunc
}

func (h *funcHook) Handles(hook HookName) bool {
	_, ok := h.handlers[hook]
	return ok
}

func (h *funcHook) Handle(ctx context.Context, hook HookName, args ...interface{}) error {
	fn, ok := h.handlers[hook]
	if !ok {
		return nil
	}
	return fn(ctx, args...)
}

// NewMarketplaceHook builds a MarketplaceHook handling only the lifecycle
// points present in handlers
func NewMarketplaceHook(info Info, handlers map[HookName]HookFunc) MarketplaceHook {
	copied := make(map[HookName]HookFunc, len(handlers))
	for k, v := range handlers {
		copied[k] = v
	}
	return &funcHook{Info: info, handlers: copied}
}
