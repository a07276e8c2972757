package extension

import (
	"context"
)

// Extension is the base interface all plugin-contributed capabilities implement
type Extension interface {
	Name() string
	Description() string
}

// Prioritized is implemented by extensions that carry an ordering hint.
// Extensions without it have priority 0.
type Prioritized interface {
	Priority() int
}

// Template is the unit of content flowing through validators, transformers and generators
type Template struct {
	Name      string                 `json:"name" yaml:"name"`
	Content   string                 `json:"content" yaml:"content"`
	Variables map[string]interface{} `json:"variables,omitempty" yaml:"variables,omitempty"`
	Metadata  map[string]interface{} `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// Clone returns a copy whose maps can be mutated independently
func (t *Template) Clone() *Template {
	if t == nil {
		return nil
	}
	out := &Template{Name: t.Name, Content: t.Content}
	if t.Variables != nil {
		out.Variables = make(map[string]interface{}, len(t.Variables))
		for k, v := range t.Variables {
			out.Variables[k] = v
		}
	}
	if t.Metadata != nil {
		out.Metadata = make(map[string]interface{}, len(t.Metadata))
		for k, v := range t.Metadata {
			out.Metadata[k] = v
		}
	}
	return out
}

// TemplateContext carries the variables available while processing content
type TemplateContext map[string]interface{}

// ValidationResult contains validation errors and warnings
type ValidationResult struct {
	Valid    bool     `json:"valid"`
	Errors   []string `json:"errors,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

// GenerateContext describes where generated files are meant to go
type GenerateContext struct {
	OutputDir string                 `json:"output_dir"`
	Variables map[string]interface{} `json:"variables,omitempty"`
}

// GeneratedFile is a file produced by a FileGenerator. Path is relative to
// GenerateContext.OutputDir.
type GeneratedFile struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

// TemplateProcessor transforms raw content. Processors form a sequential
// pipeline ordered by priority.
type TemplateProcessor interface {
	Extension
	Process(ctx context.Context, content string, tctx TemplateContext) (string, error)
}

// TemplateValidator checks a template and reports problems
type TemplateValidator interface {
	Extension
	Validate(ctx context.Context, tpl *Template) (*ValidationResult, error)
}

// TemplateTransformer rewrites a whole template
type TemplateTransformer interface {
	Extension
	Transform(ctx context.Context, tpl *Template) (*Template, error)
}

// HookName identifies a marketplace lifecycle point
type HookName string

// Marketplace lifecycle points.
const (
	HookBeforeInstall HookName = "onBeforeInstall"
	HookAfterInstall  HookName = "onAfterInstall"
	HookBeforePublish HookName = "onBeforePublish"
	HookAfterPublish  HookName = "onAfterPublish"
	HookBeforeUpdate  HookName = "onBeforeUpdate"
	HookAfterUpdate   HookName = "onAfterUpdate"
)

// KnownHooks lists every marketplace lifecycle point in invocation order
var KnownHooks = []HookName{
	HookBeforeInstall,
	HookAfterInstall,
	HookBeforePublish,
	HookAfterPublish,
	HookBeforeUpdate,
	HookAfterUpdate,
}

// MarketplaceHook reacts to template install/publish/update performed by the
// marketplace subsystem. Handles reports whether the hook implements the named
// lifecycle method; Handle is only called for those.
type MarketplaceHook interface {
	Extension
	Handles(hook HookName) bool
	Handle(ctx context.Context, hook HookName, args ...interface{}) error
}

// ContextProvider contributes variables to the aggregated template context
type ContextProvider interface {
	Extension
	Provide(ctx context.Context) (map[string]interface{}, error)
}

// FileGenerator produces files from a template
type FileGenerator interface {
	Extension
	Generate(ctx context.Context, tpl *Template, gctx GenerateContext) ([]GeneratedFile, error)
}

// PriorityOf returns the priority hint of ext, or 0
func PriorityOf(ext Extension) int {
	if p, ok := ext.(Prioritized); ok {
		return p.Priority()
	}
	return 0
}
