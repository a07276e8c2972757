package lua

import (
	"context"
	"fmt"

	lua "github.com/yuin/gopher-lua"

	"github.com/AdamManuel-dev/prompt-template-engine-sub000/pkg/commands"
	"github.com/AdamManuel-dev/prompt-template-engine-sub000/pkg/extension"
)

// Export names read from a module's returned table
const (
	ExportDefault          = "default"
	ExportCommand          = "command"
	ExportCommands         = "commands"
	ExportProcessors       = "processors"
	ExportValidators       = "validators"
	ExportTransformers     = "transformers"
	ExportMarketplaceHooks = "marketplaceHooks"
	ExportContextProviders = "contextProviders"
	ExportFileGenerators   = "fileGenerators"
	ExportLifecycle        = "lifecycle"
)

// Exports converts the module table into Go values: commands become
// *commands.Command, extension arrays become typed slices and lifecycle
// becomes *extension.Lifecycle. Missing arrays stay absent.
func (m *Module) Exports() commands.Exports {
	out := make(commands.Exports)
	t := m.exports

	for _, key := range []string{ExportDefault, ExportCommand} {
		if tbl := getTable(t, key); tbl != nil {
			out[key] = m.command(tbl)
		}
	}
	// a chunk returning a command table directly exports it as default
	if _, ok := out[ExportDefault]; !ok && getString(t, "name") != "" {
		out[ExportDefault] = m.command(t)
	}

	if tbl := getTable(t, ExportCommands); tbl != nil {
		var cmds []*commands.Command
		eachTable(t, ExportCommands, func(item *lua.LTable) {
			cmds = append(cmds, m.command(item))
		})
		out[ExportCommands] = cmds
	}

	if getTable(t, ExportProcessors) != nil {
		var exts []extension.TemplateProcessor
		eachTable(t, ExportProcessors, func(item *lua.LTable) {
			if fn := getFunc(item, "process"); fn != nil {
				exts = append(exts, &processor{base: m.info(item), fn: fn})
			}
		})
		out[ExportProcessors] = exts
	}

	if getTable(t, ExportValidators) != nil {
		var exts []extension.TemplateValidator
		eachTable(t, ExportValidators, func(item *lua.LTable) {
			if fn := getFunc(item, "validate"); fn != nil {
				exts = append(exts, &validator{base: m.info(item), fn: fn})
			}
		})
		out[ExportValidators] = exts
	}

	if getTable(t, ExportTransformers) != nil {
		var exts []extension.TemplateTransformer
		eachTable(t, ExportTransformers, func(item *lua.LTable) {
			if fn := getFunc(item, "transform"); fn != nil {
				exts = append(exts, &transformer{base: m.info(item), fn: fn})
			}
		})
		out[ExportTransformers] = exts
	}

	if getTable(t, ExportMarketplaceHooks) != nil {
		var exts []extension.MarketplaceHook
		eachTable(t, ExportMarketplaceHooks, func(item *lua.LTable) {
			h := &hook{base: m.info(item), fns: make(map[extension.HookName]*lua.LFunction)}
			for _, name := range extension.KnownHooks {
				if fn := getFunc(item, string(name)); fn != nil {
					h.fns[name] = fn
				}
			}
			exts = append(exts, h)
		})
		out[ExportMarketplaceHooks] = exts
	}

	if getTable(t, ExportContextProviders) != nil {
		var exts []extension.ContextProvider
		eachTable(t, ExportContextProviders, func(item *lua.LTable) {
			if fn := getFunc(item, "provide"); fn != nil {
				exts = append(exts, &provider{base: m.info(item), fn: fn})
			}
		})
		out[ExportContextProviders] = exts
	}

	if getTable(t, ExportFileGenerators) != nil {
		var exts []extension.FileGenerator
		eachTable(t, ExportFileGenerators, func(item *lua.LTable) {
			if fn := getFunc(item, "generate"); fn != nil {
				exts = append(exts, &generator{base: m.info(item), fn: fn})
			}
		})
		out[ExportFileGenerators] = exts
	}

	if tbl := getTable(t, ExportLifecycle); tbl != nil {
		out[ExportLifecycle] = m.lifecycle(tbl)
	}

	return out
}

// command builds a Command from a table. Missing fields are left empty so the
// registry's shape check decides whether it is usable.
func (m *Module) command(t *lua.LTable) *commands.Command {
	cmd := &commands.Command{
		Name:        getString(t, "name"),
		Description: getString(t, "description"),
		Aliases:     getStrings(t, "aliases"),
		Hidden:      getBool(t, "hidden"),
	}
	eachTable(t, "options", func(opt *lua.LTable) {
		cmd.Options = append(cmd.Options, commands.Option{
			Flags:       getString(opt, "flags"),
			Description: getString(opt, "description"),
			Default:     ToGo(opt.RawGetString("default")),
		})
	})
	if fn := getFunc(t, "action"); fn != nil {
		cmd.Action = func(ctx context.Context, args []string, opts map[string]interface{}) error {
			results, err := m.Call(ctx, fn, args, opts)
			if err != nil {
				return err
			}
			return returnedError(results)
		}
	}
	return cmd
}

func (m *Module) lifecycle(t *lua.LTable) *extension.Lifecycle {
	lc := &extension.Lifecycle{}
	simple := func(name string) func(context.Context) error {
		fn := getFunc(t, name)
		if fn == nil {
			return nil
		}
		return func(ctx context.Context) error {
			results, err := m.Call(ctx, fn)
			if err != nil {
				return err
			}
			return returnedError(results)
		}
	}
	lc.OnLoad = simple("onLoad")
	lc.OnUnload = simple("onUnload")
	lc.OnEnable = simple("onEnable")
	lc.OnDisable = simple("onDisable")
	if fn := getFunc(t, "onConfigUpdate"); fn != nil {
		lc.OnConfigUpdate = func(ctx context.Context, config map[string]interface{}) error {
			results, err := m.Call(ctx, fn, config)
			if err != nil {
				return err
			}
			return returnedError(results)
		}
	}
	return lc
}

// returnedError maps the Lua "nil, message" convention to a Go error
func returnedError(results []interface{}) error {
	if len(results) >= 2 && results[0] == nil {
		if msg, ok := results[1].(string); ok && msg != "" {
			return fmt.Errorf("%s", msg)
		}
	}
	return nil
}

type base struct {
	module      *Module
	name        string
	description string
	priority    int
}

func (m *Module) info(t *lua.LTable) base {
	return base{
		module:      m,
		name:        getString(t, "name"),
		description: getString(t, "description"),
		priority:    getInt(t, "priority"),
	}
}

func (b base) Name() string        { return b.name }
func (b base) Description() string { return b.description }
func (b base) Priority() int       { return b.priority }

type processor struct {
	base
	fn *lua.LFunction
}

func (p *processor) Process(ctx context.Context, content string, tctx extension.TemplateContext) (string, error) {
	results, err := p.module.Call(ctx, p.fn, content, map[string]interface{}(tctx))
	if err != nil {
		return "", err
	}
	if err := returnedError(results); err != nil {
		return "", err
	}
	if len(results) == 0 {
		return "", fmt.Errorf("%w: processor %s returned nothing", ErrBadReturn, p.name)
	}
	out, ok := results[0].(string)
	if !ok {
		return "", fmt.Errorf("%w: processor %s returned %T", ErrBadReturn, p.name, results[0])
	}
	return out, nil
}

type validator struct {
	base
	fn *lua.LFunction
}

func (v *validator) Validate(ctx context.Context, tpl *extension.Template) (*extension.ValidationResult, error) {
	results, err := v.module.Call(ctx, v.fn, templateToMap(tpl))
	if err != nil {
		return nil, err
	}
	if err := returnedError(results); err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, fmt.Errorf("%w: validator %s returned nothing", ErrBadReturn, v.name)
	}
	m, ok := results[0].(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("%w: validator %s returned %T", ErrBadReturn, v.name, results[0])
	}
	res := &extension.ValidationResult{
		Errors:   toStrings(m["errors"]),
		Warnings: toStrings(m["warnings"]),
	}
	if valid, ok := m["valid"].(bool); ok {
		res.Valid = valid
	} else {
		res.Valid = len(res.Errors) == 0
	}
	return res, nil
}

type transformer struct {
	base
	fn *lua.LFunction
}

func (t *transformer) Transform(ctx context.Context, tpl *extension.Template) (*extension.Template, error) {
	results, err := t.module.Call(ctx, t.fn, templateToMap(tpl))
	if err != nil {
		return nil, err
	}
	if err := returnedError(results); err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, fmt.Errorf("%w: transformer %s returned nothing", ErrBadReturn, t.name)
	}
	m, ok := results[0].(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("%w: transformer %s returned %T", ErrBadReturn, t.name, results[0])
	}
	return mapToTemplate(m), nil
}

type hook struct {
	base
	fns map[extension.HookName]*lua.LFunction
}

func (h *hook) Handles(name extension.HookName) bool {
	_, ok := h.fns[name]
	return ok
}

func (h *hook) Handle(ctx context.Context, name extension.HookName, args ...interface{}) error {
	fn, ok := h.fns[name]
	if !ok {
		return nil
	}
	results, err := h.module.Call(ctx, fn, args...)
	if err != nil {
		return err
	}
	return returnedError(results)
}

type provider struct {
	base
	fn *lua.LFunction
}

func (p *provider) Provide(ctx context.Context) (map[string]interface{}, error) {
	results, err := p.module.Call(ctx, p.fn)
	if err != nil {
		return nil, err
	}
	if err := returnedError(results); err != nil {
		return nil, err
	}
	if len(results) == 0 || results[0] == nil {
		return map[string]interface{}{}, nil
	}
	m, ok := results[0].(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("%w: context provider %s returned %T", ErrBadReturn, p.name, results[0])
	}
	return m, nil
}

type generator struct {
	base
	fn *lua.LFunction
}

func (g *generator) Generate(ctx context.Context, tpl *extension.Template, gctx extension.GenerateContext) ([]extension.GeneratedFile, error) {
	results, err := g.module.Call(ctx, g.fn, templateToMap(tpl), map[string]interface{}{
		"outputDir": gctx.OutputDir,
		"variables": gctx.Variables,
	})
	if err != nil {
		return nil, err
	}
	if err := returnedError(results); err != nil {
		return nil, err
	}
	if len(results) == 0 || results[0] == nil {
		return nil, nil
	}
	items, ok := results[0].([]interface{})
	if !ok {
		return nil, fmt.Errorf("%w: file generator %s returned %T", ErrBadReturn, g.name, results[0])
	}
	files := make([]extension.GeneratedFile, 0, len(items))
	for _, item := range items {
		f, ok := item.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("%w: file generator %s returned a non-table file", ErrBadReturn, g.name)
		}
		path, _ := f["path"].(string)
		content, _ := f["content"].(string)
		if path == "" {
			return nil, fmt.Errorf("%w: file generator %s returned a file without path", ErrBadReturn, g.name)
		}
		files = append(files, extension.GeneratedFile{Path: path, Content: content})
	}
	return files, nil
}

func templateToMap(tpl *extension.Template) map[string]interface{} {
	if tpl == nil {
		return map[string]interface{}{}
	}
	return map[string]interface{}{
		"name":      tpl.Name,
		"content":   tpl.Content,
		"variables": tpl.Variables,
		"metadata":  tpl.Metadata,
	}
}

func mapToTemplate(m map[string]interface{}) *extension.Template {
	tpl := &extension.Template{}
	tpl.Name, _ = m["name"].(string)
	tpl.Content, _ = m["content"].(string)
	tpl.Variables, _ = m["variables"].(map[string]interface{})
	tpl.Metadata, _ = m["metadata"].(map[string]interface{})
	return tpl
}

func toStrings(v interface{}) []string {
	items, ok := v.([]interface{})
	if !ok {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		out = append(out, fmt.Sprint(item))
	}
	return out
}
