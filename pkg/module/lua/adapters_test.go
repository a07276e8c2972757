package lua

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AdamManuel-dev/prompt-template-engine-sub000/pkg/commands"
	"github.com/AdamManuel-dev/prompt-template-engine-sub000/pkg/extension"
)

const pluginSource = `
local calls = {}

return {
	commands = {
		{
			name = "greet",
			description = "say hello",
			aliases = { "hi" },
			options = { { flags = "-n, --name <who>", description = "who", default = "world" } },
			action = function(args, opts)
				calls[#calls + 1] = opts.name
				if opts.name == "fail" then
					return nil, "refusing to greet"
				end
			end,
		},
		{ name = "incomplete" },
	},

	processors = {
		{
			name = "shout",
			description = "upper-cases content",
			priority = 10,
			process = function(content, ctx) return string.upper(content) .. (ctx.suffix or "") end,
		},
		{ name = "no-method" },
	},

	validators = {
		{
			name = "non-empty",
			validate = function(tpl)
				if tpl.content == "" then
					return { valid = false, errors = { "content is empty" } }
				end
				return { warnings = { "looks fine" } }
			end,
		},
	},

	transformers = {
		{
			name = "rename",
			transform = function(tpl)
				tpl.name = tpl.name .. ".v2"
				return tpl
			end,
		},
	},

	marketplaceHooks = {
		{
			name = "recorder",
			onAfterInstall = function(id, version)
				calls[#calls + 1] = id .. "@" .. version
			end,
			onBeforePublish = function() error("publishing disabled") end,
		},
	},

	contextProviders = {
		{ name = "env", priority = 3, provide = function() return { user = "ada", count = #calls } end },
	},

	fileGenerators = {
		{
			name = "readme",
			generate = function(tpl, gctx)
				return { { path = tpl.name .. ".md", content = gctx.outputDir .. ":" .. tpl.content } }
			end,
		},
	},

	lifecycle = {
		onLoad = function() calls[#calls + 1] = "loaded" end,
		onConfigUpdate = function(cfg) if cfg.bad then return nil, "bad config" end end,
	},
}
`

func loadPlugin(t *testing.T) (*Module, commands.Exports) {
	t.Helper()
	m, err := Load(context.Background(), writeModule(t, pluginSource))
	require.NoError(t, err)
	t.Cleanup(m.Close)
	return m, m.Exports()
}

func TestExports_Commands(t *testing.T) {
	_, exports := loadPlugin(t)
	ctx := context.Background()

	cmds, ok := exports[ExportCommands].([]*commands.Command)
	require.True(t, ok)
	require.Len(t, cmds, 2)

	greet := cmds[0]
	assert.Equal(t, "greet", greet.Name)
	assert.Equal(t, []string{"hi"}, greet.Aliases)
	require.Len(t, greet.Options, 1)
	assert.Equal(t, "world", greet.Options[0].Default)
	require.NoError(t, greet.Validate())

	assert.NoError(t, greet.Action(ctx, nil, map[string]interface{}{"name": "bob"}))
	assert.EqualError(t, greet.Action(ctx, nil, map[string]interface{}{"name": "fail"}), "refusing to greet")

	_, ok = commands.AsCommand(cmds[1])
	assert.False(t, ok, "command without description and action must not validate")
}

func TestExports_DefaultCommand(t *testing.T) {
	m, err := Load(context.Background(), writeModule(t,
		`return { name = "hello", description = "d", action = function() end, default = { name = "hello", description = "d", action = function() end } }`))
	require.NoError(t, err)
	defer m.Close()

	cmd, ok := commands.AsCommand(m.Exports()[ExportDefault])
	require.True(t, ok)
	assert.Equal(t, "hello", cmd.Name)
	assert.NoError(t, cmd.Action(context.Background(), nil, nil))
}

func TestExports_Extensions(t *testing.T) {
	_, exports := loadPlugin(t)
	ctx := context.Background()

	procs := exports[ExportProcessors].([]extension.TemplateProcessor)
	require.Len(t, procs, 1)
	assert.Equal(t, 10, extension.PriorityOf(procs[0]))
	out, err := procs[0].Process(ctx, "abc", extension.TemplateContext{"suffix": "!"})
	require.NoError(t, err)
	assert.Equal(t, "ABC!", out)

	vals := exports[ExportValidators].([]extension.TemplateValidator)
	require.Len(t, vals, 1)
	res, err := vals[0].Validate(ctx, &extension.Template{Content: ""})
	require.NoError(t, err)
	assert.False(t, res.Valid)
	assert.Equal(t, []string{"content is empty"}, res.Errors)
	res, err = vals[0].Validate(ctx, &extension.Template{Content: "x"})
	require.NoError(t, err)
	assert.True(t, res.Valid)
	assert.Equal(t, []string{"looks fine"}, res.Warnings)

	trs := exports[ExportTransformers].([]extension.TemplateTransformer)
	require.Len(t, trs, 1)
	tpl, err := trs[0].Transform(ctx, &extension.Template{Name: "doc", Content: "c"})
	require.NoError(t, err)
	assert.Equal(t, "doc.v2", tpl.Name)
	assert.Equal(t, "c", tpl.Content)

	hooks := exports[ExportMarketplaceHooks].([]extension.MarketplaceHook)
	require.Len(t, hooks, 1)
	assert.True(t, hooks[0].Handles(extension.HookAfterInstall))
	assert.False(t, hooks[0].Handles(extension.HookBeforeInstall))
	assert.NoError(t, hooks[0].Handle(ctx, extension.HookAfterInstall, "tpl", "1.0.0"))
	err = hooks[0].Handle(ctx, extension.HookBeforePublish)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "publishing disabled")

	provs := exports[ExportContextProviders].([]extension.ContextProvider)
	require.Len(t, provs, 1)
	vars, err := provs[0].Provide(ctx)
	require.NoError(t, err)
	assert.Equal(t, "ada", vars["user"])
	assert.Equal(t, int64(1), vars["count"])

	gens := exports[ExportFileGenerators].([]extension.FileGenerator)
	require.Len(t, gens, 1)
	files, err := gens[0].Generate(ctx, &extension.Template{Name: "guide", Content: "body"}, extension.GenerateContext{OutputDir: "out"})
	require.NoError(t, err)
	assert.Equal(t, []extension.GeneratedFile{{Path: "guide.md", Content: "out:body"}}, files)
}

func TestExports_Lifecycle(t *testing.T) {
	_, exports := loadPlugin(t)
	ctx := context.Background()

	lc, ok := exports[ExportLifecycle].(*extension.Lifecycle)
	require.True(t, ok)
	require.NotNil(t, lc.OnLoad)
	assert.Nil(t, lc.OnUnload)
	assert.NoError(t, lc.OnLoad(ctx))

	require.NotNil(t, lc.OnConfigUpdate)
	assert.NoError(t, lc.OnConfigUpdate(ctx, map[string]interface{}{}))
	assert.EqualError(t, lc.OnConfigUpdate(ctx, map[string]interface{}{"bad": true}), "bad config")
}

func TestExports_MissingArraysAbsent(t *testing.T) {
	m, err := Load(context.Background(), writeModule(t, `return {}`))
	require.NoError(t, err)
	defer m.Close()

	assert.Empty(t, m.Exports())
}
