package module

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AdamManuel-dev/prompt-template-engine-sub000/pkg/commands"
	"github.com/AdamManuel-dev/prompt-template-engine-sub000/pkg/extension"
	"github.com/AdamManuel-dev/prompt-template-engine-sub000/pkg/module/lua"
	"github.com/AdamManuel-dev/prompt-template-engine-sub000/pkg/observability"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestImporter_Lua(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "hello.command.lua",
		`return { name = "hello", description = "d", action = function() end }`)

	exports, err := NewImporter().Import(context.Background(), path)
	require.NoError(t, err)
	cmd, ok := commands.AsCommand(exports[lua.ExportDefault])
	require.True(t, ok)
	assert.Equal(t, "hello", cmd.Name)

	path = writeFile(t, dir, "wrapped.command.lua",
		`return { command = { name = "named", description = "d", action = function() end } }`)
	exports, err = NewImporter().Import(context.Background(), path)
	require.NoError(t, err)
	_, hasDefault := exports[lua.ExportDefault]
	assert.False(t, hasDefault)
	cmd, ok = commands.AsCommand(exports[lua.ExportCommand])
	require.True(t, ok)
	assert.Equal(t, "named", cmd.Name)
}

func TestImporter_Errors(t *testing.T) {
	dir := t.TempDir()
	imp := NewImporter()
	ctx := context.Background()

	_, err := imp.Import(ctx, filepath.Join(dir, "missing.lua"))
	assert.ErrorIs(t, err, ErrModuleNotFound)

	_, err = imp.Import(ctx, dir)
	assert.ErrorIs(t, err, ErrModuleNotFound)

	_, err = imp.Import(ctx, writeFile(t, dir, "x.js", "module.exports = {}"))
	assert.ErrorIs(t, err, ErrUnsupportedFormat)

	_, err = imp.Import(ctx, writeFile(t, dir, "bad.lua", "return {"))
	assert.ErrorIs(t, err, lua.ErrSyntax)

	_, err = imp.Import(ctx, writeFile(t, dir, "bad.yaml", "processors: [{name: x, kind: shout}]"))
	assert.ErrorIs(t, err, ErrInvalidModule)
}

func TestImporter_CachesUntilFileChanges(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "index.lua", `return { commands = { { name = "a", description = "d", action = function() end } } }`)

	imp := NewImporter()
	ctx := context.Background()

	first, err := imp.Import(ctx, path)
	require.NoError(t, err)
	second, err := imp.Import(ctx, path)
	require.NoError(t, err)
	assert.Same(t, first[lua.ExportCommands].([]*commands.Command)[0], second[lua.ExportCommands].([]*commands.Command)[0])

	writeFile(t, dir, "index.lua", `return { commands = { { name = "b", description = "d", action = function() end } } }`)
	future := time.Now().Add(time.Minute)
	require.NoError(t, os.Chtimes(path, future, future))

	third, err := imp.Import(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, "b", third[lua.ExportCommands].([]*commands.Command)[0].Name)

	imp.Invalidate(path)
	fourth, err := imp.Import(ctx, path)
	require.NoError(t, err)
	assert.NotSame(t, third[lua.ExportCommands].([]*commands.Command)[0], fourth[lua.ExportCommands].([]*commands.Command)[0])
}

func TestImporter_CacheDisabled(t *testing.T) {
	path := writeFile(t, t.TempDir(), "index.lua", `return { commands = { { name = "a", description = "d", action = function() end } } }`)
	imp := NewImporter(WithCache(0, 0))

	first, err := imp.Import(context.Background(), path)
	require.NoError(t, err)
	second, err := imp.Import(context.Background(), path)
	require.NoError(t, err)
	assert.NotSame(t, first[lua.ExportCommands].([]*commands.Command)[0], second[lua.ExportCommands].([]*commands.Command)[0])
	imp.Purge()
}

func TestImporter_RecordsMetrics(t *testing.T) {
	metrics := observability.NewMetrics(nil)
	path := writeFile(t, t.TempDir(), "m.yaml", "command: {name: x, description: d, message: hi}")

	_, err := NewImporter(WithMetrics(metrics)).Import(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, 1, testutil.CollectAndCount(metrics.ModuleImportDuration))
}

func TestImporter_Builtin(t *testing.T) {
	path := filepath.Join(t.TempDir(), "builtin", "index.go")
	exports := commands.Exports{
		lua.ExportProcessors: []extension.TemplateProcessor{
			extension.NewProcessor(extension.Info{ExtName: "noop"}, func(_ context.Context, c string, _ extension.TemplateContext) (string, error) {
				return c, nil
			}),
		},
	}
	RegisterBuiltin(path, exports)
	defer UnregisterBuiltin(path)

	assert.True(t, Exists(path))
	assert.Equal(t, FormatBuiltin, Format(path))

	got, err := NewImporter().Import(context.Background(), path)
	require.NoError(t, err)
	assert.Len(t, got[lua.ExportProcessors], 1)

	UnregisterBuiltin(path)
	assert.False(t, Exists(path))
}

func TestFormatAndExists(t *testing.T) {
	dir := t.TempDir()
	assert.Equal(t, FormatLua, Format("a/index.lua"))
	assert.Equal(t, FormatDeclarative, Format("plugin.YAML"))
	assert.Equal(t, FormatDeclarative, Format("plugin.json"))
	assert.Equal(t, "", Format("index.ts"))

	assert.True(t, Exists(writeFile(t, dir, "index.lua", "return {}")))
	assert.False(t, Exists(writeFile(t, dir, "index.ts", "")))
	assert.False(t, Exists(filepath.Join(dir, "nope.lua")))
	assert.False(t, Exists(dir))
}
