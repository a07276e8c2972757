package marketplace

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AdamManuel-dev/prompt-template-engine-sub000/pkg/extension"
	"github.com/AdamManuel-dev/prompt-template-engine-sub000/pkg/plugins"
)

type hookCall struct {
	hook extension.HookName
	args []interface{}
}

// fakeHooks records every hook invocation
type fakeHooks struct {
	mu    sync.Mutex
	calls []hookCall
}

func (f *fakeHooks) ExecuteMarketplaceHooks(_ context.Context, hook extension.HookName, args ...interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, hookCall{hook: hook, args: args})
}

func (f *fakeHooks) names() []extension.HookName {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []extension.HookName
	for _, c := range f.calls {
		out = append(out, c.hook)
	}
	return out
}

func newTestService(t *testing.T) (*Service, *LocalClient, *fakeHooks) {
	t.Helper()
	client := newTestClient(t)
	hooks := &fakeHooks{}
	root := t.TempDir()
	svc := NewService(client,
		WithHooks(hooks),
		WithVerifier(plugins.NewVerifier(nil, getTestLogger())),
		WithTemplateDir(filepath.Join(root, "templates")),
		WithPluginDir(filepath.Join(root, "plugins")),
		WithLogger(getTestLogger()),
	)
	return svc, client, hooks
}

func TestValidateManifest(t *testing.T) {
	tests := []struct {
		name     string
		manifest *Manifest
		wantErr  bool
		errMsg   string
	}{
		{
			name: "valid template",
			manifest: &Manifest{
				ID:            "test-template",
				Name:          "Test Template",
				Version:       "1.0.0",
				Author:        "Test Author",
				Type:          TypeTemplate,
				SecurityLevel: SecurityLevelCommunity,
			},
		},
		{
			name:     "missing ID",
			manifest: &Manifest{Name: "Test", Version: "1.0.0", Author: "Test Author"},
			wantErr:  true,
			errMsg:   "template ID is required",
		},
		{
			name:     "bad ID",
			manifest: &Manifest{ID: "has space", Name: "Test", Version: "1.0.0", Author: "Test Author"},
			wantErr:  true,
			errMsg:   "may only contain",
		},
		{
			name:     "missing name",
			manifest: &Manifest{ID: "t", Version: "1.0.0", Author: "Test Author"},
			wantErr:  true,
			errMsg:   "template name is required",
		},
		{
			name:     "missing author",
			manifest: &Manifest{ID: "t", Name: "Test", Version: "1.0.0"},
			wantErr:  true,
			errMsg:   "template author is required",
		},
		{
			name:     "bad version",
			manifest: &Manifest{ID: "t", Name: "Test", Version: "latest", Author: "Test Author"},
			wantErr:  true,
			errMsg:   "invalid version",
		},
		{
			name:     "invalid type",
			manifest: &Manifest{ID: "t", Name: "Test", Version: "1.0.0", Author: "Test Author", Type: "invalid"},
			wantErr:  true,
			errMsg:   "invalid template type",
		},
		{
			name:     "invalid security level",
			manifest: &Manifest{ID: "t", Name: "Test", Version: "1.0.0", Author: "Test Author", SecurityLevel: "invalid"},
			wantErr:  true,
			errMsg:   "invalid security level",
		},
		{
			name:     "defaults",
			manifest: &Manifest{ID: "t", Name: "Test", Version: "1.0.0-rc.1", Author: "Test Author"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateManifest(tt.manifest)

			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidTemplate)
				assert.Contains(t, err.Error(), tt.errMsg)
				return
			}
			assert.NoError(t, err)
			assert.NotEmpty(t, tt.manifest.Type)
			assert.NotEmpty(t, tt.manifest.SecurityLevel)
		})
	}
}

func TestService_Publish(t *testing.T) {
	svc, client, hooks := newTestService(t)
	ctx := context.Background()

	dir := writeTemplate(t, Manifest{ID: "review", Name: "Review", Version: "1.0.0", Author: "A"}, map[string]string{"prompt.md": "x"})
	published, err := svc.Publish(ctx, dir)
	require.NoError(t, err)
	assert.Equal(t, "1.0.0", published.Version)

	assert.Equal(t, []extension.HookName{extension.HookBeforePublish, extension.HookAfterPublish}, hooks.names())
	before := hooks.calls[0].args[0].(map[string]interface{})
	assert.Equal(t, "review", before["id"])
	assert.Equal(t, TypeTemplate, before["type"])

	tpl, err := client.Get(ctx, "review")
	require.NoError(t, err)
	assert.Equal(t, SecurityLevelCommunity, tpl.SecurityLevel)

	_, err = svc.Publish(ctx, t.TempDir())
	assert.ErrorIs(t, err, ErrInvalidTemplate)

	invalid := writeTemplate(t, Manifest{ID: "x", Version: "1.0.0"}, nil)
	_, err = svc.Publish(ctx, invalid)
	assert.ErrorIs(t, err, ErrInvalidTemplate)
	assert.Len(t, hooks.calls, 2, "invalid manifests never reach the hooks")
}

func TestService_PublishRejectsUnsafePlugin(t *testing.T) {
	svc, _, hooks := newTestService(t)

	dir := writeTemplate(t, Manifest{ID: "evil", Name: "Evil", Version: "1.0.0", Author: "A", Type: TypePlugin}, map[string]string{
		"plugin.json": `{"name": "exec", "version": "1.0.0"}`,
	})

	_, err := svc.Publish(context.Background(), dir)
	assert.ErrorIs(t, err, ErrVerificationFailed)
	assert.Empty(t, hooks.names())
}

func TestService_Install(t *testing.T) {
	svc, client, hooks := newTestService(t)
	ctx := context.Background()

	publish(t, client, manifest("review", "1.0.0"), map[string]string{"prompt.md": "v1"})
	publish(t, client, manifest("review", "1.2.0"), map[string]string{"prompt.md": "v1.2"})

	inst, err := svc.Install(ctx, "review", "latest")
	require.NoError(t, err)
	assert.Equal(t, "1.2.0", inst.Version)
	assert.Equal(t, filepath.Join(svc.templateDir, "review"), inst.Path)

	data, err := os.ReadFile(filepath.Join(inst.Path, "prompt.md"))
	require.NoError(t, err)
	assert.Equal(t, "v1.2", string(data))

	require.Equal(t, []extension.HookName{extension.HookBeforeInstall, extension.HookAfterInstall}, hooks.names())
	assert.Equal(t, []interface{}{"review", "1.2.0"}, hooks.calls[0].args)
	after := hooks.calls[1].args[2].(map[string]interface{})
	assert.Equal(t, inst.Path, after["path"])

	inst, err = svc.Install(ctx, "review", "1.0.0")
	require.NoError(t, err)
	data, err = os.ReadFile(filepath.Join(inst.Path, "prompt.md"))
	require.NoError(t, err)
	assert.Equal(t, "v1", string(data), "reinstall replaces the previous version")

	installed, err := svc.Installed(ctx)
	require.NoError(t, err)
	require.Len(t, installed, 1)
	assert.Equal(t, "1.0.0", installed[0].Version)

	_, err = svc.Install(ctx, "missing", "")
	assert.ErrorIs(t, err, ErrTemplateNotFound)
	_, err = svc.Install(ctx, "review", "3.0.0")
	assert.ErrorIs(t, err, ErrVersionNotFound)

	entries, err := os.ReadDir(svc.templateDir)
	require.NoError(t, err)
	for _, e := range entries {
		assert.NotContains(t, e.Name(), ".review-", "staging directories are cleaned up")
	}
}

func TestService_InstallPlugin(t *testing.T) {
	svc, client, _ := newTestService(t)
	ctx := context.Background()

	m := manifest("greeter", "1.0.0")
	m.Type = TypePlugin
	publish(t, client, m, map[string]string{
		"plugin.json":                 `{"name": "greeter", "version": "1.0.0", "author": "A", "description": "Greets"}`,
		"commands/hello.command.lua": `return {name = "hello", description = "d", action = function() end}`,
	})

	inst, err := svc.Install(ctx, "greeter", "")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(svc.pluginDir, "greeter"), inst.Path)
	assert.FileExists(t, filepath.Join(inst.Path, "plugin.json"))

	bad := manifest("rogue", "1.0.0")
	bad.Type = TypePlugin
	publish(t, client, bad, map[string]string{
		"plugin.json": `{"name": "admin", "version": "1.0.0"}`,
	})

	_, err = svc.Install(ctx, "rogue", "")
	assert.ErrorIs(t, err, ErrVerificationFailed)
	assert.NoDirExists(t, filepath.Join(svc.pluginDir, "rogue"))

	installed, err := svc.Installed(ctx)
	require.NoError(t, err)
	require.Len(t, installed, 1)
	assert.Equal(t, "greeter", installed[0].TemplateID)
}

func TestService_Update(t *testing.T) {
	svc, client, hooks := newTestService(t)
	ctx := context.Background()

	_, err := svc.Update(ctx, "review")
	assert.ErrorIs(t, err, ErrNotInstalled)

	publish(t, client, manifest("review", "1.0.0"), map[string]string{"prompt.md": "v1"})
	_, err = svc.Install(ctx, "review", "")
	require.NoError(t, err)

	result, err := svc.Update(ctx, "review")
	require.NoError(t, err)
	assert.False(t, result.Updated)
	assert.Equal(t, "1.0.0", result.ToVersion)

	publish(t, client, manifest("review", "2.0.0"), map[string]string{"prompt.md": "v2"})
	hooks.calls = nil

	result, err = svc.Update(ctx, "review")
	require.NoError(t, err)
	assert.True(t, result.Updated)
	assert.Equal(t, "1.0.0", result.FromVersion)
	assert.Equal(t, "2.0.0", result.ToVersion)
	assert.Equal(t, "2.0.0", result.Installation.Version)

	assert.Equal(t, []extension.HookName{extension.HookBeforeUpdate, extension.HookAfterUpdate}, hooks.names())
	assert.Equal(t, []interface{}{"review", "1.0.0", "2.0.0"}, hooks.calls[0].args)

	data, err := os.ReadFile(filepath.Join(result.Installation.Path, "prompt.md"))
	require.NoError(t, err)
	assert.Equal(t, "v2", string(data))
}

func TestService_Uninstall(t *testing.T) {
	svc, client, _ := newTestService(t)
	ctx := context.Background()

	publish(t, client, manifest("gone", "1.0.0"), map[string]string{"prompt.md": "x"})
	inst, err := svc.Install(ctx, "gone", "")
	require.NoError(t, err)

	require.NoError(t, svc.Uninstall(ctx, "gone"))
	assert.NoDirExists(t, inst.Path)

	installed, err := svc.Installed(ctx)
	require.NoError(t, err)
	assert.Empty(t, installed)

	assert.ErrorIs(t, svc.Uninstall(ctx, "gone"), ErrNotInstalled)
}

func TestService_WithoutHooks(t *testing.T) {
	client := newTestClient(t)
	svc := NewService(client, WithTemplateDir(t.TempDir()), WithLogger(getTestLogger()))

	publish(t, client, manifest("plain", "1.0.0"), nil)
	_, err := svc.Install(context.Background(), "plain", "")
	assert.NoError(t, err)
}

func TestService_HooksFromManager(t *testing.T) {
	client := newTestClient(t)
	loader := plugins.NewLoader(nil, plugins.WithLogger(getTestLogger()), plugins.WithoutDefaultDirs(), plugins.WithGlobalDirResolver(nil))
	manager := plugins.NewManager(loader)

	var mu sync.Mutex
	var seen []string
	ep := plugins.NewEnhancedPlugin(&plugins.Plugin{Metadata: &plugins.Metadata{Name: "audit", Version: "1.0.0"}}, nil)
	ep.MarketplaceHooks = []extension.MarketplaceHook{
		extension.NewMarketplaceHook(extension.Info{ExtName: "audit"}, map[extension.HookName]extension.HookFunc{
			extension.HookAfterInstall: func(_ context.Context, args ...interface{}) error {
				mu.Lock()
				defer mu.Unlock()
				seen = append(seen, args[0].(string))
				return nil
			},
		}),
	}
	require.NoError(t, manager.RegisterPlugin(context.Background(), ep))

	svc := NewService(client, WithHooks(manager), WithTemplateDir(t.TempDir()), WithLogger(getTestLogger()))
	publish(t, client, manifest("hooked", "1.0.0"), nil)

	_, err := svc.Install(context.Background(), "hooked", "")
	require.NoError(t, err)
	assert.Equal(t, []string{"hooked"}, seen)
}
