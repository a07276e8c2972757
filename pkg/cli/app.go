package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/AdamManuel-dev/prompt-template-engine-sub000/pkg/async"
	"github.com/AdamManuel-dev/prompt-template-engine-sub000/pkg/commands"
	"github.com/AdamManuel-dev/prompt-template-engine-sub000/pkg/config"
	"github.com/AdamManuel-dev/prompt-template-engine-sub000/pkg/marketplace"
	"github.com/AdamManuel-dev/prompt-template-engine-sub000/pkg/module"
	"github.com/AdamManuel-dev/prompt-template-engine-sub000/pkg/observability"
	"github.com/AdamManuel-dev/prompt-template-engine-sub000/pkg/plugins"
)

// App wires configuration, plugins and the marketplace behind one cobra tree
type App struct {
	Config    *config.Config
	Log       *logrus.Logger
	Metrics   *observability.Metrics
	Manager   *plugins.Manager
	Validator *plugins.Validator
	Market    *marketplace.Service
	Health    *observability.HealthChecker

	root     *cobra.Command
	out      io.Writer
	shutdown *observability.ShutdownManager
}

// AppOption configures an App
type AppOption func(*appOptions)

type appOptions struct {
	out      io.Writer
	errOut   io.Writer
	exitFunc func(int)
}

// WithOutput sets where command output goes
func WithOutput(w io.Writer) AppOption {
	return func(o *appOptions) {
		o.out = w
	}
}

// WithLogOutput sets where logs go
func WithLogOutput(w io.Writer) AppOption {
	return func(o *appOptions) {
		o.errOut = w
	}
}

// WithExitFunc replaces os.Exit for failed plugin command actions
func WithExitFunc(exit func(int)) AppOption {
	return func(o *appOptions) {
		o.exitFunc = exit
	}
}

// NewApp builds the application from cfg
func NewApp(cfg *config.Config, opts ...AppOption) (*App, error) {
	o := &appOptions{out: os.Stdout, errOut: os.Stderr}
	for _, opt := range opts {
		opt(o)
	}

	log := observability.NewLogger(
		observability.ParseLogLevel(cfg.Observability.LogLevel),
		observability.LogFormat(strings.ToLower(cfg.Observability.LogFormat)),
		o.errOut,
	)

	var metrics *observability.Metrics
	if cfg.Observability.MetricsEnabled {
		metrics = observability.NewMetrics(nil)
	}

	app := &App{
		Config:   cfg,
		Log:      log,
		Metrics:  metrics,
		out:      o.out,
		shutdown: observability.NewShutdownManager(log, 0),
	}
	app.root = newRootCommand(app)

	importer := module.NewImporter(
		module.WithLogger(log),
		module.WithMetrics(metrics),
		module.WithCache(cfg.Modules.CacheSize, cfg.Modules.CacheTTL),
	)
	registry := commands.NewRegistry(app.root,
		commands.WithLogger(log),
		commands.WithImporter(importer),
		commands.WithMetrics(metrics),
		commands.WithExitFunc(o.exitFunc),
	)

	app.Validator = plugins.NewValidator(log)
	loaderOpts := []plugins.LoaderOption{
		plugins.WithLogger(log),
		plugins.WithImporter(importer),
		plugins.WithMetrics(metrics),
		plugins.WithGlobalDirResolver(cfg.GlobalDirResolver()),
		plugins.WithPluginDirs(cfg.Plugins.Dirs...),
	}
	if !cfg.Plugins.DefaultDirs {
		loaderOpts = append(loaderOpts, plugins.WithoutDefaultDirs())
	}
	if cfg.Plugins.Verify {
		loaderOpts = append(loaderOpts, plugins.WithValidator(app.Validator))
	}

	app.Manager = plugins.NewManager(plugins.NewLoader(registry, loaderOpts...),
		plugins.WithImportTimeout(cfg.Plugins.ImportTimeout),
		plugins.WithHookTimeout(cfg.Plugins.HookTimeout),
	)

	client, err := marketplace.NewLocalClient(cfg.Marketplace.CatalogDir, log)
	if err != nil {
		return nil, fmt.Errorf("open marketplace catalog: %w", err)
	}
	app.Market = marketplace.NewService(client,
		marketplace.WithHooks(app.Manager),
		marketplace.WithVerifier(plugins.NewVerifier(app.Validator, log)),
		marketplace.WithTemplateDir(cfg.Marketplace.TemplateDir),
		marketplace.WithPluginDir(cfg.Marketplace.PluginDir),
		marketplace.WithLogger(log),
	)

	app.Health = observability.NewHealthChecker()
	plugins.RegisterHealthChecks(app.Health, app.Manager)
	app.Health.Register("catalog", func(ctx context.Context) (string, string) {
		info, err := os.Stat(client.Root())
		if err != nil || !info.IsDir() {
			return observability.StatusUnhealthy, fmt.Sprintf("catalog %s is not a directory", client.Root())
		}
		return observability.StatusHealthy, client.Root()
	})

	return app, nil
}

// Root returns the cobra root command
func (a *App) Root() *cobra.Command {
	return a.root
}

// Load discovers and loads plugins so their commands join the command tree.
// With watching enabled it also reloads plugins in the background until Close.
func (a *App) Load(ctx context.Context) []*plugins.EnhancedPlugin {
	loaded := a.Manager.DiscoverAndLoad(ctx)

	if a.Config.Plugins.Watch {
		if err := a.startWatcher(ctx); err != nil {
			a.Log.WithError(err).Warn("Plugin watching disabled")
		}
	}
	return loaded
}

func (a *App) startWatcher(ctx context.Context) error {
	watcher, err := plugins.WatchManager(a.Manager, a.Config.Plugins.WatchDebounce)
	if err != nil {
		return err
	}

	watchCtx, cancel := context.WithCancel(ctx)
	a.shutdown.RegisterShutdownFunc(func(context.Context) error {
		cancel()
		return watcher.Close()
	})
	async.SafeGo(watchCtx, a.Log, "plugin watcher", watcher.Run)
	return nil
}

// Execute runs the command line in args
func (a *App) Execute(ctx context.Context, args []string) error {
	a.root.SetArgs(args)
	return a.root.ExecuteContext(ctx)
}

// Close stops background work started by Load
func (a *App) Close() error {
	return a.shutdown.Shutdown()
}
