// Package observability provides structured logging, Prometheus metrics,
// health checks and shutdown handling for the plugin system.
//
// # Overview
//
// Logging uses logrus throughout. Metrics live on a private Prometheus
// registry so a CLI process can print them on demand instead of serving them.
//
// # Structured Logging
//
// Create logger:
//
//	logger := observability.NewLogger(observability.ParseLogLevel("debug"), observability.JSONFormat, os.Stderr)
//	observability.PluginLogger(logger, "demo").Info("Plugin loaded")
//
// # Prometheus Metrics
//
// Record plugin activity:
//
//	metrics := observability.NewMetrics(nil)
//	metrics.RecordPluginLoad(err)
//	metrics.RecordExtensionCall("processors", started, err)
//
// The Record* methods are no-ops on a nil *Metrics, so components accept an
// optional metrics value. Dump the exposition text:
//
//	metrics.WriteText(os.Stdout)
//
// # Health Checks
//
//	checker := observability.NewHealthChecker()
//	checker.Register("catalog", func(ctx context.Context) (string, string) {
//		return observability.StatusHealthy, ""
//	})
//	status := checker.Check(ctx)
//
// # Shutdown
//
//	ctx, stop := observability.SignalContext(context.Background())
//	defer stop()
//	sm := observability.NewShutdownManager(logger, 0)
//	sm.RegisterShutdownFunc(func(context.Context) error { return watcher.Close() })
//	sm.WaitForShutdown(ctx)
//
// # Related Packages
//
//   - pkg/config: Observability configuration
//   - pkg/plugins: Plugin health checks and metrics
package observability
