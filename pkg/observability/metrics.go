package observability

import (
	"io"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
)

// Metrics holds the Prometheus metrics of the plugin system
type Metrics struct {
	registry *prometheus.Registry

	// Discovery and loading
	PluginsDiscoveredTotal *prometheus.CounterVec
	PluginLoadsTotal       *prometheus.CounterVec
	PluginsLoaded          prometheus.Gauge
	ModuleImportDuration   *prometheus.HistogramVec

	// Commands
	CommandsRegistered prometheus.Gauge
	CommandRunsTotal   *prometheus.CounterVec

	// Extensions
	ExtensionsRegistered  *prometheus.GaugeVec
	ExtensionCallsTotal   *prometheus.CounterVec
	ExtensionCallDuration *prometheus.HistogramVec
}

// NewMetrics creates and registers all plugin metrics on registry.
// A nil registry gets a private one.
func NewMetrics(registry *prometheus.Registry) *Metrics {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	m := &Metrics{
		registry: registry,

		PluginsDiscoveredTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pte_plugins_discovered_total",
				Help: "Total number of plugin directories inspected during discovery",
			},
			[]string{"status"},
		),
		PluginLoadsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pte_plugin_loads_total",
				Help: "Total number of plugin load attempts",
			},
			[]string{"status"},
		),
		PluginsLoaded: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "pte_plugins_loaded",
				Help: "Number of currently loaded enhanced plugins",
			},
		),
		ModuleImportDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pte_module_import_duration_seconds",
				Help:    "Plugin module import duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"format"},
		),

		CommandsRegistered: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "pte_commands_registered",
				Help: "Number of registered CLI commands",
			},
		),
		CommandRunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pte_command_runs_total",
				Help: "Total number of command invocations",
			},
			[]string{"command", "status"},
		),

		ExtensionsRegistered: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "pte_extensions_registered",
				Help: "Number of registered extensions per extension point",
			},
			[]string{"point"},
		),
		ExtensionCallsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pte_extension_calls_total",
				Help: "Total number of extension invocations",
			},
			[]string{"point", "status"},
		),
		ExtensionCallDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pte_extension_call_duration_seconds",
				Help:    "Extension invocation duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"point"},
		),
	}

	registry.MustRegister(
		m.PluginsDiscoveredTotal,
		m.PluginLoadsTotal,
		m.PluginsLoaded,
		m.ModuleImportDuration,
		m.CommandsRegistered,
		m.CommandRunsTotal,
		m.ExtensionsRegistered,
		m.ExtensionCallsTotal,
		m.ExtensionCallDuration,
	)

	return m
}

// Registry returns the underlying Prometheus registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordExtensionCall records one extension invocation
func (m *Metrics) RecordExtensionCall(point string, started time.Time, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.ExtensionCallsTotal.WithLabelValues(point, status).Inc()
	m.ExtensionCallDuration.WithLabelValues(point).Observe(time.Since(started).Seconds())
}

// RecordPluginLoad records one plugin load attempt
func (m *Metrics) RecordPluginLoad(err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.PluginLoadsTotal.WithLabelValues("error").Inc()
		return
	}
	m.PluginLoadsTotal.WithLabelValues("success").Inc()
}

// RecordCommandRun records one command invocation
func (m *Metrics) RecordCommandRun(command string, err error) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	m.CommandRunsTotal.WithLabelValues(command, status).Inc()
}

// WriteText writes all gathered metrics in the Prometheus text exposition format
func (m *Metrics) WriteText(w io.Writer) error {
	families, err := m.registry.Gather()
	if err != nil {
		return err
	}
	for _, family := range families {
		if _, err := expfmt.MetricFamilyToText(w, family); err != nil {
			return err
		}
	}
	return nil
}
