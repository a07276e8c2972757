package observability

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMetrics(t *testing.T) {
	t.Run("registers on the given registry", func(t *testing.T) {
		registry := prometheus.NewRegistry()
		metrics := NewMetrics(registry)

		require.NotNil(t, metrics)
		assert.Same(t, registry, metrics.Registry())
		assert.NotNil(t, metrics.PluginsDiscoveredTotal)
		assert.NotNil(t, metrics.PluginLoadsTotal)
		assert.NotNil(t, metrics.PluginsLoaded)
		assert.NotNil(t, metrics.ModuleImportDuration)
		assert.NotNil(t, metrics.CommandsRegistered)
		assert.NotNil(t, metrics.CommandRunsTotal)
		assert.NotNil(t, metrics.ExtensionsRegistered)
		assert.NotNil(t, metrics.ExtensionCallsTotal)
		assert.NotNil(t, metrics.ExtensionCallDuration)
	})

	t.Run("nil registry gets a private one", func(t *testing.T) {
		a := NewMetrics(nil)
		b := NewMetrics(nil)
		assert.NotSame(t, a.Registry(), b.Registry())
	})

	t.Run("double registration panics", func(t *testing.T) {
		registry := prometheus.NewRegistry()
		NewMetrics(registry)
		assert.Panics(t, func() { NewMetrics(registry) })
	})
}

func TestMetrics_RecordPluginLoad(t *testing.T) {
	m := NewMetrics(nil)

	m.RecordPluginLoad(nil)
	m.RecordPluginLoad(nil)
	m.RecordPluginLoad(errors.New("boom"))

	assert.Equal(t, 2.0, testutil.ToFloat64(m.PluginLoadsTotal.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PluginLoadsTotal.WithLabelValues("error")))
}

func TestMetrics_RecordCommandRun(t *testing.T) {
	m := NewMetrics(nil)

	m.RecordCommandRun("hello", nil)
	m.RecordCommandRun("hello", errors.New("exit 1"))
	m.RecordCommandRun("other", nil)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.CommandRunsTotal.WithLabelValues("hello", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CommandRunsTotal.WithLabelValues("hello", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CommandRunsTotal.WithLabelValues("other", "success")))
}

func TestMetrics_RecordExtensionCall(t *testing.T) {
	m := NewMetrics(nil)

	m.RecordExtensionCall("processors", time.Now().Add(-time.Millisecond), nil)
	m.RecordExtensionCall("processors", time.Now(), errors.New("timeout"))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.ExtensionCallsTotal.WithLabelValues("processors", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ExtensionCallsTotal.WithLabelValues("processors", "error")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.ExtensionCallDuration))
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordPluginLoad(nil)
		m.RecordCommandRun("x", nil)
		m.RecordExtensionCall("x", time.Now(), nil)
	})
}

func TestMetrics_WriteText(t *testing.T) {
	m := NewMetrics(nil)
	m.PluginsLoaded.Set(3)
	m.RecordPluginLoad(nil)

	var buf bytes.Buffer
	require.NoError(t, m.WriteText(&buf))

	out := buf.String()
	assert.Contains(t, out, "# TYPE pte_plugins_loaded gauge")
	assert.Contains(t, out, "pte_plugins_loaded 3")
	assert.Contains(t, out, `pte_plugin_loads_total{status="success"} 1`)
}
