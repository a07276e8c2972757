package plugins

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AdamManuel-dev/prompt-template-engine-sub000/pkg/observability"
)

func TestRegisterHealthChecks(t *testing.T) {
	t.Run("healthy", func(t *testing.T) {
		root := t.TempDir()
		writePlugin(t, root, "good", map[string]interface{}{"name": "good", "version": "1.0.0"})

		m := newTestManager(t, root)
		m.DiscoverAndLoad(context.Background())

		h := observability.NewHealthChecker()
		RegisterHealthChecks(h, m)
		assert.Equal(t, []string{"plugin_dirs", "plugins"}, h.Names())

		status := h.Check(context.Background())
		assert.Equal(t, observability.StatusHealthy, status.Status)
		assert.Equal(t, "1 plugins loaded", status.Checks["plugins"].Message)
	})

	t.Run("failed plugin degrades", func(t *testing.T) {
		root := t.TempDir()
		writePlugin(t, root, "good", map[string]interface{}{"name": "good", "version": "1.0.0"})
		broken := writePlugin(t, root, "broken", map[string]interface{}{"name": "broken", "version": "1.0.0"})
		writeFile(t, broken, "index.lua", "this is not lua (")

		m := newTestManager(t, root)
		m.DiscoverAndLoad(context.Background())

		h := observability.NewHealthChecker()
		RegisterHealthChecks(h, m)

		status := h.Check(context.Background())
		assert.Equal(t, observability.StatusDegraded, status.Status)
		assert.Equal(t, observability.StatusDegraded, status.Checks["plugins"].Status)
		assert.Equal(t, "1 of 2 plugins failed to load", status.Checks["plugins"].Message)
	})

	t.Run("missing directories degrade", func(t *testing.T) {
		m := newTestManager(t, filepath.Join(t.TempDir(), "absent"))

		h := observability.NewHealthChecker()
		RegisterHealthChecks(h, m)

		status := h.Check(context.Background())
		require.Contains(t, status.Checks, "plugin_dirs")
		assert.Equal(t, observability.StatusDegraded, status.Checks["plugin_dirs"].Status)
		assert.Equal(t, observability.StatusDegraded, status.Status)
	})
}
