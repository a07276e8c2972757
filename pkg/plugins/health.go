package plugins

import (
	"context"
	"fmt"
	"os"

	"github.com/AdamManuel-dev/prompt-template-engine-sub000/pkg/observability"
)

// RegisterHealthChecks adds plugin system checks to h
func RegisterHealthChecks(h *observability.HealthChecker, m *Manager) {
	h.Register("plugin_dirs", func(ctx context.Context) (string, string) {
		dirs := m.Loader().Dirs()
		present := 0
		for _, dir := range dirs {
			if info, err := os.Stat(dir); err == nil && info.IsDir() {
				present++
			}
		}
		if present == 0 {
			return observability.StatusDegraded, fmt.Sprintf("none of %d search directories exist", len(dirs))
		}
		return observability.StatusHealthy, fmt.Sprintf("%d of %d search directories present", present, len(dirs))
	})

	h.RegisterOptional("plugins", func(ctx context.Context) (string, string) {
		stats := m.Stats()
		if failed := stats.TotalPlugins - stats.LoadedPlugins; failed > 0 {
			return observability.StatusDegraded, fmt.Sprintf("%d of %d plugins failed to load", failed, stats.TotalPlugins)
		}
		return observability.StatusHealthy, fmt.Sprintf("%d plugins loaded", stats.LoadedPlugins)
	})
}
