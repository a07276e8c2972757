package cli

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/AdamManuel-dev/prompt-template-engine-sub000/pkg/async"
	"github.com/AdamManuel-dev/prompt-template-engine-sub000/pkg/observability"
	"github.com/AdamManuel-dev/prompt-template-engine-sub000/pkg/plugins"
)

// pluginView is the printable state of one discovered plugin
type pluginView struct {
	Name           string                  `json:"name"`
	Version        string                  `json:"version"`
	Description    string                  `json:"description,omitempty"`
	Author         string                  `json:"author,omitempty"`
	Path           string                  `json:"path"`
	Source         string                  `json:"source"`
	Status         string                  `json:"status"`
	Error          string                  `json:"error,omitempty"`
	LoadedAt       *time.Time              `json:"loaded_at,omitempty"`
	Dependencies   map[string]string       `json:"dependencies,omitempty"`
	Commands       []string                `json:"commands,omitempty"`
	Extensions     map[string]int          `json:"extensions,omitempty"`
	SecurityIssues []plugins.SecurityIssue `json:"security_issues,omitempty"`
}

func newPluginsCommand(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plugins",
		Short: "Inspect and manage plugins",
	}
	cmd.AddCommand(
		newPluginsListCommand(app),
		newPluginsInfoCommand(app),
		newPluginsStatsCommand(app),
		newPluginsMetricsCommand(app),
		newPluginsReloadCommand(app),
		newPluginsToggleCommand(app, "enable"),
		newPluginsToggleCommand(app, "disable"),
		newPluginsVerifyCommand(app),
		newPluginsWatchCommand(app),
	)
	return cmd
}

func newPluginsListCommand(app *App) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List discovered plugins",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			discovered := app.Manager.Loader().Plugins()
			plugins.SortByName(discovered)
			views := make([]pluginView, 0, len(discovered))
			for _, p := range discovered {
				views = append(views, viewOf(app, p, false))
			}

			if asJSON {
				return writeJSON(cmd.OutOrStdout(), views)
			}
			tw := newTable(cmd.OutOrStdout(), "NAME", "VERSION", "STATUS", "PATH")
			for _, v := range views {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", v.Name, orDash(v.Version), v.Status, v.Path)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON")
	return cmd
}

func newPluginsInfoCommand(app *App) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "info <name>",
		Short: "Show details of one plugin",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, ok := app.Manager.Loader().Plugin(args[0])
			if !ok {
				return fmt.Errorf("%w: %s", plugins.ErrPluginNotFound, args[0])
			}
			v := viewOf(app, p, true)

			if asJSON {
				return writeJSON(cmd.OutOrStdout(), v)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Name:        %s\n", v.Name)
			fmt.Fprintf(out, "Version:     %s\n", orDash(v.Version))
			fmt.Fprintf(out, "Description: %s\n", orDash(v.Description))
			fmt.Fprintf(out, "Author:      %s\n", orDash(v.Author))
			fmt.Fprintf(out, "Path:        %s\n", v.Path)
			fmt.Fprintf(out, "Metadata:    %s\n", v.Source)
			fmt.Fprintf(out, "Status:      %s\n", v.Status)
			if v.Error != "" {
				fmt.Fprintf(out, "Error:       %s\n", v.Error)
			}
			if len(v.Commands) > 0 {
				fmt.Fprintf(out, "Commands:    %v\n", v.Commands)
			}
			for _, point := range sortedKeys(v.Extensions) {
				fmt.Fprintf(out, "  %-18s %d\n", point, v.Extensions[point])
			}
			for _, issue := range v.SecurityIssues {
				fmt.Fprintf(out, "Issue:       [%s] %s (%s:%d)\n", issue.Severity, issue.Description, issue.File, issue.Line)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON")
	return cmd
}

func newPluginsStatsCommand(app *App) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Summarize plugins, commands and extensions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			stats := app.Manager.Stats()
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), stats)
			}
			tw := newTable(cmd.OutOrStdout(), "KIND", "COUNT")
			fmt.Fprintf(tw, "plugins\t%d\n", stats.TotalPlugins)
			fmt.Fprintf(tw, "loaded\t%d\n", stats.LoadedPlugins)
			fmt.Fprintf(tw, "commands\t%d\n", stats.Commands)
			fmt.Fprintf(tw, "processors\t%d\n", stats.Processors)
			fmt.Fprintf(tw, "validators\t%d\n", stats.Validators)
			fmt.Fprintf(tw, "transformers\t%d\n", stats.Transformers)
			fmt.Fprintf(tw, "marketplace hooks\t%d\n", stats.MarketplaceHooks)
			fmt.Fprintf(tw, "context providers\t%d\n", stats.ContextProviders)
			fmt.Fprintf(tw, "file generators\t%d\n", stats.FileGenerators)
			return tw.Flush()
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON")
	return cmd
}

func newPluginsMetricsCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "metrics",
		Short: "Print plugin metrics in the Prometheus text format",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if app.Metrics == nil {
				return fmt.Errorf("metrics are disabled")
			}
			return app.Metrics.WriteText(cmd.OutOrStdout())
		},
	}
}

func newPluginsReloadCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "reload",
		Short: "Unload every plugin and discover them again",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			loaded := app.Manager.Reload(cmd.Context())
			fmt.Fprintf(cmd.OutOrStdout(), "Reloaded %d plugins\n", len(loaded))
			return nil
		},
	}
}

// newPluginsToggleCommand runs the onEnable or onDisable hook of a plugin
func newPluginsToggleCommand(app *App, action string) *cobra.Command {
	return &cobra.Command{
		Use:   action + " <name>",
		Short: fmt.Sprintf("Run the %s hook of a loaded plugin", action),
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var err error
			if action == "enable" {
				err = app.Manager.Enable(cmd.Context(), args[0])
			} else {
				err = app.Manager.Disable(cmd.Context(), args[0])
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Plugin %s %sd\n", args[0], action)
			return nil
		},
	}
}

func newPluginsVerifyCommand(app *App) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "verify <dir>",
		Short: "Validate metadata and scan a plugin directory for security issues",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			result := plugins.NewVerifier(app.Validator, app.Log).Verify(cmd.Context(), args[0])

			if asJSON {
				if err := writeJSON(cmd.OutOrStdout(), result); err != nil {
					return err
				}
			} else {
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Plugin:  %s %s\n", orDash(result.Plugin), result.Version)
				fmt.Fprintf(out, "Status:  %s\n", result.Status)
				if result.Reason != "" {
					fmt.Fprintf(out, "Reason:  %s\n", result.Reason)
				}
				for _, e := range result.MetadataErrors {
					fmt.Fprintf(out, "Metadata: %s\n", e.Error())
				}
				for _, issue := range result.SecurityIssues {
					fmt.Fprintf(out, "Issue:   [%s] %s (%s:%d)\n", issue.Severity, issue.Description, issue.File, issue.Line)
				}
			}

			if !result.Approved() {
				return fmt.Errorf("plugin verification %s", result.Status)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON")
	return cmd
}

func newPluginsWatchCommand(app *App) *cobra.Command {
	var debounce time.Duration
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Reload plugins whenever their directories change",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			watcher, err := plugins.WatchManager(app.Manager, debounce)
			if err != nil {
				return fmt.Errorf("start watcher: %w", err)
			}

			sm := observability.NewShutdownManager(app.Log, 0)
			sm.RegisterShutdownFunc(func(ctx context.Context) error {
				return watcher.Close()
			})

			async.SafeGo(cmd.Context(), app.Log, "plugin watcher", watcher.Run)
			fmt.Fprintf(cmd.OutOrStdout(), "Watching %d plugin directories\n", len(app.Manager.Loader().Dirs()))
			return sm.WaitForShutdown(cmd.Context())
		},
	}
	cmd.Flags().DurationVar(&debounce, "debounce", app.Config.Plugins.WatchDebounce, "Wait this long for changes to settle")
	return cmd
}

// viewOf builds the printable state of p. detail adds commands, extensions and issues.
func viewOf(app *App, p *plugins.Plugin, detail bool) pluginView {
	v := pluginView{
		Name:         p.Name(),
		Version:      p.Metadata.Version,
		Description:  p.Metadata.Description,
		Author:       p.Metadata.Author,
		Path:         p.Path,
		Source:       string(p.Source),
		Status:       "discovered",
		Dependencies: p.Metadata.Dependencies,
	}

	ep, loaded := app.Manager.Plugin(p.Name())
	switch {
	case loaded:
		v.Status = "loaded"
		at := p.LoadedAt()
		if !at.IsZero() {
			v.LoadedAt = &at
		}
	case p.Err() != nil:
		v.Status = "error"
		v.Error = p.Err().Error()
	}

	if !detail {
		return v
	}

	loader := app.Manager.Loader()
	for name := range app.Manager.Registry().Commands() {
		if owner, ok := loader.CommandOwner(name); ok && owner == p.Name() {
			v.Commands = append(v.Commands, name)
		}
	}
	sort.Strings(v.Commands)

	if ep != nil {
		v.Extensions = map[string]int{
			"processors":        len(ep.Processors),
			"validators":        len(ep.Validators),
			"transformers":      len(ep.Transformers),
			"marketplace_hooks": len(ep.MarketplaceHooks),
			"context_providers": len(ep.ContextProviders),
			"file_generators":   len(ep.FileGenerators),
		}
	}
	v.SecurityIssues = p.SecurityIssues
	return v
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
