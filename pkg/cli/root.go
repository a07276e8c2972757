package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/AdamManuel-dev/prompt-template-engine-sub000/pkg/observability"
)

// newRootCommand creates the root command with the built-in command groups.
// Plugin commands are added next to them as plugins load.
func newRootCommand(app *App) *cobra.Command {
	root := &cobra.Command{
		Use:           "pte",
		Short:         "Prompt template engine with plugins and a template marketplace",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if level, _ := cmd.Flags().GetString("log-level"); level != "" {
				app.Log.SetLevel(observability.ParseLogLevel(level))
			}
		},
	}
	root.SetOut(app.out)
	root.PersistentFlags().String("log-level", "", "Override the configured log level")

	root.AddCommand(
		newPluginsCommand(app),
		newCommandsCommand(app),
		newMarketplaceCommand(app),
		newDoctorCommand(app),
	)
	return root
}

// newCommandsCommand lists the commands plugins registered
func newCommandsCommand(app *App) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "commands",
		Short: "List commands contributed by plugins",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			registry := app.Manager.Registry()
			summaries := registry.List()
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), summaries)
			}

			tw := newTable(cmd.OutOrStdout(), "NAME", "PLUGIN", "DESCRIPTION")
			for _, s := range summaries {
				owner, _ := app.Manager.Loader().CommandOwner(s.Name)
				fmt.Fprintf(tw, "%s\t%s\t%s\n", s.Name, orDash(owner), s.Description)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON")
	return cmd
}

// newDoctorCommand reports the health of the plugin system and catalog
func newDoctorCommand(app *App) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check plugin directories, loaded plugins and the catalog",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			status := app.Health.Check(cmd.Context())

			if asJSON {
				if err := writeJSON(cmd.OutOrStdout(), status); err != nil {
					return err
				}
			} else {
				tw := newTable(cmd.OutOrStdout(), "CHECK", "STATUS", "MESSAGE")
				for _, name := range app.Health.Names() {
					dep := status.Checks[name]
					fmt.Fprintf(tw, "%s\t%s\t%s\n", name, dep.Status, dep.Message)
				}
				if err := tw.Flush(); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "\nOverall: %s\n", status.Status)
			}

			if status.Status == observability.StatusUnhealthy {
				return fmt.Errorf("health check failed")
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON")
	return cmd
}

func newTable(w io.Writer, headers ...string) *tabwriter.Writer {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for i, h := range headers {
		if i > 0 {
			fmt.Fprint(tw, "\t")
		}
		fmt.Fprint(tw, h)
	}
	fmt.Fprintln(tw)
	return tw
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
