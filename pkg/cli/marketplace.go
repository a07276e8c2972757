package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/AdamManuel-dev/prompt-template-engine-sub000/pkg/marketplace"
)

func newMarketplaceCommand(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "marketplace",
		Aliases: []string{"market"},
		Short:   "Browse, install and publish templates and plugins",
	}
	cmd.AddCommand(
		newMarketplaceListCommand(app),
		newMarketplaceInfoCommand(app),
		newMarketplaceInstallCommand(app),
		newMarketplacePublishCommand(app),
		newMarketplaceUpdateCommand(app),
		newMarketplaceUninstallCommand(app),
		newMarketplaceInstalledCommand(app),
	)
	return cmd
}

func newMarketplaceListCommand(app *App) *cobra.Command {
	var (
		req    marketplace.ListRequest
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List catalog entries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := app.Market.List(cmd.Context(), &req)
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), resp)
			}

			tw := newTable(cmd.OutOrStdout(), "ID", "TYPE", "LATEST", "DOWNLOADS", "SECURITY", "NAME")
			for _, t := range resp.Templates {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%s\n", t.ID, t.Type, orDash(t.LatestVersion), t.DownloadCount, t.SecurityLevel, t.Name)
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "\nShowing %d of %d\n", len(resp.Templates), resp.Total)
			return nil
		},
	}
	cmd.Flags().StringVar(&req.Search, "search", "", "Match name or description")
	cmd.Flags().StringVar(&req.Type, "type", "", "Filter by type (template, plugin)")
	cmd.Flags().StringVar(&req.SecurityLevel, "security-level", "", "Filter by security level")
	cmd.Flags().StringSliceVar(&req.Tags, "tag", nil, "Filter by tag, repeatable")
	cmd.Flags().StringVar(&req.SortBy, "sort", "", "Sort by downloads, name or created_at")
	cmd.Flags().StringVar(&req.SortOrder, "order", "", "Sort order (asc, desc)")
	cmd.Flags().IntVar(&req.Limit, "limit", 0, "Maximum entries to show")
	cmd.Flags().IntVar(&req.Offset, "offset", 0, "Entries to skip")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON")
	return cmd
}

func newMarketplaceInfoCommand(app *App) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "info <id>",
		Short: "Show one catalog entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := app.Market.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), t)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "ID:          %s\n", t.ID)
			fmt.Fprintf(out, "Name:        %s\n", t.Name)
			fmt.Fprintf(out, "Type:        %s\n", t.Type)
			fmt.Fprintf(out, "Author:      %s\n", t.Author)
			fmt.Fprintf(out, "Latest:      %s\n", orDash(t.LatestVersion))
			fmt.Fprintf(out, "Security:    %s\n", t.SecurityLevel)
			fmt.Fprintf(out, "Downloads:   %d\n", t.DownloadCount)
			if len(t.Tags) > 0 {
				fmt.Fprintf(out, "Tags:        %s\n", strings.Join(t.Tags, ", "))
			}
			if t.Description != "" {
				fmt.Fprintf(out, "\n%s\n", t.Description)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON")
	return cmd
}

func newMarketplaceInstallCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "install <id> [version]",
		Short: "Install a template or plugin, latest version by default",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			version := ""
			if len(args) == 2 {
				version = args[1]
			}
			inst, err := app.Market.Install(cmd.Context(), args[0], version)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Installed %s@%s to %s\n", inst.TemplateID, inst.Version, inst.Path)
			return nil
		},
	}
}

func newMarketplacePublishCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "publish [dir]",
		Short: "Publish the template or plugin in dir to the catalog",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) == 1 {
				dir = args[0]
			}
			v, err := app.Market.Publish(cmd.Context(), dir)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Published %s@%s (%d files, %s)\n", v.TemplateID, v.Version, len(v.Files), v.Checksum)
			return nil
		},
	}
}

func newMarketplaceUpdateCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "update <id>",
		Short: "Update an installed entry to the latest version",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := app.Market.Update(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if !res.Updated {
				fmt.Fprintf(cmd.OutOrStdout(), "%s is up to date (%s)\n", res.TemplateID, res.FromVersion)
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Updated %s from %s to %s\n", res.TemplateID, res.FromVersion, res.ToVersion)
			return nil
		},
	}
}

func newMarketplaceUninstallCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "uninstall <id>",
		Short: "Remove an installed entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.Market.Uninstall(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Uninstalled %s\n", args[0])
			return nil
		},
	}
}

func newMarketplaceInstalledCommand(app *App) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "installed",
		Short: "List installed entries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			installed, err := app.Market.Installed(cmd.Context())
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), installed)
			}

			tw := newTable(cmd.OutOrStdout(), "ID", "VERSION", "TYPE", "PATH")
			for _, inst := range installed {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", inst.TemplateID, inst.Version, inst.Type, inst.Path)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON")
	return cmd
}
