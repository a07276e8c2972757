// Package cli provides the pte command-line interface for plugins and the
// template marketplace.
//
// # Overview
//
// NewApp wires configuration, logging, metrics, the plugin manager and the
// marketplace service behind a cobra command tree. Load discovers plugins,
// and the commands they contribute are bound next to the built-in groups.
//
// # Commands
//
// plugins: Inspect and manage plugins
//
//	pte plugins list [--json]
//	pte plugins info demo
//	pte plugins stats
//	pte plugins metrics          # Prometheus text format
//	pte plugins reload
//	pte plugins enable demo
//	pte plugins verify ./my-plugin
//	pte plugins watch --debounce 500ms
//
// commands: List plugin commands and the plugin that owns each
//
//	pte commands
//
// marketplace: Browse, install and publish
//
//	pte marketplace list --search review --tag code --sort downloads
//	pte marketplace install code-review 1.2.0
//	pte marketplace publish ./my-template
//	pte marketplace update code-review
//	pte marketplace uninstall code-review
//	pte marketplace installed
//
// doctor: Check plugin directories, plugin load failures and the catalog
//
//	pte doctor --json
//
// # Usage Example
//
//	app, err := cli.NewApp(cfg)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer app.Close()
//
//	app.Load(ctx)
//	if err := app.Execute(ctx, os.Args[1:]); err != nil {
//		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
//		os.Exit(1)
//	}
//
// # Related Packages
//
//   - pkg/plugins: Plugin discovery and extension points
//   - pkg/marketplace: Catalog and installs
//   - pkg/config: Application configuration
package cli
