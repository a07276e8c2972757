// Package commands registers CLI commands contributed by the host and by plugins.
//
// A Registry owns the name to Command map and binds each command into a cobra
// root as it is registered. Re-registering a name replaces the earlier command
// and logs a warning. When a bound command's action fails, the error is logged
// and the process exits with status 1 (the exit function is injectable).
//
// Discover scans directories for files named *.command.<ext>, imports each
// through the configured Importer and registers the "default" (or "command")
// export when it satisfies the Command contract.
//
//	registry := commands.NewRegistry(rootCmd,
//		commands.WithLogger(logger),
//		commands.WithImporter(importer),
//	)
//	registry.Discover(ctx, []string{"./commands"})
package commands
