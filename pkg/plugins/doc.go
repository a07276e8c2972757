// Package plugins discovers, vets and loads template-engine plugins.
//
// # Overview
//
// A plugin is a directory under one of the search roots holding plugin.json
// (or package.json with a templatePlugin section), an optional commands/
// directory of *.command.* modules and an optional entry module that
// exports extensions.
//
// Loader: Discovers plugin directories and loads their commands
// Manager: Loads enhanced plugins and owns the six extension points
// Validator: Validates metadata and scans plugin sources for risky calls
// DependencyResolver: Checks declared dependency ranges
// Watcher: Reloads plugins when their directories change
//
// # Search Directories
//
//	./.prompt-templates/plugins
//	~/.prompt-templates/plugins
//	$PTE_GLOBAL_PLUGIN_DIR (or the configured package manager root)
//
// Paths containing ".." or resolving under /etc, /bin, /sbin, /usr/bin or
// /system are rejected.
//
// # Plugin Layout
//
//	my-plugin/
//	  plugin.json            {"name": "my-plugin", "version": "1.0.0"}
//	  commands/
//	    hello.command.lua    return {name = "hello", description = "...", action = function() end}
//	  index.lua              return {processors = {...}, lifecycle = {...}}
//
// # Usage Example
//
//	registry := commands.NewRegistry(root, commands.WithImporter(importer))
//	loader := plugins.NewLoader(registry, plugins.WithImporter(importer))
//	manager := plugins.NewManager(loader)
//
//	manager.DiscoverAndLoad(ctx)
//	out := manager.ProcessContent(ctx, content, tctx)
//	result := manager.ValidateTemplate(ctx, tpl)
//
// Extension failures are logged per extension and never abort the pipeline.
package plugins
