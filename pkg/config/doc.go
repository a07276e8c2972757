// Package config loads prompt template engine settings from an optional YAML
// file and PTE_* environment variables.
//
// # Overview
//
// Defaults come from the packages that consume each setting. A YAML file is
// read next: the path in PTE_CONFIG when set (a missing file is an error),
// otherwise .prompt-templates/config.yaml when it exists. Environment
// variables are applied last and win over the file.
//
// # Configuration File
//
//	plugins:
//	  dirs: [./vendor-plugins]
//	  default_dirs: true
//	  global_dir_command: [npm, root, -g]
//	  import_timeout: 10s
//	  hook_timeout: 30s
//	  watch: false
//	modules:
//	  cache_size: 128
//	  cache_ttl: 10m
//	marketplace:
//	  catalog_dir: ~/.prompt-templates/catalog
//	  template_dir: .prompt-templates/templates
//	observability:
//	  log_level: info
//	  log_format: text
//
// # Environment Variables
//
// Plugin settings:
//
//	PTE_PLUGIN_DIRS="./a:./b"        # os.PathListSeparator separated
//	PTE_DEFAULT_PLUGIN_DIRS="true"
//	PTE_GLOBAL_PLUGIN_DIR="/usr/local/lib/node_modules"
//	PTE_GLOBAL_DIR_COMMAND="npm root -g"
//	PTE_IMPORT_TIMEOUT="10s"
//	PTE_HOOK_TIMEOUT="30s"
//	PTE_WATCH="true"
//	PTE_WATCH_DEBOUNCE="500ms"
//	PTE_VERIFY_PLUGINS="true"
//
// Module and marketplace settings:
//
//	PTE_MODULE_CACHE_SIZE="128"      # 0 disables the cache
//	PTE_MODULE_CACHE_TTL="10m"
//	PTE_CATALOG_DIR="/srv/catalog"
//	PTE_TEMPLATE_DIR=".prompt-templates/templates"
//	PTE_MARKETPLACE_PLUGIN_DIR=".prompt-templates/plugins"
//
// Observability settings:
//
//	PTE_LOG_LEVEL="info"             # trace, debug, info, warn, error
//	PTE_LOG_FORMAT="text"            # text, json
//	PTE_METRICS_ENABLED="true"
//
// # Usage Example
//
//	cfg, err := config.LoadConfig()
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	loader := plugins.NewLoader(registry,
//		plugins.WithGlobalDirResolver(cfg.GlobalDirResolver()),
//		plugins.WithPluginDirs(cfg.Plugins.Dirs...),
//	)
//
// # Related Packages
//
//   - pkg/plugins: Uses plugin configuration
//   - pkg/module: Uses module cache configuration
//   - pkg/marketplace: Uses marketplace configuration
//   - pkg/observability: Uses observability configuration
package config
