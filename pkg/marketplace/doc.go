// Package marketplace installs, publishes and updates templates from a catalog.
//
// # Overview
//
// A Service wraps a Client (the catalog) and brackets each operation with the
// marketplace lifecycle hooks contributed by plugins:
//
//	onBeforeInstall(id, version)      onAfterInstall(id, version, installation)
//	onBeforePublish(manifest)         onAfterPublish(manifest, published)
//	onBeforeUpdate(id, from, to)      onAfterUpdate(id, from, to, installation)
//
// Hooks run concurrently; their failures are logged by the hook runner and
// never abort the operation.
//
// # Template Types
//
// Template: installed under .prompt-templates/templates/<id>
// Plugin: installed under .prompt-templates/plugins/<id> after passing
// plugins.Verifier
//
// # Security Levels
//
// Official: Maintained by the project, fully trusted
// Verified: Reviewed and approved, trusted
// Community: User-submitted, use with caution
//
// # Catalogs
//
// LocalClient serves a catalog directory:
//
//	<root>/<id>/index.json          template record and versions
//	<root>/<id>/<version>/...       published files plus template.json
//
// Every version carries a SHA-256 checksum over its files that is verified on
// download.
//
// # Usage Example
//
//	client, err := marketplace.NewLocalClient("/srv/catalog", logger)
//	svc := marketplace.NewService(client,
//		marketplace.WithHooks(manager),
//		marketplace.WithVerifier(plugins.NewVerifier(nil, logger)),
//	)
//
//	inst, err := svc.Install(ctx, "code-review", "latest")
//
// # Related Packages
//
//   - pkg/plugins: Provides the hook runner and plugin verification
//   - pkg/extension: Marketplace hook contract
package marketplace
