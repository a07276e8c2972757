package marketplace

import (
	"context"
)

// Client talks to a template catalog. LocalClient serves a catalog directory;
// remote catalogs implement the same interface.
type Client interface {
	// List returns templates matching req
	List(ctx context.Context, req *ListRequest) (*ListResponse, error)

	// Get returns a template with its latest version filled in
	Get(ctx context.Context, id string) (*Template, error)

	// Versions lists the published versions of a template, newest first
	Versions(ctx context.Context, id string) ([]TemplateVersion, error)

	// Download copies a template version into dest and verifies its checksum
	Download(ctx context.Context, id, version, dest string) (*TemplateVersion, error)

	// Publish uploads the files of srcDir selected by the manifest
	Publish(ctx context.Context, manifest *Manifest, srcDir string) (*TemplateVersion, error)
}
