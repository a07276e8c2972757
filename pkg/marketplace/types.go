package marketplace

import (
	"time"
)

// Template types
const (
	TypeTemplate = "template"
	TypePlugin   = "plugin"
)

// Security levels
const (
	SecurityLevelOfficial  = "official"
	SecurityLevelVerified  = "verified"
	SecurityLevelCommunity = "community"
)

// ManifestFile is the manifest every published template directory carries
const ManifestFile = "template.json"

// Template represents a template in the marketplace
type Template struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Description   string    `json:"description,omitempty"`
	Author        string    `json:"author"`
	License       string    `json:"license,omitempty"`
	Homepage      string    `json:"homepage,omitempty"`
	Repository    string    `json:"repository,omitempty"`
	Type          string    `json:"type"`
	SecurityLevel string    `json:"security_level"`
	Tags          []string  `json:"tags,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
	DownloadCount int64     `json:"download_count"`
	LatestVersion string    `json:"latest_version,omitempty"`
}

// TemplateVersion represents a specific version of a template
type TemplateVersion struct {
	TemplateID string    `json:"template_id"`
	Version    string    `json:"version"`
	Checksum   string    `json:"checksum"`
	SizeBytes  int64     `json:"size_bytes"`
	Files      []string  `json:"files"`
	Downloads  int64     `json:"downloads"`
	CreatedAt  time.Time `json:"created_at"`
}

// Manifest is the template.json of a publishable directory
type Manifest struct {
	ID            string   `json:"id"`
	Name          string   `json:"name"`
	Version       string   `json:"version"`
	Description   string   `json:"description,omitempty"`
	Author        string   `json:"author"`
	License       string   `json:"license,omitempty"`
	Homepage      string   `json:"homepage,omitempty"`
	Repository    string   `json:"repository,omitempty"`
	Type          string   `json:"type"`
	SecurityLevel string   `json:"security_level,omitempty"`
	Tags          []string `json:"tags,omitempty"`
	// Files are doublestar patterns selecting what is published. Empty
	// means every file.
	Files []string `json:"files,omitempty"`
}

// ListRequest represents a request to list templates
type ListRequest struct {
	Type          string   `json:"type"`
	SecurityLevel string   `json:"security_level"`
	Tags          []string `json:"tags"`
	Search        string   `json:"search"`
	Limit         int      `json:"limit"`
	Offset        int      `json:"offset"`
	SortBy        string   `json:"sort_by"`    // downloads, name, created_at
	SortOrder     string   `json:"sort_order"` // asc, desc
}

// ListResponse represents the response for listing templates
type ListResponse struct {
	Templates []Template `json:"templates"`
	Total     int64      `json:"total"`
	Limit     int        `json:"limit"`
	Offset    int        `json:"offset"`
}

// Installation records a template installed on this machine
type Installation struct {
	TemplateID  string    `json:"template_id"`
	Version     string    `json:"version"`
	Type        string    `json:"type"`
	Path        string    `json:"path"`
	Checksum    string    `json:"checksum"`
	InstalledAt time.Time `json:"installed_at"`
}

// UpdateResult describes the outcome of an update
type UpdateResult struct {
	TemplateID   string        `json:"template_id"`
	FromVersion  string        `json:"from_version"`
	ToVersion    string        `json:"to_version"`
	Updated      bool          `json:"updated"`
	Installation *Installation `json:"installation,omitempty"`
}
