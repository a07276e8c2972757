package marketplace

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/sirupsen/logrus"
	"golang.org/x/mod/semver"
)

// indexFile holds a template's catalog entry inside its directory
const indexFile = "index.json"

var idPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// LocalClient implements Client over a catalog directory laid out as
// <root>/<id>/index.json and <root>/<id>/<version>/...
type LocalClient struct {
	root string
	log  *logrus.Logger

	mu sync.Mutex
}

// catalogEntry is the on-disk index of one template
type catalogEntry struct {
	Template Template          `json:"template"`
	Versions []TemplateVersion `json:"versions"`
}

// NewLocalClient creates a client over root, creating it if needed
func NewLocalClient(root string, logger *logrus.Logger) (*LocalClient, error) {
	if logger == nil {
		logger = logrus.New()
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve catalog root: %w", err)
	}
	if err := os.MkdirAll(abs, 0755); err != nil {
		return nil, fmt.Errorf("create catalog root: %w", err)
	}
	return &LocalClient{root: abs, log: logger}, nil
}

// Root returns the catalog directory
func (c *LocalClient) Root() string {
	return c.root
}

// List lists templates with optional filters
func (c *LocalClient) List(ctx context.Context, req *ListRequest) (*ListResponse, error) {
	if req == nil {
		req = &ListRequest{}
	}

	c.mu.Lock()
	entries, err := c.entries(ctx)
	c.mu.Unlock()
	if err != nil {
		return nil, err
	}

	var templates []Template
	for _, e := range entries {
		if matches(&e.Template, req) {
			templates = append(templates, e.Template)
		}
	}

	sortTemplates(templates, req.SortBy, req.SortOrder)

	if req.Limit <= 0 {
		req.Limit = 20
	}
	if req.Limit > 100 {
		req.Limit = 100
	}
	if req.Offset < 0 {
		req.Offset = 0
	}

	total := int64(len(templates))
	page := []Template{}
	if req.Offset < len(templates) {
		end := req.Offset + req.Limit
		if end > len(templates) {
			end = len(templates)
		}
		page = append(page, templates[req.Offset:end]...)
	}

	return &ListResponse{
		Templates: page,
		Total:     total,
		Limit:     req.Limit,
		Offset:    req.Offset,
	}, nil
}

// Get retrieves a template by ID
func (c *LocalClient) Get(ctx context.Context, id string) (*Template, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, err := c.load(id)
	if err != nil {
		return nil, err
	}
	tpl := e.Template
	return &tpl, nil
}

// Versions lists all versions of a template, newest first
func (c *LocalClient) Versions(ctx context.Context, id string) ([]TemplateVersion, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, err := c.load(id)
	if err != nil {
		return nil, err
	}
	versions := append([]TemplateVersion(nil), e.Versions...)
	sort.Slice(versions, func(i, j int) bool {
		return semver.Compare(canonical(versions[i].Version), canonical(versions[j].Version)) > 0
	})
	return versions, nil
}

// Download copies a version into dest and increments download counters
func (c *LocalClient) Download(ctx context.Context, id, version, dest string) (*TemplateVersion, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, err := c.load(id)
	if err != nil {
		return nil, err
	}

	idx := -1
	for i, v := range e.Versions {
		if v.Version == version {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, fmt.Errorf("%w: %s@%s", ErrVersionNotFound, id, version)
	}

	src := filepath.Join(c.root, id, version)
	if err := copyTree(ctx, src, dest, nil); err != nil {
		return nil, fmt.Errorf("failed to download %s@%s: %w", id, version, err)
	}

	sum, _, _, err := dirChecksum(dest)
	if err != nil {
		return nil, err
	}
	if sum != e.Versions[idx].Checksum {
		return nil, fmt.Errorf("%w: %s@%s", ErrChecksumMismatch, id, version)
	}

	e.Template.DownloadCount++
	e.Versions[idx].Downloads++
	if err := c.save(e); err != nil {
		c.log.WithError(err).WithField("template", id).Warn("Failed to record download")
	}

	v := e.Versions[idx]
	return &v, nil
}

// Publish copies the selected files of srcDir into the catalog as a new version
func (c *LocalClient) Publish(ctx context.Context, manifest *Manifest, srcDir string) (*TemplateVersion, error) {
	if manifest == nil || !idPattern.MatchString(manifest.ID) {
		return nil, fmt.Errorf("%w: invalid template ID", ErrInvalidTemplate)
	}
	if !semver.IsValid(canonical(manifest.Version)) {
		return nil, fmt.Errorf("%w: invalid version %q", ErrInvalidTemplate, manifest.Version)
	}

	files, err := selectFiles(srcDir, manifest.Files)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	e, err := c.load(manifest.ID)
	if err != nil && !errors.Is(err, ErrTemplateNotFound) {
		return nil, err
	}
	now := time.Now().UTC()
	if e == nil {
		e = &catalogEntry{Template: Template{ID: manifest.ID, CreatedAt: now}}
	}
	for _, v := range e.Versions {
		if v.Version == manifest.Version {
			return nil, fmt.Errorf("%w: %s@%s", ErrVersionExists, manifest.ID, manifest.Version)
		}
	}

	dest := filepath.Join(c.root, manifest.ID, manifest.Version)
	if err := copyTree(ctx, srcDir, dest, files); err != nil {
		_ = os.RemoveAll(dest)
		return nil, fmt.Errorf("failed to publish %s@%s: %w", manifest.ID, manifest.Version, err)
	}
	if err := writeManifest(dest, manifest); err != nil {
		_ = os.RemoveAll(dest)
		return nil, err
	}
	sum, size, stored, err := dirChecksum(dest)
	if err != nil {
		_ = os.RemoveAll(dest)
		return nil, err
	}

	version := TemplateVersion{
		TemplateID: manifest.ID,
		Version:    manifest.Version,
		Checksum:   sum,
		SizeBytes:  size,
		Files:      stored,
		CreatedAt:  now,
	}
	e.Versions = append(e.Versions, version)

	t := &e.Template
	t.Name = manifest.Name
	t.Description = manifest.Description
	t.Author = manifest.Author
	t.License = manifest.License
	t.Homepage = manifest.Homepage
	t.Repository = manifest.Repository
	t.Type = manifest.Type
	t.SecurityLevel = manifest.SecurityLevel
	t.Tags = append([]string(nil), manifest.Tags...)
	t.UpdatedAt = now

	if err := c.save(e); err != nil {
		return nil, err
	}

	c.log.WithFields(logrus.Fields{
		"template": manifest.ID,
		"version":  manifest.Version,
		"files":    len(stored),
	}).Info("Published template")
	return &version, nil
}

// entries loads every catalog entry. Callers hold c.mu.
func (c *LocalClient) entries(ctx context.Context) ([]*catalogEntry, error) {
	dirs, err := os.ReadDir(c.root)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog: %w", err)
	}

	var out []*catalogEntry
	for _, d := range dirs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !d.IsDir() || !idPattern.MatchString(d.Name()) {
			continue
		}
		e, err := c.load(d.Name())
		if err != nil {
			c.log.WithError(err).WithField("template", d.Name()).Debug("Skipping catalog entry")
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

// load reads one catalog entry and fills in its latest version. Callers hold c.mu.
func (c *LocalClient) load(id string) (*catalogEntry, error) {
	if !idPattern.MatchString(id) {
		return nil, fmt.Errorf("%w: %s", ErrTemplateNotFound, id)
	}

	data, err := os.ReadFile(filepath.Join(c.root, id, indexFile))
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: %s", ErrTemplateNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog entry: %w", err)
	}

	var e catalogEntry
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("failed to parse catalog entry %s: %w", id, err)
	}
	e.Template.LatestVersion = latestVersion(e.Versions)
	return &e, nil
}

// save writes a catalog entry atomically. Callers hold c.mu.
func (c *LocalClient) save(e *catalogEntry) error {
	e.Template.LatestVersion = latestVersion(e.Versions)

	data, err := json.MarshalIndent(e, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode catalog entry: %w", err)
	}

	dir := filepath.Join(c.root, e.Template.ID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	tmp := filepath.Join(dir, indexFile+".tmp")
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write catalog entry: %w", err)
	}
	return os.Rename(tmp, filepath.Join(dir, indexFile))
}

func matches(t *Template, req *ListRequest) bool {
	if req.Type != "" && t.Type != req.Type {
		return false
	}
	if req.SecurityLevel != "" && t.SecurityLevel != req.SecurityLevel {
		return false
	}
	if req.Search != "" {
		q := strings.ToLower(req.Search)
		if !strings.Contains(strings.ToLower(t.Name), q) && !strings.Contains(strings.ToLower(t.Description), q) {
			return false
		}
	}
	if len(req.Tags) > 0 {
		found := false
		for _, want := range req.Tags {
			for _, tag := range t.Tags {
				if tag == want {
					found = true
				}
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func sortTemplates(templates []Template, by, order string) {
	less := func(i, j int) bool { return templates[i].CreatedAt.Before(templates[j].CreatedAt) }
	switch by {
	case "downloads":
		less = func(i, j int) bool { return templates[i].DownloadCount < templates[j].DownloadCount }
	case "name":
		less = func(i, j int) bool { return templates[i].Name < templates[j].Name }
	}

	desc := order != "asc"
	sort.SliceStable(templates, func(i, j int) bool {
		if desc {
			return less(j, i)
		}
		return less(i, j)
	})
}

func latestVersion(versions []TemplateVersion) string {
	latest := ""
	for _, v := range versions {
		if latest == "" || semver.Compare(canonical(v.Version), canonical(latest)) > 0 {
			latest = v.Version
		}
	}
	return latest
}

func canonical(v string) string {
	if strings.HasPrefix(v, "v") {
		return v
	}
	return "v" + v
}

func writeManifest(dir string, manifest *Manifest) error {
	data, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode manifest: %w", err)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, ManifestFile), data, 0644)
}

// selectFiles returns the slash-separated relative paths under dir matched by
// patterns, or every regular file when there are none. The manifest is
// written separately and never selected.
func selectFiles(dir string, patterns []string) ([]string, error) {
	fsys := os.DirFS(dir)
	if len(patterns) == 0 {
		patterns = []string{"**"}
	}

	seen := map[string]bool{ManifestFile: true}
	files := []string{}
	for _, pattern := range patterns {
		if !doublestar.ValidatePattern(pattern) {
			return nil, fmt.Errorf("%w: bad file pattern %q", ErrInvalidTemplate, pattern)
		}
		matches, err := doublestar.Glob(fsys, pattern, doublestar.WithFilesOnly())
		if err != nil {
			return nil, fmt.Errorf("failed to match %q: %w", pattern, err)
		}
		for _, m := range matches {
			if seen[m] || skipPublished(m) {
				continue
			}
			seen[m] = true
			files = append(files, m)
		}
	}
	sort.Strings(files)
	return files, nil
}

// skipPublished excludes VCS metadata and installed dependencies
func skipPublished(rel string) bool {
	for _, part := range strings.Split(rel, "/") {
		if part == "node_modules" || part == ".git" {
			return true
		}
	}
	return false
}

// copyTree copies files (slash-separated, relative to src) into dst. A nil
// files copies every regular file.
func copyTree(ctx context.Context, src, dst string, files []string) error {
	if files == nil {
		err := filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.Type().IsRegular() {
				rel, err := filepath.Rel(src, path)
				if err != nil {
					return err
				}
				files = append(files, filepath.ToSlash(rel))
			}
			return nil
		})
		if err != nil {
			return err
		}
	}

	for _, rel := range files {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := copyFile(filepath.Join(src, filepath.FromSlash(rel)), filepath.Join(dst, filepath.FromSlash(rel))); err != nil {
			return err
		}
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return err
	}
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// dirChecksum hashes every regular file under dir in path order. It returns
// the checksum, total size and slash-separated file list.
func dirChecksum(dir string) (string, int64, []string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type().IsRegular() {
			rel, err := filepath.Rel(dir, path)
			if err != nil {
				return err
			}
			files = append(files, filepath.ToSlash(rel))
		}
		return nil
	})
	if err != nil {
		return "", 0, nil, fmt.Errorf("failed to checksum %s: %w", dir, err)
	}
	sort.Strings(files)

	h := sha256.New()
	var size int64
	for _, rel := range files {
		f, err := os.Open(filepath.Join(dir, filepath.FromSlash(rel)))
		if err != nil {
			return "", 0, nil, err
		}
		io.WriteString(h, rel+"\x00")
		n, err := io.Copy(h, f)
		f.Close()
		if err != nil {
			return "", 0, nil, err
		}
		size += n
	}
	return "sha256:" + hex.EncodeToString(h.Sum(nil)), size, files, nil
}
