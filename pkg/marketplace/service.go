package marketplace

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/mod/semver"

	"github.com/AdamManuel-dev/prompt-template-engine-sub000/pkg/extension"
	"github.com/AdamManuel-dev/prompt-template-engine-sub000/pkg/plugins"
)

const (
	// DefaultTemplateDir is where installed templates are placed
	DefaultTemplateDir = ".prompt-templates/templates"

	// stateFile records installations inside the template directory
	stateFile = "installed.json"
)

// HookRunner runs marketplace lifecycle hooks. *plugins.Manager implements it.
type HookRunner interface {
	ExecuteMarketplaceHooks(ctx context.Context, hook extension.HookName, args ...interface{})
}

// Service installs, publishes and updates templates through a Client,
// bracketing each operation with marketplace hooks
type Service struct {
	client      Client
	hooks       HookRunner
	verifier    *plugins.Verifier
	templateDir string
	pluginDir   string
	log         *logrus.Logger

	mu sync.Mutex
}

// Option configures a Service
type Option func(*Service)

// WithHooks sets the hook runner
func WithHooks(h HookRunner) Option {
	return func(s *Service) { s.hooks = h }
}

// WithVerifier vets plugin-type templates before they are installed or published
func WithVerifier(v *plugins.Verifier) Option {
	return func(s *Service) { s.verifier = v }
}

// WithTemplateDir sets where templates are installed
func WithTemplateDir(dir string) Option {
	return func(s *Service) { s.templateDir = dir }
}

// WithPluginDir sets where plugin-type templates are installed
func WithPluginDir(dir string) Option {
	return func(s *Service) { s.pluginDir = dir }
}

// WithLogger sets the logger
func WithLogger(log *logrus.Logger) Option {
	return func(s *Service) {
		if log != nil {
			s.log = log
		}
	}
}

// NewService creates a new marketplace service
func NewService(client Client, opts ...Option) *Service {
	s := &Service{
		client:      client,
		templateDir: DefaultTemplateDir,
		pluginDir:   plugins.ProjectPluginDir,
		log:         logrus.New(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// List lists templates from the catalog
func (s *Service) List(ctx context.Context, req *ListRequest) (*ListResponse, error) {
	return s.client.List(ctx, req)
}

// Get retrieves a template from the catalog
func (s *Service) Get(ctx context.Context, id string) (*Template, error) {
	return s.client.Get(ctx, id)
}

// Install downloads a template version. An empty version or "latest"
// installs the newest one. Plugin templates must pass verification.
func (s *Service) Install(ctx context.Context, id, version string) (*Installation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tpl, version, err := s.resolve(ctx, id, version)
	if err != nil {
		return nil, err
	}

	s.runHooks(ctx, extension.HookBeforeInstall, id, version)

	inst, err := s.install(ctx, tpl, version)
	if err != nil {
		return nil, err
	}

	s.runHooks(ctx, extension.HookAfterInstall, id, version, installationArgs(inst))
	return inst, nil
}

// Publish validates the manifest in dir and publishes the directory
func (s *Service) Publish(ctx context.Context, dir string) (*TemplateVersion, error) {
	manifest, err := ReadManifest(dir)
	if err != nil {
		return nil, err
	}
	if err := validateManifest(manifest); err != nil {
		return nil, err
	}

	if manifest.Type == TypePlugin {
		if err := s.verify(ctx, dir); err != nil {
			return nil, err
		}
	}

	s.runHooks(ctx, extension.HookBeforePublish, manifestArgs(manifest))

	published, err := s.client.Publish(ctx, manifest, dir)
	if err != nil {
		return nil, err
	}

	s.runHooks(ctx, extension.HookAfterPublish, manifestArgs(manifest), map[string]interface{}{
		"version":  published.Version,
		"checksum": published.Checksum,
		"size":     published.SizeBytes,
	})

	s.log.WithFields(logrus.Fields{
		"template": manifest.ID,
		"version":  published.Version,
	}).Info("Template published")
	return published, nil
}

// Update installs the newest version of an installed template. It does
// nothing when the installed version is current.
func (s *Service) Update(ctx context.Context, id string) (*UpdateResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, err := s.readState()
	if err != nil {
		return nil, err
	}
	current, ok := state[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotInstalled, id)
	}

	tpl, latest, err := s.resolve(ctx, id, "")
	if err != nil {
		return nil, err
	}

	result := &UpdateResult{TemplateID: id, FromVersion: current.Version, ToVersion: latest}
	if semver.Compare(canonical(latest), canonical(current.Version)) <= 0 {
		result.ToVersion = current.Version
		result.Installation = current
		return result, nil
	}

	s.runHooks(ctx, extension.HookBeforeUpdate, id, current.Version, latest)

	inst, err := s.install(ctx, tpl, latest)
	if err != nil {
		return nil, err
	}
	result.Updated = true
	result.Installation = inst

	s.runHooks(ctx, extension.HookAfterUpdate, id, current.Version, latest, installationArgs(inst))
	return result, nil
}

// Uninstall removes an installed template
func (s *Service) Uninstall(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, err := s.readState()
	if err != nil {
		return err
	}
	inst, ok := state[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotInstalled, id)
	}

	if err := os.RemoveAll(inst.Path); err != nil {
		return fmt.Errorf("failed to remove %s: %w", inst.Path, err)
	}
	delete(state, id)
	return s.writeState(state)
}

// Installed lists installed templates sorted by ID
func (s *Service) Installed(ctx context.Context) ([]*Installation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, err := s.readState()
	if err != nil {
		return nil, err
	}
	out := make([]*Installation, 0, len(state))
	for _, inst := range state {
		out = append(out, inst)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TemplateID < out[j].TemplateID })
	return out, nil
}

// resolve fetches the template and picks the version to install
func (s *Service) resolve(ctx context.Context, id, version string) (*Template, string, error) {
	tpl, err := s.client.Get(ctx, id)
	if err != nil {
		return nil, "", err
	}
	if version == "" || version == "latest" {
		version = tpl.LatestVersion
	}
	if version == "" {
		return nil, "", fmt.Errorf("%w: %s has no published versions", ErrVersionNotFound, id)
	}
	return tpl, version, nil
}

// install downloads into a staging directory, verifies plugins and swaps the
// result into place. Callers hold s.mu.
func (s *Service) install(ctx context.Context, tpl *Template, version string) (*Installation, error) {
	root := s.templateDir
	if tpl.Type == TypePlugin {
		root = s.pluginDir
	}
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("failed to create install directory: %w", err)
	}

	staging, err := os.MkdirTemp(root, "."+tpl.ID+"-")
	if err != nil {
		return nil, fmt.Errorf("failed to create staging directory: %w", err)
	}
	defer os.RemoveAll(staging)

	downloaded, err := s.client.Download(ctx, tpl.ID, version, staging)
	if err != nil {
		return nil, err
	}

	if tpl.Type == TypePlugin {
		if err := s.verify(ctx, staging); err != nil {
			return nil, err
		}
	}

	dest, err := filepath.Abs(filepath.Join(root, tpl.ID))
	if err != nil {
		return nil, err
	}
	if err := os.RemoveAll(dest); err != nil {
		return nil, fmt.Errorf("failed to replace %s: %w", dest, err)
	}
	if err := os.Rename(staging, dest); err != nil {
		return nil, fmt.Errorf("failed to install %s: %w", tpl.ID, err)
	}

	inst := &Installation{
		TemplateID:  tpl.ID,
		Version:     version,
		Type:        tpl.Type,
		Path:        dest,
		Checksum:    downloaded.Checksum,
		InstalledAt: time.Now().UTC(),
	}

	state, err := s.readState()
	if err != nil {
		return nil, err
	}
	state[tpl.ID] = inst
	if err := s.writeState(state); err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{
		"template": tpl.ID,
		"version":  version,
		"path":     dest,
	}).Info("Template installed")
	return inst, nil
}

// verify rejects plugin directories that are not approved
func (s *Service) verify(ctx context.Context, dir string) error {
	if s.verifier == nil {
		return nil
	}
	result := s.verifier.Verify(ctx, dir)
	if !result.Approved() {
		return fmt.Errorf("%w: %s (%s)", ErrVerificationFailed, result.Reason, result.Status)
	}
	return nil
}

func (s *Service) runHooks(ctx context.Context, hook extension.HookName, args ...interface{}) {
	if s.hooks == nil {
		return
	}
	s.hooks.ExecuteMarketplaceHooks(ctx, hook, args...)
}

func (s *Service) readState() (map[string]*Installation, error) {
	state := make(map[string]*Installation)
	data, err := os.ReadFile(filepath.Join(s.templateDir, stateFile))
	if os.IsNotExist(err) {
		return state, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read install state: %w", err)
	}
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("failed to parse install state: %w", err)
	}
	return state, nil
}

func (s *Service) writeState(state map[string]*Installation) error {
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode install state: %w", err)
	}
	if err := os.MkdirAll(s.templateDir, 0755); err != nil {
		return err
	}
	tmp := filepath.Join(s.templateDir, stateFile+".tmp")
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write install state: %w", err)
	}
	return os.Rename(tmp, filepath.Join(s.templateDir, stateFile))
}

// ReadManifest reads template.json from dir
func ReadManifest(dir string) (*Manifest, error) {
	data, err := os.ReadFile(filepath.Join(dir, ManifestFile))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTemplate, err)
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: failed to parse %s: %v", ErrInvalidTemplate, ManifestFile, err)
	}
	return &m, nil
}

// validateManifest validates manifest data and fills the security level default
func validateManifest(m *Manifest) error {
	if m.ID == "" {
		return fmt.Errorf("%w: template ID is required", ErrInvalidTemplate)
	}
	if !idPattern.MatchString(m.ID) {
		return fmt.Errorf("%w: template ID %q may only contain letters, numbers, hyphens and underscores", ErrInvalidTemplate, m.ID)
	}
	if m.Name == "" {
		return fmt.Errorf("%w: template name is required", ErrInvalidTemplate)
	}
	if m.Author == "" {
		return fmt.Errorf("%w: template author is required", ErrInvalidTemplate)
	}
	if !semver.IsValid(canonical(m.Version)) {
		return fmt.Errorf("%w: invalid version %q", ErrInvalidTemplate, m.Version)
	}

	if m.Type == "" {
		m.Type = TypeTemplate
	}
	if m.Type != TypeTemplate && m.Type != TypePlugin {
		return fmt.Errorf("%w: invalid template type: %s", ErrInvalidTemplate, m.Type)
	}

	validSecurityLevels := map[string]bool{
		SecurityLevelOfficial:  true,
		SecurityLevelVerified:  true,
		SecurityLevelCommunity: true,
	}
	if m.SecurityLevel == "" {
		m.SecurityLevel = SecurityLevelCommunity
	}
	if !validSecurityLevels[m.SecurityLevel] {
		return fmt.Errorf("%w: invalid security level: %s", ErrInvalidTemplate, m.SecurityLevel)
	}

	return nil
}

func manifestArgs(m *Manifest) map[string]interface{} {
	return map[string]interface{}{
		"id":      m.ID,
		"name":    m.Name,
		"version": m.Version,
		"type":    m.Type,
		"author":  m.Author,
	}
}

func installationArgs(inst *Installation) map[string]interface{} {
	return map[string]interface{}{
		"id":       inst.TemplateID,
		"version":  inst.Version,
		"type":     inst.Type,
		"path":     inst.Path,
		"checksum": inst.Checksum,
	}
}
