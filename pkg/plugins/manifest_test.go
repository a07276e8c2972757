package plugins

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadMetadata_PluginJSON(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "plugin.json", `{
		"name": "rust-gen",
		"version": "1.2.3",
		"description": "Rust templates",
		"author": "Test Author",
		"main": "src/index.lua",
		"commands": ["gen", "check"],
		"dependencies": {"base": "^1.0.0"}
	}`)
	// plugin.json takes precedence
	writeFile(t, dir, "package.json", `{"name": "other", "version": "9.9.9"}`)

	meta, source, err := ReadMetadata(dir)
	require.NoError(t, err)
	assert.Equal(t, SourcePluginJSON, source)
	assert.Equal(t, &Metadata{
		Name:         "rust-gen",
		Version:      "1.2.3",
		Description:  "Rust templates",
		Author:       "Test Author",
		Main:         "src/index.lua",
		Commands:     []string{"gen", "check"},
		Dependencies: map[string]string{"base": "^1.0.0"},
	}, meta)
}

func TestReadMetadata_PackageJSON(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "package.json", `{
		"name": "pkg-plugin",
		"version": "0.1.0",
		"author": "Someone <someone@example.com>",
		"main": "index.js",
		"dependencies": {"lodash": "^4.17.0"},
		"templatePlugin": {"commands": ["a", "b"], "main": "plugin.lua"}
	}`)

	meta, source, err := ReadMetadata(dir)
	require.NoError(t, err)
	assert.Equal(t, SourcePackageJSON, source)
	assert.Equal(t, "pkg-plugin", meta.Name)
	assert.Equal(t, "Someone <someone@example.com>", meta.Author)
	assert.Equal(t, []string{"a", "b"}, meta.Commands)
	assert.Equal(t, "plugin.lua", meta.Main)
	assert.Equal(t, "^4.17.0", meta.Dependencies["lodash"])
}

func TestReadMetadata_NoMetadata(t *testing.T) {
	_, _, err := ReadMetadata(t.TempDir())
	assert.ErrorIs(t, err, ErrNoMetadata)
}

func TestReadMetadata_TooLarge(t *testing.T) {
	dir := t.TempDir()
	padding := strings.Repeat("x", MaxMetadataSize)
	writeFile(t, dir, "plugin.json", `{"name": "big", "version": "1.0.0", "description": "`+padding+`"}`)

	_, _, err := ReadMetadata(dir)
	assert.ErrorIs(t, err, ErrMetadataTooLarge)
}

func TestReadMetadata_Unreadable(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dir, "plugin.json"), 0755))

	_, _, err := ReadMetadata(dir)
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrNoMetadata)
}

func TestParseMetadata_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		message string
	}{
		{"not json", `{name:`, "not valid JSON"},
		{"array", `[1, 2]`, "must be an object"},
		{"missing name", `{"version": "1.0.0"}`, "name: is required"},
		{"missing version", `{"name": "x"}`, "version: is required"},
		{"numeric version", `{"name": "x", "version": 1}`, "version: must be a string"},
		{"commands not strings", `{"name": "x", "version": "1.0.0", "commands": [1]}`, "commands"},
		{"commands not array", `{"name": "x", "version": "1.0.0", "commands": "a"}`, "commands"},
		{"dependencies not strings", `{"name": "x", "version": "1.0.0", "dependencies": {"a": 1}}`, "dependencies"},
		{"bad name", `{"name": "my plugin", "version": "1.0.0"}`, "must match"},
		{"bad version", `{"name": "x", "version": "1.0"}`, "major.minor.patch"},
		{"reserved", `{"name": "EXEC", "version": "1.0.0"}`, "reserved"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			meta, err := ParseMetadata([]byte(tt.data))
			assert.Nil(t, meta)
			require.ErrorIs(t, err, ErrInvalidMetadata)
			assert.Contains(t, err.Error(), tt.message)
		})
	}
}

func TestParseMetadata_ValidVersions(t *testing.T) {
	for _, version := range []string{"0.0.1", "1.0.0", "10.20.30", "1.0.0-alpha", "1.0.0-rc.1", "2.0.0-beta-2"} {
		t.Run(version, func(t *testing.T) {
			meta, err := ParseMetadata([]byte(`{"name": "x", "version": "` + version + `"}`))
			require.NoError(t, err)
			assert.Equal(t, version, meta.Version)
		})
	}
}

func TestParseMetadata_ReservedNamesAreCaseInsensitive(t *testing.T) {
	for _, name := range []string{"system", "Root", "ADMIN", "eVal", "exec"} {
		_, err := ParseMetadata([]byte(`{"name": "` + name + `", "version": "1.0.0"}`))
		assert.ErrorIs(t, err, ErrInvalidMetadata, name)
	}

	_, err := ParseMetadata([]byte(`{"name": "administrator", "version": "1.0.0"}`))
	assert.NoError(t, err)
}

func TestParsePackageJSON_Invalid(t *testing.T) {
	_, err := ParsePackageJSON([]byte(`{"name": "x", "version": "1.0.0", "templatePlugin": {"commands": [true]}}`))
	assert.ErrorIs(t, err, ErrInvalidMetadata)

	_, err = ParsePackageJSON([]byte(`{"name": "@scope/pkg", "version": "1.0.0"}`))
	assert.ErrorIs(t, err, ErrInvalidMetadata)

	_, err = ParsePackageJSON([]byte(`nope`))
	assert.ErrorIs(t, err, ErrInvalidMetadata)
}
