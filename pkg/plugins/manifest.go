package plugins

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/tidwall/gjson"
)

const (
	// MaxMetadataSize caps plugin.json
	MaxMetadataSize = 10 * 1024

	// maxPackageSize caps package.json, which carries unrelated fields
	maxPackageSize = 1024 * 1024

	// templatePluginKey is the package.json section holding plugin settings
	templatePluginKey = "templatePlugin"
)

var (
	namePattern    = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)
	versionPattern = regexp.MustCompile(`^\d+\.\d+\.\d+(-[a-zA-Z0-9.-]+)?$`)

	reservedNames = map[string]bool{
		"system": true,
		"root":   true,
		"admin":  true,
		"eval":   true,
		"exec":   true,
	}
)

// ReadMetadata resolves a plugin directory's metadata: plugin.json first,
// then package.json. It returns ErrNoMetadata when neither exists.
func ReadMetadata(dir string) (*Metadata, MetadataSource, error) {
	data, err := readCapped(filepath.Join(dir, string(SourcePluginJSON)), MaxMetadataSize)
	switch {
	case err == nil:
		meta, err := ParseMetadata(data)
		return meta, SourcePluginJSON, err
	case !errors.Is(err, os.ErrNotExist):
		return nil, SourcePluginJSON, err
	}

	data, err = readCapped(filepath.Join(dir, string(SourcePackageJSON)), maxPackageSize)
	switch {
	case err == nil:
		meta, err := ParsePackageJSON(data)
		return meta, SourcePackageJSON, err
	case errors.Is(err, os.ErrNotExist):
		return nil, "", ErrNoMetadata
	default:
		return nil, SourcePackageJSON, err
	}
}

// readCapped reads path, failing with ErrMetadataTooLarge above limit bytes
func readCapped(path string, limit int64) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	if info.Size() > limit {
		return nil, fmt.Errorf("%w: %s is %d bytes (max %d)", ErrMetadataTooLarge, filepath.Base(path), info.Size(), limit)
	}

	data, err := io.ReadAll(io.LimitReader(f, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("%w: %s grew past %d bytes", ErrMetadataTooLarge, filepath.Base(path), limit)
	}
	return data, nil
}

// ParseMetadata parses and validates plugin.json content. Field types are
// checked before any value is accepted.
func ParseMetadata(data []byte) (*Metadata, error) {
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("%w: not valid JSON", ErrInvalidMetadata)
	}
	root := gjson.ParseBytes(data)
	if !root.IsObject() {
		return nil, fmt.Errorf("%w: top level must be an object", ErrInvalidMetadata)
	}

	var problems []ValidationError
	requireString := func(field string, required bool) string {
		v := root.Get(field)
		if !v.Exists() {
			if required {
				problems = append(problems, ValidationError{Field: field, Message: "is required", Severity: "error"})
			}
			return ""
		}
		if v.Type != gjson.String {
			problems = append(problems, ValidationError{Field: field, Message: "must be a string", Severity: "error"})
			return ""
		}
		return v.String()
	}

	meta := &Metadata{
		Name:        requireString("name", true),
		Version:     requireString("version", true),
		Description: requireString("description", false),
		Author:      requireString("author", false),
		Main:        requireString("main", false),
	}

	var err error
	if meta.Commands, err = stringArray(root.Get("commands"), "commands"); err != nil {
		problems = append(problems, ValidationError{Field: "commands", Message: err.Error(), Severity: "error"})
	}
	if meta.Dependencies, err = stringMap(root.Get("dependencies"), "dependencies"); err != nil {
		problems = append(problems, ValidationError{Field: "dependencies", Message: err.Error(), Severity: "error"})
	}

	if len(problems) == 0 {
		problems = checkIdentity(meta)
	}
	if err := asError(problems); err != nil {
		return nil, err
	}
	return meta, nil
}

// ParsePackageJSON extracts plugin metadata from package.json. Plugin
// commands come from the nested templatePlugin.commands list.
func ParsePackageJSON(data []byte) (*Metadata, error) {
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("%w: package.json is not valid JSON", ErrInvalidMetadata)
	}
	root := gjson.ParseBytes(data)

	meta := &Metadata{
		Name:        root.Get("name").String(),
		Version:     root.Get("version").String(),
		Description: root.Get("description").String(),
		Main:        root.Get(templatePluginKey + ".main").String(),
	}

	author := root.Get("author")
	if author.IsObject() {
		meta.Author = author.Get("name").String()
	} else {
		meta.Author = author.String()
	}

	var problems []ValidationError
	var err error
	if meta.Commands, err = stringArray(root.Get(templatePluginKey+".commands"), "templatePlugin.commands"); err != nil {
		problems = append(problems, ValidationError{Field: "templatePlugin.commands", Message: err.Error(), Severity: "error"})
	}
	if meta.Dependencies, err = stringMap(root.Get("dependencies"), "dependencies"); err != nil {
		problems = append(problems, ValidationError{Field: "dependencies", Message: err.Error(), Severity: "error"})
	}
	problems = append(problems, checkIdentity(meta)...)

	if err := asError(problems); err != nil {
		return nil, err
	}
	return meta, nil
}

// checkIdentity validates name and version patterns and reserved names
func checkIdentity(meta *Metadata) []ValidationError {
	var problems []ValidationError

	switch {
	case meta.Name == "":
		problems = append(problems, ValidationError{Field: "name", Message: "is required", Severity: "error"})
	case !namePattern.MatchString(meta.Name):
		problems = append(problems, ValidationError{
			Field:    "name",
			Message:  fmt.Sprintf("%q must match %s", meta.Name, namePattern.String()),
			Severity: "error",
		})
	case reservedNames[strings.ToLower(meta.Name)]:
		problems = append(problems, ValidationError{
			Field:    "name",
			Message:  fmt.Sprintf("%q is reserved", meta.Name),
			Severity: "error",
		})
	}

	switch {
	case meta.Version == "":
		problems = append(problems, ValidationError{Field: "version", Message: "is required", Severity: "error"})
	case !versionPattern.MatchString(meta.Version):
		problems = append(problems, ValidationError{
			Field:    "version",
			Message:  fmt.Sprintf("%q must be major.minor.patch[-prerelease]", meta.Version),
			Severity: "error",
		})
	}

	return problems
}

func stringArray(v gjson.Result, field string) ([]string, error) {
	if !v.Exists() {
		return nil, nil
	}
	if !v.IsArray() {
		return nil, fmt.Errorf("%s must be an array of strings", field)
	}
	var out []string
	for _, item := range v.Array() {
		if item.Type != gjson.String {
			return nil, fmt.Errorf("%s must be an array of strings", field)
		}
		out = append(out, item.String())
	}
	return out, nil
}

func stringMap(v gjson.Result, field string) (map[string]string, error) {
	if !v.Exists() {
		return nil, nil
	}
	if !v.IsObject() {
		return nil, fmt.Errorf("%s must be an object of strings", field)
	}
	out := make(map[string]string)
	var bad bool
	v.ForEach(func(key, value gjson.Result) bool {
		if value.Type != gjson.String || key.String() == "" {
			bad = true
			return false
		}
		out[key.String()] = value.String()
		return true
	})
	if bad {
		return nil, fmt.Errorf("%s must be an object of strings", field)
	}
	return out, nil
}

func asError(problems []ValidationError) error {
	var msgs []string
	for _, p := range problems {
		if p.Severity == "error" {
			msgs = append(msgs, p.Error())
		}
	}
	if len(msgs) == 0 {
		return nil
	}
	sort.Strings(msgs)
	return fmt.Errorf("%w: %s", ErrInvalidMetadata, strings.Join(msgs, "; "))
}
