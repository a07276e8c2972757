package plugins

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/tidwall/gjson"
	"golang.org/x/mod/semver"
)

// VersionLookup returns the version of an already discovered plugin
type VersionLookup func(name string) (version string, ok bool)

// DependencyResolver checks that declared dependencies resolve. A dependency
// resolves to a discovered plugin of that name, or to a package directory
// under the plugin's node_modules or one of the shared package directories.
type DependencyResolver struct {
	lookup      VersionLookup
	packageDirs []string
}

// NewDependencyResolver creates a resolver. lookup may be nil.
func NewDependencyResolver(lookup VersionLookup, packageDirs ...string) *DependencyResolver {
	return &DependencyResolver{lookup: lookup, packageDirs: packageDirs}
}

// Check verifies every dependency of p. Dependencies are checked in name
// order and the first failure is returned.
func (r *DependencyResolver) Check(p *Plugin) error {
	names := make([]string, 0, len(p.Metadata.Dependencies))
	for name := range p.Metadata.Dependencies {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if err := r.resolve(p, name, p.Metadata.Dependencies[name]); err != nil {
			return err
		}
	}
	return nil
}

func (r *DependencyResolver) resolve(p *Plugin, name, rng string) error {
	var versions []string

	if r.lookup != nil {
		if v, ok := r.lookup(name); ok {
			versions = append(versions, v)
		}
	}

	dirs := append([]string{filepath.Join(p.Path, "node_modules")}, r.packageDirs...)
	for _, dir := range dirs {
		pkgDir := filepath.Join(dir, filepath.FromSlash(name))
		if info, err := os.Stat(pkgDir); err != nil || !info.IsDir() {
			continue
		}
		versions = append(versions, packageVersion(pkgDir))
	}

	if len(versions) == 0 {
		return fmt.Errorf("%w: %s requires %s", ErrUnresolvedDependency, p.Name(), name)
	}

	for _, v := range versions {
		ok, err := Satisfies(v, rng)
		if err != nil {
			// ranges such as file: or git URLs only need the package present
			return nil
		}
		if ok {
			return nil
		}
	}
	return fmt.Errorf("%w: %s requires %s %s, found %s",
		ErrUnresolvedDependency, p.Name(), name, rng, strings.Join(versions, ", "))
}

// packageVersion reads the version of a package directory, or "" when unknown
func packageVersion(dir string) string {
	for _, file := range []MetadataSource{SourcePluginJSON, SourcePackageJSON} {
		data, err := readCapped(filepath.Join(dir, string(file)), maxPackageSize)
		if err != nil {
			continue
		}
		if v := gjson.GetBytes(data, "version"); v.Type == gjson.String {
			return v.String()
		}
	}
	return ""
}

// Satisfies reports whether version matches rng. Supported ranges: "*",
// "latest", "", exact versions, comparators (>=, >, <=, <, =), caret and
// tilde ranges, x-ranges ("1.x", "1.2.*"), space-separated intersections and
// "||" unions. An unknown version ("") only satisfies unconstrained ranges.
func Satisfies(version, rng string) (bool, error) {
	rng = strings.TrimSpace(rng)
	if rng == "" || rng == "*" || rng == "latest" || rng == "x" {
		return true, nil
	}

	for _, alt := range strings.Split(rng, "||") {
		ok, err := satisfiesAll(version, strings.Fields(alt))
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

func satisfiesAll(version string, comparators []string) (bool, error) {
	if len(comparators) == 0 {
		return true, nil
	}

	v := canonical(version)
	for _, c := range comparators {
		bounds, err := parseComparator(c)
		if err != nil {
			return false, err
		}
		if v == "" {
			return false, nil
		}
		for _, b := range bounds {
			if !b.matches(v) {
				return false, nil
			}
		}
	}
	return true, nil
}

type bound struct {
	op      string
	version string
}

func (b bound) matches(v string) bool {
	cmp := semver.Compare(v, b.version)
	switch b.op {
	case ">=":
		return cmp >= 0
	case ">":
		return cmp > 0
	case "<=":
		return cmp <= 0
	case "<":
		return cmp < 0
	default:
		return cmp == 0
	}
}

func parseComparator(c string) ([]bound, error) {
	switch {
	case strings.HasPrefix(c, "^"):
		lo, parts, err := partial(c[1:])
		if err != nil {
			return nil, err
		}
		var hi string
		switch {
		case parts[0] != "0" || len(parts) == 1:
			hi = bump(parts, 0)
		case parts[1] != "0" || len(parts) == 2:
			hi = bump(parts, 1)
		default:
			hi = bump(parts, 2)
		}
		return []bound{{">=", lo}, {"<", hi}}, nil

	case strings.HasPrefix(c, "~"):
		lo, parts, err := partial(strings.TrimPrefix(c[1:], ">"))
		if err != nil {
			return nil, err
		}
		idx := 1
		if len(parts) == 1 {
			idx = 0
		}
		return []bound{{">=", lo}, {"<", bump(parts, idx)}}, nil
	}

	for _, op := range []string{">=", "<=", ">", "<", "="} {
		if strings.HasPrefix(c, op) {
			v, _, err := partial(c[len(op):])
			if err != nil {
				return nil, err
			}
			return []bound{{op, v}}, nil
		}
	}

	lo, parts, err := partial(c)
	if err != nil {
		return nil, err
	}
	if len(parts) < 3 {
		return []bound{{">=", lo}, {"<", bump(parts, len(parts)-1)}}, nil
	}
	return []bound{{"=", lo}}, nil
}

// partial parses a possibly incomplete version ("1", "1.2", "1.2.x") into its
// canonical lower bound and the numeric parts that were given
func partial(s string) (string, []string, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "v")
	core, pre, _ := strings.Cut(s, "-")

	var parts []string
	for _, p := range strings.Split(core, ".") {
		if p == "x" || p == "X" || p == "*" {
			break
		}
		parts = append(parts, p)
	}
	if len(parts) == 0 || len(parts) > 3 {
		return "", nil, fmt.Errorf("%w: %q", ErrInvalidRange, s)
	}

	full := append([]string(nil), parts...)
	for len(full) < 3 {
		full = append(full, "0")
	}
	v := "v" + strings.Join(full, ".")
	if pre != "" && len(parts) == 3 {
		v += "-" + pre
	}
	if !semver.IsValid(v) {
		return "", nil, fmt.Errorf("%w: %q", ErrInvalidRange, s)
	}
	return v, parts, nil
}

// bump returns the lowest version above parts with the component at idx incremented
func bump(parts []string, idx int) string {
	out := []string{"0", "0", "0"}
	for i := 0; i < idx; i++ {
		out[i] = parts[i]
	}
	var n int
	fmt.Sscanf(parts[idx], "%d", &n)
	out[idx] = fmt.Sprint(n + 1)
	return "v" + strings.Join(out, ".") + "-0"
}

func canonical(version string) string {
	v := strings.TrimSpace(version)
	if v == "" {
		return ""
	}
	if !strings.HasPrefix(v, "v") {
		v = "v" + v
	}
	if !semver.IsValid(v) {
		return ""
	}
	return semver.Canonical(v)
}
