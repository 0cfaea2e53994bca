package deps

import (
	"bufio"
	"bytes"
	"encoding/json"
	"path"
	"regexp"
	"sort"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"golang.org/x/mod/modfile"

	"github.com/Iron-Ham/monosplit/internal/errors"
)

// DependencyInfo is one dependency declared by a manifest.
type DependencyInfo struct {
	Name string `json:"name"`
	// Version is nil when the manifest does not pin one.
	Version     *string `json:"version"`
	Source      string  `json:"source"`
	ProjectPath string  `json:"project_path"`
	IsDev       bool    `json:"is_dev"`
	IsPeer      bool    `json:"is_peer"`
}

// VersionString returns the declared version or "" when unpinned.
func (d DependencyInfo) VersionString() string {
	if d.Version == nil {
		return ""
	}
	return *d.Version
}

type manifestParser func(content []byte) ([]DependencyInfo, error)

var manifestParsers = map[string]manifestParser{
	"package.json":     parsePackageJSON,
	"requirements.txt": parseRequirements,
	"pom.xml":          parsePOM,
	"go.mod":           parseGoMod,
	"Cargo.toml":       parseCargo,
	"pyproject.toml":   parsePyProject,
	"composer.json":    parseComposer,
}

// IsManifest reports whether file is a dependency manifest this package can
// parse.
func IsManifest(file string) bool {
	_, ok := manifestParsers[path.Base(file)]
	return ok
}

// ExtractManifest parses the manifest at file. ProjectPath is set to the
// manifest's directory and Source to its base name.
func ExtractManifest(file string, content []byte) ([]DependencyInfo, error) {
	base := path.Base(file)
	parse, ok := manifestParsers[base]
	if !ok {
		return nil, errors.NewValidationError("unsupported manifest").WithField("path").WithValue(file)
	}

	found, err := parse(content)
	if err != nil {
		return nil, errors.NewScanError("parse manifest", err).WithPath(file)
	}

	dir := path.Dir(file)
	for i := range found {
		found[i].Source = base
		found[i].ProjectPath = dir
	}
	return found, nil
}

func ptr(s string) *string {
	return &s
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func fromMap(m map[string]string, dev, peer bool) []DependencyInfo {
	out := make([]DependencyInfo, 0, len(m))
	for _, name := range sortedKeys(m) {
		out = append(out, DependencyInfo{Name: name, Version: ptr(m[name]), IsDev: dev, IsPeer: peer})
	}
	return out
}

func parsePackageJSON(content []byte) ([]DependencyInfo, error) {
	var pkg struct {
		Dependencies     map[string]string `json:"dependencies"`
		DevDependencies  map[string]string `json:"devDependencies"`
		PeerDependencies map[string]string `json:"peerDependencies"`
	}
	if err := json.Unmarshal(content, &pkg); err != nil {
		return nil, err
	}

	out := fromMap(pkg.Dependencies, false, false)
	out = append(out, fromMap(pkg.DevDependencies, true, false)...)
	out = append(out, fromMap(pkg.PeerDependencies, false, true)...)
	return out, nil
}

func parseComposer(content []byte) ([]DependencyInfo, error) {
	var pkg struct {
		Require    map[string]string `json:"require"`
		RequireDev map[string]string `json:"require-dev"`
	}
	if err := json.Unmarshal(content, &pkg); err != nil {
		return nil, err
	}
	return append(fromMap(pkg.Require, false, false), fromMap(pkg.RequireDev, true, false)...), nil
}

// requirementOperators are tried in order; the first present splits the line.
var requirementOperators = []string{"==", ">=", "<="}

func parseRequirements(content []byte) ([]DependencyInfo, error) {
	var out []DependencyInfo
	scanner := bufio.NewScanner(bytes.NewReader(content))
	for scanner.Scan() {
		if dep, ok := parseRequirement(scanner.Text()); ok {
			out = append(out, dep)
		}
	}
	return out, scanner.Err()
}

func parseRequirement(line string) (DependencyInfo, bool) {
	if i := strings.Index(line, "#"); i >= 0 {
		line = line[:i]
	}
	if i := strings.Index(line, ";"); i >= 0 {
		line = line[:i]
	}
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "-") {
		return DependencyInfo{}, false
	}

	name, version := line, (*string)(nil)
	for _, op := range requirementOperators {
		if i := strings.Index(line, op); i >= 0 {
			name = line[:i]
			v := strings.TrimSpace(line[i+len(op):])
			if j := strings.Index(v, ","); j >= 0 {
				v = v[:j]
			}
			version = ptr(v)
			break
		}
	}
	if i := strings.Index(name, "["); i >= 0 {
		name = name[:i]
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return DependencyInfo{}, false
	}
	return DependencyInfo{Name: name, Version: version}, true
}

var (
	pomArtifactID = regexp.MustCompile(`<artifactId>\s*([^<]*?)\s*</artifactId>`)
	pomGroupID    = regexp.MustCompile(`<groupId>\s*([^<]*?)\s*</groupId>`)
	pomVersion    = regexp.MustCompile(`<version>\s*([^<]*?)\s*</version>`)
)

// parsePOM zips artifactId, groupId and version occurrences by position.
// Descriptors routinely omit trailing versions; those map to nil.
func parsePOM(content []byte) ([]DependencyInfo, error) {
	artifacts := submatches(pomArtifactID, content)
	groups := submatches(pomGroupID, content)
	versions := submatches(pomVersion, content)

	out := make([]DependencyInfo, 0, len(artifacts))
	for i, artifact := range artifacts {
		dep := DependencyInfo{Name: artifact}
		if i < len(groups) && groups[i] != "" {
			dep.Name = groups[i] + ":" + artifact
		}
		if i < len(versions) {
			dep.Version = ptr(versions[i])
		}
		out = append(out, dep)
	}
	return out, nil
}

func submatches(re *regexp.Regexp, content []byte) []string {
	matches := re.FindAllSubmatch(content, -1)
	out := make([]string, len(matches))
	for i, m := range matches {
		out[i] = string(m[1])
	}
	return out
}

func parseGoMod(content []byte) ([]DependencyInfo, error) {
	mf, err := modfile.ParseLax("go.mod", content, nil)
	if err != nil {
		return nil, err
	}
	out := make([]DependencyInfo, 0, len(mf.Require))
	for _, req := range mf.Require {
		out = append(out, DependencyInfo{
			Name:    req.Mod.Path,
			Version: ptr(req.Mod.Version),
			IsDev:   req.Indirect,
		})
	}
	return out, nil
}

// cargoVersion reads a dependency value that is either a bare version
// string or a table with an optional version key.
func cargoVersion(value any) *string {
	switch v := value.(type) {
	case string:
		return ptr(v)
	case map[string]any:
		if s, ok := v["version"].(string); ok {
			return ptr(s)
		}
	}
	return nil
}

func cargoTable(table map[string]any, dev bool) []DependencyInfo {
	names := make([]string, 0, len(table))
	for name := range table {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]DependencyInfo, 0, len(names))
	for _, name := range names {
		out = append(out, DependencyInfo{Name: name, Version: cargoVersion(table[name]), IsDev: dev})
	}
	return out
}

func parseCargo(content []byte) ([]DependencyInfo, error) {
	var manifest struct {
		Dependencies    map[string]any `toml:"dependencies"`
		DevDependencies map[string]any `toml:"dev-dependencies"`
	}
	if err := toml.Unmarshal(content, &manifest); err != nil {
		return nil, err
	}
	return append(cargoTable(manifest.Dependencies, false), cargoTable(manifest.DevDependencies, true)...), nil
}

func parsePyProject(content []byte) ([]DependencyInfo, error) {
	var manifest struct {
		Project struct {
			Dependencies         []string            `toml:"dependencies"`
			OptionalDependencies map[string][]string `toml:"optional-dependencies"`
		} `toml:"project"`
		Tool struct {
			Poetry struct {
				Dependencies    map[string]any `toml:"dependencies"`
				DevDependencies map[string]any `toml:"dev-dependencies"`
			} `toml:"poetry"`
		} `toml:"tool"`
	}
	if err := toml.Unmarshal(content, &manifest); err != nil {
		return nil, err
	}

	var out []DependencyInfo
	for _, line := range manifest.Project.Dependencies {
		if dep, ok := parseRequirement(line); ok {
			out = append(out, dep)
		}
	}
	groups := make([]string, 0, len(manifest.Project.OptionalDependencies))
	for g := range manifest.Project.OptionalDependencies {
		groups = append(groups, g)
	}
	sort.Strings(groups)
	for _, g := range groups {
		for _, line := range manifest.Project.OptionalDependencies[g] {
			if dep, ok := parseRequirement(line); ok {
				dep.IsDev = true
				out = append(out, dep)
			}
		}
	}

	poetry := cargoTable(manifest.Tool.Poetry.Dependencies, false)
	for _, dep := range poetry {
		if dep.Name != "python" {
			out = append(out, dep)
		}
	}
	out = append(out, cargoTable(manifest.Tool.Poetry.DevDependencies, true)...)
	return out, nil
}
