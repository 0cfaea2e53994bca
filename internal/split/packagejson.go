package split

import (
	"bytes"
	"encoding/json"
	"strings"
)

const (
	defaultPackageVersion = "1.0.0"
	defaultTestScript     = `echo "No tests configured" && exit 0`
	defaultBuildScript    = `echo "No build step configured"`
	defaultLibraryMain    = "index.js"
)

// TransformPackageJSON makes a workspace package.json usable on its own. It
// guarantees a name (repoName when empty), a version, repository and
// homepage entries pointing at repoURL, a private flag, test and build
// scripts, and, for libraries, a main entry. Fields that are already set
// are kept as they are; the workspaces declaration is always removed.
// original is not modified.
func TransformPackageJSON(original map[string]any, repoName, repoURL string, isLibrary bool) map[string]any {
	out := make(map[string]any, len(original)+6)
	for k, v := range original {
		out[k] = v
	}

	if name, _ := out["name"].(string); strings.TrimSpace(name) == "" {
		out["name"] = repoName
	}
	if version, _ := out["version"].(string); strings.TrimSpace(version) == "" {
		out["version"] = defaultPackageVersion
	}
	if _, ok := out["repository"]; !ok {
		out["repository"] = map[string]any{"type": "git", "url": repoURL}
	}
	if _, ok := out["homepage"]; !ok {
		out["homepage"] = homepage(repoURL)
	}
	if _, ok := out["private"]; !ok {
		out["private"] = false
	}
	if _, ok := out["main"]; !ok && isLibrary {
		out["main"] = defaultLibraryMain
	}

	scripts := make(map[string]any)
	if existing, ok := out["scripts"].(map[string]any); ok {
		for k, v := range existing {
			scripts[k] = v
		}
	}
	if _, ok := scripts["test"]; !ok {
		scripts["test"] = defaultTestScript
	}
	if _, ok := scripts["build"]; !ok {
		scripts["build"] = defaultBuildScript
	}
	out["scripts"] = scripts

	delete(out, "workspaces")
	return out
}

// homepage converts a clone URL into a browsable one:
// "https://host/org/repo.git" and "git@host:org/repo.git" both become
// "https://host/org/repo".
func homepage(repoURL string) string {
	u := strings.TrimSuffix(repoURL, ".git")
	if rest, ok := strings.CutPrefix(u, "git@"); ok {
		host, p, found := strings.Cut(rest, ":")
		if found {
			return "https://" + host + "/" + p
		}
	}
	return u
}

// rewritePackageJSON applies TransformPackageJSON to raw manifest bytes and
// reports whether anything changed. Numbers are preserved verbatim.
func rewritePackageJSON(data []byte, repoName, repoURL string, isLibrary bool) ([]byte, bool, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var original map[string]any
	if err := dec.Decode(&original); err != nil {
		return nil, false, err
	}
	if original == nil {
		original = map[string]any{}
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(TransformPackageJSON(original, repoName, repoURL, isLibrary)); err != nil {
		return nil, false, err
	}
	return buf.Bytes(), !bytes.Equal(buf.Bytes(), data), nil
}
