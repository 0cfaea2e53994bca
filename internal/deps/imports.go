package deps

import (
	"path"
	"regexp"
	"sort"
	"strings"
)

var importPatterns = []*regexp.Regexp{
	regexp.MustCompile(`import\s+.*?from\s+['"]([^'"]+)['"]`),
	regexp.MustCompile(`require\s*\(\s*['"]([^'"]+)['"]`),
	regexp.MustCompile(`from\s+['"]([^'"]+)['"]`),
	regexp.MustCompile(`import\s+['"]([^'"]+)['"]`),
}

var importExtensions = map[string]struct{}{
	".js": {}, ".ts": {}, ".jsx": {}, ".tsx": {}, ".mjs": {}, ".cjs": {},
	".py": {}, ".java": {}, ".go": {},
}

// ScansImports reports whether file is a source file whose imports are
// extracted.
func ScansImports(file string) bool {
	_, ok := importExtensions[path.Ext(file)]
	return ok
}

// ExtractImports returns the sorted, deduplicated import targets found in
// content by any of the import patterns.
func ExtractImports(content []byte) []string {
	seen := make(map[string]struct{})
	for _, re := range importPatterns {
		for _, m := range re.FindAllSubmatch(content, -1) {
			seen[string(m[1])] = struct{}{}
		}
	}

	out := make([]string, 0, len(seen))
	for target := range seen {
		out = append(out, target)
	}
	sort.Strings(out)
	return out
}

// ReferenceName reduces an import target to the unit name it most likely
// refers to:
//
//	"@acme/ui/button"     -> "ui"
//	"../../shared/utils"  -> "utils"
//	"lodash/fp"           -> "lodash"
//	"backend"             -> "backend"
func ReferenceName(target string) string {
	target = strings.TrimSpace(target)
	switch {
	case target == "":
		return ""
	case strings.HasPrefix(target, "@"):
		parts := strings.SplitN(target, "/", 3)
		if len(parts) >= 2 {
			return parts[1]
		}
		return strings.TrimPrefix(target, "@")
	case strings.HasPrefix(target, ".") || strings.HasPrefix(target, "/"):
		cleaned := path.Clean(strings.TrimSuffix(target, "/"))
		base := path.Base(cleaned)
		if base == "." || base == ".." || base == "/" {
			return ""
		}
		if ext := path.Ext(base); ext != "" {
			if _, ok := importExtensions[ext]; ok {
				base = strings.TrimSuffix(base, ext)
			}
		}
		if base == "index" {
			return ReferenceName(path.Dir(cleaned) + "/")
		}
		return base
	default:
		return strings.SplitN(target, "/", 2)[0]
	}
}
