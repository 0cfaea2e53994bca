// Package detect infers application projects and shared components from a
// repository file list.
//
// Detection is a pure function of the file set: the input is canonicalized
// and sorted before any rule runs, so iteration order never influences which
// directory wins a name.
package detect

import (
	"path"
	"regexp"
	"sort"
	"strings"
)

// Project is an application unit detected from a marker file or a
// directory naming convention.
type Project struct {
	Name string
	Path string
	// Kind is the marker ecosystem tag, or KindApp for convention matches.
	Kind string
	// Dependencies is the sorted set of import targets referenced by the
	// project's source files. Populated by the dependency extraction pass.
	Dependencies []string
	Files        []string
}

// Size is the number of files belonging to the project.
func (p Project) Size() int {
	return len(p.Files)
}

// CommonComponent is a shared library directory.
type CommonComponent struct {
	Name  string
	Path  string
	Files []string
	// UsedBy holds the names of projects referencing this component.
	UsedBy []string
}

// UsageCount is the number of projects referencing the component.
func (c CommonComponent) UsageCount() int {
	return len(c.UsedBy)
}

// KindApp tags projects detected by directory convention.
const KindApp = "app"

// DefaultSubstantialSourceFiles is the source file count a convention
// directory must exceed to count as a project.
const DefaultSubstantialSourceFiles = 3

// Options tunes detection.
type Options struct {
	// SubstantialSourceFiles is the source file count a convention
	// directory must exceed, unless it holds a structured config file.
	SubstantialSourceFiles int
}

// DefaultOptions returns the standard detection options.
func DefaultOptions() Options {
	return Options{SubstantialSourceFiles: DefaultSubstantialSourceFiles}
}

// markers maps manifest and build file names to an ecosystem tag.
var markers = map[string]string{
	"package.json":        "nodejs",
	"requirements.txt":    "python",
	"pom.xml":             "java",
	"build.gradle":        "java",
	"Cargo.toml":          "rust",
	"go.mod":              "go",
	"composer.json":       "php",
	"Gemfile":             "ruby",
	"Dockerfile":          "docker",
	"docker-compose.yml":  "docker",
	"Makefile":            "make",
	"CMakeLists.txt":      "cmake",
	"pubspec.yaml":        "flutter",
	"angular.json":        "angular",
	"vue.config.js":       "vue",
	"next.config.js":      "nextjs",
	"nuxt.config.js":      "nuxt",
	"vite.config.js":      "vite",
	"webpack.config.js":   "webpack",
	"rollup.config.js":    "rollup",
	"tsconfig.json":       "typescript",
	"app.json":            "react-native",
	"project.json":        "nx",
	"workspace.json":      "nx",
	"lerna.json":          "lerna",
	"rush.json":           "rush",
	"pnpm-workspace.yaml": "pnpm",
	"yarn.lock":           "yarn",
	"package-lock.json":   "npm",
}

// MarkerKind returns the ecosystem tag for a marker file name.
func MarkerKind(name string) (string, bool) {
	kind, ok := markers[name]
	return kind, ok
}

var appPatterns = segmentPatterns(
	`apps?`, `services?`, `frontend`, `backend`, `clients?`,
	`packages?`, `modules?`, `components?`, `features?`, `projects?`,
)

var commonPatterns = segmentPatterns(
	`common`, `shared`, `libs?`, `utils?`, `core`,
	`base`, `foundation`, `components?`, `packages?`, `modules?`,
)

// segmentPatterns anchors each alternative to a whole path segment and
// captures the directory directly below it.
func segmentPatterns(segments ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(segments))
	for i, seg := range segments {
		out[i] = regexp.MustCompile(`(?:^|/)(?:` + seg + `)/([^/]+)/`)
	}
	return out
}

var sourceExtensions = map[string]struct{}{
	".js": {}, ".ts": {}, ".jsx": {}, ".tsx": {}, ".py": {}, ".java": {}, ".go": {},
	".rs": {}, ".php": {}, ".rb": {}, ".cs": {}, ".swift": {}, ".kt": {},
}

var structuredExtensions = map[string]struct{}{
	".json": {}, ".yaml": {}, ".yml": {}, ".toml": {}, ".xml": {},
}

// IsSourceFile reports whether p has a recognized source code extension.
func IsSourceFile(p string) bool {
	_, ok := sourceExtensions[path.Ext(p)]
	return ok
}

// Detect classifies the directories of files into projects and common
// components. Both results are sorted by name.
func Detect(files []string, opts Options) ([]Project, []CommonComponent) {
	tree := newTree(files)
	projects := tree.detectProjects(opts)
	components := tree.detectComponents()
	return projects, components
}

// tree is a canonical, sorted, deduplicated file list.
type tree struct {
	files []string
}

func newTree(files []string) *tree {
	seen := make(map[string]struct{}, len(files))
	canon := make([]string, 0, len(files))
	for _, f := range files {
		f = Canonical(f)
		if f == "" {
			continue
		}
		if _, dup := seen[f]; dup {
			continue
		}
		seen[f] = struct{}{}
		canon = append(canon, f)
	}
	sort.Strings(canon)
	return &tree{files: canon}
}

// Canonical normalizes a relative path to clean slash form. It returns ""
// for paths that do not name a file inside the tree.
func Canonical(p string) string {
	p = strings.ReplaceAll(p, "\\", "/")
	p = path.Clean(p)
	p = strings.TrimPrefix(p, "./")
	p = strings.TrimPrefix(p, "/")
	if p == "." || p == "" || p == ".." || strings.HasPrefix(p, "../") {
		return ""
	}
	return p
}

// under returns the files inside dir. "." is the tree root.
func (t *tree) under(dir string) []string {
	if dir == "." || dir == "" {
		return append([]string(nil), t.files...)
	}
	prefix := dir + "/"
	start := sort.SearchStrings(t.files, prefix)
	var out []string
	for _, f := range t.files[start:] {
		if !strings.HasPrefix(f, prefix) {
			break
		}
		out = append(out, f)
	}
	return out
}

func (t *tree) detectProjects(opts Options) []Project {
	byName := make(map[string]Project)
	markedDirs := make(map[string]struct{})

	for _, f := range t.files {
		dir, base := path.Dir(f), path.Base(f)
		kind, ok := markers[base]
		if !ok {
			continue
		}
		if _, done := markedDirs[dir]; done {
			continue
		}
		markedDirs[dir] = struct{}{}

		name := projectName(dir, base)
		if _, taken := byName[name]; taken {
			continue
		}
		byName[name] = Project{Name: name, Path: dir, Kind: kind}
	}

	substantial := make(map[string]bool)
	for _, f := range t.files {
		dir, name, ok := matchFirst(appPatterns, f)
		if !ok {
			continue
		}
		if _, taken := byName[name]; taken {
			continue
		}
		if _, marked := markedDirs[dir]; marked {
			continue
		}
		isSubstantial, seen := substantial[dir]
		if !seen {
			isSubstantial = t.substantial(dir, opts.SubstantialSourceFiles)
			substantial[dir] = isSubstantial
		}
		if isSubstantial {
			byName[name] = Project{Name: name, Path: dir, Kind: KindApp}
		}
	}

	projects := make([]Project, 0, len(byName))
	for _, p := range byName {
		projects = append(projects, p)
	}
	sort.Slice(projects, func(i, j int) bool { return projects[i].Name < projects[j].Name })
	t.claim(projects)
	return projects
}

// claim gives every file to the innermost project containing it. A project
// never lists files that belong to a project nested below it.
func (t *tree) claim(projects []Project) {
	owner := make(map[string]int, len(projects))
	for i, p := range projects {
		owner[p.Path] = i
	}
	for _, f := range t.files {
		for dir := path.Dir(f); ; dir = path.Dir(dir) {
			if i, ok := owner[dir]; ok {
				projects[i].Files = append(projects[i].Files, f)
				break
			}
			if dir == "." {
				break
			}
		}
	}
}

func (t *tree) detectComponents() []CommonComponent {
	byName := make(map[string]CommonComponent)
	for _, f := range t.files {
		dir, name, ok := matchFirst(commonPatterns, f)
		if !ok {
			continue
		}
		if _, taken := byName[name]; taken {
			continue
		}
		byName[name] = CommonComponent{Name: name, Path: dir, Files: t.under(dir)}
	}

	components := make([]CommonComponent, 0, len(byName))
	for _, c := range byName {
		components = append(components, c)
	}
	sort.Slice(components, func(i, j int) bool { return components[i].Name < components[j].Name })
	return components
}

func (t *tree) substantial(dir string, threshold int) bool {
	sources := 0
	for _, f := range t.under(dir) {
		ext := path.Ext(f)
		if _, ok := structuredExtensions[ext]; ok {
			return true
		}
		if _, ok := sourceExtensions[ext]; ok {
			sources++
		}
	}
	return sources > threshold
}

// matchFirst applies patterns in order and returns the directory and name
// captured by the first one matching f.
func matchFirst(patterns []*regexp.Regexp, f string) (dir, name string, ok bool) {
	for _, re := range patterns {
		loc := re.FindStringSubmatchIndex(f)
		if loc == nil {
			continue
		}
		return f[:loc[3]], f[loc[2]:loc[3]], true
	}
	return "", "", false
}

func projectName(dir, manifest string) string {
	if dir == "." {
		return strings.TrimSuffix(manifest, path.Ext(manifest))
	}
	return path.Base(dir)
}
