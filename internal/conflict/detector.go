package conflict

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/Iron-Ham/monosplit/internal/deps"
	"github.com/Iron-Ham/monosplit/internal/detect"
)

// Input is the read-only analysis state the passes consume.
type Input struct {
	Projects   []detect.Project
	Components []detect.CommonComponent
	// Manifests maps a project name to its declared dependencies.
	Manifests map[string][]deps.DependencyInfo
}

// Output holds the merged conflicts and the component usage map.
type Output struct {
	// Conflicts are ordered by pass (version, missing, circular, shared),
	// each pass sorted internally.
	Conflicts []DependencyConflict
	// Usage maps a component name to the sorted names of projects
	// referencing it. Unused components are absent.
	Usage map[string][]string
}

// Detect runs the four conflict passes and the component usage pass
// concurrently. Each pass writes only its own result.
func Detect(ctx context.Context, in Input) (Output, error) {
	var (
		versions []DependencyConflict
		missing  []DependencyConflict
		circular []DependencyConflict
		shared   []DependencyConflict
		usage    map[string][]string
	)

	g, _ := errgroup.WithContext(ctx)
	g.Go(func() error { versions = VersionMismatches(in.Manifests); return nil })
	g.Go(func() error { missing = MissingDependencies(in.Projects); return nil })
	g.Go(func() error { circular = CircularDependencies(in.Projects); return nil })
	g.Go(func() error { shared = SharedDependencies(in.Manifests); return nil })
	g.Go(func() error { usage = ComponentUsage(in.Projects, in.Components); return nil })
	if err := g.Wait(); err != nil {
		return Output{}, err
	}
	if err := ctx.Err(); err != nil {
		return Output{}, err
	}

	conflicts := make([]DependencyConflict, 0, len(versions)+len(missing)+len(circular)+len(shared))
	conflicts = append(conflicts, versions...)
	conflicts = append(conflicts, missing...)
	conflicts = append(conflicts, circular...)
	conflicts = append(conflicts, shared...)
	return Output{Conflicts: conflicts, Usage: usage}, nil
}

// declarations maps dependency name -> project name -> first pinned version
// ("" when the project never pins it).
func declarations(manifests map[string][]deps.DependencyInfo) map[string]map[string]string {
	out := make(map[string]map[string]string)
	for project, declared := range manifests {
		for _, d := range declared {
			byProject, ok := out[d.Name]
			if !ok {
				byProject = make(map[string]string)
				out[d.Name] = byProject
			}
			if v, seen := byProject[project]; !seen || v == "" {
				byProject[project] = d.VersionString()
			}
		}
	}
	return out
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// VersionMismatches emits one high-severity conflict per dependency pinned
// to more than one distinct version across projects.
func VersionMismatches(manifests map[string][]deps.DependencyInfo) []DependencyConflict {
	decl := declarations(manifests)
	var out []DependencyConflict
	for _, name := range sortedKeys(decl) {
		pinned := make(map[string]string)
		distinct := make(map[string]struct{})
		for project, version := range decl[name] {
			if version == "" {
				continue
			}
			pinned[project] = version
			distinct[version] = struct{}{}
		}
		if len(pinned) < 2 || len(distinct) < 2 {
			continue
		}

		mapping := make([]string, 0, len(pinned))
		for _, project := range sortedKeys(pinned) {
			mapping = append(mapping, project+"="+pinned[project])
		}
		out = append(out, DependencyConflict{
			Type:          VersionMismatch,
			SourceProject: MultipleProjects,
			TargetProject: name,
			Severity:      SeverityOf(VersionMismatch),
			Description: fmt.Sprintf("Dependency '%s' is pinned to %d different versions: %s",
				name, len(distinct), strings.Join(mapping, ", ")),
			ResolutionSuggestions: []string{
				fmt.Sprintf("Align every project on a single version of '%s' before splitting", name),
				fmt.Sprintf("Pin '%s' explicitly in each new repository's manifest", name),
				"Test each split repository against the version it will ship with",
			},
		})
	}
	return out
}

// edges returns the internal project references of p, excluding itself.
func edges(p detect.Project, known map[string]struct{}) []string {
	targets := make(map[string]struct{})
	for _, d := range p.Dependencies {
		for _, candidate := range []string{d, deps.ReferenceName(d)} {
			if candidate == "" || candidate == p.Name {
				continue
			}
			if _, ok := known[candidate]; ok {
				targets[candidate] = struct{}{}
			}
		}
	}
	return sortedKeys(targets)
}

// BuildGraph returns the project reference graph restricted to edges whose
// target is a known project.
func BuildGraph(projects []detect.Project) Graph {
	known := make(map[string]struct{}, len(projects))
	for _, p := range projects {
		known[p.Name] = struct{}{}
	}
	g := make(Graph, len(projects))
	for _, p := range projects {
		g[p.Name] = edges(p, known)
	}
	return g
}

// MissingDependencies emits one critical conflict per (source, target)
// project pair where source references target, since the reference is
// severed once they live in separate repositories.
func MissingDependencies(projects []detect.Project) []DependencyConflict {
	g := BuildGraph(projects)
	var out []DependencyConflict
	for _, source := range g.Nodes() {
		for _, target := range g[source] {
			out = append(out, DependencyConflict{
				Type:          MissingDependency,
				SourceProject: source,
				TargetProject: target,
				Severity:      SeverityOf(MissingDependency),
				Description: fmt.Sprintf("Project '%s' depends on '%s', which becomes a separate repository after the split",
					source, target),
				ResolutionSuggestions: []string{
					fmt.Sprintf("Publish '%s' as a versioned package and consume it from '%s'", target, source),
					fmt.Sprintf("Vendor '%s' into '%s' as a git submodule or subtree", target, source),
					fmt.Sprintf("Extract '%s' and '%s' together if they are released as one unit", source, target),
				},
			})
		}
	}
	return out
}

// CircularDependencies emits one critical conflict per cycle found by a
// depth-first search rooted at each unvisited project.
func CircularDependencies(projects []detect.Project) []DependencyConflict {
	var out []DependencyConflict
	for _, cycle := range Cycles(BuildGraph(projects)) {
		path := FormatCycle(cycle)
		out = append(out, DependencyConflict{
			Type:          CircularDependency,
			SourceProject: cycle[0],
			TargetProject: cycle[1],
			Severity:      SeverityOf(CircularDependency),
			Description:   fmt.Sprintf("Circular dependency detected: %s", path),
			ResolutionSuggestions: []string{
				"Break the cycle by moving the shared code into a common library",
				"Invert one of the references with an interface or event boundary",
				fmt.Sprintf("Keep %s in a single repository", strings.Join(cycle[:len(cycle)-1], ", ")),
			},
		})
	}
	return out
}

// SharedDependencies emits one medium-severity conflict per dependency
// declared by more than one project.
func SharedDependencies(manifests map[string][]deps.DependencyInfo) []DependencyConflict {
	decl := declarations(manifests)
	var out []DependencyConflict
	for _, name := range sortedKeys(decl) {
		if len(decl[name]) < 2 {
			continue
		}
		projects := sortedKeys(decl[name])
		out = append(out, DependencyConflict{
			Type:          SharedDependency,
			SourceProject: MultipleProjects,
			TargetProject: name,
			Severity:      SeverityOf(SharedDependency),
			Description: fmt.Sprintf("Dependency '%s' is declared by %d projects: %s",
				name, len(projects), strings.Join(projects, ", ")),
			ResolutionSuggestions: []string{
				fmt.Sprintf("Coordinate '%s' upgrades across the split repositories", name),
				fmt.Sprintf("Consider a shared configuration package that pins '%s'", name),
			},
		})
	}
	return out
}

// ComponentUsage maps each component to the projects whose dependencies
// name it.
func ComponentUsage(projects []detect.Project, components []detect.CommonComponent) map[string][]string {
	usage := make(map[string][]string)
	for _, c := range components {
		for _, p := range projects {
			if references(p, c.Name) {
				usage[c.Name] = append(usage[c.Name], p.Name)
			}
		}
		sort.Strings(usage[c.Name])
		if len(usage[c.Name]) == 0 {
			delete(usage, c.Name)
		}
	}
	return usage
}

func references(p detect.Project, name string) bool {
	for _, d := range p.Dependencies {
		if d == name || deps.ReferenceName(d) == name {
			return true
		}
	}
	return false
}
