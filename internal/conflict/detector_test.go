package conflict

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Iron-Ham/monosplit/internal/deps"
	"github.com/Iron-Ham/monosplit/internal/detect"
)

func v(s string) *string { return &s }

func project(name string, dependencies ...string) detect.Project {
	return detect.Project{Name: name, Path: "apps/" + name, Kind: "nodejs", Dependencies: dependencies}
}

func ofType(conflicts []DependencyConflict, typ Type) []DependencyConflict {
	var out []DependencyConflict
	for _, c := range conflicts {
		if c.Type == typ {
			out = append(out, c)
		}
	}
	return out
}

func TestVersionMismatches(t *testing.T) {
	manifests := map[string][]deps.DependencyInfo{
		"frontend": {{Name: "react", Version: v("18.0.0")}, {Name: "lodash", Version: v("4.17.21")}},
		"backend":  {{Name: "react", Version: v("17.0.0")}, {Name: "lodash", Version: v("4.17.21")}},
		"admin":    {{Name: "react", Version: nil}},
	}

	got := VersionMismatches(manifests)
	require.Len(t, got, 1)
	c := got[0]
	assert.Equal(t, VersionMismatch, c.Type)
	assert.Equal(t, "react", c.TargetProject)
	assert.Equal(t, MultipleProjects, c.SourceProject)
	assert.Equal(t, SeverityHigh, c.Severity)
	assert.Contains(t, c.Description, "backend=17.0.0, frontend=18.0.0")
	assert.NotContains(t, c.Description, "admin")
	assert.NotEmpty(t, c.ResolutionSuggestions)
}

func TestVersionMismatches_NeedsTwoPinnedProjects(t *testing.T) {
	manifests := map[string][]deps.DependencyInfo{
		"web": {{Name: "react", Version: v("18.0.0")}, {Name: "react", Version: v("17.0.0"), IsDev: true}},
		"api": {{Name: "react"}},
	}
	assert.Empty(t, VersionMismatches(manifests))
}

func TestMissingDependencies(t *testing.T) {
	projects := []detect.Project{
		project("frontend", "shared", "react", "../shared", "../../backend/client"),
		project("backend", "shared"),
		project("shared"),
	}

	got := MissingDependencies(projects)
	require.Len(t, got, 2)

	pairs := map[[2]string]DependencyConflict{}
	for _, c := range got {
		pairs[[2]string{c.SourceProject, c.TargetProject}] = c
		assert.Equal(t, SeverityCritical, c.Severity)
		assert.Equal(t, MissingDependency, c.Type)
	}
	assert.Contains(t, pairs, [2]string{"backend", "shared"})
	assert.Contains(t, pairs, [2]string{"frontend", "shared"})
	_, ok := pairs[[2]string{"frontend", "backend"}]
	assert.False(t, ok, "reference names resolve to the last path segment")
}

func TestMissingDependencies_IgnoresSelfReferences(t *testing.T) {
	assert.Empty(t, MissingDependencies([]detect.Project{project("web", "web", "./web")}))
}

func TestCircularDependencies(t *testing.T) {
	t.Run("cycle", func(t *testing.T) {
		projects := []detect.Project{
			project("frontend", "backend"),
			project("backend", "shared"),
			project("shared", "frontend"),
		}
		got := CircularDependencies(projects)
		require.Len(t, got, 1)
		assert.Equal(t, SeverityCritical, got[0].Severity)
		assert.Contains(t, got[0].Description, "Circular dependency")
		assert.Contains(t, got[0].Description, "backend -> shared -> frontend -> backend")
	})

	t.Run("acyclic chain", func(t *testing.T) {
		projects := []detect.Project{
			project("a", "b"),
			project("b", "c"),
			project("c"),
		}
		assert.Empty(t, CircularDependencies(projects))
	})
}

func TestSharedDependencies(t *testing.T) {
	manifests := map[string][]deps.DependencyInfo{
		"frontend": {{Name: "lodash", Version: v("4.17.21")}},
		"backend":  {{Name: "lodash", Version: v("4.17.21")}, {Name: "express", Version: v("4.18.0")}},
	}
	got := SharedDependencies(manifests)
	require.Len(t, got, 1)
	assert.Equal(t, "lodash", got[0].TargetProject)
	assert.Equal(t, SeverityMedium, got[0].Severity)
	assert.Contains(t, got[0].Description, "backend, frontend")
}

func TestComponentUsage(t *testing.T) {
	projects := []detect.Project{
		project("web", "../../shared/utils", "react"),
		project("api", "@acme/utils"),
		project("cli", "lodash"),
	}
	components := []detect.CommonComponent{
		{Name: "utils", Path: "shared/utils"},
		{Name: "logging", Path: "libs/logging"},
	}

	usage := ComponentUsage(projects, components)
	assert.Equal(t, map[string][]string{"utils": {"api", "web"}}, usage)
}

func TestDetect_EndToEndVersionScenario(t *testing.T) {
	projects := []detect.Project{project("frontend"), project("backend")}
	manifests := map[string][]deps.DependencyInfo{
		"frontend": {{Name: "react", Version: v("18.0.0"), Source: "package.json"}},
		"backend":  {{Name: "react", Version: v("17.0.0"), Source: "package.json"}},
	}

	out, err := Detect(context.Background(), Input{Projects: projects, Manifests: manifests})
	require.NoError(t, err)

	mismatches := ofType(out.Conflicts, VersionMismatch)
	require.Len(t, mismatches, 1)
	assert.Equal(t, "react", mismatches[0].TargetProject)
	assert.Empty(t, ofType(out.Conflicts, MissingDependency))
	assert.Empty(t, ofType(out.Conflicts, CircularDependency))
	assert.Len(t, ofType(out.Conflicts, SharedDependency), 1)

	// Pass order is version, missing, circular, shared
	assert.Equal(t, VersionMismatch, out.Conflicts[0].Type)
	assert.Equal(t, SharedDependency, out.Conflicts[len(out.Conflicts)-1].Type)
}

func TestDetect_Idempotent(t *testing.T) {
	in := Input{
		Projects: []detect.Project{
			project("a", "b", "lodash"),
			project("b", "c"),
			project("c", "a"),
			project("d", "a"),
		},
		Manifests: map[string][]deps.DependencyInfo{
			"a": {{Name: "x", Version: v("1")}, {Name: "y", Version: v("2")}},
			"b": {{Name: "x", Version: v("2")}, {Name: "y", Version: v("2")}},
			"d": {{Name: "x", Version: v("3")}},
		},
	}

	first, err := Detect(context.Background(), in)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		again, err := Detect(context.Background(), in)
		require.NoError(t, err)
		require.Equal(t, first, again)
	}
}

func TestDetect_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Detect(ctx, Input{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSeverityHelpers(t *testing.T) {
	conflicts := []DependencyConflict{
		{Type: SharedDependency, Severity: SeverityMedium},
		{Type: MissingDependency, Severity: SeverityCritical},
		{Type: VersionMismatch, Severity: SeverityHigh},
		{Type: CircularDependency, Severity: SeverityCritical},
	}

	assert.Equal(t, 2, Critical(conflicts))
	assert.Equal(t, map[Severity]int{
		SeverityLow:      0,
		SeverityMedium:   1,
		SeverityHigh:     1,
		SeverityCritical: 2,
	}, CountBySeverity(conflicts))

	high := Filter(conflicts, SeverityHigh)
	require.Len(t, high, 3)
	assert.Equal(t, MissingDependency, high[0].Type)
	assert.Equal(t, CircularDependency, high[1].Type)
	assert.Equal(t, VersionMismatch, high[2].Type)

	assert.True(t, SeverityCritical.AtLeast(SeverityHigh))
	assert.False(t, SeverityLow.AtLeast(SeverityMedium))
	for typ, want := range map[Type]Severity{
		CircularDependency: SeverityCritical,
		MissingDependency:  SeverityCritical,
		VersionMismatch:    SeverityHigh,
		SharedDependency:   SeverityMedium,
	} {
		assert.Equal(t, want, SeverityOf(typ))
	}
}
