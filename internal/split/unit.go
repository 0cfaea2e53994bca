package split

import (
	"fmt"
	"path"
	"strings"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	"github.com/Iron-Ham/monosplit/internal/config"
	"github.com/Iron-Ham/monosplit/internal/detect"
	"github.com/Iron-Ham/monosplit/internal/errors"
	"github.com/Iron-Ham/monosplit/internal/logging"
	"github.com/Iron-Ham/monosplit/internal/provider"
)

// Kind selects the extraction strategy for a unit.
type Kind string

const (
	// KindProject is a detected or declared application directory.
	KindProject Kind = "project"
	// KindComponent is a shared library directory.
	KindComponent Kind = "component"
	// KindBranch is a whole branch.
	KindBranch Kind = "branch"
)

// Unit is one repository to produce.
type Unit struct {
	Name        string `json:"name" yaml:"name"`
	Kind        Kind   `json:"kind" yaml:"kind"`
	Path        string `json:"path,omitempty" yaml:"path,omitempty"`
	Branch      string `json:"branch,omitempty" yaml:"branch,omitempty"`
	RepoName    string `json:"repo_name" yaml:"repo_name,omitempty"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	Library     bool   `json:"library,omitempty" yaml:"library,omitempty"`
	// Package is set when the unit's root holds a package.json to prepare
	// for standalone use.
	Package bool `json:"package,omitempty" yaml:"package,omitempty"`
}

// pathStrategy reports whether the unit is extracted by path rather than branch.
func (u Unit) pathStrategy() bool {
	return u.Kind != KindBranch
}

// NeedsFilterRepo reports whether any unit is extracted by path, which
// requires the git-filter-repo extension.
func NeedsFilterRepo(units []Unit) bool {
	for _, u := range units {
		if u.pathStrategy() {
			return true
		}
	}
	return false
}

// Templates holds the repository name templates, each containing {name}.
type Templates struct {
	App    string
	Lib    string
	Branch string
}

// TemplatesFromConfig returns the templates configured for a split.
func TemplatesFromConfig(cfg config.SplitConfig) Templates {
	return Templates{App: cfg.AppTemplate, Lib: cfg.LibTemplate, Branch: cfg.BranchTemplate}
}

func (t Templates) forKind(k Kind) string {
	switch k {
	case KindComponent:
		return t.Lib
	case KindBranch:
		return t.Branch
	default:
		return t.App
	}
}

func (t Templates) repoName(k Kind, name string) string {
	return provider.Sanitize(config.ApplyTemplate(t.forKind(k), name))
}

// AutoUnits turns an analysis into units: every project with the app
// template and every common component with the library template.
// Projects rooted at the repository root are the monorepo itself and are skipped.
func AutoUnits(projects []detect.Project, components []detect.CommonComponent, t Templates, logger *logging.Logger) []Unit {
	if logger == nil {
		logger = logging.NopLogger()
	}

	units := make([]Unit, 0, len(projects)+len(components))
	for _, p := range projects {
		if p.Path == "." {
			logger.Info("skipping project at repository root", "project", p.Name)
			continue
		}
		units = append(units, Unit{
			Name:        p.Name,
			Kind:        KindProject,
			Path:        p.Path,
			RepoName:    t.repoName(KindProject, p.Name),
			Description: fmt.Sprintf("%s application extracted from monorepo", title(p.Kind)),
		})
	}
	for _, c := range components {
		units = append(units, Unit{
			Name:        c.Name,
			Kind:        KindComponent,
			Path:        c.Path,
			RepoName:    t.repoName(KindComponent, c.Name),
			Description: "Common library component extracted from monorepo",
			Library:     true,
		})
	}
	return units
}

// ProjectUnits builds units for operator-listed project directories plus an
// optional common library directory.
func ProjectUnits(paths []string, commonPath string, t Templates) []Unit {
	var units []Unit
	for _, raw := range paths {
		p := detect.Canonical(strings.TrimSpace(raw))
		if p == "" || p == "." {
			continue
		}
		name := path.Base(p)
		units = append(units, Unit{
			Name:        name,
			Kind:        KindProject,
			Path:        p,
			RepoName:    t.repoName(KindProject, name),
			Description: "Application extracted from monorepo",
		})
	}

	if p := detect.Canonical(strings.TrimSpace(commonPath)); p != "" && p != "." {
		name := path.Base(p)
		units = append(units, Unit{
			Name:        name,
			Kind:        KindComponent,
			Path:        p,
			RepoName:    t.repoName(KindComponent, name),
			Description: "Common library component extracted from monorepo",
			Library:     true,
		})
	}
	return units
}

// BranchUnits builds one unit per branch.
func BranchUnits(branches []string, t Templates) []Unit {
	var units []Unit
	for _, raw := range branches {
		b := strings.TrimSpace(raw)
		if b == "" {
			continue
		}
		units = append(units, Unit{
			Name:        b,
			Kind:        KindBranch,
			Branch:      b,
			RepoName:    t.repoName(KindBranch, b),
			Description: fmt.Sprintf("Repository extracted from branch %s", b),
		})
	}
	return units
}

// Plan is the on-disk format of an explicit split plan.
//
//	units:
//	  - name: web
//	    kind: project
//	    path: apps/web
//	  - name: release-1.x
//	    kind: branch
//	    branch: release/1.x
type Plan struct {
	Units []Unit `yaml:"units"`
}

// LoadPlan reads a YAML plan and fills in defaults: repository names from
// the templates, the branch from the name for branch units, and the library
// flag for components.
func LoadPlan(fsys afero.Fs, file string, t Templates) ([]Unit, error) {
	data, err := afero.ReadFile(fsys, file)
	if err != nil {
		return nil, errors.NewValidationError("cannot read split plan").
			WithField("split.plan_file").
			WithValue(file).
			WithCause(err)
	}

	var plan Plan
	if err := yaml.Unmarshal(data, &plan); err != nil {
		return nil, errors.NewValidationError("malformed split plan").
			WithField("split.plan_file").
			WithValue(file).
			WithCause(err)
	}

	units := make([]Unit, 0, len(plan.Units))
	for _, u := range plan.Units {
		if u.Kind == "" {
			u.Kind = KindProject
		}
		if u.Kind == KindBranch && u.Branch == "" {
			u.Branch = u.Name
		}
		if u.Path != "" {
			u.Path = detect.Canonical(u.Path)
		}
		if u.Name == "" && u.Path != "" {
			u.Name = path.Base(u.Path)
		}
		if u.Kind == KindComponent {
			u.Library = true
		}
		if u.RepoName == "" {
			u.RepoName = t.repoName(u.Kind, u.Name)
		} else {
			u.RepoName = provider.Sanitize(u.RepoName)
		}
		units = append(units, u)
	}
	return units, nil
}

// Source is what unit selection knows about the analyzed monorepo. Files
// is the sorted, '/'-separated file list of the working tree.
type Source struct {
	Files      []string
	Projects   []detect.Project
	Components []detect.CommonComponent
}

// BuildUnits selects units for cfg: the plan file when set, otherwise the
// configured mode. Auto mode uses the analysis results. Path units whose
// directory holds a package.json in src.Files are marked for packaging.
func BuildUnits(cfg config.SplitConfig, fsys afero.Fs, src Source, logger *logging.Logger) ([]Unit, error) {
	t := TemplatesFromConfig(cfg)
	projects, components := src.Projects, src.Components

	var units []Unit
	switch {
	case cfg.PlanFile != "":
		var err error
		if units, err = LoadPlan(fsys, cfg.PlanFile, t); err != nil {
			return nil, err
		}
	case cfg.Mode == config.ModeProject:
		units = ProjectUnits(cfg.Projects, cfg.CommonPath, t)
	case cfg.Mode == config.ModeBranch:
		units = BranchUnits(cfg.Branches, t)
	default:
		units = AutoUnits(projects, components, t, logger)
	}

	if err := ValidateUnits(units); err != nil {
		return nil, err
	}
	MarkPackages(units, src.Files)
	return units, nil
}

// MarkPackages sets Package on every path unit whose directory contains a
// package.json in files. Branch units keep whatever the plan declared,
// since their trees are not analyzed.
func MarkPackages(units []Unit, files []string) {
	manifests := make(map[string]bool)
	for _, f := range files {
		if path.Base(f) == packageManifest {
			manifests[path.Dir(detect.Canonical(f))] = true
		}
	}
	for i := range units {
		if units[i].pathStrategy() && manifests[detect.Canonical(units[i].Path)] {
			units[i].Package = true
		}
	}
}

// ValidateUnits checks that every unit can be extracted and that no two
// units target the same repository.
func ValidateUnits(units []Unit) error {
	seen := make(map[string]string, len(units))
	for i, u := range units {
		field := fmt.Sprintf("units[%d]", i)
		switch {
		case u.Name == "":
			return errors.NewValidationError("unit has no name").WithField(field)
		case u.Kind != KindProject && u.Kind != KindComponent && u.Kind != KindBranch:
			return errors.NewValidationError("unknown unit kind").WithField(field + ".kind").WithValue(u.Kind)
		case u.pathStrategy() && (u.Path == "" || u.Path == "."):
			return errors.NewValidationError("path units need a subdirectory").WithField(field + ".path").WithValue(u.Path)
		case !u.pathStrategy() && u.Branch == "":
			return errors.NewValidationError("branch units need a branch").WithField(field + ".branch")
		}
		if other, ok := seen[u.RepoName]; ok {
			return errors.NewValidationError(fmt.Sprintf("units %q and %q share a repository name", other, u.Name)).
				WithField(field + ".repo_name").
				WithValue(u.RepoName)
		}
		seen[u.RepoName] = u.Name
	}
	return nil
}

func title(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
