// Package deps extracts dependency information from source files and
// package manifests.
//
// Import extraction is pattern based and ecosystem agnostic. Manifest
// extraction is format specific and yields DependencyInfo records with
// versions and dev/peer flags. Neither performs dependency resolution.
package deps

import (
	"context"
	"path"
	"path/filepath"
	"sort"

	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"

	"github.com/Iron-Ham/monosplit/internal/detect"
	"github.com/Iron-Ham/monosplit/internal/errors"
	"github.com/Iron-Ham/monosplit/internal/logging"
)

// DefaultWorkers bounds concurrent file parsing when no limit is given.
const DefaultWorkers = 8

// Result is the output of an extraction pass.
type Result struct {
	// Projects are copies of the input projects with Dependencies set.
	Projects []detect.Project
	// Manifests maps a project name to the dependencies declared by the
	// manifests at its root.
	Manifests map[string][]DependencyInfo
}

// Extractor reads project files through an afero filesystem.
type Extractor struct {
	fs      afero.Fs
	root    string
	workers int
	logger  *logging.Logger
}

// NewExtractor creates an Extractor reading files relative to root.
func NewExtractor(fsys afero.Fs, root string, workers int, logger *logging.Logger) *Extractor {
	if workers < 1 {
		workers = DefaultWorkers
	}
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &Extractor{
		fs:      fsys,
		root:    root,
		workers: workers,
		logger:  logger.WithPhase("extract"),
	}
}

// job is one file to parse. Each job owns its output slot.
type job struct {
	project  int
	file     string
	manifest bool
	imports  []string
	declared []DependencyInfo
}

// Extract parses every source file and root manifest of projects.
// Unreadable or malformed files contribute nothing and are logged at debug
// level. Only context cancellation fails the pass.
func (e *Extractor) Extract(ctx context.Context, projects []detect.Project) (Result, error) {
	var jobs []*job
	for i, p := range projects {
		for _, f := range p.Files {
			switch {
			case IsManifest(f) && path.Dir(f) == p.Path:
				jobs = append(jobs, &job{project: i, file: f, manifest: true})
			case ScansImports(f):
				jobs = append(jobs, &job{project: i, file: f})
			}
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)
	for _, j := range jobs {
		j := j
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			e.run(j)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Result{}, errors.Wrap(err, "dependency extraction canceled")
	}

	return e.reduce(projects, jobs), nil
}

func (e *Extractor) run(j *job) {
	content, err := afero.ReadFile(e.fs, filepath.Join(e.root, filepath.FromSlash(j.file)))
	if err != nil {
		e.logger.Debug("skipping unreadable file",
			"error", errors.NewScanError("read file", err).WithPath(j.file).Error())
		return
	}

	if !j.manifest {
		j.imports = ExtractImports(content)
		return
	}
	declared, err := ExtractManifest(j.file, content)
	if err != nil {
		e.logger.Debug("skipping malformed manifest", "path", j.file, "error", err.Error())
		return
	}
	j.declared = declared
}

// reduce merges per-file results in job order, which follows the sorted
// file order of each project.
func (e *Extractor) reduce(projects []detect.Project, jobs []*job) Result {
	imports := make([]map[string]struct{}, len(projects))
	manifests := make(map[string][]DependencyInfo)

	for _, j := range jobs {
		p := projects[j.project]
		if j.manifest {
			if len(j.declared) > 0 {
				manifests[p.Name] = append(manifests[p.Name], j.declared...)
			}
			continue
		}
		if imports[j.project] == nil {
			imports[j.project] = make(map[string]struct{})
		}
		for _, target := range j.imports {
			imports[j.project][target] = struct{}{}
		}
	}

	out := make([]detect.Project, len(projects))
	for i, p := range projects {
		p.Dependencies = make([]string, 0, len(imports[i]))
		for target := range imports[i] {
			p.Dependencies = append(p.Dependencies, target)
		}
		sort.Strings(p.Dependencies)
		out[i] = p
	}

	e.logger.Info("dependency extraction complete",
		"projects", len(projects),
		"files", len(jobs),
		"manifests", len(manifests),
	)
	return Result{Projects: out, Manifests: manifests}
}
