// Package analysis runs the monorepo structure analysis: scan the working
// tree, detect projects and shared components, extract dependencies and
// classify conflicts.
package analysis

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/afero"

	"github.com/Iron-Ham/monosplit/internal/config"
	"github.com/Iron-Ham/monosplit/internal/conflict"
	"github.com/Iron-Ham/monosplit/internal/deps"
	"github.com/Iron-Ham/monosplit/internal/detect"
	"github.com/Iron-Ham/monosplit/internal/errors"
	"github.com/Iron-Ham/monosplit/internal/git"
	"github.com/Iron-Ham/monosplit/internal/logging"
	"github.com/Iron-Ham/monosplit/internal/scan"
)

// Result is the output of one analysis run. It is not modified after Run
// returns.
type Result struct {
	RunID      string
	Timestamp  time.Time
	Root       string
	FileCount  int
	// Files is the scanned file list, sorted and '/'-separated.
	Files []string
	Projects   []detect.Project
	Components []detect.CommonComponent
	Conflicts  []conflict.DependencyConflict
	// Manifests maps a project name to its declared dependencies.
	Manifests map[string][]deps.DependencyInfo
	Workspace *detect.Workspace
}

// CriticalConflicts returns the number of critical conflicts.
func (r *Result) CriticalConflicts() int {
	return conflict.Critical(r.Conflicts)
}

// Project returns the project named name.
func (r *Result) Project(name string) (detect.Project, bool) {
	for _, p := range r.Projects {
		if p.Name == name {
			return p, true
		}
	}
	return detect.Project{}, false
}

// Options configures an Analyzer.
type Options struct {
	Scan    scan.Options
	Detect  detect.Options
	Workers int
}

// OptionsFromConfig maps the analysis configuration section. g is used for
// `git ls-files` listing and may be nil.
func OptionsFromConfig(cfg config.AnalysisConfig, g git.Git) Options {
	return Options{
		Scan: scan.Options{
			Exclude:          cfg.Exclude,
			SkipDirs:         cfg.SkipDirs,
			RespectGitignore: cfg.RespectGitignore,
			Git:              g,
		},
		Detect:  detect.Options{SubstantialSourceFiles: cfg.SubstantialSourceFiles},
		Workers: cfg.Workers,
	}
}

// Analyzer runs the analysis pipeline over one directory tree.
type Analyzer struct {
	fs     afero.Fs
	root   string
	opts   Options
	logger *logging.Logger
	now    func() time.Time
	newID  func() string
}

// New creates an Analyzer for root on fsys.
func New(fsys afero.Fs, root string, opts Options, logger *logging.Logger) *Analyzer {
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &Analyzer{
		fs:     fsys,
		root:   root,
		opts:   opts,
		logger: logger,
		now:    time.Now,
		newID:  uuid.NewString,
	}
}

// Run executes the pipeline. Unreadable files never fail a run; only an
// invalid configuration or cancellation does.
func (a *Analyzer) Run(ctx context.Context) (*Result, error) {
	runID := a.newID()
	logger := a.logger.WithRun(runID).WithPhase("analyze")
	started := a.now()

	scanner, err := scan.New(a.fs, a.root, a.opts.Scan, logger)
	if err != nil {
		return nil, err
	}
	files, err := scanner.Files(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		// The tree root itself is unreadable; analyze what we have.
		logger.Warn("scan failed, continuing with an empty tree", "error", err.Error())
		files = nil
	}
	logger.Info("scanned working tree", "root", a.root, "files", len(files))

	projects, components := detect.Detect(files, a.opts.Detect)
	for _, p := range projects {
		logger.Info("detected project", "project", p.Name, "path", p.Path, "kind", p.Kind)
	}
	for _, c := range components {
		logger.Info("detected common component", "component", c.Name, "path", c.Path)
	}

	extracted, err := deps.NewExtractor(a.fs, a.root, a.opts.Workers, logger).Extract(ctx, projects)
	if err != nil {
		return nil, err
	}

	out, err := conflict.Detect(ctx, conflict.Input{
		Projects:   extracted.Projects,
		Components: components,
		Manifests:  extracted.Manifests,
	})
	if err != nil {
		return nil, err
	}

	for i := range components {
		components[i].UsedBy = out.Usage[components[i].Name]
	}

	result := &Result{
		RunID:      runID,
		Timestamp:  started,
		Root:       a.root,
		FileCount:  len(files),
		Files:      files,
		Projects:   extracted.Projects,
		Components: components,
		Conflicts:  out.Conflicts,
		Manifests:  extracted.Manifests,
		Workspace:  detect.DetectWorkspace(a.fs, a.root),
	}

	counts := conflict.CountBySeverity(result.Conflicts)
	logger.Info("analysis complete",
		"projects", len(result.Projects),
		"components", len(result.Components),
		"conflicts", len(result.Conflicts),
		"critical", counts[conflict.SeverityCritical],
		"duration_ms", a.now().Sub(started).Milliseconds(),
	)
	return result, nil
}
