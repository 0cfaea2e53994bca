// Package split turns analysis results into standalone repositories.
//
// Each Unit moves through pending → repo_created → extracted → published →
// done, or to failed from any step. A failed unit never stops its siblings;
// the Orchestrator always processes the whole list and returns a Report.
package split

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/afero"
	"golang.org/x/sync/semaphore"

	"github.com/Iron-Ham/monosplit/internal/config"
	"github.com/Iron-Ham/monosplit/internal/conflict"
	"github.com/Iron-Ham/monosplit/internal/errors"
	"github.com/Iron-Ham/monosplit/internal/git"
	"github.com/Iron-Ham/monosplit/internal/logging"
	"github.com/Iron-Ham/monosplit/internal/provider"
	"github.com/Iron-Ham/monosplit/internal/retry"
)

// MirrorDir is the name of the shared mirror clone inside the scratch directory.
const MirrorDir = "source.git"

// Options controls a split run.
type Options struct {
	RunID           string
	SourceURL       string
	ScratchDir      string
	KeepScratch     bool
	DefaultBranch   string
	Private         bool
	AllowCritical   bool
	ForceUpdate     bool
	PreparePackages bool
	Concurrency     int
}

// OptionsFromConfig maps the split section of cfg onto Options.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		SourceURL:       cfg.Source.RepoURL,
		ScratchDir:      cfg.Split.ScratchDir,
		KeepScratch:     cfg.Split.KeepScratch,
		DefaultBranch:   cfg.Split.DefaultBranch,
		Private:         cfg.Split.Private,
		AllowCritical:   cfg.Split.AllowCritical,
		ForceUpdate:     cfg.Split.ForceUpdate,
		PreparePackages: cfg.Split.PreparePackages,
		Concurrency:     cfg.Split.Concurrency,
	}
}

// Orchestrator runs units against one provider. It owns every piece of
// cross-unit state for the duration of a run.
type Orchestrator struct {
	provider provider.Provider
	git      git.Git
	executor *retry.Executor
	fs       afero.Fs
	opts     Options
	logger   *logging.Logger
	now      func() time.Time
}

// New creates an Orchestrator. A nil g makes the run a dry run: git calls
// are recorded but not executed, and nothing is written to fsys. The
// provider should then be a *provider.DryRun.
func New(p provider.Provider, g git.Git, executor *retry.Executor, fsys afero.Fs, opts Options, logger *logging.Logger) *Orchestrator {
	if logger == nil {
		logger = logging.NopLogger()
	}
	if executor == nil {
		executor = retry.NewExecutor(retry.Policy{MaxAttempts: 1}, nil, nil, nil, logger)
	}
	if opts.RunID == "" {
		opts.RunID = uuid.NewString()
	}
	if opts.DefaultBranch == "" {
		opts.DefaultBranch = "main"
	}
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	return &Orchestrator{
		provider: p,
		git:      g,
		executor: executor,
		fs:       fsys,
		opts:     opts,
		logger:   logger.WithRun(opts.RunID).WithPhase("split").WithProvider(p.Name()),
		now:      time.Now,
	}
}

// DryRun reports whether the run only records operations.
func (o *Orchestrator) DryRun() bool {
	return o.git == nil
}

// Run splits units. It refuses to start when conflicts contain critical
// entries unless AllowCritical is set, returning a *errors.ConflictBlockedError.
// Unit failures are reported in the Report, not as an error.
func (o *Orchestrator) Run(ctx context.Context, units []Unit, conflicts []conflict.DependencyConflict) (*Report, error) {
	if err := CheckConflicts(conflicts, o.opts.AllowCritical); err != nil {
		o.logger.Error("critical conflicts block the split", "error", err.Error())
		return nil, err
	}
	if n := conflict.Critical(conflicts); n > 0 {
		o.logger.Warn("proceeding despite critical conflicts", "critical", n)
	}
	if err := ValidateUnits(units); err != nil {
		return nil, err
	}

	report := &Report{
		RunID:     o.opts.RunID,
		Provider:  o.provider.Name(),
		DryRun:    o.DryRun(),
		StartedAt: o.now(),
	}

	scratch, cleanup, err := o.prepareScratch()
	if err != nil {
		return nil, err
	}
	defer cleanup()

	o.logger.Info("starting split", "units", len(units), "dry_run", o.DryRun(), "scratch", scratch)

	setup := git.NewRecorder(o.git)
	mirror := filepath.Join(scratch, MirrorDir)
	_, mirrorErr := setup.Run(ctx, "", true, "clone", "--mirror", o.opts.SourceURL, mirror)
	if mirrorErr != nil {
		o.logger.Error("failed to mirror source repository", "error", mirrorErr.Error())
	}
	report.Setup = operationStrings(setup)

	results := make([]UnitResult, len(units))
	sem := semaphore.NewWeighted(int64(o.opts.Concurrency))
	var wg sync.WaitGroup
	for i, u := range units {
		if err := sem.Acquire(ctx, 1); err != nil {
			for j := i; j < len(units); j++ {
				results[j] = o.abandoned(units[j], err)
			}
			break
		}
		i, u := i, u
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer sem.Release(1)
			results[i] = o.runUnit(ctx, u, scratch, mirror, mirrorErr)
		}()
	}
	wg.Wait()

	report.finish(results, o.now())
	report.FailedCalls = o.executor.Manager().GetFailedCalls()
	o.logger.Info("split finished",
		"succeeded", report.Succeeded,
		"failed", report.Failed,
		"duration_ms", report.FinishedAt.Sub(report.StartedAt).Milliseconds(),
	)
	return report, nil
}

// prepareScratch returns the scratch directory and its cleanup. Dry runs
// only compute a path.
func (o *Orchestrator) prepareScratch() (string, func(), error) {
	noop := func() {}
	if o.DryRun() {
		dir := o.opts.ScratchDir
		if dir == "" {
			dir = filepath.Join(os.TempDir(), "monosplit-"+o.opts.RunID)
		}
		return dir, noop, nil
	}

	var dir string
	var err error
	if o.opts.ScratchDir != "" {
		dir = o.opts.ScratchDir
		err = o.fs.MkdirAll(dir, 0o755)
	} else {
		dir, err = afero.TempDir(o.fs, "", "monosplit-")
	}
	if err != nil {
		return "", noop, errors.Wrap(err, "failed to create scratch directory")
	}

	if o.opts.KeepScratch {
		return dir, noop, nil
	}
	return dir, func() {
		if err := o.fs.RemoveAll(dir); err != nil {
			o.logger.Warn("failed to remove scratch directory", "dir", dir, "error", err.Error())
		}
	}, nil
}

// runUnit drives one unit through the state machine.
func (o *Orchestrator) runUnit(ctx context.Context, u Unit, scratch, mirror string, mirrorErr error) UnitResult {
	start := o.now()
	logger := o.logger.WithUnit(u.Name)
	rec := git.NewRecorder(o.git)
	t := newTracker(o.now)
	res := UnitResult{Unit: u}

	finish := func() UnitResult {
		res.State = t.state
		res.History = t.history
		res.Operations = operationStrings(rec)
		res.Duration = o.now().Sub(start)
		return res
	}
	fail := func(err error) UnitResult {
		res.Error = err.Error()
		from := t.state
		if terr := t.transition(StateFailed, err.Error()); terr != nil {
			logger.Error("invalid state transition", "error", terr.Error())
		}
		attrs := []any{"state", from.String(), "error", err.Error()}
		var gitErr *errors.GitError
		if errors.As(err, &gitErr) && gitErr.GitOutput != "" {
			attrs = append(attrs, "stderr", gitErr.GitOutput)
		}
		logger.Error("unit failed", attrs...)
		return finish()
	}
	advance := func(to State, reason string) error {
		if err := t.transition(to, reason); err != nil {
			return err
		}
		logger.Debug("unit state changed", "state", to.String())
		return nil
	}

	if mirrorErr != nil {
		return fail(errors.Wrap(mirrorErr, "source mirror unavailable"))
	}

	logger.Info("processing unit", "kind", string(u.Kind), "repo", u.RepoName)

	created, err := o.createRepository(ctx, u)
	if state := o.executor.Manager().GetState(createKey(u)); state != nil {
		res.Attempts = state.Attempts
		res.RateLimitWaits = state.RateLimitWaits
	}
	if err != nil {
		return fail(err)
	}
	res.Outcome = created.Outcome.String()
	res.CloneURL = created.CloneURL
	if err := advance(StateRepoCreated, res.Outcome); err != nil {
		return fail(err)
	}

	ex := &extractor{
		rec:           rec,
		fs:            o.fs,
		defaultBranch: o.opts.DefaultBranch,
		packages:      o.opts.PreparePackages,
		logger:        logger,
	}
	workdir := filepath.Join(scratch, string(u.Kind)+"_"+u.RepoName)

	if err := ex.extract(ctx, u, mirror, workdir, created.CloneURL); err != nil {
		return fail(err)
	}
	if err := advance(StateExtracted, ""); err != nil {
		return fail(err)
	}

	if err := ex.publish(ctx, workdir, created.CloneURL); err != nil {
		return fail(err)
	}
	if err := advance(StatePublished, ""); err != nil {
		return fail(err)
	}
	if err := advance(StateDone, ""); err != nil {
		return fail(err)
	}

	logger.Info("unit done", "repo", u.RepoName, "clone_url", created.CloneURL)
	return finish()
}

// createRepository creates the unit's repository through the retry executor.
// With ForceUpdate the repository is assumed to exist at its templated URL.
func (o *Orchestrator) createRepository(ctx context.Context, u Unit) (provider.CreateResult, error) {
	if o.opts.ForceUpdate {
		return provider.CreateResult{
			Outcome:  provider.AlreadyExists,
			CloneURL: o.provider.CloneURL(u.RepoName),
		}, nil
	}

	var res provider.CreateResult
	err := o.executor.Do(ctx, createKey(u), o.provider.RateLimit, func(ctx context.Context) error {
		var err error
		res, err = o.provider.CreateRepository(ctx, u.RepoName, u.Description, o.opts.Private)
		return err
	})
	if err != nil {
		return provider.CreateResult{Outcome: provider.Failed, Reason: err.Error()}, err
	}
	if !res.OK() || res.CloneURL == "" {
		return res, errors.NewProviderError("provider returned no clone URL", errors.ProviderRejected, nil).
			WithProvider(o.provider.Name()).
			WithRepository(u.RepoName)
	}
	return res, nil
}

// CheckConflicts returns a *errors.ConflictBlockedError when conflicts
// contain critical entries and allowCritical is false.
func CheckConflicts(conflicts []conflict.DependencyConflict, allowCritical bool) error {
	if n := conflict.Critical(conflicts); n > 0 && !allowCritical {
		return errors.NewConflictBlockedError(n)
	}
	return nil
}

func createKey(u Unit) string {
	return "create:" + u.RepoName
}

// abandoned is the result for a unit that never started because ctx ended.
func (o *Orchestrator) abandoned(u Unit, err error) UnitResult {
	t := newTracker(o.now)
	_ = t.transition(StateFailed, err.Error())
	return UnitResult{
		Unit:    u,
		State:   t.state,
		Error:   err.Error(),
		History: t.history,
	}
}

func operationStrings(rec *git.Recorder) []string {
	ops := rec.Operations()
	out := make([]string, len(ops))
	for i, op := range ops {
		out[i] = op.String()
	}
	return out
}

// sortedCreated returns the repositories that exist after the run, by name.
func sortedCreated(results []UnitResult) []CreatedRepo {
	var created []CreatedRepo
	for _, r := range results {
		if r.CloneURL == "" {
			continue
		}
		created = append(created, CreatedRepo{
			Name:     r.Unit.RepoName,
			Unit:     r.Unit.Name,
			CloneURL: r.CloneURL,
			Outcome:  r.Outcome,
			State:    r.State,
		})
	}
	sort.Slice(created, func(i, j int) bool { return created[i].Name < created[j].Name })
	return created
}
