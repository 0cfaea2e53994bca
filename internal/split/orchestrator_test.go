package split

import (
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Iron-Ham/monosplit/internal/conflict"
	"github.com/Iron-Ham/monosplit/internal/errors"
	"github.com/Iron-Ham/monosplit/internal/git"
	"github.com/Iron-Ham/monosplit/internal/provider"
	"github.com/Iron-Ham/monosplit/internal/retry"
	"github.com/Iron-Ham/monosplit/internal/testutil"
)

const sourceURL = "https://git.example.com/acme/monorepo.git"

// fakeProvider returns scripted results per repository name. Without a
// script, CreateRepository reports Created at CloneURL(name).
type fakeProvider struct {
	mu      sync.Mutex
	base    string
	script  map[string][]func() (provider.CreateResult, error)
	calls   map[string]int
	created []string
}

func newFakeProvider(base string) *fakeProvider {
	return &fakeProvider{
		base:   base,
		script: make(map[string][]func() (provider.CreateResult, error)),
		calls:  make(map[string]int),
	}
}

func (f *fakeProvider) on(name string, steps ...func() (provider.CreateResult, error)) {
	f.script[name] = steps
}

func (f *fakeProvider) Name() string { return "fake" }

func (f *fakeProvider) CreateRepository(ctx context.Context, name, _ string, _ bool) (provider.CreateResult, error) {
	if err := ctx.Err(); err != nil {
		return provider.CreateResult{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	n := f.calls[name]
	f.calls[name]++
	if steps := f.script[name]; n < len(steps) {
		return steps[n]()
	}
	f.created = append(f.created, name)
	return provider.CreateResult{Outcome: provider.Created, CloneURL: f.CloneURL(name)}, nil
}

func (f *fakeProvider) CheckAccess(context.Context) error { return nil }

func (f *fakeProvider) RateLimit() retry.Quota { return retry.Quota{} }

func (f *fakeProvider) CloneURL(name string) string {
	if strings.HasPrefix(f.base, "/") {
		return f.base
	}
	return f.base + "/" + name + ".git"
}

func (f *fakeProvider) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	total := 0
	for _, n := range f.calls {
		total += n
	}
	return total
}

func providerErr(kind errors.ProviderErrorKind) func() (provider.CreateResult, error) {
	return func() (provider.CreateResult, error) {
		return provider.CreateResult{}, errors.NewProviderError("scripted", kind, nil).WithProvider("fake")
	}
}

// scriptedGit succeeds on every call unless the joined args have a scripted
// result. It mirrors Runner's mustSucceed contract.
type scriptedGit struct {
	mu      sync.Mutex
	results map[string]git.Result
	calls   []string
}

func newScriptedGit() *scriptedGit {
	return &scriptedGit{results: make(map[string]git.Result)}
}

func (s *scriptedGit) fail(args string, code int, stderr string) {
	s.results[args] = git.Result{ExitCode: code, Stderr: stderr}
}

func (s *scriptedGit) Run(ctx context.Context, dir string, mustSucceed bool, args ...string) (git.Result, error) {
	if err := ctx.Err(); err != nil {
		return git.Result{ExitCode: -1}, err
	}
	key := strings.Join(args, " ")

	s.mu.Lock()
	s.calls = append(s.calls, key)
	res := s.results[key]
	s.mu.Unlock()

	if mustSucceed && res.ExitCode != 0 {
		return res, errors.NewGitError("git exited with non-zero status", errors.ErrGitCommandFailed).
			WithArgs(args).
			WithDir(dir).
			WithExitCode(res.ExitCode).
			WithGitOutput(res.Stderr)
	}
	return res, nil
}

func webUnit() Unit {
	return Unit{Name: "web", Kind: KindProject, Path: "apps/web", RepoName: "web-app", Description: "Web", Package: true}
}

func apiUnit() Unit {
	return Unit{Name: "api", Kind: KindProject, Path: "services/api", RepoName: "api-app"}
}

func liveOptions() Options {
	return Options{
		RunID:         "run-1",
		SourceURL:     sourceURL,
		ScratchDir:    "/scratch",
		KeepScratch:   true,
		DefaultBranch: "main",
	}
}

func TestRun_DryRunRecordsOperations(t *testing.T) {
	fake := newFakeProvider("https://git.example.com/acme")
	fs := afero.NewMemMapFs()
	opts := liveOptions()
	opts.PreparePackages = true

	o := New(provider.NewDryRun(fake, nil), nil, nil, fs, opts, nil)
	require.True(t, o.DryRun())

	report, err := o.Run(context.Background(), []Unit{webUnit()}, nil)
	require.NoError(t, err)

	assert.True(t, report.DryRun)
	assert.True(t, report.OK())
	assert.Equal(t, 1, report.Succeeded)
	assert.Zero(t, fake.callCount(), "dry run must not create repositories")
	assert.Equal(t, []string{"git clone --mirror " + sourceURL + " /scratch/source.git"}, report.Setup)

	res, ok := report.Unit("web")
	require.True(t, ok)
	assert.Equal(t, StateDone, res.State)
	assert.Equal(t, "created", res.Outcome)
	assert.Equal(t, "https://git.example.com/acme/web-app.git", res.CloneURL)
	assert.Equal(t, []string{
		"git clone /scratch/source.git /scratch/project_web-app",
		"git cat-file -e HEAD:apps/web",
		"git filter-repo --path apps/web/ --path-rename apps/web/: --force",
		"git branch -M main",
		"prepare package.json for web-app",
		"git add package.json",
		"git -c user.name=monosplit -c user.email=monosplit@localhost commit -m chore: prepare standalone package",
		"git remote remove origin",
		"git remote add origin https://git.example.com/acme/web-app.git",
		"git push --force -u origin main",
	}, res.Operations)

	require.Len(t, res.History, 4)
	assert.Equal(t, StatePending, res.History[0].From)
	assert.Equal(t, StateDone, res.History[3].To)

	require.Len(t, report.Created, 1)
	assert.Equal(t, "web-app", report.Created[0].Name)

	exists, err := afero.DirExists(fs, "/scratch")
	require.NoError(t, err)
	assert.False(t, exists, "dry run must not touch the filesystem")
}

func TestRun_DryRunBranchUnit(t *testing.T) {
	o := New(provider.NewDryRun(newFakeProvider("https://h/acme"), nil), nil, nil, afero.NewMemMapFs(), liveOptions(), nil)

	report, err := o.Run(context.Background(), []Unit{{Name: "legacy", Kind: KindBranch, Branch: "legacy", RepoName: "legacy"}}, nil)
	require.NoError(t, err)

	res, _ := report.Unit("legacy")
	require.Equal(t, StateDone, res.State)
	assert.Equal(t, []string{
		"git ls-remote --exit-code --heads /scratch/source.git refs/heads/legacy",
		"git clone --single-branch --branch legacy /scratch/source.git /scratch/branch_legacy",
		"git branch -M main",
		"git remote remove origin",
		"git remote add origin https://h/acme/legacy.git",
		"git push --force -u origin main",
	}, res.Operations)
}

func TestRun_CriticalConflictsBlock(t *testing.T) {
	fake := newFakeProvider("https://h/acme")
	conflicts := []conflict.DependencyConflict{
		{Type: conflict.CircularDependency, Severity: conflict.SeverityCritical},
		{Severity: conflict.SeverityLow},
	}

	o := New(fake, nil, nil, afero.NewMemMapFs(), liveOptions(), nil)
	report, err := o.Run(context.Background(), []Unit{webUnit()}, conflicts)
	require.Error(t, err)
	assert.Nil(t, report)
	assert.ErrorIs(t, err, errors.ErrCriticalConflicts)

	var blocked *errors.ConflictBlockedError
	require.True(t, errors.As(err, &blocked))
	assert.Zero(t, fake.callCount())

	opts := liveOptions()
	opts.AllowCritical = true
	report, err = New(fake, nil, nil, afero.NewMemMapFs(), opts, nil).Run(context.Background(), []Unit{webUnit()}, conflicts)
	require.NoError(t, err)
	assert.True(t, report.OK())
}

func TestRun_InvalidUnits(t *testing.T) {
	o := New(newFakeProvider("https://h/acme"), nil, nil, afero.NewMemMapFs(), liveOptions(), nil)
	_, err := o.Run(context.Background(), []Unit{webUnit(), webUnit()}, nil)
	assert.ErrorIs(t, err, errors.ErrInvalidInput)
}

func TestRun_FailedUnitDoesNotStopSiblings(t *testing.T) {
	fake := newFakeProvider("https://h/acme")
	g := newScriptedGit()
	g.fail("cat-file -e HEAD:apps/web", 128, "fatal: path 'apps/web' does not exist")

	opts := liveOptions()
	opts.Concurrency = 2
	o := New(fake, g, nil, afero.NewMemMapFs(), opts, nil)
	require.False(t, o.DryRun())

	report, err := o.Run(context.Background(), []Unit{webUnit(), apiUnit()}, nil)
	require.NoError(t, err)

	assert.False(t, report.OK())
	assert.Equal(t, 1, report.Succeeded)
	assert.Equal(t, 1, report.Failed)

	web, _ := report.Unit("web")
	assert.Equal(t, StateFailed, web.State)
	assert.Contains(t, web.Error, "path does not exist")
	require.Len(t, web.History, 2)
	assert.Equal(t, StateRepoCreated, web.History[1].From)
	assert.NotContains(t, web.Operations, "git push --force -u origin main")

	api, _ := report.Unit("api")
	assert.Equal(t, StateDone, api.State)

	// the web repository was created before extraction failed
	require.Len(t, report.Created, 2)
	assert.Equal(t, "api-app", report.Created[0].Name)
	assert.Equal(t, StateFailed, report.Created[1].State)
}

func TestRun_PushFailureCarriesStderr(t *testing.T) {
	g := newScriptedGit()
	g.fail("push --force -u origin main", 1, "remote: permission denied")

	o := New(newFakeProvider("https://h/acme"), g, nil, afero.NewMemMapFs(), liveOptions(), nil)
	report, err := o.Run(context.Background(), []Unit{webUnit()}, nil)
	require.NoError(t, err)

	res, _ := report.Unit("web")
	assert.Equal(t, StateFailed, res.State)
	assert.Equal(t, StateExtracted, res.History[len(res.History)-1].From)
	assert.Contains(t, res.Error, "remote: permission denied")
}

func TestRun_AuthErrorIsNotRetried(t *testing.T) {
	fake := newFakeProvider("https://h/acme")
	fake.on("web-app", providerErr(errors.ProviderAuth), providerErr(errors.ProviderAuth))

	executor := retry.NewExecutor(retry.Policy{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}, nil, nil, nil, nil)
	o := New(fake, nil, executor, afero.NewMemMapFs(), liveOptions(), nil)

	report, err := o.Run(context.Background(), []Unit{webUnit()}, nil)
	require.NoError(t, err)

	res, _ := report.Unit("web")
	assert.Equal(t, StateFailed, res.State)
	assert.Empty(t, res.Operations, "no git work after a failed create")
	assert.Equal(t, 1, fake.calls["web-app"])
	assert.Equal(t, 1, res.Attempts)
	assert.Equal(t, []string{"create:web-app"}, report.FailedCalls)
}

func TestRun_TransientErrorIsRetried(t *testing.T) {
	fake := newFakeProvider("https://h/acme")
	fake.on("web-app", providerErr(errors.ProviderTransient), providerErr(errors.ProviderTransient))

	executor := retry.NewExecutor(retry.Policy{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}, nil, nil, nil, nil)
	o := New(fake, nil, executor, afero.NewMemMapFs(), liveOptions(), nil)

	report, err := o.Run(context.Background(), []Unit{webUnit()}, nil)
	require.NoError(t, err)

	res, _ := report.Unit("web")
	assert.Equal(t, StateDone, res.State)
	assert.Equal(t, 3, fake.calls["web-app"])
	assert.Equal(t, 3, res.Attempts)
	assert.Zero(t, res.RateLimitWaits)
	assert.Empty(t, report.FailedCalls)
}

func TestRun_AlreadyExistsReusesURL(t *testing.T) {
	fake := newFakeProvider("https://h/acme")
	fake.on("web-app", func() (provider.CreateResult, error) {
		return provider.CreateResult{Outcome: provider.AlreadyExists, CloneURL: "https://h/acme/existing.git"}, nil
	})

	report, err := New(fake, nil, nil, afero.NewMemMapFs(), liveOptions(), nil).Run(context.Background(), []Unit{webUnit()}, nil)
	require.NoError(t, err)

	res, _ := report.Unit("web")
	assert.Equal(t, StateDone, res.State)
	assert.Equal(t, "already_exists", res.Outcome)
	assert.Contains(t, res.Operations, "git remote add origin https://h/acme/existing.git")
	assert.Equal(t, "already_exists", res.History[0].Reason)
}

func TestRun_MissingCloneURLFailsUnit(t *testing.T) {
	fake := newFakeProvider("https://h/acme")
	fake.on("web-app", func() (provider.CreateResult, error) {
		return provider.CreateResult{Outcome: provider.Created}, nil
	})

	report, err := New(fake, nil, nil, afero.NewMemMapFs(), liveOptions(), nil).Run(context.Background(), []Unit{webUnit()}, nil)
	require.NoError(t, err)

	res, _ := report.Unit("web")
	assert.Equal(t, StateFailed, res.State)
	assert.Empty(t, report.Created)
}

func TestRun_ForceUpdateSkipsCreation(t *testing.T) {
	fake := newFakeProvider("https://h/acme")
	opts := liveOptions()
	opts.ForceUpdate = true

	report, err := New(fake, nil, nil, afero.NewMemMapFs(), opts, nil).Run(context.Background(), []Unit{webUnit()}, nil)
	require.NoError(t, err)

	res, _ := report.Unit("web")
	assert.Equal(t, StateDone, res.State)
	assert.Equal(t, "already_exists", res.Outcome)
	assert.Equal(t, "https://h/acme/web-app.git", res.CloneURL)
	assert.Zero(t, fake.callCount())
}

func TestRun_BranchNotFound(t *testing.T) {
	g := newScriptedGit()
	g.fail("ls-remote --exit-code --heads /scratch/source.git refs/heads/gone", 2, "")

	unit := Unit{Name: "gone", Kind: KindBranch, Branch: "gone", RepoName: "gone"}
	report, err := New(newFakeProvider("https://h/acme"), g, nil, afero.NewMemMapFs(), liveOptions(), nil).
		Run(context.Background(), []Unit{unit}, nil)
	require.NoError(t, err)

	res, _ := report.Unit("gone")
	assert.Equal(t, StateFailed, res.State)
	assert.Contains(t, res.Error, "branch does not exist")
	for _, call := range g.calls {
		assert.False(t, strings.HasPrefix(call, "clone --single-branch"), "cloned a missing branch: %s", call)
	}
}

func TestRun_BranchUnitClonesOnlyThatBranch(t *testing.T) {
	g := newScriptedGit()
	unit := Unit{Name: "release", Kind: KindBranch, Branch: "release", RepoName: "release"}

	report, err := New(newFakeProvider("https://h/acme"), g, nil, afero.NewMemMapFs(), liveOptions(), nil).
		Run(context.Background(), []Unit{unit}, nil)
	require.NoError(t, err)

	res, _ := report.Unit("release")
	require.Equal(t, StateDone, res.State)
	assert.Contains(t, g.calls, "clone --single-branch --branch release /scratch/source.git /scratch/branch_release")
	assert.Contains(t, g.calls, "branch -M main")
}

func TestRun_PackagingSkippedForUnitsWithoutManifest(t *testing.T) {
	opts := liveOptions()
	opts.PreparePackages = true
	unit := apiUnit()

	report, err := New(provider.NewDryRun(newFakeProvider("https://h/acme"), nil), nil, nil, afero.NewMemMapFs(), opts, nil).
		Run(context.Background(), []Unit{unit}, nil)
	require.NoError(t, err)

	res, _ := report.Unit("api")
	require.Equal(t, StateDone, res.State)
	assert.NotContains(t, res.Operations, "git add package.json")
}

func TestRun_PackagingToleratesNothingToCommit(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/scratch/project_web-app/package.json",
		[]byte(`{"name":"web-app","private":false}`), 0o644))

	g := newScriptedGit()
	g.results["-c user.name=monosplit -c user.email=monosplit@localhost commit -m chore: prepare standalone package"] = git.Result{
		ExitCode: 1,
		Stdout:   "On branch main\nnothing to commit, working tree clean\n",
	}
	opts := liveOptions()
	opts.PreparePackages = true

	report, err := New(newFakeProvider("https://h/acme"), g, nil, fs, opts, nil).Run(context.Background(), []Unit{webUnit()}, nil)
	require.NoError(t, err)

	res, _ := report.Unit("web")
	assert.Equal(t, StateDone, res.State)
	assert.Contains(t, g.calls, "push --force -u origin main")
}

func TestRun_MirrorFailureFailsEveryUnit(t *testing.T) {
	fake := newFakeProvider("https://h/acme")
	g := newScriptedGit()
	g.fail("clone --mirror "+sourceURL+" /scratch/source.git", 128, "fatal: repository not found")

	report, err := New(fake, g, nil, afero.NewMemMapFs(), liveOptions(), nil).
		Run(context.Background(), []Unit{webUnit(), apiUnit()}, nil)
	require.NoError(t, err)

	assert.Equal(t, 2, report.Failed)
	assert.Zero(t, fake.callCount())
	for _, u := range report.Units {
		assert.Contains(t, u.Error, "source mirror unavailable")
	}
}

func TestRun_CanceledContext(t *testing.T) {
	fake := newFakeProvider("https://h/acme")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := New(provider.NewDryRun(fake, nil), nil, nil, afero.NewMemMapFs(), liveOptions(), nil).
		Run(ctx, []Unit{webUnit(), apiUnit()}, nil)
	require.NoError(t, err)

	assert.Equal(t, 2, report.Failed)
	assert.Equal(t, 0, report.Succeeded)
	for _, u := range report.Units {
		assert.Equal(t, StateFailed, u.State)
	}
}

func TestRun_RewritesPackageManifest(t *testing.T) {
	fs := afero.NewMemMapFs()
	manifest := "/scratch/project_web-app/package.json"
	require.NoError(t, afero.WriteFile(fs, manifest, []byte(`{"name":"web","workspaces":["packages/*"]}`), 0o644))

	g := newScriptedGit()
	opts := liveOptions()
	opts.PreparePackages = true

	report, err := New(newFakeProvider("https://h/acme"), g, nil, fs, opts, nil).Run(context.Background(), []Unit{webUnit()}, nil)
	require.NoError(t, err)

	res, _ := report.Unit("web")
	require.Equal(t, StateDone, res.State)
	assert.Contains(t, res.Operations, "prepare package.json for web-app")
	assert.Contains(t, g.calls, "add package.json")

	data, err := afero.ReadFile(fs, manifest)
	require.NoError(t, err)
	var pkg map[string]any
	require.NoError(t, json.Unmarshal(data, &pkg))
	assert.NotContains(t, pkg, "workspaces")
	assert.Equal(t, "https://h/acme/web-app", pkg["homepage"])
}

func TestRun_ScratchCleanup(t *testing.T) {
	fs := afero.NewMemMapFs()
	opts := liveOptions()
	opts.KeepScratch = false

	_, err := New(newFakeProvider("https://h/acme"), newScriptedGit(), nil, fs, opts, nil).
		Run(context.Background(), []Unit{webUnit()}, nil)
	require.NoError(t, err)

	exists, err := afero.DirExists(fs, "/scratch")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestRun_BranchSplitWithGit(t *testing.T) {
	source := testutil.SetupTestRepo(t)
	testutil.CreateBranch(t, source, "release")
	testutil.CheckoutBranch(t, source, "release")
	testutil.CommitFile(t, source, "RELEASE.md", "v1\n", "Release notes")
	testutil.CheckoutBranch(t, source, "main")

	remote := testutil.SetupBareRemote(t)
	runner := git.NewRunner("git", time.Minute, nil)

	opts := Options{
		SourceURL:     source,
		ScratchDir:    filepath.Join(t.TempDir(), "scratch"),
		DefaultBranch: "main",
	}
	unit := Unit{Name: "release", Kind: KindBranch, Branch: "release", RepoName: "release"}

	report, err := New(newFakeProvider(remote), runner, nil, afero.NewOsFs(), opts, nil).
		Run(context.Background(), []Unit{unit}, nil)
	require.NoError(t, err)

	res, _ := report.Unit("release")
	require.Equal(t, StateDone, res.State, "error: %s", res.Error)
	assert.Equal(t, []string{"README.md", "RELEASE.md"}, testutil.ListTree(t, remote, "main"))
	assert.Equal(t, 2, testutil.GetCommitCount(t, remote, "main"))
}

func TestRun_PathSplitWithGit(t *testing.T) {
	if !testutil.HasFilterRepo() {
		t.Skip("git filter-repo not installed")
	}
	source := testutil.SetupMonorepo(t, map[string]string{
		"apps/web/package.json": `{"name":"web","workspaces":["x"]}`,
		"apps/web/src/index.js": "console.log('web')\n",
		"services/api/main.go":  "package main\n",
	})
	remote := testutil.SetupBareRemote(t)

	opts := Options{
		SourceURL:       source,
		ScratchDir:      filepath.Join(t.TempDir(), "scratch"),
		DefaultBranch:   "main",
		PreparePackages: true,
	}
	report, err := New(newFakeProvider(remote), git.NewRunner("git", time.Minute, nil), nil, afero.NewOsFs(), opts, nil).
		Run(context.Background(), []Unit{webUnit()}, nil)
	require.NoError(t, err)

	res, _ := report.Unit("web")
	require.Equal(t, StateDone, res.State, "error: %s", res.Error)
	assert.Equal(t, []string{"package.json", "src/index.js"}, testutil.ListTree(t, remote, "main"))
	assert.Contains(t, testutil.GitOutput(t, remote, "log", "-1", "--format=%s", "main"), packagingCommit)
}

func TestRun_DryRunMatchesLiveRun(t *testing.T) {
	source := testutil.SetupMonorepo(t, map[string]string{
		"apps/web/package.json": `{"name":"web","workspaces":["x"]}`,
		"apps/web/src/index.js": "console.log('web')\n",
	})
	testutil.CreateBranch(t, source, "release")

	units := []Unit{{Name: "release", Kind: KindBranch, Branch: "release", RepoName: "release"}}
	if testutil.HasFilterRepo() {
		units = append(units, webUnit())
	}

	remote := testutil.SetupBareRemote(t)
	opts := Options{
		SourceURL:       source,
		ScratchDir:      filepath.Join(t.TempDir(), "scratch"),
		DefaultBranch:   "main",
		PreparePackages: true,
		Concurrency:     1,
	}

	live, err := New(newFakeProvider(remote), git.NewRunner("git", time.Minute, nil), nil, afero.NewOsFs(), opts, nil).
		Run(context.Background(), units, nil)
	require.NoError(t, err)
	dry, err := New(provider.NewDryRun(newFakeProvider(remote), nil), nil, nil, afero.NewOsFs(), opts, nil).
		Run(context.Background(), units, nil)
	require.NoError(t, err)

	assert.Equal(t, live.Setup, dry.Setup)
	for _, u := range units {
		l, _ := live.Unit(u.Name)
		d, _ := dry.Unit(u.Name)
		require.Equal(t, StateDone, l.State, "error: %s", l.Error)
		assert.Equal(t, l.Operations, d.Operations, "unit %s", u.Name)
	}
}
