// Package git runs git subprocesses with per-call timeouts and captured
// output. Callers depend on the Git interface so tests and dry runs can
// substitute a Recorder or a fake executor for the real binary.
package git

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/Iron-Ham/monosplit/internal/errors"
	"github.com/Iron-Ham/monosplit/internal/logging"
)

// Result is the outcome of a single git invocation.
type Result struct {
	ExitCode int
	Stdout   string
	Stderr   string
	Duration time.Duration
}

// OK reports whether the command exited with status 0.
func (r Result) OK() bool {
	return r.ExitCode == 0
}

// Git is the operation every extraction step is written against.
//
// When mustSucceed is true a non-zero exit is returned as a *errors.GitError
// carrying the captured stderr. When false the Result is returned with a nil
// error so callers can branch on ExitCode (e.g. ls-remote lookups).
// A timeout is always an error.
type Git interface {
	Run(ctx context.Context, dir string, mustSucceed bool, args ...string) (Result, error)
}

// -----------------------------------------------------------------------------
// Command Executor
// -----------------------------------------------------------------------------

// CommandExecutor abstracts process execution for testability.
// err is non-nil only when the process could not be started or was killed;
// a non-zero exit is reported through Result.ExitCode.
type CommandExecutor interface {
	Run(ctx context.Context, dir string, name string, args ...string) (Result, error)
}

// CLICommandExecutor executes commands using os/exec.
type CLICommandExecutor struct{}

// NewCLICommandExecutor creates a new CLI command executor.
func NewCLICommandExecutor() *CLICommandExecutor {
	return &CLICommandExecutor{}
}

// Run executes a command, capturing stdout and stderr separately.
func (e *CLICommandExecutor) Run(ctx context.Context, dir string, name string, args ...string) (Result, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	// Never block on a credential prompt.
	cmd.Env = append(os.Environ(), "GIT_TERMINAL_PROMPT=0")
	cmd.WaitDelay = 5 * time.Second

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	res := Result{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(start),
	}

	var exitErr *exec.ExitError
	switch {
	case err == nil:
		return res, nil
	case ctx.Err() != nil:
		res.ExitCode = -1
		return res, ctx.Err()
	case errors.As(err, &exitErr):
		res.ExitCode = exitErr.ExitCode()
		return res, nil
	default:
		res.ExitCode = -1
		return res, err
	}
}

// -----------------------------------------------------------------------------
// Runner
// -----------------------------------------------------------------------------

// Runner implements Git by invoking the git binary.
type Runner struct {
	binary   string
	timeout  time.Duration
	executor CommandExecutor
	logger   *logging.Logger
}

// NewRunner creates a Runner for binary (usually "git") that bounds every
// invocation by timeout.
func NewRunner(binary string, timeout time.Duration, logger *logging.Logger) *Runner {
	return NewRunnerWithExecutor(binary, timeout, NewCLICommandExecutor(), logger)
}

// NewRunnerWithExecutor creates a Runner with a custom executor.
// This is primarily useful for testing.
func NewRunnerWithExecutor(binary string, timeout time.Duration, executor CommandExecutor, logger *logging.Logger) *Runner {
	if binary == "" {
		binary = "git"
	}
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &Runner{
		binary:   binary,
		timeout:  timeout,
		executor: executor,
		logger:   logger,
	}
}

// Run executes git with args in dir.
func (r *Runner) Run(ctx context.Context, dir string, mustSucceed bool, args ...string) (Result, error) {
	callCtx := ctx
	if r.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	res, err := r.executor.Run(callCtx, dir, r.binary, args...)
	r.logger.Debug("git command",
		"args", strings.Join(args, " "),
		"dir", dir,
		"exit_code", res.ExitCode,
		"duration_ms", res.Duration.Milliseconds(),
	)

	if err != nil {
		switch {
		case ctx.Err() != nil:
			return res, errors.Wrapf(errors.ErrCanceled, "git %s", subcommand(args))
		case callCtx.Err() == context.DeadlineExceeded:
			return res, errors.NewTimeoutError("git "+subcommand(args), r.timeout).
				WithCause(callCtx.Err()).
				WithRetryable(false)
		default:
			return res, errors.NewGitError("failed to run git", err).
				WithArgs(args).
				WithDir(dir)
		}
	}

	if mustSucceed && res.ExitCode != 0 {
		return res, errors.NewGitError("git exited with non-zero status", errors.ErrGitCommandFailed).
			WithArgs(args).
			WithDir(dir).
			WithExitCode(res.ExitCode).
			WithGitOutput(strings.TrimSpace(res.Stderr))
	}

	return res, nil
}

// CheckFilterRepo verifies that the git-filter-repo extension is installed.
func (r *Runner) CheckFilterRepo(ctx context.Context) error {
	if _, err := r.Run(ctx, "", true, "filter-repo", "--version"); err != nil {
		return errors.Wrap(err, "git filter-repo is required (https://github.com/newren/git-filter-repo)")
	}
	return nil
}

func subcommand(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return args[0]
}
