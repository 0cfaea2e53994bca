package split

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"

	"github.com/Iron-Ham/monosplit/internal/errors"
	"github.com/Iron-Ham/monosplit/internal/git"
	"github.com/Iron-Ham/monosplit/internal/logging"
)

const (
	packageManifest = "package.json"
	packagingCommit = "chore: prepare standalone package"
	committerName   = "monosplit"
	committerEmail  = "monosplit@localhost"
)

// extractor performs the git side of one unit: isolating its history in a
// working copy and publishing it. Every step goes through rec so dry runs
// record the same sequence a live run executes.
type extractor struct {
	rec           *git.Recorder
	fs            afero.Fs
	defaultBranch string
	packages      bool
	logger        *logging.Logger
}

// extract isolates u in workdir. The steps taken never depend on what a
// previous step found, so a dry run records the sequence a successful live
// run executes.
func (e *extractor) extract(ctx context.Context, u Unit, mirror, workdir, cloneURL string) error {
	if u.pathStrategy() {
		if err := e.extractPath(ctx, u, mirror, workdir); err != nil {
			return err
		}
	} else if err := e.extractBranch(ctx, u, mirror, workdir); err != nil {
		return err
	}

	if e.packages && u.Package {
		e.preparePackage(ctx, u, workdir, cloneURL)
	}
	return nil
}

// extractPath rewrites history so u.Path becomes the repository root.
func (e *extractor) extractPath(ctx context.Context, u Unit, mirror, workdir string) error {
	if _, err := e.rec.Run(ctx, "", true, "clone", mirror, workdir); err != nil {
		return err
	}

	res, err := e.rec.Run(ctx, workdir, false, "cat-file", "-e", "HEAD:"+u.Path)
	if err != nil {
		return err
	}
	if !res.OK() {
		return errors.NewExtractionError("path does not exist in source tree", errors.ErrPathMissing).
			WithUnit(u.Name).
			WithPath(u.Path)
	}

	prefix := strings.TrimSuffix(u.Path, "/") + "/"
	if _, err := e.rec.Run(ctx, workdir, true, "filter-repo", "--path", prefix, "--path-rename", prefix+":", "--force"); err != nil {
		return err
	}

	_, err = e.rec.Run(ctx, workdir, true, "branch", "-M", e.defaultBranch)
	return err
}

// extractBranch clones only u.Branch from the mirror and renames it to the
// default branch. The branch is resolved against the mirror first, which
// reads refs and changes nothing.
func (e *extractor) extractBranch(ctx context.Context, u Unit, mirror, workdir string) error {
	res, err := e.rec.Run(ctx, "", false, "ls-remote", "--exit-code", "--heads", mirror, "refs/heads/"+u.Branch)
	if err != nil {
		return err
	}
	if !res.OK() {
		return errors.NewExtractionError("branch does not exist in source repository", errors.ErrBranchNotFound).
			WithUnit(u.Name).
			WithBranch(u.Branch)
	}

	if _, err := e.rec.Run(ctx, "", true, "clone", "--single-branch", "--branch", u.Branch, mirror, workdir); err != nil {
		return err
	}
	_, err = e.rec.Run(ctx, workdir, true, "branch", "-M", e.defaultBranch)
	return err
}

// preparePackage rewrites the root package.json for standalone use and
// commits it. It is best effort: failures are logged and the unit carries
// on. The commit is allowed to find nothing to commit when the manifest was
// already standalone.
func (e *extractor) preparePackage(ctx context.Context, u Unit, workdir, cloneURL string) {
	e.rec.Note(workdir, "prepare %s for %s", packageManifest, u.RepoName)
	if err := e.writePackage(u, workdir, cloneURL); err != nil {
		e.logger.Warn("skipping package.json preparation", "error", err.Error())
		return
	}

	if _, err := e.rec.Run(ctx, workdir, true, "add", packageManifest); err != nil {
		e.logger.Warn("failed to stage package.json", "error", err.Error())
		return
	}
	res, err := e.rec.Run(ctx, workdir, false,
		"-c", "user.name="+committerName,
		"-c", "user.email="+committerEmail,
		"commit", "-m", packagingCommit,
	)
	if err != nil {
		e.logger.Warn("failed to commit package.json", "error", err.Error())
		return
	}
	switch {
	case res.OK():
	case strings.Contains(res.Stdout, "nothing to commit"):
		e.logger.Debug("package.json already standalone", "repo", u.RepoName)
	default:
		e.logger.Warn("failed to commit package.json", "exit_code", res.ExitCode, "stderr", res.Stderr)
	}
}

// writePackage rewrites the manifest in place. Dry runs write nothing.
func (e *extractor) writePackage(u Unit, workdir, cloneURL string) error {
	if e.rec.DryRun() {
		return nil
	}

	manifest := filepath.Join(workdir, packageManifest)
	data, err := afero.ReadFile(e.fs, manifest)
	if err != nil {
		return errors.NewScanError("cannot read package manifest", err).WithPath(manifest)
	}
	updated, changed, err := rewritePackageJSON(data, u.RepoName, cloneURL, u.Library)
	if err != nil {
		return errors.NewScanError("malformed package manifest", err).WithPath(manifest)
	}
	if !changed {
		return nil
	}
	return afero.WriteFile(e.fs, manifest, updated, 0o644)
}

// publish points origin at cloneURL and force-pushes the default branch.
func (e *extractor) publish(ctx context.Context, workdir, cloneURL string) error {
	// origin may already be gone.
	if _, err := e.rec.Run(ctx, workdir, false, "remote", "remove", "origin"); err != nil {
		return err
	}
	if _, err := e.rec.Run(ctx, workdir, true, "remote", "add", "origin", cloneURL); err != nil {
		return err
	}
	_, err := e.rec.Run(ctx, workdir, true, "push", "--force", "-u", "origin", e.defaultBranch)
	return err
}
