// Package scan lists the files of a working tree for analysis.
//
// Files are returned as sorted, slash-separated paths relative to the root.
// VCS metadata is always skipped. Configured directory names (dependency
// and build output by default) are skipped at any depth, .gitignore is
// honored, and exclude globs are removed. Unreadable directories
// are logged and skipped; they never fail a scan.
package scan

import (
	"context"
	"io/fs"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gobwas/glob"
	ignore "github.com/sabhiram/go-gitignore"
	"github.com/spf13/afero"

	"github.com/Iron-Ham/monosplit/internal/errors"
	"github.com/Iron-Ham/monosplit/internal/git"
	"github.com/Iron-Ham/monosplit/internal/logging"
)

var vcsDirs = map[string]struct{}{
	".git": {},
	".hg":  {},
	".svn": {},
}

// Options controls what a Scanner returns.
type Options struct {
	// Exclude removes paths matching any of these globs ('/' separated).
	Exclude []string
	// SkipDirs names directories skipped wherever they appear.
	SkipDirs []string
	// RespectGitignore skips files ignored by the root .gitignore.
	RespectGitignore bool
	// Git, when set, lists files with `git ls-files` instead of walking.
	Git git.Git
}

// Scanner lists files under a root directory of an afero filesystem.
type Scanner struct {
	fs      afero.Fs
	root    string
	opts    Options
	exclude []glob.Glob
	skip    map[string]struct{}
	logger  *logging.Logger
}

// New creates a Scanner. It fails only on invalid exclude patterns.
func New(fsys afero.Fs, root string, opts Options, logger *logging.Logger) (*Scanner, error) {
	if logger == nil {
		logger = logging.NopLogger()
	}
	s := &Scanner{
		fs:     fsys,
		root:   root,
		opts:   opts,
		skip:   make(map[string]struct{}, len(vcsDirs)+len(opts.SkipDirs)),
		logger: logger.WithPhase("scan"),
	}
	for name := range vcsDirs {
		s.skip[name] = struct{}{}
	}
	for _, name := range opts.SkipDirs {
		s.skip[name] = struct{}{}
	}
	for _, pattern := range opts.Exclude {
		g, err := glob.Compile(pattern, '/')
		if err != nil {
			return nil, errors.NewValidationError("invalid exclude pattern").
				WithField("analysis.exclude").
				WithValue(pattern).
				WithCause(err)
		}
		s.exclude = append(s.exclude, g)
	}
	return s, nil
}

// Root returns the scanned directory.
func (s *Scanner) Root() string {
	return s.root
}

// Fs returns the filesystem the scanner reads from.
func (s *Scanner) Fs() afero.Fs {
	return s.fs
}

// Files returns every included file, sorted.
func (s *Scanner) Files(ctx context.Context) ([]string, error) {
	var files []string
	if s.opts.Git != nil {
		files = s.gitLsFiles(ctx)
	}
	if files == nil {
		walked, err := s.walk(ctx)
		if err != nil {
			return nil, err
		}
		files = walked
	}

	out := files[:0]
	for _, f := range files {
		if !s.excluded(f) {
			out = append(out, f)
		}
	}
	sort.Strings(out)

	s.logger.Debug("scan complete", "root", s.root, "files", len(out))
	return out, nil
}

func (s *Scanner) excluded(rel string) bool {
	for _, g := range s.exclude {
		if g.Match(rel) {
			return true
		}
	}
	for _, seg := range strings.Split(path.Dir(rel), "/") {
		if _, skip := s.skip[seg]; skip {
			return true
		}
	}
	return false
}

func (s *Scanner) walk(ctx context.Context) ([]string, error) {
	var gi *ignore.GitIgnore
	if s.opts.RespectGitignore {
		gi = s.loadGitignore()
	}

	var files []string
	err := afero.Walk(s.fs, s.root, func(p string, info fs.FileInfo, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			s.logger.Debug("skipping unreadable path",
				"error", errors.NewScanError("walk", err).WithPath(p).Error())
			if info != nil && info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		rel, relErr := filepath.Rel(s.root, p)
		if relErr != nil || rel == "." {
			return nil
		}
		rel = filepath.ToSlash(rel)

		if info.IsDir() {
			if _, skip := s.skip[info.Name()]; skip {
				return filepath.SkipDir
			}
			if gi != nil && gi.MatchesPath(rel+"/") {
				return filepath.SkipDir
			}
			return nil
		}

		if !info.Mode().IsRegular() {
			return nil
		}
		if gi != nil && gi.MatchesPath(rel) {
			return nil
		}
		files = append(files, rel)
		return nil
	})
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, errors.NewScanError("walk working tree", err).WithPath(s.root)
	}
	return files, nil
}

func (s *Scanner) loadGitignore() *ignore.GitIgnore {
	data, err := afero.ReadFile(s.fs, filepath.Join(s.root, ".gitignore"))
	if err != nil {
		return nil
	}
	return ignore.CompileIgnoreLines(strings.Split(string(data), "\n")...)
}

// gitLsFiles returns nil when the root is not a git work tree, so the
// caller falls back to walking.
func (s *Scanner) gitLsFiles(ctx context.Context) []string {
	res, err := s.opts.Git.Run(ctx, s.root, false, "ls-files", "-z", "--cached", "--others", "--exclude-standard")
	if err != nil || !res.OK() {
		s.logger.Debug("git ls-files unavailable, walking instead", "root", s.root)
		return nil
	}

	files := make([]string, 0)
	for _, entry := range strings.Split(res.Stdout, "\x00") {
		if entry == "" {
			continue
		}
		// Tracked but deleted in the working tree
		if _, err := s.fs.Stat(filepath.Join(s.root, filepath.FromSlash(entry))); err != nil {
			continue
		}
		files = append(files, entry)
	}
	return files
}
