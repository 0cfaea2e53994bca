// Package testutil provides testing utilities for monosplit tests.
package testutil

import (
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"testing"
)

// RequireGit skips the test when the git binary is not available.
func RequireGit(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not available")
	}
}

// SetupTestRepo creates a temporary git repository with a single README
// commit on main. The repository is removed when the test completes.
func SetupTestRepo(t *testing.T) string {
	t.Helper()
	RequireGit(t)

	dir := t.TempDir()

	mustGit(t, dir, "init")
	mustGit(t, dir, "config", "user.email", "test@monosplit.dev")
	mustGit(t, dir, "config", "user.name", "Monosplit Test")
	mustGit(t, dir, "config", "commit.gpgsign", "false")

	WriteFiles(t, dir, map[string]string{"README.md": "# Test Monorepo\n"})
	mustGit(t, dir, "add", ".")
	mustGit(t, dir, "commit", "-m", "Initial commit")

	// Some systems default to master
	mustGit(t, dir, "branch", "-M", "main")

	return dir
}

// SetupMonorepo creates a test repository containing files, committed in
// sorted path order as a single commit.
func SetupMonorepo(t *testing.T, files map[string]string) string {
	t.Helper()

	dir := SetupTestRepo(t)
	WriteFiles(t, dir, files)
	mustGit(t, dir, "add", ".")
	mustGit(t, dir, "commit", "-m", "Add monorepo content")

	return dir
}

// SetupBareRemote creates an empty bare repository usable as a push target.
func SetupBareRemote(t *testing.T) string {
	t.Helper()
	RequireGit(t)

	dir := t.TempDir()
	mustGit(t, dir, "init", "--bare")
	return dir
}

// WriteFiles writes files (relative path to content) under root.
func WriteFiles(t *testing.T, root string, files map[string]string) {
	t.Helper()

	paths := make([]string, 0, len(files))
	for path := range files {
		paths = append(paths, path)
	}
	sort.Strings(paths)

	for _, path := range paths {
		full := filepath.Join(root, filepath.FromSlash(path))
		if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
			t.Fatalf("failed to create directory for %s: %v", path, err)
		}
		if err := os.WriteFile(full, []byte(files[path]), 0644); err != nil {
			t.Fatalf("failed to write file %s: %v", path, err)
		}
	}
}

// CommitFile creates or updates a file and commits it.
func CommitFile(t *testing.T, repoDir, path, content, message string) {
	t.Helper()

	WriteFiles(t, repoDir, map[string]string{path: content})
	mustGit(t, repoDir, "add", path)
	mustGit(t, repoDir, "commit", "-m", message)
}

// CreateBranch creates a new branch in the repository.
func CreateBranch(t *testing.T, repoDir, branch string) {
	t.Helper()
	mustGit(t, repoDir, "branch", branch)
}

// CheckoutBranch switches to a branch.
func CheckoutBranch(t *testing.T, repoDir, branch string) {
	t.Helper()
	mustGit(t, repoDir, "checkout", branch)
}

// GetCommitCount returns the number of commits reachable from ref.
func GetCommitCount(t *testing.T, repoDir, ref string) int {
	t.Helper()

	out := GitOutput(t, repoDir, "rev-list", "--count", ref)
	count, err := strconv.Atoi(out)
	if err != nil {
		t.Fatalf("failed to parse commit count %q: %v", out, err)
	}
	return count
}

// ListTree returns the sorted file paths tracked at ref.
func ListTree(t *testing.T, repoDir, ref string) []string {
	t.Helper()

	out := GitOutput(t, repoDir, "ls-tree", "-r", "--name-only", ref)
	if out == "" {
		return nil
	}
	files := strings.Split(out, "\n")
	sort.Strings(files)
	return files
}

// GitOutput runs git in dir and returns trimmed stdout, failing the test on error.
func GitOutput(t *testing.T, dir string, args ...string) string {
	t.Helper()

	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	out, err := cmd.Output()
	if err != nil {
		t.Fatalf("git %s failed: %v", strings.Join(args, " "), err)
	}
	return strings.TrimSpace(string(out))
}

// HasFilterRepo reports whether the git-filter-repo extension is installed.
func HasFilterRepo() bool {
	cmd := exec.Command("git", "filter-repo", "--version")
	return cmd.Run() == nil
}

func mustGit(t *testing.T, dir string, args ...string) {
	t.Helper()

	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	if out, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("git %s failed: %v\n%s", strings.Join(args, " "), err, out)
	}
}
