// Package gitx locates the repository root that every buildprep path is
// anchored to.
//
// Discovery walks up from the working directory looking for a .git marker and
// falls back to asking git itself, which covers layouts the walk cannot see
// (for example GIT_DIR overrides).
package gitx

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// ErrNotInRepo indicates no repository root could be located.
var ErrNotInRepo = errors.New("not in a git repository")

// GitRepo provides an abstraction for repository discovery.
type GitRepo interface {
	// Discover finds the repository root starting from cwd.
	Discover(cwd string) (root string, err error)

	// Fingerprint computes a stable fingerprint for the repository.
	Fingerprint(root string) (string, error)

	// RelPath computes the forward-slash relative path from root to absPath.
	RelPath(root, absPath string) (string, error)
}

// RealGitRepo implements GitRepo using the filesystem and the git binary.
type RealGitRepo struct {
	// topLevel runs the VCS fallback query. Replaced in tests.
	topLevel func(dir string) (string, error)
}

// NewRealGitRepo creates a new RealGitRepo.
func NewRealGitRepo() *RealGitRepo {
	return &RealGitRepo{topLevel: gitTopLevel}
}

// Discover walks up from cwd looking for a .git directory or file, then falls
// back to `git rev-parse --show-toplevel`.
func (g *RealGitRepo) Discover(cwd string) (string, error) {
	absPath, err := filepath.Abs(cwd)
	if err != nil {
		return "", fmt.Errorf("failed to get absolute path: %w", err)
	}

	if _, err := os.Stat(absPath); err != nil {
		return "", fmt.Errorf("failed to stat %s: %w", absPath, err)
	}

	current := absPath
	for {
		gitDir := filepath.Join(current, ".git")
		if info, err := os.Stat(gitDir); err == nil {
			// .git can be a directory or a file (for worktrees/submodules)
			if info.IsDir() || info.Mode().IsRegular() {
				return current, nil
			}
		}

		parent := filepath.Dir(current)
		if parent == current {
			break
		}
		current = parent
	}

	if g.topLevel != nil {
		if root, err := g.topLevel(absPath); err == nil && root != "" {
			return filepath.Clean(root), nil
		}
	}

	return "", ErrNotInRepo
}

func gitTopLevel(dir string) (string, error) {
	cmd := exec.Command("git", "rev-parse", "--show-toplevel")
	cmd.Dir = dir
	output, err := cmd.Output()
	if err != nil {
		return "", err
	}
	return filepath.FromSlash(strings.TrimSpace(string(output))), nil
}

// Fingerprint computes a stable fingerprint from the root path and the remote
// origin URL (if available).
func (g *RealGitRepo) Fingerprint(root string) (string, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("failed to get absolute path: %w", err)
	}

	cmd := exec.Command("git", "config", "--get", "remote.origin.url")
	cmd.Dir = root
	output, err := cmd.Output()

	remoteURL := "unknown"
	if err == nil {
		remoteURL = strings.TrimSpace(string(output))
	}

	return fingerprint(absRoot, remoteURL), nil
}

func fingerprint(absRoot, remoteURL string) string {
	sum := sha256.Sum256([]byte(absRoot + "|" + remoteURL))
	return hex.EncodeToString(sum[:])
}

// RelPath computes the relative path from root to absPath using forward slashes.
func (g *RealGitRepo) RelPath(root, absPath string) (string, error) {
	return relPath(root, absPath)
}

func relPath(root, absPath string) (string, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("failed to get absolute root: %w", err)
	}

	absTarget, err := filepath.Abs(absPath)
	if err != nil {
		return "", fmt.Errorf("failed to get absolute target: %w", err)
	}

	rel, err := filepath.Rel(absRoot, absTarget)
	if err != nil {
		return "", fmt.Errorf("failed to compute relative path: %w", err)
	}

	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path is outside repository")
	}

	return filepath.ToSlash(rel), nil
}

// FakeGitRepo implements GitRepo with predetermined values for testing.
type FakeGitRepo struct {
	root        string
	fingerprint string
	err         error
}

// NewFakeGitRepo creates a new FakeGitRepo.
func NewFakeGitRepo(root, fingerprint string) *FakeGitRepo {
	return &FakeGitRepo{
		root:        root,
		fingerprint: fingerprint,
	}
}

// SetError sets an error to be returned by all methods.
func (g *FakeGitRepo) SetError(err error) {
	g.err = err
}

// Discover returns the predetermined root.
func (g *FakeGitRepo) Discover(cwd string) (string, error) {
	if g.err != nil {
		return "", g.err
	}
	return g.root, nil
}

// Fingerprint returns the predetermined fingerprint.
func (g *FakeGitRepo) Fingerprint(root string) (string, error) {
	if g.err != nil {
		return "", g.err
	}
	return g.fingerprint, nil
}

// RelPath computes the relative path (works like real implementation).
func (g *FakeGitRepo) RelPath(root, absPath string) (string, error) {
	if g.err != nil {
		return "", g.err
	}
	return relPath(root, absPath)
}
