// Package repopath anchors every path buildprep touches to the repository root.
//
// Configs, manifests and cache records store repo-relative paths with forward
// slashes; a Resolver turns them into absolute paths for filesystem access and
// back again, rejecting anything that escapes the root.
package repopath

import (
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/danieljhkim/buildprep/internal/fsops"
	"github.com/danieljhkim/buildprep/internal/log"
)

var (
	// ErrPathOutsideRoot indicates a path resolves outside the repository root.
	ErrPathOutsideRoot = errors.New("path is outside the repository root")

	// ErrEmptyPath indicates a blank path argument.
	ErrEmptyPath = errors.New("path must not be empty")
)

// Resolver converts between repo-relative and absolute paths.
type Resolver struct {
	root string
	fs   fsops.FS
}

// New creates a Resolver for the given root. The root is resolved once by the
// caller (see gitx.GitRepo.Discover) and made absolute here.
func New(root string, fs fsops.FS) (*Resolver, error) {
	if strings.TrimSpace(root) == "" {
		return nil, fmt.Errorf("repository root: %w", ErrEmptyPath)
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to get absolute root: %w", err)
	}
	return &Resolver{root: filepath.Clean(abs), fs: fs}, nil
}

// Root returns the absolute repository root.
func (r *Resolver) Root() string {
	return r.root
}

// Normalize returns p in canonical repo-relative form: NFC, forward slashes,
// cleaned, without a leading "./".
func Normalize(p string) string {
	p = strings.ReplaceAll(norm.NFC.String(strings.TrimSpace(p)), "\\", "/")
	if p == "" {
		return ""
	}
	cleaned := path.Clean(p)
	return strings.TrimPrefix(cleaned, "./")
}

// Resolve turns p into an absolute path. Relative paths are anchored to the
// root and must stay inside it. Absolute paths are accepted as-is; one outside
// the root only produces a warning.
func (r *Resolver) Resolve(p string) (string, error) {
	normalized := Normalize(p)
	if normalized == "" {
		return "", ErrEmptyPath
	}

	native := filepath.FromSlash(normalized)
	if filepath.IsAbs(native) {
		abs := filepath.Clean(native)
		if !r.IsWithinRoot(abs) {
			log.Warn("path %s is outside the repository root %s", abs, r.root)
		}
		return abs, nil
	}

	abs := filepath.Join(r.root, native)
	if !r.IsWithinRoot(abs) {
		return "", fmt.Errorf("%q: %w", p, ErrPathOutsideRoot)
	}
	return abs, nil
}

// MakeRelative returns the forward-slash path of abs relative to the root.
// A relative input is anchored to the root first.
func (r *Resolver) MakeRelative(abs string) (string, error) {
	if strings.TrimSpace(abs) == "" {
		return "", ErrEmptyPath
	}

	native := filepath.FromSlash(strings.ReplaceAll(norm.NFC.String(abs), "\\", "/"))
	if !filepath.IsAbs(native) {
		native = filepath.Join(r.root, native)
	}
	native = filepath.Clean(native)

	if !r.IsWithinRoot(native) {
		return "", fmt.Errorf("%q: %w", abs, ErrPathOutsideRoot)
	}

	rel, err := filepath.Rel(r.root, native)
	if err != nil {
		return "", fmt.Errorf("failed to compute relative path for %q: %w", abs, err)
	}
	return filepath.ToSlash(rel), nil
}

// IsWithinRoot reports whether the absolute path abs is the root or a descendant.
func (r *Resolver) IsWithinRoot(abs string) bool {
	abs = filepath.Clean(abs)
	return abs == r.root || strings.HasPrefix(abs, r.root+string(filepath.Separator))
}

// ValidateWithinRoot returns ErrPathOutsideRoot when p (relative or absolute)
// does not resolve under the root.
func (r *Resolver) ValidateWithinRoot(p string) error {
	abs, err := r.Resolve(p)
	if err != nil {
		return err
	}
	if !r.IsWithinRoot(abs) {
		return fmt.Errorf("%q: %w", p, ErrPathOutsideRoot)
	}
	return nil
}

// Exists reports whether p resolves to an existing path.
func (r *Resolver) Exists(p string) bool {
	abs, err := r.Resolve(p)
	if err != nil {
		return false
	}
	ok, err := r.fs.Exists(abs)
	return err == nil && ok
}

// FileExists reports whether p resolves to an existing regular file.
func (r *Resolver) FileExists(p string) bool {
	info, ok := r.stat(p)
	return ok && !info.IsDir()
}

// DirectoryExists reports whether p resolves to an existing directory.
func (r *Resolver) DirectoryExists(p string) bool {
	info, ok := r.stat(p)
	return ok && info.IsDir()
}

func (r *Resolver) stat(p string) (os.FileInfo, bool) {
	abs, err := r.Resolve(p)
	if err != nil {
		return nil, false
	}
	info, err := r.fs.Stat(abs)
	if err != nil {
		return nil, false
	}
	return info, true
}

// EnsureDirectory creates the directory p (and parents) if missing and returns
// its absolute path.
func (r *Resolver) EnsureDirectory(p string) (string, error) {
	abs, err := r.Resolve(p)
	if err != nil {
		return "", err
	}
	if err := r.fs.MkdirAll(abs, 0755); err != nil {
		return "", fmt.Errorf("failed to create directory %s: %w", abs, err)
	}
	return abs, nil
}
