// Package config manages buildprep's own filesystem paths and the optional
// per-repository settings file.
//
// Tool-owned data (rollback snapshots, injection records) lives outside the
// repository under BUILDPREP_HOME, which defaults to the user cache directory.
package config

import (
	"fmt"
	"os"
	"path/filepath"
)

// Paths contains all the filesystem paths owned by buildprep.
type Paths struct {
	// Root is the base directory for all buildprep data (default: <user cache dir>/buildprep)
	Root string

	// Rollback holds pre-patch snapshots, one file per rollback id
	Rollback string

	// State holds injection records keyed by repository fingerprint
	State string
}

// DefaultPaths returns the default paths for buildprep.
// The root can be overridden with the BUILDPREP_HOME environment variable.
func DefaultPaths() (*Paths, error) {
	root := os.Getenv("BUILDPREP_HOME")
	if root == "" {
		base, err := os.UserCacheDir()
		if err != nil || base == "" {
			base = os.TempDir()
		}
		root = filepath.Join(base, "buildprep")
	}

	return NewPaths(root), nil
}

// NewPaths builds the path set under root.
func NewPaths(root string) *Paths {
	return &Paths{
		Root:     root,
		Rollback: filepath.Join(root, "rollback"),
		State:    filepath.Join(root, "state"),
	}
}

// EnsureDirectories creates all necessary directories if they don't exist.
func (p *Paths) EnsureDirectories() error {
	dirs := []string{
		p.Root,
		p.Rollback,
		p.State,
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	return nil
}
