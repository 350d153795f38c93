// Package engine provides the core business logic for buildprep operations.
//
// The engine package acts as the orchestration layer between CLI commands and
// lower-level components. It is constructed once per repository root and
// wires the configuration store, cache manager, validator, patch engine,
// rollback store and injection records together.
//
// Key components:
//   - Engine: Main orchestrator that coordinates all operations
//   - Run: Executes one flat configuration against the client tree
//   - Prepare/Inject/Cleanup: Stage-aware runs with validation and records
//   - Config, cache, source and rollback operations used by the CLI
package engine

import (
	"fmt"
	"path/filepath"

	"github.com/danieljhkim/buildprep/internal/cache"
	"github.com/danieljhkim/buildprep/internal/clock"
	"github.com/danieljhkim/buildprep/internal/config"
	"github.com/danieljhkim/buildprep/internal/fsops"
	"github.com/danieljhkim/buildprep/internal/gitx"
	"github.com/danieljhkim/buildprep/internal/hash"
	"github.com/danieljhkim/buildprep/internal/patch"
	"github.com/danieljhkim/buildprep/internal/prepconfig"
	"github.com/danieljhkim/buildprep/internal/repopath"
	"github.com/danieljhkim/buildprep/internal/rollback"
	"github.com/danieljhkim/buildprep/internal/sources"
	"github.com/danieljhkim/buildprep/internal/state"
	"github.com/danieljhkim/buildprep/internal/validate"
)

// Deps are the explicit dependencies of an Engine.
type Deps struct {
	// Root is the repository root every path is anchored to
	Root string

	FS       fsops.FS
	GitRepo  gitx.GitRepo
	Hasher   hash.Hasher
	Clock    clock.Clock
	Paths    config.Paths
	Settings config.Settings

	// Records overrides the injection record store (default: files under Paths.State)
	Records state.RecordStore
}

// Engine orchestrates all buildprep operations.
// It is the main API surface called by the CLI.
type Engine struct {
	fs       fsops.FS
	gitRepo  gitx.GitRepo
	hasher   hash.Hasher
	clock    clock.Clock
	paths    config.Paths
	settings config.Settings

	resolver  *repopath.Resolver
	configs   *prepconfig.Store
	cache     *cache.Manager
	sources   *sources.Manager
	rollbacks *rollback.Store
	patches   *patch.Engine
	records   state.RecordStore
}

// New creates a new Engine with the given dependencies.
func New(deps Deps) (*Engine, error) {
	resolver, err := repopath.New(deps.Root, deps.FS)
	if err != nil {
		return nil, fmt.Errorf("failed to create path resolver: %w", err)
	}

	settings := deps.Settings
	defaults := config.DefaultSettings()
	if settings.CacheDirectory == "" {
		settings.CacheDirectory = defaults.CacheDirectory
	}
	if settings.ClientTarget == "" {
		settings.ClientTarget = defaults.ClientTarget
	}
	if settings.ValidationLevel == "" {
		settings.ValidationLevel = defaults.ValidationLevel
	}

	configs := prepconfig.NewStore(deps.FS, resolver)

	cacheManager := cache.New(deps.FS, deps.Hasher, resolver, deps.Clock)
	cacheManager.SetClientTarget(settings.ClientTarget)

	sourceManager := sources.New(deps.FS, resolver, configs, deps.Clock)
	sourceManager.SetClientTarget(settings.ClientTarget)

	rollbacks := rollback.NewStore(deps.FS, deps.Hasher, deps.Clock, deps.Paths.Rollback)

	records := deps.Records
	if records == nil {
		records = state.NewFileRecordStore(deps.FS, deps.Paths.State)
	}

	return &Engine{
		fs:        deps.FS,
		gitRepo:   deps.GitRepo,
		hasher:    deps.Hasher,
		clock:     deps.Clock,
		paths:     deps.Paths,
		settings:  settings,
		resolver:  resolver,
		configs:   configs,
		cache:     cacheManager,
		sources:   sourceManager,
		rollbacks: rollbacks,
		patches:   patch.New(deps.FS, rollbacks),
		records:   records,
	}, nil
}

// Root returns the repository root.
func (e *Engine) Root() string {
	return e.resolver.Root()
}

// Settings returns the effective repository settings.
func (e *Engine) Settings() config.Settings {
	return e.settings
}

func (e *Engine) validator() *validate.Validator {
	return validate.New(e.fs, e.resolver, e.patches, e.cache.Lookup, e.clock)
}

func (e *Engine) cacheDir(dir string) string {
	if dir == "" {
		return e.settings.CacheDirectory
	}
	return dir
}

func (e *Engine) fingerprint() (string, error) {
	fp, err := e.gitRepo.Fingerprint(e.resolver.Root())
	if err != nil {
		return "", fmt.Errorf("failed to compute repository fingerprint: %w", err)
	}
	return fp, nil
}

// rel returns p relative to the root in forward-slash form, or p itself when
// it lies outside the root.
func (e *Engine) rel(p string) string {
	if filepath.IsAbs(p) {
		if r, err := e.gitRepo.RelPath(e.resolver.Root(), p); err == nil {
			return r
		}
		return p
	}
	return repopath.Normalize(p)
}

func (e *Engine) level(s string) (validate.Level, error) {
	if s == "" {
		s = e.settings.ValidationLevel
	}
	lvl, err := validate.ParseLevel(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrArgument, err)
	}
	return lvl, nil
}
