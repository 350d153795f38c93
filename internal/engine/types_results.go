package engine

import (
	"time"

	"github.com/danieljhkim/buildprep/internal/cache"
	"github.com/danieljhkim/buildprep/internal/patch"
	"github.com/danieljhkim/buildprep/internal/planner"
	"github.com/danieljhkim/buildprep/internal/prepconfig"
	"github.com/danieljhkim/buildprep/internal/rollback"
	"github.com/danieljhkim/buildprep/internal/sources"
	"github.com/danieljhkim/buildprep/internal/validate"
)

// RunResult represents the outcome of one configuration run.
type RunResult struct {
	Copied  int `json:"copied"`
	Moved   int `json:"moved"`
	Deleted int `json:"deleted"`
	Patched int `json:"patched"`

	// Skipped counts optional patches that were skipped or failed and
	// patches that changed nothing
	Skipped int `json:"skipped"`

	// Created lists repo-relative paths that did not exist before the run
	Created []string `json:"created"`

	// Patches holds one outcome per code patch, in order
	Patches []*patch.Result `json:"patches"`

	// Plan is the operation plan the run executed (or would execute)
	Plan *planner.Plan `json:"plan"`

	DryRun   bool          `json:"dryRun"`
	Duration time.Duration `json:"duration"`
}

// Total returns the number of operations performed.
func (r *RunResult) Total() int {
	return r.Copied + r.Moved + r.Deleted + r.Patched
}

// PrepareResult represents the outcome of Prepare or Inject.
type PrepareResult struct {
	ConfigPath string `json:"configPath"`
	Stage      string `json:"stage,omitempty"`
	Platform   string `json:"platform,omitempty"`

	// Skipped is set when the selected stage is disabled
	Skipped bool `json:"skipped"`

	// CleanupAfter mirrors the stage flag so callers can schedule cleanup
	CleanupAfter bool `json:"cleanupAfter,omitempty"`

	// Commands are the platform commands of the stage; they are not executed
	Commands []string `json:"commands,omitempty"`

	Validation *validate.Result `json:"validation,omitempty"`
	Run        *RunResult       `json:"run,omitempty"`
}

// CleanupResult represents the outcome of undoing an injection.
type CleanupResult struct {
	Stage    string   `json:"stage,omitempty"`
	Restored []string `json:"restored"`
	Removed  []string `json:"removed"`
	DryRun   bool     `json:"dryRun"`
}

// CreateConfigResult represents a newly written configuration.
type CreateConfigResult struct {
	Path       string `json:"path"`
	Generation string `json:"generation"`
}

// StageValidation is the validation outcome of one config or stage.
type StageValidation struct {
	Stage  string           `json:"stage,omitempty"`
	Result *validate.Result `json:"result"`
}

// ValidateConfigResult represents the outcome of validating a config.
type ValidateConfigResult struct {
	ConfigPath string            `json:"configPath"`
	Generation string            `json:"generation"`
	Level      validate.Level    `json:"level"`
	Stages     []StageValidation `json:"stages"`
}

// IsValid reports whether every validated stage is valid.
func (r *ValidateConfigResult) IsValid() bool {
	for _, s := range r.Stages {
		if !s.Result.IsValid {
			return false
		}
	}
	return true
}

// CachePopulateResult represents the outcome of populating the cache.
type CachePopulateResult struct {
	CacheDir      string       `json:"cacheDir"`
	Items         []cache.Item `json:"items"`
	ConfigUpdated bool         `json:"configUpdated"`
	DryRun        bool         `json:"dryRun"`
}

// CacheListResult represents the cache contents.
type CacheListResult struct {
	CacheDir  string       `json:"cacheDir"`
	Items     []cache.Item `json:"items"`
	TotalSize int64        `json:"totalSize"`
}

// CacheCleanResult represents the outcome of cleaning the cache.
type CacheCleanResult struct {
	CacheDir string `json:"cacheDir"`
	Removed  int    `json:"removed"`
	DryRun   bool   `json:"dryRun"`
}

// AddInjectionResult represents the outcome of adding an injection.
type AddInjectionResult struct {
	ConfigPath string                        `json:"configPath"`
	Created    bool                          `json:"created"`
	DryRun     bool                          `json:"dryRun"`
	Config     *prepconfig.PreparationConfig `json:"config"`
}

// AddBatchResult wraps the batch accounting with the validation warnings of
// the manifest.
type AddBatchResult struct {
	Kind     BatchKind `json:"kind"`
	Output   string    `json:"output"`
	Warnings []string  `json:"warnings,omitempty"`
	*sources.BatchResult
}

// RollbackListResult lists stored snapshots.
type RollbackListResult struct {
	Dir       string              `json:"dir"`
	Snapshots []rollback.Snapshot `json:"snapshots"`
}

// RollbackRestoreResult represents a restored snapshot.
type RollbackRestoreResult struct {
	ID   string `json:"id"`
	File string `json:"file"`
}

// RollbackCleanResult lists removed snapshot ids.
type RollbackCleanResult struct {
	Removed []string `json:"removed"`
}
