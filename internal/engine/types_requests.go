package engine

import "github.com/danieljhkim/buildprep/internal/prepconfig"

// RunOptions controls a single Run.
type RunOptions struct {
	// DryRun plans and previews without touching the filesystem
	DryRun bool

	// ConfigPath is the config the run came from, for logging only
	ConfigPath string
}

// PrepareRequest represents a request to run a configuration.
type PrepareRequest struct {
	// ConfigPath is the configuration to run (default: config.DefaultConfigPath)
	ConfigPath string

	// Stage selects one stage of a multi-stage config
	Stage string

	// Platform adds the stage's platform files, patches and commands
	Platform string

	// Level is the validation level (default: the repository setting)
	Level string

	// Force runs even when validation fails
	Force bool

	// DryRun performs planning only without making changes
	DryRun bool
}

// InjectRequest represents a request to inject a configuration into the
// client project.
type InjectRequest struct {
	PrepareRequest

	// Target must name the configured client project directory
	Target string
}

// CleanupRequest represents a request to undo a recorded injection.
type CleanupRequest struct {
	// Stage is the stage whose record is undone (empty for v1 runs)
	Stage string

	// DryRun shows what would be restored and removed
	DryRun bool
}

// CreateConfigRequest represents a request to write a new configuration.
type CreateConfigRequest struct {
	// Output is the path of the new config (default: config.DefaultConfigPath)
	Output string

	Description string

	// MultiStage writes a v2 config with the canonical stages
	MultiStage bool

	// Force overwrites an existing file
	Force bool
}

// ValidateConfigRequest represents a request to validate a configuration.
type ValidateConfigRequest struct {
	ConfigPath string

	// Level is the validation level (default: the repository setting)
	Level string

	// Stage restricts a multi-stage config to one stage
	Stage string
}

// CachePopulateRequest represents a request to fill the cache.
type CachePopulateRequest struct {
	// Source is a directory to scan for packages and assemblies
	Source string

	// ConfigPath is a config whose sources are mirrored (when Source is empty)
	// or which receives references (with UpdateConfig)
	ConfigPath string

	// CacheDir overrides the repository cache directory
	CacheDir string

	// Patterns adds doublestar patterns cached as assets
	Patterns []string

	UpdateConfig bool
	DryRun       bool
	Hash         bool
}

// CacheListRequest represents a request to list the cache.
type CacheListRequest struct {
	CacheDir string
	Hash     bool
}

// CacheCleanRequest represents a request to empty the cache.
type CacheCleanRequest struct {
	CacheDir string
	DryRun   bool
}

// AddSourceRequest represents a request to register an external source.
type AddSourceRequest struct {
	// ManifestPath is the preparation manifest (default: config.DefaultManifestPath)
	ManifestPath string
	Source       string
	CacheAs      string
	Type         prepconfig.ItemType
	DryRun       bool
}

// AddInjectionRequest represents a request to add an injection to a config.
type AddInjectionRequest struct {
	ConfigPath string
	Source     string
	Target     string
	Type       prepconfig.ItemType
	Name       string
	Version    string
	DryRun     bool
}

// BatchKind selects what add-batch registers.
type BatchKind string

const (
	BatchSource    BatchKind = "source"
	BatchInjection BatchKind = "injection"
)

// AddBatchRequest represents a request to process a batch manifest.
type AddBatchRequest struct {
	// ManifestPath is the batch manifest (.json, .yaml or .yml)
	ManifestPath string

	// Output is the preparation manifest (source) or config (injection)
	Output string

	Kind            BatchKind
	CacheDir        string
	DryRun          bool
	ContinueOnError bool
}

// RollbackRestoreRequest represents a request to restore a snapshot.
type RollbackRestoreRequest struct {
	// File overrides the path the snapshot was taken from
	File string
	ID   string
}

// RollbackCleanRequest represents a request to remove snapshots.
type RollbackCleanRequest struct {
	// ID removes one snapshot
	ID string

	// OlderThan removes snapshots older than this duration (Go syntax, e.g. 72h)
	OlderThan string

	// All removes every snapshot
	All bool
}
