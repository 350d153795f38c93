package prepconfig

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"golang.org/x/mod/semver"

	"github.com/danieljhkim/buildprep/internal/fsops"
	"github.com/danieljhkim/buildprep/internal/repopath"
)

var (
	// ErrParse indicates a malformed configuration or manifest file.
	ErrParse = errors.New("parse error")

	// ErrUnsupportedFormat indicates a manifest extension that cannot be read.
	ErrUnsupportedFormat = errors.New("unsupported manifest format")

	// ErrStageNotFound indicates a stage name missing from a multi-stage config.
	ErrStageNotFound = errors.New("stage not found")
)

// Generation identifies a configuration schema generation.
type Generation int

const (
	GenerationV1 Generation = 1
	GenerationV2 Generation = 2
)

// String returns the generation label used in CLI output.
func (g Generation) String() string {
	switch g {
	case GenerationV2:
		return "v2"
	default:
		return "v1"
	}
}

// Loaded is the tagged result of LoadAutoDetect; exactly one of V1 or V2 is set.
type Loaded struct {
	Generation Generation
	V1         *PreparationConfig
	V2         *MultiStageConfig
}

// Store loads and saves configuration files relative to the repository root.
type Store struct {
	fs       fsops.FS
	resolver *repopath.Resolver
}

// NewStore creates a new Store.
func NewStore(fs fsops.FS, resolver *repopath.Resolver) *Store {
	return &Store{fs: fs, resolver: resolver}
}

// CreateNew returns an empty v1 config.
func CreateNew(description string) *PreparationConfig {
	cfg := &PreparationConfig{
		Version:     VersionV1,
		Description: description,
	}
	cfg.normalize()
	return cfg
}

// CreateMultiStage returns an empty v2 config.
func CreateMultiStage(description string) *MultiStageConfig {
	cfg := &MultiStageConfig{
		Version:     VersionV2,
		Description: description,
	}
	cfg.normalize()
	return cfg
}

// DetectGeneration maps a version string to a schema generation. A missing or
// unreadable version falls back on the presence of injection stages.
func DetectGeneration(version string, hasStages bool) Generation {
	switch versionMajor(version) {
	case "v2":
		return GenerationV2
	case "v1":
		return GenerationV1
	}
	if hasStages {
		return GenerationV2
	}
	return GenerationV1
}

// versionMajor returns the semver major ("v1", "v2") of loose versions like
// "2.0", "v1", or "2.x".
func versionMajor(version string) string {
	version = strings.TrimSpace(version)
	if version == "" {
		return ""
	}
	v := "v" + strings.TrimPrefix(version, "v")
	if semver.IsValid(v) {
		return semver.Major(v)
	}
	// "2.x" style wildcards are not semver; keep the leading component.
	major, _, _ := strings.Cut(v, ".")
	if semver.IsValid(major) {
		return semver.Major(major)
	}
	return ""
}

func (s *Store) read(path string) (string, []byte, error) {
	abs, err := s.resolver.Resolve(path)
	if err != nil {
		return "", nil, err
	}
	data, err := s.fs.ReadFile(abs)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return abs, nil, fmt.Errorf("configuration file not found: %s: %w", path, os.ErrNotExist)
		}
		return abs, nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return abs, data, nil
}

// Load reads a v1 config.
func (s *Store) Load(path string) (*PreparationConfig, error) {
	_, data, err := s.read(path)
	if err != nil {
		return nil, err
	}

	var cfg PreparationConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrParse, path, err)
	}
	cfg.normalize()
	return &cfg, nil
}

// LoadMultiStage reads a v2 config.
func (s *Store) LoadMultiStage(path string) (*MultiStageConfig, error) {
	_, data, err := s.read(path)
	if err != nil {
		return nil, err
	}

	var cfg MultiStageConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrParse, path, err)
	}
	cfg.normalize()
	return &cfg, nil
}

// LoadAutoDetect inspects the version field and parses the matching generation.
func (s *Store) LoadAutoDetect(path string) (*Loaded, error) {
	_, data, err := s.read(path)
	if err != nil {
		return nil, err
	}

	var probe struct {
		Version         string          `json:"version"`
		InjectionStages json.RawMessage `json:"injectionStages"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrParse, path, err)
	}

	gen := DetectGeneration(probe.Version, len(probe.InjectionStages) > 0)
	loaded := &Loaded{Generation: gen}

	if gen == GenerationV2 {
		var cfg MultiStageConfig
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrParse, path, err)
		}
		cfg.normalize()
		loaded.V2 = &cfg
		return loaded, nil
	}

	var cfg PreparationConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrParse, path, err)
	}
	cfg.normalize()
	loaded.V1 = &cfg
	return loaded, nil
}

// Save writes v (a config or manifest) as 2-space indented JSON.
func (s *Store) Save(v any, path string) error {
	switch c := v.(type) {
	case *PreparationConfig:
		c.normalize()
	case *MultiStageConfig:
		c.normalize()
	case *PreparationManifest:
		c.normalize()
	}

	abs, err := s.resolver.Resolve(path)
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", path, err)
	}
	data = append(data, '\n')

	if err := s.fs.AtomicWrite(abs, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

// ConvertStageToV1 projects one stage of cfg into a flat config. When platform
// is set and enabled on the stage, its files become overwriting Copy
// manipulations and its patches are appended. The platform's commands are
// returned for the caller to report; they are never executed here.
func ConvertStageToV1(cfg *MultiStageConfig, stageName, platform string) (*PreparationConfig, []string, error) {
	stage, ok := cfg.FindStage(stageName)
	if !ok {
		return nil, nil, fmt.Errorf("%w: %q (available: %s)", ErrStageNotFound, stageName, strings.Join(cfg.StageNames(), ", "))
	}

	out := &PreparationConfig{
		Version:            VersionV1,
		Description:        stage.Description,
		Packages:           append([]UnityPackageReference(nil), stage.Packages...),
		Assemblies:         append([]AssemblyReference(nil), stage.Assemblies...),
		AssetManipulations: append([]AssetManipulation(nil), stage.AssetManipulations...),
		CodePatches:        append([]CodePatch(nil), stage.CodePatches...),
	}
	if stage.ScriptingDefineSymbols != nil {
		sym := *stage.ScriptingDefineSymbols
		out.ScriptingDefineSymbols = &sym
	}

	var commands []string
	if platform != "" {
		for name, pc := range stage.Platforms {
			if !strings.EqualFold(name, platform) || !pc.Enabled {
				continue
			}
			for _, f := range pc.Files {
				out.AssetManipulations = append(out.AssetManipulations, AssetManipulation{
					Operation:   AssetCopy,
					Source:      f.Source,
					Target:      f.Target,
					Overwrite:   true,
					Description: fmt.Sprintf("platform %s file", name),
				})
			}
			out.CodePatches = append(out.CodePatches, pc.CodePatches...)
			commands = append(commands, pc.Commands...)
		}
	}

	out.normalize()
	return out, commands, nil
}
