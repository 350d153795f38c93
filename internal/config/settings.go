package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// SettingsFile is the name of the optional settings file at the repository root.
const SettingsFile = ".buildprep.yaml"

const (
	// DefaultCacheDirectory is the repo-relative cache location.
	DefaultCacheDirectory = "build/preparation/cache"

	// DefaultClientTarget is the only accepted injection target.
	DefaultClientTarget = "projects/client"

	// DefaultValidationLevel is used when no level is requested.
	DefaultValidationLevel = "Full"

	// DefaultConfigPath is the preparation config used when none is given.
	DefaultConfigPath = "build/preparation/configs/default.json"

	// DefaultManifestPath is the preparation manifest used when none is given.
	DefaultManifestPath = "build/preparation/manifests/default.json"
)

// Settings are repository-level defaults for buildprep commands.
type Settings struct {
	CacheDirectory  string `yaml:"cacheDirectory"`
	ClientTarget    string `yaml:"clientTarget"`
	ValidationLevel string `yaml:"validationLevel"`
	LogLevel        string `yaml:"logLevel"`
}

// DefaultSettings returns the built-in settings.
func DefaultSettings() Settings {
	return Settings{
		CacheDirectory:  DefaultCacheDirectory,
		ClientTarget:    DefaultClientTarget,
		ValidationLevel: DefaultValidationLevel,
	}
}

// LoadSettings reads <repoRoot>/.buildprep.yaml. A missing file yields defaults;
// fields left empty in the file keep their defaults.
func LoadSettings(repoRoot string) (Settings, error) {
	settings := DefaultSettings()

	data, err := os.ReadFile(filepath.Join(repoRoot, SettingsFile))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return settings, nil
		}
		return settings, fmt.Errorf("failed to read %s: %w", SettingsFile, err)
	}

	var fromFile Settings
	if err := yaml.Unmarshal(data, &fromFile); err != nil {
		return settings, fmt.Errorf("failed to parse %s: %w", SettingsFile, err)
	}

	if v := strings.TrimSpace(fromFile.CacheDirectory); v != "" {
		settings.CacheDirectory = strings.TrimSuffix(filepath.ToSlash(v), "/")
	}
	if v := strings.TrimSpace(fromFile.ClientTarget); v != "" {
		settings.ClientTarget = strings.TrimSuffix(filepath.ToSlash(v), "/")
	}
	if v := strings.TrimSpace(fromFile.ValidationLevel); v != "" {
		settings.ValidationLevel = v
	}
	settings.LogLevel = strings.TrimSpace(fromFile.LogLevel)

	return settings, nil
}
