package prepconfig

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/danieljhkim/buildprep/internal/config"
)

// ItemType is the kind of artifact a manifest item or injection refers to.
type ItemType string

const (
	ItemPackage  ItemType = "package"
	ItemAssembly ItemType = "assembly"
	ItemAsset    ItemType = "asset"
)

// ParseItemType parses "package", "assembly" or "asset" (case-insensitive).
func ParseItemType(s string) (ItemType, error) {
	switch ItemType(strings.ToLower(strings.TrimSpace(s))) {
	case ItemPackage:
		return ItemPackage, nil
	case ItemAssembly:
		return ItemAssembly, nil
	case ItemAsset:
		return ItemAsset, nil
	}
	return "", fmt.Errorf("invalid type %q: must be package, assembly, or asset", s)
}

// PreparationItem declares one external source to pull into the cache.
type PreparationItem struct {
	Source  string   `json:"source"`
	CacheAs string   `json:"cacheAs"`
	Type    ItemType `json:"type"`
}

// PreparationManifest lists what to pull into the cache.
type PreparationManifest struct {
	Version        string            `json:"version"`
	ID             string            `json:"id"`
	Title          string            `json:"title"`
	Description    string            `json:"description,omitempty"`
	CacheDirectory string            `json:"cacheDirectory,omitempty"`
	Items          []PreparationItem `json:"items"`
}

func (m *PreparationManifest) normalize() {
	if m.Items == nil {
		m.Items = []PreparationItem{}
	}
}

// EffectiveCacheDirectory returns the manifest's cache directory or the default.
func (m *PreparationManifest) EffectiveCacheDirectory() string {
	if strings.TrimSpace(m.CacheDirectory) == "" {
		return config.DefaultCacheDirectory
	}
	return m.CacheDirectory
}

// FindItem returns the item whose cacheAs matches name case-insensitively.
func (m *PreparationManifest) FindItem(cacheAs string) (*PreparationItem, bool) {
	for i := range m.Items {
		if strings.EqualFold(m.Items[i].CacheAs, cacheAs) {
			return &m.Items[i], true
		}
	}
	return nil, false
}

// NewManifest returns a default manifest whose id derives from the manifest path.
func NewManifest(manifestPath string) *PreparationManifest {
	base := path.Base(filepath.ToSlash(manifestPath))
	id := strings.TrimSuffix(base, path.Ext(base))
	return &PreparationManifest{
		Version:        VersionV1,
		ID:             id,
		Title:          "Preparation Manifest",
		CacheDirectory: config.DefaultCacheDirectory,
		Items:          []PreparationItem{},
	}
}

// LoadOrCreateManifest loads a preparation manifest, or returns a new default
// one (not yet saved) when the file does not exist.
func (s *Store) LoadOrCreateManifest(manifestPath string) (*PreparationManifest, error) {
	_, data, err := s.read(manifestPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return NewManifest(manifestPath), nil
		}
		return nil, err
	}

	var m PreparationManifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrParse, manifestPath, err)
	}
	m.normalize()
	return &m, nil
}

// SaveManifest writes a preparation manifest.
func (s *Store) SaveManifest(m *PreparationManifest, manifestPath string) error {
	return s.Save(m, manifestPath)
}

// BatchPackageItem is a package entry of a batch manifest.
type BatchPackageItem struct {
	Source  string `json:"source" yaml:"source"`
	Name    string `json:"name" yaml:"name"`
	Version string `json:"version" yaml:"version"`
	Target  string `json:"target,omitempty" yaml:"target,omitempty"`
}

// BatchAssemblyItem is an assembly entry of a batch manifest.
type BatchAssemblyItem struct {
	Source  string `json:"source" yaml:"source"`
	Name    string `json:"name" yaml:"name"`
	Version string `json:"version,omitempty" yaml:"version,omitempty"`
	Target  string `json:"target,omitempty" yaml:"target,omitempty"`
}

// BatchAssetItem is an asset entry of a batch manifest.
type BatchAssetItem struct {
	Source string `json:"source" yaml:"source"`
	Name   string `json:"name" yaml:"name"`
	Target string `json:"target" yaml:"target"`
}

// BatchManifest is bulk input for add-batch.
type BatchManifest struct {
	Version     string              `json:"version" yaml:"version"`
	Description string              `json:"description,omitempty" yaml:"description,omitempty"`
	Packages    []BatchPackageItem  `json:"packages" yaml:"packages"`
	Assemblies  []BatchAssemblyItem `json:"assemblies" yaml:"assemblies"`
	Assets      []BatchAssetItem    `json:"assets" yaml:"assets"`
}

// TotalItems returns the number of items across all sections.
func (m *BatchManifest) TotalItems() int {
	return len(m.Packages) + len(m.Assemblies) + len(m.Assets)
}

// LoadBatchManifest reads a batch manifest; the format follows the extension
// (.json, .yaml or .yml).
func (s *Store) LoadBatchManifest(manifestPath string) (*BatchManifest, error) {
	_, data, err := s.read(manifestPath)
	if err != nil {
		return nil, err
	}

	var m BatchManifest
	switch strings.ToLower(path.Ext(filepath.ToSlash(manifestPath))) {
	case ".json":
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrParse, manifestPath, err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrParse, manifestPath, err)
		}
	default:
		return nil, fmt.Errorf("%w: %s (use .json, .yaml or .yml)", ErrUnsupportedFormat, manifestPath)
	}
	return &m, nil
}

// BatchValidation is the outcome of ValidateBatchManifest.
type BatchValidation struct {
	Errors   []string
	Warnings []string
}

// IsValid reports whether no errors were found.
func (v BatchValidation) IsValid() bool {
	return len(v.Errors) == 0
}

// ValidateBatchManifest checks required fields of every item.
func ValidateBatchManifest(m *BatchManifest) BatchValidation {
	var v BatchValidation

	if m.TotalItems() == 0 {
		v.Errors = append(v.Errors, "manifest contains no packages, assemblies, or assets")
		return v
	}

	for i, p := range m.Packages {
		if strings.TrimSpace(p.Name) == "" {
			v.Errors = append(v.Errors, fmt.Sprintf("packages[%d]: name is required", i))
		}
		if strings.TrimSpace(p.Source) == "" {
			v.Errors = append(v.Errors, fmt.Sprintf("packages[%d]: source is required", i))
		}
		if strings.TrimSpace(p.Version) == "" {
			v.Warnings = append(v.Warnings, fmt.Sprintf("packages[%d] (%s): version is empty", i, p.Name))
		}
	}
	for i, a := range m.Assemblies {
		if strings.TrimSpace(a.Name) == "" {
			v.Errors = append(v.Errors, fmt.Sprintf("assemblies[%d]: name is required", i))
		}
		if strings.TrimSpace(a.Source) == "" {
			v.Errors = append(v.Errors, fmt.Sprintf("assemblies[%d]: source is required", i))
		}
	}
	for i, a := range m.Assets {
		if strings.TrimSpace(a.Name) == "" {
			v.Errors = append(v.Errors, fmt.Sprintf("assets[%d]: name is required", i))
		}
		if strings.TrimSpace(a.Source) == "" {
			v.Errors = append(v.Errors, fmt.Sprintf("assets[%d]: source is required", i))
		}
	}

	return v
}
