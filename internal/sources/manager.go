// Package sources registers external sources in preparation manifests and
// injection mappings in build configs, one at a time or in batches.
package sources

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"strings"

	"github.com/danieljhkim/buildprep/internal/clock"
	"github.com/danieljhkim/buildprep/internal/config"
	"github.com/danieljhkim/buildprep/internal/fsops"
	"github.com/danieljhkim/buildprep/internal/log"
	"github.com/danieljhkim/buildprep/internal/prepconfig"
	"github.com/danieljhkim/buildprep/internal/repopath"
)

// DefaultPackageVersion is recorded for a package injection without a version.
const DefaultPackageVersion = "1.0.0"

// ErrDuplicate indicates a manifest already holds an item with the same cacheAs.
var ErrDuplicate = errors.New("item already exists in manifest")

// SourceResult describes one source addition.
type SourceResult struct {
	Success           bool   `json:"success"`
	DryRun            bool   `json:"dryRun"`
	SourcePath        string `json:"sourcePath,omitempty"`
	CachePath         string `json:"cachePath,omitempty"`
	CacheRelativePath string `json:"cacheRelativePath,omitempty"`
	ErrorMessage      string `json:"errorMessage,omitempty"`
	FileCount         int    `json:"fileCount"`
	DirectoryCount    int    `json:"directoryCount"`
	TotalSize         int64  `json:"totalSize"`
}

// Manager adds sources and injections.
type Manager struct {
	fs           fsops.FS
	resolver     *repopath.Resolver
	store        *prepconfig.Store
	clock        clock.Clock
	clientTarget string
}

// New creates a Manager.
func New(fs fsops.FS, resolver *repopath.Resolver, store *prepconfig.Store, clk clock.Clock) *Manager {
	return &Manager{
		fs:           fs,
		resolver:     resolver,
		store:        store,
		clock:        clk,
		clientTarget: config.DefaultClientTarget,
	}
}

// SetClientTarget changes the client project directory used for default
// injection targets.
func (m *Manager) SetClientTarget(target string) {
	if strings.TrimSpace(target) != "" {
		m.clientTarget = repopath.Normalize(target)
	}
}

// AddSource copies sourcePath into the manifest's cache directory as cacheAs
// and records it in the manifest at manifestPath. The manifest is created if
// missing. With dryRun nothing is copied or saved.
//
// The returned result is never nil; the error is non-nil exactly when
// Success is false.
func (m *Manager) AddSource(ctx context.Context, manifestPath, sourcePath, cacheAs string, itemType prepconfig.ItemType, dryRun bool) (*SourceResult, error) {
	if err := ctx.Err(); err != nil {
		return &SourceResult{ErrorMessage: err.Error()}, err
	}

	manifest, err := m.store.LoadOrCreateManifest(manifestPath)
	if err != nil {
		return &SourceResult{ErrorMessage: err.Error()}, err
	}

	res, err := m.addSource(manifest, sourcePath, cacheAs, itemType, dryRun)
	if err != nil || dryRun {
		return res, err
	}

	if err := m.store.SaveManifest(manifest, manifestPath); err != nil {
		res.Success = false
		res.ErrorMessage = err.Error()
		return res, fmt.Errorf("failed to save manifest: %w", err)
	}
	return res, nil
}

func (m *Manager) addSource(manifest *prepconfig.PreparationManifest, sourcePath, cacheAs string, itemType prepconfig.ItemType, dryRun bool) (*SourceResult, error) {
	res := &SourceResult{DryRun: dryRun}
	fail := func(err error) (*SourceResult, error) {
		res.Success = false
		res.ErrorMessage = err.Error()
		return res, err
	}

	src, err := m.resolver.Resolve(sourcePath)
	if err != nil {
		return fail(err)
	}
	res.SourcePath = src

	if ok, _ := m.fs.Exists(src); !ok {
		return fail(fmt.Errorf("source path does not exist: %s: %w", src, os.ErrNotExist))
	}

	if err := m.fs.ValidateIdentifier(cacheAs); err != nil {
		return fail(fmt.Errorf("invalid cacheAs %q: %w", cacheAs, err))
	}

	rel := path.Join(repopath.Normalize(manifest.EffectiveCacheDirectory()), cacheAs)
	dst, err := m.resolver.Resolve(rel)
	if err != nil {
		return fail(err)
	}
	res.CachePath = dst
	res.CacheRelativePath = rel

	if _, exists := manifest.FindItem(cacheAs); exists {
		return fail(fmt.Errorf("%w: cacheAs %q", ErrDuplicate, cacheAs))
	}

	res.FileCount, res.DirectoryCount, res.TotalSize = m.measure(src)

	if dryRun {
		res.Success = true
		return res, nil
	}

	if err := m.fs.Copy(src, dst); err != nil {
		return fail(fmt.Errorf("failed to copy %s to cache: %w", src, err))
	}

	manifest.Items = append(manifest.Items, prepconfig.PreparationItem{
		Source:  sourcePath,
		CacheAs: cacheAs,
		Type:    itemType,
	})
	res.Success = true
	log.Info("added source %s to manifest as %s", sourcePath, cacheAs)
	return res, nil
}

// measure counts files, directories (excluding root) and bytes under p.
func (m *Manager) measure(p string) (files, dirs int, size int64) {
	err := m.fs.Walk(p, func(walked string, info os.FileInfo, err error) error {
		if err != nil {
			log.Warn("counts for %s are incomplete, cannot read %s: %v", p, walked, err)
			return nil
		}
		if info.IsDir() {
			if walked != p {
				dirs++
			}
			return nil
		}
		files++
		size += info.Size()
		return nil
	})
	if err != nil {
		log.Warn("failed to walk %s: %v", p, err)
	}
	return files, dirs, size
}

// AddInjection adds a mapping from a cache source to a target in the client
// project. It never touches the filesystem. name defaults to the base name of
// source.
func (m *Manager) AddInjection(cfg *prepconfig.PreparationConfig, source, target string, itemType prepconfig.ItemType, name, version string) error {
	source = repopath.Normalize(source)
	target = repopath.Normalize(target)
	if source == "" {
		return errors.New("injection source is required")
	}
	if target == "" {
		return errors.New("injection target is required")
	}
	if strings.TrimSpace(name) == "" {
		name = path.Base(source)
	}

	switch itemType {
	case prepconfig.ItemPackage:
		if version == "" {
			version = DefaultPackageVersion
		}
		cfg.AddPackage(prepconfig.UnityPackageReference{Name: name, Version: version, Source: source, Target: target})
	case prepconfig.ItemAssembly:
		cfg.AddAssembly(prepconfig.AssemblyReference{Name: name, Version: version, Source: source, Target: target})
	case prepconfig.ItemAsset:
		cfg.AddAssetManipulation(prepconfig.AssetManipulation{
			Operation: prepconfig.AssetCopy,
			Source:    source,
			Target:    target,
			Overwrite: true,
		})
	default:
		return fmt.Errorf("unknown type %q: must be package, assembly, or asset", itemType)
	}

	log.Info("added %s injection %s -> %s", itemType, source, target)
	return nil
}
