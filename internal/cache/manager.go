// Package cache manages the side directory of externally sourced artifacts
// (Unity package archives, assemblies, named source trees) that injection maps
// into the client project.
//
// Artifacts are addressed by file name inside the cache directory:
// "<name>-<version>.tgz" for packages, "<name>.dll" or "<name>-<version>.dll"
// for assemblies, and "<name>@<hash>" for content-addressed directories.
package cache

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/danieljhkim/buildprep/internal/clock"
	"github.com/danieljhkim/buildprep/internal/config"
	"github.com/danieljhkim/buildprep/internal/fsops"
	"github.com/danieljhkim/buildprep/internal/hash"
	"github.com/danieljhkim/buildprep/internal/log"
	"github.com/danieljhkim/buildprep/internal/prepconfig"
	"github.com/danieljhkim/buildprep/internal/repopath"
)

// UnknownVersion is recorded when a package file name carries no version.
const UnknownVersion = "unknown"

// hashWorkers bounds concurrent hashing in List.
const hashWorkers = 4

var (
	packagePattern  = "**/*.tgz"
	assemblyPattern = "**/*.dll"
)

// Item is one cached artifact.
type Item struct {
	Type    prepconfig.ItemType `json:"type"`
	Name    string              `json:"name"`
	Version string              `json:"version,omitempty"`
	Path    string              `json:"path"`
	Size    int64               `json:"size"`
	Hash    string              `json:"hash,omitempty"`
	AddedAt time.Time           `json:"addedAt"`
	Source  string              `json:"source,omitempty"`
}

// PopulateOptions controls PopulateFromDirectory.
type PopulateOptions struct {
	// Hash records a SHA-256 per item.
	Hash bool
	// DryRun lists what would be cached without copying.
	DryRun bool
	// Config, when set, receives a reference for every package and assembly.
	Config *prepconfig.PreparationConfig
	// Patterns adds doublestar patterns whose matches are cached as assets.
	Patterns []string
}

// Manager populates, lists and cleans the cache.
type Manager struct {
	fs           fsops.FS
	hasher       hash.Hasher
	resolver     *repopath.Resolver
	clock        clock.Clock
	clientTarget string
}

// New creates a Manager. Default injection targets are rooted at the
// standard client project directory.
func New(fs fsops.FS, hasher hash.Hasher, resolver *repopath.Resolver, clk clock.Clock) *Manager {
	return &Manager{
		fs:           fs,
		hasher:       hasher,
		resolver:     resolver,
		clock:        clk,
		clientTarget: config.DefaultClientTarget,
	}
}

// SetClientTarget changes the client project directory used for default targets.
func (m *Manager) SetClientTarget(target string) {
	if strings.TrimSpace(target) != "" {
		m.clientTarget = repopath.Normalize(target)
	}
}

// PackageTarget returns the default injection target for a package file.
func (m *Manager) PackageTarget(fileName string) string {
	return path.Join(m.clientTarget, "Packages", fileName)
}

// AssemblyTarget returns the default injection target for an assembly file.
func (m *Manager) AssemblyTarget(fileName string) string {
	return path.Join(m.clientTarget, "Assets", "Plugins", fileName)
}

// ParseArtifactName splits "com.example.core-1.2.0.tgz" into name and version
// at the last '-'. Without one, the version is UnknownVersion.
func ParseArtifactName(fileName string) (name, version string) {
	base := strings.TrimSuffix(fileName, path.Ext(fileName))
	if i := strings.LastIndexByte(base, '-'); i > 0 && i < len(base)-1 {
		return base[:i], base[i+1:]
	}
	return base, UnknownVersion
}

func (m *Manager) relOrAbs(abs string) string {
	if rel, err := m.resolver.MakeRelative(abs); err == nil {
		return rel
	}
	return filepath.ToSlash(abs)
}

func (m *Manager) newItem(t prepconfig.ItemType, name, version, abs string, size int64, source string) Item {
	return Item{
		Type:    t,
		Name:    name,
		Version: version,
		Path:    m.relOrAbs(abs),
		Size:    size,
		AddedAt: m.clock.Now(),
		Source:  source,
	}
}

func (m *Manager) requireDir(p string) (string, error) {
	abs, err := m.resolver.Resolve(p)
	if err != nil {
		return "", err
	}
	info, err := m.fs.Stat(abs)
	if err != nil || !info.IsDir() {
		return "", fmt.Errorf("source directory not found: %s: %w", abs, os.ErrNotExist)
	}
	return abs, nil
}

// PopulateFromDirectory caches every package and assembly found under
// sourceDir. File names are kept; name and version come from ParseArtifactName.
func (m *Manager) PopulateFromDirectory(ctx context.Context, sourceDir, cacheDir string, opts PopulateOptions) ([]Item, error) {
	sourceAbs, err := m.requireDir(sourceDir)
	if err != nil {
		return nil, err
	}
	cacheAbs, err := m.resolver.Resolve(cacheDir)
	if err != nil {
		return nil, err
	}
	if !opts.DryRun {
		if err := m.fs.MkdirAll(cacheAbs, 0755); err != nil {
			return nil, fmt.Errorf("failed to create cache directory: %w", err)
		}
	}

	log.Info("populating cache from %s to %s", sourceAbs, cacheAbs)

	type group struct {
		pattern string
		kind    prepconfig.ItemType
	}
	groups := []group{{packagePattern, prepconfig.ItemPackage}, {assemblyPattern, prepconfig.ItemAssembly}}
	for _, p := range opts.Patterns {
		groups = append(groups, group{p, prepconfig.ItemAsset})
	}

	seen := make(map[string]bool)
	items := []Item{}
	for _, g := range groups {
		matches, err := m.fs.Glob(sourceAbs, g.pattern)
		if err != nil {
			return items, fmt.Errorf("failed to glob %s: %w", g.pattern, err)
		}
		for _, src := range matches {
			if seen[src] {
				continue
			}
			seen[src] = true

			if err := ctx.Err(); err != nil {
				return items, err
			}

			item, err := m.cacheFile(src, cacheAbs, g.kind, sourceDir, opts)
			if err != nil {
				return items, err
			}
			items = append(items, item)
		}
	}

	log.Info("cache populated with %d items", len(items))
	return items, nil
}

func (m *Manager) cacheFile(src, cacheAbs string, kind prepconfig.ItemType, source string, opts PopulateOptions) (Item, error) {
	info, err := m.fs.Stat(src)
	if err != nil {
		return Item{}, fmt.Errorf("failed to stat %s: %w", src, err)
	}
	if info.IsDir() {
		return Item{}, fmt.Errorf("expected a file, found directory: %s", src)
	}

	fileName := filepath.Base(src)
	dst := filepath.Join(cacheAbs, fileName)

	var name, version string
	switch kind {
	case prepconfig.ItemPackage:
		name, version = ParseArtifactName(fileName)
	default:
		name = strings.TrimSuffix(fileName, filepath.Ext(fileName))
	}

	if !opts.DryRun {
		if err := m.fs.Copy(src, dst); err != nil {
			return Item{}, fmt.Errorf("failed to cache %s: %w", src, err)
		}
	}

	item := m.newItem(kind, name, version, dst, info.Size(), source)
	if opts.Hash {
		sum, err := m.hasher.HashFile(src)
		if err != nil {
			return Item{}, err
		}
		item.Hash = sum
	}

	if opts.Config != nil && !opts.DryRun {
		switch kind {
		case prepconfig.ItemPackage:
			opts.Config.AddPackage(prepconfig.UnityPackageReference{
				Name:    name,
				Version: version,
				Source:  item.Path,
				Target:  m.PackageTarget(fileName),
			})
		case prepconfig.ItemAssembly:
			opts.Config.AddAssembly(prepconfig.AssemblyReference{
				Name:   name,
				Source: item.Path,
				Target: m.AssemblyTarget(fileName),
			})
		}
	}

	log.Debug("cached %s %s", kind, fileName)
	return item, nil
}

// PopulateFromConfig mirrors every package and assembly source of cfg into
// cacheDir. A missing source is an error.
func (m *Manager) PopulateFromConfig(ctx context.Context, cfg *prepconfig.PreparationConfig, cacheDir string) ([]Item, error) {
	cacheAbs, err := m.resolver.EnsureDirectory(cacheDir)
	if err != nil {
		return nil, err
	}

	type entry struct {
		kind          prepconfig.ItemType
		name, version string
		source        string
	}
	var entries []entry
	for _, p := range cfg.Packages {
		entries = append(entries, entry{prepconfig.ItemPackage, p.Name, p.Version, p.Source})
	}
	for _, a := range cfg.Assemblies {
		entries = append(entries, entry{prepconfig.ItemAssembly, a.Name, a.Version, a.Source})
	}

	items := []Item{}
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return items, err
		}

		srcAbs, err := m.resolver.Resolve(e.source)
		if err != nil {
			return items, err
		}
		info, err := m.fs.Stat(srcAbs)
		if err != nil {
			return items, fmt.Errorf("%s %s source not found: %s: %w", e.kind, e.name, e.source, os.ErrNotExist)
		}

		dst := filepath.Join(cacheAbs, filepath.Base(srcAbs))
		if filepath.Clean(dst) != filepath.Clean(srcAbs) {
			if err := m.fs.Copy(srcAbs, dst); err != nil {
				return items, fmt.Errorf("failed to cache %s: %w", e.source, err)
			}
		}
		items = append(items, m.newItem(e.kind, e.name, e.version, dst, info.Size(), e.source))
	}
	return items, nil
}

// AddPackage copies sourceFile into the cache as "<name>-<version><ext>" and
// upserts the matching package reference in cfg.
func (m *Manager) AddPackage(cfg *prepconfig.PreparationConfig, name, version, sourceFile, cacheDir string) (*Item, error) {
	if strings.TrimSpace(name) == "" || strings.TrimSpace(version) == "" {
		return nil, errors.New("package name and version are required")
	}

	ext := path.Ext(filepath.ToSlash(sourceFile))
	if ext == "" {
		ext = ".tgz"
	}
	fileName := name + "-" + version + ext

	item, err := m.addFile(prepconfig.ItemPackage, name, version, sourceFile, cacheDir, fileName)
	if err != nil {
		return nil, err
	}

	cfg.AddPackage(prepconfig.UnityPackageReference{
		Name:    name,
		Version: version,
		Source:  item.Path,
		Target:  m.PackageTarget(fileName),
	})
	return item, nil
}

// AddAssembly copies sourceFile into the cache as "<name>.dll" (or
// "<name>-<version>.dll") and upserts the assembly reference in cfg.
func (m *Manager) AddAssembly(cfg *prepconfig.PreparationConfig, name, version, sourceFile, cacheDir string) (*Item, error) {
	name = strings.TrimSuffix(name, ".dll")
	if strings.TrimSpace(name) == "" {
		return nil, errors.New("assembly name is required")
	}

	fileName := name + ".dll"
	if version != "" {
		fileName = name + "-" + version + ".dll"
	}

	item, err := m.addFile(prepconfig.ItemAssembly, name, version, sourceFile, cacheDir, fileName)
	if err != nil {
		return nil, err
	}

	cfg.AddAssembly(prepconfig.AssemblyReference{
		Name:    name,
		Version: version,
		Source:  item.Path,
		Target:  m.AssemblyTarget(fileName),
	})
	return item, nil
}

func (m *Manager) addFile(kind prepconfig.ItemType, name, version, sourceFile, cacheDir, fileName string) (*Item, error) {
	srcAbs, err := m.resolver.Resolve(sourceFile)
	if err != nil {
		return nil, err
	}
	info, err := m.fs.Stat(srcAbs)
	if err != nil {
		return nil, fmt.Errorf("source file not found: %s: %w", sourceFile, os.ErrNotExist)
	}

	cacheAbs, err := m.resolver.EnsureDirectory(cacheDir)
	if err != nil {
		return nil, err
	}
	dst := filepath.Join(cacheAbs, fileName)
	if err := m.fs.Copy(srcAbs, dst); err != nil {
		return nil, fmt.Errorf("failed to cache %s: %w", sourceFile, err)
	}

	item := m.newItem(kind, name, version, dst, info.Size(), sourceFile)
	log.Debug("added %s %s to cache", kind, fileName)
	return &item, nil
}

// classify maps a top-level cache entry to an item, or reports false when
// the entry is not a cache artifact.
func classify(info os.FileInfo) (Item, bool) {
	name := info.Name()
	if info.IsDir() {
		base, sum, ok := strings.Cut(name, "@")
		if !ok || base == "" || sum == "" {
			return Item{}, false
		}
		return Item{Type: prepconfig.ItemPackage, Name: base, Hash: sum}, true
	}

	switch strings.ToLower(filepath.Ext(name)) {
	case ".tgz":
		n, v := ParseArtifactName(name)
		return Item{Type: prepconfig.ItemPackage, Name: n, Version: v, Size: info.Size()}, true
	case ".dll":
		return Item{Type: prepconfig.ItemAssembly, Name: strings.TrimSuffix(name, filepath.Ext(name)), Size: info.Size()}, true
	}
	return Item{}, false
}

// List enumerates cached packages, assemblies and name@hash directories.
// With withHash, files are hashed concurrently; directories keep the hash
// embedded in their name.
func (m *Manager) List(ctx context.Context, cacheDir string, withHash bool) ([]Item, error) {
	cacheAbs, err := m.resolver.Resolve(cacheDir)
	if err != nil {
		return nil, err
	}
	if exists, _ := m.fs.Exists(cacheAbs); !exists {
		log.Warn("cache directory does not exist: %s", cacheAbs)
		return []Item{}, nil
	}

	entries, err := m.fs.ReadDir(cacheAbs)
	if err != nil {
		return nil, fmt.Errorf("failed to read cache directory: %w", err)
	}

	items := []Item{}
	for _, info := range entries {
		item, ok := classify(info)
		if !ok {
			continue
		}
		abs := filepath.Join(cacheAbs, info.Name())
		item.Path = m.relOrAbs(abs)
		item.AddedAt = info.ModTime().UTC()
		if info.IsDir() {
			item.Size = m.dirSize(abs)
		}
		items = append(items, item)
	}

	if withHash {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(hashWorkers)
		for i := range items {
			if strings.Contains(path.Base(items[i].Path), "@") {
				continue
			}
			i := i
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}
				sum, err := m.hasher.HashFile(filepath.Join(cacheAbs, path.Base(items[i].Path)))
				if err != nil {
					return err
				}
				items[i].Hash = sum
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
	}

	sort.SliceStable(items, func(i, j int) bool {
		if items[i].Type != items[j].Type {
			return items[i].Type == prepconfig.ItemPackage
		}
		return items[i].Path < items[j].Path
	})
	log.Debug("cache contains %d items", len(items))
	return items, nil
}

func (m *Manager) dirSize(abs string) int64 {
	var total int64
	err := m.fs.Walk(abs, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			log.Warn("size of %s is incomplete, cannot read %s: %v", abs, p, err)
			return nil
		}
		if !info.IsDir() {
			total += info.Size()
		}
		return nil
	})
	if err != nil {
		log.Warn("failed to walk %s: %v", abs, err)
	}
	return total
}

// Clean removes every cache artifact List would report, plus stray files,
// and returns how many entries were (or with dryRun would be) removed.
func (m *Manager) Clean(cacheDir string, dryRun bool) (int, error) {
	cacheAbs, err := m.resolver.Resolve(cacheDir)
	if err != nil {
		return 0, err
	}
	if exists, _ := m.fs.Exists(cacheAbs); !exists {
		log.Warn("cache directory does not exist: %s", cacheAbs)
		return 0, nil
	}

	entries, err := m.fs.ReadDir(cacheAbs)
	if err != nil {
		return 0, fmt.Errorf("failed to read cache directory: %w", err)
	}

	count := 0
	for _, info := range entries {
		if _, artifact := classify(info); info.IsDir() && !artifact {
			continue
		}
		count++
		if dryRun {
			continue
		}
		p := filepath.Join(cacheAbs, info.Name())
		if err := m.fs.RemoveAll(p); err != nil {
			return count - 1, fmt.Errorf("failed to remove %s: %w", p, err)
		}
		log.Debug("deleted cache entry %s", p)
	}

	log.Info("cache cleaned: %d items removed", count)
	return count, nil
}

// Lookup reports whether the cache source exists, returning its absolute
// path. A sibling directory "<base>@<hash>" also satisfies the lookup.
func (m *Manager) Lookup(source string) (string, bool) {
	abs, err := m.resolver.Resolve(source)
	if err != nil {
		return "", false
	}
	if ok, _ := m.fs.Exists(abs); ok {
		return abs, true
	}

	dir := filepath.Dir(abs)
	base := filepath.Base(abs)
	candidates := []string{base + "@"}
	if ext := filepath.Ext(base); ext != "" {
		candidates = append(candidates, strings.TrimSuffix(base, ext)+"@")
	}

	entries, err := m.fs.ReadDir(dir)
	if err != nil {
		return "", false
	}
	for _, info := range entries {
		if !info.IsDir() {
			continue
		}
		for _, prefix := range candidates {
			if strings.HasPrefix(info.Name(), prefix) {
				return filepath.Join(dir, info.Name()), true
			}
		}
	}
	return "", false
}
