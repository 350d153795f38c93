package sources

import (
	"context"
	"fmt"
	"path"
	"time"

	"github.com/danieljhkim/buildprep/internal/log"
	"github.com/danieljhkim/buildprep/internal/prepconfig"
	"github.com/danieljhkim/buildprep/internal/repopath"
)

// SkippedMessage is recorded for items not attempted after a failure when
// the batch stops on first error.
const SkippedMessage = "skipped after earlier failure"

// FailedItem is one batch item that did not succeed.
type FailedItem struct {
	Item  string `json:"item"`
	Error string `json:"error"`
}

// BatchResult summarises a batch run. SuccessCount + FailureCount always
// equals Total.
type BatchResult struct {
	Total        int           `json:"total"`
	SuccessCount int           `json:"successCount"`
	FailureCount int           `json:"failureCount"`
	Successful   []string      `json:"successful"`
	Failed       []FailedItem  `json:"failed"`
	DryRun       bool          `json:"dryRun"`
	Duration     time.Duration `json:"duration"`
}

// batchItem is one flattened manifest entry.
type batchItem struct {
	kind    prepconfig.ItemType
	label   string
	name    string
	version string
	source  string
	target  string
}

// cacheAs names the cache entry: "name-version", or "name" without a version.
func (b batchItem) cacheAs() string {
	if b.version == "" {
		return b.name
	}
	return b.name + "-" + b.version
}

func flatten(m *prepconfig.BatchManifest) []batchItem {
	items := make([]batchItem, 0, m.TotalItems())
	for _, p := range m.Packages {
		items = append(items, batchItem{prepconfig.ItemPackage, "Package: " + p.Name, p.Name, p.Version, p.Source, p.Target})
	}
	for _, a := range m.Assemblies {
		items = append(items, batchItem{prepconfig.ItemAssembly, "Assembly: " + a.Name, a.Name, a.Version, a.Source, a.Target})
	}
	for _, a := range m.Assets {
		items = append(items, batchItem{prepconfig.ItemAsset, "Asset: " + a.Name, a.Name, "", a.Source, a.Target})
	}
	return items
}

// runBatch applies fn to every item in order. Without continueOnError the
// first failure stops the run and the remaining items are counted as failed.
func (m *Manager) runBatch(ctx context.Context, items []batchItem, dryRun, continueOnError bool, fn func(batchItem) error) (*BatchResult, error) {
	start := m.clock.Now()
	res := &BatchResult{
		Total:      len(items),
		Successful: []string{},
		Failed:     []FailedItem{},
		DryRun:     dryRun,
	}

	skipRest := func(from int, reason string) {
		for _, it := range items[from:] {
			res.FailureCount++
			res.Failed = append(res.Failed, FailedItem{Item: it.label, Error: reason})
		}
	}

	var runErr error
	for i, it := range items {
		if err := ctx.Err(); err != nil {
			skipRest(i, err.Error())
			runErr = err
			break
		}

		if err := fn(it); err != nil {
			res.FailureCount++
			res.Failed = append(res.Failed, FailedItem{Item: it.label, Error: err.Error()})
			log.Warn("batch item %s failed: %v", it.label, err)
			if !continueOnError {
				skipRest(i+1, SkippedMessage)
				break
			}
			continue
		}

		res.SuccessCount++
		res.Successful = append(res.Successful, it.label)
	}

	res.Duration = m.clock.Now().Sub(start)
	return res, runErr
}

// ProcessBatchSources adds every manifest item as a source of the preparation
// manifest at manifestPath. The manifest is saved once, after the batch, when
// at least one item was added.
func (m *Manager) ProcessBatchSources(ctx context.Context, batch *prepconfig.BatchManifest, manifestPath string, dryRun, continueOnError bool) (*BatchResult, error) {
	manifest, err := m.store.LoadOrCreateManifest(manifestPath)
	if err != nil {
		return nil, err
	}

	res, runErr := m.runBatch(ctx, flatten(batch), dryRun, continueOnError, func(it batchItem) error {
		_, err := m.addSource(manifest, it.source, it.cacheAs(), it.kind, dryRun)
		return err
	})

	if !dryRun && res.SuccessCount > 0 {
		if err := m.store.SaveManifest(manifest, manifestPath); err != nil {
			return res, fmt.Errorf("failed to save manifest: %w", err)
		}
	}
	return res, runErr
}

// ProcessBatchInjections adds an injection for every manifest item to cfg.
// Sources are "<cacheDir>/<cacheAs>". Package and assembly targets default to
// the client project's Packages and Assets/Plugins directories.
func (m *Manager) ProcessBatchInjections(ctx context.Context, batch *prepconfig.BatchManifest, cfg *prepconfig.PreparationConfig, cacheDir string, dryRun, continueOnError bool) (*BatchResult, error) {
	cacheDir = repopath.Normalize(cacheDir)

	return m.runBatch(ctx, flatten(batch), dryRun, continueOnError, func(it batchItem) error {
		if it.name == "" {
			return fmt.Errorf("name is required")
		}

		cacheAs := it.cacheAs()
		if it.kind == prepconfig.ItemAsset {
			cacheAs = it.name
		}
		source := path.Join(cacheDir, cacheAs)

		target := it.target
		if target == "" {
			switch it.kind {
			case prepconfig.ItemPackage:
				target = path.Join(m.clientTarget, "Packages", it.name)
			case prepconfig.ItemAssembly:
				target = path.Join(m.clientTarget, "Assets", "Plugins", it.name)
			default:
				return fmt.Errorf("asset %s requires a target", it.name)
			}
		}

		if dryRun {
			return nil
		}
		return m.AddInjection(cfg, source, target, it.kind, it.name, it.version)
	})
}
