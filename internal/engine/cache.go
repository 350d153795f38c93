package engine

import (
	"context"
	"fmt"

	"github.com/danieljhkim/buildprep/internal/cache"
	"github.com/danieljhkim/buildprep/internal/config"
	"github.com/danieljhkim/buildprep/internal/prepconfig"
)

// CachePopulate fills the cache from a source directory or from the sources
// a config references.
func (e *Engine) CachePopulate(ctx context.Context, req *CachePopulateRequest) (*CachePopulateResult, error) {
	cacheDir := e.cacheDir(req.CacheDir)
	result := &CachePopulateResult{
		CacheDir: cacheDir,
		Items:    []cache.Item{},
		DryRun:   req.DryRun,
	}

	configPath := req.ConfigPath
	if configPath == "" {
		configPath = config.DefaultConfigPath
	}

	if req.Source != "" {
		opts := cache.PopulateOptions{
			Hash:     req.Hash,
			DryRun:   req.DryRun,
			Patterns: req.Patterns,
		}

		var cfg *prepconfig.PreparationConfig
		if req.UpdateConfig {
			loaded, _, err := e.loadOrCreateV1(configPath)
			if err != nil {
				return nil, err
			}
			cfg = loaded
			opts.Config = cfg
		}

		items, err := e.cache.PopulateFromDirectory(ctx, req.Source, cacheDir, opts)
		result.Items = items
		if err != nil {
			return result, err
		}

		if cfg != nil && !req.DryRun {
			if err := e.configs.Save(cfg, configPath); err != nil {
				return result, err
			}
			result.ConfigUpdated = true
		}
		return result, nil
	}

	if req.ConfigPath == "" {
		return nil, fmt.Errorf("%w: either a source directory or a config is required", ErrArgument)
	}
	if req.DryRun {
		return nil, fmt.Errorf("%w: dry-run is only supported when populating from a source directory", ErrArgument)
	}

	loaded, err := e.configs.LoadAutoDetect(configPath)
	if err != nil {
		return nil, err
	}

	configs := []*prepconfig.PreparationConfig{loaded.V1}
	if loaded.Generation == prepconfig.GenerationV2 {
		configs = configs[:0]
		for _, name := range loaded.V2.StageNames() {
			cfg, _, err := prepconfig.ConvertStageToV1(loaded.V2, name, "")
			if err != nil {
				return nil, err
			}
			configs = append(configs, cfg)
		}
	}

	for _, cfg := range configs {
		items, err := e.cache.PopulateFromConfig(ctx, cfg, cacheDir)
		result.Items = append(result.Items, items...)
		if err != nil {
			return result, err
		}
	}
	return result, nil
}

// CacheList lists the cache contents.
func (e *Engine) CacheList(ctx context.Context, req *CacheListRequest) (*CacheListResult, error) {
	cacheDir := e.cacheDir(req.CacheDir)

	items, err := e.cache.List(ctx, cacheDir, req.Hash)
	if err != nil {
		return nil, err
	}

	result := &CacheListResult{CacheDir: cacheDir, Items: items}
	for _, it := range items {
		result.TotalSize += it.Size
	}
	return result, nil
}

// CacheClean removes every cached artifact.
func (e *Engine) CacheClean(ctx context.Context, req *CacheCleanRequest) (*CacheCleanResult, error) {
	cacheDir := e.cacheDir(req.CacheDir)

	removed, err := e.cache.Clean(cacheDir, req.DryRun)
	if err != nil {
		return nil, err
	}
	return &CacheCleanResult{CacheDir: cacheDir, Removed: removed, DryRun: req.DryRun}, nil
}
