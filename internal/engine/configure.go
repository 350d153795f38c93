package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/danieljhkim/buildprep/internal/config"
	"github.com/danieljhkim/buildprep/internal/log"
	"github.com/danieljhkim/buildprep/internal/prepconfig"
	"github.com/danieljhkim/buildprep/internal/sources"
)

// CreateConfig writes a new flat or multi-stage configuration.
func (e *Engine) CreateConfig(ctx context.Context, req *CreateConfigRequest) (*CreateConfigResult, error) {
	out := req.Output
	if out == "" {
		out = config.DefaultConfigPath
	}

	abs, err := e.resolver.Resolve(out)
	if err != nil {
		return nil, err
	}
	exists, err := e.fs.Exists(abs)
	if err != nil {
		return nil, fmt.Errorf("failed to check if path exists: %w", err)
	}
	if exists && !req.Force {
		return nil, fmt.Errorf("%w: %s already exists (use --force to overwrite)", ErrArgument, out)
	}

	var cfg any
	generation := prepconfig.GenerationV1
	if req.MultiStage {
		multi := prepconfig.CreateMultiStage(req.Description)
		for _, name := range prepconfig.CanonicalStages {
			multi.InjectionStages = append(multi.InjectionStages, prepconfig.InjectionStage{
				Name:               name,
				Enabled:            true,
				Packages:           []prepconfig.UnityPackageReference{},
				Assemblies:         []prepconfig.AssemblyReference{},
				AssetManipulations: []prepconfig.AssetManipulation{},
				CodePatches:        []prepconfig.CodePatch{},
			})
		}
		cfg = multi
		generation = prepconfig.GenerationV2
	} else {
		cfg = prepconfig.CreateNew(req.Description)
	}

	if err := e.configs.Save(cfg, out); err != nil {
		return nil, err
	}

	log.Info("created %s config %s", generation, out)
	return &CreateConfigResult{Path: e.rel(abs), Generation: generation.String()}, nil
}

// ValidateConfig validates a config. Every enabled stage of a multi-stage
// config is validated separately; a named stage is validated even when
// disabled.
func (e *Engine) ValidateConfig(ctx context.Context, req *ValidateConfigRequest) (*ValidateConfigResult, error) {
	configPath := req.ConfigPath
	if configPath == "" {
		configPath = config.DefaultConfigPath
	}

	level, err := e.level(req.Level)
	if err != nil {
		return nil, err
	}

	loaded, err := e.configs.LoadAutoDetect(configPath)
	if err != nil {
		return nil, err
	}

	result := &ValidateConfigResult{
		ConfigPath: e.rel(configPath),
		Generation: loaded.Generation.String(),
		Level:      level,
		Stages:     []StageValidation{},
	}
	validator := e.validator()

	if loaded.Generation == prepconfig.GenerationV2 {
		stage := strings.TrimSpace(req.Stage)
		for _, st := range loaded.V2.InjectionStages {
			if stage == "" && !st.Enabled {
				log.Debug("skipping disabled stage %s", st.Name)
				continue
			}
			if stage != "" && !strings.EqualFold(st.Name, stage) {
				continue
			}
			cfg, _, err := prepconfig.ConvertStageToV1(loaded.V2, st.Name, "")
			if err != nil {
				return nil, err
			}
			result.Stages = append(result.Stages, StageValidation{Stage: st.Name, Result: validator.Validate(cfg, level)})
		}
		if stage != "" && len(result.Stages) == 0 {
			return nil, stageNotFound(loaded.V2, stage)
		}
	} else {
		result.Stages = append(result.Stages, StageValidation{Result: validator.Validate(loaded.V1, level)})
	}

	if !result.IsValid() {
		errorCount := 0
		for _, s := range result.Stages {
			errorCount += len(s.Result.Errors)
		}
		return result, fmt.Errorf("%w: %d errors in %s", ErrValidation, errorCount, configPath)
	}
	return result, nil
}

// loadOrCreateV1 loads a flat config, or returns a new one when the file does
// not exist yet.
func (e *Engine) loadOrCreateV1(configPath string) (*prepconfig.PreparationConfig, bool, error) {
	abs, err := e.resolver.Resolve(configPath)
	if err != nil {
		return nil, false, err
	}
	exists, err := e.fs.Exists(abs)
	if err != nil {
		return nil, false, fmt.Errorf("failed to check if path exists: %w", err)
	}
	if !exists {
		return prepconfig.CreateNew(""), true, nil
	}

	loaded, err := e.configs.LoadAutoDetect(configPath)
	if err != nil {
		return nil, false, err
	}
	if loaded.Generation == prepconfig.GenerationV2 {
		return nil, false, fmt.Errorf("%w: %s is a multi-stage config; injections are added to flat configs", ErrArgument, configPath)
	}
	return loaded.V1, false, nil
}

// AddSource registers an external source in a preparation manifest and
// copies it into the cache.
func (e *Engine) AddSource(ctx context.Context, req *AddSourceRequest) (*sources.SourceResult, error) {
	if strings.TrimSpace(req.Source) == "" {
		return nil, fmt.Errorf("%w: source is required", ErrArgument)
	}
	if strings.TrimSpace(req.CacheAs) == "" {
		return nil, fmt.Errorf("%w: cache name is required", ErrArgument)
	}
	itemType := req.Type
	if itemType == "" {
		itemType = prepconfig.ItemPackage
	}

	manifest := req.ManifestPath
	if manifest == "" {
		manifest = config.DefaultManifestPath
	}
	return e.sources.AddSource(ctx, manifest, req.Source, req.CacheAs, itemType, req.DryRun)
}

// AddInjection adds a package, assembly or asset injection to a flat config.
// In dry-run mode the config file is left untouched.
func (e *Engine) AddInjection(ctx context.Context, req *AddInjectionRequest) (*AddInjectionResult, error) {
	configPath := req.ConfigPath
	if configPath == "" {
		configPath = config.DefaultConfigPath
	}

	cfg, created, err := e.loadOrCreateV1(configPath)
	if err != nil {
		return nil, err
	}

	itemType := req.Type
	if itemType == "" {
		itemType = prepconfig.ItemPackage
	}
	if err := e.sources.AddInjection(cfg, req.Source, req.Target, itemType, req.Name, req.Version); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrArgument, err)
	}

	if !req.DryRun {
		if err := e.configs.Save(cfg, configPath); err != nil {
			return nil, err
		}
	}

	return &AddInjectionResult{
		ConfigPath: e.rel(configPath),
		Created:    created,
		DryRun:     req.DryRun,
		Config:     cfg,
	}, nil
}

// AddBatch processes a batch manifest either into a preparation manifest
// (sources) or into a flat config (injections).
func (e *Engine) AddBatch(ctx context.Context, req *AddBatchRequest) (*AddBatchResult, error) {
	if strings.TrimSpace(req.ManifestPath) == "" {
		return nil, fmt.Errorf("%w: batch manifest is required", ErrArgument)
	}

	batch, err := e.configs.LoadBatchManifest(req.ManifestPath)
	if err != nil {
		return nil, err
	}

	check := prepconfig.ValidateBatchManifest(batch)
	if !check.IsValid() {
		return nil, fmt.Errorf("%w: %s", ErrValidation, strings.Join(check.Errors, "; "))
	}
	for _, w := range check.Warnings {
		log.Warn("%s", w)
	}

	result := &AddBatchResult{Kind: req.Kind, Warnings: check.Warnings}

	switch req.Kind {
	case BatchSource:
		out := req.Output
		if out == "" {
			out = config.DefaultManifestPath
		}
		result.Output = e.rel(out)
		result.BatchResult, err = e.sources.ProcessBatchSources(ctx, batch, out, req.DryRun, req.ContinueOnError)

	case BatchInjection:
		out := req.Output
		if out == "" {
			out = config.DefaultConfigPath
		}
		result.Output = e.rel(out)

		cfg, _, loadErr := e.loadOrCreateV1(out)
		if loadErr != nil {
			return nil, loadErr
		}
		result.BatchResult, err = e.sources.ProcessBatchInjections(ctx, batch, cfg, e.cacheDir(req.CacheDir), req.DryRun, req.ContinueOnError)
		if err == nil && !req.DryRun && result.SuccessCount > 0 {
			err = e.configs.Save(cfg, out)
		}

	default:
		return nil, fmt.Errorf("%w: unknown batch type %q (expected %s or %s)", ErrArgument, req.Kind, BatchSource, BatchInjection)
	}

	return result, err
}
