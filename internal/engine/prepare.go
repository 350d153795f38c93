package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/sahilm/fuzzy"

	"github.com/danieljhkim/buildprep/internal/config"
	"github.com/danieljhkim/buildprep/internal/log"
	"github.com/danieljhkim/buildprep/internal/patch"
	"github.com/danieljhkim/buildprep/internal/prepconfig"
	"github.com/danieljhkim/buildprep/internal/repopath"
	"github.com/danieljhkim/buildprep/internal/state"
)

// maxMissingReported bounds the cache entries listed in a not-found error.
const maxMissingReported = 5

// stageConfig is a configuration ready to run.
type stageConfig struct {
	cfg          *prepconfig.PreparationConfig
	stage        string
	skipped      bool
	cleanupAfter bool
	commands     []string
}

// loadStage loads configPath. With a stage the file must be multi-stage and
// the stage is projected to a flat config; without one the file must be flat.
func (e *Engine) loadStage(configPath, stage, platform string) (*stageConfig, error) {
	if strings.TrimSpace(stage) != "" {
		multi, err := e.configs.LoadMultiStage(configPath)
		if err != nil {
			return nil, err
		}
		st, ok := multi.FindStage(stage)
		if !ok {
			return nil, stageNotFound(multi, stage)
		}
		if !st.Enabled {
			return &stageConfig{stage: st.Name, skipped: true}, nil
		}
		cfg, commands, err := prepconfig.ConvertStageToV1(multi, st.Name, platform)
		if err != nil {
			return nil, err
		}
		return &stageConfig{cfg: cfg, stage: st.Name, cleanupAfter: st.CleanupAfter, commands: commands}, nil
	}

	loaded, err := e.configs.LoadAutoDetect(configPath)
	if err != nil {
		return nil, err
	}
	if loaded.Generation == prepconfig.GenerationV2 {
		return nil, fmt.Errorf("%w: %s is a multi-stage config; select a stage (available: %s)",
			ErrArgument, configPath, strings.Join(loaded.V2.StageNames(), ", "))
	}
	return &stageConfig{cfg: loaded.V1}, nil
}

// stageNotFound lists the available stages and suggests the closest name.
func stageNotFound(cfg *prepconfig.MultiStageConfig, stage string) error {
	names := cfg.StageNames()
	msg := fmt.Sprintf("%q (available: %s)", stage, strings.Join(names, ", "))
	if matches := fuzzy.Find(stage, names); len(matches) > 0 {
		msg += fmt.Sprintf("; did you mean %q?", matches[0].Str)
	}
	return fmt.Errorf("%w: %s", ErrStageNotFound, msg)
}

// missingCache returns package and assembly sources that are neither present
// nor resolvable through the cache's name@hash lookup.
func (e *Engine) missingCache(cfg *prepconfig.PreparationConfig) []string {
	var sources []string
	for _, p := range cfg.Packages {
		sources = append(sources, p.Source)
	}
	for _, a := range cfg.Assemblies {
		sources = append(sources, a.Source)
	}

	missing := []string{}
	for _, src := range sources {
		abs, err := e.resolver.Resolve(src)
		if err == nil {
			if ok, _ := e.fs.Exists(abs); ok {
				continue
			}
		}
		if _, ok := e.cache.Lookup(src); ok {
			continue
		}
		missing = append(missing, src)
	}
	return missing
}

// Prepare loads, validates and runs a configuration (or one stage of it).
func (e *Engine) Prepare(ctx context.Context, req *PrepareRequest) (*PrepareResult, error) {
	return e.prepare(ctx, req, false)
}

// Algorithm steps:
// 1. Require the target to be the configured client project
// 2. Load the config (v2 stage or v1 file)
// 3. Require every package and assembly source to be cached
// 4. Validate, then run
// 5. Record what the run created and patched
func (e *Engine) Inject(ctx context.Context, req *InjectRequest) (*PrepareResult, error) {
	target := strings.TrimSuffix(repopath.Normalize(req.Target), "/")
	if target == "" {
		return nil, fmt.Errorf("%w: target is required (expected %s/)", ErrArgument, e.settings.ClientTarget)
	}
	if target != e.settings.ClientTarget {
		return nil, fmt.Errorf("%w: target must be %s/, got %s", ErrArgument, e.settings.ClientTarget, req.Target)
	}
	return e.prepare(ctx, &req.PrepareRequest, true)
}

func (e *Engine) prepare(ctx context.Context, req *PrepareRequest, requireCache bool) (*PrepareResult, error) {
	configPath := req.ConfigPath
	if configPath == "" {
		configPath = config.DefaultConfigPath
	}

	level, err := e.level(req.Level)
	if err != nil {
		return nil, err
	}

	sc, err := e.loadStage(configPath, req.Stage, req.Platform)
	if err != nil {
		return nil, err
	}

	result := &PrepareResult{
		ConfigPath:   e.rel(configPath),
		Stage:        sc.stage,
		Platform:     req.Platform,
		Skipped:      sc.skipped,
		CleanupAfter: sc.cleanupAfter,
		Commands:     sc.commands,
	}
	if sc.skipped {
		log.Info("stage %s is disabled - skipping injection", sc.stage)
		return result, nil
	}
	for _, cmd := range sc.commands {
		log.Info("platform %s command (not executed): %s", req.Platform, cmd)
	}

	if requireCache {
		if missing := e.missingCache(sc.cfg); len(missing) > 0 {
			shown := missing[:min(len(missing), maxMissingReported)]
			msg := strings.Join(shown, ", ")
			if extra := len(missing) - len(shown); extra > 0 {
				msg += fmt.Sprintf(" and %d more", extra)
			}
			return result, fmt.Errorf("%w: cache files missing (run 'cache populate' first): %s", ErrNotFound, msg)
		}
	}

	validation := e.validator().Validate(sc.cfg, level)
	result.Validation = validation
	if !validation.IsValid {
		if !req.Force {
			return result, fmt.Errorf("%w: %s", ErrValidation, validation.Summary)
		}
		log.Warn("proceeding despite validation errors (force)")
	}

	run, runErr := e.Run(ctx, sc.cfg, RunOptions{DryRun: req.DryRun, ConfigPath: configPath})
	result.Run = run

	if !req.DryRun && run != nil {
		if err := e.saveRecord(configPath, sc.stage, req.Platform, run); err != nil {
			if runErr != nil {
				return result, fmt.Errorf("%w (and failed to record injection: %v)", runErr, err)
			}
			return result, err
		}
	}
	return result, runErr
}

// saveRecord stores what run changed, merged into any earlier record of the
// same stage. Runs that changed nothing leave no record.
func (e *Engine) saveRecord(configPath, stage, platform string, run *RunResult) error {
	fp, err := e.fingerprint()
	if err != nil {
		return err
	}

	record := state.NewInjectionRecord(fp, e.rel(configPath), stage, platform, e.clock.Now())
	for _, c := range run.Created {
		record.AddCreated(c)
	}
	for _, p := range run.Patches {
		if p.Status == patch.StatusApplied {
			record.AddPatch(p.File, p.RollbackID)
		}
	}
	if len(record.Created) == 0 && len(record.Patches) == 0 {
		return nil
	}

	existing, err := e.records.Load(fp, stage)
	switch {
	case err == nil:
		existing.Merge(record)
		record = existing
	case !errors.Is(err, os.ErrNotExist):
		return fmt.Errorf("failed to load injection record: %w", err)
	}

	if err := e.records.Save(record); err != nil {
		return fmt.Errorf("failed to save injection record: %w", err)
	}
	return nil
}

// Algorithm steps:
// 1. Load the injection record of the stage
// 2. Restore patched files from their snapshots, newest first
// 3. Remove paths the injection created, newest first
// 4. Drop the snapshots and the record
func (e *Engine) Cleanup(ctx context.Context, req *CleanupRequest) (*CleanupResult, error) {
	fp, err := e.fingerprint()
	if err != nil {
		return nil, err
	}

	record, err := e.records.Load(fp, req.Stage)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: no injection record for stage %q", ErrNotFound, req.Stage)
		}
		return nil, err
	}

	result := &CleanupResult{
		Stage:    record.Stage,
		Restored: []string{},
		Removed:  []string{},
		DryRun:   req.DryRun,
	}

	// Every recorded path is checked before anything is touched.
	patchPaths := make([]string, len(record.Patches))
	for i, p := range record.Patches {
		if patchPaths[i], err = e.recordedPath(p.File); err != nil {
			return result, err
		}
	}
	createdPaths := make([]string, len(record.Created))
	for i, rel := range record.Created {
		if createdPaths[i], err = e.recordedPath(rel); err != nil {
			return result, err
		}
	}

	for i := len(record.Patches) - 1; i >= 0; i-- {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		p := record.Patches[i]
		if !req.DryRun {
			if err := e.patches.Rollback(patchPaths[i], p.RollbackID); err != nil {
				return result, fmt.Errorf("failed to restore %s: %w", p.File, err)
			}
		}
		result.Restored = append(result.Restored, p.File)
	}

	for i := len(record.Created) - 1; i >= 0; i-- {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		rel := record.Created[i]
		abs := createdPaths[i]
		exists, err := e.fs.Exists(abs)
		if err != nil {
			return result, fmt.Errorf("failed to check if path exists: %w", err)
		}
		if !exists {
			continue
		}
		if !req.DryRun {
			if err := e.fs.RemoveAll(abs); err != nil {
				return result, fmt.Errorf("failed to remove %s: %w", rel, err)
			}
		}
		result.Removed = append(result.Removed, rel)
	}

	if req.DryRun {
		return result, nil
	}

	for _, p := range record.Patches {
		if err := e.patches.CleanupRollback(p.RollbackID); err != nil {
			log.Warn("failed to remove rollback point %s: %v", p.RollbackID, err)
		}
	}
	if err := e.records.Delete(fp, req.Stage); err != nil {
		return result, err
	}

	log.Info("cleanup complete: restored=%d, removed=%d", len(result.Restored), len(result.Removed))
	return result, nil
}

// recordedPath resolves a path stored in an injection record. It must name
// something strictly inside the repository root.
func (e *Engine) recordedPath(p string) (string, error) {
	abs, err := e.resolver.Resolve(p)
	if err != nil {
		return "", err
	}
	if err := e.resolver.ValidateWithinRoot(abs); err != nil {
		return "", err
	}
	rel, err := e.resolver.MakeRelative(abs)
	if err != nil {
		return "", err
	}
	if err := e.fs.ValidateRelPath(rel); err != nil {
		return "", fmt.Errorf("injection record for %q: %w", p, err)
	}
	return abs, nil
}
