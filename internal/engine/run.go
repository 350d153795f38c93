package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/danieljhkim/buildprep/internal/log"
	"github.com/danieljhkim/buildprep/internal/patch"
	"github.com/danieljhkim/buildprep/internal/planner"
	"github.com/danieljhkim/buildprep/internal/prepconfig"
)

// Algorithm steps:
// 1. Build the operation plan (packages, assemblies, manipulations, patches)
// 2. Refuse to start when the plan has conflicts
// 3. Execute operations in order, checking for cancellation between them
// 4. Report scripting define symbols (recorded, not applied)
// 5. Return aggregate counters
//
// In dry-run mode nothing is written: file operations are only counted and
// patches produce previews.
func (e *Engine) Run(ctx context.Context, cfg *prepconfig.PreparationConfig, opts RunOptions) (*RunResult, error) {
	start := e.clock.Now()
	result := &RunResult{
		Created: []string{},
		Patches: []*patch.Result{},
		DryRun:  opts.DryRun,
	}
	finish := func() {
		result.Duration = e.clock.Now().Sub(start)
	}

	plan, err := planner.BuildPlan(cfg, e.resolver, e.fs, e.cache.Lookup)
	if err != nil {
		return nil, fmt.Errorf("failed to build plan: %w", err)
	}
	result.Plan = plan

	if plan.HasConflicts() {
		finish()
		return result, fmt.Errorf("%w: %d conflicts detected", ErrConflict, len(plan.Conflicts))
	}

	log.Info("preparation started: %s (%d operations, dry-run: %t)", opts.ConfigPath, len(plan.Operations), opts.DryRun)

	for _, op := range plan.Operations {
		if err := ctx.Err(); err != nil {
			finish()
			return result, err
		}
		if err := e.execute(ctx, cfg, op, opts.DryRun, result); err != nil {
			finish()
			return result, err
		}
	}

	logDefineSymbols(cfg.ScriptingDefineSymbols)

	finish()
	log.Info("preparation complete: copied=%d, moved=%d, deleted=%d, patched=%d",
		result.Copied, result.Moved, result.Deleted, result.Patched)
	return result, nil
}

// execute runs a single operation.
func (e *Engine) execute(ctx context.Context, cfg *prepconfig.PreparationConfig, op planner.Operation, dryRun bool, result *RunResult) error {
	switch op.Type {
	case planner.OpCopy, planner.OpMove:
		return e.executeTransfer(op, dryRun, result)
	case planner.OpDelete:
		return e.executeDelete(op, dryRun, result)
	case planner.OpPatch:
		return e.executePatch(ctx, cfg.CodePatches[op.Index], op, dryRun, result)
	default:
		return fmt.Errorf("unknown operation type: %s", op.Type)
	}
}

// executeTransfer copies or moves a file or directory.
func (e *Engine) executeTransfer(op planner.Operation, dryRun bool, result *RunResult) error {
	existed, err := e.fs.Exists(op.Target)
	if err != nil {
		return fmt.Errorf("failed to check if path exists: %w", err)
	}
	if existed && !op.Overwrite {
		return fmt.Errorf("%w: %s: target exists and overwrite is disabled", ErrConflict, op.RelTarget)
	}

	if !dryRun {
		if op.Type == planner.OpMove {
			if existed {
				if err := e.fs.RemoveAll(op.Target); err != nil {
					return fmt.Errorf("failed to replace %s: %w", op.RelTarget, err)
				}
			}
			if err := e.fs.Move(op.Source, op.Target); err != nil {
				return fmt.Errorf("failed to move %s: %w", e.rel(op.Source), err)
			}
		} else if err := e.fs.Copy(op.Source, op.Target); err != nil {
			return fmt.Errorf("failed to copy %s: %w", e.rel(op.Source), err)
		}
	}

	if op.Type == planner.OpMove {
		result.Moved++
	} else {
		result.Copied++
	}
	if !existed {
		result.Created = append(result.Created, op.RelTarget)
	}

	log.Info("%s %s: %s -> %s", op.Type, op.Kind, e.rel(op.Source), op.RelTarget)
	return nil
}

// executeDelete removes a path. A missing path is not an error.
func (e *Engine) executeDelete(op planner.Operation, dryRun bool, result *RunResult) error {
	exists, err := e.fs.Exists(op.Target)
	if err != nil {
		return fmt.Errorf("failed to check if path exists: %w", err)
	}
	if exists && !dryRun {
		if err := e.fs.RemoveAll(op.Target); err != nil {
			return fmt.Errorf("failed to delete %s: %w", op.RelTarget, err)
		}
	}

	result.Deleted++
	log.Info("delete %s (existed: %t)", op.RelTarget, exists)
	return nil
}

// executePatch applies one code patch through the patch engine. A failure is
// fatal unless the patch is optional.
func (e *Engine) executePatch(ctx context.Context, p prepconfig.CodePatch, op planner.Operation, dryRun bool, result *RunResult) error {
	var res *patch.Result
	var err error

	exists, _ := e.fs.Exists(op.Target)
	if dryRun && !exists && !p.Optional {
		// Created by an earlier operation of this run.
		res = &patch.Result{
			Type:     p.Type,
			Status:   patch.StatusDryRun,
			Success:  true,
			Modified: true,
			Message:  "Dry-run: file is created earlier in this run; preview unavailable",
		}
	} else {
		res, err = e.patches.ApplyPatch(ctx, op.Target, p, dryRun)
	}
	res.File = op.RelTarget
	result.Patches = append(result.Patches, res)

	if err != nil {
		if p.Optional && !errors.Is(err, context.Canceled) {
			log.Warn("optional patch %s failed, skipping: %v", op.RelTarget, err)
			result.Skipped++
			return nil
		}
		return fmt.Errorf("patch %s failed: %w", op.RelTarget, err)
	}

	switch res.Status {
	case patch.StatusApplied, patch.StatusDryRun:
		result.Patched++
	default:
		result.Skipped++
	}
	return nil
}

func logDefineSymbols(sym *prepconfig.ScriptingDefineSymbols) {
	if sym == nil {
		return
	}
	log.Info("scripting define symbols requested: +%s -%s (platform: %s, clear: %t)",
		strings.Join(sym.Add, ","), strings.Join(sym.Remove, ","), sym.Platform, sym.ClearExisting)
}
