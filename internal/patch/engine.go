package patch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/danieljhkim/buildprep/internal/fsops"
	"github.com/danieljhkim/buildprep/internal/log"
	"github.com/danieljhkim/buildprep/internal/prepconfig"
	"github.com/danieljhkim/buildprep/internal/rollback"
)

// Engine validates and applies patches, snapshotting files before writing.
type Engine struct {
	fs       fsops.FS
	rollback *rollback.Store
	formats  map[prepconfig.PatchType]Format
}

// New creates an Engine that snapshots into store.
func New(fs fsops.FS, store *rollback.Store) *Engine {
	resolved := make(map[prepconfig.PatchType]Format, len(formats))
	for t, ctor := range formats {
		resolved[t] = ctor()
	}
	return &Engine{fs: fs, rollback: store, formats: resolved}
}

func (e *Engine) format(t prepconfig.PatchType) (Format, error) {
	f, ok := e.formats[t]
	if !ok {
		return nil, fmt.Errorf("%w: no patcher registered for type %q", ErrUnsupported, t)
	}
	return f, nil
}

func (e *Engine) fileExists(path string) bool {
	info, err := e.fs.Stat(path)
	return err == nil && !info.IsDir()
}

// ValidatePatch checks that path exists, that the format can handle p, and
// whether the target is present. A missing target is only a warning.
func (e *Engine) ValidatePatch(path string, p prepconfig.CodePatch) ValidationResult {
	var v ValidationResult

	if !e.fileExists(path) {
		v.Errors = append(v.Errors, fmt.Sprintf("File not found: %s", path))
		return v
	}

	f, err := e.format(p.Type)
	if err != nil {
		v.Errors = append(v.Errors, err.Error())
		return v
	}

	data, err := e.fs.ReadFile(path)
	if err != nil {
		v.Errors = append(v.Errors, fmt.Sprintf("Validation error: %v", err))
		return v
	}
	content := string(data)

	v.TargetFound = f.IsTargetPresent(content, p)
	if !v.TargetFound {
		v.Warnings = append(v.Warnings, "Target pattern not found in file")
	}

	if err := f.Validate(content, p); err != nil {
		v.Errors = append(v.Errors, err.Error())
	}
	return v
}

// ApplyPatch applies p to the file at path. The returned Result is never nil;
// the error is non-nil exactly when Result.Success is false.
func (e *Engine) ApplyPatch(ctx context.Context, path string, p prepconfig.CodePatch, dryRun bool) (*Result, error) {
	res := &Result{File: path, Type: p.Type}
	fail := func(status Status, err error) (*Result, error) {
		res.Status = status
		res.Success = false
		res.Message = err.Error()
		return res, err
	}

	if err := ctx.Err(); err != nil {
		return fail(StatusFailed, err)
	}

	log.Debug("applying %s patch to %s (dry-run: %t)", p.Type, path, dryRun)

	if !e.fileExists(path) {
		if p.Optional {
			res.Status = StatusSkipped
			res.Success = true
			res.Message = fmt.Sprintf("Optional patch skipped: file not found: %s", path)
			log.Info("%s", res.Message)
			return res, nil
		}
		return fail(StatusFailed, fmt.Errorf("%w: %s", ErrFileNotFound, path))
	}

	v := e.ValidatePatch(path, p)
	res.Warnings = v.Warnings
	if !v.IsValid() {
		return fail(StatusFailed, fmt.Errorf("%w: %s", ErrInvalidPatch, strings.Join(v.Errors, ", ")))
	}

	f, err := e.format(p.Type)
	if err != nil {
		return fail(StatusFailed, err)
	}

	info, err := e.fs.Stat(path)
	if err != nil {
		return fail(StatusFailed, fmt.Errorf("failed to stat %s: %w", path, err))
	}
	data, err := e.fs.ReadFile(path)
	if err != nil {
		return fail(StatusFailed, fmt.Errorf("failed to read %s: %w", path, err))
	}
	original := string(data)

	patched, err := f.Apply(original, p)
	if err != nil {
		return fail(StatusFailed, err)
	}

	if patched == original {
		res.Status = StatusUnchanged
		res.Success = true
		res.Message = NoChangesMessage
		log.Info("patch did not modify %s", path)
		return res, nil
	}

	if err := f.PostValidate(original, patched); err != nil {
		log.Error("%s patch rejected for %s: %v", p.Type, path, err)
		return fail(StatusRejected, fmt.Errorf("%w: %v", ErrPostValidation, err))
	}

	if dryRun {
		res.Status = StatusDryRun
		res.Success = true
		res.Modified = true
		res.Message = "Dry-run: patch would be applied successfully"
		res.Preview = Preview(original, patched)
		return res, nil
	}

	id, err := e.rollback.Create(path)
	if err != nil {
		return fail(StatusFailed, fmt.Errorf("failed to create rollback point: %w", err))
	}

	if err := e.fs.AtomicWrite(path, []byte(patched), info.Mode().Perm()); err != nil {
		_ = e.rollback.Cleanup(id)
		return fail(StatusFailed, fmt.Errorf("failed to write %s: %w", path, err))
	}

	res.Status = StatusApplied
	res.Success = true
	res.Modified = true
	res.RollbackID = id
	res.Message = "Patch applied successfully"
	log.Info("%s patch applied: %s", p.Type, path)
	return res, nil
}

// CreateRollbackPoint snapshots path and returns the rollback id.
func (e *Engine) CreateRollbackPoint(path string) (string, error) {
	if !e.fileExists(path) {
		return "", fmt.Errorf("cannot create rollback for %s: %w", path, ErrFileNotFound)
	}
	return e.rollback.Create(path)
}

// Rollback restores path from rollback point id.
func (e *Engine) Rollback(path, id string) error {
	if err := e.rollback.Restore(path, id); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			log.Error("rollback point %s not found", id)
		}
		return err
	}
	return nil
}

// CleanupRollback removes rollback point id. Unknown ids are ignored.
func (e *Engine) CleanupRollback(id string) error {
	return e.rollback.Cleanup(id)
}
