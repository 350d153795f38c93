package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
)

// RollbackList lists stored snapshots, oldest first.
func (e *Engine) RollbackList(ctx context.Context) (*RollbackListResult, error) {
	snaps, err := e.rollbacks.List()
	if err != nil {
		return nil, err
	}
	for i := range snaps {
		snaps[i].Path = e.rel(snaps[i].Path)
	}
	return &RollbackListResult{Dir: e.rollbacks.Dir(), Snapshots: snaps}, nil
}

// RollbackRestore writes a snapshot back to its file (or to req.File).
func (e *Engine) RollbackRestore(ctx context.Context, req *RollbackRestoreRequest) (*RollbackRestoreResult, error) {
	if strings.TrimSpace(req.ID) == "" {
		return nil, fmt.Errorf("%w: rollback id is required", ErrArgument)
	}

	snap, err := e.rollbacks.Get(req.ID)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %v", ErrNotFound, err)
		}
		return nil, err
	}

	target := snap.Path
	if req.File != "" {
		if target, err = e.resolver.Resolve(req.File); err != nil {
			return nil, err
		}
	}

	if err := e.patches.Rollback(target, req.ID); err != nil {
		return nil, err
	}
	return &RollbackRestoreResult{ID: req.ID, File: e.rel(target)}, nil
}

// RollbackClean removes one snapshot, snapshots older than a duration, or
// all of them.
func (e *Engine) RollbackClean(ctx context.Context, req *RollbackCleanRequest) (*RollbackCleanResult, error) {
	switch {
	case req.ID != "":
		if _, err := e.rollbacks.Get(req.ID); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("%w: %v", ErrNotFound, err)
			}
			return nil, err
		}
		if err := e.patches.CleanupRollback(req.ID); err != nil {
			return nil, err
		}
		return &RollbackCleanResult{Removed: []string{req.ID}}, nil

	case req.All:
		snaps, err := e.rollbacks.List()
		if err != nil {
			return nil, err
		}
		result := &RollbackCleanResult{Removed: []string{}}
		for _, snap := range snaps {
			if err := e.patches.CleanupRollback(snap.ID); err != nil {
				return result, err
			}
			result.Removed = append(result.Removed, snap.ID)
		}
		return result, nil

	case req.OlderThan != "":
		age, err := time.ParseDuration(req.OlderThan)
		if err != nil || age < 0 {
			return nil, fmt.Errorf("%w: invalid duration %q", ErrArgument, req.OlderThan)
		}
		removed, err := e.rollbacks.Prune(age)
		return &RollbackCleanResult{Removed: removed}, err

	default:
		return nil, fmt.Errorf("%w: specify a rollback id, --older-than or --all", ErrArgument)
	}
}
