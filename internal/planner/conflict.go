package planner

import (
	"fmt"
	"path/filepath"

	"github.com/danieljhkim/buildprep/internal/fsops"
)

// virtualEntry is the state of a path after a recorded operation. origin is
// the path a copied or moved tree came from.
type virtualEntry struct {
	exists bool
	origin string
	seq    int
}

// ConflictChecker checks planned operations against the filesystem as it will
// look at that point of the run. Operations already planned are recorded in a
// virtual existence map layered over the real filesystem.
type ConflictChecker struct {
	fs      fsops.FS
	virtual map[string][]virtualEntry
	seq     int
}

// NewConflictChecker creates a new ConflictChecker.
func NewConflictChecker(fs fsops.FS) *ConflictChecker {
	return &ConflictChecker{
		fs:      fs,
		virtual: make(map[string][]virtualEntry),
	}
}

// Exists reports whether abs will exist when the next operation runs.
func (c *ConflictChecker) Exists(abs string) bool {
	return c.existsAt(filepath.Clean(abs), c.seq+1)
}

// existsAt answers Exists as of just before operation number before.
func (c *ConflictChecker) existsAt(abs string, before int) bool {
	for p := abs; ; p = filepath.Dir(p) {
		if e, ok := c.lookup(p, before); ok {
			if !e.exists {
				return false
			}
			if p == abs {
				return true
			}
			if e.origin == "" {
				break
			}
			rel, err := filepath.Rel(p, abs)
			if err != nil {
				return false
			}
			return c.existsAt(filepath.Join(e.origin, rel), e.seq)
		}
		if filepath.Dir(p) == p {
			break
		}
	}

	exists, err := c.fs.Exists(abs)
	return err == nil && exists
}

func (c *ConflictChecker) lookup(p string, before int) (virtualEntry, bool) {
	entries := c.virtual[p]
	for i := len(entries) - 1; i >= 0; i-- {
		if entries[i].seq < before {
			return entries[i], true
		}
	}
	return virtualEntry{}, false
}

// Check returns a Conflict if op cannot run, or nil if it is safe.
func (c *ConflictChecker) Check(op Operation) *Conflict {
	switch op.Type {
	case OpCopy, OpMove:
		if !c.Exists(op.Source) {
			return &Conflict{
				Path:   op.Source,
				Reason: fmt.Sprintf("%s source not found", op.Kind),
			}
		}
		if !op.Overwrite && c.Exists(op.Target) {
			return &Conflict{
				Path:   op.RelTarget,
				Reason: "Target exists and overwrite is disabled",
			}
		}
	case OpPatch:
		if !op.Optional && !c.Exists(op.Target) {
			return &Conflict{
				Path:   op.RelTarget,
				Reason: "Patch target file not found",
			}
		}
	}
	return nil
}

// Record applies the effect of op to the virtual existence map.
func (c *ConflictChecker) Record(op Operation) {
	c.seq++
	set := func(p string, e virtualEntry) {
		p = filepath.Clean(p)
		e.seq = c.seq
		c.virtual[p] = append(c.virtual[p], e)
	}

	switch op.Type {
	case OpCopy:
		set(op.Target, virtualEntry{exists: true, origin: filepath.Clean(op.Source)})
	case OpMove:
		set(op.Source, virtualEntry{exists: false})
		set(op.Target, virtualEntry{exists: true, origin: filepath.Clean(op.Source)})
	case OpDelete:
		set(op.Target, virtualEntry{exists: false})
	}
}
