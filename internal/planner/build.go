package planner

import (
	"fmt"

	"github.com/danieljhkim/buildprep/internal/fsops"
	"github.com/danieljhkim/buildprep/internal/prepconfig"
	"github.com/danieljhkim/buildprep/internal/repopath"
)

// Lookup resolves a cache source stored under a different on-disk name
// (a "<name>@<hash>" directory). It may be nil.
type Lookup func(source string) (string, bool)

// BuildPlan generates the deterministic operation plan for cfg: packages,
// then assemblies, then asset manipulations, then code patches, each in list
// order. Paths that escape the repository root fail the plan.
func BuildPlan(cfg *prepconfig.PreparationConfig, resolver *repopath.Resolver, fs fsops.FS, lookup Lookup) (*Plan, error) {
	plan := NewPlan()
	checker := NewConflictChecker(fs)

	// resolve anchors p to the root. Absolute paths are accepted by the
	// resolver but must still land inside the root, and the root itself is
	// never an operation target.
	resolve := func(p string) (abs, rel string, err error) {
		abs, err = resolver.Resolve(p)
		if err != nil {
			return "", "", err
		}
		if err = resolver.ValidateWithinRoot(abs); err != nil {
			return "", "", err
		}
		rel, err = resolver.MakeRelative(abs)
		if err != nil {
			return "", "", err
		}
		if err = fs.ValidateRelPath(rel); err != nil {
			return "", "", err
		}
		return abs, rel, nil
	}

	source := func(p string) (string, error) {
		abs, _, err := resolve(p)
		if err != nil {
			return "", err
		}
		if lookup != nil && !checker.Exists(abs) {
			if found, ok := lookup(p); ok {
				return found, nil
			}
		}
		return abs, nil
	}

	add := func(op Operation) {
		if conflict := checker.Check(op); conflict != nil {
			plan.AddConflict(*conflict)
		}
		checker.Record(op)
		plan.AddOperation(op)
	}

	for i, p := range cfg.Packages {
		src, err := source(p.Source)
		if err != nil {
			return nil, fmt.Errorf("package %s: %w", p.Name, err)
		}
		dst, rel, err := resolve(p.Target)
		if err != nil {
			return nil, fmt.Errorf("package %s: %w", p.Name, err)
		}
		add(Operation{Type: OpCopy, Kind: "package", Source: src, Target: dst, RelTarget: rel, Overwrite: true, Index: i})
	}

	for i, a := range cfg.Assemblies {
		src, err := source(a.Source)
		if err != nil {
			return nil, fmt.Errorf("assembly %s: %w", a.Name, err)
		}
		dst, rel, err := resolve(a.Target)
		if err != nil {
			return nil, fmt.Errorf("assembly %s: %w", a.Name, err)
		}
		add(Operation{Type: OpCopy, Kind: "assembly", Source: src, Target: dst, RelTarget: rel, Overwrite: true, Index: i})
	}

	for i, m := range cfg.AssetManipulations {
		dst, rel, err := resolve(m.Target)
		if err != nil {
			return nil, fmt.Errorf("asset manipulation %d: %w", i, err)
		}
		op := Operation{Kind: "asset", Target: dst, RelTarget: rel, Overwrite: m.Overwrite, Index: i}

		switch m.Operation {
		case prepconfig.AssetCopy, prepconfig.AssetMove:
			op.Type = OpCopy
			if m.Operation == prepconfig.AssetMove {
				op.Type = OpMove
			}
			if op.Source, err = source(m.Source); err != nil {
				return nil, fmt.Errorf("asset manipulation %d: %w", i, err)
			}
		case prepconfig.AssetDelete:
			op.Type = OpDelete
		default:
			return nil, fmt.Errorf("asset manipulation %d: unknown operation %q", i, m.Operation)
		}
		add(op)
	}

	for i, p := range cfg.CodePatches {
		dst, rel, err := resolve(p.File)
		if err != nil {
			return nil, fmt.Errorf("code patch %s: %w", p.File, err)
		}
		add(Operation{Type: OpPatch, Kind: "patch", Target: dst, RelTarget: rel, Optional: p.Optional, Index: i})
	}

	return plan, nil
}
