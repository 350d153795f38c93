// Package validate checks preparation configs at four additive levels:
// Schema, FileExistence, UnityPackages and Full.
//
// Every failed check appends one Issue with a stable code. Warnings never
// affect validity. A higher level runs every check of the lower levels, so the
// error set only grows with the level.
package validate

import (
	"errors"
	"path"
	"path/filepath"
	"strings"

	"golang.org/x/mod/semver"

	"github.com/danieljhkim/buildprep/internal/clock"
	"github.com/danieljhkim/buildprep/internal/fsops"
	"github.com/danieljhkim/buildprep/internal/log"
	"github.com/danieljhkim/buildprep/internal/patch"
	"github.com/danieljhkim/buildprep/internal/prepconfig"
	"github.com/danieljhkim/buildprep/internal/repopath"
)

// Patcher is the part of the patch engine the Full level needs.
type Patcher interface {
	ValidatePatch(path string, p prepconfig.CodePatch) patch.ValidationResult
}

// Lookup resolves a cache source that may be stored as a "<name>@<hash>"
// directory. It returns the absolute path found.
type Lookup func(source string) (string, bool)

// Validator runs validation levels against a config.
type Validator struct {
	fs       fsops.FS
	resolver *repopath.Resolver
	patches  Patcher
	lookup   Lookup
	clock    clock.Clock
}

// New creates a Validator. lookup may be nil.
func New(fs fsops.FS, resolver *repopath.Resolver, patches Patcher, lookup Lookup, clk clock.Clock) *Validator {
	return &Validator{fs: fs, resolver: resolver, patches: patches, lookup: lookup, clock: clk}
}

// Validate runs every check up to and including level.
func (v *Validator) Validate(cfg *prepconfig.PreparationConfig, level Level) *Result {
	log.Debug("validating config at level %s", level)

	r := &Result{Level: level, Errors: []Issue{}, Warnings: []Issue{}}
	v.schema(cfg, r)
	if level >= FileExistence {
		v.fileExistence(cfg, r)
	}
	if level >= UnityPackages {
		v.unityPackages(cfg, r)
	}
	if level >= Full {
		v.codePatches(cfg, r)
	}

	r.finalize(v.clock.Now())
	log.Debug("validation complete: %d errors, %d warnings", len(r.Errors), len(r.Warnings))
	return r
}

func blank(s string) bool {
	return strings.TrimSpace(s) == ""
}

func (v *Validator) schema(cfg *prepconfig.PreparationConfig, r *Result) {
	if blank(cfg.Version) {
		r.addError("SCHEMA001", "", "Configuration version is required")
	}

	for _, p := range cfg.Packages {
		if blank(p.Name) {
			r.addError("SCHEMA002", "", "Package name is required")
		}
		if blank(p.Version) {
			r.addError("SCHEMA003", "", "Package version is required for: %s", p.Name)
		}
		if blank(p.Source) {
			r.addError("SCHEMA004", "", "Package source path is required for: %s", p.Name)
		}
		if blank(p.Target) {
			r.addError("SCHEMA005", "", "Package target path is required for: %s", p.Name)
		}
	}

	for _, a := range cfg.Assemblies {
		if blank(a.Name) {
			r.addError("SCHEMA006", "", "Assembly name is required")
		}
		if blank(a.Source) {
			r.addError("SCHEMA007", "", "Assembly source path is required for: %s", a.Name)
		}
		if blank(a.Target) {
			r.addError("SCHEMA008", "", "Assembly target path is required for: %s", a.Name)
		}
	}

	for _, p := range cfg.CodePatches {
		if blank(p.File) {
			r.addError("SCHEMA009", "", "Code patch file path is required")
		}
		if blank(p.Search) && !patch.AllowsEmptySearch(p) {
			r.addError("SCHEMA010", p.File, "Code patch search pattern is required for: %s", p.File)
		}
		if _, err := patch.FormatFor(p.Type); err != nil {
			r.addError("SCHEMA013", p.File, "Unknown patch type %q for: %s", p.Type, p.File)
		}
	}

	for _, m := range cfg.AssetManipulations {
		if blank(m.Target) {
			r.addError("SCHEMA011", "", "Asset manipulation target path is required (%s)", m.Operation)
		}
		if (m.Operation == prepconfig.AssetCopy || m.Operation == prepconfig.AssetMove) && blank(m.Source) {
			r.addError("SCHEMA012", m.Target, "Asset %s requires a source path: %s", strings.ToLower(string(m.Operation)), m.Target)
		}
	}
}

// withinRoot reports FILE005 for a path that escapes the repository root.
func (v *Validator) withinRoot(p string, r *Result) bool {
	if blank(p) {
		return false
	}
	if err := v.resolver.ValidateWithinRoot(p); err != nil {
		if errors.Is(err, repopath.ErrPathOutsideRoot) {
			r.addError("FILE005", p, "Path is outside the repository root: %s", p)
		}
		return false
	}
	return true
}

func (v *Validator) sourceExists(source string) bool {
	if v.resolver.Exists(source) {
		return true
	}
	if v.lookup != nil {
		_, ok := v.lookup(source)
		return ok
	}
	return false
}

func (v *Validator) fileExistence(cfg *prepconfig.PreparationConfig, r *Result) {
	for _, p := range cfg.Packages {
		v.withinRoot(p.Target, r)
		if v.withinRoot(p.Source, r) && !v.sourceExists(p.Source) {
			r.addError("FILE001", p.Source, "Package source file not found: %s", p.Source)
		}
	}

	for _, a := range cfg.Assemblies {
		v.withinRoot(a.Target, r)
		if v.withinRoot(a.Source, r) && !v.resolver.FileExists(a.Source) {
			r.addError("FILE002", a.Source, "Assembly source file not found: %s", a.Source)
		}
	}

	// Sources may be produced by an earlier manipulation in the same run.
	produced := make(map[string]bool)
	for _, m := range cfg.AssetManipulations {
		v.withinRoot(m.Target, r)
		switch m.Operation {
		case prepconfig.AssetCopy, prepconfig.AssetMove:
			if v.withinRoot(m.Source, r) && !produced[repopath.Normalize(m.Source)] && !v.resolver.Exists(m.Source) {
				r.addError("FILE006", m.Source, "Asset %s source not found: %s", strings.ToLower(string(m.Operation)), m.Source)
			}
			produced[repopath.Normalize(m.Target)] = true
		case prepconfig.AssetDelete:
			delete(produced, repopath.Normalize(m.Target))
		}
	}

	for _, p := range cfg.CodePatches {
		if !v.withinRoot(p.File, r) || v.resolver.FileExists(p.File) {
			continue
		}
		if p.Optional {
			r.addWarning("FILE003", p.File, "Optional patch target file not found: %s", p.File)
		} else {
			r.addError("FILE004", p.File, "Patch target file not found: %s", p.File)
		}
	}
}

func (v *Validator) unityPackages(cfg *prepconfig.PreparationConfig, r *Result) {
	for _, p := range cfg.Packages {
		if !blank(p.Name) && !strings.ContainsAny(p.Name, "-.") {
			r.addWarning("PKG003", p.Source, "Unity package name should follow the reverse-domain convention (e.g. com.company.package): %s", p.Name)
		}
		if !blank(p.Version) && !semver.IsValid("v"+strings.TrimPrefix(p.Version, "v")) {
			r.addWarning("PKG004", p.Source, "Unity package version is not valid semver: %s (%s)", p.Version, p.Name)
		}

		if blank(p.Source) {
			continue
		}
		abs, ok := v.packagePath(p.Source)
		if !ok {
			continue
		}
		info, err := v.fs.Stat(abs)
		if err != nil || info.IsDir() {
			continue
		}
		if !strings.EqualFold(filepath.Ext(abs), ".tgz") {
			r.addError("PKG001", p.Source, "Unity package must be a .tgz file or a package directory: %s", p.Source)
			continue
		}
		if info.Size() == 0 {
			r.addError("PKG002", p.Source, "Unity package file is empty: %s", p.Source)
		}
	}
}

func (v *Validator) packagePath(source string) (string, bool) {
	if err := v.resolver.ValidateWithinRoot(source); err != nil {
		return "", false
	}
	if abs, err := v.resolver.Resolve(source); err == nil && v.resolver.Exists(source) {
		return abs, true
	}
	if v.lookup != nil {
		return v.lookup(source)
	}
	return "", false
}

var patchExtensions = map[prepconfig.PatchType][]string{
	prepconfig.PatchCSharp:     {".cs"},
	prepconfig.PatchJSON:       {".json", ".asmdef", ".asmref"},
	prepconfig.PatchUnityAsset: {".asset", ".prefab", ".unity", ".mat", ".meta"},
}

func extensionMatches(t prepconfig.PatchType, file string) bool {
	exts, ok := patchExtensions[t]
	if !ok {
		return true
	}
	ext := strings.ToLower(path.Ext(repopath.Normalize(file)))
	for _, e := range exts {
		if ext == e {
			return true
		}
	}
	return false
}

func (v *Validator) codePatches(cfg *prepconfig.PreparationConfig, r *Result) {
	for _, p := range cfg.CodePatches {
		if blank(p.File) || v.resolver.ValidateWithinRoot(p.File) != nil || !v.resolver.FileExists(p.File) {
			continue
		}
		if _, err := patch.FormatFor(p.Type); err != nil {
			continue
		}

		if !extensionMatches(p.Type, p.File) {
			r.addWarning("PATCH001", p.File, "Patch type '%s' may not match file extension '%s': %s", p.Type, path.Ext(p.File), p.File)
		}

		if p.Type == prepconfig.PatchText && patch.IsRegexPattern(p.Search) {
			if _, err := patch.CompileSearch(p.Search); err != nil {
				r.Errors = append(r.Errors, Issue{
					Code:    "PATCH002",
					Message: "Invalid regex pattern in patch search: " + err.Error(),
					File:    p.File,
					Context: p.Search,
				})
				continue
			}
		}

		if v.patches == nil {
			continue
		}
		abs, err := v.resolver.Resolve(p.File)
		if err != nil {
			continue
		}
		res := v.patches.ValidatePatch(abs, p)
		if !res.TargetFound && !blank(p.Search) {
			r.Warnings = append(r.Warnings, Issue{
				Code:    "PATCH003",
				Message: "Patch target not found in current file (already applied or pattern changed): " + p.File,
				File:    p.File,
				Context: p.Search,
			})
		}
		for _, msg := range res.Errors {
			r.addError("PATCH004", p.File, "Patch cannot be applied to %s: %s", p.File, msg)
		}
	}
}
