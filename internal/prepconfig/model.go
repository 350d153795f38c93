// Package prepconfig defines the preparation configuration model and its
// on-disk store.
//
// Two schema generations exist: a flat single-stage config (version 1.x) and
// a multi-stage config (version 2.x) whose stages can be projected down to the
// flat shape so one orchestrator runs both. The package also owns preparation
// manifests (what to pull into the cache) and batch manifests (bulk input for
// source and injection registration).
package prepconfig

import (
	"encoding/json"
	"strings"
)

// Schema versions written by CreateNew and CreateMultiStage.
const (
	VersionV1 = "1.0"
	VersionV2 = "2.0"
)

// CanonicalStages are the stage names the build host invokes, in order.
var CanonicalStages = []string{"preTest", "preBuild", "postBuild", "preNativeBuild", "postNativeBuild"}

// UnityPackageReference maps a cached package archive into the client project.
type UnityPackageReference struct {
	Name    string `json:"name" yaml:"name"`
	Version string `json:"version" yaml:"version"`
	Source  string `json:"source" yaml:"source"`
	Target  string `json:"target" yaml:"target"`
}

// AssemblyReference maps a cached assembly into the client project.
type AssemblyReference struct {
	Name    string `json:"name" yaml:"name"`
	Version string `json:"version,omitempty" yaml:"version,omitempty"`
	Source  string `json:"source" yaml:"source"`
	Target  string `json:"target" yaml:"target"`
}

// AssetManipulation is a single copy, move or delete in the client tree.
type AssetManipulation struct {
	Operation   AssetOperation `json:"operation"`
	Source      string         `json:"source,omitempty"`
	Target      string         `json:"target"`
	Overwrite   bool           `json:"overwrite"`
	Description string         `json:"description,omitempty"`
}

// CodePatch is one atomic edit attempt against a file.
type CodePatch struct {
	File        string    `json:"file"`
	Type        PatchType `json:"type"`
	Search      string    `json:"search"`
	Replace     string    `json:"replace"`
	Mode        PatchMode `json:"mode,omitempty"`
	Operation   string    `json:"operation,omitempty"`
	Optional    bool      `json:"optional,omitempty"`
	Description string    `json:"description,omitempty"`
}

// EffectiveMode returns the patch mode, defaulting to Replace.
func (p CodePatch) EffectiveMode() PatchMode {
	if p.Mode == "" {
		return ModeReplace
	}
	return p.Mode
}

// ScriptingDefineSymbols lists compiler define changes for the client project.
type ScriptingDefineSymbols struct {
	Add           []string `json:"add"`
	Remove        []string `json:"remove"`
	Platform      string   `json:"platform,omitempty"`
	ClearExisting bool     `json:"clearExisting"`
}

// PreparationConfig is the flat (v1) configuration.
type PreparationConfig struct {
	Version                string                  `json:"version"`
	Description            string                  `json:"description,omitempty"`
	Packages               []UnityPackageReference `json:"packages"`
	Assemblies             []AssemblyReference     `json:"assemblies"`
	AssetManipulations     []AssetManipulation     `json:"assetManipulations"`
	CodePatches            []CodePatch             `json:"codePatches"`
	ScriptingDefineSymbols *ScriptingDefineSymbols `json:"scriptingDefineSymbols,omitempty"`
}

// MultiStageConfig is the staged (v2) configuration.
type MultiStageConfig struct {
	Version         string           `json:"version"`
	Description     string           `json:"description,omitempty"`
	CacheSource     string           `json:"cacheSource,omitempty"`
	InjectionStages []InjectionStage `json:"injectionStages"`
}

// InjectionStage is one independently enable-able phase of a v2 config.
type InjectionStage struct {
	Name                   string                    `json:"name"`
	Enabled                bool                      `json:"enabled"`
	Description            string                    `json:"description,omitempty"`
	CleanupAfter           bool                      `json:"cleanupAfter"`
	Packages               []UnityPackageReference   `json:"packages"`
	Assemblies             []AssemblyReference       `json:"assemblies"`
	AssetManipulations     []AssetManipulation       `json:"assetManipulations"`
	CodePatches            []CodePatch               `json:"codePatches"`
	ScriptingDefineSymbols *ScriptingDefineSymbols   `json:"scriptingDefineSymbols,omitempty"`
	Platforms              map[string]PlatformConfig `json:"platforms,omitempty"`
}

// UnmarshalJSON defaults Enabled to true when absent.
func (s *InjectionStage) UnmarshalJSON(data []byte) error {
	type alias InjectionStage
	a := alias{Enabled: true}
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	*s = InjectionStage(a)
	return nil
}

// PlatformConfig holds per-platform additions to a stage.
type PlatformConfig struct {
	Enabled     bool            `json:"enabled"`
	Files       []FileOperation `json:"files"`
	CodePatches []CodePatch     `json:"codePatches"`
	Commands    []string        `json:"commands"`
}

// UnmarshalJSON defaults Enabled to true when absent.
func (p *PlatformConfig) UnmarshalJSON(data []byte) error {
	type alias PlatformConfig
	a := alias{Enabled: true}
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	*p = PlatformConfig(a)
	return nil
}

// FileOperation is a platform-specific file copy.
type FileOperation struct {
	Source string `json:"source"`
	Target string `json:"target"`
}

// normalize replaces nil lists with empty ones so saved files always carry them.
func (c *PreparationConfig) normalize() {
	if c.Packages == nil {
		c.Packages = []UnityPackageReference{}
	}
	if c.Assemblies == nil {
		c.Assemblies = []AssemblyReference{}
	}
	if c.AssetManipulations == nil {
		c.AssetManipulations = []AssetManipulation{}
	}
	if c.CodePatches == nil {
		c.CodePatches = []CodePatch{}
	}
}

func (c *MultiStageConfig) normalize() {
	if c.InjectionStages == nil {
		c.InjectionStages = []InjectionStage{}
	}
	for i := range c.InjectionStages {
		st := &c.InjectionStages[i]
		if st.Packages == nil {
			st.Packages = []UnityPackageReference{}
		}
		if st.Assemblies == nil {
			st.Assemblies = []AssemblyReference{}
		}
		if st.AssetManipulations == nil {
			st.AssetManipulations = []AssetManipulation{}
		}
		if st.CodePatches == nil {
			st.CodePatches = []CodePatch{}
		}
	}
}

// AddPackage appends a package reference. A reference with the same name and
// version is replaced in place so insertion order is kept.
func (c *PreparationConfig) AddPackage(ref UnityPackageReference) {
	for i, p := range c.Packages {
		if p.Name == ref.Name && p.Version == ref.Version {
			c.Packages[i] = ref
			return
		}
	}
	c.Packages = append(c.Packages, ref)
}

// RemovePackage removes every package with the given name and reports whether any was removed.
func (c *PreparationConfig) RemovePackage(name string) bool {
	kept := c.Packages[:0]
	removed := false
	for _, p := range c.Packages {
		if p.Name == name {
			removed = true
			continue
		}
		kept = append(kept, p)
	}
	c.Packages = kept
	return removed
}

// AddAssembly appends an assembly reference, replacing one with the same name in place.
func (c *PreparationConfig) AddAssembly(ref AssemblyReference) {
	for i, a := range c.Assemblies {
		if a.Name == ref.Name {
			c.Assemblies[i] = ref
			return
		}
	}
	c.Assemblies = append(c.Assemblies, ref)
}

// RemoveAssembly removes the assembly with the given name and reports whether it existed.
func (c *PreparationConfig) RemoveAssembly(name string) bool {
	for i, a := range c.Assemblies {
		if a.Name == name {
			c.Assemblies = append(c.Assemblies[:i], c.Assemblies[i+1:]...)
			return true
		}
	}
	return false
}

// AddAssetManipulation appends an asset manipulation.
func (c *PreparationConfig) AddAssetManipulation(m AssetManipulation) {
	c.AssetManipulations = append(c.AssetManipulations, m)
}

// AddPatch appends a code patch.
func (c *PreparationConfig) AddPatch(p CodePatch) {
	c.CodePatches = append(c.CodePatches, p)
}

// AddDefineSymbol adds symbol to the define list, creating the block if needed.
// Duplicates are ignored.
func (c *PreparationConfig) AddDefineSymbol(symbol, platform string) {
	if c.ScriptingDefineSymbols == nil {
		c.ScriptingDefineSymbols = &ScriptingDefineSymbols{
			Add:      []string{},
			Remove:   []string{},
			Platform: platform,
		}
	}
	for _, s := range c.ScriptingDefineSymbols.Add {
		if s == symbol {
			return
		}
	}
	c.ScriptingDefineSymbols.Add = append(c.ScriptingDefineSymbols.Add, symbol)
}

// FindStage returns the stage matching name case-insensitively.
func (c *MultiStageConfig) FindStage(name string) (*InjectionStage, bool) {
	for i := range c.InjectionStages {
		if strings.EqualFold(c.InjectionStages[i].Name, name) {
			return &c.InjectionStages[i], true
		}
	}
	return nil, false
}

// StageNames returns the stage names in declaration order.
func (c *MultiStageConfig) StageNames() []string {
	names := make([]string, 0, len(c.InjectionStages))
	for _, s := range c.InjectionStages {
		names = append(names, s.Name)
	}
	return names
}
