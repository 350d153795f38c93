package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danieljhkim/buildprep/internal/patch"
	"github.com/danieljhkim/buildprep/internal/prepconfig"
	"github.com/danieljhkim/buildprep/internal/repopath"
)

// seedClientTree writes the files fullConfig expects.
func seedClientTree(env *testEnv) {
	env.write("cache/com.acme.core-1.0.0.tgz", "tgz-bytes")
	env.write("cache/Acme.Util.dll", "dll-bytes")
	env.write("assets/logo.png", "png")
	env.write("projects/client/Assets/old.txt", "old")
	env.write("projects/client/Assets/obsolete/a.txt", "a")
	env.write("projects/client/Assets/Game.cs", "class OLD_NAME {}\n")
}

func fullConfig() *prepconfig.PreparationConfig {
	cfg := prepconfig.CreateNew("full run")
	cfg.Packages = []prepconfig.UnityPackageReference{{
		Name:    "com.acme.core",
		Version: "1.0.0",
		Source:  "cache/com.acme.core-1.0.0.tgz",
		Target:  "projects/client/Packages/com.acme.core-1.0.0.tgz",
	}}
	cfg.Assemblies = []prepconfig.AssemblyReference{{
		Name:   "Acme.Util",
		Source: "cache/Acme.Util.dll",
		Target: "projects/client/Assets/Plugins/Acme.Util.dll",
	}}
	cfg.AssetManipulations = []prepconfig.AssetManipulation{
		{Operation: prepconfig.AssetCopy, Source: "assets/logo.png", Target: "projects/client/Assets/logo.png"},
		{Operation: prepconfig.AssetMove, Source: "projects/client/Assets/old.txt", Target: "projects/client/Assets/new.txt"},
		{Operation: prepconfig.AssetDelete, Target: "projects/client/Assets/obsolete"},
		{Operation: prepconfig.AssetDelete, Target: "projects/client/Assets/never-existed"},
	}
	cfg.CodePatches = []prepconfig.CodePatch{
		{File: "projects/client/Assets/Game.cs", Type: prepconfig.PatchText, Search: "OLD_NAME", Replace: "NEW_NAME"},
		{File: "projects/client/Assets/Missing.cs", Type: prepconfig.PatchText, Search: "x", Replace: "y", Optional: true},
	}
	return cfg
}

func TestRun_AppliesOperationsInOrder(t *testing.T) {
	env := newTestEngine(t)
	seedClientTree(env)

	result, err := env.engine.Run(context.Background(), fullConfig(), RunOptions{})
	require.NoError(t, err)

	assert.Equal(t, 3, result.Copied)
	assert.Equal(t, 1, result.Moved)
	assert.Equal(t, 2, result.Deleted)
	assert.Equal(t, 1, result.Patched)
	assert.Equal(t, 1, result.Skipped)
	assert.False(t, result.DryRun)
	assert.Equal(t, []string{
		"projects/client/Packages/com.acme.core-1.0.0.tgz",
		"projects/client/Assets/Plugins/Acme.Util.dll",
		"projects/client/Assets/logo.png",
		"projects/client/Assets/new.txt",
	}, result.Created)

	assert.Equal(t, "tgz-bytes", env.read("projects/client/Packages/com.acme.core-1.0.0.tgz"))
	assert.Equal(t, "dll-bytes", env.read("projects/client/Assets/Plugins/Acme.Util.dll"))
	assert.Equal(t, "png", env.read("projects/client/Assets/logo.png"))
	assert.Equal(t, "old", env.read("projects/client/Assets/new.txt"))
	assert.False(t, env.exists("projects/client/Assets/old.txt"))
	assert.False(t, env.exists("projects/client/Assets/obsolete"))
	assert.Equal(t, "class NEW_NAME {}\n", env.read("projects/client/Assets/Game.cs"))

	require.Len(t, result.Patches, 2)
	applied := result.Patches[0]
	assert.Equal(t, "projects/client/Assets/Game.cs", applied.File)
	assert.Equal(t, patch.StatusApplied, applied.Status)
	assert.NotEmpty(t, applied.RollbackID)
	assert.Equal(t, patch.StatusSkipped, result.Patches[1].Status)
}

func TestRun_DryRunWritesNothing(t *testing.T) {
	env := newTestEngine(t)
	seedClientTree(env)
	before := env.snapshot()

	result, err := env.engine.Run(context.Background(), fullConfig(), RunOptions{DryRun: true})
	require.NoError(t, err)

	assert.Equal(t, before, env.snapshot())
	assert.True(t, result.DryRun)
	assert.Equal(t, 3, result.Copied)
	assert.Equal(t, 1, result.Moved)
	assert.Equal(t, 2, result.Deleted)
	assert.Equal(t, 1, result.Patched)

	require.NotEmpty(t, result.Patches)
	assert.Equal(t, patch.StatusDryRun, result.Patches[0].Status)
	assert.Contains(t, result.Patches[0].Preview, "NEW_NAME")
	assert.Empty(t, result.Patches[0].RollbackID)
}

func TestRun_ConflictStopsBeforeAnyChange(t *testing.T) {
	env := newTestEngine(t)
	seedClientTree(env)
	env.write("projects/client/Assets/logo.png", "existing")
	before := env.snapshot()

	cfg := fullConfig()
	result, err := env.engine.Run(context.Background(), cfg, RunOptions{})
	require.ErrorIs(t, err, ErrConflict)

	require.NotNil(t, result)
	require.Len(t, result.Plan.Conflicts, 1)
	assert.Equal(t, "projects/client/Assets/logo.png", result.Plan.Conflicts[0].Path)
	assert.Equal(t, 0, result.Total())
	assert.Equal(t, before, env.snapshot())
}

func TestRun_OverwriteReplacesExistingTarget(t *testing.T) {
	env := newTestEngine(t)
	env.write("assets/logo.png", "new")
	env.write("projects/client/Assets/logo.png", "old")

	cfg := prepconfig.CreateNew("")
	cfg.AssetManipulations = []prepconfig.AssetManipulation{
		{Operation: prepconfig.AssetCopy, Source: "assets/logo.png", Target: "projects/client/Assets/logo.png", Overwrite: true},
	}

	result, err := env.engine.Run(context.Background(), cfg, RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Copied)
	assert.Empty(t, result.Created)
	assert.Equal(t, "new", env.read("projects/client/Assets/logo.png"))
}

func TestRun_PatchFailures(t *testing.T) {
	tests := []struct {
		name     string
		optional bool
		wantErr  bool
	}{
		{name: "required patch fails the run", optional: false, wantErr: true},
		{name: "optional patch is skipped", optional: true, wantErr: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEngine(t)
			env.write("src/A.cs", "class A {}\n")

			cfg := prepconfig.CreateNew("")
			cfg.CodePatches = []prepconfig.CodePatch{
				{File: "src/A.cs", Type: prepconfig.PatchText, Search: "foo(", Replace: "bar", Optional: tt.optional},
			}

			result, err := env.engine.Run(context.Background(), cfg, RunOptions{})
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, patch.ErrInvalidPatch)
				assert.Contains(t, err.Error(), "src/A.cs")
			} else {
				require.NoError(t, err)
				assert.Equal(t, 1, result.Skipped)
			}
			require.Len(t, result.Patches, 1)
			assert.Equal(t, patch.StatusFailed, result.Patches[0].Status)
			assert.Equal(t, "class A {}\n", env.read("src/A.cs"))
		})
	}
}

func TestRun_Canceled(t *testing.T) {
	env := newTestEngine(t)
	seedClientTree(env)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := env.engine.Run(ctx, fullConfig(), RunOptions{})
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, result.Total())
	assert.False(t, env.exists("projects/client/Assets/logo.png"))
}

func TestRun_ResolvesHashedCacheDirectory(t *testing.T) {
	env := newTestEngine(t)
	env.write("cache/com.acme.tools@beef/package.json", `{"name":"com.acme.tools"}`)

	cfg := prepconfig.CreateNew("")
	cfg.Packages = []prepconfig.UnityPackageReference{{
		Name:    "com.acme.tools",
		Version: "2.0.0",
		Source:  "cache/com.acme.tools",
		Target:  "projects/client/Packages/com.acme.tools",
	}}

	result, err := env.engine.Run(context.Background(), cfg, RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Copied)
	assert.Equal(t, `{"name":"com.acme.tools"}`, env.read("projects/client/Packages/com.acme.tools/package.json"))
}

func TestRun_DryRunPatchOnFileCreatedByRun(t *testing.T) {
	env := newTestEngine(t)
	env.write("templates/Boot.cs", "class Boot {}\n")

	cfg := prepconfig.CreateNew("")
	cfg.AssetManipulations = []prepconfig.AssetManipulation{
		{Operation: prepconfig.AssetCopy, Source: "templates/Boot.cs", Target: "projects/client/Assets/Boot.cs"},
	}
	cfg.CodePatches = []prepconfig.CodePatch{
		{File: "projects/client/Assets/Boot.cs", Type: prepconfig.PatchText, Search: "Boot", Replace: "Start"},
	}

	result, err := env.engine.Run(context.Background(), cfg, RunOptions{DryRun: true})
	require.NoError(t, err)
	require.Len(t, result.Patches, 1)
	assert.Equal(t, patch.StatusDryRun, result.Patches[0].Status)
	assert.Equal(t, 1, result.Patched)
	assert.False(t, env.exists("projects/client/Assets/Boot.cs"))
}

func TestRun_RefusesPathsOutsideRoot(t *testing.T) {
	env := newTestEngine(t)
	env.write("src.txt", "src")
	require.NoError(t, env.fs.AtomicWrite("/outside/victim.txt", []byte("victim"), 0644))

	cfg := prepconfig.CreateNew("escape")
	cfg.AssetManipulations = []prepconfig.AssetManipulation{
		{Operation: prepconfig.AssetDelete, Target: "/outside/victim.txt"},
		{Operation: prepconfig.AssetCopy, Source: "src.txt", Target: "/outside/planted.txt"},
	}

	result, err := env.engine.Run(context.Background(), cfg, RunOptions{})
	require.Error(t, err)
	assert.ErrorIs(t, err, repopath.ErrPathOutsideRoot)
	assert.Nil(t, result)

	victim, err := env.fs.Exists("/outside/victim.txt")
	require.NoError(t, err)
	assert.True(t, victim)
	planted, err := env.fs.Exists("/outside/planted.txt")
	require.NoError(t, err)
	assert.False(t, planted)
}

func TestRun_AbsoluteTargetInsideRootIsRecordedRelative(t *testing.T) {
	env := newTestEngine(t)
	env.write("src.txt", "src")

	cfg := prepconfig.CreateNew("absolute")
	cfg.AssetManipulations = []prepconfig.AssetManipulation{
		{Operation: prepconfig.AssetCopy, Source: "src.txt", Target: testRoot + "/out/dst.txt"},
	}

	result, err := env.engine.Run(context.Background(), cfg, RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"out/dst.txt"}, result.Created)
	assert.Equal(t, "src", env.read("out/dst.txt"))
}
