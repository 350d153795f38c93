package engine

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danieljhkim/buildprep/internal/config"
	"github.com/danieljhkim/buildprep/internal/prepconfig"
	"github.com/danieljhkim/buildprep/internal/repopath"
	"github.com/danieljhkim/buildprep/internal/state"
	"github.com/danieljhkim/buildprep/internal/validate"
)

// writeStagedConfig writes a v2 config with an enabled preBuild stage and a
// disabled postBuild stage to the default config path.
func writeStagedConfig(env *testEnv) {
	env.write("cache/com.acme.core-1.0.0.tgz", "tgz-bytes")
	env.write("assets/logo.png", "png")
	env.write("platform/android/config.xml", "<config/>")
	env.write("projects/client/Assets/Game.cs", "class OLD_NAME {}\n")

	cfg := prepconfig.CreateMultiStage("staged")
	cfg.InjectionStages = []prepconfig.InjectionStage{
		{
			Name:    "preBuild",
			Enabled: true,
			Packages: []prepconfig.UnityPackageReference{{
				Name:    "com.acme.core",
				Version: "1.0.0",
				Source:  "cache/com.acme.core-1.0.0.tgz",
				Target:  "projects/client/Packages/com.acme.core-1.0.0.tgz",
			}},
			AssetManipulations: []prepconfig.AssetManipulation{
				{Operation: prepconfig.AssetCopy, Source: "assets/logo.png", Target: "projects/client/Assets/logo.png"},
			},
			CodePatches: []prepconfig.CodePatch{
				{File: "projects/client/Assets/Game.cs", Type: prepconfig.PatchText, Search: "OLD_NAME", Replace: "NEW_NAME"},
			},
			Platforms: map[string]prepconfig.PlatformConfig{
				"android": {
					Enabled: true,
					Files: []prepconfig.FileOperation{
						{Source: "platform/android/config.xml", Target: "projects/client/Assets/Plugins/Android/config.xml"},
					},
					Commands: []string{"gradle assembleRelease"},
				},
			},
		},
		{
			Name:         "postBuild",
			Enabled:      false,
			CleanupAfter: true,
		},
	}
	env.writeJSON(config.DefaultConfigPath, cfg)
}

func injectStage(stage string) *InjectRequest {
	return &InjectRequest{
		PrepareRequest: PrepareRequest{Stage: stage},
		Target:         "projects/client/",
	}
}

func TestInject_Target(t *testing.T) {
	tests := []struct {
		target  string
		wantErr bool
	}{
		{"projects/client", false},
		{"projects/client/", false},
		{"./projects/client/", false},
		{"projects/other", true},
		{"projects", true},
		{"", true},
	}

	for _, tt := range tests {
		t.Run(tt.target, func(t *testing.T) {
			env := newTestEngine(t)
			writeStagedConfig(env)

			req := injectStage("preBuild")
			req.Target = tt.target
			req.DryRun = true

			_, err := env.engine.Inject(context.Background(), req)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrArgument)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestInject_UnknownStage(t *testing.T) {
	env := newTestEngine(t)
	writeStagedConfig(env)

	_, err := env.engine.Inject(context.Background(), injectStage("prebld"))
	require.ErrorIs(t, err, ErrStageNotFound)
	assert.Contains(t, err.Error(), "available: preBuild, postBuild")
	assert.Contains(t, err.Error(), "did you mean")
}

func TestInject_DisabledStageIsSkipped(t *testing.T) {
	env := newTestEngine(t)
	writeStagedConfig(env)
	before := env.snapshot()

	result, err := env.engine.Inject(context.Background(), injectStage("POSTBUILD"))
	require.NoError(t, err)
	assert.True(t, result.Skipped)
	assert.Equal(t, "postBuild", result.Stage)
	assert.Nil(t, result.Run)
	assert.Equal(t, before, env.snapshot())
}

func TestInject_MissingCache(t *testing.T) {
	env := newTestEngine(t)

	cfg := prepconfig.CreateNew("")
	for i := 0; i < 7; i++ {
		cfg.Packages = append(cfg.Packages, prepconfig.UnityPackageReference{
			Name:    fmt.Sprintf("com.acme.p%d", i),
			Version: "1.0.0",
			Source:  fmt.Sprintf("cache/com.acme.p%d-1.0.0.tgz", i),
			Target:  fmt.Sprintf("projects/client/Packages/com.acme.p%d-1.0.0.tgz", i),
		})
	}
	env.writeJSON(config.DefaultConfigPath, cfg)

	_, err := env.engine.Inject(context.Background(), &InjectRequest{Target: "projects/client"})
	require.ErrorIs(t, err, ErrNotFound)
	assert.Contains(t, err.Error(), "cache/com.acme.p0-1.0.0.tgz")
	assert.Contains(t, err.Error(), "cache/com.acme.p4-1.0.0.tgz")
	assert.NotContains(t, err.Error(), "cache/com.acme.p5-1.0.0.tgz")
	assert.Contains(t, err.Error(), "and 2 more")
}

func TestInject_ValidationGate(t *testing.T) {
	setup := func(t *testing.T) *testEnv {
		env := newTestEngine(t)
		env.write("cache/com.acme.core.tgz", "tgz-bytes")
		cfg := prepconfig.CreateNew("")
		cfg.Packages = []prepconfig.UnityPackageReference{{
			Name:   "com.acme.core",
			Source: "cache/com.acme.core.tgz",
			Target: "projects/client/Packages/com.acme.core.tgz",
		}}
		env.writeJSON(config.DefaultConfigPath, cfg)
		return env
	}

	t.Run("invalid config is refused", func(t *testing.T) {
		env := setup(t)

		result, err := env.engine.Inject(context.Background(), &InjectRequest{Target: "projects/client"})
		require.ErrorIs(t, err, ErrValidation)
		require.NotNil(t, result.Validation)
		assert.True(t, result.Validation.HasCode("SCHEMA003"))
		assert.Nil(t, result.Run)
		assert.False(t, env.exists("projects/client/Packages/com.acme.core.tgz"))
	})

	t.Run("force proceeds", func(t *testing.T) {
		env := setup(t)

		req := &InjectRequest{Target: "projects/client"}
		req.Force = true
		result, err := env.engine.Inject(context.Background(), req)
		require.NoError(t, err)
		assert.False(t, result.Validation.IsValid)
		assert.Equal(t, 1, result.Run.Copied)
		assert.True(t, env.exists("projects/client/Packages/com.acme.core.tgz"))
	})
}

func TestInject_ThenCleanup(t *testing.T) {
	env := newTestEngine(t)
	writeStagedConfig(env)
	ctx := context.Background()

	req := injectStage("preBuild")
	req.Platform = "android"
	result, err := env.engine.Inject(ctx, req)
	require.NoError(t, err)

	assert.Equal(t, "preBuild", result.Stage)
	assert.Equal(t, []string{"gradle assembleRelease"}, result.Commands)
	assert.True(t, result.Validation.IsValid)
	assert.Equal(t, 3, result.Run.Copied)
	assert.Equal(t, 1, result.Run.Patched)
	assert.Equal(t, "<config/>", env.read("projects/client/Assets/Plugins/Android/config.xml"))
	assert.Equal(t, "class NEW_NAME {}\n", env.read("projects/client/Assets/Game.cs"))

	snaps, err := env.engine.RollbackList(ctx)
	require.NoError(t, err)
	require.Len(t, snaps.Snapshots, 1)
	assert.Equal(t, "projects/client/Assets/Game.cs", snaps.Snapshots[0].Path)

	cleanup, err := env.engine.Cleanup(ctx, &CleanupRequest{Stage: "prebuild"})
	require.NoError(t, err)
	assert.Equal(t, "preBuild", cleanup.Stage)
	assert.Equal(t, []string{"projects/client/Assets/Game.cs"}, cleanup.Restored)
	assert.Equal(t, []string{
		"projects/client/Assets/Plugins/Android/config.xml",
		"projects/client/Assets/logo.png",
		"projects/client/Packages/com.acme.core-1.0.0.tgz",
	}, cleanup.Removed)

	assert.Equal(t, "class OLD_NAME {}\n", env.read("projects/client/Assets/Game.cs"))
	assert.False(t, env.exists("projects/client/Assets/logo.png"))
	assert.False(t, env.exists("projects/client/Packages/com.acme.core-1.0.0.tgz"))
	assert.True(t, env.exists("assets/logo.png"))

	snaps, err = env.engine.RollbackList(ctx)
	require.NoError(t, err)
	assert.Empty(t, snaps.Snapshots)

	_, err = env.engine.Cleanup(ctx, &CleanupRequest{Stage: "preBuild"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCleanup_DryRunKeepsEverything(t *testing.T) {
	env := newTestEngine(t)
	writeStagedConfig(env)
	ctx := context.Background()

	_, err := env.engine.Inject(ctx, injectStage("preBuild"))
	require.NoError(t, err)
	before := env.snapshot()

	result, err := env.engine.Cleanup(ctx, &CleanupRequest{Stage: "preBuild", DryRun: true})
	require.NoError(t, err)
	assert.True(t, result.DryRun)
	assert.Len(t, result.Restored, 1)
	assert.Len(t, result.Removed, 2)
	assert.Equal(t, before, env.snapshot())
}

func TestInject_DryRunLeavesNoRecord(t *testing.T) {
	env := newTestEngine(t)
	writeStagedConfig(env)
	ctx := context.Background()
	before := env.snapshot()

	req := injectStage("preBuild")
	req.DryRun = true
	result, err := env.engine.Inject(ctx, req)
	require.NoError(t, err)
	assert.True(t, result.Run.DryRun)
	assert.Equal(t, before, env.snapshot())

	_, err = env.engine.Cleanup(ctx, &CleanupRequest{Stage: "preBuild"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPrepare_MultiStageRequiresStage(t *testing.T) {
	env := newTestEngine(t)
	writeStagedConfig(env)

	_, err := env.engine.Prepare(context.Background(), &PrepareRequest{})
	require.ErrorIs(t, err, ErrArgument)
	assert.Contains(t, err.Error(), "preBuild")
}

func TestPrepare_ValidatesFileExistence(t *testing.T) {
	env := newTestEngine(t)

	cfg := prepconfig.CreateNew("")
	cfg.Packages = []prepconfig.UnityPackageReference{{
		Name:    "com.acme.core",
		Version: "1.0.0",
		Source:  "cache/com.acme.core-1.0.0.tgz",
		Target:  "projects/client/Packages/com.acme.core-1.0.0.tgz",
	}}
	env.writeJSON("configs/flat.json", cfg)

	t.Run("file level catches the missing source", func(t *testing.T) {
		result, err := env.engine.Prepare(context.Background(), &PrepareRequest{ConfigPath: "configs/flat.json"})
		require.ErrorIs(t, err, ErrValidation)
		assert.True(t, result.Validation.HasCode("FILE001"))
	})

	t.Run("schema level does not", func(t *testing.T) {
		result, err := env.engine.Prepare(context.Background(), &PrepareRequest{
			ConfigPath: "configs/flat.json",
			Level:      "schema",
			DryRun:     true,
		})
		require.ErrorIs(t, err, ErrConflict)
		assert.Equal(t, validate.Schema, result.Validation.Level)
		assert.True(t, result.Validation.IsValid)
	})

	t.Run("unknown level", func(t *testing.T) {
		_, err := env.engine.Prepare(context.Background(), &PrepareRequest{ConfigPath: "configs/flat.json", Level: "strict"})
		assert.ErrorIs(t, err, ErrArgument)
	})
}

func TestCleanup_RefusesRecordedPathsOutsideRoot(t *testing.T) {
	env := newTestEngine(t)
	env.write("projects/client/Assets/mine.txt", "mine")
	require.NoError(t, env.fs.AtomicWrite("/outside/planted.txt", []byte("keep"), 0644))

	record := state.NewInjectionRecord("fp-test", "cfg.json", "preBuild", "", time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC))
	record.AddCreated("projects/client/Assets/mine.txt")
	record.AddCreated("/outside/planted.txt")
	require.NoError(t, env.engine.records.Save(record))

	_, err := env.engine.Cleanup(context.Background(), &CleanupRequest{Stage: "preBuild"})
	require.Error(t, err)
	assert.ErrorIs(t, err, repopath.ErrPathOutsideRoot)

	planted, err := env.fs.Exists("/outside/planted.txt")
	require.NoError(t, err)
	assert.True(t, planted)
	assert.True(t, env.exists("projects/client/Assets/mine.txt"), "nothing is removed when any recorded path is refused")

	_, err = env.engine.records.Load("fp-test", "preBuild")
	assert.NoError(t, err, "record is kept for inspection")
}

func TestCleanup_RefusesRootAsRecordedPath(t *testing.T) {
	env := newTestEngine(t)
	env.write("keep.txt", "keep")

	record := state.NewInjectionRecord("fp-test", "cfg.json", "preBuild", "", time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC))
	record.AddCreated(".")
	require.NoError(t, env.engine.records.Save(record))

	_, err := env.engine.Cleanup(context.Background(), &CleanupRequest{Stage: "preBuild"})
	require.Error(t, err)
	assert.True(t, env.exists("keep.txt"))
}
