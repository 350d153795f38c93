package sources

import (
	"bytes"
	"context"
	"os"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danieljhkim/buildprep/internal/clock"
	"github.com/danieljhkim/buildprep/internal/fsops"
	"github.com/danieljhkim/buildprep/internal/log"
	"github.com/danieljhkim/buildprep/internal/prepconfig"
	"github.com/danieljhkim/buildprep/internal/repopath"
)

const manifestPath = "build/preparation/manifests/main.json"

func newTestManager(t *testing.T) (*Manager, fsops.FS, *prepconfig.Store) {
	t.Helper()
	fs := fsops.NewMemFS()
	require.NoError(t, fs.MkdirAll("/repo", 0755))
	resolver, err := repopath.New("/repo", fs)
	require.NoError(t, err)
	store := prepconfig.NewStore(fs, resolver)
	clk := clock.NewSteppingClock(time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC), time.Millisecond)
	return New(fs, resolver, store, clk), fs, store
}

func write(t *testing.T, fs fsops.FS, p, content string) {
	t.Helper()
	require.NoError(t, fs.AtomicWrite(p, []byte(content), 0644))
}

func exists(fs fsops.FS, p string) bool {
	ok, _ := fs.Exists(p)
	return ok
}

func TestAddSource(t *testing.T) {
	m, fs, store := newTestManager(t)
	write(t, fs, "/repo/vendor/core/package.json", `{"name":"com.example.core"}`)
	write(t, fs, "/repo/vendor/core/Runtime/Core.cs", "class Core {}")

	res, err := m.AddSource(context.Background(), manifestPath, "vendor/core", "com.example.core", prepconfig.ItemPackage, false)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.False(t, res.DryRun)
	assert.Equal(t, "build/preparation/cache/com.example.core", res.CacheRelativePath)
	assert.Equal(t, 2, res.FileCount)
	assert.Equal(t, 1, res.DirectoryCount)
	assert.Equal(t, int64(len(`{"name":"com.example.core"}`)+len("class Core {}")), res.TotalSize)
	assert.True(t, exists(fs, "/repo/build/preparation/cache/com.example.core/Runtime/Core.cs"))

	manifest, err := store.LoadOrCreateManifest(manifestPath)
	require.NoError(t, err)
	assert.Equal(t, "main", manifest.ID)
	require.Len(t, manifest.Items, 1)
	assert.Equal(t, prepconfig.PreparationItem{Source: "vendor/core", CacheAs: "com.example.core", Type: prepconfig.ItemPackage}, manifest.Items[0])

	res, err = m.AddSource(context.Background(), manifestPath, "vendor/core", "COM.EXAMPLE.CORE", prepconfig.ItemPackage, false)
	assert.ErrorIs(t, err, ErrDuplicate)
	assert.False(t, res.Success)
	assert.Contains(t, res.ErrorMessage, "already exists")
}

func TestAddSource_Errors(t *testing.T) {
	m, fs, _ := newTestManager(t)
	write(t, fs, "/repo/vendor/Lib.dll", "dll")

	res, err := m.AddSource(context.Background(), manifestPath, "vendor/missing.dll", "Lib", prepconfig.ItemAssembly, false)
	assert.ErrorIs(t, err, os.ErrNotExist)
	assert.False(t, res.Success)
	assert.Contains(t, res.ErrorMessage, "source path does not exist")

	_, err = m.AddSource(context.Background(), manifestPath, "vendor/Lib.dll", "../Lib", prepconfig.ItemAssembly, false)
	assert.Error(t, err)

	_, err = m.AddSource(context.Background(), manifestPath, "../outside", "Lib", prepconfig.ItemAssembly, false)
	assert.ErrorIs(t, err, repopath.ErrPathOutsideRoot)

	assert.False(t, exists(fs, "/repo/"+manifestPath), "failed additions do not create the manifest")
}

func TestAddSource_AbsolutePath(t *testing.T) {
	m, fs, _ := newTestManager(t)
	write(t, fs, "/external/Tools.dll", "tools")

	res, err := m.AddSource(context.Background(), manifestPath, "/external/Tools.dll", "Tools.dll", prepconfig.ItemAssembly, false)
	require.NoError(t, err)
	assert.Equal(t, "/external/Tools.dll", res.SourcePath)
	assert.Equal(t, 1, res.FileCount)
	assert.True(t, exists(fs, "/repo/build/preparation/cache/Tools.dll"))
}

func TestAddSource_DryRunIsPure(t *testing.T) {
	m, fs, _ := newTestManager(t)
	write(t, fs, "/repo/vendor/Lib.dll", "dll")

	res, err := m.AddSource(context.Background(), manifestPath, "vendor/Lib.dll", "Lib.dll", prepconfig.ItemAssembly, true)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.True(t, res.DryRun)
	assert.Equal(t, int64(3), res.TotalSize)

	assert.False(t, exists(fs, "/repo/build/preparation/cache"))
	assert.False(t, exists(fs, "/repo/"+manifestPath))
}

func TestAddInjection(t *testing.T) {
	m, _, _ := newTestManager(t)
	cfg := prepconfig.CreateNew("")

	require.NoError(t, m.AddInjection(cfg, "build/cache/com.a-1.0.0", "projects/client/Packages/com.a", prepconfig.ItemPackage, "com.a", ""))
	require.NoError(t, m.AddInjection(cfg, `build\cache\Lib.dll`, "projects/client/Assets/Plugins/Lib.dll", prepconfig.ItemAssembly, "", "2.0"))
	require.NoError(t, m.AddInjection(cfg, "build/cache/icons", "projects/client/Assets/Icons", prepconfig.ItemAsset, "icons", ""))

	require.Len(t, cfg.Packages, 1)
	assert.Equal(t, DefaultPackageVersion, cfg.Packages[0].Version)
	require.Len(t, cfg.Assemblies, 1)
	assert.Equal(t, "Lib.dll", cfg.Assemblies[0].Name)
	assert.Equal(t, "build/cache/Lib.dll", cfg.Assemblies[0].Source)
	require.Len(t, cfg.AssetManipulations, 1)
	assert.Equal(t, prepconfig.AssetManipulation{Operation: prepconfig.AssetCopy, Source: "build/cache/icons", Target: "projects/client/Assets/Icons", Overwrite: true}, cfg.AssetManipulations[0])

	assert.Error(t, m.AddInjection(cfg, "a", "b", "plugin", "x", ""))
	assert.Error(t, m.AddInjection(cfg, "", "b", prepconfig.ItemPackage, "x", ""))
	assert.Error(t, m.AddInjection(cfg, "a", " ", prepconfig.ItemPackage, "x", ""))
}

func threePackages() *prepconfig.BatchManifest {
	return &prepconfig.BatchManifest{
		Version: "1.0",
		Packages: []prepconfig.BatchPackageItem{
			{Source: "vendor/a.tgz", Name: "com.a", Version: "1.0.0"},
			{Source: "vendor/missing.tgz", Name: "com.b", Version: "1.0.0"},
			{Source: "vendor/c.tgz", Name: "com.c"},
		},
	}
}

func TestProcessBatchSources_ContinueOnError(t *testing.T) {
	m, fs, store := newTestManager(t)
	write(t, fs, "/repo/vendor/a.tgz", "a")
	write(t, fs, "/repo/vendor/c.tgz", "c")

	res, err := m.ProcessBatchSources(context.Background(), threePackages(), manifestPath, false, true)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Total)
	assert.Equal(t, 2, res.SuccessCount)
	assert.Equal(t, 1, res.FailureCount)
	assert.Equal(t, []string{"Package: com.a", "Package: com.c"}, res.Successful)
	require.Len(t, res.Failed, 1)
	assert.Equal(t, "Package: com.b", res.Failed[0].Item)
	assert.Contains(t, res.Failed[0].Error, "source path does not exist")

	assert.True(t, exists(fs, "/repo/build/preparation/cache/com.a-1.0.0"))
	assert.True(t, exists(fs, "/repo/build/preparation/cache/com.c"))

	manifest, err := store.LoadOrCreateManifest(manifestPath)
	require.NoError(t, err)
	require.Len(t, manifest.Items, 2)
	assert.Equal(t, "com.a-1.0.0", manifest.Items[0].CacheAs)
	assert.Equal(t, "com.c", manifest.Items[1].CacheAs)
}

func TestProcessBatchSources_StopOnError(t *testing.T) {
	m, fs, _ := newTestManager(t)
	write(t, fs, "/repo/vendor/a.tgz", "a")
	write(t, fs, "/repo/vendor/c.tgz", "c")

	batch := threePackages()
	batch.Assets = []prepconfig.BatchAssetItem{{Source: "vendor/c.tgz", Name: "icons", Target: "x"}}

	res, err := m.ProcessBatchSources(context.Background(), batch, manifestPath, false, false)
	require.NoError(t, err)
	assert.Equal(t, 1, res.SuccessCount)
	assert.Equal(t, 3, res.FailureCount)
	assert.Equal(t, res.Total, res.SuccessCount+res.FailureCount)
	assert.Equal(t, FailedItem{Item: "Package: com.c", Error: SkippedMessage}, res.Failed[1])
	assert.Equal(t, FailedItem{Item: "Asset: icons", Error: SkippedMessage}, res.Failed[2])
	assert.False(t, exists(fs, "/repo/build/preparation/cache/com.c"))
}

func TestProcessBatchSources_DryRunIsPure(t *testing.T) {
	m, fs, _ := newTestManager(t)
	write(t, fs, "/repo/vendor/a.tgz", "a")
	write(t, fs, "/repo/vendor/c.tgz", "c")

	res, err := m.ProcessBatchSources(context.Background(), threePackages(), manifestPath, true, true)
	require.NoError(t, err)
	assert.True(t, res.DryRun)
	assert.Equal(t, 2, res.SuccessCount)
	assert.False(t, exists(fs, "/repo/build/preparation/cache"))
	assert.False(t, exists(fs, "/repo/"+manifestPath))
}

func TestProcessBatchSources_Canceled(t *testing.T) {
	m, _, _ := newTestManager(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := m.ProcessBatchSources(ctx, threePackages(), manifestPath, false, true)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, res.SuccessCount)
	assert.Equal(t, 3, res.FailureCount)
}

func TestProcessBatchInjections(t *testing.T) {
	m, _, _ := newTestManager(t)
	cfg := prepconfig.CreateNew("")
	batch := &prepconfig.BatchManifest{
		Packages:   []prepconfig.BatchPackageItem{{Source: "x", Name: "com.a", Version: "1.2.0"}},
		Assemblies: []prepconfig.BatchAssemblyItem{{Source: "y", Name: "Lib.dll", Target: "projects/client/Assets/Libs/Lib.dll"}},
		Assets: []prepconfig.BatchAssetItem{
			{Source: "z", Name: "icons", Target: "projects/client/Assets/Icons"},
			{Source: "w", Name: "orphan"},
		},
	}

	res, err := m.ProcessBatchInjections(context.Background(), batch, cfg, "build/preparation/cache", false, true)
	require.NoError(t, err)
	assert.Equal(t, 3, res.SuccessCount)
	assert.Equal(t, 1, res.FailureCount)
	assert.Equal(t, "Asset: orphan", res.Failed[0].Item)

	require.Len(t, cfg.Packages, 1)
	assert.Equal(t, prepconfig.UnityPackageReference{Name: "com.a", Version: "1.2.0", Source: "build/preparation/cache/com.a-1.2.0", Target: "projects/client/Packages/com.a"}, cfg.Packages[0])
	require.Len(t, cfg.Assemblies, 1)
	assert.Equal(t, "build/preparation/cache/Lib.dll", cfg.Assemblies[0].Source)
	assert.Equal(t, "projects/client/Assets/Libs/Lib.dll", cfg.Assemblies[0].Target)
	require.Len(t, cfg.AssetManipulations, 1)
	assert.Equal(t, "build/preparation/cache/icons", cfg.AssetManipulations[0].Source)
}

func TestProcessBatchInjections_DryRunAndClientTarget(t *testing.T) {
	m, _, _ := newTestManager(t)
	m.SetClientTarget("game/client")
	cfg := prepconfig.CreateNew("")
	batch := &prepconfig.BatchManifest{
		Assemblies: []prepconfig.BatchAssemblyItem{{Source: "y", Name: "Lib"}},
	}

	res, err := m.ProcessBatchInjections(context.Background(), batch, cfg, "cache", true, false)
	require.NoError(t, err)
	assert.Equal(t, 1, res.SuccessCount)
	assert.Empty(t, cfg.Assemblies)

	_, err = m.ProcessBatchInjections(context.Background(), batch, cfg, "cache", false, false)
	require.NoError(t, err)
	require.Len(t, cfg.Assemblies, 1)
	assert.Equal(t, "game/client/Assets/Plugins/Lib", cfg.Assemblies[0].Target)
}

type deniedFs struct {
	afero.Fs
	denied string
}

func (d deniedFs) Open(name string) (afero.File, error) {
	if name == d.denied {
		return nil, &os.PathError{Op: "open", Path: name, Err: os.ErrPermission}
	}
	return d.Fs.Open(name)
}

func TestMeasure_WarnsOnUnreadableSubtree(t *testing.T) {
	mem := afero.NewMemMapFs()
	seedFS := fsops.NewAferoFS(mem)
	write(t, seedFS, "/repo/vendor/core/package.json", "{}")
	write(t, seedFS, "/repo/vendor/core/Runtime/a.cs", "class A {}")

	fs := fsops.NewAferoFS(deniedFs{Fs: mem, denied: "/repo/vendor/core/Runtime"})
	resolver, err := repopath.New("/repo", fs)
	require.NoError(t, err)
	m := New(fs, resolver, prepconfig.NewStore(fs, resolver), clock.NewFakeClock(time.Now()))

	var buf bytes.Buffer
	log.SetOutput(&buf)
	defer log.SetOutput(os.Stderr)

	files, dirs, size := m.measure("/repo/vendor/core")
	assert.Equal(t, 1, files)
	assert.Equal(t, 1, dirs)
	assert.Equal(t, int64(2), size)
	assert.Contains(t, buf.String(), "/repo/vendor/core/Runtime")
}
