// Package integration exercises the engine end to end against a real
// filesystem in a temporary directory.
package integration

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/danieljhkim/buildprep/internal/clock"
	"github.com/danieljhkim/buildprep/internal/config"
	"github.com/danieljhkim/buildprep/internal/engine"
	"github.com/danieljhkim/buildprep/internal/fsops"
	"github.com/danieljhkim/buildprep/internal/gitx"
	"github.com/danieljhkim/buildprep/internal/hash"
)

// testEnv is a repository root and buildprep home under t.TempDir().
type testEnv struct {
	t      *testing.T
	root   string
	home   string
	engine *engine.Engine
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	tmp := t.TempDir()
	root := filepath.Join(tmp, "repo")
	home := filepath.Join(tmp, "home")
	require.NoError(t, os.MkdirAll(filepath.Join(root, ".git"), 0755))

	paths := config.NewPaths(home)
	require.NoError(t, paths.EnsureDirectories())

	fs := fsops.NewRealFS()
	eng, err := engine.New(engine.Deps{
		Root:     root,
		FS:       fs,
		GitRepo:  gitx.NewFakeGitRepo(root, "integration"),
		Hasher:   hash.NewSHA256Hasher(fs),
		Clock:    &clock.RealClock{},
		Paths:    *paths,
		Settings: config.DefaultSettings(),
	})
	require.NoError(t, err)

	return &testEnv{t: t, root: root, home: home, engine: eng}
}

func (e *testEnv) abs(rel string) string {
	return filepath.Join(e.root, filepath.FromSlash(rel))
}

// write creates a file relative to the repository root.
func (e *testEnv) write(rel, content string) {
	e.t.Helper()
	p := e.abs(rel)
	require.NoError(e.t, os.MkdirAll(filepath.Dir(p), 0755))
	require.NoError(e.t, os.WriteFile(p, []byte(content), 0644))
}

func (e *testEnv) read(rel string) string {
	e.t.Helper()
	data, err := os.ReadFile(e.abs(rel))
	require.NoError(e.t, err)
	return string(data)
}

func (e *testEnv) exists(rel string) bool {
	_, err := os.Stat(e.abs(rel))
	return err == nil
}
