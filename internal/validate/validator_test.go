package validate

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danieljhkim/buildprep/internal/clock"
	"github.com/danieljhkim/buildprep/internal/fsops"
	"github.com/danieljhkim/buildprep/internal/hash"
	"github.com/danieljhkim/buildprep/internal/patch"
	"github.com/danieljhkim/buildprep/internal/prepconfig"
	"github.com/danieljhkim/buildprep/internal/repopath"
	"github.com/danieljhkim/buildprep/internal/rollback"
)

var now = time.Date(2025, 4, 2, 9, 0, 0, 0, time.UTC)

func newTestValidator(t *testing.T, lookup Lookup) (*Validator, fsops.FS) {
	t.Helper()
	fs := fsops.NewMemFS()
	require.NoError(t, fs.MkdirAll("/repo", 0755))
	resolver, err := repopath.New("/repo", fs)
	require.NoError(t, err)
	clk := clock.NewFakeClock(now)
	engine := patch.New(fs, rollback.NewStore(fs, hash.NewSHA256Hasher(fs), clk, "/state/rollback"))
	return New(fs, resolver, engine, lookup, clk), fs
}

func write(t *testing.T, fs fsops.FS, p, content string) {
	t.Helper()
	require.NoError(t, fs.AtomicWrite(p, []byte(content), 0644))
}

func codes(issues []Issue) []string {
	out := make([]string, 0, len(issues))
	for _, i := range issues {
		out = append(out, i.Code)
	}
	return out
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    Level
		wantErr bool
	}{
		{"", Full, false},
		{"schema", Schema, false},
		{"FileExistence", FileExistence, false},
		{"UNITYPACKAGES", UnityPackages, false},
		{" full ", Full, false},
		{"deep", Full, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLevel_JSON(t *testing.T) {
	data, err := json.Marshal(struct{ L Level }{UnityPackages})
	require.NoError(t, err)
	assert.JSONEq(t, `{"L":"UnityPackages"}`, string(data))
	assert.Equal(t, "Level(9)", Level(9).String())
}

func TestValidate_MissingAssemblySource(t *testing.T) {
	v, _ := newTestValidator(t, nil)
	cfg := &prepconfig.PreparationConfig{
		Version: "1.0",
		Assemblies: []prepconfig.AssemblyReference{
			{Name: "Foo", Source: "cache/Foo.dll", Target: "client/Plugins/Foo.dll"},
		},
	}

	r := v.Validate(cfg, FileExistence)
	assert.False(t, r.IsValid)
	require.Len(t, r.Errors, 1)
	assert.Equal(t, "FILE002", r.Errors[0].Code)
	assert.Equal(t, "cache/Foo.dll", r.Errors[0].File)
	assert.Equal(t, "Validation failed at level FileExistence with 1 error(s) and 0 warning(s).", r.Summary)
	assert.Equal(t, now, r.Timestamp)

	r = v.Validate(cfg, Schema)
	assert.True(t, r.IsValid)
	assert.Equal(t, "Validation passed at level Schema with no issues.", r.Summary)
}

func TestValidate_Schema(t *testing.T) {
	v, _ := newTestValidator(t, nil)
	cfg := &prepconfig.PreparationConfig{
		Packages:   []prepconfig.UnityPackageReference{{}},
		Assemblies: []prepconfig.AssemblyReference{{}},
		CodePatches: []prepconfig.CodePatch{
			{Type: prepconfig.PatchText},
			{File: "a.json", Type: prepconfig.PatchJSON, Operation: patch.OpAddProperty, Replace: "x:1"},
			{File: "a.xml", Type: "Xml", Search: "a"},
		},
		AssetManipulations: []prepconfig.AssetManipulation{
			{Operation: prepconfig.AssetCopy},
			{Operation: prepconfig.AssetDelete, Target: "x"},
		},
	}

	r := v.Validate(cfg, Schema)
	assert.Equal(t, []string{
		"SCHEMA001",
		"SCHEMA002", "SCHEMA003", "SCHEMA004", "SCHEMA005",
		"SCHEMA006", "SCHEMA007", "SCHEMA008",
		"SCHEMA009", "SCHEMA010",
		"SCHEMA013",
		"SCHEMA011", "SCHEMA012",
	}, codes(r.Errors))
}

func TestValidate_FileExistence(t *testing.T) {
	v, fs := newTestValidator(t, nil)
	write(t, fs, "/repo/cache/com.a-1.0.0.tgz", "pkg")
	write(t, fs, "/repo/staging/readme.txt", "x")

	cfg := &prepconfig.PreparationConfig{
		Version: "1.0",
		Packages: []prepconfig.UnityPackageReference{
			{Name: "com.a", Version: "1.0.0", Source: "cache/com.a-1.0.0.tgz", Target: "client/Packages/com.a-1.0.0.tgz"},
			{Name: "com.b", Version: "1.0.0", Source: "cache/com.b-1.0.0.tgz", Target: "client/Packages/com.b-1.0.0.tgz"},
			{Name: "com.c", Version: "1.0.0", Source: "../escape.tgz", Target: "client/Packages/c.tgz"},
		},
		AssetManipulations: []prepconfig.AssetManipulation{
			{Operation: prepconfig.AssetCopy, Source: "staging/readme.txt", Target: "client/readme.txt"},
			{Operation: prepconfig.AssetMove, Source: "client/readme.txt", Target: "client/docs/readme.txt"},
			{Operation: prepconfig.AssetCopy, Source: "staging/missing.txt", Target: "client/missing.txt"},
		},
		CodePatches: []prepconfig.CodePatch{
			{File: "client/Opt.cs", Type: prepconfig.PatchCSharp, Search: "a", Optional: true},
			{File: "client/Req.cs", Type: prepconfig.PatchCSharp, Search: "a"},
		},
	}

	r := v.Validate(cfg, FileExistence)
	assert.Equal(t, []string{"FILE001", "FILE005", "FILE006", "FILE004"}, codes(r.Errors))
	assert.Equal(t, []string{"FILE003"}, codes(r.Warnings))
}

func TestValidate_CacheLookupCountsAsPresent(t *testing.T) {
	lookup := func(source string) (string, bool) {
		if source == "cache/com.hashed" {
			return "/repo/cache/com.hashed@abc", true
		}
		return "", false
	}
	v, fs := newTestValidator(t, lookup)
	require.NoError(t, fs.MkdirAll("/repo/cache/com.hashed@abc", 0755))

	cfg := &prepconfig.PreparationConfig{
		Version: "1.0",
		Packages: []prepconfig.UnityPackageReference{
			{Name: "com.hashed", Version: "1.0.0", Source: "cache/com.hashed", Target: "client/Packages/com.hashed"},
		},
	}
	r := v.Validate(cfg, UnityPackages)
	assert.True(t, r.IsValid, "errors: %v", r.Errors)
	assert.Empty(t, r.Warnings)
}

func TestValidate_UnityPackages(t *testing.T) {
	v, fs := newTestValidator(t, nil)
	write(t, fs, "/repo/cache/com.good-1.0.0.tgz", "pkg")
	write(t, fs, "/repo/cache/empty-1.0.0.tgz", "")
	write(t, fs, "/repo/cache/archive.zip", "zip")
	require.NoError(t, fs.MkdirAll("/repo/cache/com.dir", 0755))

	cfg := &prepconfig.PreparationConfig{
		Version: "1.0",
		Packages: []prepconfig.UnityPackageReference{
			{Name: "com.good", Version: "1.0.0", Source: "cache/com.good-1.0.0.tgz", Target: "t/a"},
			{Name: "com.empty", Version: "1.0.0", Source: "cache/empty-1.0.0.tgz", Target: "t/b"},
			{Name: "com.zip", Version: "1.0.0", Source: "cache/archive.zip", Target: "t/c"},
			{Name: "com.dir", Version: "1.0", Source: "cache/com.dir", Target: "t/d"},
			{Name: "plain", Version: "latest", Source: "cache/com.good-1.0.0.tgz", Target: "t/e"},
		},
	}

	r := v.Validate(cfg, UnityPackages)
	assert.Equal(t, []string{"PKG002", "PKG001"}, codes(r.Errors))
	assert.Equal(t, []string{"PKG003", "PKG004"}, codes(r.Warnings))
}

func TestValidate_Full(t *testing.T) {
	v, fs := newTestValidator(t, nil)
	write(t, fs, "/repo/client/A.cs", "class OLD_NAME {}")
	write(t, fs, "/repo/client/notes.txt", "hello")
	write(t, fs, "/repo/client/settings.json", `{"a":1}`)

	cfg := &prepconfig.PreparationConfig{
		Version: "1.0",
		CodePatches: []prepconfig.CodePatch{
			{File: "client/A.cs", Type: prepconfig.PatchCSharp, Search: "OLD_NAME", Replace: "NEW_NAME"},
			{File: "client/notes.txt", Type: prepconfig.PatchJSON, Operation: patch.OpReplaceValue, Search: "a", Replace: "2"},
			{File: "client/notes.txt", Type: prepconfig.PatchText, Search: "(unclosed", Replace: "x"},
			{File: "client/A.cs", Type: prepconfig.PatchCSharp, Search: "NEW_NAME", Replace: "X"},
			{File: "client/settings.json", Type: prepconfig.PatchJSON, Operation: "renameKey", Search: "a"},
		},
	}

	r := v.Validate(cfg, Full)
	assert.Equal(t, []string{"PATCH004", "PATCH002", "PATCH004"}, codes(r.Errors))
	assert.Equal(t, []string{"PATCH001", "PATCH003", "PATCH003"}, codes(r.Warnings))
}

func TestValidate_Monotonic(t *testing.T) {
	v, fs := newTestValidator(t, nil)
	write(t, fs, "/repo/cache/bad.zip", "z")
	write(t, fs, "/repo/client/A.cs", "class A {}")

	cfg := &prepconfig.PreparationConfig{
		Packages: []prepconfig.UnityPackageReference{
			{Name: "bad", Version: "x", Source: "cache/bad.zip", Target: "client/Packages/bad"},
			{Name: "com.missing", Version: "1.0.0", Source: "cache/none.tgz", Target: "client/Packages/none"},
		},
		CodePatches: []prepconfig.CodePatch{
			{File: "client/A.cs", Type: prepconfig.PatchText, Search: "[bad", Replace: "x"},
			{File: "client/B.cs", Type: prepconfig.PatchCSharp, Search: "x"},
		},
	}

	var previous []Issue
	for _, level := range Levels {
		r := v.Validate(cfg, level)
		assert.Subset(t, r.Errors, previous, "level %s lost errors", level)
		assert.GreaterOrEqual(t, len(r.Errors), len(previous))
		previous = r.Errors
	}
	assert.Len(t, previous, 5)
}

func TestResult_SummaryWithWarnings(t *testing.T) {
	r := &Result{Level: UnityPackages}
	r.addWarning("PKG004", "", "w")
	r.finalize(now)
	assert.True(t, r.IsValid)
	assert.Equal(t, "Validation passed at level UnityPackages with 1 warning(s).", r.Summary)
	assert.True(t, r.HasCode("PKG004"))
	assert.False(t, r.HasCode("PKG001"))
	assert.Equal(t, 1, r.TotalIssues())
}
