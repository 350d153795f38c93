package repopath

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/danieljhkim/buildprep/internal/fsops"
)

func newTestResolver(t *testing.T) (*Resolver, *fsops.AferoFS, string) {
	t.Helper()
	root := filepath.Join(string(filepath.Separator), "repo")
	fs := fsops.NewMemFS()
	r, err := New(root, fs)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return r, fs, root
}

func TestResolver_Resolve(t *testing.T) {
	r, _, root := newTestResolver(t)

	tests := []struct {
		name    string
		in      string
		want    string
		wantErr error
	}{
		{name: "simple relative", in: "projects/client/Packages", want: filepath.Join(root, "projects", "client", "Packages")},
		{name: "backslashes normalized", in: `build\preparation\cache`, want: filepath.Join(root, "build", "preparation", "cache")},
		{name: "dot segments cleaned", in: "./a/./b/../c", want: filepath.Join(root, "a", "c")},
		{name: "escape rejected", in: "../outside", wantErr: ErrPathOutsideRoot},
		{name: "nested escape rejected", in: "a/../../outside", wantErr: ErrPathOutsideRoot},
		{name: "blank rejected", in: "   ", wantErr: ErrEmptyPath},
		{name: "absolute inside accepted", in: filepath.Join(root, "x"), want: filepath.Join(root, "x")},
		{name: "absolute outside only warns", in: filepath.Join(string(filepath.Separator), "tmp", "drop"), want: filepath.Join(string(filepath.Separator), "tmp", "drop")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := r.Resolve(tt.in)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Resolve(%q) error = %v, want %v", tt.in, err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Resolve(%q) error = %v", tt.in, err)
			}
			if got != tt.want {
				t.Errorf("Resolve(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestResolver_MakeRelative(t *testing.T) {
	r, _, root := newTestResolver(t)

	got, err := r.MakeRelative(filepath.Join(root, "a", "b.txt"))
	if err != nil {
		t.Fatalf("MakeRelative failed: %v", err)
	}
	if got != "a/b.txt" {
		t.Errorf("MakeRelative() = %q, want a/b.txt", got)
	}

	if _, err := r.MakeRelative(filepath.Join(string(filepath.Separator), "elsewhere", "f")); !errors.Is(err, ErrPathOutsideRoot) {
		t.Errorf("expected ErrPathOutsideRoot, got %v", err)
	}

	// A sibling sharing the root's prefix is still outside.
	if _, err := r.MakeRelative(root + "-sibling"); !errors.Is(err, ErrPathOutsideRoot) {
		t.Errorf("expected ErrPathOutsideRoot for prefix sibling, got %v", err)
	}
}

func TestResolver_RoundTrip(t *testing.T) {
	r, _, _ := newTestResolver(t)

	inputs := []string{
		"file.txt",
		"projects/client/Assets/Plugins/Foo.dll",
		`build\preparation\cache\pkg.tgz`,
		"a//b/./c",
		"./leading/dot",
		"Packages/café.json",
	}

	for _, p := range inputs {
		t.Run(p, func(t *testing.T) {
			abs, err := r.Resolve(p)
			if err != nil {
				t.Fatalf("Resolve(%q) error = %v", p, err)
			}
			rel, err := r.MakeRelative(abs)
			if err != nil {
				t.Fatalf("MakeRelative(%q) error = %v", abs, err)
			}
			if rel != Normalize(p) {
				t.Errorf("round trip of %q = %q, want %q", p, rel, Normalize(p))
			}
		})
	}
}

func TestResolver_ExistenceChecks(t *testing.T) {
	r, fs, root := newTestResolver(t)
	if err := fs.AtomicWrite(filepath.Join(root, "cache", "Foo.dll"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	if !r.Exists("cache/Foo.dll") || !r.FileExists("cache/Foo.dll") {
		t.Error("expected cache/Foo.dll to exist as a file")
	}
	if !r.DirectoryExists("cache") {
		t.Error("expected cache to be a directory")
	}
	if r.FileExists("cache") {
		t.Error("cache is not a file")
	}
	if r.Exists("../escape") {
		t.Error("escaping path must not report as existing")
	}

	abs, err := r.EnsureDirectory("new/dir")
	if err != nil {
		t.Fatalf("EnsureDirectory failed: %v", err)
	}
	if !r.DirectoryExists("new/dir") || abs != filepath.Join(root, "new", "dir") {
		t.Errorf("EnsureDirectory() = %q", abs)
	}
}

func TestResolver_ValidateWithinRoot(t *testing.T) {
	r, _, root := newTestResolver(t)

	if err := r.ValidateWithinRoot("inside/file"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := r.ValidateWithinRoot("../x"); !errors.Is(err, ErrPathOutsideRoot) {
		t.Errorf("expected ErrPathOutsideRoot, got %v", err)
	}
	if err := r.ValidateWithinRoot(filepath.Join(filepath.Dir(root), "other")); !errors.Is(err, ErrPathOutsideRoot) {
		t.Errorf("expected ErrPathOutsideRoot for absolute outside, got %v", err)
	}
}
