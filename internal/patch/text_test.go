package patch

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danieljhkim/buildprep/internal/prepconfig"
)

func TestIsRegexPattern(t *testing.T) {
	tests := []struct {
		search string
		want   bool
	}{
		{"OLD_NAME", false},
		{"", false},
		{"foo.bar", false},
		{"foo.*bar", true},
		{`\d+`, true},
		{"^start", true},
		{"end$", true},
		{"[abc]", true},
		{"call(x)", true},
		{"a$b", false},
	}

	for _, tt := range tests {
		t.Run(tt.search, func(t *testing.T) {
			assert.Equal(t, tt.want, IsRegexPattern(tt.search))
		})
	}
}

func textPatch(search, replace string, mode prepconfig.PatchMode) prepconfig.CodePatch {
	return prepconfig.CodePatch{File: "a.txt", Type: prepconfig.PatchText, Search: search, Replace: replace, Mode: mode}
}

func TestTextFormat_Apply(t *testing.T) {
	tests := []struct {
		name    string
		content string
		patch   prepconfig.CodePatch
		want    string
	}{
		{
			name:    "literal replace",
			content: "class OLD_NAME {}",
			patch:   textPatch("OLD_NAME", "NEW_NAME", prepconfig.ModeReplace),
			want:    "class NEW_NAME {}",
		},
		{
			name:    "literal replace every occurrence",
			content: "a-a-a",
			patch:   textPatch("a", "b", prepconfig.ModeReplace),
			want:    "b-b-b",
		},
		{
			name:    "empty mode defaults to replace",
			content: "x = 1",
			patch:   textPatch("1", "2", ""),
			want:    "x = 2",
		},
		{
			name:    "literal insert before",
			content: "line2\n",
			patch:   textPatch("line2", "line1\n", prepconfig.ModeInsertBefore),
			want:    "line1\nline2\n",
		},
		{
			name:    "literal insert after",
			content: "#define A\n",
			patch:   textPatch("#define A\n", "#define B\n", prepconfig.ModeInsertAfter),
			want:    "#define A\n#define B\n",
		},
		{
			name:    "literal delete",
			content: "keep DEBUG_ONLY keep",
			patch:   textPatch(" DEBUG_ONLY", "", prepconfig.ModeDelete),
			want:    "keep keep",
		},
		{
			name:    "regex replace is multiline",
			content: "version=1\nname=x\nversion=2\n",
			patch:   textPatch(`^version=\d+$`, "version=9", prepconfig.ModeReplace),
			want:    "version=9\nname=x\nversion=9\n",
		},
		{
			name:    "regex replace with group reference",
			content: "Foo(1)",
			patch:   textPatch(`Foo\((\d)\)`, "Bar(${1})", prepconfig.ModeReplace),
			want:    "Bar(1)",
		},
		{
			name:    "numbered group reference followed by letters",
			content: "Foo(1)",
			patch:   textPatch(`Foo\((\d)\)`, "Bar_$1abc", prepconfig.ModeReplace),
			want:    "Bar_1abc",
		},
		{
			name:    "doubled dollar stays literal",
			content: "Foo(1)",
			patch:   textPatch(`Foo\((\d)\)`, "$$$1", prepconfig.ModeReplace),
			want:    "$1",
		},
		{
			name:    "literal insert after spanning lines",
			content: "using System;\nclass A {}",
			patch:   textPatch(`using System;`, "\nusing System.IO;", prepconfig.ModeInsertAfter),
			want:    "using System;\nusing System.IO;\nclass A {}",
		},
		{
			name:    "regex delete",
			content: "a // trailing\nb // more\n",
			patch:   textPatch(` //.*$`, "", prepconfig.ModeDelete),
			want:    "a\nb\n",
		},
		{
			name:    "no match is a no-op",
			content: "nothing here",
			patch:   textPatch("absent", "x", prepconfig.ModeReplace),
			want:    "nothing here",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := textFormat{}.Apply(tt.content, tt.patch)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTextFormat_InsertsAreIdempotent(t *testing.T) {
	patches := []prepconfig.CodePatch{
		textPatch("line2", "line1\n", prepconfig.ModeInsertBefore),
		textPatch("line2\n", "line3\n", prepconfig.ModeInsertAfter),
		textPatch(`^line2$`, "\nline2b", prepconfig.ModeInsertAfter),
		textPatch(`^line2`, "line1b\n", prepconfig.ModeInsertBefore),
	}

	for _, p := range patches {
		t.Run(string(p.Mode)+" "+p.Search, func(t *testing.T) {
			first, err := textFormat{}.Apply("line2\n", p)
			require.NoError(t, err)
			require.NotEqual(t, "line2\n", first)

			second, err := textFormat{}.Apply(first, p)
			require.NoError(t, err)
			assert.Equal(t, first, second)
		})
	}
}

func TestTextFormat_Validate(t *testing.T) {
	f := textFormat{}

	assert.NoError(t, f.Validate("", textPatch("ok", "x", prepconfig.ModeReplace)))
	assert.ErrorIs(t, f.Validate("", textPatch("", "x", prepconfig.ModeReplace)), errEmptySearch)
	assert.Error(t, f.Validate("", textPatch("(unclosed", "x", prepconfig.ModeReplace)))
	assert.ErrorIs(t, f.Validate("", textPatch("ok", "x", "Upsert")), ErrUnsupported)
}

func TestTextFormat_IsTargetPresent(t *testing.T) {
	f := textFormat{}
	assert.True(t, f.IsTargetPresent("abc", textPatch("b", "", prepconfig.ModeDelete)))
	assert.False(t, f.IsTargetPresent("abc", textPatch("z", "", prepconfig.ModeDelete)))
	assert.True(t, f.IsTargetPresent("x\nabc", textPatch("^abc$", "", prepconfig.ModeDelete)))
	assert.False(t, f.IsTargetPresent("abc", textPatch("(bad", "", prepconfig.ModeDelete)))
}

func TestReplacementTemplate(t *testing.T) {
	assert.Equal(t, "${1}abc", replacementTemplate("$1abc"))
	assert.Equal(t, "${12}-${3}", replacementTemplate("$12-$3"))
	assert.Equal(t, "$$1", replacementTemplate("$$1"))
	assert.Equal(t, "${name}", replacementTemplate("${name}"))
}
