package patch

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/pmezard/go-difflib/difflib"
)

// Preview renders a human-readable summary of the change from original to
// patched followed by a unified diff.
func Preview(original, patched string) string {
	var b strings.Builder

	origLen := utf8.RuneCountInString(original)
	patchedLen := utf8.RuneCountInString(patched)

	b.WriteString("=== Patch Preview ===\n")
	fmt.Fprintf(&b, "Original length: %d chars\n", origLen)
	fmt.Fprintf(&b, "Patched length: %d chars\n", patchedLen)
	fmt.Fprintf(&b, "Difference: %s chars\n", signed(patchedLen-origLen))

	origLines := strings.Count(original, "\n") + 1
	patchedLines := strings.Count(patched, "\n") + 1
	if origLines != patchedLines {
		fmt.Fprintf(&b, "Line count changed: %d -> %d\n", origLines, patchedLines)
	}

	diff, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(original),
		B:        difflib.SplitLines(patched),
		FromFile: "original",
		ToFile:   "patched",
		Context:  3,
	})
	if err == nil && diff != "" {
		b.WriteString(diff)
	}

	return b.String()
}

func signed(n int) string {
	if n == 0 {
		return "0"
	}
	return fmt.Sprintf("%+d", n)
}
