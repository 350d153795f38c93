package patch

import (
	"context"
	"fmt"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/csharp"
)

// SyntaxIssue is one ERROR or MISSING node in a parsed C# file.
type SyntaxIssue struct {
	Line    int
	Message string
}

func (s SyntaxIssue) String() string {
	return fmt.Sprintf("line %d: %s", s.Line, s.Message)
}

func parseCSharp(src []byte) (*sitter.Tree, error) {
	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(csharp.GetLanguage())

	tree, err := parser.ParseCtx(context.Background(), nil, src)
	if err != nil {
		return nil, fmt.Errorf("failed to parse C#: %w", err)
	}
	return tree, nil
}

// CheckCSharpSyntax parses src and returns one issue per ERROR or MISSING
// node in its syntax tree.
func CheckCSharpSyntax(src string) ([]SyntaxIssue, error) {
	content := []byte(src)
	tree, err := parseCSharp(content)
	if err != nil {
		return nil, err
	}
	defer tree.Close()

	var issues []SyntaxIssue
	collectSyntaxIssues(tree.RootNode(), content, &issues)
	return issues, nil
}

func collectSyntaxIssues(n *sitter.Node, content []byte, issues *[]SyntaxIssue) {
	if n == nil || n.IsNull() || !n.HasError() && !n.IsMissing() {
		return
	}

	line := int(n.StartPoint().Row) + 1
	switch {
	case n.IsMissing():
		*issues = append(*issues, SyntaxIssue{Line: line, Message: fmt.Sprintf("missing %s", n.Type())})
		return
	case n.Type() == "ERROR":
		text := n.Content(content)
		if len(text) > 40 {
			text = text[:40] + "..."
		}
		*issues = append(*issues, SyntaxIssue{Line: line, Message: fmt.Sprintf("unexpected %q", text)})
	}

	for i := 0; i < int(n.ChildCount()); i++ {
		collectSyntaxIssues(n.Child(i), content, issues)
	}
}

// blockSpan finds the first brace body at or after from and returns the
// offsets of its '{' and one past its '}'. It returns false when a ';' ends
// the declaration before any body opens.
func blockSpan(src string, from int) (open, end int, ok bool) {
	content := []byte(src)
	tree, err := parseCSharp(content)
	if err != nil {
		return -1, -1, false
	}
	defer tree.Close()

	tok := firstToken(tree.RootNode(), uint32(from))
	if tok == nil || tok.Type() != "{" {
		return -1, -1, false
	}

	body := tok.Parent()
	if body == nil || body.StartByte() != tok.StartByte() || body.ChildCount() == 0 {
		return -1, -1, false
	}
	last := body.Child(int(body.ChildCount()) - 1)
	if last == nil || last.Type() != "}" || last.IsMissing() {
		return -1, -1, false
	}
	return int(body.StartByte()), int(body.EndByte()), true
}

// firstToken returns the first '{' or ';' token starting at or after from,
// in document order. Braces of interpolation holes are skipped.
func firstToken(n *sitter.Node, from uint32) *sitter.Node {
	if n == nil || n.IsNull() || n.EndByte() <= from || n.Type() == "interpolation" {
		return nil
	}
	count := int(n.ChildCount())
	if count == 0 {
		if n.StartByte() >= from && !n.IsMissing() && (n.Type() == "{" || n.Type() == ";") {
			return n
		}
		return nil
	}
	for i := 0; i < count; i++ {
		if tok := firstToken(n.Child(i), from); tok != nil {
			return tok
		}
	}
	return nil
}
