package patch

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/danieljhkim/buildprep/internal/log"
	"github.com/danieljhkim/buildprep/internal/prepconfig"
)

// C# operations.
const (
	OpRemoveUsing       = "removeUsing"
	OpReplaceExpression = "replaceExpression"
	OpReplaceBlock      = "replaceBlock"
	OpRemoveBlock       = "removeBlock"
)

var csharpOperations = []string{OpRemoveUsing, OpReplaceExpression, OpReplaceBlock, OpRemoveBlock}

func csharpOperation(p prepconfig.CodePatch) (string, error) {
	op := strings.TrimSpace(p.Operation)
	if op == "" {
		return "", nil
	}
	for _, known := range csharpOperations {
		if strings.EqualFold(op, known) {
			return known, nil
		}
	}
	return "", fmt.Errorf("%w: C# operation %q", ErrUnsupported, p.Operation)
}

func usingPattern(name string) *regexp.Regexp {
	return regexp.MustCompile(`(?m)^[ \t]*(?:global[ \t]+)?using[ \t]+` +
		regexp.QuoteMeta(strings.TrimSpace(name)) + `[ \t]*;[ \t]*(?:\r?\n)?`)
}

// csharpFormat patches C# source. Without an operation it behaves like a
// literal text patch; operations act on using directives and member bodies.
type csharpFormat struct{}

func (csharpFormat) Type() prepconfig.PatchType { return prepconfig.PatchCSharp }

func (csharpFormat) IsTargetPresent(content string, p prepconfig.CodePatch) bool {
	if strings.TrimSpace(p.Search) == "" {
		return false
	}
	op, _ := csharpOperation(p)
	switch op {
	case OpRemoveUsing:
		return usingPattern(p.Search).MatchString(content)
	case OpReplaceExpression:
		return strings.Contains(content, strings.TrimSpace(p.Search))
	}
	return strings.Contains(content, p.Search)
}

func (csharpFormat) Validate(_ string, p prepconfig.CodePatch) error {
	if strings.TrimSpace(p.Search) == "" {
		return errEmptySearch
	}
	op, err := csharpOperation(p)
	if err != nil {
		return err
	}
	if op == "" {
		return validateMode(p)
	}
	return nil
}

func (csharpFormat) Apply(content string, p prepconfig.CodePatch) (string, error) {
	op, err := csharpOperation(p)
	if err != nil {
		return "", err
	}

	switch op {
	case "":
		return literalEdit(content, p)
	case OpRemoveUsing:
		re := usingPattern(p.Search)
		if !re.MatchString(content) {
			log.Warn("using directive not found: %s", p.Search)
			return content, nil
		}
		return re.ReplaceAllString(content, ""), nil
	case OpReplaceExpression:
		search := strings.TrimSpace(p.Search)
		replace := strings.TrimSpace(p.Replace)
		if !strings.Contains(content, search) {
			log.Warn("expression not found: %s", search)
			return content, nil
		}
		return strings.ReplaceAll(content, search, replace), nil
	case OpReplaceBlock:
		return replaceBlock(content, p.Search, p.Replace)
	case OpRemoveBlock:
		return removeBlock(content, p.Search)
	}
	return content, nil
}

// PostValidate parses both versions and rejects the patch when the patched
// tree has more ERROR or MISSING nodes. Errors already present in the
// original are tolerated.
func (csharpFormat) PostValidate(original, patched string) error {
	before, err := CheckCSharpSyntax(original)
	if err != nil {
		return err
	}
	after, err := CheckCSharpSyntax(patched)
	if err != nil {
		return err
	}
	if len(after) <= len(before) {
		return nil
	}

	msgs := make([]string, 0, 3)
	for i, issue := range after {
		if i == 3 {
			break
		}
		msgs = append(msgs, issue.String())
	}
	return fmt.Errorf("C# patch introduced syntax errors (%d before, %d after): %s",
		len(before), len(after), strings.Join(msgs, "; "))
}

func lineIndent(src string, idx int) string {
	start := strings.LastIndexByte(src[:idx], '\n') + 1
	end := start
	for end < len(src) && (src[end] == ' ' || src[end] == '\t') {
		end++
	}
	return src[start:end]
}

func replaceBlock(content, header, replace string) (string, error) {
	idx := strings.Index(content, header)
	if idx < 0 {
		log.Warn("block not found for: %s", header)
		return content, nil
	}
	open, end, ok := blockSpan(content, idx+len(header))
	if !ok {
		return "", fmt.Errorf("no block body found after %q", header)
	}

	body := strings.TrimSpace(replace)
	if !strings.HasPrefix(body, "{") {
		indent := lineIndent(content, idx)
		var b strings.Builder
		b.WriteString("{\n")
		for _, line := range strings.Split(body, "\n") {
			line = strings.TrimRight(line, "\r")
			if strings.TrimSpace(line) != "" {
				b.WriteString(indent + "    " + line)
			}
			b.WriteString("\n")
		}
		b.WriteString(indent + "}")
		body = b.String()
	}

	return content[:open] + body + content[end:], nil
}

func removeBlock(content, header string) (string, error) {
	idx := strings.Index(content, header)
	if idx < 0 {
		log.Warn("block not found for: %s", header)
		return content, nil
	}
	_, end, ok := blockSpan(content, idx+len(header))
	if !ok {
		return "", fmt.Errorf("no block body found after %q", header)
	}

	start := idx
	lineStart := strings.LastIndexByte(content[:idx], '\n') + 1
	if strings.TrimSpace(content[lineStart:idx]) == "" {
		start = lineStart
	}

	rest := content[end:]
	trimmed := strings.TrimLeft(rest, " \t")
	switch {
	case strings.HasPrefix(trimmed, "\r\n"):
		end += len(rest) - len(trimmed) + 2
	case strings.HasPrefix(trimmed, "\n"):
		end += len(rest) - len(trimmed) + 1
	}

	return content[:start] + content[end:], nil
}
