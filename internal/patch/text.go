package patch

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/danieljhkim/buildprep/internal/prepconfig"
)

var errEmptySearch = errors.New("search pattern must not be empty")

// IsRegexPattern reports whether a Text patch search is treated as a regular
// expression rather than a literal substring.
func IsRegexPattern(search string) bool {
	if search == "" {
		return false
	}
	return strings.Contains(search, ".*") ||
		strings.ContainsAny(search, `\[(`) ||
		strings.HasPrefix(search, "^") ||
		strings.HasSuffix(search, "$")
}

// CompileSearch compiles a Text patch search in multiline mode.
func CompileSearch(search string) (*regexp.Regexp, error) {
	re, err := regexp.Compile("(?m)" + search)
	if err != nil {
		return nil, fmt.Errorf("invalid regex pattern %q: %w", search, err)
	}
	return re, nil
}

// matcher locates edit sites and expands the replacement for each site.
type matcher interface {
	find(content string) [][]int
	expand(content, replace string, loc []int) string
}

type literalMatcher string

func (m literalMatcher) find(content string) [][]int {
	search := string(m)
	var locs [][]int
	for off := 0; off <= len(content); {
		i := strings.Index(content[off:], search)
		if i < 0 {
			break
		}
		start := off + i
		locs = append(locs, []int{start, start + len(search)})
		off = start + len(search)
	}
	return locs
}

func (m literalMatcher) expand(_ string, replace string, _ []int) string {
	return replace
}

type regexMatcher struct {
	re *regexp.Regexp
}

func (m regexMatcher) find(content string) [][]int {
	return m.re.FindAllStringSubmatchIndex(content, -1)
}

func (m regexMatcher) expand(content, replace string, loc []int) string {
	return string(m.re.ExpandString(nil, replace, content, loc))
}

var numberedGroupRef = regexp.MustCompile(`\$\$|\$(\d+)`)

// replacementTemplate braces numbered references so "$1abc" means group 1
// followed by "abc" instead of a group named "1abc". "$$" stays a literal '$'.
func replacementTemplate(replace string) string {
	return numberedGroupRef.ReplaceAllStringFunc(replace, func(ref string) string {
		if ref == "$$" {
			return ref
		}
		return "${" + ref[1:] + "}"
	})
}

// edit rewrites every match of m in content according to mode. Inserts skip
// sites where the inserted text is already adjacent to the match.
func edit(content string, m matcher, mode prepconfig.PatchMode, replace string) (string, error) {
	locs := m.find(content)
	if len(locs) == 0 {
		return content, nil
	}

	var b strings.Builder
	last := 0
	for _, loc := range locs {
		start, end := loc[0], loc[1]
		matched := content[start:end]
		insert := m.expand(content, replace, loc)

		b.WriteString(content[last:start])
		switch mode {
		case prepconfig.ModeReplace:
			b.WriteString(insert)
		case prepconfig.ModeDelete:
		case prepconfig.ModeInsertBefore:
			if !strings.HasSuffix(content[:start], insert) {
				b.WriteString(insert)
			}
			b.WriteString(matched)
		case prepconfig.ModeInsertAfter:
			b.WriteString(matched)
			if !strings.HasPrefix(content[end:], insert) {
				b.WriteString(insert)
			}
		default:
			return "", fmt.Errorf("%w: mode %q", ErrUnsupported, mode)
		}
		last = end
	}
	b.WriteString(content[last:])
	return b.String(), nil
}

// literalEdit applies a literal-substring edit; shared by the formats whose
// legacy modes are plain text substitution.
func literalEdit(content string, p prepconfig.CodePatch) (string, error) {
	if p.Search == "" {
		return "", errEmptySearch
	}
	return edit(content, literalMatcher(p.Search), p.EffectiveMode(), p.Replace)
}

func validateMode(p prepconfig.CodePatch) error {
	switch p.EffectiveMode() {
	case prepconfig.ModeReplace, prepconfig.ModeInsertBefore, prepconfig.ModeInsertAfter, prepconfig.ModeDelete:
		return nil
	}
	return fmt.Errorf("%w: mode %q", ErrUnsupported, p.Mode)
}

// textFormat patches plain text by literal substring or regular expression.
type textFormat struct{}

func (textFormat) Type() prepconfig.PatchType { return prepconfig.PatchText }

func (textFormat) IsTargetPresent(content string, p prepconfig.CodePatch) bool {
	if p.Search == "" {
		return false
	}
	if IsRegexPattern(p.Search) {
		re, err := CompileSearch(p.Search)
		if err != nil {
			return false
		}
		return re.MatchString(content)
	}
	return strings.Contains(content, p.Search)
}

func (textFormat) Validate(_ string, p prepconfig.CodePatch) error {
	if p.Search == "" {
		return errEmptySearch
	}
	if IsRegexPattern(p.Search) {
		if _, err := CompileSearch(p.Search); err != nil {
			return err
		}
	}
	return validateMode(p)
}

func (textFormat) Apply(content string, p prepconfig.CodePatch) (string, error) {
	if p.Search == "" {
		return "", errEmptySearch
	}
	if !IsRegexPattern(p.Search) {
		return literalEdit(content, p)
	}
	re, err := CompileSearch(p.Search)
	if err != nil {
		return "", err
	}
	return edit(content, regexMatcher{re: re}, p.EffectiveMode(), replacementTemplate(p.Replace))
}

func (textFormat) PostValidate(_, _ string) error {
	return nil
}
