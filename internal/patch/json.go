package patch

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/pretty"
	"github.com/tidwall/sjson"

	"github.com/danieljhkim/buildprep/internal/prepconfig"
)

// JSON operations. A CodePatch's Operation wins over its Mode.
const (
	OpAddProperty    = "addProperty"
	OpRemoveProperty = "removeProperty"
	OpReplaceValue   = "replaceValue"
)

var errInvalidJSON = errors.New("content is not valid JSON")

// JSONPath converts a dotted path with bracket indexes ("a.b[0].c") to the
// gjson/sjson form ("a.b.0.c"). A leading "$" or "$." is dropped.
func JSONPath(search string) string {
	s := strings.TrimSpace(search)
	s = strings.TrimPrefix(s, "$")
	s = strings.ReplaceAll(s, "[", ".")
	s = strings.ReplaceAll(s, "]", "")
	parts := strings.Split(s, ".")
	kept := parts[:0]
	for _, part := range parts {
		part = strings.Trim(part, `"'`)
		if part != "" {
			kept = append(kept, part)
		}
	}
	return strings.Join(kept, ".")
}

// jsonOperation resolves the effective operation of p.
func jsonOperation(p prepconfig.CodePatch) (string, error) {
	if op := strings.TrimSpace(p.Operation); op != "" {
		for _, known := range []string{OpAddProperty, OpRemoveProperty, OpReplaceValue} {
			if strings.EqualFold(op, known) {
				return known, nil
			}
		}
		return "", fmt.Errorf("%w: JSON operation %q", ErrUnsupported, p.Operation)
	}

	switch p.EffectiveMode() {
	case prepconfig.ModeReplace:
		return OpReplaceValue, nil
	case prepconfig.ModeDelete:
		return OpRemoveProperty, nil
	case prepconfig.ModeInsertAfter:
		return OpAddProperty, nil
	}
	return "", fmt.Errorf("%w: mode %s is not supported for JSON patches", ErrUnsupported, p.EffectiveMode())
}

// AllowsEmptySearch reports whether p may omit its search path. Only JSON
// addProperty at the document root does.
func AllowsEmptySearch(p prepconfig.CodePatch) bool {
	if p.Type != prepconfig.PatchJSON {
		return false
	}
	op, err := jsonOperation(p)
	return err == nil && op == OpAddProperty
}

// rawJSONValue returns v as raw JSON: valid JSON is kept, anything else becomes a string.
func rawJSONValue(v string) string {
	trimmed := strings.TrimSpace(v)
	if trimmed != "" && gjson.Valid(trimmed) {
		return trimmed
	}
	quoted, _ := json.Marshal(v)
	return string(quoted)
}

// escapeKey escapes characters that gjson and sjson treat as path syntax.
func escapeKey(key string) string {
	var b strings.Builder
	for _, r := range key {
		switch r {
		case '.', '*', '?', '|', '#', '@', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

func joinPath(parent, key string) string {
	if parent == "" {
		return escapeKey(key)
	}
	return parent + "." + escapeKey(key)
}

// jsonProperties parses an addProperty replacement: either "name:value" or a
// JSON object whose members are all added.
func jsonProperties(replace string) ([][2]string, error) {
	trimmed := strings.TrimSpace(replace)
	if strings.HasPrefix(trimmed, "{") {
		parsed := gjson.Parse(trimmed)
		if !gjson.Valid(trimmed) || !parsed.IsObject() {
			return nil, fmt.Errorf("addProperty value is not a valid JSON object")
		}
		var props [][2]string
		parsed.ForEach(func(key, value gjson.Result) bool {
			props = append(props, [2]string{key.String(), value.Raw})
			return true
		})
		return props, nil
	}

	name, value, ok := strings.Cut(trimmed, ":")
	name = strings.Trim(strings.TrimSpace(name), `"`)
	if !ok || name == "" {
		return nil, fmt.Errorf("addProperty value must be \"name:value\" or a JSON object, got %q", replace)
	}
	return [][2]string{{name, rawJSONValue(strings.TrimSpace(value))}}, nil
}

// jsonFormat patches JSON documents by path.
type jsonFormat struct{}

func (jsonFormat) Type() prepconfig.PatchType { return prepconfig.PatchJSON }

func (jsonFormat) IsTargetPresent(content string, p prepconfig.CodePatch) bool {
	path := JSONPath(p.Search)
	op, err := jsonOperation(p)
	if err == nil && op == OpAddProperty && path == "" {
		return gjson.Valid(content)
	}
	if path == "" {
		return false
	}
	return gjson.Get(content, path).Exists()
}

func (jsonFormat) Validate(content string, p prepconfig.CodePatch) error {
	if !gjson.Valid(content) {
		return errInvalidJSON
	}
	op, err := jsonOperation(p)
	if err != nil {
		return err
	}
	if op != OpAddProperty && JSONPath(p.Search) == "" {
		return fmt.Errorf("%s requires a property path", op)
	}
	if op == OpAddProperty {
		if _, err := jsonProperties(p.Replace); err != nil {
			return err
		}
	}
	return nil
}

func (jsonFormat) Apply(content string, p prepconfig.CodePatch) (string, error) {
	if !gjson.Valid(content) {
		return "", errInvalidJSON
	}
	op, err := jsonOperation(p)
	if err != nil {
		return "", err
	}
	path := JSONPath(p.Search)

	out := content
	switch op {
	case OpReplaceValue:
		if !gjson.Get(content, path).Exists() {
			return content, nil
		}
		out, err = sjson.SetRaw(content, path, rawJSONValue(p.Replace))

	case OpRemoveProperty:
		if !gjson.Get(content, path).Exists() {
			return content, nil
		}
		out, err = sjson.Delete(content, path)

	case OpAddProperty:
		if path != "" {
			parent := gjson.Get(content, path)
			if !parent.Exists() || !parent.IsObject() {
				return "", fmt.Errorf("parent object %q not found", p.Search)
			}
		}
		var props [][2]string
		props, err = jsonProperties(p.Replace)
		if err != nil {
			return "", err
		}
		for _, prop := range props {
			out, err = sjson.SetRaw(out, joinPath(path, prop[0]), prop[1])
			if err != nil {
				break
			}
		}
	}
	if err != nil {
		return "", fmt.Errorf("failed to apply %s at %q: %w", op, p.Search, err)
	}

	// Formatting-only differences are not a change.
	if bytes.Equal(pretty.Ugly([]byte(content)), pretty.Ugly([]byte(out))) {
		return content, nil
	}
	return string(pretty.Pretty([]byte(out))), nil
}

func (jsonFormat) PostValidate(_, patched string) error {
	if !gjson.Valid(patched) {
		return errInvalidJSON
	}
	return nil
}
