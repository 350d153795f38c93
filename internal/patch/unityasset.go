package patch

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/danieljhkim/buildprep/internal/log"
	"github.com/danieljhkim/buildprep/internal/prepconfig"
)

// Unity asset operations.
const (
	OpModifyProperty  = "modifyProperty"
	OpAddComponent    = "addComponent"
	OpRemoveComponent = "removeComponent"
)

var unityOperations = []string{OpModifyProperty, OpAddComponent, OpRemoveComponent}

func unityOperation(p prepconfig.CodePatch) (string, error) {
	op := strings.TrimSpace(p.Operation)
	if op == "" {
		return "", nil
	}
	for _, known := range unityOperations {
		if strings.EqualFold(op, known) {
			return known, nil
		}
	}
	return "", fmt.Errorf("%w: Unity asset operation %q", ErrUnsupported, p.Operation)
}

// unityAssetFormat patches Unity's serialized YAML dialect line by line.
type unityAssetFormat struct{}

func (unityAssetFormat) Type() prepconfig.PatchType { return prepconfig.PatchUnityAsset }

func (unityAssetFormat) IsTargetPresent(content string, p prepconfig.CodePatch) bool {
	return p.Search != "" && strings.Contains(content, p.Search)
}

func (unityAssetFormat) Validate(_ string, p prepconfig.CodePatch) error {
	if p.Search == "" {
		return errEmptySearch
	}
	op, err := unityOperation(p)
	if err != nil {
		return err
	}
	if op == "" {
		return validateMode(p)
	}
	return nil
}

func (unityAssetFormat) Apply(content string, p prepconfig.CodePatch) (string, error) {
	op, err := unityOperation(p)
	if err != nil {
		return "", err
	}

	switch op {
	case "":
		return literalEdit(content, p)
	case OpModifyProperty:
		return modifyProperty(content, p.Search, p.Replace), nil
	case OpAddComponent:
		return addComponent(content, p.Search, p.Replace)
	case OpRemoveComponent:
		return strings.ReplaceAll(content, p.Search, ""), nil
	}
	return content, nil
}

// PostValidate is lenient: Unity's YAML dialect often fails strict parsing,
// so only an emptied file or a lost %YAML header rejects the patch.
func (unityAssetFormat) PostValidate(original, patched string) error {
	if strings.TrimSpace(patched) == "" {
		return errors.New("patched asset is empty")
	}
	if strings.HasPrefix(original, "%YAML") && !strings.HasPrefix(patched, "%YAML") {
		return errors.New("patched asset lost its %YAML header")
	}

	dec := yaml.NewDecoder(strings.NewReader(patched))
	for {
		var doc yaml.Node
		err := dec.Decode(&doc)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			log.Debug("asset is not strict YAML (accepted): %v", err)
			break
		}
	}
	return nil
}

func modifyProperty(content, property, value string) string {
	lines := strings.Split(content, "\n")
	found := false
	for i, line := range lines {
		body := strings.TrimRight(line, "\r")
		cr := line[len(body):]
		trimmed := strings.TrimLeft(body, " \t")
		if !strings.HasPrefix(trimmed, property+":") {
			continue
		}
		indent := body[:len(body)-len(trimmed)]
		lines[i] = indent + property + ": " + value + cr
		found = true
	}
	if !found {
		log.Warn("property %q not found in asset", property)
	}
	return strings.Join(lines, "\n")
}

func addComponent(content, marker, component string) (string, error) {
	idx := strings.Index(content, marker)
	if idx < 0 {
		return "", fmt.Errorf("location marker %q not found in asset", marker)
	}

	eol := strings.IndexByte(content[idx:], '\n')
	if eol < 0 {
		return content + "\n" + component + "\n", nil
	}
	insertAt := idx + eol + 1

	if strings.HasPrefix(content[insertAt:], component+"\n") {
		return content, nil
	}
	return content[:insertAt] + component + "\n" + content[insertAt:], nil
}

// ExtractPropertyValue returns the value of the first "name: value" line.
func ExtractPropertyValue(content, name string) (string, bool) {
	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		if rest, ok := strings.CutPrefix(trimmed, name+":"); ok {
			return strings.TrimSpace(rest), true
		}
	}
	return "", false
}

// HasComponent reports whether content declares a document of the given
// class id (e.g. "114" in "--- !u!114 &...") or references a MonoBehaviour script.
func HasComponent(content, componentType string) bool {
	return strings.Contains(content, "--- !u!"+componentType) ||
		strings.Contains(content, "m_Script: {fileID: 11500000, guid:")
}
