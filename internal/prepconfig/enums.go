package prepconfig

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// PatchType selects the patcher for a CodePatch.
type PatchType string

const (
	PatchCSharp     PatchType = "CSharp"
	PatchJSON       PatchType = "Json"
	PatchUnityAsset PatchType = "UnityAsset"
	PatchText       PatchType = "Text"
)

// PatchTypes lists the known patch types in declaration order.
var PatchTypes = []PatchType{PatchCSharp, PatchJSON, PatchUnityAsset, PatchText}

// PatchMode is the legacy edit mode of a CodePatch.
type PatchMode string

const (
	ModeReplace      PatchMode = "Replace"
	ModeInsertBefore PatchMode = "InsertBefore"
	ModeInsertAfter  PatchMode = "InsertAfter"
	ModeDelete       PatchMode = "Delete"
)

// PatchModes lists the known modes in declaration order.
var PatchModes = []PatchMode{ModeReplace, ModeInsertBefore, ModeInsertAfter, ModeDelete}

// AssetOperation is the kind of an AssetManipulation.
type AssetOperation string

const (
	AssetCopy   AssetOperation = "Copy"
	AssetMove   AssetOperation = "Move"
	AssetDelete AssetOperation = "Delete"
)

// AssetOperations lists the known operations in declaration order.
var AssetOperations = []AssetOperation{AssetCopy, AssetMove, AssetDelete}

// parseEnum matches s case-insensitively against names, or as an index into names.
func parseEnum[T ~string](kind, s string, names []T) (T, error) {
	s = strings.TrimSpace(s)
	for _, n := range names {
		if strings.EqualFold(string(n), s) {
			return n, nil
		}
	}
	if i, err := strconv.Atoi(s); err == nil && i >= 0 && i < len(names) {
		return names[i], nil
	}
	var zero T
	return zero, fmt.Errorf("unknown %s %q", kind, s)
}

func unmarshalEnumJSON[T ~string](kind string, data []byte, names []T) (T, error) {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		var zero T
		return zero, err
	}
	switch v := raw.(type) {
	case string:
		return parseEnum(kind, v, names)
	case float64:
		return parseEnum(kind, strconv.Itoa(int(v)), names)
	default:
		var zero T
		return zero, fmt.Errorf("invalid %s value %s", kind, string(data))
	}
}

// ParsePatchType parses a patch type name (case-insensitive).
func ParsePatchType(s string) (PatchType, error) {
	return parseEnum("patch type", s, PatchTypes)
}

// UnmarshalJSON accepts names in any case or integer indexes.
func (t *PatchType) UnmarshalJSON(data []byte) error {
	v, err := unmarshalEnumJSON("patch type", data, PatchTypes)
	if err != nil {
		return err
	}
	*t = v
	return nil
}

// ParsePatchMode parses a patch mode name (case-insensitive).
func ParsePatchMode(s string) (PatchMode, error) {
	return parseEnum("patch mode", s, PatchModes)
}

// UnmarshalJSON accepts names in any case or integer indexes.
func (m *PatchMode) UnmarshalJSON(data []byte) error {
	v, err := unmarshalEnumJSON("patch mode", data, PatchModes)
	if err != nil {
		return err
	}
	*m = v
	return nil
}

// ParseAssetOperation parses an asset operation name (case-insensitive).
func ParseAssetOperation(s string) (AssetOperation, error) {
	return parseEnum("asset operation", s, AssetOperations)
}

// UnmarshalJSON accepts names in any case or integer indexes.
func (o *AssetOperation) UnmarshalJSON(data []byte) error {
	v, err := unmarshalEnumJSON("asset operation", data, AssetOperations)
	if err != nil {
		return err
	}
	*o = v
	return nil
}
