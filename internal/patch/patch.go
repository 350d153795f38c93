// Package patch applies format-aware edits to files in the client tree.
//
// A CodePatch names a file, a format (Text, Json, CSharp, UnityAsset) and an
// edit. The Engine runs every patch through the same pipeline: pre-validation,
// the format's transformation, a no-op check, the format's post-validation,
// then either a dry-run preview or a rollback snapshot followed by an atomic
// write. A file is never written unless its patched content passed
// post-validation.
package patch

import (
	"errors"
	"fmt"

	"github.com/danieljhkim/buildprep/internal/prepconfig"
)

var (
	// ErrFileNotFound indicates the patch target file does not exist.
	ErrFileNotFound = errors.New("file not found")

	// ErrInvalidPatch indicates the patch failed pre-validation.
	ErrInvalidPatch = errors.New("invalid patch")

	// ErrPostValidation indicates the patched content failed format validation.
	ErrPostValidation = errors.New("post-validation failed")

	// ErrUnsupported indicates a patch type, mode or operation the format cannot apply.
	ErrUnsupported = errors.New("unsupported patch")
)

// NoChangesMessage is reported when a patch leaves the content unchanged.
const NoChangesMessage = "No changes made - target pattern not found or already applied"

// Status is the outcome of ApplyPatch.
type Status string

const (
	StatusSkipped   Status = "skipped"
	StatusUnchanged Status = "unchanged"
	StatusDryRun    Status = "dry-run"
	StatusApplied   Status = "applied"
	StatusRejected  Status = "rejected"
	StatusFailed    Status = "failed"
)

// Result describes what happened to one patch.
type Result struct {
	File       string               `json:"file"`
	Type       prepconfig.PatchType `json:"type"`
	Status     Status               `json:"status"`
	Success    bool                 `json:"success"`
	Modified   bool                 `json:"modified"`
	Message    string               `json:"message"`
	Preview    string               `json:"preview,omitempty"`
	RollbackID string               `json:"rollbackId,omitempty"`
	Warnings   []string             `json:"warnings,omitempty"`
}

// ValidationResult is the outcome of ValidatePatch.
type ValidationResult struct {
	Errors      []string
	Warnings    []string
	TargetFound bool
}

// IsValid reports whether validation found no errors.
func (v ValidationResult) IsValid() bool {
	return len(v.Errors) == 0
}

// Format is one patchable file format.
type Format interface {
	// Type returns the patch type this format handles.
	Type() prepconfig.PatchType

	// IsTargetPresent reports whether the patch's target can be found in content.
	IsTargetPresent(content string, p prepconfig.CodePatch) bool

	// Validate performs format-specific checks before the patch is applied.
	Validate(content string, p prepconfig.CodePatch) error

	// Apply returns the patched content. Returning content unchanged means no-op.
	Apply(content string, p prepconfig.CodePatch) (string, error)

	// PostValidate checks patched content, given the original for comparison.
	PostValidate(original, patched string) error
}

var formats = map[prepconfig.PatchType]func() Format{
	prepconfig.PatchText:       func() Format { return textFormat{} },
	prepconfig.PatchJSON:       func() Format { return jsonFormat{} },
	prepconfig.PatchCSharp:     func() Format { return csharpFormat{} },
	prepconfig.PatchUnityAsset: func() Format { return unityAssetFormat{} },
}

// FormatFor returns the Format registered for t.
func FormatFor(t prepconfig.PatchType) (Format, error) {
	ctor, ok := formats[t]
	if !ok {
		return nil, fmt.Errorf("%w: no patcher registered for type %q", ErrUnsupported, t)
	}
	return ctor(), nil
}
