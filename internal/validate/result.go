package validate

import (
	"fmt"
	"time"
)

// Issue is one validation error or warning.
type Issue struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	File    string `json:"file,omitempty"`
	Line    int    `json:"line,omitempty"`
	Context string `json:"context,omitempty"`
}

func (i Issue) String() string {
	if i.File != "" {
		return fmt.Sprintf("[%s] %s (%s)", i.Code, i.Message, i.File)
	}
	return fmt.Sprintf("[%s] %s", i.Code, i.Message)
}

// Result is the outcome of validating one configuration.
type Result struct {
	IsValid   bool      `json:"isValid"`
	Level     Level     `json:"level"`
	Errors    []Issue   `json:"errors"`
	Warnings  []Issue   `json:"warnings"`
	Summary   string    `json:"summary"`
	Timestamp time.Time `json:"timestamp"`
}

// TotalIssues returns the number of errors plus warnings.
func (r *Result) TotalIssues() int {
	return len(r.Errors) + len(r.Warnings)
}

// HasCode reports whether any error or warning carries code.
func (r *Result) HasCode(code string) bool {
	for _, list := range [][]Issue{r.Errors, r.Warnings} {
		for _, i := range list {
			if i.Code == code {
				return true
			}
		}
	}
	return false
}

func (r *Result) addError(code, file, format string, args ...any) {
	r.Errors = append(r.Errors, Issue{Code: code, Message: fmt.Sprintf(format, args...), File: file})
}

func (r *Result) addWarning(code, file, format string, args ...any) {
	r.Warnings = append(r.Warnings, Issue{Code: code, Message: fmt.Sprintf(format, args...), File: file})
}

func (r *Result) finalize(now time.Time) {
	r.IsValid = len(r.Errors) == 0
	r.Timestamp = now
	switch {
	case r.IsValid && len(r.Warnings) == 0:
		r.Summary = fmt.Sprintf("Validation passed at level %s with no issues.", r.Level)
	case r.IsValid:
		r.Summary = fmt.Sprintf("Validation passed at level %s with %d warning(s).", r.Level, len(r.Warnings))
	default:
		r.Summary = fmt.Sprintf("Validation failed at level %s with %d error(s) and %d warning(s).", r.Level, len(r.Errors), len(r.Warnings))
	}
}
