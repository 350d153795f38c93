package engine

import (
	"errors"

	"github.com/danieljhkim/buildprep/internal/prepconfig"
)

var (
	// ErrArgument indicates missing or invalid input.
	ErrArgument = errors.New("invalid argument")

	// ErrConflict indicates the plan cannot run as configured.
	ErrConflict = errors.New("conflict detected")

	// ErrValidation indicates a validation failure.
	ErrValidation = errors.New("validation failed")

	// ErrNotFound indicates a resource was not found.
	ErrNotFound = errors.New("not found")

	// ErrStageNotFound indicates a stage missing from a multi-stage config.
	ErrStageNotFound = prepconfig.ErrStageNotFound
)
