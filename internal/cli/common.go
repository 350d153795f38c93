package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/danieljhkim/buildprep/internal/clock"
	"github.com/danieljhkim/buildprep/internal/config"
	"github.com/danieljhkim/buildprep/internal/engine"
	"github.com/danieljhkim/buildprep/internal/fsops"
	"github.com/danieljhkim/buildprep/internal/gitx"
	"github.com/danieljhkim/buildprep/internal/hash"
	"github.com/danieljhkim/buildprep/internal/log"
)

// Exit codes returned by the binary.
const (
	ExitOK         = 0
	ExitFailure    = 1
	ExitValidation = 2
)

// ExitCode maps an error returned by Execute to the process exit code.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, engine.ErrValidation):
		return ExitValidation
	default:
		return ExitFailure
	}
}

// newEngine creates a new engine with real implementations of all dependencies.
// The repository root is resolved once here from the working directory.
func newEngine() (*engine.Engine, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("failed to get current directory: %w", err)
	}

	gitRepo := gitx.NewRealGitRepo()
	root, err := gitRepo.Discover(cwd)
	if err != nil {
		return nil, fmt.Errorf("failed to locate repository root: %w", err)
	}

	settings, err := config.LoadSettings(root)
	if err != nil {
		return nil, err
	}
	if settings.LogLevel != "" && !verbose {
		lvl, err := log.ParseLevel(settings.LogLevel)
		if err != nil {
			log.Warn("ignoring logLevel in %s: %v", config.SettingsFile, err)
		} else {
			log.SetLevel(lvl)
		}
	}

	paths, err := config.DefaultPaths()
	if err != nil {
		return nil, fmt.Errorf("failed to get config paths: %w", err)
	}
	if err := paths.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("failed to ensure directories: %w", err)
	}

	fs := fsops.NewRealFS()

	return engine.New(engine.Deps{
		Root:     root,
		FS:       fs,
		GitRepo:  gitRepo,
		Hasher:   hash.NewSHA256Hasher(fs),
		Clock:    &clock.RealClock{},
		Paths:    *paths,
		Settings: settings,
	})
}

// formatJSON formats a value as JSON.
func formatJSON(v any) (string, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// formatError formats an error for display.
func formatError(err error) string {
	return errorColor.Sprintf("Error: %v", err)
}

// PrintErrorLine writes err to stderr in the CLI's error format.
func PrintErrorLine(err error) {
	_, _ = fmt.Fprintln(os.Stderr, formatError(err))
}

// outputJSON outputs a value as JSON to stdout.
func outputJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
