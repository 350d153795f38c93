package validate

import (
	"fmt"
	"strings"
)

// Level selects how far validation goes. Each level adds checks to the
// previous one.
type Level int

const (
	// Schema checks required fields only.
	Schema Level = iota
	// FileExistence adds source, target and patch file checks.
	FileExistence
	// UnityPackages adds package archive and naming checks.
	UnityPackages
	// Full adds patch applicability checks against current files.
	Full
)

var levelNames = []string{"Schema", "FileExistence", "UnityPackages", "Full"}

// Levels lists every level from least to most thorough.
var Levels = []Level{Schema, FileExistence, UnityPackages, Full}

func (l Level) String() string {
	if l < 0 || int(l) >= len(levelNames) {
		return fmt.Sprintf("Level(%d)", int(l))
	}
	return levelNames[l]
}

// MarshalText renders the level name.
func (l Level) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

// UnmarshalText parses a level name.
func (l *Level) UnmarshalText(text []byte) error {
	v, err := ParseLevel(string(text))
	if err != nil {
		return err
	}
	*l = v
	return nil
}

// ParseLevel parses a level name case-insensitively. An empty string means Full.
func ParseLevel(s string) (Level, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Full, nil
	}
	for i, name := range levelNames {
		if strings.EqualFold(name, s) {
			return Level(i), nil
		}
	}
	return Full, fmt.Errorf("invalid validation level %q: must be one of %s", s, strings.Join(levelNames, ", "))
}
