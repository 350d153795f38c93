// Package rollback keeps byte-exact snapshots of files taken before a patch
// is written, so that any applied patch can be undone.
//
// Each snapshot is two files in the rollback directory: <id>.rollback holds
// the original bytes and <id>.json holds its metadata. Ids start with a ULID
// so lexical order is creation order.
package rollback

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/danieljhkim/buildprep/internal/clock"
	"github.com/danieljhkim/buildprep/internal/fsops"
	"github.com/danieljhkim/buildprep/internal/hash"
	"github.com/danieljhkim/buildprep/internal/log"
)

const (
	dataExt = ".rollback"
	metaExt = ".json"
)

// Snapshot describes one stored rollback point.
type Snapshot struct {
	ID        string      `json:"id"`
	Path      string      `json:"path"`
	CreatedAt time.Time   `json:"createdAt"`
	Size      int64       `json:"size"`
	Hash      string      `json:"hash"`
	Mode      os.FileMode `json:"mode"`
}

// Store manages rollback snapshots under a single directory.
type Store struct {
	fs     fsops.FS
	hasher hash.Hasher
	clock  clock.Clock
	dir    string
}

// NewStore creates a Store rooted at dir. The directory is created lazily.
func NewStore(fs fsops.FS, hasher hash.Hasher, clk clock.Clock, dir string) *Store {
	return &Store{fs: fs, hasher: hasher, clock: clk, dir: dir}
}

// Dir returns the snapshot directory.
func (s *Store) Dir() string {
	return s.dir
}

func (s *Store) dataPath(id string) string {
	return filepath.Join(s.dir, id+dataExt)
}

func (s *Store) metaPath(id string) string {
	return filepath.Join(s.dir, id+metaExt)
}

// Create snapshots the current contents of path and returns the snapshot id.
func (s *Store) Create(path string) (string, error) {
	info, err := s.fs.Stat(path)
	if err != nil {
		return "", fmt.Errorf("failed to stat %s: %w", path, err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("cannot snapshot directory %s", path)
	}

	data, err := s.fs.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", path, err)
	}

	now := s.clock.Now()
	id, err := ulid.New(ulid.Timestamp(now), ulid.DefaultEntropy())
	if err != nil {
		return "", fmt.Errorf("failed to generate rollback id: %w", err)
	}

	sum := s.hasher.HashBytes(data)
	snapID := id.String() + "_" + strings.ToLower(sum[:min(16, len(sum))])

	if err := s.fs.MkdirAll(s.dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create rollback directory: %w", err)
	}
	if err := s.fs.AtomicWrite(s.dataPath(snapID), data, 0644); err != nil {
		return "", fmt.Errorf("failed to write rollback data: %w", err)
	}

	snap := Snapshot{
		ID:        snapID,
		Path:      path,
		CreatedAt: now,
		Size:      int64(len(data)),
		Hash:      sum,
		Mode:      info.Mode().Perm(),
	}
	meta, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal rollback metadata: %w", err)
	}
	if err := s.fs.AtomicWrite(s.metaPath(snapID), meta, 0644); err != nil {
		_ = s.fs.Remove(s.dataPath(snapID))
		return "", fmt.Errorf("failed to write rollback metadata: %w", err)
	}

	log.Debug("created rollback point %s for %s", snapID, path)
	return snapID, nil
}

// Get returns the metadata of snapshot id.
func (s *Store) Get(id string) (*Snapshot, error) {
	if err := s.fs.ValidateIdentifier(id); err != nil {
		return nil, fmt.Errorf("invalid rollback id: %w", err)
	}

	data, err := s.fs.ReadFile(s.metaPath(id))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("rollback point %q not found: %w", id, os.ErrNotExist)
		}
		return nil, fmt.Errorf("failed to read rollback metadata: %w", err)
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("failed to parse rollback metadata %s: %w", id, err)
	}
	return &snap, nil
}

// Restore writes the bytes of snapshot id back to path. An empty path restores
// to the path the snapshot was taken from.
func (s *Store) Restore(path, id string) error {
	snap, err := s.Get(id)
	if err != nil {
		return err
	}
	if path == "" {
		path = snap.Path
	}

	data, err := s.fs.ReadFile(s.dataPath(id))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("rollback data for %q not found: %w", id, os.ErrNotExist)
		}
		return fmt.Errorf("failed to read rollback data: %w", err)
	}

	mode := snap.Mode
	if mode == 0 {
		mode = 0644
	}
	if err := s.fs.AtomicWrite(path, data, mode); err != nil {
		return fmt.Errorf("failed to restore %s: %w", path, err)
	}

	log.Info("restored %s from rollback point %s", path, id)
	return nil
}

// Cleanup removes snapshot id. Removing an unknown id is not an error.
func (s *Store) Cleanup(id string) error {
	if err := s.fs.ValidateIdentifier(id); err != nil {
		return fmt.Errorf("invalid rollback id: %w", err)
	}
	for _, p := range []string{s.dataPath(id), s.metaPath(id)} {
		if err := s.fs.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("failed to remove %s: %w", p, err)
		}
	}
	return nil
}

// List returns all snapshots, oldest first. Unreadable metadata is skipped.
func (s *Store) List() ([]Snapshot, error) {
	exists, err := s.fs.Exists(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to check rollback directory: %w", err)
	}
	if !exists {
		return []Snapshot{}, nil
	}

	entries, err := s.fs.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read rollback directory: %w", err)
	}

	snaps := []Snapshot{}
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, metaExt) {
			continue
		}
		snap, err := s.Get(strings.TrimSuffix(name, metaExt))
		if err != nil {
			log.Warn("skipping rollback metadata %s: %v", name, err)
			continue
		}
		snaps = append(snaps, *snap)
	}

	sort.Slice(snaps, func(i, j int) bool { return snaps[i].ID < snaps[j].ID })
	return snaps, nil
}

// Prune removes snapshots created more than olderThan ago and returns the
// removed ids.
func (s *Store) Prune(olderThan time.Duration) ([]string, error) {
	snaps, err := s.List()
	if err != nil {
		return nil, err
	}

	cutoff := s.clock.Now().Add(-olderThan)
	removed := []string{}
	for _, snap := range snaps {
		if !snap.CreatedAt.Before(cutoff) {
			continue
		}
		if err := s.Cleanup(snap.ID); err != nil {
			return removed, err
		}
		removed = append(removed, snap.ID)
	}
	return removed, nil
}
