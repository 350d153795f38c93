package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/danieljhkim/buildprep/internal/fsops"
)

// RecordStore provides an interface for persisting injection records.
type RecordStore interface {
	// Load loads the record for the given repo fingerprint and stage.
	// Returns os.ErrNotExist if no record exists.
	Load(fingerprint, stage string) (*InjectionRecord, error)

	// Save saves the record atomically, replacing any previous one.
	Save(record *InjectionRecord) error

	// Delete deletes the record. A missing record is not an error.
	Delete(fingerprint, stage string) error

	// List returns every record of the given repository, oldest first.
	List(fingerprint string) ([]*InjectionRecord, error)
}

// FileRecordStore implements RecordStore using JSON files on disk.
type FileRecordStore struct {
	fs  fsops.FS
	dir string
}

// NewFileRecordStore creates a new FileRecordStore rooted at dir.
func NewFileRecordStore(fs fsops.FS, dir string) *FileRecordStore {
	return &FileRecordStore{fs: fs, dir: dir}
}

func (s *FileRecordStore) path(id string) string {
	return filepath.Join(s.dir, id+".json")
}

// Load loads the record for the given repo fingerprint and stage.
func (s *FileRecordStore) Load(fingerprint, stage string) (*InjectionRecord, error) {
	return s.read(s.path(ComputeRecordID(fingerprint, stage)))
}

func (s *FileRecordStore) read(path string) (*InjectionRecord, error) {
	data, err := s.fs.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, os.ErrNotExist
		}
		return nil, fmt.Errorf("failed to read injection record: %w", err)
	}

	var record InjectionRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("failed to unmarshal injection record: %w", err)
	}

	return &record, nil
}

// Save saves the record atomically.
func (s *FileRecordStore) Save(record *InjectionRecord) error {
	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal injection record: %w", err)
	}

	if err := s.fs.AtomicWrite(s.path(record.ID()), data, 0644); err != nil {
		return fmt.Errorf("failed to write injection record: %w", err)
	}

	return nil
}

// Delete deletes the record file.
func (s *FileRecordStore) Delete(fingerprint, stage string) error {
	if err := s.fs.Remove(s.path(ComputeRecordID(fingerprint, stage))); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete injection record: %w", err)
	}

	return nil
}

// List returns the records of one repository sorted by CreatedAt.
func (s *FileRecordStore) List(fingerprint string) ([]*InjectionRecord, error) {
	entries, err := s.fs.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []*InjectionRecord{}, nil
		}
		return nil, fmt.Errorf("failed to list injection records: %w", err)
	}

	records := []*InjectionRecord{}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		record, err := s.read(filepath.Join(s.dir, entry.Name()))
		if err != nil {
			return nil, err
		}
		if record.RepoFingerprint == fingerprint {
			records = append(records, record)
		}
	}

	sort.SliceStable(records, func(i, j int) bool {
		return records[i].CreatedAt.Before(records[j].CreatedAt)
	})
	return records, nil
}
