package state

import (
	"slices"
	"time"
)

// InjectionRecord is the authoritative record of what one injection run
// changed in the client project.
type InjectionRecord struct {
	// RepoFingerprint identifies the repository the run modified
	RepoFingerprint string `json:"repoFingerprint"`

	// Config is the repo-relative path of the configuration that was run
	Config string `json:"config"`

	// Stage is the stage name as written in the config (empty for v1 configs)
	Stage string `json:"stage,omitempty"`

	// Platform is the platform the stage was projected for, if any
	Platform string `json:"platform,omitempty"`

	// CreatedAt is when the run finished
	CreatedAt time.Time `json:"createdAt"`

	// Created lists repo-relative paths that did not exist before the run
	Created []string `json:"created"`

	// Patches lists the patches applied, in application order
	Patches []PatchRecord `json:"patches"`
}

// PatchRecord ties a patched file to the snapshot taken before the patch.
type PatchRecord struct {
	// File is the repo-relative path of the patched file
	File string `json:"file"`

	// RollbackID is the snapshot id in the rollback store
	RollbackID string `json:"rollbackId"`
}

// NewInjectionRecord creates a new empty InjectionRecord.
func NewInjectionRecord(fingerprint, config, stage, platform string, createdAt time.Time) *InjectionRecord {
	return &InjectionRecord{
		RepoFingerprint: fingerprint,
		Config:          config,
		Stage:           stage,
		Platform:        platform,
		CreatedAt:       createdAt,
		Created:         []string{},
		Patches:         []PatchRecord{},
	}
}

// ID returns the key the record is stored under.
func (r *InjectionRecord) ID() string {
	return ComputeRecordID(r.RepoFingerprint, r.Stage)
}

// AddCreated records a created path once.
func (r *InjectionRecord) AddCreated(rel string) {
	if !slices.Contains(r.Created, rel) {
		r.Created = append(r.Created, rel)
	}
}

// AddPatch records an applied patch. Patches without a snapshot are ignored.
func (r *InjectionRecord) AddPatch(file, rollbackID string) {
	if rollbackID == "" {
		return
	}
	r.Patches = append(r.Patches, PatchRecord{File: file, RollbackID: rollbackID})
}

// Merge folds a later run of the same stage into r. The earliest snapshot of
// a file is kept, since restoring it undoes both runs.
func (r *InjectionRecord) Merge(later *InjectionRecord) {
	for _, c := range later.Created {
		r.AddCreated(c)
	}
	for _, p := range later.Patches {
		if !slices.ContainsFunc(r.Patches, func(q PatchRecord) bool { return q.File == p.File }) {
			r.Patches = append(r.Patches, p)
		}
	}
	r.Config = later.Config
	r.Platform = later.Platform
	r.CreatedAt = later.CreatedAt
}
