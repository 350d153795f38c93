// Package state persists injection records.
//
// An injection record is written after every non-dry-run stage injection. It
// lists the paths the run created and the rollback snapshots taken before each
// patch, which is what cleanup needs to return the client project to its
// previous shape. Records are JSON files under the tool's state directory,
// one per repository and stage.
//
// Key concepts:
//   - InjectionRecord: what one run created and patched
//   - RecordID: stable key derived from repo fingerprint and stage name
//   - RecordStore: interface for persisting and loading records
package state
