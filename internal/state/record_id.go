package state

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// ComputeRecordID computes a stable record ID from the repository fingerprint
// and stage name. Stage names match case-insensitively, so they are folded.
func ComputeRecordID(repoFingerprint, stage string) string {
	data := repoFingerprint + "|" + strings.ToLower(strings.TrimSpace(stage))

	hash := sha256.Sum256([]byte(data))

	return hex.EncodeToString(hash[:])
}
