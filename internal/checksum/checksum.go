// Package checksum provides content hashing and file fingerprints used to
// detect store changes without re-parsing unchanged files.
package checksum

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Sum returns the hex-encoded SHA-256 digest of data.
func Sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// Fingerprint identifies a file's content state. Size and ModTime are cheap
// pre-checks; Hash is authoritative. Two fingerprints with equal hashes refer
// to identical content regardless of timestamps.
type Fingerprint struct {
	Size    int64
	ModTime time.Time
	Hash    string
}

// Equal reports whether the content behind two fingerprints is the same.
// A touched timestamp with an unchanged hash still compares equal.
func (fp Fingerprint) Equal(other Fingerprint) bool {
	return fp.Hash == other.Hash
}
