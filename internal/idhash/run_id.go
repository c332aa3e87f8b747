package idhash

import (
	"crypto/sha256"

	"github.com/mr-tron/base58"
)

// ComputeRunID derives a compact run identifier from the canonical run
// configuration string. The first 16 bytes of the SHA256 digest are
// base58-encoded, short enough for log lines and file names while still
// collision-resistant across configs.
//
// The same canonical config always yields the same run ID, which is what
// lets a verification pass replay a run and compare records by ID.
func ComputeRunID(canonicalConfig string) string {
	hash := sha256.Sum256([]byte(canonicalConfig))
	return base58.Encode(hash[:16])
}
