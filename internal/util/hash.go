package util

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// HashSubject derives the opaque identifier stored and logged instead of a
// raw trainee identity.
func HashSubject(value string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(value)))
	return hex.EncodeToString(sum[:])
}

// ShortHash shortens a hash for log fields; full hashes stay in storage.
func ShortHash(hash string) string {
	if len(hash) <= 12 {
		return hash
	}
	return hash[:12]
}
