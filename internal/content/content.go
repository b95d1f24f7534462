// Package content computes content addresses and maps them onto the
// sharded document directory.
package content

import (
	"crypto/sha256"
	"encoding/hex"
)

// HashLen is the length of a hex-encoded SHA-256 digest.
const HashLen = sha256.Size * 2

// shardLen is the number of leading hex characters used as the fan-out directory.
const shardLen = 2

// Hash returns the lowercase hex SHA-256 digest of b. The empty input
// hashes like any other.
func Hash(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// Valid reports whether h is a well-formed content address: exactly
// HashLen lowercase hex characters.
func Valid(h string) bool {
	if len(h) != HashLen {
		return false
	}
	for i := 0; i < len(h); i++ {
		c := h[i]
		if !('0' <= c && c <= '9' || 'a' <= c && c <= 'f') {
			return false
		}
	}
	return true
}

// Shard splits a content address into its fan-out directory and file name.
// The caller must check Valid first.
func Shard(h string) (dir, file string) {
	return h[:shardLen], h[shardLen:]
}
