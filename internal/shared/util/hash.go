package util

import (
	"crypto/sha256"
	"encoding/hex"
)

// HashKey returns the hex SHA-256 of s. Object keys use it in place of case
// ids so a key never carries a client-chosen path segment.
func HashKey(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}
