// Package checksum fingerprints stored screenshots so downstream consumers
// can detect duplicate or changed captures between runs.
package checksum

import (
	"crypto/sha256"
	"encoding/hex"
)

// SHA256 returns the hex encoded SHA-256 digest of data.
func SHA256(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
