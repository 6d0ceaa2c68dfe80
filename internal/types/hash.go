package types

import (
	"crypto/sha256"
	"encoding/hex"
)

// HashContent returns the canonical content hash used for cache keys and
// enhancement records: hex SHA-256, truncated to 16 bytes for readability.
func HashContent(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:16])
}

// HashBytes is HashContent over raw bytes.
func HashBytes(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:16])
}
