package knol

import (
	"crypto/sha256"
	"fmt"
	"strings"
)

// Normalize cleans a card key before it is stored: it trims surrounding
// whitespace and normalizes line endings. Case is preserved.
func Normalize(key string) string {
	k := strings.ReplaceAll(key, "\r\n", "\n")
	return strings.TrimSpace(k)
}

// Fold returns the form of a key used for case-insensitive lookups.
func Fold(key string) string {
	return strings.ToLower(Normalize(key))
}

// Hash returns the SHA-256 of content as a hex string. It is the fingerprint
// used to detect that a remote file changed since it was last seen. Empty
// content (a missing file) hashes to the empty string.
func Hash(content string) string {
	if content == "" {
		return ""
	}
	hashBytes := sha256.Sum256([]byte(content))
	return fmt.Sprintf("%x", hashBytes)
}
