package store

import (
	"crypto/sha256"
	"fmt"
)

// HashPostContent computes SHA-256 of source + text. A re-synced post whose
// text and source are unchanged hashes identically and is skipped.
func HashPostContent(source, text string) string {
	h := sha256.New()
	h.Write([]byte(source))
	h.Write([]byte{0}) // separator
	h.Write([]byte(text))
	return fmt.Sprintf("%x", h.Sum(nil))
}
