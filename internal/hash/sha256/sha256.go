// Package sha256 derives the fingerprints used for indexed duplicate lookups.
package sha256

import (
	"crypto/sha256"
	"encoding/hex"
)

// Fingerprint keys a record by its normalized title and authors string. The
// unit separator keeps ("ab", "c") and ("a", "bc") apart.
func Fingerprint(normalizedTitle, authors string) string {
	h := sha256.New()
	h.Write([]byte(normalizedTitle))
	h.Write([]byte{0x1f})
	h.Write([]byte(authors))
	return hex.EncodeToString(h.Sum(nil))
}
