package summarizer

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Fingerprint computes a stable digest of summary content. Whitespace is
// canonicalized first so incidental formatting differences between two
// otherwise identical summaries don't register as content changes.
func Fingerprint(content string) string {
	canonical := strings.Join(strings.Fields(content), " ")
	sum := sha256.Sum256([]byte(canonical))
	return hex.EncodeToString(sum[:])
}
