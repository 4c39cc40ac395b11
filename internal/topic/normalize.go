// Package topic normalizes subscriber topic strings so that visually
// different but semantically identical topics group together.
package topic

import (
	"errors"
	"strings"

	"golang.org/x/text/cases"
)

// ErrEmpty indicates a topic that is empty after normalization. Subscriptions
// carrying such topics are a data-quality problem, not a fatal condition.
var ErrEmpty = errors.New("topic empty after normalization")

var folder = cases.Fold()

// Normalize produces the canonical grouping key for a topic: Unicode case
// fold, trimmed, with internal whitespace collapsed to single spaces. The
// transform is deterministic and idempotent.
func Normalize(raw string) (string, error) {
	folded := folder.String(raw)
	fields := strings.Fields(folded)
	if len(fields) == 0 {
		return "", ErrEmpty
	}
	return strings.Join(fields, " "), nil
}
