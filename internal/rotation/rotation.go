// Package rotation selects the account used for each batch.
package rotation

import (
	"fmt"
	"slices"

	"github.com/JakeFAU/creator-crawler/internal/crawler"
)

// SelectNext returns the account after previous in valid, wrapping around.
// A previous account that is empty or no longer valid restarts the rotation
// at the first valid account.
func SelectNext(valid []string, previous string) (string, error) {
	if len(valid) == 0 {
		return "", fmt.Errorf("select account: empty valid set: %w", crawler.ErrInvariantViolation)
	}
	idx := -1
	if previous != "" {
		idx = slices.Index(valid, previous)
	}
	return valid[(idx+1)%len(valid)], nil
}
