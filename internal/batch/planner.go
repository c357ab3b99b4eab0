// Package batch partitions target identities into fixed-size batches.
package batch

import (
	"iter"

	"github.com/JakeFAU/creator-crawler/internal/crawler"
)

// DefaultSize is the number of targets crawled per account per batch.
const DefaultSize = 5

// Plan yields consecutive batches of at most size targets in input order.
// The sequence is pure and can be ranged over any number of times.
func Plan(targets []string, size int) iter.Seq[crawler.Batch] {
	if size <= 0 {
		size = DefaultSize
	}
	return func(yield func(crawler.Batch) bool) {
		for seq, start := 0, 0; start < len(targets); seq, start = seq+1, start+size {
			end := min(start+size, len(targets))
			b := crawler.Batch{
				Sequence: seq,
				Targets:  append([]string(nil), targets[start:end]...),
			}
			if !yield(b) {
				return
			}
		}
	}
}

// Count returns the number of batches Plan produces for n targets.
func Count(n, size int) int {
	if size <= 0 {
		size = DefaultSize
	}
	if n <= 0 {
		return 0
	}
	return (n + size - 1) / size
}
