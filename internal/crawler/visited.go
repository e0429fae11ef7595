package crawler

import (
	"github.com/bits-and-blooms/bloom/v3"
)

const (
	// Sized for large gopher holes; past this the false positive rate
	// rises but correctness does not change.
	visitedEstimate = 1_000_000
	visitedFPRate   = 0.01
)

// visitedSet records requested selectors. The bloom filter answers most
// lookups for unseen selectors; the map settles its false positives.
// Not safe for concurrent use on its own.
type visitedSet struct {
	seen  *bloom.BloomFilter
	exact map[string]struct{}
}

func newVisitedSet() *visitedSet {
	return &visitedSet{
		seen:  bloom.NewWithEstimates(visitedEstimate, visitedFPRate),
		exact: make(map[string]struct{}),
	}
}

// add marks selector visited and reports whether it was new
func (v *visitedSet) add(selector string) bool {
	if v.seen.TestAndAddString(selector) {
		if _, ok := v.exact[selector]; ok {
			return false
		}
	}
	v.exact[selector] = struct{}{}
	return true
}

func (v *visitedSet) len() int {
	return len(v.exact)
}
