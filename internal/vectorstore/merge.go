package vectorstore

import (
	"cmp"
	"slices"
	"strings"
)

// candidate is one result of a single-partition search.
type candidate struct {
	itemID string
	score  float32
}

// rankCandidates orders one search's results by descending score, breaking
// ties by item id, and keeps the first k.
func rankCandidates(cs []candidate, k int) []candidate {
	slices.SortFunc(cs, func(a, b candidate) int {
		if c := cmp.Compare(b.score, a.score); c != 0 {
			return c
		}
		return strings.Compare(a.itemID, b.itemID)
	})
	if len(cs) > k {
		cs = cs[:k]
	}
	return cs
}

// appendHits adds one ranked search to the pool.
func appendHits(pool []Hit, tag string, cs []candidate) []Hit {
	for _, c := range cs {
		pool = append(pool, Hit{ItemID: c.itemID, Tag: tag, Score: c.score})
	}
	return pool
}

// mergeHits turns the pool into the final result. Equal scores keep pool order.
// The result is never nil.
func mergeHits(pool []Hit, numItems int, removeDuplicates bool) []Hit {
	if pool == nil {
		pool = []Hit{}
	}
	slices.SortStableFunc(pool, func(a, b Hit) int {
		return cmp.Compare(b.Score, a.Score)
	})

	if removeDuplicates {
		seen := make(map[string]struct{}, len(pool))
		kept := pool[:0]
		for _, h := range pool {
			if _, ok := seen[h.ItemID]; ok {
				continue
			}
			seen[h.ItemID] = struct{}{}
			kept = append(kept, h)
		}
		pool = kept
	}

	if len(pool) > numItems {
		pool = pool[:numItems]
	}
	return pool
}

// uniqueTags drops repeated tags, keeping first-seen order.
func uniqueTags(tags []string) []string {
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}
