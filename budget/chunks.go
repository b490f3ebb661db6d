// Chunk allocation across retrieved documents.
package budget

import (
	"math"
	"sort"
)

// DocumentStats describes one ranked document from the retrieval provider.
type DocumentStats struct {
	DocID           string
	Relevance       float64
	AvailableChunks int
}

// AllocateChunks distributes a chunk budget of topN across documents in
// proportion to relevance. Pure function: identical inputs yield identical
// output. Guarantees sum(allocation) <= topN and allocation[i] never
// exceeds the document's available chunks. Results align with input order.
func AllocateChunks(results []DocumentStats, topN int) []int {
	n := len(results)
	alloc := make([]int, n)
	if n == 0 || topN <= 0 {
		return alloc
	}

	var totalRelevance float64
	for _, r := range results {
		totalRelevance += r.Relevance
	}

	// No signal to prefer any one document: spread the budget evenly.
	if totalRelevance == 0 {
		even := (topN + n - 1) / n
		remaining := topN
		for i, r := range results {
			take := min(even, min(remaining, r.AvailableChunks))
			if take < 0 {
				take = 0
			}
			alloc[i] = take
			remaining -= take
		}
		return alloc
	}

	// Sort indices by relevance descending, stable on input order.
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return results[order[a]].Relevance > results[order[b]].Relevance
	})

	remaining := topN
	remainingRelevance := totalRelevance
	for _, idx := range order {
		if remaining <= 0 {
			break
		}
		r := results[idx]
		share := 0
		if remainingRelevance > 0 {
			share = int(math.Round(float64(remaining) * r.Relevance / remainingRelevance))
		}
		share = min(share, min(remaining, r.AvailableChunks))
		if share < 0 {
			share = 0
		}
		alloc[idx] = share
		remaining -= share
		remainingRelevance -= r.Relevance
	}

	// Rounding loss and per-document caps can leave budget unspent.
	// Hand it to the highest-relevance documents that still have room.
	for _, idx := range order {
		if remaining <= 0 {
			break
		}
		room := results[idx].AvailableChunks - alloc[idx]
		if room <= 0 {
			continue
		}
		take := min(room, remaining)
		alloc[idx] += take
		remaining -= take
	}

	return alloc
}
