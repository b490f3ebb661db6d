package budget

import (
	"reflect"
	"testing"
)

func TestAllocateChunksProportional(t *testing.T) {
	results := []DocumentStats{
		{DocID: "a", Relevance: 0.6, AvailableChunks: 10},
		{DocID: "b", Relevance: 0.3, AvailableChunks: 10},
		{DocID: "c", Relevance: 0.1, AvailableChunks: 10},
	}

	alloc := AllocateChunks(results, 10)

	expected := []int{6, 3, 1}
	if !reflect.DeepEqual(alloc, expected) {
		t.Errorf("expected %v, got %v", expected, alloc)
	}

	total := 0
	for _, n := range alloc {
		total += n
	}
	if total != 10 {
		t.Errorf("expected total allocation 10, got %d", total)
	}
}

func TestAllocateChunksRespectsBudgetAndCaps(t *testing.T) {
	cases := []struct {
		name    string
		results []DocumentStats
		topN    int
	}{
		{
			name: "caps below share",
			results: []DocumentStats{
				{DocID: "a", Relevance: 0.9, AvailableChunks: 2},
				{DocID: "b", Relevance: 0.1, AvailableChunks: 20},
			},
			topN: 10,
		},
		{
			name: "more docs than budget",
			results: []DocumentStats{
				{DocID: "a", Relevance: 0.5, AvailableChunks: 5},
				{DocID: "b", Relevance: 0.3, AvailableChunks: 5},
				{DocID: "c", Relevance: 0.1, AvailableChunks: 5},
				{DocID: "d", Relevance: 0.1, AvailableChunks: 5},
			},
			topN: 2,
		},
		{
			name: "scarce chunks everywhere",
			results: []DocumentStats{
				{DocID: "a", Relevance: 0.7, AvailableChunks: 1},
				{DocID: "b", Relevance: 0.2, AvailableChunks: 1},
				{DocID: "c", Relevance: 0.1, AvailableChunks: 1},
			},
			topN: 10,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			alloc := AllocateChunks(tc.results, tc.topN)

			if len(alloc) != len(tc.results) {
				t.Fatalf("expected %d allocations, got %d", len(tc.results), len(alloc))
			}

			total := 0
			for i, n := range alloc {
				if n < 0 {
					t.Errorf("doc %d: negative allocation %d", i, n)
				}
				if n > tc.results[i].AvailableChunks {
					t.Errorf("doc %d: allocated %d, only %d available", i, n, tc.results[i].AvailableChunks)
				}
				total += n
			}
			if total > tc.topN {
				t.Errorf("total allocation %d exceeds budget %d", total, tc.topN)
			}
		})
	}
}

func TestAllocateChunksZeroRelevance(t *testing.T) {
	results := []DocumentStats{
		{DocID: "a", Relevance: 0, AvailableChunks: 10},
		{DocID: "b", Relevance: 0, AvailableChunks: 10},
		{DocID: "c", Relevance: 0, AvailableChunks: 10},
	}

	alloc := AllocateChunks(results, 10)

	// ceil(10/3) = 4 per doc until the budget runs out.
	expected := []int{4, 4, 2}
	if !reflect.DeepEqual(alloc, expected) {
		t.Errorf("expected %v, got %v", expected, alloc)
	}
}

func TestAllocateChunksIdempotent(t *testing.T) {
	results := []DocumentStats{
		{DocID: "a", Relevance: 0.45, AvailableChunks: 3},
		{DocID: "b", Relevance: 0.35, AvailableChunks: 8},
		{DocID: "c", Relevance: 0.20, AvailableChunks: 8},
	}

	first := AllocateChunks(results, 12)
	second := AllocateChunks(results, 12)

	if !reflect.DeepEqual(first, second) {
		t.Errorf("expected identical allocations, got %v then %v", first, second)
	}
}

func TestAllocateChunksEmptyInput(t *testing.T) {
	if alloc := AllocateChunks(nil, 10); len(alloc) != 0 {
		t.Errorf("expected empty allocation, got %v", alloc)
	}
	if alloc := AllocateChunks([]DocumentStats{{DocID: "a", Relevance: 1, AvailableChunks: 5}}, 0); alloc[0] != 0 {
		t.Errorf("expected zero allocation with zero budget, got %v", alloc)
	}
}

func TestAllocateChunksRedistributesLeftovers(t *testing.T) {
	// Rounding loss must flow back to the highest-relevance documents.
	results := []DocumentStats{
		{DocID: "a", Relevance: 0.9, AvailableChunks: 3},
		{DocID: "b", Relevance: 0.1, AvailableChunks: 20},
	}

	alloc := AllocateChunks(results, 10)

	if alloc[0] != 3 {
		t.Errorf("expected doc a capped at 3, got %d", alloc[0])
	}
	if alloc[0]+alloc[1] != 10 {
		t.Errorf("expected full budget spent, got %d", alloc[0]+alloc[1])
	}
}
