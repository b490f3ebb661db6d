// Package budget bounds the retrieved content forwarded to the model.
//
// Information Hiding:
// - Image ranking and dedupe policy hidden behind SelectImagesForSynthesis
// - Chunk allocation arithmetic hidden behind AllocateChunks
// - Recent-image window management hidden
package budget

import (
	"sort"

	"github.com/richinex/theseus/model"
	"github.com/richinex/theseus/run"
)

// Budgeter applies per-run content limits.
// The zero value is safe: images default to 8, the recent window to 20.
type Budgeter struct {
	MaxImages    int
	RecentWindow int
}

// maxImages returns the configured image cap, defaulting to 8 if zero.
func (b *Budgeter) maxImages() int {
	if b == nil || b.MaxImages == 0 {
		return 8
	}
	return b.MaxImages
}

// recentWindow returns the recent-image window, defaulting to 20 if zero.
func (b *Budgeter) recentWindow() int {
	if b == nil || b.RecentWindow == 0 {
		return 20
	}
	return b.RecentWindow
}

// RecordToolResult feeds a tool's returned content into the run state.
// Fragment sources are marked seen so later retrieval calls exclude them.
func (b *Budgeter) RecordToolResult(rc *run.Context, turn uint32, fragments []model.Fragment, images []model.ImageArtifact) {
	rc.AddFragments(turn, fragments)
	rc.AddImages(turn, images)
	rc.TrimRecentImages(b.recentWindow())
}

// SelectImagesForSynthesis returns the images forwarded to final synthesis.
// User attachments always outrank tool-retrieved images regardless of
// recency; within each group newer turns come first. Duplicates by file
// name keep the first (highest-priority) occurrence. The result is
// truncated to the configured maximum.
func (b *Budgeter) SelectImagesForSynthesis(rc *run.Context) []model.ImageArtifact {
	merged := append([]model.ImageArtifact{}, rc.TurnImages(rc.TurnCount)...)
	merged = append(merged, rc.RecentImagesCopy()...)

	sort.SliceStable(merged, func(i, j int) bool {
		if merged[i].IsUserAttachment != merged[j].IsUserAttachment {
			return merged[i].IsUserAttachment
		}
		return merged[i].AddedAtTurn > merged[j].AddedAtTurn
	})

	seen := make(map[string]struct{}, len(merged))
	out := []model.ImageArtifact{}
	for _, img := range merged {
		if _, dup := seen[img.FileName]; dup {
			continue
		}
		seen[img.FileName] = struct{}{}
		out = append(out, img)
		if len(out) >= b.maxImages() {
			break
		}
	}
	return out
}
