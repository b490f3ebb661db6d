// Workspace search tool backed by the retrieval provider.
//
// Information Hiding:
// - Chunk budget allocation across ranked documents hidden
// - Seen-document exclusion applied here, invisible to the model
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/richinex/theseus/budget"
	"github.com/richinex/theseus/model"
	"github.com/richinex/theseus/run"
)

// SearchToolName is the retrieval tool offered to the model.
const SearchToolName = "search_workspace"

// RetrievedDocument is one ranked result from the retrieval provider.
type RetrievedDocument struct {
	Source    model.Citation
	Relevance float64
	// Chunks holds the document's content chunks in rank order. The tool
	// forwards only the allocated prefix.
	Chunks []model.Fragment
	Images []model.ImageArtifact
}

// Retriever is the search collaborator. Implementations rank documents by
// relevance and honor the exclusion list.
type Retriever interface {
	Search(ctx context.Context, query string, exclude []string, limit int) ([]RetrievedDocument, error)
}

var searchInputSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"query": {
			"type": "string",
			"description": "Search query over the user's workspace"
		},
		"expected_results": {
			"type": "object",
			"properties": {
				"goal": {"type": "string"},
				"success_criteria": {"type": "array", "items": {"type": "string"}},
				"failure_signals": {"type": "array", "items": {"type": "string"}}
			}
		}
	},
	"required": ["query"]
}`)

// SearchTool queries the retrieval provider and forwards a budget-bounded
// set of content chunks as fragments.
type SearchTool struct {
	retriever Retriever
	topN      int
	maxDocs   int
}

// NewSearchTool creates the search tool. topN bounds the total chunks
// forwarded per call, maxDocs the number of documents requested.
func NewSearchTool(retriever Retriever, topN, maxDocs int) *SearchTool {
	if topN <= 0 {
		topN = 10
	}
	if maxDocs <= 0 {
		maxDocs = 5
	}
	return &SearchTool{retriever: retriever, topN: topN, maxDocs: maxDocs}
}

// Metadata returns the search tool metadata.
func (t *SearchTool) Metadata() Metadata {
	return Metadata{
		Name: SearchToolName,
		Description: "Search the user's workspace for documents relevant to a query. " +
			"Returns content fragments with citations. Documents already retrieved " +
			"this run are excluded automatically.",
		InputSchema: searchInputSchema,
	}
}

type searchArgs struct {
	Query string `json:"query"`
}

// Execute searches, allocates the chunk budget across the ranked results,
// and returns the allocated fragments.
func (t *SearchTool) Execute(ctx context.Context, args json.RawMessage, rc *run.Context) (Output, error) {
	var parsed searchArgs
	if err := json.Unmarshal(args, &parsed); err != nil {
		return Output{}, fmt.Errorf("parse search arguments: %w", err)
	}
	if strings.TrimSpace(parsed.Query) == "" {
		return Output{}, fmt.Errorf("search query must not be empty")
	}

	docs, err := t.retriever.Search(ctx, parsed.Query, rc.SeenDocumentIDs(), t.maxDocs)
	if err != nil {
		return Output{}, fmt.Errorf("search failed: %w", err)
	}
	if len(docs) == 0 {
		return TextOutput("No new documents found for this query."), nil
	}

	stats := make([]budget.DocumentStats, len(docs))
	for i, d := range docs {
		stats[i] = budget.DocumentStats{
			DocID:           d.Source.DocID,
			Relevance:       d.Relevance,
			AvailableChunks: len(d.Chunks),
		}
	}
	alloc := budget.AllocateChunks(stats, t.topN)

	out := Output{Fragments: []model.Fragment{}, Images: []model.ImageArtifact{}}
	var summary strings.Builder
	fmt.Fprintf(&summary, "Found %d documents:\n", len(docs))
	for i, d := range docs {
		take := alloc[i]
		for _, chunk := range d.Chunks[:take] {
			chunk.Source = d.Source
			out.Fragments = append(out.Fragments, chunk)
		}
		if take > 0 {
			out.Images = append(out.Images, d.Images...)
		}
		fmt.Fprintf(&summary, "- %s (relevance %.2f, %d of %d chunks)\n",
			d.Source, d.Relevance, take, len(d.Chunks))
	}
	for _, f := range out.Fragments {
		summary.WriteString("\n")
		summary.WriteString(f.Content)
	}
	out.Text = summary.String()
	return out, nil
}

var _ Tool = (*SearchTool)(nil)
