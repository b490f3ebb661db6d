// Document fetch tool for pulling one known document in full.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/richinex/theseus/model"
	"github.com/richinex/theseus/run"
)

// FetchToolName fetches a single document by id.
const FetchToolName = "fetch_document"

// DocumentFetcher is the single-document retrieval collaborator.
type DocumentFetcher interface {
	Fetch(ctx context.Context, docID string) (*RetrievedDocument, error)
}

var fetchInputSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"doc_id": {
			"type": "string",
			"description": "Identifier of the document to fetch"
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
	"required": ["doc_id"]
}`)

// FetchTool retrieves all chunks of one document. Documents already in the
// run's context are rejected instead of re-fetched.
type FetchTool struct {
	fetcher   DocumentFetcher
	maxChunks int
}

// NewFetchTool creates the fetch tool. maxChunks bounds one document's
// contribution.
func NewFetchTool(fetcher DocumentFetcher, maxChunks int) *FetchTool {
	if maxChunks <= 0 {
		maxChunks = 20
	}
	return &FetchTool{fetcher: fetcher, maxChunks: maxChunks}
}

// Metadata returns the fetch tool metadata.
func (t *FetchTool) Metadata() Metadata {
	return Metadata{
		Name: FetchToolName,
		Description: "Fetch the full content of one document by id, when search results " +
			"point at a document worth reading completely.",
		InputSchema: fetchInputSchema,
	}
}

type fetchArgs struct {
	DocID string `json:"doc_id"`
}

// Execute fetches the document unless it was already retrieved this run.
func (t *FetchTool) Execute(ctx context.Context, args json.RawMessage, rc *run.Context) (Output, error) {
	var parsed fetchArgs
	if err := json.Unmarshal(args, &parsed); err != nil {
		return Output{}, fmt.Errorf("parse fetch arguments: %w", err)
	}
	docID := strings.TrimSpace(parsed.DocID)
	if docID == "" {
		return Output{}, fmt.Errorf("doc_id must not be empty")
	}

	if rc.HasSeenDocument(docID) {
		return TextOutputf("Document %s was already retrieved this run; its content is in context.", docID), nil
	}

	doc, err := t.fetcher.Fetch(ctx, docID)
	if err != nil {
		return Output{}, fmt.Errorf("fetch document %s: %w", docID, err)
	}
	if doc == nil || len(doc.Chunks) == 0 {
		return TextOutputf("Document %s has no readable content.", docID), nil
	}

	take := len(doc.Chunks)
	if take > t.maxChunks {
		take = t.maxChunks
	}

	out := Output{Fragments: []model.Fragment{}, Images: doc.Images}
	var text strings.Builder
	fmt.Fprintf(&text, "Content of %s (%d of %d chunks):\n", doc.Source, take, len(doc.Chunks))
	for _, chunk := range doc.Chunks[:take] {
		chunk.Source = doc.Source
		out.Fragments = append(out.Fragments, chunk)
		text.WriteString("\n")
		text.WriteString(chunk.Content)
	}
	out.Text = text.String()
	return out, nil
}

var _ Tool = (*FetchTool)(nil)
