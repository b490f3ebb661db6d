package json

import (
	"strings"
	"testing"
)

type reviewPayload struct {
	Status     string `json:"status"`
	Confidence int    `json:"confidence"`
}

func TestExtractJSONFromResponse(t *testing.T) {
	tests := []struct {
		name     string
		response string
	}{
		{
			name:     "pure JSON",
			response: `{"status": "ok", "confidence": 42}`,
		},
		{
			name:     "fenced with language tag",
			response: "```json\n{\"status\": \"ok\", \"confidence\": 42}\n```",
		},
		{
			name:     "fenced without language tag",
			response: "```\n{\"status\": \"ok\", \"confidence\": 42}\n```",
		},
		{
			name:     "prose before",
			response: `Here is my assessment: {"status": "ok", "confidence": 42}`,
		},
		{
			name:     "prose after",
			response: `{"status": "ok", "confidence": 42} Let me know if anything is unclear.`,
		},
		{
			name:     "prose on both sides",
			response: `Thinking it over... {"status": "ok", "confidence": 42} Done.`,
		},
		{
			name:     "trailing prose contains a brace",
			response: `{"status": "ok", "confidence": 42} (note: the set {a, b} was empty)`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := ExtractJSONFromResponse[reviewPayload](tt.response)
			if err != nil {
				t.Fatalf("ExtractJSONFromResponse failed: %v", err)
			}
			if result.Status != "ok" {
				t.Errorf("expected status ok, got %q", result.Status)
			}
			if result.Confidence != 42 {
				t.Errorf("expected confidence 42, got %d", result.Confidence)
			}
		})
	}
}

func TestExtractJSONBracesInsideStrings(t *testing.T) {
	response := `Result: {"status": "closing } inside", "confidence": 7}`
	result, err := ExtractJSONFromResponse[reviewPayload](response)
	if err != nil {
		t.Fatalf("ExtractJSONFromResponse failed: %v", err)
	}
	if result.Status != "closing } inside" {
		t.Errorf("expected brace preserved inside string, got %q", result.Status)
	}
}

func TestExtractJSONSkipsInvalidCandidate(t *testing.T) {
	response := `{not json} but then {"status": "ok", "confidence": 1}`
	result, err := ExtractJSONFromResponse[reviewPayload](response)
	if err != nil {
		t.Fatalf("ExtractJSONFromResponse failed: %v", err)
	}
	if result.Status != "ok" {
		t.Errorf("expected later valid object, got %q", result.Status)
	}
}

func TestExtractJSONNoObject(t *testing.T) {
	_, err := ExtractJSONFromResponse[reviewPayload]("This is just plain text without any JSON.")
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if !strings.Contains(err.Error(), "failed to extract valid JSON") {
		t.Errorf("expected extraction error with preview, got: %v", err)
	}
}

func TestExtractJSONUnbalanced(t *testing.T) {
	_, err := ExtractJSONFromResponse[reviewPayload](`{"status": "ok", "confidence": `)
	if err == nil {
		t.Fatal("expected error for unterminated object, got nil")
	}
}

func TestExtractJSONErrorPreviewTruncated(t *testing.T) {
	_, err := ExtractJSON(strings.Repeat("x", 300))
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if !strings.Contains(err.Error(), "...") {
		t.Errorf("expected truncated preview in error, got: %v", err)
	}
}
