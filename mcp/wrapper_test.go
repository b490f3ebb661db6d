package mcp

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"testing"
)

func TestDecodeCallResultTextAndResources(t *testing.T) {
	raw := json.RawMessage(`{
		"content": [
			{"type": "text", "text": "Found the policy."},
			{"type": "resource", "resource": {"uri": "doc://policies/42", "title": "Billing Policy", "text": "Invoices are due in 30 days."}}
		]
	}`)

	out, err := decodeCallResult("research", "lookup", raw)
	if err != nil {
		t.Fatalf("decodeCallResult failed: %v", err)
	}

	if out.Text != "Found the policy." {
		t.Errorf("text = %q", out.Text)
	}
	if len(out.Fragments) != 1 {
		t.Fatalf("fragments = %d, want 1", len(out.Fragments))
	}
	frag := out.Fragments[0]
	if frag.Source.DocID != "doc://policies/42" || frag.Source.Title != "Billing Policy" {
		t.Errorf("fragment source = %+v", frag.Source)
	}
	if frag.Source.App != "mcp:research" {
		t.Errorf("fragment app = %q, want mcp:research", frag.Source.App)
	}
	if frag.Content != "Invoices are due in 30 days." {
		t.Errorf("fragment content = %q", frag.Content)
	}
}

func TestDecodeCallResultImage(t *testing.T) {
	encoded := base64.StdEncoding.EncodeToString([]byte("png-bytes"))
	raw := json.RawMessage(fmt.Sprintf(`{
		"content": [
			{"type": "text", "text": "Here is the chart."},
			{"type": "image", "data": %q, "mimeType": "image/png"}
		]
	}`, encoded))

	out, err := decodeCallResult("charts", "render", raw)
	if err != nil {
		t.Fatalf("decodeCallResult failed: %v", err)
	}
	if len(out.Images) != 1 {
		t.Fatalf("images = %d, want 1", len(out.Images))
	}
	img := out.Images[0]
	if img.MimeType != "image/png" {
		t.Errorf("mime type = %q", img.MimeType)
	}
	if string(img.Data) != "png-bytes" {
		t.Errorf("data = %q, want decoded bytes", img.Data)
	}
	if img.FileName == "" {
		t.Error("image file name empty")
	}
}

func TestDecodeCallResultError(t *testing.T) {
	raw := json.RawMessage(`{
		"content": [{"type": "text", "text": "index unavailable"}],
		"isError": true
	}`)

	_, err := decodeCallResult("research", "lookup", raw)
	if err == nil {
		t.Fatal("expected error for isError result")
	}
	if !strings.Contains(err.Error(), "index unavailable") {
		t.Errorf("error = %v, want the server's message", err)
	}
}

func TestDecodeCallResultNonContentPayload(t *testing.T) {
	raw := json.RawMessage(`{"value": 3}`)

	out, err := decodeCallResult("research", "lookup", raw)
	if err != nil {
		t.Fatalf("decodeCallResult failed: %v", err)
	}
	if !strings.Contains(out.Text, `"value": 3`) {
		t.Errorf("text = %q, want pretty-printed JSON", out.Text)
	}
}

func TestDecodeCallResultOnlyAttachments(t *testing.T) {
	raw := json.RawMessage(`{
		"content": [
			{"type": "resource", "resource": {"uri": "doc://a", "text": "body"}}
		]
	}`)

	out, err := decodeCallResult("research", "lookup", raw)
	if err != nil {
		t.Fatalf("decodeCallResult failed: %v", err)
	}
	if !strings.Contains(out.Text, "1 attachment(s)") {
		t.Errorf("text = %q, want attachment note when no text items", out.Text)
	}
}
