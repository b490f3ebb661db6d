// Package json recovers JSON payloads from model output.
//
// Models asked for JSON often wrap it in prose or markdown fences anyway.
// The extractor strips fences and scans for the first balanced object,
// ignoring braces that appear inside strings.
package json

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ExtractJSONFromResponse extracts the first JSON object from a model
// response and unmarshals it into T.
func ExtractJSONFromResponse[T any](response string) (T, error) {
	var result T
	payload, err := ExtractJSON(response)
	if err != nil {
		return result, err
	}
	if err := json.Unmarshal([]byte(payload), &result); err != nil {
		return result, fmt.Errorf("failed to unmarshal JSON: %w", err)
	}
	return result, nil
}

// ExtractJSON returns the first JSON object found in a model response.
// Handles pure JSON, fenced JSON, and objects embedded in surrounding
// text. Top-level arrays are not supported.
func ExtractJSON(response string) (string, error) {
	stripped := stripFences(response)

	if json.Valid([]byte(stripped)) {
		return stripped, nil
	}

	if payload, ok := firstObject(stripped); ok {
		return payload, nil
	}

	preview := response
	if len(preview) > 100 {
		preview = preview[:100] + "..."
	}
	return "", fmt.Errorf("failed to extract valid JSON from response: %q", preview)
}

// stripFences removes a surrounding markdown code fence, with or without
// a language tag.
func stripFences(response string) string {
	trimmed := strings.TrimSpace(response)
	if strings.HasPrefix(trimmed, "```json") {
		trimmed = strings.TrimSpace(strings.TrimPrefix(trimmed, "```json"))
	} else if strings.HasPrefix(trimmed, "```") {
		trimmed = strings.TrimSpace(strings.TrimPrefix(trimmed, "```"))
	}
	if strings.HasSuffix(trimmed, "```") {
		trimmed = strings.TrimSpace(strings.TrimSuffix(trimmed, "```"))
	}
	return trimmed
}

// firstObject returns the first balanced object in s that parses as valid
// JSON. Candidates that balance but fail validation are skipped so that a
// stray brace earlier in the text does not mask a real object after it.
func firstObject(s string) (string, bool) {
	for start := strings.IndexByte(s, '{'); start != -1; {
		if end, ok := matchBrace(s, start); ok {
			candidate := s[start : end+1]
			if json.Valid([]byte(candidate)) {
				return candidate, true
			}
		}
		offset := strings.IndexByte(s[start+1:], '{')
		if offset == -1 {
			break
		}
		start += 1 + offset
	}
	return "", false
}

// matchBrace returns the index of the brace closing the object opened at
// start. Braces inside strings do not count toward nesting depth.
func matchBrace(s string, start int) (int, bool) {
	depth := 0
	inString := false
	escaped := false

	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i, true
			}
		}
	}
	return 0, false
}
