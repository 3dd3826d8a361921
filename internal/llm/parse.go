package llm

import (
	"encoding/json"
	"strings"
)

// DecodeCompletion normalizes raw completion text into a JSON document.
// It strips markdown fences, then tries the whole text, then the first
// balanced JSON object embedded in surrounding prose. When nothing
// parses it returns an empty stub document so callers always get valid
// JSON; the second return reports whether real content was recovered.
func DecodeCompletion(raw string) (json.RawMessage, bool) {
	text := cleanJSONResponse(raw)
	if text != "" && json.Valid([]byte(text)) {
		return json.RawMessage(text), true
	}
	if block := extractJSON(text); block != "" && json.Valid([]byte(block)) {
		return json.RawMessage(block), true
	}
	return StubDocument(), false
}

// StubDocument is the fallback for unparseable completions: the provider
// call itself succeeded, so downstream stages receive an empty
// zero-confidence result instead of an error.
func StubDocument() json.RawMessage {
	return json.RawMessage(`{"findings":[],"summary":"analysis completed but output could not be parsed; treat as low confidence","confidence":0}`)
}

// cleanJSONResponse removes markdown code fences from a completion.
func cleanJSONResponse(resp string) string {
	resp = strings.TrimSpace(resp)
	resp = strings.TrimPrefix(resp, "```json")
	resp = strings.TrimPrefix(resp, "```")
	resp = strings.TrimSuffix(resp, "```")
	return strings.TrimSpace(resp)
}

// extractJSON returns the first balanced JSON object in the text.
func extractJSON(response string) string {
	start := strings.Index(response, "{")
	if start == -1 {
		return ""
	}

	depth := 0
	for i := start; i < len(response); i++ {
		switch response[i] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return response[start : i+1]
			}
		}
	}

	return ""
}
