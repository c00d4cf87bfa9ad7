package agent

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ExtractJSON returns the JSON document embedded in an LLM response. It
// tolerates the two wrappings models actually produce: markdown code fences
// and leading/trailing prose around a single object or array.
func ExtractJSON(content string) (string, error) {
	s := strings.TrimSpace(content)

	// Markdown fence: ```json ... ``` or ``` ... ```
	if idx := strings.Index(s, "```"); idx >= 0 {
		rest := s[idx+3:]
		if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
			rest = rest[nl+1:]
		}
		if end := strings.Index(rest, "```"); end >= 0 {
			s = strings.TrimSpace(rest[:end])
		}
	}

	start := strings.IndexAny(s, "{[")
	if start < 0 {
		return "", fmt.Errorf("no JSON object in response")
	}
	var closer byte = '}'
	if s[start] == '[' {
		closer = ']'
	}
	end := strings.LastIndexByte(s, closer)
	if end < start {
		return "", fmt.Errorf("unterminated JSON in response")
	}
	return s[start : end+1], nil
}

// DecodeStructured unmarshals the JSON document embedded in an LLM response
// into T. Unknown fields are ignored; a missing or malformed document returns
// an error so the caller can re-prompt once and then fall back.
func DecodeStructured[T any](content string) (T, error) {
	var out T
	doc, err := ExtractJSON(content)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal([]byte(doc), &out); err != nil {
		return out, fmt.Errorf("decode structured response: %w", err)
	}
	return out, nil
}
