// Package controller drives the auto-continuation loop: detect tool calls in
// an LLM completion (native or tagged-markup), execute them, inject the
// results back into the conversation, and re-invoke the LLM until a stop
// condition is met.
package controller

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"
)

// Tagged-markup tool-call delimiters. Providers without native tool calling
// emit calls as XML-ish blocks in the text stream.
const (
	openBlockTag  = "<function_calls>"
	closeBlockTag = "</function_calls>"
)

var (
	invokePattern    = regexp.MustCompile(`(?s)<invoke\s+name="([^"]+)"\s*>(.*?)</invoke>`)
	parameterPattern = regexp.MustCompile(`(?s)<parameter\s+name="([^"]+)"\s*>(.*?)</parameter>`)
)

// Invocation is one tool call parsed from tagged markup.
type Invocation struct {
	Name string
	Args map[string]any
}

// MarkupParser incrementally extracts tagged-markup tool calls from a
// streamed LLM response. Feed it chunks in arrival order; complete
// invocations are emitted only once their closing tag has arrived, and text
// that might still turn out to be the start of a markup block is held back
// until disambiguated. Visible text has the markup stripped.
type MarkupParser struct {
	buf     strings.Builder
	visible strings.Builder
	calls   []Invocation
}

// NewMarkupParser creates an empty parser.
func NewMarkupParser() *MarkupParser {
	return &MarkupParser{}
}

// Feed appends one streamed chunk and returns any invocations completed by
// it. Safe to call with arbitrarily split chunks, including tags broken
// across chunk boundaries.
func (p *MarkupParser) Feed(chunk string) []Invocation {
	p.buf.WriteString(chunk)
	var completed []Invocation

	for {
		s := p.buf.String()
		start := strings.Index(s, openBlockTag)
		if start < 0 {
			// No open tag: everything except a possible partial tag at the
			// tail is plain visible text.
			hold := partialTagStart(s)
			p.visible.WriteString(s[:hold])
			p.buf.Reset()
			p.buf.WriteString(s[hold:])
			return completed
		}

		end := strings.Index(s[start:], closeBlockTag)
		if end < 0 {
			// Block is still streaming; emit the text before it and wait.
			p.visible.WriteString(s[:start])
			p.buf.Reset()
			p.buf.WriteString(s[start:])
			return completed
		}

		block := s[start : start+end+len(closeBlockTag)]
		parsed := parseBlock(block)
		completed = append(completed, parsed...)
		p.calls = append(p.calls, parsed...)

		p.visible.WriteString(s[:start])
		p.buf.Reset()
		p.buf.WriteString(s[start+end+len(closeBlockTag):])
	}
}

// Finish flushes any held-back text (a partial tag that never completed is
// plain text after all) and returns every invocation seen.
func (p *MarkupParser) Finish() []Invocation {
	p.visible.WriteString(p.buf.String())
	p.buf.Reset()
	return p.calls
}

// Visible returns the response text with all markup blocks stripped.
func (p *MarkupParser) Visible() string {
	return p.visible.String()
}

// ParseMarkup parses a complete (non-streamed) response in one shot.
func ParseMarkup(text string) (visible string, calls []Invocation) {
	p := NewMarkupParser()
	p.Feed(text)
	calls = p.Finish()
	return p.Visible(), calls
}

func parseBlock(block string) []Invocation {
	var calls []Invocation
	for _, m := range invokePattern.FindAllStringSubmatch(block, -1) {
		inv := Invocation{Name: m[1], Args: map[string]any{}}
		for _, pm := range parameterPattern.FindAllStringSubmatch(m[2], -1) {
			inv.Args[pm[1]] = inferType(strings.TrimSpace(pm[2]))
		}
		calls = append(calls, inv)
	}
	return calls
}

// inferType converts a raw parameter value: int, then float, then bool, then
// JSON object/array, then string.
func inferType(raw string) any {
	if n, err := strconv.Atoi(raw); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return f
	}
	if b, err := strconv.ParseBool(raw); err == nil {
		return b
	}
	if len(raw) > 0 && (raw[0] == '{' || raw[0] == '[') {
		var v any
		if err := json.Unmarshal([]byte(raw), &v); err == nil {
			return v
		}
	}
	return raw
}

// partialTagStart returns the offset where a suffix of s could be the start
// of an open-block tag; len(s) when no such suffix exists. The check runs on
// every feed so it only scans the short tail that could overlap the tag.
func partialTagStart(s string) int {
	max := len(openBlockTag) - 1
	if max > len(s) {
		max = len(s)
	}
	for l := max; l > 0; l-- {
		if strings.HasPrefix(openBlockTag, s[len(s)-l:]) {
			return len(s) - l
		}
	}
	return len(s)
}
