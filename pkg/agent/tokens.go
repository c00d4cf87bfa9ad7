package agent

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// charsPerToken is the approximate number of characters per token for English
// text. Used for budget estimation only — not exact token counting.
const charsPerToken = 4

// perMessageOverhead is the approximate token cost of a message's framing
// (role tag, separators) on chat-format providers.
const perMessageOverhead = 4

// nameOverhead is the approximate extra token cost when a message carries a
// speaker name tag.
const nameOverhead = 1

// TokenCounter estimates token counts for text. Implementations report which
// encoder they use so run diagnostics can record it.
type TokenCounter interface {
	Count(text string) int
	Name() string
}

// HeuristicCounter is the default TokenCounter: ~4 characters per token.
// Exact counts would require a tokenizer library per provider; the budget
// checks this feeds are soft thresholds, so the heuristic is sufficient.
//
// Note: len(text) counts bytes, not Unicode characters. For multi-byte UTF-8
// content this overestimates the token count, which errs in the safe
// direction — truncation triggers slightly earlier than strictly necessary.
type HeuristicCounter struct{}

// Count returns an approximate token count for the given text.
func (HeuristicCounter) Count(text string) int {
	return EstimateTokens(text)
}

// Name identifies the encoder for diagnostics.
func (HeuristicCounter) Name() string { return "heuristic" }

// EstimateTokens returns an approximate token count using the ~4 chars/token
// heuristic, rounding up.
func EstimateTokens(text string) int {
	if len(text) == 0 {
		return 0
	}
	return (len(text) + charsPerToken - 1) / charsPerToken
}

// CountMessageTokens returns the estimated token cost of a single message,
// including the per-message framing overhead and the name-tag overhead.
func CountMessageTokens(counter TokenCounter, msg ConversationMessage) int {
	n := counter.Count(msg.Content) + perMessageOverhead
	if msg.Name != "" {
		n += nameOverhead + counter.Count(msg.Name)
	}
	for _, tc := range msg.ToolCalls {
		n += counter.Count(tc.Name) + counter.Count(tc.Arguments)
	}
	return n
}

// CountHistoryTokens returns the estimated token cost of an entire history.
func CountHistoryTokens(counter TokenCounter, msgs []ConversationMessage) int {
	total := 0
	for _, m := range msgs {
		total += CountMessageTokens(counter, m)
	}
	return total
}

// ShouldTruncate reports whether the history has reached ratio·contextWindow
// tokens. ratio ∈ (0,1]; a zero or negative window disables the check.
func ShouldTruncate(counter TokenCounter, msgs []ConversationMessage, ratio float64, contextWindow int) bool {
	if contextWindow <= 0 {
		return false
	}
	return float64(CountHistoryTokens(counter, msgs)) >= ratio*float64(contextWindow)
}

// SummarizeLongMessage returns the message unchanged if its content fits
// maxChars bytes; otherwise a copy truncated at a rune boundary with an
// explicit marker appended. The role is always preserved.
func SummarizeLongMessage(msg ConversationMessage, maxChars int) ConversationMessage {
	if maxChars <= 0 || len(msg.Content) <= maxChars {
		return msg
	}
	cut := maxChars
	for cut > 0 && !utf8.RuneStart(msg.Content[cut]) {
		cut--
	}
	truncated := msg.Content[:cut]
	if idx := strings.LastIndex(truncated, "\n"); idx > 0 {
		truncated = truncated[:idx]
	}
	msg.Content = truncated + fmt.Sprintf(
		"\n\n[truncated: original %d bytes, limit %d]", len(msg.Content), maxChars)
	return msg
}
