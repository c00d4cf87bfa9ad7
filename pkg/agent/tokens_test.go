package agent

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEstimateTokens(t *testing.T) {
	assert.Equal(t, 0, EstimateTokens(""))
	assert.Equal(t, 1, EstimateTokens("abc"))  // rounds up
	assert.Equal(t, 1, EstimateTokens("abcd")) // exact boundary
	assert.Equal(t, 2, EstimateTokens("abcde"))
	assert.Equal(t, 25, EstimateTokens(strings.Repeat("x", 100)))
}

func TestCountMessageTokens(t *testing.T) {
	counter := HeuristicCounter{}

	plain := ConversationMessage{Role: RoleUser, Content: strings.Repeat("a", 40)}
	assert.Equal(t, 10+perMessageOverhead, CountMessageTokens(counter, plain))

	named := ConversationMessage{Role: RoleUser, Content: strings.Repeat("a", 40), Name: "alice"}
	assert.Equal(t, 10+perMessageOverhead+nameOverhead+2, CountMessageTokens(counter, named))

	withCall := ConversationMessage{
		Role:      RoleAssistant,
		ToolCalls: []ToolCall{{Name: "search", Arguments: `{"q":"x"}`}},
	}
	assert.Greater(t, CountMessageTokens(counter, withCall), perMessageOverhead)
}

func TestShouldTruncate(t *testing.T) {
	counter := HeuristicCounter{}
	msgs := []ConversationMessage{
		{Role: RoleUser, Content: strings.Repeat("a", 400)}, // ~104 tokens
	}

	assert.False(t, ShouldTruncate(counter, msgs, 0.8, 1000))
	assert.True(t, ShouldTruncate(counter, msgs, 0.1, 1000))
	assert.False(t, ShouldTruncate(counter, msgs, 0.1, 0), "zero window disables the check")
}

func TestSummarizeLongMessage(t *testing.T) {
	short := ConversationMessage{Role: RoleTool, Content: "ok"}
	assert.Equal(t, short, SummarizeLongMessage(short, 100))

	long := ConversationMessage{Role: RoleTool, Content: strings.Repeat("line\n", 100)}
	got := SummarizeLongMessage(long, 50)
	assert.Equal(t, RoleTool, got.Role, "role must be preserved")
	assert.Contains(t, got.Content, "[truncated:")
	assert.Less(t, len(got.Content), len(long.Content))

	// Multi-byte content must not be split mid-rune.
	utf := ConversationMessage{Role: RoleUser, Content: strings.Repeat("héllo ", 40)}
	trimmed := SummarizeLongMessage(utf, 33)
	for _, r := range trimmed.Content {
		assert.NotEqual(t, '�', r)
	}
}

func TestHeuristicCounterName(t *testing.T) {
	assert.Equal(t, "heuristic", HeuristicCounter{}.Name())
}
