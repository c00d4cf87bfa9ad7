package agent

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type planPayload struct {
	Queries   []string `json:"queries"`
	Reasoning string   `json:"reasoning"`
}

func TestDecodeStructured(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    []string
		wantErr bool
	}{
		{
			name:    "bare object",
			content: `{"queries":["a","b"],"reasoning":"because"}`,
			want:    []string{"a", "b"},
		},
		{
			name:    "fenced json",
			content: "```json\n{\"queries\":[\"a\"]}\n```",
			want:    []string{"a"},
		},
		{
			name:    "fence without language",
			content: "```\n{\"queries\":[\"a\"]}\n```",
			want:    []string{"a"},
		},
		{
			name:    "prose around object",
			content: "Here is the plan:\n{\"queries\":[\"x\",\"y\"]}\nLet me know.",
			want:    []string{"x", "y"},
		},
		{
			name:    "no json",
			content: "I could not produce a plan.",
			wantErr: true,
		},
		{
			name:    "malformed json",
			content: `{"queries": [unquoted]}`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeStructured[planPayload](tt.content)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.Queries)
		})
	}
}

func TestExtractJSONArray(t *testing.T) {
	doc, err := ExtractJSON(`The queries are ["a", "b"] as requested.`)
	require.NoError(t, err)
	assert.Equal(t, `["a", "b"]`, doc)
}
