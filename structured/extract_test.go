package structured

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractJSON(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		raw      string
		want     string
		balanced bool
	}{
		{
			name:     "bare object",
			raw:      `{"a": 1}`,
			want:     `{"a": 1}`,
			balanced: true,
		},
		{
			name:     "prose around object",
			raw:      "Sure! Here is the JSON:\n{\"a\": 1}\nHope that helps.",
			want:     `{"a": 1}`,
			balanced: true,
		},
		{
			name:     "fenced block",
			raw:      "```json\n{\"a\": 1}\n```",
			want:     `{"a": 1}`,
			balanced: true,
		},
		{
			name:     "fence without language tag",
			raw:      "```\n[1, 2]\n```",
			want:     `[1, 2]`,
			balanced: true,
		},
		{
			name:     "nested braces",
			raw:      `before {"a": {"b": [1, {"c": 2}]}} after`,
			want:     `{"a": {"b": [1, {"c": 2}]}}`,
			balanced: true,
		},
		{
			name:     "braces inside string values",
			raw:      `{"text": "a } inside"} trailing {`,
			want:     `{"text": "a } inside"}`,
			balanced: true,
		},
		{
			name:     "truncated object",
			raw:      `{"a": 1, "b": [2, 3`,
			want:     `{"a": 1, "b": [2, 3`,
			balanced: false,
		},
		{
			name:     "no json at all",
			raw:      "just prose, nothing structured",
			want:     "",
			balanced: false,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, balanced := ExtractJSON(tt.raw)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.balanced, balanced)
		})
	}
}

func TestRepairJSON(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "trailing comma in object",
			in:   `{"a": 1,}`,
			want: `{"a": 1}`,
		},
		{
			name: "trailing comma in array",
			in:   `[1, 2, ]`,
			want: `[1, 2 ]`,
		},
		{
			name: "truncated array",
			in:   `{"a": [1, 2`,
			want: `{"a": [1, 2]}`,
		},
		{
			name: "truncated string",
			in:   `{"a": "unfinished`,
			want: `{"a": "unfinished"}`,
		},
		{
			name: "truncated after comma",
			in:   `{"a": 1,`,
			want: `{"a": 1}`,
		},
		{
			name: "interior quote",
			in:   `{"a": "he said "hi" loudly"}`,
			want: `{"a": "he said \"hi\" loudly"}`,
		},
		{
			name: "already valid",
			in:   `{"a": 1}`,
			want: `{"a": 1}`,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got := RepairJSON(tt.in)
			assert.Equal(t, tt.want, got)
			assert.True(t, json.Valid([]byte(got)), "repaired text must parse: %s", got)
		})
	}
}

func TestRepairJSONRoundTrip(t *testing.T) {
	t.Parallel()

	raw := "Here you go:\n```json\n{\"title\": \"report\", \"tags\": [\"a\", \"b\",], \"done\": true,}\n```"
	candidate, balanced := ExtractJSON(raw)
	require.True(t, balanced)

	repaired := RepairJSON(candidate)
	var doc struct {
		Title string   `json:"title"`
		Tags  []string `json:"tags"`
		Done  bool     `json:"done"`
	}
	require.NoError(t, json.Unmarshal([]byte(repaired), &doc))
	assert.Equal(t, "report", doc.Title)
	assert.Equal(t, []string{"a", "b"}, doc.Tags)
	assert.True(t, doc.Done)
}
