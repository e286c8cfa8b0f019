package rewrite

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/54b3r/cinerag-go/internal/rag"
)

func user(text string) rag.ChatTurn      { return rag.ChatTurn{Role: rag.RoleUser, Text: text} }
func assistant(text string) rag.ChatTurn { return rag.ChatTurn{Role: rag.RoleAssistant, Text: text} }

func TestRewrite(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		history []rag.ChatTurn
		query   string
		want    string
	}{
		{
			name:  "no history returns query untouched",
			query: "  anything  ",
			want:  "  anything  ",
		},
		{
			name:    "short follow-up uses last user turn",
			history: []rag.ChatTurn{user("Inception"), assistant("A 2010 film.")},
			query:   "who directed it",
			want:    `In context of: "Inception". Question: who directed it`,
		},
		{
			name:    "latest user turn wins",
			history: []rag.ChatTurn{user("Heat"), assistant("ok"), user("Alien")},
			query:   " cast? ",
			want:    `In context of: "Alien". Question: cast?`,
		},
		{
			name:    "empty user turns are skipped",
			history: []rag.ChatTurn{user("Heat"), user("")},
			query:   "year",
			want:    `In context of: "Heat". Question: year`,
		},
		{
			name:    "long query is only trimmed",
			history: []rag.ChatTurn{user("Inception")},
			query:   " what year was the movie with the spinning top released ",
			want:    "what year was the movie with the spinning top released",
		},
		{
			name:    "exactly six words is still short",
			history: []rag.ChatTurn{user("Heat")},
			query:   "one two three four five six",
			want:    `In context of: "Heat". Question: one two three four five six`,
		},
		{
			name:    "assistant-only history",
			history: []rag.ChatTurn{assistant("Hello!")},
			query:   "  plot  ",
			want:    "plot",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, Rewrite(tc.history, tc.query))
		})
	}
}
