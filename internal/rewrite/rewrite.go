// Package rewrite expands short follow-up questions with the most recent user
// turn so that retrieval sees what "it" or "that one" refers to.
package rewrite

import (
	"strings"

	"github.com/54b3r/cinerag-go/internal/rag"
)

// MaxShortQueryWords is the longest query, in whitespace-separated words,
// that is still considered ambiguous enough to rewrite.
const MaxShortQueryWords = 6

// Rewrite returns the effective query for retrieval and generation.
//
// With no history the query is returned exactly as given. Otherwise it is
// trimmed; a query of more than MaxShortQueryWords words is returned as is,
// and a shorter one is prefixed with the latest non-empty user turn. User
// turns are the only ones consulted.
func Rewrite(history []rag.ChatTurn, query string) string {
	if len(history) == 0 {
		return query
	}

	q := strings.TrimSpace(query)
	if len(strings.Fields(q)) > MaxShortQueryWords {
		return q
	}

	for i := len(history) - 1; i >= 0; i-- {
		turn := history[i]
		if turn.Role == rag.RoleUser && turn.Text != "" {
			return `In context of: "` + turn.Text + `". Question: ` + q
		}
	}
	return q
}
