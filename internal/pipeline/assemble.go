package pipeline

import (
	"encoding/json"
	"strings"

	"github.com/54b3r/cinerag-go/internal/budget"
	"github.com/54b3r/cinerag-go/internal/rerank"
)

// ContextSeparator sits between passages in the assembled context.
const ContextSeparator = "\n\n---\n\n"

// DefaultContextItems is how many reranked items feed the prompt.
const DefaultContextItems = 5

// AssembleContext joins the content of the first maxItems items (default:
// DefaultContextItems). Items without content contribute their metadata
// rendered as JSON.
func AssembleContext(items []rerank.Item, maxItems int) string {
	return AssembleContextBudget(items, maxItems, 0)
}

// AssembleContextBudget is AssembleContext with an additional token ceiling.
// Passages past the budget are dropped and the last one that only partly fits
// is truncated. A non-positive maxTokens disables the ceiling.
func AssembleContextBudget(items []rerank.Item, maxItems, maxTokens int) string {
	if maxItems <= 0 {
		maxItems = DefaultContextItems
	}
	n := min(len(items), maxItems)

	passages := make([]string, 0, n)
	for _, it := range items[:n] {
		passages = append(passages, passageText(it))
	}
	return strings.Join(budget.Fit(passages, ContextSeparator, maxTokens), ContextSeparator)
}

func passageText(it rerank.Item) string {
	if it.Content != "" {
		return it.Content
	}
	if len(it.Metadata) == 0 {
		return "{}"
	}
	b, err := json.Marshal(it.Metadata)
	if err != nil {
		return "{}"
	}
	return string(b)
}
