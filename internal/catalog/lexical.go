package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/54b3r/cinerag-go/internal/rag"
)

// DefaultLexicalK is the number of hits returned when the caller passes 0.
const DefaultLexicalK = 10

// Hit is a catalog record that matched every query token.
type Hit struct {
	Record Record
	Score  float64
}

// MarshalJSON renders the hit as {"movie": <catalog document>, "score": n}.
func (h Hit) MarshalJSON() ([]byte, error) {
	movie := h.Record.Raw
	if movie == nil {
		movie = map[string]any{}
	}
	return json.Marshal(struct {
		Movie map[string]any `json:"movie"`
		Score float64        `json:"score"`
	}{Movie: movie, Score: h.Score})
}

// LexicalRetriever matches queries against catalog records by token
// containment. Every match scores 1.0 and hits keep catalog order.
type LexicalRetriever struct {
	fetcher    Fetcher
	fetchLimit int
}

// NewLexicalRetriever constructs a LexicalRetriever. fetchLimit bounds how
// many records are pulled per search (default: DefaultFetchLimit).
func NewLexicalRetriever(fetcher Fetcher, fetchLimit int) (*LexicalRetriever, error) {
	if fetcher == nil {
		return nil, fmt.Errorf("catalog: fetcher must not be nil")
	}
	if fetchLimit <= 0 {
		fetchLimit = DefaultFetchLimit
	}
	return &LexicalRetriever{fetcher: fetcher, fetchLimit: fetchLimit}, nil
}

// Search returns at most k records whose search text contains every
// whitespace-separated token of query. An empty query matches every record.
// A catalog failure yields an empty, non-nil result and an adapter error.
func (r *LexicalRetriever) Search(ctx context.Context, query string, k int) (hits []Hit, err error) {
	if k <= 0 {
		k = DefaultLexicalK
	}
	hits = []Hit{}

	defer func() {
		if p := recover(); p != nil {
			hits = []Hit{}
			err = rag.Malformed("catalog fetch", fmt.Errorf("panic: %v", p))
		}
	}()

	records, err := r.fetcher.FetchRecords(ctx, r.fetchLimit)
	if err != nil {
		return hits, rag.Unavailable("catalog fetch", err)
	}

	return Match(records, query, k), nil
}

// Match applies the token-containment rule to records and truncates to k.
func Match(records []Record, query string, k int) []Hit {
	tokens := strings.Fields(strings.ToLower(strings.TrimSpace(query)))

	hits := []Hit{}
	for _, rec := range records {
		if len(hits) >= k {
			break
		}
		if containsAll(rec.SearchText(), tokens) {
			hits = append(hits, Hit{Record: rec, Score: 1.0})
		}
	}
	return hits
}

func containsAll(text string, tokens []string) bool {
	for _, tok := range tokens {
		if !strings.Contains(text, tok) {
			return false
		}
	}
	return true
}
