// Package rerank merges semantic and lexical results into one list ordered
// by a blend of retrieval score and catalog rating.
package rerank

import (
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/54b3r/cinerag-go/internal/catalog"
	"github.com/54b3r/cinerag-go/internal/rag"
)

// Blend weights. They sum to 1 so combined scores stay in [0,1].
const (
	ScoreWeight  = 0.7
	RatingWeight = 0.3
)

// Source names the retriever an item came from.
type Source string

const (
	SourceSemantic Source = "semantic"
	SourceLexical  Source = "lexical"
)

// Item is one reranked result.
type Item struct {
	Source           Source         `json:"source"`
	Content          string         `json:"content"`
	Metadata         map[string]any `json:"metadata,omitempty"`
	RawScore         float64        `json:"raw_score"`
	NormalizedRating float64        `json:"normalized_rating"`
	CombinedScore    float64        `json:"combined_score"`
}

// Label identifies the item for provenance output: the movie title for
// lexical items, the document id or movie_id for semantic ones.
func (it Item) Label() string {
	if it.Source == SourceLexical {
		return it.Content
	}
	for _, key := range []string{"id", "movie_id", "title"} {
		if v, ok := it.Metadata[key]; ok && v != nil {
			return strings.TrimSpace(toString(v))
		}
	}
	return ""
}

// Rerank scores every semantic and lexical result and returns them sorted by
// CombinedScore, highest first. Semantic results precede lexical ones before
// sorting and the sort is stable, so ties keep that order.
func Rerank(semantic []rag.Document, lexical []catalog.Hit) []Item {
	items := make([]Item, 0, len(semantic)+len(lexical))

	for _, doc := range semantic {
		items = append(items, newItem(SourceSemantic, doc.Content, doc.Metadata, doc.Score, ratingOf(doc.Metadata)))
	}
	for _, hit := range lexical {
		items = append(items, newItem(SourceLexical, hit.Record.Title, hit.Record.Raw, hit.Score, hit.Record.Rating()))
	}

	sort.SliceStable(items, func(i, j int) bool {
		return items[i].CombinedScore > items[j].CombinedScore
	})
	return items
}

func newItem(src Source, content string, meta map[string]any, raw float64, rating any) Item {
	nr := NormalizeRating(rating)
	return Item{
		Source:           src,
		Content:          content,
		Metadata:         meta,
		RawScore:         raw,
		NormalizedRating: nr,
		CombinedScore:    Combine(raw, nr),
	}
}

// Combine blends a retrieval score with a normalized rating. The score is
// clamped to [0,1] first.
//
// Semantic similarity and the fixed lexical score of 1.0 are not put on a
// common scale, so lexical hits tend to outrank close semantic matches.
func Combine(rawScore, normalizedRating float64) float64 {
	return ScoreWeight*clamp01(rawScore) + RatingWeight*normalizedRating
}

// NormalizeRating maps a 0-10 rating onto [0,1]. Numbers, numeric strings
// and booleans are converted; anything else is 0.
func NormalizeRating(v any) float64 {
	f, ok := toFloat(v)
	if !ok {
		return 0
	}
	return clamp01(f / 10)
}

// ratingOf reads metadata["imdb"]["rating"].
func ratingOf(meta map[string]any) any {
	imdb, ok := meta["imdb"].(map[string]any)
	if !ok {
		return nil
	}
	return imdb["rating"]
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case bool:
		if n {
			return 1, true
		}
		return 0, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	case interface{ Float64() (float64, error) }:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

func clamp01(f float64) float64 {
	if math.IsNaN(f) || f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}

func toString(v any) string {
	switch s := v.(type) {
	case string:
		return s
	default:
		if f, ok := toFloat(s); ok {
			return strconv.FormatFloat(f, 'f', -1, 64)
		}
		return ""
	}
}
