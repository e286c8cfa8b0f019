package rag

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// DefaultSemanticK is the number of passages returned when the caller passes 0.
const DefaultSemanticK = 5

// SemanticRetriever combines an Embedder and a VectorStore. It embeds the
// query at retrieval time and delegates similarity search to the store.
// Failures never escape as panics: Search always returns a non-nil slice and,
// when something went wrong, an [*AdapterError] describing it.
type SemanticRetriever struct {
	// embedder converts query text to a dense vector.
	embedder Embedder

	// store performs the vector similarity search.
	store VectorStore

	// timeout bounds the embed + search round trip.
	timeout time.Duration
}

// NewSemanticRetriever constructs a SemanticRetriever. A non-positive timeout
// disables the per-call deadline; the caller's context still applies.
func NewSemanticRetriever(embedder Embedder, store VectorStore, timeout time.Duration) (*SemanticRetriever, error) {
	if embedder == nil {
		return nil, fmt.Errorf("rag: embedder must not be nil")
	}
	if store == nil {
		return nil, fmt.Errorf("rag: store must not be nil")
	}
	return &SemanticRetriever{embedder: embedder, store: store, timeout: timeout}, nil
}

// Search embeds query and returns at most k passages ranked by similarity.
// If k is 0 or negative, DefaultSemanticK is used.
func (r *SemanticRetriever) Search(ctx context.Context, query string, k int) (docs []Document, err error) {
	if k <= 0 {
		k = DefaultSemanticK
	}
	docs = []Document{}

	defer func() {
		if p := recover(); p != nil {
			docs = []Document{}
			err = Malformed("semantic search", fmt.Errorf("panic: %v", p))
		}
	}()

	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	embeddings, err := r.embedder.Embed(ctx, []string{query})
	if err != nil {
		return docs, Unavailable("embed query", err)
	}
	if len(embeddings) != 1 || len(embeddings[0]) == 0 {
		return docs, Malformed("embed query", fmt.Errorf("expected 1 embedding, got %d", len(embeddings)))
	}
	if isZeroVector(embeddings[0]) {
		return docs, Unavailable("embed query", errors.New("no embedding available"))
	}

	found, err := r.store.Search(ctx, embeddings[0], k)
	if err != nil {
		return docs, Unavailable("vector search", err)
	}
	if len(found) > k {
		found = found[:k]
	}
	return append(docs, found...), nil
}

// isZeroVector reports whether v is the placeholder produced when no
// embedding could be computed.
func isZeroVector(v []float32) bool {
	for _, x := range v {
		if x != 0 {
			return false
		}
	}
	return true
}
