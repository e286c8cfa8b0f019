package embedder

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/54b3r/cinerag-go/internal/rag"
)

// Fallback wraps an Embedder so that Embed never returns an error. When the
// inner embedder fails, or returns vectors of the wrong count or width, every
// input gets a zero vector of the configured width and a warning is logged.
// Downstream, a zero vector means "no embedding available".
type Fallback struct {
	inner      rag.Embedder
	dimensions int
	log        *slog.Logger
}

// NewFallback wraps inner. dimensions is the width of the zero vectors.
func NewFallback(inner rag.Embedder, dimensions int, log *slog.Logger) *Fallback {
	if log == nil {
		log = slog.Default()
	}
	return &Fallback{inner: inner, dimensions: dimensions, log: log}
}

// Embed returns the inner embeddings, or zero vectors on failure.
func (f *Fallback) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	vecs, err := f.embed(ctx, texts)
	if err == nil {
		return vecs, nil
	}

	f.log.Warn("embedder: falling back to zero vectors",
		slog.Int("texts", len(texts)),
		slog.Int("dimensions", f.dimensions),
		slog.String("error", err.Error()),
	)
	zero := make([][]float32, len(texts))
	for i := range zero {
		zero[i] = make([]float32, f.dimensions)
	}
	return zero, nil
}

func (f *Fallback) embed(ctx context.Context, texts []string) (vecs [][]float32, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
		}
	}()

	if f.inner == nil {
		return nil, fmt.Errorf("no embedding backend configured")
	}
	vecs, err = f.inner.Embed(ctx, texts)
	if err != nil {
		return nil, err
	}
	if len(vecs) != len(texts) {
		return nil, fmt.Errorf("expected %d embeddings, got %d", len(texts), len(vecs))
	}
	for i, v := range vecs {
		if len(v) != f.dimensions {
			return nil, fmt.Errorf("embedding %d has %d dimensions, want %d", i, len(v), f.dimensions)
		}
	}
	return vecs, nil
}
