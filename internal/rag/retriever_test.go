package rag

import (
	"context"
	"errors"
	"testing"
	"time"
)

// ---------------------------------------------------------------------------
// Test doubles
// ---------------------------------------------------------------------------

// fakeEmbedder returns vec for every input, or err when set.
type fakeEmbedder struct {
	vec   []float32
	err   error
	panic bool
}

func (f *fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	if f.panic {
		panic("embedder exploded")
	}
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = f.vec
	}
	return out, nil
}

// fakeStore returns docs from Search, or err when set. It records the
// requested topK.
type fakeStore struct {
	docs      []Document
	err       error
	searched  bool
	gotTopK   int
	blockTill time.Duration
}

func (f *fakeStore) Upsert(context.Context, []Document, [][]float32) error { return nil }
func (f *fakeStore) Existing(context.Context, []string) (map[string]bool, error) {
	return map[string]bool{}, nil
}
func (f *fakeStore) Reset(context.Context) error { return nil }
func (f *fakeStore) Close() error                { return nil }

func (f *fakeStore) Search(ctx context.Context, _ []float32, topK int) ([]Document, error) {
	f.searched = true
	f.gotTopK = topK
	if f.blockTill > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(f.blockTill):
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.docs, nil
}

func newTestRetriever(t *testing.T, emb Embedder, store VectorStore, timeout time.Duration) *SemanticRetriever {
	t.Helper()
	r, err := NewSemanticRetriever(emb, store, timeout)
	if err != nil {
		t.Fatalf("NewSemanticRetriever: %v", err)
	}
	return r
}

// ---------------------------------------------------------------------------
// Construction
// ---------------------------------------------------------------------------

func TestNewSemanticRetriever_RejectsNil(t *testing.T) {
	t.Parallel()

	if _, err := NewSemanticRetriever(nil, &fakeStore{}, 0); err == nil {
		t.Error("expected error for nil embedder")
	}
	if _, err := NewSemanticRetriever(&fakeEmbedder{}, nil, 0); err == nil {
		t.Error("expected error for nil store")
	}
}

// ---------------------------------------------------------------------------
// Search
// ---------------------------------------------------------------------------

// TestSearch_ReturnsStoreResults verifies the happy path passes documents
// through unchanged and honours k.
func TestSearch_ReturnsStoreResults(t *testing.T) {
	t.Parallel()

	store := &fakeStore{docs: []Document{
		{ID: "a", Content: "Inception plot", Score: 0.9},
		{ID: "b", Content: "Memento plot", Score: 0.7},
	}}
	r := newTestRetriever(t, &fakeEmbedder{vec: []float32{0.1, 0.2}}, store, time.Second)

	docs, err := r.Search(context.Background(), "dream heist", 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(docs) != 2 || docs[0].ID != "a" {
		t.Fatalf("unexpected docs: %+v", docs)
	}
	if store.gotTopK != 2 {
		t.Errorf("topK: want 2, got %d", store.gotTopK)
	}
}

// TestSearch_DefaultK verifies k<=0 falls back to DefaultSemanticK.
func TestSearch_DefaultK(t *testing.T) {
	t.Parallel()

	store := &fakeStore{}
	r := newTestRetriever(t, &fakeEmbedder{vec: []float32{1}}, store, 0)

	if _, err := r.Search(context.Background(), "q", 0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if store.gotTopK != DefaultSemanticK {
		t.Errorf("topK: want %d, got %d", DefaultSemanticK, store.gotTopK)
	}
}

// TestSearch_Degrades covers every failure path: the result is always an
// empty, non-nil slice plus a typed error.
func TestSearch_Degrades(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		embedder *fakeEmbedder
		store    *fakeStore
		timeout  time.Duration
		wantKind ErrorKind
		searched bool
	}{
		{
			name:     "store error",
			embedder: &fakeEmbedder{vec: []float32{0.3}},
			store:    &fakeStore{err: errors.New("connection refused")},
			wantKind: KindUnavailable,
			searched: true,
		},
		{
			name:     "embedder error",
			embedder: &fakeEmbedder{err: errors.New("no api key")},
			store:    &fakeStore{},
			wantKind: KindUnavailable,
		},
		{
			name:     "zero vector skips store",
			embedder: &fakeEmbedder{vec: make([]float32, 768)},
			store:    &fakeStore{},
			wantKind: KindUnavailable,
		},
		{
			name:     "empty embedding",
			embedder: &fakeEmbedder{vec: []float32{}},
			store:    &fakeStore{},
			wantKind: KindMalformed,
		},
		{
			name:     "embedder panic",
			embedder: &fakeEmbedder{panic: true},
			store:    &fakeStore{},
			wantKind: KindMalformed,
		},
		{
			name:     "timeout",
			embedder: &fakeEmbedder{vec: []float32{0.5}},
			store:    &fakeStore{blockTill: 5 * time.Second},
			timeout:  20 * time.Millisecond,
			wantKind: KindUnavailable,
			searched: true,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			r := newTestRetriever(t, tc.embedder, tc.store, tc.timeout)
			docs, err := r.Search(context.Background(), "anything", 5)

			if docs == nil || len(docs) != 0 {
				t.Fatalf("want empty non-nil slice, got %#v", docs)
			}
			if err == nil {
				t.Fatal("want error, got nil")
			}
			var ae *AdapterError
			if !errors.As(err, &ae) {
				t.Fatalf("want *AdapterError, got %T", err)
			}
			if ae.Kind != tc.wantKind {
				t.Errorf("kind: want %s, got %s", tc.wantKind, ae.Kind)
			}
			if tc.store.searched != tc.searched {
				t.Errorf("store searched: want %v, got %v", tc.searched, tc.store.searched)
			}
		})
	}
}

func TestKindOf(t *testing.T) {
	t.Parallel()

	if got := KindOf(Malformed("op", errors.New("x"))); got != KindMalformed {
		t.Errorf("want malformed, got %s", got)
	}
	if got := KindOf(errors.New("plain")); got != KindUnavailable {
		t.Errorf("want unavailable for plain errors, got %s", got)
	}
}
