package catalog

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/54b3r/cinerag-go/internal/rag"
)

const moviesJSON = `[
  {"_id":{"$oid":"573a1390f29313caabcd4135"},"title":"Rush Hour","genres":["Action","Comedy"],"cast":["Jackie Chan","Chris Tucker"],"imdb":{"rating":7.0}},
  {"_id":"m2","title":"Heat","genres":["Action","Crime"],"cast":["Al Pacino"],"imdb":{"rating":8.3}},
  {"_id":"m3","title":"Airplane!","genres":"Comedy","cast":["Leslie Nielsen"]},
  {"_id":"m4","title":"Bad Boys","genres":["Action","Comedy"],"cast":["Will Smith"],"imdb":{"rating":"6.9"}}
]`

// fakeFetcher serves fixed records and counts calls.
type fakeFetcher struct {
	records []Record
	err     error
	calls   atomic.Int32
	limit   int
}

func (f *fakeFetcher) FetchRecords(_ context.Context, limit int) ([]Record, error) {
	f.calls.Add(1)
	f.limit = limit
	return f.records, f.err
}

func newCatalogServer(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func fixtureRecords(t *testing.T) []Record {
	t.Helper()
	srv := newCatalogServer(t, http.StatusOK, moviesJSON)
	c, err := NewClient(ClientConfig{BaseURL: srv.URL})
	require.NoError(t, err)
	recs, err := c.FetchRecords(context.Background(), 500)
	require.NoError(t, err)
	return recs
}

// ---------------------------------------------------------------------------
// Client
// ---------------------------------------------------------------------------

func TestClient_FetchRecords(t *testing.T) {
	t.Parallel()

	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		assert.Equal(t, "/movies", r.URL.Path)
		_, _ = w.Write([]byte(moviesJSON))
	}))
	defer srv.Close()

	c, err := NewClient(ClientConfig{BaseURL: srv.URL + "/"})
	require.NoError(t, err)

	recs, err := c.FetchRecords(context.Background(), 500)
	require.NoError(t, err)
	assert.Equal(t, "limit=500", gotQuery)
	require.Len(t, recs, 4)

	assert.Equal(t, "573a1390f29313caabcd4135", recs[0].ID)
	assert.Equal(t, []string{"Action", "Comedy"}, recs[0].Genres)
	assert.Equal(t, []string{"Comedy"}, recs[2].Genres, "scalar genres become a one-element list")
	assert.Equal(t, 8.3, recs[1].Rating())
	assert.Nil(t, recs[2].Rating())
}

func TestClient_Errors(t *testing.T) {
	t.Parallel()

	t.Run("http status", func(t *testing.T) {
		t.Parallel()
		srv := newCatalogServer(t, http.StatusInternalServerError, `{"error":"db down"}`)
		c, _ := NewClient(ClientConfig{BaseURL: srv.URL})
		_, err := c.FetchRecords(context.Background(), 10)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "HTTP 500")
	})

	t.Run("not json", func(t *testing.T) {
		t.Parallel()
		srv := newCatalogServer(t, http.StatusOK, `<html>`)
		c, _ := NewClient(ClientConfig{BaseURL: srv.URL})
		_, err := c.FetchRecords(context.Background(), 10)
		require.Error(t, err)
	})

	t.Run("missing base url", func(t *testing.T) {
		t.Parallel()
		_, err := NewClient(ClientConfig{})
		require.Error(t, err)
	})
}

// ---------------------------------------------------------------------------
// Lexical matching
// ---------------------------------------------------------------------------

func TestLexicalRetriever_AllTokensMustMatch(t *testing.T) {
	t.Parallel()

	f := &fakeFetcher{records: fixtureRecords(t)}
	r, err := NewLexicalRetriever(f, 0)
	require.NoError(t, err)

	hits, err := r.Search(context.Background(), "  Action COMEDY ", 10)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "Rush Hour", hits[0].Record.Title)
	assert.Equal(t, "Bad Boys", hits[1].Record.Title)
	for _, h := range hits {
		assert.Equal(t, 1.0, h.Score)
	}
	assert.Equal(t, DefaultFetchLimit, f.limit)
}

func TestLexicalRetriever_MatchesCast(t *testing.T) {
	t.Parallel()

	r, _ := NewLexicalRetriever(&fakeFetcher{records: fixtureRecords(t)}, 0)
	hits, err := r.Search(context.Background(), "pacino", 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "Heat", hits[0].Record.Title)
}

func TestLexicalRetriever_TruncatesToK(t *testing.T) {
	t.Parallel()

	r, _ := NewLexicalRetriever(&fakeFetcher{records: fixtureRecords(t)}, 0)
	hits, err := r.Search(context.Background(), "comedy", 1)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "Rush Hour", hits[0].Record.Title)
}

func TestLexicalRetriever_EmptyQueryMatchesEverything(t *testing.T) {
	t.Parallel()

	r, _ := NewLexicalRetriever(&fakeFetcher{records: fixtureRecords(t)}, 0)
	hits, err := r.Search(context.Background(), "   ", 10)
	require.NoError(t, err)
	assert.Len(t, hits, 4)
}

func TestLexicalRetriever_FetchFailureDegrades(t *testing.T) {
	t.Parallel()

	r, _ := NewLexicalRetriever(&fakeFetcher{err: errors.New("connection refused")}, 0)
	hits, err := r.Search(context.Background(), "action", 10)

	require.Error(t, err)
	assert.NotNil(t, hits)
	assert.Empty(t, hits)
	assert.Equal(t, rag.KindUnavailable, rag.KindOf(err))
}

// ---------------------------------------------------------------------------
// Cache
// ---------------------------------------------------------------------------

func TestCachedFetcher(t *testing.T) {
	t.Parallel()

	inner := &fakeFetcher{records: []Record{{Title: "Heat"}}}
	c := NewCachedFetcher(inner, time.Minute)

	for range 3 {
		recs, err := c.FetchRecords(context.Background(), 500)
		require.NoError(t, err)
		require.Len(t, recs, 1)
	}
	assert.Equal(t, int32(1), inner.calls.Load())

	_, _ = c.FetchRecords(context.Background(), 10)
	assert.Equal(t, int32(2), inner.calls.Load(), "different limits are cached separately")
}

func TestCachedFetcher_DoesNotCacheErrors(t *testing.T) {
	t.Parallel()

	inner := &fakeFetcher{err: errors.New("down")}
	c := NewCachedFetcher(inner, time.Minute)

	_, err := c.FetchRecords(context.Background(), 500)
	require.Error(t, err)
	_, _ = c.FetchRecords(context.Background(), 500)
	assert.Equal(t, int32(2), inner.calls.Load())
}

func TestCachedFetcher_Disabled(t *testing.T) {
	t.Parallel()

	inner := &fakeFetcher{}
	c := NewCachedFetcher(inner, 0)
	_, _ = c.FetchRecords(context.Background(), 500)
	_, _ = c.FetchRecords(context.Background(), 500)
	assert.Equal(t, int32(2), inner.calls.Load())
}
