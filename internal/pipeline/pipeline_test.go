package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/54b3r/cinerag-go/internal/catalog"
	"github.com/54b3r/cinerag-go/internal/generator"
	"github.com/54b3r/cinerag-go/internal/intent"
	"github.com/54b3r/cinerag-go/internal/rag"
	"github.com/54b3r/cinerag-go/internal/rerank"
	"github.com/54b3r/cinerag-go/internal/store"
)

// ---------------------------------------------------------------------------
// Test doubles
// ---------------------------------------------------------------------------

type fakeSemantic struct {
	docs     []rag.Document
	err      error
	panic    bool
	block    bool
	gotQuery string
	gotK     int
}

func (f *fakeSemantic) Search(ctx context.Context, query string, k int) ([]rag.Document, error) {
	f.gotQuery, f.gotK = query, k
	if f.panic {
		panic("semantic exploded")
	}
	if f.block {
		<-ctx.Done()
		return nil, rag.Unavailable("vector search", ctx.Err())
	}
	return f.docs, f.err
}

type fakeLexical struct {
	hits     []catalog.Hit
	err      error
	gotQuery string
	gotK     int
}

func (f *fakeLexical) Search(_ context.Context, query string, k int) ([]catalog.Hit, error) {
	f.gotQuery, f.gotK = query, k
	return f.hits, f.err
}

type fakeGenerator struct {
	answer      string
	gotContext  string
	gotQuestion string
}

func (f *fakeGenerator) Generate(_ context.Context, contextText, question string) string {
	f.gotContext, f.gotQuestion = contextText, question
	return f.answer
}

type fakeRecorder struct {
	mu   sync.Mutex
	runs []store.Run
	err  error
}

func (f *fakeRecorder) Record(_ context.Context, run store.Run) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runs = append(f.runs, run)
	return f.err
}

func movieHit(title string, rating float64) catalog.Hit {
	raw := map[string]any{
		"_id":    "id-" + title,
		"title":  title,
		"genres": []any{"Drama"},
		"imdb":   map[string]any{"rating": rating},
	}
	return catalog.Hit{Record: catalog.RecordFromMap(raw), Score: 1.0}
}

func newTestPipeline(t *testing.T, cfg Config) *Pipeline {
	t.Helper()
	if cfg.Registerer == nil {
		cfg.Registerer = prometheus.NewRegistry()
	}
	p, err := New(cfg)
	require.NoError(t, err)
	return p
}

// ---------------------------------------------------------------------------
// Construction
// ---------------------------------------------------------------------------

func TestNew_RequiresCollaborators(t *testing.T) {
	t.Parallel()

	_, err := New(Config{Lexical: &fakeLexical{}, Generator: &fakeGenerator{}})
	assert.Error(t, err)
	_, err = New(Config{Semantic: &fakeSemantic{}, Generator: &fakeGenerator{}})
	assert.Error(t, err)
	_, err = New(Config{Semantic: &fakeSemantic{}, Lexical: &fakeLexical{}})
	assert.Error(t, err)
}

// ---------------------------------------------------------------------------
// Run
// ---------------------------------------------------------------------------

func TestRun_EndToEndRanking(t *testing.T) {
	t.Parallel()

	sem := &fakeSemantic{docs: []rag.Document{{
		ID:       "chunk-1",
		Content:  "A thief who steals corporate secrets through dream-sharing.",
		Metadata: map[string]any{"id": "chunk-1", "imdb": map[string]any{"rating": 8.0}},
		Score:    0.9,
	}}}
	lex := &fakeLexical{hits: []catalog.Hit{movieHit("Inception", 6)}}
	gen := &fakeGenerator{answer: "Inception."}
	p := newTestPipeline(t, Config{Semantic: sem, Lexical: lex, Generator: gen})

	res := p.Run(context.Background(), "What is Inception about?", nil)

	assert.Equal(t, intent.QA, res.Intent)
	assert.Equal(t, "What is Inception about?", res.RewrittenQuery)
	assert.Empty(t, res.Diagnostics)
	assert.False(t, res.Degraded())
	require.Len(t, res.Reranked, 2)

	assert.Equal(t, rerank.SourceLexical, res.Reranked[0].Source)
	assert.InDelta(t, 0.88, res.Reranked[0].CombinedScore, 1e-9)
	assert.Equal(t, rerank.SourceSemantic, res.Reranked[1].Source)
	assert.InDelta(t, 0.87, res.Reranked[1].CombinedScore, 1e-9)

	assert.Equal(t, "Inception"+ContextSeparator+sem.docs[0].Content, gen.gotContext)
	assert.Equal(t, "What is Inception about?", gen.gotQuestion)
	assert.Equal(t, "Inception.", res.Response)

	assert.Equal(t, DefaultSemanticK, sem.gotK)
	assert.Equal(t, DefaultLexicalK, lex.gotK)
}

func TestRun_RewritesWithHistory(t *testing.T) {
	t.Parallel()

	sem := &fakeSemantic{}
	lex := &fakeLexical{}
	gen := &fakeGenerator{answer: "ok"}
	p := newTestPipeline(t, Config{Semantic: sem, Lexical: lex, Generator: gen, SemanticK: 3, LexicalK: 7})

	history := []rag.ChatTurn{
		{Role: rag.RoleUser, Text: "Tell me about Alien"},
		{Role: rag.RoleAssistant, Text: "A 1979 sci-fi horror film."},
	}
	res := p.Run(context.Background(), "who directed it?", history)

	want := `In context of: "Tell me about Alien". Question: who directed it?`
	assert.Equal(t, want, res.RewrittenQuery)
	assert.Equal(t, want, sem.gotQuery)
	assert.Equal(t, want, lex.gotQuery)
	assert.Equal(t, want, gen.gotQuestion)
	assert.Equal(t, 3, sem.gotK)
	assert.Equal(t, 7, lex.gotK)
}

func TestRun_Degradation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		sem        *fakeSemantic
		lex        *fakeLexical
		answer     string
		timeout    time.Duration
		wantStages []string
		wantKinds  []rag.ErrorKind
	}{
		{
			name:       "semantic unavailable",
			sem:        &fakeSemantic{err: rag.Unavailable("vector search", errors.New("connection refused"))},
			lex:        &fakeLexical{hits: []catalog.Hit{movieHit("Heat", 8.3)}},
			answer:     "Heat.",
			wantStages: []string{StageSemantic},
			wantKinds:  []rag.ErrorKind{rag.KindUnavailable},
		},
		{
			name:       "lexical malformed",
			sem:        &fakeSemantic{},
			lex:        &fakeLexical{err: rag.Malformed("catalog fetch", errors.New("bad json"))},
			answer:     "ok",
			wantStages: []string{StageLexical},
			wantKinds:  []rag.ErrorKind{rag.KindMalformed},
		},
		{
			name:       "semantic panic",
			sem:        &fakeSemantic{panic: true},
			lex:        &fakeLexical{},
			answer:     "ok",
			wantStages: []string{StageSemantic},
			wantKinds:  []rag.ErrorKind{rag.KindMalformed},
		},
		{
			name:       "semantic timeout",
			sem:        &fakeSemantic{block: true},
			lex:        &fakeLexical{},
			answer:     "ok",
			timeout:    20 * time.Millisecond,
			wantStages: []string{StageSemantic},
			wantKinds:  []rag.ErrorKind{rag.KindUnavailable},
		},
		{
			name:       "everything down",
			sem:        &fakeSemantic{err: errors.New("down")},
			lex:        &fakeLexical{err: errors.New("down")},
			answer:     generator.ErrorPrefix + " no backend",
			wantStages: []string{StageSemantic, StageLexical, StageGenerate},
			wantKinds:  []rag.ErrorKind{rag.KindUnavailable, rag.KindUnavailable, rag.KindUnavailable},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			p := newTestPipeline(t, Config{
				Semantic:     tc.sem,
				Lexical:      tc.lex,
				Generator:    &fakeGenerator{answer: tc.answer},
				StageTimeout: tc.timeout,
			})
			res := p.Run(context.Background(), "heist movies", nil)

			require.NotNil(t, res)
			assert.NotNil(t, res.SemanticResults)
			assert.NotNil(t, res.LexicalResults)
			assert.True(t, res.Degraded())
			require.Len(t, res.Diagnostics, len(tc.wantStages))
			for i, d := range res.Diagnostics {
				assert.Equal(t, tc.wantStages[i], d.Stage)
				assert.Equal(t, tc.wantKinds[i], d.Kind)
				assert.NotEmpty(t, d.Message)
			}
			assert.Equal(t, tc.answer, res.Response)
		})
	}
}

func TestRun_RecordsRun(t *testing.T) {
	t.Parallel()

	rec := &fakeRecorder{err: errors.New("disk full")}
	p := newTestPipeline(t, Config{
		Semantic:  &fakeSemantic{err: errors.New("down")},
		Lexical:   &fakeLexical{hits: []catalog.Hit{movieHit("Alien", 8.5), movieHit("Aliens", 8.4)}},
		Generator: &fakeGenerator{answer: "Watch Alien."},
		Recorder:  rec,
	})

	// A failing recorder must not affect the result.
	res := p.Run(context.Background(), "Recommend something like Alien", nil)
	assert.Equal(t, "Watch Alien.", res.Response)

	require.Len(t, rec.runs, 1)
	run := rec.runs[0]
	assert.Equal(t, "Recommend something like Alien", run.Query)
	assert.Equal(t, string(intent.Recommend), run.Intent)
	assert.Equal(t, []string{"Alien", "Aliens"}, run.Sources)
	assert.True(t, run.Degraded)
	assert.Positive(t, int64(run.Duration))
}

func TestRun_Metrics(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	p := newTestPipeline(t, Config{
		Semantic:   &fakeSemantic{err: errors.New("down")},
		Lexical:    &fakeLexical{},
		Generator:  &fakeGenerator{answer: "ok"},
		Registerer: reg,
	})
	p.Run(context.Background(), "hello there", nil)

	families, err := reg.Gather()
	require.NoError(t, err)
	byName := make(map[string]int)
	var runs, degraded float64
	for _, mf := range families {
		byName[mf.GetName()] = len(mf.GetMetric())
		for _, m := range mf.GetMetric() {
			switch mf.GetName() {
			case "cinerag_pipeline_runs_total":
				runs += m.GetCounter().GetValue()
			case "cinerag_pipeline_degraded_total":
				degraded += m.GetCounter().GetValue()
			}
		}
	}
	assert.InDelta(t, 1, runs, 0)
	assert.InDelta(t, 1, degraded, 0)
	assert.Equal(t, 3, byName["cinerag_pipeline_stage_duration_seconds"], "one series per stage")
}

func TestResult_JSONShape(t *testing.T) {
	t.Parallel()

	p := newTestPipeline(t, Config{
		Semantic:  &fakeSemantic{},
		Lexical:   &fakeLexical{hits: []catalog.Hit{movieHit("Heat", 8.3)}},
		Generator: &fakeGenerator{answer: "Heat."},
	})
	res := p.Run(context.Background(), "heat", nil)

	b, err := json.Marshal(res)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(b, &decoded))
	for _, key := range []string{"intent", "rewritten_query", "semantic_results", "lexical_results", "reranked", "response", "diagnostics"} {
		assert.Contains(t, decoded, key)
	}
	lexical := decoded["lexical_results"].([]any)
	require.Len(t, lexical, 1)
	hit := lexical[0].(map[string]any)
	assert.Equal(t, 1.0, hit["score"])
	assert.Equal(t, "Heat", hit["movie"].(map[string]any)["title"])
}

// ---------------------------------------------------------------------------
// Context assembly
// ---------------------------------------------------------------------------

func TestAssembleContext(t *testing.T) {
	t.Parallel()

	items := make([]rerank.Item, 0, 7)
	for _, c := range []string{"a", "b", "c", "d", "e", "f", "g"} {
		items = append(items, rerank.Item{Content: c})
	}

	assert.Equal(t, "a\n\n---\n\nb\n\n---\n\nc\n\n---\n\nd\n\n---\n\ne", AssembleContext(items, 0))
	assert.Equal(t, "a\n\n---\n\nb", AssembleContext(items, 2))
	assert.Equal(t, "", AssembleContext(nil, 5))
}

func TestAssembleContext_MetadataFallback(t *testing.T) {
	t.Parallel()

	items := []rerank.Item{
		{Metadata: map[string]any{"title": "Heat"}},
		{},
	}
	assert.Equal(t, `{"title":"Heat"}`+ContextSeparator+"{}", AssembleContext(items, 5))
}

func TestAssembleContextBudget(t *testing.T) {
	t.Parallel()

	long := strings.Repeat("word ", 400)
	items := []rerank.Item{{Content: "short passage"}, {Content: long}, {Content: "never reached"}}

	out := AssembleContextBudget(items, 5, 50)
	assert.True(t, strings.HasPrefix(out, "short passage"+ContextSeparator))
	assert.NotContains(t, out, "never reached")
	assert.Less(t, len(out), len(long))
}
