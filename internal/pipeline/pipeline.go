// Package pipeline wires the retrieval-augmented answer flow: classify the
// intent, rewrite the query against chat history, search the vector store and
// the movie catalog concurrently, rerank the merged results, assemble the
// prompt context and generate an answer.
//
// A Run always produces a Result. Adapter failures degrade the affected stage
// to an empty result and are reported in Result.Diagnostics.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/54b3r/cinerag-go/internal/catalog"
	"github.com/54b3r/cinerag-go/internal/generator"
	"github.com/54b3r/cinerag-go/internal/intent"
	"github.com/54b3r/cinerag-go/internal/logging"
	"github.com/54b3r/cinerag-go/internal/rag"
	"github.com/54b3r/cinerag-go/internal/rerank"
	"github.com/54b3r/cinerag-go/internal/rewrite"
	"github.com/54b3r/cinerag-go/internal/store"
)

// Default fan-out sizes.
const (
	DefaultSemanticK = rag.DefaultSemanticK
	DefaultLexicalK  = catalog.DefaultLexicalK
)

// SemanticSearcher finds passages similar to a query.
type SemanticSearcher interface {
	Search(ctx context.Context, query string, k int) ([]rag.Document, error)
}

// LexicalSearcher finds catalog records matching a query.
type LexicalSearcher interface {
	Search(ctx context.Context, query string, k int) ([]catalog.Hit, error)
}

// AnswerGenerator turns context and a question into an answer. Failures are
// encoded in the returned text with generator.ErrorPrefix.
type AnswerGenerator interface {
	Generate(ctx context.Context, contextText, question string) string
}

// Recorder persists completed runs.
type Recorder interface {
	Record(ctx context.Context, run store.Run) error
}

// Config configures a Pipeline.
type Config struct {
	// Semantic searches the vector store. Required.
	Semantic SemanticSearcher

	// Lexical searches the movie catalog. Required.
	Lexical LexicalSearcher

	// Generator produces the answer. Required.
	Generator AnswerGenerator

	// SemanticK is the number of semantic passages requested (default: 5).
	SemanticK int

	// LexicalK is the number of catalog hits requested (default: 10).
	LexicalK int

	// ContextItems is how many reranked items feed the prompt (default: 5).
	ContextItems int

	// MaxContextTokens caps the assembled context. Zero disables the cap.
	MaxContextTokens int

	// StageTimeout bounds each retrieval stage. Zero disables it.
	StageTimeout time.Duration

	// Recorder, when set, receives every completed run.
	Recorder Recorder

	// Registerer receives the pipeline metrics. Nil uses a private registry.
	Registerer prometheus.Registerer
}

// Diagnostic describes one stage that degraded during a run.
type Diagnostic struct {
	Stage   string        `json:"stage"`
	Kind    rag.ErrorKind `json:"kind"`
	Message string        `json:"message"`
}

// Result is the full output of one run.
type Result struct {
	Intent          intent.Intent  `json:"intent"`
	RewrittenQuery  string         `json:"rewritten_query"`
	SemanticResults []rag.Document `json:"semantic_results"`
	LexicalResults  []catalog.Hit  `json:"lexical_results"`
	Reranked        []rerank.Item  `json:"reranked"`
	Response        string         `json:"response"`
	Diagnostics     []Diagnostic   `json:"diagnostics"`
}

// Degraded reports whether any stage fell back to an empty result.
func (r *Result) Degraded() bool {
	return len(r.Diagnostics) > 0
}

// Sources returns the labels of the items that fed the prompt context.
func (r *Result) Sources(contextItems int) []string {
	if contextItems <= 0 {
		contextItems = DefaultContextItems
	}
	n := min(len(r.Reranked), contextItems)
	out := make([]string, 0, n)
	for _, it := range r.Reranked[:n] {
		if label := it.Label(); label != "" {
			out = append(out, label)
		}
	}
	return out
}

// Pipeline runs queries end to end. It is safe for concurrent use.
type Pipeline struct {
	cfg     Config
	metrics *pipelineMetrics
}

// New validates cfg and constructs a Pipeline.
func New(cfg Config) (*Pipeline, error) {
	if cfg.Semantic == nil {
		return nil, fmt.Errorf("pipeline: semantic searcher must not be nil")
	}
	if cfg.Lexical == nil {
		return nil, fmt.Errorf("pipeline: lexical searcher must not be nil")
	}
	if cfg.Generator == nil {
		return nil, fmt.Errorf("pipeline: generator must not be nil")
	}
	if cfg.SemanticK <= 0 {
		cfg.SemanticK = DefaultSemanticK
	}
	if cfg.LexicalK <= 0 {
		cfg.LexicalK = DefaultLexicalK
	}
	if cfg.ContextItems <= 0 {
		cfg.ContextItems = DefaultContextItems
	}
	reg := cfg.Registerer
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	return &Pipeline{cfg: cfg, metrics: newPipelineMetrics(reg)}, nil
}

// Run answers query given the prior conversation. It never returns an error:
// failed stages are listed in Result.Diagnostics and contribute nothing.
func (p *Pipeline) Run(ctx context.Context, query string, history []rag.ChatTurn) *Result {
	start := time.Now()
	log := logging.FromContext(ctx)

	res := &Result{
		Intent:         intent.Classify(query),
		RewrittenQuery: rewrite.Rewrite(history, query),
		Diagnostics:    []Diagnostic{},
	}
	log.Debug("pipeline: query prepared",
		slog.String("intent", string(res.Intent)),
		slog.String("rewritten_query", res.RewrittenQuery),
		slog.Int("history_turns", len(history)),
	)

	p.retrieve(ctx, res)
	res.Reranked = rerank.Rerank(res.SemanticResults, res.LexicalResults)

	contextText := AssembleContextBudget(res.Reranked, p.cfg.ContextItems, p.cfg.MaxContextTokens)

	genStart := time.Now()
	res.Response = p.cfg.Generator.Generate(ctx, contextText, res.RewrittenQuery)
	p.metrics.stageDurationSeconds.WithLabelValues(StageGenerate).Observe(time.Since(genStart).Seconds())
	if strings.HasPrefix(res.Response, generator.ErrorPrefix) {
		p.degrade(ctx, res, StageGenerate, rag.KindUnavailable,
			strings.TrimSpace(strings.TrimPrefix(res.Response, generator.ErrorPrefix)))
	}

	elapsed := time.Since(start)
	p.metrics.runsTotal.WithLabelValues(string(res.Intent)).Inc()
	log.Info("pipeline: run complete",
		slog.String("intent", string(res.Intent)),
		slog.Int("semantic_results", len(res.SemanticResults)),
		slog.Int("lexical_results", len(res.LexicalResults)),
		slog.Int("context_chars", len(contextText)),
		slog.Bool("degraded", res.Degraded()),
		slog.Duration("duration", elapsed),
	)

	p.record(ctx, query, res, elapsed)
	return res
}

// retrieve runs semantic and lexical search concurrently. Each branch owns
// its own result field; diagnostics are appended after both finish.
func (p *Pipeline) retrieve(ctx context.Context, res *Result) {
	var semErr, lexErr error
	res.SemanticResults = []rag.Document{}
	res.LexicalResults = []catalog.Hit{}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		docs, err := runStage(gctx, p.cfg.StageTimeout, func(c context.Context) ([]rag.Document, error) {
			return p.cfg.Semantic.Search(c, res.RewrittenQuery, p.cfg.SemanticK)
		}, p.metrics, StageSemantic)
		res.SemanticResults, semErr = docs, err
		return nil
	})
	g.Go(func() error {
		hits, err := runStage(gctx, p.cfg.StageTimeout, func(c context.Context) ([]catalog.Hit, error) {
			return p.cfg.Lexical.Search(c, res.RewrittenQuery, p.cfg.LexicalK)
		}, p.metrics, StageLexical)
		res.LexicalResults, lexErr = hits, err
		return nil
	})
	_ = g.Wait()

	if semErr != nil {
		p.degrade(ctx, res, StageSemantic, rag.KindOf(semErr), semErr.Error())
	}
	if lexErr != nil {
		p.degrade(ctx, res, StageLexical, rag.KindOf(lexErr), lexErr.Error())
	}
}

// runStage calls fn under an optional timeout, converting panics and errors
// into an empty result plus an adapter error.
func runStage[T any](ctx context.Context, timeout time.Duration, fn func(context.Context) ([]T, error), m *pipelineMetrics, stage string) (out []T, err error) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			out, err = []T{}, rag.Malformed(stage+" search", fmt.Errorf("panic: %v", r))
		}
		m.stageDurationSeconds.WithLabelValues(stage).Observe(time.Since(start).Seconds())
		m.resultsCount.WithLabelValues(stage).Observe(float64(len(out)))
	}()

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	out, err = fn(ctx)
	if err != nil {
		return []T{}, err
	}
	if out == nil {
		out = []T{}
	}
	return out, nil
}

func (p *Pipeline) degrade(ctx context.Context, res *Result, stage string, kind rag.ErrorKind, msg string) {
	res.Diagnostics = append(res.Diagnostics, Diagnostic{Stage: stage, Kind: kind, Message: msg})
	p.metrics.degradedTotal.WithLabelValues(stage, string(kind)).Inc()
	logging.FromContext(ctx).Warn("pipeline: stage degraded",
		slog.String("stage", stage),
		slog.String("kind", string(kind)),
		slog.String("error", msg),
	)
}

func (p *Pipeline) record(ctx context.Context, query string, res *Result, elapsed time.Duration) {
	if p.cfg.Recorder == nil {
		return
	}
	run := store.Run{
		Query:          query,
		Intent:         string(res.Intent),
		RewrittenQuery: res.RewrittenQuery,
		Sources:        res.Sources(p.cfg.ContextItems),
		Response:       res.Response,
		Degraded:       res.Degraded(),
		Duration:       elapsed,
	}
	// The ledger is best-effort; a cancelled request still gets recorded.
	if err := p.cfg.Recorder.Record(context.WithoutCancel(ctx), run); err != nil {
		logging.FromContext(ctx).Warn("pipeline: failed to record run", slog.String("error", err.Error()))
	}
}
