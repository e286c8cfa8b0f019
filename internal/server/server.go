// Package server implements the HTTP API that exposes the movie
// question-answering pipeline. The server is started by the `cinerag serve`
// CLI command.
package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/54b3r/cinerag-go/internal/generator"
	"github.com/54b3r/cinerag-go/internal/logging"
	"github.com/54b3r/cinerag-go/internal/pipeline"
	"github.com/54b3r/cinerag-go/internal/rag"
	"github.com/54b3r/cinerag-go/internal/store"
)

const (
	// maxBodyBytes caps request bodies on the JSON endpoints.
	maxBodyBytes = 1 << 20
	// defaultGenerateTokens is the max_tokens used by /api/generate when the
	// request omits it.
	defaultGenerateTokens = 256
	// defaultRunsLimit and maxRunsLimit bound GET /api/runs?limit=N.
	defaultRunsLimit = 20
	maxRunsLimit     = 200
)

// New constructs a Server. runs may be nil, in which case GET /api/runs
// reports the ledger as disabled.
func New(q querier, gen generatorAPI, runs RunLister, cfg *Config) (*Server, error) {
	if q == nil {
		return nil, fmt.Errorf("server: pipeline must not be nil")
	}
	if gen == nil {
		return nil, fmt.Errorf("server: generator must not be nil")
	}
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.Port == 0 {
		cfg.Port = 8080
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 30 * time.Second
	}
	if cfg.QueryTimeout == 0 {
		cfg.QueryTimeout = 2 * time.Minute
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = cfg.QueryTimeout + 30*time.Second
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	if cfg.RateLimit == 0 {
		cfg.RateLimit = defaultRateLimit
	}
	if cfg.RateBurst == 0 {
		cfg.RateBurst = defaultRateBurst
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.New()
	}
	if cfg.MetricsRegistry == nil {
		cfg.MetricsRegistry = prometheus.DefaultRegisterer
	}
	if cfg.MetricsGatherer == nil {
		cfg.MetricsGatherer = prometheus.DefaultGatherer
	}

	s := &Server{
		querier:   q,
		generator: gen,
		runs:      runs,
		cfg:       cfg,
		log:       cfg.Logger,
		pingers:   cfg.Pingers,
		metrics:   newServerMetrics(cfg.MetricsRegistry),
	}

	if cfg.APIKey == "" {
		s.log.Warn("server: CINERAG_API_KEY not set; API authentication is disabled")
	}

	rl, stop := newRateLimiter(cfg.RateLimit, cfg.RateBurst, s.log)
	s.stopRL = stop

	// protected applies auth, rate limiting and metrics to an API handler.
	protected := func(name string, h http.HandlerFunc) http.Handler {
		return s.metrics.instrument(name, authMiddleware(cfg.APIKey, rl.middleware(h)))
	}

	mux := http.NewServeMux()
	mux.Handle("POST /api/query", protected("query", s.handleQuery))
	mux.Handle("POST /api/generate", protected("generate", s.handleGenerate))
	mux.Handle("GET /api/runs", protected("runs", s.handleRuns))
	mux.Handle("GET /api/health", s.metrics.instrument("health", http.HandlerFunc(s.handleHealth)))
	mux.Handle("GET /api/ready", s.metrics.instrument("ready", http.HandlerFunc(s.handleReady)))
	mux.Handle("GET /metrics", promhttp.HandlerFor(cfg.MetricsGatherer, promhttp.HandlerOpts{}))

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      requestLogger(s.log, mux),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	return s, nil
}

// Handler returns the fully wired HTTP handler. Used by tests.
func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

// Start begins listening and serving HTTP requests. It blocks until the
// context is cancelled, then performs a graceful shutdown.
func (s *Server) Start(ctx context.Context) error {
	defer s.stopRL()
	errCh := make(chan error, 1)

	go func() {
		s.log.Info("server: listening", slog.String("addr", "http://"+s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server: listen error: %w", err)
	case <-ctx.Done():
		s.log.Info("server: shutting down", slog.Duration("timeout", s.cfg.ShutdownTimeout))
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server: graceful shutdown failed: %w", err)
		}
		return nil
	}
}

// handleQuery handles POST /api/query. The request is never rejected for its
// content: a non-string query becomes "" and a malformed history becomes
// empty, both reported as invalid_input diagnostics.
func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	log := logging.FromContext(r.Context())

	s.metrics.queryInFlight.Inc()
	defer s.metrics.queryInFlight.Dec()

	var (
		req   queryRequest
		input []pipeline.Diagnostic
	)
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		input = append(input, invalidInput("body", "request body is not a JSON object; treated as empty query"))
		req = queryRequest{}
	}

	query, ok := decodeQuery(req.Query)
	if !ok {
		input = append(input, invalidInput("query", "query is not a string; treated as empty"))
	}
	history, ok := decodeHistory(req.History)
	if !ok {
		input = append(input, invalidInput("history", "history is not a list of {role, text} turns; treated as empty"))
	}
	for _, d := range input {
		log.Warn("query: input coerced", slog.String("field", d.Stage), slog.String("reason", d.Message))
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.QueryTimeout)
	defer cancel()

	res := s.querier.Run(ctx, query, history)
	if len(input) > 0 {
		res.Diagnostics = append(input, res.Diagnostics...)
	}

	outcome := "ok"
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		outcome = "timeout"
	case res.Degraded():
		outcome = "degraded"
	}
	s.metrics.queryRequestsTotal.WithLabelValues(outcome).Inc()
	s.metrics.queryDurationSeconds.WithLabelValues(outcome).Observe(time.Since(start).Seconds())

	writeJSON(w, log, http.StatusOK, res)
}

// handleGenerate handles POST /api/generate, a pass-through to the
// generation backend without retrieval.
func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	var req generateRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, log, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Prompt == "" {
		writeError(w, log, http.StatusBadRequest, "prompt is required")
		return
	}
	if !s.generator.Available() {
		s.metrics.generateRequestsTotal.WithLabelValues("unavailable").Inc()
		writeError(w, log, http.StatusServiceUnavailable, "no generation backend configured: set GENERATION_BACKEND and its credentials")
		return
	}
	if req.MaxTokens <= 0 {
		req.MaxTokens = defaultGenerateTokens
	}
	model := req.Model
	if model == "" {
		model = s.generator.Model()
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.QueryTimeout)
	defer cancel()

	text, err := s.generator.GenerateRaw(ctx, req.Prompt, model, req.MaxTokens)
	if err != nil {
		log.Error("generate: backend call failed",
			slog.String("backend", s.generator.BackendName()),
			slog.Any("error", err),
		)
		if generator.IsUnavailable(err) {
			s.metrics.generateRequestsTotal.WithLabelValues("unavailable").Inc()
			writeError(w, log, http.StatusServiceUnavailable, err.Error())
			return
		}
		s.metrics.generateRequestsTotal.WithLabelValues("error").Inc()
		writeError(w, log, http.StatusInternalServerError, "generation failed: "+err.Error())
		return
	}

	s.metrics.generateRequestsTotal.WithLabelValues("ok").Inc()
	if model == "" {
		model = s.generator.BackendName()
	}
	writeJSON(w, log, http.StatusOK, generateResponse{Model: model, Response: text})
}

// handleHealth handles GET /api/health for liveness checks.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, logging.FromContext(r.Context()), http.StatusOK, healthResponse{
		Status:              "ok",
		GenerationBackend:   s.generator.BackendName(),
		GenerationAvailable: s.generator.Available(),
	})
}

// handleRuns handles GET /api/runs?limit=N, listing recent pipeline runs
// newest first.
func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())
	if s.runs == nil {
		writeError(w, log, http.StatusNotFound, "run ledger disabled")
		return
	}

	limit := defaultRunsLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, log, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxRunsLimit)
	}

	runs, err := s.runs.Recent(r.Context(), limit)
	if err != nil {
		log.Error("runs: list failed", slog.Any("error", err))
		writeError(w, log, http.StatusInternalServerError, "failed to list runs")
		return
	}
	if runs == nil {
		runs = []store.Run{}
	}
	writeJSON(w, log, http.StatusOK, runsResponse{Runs: runs})
}

// decodeQuery returns the query string, or "" and false when raw holds
// anything other than a JSON string. An absent query is valid and empty.
func decodeQuery(raw json.RawMessage) (string, bool) {
	if isNull(raw) {
		return "", true
	}
	var q string
	if err := json.Unmarshal(raw, &q); err != nil {
		return "", false
	}
	return q, true
}

// decodeHistory returns the chat turns, or nil and false when raw is not a
// list of turn objects. An absent history is valid and empty.
func decodeHistory(raw json.RawMessage) ([]rag.ChatTurn, bool) {
	if isNull(raw) {
		return nil, true
	}
	var turns []rag.ChatTurn
	if err := json.Unmarshal(raw, &turns); err != nil {
		return nil, false
	}
	return turns, true
}

func isNull(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

func invalidInput(field, msg string) pipeline.Diagnostic {
	return pipeline.Diagnostic{Stage: field, Kind: rag.KindInvalidInput, Message: msg}
}

// writeJSON encodes v with the given status code.
func writeJSON(w http.ResponseWriter, log *slog.Logger, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error("response encode error", slog.Any("error", err))
	}
}

// errorResponse is the JSON body of every non-2xx API response.
type errorResponse struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, log *slog.Logger, status int, msg string) {
	writeJSON(w, log, status, errorResponse{Error: msg})
}
