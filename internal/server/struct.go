package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/54b3r/cinerag-go/internal/pipeline"
	"github.com/54b3r/cinerag-go/internal/rag"
	"github.com/54b3r/cinerag-go/internal/store"
)

// Config holds the HTTP server configuration.
type Config struct {
	// Host is the address to bind to (default: 127.0.0.1).
	Host string
	// Port is the TCP port to listen on (default: 8080).
	Port int
	// ReadTimeout is the maximum duration for reading the request.
	ReadTimeout time.Duration
	// WriteTimeout is the maximum duration for writing the response.
	WriteTimeout time.Duration
	// ShutdownTimeout is the maximum duration for a graceful shutdown.
	ShutdownTimeout time.Duration
	// QueryTimeout bounds a single /api/query or /api/generate call
	// (default: 2m). It must stay below WriteTimeout.
	QueryTimeout time.Duration
	// Logger is the structured logger used by the server and its handlers.
	// If nil, [logging.New] is used.
	Logger *slog.Logger
	// Pingers is the ordered list of dependency probes run by GET /api/ready.
	// If empty, /api/ready returns 200 with no checks (liveness-only mode).
	Pingers []Pinger
	// ProbeTimeout bounds each readiness probe (default: 5s).
	ProbeTimeout time.Duration
	// RateLimit is the sustained request rate allowed per IP on rate-limited
	// endpoints (requests/second). Defaults to 10 if zero.
	RateLimit float64
	// RateBurst is the maximum instantaneous burst per IP. Defaults to 20 if zero.
	RateBurst int
	// APIKey is the Bearer token required on all protected /api/* routes.
	// If empty, authentication is disabled (development mode).
	APIKey string
	// MetricsRegistry receives the server's Prometheus collectors.
	// Defaults to prometheus.DefaultRegisterer.
	MetricsRegistry prometheus.Registerer
	// MetricsGatherer is scraped by GET /metrics.
	// Defaults to prometheus.DefaultGatherer.
	MetricsGatherer prometheus.Gatherer
}

// querier runs the answer pipeline. *pipeline.Pipeline satisfies it; tests
// inject a fake.
type querier interface {
	Run(ctx context.Context, query string, history []rag.ChatTurn) *pipeline.Result
}

// generatorAPI is the slice of *generator.Generator used by the health and
// direct-generation handlers.
type generatorAPI interface {
	BackendName() string
	Available() bool
	Model() string
	GenerateRaw(ctx context.Context, prompt, model string, maxTokens int) (string, error)
}

// RunLister lists recorded pipeline runs. *store.SQLiteStore satisfies it.
// A nil RunLister disables GET /api/runs.
type RunLister interface {
	Recent(ctx context.Context, n int) ([]store.Run, error)
}

// Server is the HTTP server that exposes the movie question-answering
// pipeline.
type Server struct {
	// querier answers /api/query requests.
	querier querier
	// generator serves /api/generate and reports backend availability.
	generator generatorAPI
	// runs backs GET /api/runs; nil disables the endpoint.
	runs RunLister
	// cfg holds the resolved server configuration.
	cfg *Config
	// httpServer is the underlying net/http server.
	httpServer *http.Server
	// log is the structured logger for this server instance.
	log *slog.Logger
	// pingers is the ordered list of dependency probes for GET /api/ready.
	pingers []Pinger
	// stopRL drops the rate limiter's client buckets on shutdown.
	stopRL func()
	// metrics holds the Prometheus collectors for this server instance.
	metrics *serverMetrics
}

// queryRequest is the JSON body for POST /api/query. Both fields are kept raw
// so that wrongly typed values can be coerced instead of rejected.
type queryRequest struct {
	// Query is the user's question. Non-string values are treated as "".
	Query json.RawMessage `json:"query"`
	// History is the prior conversation, oldest first. Malformed values are
	// treated as an empty history.
	History json.RawMessage `json:"history"`
}

// generateRequest is the JSON body for POST /api/generate.
type generateRequest struct {
	// Prompt is sent to the backend verbatim.
	Prompt string `json:"prompt"`
	// Model overrides the configured generation model.
	Model string `json:"model,omitempty"`
	// MaxTokens caps the response length (default: 256).
	MaxTokens int `json:"max_tokens,omitempty"`
}

// generateResponse is the JSON response for POST /api/generate.
type generateResponse struct {
	// Model is the model that produced the response.
	Model string `json:"model"`
	// Response is the extracted text.
	Response string `json:"response"`
}

// healthResponse is the JSON response for GET /api/health.
type healthResponse struct {
	Status              string `json:"status"`
	GenerationBackend   string `json:"generation_backend"`
	GenerationAvailable bool   `json:"generation_available"`
}

// runsResponse is the JSON response for GET /api/runs.
type runsResponse struct {
	Runs []store.Run `json:"runs"`
}
