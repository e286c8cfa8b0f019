package commands

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/54b3r/cinerag-go/internal/logging"
	"github.com/54b3r/cinerag-go/internal/pipeline"
	"github.com/54b3r/cinerag-go/internal/server"
	"github.com/54b3r/cinerag-go/internal/tracing"
	"github.com/54b3r/cinerag-go/internal/version"
)

// NewServeCmd constructs the `cinerag serve` command, which starts the HTTP
// server exposing the question-answering pipeline.
func NewServeCmd() *cobra.Command {
	var host string
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the cinerag HTTP server",
		Long: `Start the cinerag HTTP server on localhost.

Endpoints:
  POST /api/query     {"query": "...", "history": [...]} -> pipeline result
  POST /api/generate  {"prompt": "...", "model"?, "max_tokens"?} -> raw generation
  GET  /api/runs      recent pipeline runs (when the run ledger is enabled)
  GET  /api/health    liveness and generation backend status
  GET  /api/ready     dependency probes (LLM, vector store, catalog)
  GET  /metrics       Prometheus metrics

Set CINERAG_API_KEY to require a Bearer token on /api/query, /api/generate
and /api/runs.

Examples:
  cinerag serve
  cinerag serve --port 9090
  VECTOR_STORE=pgvector PGVECTOR_DSN=postgres://... cinerag serve`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			log.Info("serve starting",
				slog.String("version", version.Version),
				slog.String("generation_backend", getEnvOrDefault("GENERATION_BACKEND", "chat")),
			)

			// Langfuse tracing is opt-in and a no-op if keys are absent.
			flush, ok := tracing.Setup(tracing.ConfigFromEnv(version.Version))
			defer flush()
			if ok {
				log.Info("langfuse tracing enabled")
			} else {
				log.Info("langfuse tracing disabled", slog.String("reason", "LANGFUSE_PUBLIC_KEY not set"))
			}

			var recorder pipeline.Recorder
			var runs server.RunLister
			if rs := openRunStore(log); rs != nil {
				defer func() { _ = rs.Close() }()
				recorder = rs
				runs = rs
			}

			c, err := buildPipeline(ctx, log, recorder, prometheus.DefaultRegisterer)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			defer c.close()

			srv, err := server.New(c.pipeline, c.generator, runs, &server.Config{
				Host:    host,
				Port:    port,
				Logger:  log,
				Pingers: buildPingers(c),
				APIKey:  os.Getenv("CINERAG_API_KEY"),
			})
			if err != nil {
				return fmt.Errorf("serve: failed to create server: %w", err)
			}

			return srv.Start(ctx)
		},
	}

	cmd.Flags().StringVar(&host, "host", "127.0.0.1", "Host address to bind to")
	cmd.Flags().IntVarP(&port, "port", "p", 8080, "TCP port to listen on")

	return cmd
}
