package commands

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/54b3r/cinerag-go/internal/ingestion"
	"github.com/54b3r/cinerag-go/internal/logging"
)

// NewIngestCmd constructs the `cinerag ingest` command, which runs the
// ingestion pipeline to populate the vector store.
func NewIngestCmd() *cobra.Command {
	var dirs []string
	var fromCatalog bool
	var reset bool

	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Ingest movie plots and text documents into the vector store",
		Long: `Chunk, embed and store documents for semantic retrieval.

Sources:
  --catalog   movies from the catalog's /movies-sample endpoint ("<title> <plot>")
  --dir       .txt, .md and .pdf files under a directory (repeatable)

Chunks are identified by "<source>:<page>:<index>", so re-running ingest only
embeds chunks that are not already stored. --reset clears the store first.

Relevant environment variables:
  VECTOR_STORE         qdrant (default) or pgvector
  QDRANT_HOST/PORT     Qdrant gRPC endpoint (default: localhost:6334)
  QDRANT_COLLECTION    Collection name (default: movies)
  PGVECTOR_DSN         PostgreSQL connection string for pgvector
  EMBEDDING_PROVIDER   ollama, openai, azure or gemini
  CATALOG_URL          Catalog service (default: http://127.0.0.1:3000)

Examples:
  cinerag ingest --catalog
  cinerag ingest --dir ./data
  cinerag ingest --reset --catalog --dir ./reviews`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			log := logging.New()
			ctx := logging.WithLogger(cmd.Context(), log)

			if !fromCatalog && len(dirs) == 0 && !reset {
				return fmt.Errorf("ingest: nothing to do; pass --catalog, --dir or --reset")
			}

			emb, err := buildEmbedder(ctx, log, false)
			if err != nil {
				return fmt.Errorf("ingest: %w", err)
			}

			vb, err := buildVectorStore(ctx, log)
			if err != nil {
				return fmt.Errorf("ingest: %w", err)
			}
			defer func() { _ = vb.store.Close() }()

			p, err := ingestion.NewPipeline(emb, vb.store, &ingestion.Config{Logger: log})
			if err != nil {
				return fmt.Errorf("ingest: failed to create pipeline: %w", err)
			}

			if reset {
				log.Info("clearing vector store")
				if err := p.Reset(ctx); err != nil {
					return fmt.Errorf("ingest: %w", err)
				}
			}

			var sources []ingestion.Source
			if fromCatalog {
				client, _, err := buildCatalog(log)
				if err != nil {
					return fmt.Errorf("ingest: %w", err)
				}
				records, err := client.FetchSample(ctx)
				if err != nil {
					return fmt.Errorf("ingest: fetching catalog sample: %w", err)
				}
				movies := ingestion.MovieSources(records)
				log.Info("catalog sample loaded", slog.Int("records", len(records)), slog.Int("with_plot", len(movies)))
				sources = append(sources, movies...)
			}
			for _, dir := range dirs {
				files, err := ingestion.LoadDir(dir)
				if err != nil {
					return fmt.Errorf("ingest: %w", err)
				}
				log.Info("documents loaded", slog.String("dir", dir), slog.Int("files", len(files)))
				sources = append(sources, files...)
			}
			if len(sources) == 0 {
				log.Info("no sources to ingest")
				return nil
			}

			stats, err := p.Ingest(ctx, sources, func(msg string) { log.Info(msg) })
			if err != nil {
				return fmt.Errorf("ingest: pipeline failed: %w", err)
			}

			log.Info("ingestion complete",
				slog.Int("sources", stats.Sources),
				slog.Int("chunks", stats.Chunks),
				slog.Int("added", stats.Added),
				slog.Int("skipped", stats.Skipped),
			)
			return nil
		},
	}

	cmd.Flags().StringArrayVarP(&dirs, "dir", "d", nil, "Directory of .txt/.md/.pdf files to ingest (repeatable)")
	cmd.Flags().BoolVar(&fromCatalog, "catalog", false, "Ingest the catalog's movie sample")
	cmd.Flags().BoolVar(&reset, "reset", false, "Clear the vector store before ingesting")

	return cmd
}
