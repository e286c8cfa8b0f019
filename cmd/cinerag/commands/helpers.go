package commands

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/54b3r/cinerag-go/internal/catalog"
	"github.com/54b3r/cinerag-go/internal/embedder"
	"github.com/54b3r/cinerag-go/internal/generator"
	"github.com/54b3r/cinerag-go/internal/pipeline"
	"github.com/54b3r/cinerag-go/internal/provider"
	"github.com/54b3r/cinerag-go/internal/rag"
	"github.com/54b3r/cinerag-go/internal/server"
	"github.com/54b3r/cinerag-go/internal/store"
)

// defaultCatalogURL is where the catalog service listens in local setups.
const defaultCatalogURL = "http://127.0.0.1:3000"

// vectorBackend is an opened vector store plus the readiness probe for it.
type vectorBackend struct {
	store  rag.VectorStore
	pinger server.Pinger
}

// buildVectorStore opens the store selected by VECTOR_STORE (qdrant or
// pgvector, default qdrant). The vector width follows the embedding backend.
func buildVectorStore(ctx context.Context, log *slog.Logger) (*vectorBackend, error) {
	dims := embedder.DefaultDimensions(embedder.Backend())

	switch backend := getEnvOrDefault("VECTOR_STORE", "qdrant"); backend {
	case "qdrant":
		host := getEnvOrDefault("QDRANT_HOST", "localhost")
		port := getEnvInt("QDRANT_PORT", 6334)
		collection := getEnvOrDefault("QDRANT_COLLECTION", "movies")
		s, err := rag.NewQdrantStore(ctx, &rag.QdrantConfig{
			Host:       host,
			Port:       port,
			Collection: collection,
			VectorSize: uint64(dims), //nolint:gosec // dimensions are bounded
			APIKey:     os.Getenv("QDRANT_API_KEY"),
			UseTLS:     os.Getenv("QDRANT_TLS") == "true",
		})
		if err != nil {
			return nil, fmt.Errorf("failed to connect to Qdrant at %s:%d: %w", host, port, err)
		}
		log.Info("qdrant store ready",
			slog.String("host", host),
			slog.Int("port", port),
			slog.String("collection", collection),
			slog.Int("dimensions", dims),
		)
		return &vectorBackend{store: s, pinger: server.NewQdrantPinger(s.Client())}, nil

	case "pgvector":
		table := getEnvOrDefault("PGVECTOR_TABLE", "movie_chunks")
		s, err := rag.NewPgVectorStore(ctx, &rag.PgVectorConfig{
			DSN:        os.Getenv("PGVECTOR_DSN"),
			Table:      table,
			VectorSize: dims,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to open pgvector store: %w", err)
		}
		log.Info("pgvector store ready", slog.String("table", table), slog.Int("dimensions", dims))
		return &vectorBackend{store: s, pinger: server.NewPostgresPinger(s.Pool())}, nil

	default:
		return nil, fmt.Errorf("unsupported VECTOR_STORE %q (want qdrant or pgvector)", backend)
	}
}

// buildEmbedder constructs the embedder from the environment. With
// zeroOnFailure the embedder degrades to zero vectors instead of failing,
// which the semantic retriever reports as unavailable.
func buildEmbedder(ctx context.Context, log *slog.Logger, zeroOnFailure bool) (rag.Embedder, error) {
	if err := embedder.Validate(log); err != nil {
		return nil, err
	}
	emb, err := embedder.NewFromEnv(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to initialise embedder: %w", err)
	}
	backend := embedder.Backend()
	log.Info("embedder initialised", slog.String("provider", backend))
	if !zeroOnFailure {
		return emb, nil
	}
	return embedder.NewFallback(emb, embedder.DefaultDimensions(backend), log), nil
}

// buildCatalog constructs the catalog client and the cached fetcher the
// lexical retriever reads through.
func buildCatalog(log *slog.Logger) (*catalog.Client, catalog.Fetcher, error) {
	baseURL := getEnvOrDefault("CATALOG_URL", defaultCatalogURL)
	client, err := catalog.NewClient(catalog.ClientConfig{
		BaseURL: baseURL,
		Timeout: getEnvDuration("CATALOG_TIMEOUT", 10*time.Second),
	})
	if err != nil {
		return nil, nil, err
	}
	ttl := getEnvDuration("CATALOG_CACHE_TTL", 30*time.Second)
	log.Info("catalog client ready", slog.String("url", baseURL), slog.Duration("cache_ttl", ttl))
	return client, catalog.NewCachedFetcher(client, ttl), nil
}

// buildGenerator constructs the answer generator for GENERATION_BACKEND:
//
//	chat  (default) eino chat model selected by MODEL_PROVIDER
//	genai           Gemini via google.golang.org/genai (GOOGLE_API_KEY)
//	http            JSON endpoint at GENERATION_ENDPOINT
//	none            generation disabled
//
// A backend that cannot be configured is replaced by an unavailable stub so
// retrieval still works. The returned provider config is nil unless the chat
// backend is active.
func buildGenerator(ctx context.Context, log *slog.Logger) (*generator.Generator, *provider.Config, error) {
	var (
		backend     generator.Backend
		providerCfg *provider.Config
		model       = os.Getenv("GENERATION_MODEL")
	)

	switch name := getEnvOrDefault("GENERATION_BACKEND", "chat"); name {
	case "chat":
		chatModel, cfg, err := provider.NewFromEnv(ctx)
		if err != nil {
			log.Warn("generation backend unavailable", slog.String("backend", name), slog.Any("error", err))
			backend = generator.UnavailableBackend{Reason: err.Error()}
			break
		}
		providerCfg = cfg
		backend = generator.NewChatModelBackend(string(cfg.Backend), chatModel)
		if model == "" {
			model = cfg.ModelName()
		}
	case "genai":
		if model == "" {
			model = getEnvOrDefault("GEMINI_MODEL", "gemini-2.5-flash")
		}
		client, err := provider.NewGenAIClient(ctx, os.Getenv("GOOGLE_API_KEY"))
		if err != nil {
			log.Warn("generation backend unavailable", slog.String("backend", name), slog.Any("error", err))
			backend = generator.UnavailableBackend{Reason: err.Error()}
			break
		}
		backend = generator.NewGenAIBackend(client, model)
	case "http":
		endpoint := os.Getenv("GENERATION_ENDPOINT")
		if endpoint == "" {
			backend = generator.UnavailableBackend{Reason: "GENERATION_ENDPOINT is not set"}
			log.Warn("generation backend unavailable", slog.String("backend", name), slog.String("reason", "GENERATION_ENDPOINT is not set"))
			break
		}
		backend = generator.NewHTTPBackend(endpoint, os.Getenv("GENERATION_API_KEY"), getEnvDuration("GENERATION_TIMEOUT", 0))
	case "none":
		backend = generator.UnavailableBackend{Reason: "generation disabled (GENERATION_BACKEND=none)"}
	default:
		return nil, nil, fmt.Errorf("unsupported GENERATION_BACKEND %q (want chat, genai, http or none)", name)
	}

	gen, err := generator.New(generator.Config{
		Backend:   backend,
		Model:     model,
		MaxTokens: getEnvInt("GENERATION_MAX_TOKENS", generator.DefaultMaxTokens),
		Timeout:   getEnvDuration("GENERATION_TIMEOUT", generator.DefaultTimeout),
	})
	if err != nil {
		return nil, nil, err
	}
	log.Info("generator initialised",
		slog.String("backend", gen.BackendName()),
		slog.String("model", gen.Model()),
		slog.Bool("available", gen.Available()),
	)
	return gen, providerCfg, nil
}

// components is everything a pipeline run needs, plus the handles serve uses
// for readiness probes.
type components struct {
	pipeline  *pipeline.Pipeline
	generator *generator.Generator
	provider  *provider.Config
	catalog   *catalog.Client
	vector    *vectorBackend
	close     func()
}

// buildPipeline wires retrievers, generator and (optionally) the run recorder
// into a pipeline. reg receives the pipeline metrics and may be nil.
// The semantic stage is left out of service rather than failing startup when
// the vector store or embedder cannot be built; the pipeline then reports it
// as unavailable on every run.
func buildPipeline(ctx context.Context, log *slog.Logger, recorder pipeline.Recorder, reg prometheus.Registerer) (*components, error) {
	c := &components{close: func() {}}

	var semantic pipeline.SemanticSearcher
	vb, err := buildVectorStore(ctx, log)
	if err != nil {
		log.Warn("semantic retrieval disabled", slog.Any("error", err))
		semantic = unavailableSemantic{reason: err.Error()}
	} else {
		c.vector = vb
		c.close = func() { _ = vb.store.Close() }
		emb, err := buildEmbedder(ctx, log, true)
		if err != nil {
			log.Warn("semantic retrieval disabled", slog.Any("error", err))
			semantic = unavailableSemantic{reason: err.Error()}
		} else {
			r, err := rag.NewSemanticRetriever(emb, vb.store, 0)
			if err != nil {
				c.close()
				return nil, err
			}
			semantic = r
		}
	}

	client, fetcher, err := buildCatalog(log)
	if err != nil {
		c.close()
		return nil, err
	}
	c.catalog = client
	lexical, err := catalog.NewLexicalRetriever(fetcher, getEnvInt("CATALOG_FETCH_LIMIT", catalog.DefaultFetchLimit))
	if err != nil {
		c.close()
		return nil, err
	}

	gen, providerCfg, err := buildGenerator(ctx, log)
	if err != nil {
		c.close()
		return nil, err
	}
	c.generator = gen
	c.provider = providerCfg

	cfg := pipeline.Config{
		Semantic:         semantic,
		Lexical:          lexical,
		Generator:        gen,
		SemanticK:        getEnvInt("PIPELINE_SEMANTIC_K", 0),
		LexicalK:         getEnvInt("PIPELINE_LEXICAL_K", 0),
		ContextItems:     getEnvInt("PIPELINE_CONTEXT_ITEMS", 0),
		MaxContextTokens: getEnvInt("PIPELINE_MAX_CONTEXT_TOKENS", 0),
		StageTimeout:     getEnvDuration("PIPELINE_STAGE_TIMEOUT", 15*time.Second),
		Recorder:         recorder,
		Registerer:       reg,
	}
	p, err := pipeline.New(cfg)
	if err != nil {
		c.close()
		return nil, err
	}
	c.pipeline = p
	return c, nil
}

// unavailableSemantic stands in for a semantic retriever that could not be
// built.
type unavailableSemantic struct{ reason string }

func (u unavailableSemantic) Search(context.Context, string, int) ([]rag.Document, error) {
	return nil, rag.Unavailable("semantic search", fmt.Errorf("%s", u.reason))
}

// openRunStore opens the run ledger. CINERAG_RUNS_DB overrides the default
// path (~/.cinerag/runs.db); "disabled" turns recording off. Failures only
// disable the ledger. The returned store is nil when disabled.
func openRunStore(log *slog.Logger) *store.SQLiteStore {
	dbPath := os.Getenv("CINERAG_RUNS_DB")
	if dbPath == "disabled" {
		log.Info("runs: disabled via CINERAG_RUNS_DB=disabled")
		return nil
	}
	if dbPath == "" {
		var err error
		dbPath, err = store.DefaultDBPath()
		if err != nil {
			log.Warn("runs: could not resolve default DB path, disabling", slog.Any("error", err))
			return nil
		}
	}
	s, err := store.Open(dbPath)
	if err != nil {
		log.Warn("runs: failed to open store, disabling", slog.Any("error", err))
		return nil
	}
	log.Info("runs: store opened", slog.String("path", dbPath))
	return s
}

// buildPingers assembles the readiness probes in display order: the chat
// model (chat backend only), the vector store, then the catalog.
func buildPingers(c *components) []server.Pinger {
	var pingers []server.Pinger
	if c.provider != nil {
		pingers = append(pingers, server.NewLLMPinger(c.provider, &http.Client{Timeout: 5 * time.Second}))
	}
	if c.vector != nil {
		pingers = append(pingers, c.vector.pinger)
	}
	if c.catalog != nil {
		pingers = append(pingers, server.NewCatalogPinger(c.catalog))
	}
	return pingers
}

// getEnvOrDefault returns the value of the environment variable key,
// or fallback if the variable is unset or empty.
func getEnvOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// getEnvInt returns the integer value of key, or fallback if unset or invalid.
func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

// getEnvDuration parses key with time.ParseDuration, or returns fallback.
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
