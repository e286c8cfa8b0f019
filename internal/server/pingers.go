package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/qdrant/go-client/qdrant"

	"github.com/54b3r/cinerag-go/internal/provider"
)

// LLMPinger probes the chat-model backend with a zero-token listing call.
// It satisfies the Pinger interface and is used by GET /api/ready.
type LLMPinger struct {
	// cfg is the resolved provider configuration to probe.
	cfg *provider.Config
	// client performs the probe request.
	client *http.Client
}

// NewLLMPinger constructs an LLMPinger for the given provider configuration.
func NewLLMPinger(cfg *provider.Config, client *http.Client) *LLMPinger {
	return &LLMPinger{cfg: cfg, client: client}
}

// Name returns the backend label used in readiness responses.
func (p *LLMPinger) Name() string { return string(p.cfg.Backend) }

// Ping reports whether the backend answers a model listing.
func (p *LLMPinger) Ping(ctx context.Context) error {
	if err := provider.Probe(ctx, p.cfg, p.client); err != nil {
		return fmt.Errorf("%s health check failed: %w", p.cfg.Backend, err)
	}
	return nil
}

// QdrantPinger probes a Qdrant instance using its native HealthCheck RPC.
type QdrantPinger struct {
	// client is the Qdrant gRPC client to probe.
	client *qdrant.Client
}

// NewQdrantPinger constructs a QdrantPinger for the given Qdrant client.
func NewQdrantPinger(client *qdrant.Client) *QdrantPinger {
	return &QdrantPinger{client: client}
}

// Name returns the dependency label used in readiness responses.
func (p *QdrantPinger) Name() string { return "qdrant" }

// Ping calls the Qdrant HealthCheck RPC.
func (p *QdrantPinger) Ping(ctx context.Context) error {
	if _, err := p.client.HealthCheck(ctx); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	return nil
}

// PostgresPinger probes the pgvector database through its connection pool.
type PostgresPinger struct {
	pool *pgxpool.Pool
}

// NewPostgresPinger constructs a PostgresPinger for pool.
func NewPostgresPinger(pool *pgxpool.Pool) *PostgresPinger {
	return &PostgresPinger{pool: pool}
}

// Name returns the dependency label used in readiness responses.
func (p *PostgresPinger) Name() string { return "pgvector" }

// Ping acquires a connection and round-trips an empty statement.
func (p *PostgresPinger) Ping(ctx context.Context) error {
	if err := p.pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping failed: %w", err)
	}
	return nil
}

// catalogPing is the part of catalog.Client used for readiness.
type catalogPing interface {
	Ping(ctx context.Context) error
}

// CatalogPinger probes the movie catalog service.
type CatalogPinger struct {
	catalog catalogPing
}

// NewCatalogPinger constructs a CatalogPinger. *catalog.Client satisfies c.
func NewCatalogPinger(c catalogPing) *CatalogPinger {
	return &CatalogPinger{catalog: c}
}

// Name returns the dependency label used in readiness responses.
func (p *CatalogPinger) Name() string { return "catalog" }

// Ping checks that the catalog answers.
func (p *CatalogPinger) Ping(ctx context.Context) error {
	return p.catalog.Ping(ctx)
}
