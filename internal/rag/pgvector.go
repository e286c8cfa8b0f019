package rag

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	pgxvector "github.com/pgvector/pgvector-go/pgx"
)

// tableNamePattern restricts table names to plain identifiers since they are
// interpolated into DDL.
var tableNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// PgVectorConfig holds connection parameters for a PostgreSQL database with
// the pgvector extension.
type PgVectorConfig struct {
	// DSN is the PostgreSQL connection string.
	DSN string

	// Table is the table holding chunks and embeddings (default: movie_chunks).
	Table string

	// VectorSize is the dimensionality of the embedding column.
	VectorSize int

	// MaxConns caps the pool size (default: 10).
	MaxConns int32
}

// PgVectorStore implements VectorStore on PostgreSQL + pgvector. Scores are
// cosine similarity (1 - cosine distance).
type PgVectorStore struct {
	pool  *pgxpool.Pool
	table string
}

// NewPgVectorStore connects to PostgreSQL, registers the vector types on each
// connection and creates the chunk table if it does not exist.
func NewPgVectorStore(ctx context.Context, cfg *PgVectorConfig) (*PgVectorStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("pgvector: DSN must be set")
	}
	if cfg.Table == "" {
		cfg.Table = "movie_chunks"
	}
	if !tableNamePattern.MatchString(cfg.Table) {
		return nil, fmt.Errorf("pgvector: invalid table name %q", cfg.Table)
	}
	if cfg.VectorSize <= 0 {
		return nil, fmt.Errorf("pgvector: vector size must be set")
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("pgvector: failed to parse DSN: %w", err)
	}
	poolCfg.MaxConns = 10
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	poolCfg.MaxConnLifetime = time.Hour
	poolCfg.MaxConnIdleTime = 30 * time.Minute
	poolCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		if _, err := conn.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
			return err
		}
		return pgxvector.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("pgvector: failed to create pool: %w", err)
	}

	store := &PgVectorStore{pool: pool, table: cfg.Table}
	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	id        TEXT PRIMARY KEY,
	content   TEXT NOT NULL,
	metadata  JSONB NOT NULL DEFAULT '{}'::jsonb,
	embedding vector(%d) NOT NULL
)`, cfg.Table, cfg.VectorSize)
	if _, err := pool.Exec(ctx, ddl); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pgvector: failed to create table %q: %w", cfg.Table, err)
	}

	return store, nil
}

// Pool exposes the connection pool for readiness probes.
func (s *PgVectorStore) Pool() *pgxpool.Pool {
	return s.pool
}

// Upsert inserts or replaces a batch of chunks in a single round trip.
func (s *PgVectorStore) Upsert(ctx context.Context, docs []Document, embeddings [][]float32) error {
	if len(docs) != len(embeddings) {
		return fmt.Errorf("pgvector: %d documents but %d embeddings", len(docs), len(embeddings))
	}
	if len(docs) == 0 {
		return nil
	}

	query := fmt.Sprintf(`INSERT INTO %s (id, content, metadata, embedding)
VALUES ($1, $2, $3, $4)
ON CONFLICT (id) DO UPDATE SET content = EXCLUDED.content, metadata = EXCLUDED.metadata, embedding = EXCLUDED.embedding`, s.table)

	batch := &pgx.Batch{}
	for i, doc := range docs {
		meta := doc.Metadata
		if meta == nil {
			meta = map[string]any{}
		}
		batch.Queue(query, doc.ID, doc.Content, meta, pgvector.NewVector(embeddings[i]))
	}

	if err := s.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("pgvector: upsert failed: %w", err)
	}
	return nil
}

// Search returns the topK chunks ordered by cosine distance.
func (s *PgVectorStore) Search(ctx context.Context, queryEmbedding []float32, topK int) ([]Document, error) {
	query := fmt.Sprintf(`SELECT id, content, metadata, 1 - (embedding <=> $1) AS score
FROM %s
ORDER BY embedding <=> $1
LIMIT $2`, s.table)

	rows, err := s.pool.Query(ctx, query, pgvector.NewVector(queryEmbedding), topK)
	if err != nil {
		return nil, fmt.Errorf("pgvector: search failed: %w", err)
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		var doc Document
		if err := rows.Scan(&doc.ID, &doc.Content, &doc.Metadata, &doc.Score); err != nil {
			return nil, fmt.Errorf("pgvector: scan failed: %w", err)
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("pgvector: search failed: %w", err)
	}

	return docs, nil
}

// Existing reports which of ids are already stored.
func (s *PgVectorStore) Existing(ctx context.Context, ids []string) (map[string]bool, error) {
	found := make(map[string]bool, len(ids))
	if len(ids) == 0 {
		return found, nil
	}

	rows, err := s.pool.Query(ctx, fmt.Sprintf("SELECT id FROM %s WHERE id = ANY($1)", s.table), ids)
	if err != nil {
		return nil, fmt.Errorf("pgvector: lookup failed: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("pgvector: scan failed: %w", err)
		}
		found[id] = true
	}
	return found, rows.Err()
}

// Reset deletes every stored chunk.
func (s *PgVectorStore) Reset(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, fmt.Sprintf("TRUNCATE %s", s.table)); err != nil {
		return fmt.Errorf("pgvector: truncate failed: %w", err)
	}
	return nil
}

// Close releases the pool.
func (s *PgVectorStore) Close() error {
	s.pool.Close()
	return nil
}
