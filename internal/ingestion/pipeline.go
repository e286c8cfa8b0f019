// Package ingestion populates the vector store. It turns catalog movies and
// local text, markdown and PDF documents into overlapping chunks, embeds each chunk, and upserts
// the ones the store does not already hold.
// This pipeline is invoked by the `cinerag ingest` CLI command.
package ingestion

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/google/uuid"

	"github.com/54b3r/cinerag-go/internal/catalog"
	"github.com/54b3r/cinerag-go/internal/rag"
)

const (
	// DefaultChunkSize is the maximum number of characters per chunk.
	DefaultChunkSize = 800
	// DefaultChunkOverlap is the number of characters shared by consecutive chunks.
	DefaultChunkOverlap = 80
	// DefaultBatchSize is the number of chunks embedded per call.
	DefaultBatchSize = 64
)

// Source is one document to be chunked. Name and Page identify it in chunk
// keys, so they must be stable across runs for deduplication to work.
type Source struct {
	// Name is "catalog/<movie_id>" for movies or the path relative to the
	// ingested directory for files.
	Name string

	// Page is the 0-based PDF page number. Zero for single-page sources.
	Page int

	// Text is the content to chunk.
	Text string

	// Metadata is copied onto every chunk produced from this source.
	Metadata map[string]any
}

// Config holds the configuration for the ingestion pipeline.
type Config struct {
	// ChunkSize is the maximum number of characters per document chunk.
	// Defaults to 800 if zero.
	ChunkSize int

	// ChunkOverlap is the number of characters to overlap between consecutive chunks.
	// Defaults to 80 if zero.
	ChunkOverlap int

	// BatchSize is the number of chunks looked up, embedded and upserted together.
	// Defaults to 64 if zero.
	BatchSize int

	// Logger receives per-batch debug output. Defaults to slog.Default().
	Logger *slog.Logger
}

// Stats summarises one ingestion run.
type Stats struct {
	Sources int
	Chunks  int
	Skipped int
	Added   int
}

// Pipeline orchestrates the chunk → dedupe → embed → upsert flow for a set
// of sources.
type Pipeline struct {
	// embedder converts text chunks into dense vector embeddings.
	embedder rag.Embedder

	// store persists the embedded chunks.
	store rag.VectorStore

	// cfg holds the resolved pipeline configuration.
	cfg *Config
}

// NewPipeline constructs a Pipeline from the provided dependencies and config.
func NewPipeline(embedder rag.Embedder, store rag.VectorStore, cfg *Config) (*Pipeline, error) {
	if embedder == nil {
		return nil, fmt.Errorf("ingestion: embedder must not be nil")
	}
	if store == nil {
		return nil, fmt.Errorf("ingestion: store must not be nil")
	}
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = DefaultChunkSize
	}
	if cfg.ChunkOverlap == 0 {
		cfg.ChunkOverlap = DefaultChunkOverlap
	}
	if cfg.ChunkOverlap < 0 {
		cfg.ChunkOverlap = 0
	}
	if cfg.ChunkOverlap >= cfg.ChunkSize {
		cfg.ChunkOverlap = cfg.ChunkSize / 10
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Pipeline{embedder: embedder, store: store, cfg: cfg}, nil
}

// Reset removes every document from the store.
func (p *Pipeline) Reset(ctx context.Context) error {
	if err := p.store.Reset(ctx); err != nil {
		return fmt.Errorf("ingestion: reset failed: %w", err)
	}
	return nil
}

// Ingest chunks all sources and stores the chunks whose IDs are not already
// present. It returns the first error encountered; chunks upserted before
// the error stay stored and are skipped on the next run.
// Progress is reported via the optional progress callback.
func (p *Pipeline) Ingest(ctx context.Context, sources []Source, progress func(msg string)) (Stats, error) {
	if progress == nil {
		progress = func(string) {}
	}

	stats := Stats{Sources: len(sources)}
	var docs []rag.Document
	for _, src := range sources {
		chunks := Chunk(src.Text, p.cfg.ChunkSize, p.cfg.ChunkOverlap)
		for i, text := range chunks {
			key := ChunkKey(src.Name, src.Page, i)
			meta := make(map[string]any, len(src.Metadata)+2)
			maps.Copy(meta, src.Metadata)
			meta["id"] = key
			meta["chunk_index"] = i
			docs = append(docs, rag.Document{
				ID:       PointID(key),
				Content:  text,
				Metadata: meta,
			})
		}
	}
	stats.Chunks = len(docs)
	progress(fmt.Sprintf("chunked %d sources into %d chunks", stats.Sources, stats.Chunks))

	for start := 0; start < len(docs); start += p.cfg.BatchSize {
		end := min(start+p.cfg.BatchSize, len(docs))
		added, err := p.ingestBatch(ctx, docs[start:end])
		if err != nil {
			return stats, err
		}
		stats.Added += added
		stats.Skipped += (end - start) - added
		progress(fmt.Sprintf("processed %d/%d chunks (%d new)", end, len(docs), stats.Added))
	}

	return stats, nil
}

// ingestBatch stores the chunks of batch that are not yet in the store and
// returns how many it added.
func (p *Pipeline) ingestBatch(ctx context.Context, batch []rag.Document) (int, error) {
	ids := make([]string, len(batch))
	for i, d := range batch {
		ids[i] = d.ID
	}
	existing, err := p.store.Existing(ctx, ids)
	if err != nil {
		return 0, fmt.Errorf("ingestion: lookup failed: %w", err)
	}

	fresh := make([]rag.Document, 0, len(batch))
	texts := make([]string, 0, len(batch))
	for _, d := range batch {
		if existing[d.ID] {
			continue
		}
		fresh = append(fresh, d)
		texts = append(texts, d.Content)
	}
	if len(fresh) == 0 {
		return 0, nil
	}

	embeddings, err := p.embedder.Embed(ctx, texts)
	if err != nil {
		return 0, fmt.Errorf("ingestion: embedding failed: %w", err)
	}
	if len(embeddings) != len(fresh) {
		return 0, fmt.Errorf("ingestion: embedder returned %d vectors for %d chunks", len(embeddings), len(fresh))
	}
	for i, v := range embeddings {
		if allZero(v) {
			return 0, fmt.Errorf("ingestion: zero embedding for chunk %v", fresh[i].Metadata["id"])
		}
	}

	if err := p.store.Upsert(ctx, fresh, embeddings); err != nil {
		return 0, fmt.Errorf("ingestion: upsert failed: %w", err)
	}
	p.cfg.Logger.Debug("ingestion batch stored", slog.Int("added", len(fresh)), slog.Int("skipped", len(batch)-len(fresh)))
	return len(fresh), nil
}

// MovieSources turns catalog records into sources. Records missing an id, a
// title or a plot are skipped. The text is "<title> <plot>".
func MovieSources(records []catalog.Record) []Source {
	out := make([]Source, 0, len(records))
	for _, rec := range records {
		if rec.ID == "" || rec.Title == "" || rec.Plot == "" {
			continue
		}
		out = append(out, Source{
			Name:     "catalog/" + rec.ID,
			Text:     rec.Title + " " + rec.Plot,
			Metadata: MovieMetadata(rec),
		})
	}
	return out
}

// LoadDir walks dir and returns the sources of every supported file, in
// lexical path order. Text and markdown files yield one source each; PDFs
// yield one source per page with text. Empty documents are skipped.
func LoadDir(dir string) ([]Source, error) {
	var out []Source
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !SupportedFile(path) {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			rel = path
		}

		if strings.EqualFold(filepath.Ext(path), ".pdf") {
			pages, err := loadPDF(path, rel)
			if err != nil {
				return err
			}
			out = append(out, pages...)
			return nil
		}

		body, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading %s: %w", path, err)
		}
		text := strings.TrimSpace(string(body))
		if text == "" {
			return nil
		}
		out = append(out, Source{
			Name:     filepath.ToSlash(rel),
			Text:     text,
			Metadata: InferFileMetadata(rel, text),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("ingestion: loading %s: %w", dir, err)
	}
	return out, nil
}

// ChunkKey is the human-readable identity of a chunk: "<source>:<page>:<index>".
func ChunkKey(source string, page, index int) string {
	return fmt.Sprintf("%s:%d:%d", source, page, index)
}

// PointID maps a chunk key to the deterministic UUIDv5 used as the store ID.
func PointID(key string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(key)).String()
}

// Chunk splits text into chunks of at most size characters, each starting
// overlap characters before the previous one ended. A chunk boundary is moved
// back to the last whitespace in the second half of the window when there is
// one, so words are not cut.
func Chunk(text string, size, overlap int) []string {
	runes := []rune(strings.TrimSpace(text))
	if len(runes) == 0 || size <= 0 {
		return nil
	}
	if overlap < 0 || overlap >= size {
		overlap = 0
	}

	var chunks []string
	for start := 0; start < len(runes); {
		end := min(start+size, len(runes))
		if end < len(runes) {
			for i := end; i > start+size/2; i-- {
				if unicode.IsSpace(runes[i-1]) {
					end = i
					break
				}
			}
		}
		if c := strings.TrimSpace(string(runes[start:end])); c != "" {
			chunks = append(chunks, c)
		}
		if end == len(runes) {
			break
		}
		next := end - overlap
		if next <= start {
			next = end
		}
		start = next
	}

	return chunks
}

func allZero(v []float32) bool {
	for _, f := range v {
		if f != 0 {
			return false
		}
	}
	return true
}
