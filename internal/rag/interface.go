// Package rag defines the retrieval side of the question-answering pipeline:
// the stored/retrieved document shape, chat turns, the embedding and vector
// storage interfaces, and the semantic retriever that combines them.
// Concrete stores (Qdrant, pgvector) satisfy [VectorStore] so the pipeline
// never depends on a specific backend.
package rag

import (
	"context"
)

// Role identifies the author of a chat turn.
type Role string

const (
	// RoleUser is a turn written by the person asking questions.
	RoleUser Role = "user"
	// RoleAssistant is a turn produced by the assistant.
	RoleAssistant Role = "assistant"
)

// ChatTurn is one message of a conversation history. Histories are ordered
// chronologically with the most recent turn last.
type ChatTurn struct {
	Role Role   `json:"role"`
	Text string `json:"text"`
}

// Document represents a unit of retrieved or stored knowledge.
type Document struct {
	// ID is the unique identifier for this document chunk.
	ID string `json:"id,omitempty"`

	// Content is the raw text content of the chunk.
	Content string `json:"content"`

	// Metadata holds arbitrary, possibly nested, values attached at ingestion
	// time. Movie chunks carry movie_id, title, genres and imdb.rating.
	Metadata map[string]any `json:"metadata,omitempty"`

	// Score is the similarity assigned during retrieval. Stores normalise it
	// so that higher is better. Zero means the score was not computed.
	Score float64 `json:"score"`
}

// VectorStore is the interface for persisting and searching document embeddings.
// Implementations must be safe to call from multiple goroutines.
type VectorStore interface {
	// Upsert stores or updates a batch of documents with their pre-computed embeddings.
	// embeddings[i] is the vector for docs[i].
	Upsert(ctx context.Context, docs []Document, embeddings [][]float32) error

	// Search returns the topK documents most similar to queryEmbedding.
	Search(ctx context.Context, queryEmbedding []float32, topK int) ([]Document, error)

	// Existing reports which of ids are already stored.
	Existing(ctx context.Context, ids []string) (map[string]bool, error)

	// Reset removes every stored document.
	Reset(ctx context.Context) error

	// Close releases any resources held by the store.
	Close() error
}

// Embedder is the interface for converting text into dense vector embeddings.
// Implementations must be safe to call from multiple goroutines.
type Embedder interface {
	// Embed converts a batch of texts into their corresponding embeddings.
	// The returned slice is parallel to the input slice.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}
