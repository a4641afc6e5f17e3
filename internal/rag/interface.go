// Package rag defines the interfaces for the retrieval-augmented answering
// core: vector indexing, nearest-neighbour search, and embedding.
// Concrete implementations (SQLite, Qdrant, OpenAI, Ollama) satisfy these
// interfaces so the pipeline and query engine never depend on a specific
// backend.
package rag

import (
	"context"
)

// Entry is the persisted unit of the vector index: one embedded chunk of a
// source document.
type Entry struct {
	// ChunkID is the deterministic unique identifier for this chunk.
	ChunkID string

	// DocID identifies the source document the chunk was derived from.
	DocID string

	// Text is the raw chunk text.
	Text string

	// Vector is the embedding of Text. May be nil on entries returned from
	// Search when the backend does not round-trip vectors.
	Vector []float32

	// Score is the cosine similarity assigned during retrieval (0.0–1.0).
	// Zero value means the score was not computed.
	Score float32
}

// VectorIndex is the interface for persisting and searching embedded chunks.
// Implementations must be safe to call from multiple goroutines, and must
// treat Upsert as id-keyed and idempotent: an entry whose ChunkID is already
// present is skipped, never duplicated.
type VectorIndex interface {
	// Upsert stores a batch of entries with their pre-computed embeddings.
	// Entries whose ChunkID already exists in the index are skipped.
	Upsert(ctx context.Context, entries []Entry) error

	// Exists reports which of the given chunk IDs are present in the index.
	Exists(ctx context.Context, chunkIDs []string) (map[string]struct{}, error)

	// Search returns the top-k entries most similar to the query vector,
	// ordered by descending cosine similarity. When docIDs is non-empty,
	// only entries belonging to one of those documents are eligible.
	Search(ctx context.Context, vector []float32, topK int, docIDs []string) ([]Entry, error)

	// Count returns the number of entries stored for the given document,
	// or the total entry count when docID is empty.
	Count(ctx context.Context, docID string) (int, error)

	// DeleteDoc removes every entry belonging to the given document.
	DeleteDoc(ctx context.Context, docID string) error

	// Close releases any resources held by the index.
	Close() error
}

// Embedder is the interface for converting text into dense vector embeddings.
// Embeddings are deterministic for identical input and model configuration.
// Implementations must be safe to call from multiple goroutines.
type Embedder interface {
	// Embed converts a batch of texts into their corresponding embeddings.
	// The returned slice is parallel to the input slice.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Retriever is the high-level interface used by the query engine to fetch
// relevant chunks for a question. It combines embedding and vector search.
// Implementations must be safe to call from multiple goroutines.
type Retriever interface {
	// Retrieve returns the top-k entries most relevant to the query,
	// optionally restricted to the given document IDs.
	Retrieve(ctx context.Context, query string, topK int, docIDs []string) ([]Entry, error)
}
