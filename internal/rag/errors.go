package rag

import "errors"

// Sentinel errors shared by the ingestion pipeline, query engine, and the
// external collaborator adapters. Callers classify failures with
// [errors.Is]; adapters wrap these with fmt.Errorf("...: %w", ...) to add
// backend-specific detail.
var (
	// ErrEmbeddingUnavailable indicates the embedding provider is
	// unreachable or misconfigured. It is never swallowed — a zero vector
	// must not stand in for a real embedding.
	ErrEmbeddingUnavailable = errors.New("embedding provider unavailable")

	// ErrGenerationUnavailable indicates the generation provider is
	// unreachable or misconfigured.
	ErrGenerationUnavailable = errors.New("generation provider unavailable")

	// ErrIndexUnavailable indicates the durable vector index backing store
	// cannot be opened, read, or written.
	ErrIndexUnavailable = errors.New("vector index unavailable")

	// ErrDimensionMismatch indicates a vector's length disagrees with the
	// index's configured embedding dimension, or the persisted index was
	// built with a different embedding model configuration.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
)
