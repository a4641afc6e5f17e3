package server

import (
	"context"
	"fmt"

	"github.com/d8vjr/docqa-go/internal/engine"
	"github.com/d8vjr/docqa-go/internal/rag"
)

// IndexPinger probes a vector index for readiness. It satisfies the Pinger
// interface and is used by GET /api/ready.
type IndexPinger struct {
	// index is the vector index to probe.
	index rag.VectorIndex
	// name identifies the backend in readiness responses (e.g. "sqlite", "qdrant").
	name string
}

// NewIndexPinger constructs an IndexPinger for the given index and backend name.
func NewIndexPinger(index rag.VectorIndex, name string) *IndexPinger {
	return &IndexPinger{index: index, name: name}
}

// Name returns the backend label used in readiness responses.
func (p *IndexPinger) Name() string { return p.name }

// Ping probes the index. Backends with a native health check (Qdrant's
// HealthCheck RPC) are probed through it; otherwise a whole-index count
// serves as the probe.
func (p *IndexPinger) Ping(ctx context.Context) error {
	if pinger, ok := p.index.(interface{ Ping(ctx context.Context) error }); ok {
		if err := pinger.Ping(ctx); err != nil {
			return fmt.Errorf("health check failed: %w", err)
		}
		return nil
	}
	if _, err := p.index.Count(ctx, ""); err != nil {
		return fmt.Errorf("count probe failed: %w", err)
	}
	return nil
}

// EmbedderPinger probes an embedding backend by embedding a single short
// text. It satisfies the Pinger interface and is used by GET /api/ready.
type EmbedderPinger struct {
	// embedder is the embedding backend to probe.
	embedder rag.Embedder
	// name identifies the backend in readiness responses (e.g. "ollama").
	name string
}

// NewEmbedderPinger constructs an EmbedderPinger for the given embedder and
// backend name.
func NewEmbedderPinger(e rag.Embedder, name string) *EmbedderPinger {
	return &EmbedderPinger{embedder: e, name: name}
}

// Name returns the backend label used in readiness responses.
func (p *EmbedderPinger) Name() string { return p.name }

// Ping embeds the word "ping" and checks that exactly one vector comes back.
func (p *EmbedderPinger) Ping(ctx context.Context) error {
	vecs, err := p.embedder.Embed(ctx, []string{"ping"})
	if err != nil {
		return fmt.Errorf("embed probe failed: %w", err)
	}
	if len(vecs) != 1 || len(vecs[0]) == 0 {
		return fmt.Errorf("embed probe returned no vector")
	}
	return nil
}

// GeneratorPinger probes an LLM backend by requesting a minimal completion.
// Each probe consumes a few tokens, so keep the readiness poll interval
// modest when the backend is metered.
type GeneratorPinger struct {
	// gen is the generation backend to probe.
	gen engine.Generator
	// name identifies the backend in readiness responses (e.g. "openai").
	name string
}

// NewGeneratorPinger constructs a GeneratorPinger for the given generator and
// backend name.
func NewGeneratorPinger(g engine.Generator, name string) *GeneratorPinger {
	return &GeneratorPinger{gen: g, name: name}
}

// Name returns the backend label used in readiness responses.
func (p *GeneratorPinger) Name() string { return p.name }

// Ping requests a completion for "ping" and checks that text comes back.
func (p *GeneratorPinger) Ping(ctx context.Context) error {
	text, err := p.gen.Generate(ctx, "ping")
	if err != nil {
		return fmt.Errorf("generate probe failed: %w", err)
	}
	if text == "" {
		return fmt.Errorf("generate probe returned empty response")
	}
	return nil
}
