// Package ingestion implements the document ingestion pipeline. It chunks
// raw document text, embeds each chunk, and upserts the results into the
// vector index. Chunk IDs are deterministic, so ingesting the same document
// twice is a no-op and the pipeline can be re-run safely after partial
// failures. The pipeline is invoked by the `docqa ingest` CLI command and by
// the HTTP ingest endpoint.
package ingestion

import (
	"context"
	"fmt"
	"strings"

	"github.com/d8vjr/docqa-go/internal/chunker"
	"github.com/d8vjr/docqa-go/internal/rag"
	"github.com/d8vjr/docqa-go/internal/source"
)

// Config holds the configuration for the ingestion pipeline.
type Config struct {
	// ChunkSize is the maximum number of characters per document chunk.
	// Defaults to chunker.DefaultMaxSize if zero.
	ChunkSize int

	// ChunkOverlap is the number of characters consecutive chunks share.
	// Defaults to chunker.DefaultOverlap if negative or zero.
	ChunkOverlap int
}

// Result reports what one Ingest call did for a single document.
type Result struct {
	// DocID is the document that was processed.
	DocID string

	// Chunks is the number of chunks the document occupies in the index
	// after the call, whether they were written now or already present.
	Chunks int

	// Skipped is true when every chunk already existed and the pipeline
	// performed no embedding or writes.
	Skipped bool
}

// ProcessedDoc is one document whose chunks an IngestAll run wrote.
type ProcessedDoc struct {
	// DocID is the source-assigned document identifier.
	DocID string

	// Name is the human-readable document name from the source listing.
	// Falls back to the document ID when the listing has no entry.
	Name string

	// Chunks is the number of chunks written for the document.
	Chunks int
}

// SkippedDoc is one document an IngestAll run left out, with the reason.
// Skips cover benign cases (already indexed, no content) as well as
// per-document failures; Err separates the two.
type SkippedDoc struct {
	// DocID is the source-assigned document identifier.
	DocID string

	// Name is the human-readable document name from the source listing.
	Name string

	// Reason explains the skip in one line.
	Reason string

	// Err is the underlying error when the skip was caused by a fetch or
	// ingestion failure. Nil for benign skips.
	Err error
}

// Report aggregates the outcome of an IngestAll run across documents.
// IngestAll keeps going past individual failures, so a Report can mix
// processed and skipped entries freely.
type Report struct {
	// Processed lists documents whose chunks were written, in run order.
	Processed []ProcessedDoc

	// Skipped lists documents that contributed nothing, in run order.
	Skipped []SkippedDoc
}

// Failed counts the skipped entries that were caused by errors.
func (r *Report) Failed() int {
	n := 0
	for _, s := range r.Skipped {
		if s.Err != nil {
			n++
		}
	}
	return n
}

// Pipeline orchestrates the chunk, embed, upsert flow for documents.
type Pipeline struct {
	// embedder converts text chunks into dense vector embeddings.
	embedder rag.Embedder

	// index persists the embedded chunks.
	index rag.VectorIndex

	// cfg holds the resolved pipeline configuration.
	cfg *Config
}

// NewPipeline constructs a Pipeline from the provided dependencies and config.
func NewPipeline(embedder rag.Embedder, index rag.VectorIndex, cfg *Config) (*Pipeline, error) {
	if embedder == nil {
		return nil, fmt.Errorf("ingestion: embedder must not be nil")
	}
	if index == nil {
		return nil, fmt.Errorf("ingestion: index must not be nil")
	}
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = chunker.DefaultMaxSize
	}
	if cfg.ChunkOverlap <= 0 {
		cfg.ChunkOverlap = chunker.DefaultOverlap
	}
	if cfg.ChunkOverlap >= cfg.ChunkSize {
		return nil, fmt.Errorf("ingestion: chunk overlap %d must be smaller than chunk size %d", cfg.ChunkOverlap, cfg.ChunkSize)
	}

	return &Pipeline{
		embedder: embedder,
		index:    index,
		cfg:      cfg,
	}, nil
}

// Ingest chunks, embeds, and stores one document.
//
// When every chunk of the document is already present the call returns
// without embedding anything. When only some chunks are present (a previous
// run was interrupted, or the document text changed its chunk count) the
// document's existing chunks are purged first so the index never holds a
// mix of old and new content for the same document.
//
// Empty or whitespace-only text is a no-op that reports zero chunks.
func (p *Pipeline) Ingest(ctx context.Context, docID, text string) (*Result, error) {
	if strings.TrimSpace(docID) == "" {
		return nil, fmt.Errorf("ingestion: document ID must not be empty")
	}

	chunks, err := chunker.Split(text, p.cfg.ChunkSize, p.cfg.ChunkOverlap)
	if err != nil {
		return nil, fmt.Errorf("ingestion: chunking %s: %w", docID, err)
	}
	if len(chunks) == 0 {
		return &Result{DocID: docID}, nil
	}

	ids := ChunkIDs(docID, len(chunks))

	present, err := p.index.Exists(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("ingestion: existence check for %s: %w", docID, err)
	}

	if len(present) == len(ids) {
		return &Result{DocID: docID, Chunks: len(ids), Skipped: true}, nil
	}

	if len(present) > 0 {
		// Partial presence. Purge and rebuild rather than patching around
		// whatever a previous run left behind.
		if err := p.index.DeleteDoc(ctx, docID); err != nil {
			return nil, fmt.Errorf("ingestion: purging stale chunks of %s: %w", docID, err)
		}
	}

	vectors, err := p.embedder.Embed(ctx, chunks)
	if err != nil {
		return nil, fmt.Errorf("ingestion: embedding %s: %w", docID, err)
	}
	if len(vectors) != len(chunks) {
		return nil, fmt.Errorf("ingestion: embedder returned %d vectors for %d chunks of %s", len(vectors), len(chunks), docID)
	}

	entries := make([]rag.Entry, len(chunks))
	for i, chunk := range chunks {
		entries[i] = rag.Entry{
			ChunkID: ids[i],
			DocID:   docID,
			Text:    chunk,
			Vector:  vectors[i],
		}
	}

	if err := p.index.Upsert(ctx, entries); err != nil {
		return nil, fmt.Errorf("ingestion: upserting %s: %w", docID, err)
	}

	return &Result{DocID: docID, Chunks: len(entries)}, nil
}

// IngestAll fetches and ingests documents from a source. When docIDs is
// empty every document the source lists is ingested. Individual document
// failures are recorded in the report and do not stop the run; the returned
// error is reserved for failures that make the whole run pointless, such as
// the source refusing to list.
//
// Progress is reported via the optional progress callback.
func (p *Pipeline) IngestAll(ctx context.Context, src source.Source, docIDs []string, progress func(msg string)) (*Report, error) {
	if src == nil {
		return nil, fmt.Errorf("ingestion: source must not be nil")
	}
	if progress == nil {
		progress = func(string) {}
	}

	names := make(map[string]string)
	infos, listErr := src.List(ctx)
	if listErr != nil && len(docIDs) == 0 {
		return nil, fmt.Errorf("ingestion: listing source documents: %w", listErr)
	}
	for _, info := range infos {
		names[info.ID] = info.Name
	}
	if len(docIDs) == 0 {
		docIDs = make([]string, len(infos))
		for i, info := range infos {
			docIDs[i] = info.ID
		}
	}

	nameOf := func(docID string) string {
		if name, ok := names[docID]; ok && name != "" {
			return name
		}
		return docID
	}

	report := &Report{}

	for _, docID := range docIDs {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		progress(fmt.Sprintf("fetching %s", docID))
		text, err := src.Fetch(ctx, docID)
		if err != nil {
			wrapped := fmt.Errorf("fetch: %w", err)
			report.Skipped = append(report.Skipped, SkippedDoc{
				DocID:  docID,
				Name:   nameOf(docID),
				Reason: wrapped.Error(),
				Err:    wrapped,
			})
			progress(fmt.Sprintf("failed %s: %v", docID, err))
			continue
		}

		res, err := p.Ingest(ctx, docID, text)
		if err != nil {
			report.Skipped = append(report.Skipped, SkippedDoc{
				DocID:  docID,
				Name:   nameOf(docID),
				Reason: err.Error(),
				Err:    err,
			})
			progress(fmt.Sprintf("failed %s: %v", docID, err))
			continue
		}

		if res.Skipped {
			report.Skipped = append(report.Skipped, SkippedDoc{
				DocID:  docID,
				Name:   nameOf(docID),
				Reason: fmt.Sprintf("already indexed (%d chunks)", res.Chunks),
			})
			progress(fmt.Sprintf("skipped %s (%d chunks already indexed)", docID, res.Chunks))
			continue
		}

		if res.Chunks == 0 {
			report.Skipped = append(report.Skipped, SkippedDoc{
				DocID:  docID,
				Name:   nameOf(docID),
				Reason: "empty document",
			})
			progress(fmt.Sprintf("skipped %s (empty document)", docID))
			continue
		}

		report.Processed = append(report.Processed, ProcessedDoc{
			DocID:  docID,
			Name:   nameOf(docID),
			Chunks: res.Chunks,
		})
		progress(fmt.Sprintf("ingested %s (%d chunks)", docID, res.Chunks))
	}

	return report, nil
}
