package ingestion

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"github.com/d8vjr/docqa-go/internal/rag"
	"github.com/d8vjr/docqa-go/internal/source"
)

// countingEmbedder is a deterministic fake that records how many texts it has
// been asked to embed. Vectors are derived from text length so distinct
// chunks get distinct vectors.
type countingEmbedder struct {
	calls  int
	embeds int
	fail   error
}

func (e *countingEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	e.calls++
	if e.fail != nil {
		return nil, e.fail
	}
	e.embeds += len(texts)
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = []float32{float32(len(t)), 1, 0}
	}
	return out, nil
}

// fakeSource serves documents from a map. Fetching a missing ID returns
// source.ErrNotFound. With unlisted set, List fails.
type fakeSource struct {
	docs     map[string]string
	unlisted bool
}

func (s *fakeSource) List(context.Context) ([]source.DocInfo, error) {
	if s.unlisted {
		return nil, errors.New("listing unavailable")
	}
	infos := make([]source.DocInfo, 0, len(s.docs))
	for id := range s.docs {
		infos = append(infos, source.DocInfo{ID: id, Name: id + ".txt"})
	}
	return infos, nil
}

func (s *fakeSource) Fetch(_ context.Context, id string) (string, error) {
	text, ok := s.docs[id]
	if !ok {
		return "", source.ErrNotFound
	}
	return text, nil
}

func newTestPipeline(t *testing.T) (*Pipeline, *countingEmbedder, *rag.SQLiteIndex) {
	t.Helper()

	index, err := rag.OpenSQLiteIndex(&rag.SQLiteConfig{
		Path:       filepath.Join(t.TempDir(), "index.db"),
		Model:      "test-embed",
		Dimensions: 3,
	})
	if err != nil {
		t.Fatalf("OpenSQLiteIndex: %v", err)
	}
	t.Cleanup(func() { index.Close() })

	emb := &countingEmbedder{}
	p, err := NewPipeline(emb, index, &Config{ChunkSize: 80, ChunkOverlap: 20})
	if err != nil {
		t.Fatalf("NewPipeline: %v", err)
	}
	return p, emb, index
}

func Test_ChunkIDs_Deterministic(t *testing.T) {
	t.Parallel()

	a := ChunkIDs("guide", 3)
	b := ChunkIDs("guide", 3)
	for i := range a {
		if a[i] != b[i] {
			t.Errorf("chunk ID %d not deterministic: %q vs %q", i, a[i], b[i])
		}
	}
	if a[0] == a[1] || a[1] == a[2] {
		t.Error("chunk IDs within a document must be distinct")
	}

	// Document IDs sharing a prefix must not collide.
	if ChunkID("doc1", 0) == ChunkID("doc", 10) {
		t.Error("chunk IDs collide across documents with prefixed IDs")
	}
}

func Test_Ingest_WritesChunks(t *testing.T) {
	t.Parallel()

	p, emb, index := newTestPipeline(t)
	ctx := context.Background()

	text := strings.Repeat("Binary search is an algorithm. It runs in O(log n) time. ", 4)
	res, err := p.Ingest(ctx, "algos", text)
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if res.Skipped {
		t.Error("first ingest must not be skipped")
	}
	if res.Chunks < 2 {
		t.Errorf("want at least 2 chunks, got %d", res.Chunks)
	}

	count, err := index.Count(ctx, "algos")
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if count != res.Chunks {
		t.Errorf("index holds %d chunks, result reports %d", count, res.Chunks)
	}
	if emb.embeds != res.Chunks {
		t.Errorf("embedded %d texts for %d chunks", emb.embeds, res.Chunks)
	}
}

func Test_Ingest_SecondRunIsNoOp(t *testing.T) {
	t.Parallel()

	p, emb, index := newTestPipeline(t)
	ctx := context.Background()

	text := strings.Repeat("Merge sort divides the input and merges sorted halves. ", 4)
	first, err := p.Ingest(ctx, "sorting", text)
	if err != nil {
		t.Fatalf("first Ingest: %v", err)
	}
	embedsAfterFirst := emb.embeds

	second, err := p.Ingest(ctx, "sorting", text)
	if err != nil {
		t.Fatalf("second Ingest: %v", err)
	}
	if !second.Skipped {
		t.Error("second ingest of identical text must be skipped")
	}
	if second.Chunks != first.Chunks {
		t.Errorf("skipped result reports %d chunks, want %d", second.Chunks, first.Chunks)
	}
	if emb.embeds != embedsAfterFirst {
		t.Errorf("second ingest embedded %d extra texts, want 0", emb.embeds-embedsAfterFirst)
	}

	count, err := index.Count(ctx, "sorting")
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if count != first.Chunks {
		t.Errorf("index holds %d chunks after re-ingest, want %d", count, first.Chunks)
	}
}

func Test_Ingest_PartialPresencePurgesFirst(t *testing.T) {
	t.Parallel()

	p, _, index := newTestPipeline(t)
	ctx := context.Background()

	// Simulate an interrupted earlier run: only chunk 0 made it in.
	stale := rag.Entry{
		ChunkID: ChunkID("partial", 0),
		DocID:   "partial",
		Text:    "stale chunk content",
		Vector:  []float32{9, 9, 9},
	}
	if err := index.Upsert(ctx, []rag.Entry{stale}); err != nil {
		t.Fatalf("seeding stale chunk: %v", err)
	}

	text := strings.Repeat("Quicksort picks a pivot and partitions around it. ", 4)
	res, err := p.Ingest(ctx, "partial", text)
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if res.Skipped {
		t.Error("partially present document must be re-ingested, not skipped")
	}

	count, err := index.Count(ctx, "partial")
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if count != res.Chunks {
		t.Errorf("index holds %d chunks, want %d (stale chunk must be gone)", count, res.Chunks)
	}

	// The rebuilt chunk 0 must carry the new text, not the stale seed.
	got, err := index.Search(ctx, []float32{1, 1, 0}, count, []string{"partial"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	for _, e := range got {
		if e.Text == "stale chunk content" {
			t.Error("stale chunk survived re-ingestion")
		}
	}
}

func Test_Ingest_EmptyText(t *testing.T) {
	t.Parallel()

	p, emb, _ := newTestPipeline(t)

	res, err := p.Ingest(context.Background(), "empty", "   \n\t ")
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if res.Chunks != 0 {
		t.Errorf("empty document reports %d chunks, want 0", res.Chunks)
	}
	if emb.calls != 0 {
		t.Error("empty document must not reach the embedder")
	}
}

func Test_Ingest_EmptyDocID(t *testing.T) {
	t.Parallel()

	p, _, _ := newTestPipeline(t)
	if _, err := p.Ingest(context.Background(), "  ", "some text"); err == nil {
		t.Error("want error for blank document ID, got nil")
	}
}

func Test_Ingest_EmbedderFailure(t *testing.T) {
	t.Parallel()

	p, emb, index := newTestPipeline(t)
	emb.fail = fmt.Errorf("embed: %w", rag.ErrEmbeddingUnavailable)

	_, err := p.Ingest(context.Background(), "doomed", "Some content that needs embedding.")
	if !errors.Is(err, rag.ErrEmbeddingUnavailable) {
		t.Fatalf("want ErrEmbeddingUnavailable, got %v", err)
	}

	count, err := index.Count(context.Background(), "doomed")
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if count != 0 {
		t.Errorf("failed ingest left %d chunks in the index", count)
	}
}

func Test_IngestAll_ToleratesPerDocFailures(t *testing.T) {
	t.Parallel()

	p, _, index := newTestPipeline(t)
	ctx := context.Background()

	src := &fakeSource{docs: map[string]string{
		"alpha": strings.Repeat("Alpha document content about search trees. ", 4),
		"beta":  strings.Repeat("Beta document content about hash tables. ", 4),
	}}

	report, err := p.IngestAll(ctx, src, []string{"alpha", "missing", "beta"}, nil)
	if err != nil {
		t.Fatalf("IngestAll: %v", err)
	}
	if len(report.Processed) != 2 {
		t.Fatalf("want 2 processed, got %d", len(report.Processed))
	}
	if report.Processed[0].DocID != "alpha" || report.Processed[1].DocID != "beta" {
		t.Errorf("processed docs out of order: %+v", report.Processed)
	}
	for _, doc := range report.Processed {
		if doc.Name != doc.DocID+".txt" {
			t.Errorf("want listed name for %s, got %q", doc.DocID, doc.Name)
		}
		if doc.Chunks == 0 {
			t.Errorf("processed entry for %s reports zero chunks", doc.DocID)
		}
	}
	if len(report.Skipped) != 1 {
		t.Fatalf("want 1 skipped, got %d", len(report.Skipped))
	}
	if report.Skipped[0].DocID != "missing" {
		t.Errorf("want missing doc skipped, got %+v", report.Skipped[0])
	}
	if !errors.Is(report.Skipped[0].Err, source.ErrNotFound) {
		t.Errorf("want ErrNotFound for missing doc, got %v", report.Skipped[0].Err)
	}
	if report.Failed() != 1 {
		t.Errorf("want 1 failure counted, got %d", report.Failed())
	}

	for _, docID := range []string{"alpha", "beta"} {
		count, err := index.Count(ctx, docID)
		if err != nil {
			t.Fatalf("Count(%s): %v", docID, err)
		}
		if count == 0 {
			t.Errorf("document %s was not indexed", docID)
		}
	}
}

func Test_IngestAll_ListsWhenNoIDsGiven(t *testing.T) {
	t.Parallel()

	p, _, _ := newTestPipeline(t)
	src := &fakeSource{docs: map[string]string{
		"one": strings.Repeat("First listed document body. ", 4),
		"two": strings.Repeat("Second listed document body. ", 4),
	}}

	report, err := p.IngestAll(context.Background(), src, nil, nil)
	if err != nil {
		t.Fatalf("IngestAll: %v", err)
	}
	if len(report.Processed) != 2 {
		t.Errorf("want 2 processed from listing, got %d", len(report.Processed))
	}
	if len(report.Skipped) != 0 {
		t.Errorf("unexpected skips: %+v", report.Skipped)
	}
}

func Test_IngestAll_SkipsEmptyDocuments(t *testing.T) {
	t.Parallel()

	p, _, index := newTestPipeline(t)
	ctx := context.Background()

	src := &fakeSource{docs: map[string]string{
		"blank": "   \n\t ",
	}}

	report, err := p.IngestAll(ctx, src, nil, nil)
	if err != nil {
		t.Fatalf("IngestAll: %v", err)
	}
	if len(report.Processed) != 0 {
		t.Errorf("empty document counted as processed: %+v", report.Processed)
	}
	if len(report.Skipped) != 1 {
		t.Fatalf("want 1 skipped, got %d", len(report.Skipped))
	}
	skip := report.Skipped[0]
	if skip.DocID != "blank" || skip.Reason != "empty document" {
		t.Errorf("unexpected skip entry: %+v", skip)
	}
	if skip.Err != nil {
		t.Errorf("empty document should not be a failure, got %v", skip.Err)
	}
	if report.Failed() != 0 {
		t.Errorf("want 0 failures, got %d", report.Failed())
	}

	count, err := index.Count(ctx, "blank")
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if count != 0 {
		t.Errorf("empty document left %d chunks in the index", count)
	}
}

func Test_IngestAll_FallsBackToIDWhenUnlisted(t *testing.T) {
	t.Parallel()

	p, _, _ := newTestPipeline(t)
	src := &fakeSource{docs: map[string]string{
		"gamma": strings.Repeat("Gamma document body about graphs. ", 4),
	}}
	src.unlisted = true

	report, err := p.IngestAll(context.Background(), src, []string{"gamma"}, nil)
	if err != nil {
		t.Fatalf("IngestAll: %v", err)
	}
	if len(report.Processed) != 1 {
		t.Fatalf("want 1 processed, got %d", len(report.Processed))
	}
	if report.Processed[0].Name != "gamma" {
		t.Errorf("want doc ID as fallback name, got %q", report.Processed[0].Name)
	}
}
