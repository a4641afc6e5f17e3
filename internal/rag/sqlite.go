package rag

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	_ "modernc.org/sqlite" // register "sqlite" driver
)

// SQLiteConfig holds the settings for opening a SQLiteIndex.
type SQLiteConfig struct {
	// Path is the database file path. Use ":memory:" in tests.
	Path string

	// Model is the embedding model identity the index is built with.
	// Recorded on first open; subsequent opens fail fast on mismatch.
	Model string

	// Dimensions is the embedding vector length for this index.
	Dimensions int
}

// SQLiteIndex is a VectorIndex backed by a local SQLite database file.
// Similarity search is brute-force cosine over all candidate rows, which is
// entirely adequate for the single-user document collections this system
// indexes. Each Upsert batch runs in one transaction, so a document's chunks
// become visible atomically.
type SQLiteIndex struct {
	// db is the underlying database connection pool.
	db *sql.DB

	// model is the embedding model identity pinned in index_meta.
	model string

	// dims is the embedding vector length pinned in index_meta.
	dims int
}

// OpenSQLiteIndex opens (or creates) a SQLiteIndex at cfg.Path, runs the
// schema migration, and verifies the persisted embedding model identity
// against cfg. A model or dimension mismatch returns ErrDimensionMismatch —
// mixing vectors from different models in one index has undefined
// similarity semantics.
func OpenSQLiteIndex(cfg *SQLiteConfig) (*SQLiteIndex, error) {
	if cfg.Dimensions <= 0 {
		return nil, fmt.Errorf("rag: sqlite index requires a positive dimension, got %d", cfg.Dimensions)
	}

	// WAL mode improves concurrent read performance and is safe for single-host use.
	dsn := cfg.Path + "?_journal_mode=WAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("rag: open %s: %w: %v", cfg.Path, ErrIndexUnavailable, err)
	}
	// Limit to a single connection to avoid SQLITE_BUSY under concurrent writes.
	db.SetMaxOpenConns(1)

	idx := &SQLiteIndex{db: db, model: cfg.Model, dims: cfg.Dimensions}
	if err := idx.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := idx.checkModelIdentity(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return idx, nil
}

// migrate creates the schema if it does not already exist.
func (s *SQLiteIndex) migrate() error {
	const ddl = `
CREATE TABLE IF NOT EXISTS entries (
    chunk_id  TEXT PRIMARY KEY,
    doc_id    TEXT NOT NULL,
    content   TEXT NOT NULL,
    vector    BLOB NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_entries_doc ON entries (doc_id);
CREATE TABLE IF NOT EXISTS index_meta (
    key       TEXT PRIMARY KEY,
    value     TEXT NOT NULL
);
`
	if _, err := s.db.Exec(ddl); err != nil {
		return fmt.Errorf("rag: migrate: %w: %v", ErrIndexUnavailable, err)
	}
	return nil
}

// checkModelIdentity pins the embedding model name and dimension in
// index_meta on first open and fails fast when a later open disagrees.
func (s *SQLiteIndex) checkModelIdentity() error {
	const get = `SELECT value FROM index_meta WHERE key = ?`
	const put = `INSERT INTO index_meta (key, value) VALUES (?, ?)`

	var storedModel string
	err := s.db.QueryRow(get, "embedding_model").Scan(&storedModel)
	switch {
	case err == sql.ErrNoRows:
		if _, err := s.db.Exec(put, "embedding_model", s.model); err != nil {
			return fmt.Errorf("rag: record model identity: %w: %v", ErrIndexUnavailable, err)
		}
		if _, err := s.db.Exec(put, "dimensions", strconv.Itoa(s.dims)); err != nil {
			return fmt.Errorf("rag: record dimensions: %w: %v", ErrIndexUnavailable, err)
		}
		return nil
	case err != nil:
		return fmt.Errorf("rag: read model identity: %w: %v", ErrIndexUnavailable, err)
	}

	if storedModel != s.model {
		return fmt.Errorf("rag: index was built with embedding model %q, configured model is %q: %w",
			storedModel, s.model, ErrDimensionMismatch)
	}

	var storedDims string
	if err := s.db.QueryRow(get, "dimensions").Scan(&storedDims); err != nil {
		return fmt.Errorf("rag: read dimensions: %w: %v", ErrIndexUnavailable, err)
	}
	if d, _ := strconv.Atoi(storedDims); d != s.dims {
		return fmt.Errorf("rag: index was built with dimension %s, configured dimension is %d: %w",
			storedDims, s.dims, ErrDimensionMismatch)
	}
	return nil
}

// Upsert stores the batch in a single transaction. Entries whose ChunkID is
// already present are skipped via INSERT OR IGNORE, keeping ingestion
// idempotent per chunk.
func (s *SQLiteIndex) Upsert(ctx context.Context, entries []Entry) error {
	for _, e := range entries {
		if len(e.Vector) != s.dims {
			return fmt.Errorf("rag: entry %s has vector length %d, index dimension is %d: %w",
				e.ChunkID, len(e.Vector), s.dims, ErrDimensionMismatch)
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("rag: begin upsert: %w: %v", ErrIndexUnavailable, err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	const q = `INSERT OR IGNORE INTO entries (chunk_id, doc_id, content, vector) VALUES (?, ?, ?, ?)`
	for _, e := range entries {
		if _, err := tx.ExecContext(ctx, q, e.ChunkID, e.DocID, e.Text, encodeVector(e.Vector)); err != nil {
			return fmt.Errorf("rag: upsert %s: %w: %v", e.ChunkID, ErrIndexUnavailable, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("rag: commit upsert: %w: %v", ErrIndexUnavailable, err)
	}
	return nil
}

// Exists reports which of the given chunk IDs are present in the index.
func (s *SQLiteIndex) Exists(ctx context.Context, chunkIDs []string) (map[string]struct{}, error) {
	present := make(map[string]struct{}, len(chunkIDs))
	if len(chunkIDs) == 0 {
		return present, nil
	}

	q := `SELECT chunk_id FROM entries WHERE chunk_id IN (` + placeholders(len(chunkIDs)) + `)`
	rows, err := s.db.QueryContext(ctx, q, toAnySlice(chunkIDs)...)
	if err != nil {
		return nil, fmt.Errorf("rag: exists: %w: %v", ErrIndexUnavailable, err)
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("rag: exists scan: %w: %v", ErrIndexUnavailable, err)
		}
		present[id] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rag: exists rows: %w: %v", ErrIndexUnavailable, err)
	}
	return present, nil
}

// Search scans all candidate rows, scores them by cosine similarity against
// the query vector, and returns the top-k in descending score order.
func (s *SQLiteIndex) Search(ctx context.Context, vector []float32, topK int, docIDs []string) ([]Entry, error) {
	if len(vector) != s.dims {
		return nil, fmt.Errorf("rag: query vector length %d, index dimension is %d: %w",
			len(vector), s.dims, ErrDimensionMismatch)
	}
	if topK <= 0 {
		return nil, nil
	}

	q := `SELECT chunk_id, doc_id, content, vector FROM entries`
	var args []any
	if len(docIDs) > 0 {
		q += ` WHERE doc_id IN (` + placeholders(len(docIDs)) + `)`
		args = toAnySlice(docIDs)
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("rag: search: %w: %v", ErrIndexUnavailable, err)
	}
	defer rows.Close()

	var scored []Entry
	for rows.Next() {
		var e Entry
		var blob []byte
		if err := rows.Scan(&e.ChunkID, &e.DocID, &e.Text, &blob); err != nil {
			return nil, fmt.Errorf("rag: search scan: %w: %v", ErrIndexUnavailable, err)
		}
		stored, err := decodeVector(blob, s.dims)
		if err != nil {
			return nil, fmt.Errorf("rag: search decode %s: %w", e.ChunkID, err)
		}
		e.Score = cosine(vector, stored)
		scored = append(scored, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rag: search rows: %w: %v", ErrIndexUnavailable, err)
	}

	sort.SliceStable(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })
	if len(scored) > topK {
		scored = scored[:topK]
	}
	return scored, nil
}

// Count returns the number of entries stored for docID, or the total entry
// count when docID is empty.
func (s *SQLiteIndex) Count(ctx context.Context, docID string) (int, error) {
	q := `SELECT COUNT(*) FROM entries`
	var args []any
	if docID != "" {
		q += ` WHERE doc_id = ?`
		args = append(args, docID)
	}

	var n int
	if err := s.db.QueryRowContext(ctx, q, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("rag: count: %w: %v", ErrIndexUnavailable, err)
	}
	return n, nil
}

// DeleteDoc removes every entry belonging to the given document.
func (s *SQLiteIndex) DeleteDoc(ctx context.Context, docID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM entries WHERE doc_id = ?`, docID); err != nil {
		return fmt.Errorf("rag: delete doc %s: %w: %v", docID, ErrIndexUnavailable, err)
	}
	return nil
}

// Close releases the database connection pool.
func (s *SQLiteIndex) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("rag: close index: %w", err)
	}
	return nil
}

// encodeVector packs a float32 slice into a little-endian byte blob.
func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(f))
	}
	return buf
}

// decodeVector unpacks a little-endian byte blob into a float32 slice,
// validating the expected dimension.
func decodeVector(blob []byte, dims int) ([]float32, error) {
	if len(blob) != 4*dims {
		return nil, fmt.Errorf("rag: stored vector is %d bytes, want %d: %w", len(blob), 4*dims, ErrDimensionMismatch)
	}
	v := make([]float32, dims)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(blob[4*i:]))
	}
	return v, nil
}

// cosine returns the cosine similarity of a and b. Zero-magnitude inputs
// score 0 rather than NaN.
func cosine(a, b []float32) float32 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}

// placeholders returns a comma-joined list of n SQL parameter markers.
func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

// toAnySlice converts a string slice into the []any form QueryContext expects.
func toAnySlice(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}
