package ingestion

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// docFingerprint returns a short stable hash of the document ID. It keeps
// chunk IDs unambiguous even when two document IDs share a common prefix.
func docFingerprint(docID string) string {
	h := sha256.Sum256([]byte(docID))
	return hex.EncodeToString(h[:4])
}

// ChunkID returns the deterministic identifier of the seq-th chunk of the
// given document. The same document always produces the same IDs, which is
// what makes re-ingestion idempotent at the index level.
func ChunkID(docID string, seq int) string {
	return fmt.Sprintf("%s-%s-%d", docID, docFingerprint(docID), seq)
}

// ChunkIDs returns the identifiers of the first n chunks of the document in
// order.
func ChunkIDs(docID string, n int) []string {
	ids := make([]string, n)
	fp := docFingerprint(docID)
	for i := range ids {
		ids[i] = fmt.Sprintf("%s-%s-%d", docID, fp, i)
	}
	return ids
}
