// Package source abstracts where raw documents come from. A Source can list
// the documents it holds and fetch the plain-text content of any one of them.
// Implementations exist for Google Drive folders and local directories.
package source

import (
	"context"
	"errors"
)

// Sentinel errors returned by Source implementations. Callers match them with
// errors.Is to distinguish configuration problems from transient failures.
var (
	// ErrNotFound indicates the requested document does not exist in the source.
	ErrNotFound = errors.New("source: document not found")

	// ErrUnauthenticated indicates the source rejected the configured credentials.
	ErrUnauthenticated = errors.New("source: unauthenticated")

	// ErrUnsupportedFormat indicates the document exists but cannot be
	// converted to plain text.
	ErrUnsupportedFormat = errors.New("source: unsupported document format")
)

// DocInfo identifies one document in a source.
type DocInfo struct {
	// ID is the stable identifier used as the ingestion document ID.
	ID string

	// Name is the human-readable document name.
	Name string
}

// Source lists and fetches raw documents.
type Source interface {
	// List returns every document the source currently holds.
	List(ctx context.Context) ([]DocInfo, error)

	// Fetch returns the plain-text content of the document with the given ID.
	// It returns ErrNotFound when no such document exists.
	Fetch(ctx context.Context, id string) (string, error)
}
