package source

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// textExtensions are the file extensions the filesystem source serves.
var textExtensions = map[string]bool{
	".txt": true,
	".md":  true,
}

// Filesystem serves documents from a local directory. The document ID is the
// file name without its extension, so `notes/algorithms.md` ingests as
// document "algorithms". Only .txt and .md files are listed; subdirectories
// are not walked.
type Filesystem struct {
	dir string
}

// NewFilesystem constructs a Filesystem source rooted at dir.
func NewFilesystem(dir string) (*Filesystem, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("source: filesystem root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("source: filesystem root %s is not a directory", dir)
	}
	return &Filesystem{dir: dir}, nil
}

// List returns every .txt and .md file in the root directory.
func (f *Filesystem) List(ctx context.Context) ([]DocInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(f.dir)
	if err != nil {
		return nil, fmt.Errorf("source: reading directory %s: %w", f.dir, err)
	}

	var infos []DocInfo
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !textExtensions[strings.ToLower(filepath.Ext(name))] {
			continue
		}
		infos = append(infos, DocInfo{
			ID:   strings.TrimSuffix(name, filepath.Ext(name)),
			Name: name,
		})
	}
	return infos, nil
}

// Fetch returns the content of the document with the given ID, resolving the
// extension automatically.
func (f *Filesystem) Fetch(ctx context.Context, id string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if strings.Contains(id, "/") || strings.Contains(id, "\\") || strings.Contains(id, "..") {
		return "", fmt.Errorf("source: document ID %q: %w", id, ErrNotFound)
	}

	for ext := range textExtensions {
		data, err := os.ReadFile(filepath.Join(f.dir, id+ext))
		if err == nil {
			return string(data), nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("source: reading document %s: %w", id, err)
		}
	}
	return "", fmt.Errorf("source: document %s: %w", id, ErrNotFound)
}
