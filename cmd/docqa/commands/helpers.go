package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"github.com/d8vjr/docqa-go/internal/embedder"
	"github.com/d8vjr/docqa-go/internal/rag"
	"github.com/d8vjr/docqa-go/internal/source"
)

// defaultIndexPath returns the default SQLite index location
// (~/.docqa/index.db), creating the directory if needed.
func defaultIndexPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("commands: could not determine home directory: %w", err)
	}
	dir := filepath.Join(home, ".docqa")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("commands: could not create %s: %w", dir, err)
	}
	return filepath.Join(dir, "index.db"), nil
}

// buildEmbedder validates the embedding configuration and constructs the
// embedder from env.
func buildEmbedder(log *slog.Logger) (rag.Embedder, error) {
	if err := embedder.ValidateForRAG(log); err != nil {
		return nil, err
	}
	emb, err := embedder.NewFromEnv()
	if err != nil {
		return nil, err
	}
	log.Info("embedder initialised",
		slog.String("backend", embedder.ResolveBackend()),
		slog.String("model", embedder.ResolveModel(embedder.ResolveBackend())),
	)
	return emb, nil
}

// buildIndex constructs the vector index selected by DOCQA_INDEX_BACKEND
// ("sqlite", the default, or "qdrant") and returns it along with its backend
// name for readiness reporting. The caller owns Close.
func buildIndex(ctx context.Context, log *slog.Logger) (rag.VectorIndex, string, error) {
	backend := embedder.ResolveBackend()
	model := embedder.ResolveModel(backend)
	dims := embedder.DefaultDimensions(backend)

	switch indexBackend := getEnvOrDefault("DOCQA_INDEX_BACKEND", "sqlite"); indexBackend {
	case "sqlite":
		path := os.Getenv("DOCQA_INDEX_PATH")
		if path == "" {
			var err error
			path, err = defaultIndexPath()
			if err != nil {
				return nil, "", err
			}
		}
		idx, err := rag.OpenSQLiteIndex(&rag.SQLiteConfig{
			Path:       path,
			Model:      model,
			Dimensions: dims,
		})
		if err != nil {
			return nil, "", fmt.Errorf("commands: opening sqlite index at %s: %w", path, err)
		}
		log.Info("sqlite index ready", slog.String("path", path), slog.String("model", model))
		return idx, "sqlite", nil

	case "qdrant":
		host := getEnvOrDefault("QDRANT_HOST", "localhost")
		port := getEnvInt("QDRANT_PORT", 6334)
		collection := getEnvOrDefault("QDRANT_COLLECTION", "docqa-chunks")
		idx, err := rag.NewQdrantIndex(ctx, &rag.QdrantConfig{
			Host:       host,
			Port:       port,
			Collection: collection,
			VectorSize: uint64(dims), //nolint:gosec // dimensions are bounded
			APIKey:     os.Getenv("QDRANT_API_KEY"),
			UseTLS:     os.Getenv("QDRANT_TLS") == "true",
		})
		if err != nil {
			return nil, "", fmt.Errorf("commands: connecting to Qdrant at %s:%d: %w", host, port, err)
		}
		log.Info("qdrant index ready",
			slog.String("host", host),
			slog.Int("port", port),
			slog.String("collection", collection),
		)
		return idx, "qdrant", nil

	default:
		return nil, "", fmt.Errorf("commands: unknown index backend %q (want sqlite or qdrant)", indexBackend)
	}
}

// buildSource constructs the document source selected by DOCQA_SOURCE_TYPE
// ("filesystem", the default, or "drive"). Returns nil without error when no
// source is configured at all, which disables ingestion and doc listing.
func buildSource(ctx context.Context, log *slog.Logger) (source.Source, error) {
	switch srcType := getEnvOrDefault("DOCQA_SOURCE_TYPE", "filesystem"); srcType {
	case "filesystem":
		dir := os.Getenv("DOCQA_SOURCE_DIR")
		if dir == "" {
			return nil, nil
		}
		src, err := source.NewFilesystem(dir)
		if err != nil {
			return nil, fmt.Errorf("commands: %w", err)
		}
		log.Info("filesystem source ready", slog.String("dir", dir))
		return src, nil

	case "drive":
		folderID := os.Getenv("DOCQA_DRIVE_FOLDER_ID")
		if folderID == "" {
			return nil, fmt.Errorf("commands: drive source requires DOCQA_DRIVE_FOLDER_ID")
		}
		src, err := source.NewDrive(ctx, &source.DriveConfig{
			FolderID:        folderID,
			CredentialsFile: os.Getenv("DOCQA_DRIVE_CREDENTIALS"),
		})
		if err != nil {
			return nil, fmt.Errorf("commands: %w", err)
		}
		log.Info("drive source ready", slog.String("folder", folderID))
		return src, nil

	default:
		return nil, fmt.Errorf("commands: unknown source type %q (want filesystem or drive)", srcType)
	}
}

// getEnvOrDefault returns the value of key, or fallback when unset or empty.
func getEnvOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// getEnvInt returns the integer value of key, or fallback when unset or
// not a valid integer.
func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
