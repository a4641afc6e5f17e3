package commands

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/d8vjr/docqa-go/internal/ingestion"
	"github.com/d8vjr/docqa-go/internal/logging"
)

// NewIngestCmd constructs the `docqa ingest` command, which fetches documents
// from the configured source and indexes them for retrieval.
func NewIngestCmd() *cobra.Command {
	var chunkSize int
	var chunkOverlap int

	cmd := &cobra.Command{
		Use:   "ingest [docID...]",
		Short: "Fetch, chunk, embed, and index documents",
		Long: `Fetch documents from the configured source, split them into overlapping
chunks, embed each chunk, and write the vectors to the index.

Ingestion is idempotent: documents whose chunks are already indexed are
skipped without calling the embedding backend. A document whose content
changed is purged and re-indexed in full.

With no arguments every document the source lists is ingested; pass document
IDs to restrict the run.

Relevant environment variables:
  DOCQA_SOURCE_TYPE        filesystem (default) or drive
  DOCQA_SOURCE_DIR         directory of .txt/.md files for the filesystem source
  DOCQA_DRIVE_FOLDER_ID    Google Drive folder for the drive source
  DOCQA_INDEX_BACKEND      sqlite (default) or qdrant
  DOCQA_EMBEDDING_PROVIDER ollama, openai, azure (inherits DOCQA_MODEL_PROVIDER)

Examples:
  docqa ingest
  docqa ingest algorithms databases
  DOCQA_SOURCE_TYPE=drive docqa ingest`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			emb, err := buildEmbedder(log)
			if err != nil {
				return fmt.Errorf("ingest: %w", err)
			}

			index, _, err := buildIndex(ctx, log)
			if err != nil {
				return fmt.Errorf("ingest: %w", err)
			}
			defer func() { _ = index.Close() }()

			src, err := buildSource(ctx, log)
			if err != nil {
				return fmt.Errorf("ingest: %w", err)
			}
			if src == nil {
				return fmt.Errorf("ingest: no document source configured (set DOCQA_SOURCE_DIR or DOCQA_SOURCE_TYPE=drive)")
			}

			pipeline, err := ingestion.NewPipeline(emb, index, &ingestion.Config{
				ChunkSize:    chunkSize,
				ChunkOverlap: chunkOverlap,
			})
			if err != nil {
				return fmt.Errorf("ingest: %w", err)
			}

			report, err := pipeline.IngestAll(ctx, src, args, func(msg string) {
				log.Info(msg)
			})
			if err != nil {
				return fmt.Errorf("ingest: %w", err)
			}

			failed := report.Failed()
			log.Info("ingestion complete",
				slog.Int("ingested", len(report.Processed)),
				slog.Int("skipped", len(report.Skipped)-failed),
				slog.Int("failed", failed),
			)
			for _, doc := range report.Processed {
				log.Info("document ingested",
					slog.String("doc", doc.DocID),
					slog.String("name", doc.Name),
					slog.Int("chunks", doc.Chunks),
				)
			}
			for _, skip := range report.Skipped {
				if skip.Err != nil {
					log.Warn("document failed", slog.String("doc", skip.DocID), slog.Any("error", skip.Err))
					continue
				}
				log.Info("document skipped", slog.String("doc", skip.DocID), slog.String("reason", skip.Reason))
			}
			if failed > 0 {
				return fmt.Errorf("ingest: %d document(s) failed", failed)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&chunkSize, "chunk-size", 0, "Maximum characters per chunk (default 200)")
	cmd.Flags().IntVar(&chunkOverlap, "chunk-overlap", 0, "Characters shared between consecutive chunks (default 50)")

	return cmd
}
