package commands

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/cloudwego/eino/callbacks"
	"github.com/spf13/cobra"

	"github.com/d8vjr/docqa-go/internal/embedder"
	"github.com/d8vjr/docqa-go/internal/engine"
	"github.com/d8vjr/docqa-go/internal/ingestion"
	"github.com/d8vjr/docqa-go/internal/logging"
	"github.com/d8vjr/docqa-go/internal/provider"
	"github.com/d8vjr/docqa-go/internal/rag"
	"github.com/d8vjr/docqa-go/internal/server"
	"github.com/d8vjr/docqa-go/internal/store"
	"github.com/d8vjr/docqa-go/internal/tracing"
)

// NewServeCmd constructs the `docqa serve` command, which starts the HTTP
// server exposing query, ingestion, and document listing endpoints.
func NewServeCmd() *cobra.Command {
	var host string
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the docqa HTTP server",
		Long: `Start the docqa HTTP server on localhost.

The server exposes a REST API for document ingestion (/api/ingest), grounded
question answering (/api/query), document listing (/api/docs), query history
(/api/history), plus health, readiness, and Prometheus metrics endpoints.

Examples:
  docqa serve
  docqa serve --port 9090
  DOCQA_MODEL_PROVIDER=azure docqa serve`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			log.Info("serve starting", slog.String("provider", os.Getenv("DOCQA_MODEL_PROVIDER")))

			// Setup Langfuse tracing — opt-in, no-op if keys are absent.
			handler, flush, ok := tracing.Setup()
			if ok {
				callbacks.AppendGlobalHandlers(handler)
				defer flush()
				log.Info("langfuse tracing enabled")
			} else {
				log.Info("langfuse tracing disabled", slog.String("reason", "LANGFUSE_PUBLIC_KEY not set"))
			}

			chatModel, err := provider.NewFromEnv(ctx)
			if err != nil {
				return fmt.Errorf("serve: failed to initialise model provider: %w", err)
			}
			gen, err := provider.NewGenerator(chatModel)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}

			emb, err := buildEmbedder(log)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}

			index, indexName, err := buildIndex(ctx, log)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			defer func() { _ = index.Close() }()

			retriever, err := rag.NewRetriever(emb, index, 0)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}

			eng, err := engine.New(&engine.Config{
				Retriever: retriever,
				Index:     index,
				Generator: gen,
			})
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}

			pipeline, err := ingestion.NewPipeline(emb, index, nil)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}

			// The document source is optional; without one /api/ingest and
			// /api/docs return 503 while /api/query keeps working.
			src, err := buildSource(ctx, log)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			if src == nil {
				log.Warn("no document source configured; /api/ingest and /api/docs are disabled")
			}

			// Open the query history store. DOCQA_HISTORY_DB overrides the
			// default path (~/.docqa/history.db). Set to "disabled" to turn
			// history off.
			var historyStore store.HistoryStore
			dbPath := os.Getenv("DOCQA_HISTORY_DB")
			if dbPath != "disabled" {
				if dbPath == "" {
					dbPath, err = store.DefaultDBPath()
					if err != nil {
						log.Warn("history: could not resolve default DB path, disabling", slog.Any("error", err))
					}
				}
				if dbPath != "" {
					hs, hsErr := store.Open(dbPath)
					if hsErr != nil {
						log.Warn("history: failed to open store, disabling", slog.Any("error", hsErr))
					} else {
						historyStore = hs
						defer func() { _ = hs.Close() }()
						log.Info("history: store opened", slog.String("path", dbPath))
					}
				}
			} else {
				log.Info("history: disabled via DOCQA_HISTORY_DB=disabled")
			}

			pingers := []server.Pinger{
				server.NewIndexPinger(index, indexName),
				server.NewEmbedderPinger(emb, embedder.ResolveBackend()),
				server.NewGeneratorPinger(gen, getEnvOrDefault("DOCQA_MODEL_PROVIDER", "ollama")),
			}

			srv, err := server.New(eng, pipeline, src, &server.Config{
				Host:    host,
				Port:    port,
				Logger:  log,
				Pingers: pingers,
				APIKey:  os.Getenv("DOCQA_API_KEY"),
				History: historyStore,
			})
			if err != nil {
				return fmt.Errorf("serve: failed to create server: %w", err)
			}

			return srv.Start(ctx)
		},
	}

	cmd.Flags().StringVar(&host, "host", "127.0.0.1", "Host address to bind to")
	cmd.Flags().IntVarP(&port, "port", "p", 8080, "TCP port to listen on")

	return cmd
}
