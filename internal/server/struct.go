package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/d8vjr/docqa-go/internal/engine"
	"github.com/d8vjr/docqa-go/internal/ingestion"
	"github.com/d8vjr/docqa-go/internal/source"
	"github.com/d8vjr/docqa-go/internal/store"
)

// Config holds the HTTP server configuration.
type Config struct {
	// Host is the address to bind to (default: 127.0.0.1).
	Host string
	// Port is the TCP port to listen on (default: 8080).
	Port int
	// ReadTimeout is the maximum duration for reading the request.
	ReadTimeout time.Duration
	// WriteTimeout is the maximum duration for writing the response.
	// Must be long enough to cover a full ingestion run.
	WriteTimeout time.Duration
	// ShutdownTimeout is the maximum duration for a graceful shutdown.
	ShutdownTimeout time.Duration
	// QueryTimeout bounds a single /api/query call, covering retrieval and
	// generation together. Defaults to 2 minutes if zero.
	QueryTimeout time.Duration
	// Logger is the structured logger used by the server and its handlers.
	// If nil, [logging.New] is used.
	Logger *slog.Logger
	// Pingers is the ordered list of dependency probes run by GET /api/ready.
	// If empty, /api/ready returns 200 with no checks (liveness-only mode).
	Pingers []Pinger
	// RateLimit is the sustained request rate allowed per IP on rate-limited
	// endpoints (requests/second). Defaults to 10 if zero.
	RateLimit float64
	// RateBurst is the maximum instantaneous burst per IP. Defaults to 20 if zero.
	RateBurst int
	// APIKey is the Bearer token required on all protected /api/* routes.
	// If empty, authentication is disabled (development mode).
	APIKey string
	// History receives a record of every completed /api/query call.
	// If nil, no history is kept and GET /api/history returns 503.
	History store.HistoryStore
	// MetricsRegistry receives this server's Prometheus metrics. Defaults to
	// prometheus.DefaultRegisterer; tests inject a fresh registry.
	MetricsRegistry prometheus.Registerer
	// MetricsGatherer backs GET /metrics. Defaults to prometheus.DefaultGatherer.
	MetricsGatherer prometheus.Gatherer
}

// answerer is the interface handleQuery calls to answer a question.
// *engine.Engine satisfies it; tests inject a fake.
type answerer interface {
	// Answer responds to question, optionally restricted to docIDs.
	Answer(ctx context.Context, question string, docIDs []string) (*engine.Answer, error)
}

// ingester is the interface handleIngest calls to run an ingestion pass.
// *ingestion.Pipeline satisfies it; tests inject a fake.
type ingester interface {
	// IngestAll fetches and ingests documents from src, all of them when
	// docIDs is empty.
	IngestAll(ctx context.Context, src source.Source, docIDs []string, progress func(msg string)) (*ingestion.Report, error)
}

// Server is the HTTP server that exposes the document Q&A engine.
type Server struct {
	// answerer handles /api/query; set to the engine in production,
	// overridden by a fake in tests.
	answerer answerer
	// ingester handles /api/ingest; set to the pipeline in production.
	ingester ingester
	// src is the document source used by /api/ingest and /api/docs.
	// May be nil, in which case both endpoints return 503.
	src source.Source
	// history records completed queries. May be nil.
	history store.HistoryStore
	// cfg holds the resolved server configuration.
	cfg *Config
	// httpServer is the underlying net/http server.
	httpServer *http.Server
	// log is the structured logger for this server instance.
	log *slog.Logger
	// pingers is the ordered list of dependency probes for GET /api/ready.
	pingers []Pinger
	// metrics holds this server's Prometheus instruments.
	metrics *serverMetrics
	// stopRL stops the rate limiter's background eviction goroutine on shutdown.
	stopRL func()
}

// queryRequest is the JSON body for POST /api/query.
type queryRequest struct {
	// Question is the user's natural language question.
	Question string `json:"question"`
	// DocIDs restricts retrieval to the given documents when non-empty.
	DocIDs []string `json:"docIds,omitempty"`
}

// queryResponse is the JSON response for POST /api/query.
type queryResponse struct {
	// Answer is the generated answer text.
	Answer string `json:"answer"`
	// Sources holds a snippet of every chunk the answer was grounded on.
	Sources []string `json:"sources"`
	// Status is "grounded", "ungrounded", "invalid", or "error".
	Status string `json:"status"`
	// Error carries the failure reason when Status is "error".
	Error string `json:"error,omitempty"`
}

// ingestRequest is the JSON body for POST /api/ingest. An empty body is
// valid and means "ingest everything the source lists".
type ingestRequest struct {
	// DocIDs restricts the run to the given documents when non-empty.
	DocIDs []string `json:"docIds,omitempty"`
}

// ingestResponse is the JSON response for POST /api/ingest. Both slices are
// always present, empty rather than null.
type ingestResponse struct {
	// Processed lists the documents whose chunks were written.
	Processed []processedDoc `json:"processed"`
	// Skipped lists the documents that contributed nothing and why.
	Skipped []skippedDoc `json:"skipped"`
}

// processedDoc is one ingested document in an ingestResponse.
type processedDoc struct {
	// DocID is the source-assigned document identifier.
	DocID string `json:"docId"`
	// Name is the human-readable document name.
	Name string `json:"name"`
	// Chunks is the number of chunks written for the document.
	Chunks int `json:"chunks"`
}

// skippedDoc is one skipped document in an ingestResponse.
type skippedDoc struct {
	// DocID is the source-assigned document identifier.
	DocID string `json:"docId"`
	// Reason explains the skip in one line.
	Reason string `json:"reason"`
}

// docsResponse is the JSON response for GET /api/docs.
type docsResponse struct {
	// Docs lists the documents the configured source can provide.
	Docs []docInfo `json:"docs"`
}

// docInfo is one entry in a docsResponse.
type docInfo struct {
	// ID is the source-assigned document identifier.
	ID string `json:"id"`
	// Name is the human-readable document name.
	Name string `json:"name"`
}

// historyEntry is one entry in the GET /api/history response.
type historyEntry struct {
	// Question is the question as asked.
	Question string `json:"question"`
	// Answer is the answer that was returned.
	Answer string `json:"answer"`
	// Status is the answer status at the time of the query.
	Status string `json:"status"`
	// Sources is the number of chunks the answer was grounded on.
	Sources int `json:"sources"`
	// CreatedAt is when the query completed, in RFC 3339.
	CreatedAt time.Time `json:"createdAt"`
}
