// Package server implements the HTTP server that exposes document ingestion
// and retrieval-augmented question answering as a REST API.
// The server is started by the `docqa serve` CLI command.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/d8vjr/docqa-go/internal/engine"
	"github.com/d8vjr/docqa-go/internal/ingestion"
	"github.com/d8vjr/docqa-go/internal/logging"
	"github.com/d8vjr/docqa-go/internal/source"
	"github.com/d8vjr/docqa-go/internal/store"
)

// New constructs a Server from the engine, the ingestion pipeline, the
// document source, and the config. src may be nil when no document source is
// configured; /api/ingest and /api/docs then return 503.
func New(eng *engine.Engine, pipe *ingestion.Pipeline, src source.Source, cfg *Config) (*Server, error) {
	if eng == nil {
		return nil, fmt.Errorf("server: engine must not be nil")
	}
	if pipe == nil {
		return nil, fmt.Errorf("server: pipeline must not be nil")
	}
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.Port == 0 {
		cfg.Port = 8080
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 30 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		// WriteTimeout must be long enough for a full ingestion run.
		cfg.WriteTimeout = 10 * time.Minute
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	if cfg.QueryTimeout == 0 {
		cfg.QueryTimeout = 2 * time.Minute
	}
	if cfg.RateLimit == 0 {
		cfg.RateLimit = defaultRateLimit
	}
	if cfg.RateBurst == 0 {
		cfg.RateBurst = defaultRateBurst
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.New()
	}
	if cfg.MetricsRegistry == nil {
		cfg.MetricsRegistry = prometheus.DefaultRegisterer
	}
	if cfg.MetricsGatherer == nil {
		cfg.MetricsGatherer = prometheus.DefaultGatherer
	}

	s := &Server{
		answerer: eng,
		ingester: pipe,
		src:      src,
		history:  cfg.History,
		cfg:      cfg,
		log:      cfg.Logger,
		pingers:  cfg.Pingers,
		metrics:  newServerMetrics(cfg.MetricsRegistry),
	}

	if cfg.APIKey == "" {
		s.log.Warn("DOCQA_API_KEY is not set; API authentication is disabled")
	}

	rl, stopRL := newRateLimiter(cfg.RateLimit, cfg.RateBurst, s.log)
	s.stopRL = stopRL

	api := http.NewServeMux()
	api.HandleFunc("POST /api/query", s.handleQuery)
	api.HandleFunc("POST /api/ingest", s.handleIngest)
	api.HandleFunc("GET /api/docs", s.handleDocs)
	api.HandleFunc("GET /api/history", s.handleHistory)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("GET /api/ready", s.handleReady)
	mux.Handle("GET /metrics", promhttp.HandlerFor(cfg.MetricsGatherer, promhttp.HandlerOpts{}))
	// Everything else under /api/ is rate limited and authenticated.
	mux.Handle("/api/", rl.middleware(authMiddleware(cfg.APIKey, api)))

	handler := requestLogger(s.log, s.metricsMiddleware(mux))

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      handler,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	return s, nil
}

// Start begins listening and serving HTTP requests. It blocks until the
// context is cancelled, then performs a graceful shutdown.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		s.log.Info("docqa server listening", slog.String("addr", s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		s.stopRL()
		return fmt.Errorf("server: listen error: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		s.stopRL()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server: graceful shutdown failed: %w", err)
		}
		return nil
	}
}

// handleQuery handles POST /api/query. The engine classifies the answer as
// grounded, ungrounded, or invalid; dependency failures surface as a 502
// with status "error" rather than a fabricated answer.
func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.QueryTimeout)
	defer cancel()

	start := time.Now()
	ans, err := s.answerer.Answer(ctx, req.Question, req.DocIDs)
	elapsed := time.Since(start)

	if err != nil {
		outcome := "error"
		status := http.StatusBadGateway
		if errors.Is(err, context.DeadlineExceeded) {
			outcome = "timeout"
			status = http.StatusGatewayTimeout
		}
		s.metrics.queryRequestsTotal.WithLabelValues(outcome).Inc()
		s.metrics.queryDurationSeconds.WithLabelValues(outcome).Observe(elapsed.Seconds())
		log.Error("query failed", slog.Any("error", err))
		writeJSON(w, status, queryResponse{Status: "error", Error: err.Error()})
		return
	}

	s.metrics.queryRequestsTotal.WithLabelValues(string(ans.Status)).Inc()
	s.metrics.queryDurationSeconds.WithLabelValues(string(ans.Status)).Observe(elapsed.Seconds())

	s.recordHistory(r.Context(), req.Question, ans)

	sources := ans.Sources
	if sources == nil {
		sources = []string{}
	}
	writeJSON(w, http.StatusOK, queryResponse{
		Answer:  ans.Text,
		Sources: sources,
		Status:  string(ans.Status),
	})
}

// recordHistory appends a completed query to the history store, if one is
// configured. History failures are logged, never surfaced to the client.
func (s *Server) recordHistory(ctx context.Context, question string, ans *engine.Answer) {
	if s.history == nil {
		return
	}
	rec := store.Record{
		Question: question,
		Answer:   ans.Text,
		Status:   string(ans.Status),
		Sources:  len(ans.Sources),
	}
	if err := s.history.Append(ctx, rec); err != nil {
		logging.FromContext(ctx).Warn("history append failed", slog.Any("error", err))
	}
}

// handleIngest handles POST /api/ingest. An empty or absent body means
// "ingest every document the source lists". Per-document failures are
// reported in the response body; only source-level failures produce a
// non-200 status.
func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	if s.src == nil {
		http.Error(w, "no document source configured", http.StatusServiceUnavailable)
		return
	}

	var req ingestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	start := time.Now()
	report, err := s.ingester.IngestAll(r.Context(), s.src, req.DocIDs, func(msg string) {
		log.Info("ingest progress", slog.String("msg", msg))
	})
	s.metrics.ingestDurationSeconds.Observe(time.Since(start).Seconds())

	if err != nil {
		log.Error("ingest failed", slog.Any("error", err))
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}

	failed := report.Failed()
	s.metrics.ingestDocumentsTotal.WithLabelValues("ingested").Add(float64(len(report.Processed)))
	s.metrics.ingestDocumentsTotal.WithLabelValues("skipped").Add(float64(len(report.Skipped) - failed))
	s.metrics.ingestDocumentsTotal.WithLabelValues("failed").Add(float64(failed))

	resp := ingestResponse{
		Processed: make([]processedDoc, 0, len(report.Processed)),
		Skipped:   make([]skippedDoc, 0, len(report.Skipped)),
	}
	for _, doc := range report.Processed {
		resp.Processed = append(resp.Processed, processedDoc{
			DocID:  doc.DocID,
			Name:   doc.Name,
			Chunks: doc.Chunks,
		})
	}
	for _, skip := range report.Skipped {
		resp.Skipped = append(resp.Skipped, skippedDoc{DocID: skip.DocID, Reason: skip.Reason})
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleDocs handles GET /api/docs by listing the configured document source.
func (s *Server) handleDocs(w http.ResponseWriter, r *http.Request) {
	if s.src == nil {
		http.Error(w, "no document source configured", http.StatusServiceUnavailable)
		return
	}

	infos, err := s.src.List(r.Context())
	if err != nil {
		logging.FromContext(r.Context()).Error("docs list failed", slog.Any("error", err))
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}

	resp := docsResponse{Docs: []docInfo{}}
	for _, info := range infos {
		resp.Docs = append(resp.Docs, docInfo{ID: info.ID, Name: info.Name})
	}
	writeJSON(w, http.StatusOK, resp)
}

// defaultHistoryLimit is the number of records GET /api/history returns when
// the n query parameter is absent.
const defaultHistoryLimit = 20

// handleHistory handles GET /api/history, returning the most recent queries
// oldest-first. The n query parameter caps the number of records.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		http.Error(w, "no history store configured", http.StatusServiceUnavailable)
		return
	}

	n := defaultHistoryLimit
	if raw := r.URL.Query().Get("n"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			http.Error(w, "n must be a positive integer", http.StatusBadRequest)
			return
		}
		n = parsed
	}

	recs, err := s.history.Recent(r.Context(), n)
	if err != nil {
		logging.FromContext(r.Context()).Error("history read failed", slog.Any("error", err))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	entries := []historyEntry{}
	for _, rec := range recs {
		entries = append(entries, historyEntry{
			Question:  rec.Question,
			Answer:    rec.Answer,
			Status:    rec.Status,
			Sources:   rec.Sources,
			CreatedAt: rec.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, entries)
}

// handleHealth handles GET /api/health for liveness checks.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// writeJSON writes v as a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
