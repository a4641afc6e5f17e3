package server

import (
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/d8vjr/docqa-go/internal/engine"
	"github.com/d8vjr/docqa-go/internal/ingestion"
)

// newMetricsTestServer builds a Server backed by a fresh isolated registry so
// tests do not pollute prometheus.DefaultRegisterer.
func newMetricsTestServer(t *testing.T) (*Server, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	s := &Server{
		answerer: &fakeAnswerer{},
		cfg: &Config{
			QueryTimeout:    time.Minute,
			MetricsRegistry: reg,
			MetricsGatherer: reg,
		},
		log:     slog.Default(),
		metrics: newServerMetrics(reg),
	}
	return s, reg
}

// counterValue returns the value of the named counter with the given label,
// or -1 when the series is absent.
func counterValue(t *testing.T, reg *prometheus.Registry, name, label, value string) float64 {
	t.Helper()
	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, mf := range mfs {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if lp.GetName() == label && lp.GetValue() == value {
					return m.GetCounter().GetValue()
				}
			}
		}
	}
	return -1
}

func Test_Metrics_EndpointReturns200(t *testing.T) {
	t.Parallel()
	_, reg := newMetricsTestServer(t)

	srv := httptest.NewServer(promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	t.Cleanup(srv.Close)

	req, err := http.NewRequestWithContext(t.Context(), http.MethodGet, srv.URL+"/metrics", nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("want 200, got %d", resp.StatusCode)
	}
	ct := resp.Header.Get("Content-Type")
	if !strings.HasPrefix(ct, "text/plain") {
		t.Errorf("want text/plain content-type, got %q", ct)
	}
}

// Test_Metrics_QueryOutcomeCounted verifies handleQuery increments the query
// counter with the answer status as the outcome label.
func Test_Metrics_QueryOutcomeCounted(t *testing.T) {
	t.Parallel()
	s, reg := newMetricsTestServer(t)
	s.answerer = &fakeAnswerer{answer: &engine.Answer{Text: "ok", Status: engine.StatusGrounded}}

	postQuery(s, `{"question":"q"}`)

	if got := counterValue(t, reg, "docqa_query_requests_total", "outcome", "grounded"); got != 1 {
		t.Errorf("docqa_query_requests_total{outcome=\"grounded\"}: want 1, got %v", got)
	}
}

// Test_Metrics_QueryErrorCounted verifies engine failures are counted under
// the "error" outcome.
func Test_Metrics_QueryErrorCounted(t *testing.T) {
	t.Parallel()
	s, reg := newMetricsTestServer(t)
	s.answerer = &fakeAnswerer{err: fmt.Errorf("backend down")}

	postQuery(s, `{"question":"q"}`)

	if got := counterValue(t, reg, "docqa_query_requests_total", "outcome", "error"); got != 1 {
		t.Errorf("docqa_query_requests_total{outcome=\"error\"}: want 1, got %v", got)
	}
}

// Test_Metrics_IngestDocumentsCounted verifies handleIngest adds the report
// counts under their outcome labels.
func Test_Metrics_IngestDocumentsCounted(t *testing.T) {
	t.Parallel()
	s, reg := newMetricsTestServer(t)
	s.src = &fakeDocSource{}
	s.ingester = &fakeIngester{report: &ingestion.Report{
		Processed: []ingestion.ProcessedDoc{
			{DocID: "a", Name: "a.txt", Chunks: 3},
			{DocID: "b", Name: "b.txt", Chunks: 1},
		},
		Skipped: []ingestion.SkippedDoc{
			{DocID: "c", Name: "c.txt", Reason: "already indexed (2 chunks)"},
			{DocID: "broken", Name: "broken", Reason: "fetch: timeout", Err: fmt.Errorf("fetch: timeout")},
		},
	}}

	postIngest(s, "")

	cases := []struct {
		outcome string
		want    float64
	}{
		{"ingested", 2},
		{"skipped", 1},
		{"failed", 1},
	}
	for _, tc := range cases {
		if got := counterValue(t, reg, "docqa_ingest_documents_total", "outcome", tc.outcome); got != tc.want {
			t.Errorf("docqa_ingest_documents_total{outcome=%q}: want %v, got %v", tc.outcome, tc.want, got)
		}
	}
}
