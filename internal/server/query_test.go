package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/d8vjr/docqa-go/internal/engine"
	"github.com/d8vjr/docqa-go/internal/store"
)

// ---------------------------------------------------------------------------
// Fakes for query handler tests
// ---------------------------------------------------------------------------

// fakeAnswerer implements the answerer interface for tests. It records the
// arguments of every Answer call and returns configurable values.
type fakeAnswerer struct {
	// answer is returned on each Answer call unless err is set.
	answer *engine.Answer
	// err is returned as the error value.
	err error
	// questions records every question Answer was called with.
	questions []string
	// docIDs records the doc filter of the last Answer call.
	docIDs []string
}

func (f *fakeAnswerer) Answer(_ context.Context, question string, docIDs []string) (*engine.Answer, error) {
	f.questions = append(f.questions, question)
	f.docIDs = docIDs
	if f.err != nil {
		return nil, f.err
	}
	return f.answer, nil
}

// fakeHistory implements store.HistoryStore for tests, recording appends.
type fakeHistory struct {
	// records holds every appended record in order.
	records []store.Record
	// err is returned by Append when set.
	err error
}

func (f *fakeHistory) Append(_ context.Context, rec store.Record) error {
	if f.err != nil {
		return f.err
	}
	f.records = append(f.records, rec)
	return nil
}

func (f *fakeHistory) Recent(_ context.Context, n int) ([]store.Record, error) {
	if n > len(f.records) {
		n = len(f.records)
	}
	return f.records[len(f.records)-n:], nil
}

func (f *fakeHistory) Close() error { return nil }

// newTestServer builds a *Server with an isolated metrics registry and no
// collaborators wired. Tests set the fields they exercise.
func newTestServer() *Server {
	return &Server{
		cfg:     &Config{QueryTimeout: time.Minute},
		log:     slog.Default(),
		metrics: newServerMetrics(prometheus.NewRegistry()),
	}
}

// newQueryTestServer builds a *Server wired with the given answerer fake.
func newQueryTestServer(a answerer) *Server {
	s := newTestServer()
	s.answerer = a
	return s
}

// postQuery runs handleQuery against the given JSON body and returns the
// recorder.
func postQuery(s *Server, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/query", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.handleQuery(w, req)
	return w
}

// ---------------------------------------------------------------------------
// POST /api/query
// ---------------------------------------------------------------------------

func TestHandleQuery_InvalidJSON(t *testing.T) {
	t.Parallel()

	s := newQueryTestServer(nil)
	w := postQuery(s, `not-json`)

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

// TestHandleQuery_Grounded verifies the happy path: the engine's answer,
// sources, and status are returned verbatim as JSON.
func TestHandleQuery_Grounded(t *testing.T) {
	t.Parallel()

	a := &fakeAnswerer{answer: &engine.Answer{
		Text:    "Binary search runs in O(log n) time.",
		Sources: []string{"Binary search is an algorithm..."},
		Status:  engine.StatusGrounded,
	}}
	s := newQueryTestServer(a)

	w := postQuery(s, `{"question":"how fast is binary search?"}`)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d — body: %s", w.Code, w.Body.String())
	}

	var resp queryResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Answer != "Binary search runs in O(log n) time." {
		t.Errorf("unexpected answer: %q", resp.Answer)
	}
	if len(resp.Sources) != 1 {
		t.Errorf("expected 1 source, got %d", len(resp.Sources))
	}
	if resp.Status != "grounded" {
		t.Errorf("expected status grounded, got %q", resp.Status)
	}
	if len(a.questions) != 1 || a.questions[0] != "how fast is binary search?" {
		t.Errorf("engine saw questions %v", a.questions)
	}
}

// TestHandleQuery_DocFilterPassedThrough verifies the docIds field reaches
// the engine unchanged.
func TestHandleQuery_DocFilterPassedThrough(t *testing.T) {
	t.Parallel()

	a := &fakeAnswerer{answer: &engine.Answer{Text: "ok", Status: engine.StatusGrounded}}
	s := newQueryTestServer(a)

	w := postQuery(s, `{"question":"q","docIds":["algorithms","databases"]}`)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if len(a.docIDs) != 2 || a.docIDs[0] != "algorithms" || a.docIDs[1] != "databases" {
		t.Errorf("engine saw docIDs %v", a.docIDs)
	}
}

// TestHandleQuery_NilSourcesMarshalAsEmptyArray verifies ungrounded answers
// serialize sources as [] rather than null.
func TestHandleQuery_NilSourcesMarshalAsEmptyArray(t *testing.T) {
	t.Parallel()

	a := &fakeAnswerer{answer: &engine.Answer{Text: "from my own knowledge", Status: engine.StatusUngrounded}}
	s := newQueryTestServer(a)

	w := postQuery(s, `{"question":"anything"}`)

	if !strings.Contains(w.Body.String(), `"sources":[]`) {
		t.Errorf("expected empty sources array, got: %s", w.Body.String())
	}
}

// TestHandleQuery_EngineError verifies dependency failures surface as 502
// with status "error" and never a fabricated answer.
func TestHandleQuery_EngineError(t *testing.T) {
	t.Parallel()

	a := &fakeAnswerer{err: fmt.Errorf("engine: retrieval: connection refused")}
	s := newQueryTestServer(a)

	w := postQuery(s, `{"question":"q"}`)

	if w.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", w.Code)
	}

	var resp queryResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Status != "error" {
		t.Errorf("expected status error, got %q", resp.Status)
	}
	if resp.Answer != "" {
		t.Errorf("expected no answer on failure, got %q", resp.Answer)
	}
	if !strings.Contains(resp.Error, "connection refused") {
		t.Errorf("expected failure reason in error field, got %q", resp.Error)
	}
}

// TestHandleQuery_Timeout verifies context deadline errors map to 504.
func TestHandleQuery_Timeout(t *testing.T) {
	t.Parallel()

	a := &fakeAnswerer{err: fmt.Errorf("engine: generation: %w", context.DeadlineExceeded)}
	s := newQueryTestServer(a)

	w := postQuery(s, `{"question":"q"}`)

	if w.Code != http.StatusGatewayTimeout {
		t.Errorf("expected 504, got %d", w.Code)
	}
}

// TestHandleQuery_HistoryRecorded verifies completed queries are appended to
// the history store with the engine's status and source count.
func TestHandleQuery_HistoryRecorded(t *testing.T) {
	t.Parallel()

	a := &fakeAnswerer{answer: &engine.Answer{
		Text:    "yes",
		Sources: []string{"s1", "s2"},
		Status:  engine.StatusGrounded,
	}}
	h := &fakeHistory{}
	s := newQueryTestServer(a)
	s.history = h

	w := postQuery(s, `{"question":"is it indexed?"}`)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if len(h.records) != 1 {
		t.Fatalf("expected 1 history record, got %d", len(h.records))
	}
	rec := h.records[0]
	if rec.Question != "is it indexed?" || rec.Answer != "yes" {
		t.Errorf("unexpected record %+v", rec)
	}
	if rec.Status != "grounded" || rec.Sources != 2 {
		t.Errorf("expected grounded with 2 sources, got %+v", rec)
	}
}

// TestHandleQuery_HistoryFailureIsNotFatal verifies a failing history store
// does not turn a successful query into an error response.
func TestHandleQuery_HistoryFailureIsNotFatal(t *testing.T) {
	t.Parallel()

	a := &fakeAnswerer{answer: &engine.Answer{Text: "ok", Status: engine.StatusUngrounded}}
	s := newQueryTestServer(a)
	s.history = &fakeHistory{err: fmt.Errorf("store: disk full")}

	w := postQuery(s, `{"question":"q"}`)

	if w.Code != http.StatusOK {
		t.Errorf("expected 200 despite history failure, got %d", w.Code)
	}
}

// TestHandleQuery_EngineErrorSkipsHistory verifies failed queries are not
// written to history.
func TestHandleQuery_EngineErrorSkipsHistory(t *testing.T) {
	t.Parallel()

	h := &fakeHistory{}
	s := newQueryTestServer(&fakeAnswerer{err: fmt.Errorf("down")})
	s.history = h

	postQuery(s, `{"question":"q"}`)

	if len(h.records) != 0 {
		t.Errorf("expected no history records for failed query, got %d", len(h.records))
	}
}
