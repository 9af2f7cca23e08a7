package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/54b3r/docrag-go/internal/extract"
	"github.com/54b3r/docrag-go/internal/lifecycle"
	"github.com/54b3r/docrag-go/internal/logging"
	"github.com/54b3r/docrag-go/internal/rag"
	"github.com/54b3r/docrag-go/internal/retrieval"
)

// fakeAsker implements Asker for handler tests.
type fakeAsker struct {
	res     *retrieval.Result
	err     error
	outcome lifecycle.Outcome
	got     retrieval.Request
	deleted string
}

func (f *fakeAsker) Ask(_ context.Context, req retrieval.Request) (*retrieval.Result, error) {
	f.got = req
	if f.err != nil {
		return nil, f.err
	}
	return f.res, nil
}

func (f *fakeAsker) Delete(_ context.Context, storeID string) (lifecycle.Outcome, error) {
	f.deleted = storeID
	if err := rag.ValidateStoreID(storeID); err != nil {
		return lifecycle.Outcome{}, fmt.Errorf("%w: %w", retrieval.ErrInvalidRequest, err)
	}
	return f.outcome, nil
}

// fakeRecords implements RecordDeleter.
type fakeRecords struct {
	err error
	ids []string
}

func (f *fakeRecords) DeleteRecord(_ context.Context, id string) error {
	f.ids = append(f.ids, id)
	return f.err
}

// newTestServer builds a Server without starting a listener or the rate
// limiter's eviction goroutine.
func newTestServer() *Server {
	return newAskTestServer(&fakeAsker{}, nil)
}

func newAskTestServer(a Asker, records RecordDeleter) *Server {
	return &Server{
		asker:   a,
		cfg:     &Config{ChatTimeout: time.Minute, Records: records},
		log:     logging.Discard(),
		metrics: newServerMetrics(prometheus.NewRegistry()),
	}
}

func postJSON(path, body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestHandleChat_InvalidJSON(t *testing.T) {
	t.Parallel()

	s := newTestServer()
	w := httptest.NewRecorder()
	s.handleChat(w, postJSON("/api/chat", `not-json`))

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

func TestHandleChat_QueryMode(t *testing.T) {
	t.Parallel()

	a := &fakeAsker{res: &retrieval.Result{
		StoreID: "default",
		Mode:    retrieval.ModeQuery,
		Answer:  "The hotel cost 420 EUR.",
		Chunks: []rag.Match{{
			ID:       "berlin.txt_0",
			Content:  "Hotel Adlon: 420 EUR",
			Score:    0.91,
			Metadata: rag.Metadata{DocumentID: "berlin.txt", TypeTag: ".txt", SequenceIndex: 0},
		}},
	}}
	s := newAskTestServer(a, nil)

	w := httptest.NewRecorder()
	s.handleChat(w, postJSON("/api/chat", `{"store_id":"default","question":"hotel?","top_k":3}`))

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if a.got.StoreID != "default" || a.got.Question != "hotel?" || a.got.TopK != 3 {
		t.Errorf("unexpected request passed through: %+v", a.got)
	}

	var resp chatResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Response != "The hotel cost 420 EUR." || resp.StoreID != "default" || resp.Mode != "query" {
		t.Errorf("unexpected response %+v", resp)
	}
	if len(resp.Chunks) != 1 || resp.Chunks[0].DocumentID != "berlin.txt" || resp.Chunks[0].TypeTag != ".txt" {
		t.Errorf("unexpected chunks %+v", resp.Chunks)
	}
}

func TestHandleChat_IndexModeReportsNewStore(t *testing.T) {
	t.Parallel()

	a := &fakeAsker{res: &retrieval.Result{StoreID: "vdb_trip_pdf_abc", Mode: retrieval.ModeIndex, Created: true, Answer: "ok", Chunks: []rag.Match{{ID: "x"}}}}
	s := newAskTestServer(a, nil)

	w := httptest.NewRecorder()
	s.handleChat(w, postJSON("/api/chat", `{"bucket_id":"data-storage","document_id":"trip.pdf","question":"total?"}`))

	var resp chatResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.Created || resp.StoreID != "vdb_trip_pdf_abc" {
		t.Errorf("unexpected response %+v", resp)
	}
	if a.got.Bucket != "data-storage" || a.got.DocumentID != "trip.pdf" {
		t.Errorf("document reference not passed through: %+v", a.got)
	}
}

func TestHandleChat_ErrorStatus(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		err  error
		want int
	}{
		{"invalid request", fmt.Errorf("x: %w", retrieval.ErrInvalidRequest), http.StatusBadRequest},
		{"unsupported format", &extract.UnsupportedFormatError{Tag: ".bmp"}, http.StatusBadRequest},
		{"empty document", retrieval.ErrEmptyDocument, http.StatusBadRequest},
		{"extraction failed", &extract.ExtractionError{Tag: ".pdf", Err: errors.New("bad xref")}, http.StatusUnprocessableEntity},
		{"fetch failed", fmt.Errorf("x: %w", retrieval.ErrDocumentFetchFailed), http.StatusBadGateway},
		{"timeout", context.DeadlineExceeded, http.StatusGatewayTimeout},
		{"fetch timed out", fmt.Errorf("x: %w: %w", retrieval.ErrDocumentFetchFailed, context.DeadlineExceeded), http.StatusGatewayTimeout},
		{"other", errors.New("disk full"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			s := newAskTestServer(&fakeAsker{err: tc.err}, nil)
			w := httptest.NewRecorder()
			s.handleChat(w, postJSON("/api/chat", `{"store_id":"s","question":"q"}`))

			if w.Code != tc.want {
				t.Errorf("expected %d, got %d", tc.want, w.Code)
			}
			var resp errorResponse
			if err := json.NewDecoder(w.Body).Decode(&resp); err != nil || resp.Error == "" {
				t.Errorf("expected JSON error body, got %q", w.Body.String())
			}
		})
	}
}

func TestHandleDeleteStore(t *testing.T) {
	t.Parallel()

	records := &fakeRecords{}
	a := &fakeAsker{outcome: lifecycle.Outcome{Requested: true, ImmediateSuccess: false}}
	s := newAskTestServer(a, records)

	w := httptest.NewRecorder()
	s.handleDeleteStore(w, postJSON("/api/stores/delete", `{"store_id":"vdb_a_1"}`))

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var resp deleteResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.Requested || resp.ImmediateSuccess || !resp.RecordDeleted {
		t.Errorf("unexpected response %+v", resp)
	}
	if a.deleted != "vdb_a_1" || len(records.ids) != 1 || records.ids[0] != "vdb_a_1" {
		t.Errorf("delete not forwarded: store=%q records=%v", a.deleted, records.ids)
	}
}

func TestHandleDeleteStore_RecordFailureIsNotFatal(t *testing.T) {
	t.Parallel()

	a := &fakeAsker{outcome: lifecycle.Outcome{Requested: true, ImmediateSuccess: true}}
	s := newAskTestServer(a, &fakeRecords{err: errors.New("HTTP 500")})

	w := httptest.NewRecorder()
	s.handleDeleteStore(w, postJSON("/api/stores/delete", `{"store_id":"vdb_a_1"}`))

	var resp deleteResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if w.Code != http.StatusOK || !resp.ImmediateSuccess || resp.RecordDeleted {
		t.Errorf("unexpected %d %+v", w.Code, resp)
	}
}

func TestHandleDeleteStore_Validation(t *testing.T) {
	t.Parallel()

	s := newTestServer()
	for _, body := range []string{`{}`, `nope`, `{"store_id":"../../etc"}`} {
		w := httptest.NewRecorder()
		s.handleDeleteStore(w, postJSON("/api/stores/delete", body))
		if w.Code != http.StatusBadRequest {
			t.Errorf("body %s: expected 400, got %d", body, w.Code)
		}
	}
}

func TestNew_RoutesAndAuth(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	a := &fakeAsker{res: &retrieval.Result{StoreID: "default", Mode: retrieval.ModeQuery, NoContext: true, Answer: "none"}}
	s, err := New(a, &Config{
		APIKey:          "secret",
		Logger:          logging.Discard(),
		MetricsRegistry: reg,
		MetricsGatherer: reg,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(s.stopRL)
	h := s.Handler()

	// Health is public.
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	if w.Code != http.StatusOK {
		t.Errorf("health: expected 200, got %d", w.Code)
	}

	// Chat requires the bearer token.
	w = httptest.NewRecorder()
	h.ServeHTTP(w, postJSON("/api/chat", `{"store_id":"default","question":"q"}`))
	if w.Code != http.StatusUnauthorized {
		t.Errorf("chat without token: expected 401, got %d", w.Code)
	}

	req := postJSON("/api/chat", `{"store_id":"default","question":"q"}`)
	req.Header.Set("Authorization", "Bearer secret")
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("chat with token: expected 200, got %d", w.Code)
	}

	// Wrong method on a known path.
	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/chat", nil))
	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET /api/chat: expected 405, got %d", w.Code)
	}

	// Metrics are served from the injected gatherer.
	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if !strings.Contains(w.Body.String(), `docrag_chat_requests_total{mode="query",outcome="no_context"} 1`) {
		t.Errorf("chat counter missing from /metrics:\n%s", w.Body.String())
	}
	if !strings.Contains(w.Body.String(), `handler="POST /api/chat"`) {
		t.Error("http metrics should be labelled by route pattern")
	}
}

func TestNew_RequiresAsker(t *testing.T) {
	t.Parallel()
	if _, err := New(nil, nil); err == nil {
		t.Error("want error for nil asker")
	}
}
