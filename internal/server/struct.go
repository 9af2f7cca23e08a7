package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/54b3r/docrag-go/internal/lifecycle"
	"github.com/54b3r/docrag-go/internal/retrieval"
)

// Config holds the HTTP server configuration.
type Config struct {
	// Host is the address to bind to (default: 127.0.0.1).
	Host string
	// Port is the TCP port to listen on (default: 8080).
	Port int
	// ReadTimeout is the maximum duration for reading the request.
	ReadTimeout time.Duration
	// WriteTimeout is the maximum duration for writing the response. It must
	// exceed ChatTimeout.
	WriteTimeout time.Duration
	// ShutdownTimeout is the maximum duration for a graceful shutdown.
	ShutdownTimeout time.Duration
	// ChatTimeout bounds a single /api/chat request, including indexing.
	// Defaults to 5 minutes.
	ChatTimeout time.Duration
	// Logger is the structured logger used by the server and its handlers.
	// If nil, [logging.New] is used.
	Logger *slog.Logger
	// Pingers is the ordered list of dependency checks run by GET /api/ready.
	// If empty, /api/ready returns 200 with no checks.
	Pingers []Pinger
	// RateLimit is the sustained request rate allowed per IP on rate-limited
	// endpoints (requests/second). Defaults to 10 if zero.
	RateLimit float64
	// RateBurst is the maximum instantaneous burst per IP. Defaults to 20 if zero.
	RateBurst int
	// APIKey is the Bearer token required on /api/chat and /api/stores/delete.
	// If empty, authentication is disabled.
	APIKey string
	// Records, when set, is told about every store deletion so the document
	// storage service can drop its record of the store.
	Records RecordDeleter
	// MetricsRegistry receives the server's metrics. Defaults to
	// prometheus.DefaultRegisterer.
	MetricsRegistry prometheus.Registerer
	// MetricsGatherer is served on GET /metrics. Defaults to
	// prometheus.DefaultGatherer.
	MetricsGatherer prometheus.Gatherer
}

// Asker is the question-answering service behind the HTTP surface.
// *retrieval.Orchestrator satisfies it; tests inject a fake.
type Asker interface {
	Ask(ctx context.Context, req retrieval.Request) (*retrieval.Result, error)
	Delete(ctx context.Context, storeID string) (lifecycle.Outcome, error)
}

// RecordDeleter removes the document storage service's record of a store.
type RecordDeleter interface {
	DeleteRecord(ctx context.Context, storeID string) error
}

// Server is the HTTP server in front of the retrieval orchestrator.
type Server struct {
	asker   Asker
	cfg     *Config
	log     *slog.Logger
	pingers []Pinger
	metrics *serverMetrics

	handler    http.Handler
	httpServer *http.Server
	// stopRL stops the rate limiter's background eviction goroutine on shutdown.
	stopRL func()
}

// chatRequest is the JSON body for POST /api/chat. Exactly one of StoreID or
// BucketID+DocumentID must be set.
type chatRequest struct {
	StoreID    string `json:"store_id"`
	BucketID   string `json:"bucket_id"`
	DocumentID string `json:"document_id"`
	Question   string `json:"question"`
	TopK       int    `json:"top_k"`
}

// chatChunk is one retrieved chunk in a chat response.
type chatChunk struct {
	ID            string  `json:"id"`
	Content       string  `json:"content"`
	Score         float32 `json:"score"`
	DocumentID    string  `json:"document_id"`
	SequenceIndex int     `json:"sequence_index"`
	TypeTag       string  `json:"type_tag"`
}

// chatResponse is the JSON response for POST /api/chat.
type chatResponse struct {
	Response string `json:"response"`
	// StoreID is the store that was queried; reuse it for follow-up questions.
	StoreID   string      `json:"store_id"`
	Mode      string      `json:"mode"`
	Created   bool        `json:"created"`
	NoContext bool        `json:"no_context"`
	Chunks    []chatChunk `json:"chunks"`
}

// deleteRequest is the JSON body for POST /api/stores/delete.
type deleteRequest struct {
	StoreID string `json:"store_id"`
}

// deleteResponse is the JSON response for POST /api/stores/delete.
type deleteResponse struct {
	Requested        bool `json:"requested"`
	ImmediateSuccess bool `json:"immediate_success"`
	// RecordDeleted reports whether the storage service's record was removed.
	RecordDeleted bool `json:"record_deleted"`
}

// errorResponse is the JSON body of every non-2xx API response.
type errorResponse struct {
	Error string `json:"error"`
}
