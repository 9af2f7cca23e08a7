// Package server exposes the retrieval orchestrator over HTTP: ask questions,
// delete stores, and report liveness, readiness and metrics.
// The server is started by the `docrag serve` CLI command.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/54b3r/docrag-go/internal/chunker"
	"github.com/54b3r/docrag-go/internal/extract"
	"github.com/54b3r/docrag-go/internal/logging"
	"github.com/54b3r/docrag-go/internal/retrieval"
)

// maxBodyBytes caps API request bodies.
const maxBodyBytes = 1 << 20

// New constructs a Server in front of asker.
func New(asker Asker, cfg *Config) (*Server, error) {
	if asker == nil {
		return nil, fmt.Errorf("server: asker must not be nil")
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
	if cfg.ChatTimeout == 0 {
		cfg.ChatTimeout = 5 * time.Minute
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = cfg.ChatTimeout + 30*time.Second
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 10 * time.Second
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
		asker:   asker,
		cfg:     cfg,
		log:     cfg.Logger,
		pingers: cfg.Pingers,
		metrics: newServerMetrics(cfg.MetricsRegistry),
	}

	if cfg.APIKey == "" {
		s.log.Warn("server: DOCRAG_API_KEY is not set, API authentication is disabled")
	}

	rl, stop := newRateLimiter(cfg.RateLimit, cfg.RateBurst, s.log)
	s.stopRL = stop
	protect := func(h http.HandlerFunc) http.Handler {
		return rl.middleware(authMiddleware(cfg.APIKey, h))
	}

	mux := http.NewServeMux()
	mux.Handle("POST /api/chat", protect(s.handleChat))
	mux.Handle("POST /api/stores/delete", protect(s.handleDeleteStore))
	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("GET /api/ready", s.handleReady)
	mux.Handle("GET /metrics", promhttp.HandlerFor(cfg.MetricsGatherer, promhttp.HandlerOpts{}))

	s.handler = requestLogger(s.log, s.metrics.instrument(mux))
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      s.handler,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	return s, nil
}

// Handler returns the fully wrapped HTTP handler.
func (s *Server) Handler() http.Handler { return s.handler }

// Addr returns the listen address.
func (s *Server) Addr() string { return s.httpServer.Addr }

// Start begins listening and serving HTTP requests. It blocks until the
// context is cancelled, then performs a graceful shutdown.
func (s *Server) Start(ctx context.Context) error {
	defer s.stopRL()
	errCh := make(chan error, 1)

	go func() {
		s.log.Info("server: listening", slog.String("addr", "http://"+s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server: listen error: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server: graceful shutdown failed: %w", err)
		}
		return nil
	}
}

// handleChat handles POST /api/chat.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	var body chatRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req := retrieval.Request{
		StoreID:    body.StoreID,
		Bucket:     body.BucketID,
		DocumentID: body.DocumentID,
		Question:   body.Question,
		TopK:       body.TopK,
	}
	mode := string(req.Mode())

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.ChatTimeout)
	defer cancel()

	start := time.Now()
	res, err := s.asker.Ask(ctx, req)
	s.metrics.chatDurationSeconds.WithLabelValues(mode).Observe(time.Since(start).Seconds())

	if err != nil {
		status := errorStatus(err)
		outcome := "error"
		if status == http.StatusGatewayTimeout {
			outcome = "timeout"
		}
		s.metrics.chatRequestsTotal.WithLabelValues(mode, outcome).Inc()
		if status >= 500 {
			log.Error("chat: request failed", slog.Any("error", err))
		} else {
			log.Warn("chat: request rejected", slog.Any("error", err))
		}
		writeError(w, status, err.Error())
		return
	}

	outcome := "ok"
	if res.NoContext {
		outcome = "no_context"
	}
	s.metrics.chatRequestsTotal.WithLabelValues(mode, outcome).Inc()

	resp := chatResponse{
		Response:  res.Answer,
		StoreID:   res.StoreID,
		Mode:      string(res.Mode),
		Created:   res.Created,
		NoContext: res.NoContext,
		Chunks:    make([]chatChunk, 0, len(res.Chunks)),
	}
	for _, m := range res.Chunks {
		resp.Chunks = append(resp.Chunks, chatChunk{
			ID:            m.ID,
			Content:       m.Content,
			Score:         m.Score,
			DocumentID:    m.Metadata.DocumentID,
			SequenceIndex: m.Metadata.SequenceIndex,
			TypeTag:       m.Metadata.TypeTag,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleDeleteStore handles POST /api/stores/delete. Deletion is always
// accepted; immediate_success is false when it was deferred to shutdown.
func (s *Server) handleDeleteStore(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	var body deleteRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if body.StoreID == "" {
		writeError(w, http.StatusBadRequest, "store_id is required")
		return
	}

	out, err := s.asker.Delete(r.Context(), body.StoreID)
	if err != nil {
		writeError(w, errorStatus(err), err.Error())
		return
	}
	resp := deleteResponse{Requested: out.Requested, ImmediateSuccess: out.ImmediateSuccess}

	if s.cfg.Records != nil {
		if err := s.cfg.Records.DeleteRecord(r.Context(), body.StoreID); err != nil {
			log.Warn("delete: storage record not removed",
				slog.String("store_id", body.StoreID),
				slog.Any("error", err),
			)
		} else {
			resp.RecordDeleted = true
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// errorStatus maps an orchestrator error to an HTTP status code. A deadline
// wins over the category it interrupted.
func errorStatus(err error) int {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, retrieval.ErrInvalidRequest),
		errors.Is(err, extract.ErrUnsupportedFormat),
		errors.Is(err, retrieval.ErrEmptyDocument),
		errors.Is(err, chunker.ErrInvalidChunkingConfig):
		return http.StatusBadRequest
	case errors.Is(err, extract.ErrExtractionFailed):
		return http.StatusUnprocessableEntity
	case errors.Is(err, retrieval.ErrDocumentFetchFailed):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
