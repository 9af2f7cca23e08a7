package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/54b3r/docrag-go/internal/answer"
	"github.com/54b3r/docrag-go/internal/config"
	"github.com/54b3r/docrag-go/internal/docsource"
	"github.com/54b3r/docrag-go/internal/embedder"
	"github.com/54b3r/docrag-go/internal/ingestion"
	"github.com/54b3r/docrag-go/internal/lifecycle"
	"github.com/54b3r/docrag-go/internal/provider"
	"github.com/54b3r/docrag-go/internal/rag"
	"github.com/54b3r/docrag-go/internal/retrieval"
	"github.com/54b3r/docrag-go/internal/server"
)

// drainTimeout bounds the shutdown retry of deferred store deletions.
const drainTimeout = 30 * time.Second

// stack is the set of components shared by every command that touches
// vector stores.
type stack struct {
	settings  config.Settings
	store     rag.VectorStore
	pipeline  *ingestion.Pipeline
	retriever rag.Retriever
	lifecycle *lifecycle.Manager
	pingers   []server.Pinger
}

// buildStack wires the embedder, vector store, pipeline, retriever and
// lifecycle manager from the resolved settings. Callers must call close.
func buildStack(ctx context.Context, log *slog.Logger, settings config.Settings, opts ...lifecycle.Option) (*stack, error) {
	remote := settings.VectorBackend == "qdrant"
	if err := embedder.Validate(log, remote); err != nil {
		return nil, err
	}
	emb, err := embedder.NewFromEnv()
	if err != nil {
		return nil, fmt.Errorf("failed to initialise embedder: %w", err)
	}
	log.Info("embedder initialised", slog.String("provider", embedder.Provider()))

	s := &stack{settings: settings}

	switch settings.VectorBackend {
	case "local":
		local, err := rag.NewLocalStore(settings.DataDir, log)
		if err != nil {
			return nil, err
		}
		s.store = local
		log.Info("local vector store ready", slog.String("dir", settings.DataDir))

	case "qdrant":
		dims, err := embedder.Dimensions(ctx, emb)
		if err != nil {
			return nil, fmt.Errorf("failed to determine embedding size: %w", err)
		}
		host := getEnvOrDefault("QDRANT_HOST", "localhost")
		port := getEnvInt("QDRANT_PORT", 6334)
		qs, err := rag.NewQdrantStore(rag.QdrantConfig{
			Host:       host,
			Port:       port,
			VectorSize: uint64(dims), //nolint:gosec // dimensions are bounded
			APIKey:     os.Getenv("QDRANT_API_KEY"),
			UseTLS:     os.Getenv("QDRANT_TLS") == "true",
		}, log)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to Qdrant at %s:%d: %w", host, port, err)
		}
		s.store = qs
		s.pingers = append(s.pingers, server.NewPinger("qdrant", qs.Ping))
		log.Info("qdrant store ready", slog.String("host", host), slog.Int("port", port), slog.Int("dimensions", dims))

	default:
		return nil, fmt.Errorf("unknown VECTOR_BACKEND %q (valid: local, qdrant)", settings.VectorBackend)
	}

	s.pipeline, err = ingestion.NewPipeline(emb, ingestion.Config{
		ChunkSize:    settings.ChunkSize,
		ChunkOverlap: settings.ChunkOverlap,
	})
	if err != nil {
		_ = s.store.Close()
		return nil, err
	}

	s.retriever, err = rag.NewRetriever(emb, s.store, settings.TopK)
	if err != nil {
		_ = s.store.Close()
		return nil, err
	}

	s.lifecycle, err = lifecycle.New(s.store, settings.StorePrefix, log, opts...)
	if err != nil {
		_ = s.store.Close()
		return nil, err
	}
	return s, nil
}

// orchestrator wires a retrieval.Orchestrator on top of the stack. fetcher
// and ans may be nil.
func (s *stack) orchestrator(fetcher docsource.Fetcher, ans answer.Answerer) (*retrieval.Orchestrator, error) {
	return retrieval.New(retrieval.Config{
		Store:                 s.store,
		Retriever:             s.retriever,
		Pipeline:              s.pipeline,
		Lifecycle:             s.lifecycle,
		Fetcher:               fetcher,
		Answerer:              ans,
		MaxConcurrentIndexing: s.settings.MaxConcurrentIndexing,
		MaxContextTokens:      s.settings.MaxContextTokens,
	})
}

// close retries deferred deletions and closes the vector store. It runs on
// a fresh context so a cancelled command context does not skip the drain.
func (s *stack) close(ctx context.Context, log *slog.Logger) {
	drainCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), drainTimeout)
	defer cancel()

	s.lifecycle.Drain(drainCtx)
	if err := s.store.Close(); err != nil {
		log.Warn("vector store close failed", slog.Any("error", err))
	}
}

// buildAnswerer returns nil, not an error, when the chat model cannot be
// initialised, so retrieval keeps working without answers.
func buildAnswerer(ctx context.Context, log *slog.Logger) answer.Answerer {
	cfg := provider.ConfigFromEnv()
	m, err := provider.New(ctx, cfg)
	if err != nil {
		log.Warn("chat model unavailable, answers disabled", slog.Any("error", err))
		return nil
	}
	chat, err := answer.NewChat(m)
	if err != nil {
		log.Warn("chat model unavailable, answers disabled", slog.Any("error", err))
		return nil
	}
	log.Info("provider initialised", slog.String("provider", string(cfg.Backend)))
	return chat
}

// pinger is implemented by document sources that can be health checked.
type pinger interface {
	Ping(ctx context.Context) error
}

func getEnvOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

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
