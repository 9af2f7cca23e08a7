// Package tracing reports chat model calls to Langfuse when it is configured.
package tracing

import (
	"log/slog"
	"os"

	"github.com/cloudwego/eino-ext/callbacks/langfuse"
	"github.com/cloudwego/eino/callbacks"
)

// DefaultHost is used when LANGFUSE_HOST is unset.
const DefaultHost = "http://localhost:3000"

// Config holds Langfuse credentials.
type Config struct {
	Host      string
	PublicKey string
	SecretKey string
}

// ConfigFromEnv reads LANGFUSE_HOST, LANGFUSE_PUBLIC_KEY and
// LANGFUSE_SECRET_KEY. ok is false when either key is missing.
func ConfigFromEnv() (cfg Config, ok bool) {
	cfg = Config{
		Host:      os.Getenv("LANGFUSE_HOST"),
		PublicKey: os.Getenv("LANGFUSE_PUBLIC_KEY"),
		SecretKey: os.Getenv("LANGFUSE_SECRET_KEY"),
	}
	if cfg.PublicKey == "" || cfg.SecretKey == "" {
		return cfg, false
	}
	if cfg.Host == "" {
		cfg.Host = DefaultHost
	}
	return cfg, true
}

// Setup registers a global Langfuse callback handler so every eino model
// call is traced. The returned flush function must be called before exit;
// it is a no-op when tracing is not configured.
func Setup(log *slog.Logger) (flush func()) {
	cfg, ok := ConfigFromEnv()
	if !ok {
		log.Debug("tracing: Langfuse not configured")
		return func() {}
	}

	handler, flusher := langfuse.NewLangfuseHandler(&langfuse.Config{
		Host:      cfg.Host,
		PublicKey: cfg.PublicKey,
		SecretKey: cfg.SecretKey,
	})
	callbacks.AppendGlobalHandlers(handler)
	log.Info("tracing: Langfuse enabled", slog.String("host", cfg.Host))
	return flusher
}
