package commands

import (
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/54b3r/docrag-go/internal/config"
	"github.com/54b3r/docrag-go/internal/docsource"
	"github.com/54b3r/docrag-go/internal/lifecycle"
	"github.com/54b3r/docrag-go/internal/logging"
	"github.com/54b3r/docrag-go/internal/server"
	"github.com/54b3r/docrag-go/internal/tracing"
)

// NewServeCmd constructs the `docrag serve` command, which starts the HTTP
// API.
func NewServeCmd() *cobra.Command {
	var host string
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the docrag HTTP server",
		Long: `Start the docrag HTTP server.

POST /api/chat answers a question against an existing store (store_id) or
fetches a document from the document storage service (bucket_id +
document_id), indexes it into a new store and answers against that.
POST /api/stores/delete removes a store. Deletions that cannot complete
immediately are retried on shutdown.

Examples:
  docrag serve
  docrag serve --port 9090
  VECTOR_BACKEND=qdrant MODEL_PROVIDER=groq docrag serve`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			log := logging.FromContext(ctx)
			settings := config.FromEnv()
			if !cmd.Flags().Changed("host") {
				host = settings.Host
			}
			if !cmd.Flags().Changed("port") {
				port = settings.Port
			}

			log.Info("serve starting", slog.String("vector_backend", settings.VectorBackend))

			// Opt-in, no-op if keys are absent.
			flush := tracing.Setup(log)
			defer flush()

			lm := server.NewLifecycleMetrics(prometheus.DefaultRegisterer)
			st, err := buildStack(ctx, log, settings, lifecycle.WithDeletionHook(lm.Observe))
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			defer st.close(ctx, log)
			lm.WatchPending(st.lifecycle.PendingCount)

			fetcher, err := docsource.NewFromEnv()
			if err != nil {
				return fmt.Errorf("serve: failed to initialise document source: %w", err)
			}
			pingers := st.pingers
			if p, ok := fetcher.(pinger); ok {
				pingers = append(pingers, server.NewPinger("docstore", p.Ping))
			}
			var records server.RecordDeleter
			if h, ok := fetcher.(*docsource.HTTP); ok {
				records = h
			}

			orch, err := st.orchestrator(fetcher, buildAnswerer(ctx, log))
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}

			srv, err := server.New(orch, &server.Config{
				Host:    host,
				Port:    port,
				Logger:  log,
				Pingers: pingers,
				APIKey:  settings.APIKey,
				Records: records,
			})
			if err != nil {
				return fmt.Errorf("serve: failed to create server: %w", err)
			}

			return srv.Start(ctx)
		},
	}

	cmd.Flags().StringVar(&host, "host", "127.0.0.1", "Host address to bind to (default from DOCRAG_HOST)")
	cmd.Flags().IntVarP(&port, "port", "p", 8080, "TCP port to listen on (default from DOCRAG_PORT)")

	return cmd
}
