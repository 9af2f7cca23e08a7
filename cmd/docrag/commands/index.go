package commands

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/54b3r/docrag-go/internal/config"
	"github.com/54b3r/docrag-go/internal/ingestion"
	"github.com/54b3r/docrag-go/internal/logging"
	"github.com/54b3r/docrag-go/internal/rag"
)

// NewIndexCmd constructs the `docrag index` command, which runs the
// ingestion pipeline over local files into a named store.
func NewIndexCmd() *cobra.Command {
	var storeID string

	cmd := &cobra.Command{
		Use:   "index FILE...",
		Short: "Index local documents into a vector store",
		Long: `Extract, chunk and embed local documents into a vector store.

The store is created if it does not exist; documents already indexed are
overwritten chunk by chunk. Supported types: .txt .md .pdf .xlsx .csv .docx
.json. The file name (including its extension) becomes the document id.

Examples:
  docrag index receipts/berlin.pdf receipts/paris.xlsx
  docrag index --store policies travel-policy.docx
  CHUNK_SIZE=800 CHUNK_OVERLAP=120 docrag index notes.md`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logging.FromContext(ctx)
			settings := config.FromEnv()

			if storeID == "" {
				storeID = settings.DefaultStore
			}
			if err := rag.ValidateStoreID(storeID); err != nil {
				return fmt.Errorf("index: %w", err)
			}

			docs := make([]ingestion.Document, 0, len(args))
			for _, path := range args {
				data, err := os.ReadFile(path)
				if err != nil {
					return fmt.Errorf("index: %w", err)
				}
				docs = append(docs, ingestion.Document{ID: filepath.Base(path), Data: data})
			}

			st, err := buildStack(ctx, log, settings)
			if err != nil {
				return fmt.Errorf("index: %w", err)
			}
			defer st.close(ctx, log)

			coll, err := st.store.GetOrCreate(ctx, storeID)
			if err != nil {
				return fmt.Errorf("index: %w", err)
			}
			defer func() { _ = coll.Release() }()

			log.Info("starting ingestion", slog.Int("documents", len(docs)), slog.String("store", storeID))

			n, err := st.pipeline.Ingest(ctx, coll, docs, func(msg string) {
				log.Info(msg)
			})
			if err != nil {
				return fmt.Errorf("index: pipeline failed after %d chunks: %w", n, err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "indexed %d chunks from %d documents into %s\n", n, len(docs), storeID)
			return nil
		},
	}

	cmd.Flags().StringVarP(&storeID, "store", "s", "", "Store to index into (default from DOCRAG_DEFAULT_STORE)")

	return cmd
}
