package commands

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/54b3r/docrag-go/internal/answer"
	"github.com/54b3r/docrag-go/internal/config"
	"github.com/54b3r/docrag-go/internal/docsource"
	"github.com/54b3r/docrag-go/internal/logging"
	"github.com/54b3r/docrag-go/internal/retrieval"
)

// NewAskCmd constructs the `docrag ask` command, which answers one question
// against a store, or against a document indexed on the fly.
func NewAskCmd() *cobra.Command {
	var storeID, bucket, docID string
	var topK int
	var chunksOnly, showChunks bool

	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Ask a question about indexed documents",
		Long: `Ask a question against a vector store.

Use --store to query an existing store (default: DOCRAG_DEFAULT_STORE), or
--bucket and --doc to fetch a document from the document storage service,
index it into a new store and query that. The new store id is printed so it
can be reused with --store and removed with 'docrag delete'.

Examples:
  docrag ask "what was the hotel budget for Berlin?"
  docrag ask --store receipts --top-k 3 "total taxi spend?"
  docrag ask --bucket data-storage --doc trip.pdf "summarise the itinerary"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logging.FromContext(ctx)
			settings := config.FromEnv()

			req := retrieval.Request{
				Bucket:     bucket,
				DocumentID: docID,
				Question:   strings.Join(args, " "),
				TopK:       topK,
			}
			if bucket == "" && docID == "" {
				req.StoreID = storeID
				if req.StoreID == "" {
					req.StoreID = settings.DefaultStore
				}
			}
			if err := req.Validate(); err != nil {
				return fmt.Errorf("ask: %w", err)
			}

			st, err := buildStack(ctx, log, settings)
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}
			defer st.close(ctx, log)

			var fetcher docsource.Fetcher
			if req.Mode() == retrieval.ModeIndex {
				fetcher, err = docsource.NewFromEnv()
				if err != nil {
					return fmt.Errorf("ask: failed to initialise document source: %w", err)
				}
			}

			var ans answer.Answerer
			if !chunksOnly {
				ans = buildAnswerer(ctx, log)
			}

			orch, err := st.orchestrator(fetcher, ans)
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}

			res, err := orch.Ask(ctx, req)
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}

			out := cmd.OutOrStdout()
			if res.Created {
				fmt.Fprintf(cmd.ErrOrStderr(), "indexed %s into store %s\n", docID, res.StoreID)
			}
			if res.Answer != "" {
				fmt.Fprintln(out, res.Answer)
			}
			if showChunks || ans == nil {
				printChunks(out, res)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&storeID, "store", "s", "", "Store to query (default from DOCRAG_DEFAULT_STORE)")
	cmd.Flags().StringVarP(&bucket, "bucket", "b", "", "Document storage bucket to fetch --doc from")
	cmd.Flags().StringVarP(&docID, "doc", "d", "", "Document path inside --bucket to index and query")
	cmd.Flags().IntVarP(&topK, "top-k", "k", 0, "Number of chunks to retrieve (default from RETRIEVAL_TOP_K)")
	cmd.Flags().BoolVar(&chunksOnly, "chunks-only", false, "Skip the chat model and print the retrieved chunks")
	cmd.Flags().BoolVar(&showChunks, "show-chunks", false, "Print the retrieved chunks after the answer")
	cmd.MarkFlagsMutuallyExclusive("store", "bucket")
	cmd.MarkFlagsMutuallyExclusive("store", "doc")
	cmd.MarkFlagsRequiredTogether("bucket", "doc")

	return cmd
}

func printChunks(w io.Writer, res *retrieval.Result) {
	for i, m := range res.Chunks {
		fmt.Fprintf(w, "[%d] %s (score %.3f)\n%s\n\n", i+1, m.ID, m.Score, m.Content)
	}
}
