package commands

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/54b3r/docrag-go/internal/config"
	"github.com/54b3r/docrag-go/internal/logging"
	"github.com/54b3r/docrag-go/internal/rag"
)

// NewDeleteCmd constructs the `docrag delete` command.
func NewDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete STORE",
		Short: "Delete a vector store",
		Long: `Delete a vector store and its on-disk data.

A store that cannot be removed immediately is retried once before the
command exits. The outcome is printed as JSON.

Examples:
  docrag delete vdb_trip_pdf_3f9c2a`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logging.FromContext(ctx)
			id := args[0]

			if err := rag.ValidateStoreID(id); err != nil {
				return fmt.Errorf("delete: %w", err)
			}

			st, err := buildStack(ctx, log, config.FromEnv())
			if err != nil {
				return fmt.Errorf("delete: %w", err)
			}
			defer st.close(ctx, log)

			outcome := st.lifecycle.Delete(ctx, id)

			enc := json.NewEncoder(cmd.OutOrStdout())
			if err := enc.Encode(outcome); err != nil {
				return fmt.Errorf("delete: %w", err)
			}
			return nil
		},
	}
}
