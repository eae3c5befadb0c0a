package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/intraline/kbcore/internal/config"
)

// ListCmd returns the list command
func ListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List ingested documents, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			ctx := context.Background()
			st, cleanup, err := buildStack(ctx, cfg)
			if err != nil {
				return err
			}
			defer cleanup()

			docs, err := st.coordinator.ListDocuments(ctx)
			if err != nil {
				return err
			}

			type docRow struct {
				Source     string `json:"source"`
				Type       string `json:"type"`
				ChunkCount int    `json:"chunk_count"`
				DateAdded  string `json:"date_added"`
			}
			rows := make([]docRow, len(docs))
			for i, doc := range docs {
				rows[i] = docRow{
					Source:     doc.Source,
					Type:       string(doc.Type),
					ChunkCount: doc.ChunkCount,
					DateAdded:  doc.DateAdded.Format("2006-01-02T15:04:05Z"),
				}
			}

			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(rows)
		},
	}

	return cmd
}
