package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/intraline/kbcore/internal/config"
)

// DeleteCmd returns the delete command
func DeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <source>",
		Short: "Remove a document and all its chunks",
		Args:  cobra.ExactArgs(1),
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

			deleted, err := st.coordinator.Delete(ctx, args[0])
			if err != nil {
				return err
			}

			return json.NewEncoder(os.Stdout).Encode(map[string]interface{}{
				"source":  args[0],
				"deleted": deleted,
			})
		},
	}

	return cmd
}
