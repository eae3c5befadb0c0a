package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/intraline/kbcore/internal/config"
)

// ReconcileCmd returns the reconcile command
func ReconcileCmd() *cobra.Command {
	var checkOnly bool

	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Rebuild the metadata registry from the vector store",
		Long: `Rebuild the metadata registry from the vector store's contents.

With --check, only report drift without repairing it.`,
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

			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")

			if checkOnly {
				drift, err := st.coordinator.CheckDrift(ctx)
				if err != nil {
					return err
				}
				type driftRow struct {
					Source        string `json:"source"`
					RegistryCount int    `json:"registry_count"`
					StoreCount    int    `json:"store_count"`
				}
				rows := make([]driftRow, len(drift))
				for i, d := range drift {
					rows[i] = driftRow{Source: d.Source, RegistryCount: d.RegistryCount, StoreCount: d.StoreCount}
				}
				return enc.Encode(rows)
			}

			registered, err := st.coordinator.Reconcile(ctx)
			if err != nil {
				return err
			}

			return enc.Encode(map[string]int{"registered": registered})
		},
	}

	cmd.Flags().BoolVar(&checkOnly, "check", false, "Report drift without repairing")

	return cmd
}
