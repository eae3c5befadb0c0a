package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/intraline/kbcore/internal/config"
)

// SearchCmd returns the search command
func SearchCmd() *cobra.Command {
	var (
		limit    int
		minScore float64
	)

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Semantic search over the knowledge base",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			if minScore < 0 || minScore > 1 {
				return fmt.Errorf("--min-score must be between 0 and 1")
			}

			ctx := context.Background()
			st, cleanup, err := buildStack(ctx, cfg)
			if err != nil {
				return err
			}
			defer cleanup()

			query := strings.Join(args, " ")
			results, err := st.retrieval.Query(ctx, query, limit)
			if err != nil {
				return err
			}

			type resultRow struct {
				Source  string  `json:"source"`
				Score   float64 `json:"score"`
				Content string  `json:"content"`
			}
			rows := make([]resultRow, 0, len(results))
			for _, res := range results {
				if res.Score < minScore {
					continue
				}
				rows = append(rows, resultRow{
					Source:  res.Metadata.Source,
					Score:   res.Score,
					Content: res.Content,
				})
			}

			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(rows)
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 5, "Maximum number of results")
	cmd.Flags().Float64Var(&minScore, "min-score", 0, "Discard results scoring below this threshold")

	return cmd
}
