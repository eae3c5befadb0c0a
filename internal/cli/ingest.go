package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/intraline/kbcore/internal/config"
	"github.com/intraline/kbcore/internal/domain"
)

// IngestCmd returns the ingest command
func IngestCmd() *cobra.Command {
	var (
		file       string
		source     string
		sourceType string
		category   string
		importance string
		chunking   chunkFlags
	)

	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Chunk, embed and store a document",
		Long: `Ingest a document into the knowledge base from a file or stdin.

Examples:
  # Ingest a markdown file
  kbcored ingest --file notes/fox.md

  # Ingest from stdin under an explicit source
  cat notes.txt | kbcored ingest --source notes/today.txt --type txt

  # Tag a memory entry
  echo "prefers tabs over spaces" | kbcored ingest --source memory/prefs --type memory --importance high`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			chunking.apply(cfg)

			var content []byte
			filename := ""
			if file != "" {
				content, err = os.ReadFile(file)
				if err != nil {
					return fmt.Errorf("failed to read %s: %w", file, err)
				}
				filename = filepath.Base(file)
				if source == "" {
					source = file
				}
				if sourceType == "" {
					sourceType = typeFromExtension(file)
				}
			} else {
				content, err = io.ReadAll(os.Stdin)
				if err != nil {
					return fmt.Errorf("failed to read stdin: %w", err)
				}
			}

			if source == "" {
				return fmt.Errorf("--source is required when reading from stdin")
			}
			if sourceType == "" {
				return fmt.Errorf("--type is required when it cannot be derived from the filename")
			}

			ctx := context.Background()
			st, cleanup, err := buildStack(ctx, cfg)
			if err != nil {
				return err
			}
			defer cleanup()

			if err := st.coordinator.EnsureReady(ctx); err != nil {
				return fmt.Errorf("failed to provision vector collection: %w", err)
			}

			doc := domain.ParsedDocument{
				Content:    string(content),
				Source:     source,
				Filename:   filename,
				Type:       domain.SourceType(sourceType),
				Category:   category,
				Importance: importance,
			}

			registered, err := st.coordinator.Ingest(ctx, doc)
			if err != nil {
				return err
			}

			return json.NewEncoder(os.Stdout).Encode(map[string]interface{}{
				"source":      registered.Source,
				"chunk_count": registered.ChunkCount,
				"type":        registered.Type,
			})
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "File to ingest (stdin if omitted)")
	cmd.Flags().StringVarP(&source, "source", "s", "", "Source identifier (defaults to the file path)")
	cmd.Flags().StringVarP(&sourceType, "type", "t", "", "Source type: txt, md, pdf, url, notion, memory")
	cmd.Flags().StringVar(&category, "category", "", "Optional category tag")
	cmd.Flags().StringVar(&importance, "importance", "", "Optional importance tag")
	chunking.register(cmd.Flags())

	return cmd
}

func typeFromExtension(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".md", ".markdown":
		return string(domain.SourceTypeMarkdown)
	case ".txt":
		return string(domain.SourceTypeText)
	case ".pdf":
		return string(domain.SourceTypePDF)
	default:
		return ""
	}
}
