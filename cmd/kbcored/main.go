package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/intraline/kbcore/internal/cli"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "kbcored",
		Short: "Knowledge base daemon and CLI",
		Long:  "kbcored runs the knowledge ingestion and retrieval API server and offers direct pipeline commands",
	}

	rootCmd.AddCommand(cli.ServeCmd())
	rootCmd.AddCommand(cli.IngestCmd())
	rootCmd.AddCommand(cli.SearchCmd())
	rootCmd.AddCommand(cli.ListCmd())
	rootCmd.AddCommand(cli.DeleteCmd())
	rootCmd.AddCommand(cli.ReconcileCmd())

	if len(os.Args) == 1 {
		os.Args = append(os.Args, "serve")
	}

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
