package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var exportOutput string

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export recorded chat sessions to a compressed archive",
	Long:  "Writes all recorded sessions and their messages as zstd-compressed JSON.",
	Run:   runExport,
}

func init() {
	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "codeask-sessions.json.zst", "Output file path")
	rootCmd.AddCommand(exportCmd)
}

func runExport(cmd *cobra.Command, args []string) {
	repoRoot := mustGetRepoRoot()
	a, err := buildApp(context.Background(), repoRoot, false, true)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer a.close()

	n, err := a.transcripts.ExportTo(exportOutput)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Export failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Exported %d sessions to %s\n", n, exportOutput)
}
