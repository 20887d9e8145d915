package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Scan the repository and refresh the summary index",
	Long: `Walks the repository, summarizes new or modified files, removes
entries for deleted files, and persists the updated index under
.codeask/.`,
	Run: runIndex,
}

func init() {
	rootCmd.AddCommand(indexCmd)
}

func runIndex(cmd *cobra.Command, args []string) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	repoRoot := mustGetRepoRoot()
	a, err := buildApp(ctx, repoRoot, true, false)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer a.close()

	stats, err := a.indexer.Reindex(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Indexing failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Indexed %d files (%d summarized, %d degraded, %d deleted) in %s\n",
		stats.Scanned, stats.Reindexed, stats.Degraded, stats.Deleted,
		stats.Duration.Round(time.Millisecond))
	fmt.Printf("Index now holds %d entries at %s\n", a.cache.Len(), a.cache.Path())
}
