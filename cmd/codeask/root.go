package main

import (
	"github.com/spf13/cobra"

	"codeask/internal/version"
)

var (
	// logLevelFlag is the CLI --log-level flag value
	logLevelFlag string
	// jsonLogsFlag switches log output to JSON
	jsonLogsFlag bool
)

var rootCmd = &cobra.Command{
	Use:   "codeask",
	Short: "codeask - ask questions about a codebase",
	Long: `codeask maintains an incrementally updated index of LLM-generated file
summaries for a repository and answers questions about the code by
selecting relevant files from that index, assembling their contents
into a prompt, and generating an answer.`,
	Version: version.Version,
}

func init() {
	rootCmd.SetVersionTemplate("codeask version {{.Version}}\n")
	rootCmd.PersistentFlags().StringVar(&logLevelFlag, "log-level", "",
		"Log level: debug, info, warn, error (default from config)")
	rootCmd.PersistentFlags().BoolVar(&jsonLogsFlag, "json-logs", false,
		"Emit logs as JSON instead of human-readable lines")
}
