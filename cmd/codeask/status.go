package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"codeask/internal/version"
)

var statusJSON bool

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show index and session status",
	Long:  "Displays index size, watermark, configured model limits, and recorded sessions.",
	Run:   runStatus,
}

func init() {
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "Output as JSON")
	rootCmd.AddCommand(statusCmd)
}

// statusReport is the machine-readable status shape.
type statusReport struct {
	Version      string `json:"version"`
	RepoRoot     string `json:"repoRoot"`
	Model        string `json:"model"`
	IndexEntries int    `json:"indexEntries"`
	IndexPath    string `json:"indexPath"`
	Watermark    string `json:"watermark,omitempty"`
	Limits       struct {
		RequestsPerMinute int `json:"requestsPerMinute"`
		TokensPerMinute   int `json:"tokensPerMinute"`
		TokensPerDay      int `json:"tokensPerDay"`
	} `json:"limits"`
	Sessions int `json:"sessions"`
}

func runStatus(cmd *cobra.Command, args []string) {
	repoRoot := mustGetRepoRoot()
	a, err := buildApp(context.Background(), repoRoot, false, true)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer a.close()

	var report statusReport
	report.Version = version.Version
	report.RepoRoot = repoRoot
	report.Model = a.cfg.API.Model
	report.IndexEntries = a.cache.Len()
	report.IndexPath = a.cache.Path()
	if wm := a.cache.Watermark(); wm > 0 {
		report.Watermark = time.Unix(wm, 0).Format(time.RFC3339)
	}

	limits, err := resolveLimits(a.cfg)
	if err == nil {
		report.Limits.RequestsPerMinute = limits.RequestsPerMinute
		report.Limits.TokensPerMinute = limits.TokensPerMinute
		report.Limits.TokensPerDay = limits.TokensPerDay
	}

	if sessions, serr := a.transcripts.Sessions(); serr == nil {
		report.Sessions = len(sessions)
	}

	if statusJSON {
		out, _ := json.MarshalIndent(report, "", "  ")
		fmt.Println(string(out))
		return
	}

	fmt.Printf("codeask %s\n", report.Version)
	fmt.Printf("repo:      %s\n", report.RepoRoot)
	fmt.Printf("model:     %s\n", report.Model)
	fmt.Printf("index:     %d entries (%s)\n", report.IndexEntries, report.IndexPath)
	if report.Watermark != "" {
		fmt.Printf("watermark: %s\n", report.Watermark)
	}
	fmt.Printf("limits:    %d req/min, %d tok/min, %d tok/day\n",
		report.Limits.RequestsPerMinute, report.Limits.TokensPerMinute, report.Limits.TokensPerDay)
	fmt.Printf("sessions:  %d recorded\n", report.Sessions)
}
