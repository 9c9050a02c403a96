// Package main provides the job_tracker CLI for listing deduplication and experience ranking.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	configPath string
	debugLogs  bool
	jsonLogs   bool
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "job_tracker",
	Short: "Job listing deduplication and experience ranking",
	Long: "job_tracker detects duplicate job listings by URL, embedding similarity and fuzzy title/company " +
		"matching, and ranks stored work experiences against a listing's requirements.",
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to a JSON or YAML config file")
	rootCmd.PersistentFlags().BoolVar(&debugLogs, "debug", false, "Enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&jsonLogs, "json-logs", false, "Emit logs as JSON")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Print a human-readable summary to stderr")
}

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
