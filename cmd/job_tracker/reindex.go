package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jonathan/job-tracker/internal/indexing"
	"github.com/jonathan/job-tracker/internal/observability"
)

var reindexCmd = &cobra.Command{
	Use:   "reindex",
	Short: "Rebuild the vector index from the database",
	Long:  "Re-embeds every stored listing and experience bullet and replaces their documents in the vector index.",
	RunE:  runReindex,
}

func init() {
	rootCmd.AddCommand(reindexCmd)
}

func runReindex(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	a, err := newApp(ctx, appNeeds{db: true, index: true, provider: true})
	if err != nil {
		return err
	}
	defer a.close()

	listings, err := a.db.ListListings(ctx)
	if err != nil {
		return err
	}
	experiences, err := a.db.ListExperiences(ctx)
	if err != nil {
		return err
	}

	stats, err := indexing.NewIndexer(a.index, a.logger).Reindex(ctx, a.session(), listings, experiences, a.cfg.Pipeline.Concurrency)
	if err != nil {
		return err
	}

	_, _ = fmt.Fprintf(os.Stdout, "Reindexed %d listings and %d experiences (%d bullets)\n",
		stats.Listings, stats.Experiences, stats.Bullets)
	if verbose {
		observability.NewPrinter(os.Stderr).PrintIndexStats(stats)
	}
	return nil
}
