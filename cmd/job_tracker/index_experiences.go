package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jonathan/job-tracker/internal/indexing"
	"github.com/jonathan/job-tracker/internal/observability"
	"github.com/jonathan/job-tracker/internal/schemas"
	"github.com/jonathan/job-tracker/internal/types"
)

var indexExperiencesCmd = &cobra.Command{
	Use:   "index-experiences",
	Short: "Store experiences and index their bullets",
	Long:  "Validates a JSON array of experiences, upserts them into the database and replaces their bullet documents in the vector index.",
	RunE:  runIndexExperiences,
}

var indexExperiencesInput string

func init() {
	indexExperiencesCmd.Flags().StringVarP(&indexExperiencesInput, "input", "i", "", "Path to a JSON array of experiences (required)")

	if err := indexExperiencesCmd.MarkFlagRequired("input"); err != nil {
		panic(fmt.Sprintf("failed to mark input flag as required: %v", err))
	}

	rootCmd.AddCommand(indexExperiencesCmd)
}

func runIndexExperiences(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	experiences, err := loadExperiences(indexExperiencesInput)
	if err != nil {
		return err
	}

	a, err := newApp(ctx, appNeeds{db: true, index: true, provider: true})
	if err != nil {
		return err
	}
	defer a.close()

	saved := make([]types.Experience, 0, len(experiences))
	for i := range experiences {
		exp, err := a.db.CreateExperience(ctx, &experiences[i])
		if err != nil {
			return fmt.Errorf("failed to save experience %q: %w", experiences[i].Title, err)
		}
		saved = append(saved, *exp)
	}

	stats, err := indexing.NewIndexer(a.index, a.logger).Reindex(ctx, a.session(), nil, saved, a.cfg.Pipeline.Concurrency)
	if err != nil {
		return err
	}

	_, _ = fmt.Fprintf(os.Stdout, "Indexed %d experiences (%d bullets)\n", stats.Experiences, stats.Bullets)
	if verbose {
		observability.NewPrinter(os.Stderr).PrintIndexStats(stats)
	}
	return nil
}

// loadExperiences reads, schema-checks and validates an experiences file
func loadExperiences(path string) ([]types.Experience, error) {
	data, err := readValidated(path, schemas.ExperiencesSchema)
	if err != nil {
		return nil, err
	}

	var experiences []types.Experience
	if err := json.Unmarshal(data, &experiences); err != nil {
		return nil, fmt.Errorf("failed to unmarshal experiences JSON: %w", err)
	}
	for i := range experiences {
		if err := experiences[i].Validate(); err != nil {
			return nil, fmt.Errorf("invalid experience %d: %w", i, err)
		}
	}
	return experiences, nil
}
