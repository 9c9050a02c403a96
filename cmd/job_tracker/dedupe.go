package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jonathan/job-tracker/internal/db"
	"github.com/jonathan/job-tracker/internal/embedding"
	"github.com/jonathan/job-tracker/internal/indexing"
	"github.com/jonathan/job-tracker/internal/observability"
	"github.com/jonathan/job-tracker/internal/pipeline"
	"github.com/jonathan/job-tracker/internal/schemas"
	"github.com/jonathan/job-tracker/internal/types"
)

var dedupeCmd = &cobra.Command{
	Use:   "dedupe",
	Short: "Check a batch of listings for duplicates",
	Long: "Canonicalizes listing URLs and checks each listing against stored listings and the listings before it " +
		"in the batch, producing one draft per listing. With --save, unique listings are stored and indexed.",
	RunE: runDedupe,
}

var (
	dedupeInput  string
	dedupeOutput string
	dedupeSave   bool
)

func init() {
	dedupeCmd.Flags().StringVarP(&dedupeInput, "input", "i", "", "Path to a JSON array of listings (required)")
	dedupeCmd.Flags().StringVarP(&dedupeOutput, "output", "o", "", "Path to write drafts JSON (default stdout)")
	dedupeCmd.Flags().BoolVar(&dedupeSave, "save", false, "Store and index unique listings")

	if err := dedupeCmd.MarkFlagRequired("input"); err != nil {
		panic(fmt.Sprintf("failed to mark input flag as required: %v", err))
	}

	rootCmd.AddCommand(dedupeCmd)
}

func runDedupe(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	data, err := readValidated(dedupeInput, schemas.ListingsSchema)
	if err != nil {
		return err
	}
	var listings []types.Listing
	if err := json.Unmarshal(data, &listings); err != nil {
		return fmt.Errorf("failed to unmarshal listings JSON: %w", err)
	}

	a, err := newApp(ctx, appNeeds{db: dedupeSave, dbOptional: true, index: true, provider: true})
	if err != nil {
		return err
	}
	defer a.close()

	store := a.listingStore()
	deduplicator := pipeline.NewDeduplicator(a.dedupEngine(store), store, a.provider, pipeline.Options{
		Concurrency: a.cfg.Pipeline.Concurrency,
		OnProgress: func(e pipeline.ProgressEvent) {
			a.logger.Info("listing checked",
				zap.Int("index", e.Index+1),
				zap.Int("total", e.Total),
				zap.String("status", string(e.Status)),
				zap.String("detail", e.Message))
		},
	}, a.logger)

	session := a.session()
	drafts, err := deduplicator.RunWithSession(ctx, session, listings)
	if err != nil {
		return fmt.Errorf("dedupe failed: %w", err)
	}

	if dedupeSave {
		if err := saveUnique(cmd, a, session, drafts); err != nil {
			return err
		}
	}

	if err := writeOutput(dedupeOutput, drafts); err != nil {
		return err
	}

	counts := map[types.DraftStatus]int{}
	for _, d := range drafts {
		counts[d.Status]++
	}
	_, _ = fmt.Fprintf(os.Stderr, "Checked %d listings: %d unique, %d duplicate URL, %d duplicate content, %d failed\n",
		len(drafts), counts[types.DraftUnique], counts[types.DraftDuplicateURL],
		counts[types.DraftDuplicateSemantic], counts[types.DraftFailed])
	if verbose {
		observability.NewPrinter(os.Stderr).PrintDrafts(drafts)
	}
	return nil
}

// saveUnique stores unique drafts and indexes them for future corpus checks.
// A URL that was stored concurrently by another run turns the draft into a URL duplicate.
func saveUnique(cmd *cobra.Command, a *app, session *embedding.Session, drafts []types.ListingDraft) error {
	ctx := cmd.Context()
	indexer := indexing.NewIndexer(a.index, a.logger)

	saved := 0
	for i := range drafts {
		draft := &drafts[i]
		if draft.Status != types.DraftUnique {
			continue
		}

		listing, err := a.db.CreateListing(ctx, draft.Listing)
		if errors.Is(err, db.ErrDuplicateURL) {
			draft.Status = types.DraftDuplicateURL
			continue
		}
		if err != nil {
			return fmt.Errorf("failed to save listing %s: %w", draft.URL, err)
		}

		if err := indexer.IndexListing(ctx, session, *listing); err != nil {
			return fmt.Errorf("failed to index listing %s: %w", listing.ID, err)
		}
		saved++
	}

	a.logger.Info("saved unique listings", zap.Int("saved", saved))
	return nil
}
