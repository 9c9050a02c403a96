package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/jonathan/job-tracker/internal/observability"
	"github.com/jonathan/job-tracker/internal/types"
)

var rankCmd = &cobra.Command{
	Use:   "rank",
	Short: "Rank stored experiences against a listing",
	Long: "Embeds each requirement of a listing, searches the indexed experience bullets and returns the most " +
		"relevant experiences with their best-matching bullets.",
	RunE: runRank,
}

var (
	rankListingID  string
	rankInput      string
	rankTopK       int
	rankMaxBullets int
	rankOutput     string
)

// rankResult is the JSON written by the rank command
type rankResult struct {
	ListingID   uuid.UUID          `json:"listing_id"`
	Title       string             `json:"title"`
	Company     string             `json:"company"`
	Experiences []types.Experience `json:"experiences"`
}

func init() {
	rankCmd.Flags().StringVar(&rankListingID, "listing-id", "", "ID of a stored listing")
	rankCmd.Flags().StringVarP(&rankInput, "input", "i", "", "Path to a listing JSON object")
	rankCmd.Flags().IntVar(&rankTopK, "top-k", 0, "Maximum experiences to return (default from config)")
	rankCmd.Flags().IntVar(&rankMaxBullets, "max-bullets", 0, "Maximum bullets per experience (default from config)")
	rankCmd.Flags().StringVarP(&rankOutput, "output", "o", "", "Path to write ranked experiences JSON (default stdout)")

	rankCmd.MarkFlagsOneRequired("listing-id", "input")
	rankCmd.MarkFlagsMutuallyExclusive("listing-id", "input")

	rootCmd.AddCommand(rankCmd)
}

func runRank(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	var fromFile *types.Listing
	var listingID uuid.UUID
	if rankInput != "" {
		l, err := loadListingFile(rankInput)
		if err != nil {
			return err
		}
		fromFile = l
	} else {
		id, err := uuid.Parse(rankListingID)
		if err != nil {
			return fmt.Errorf("invalid --listing-id %q: %w", rankListingID, err)
		}
		listingID = id
	}

	a, err := newApp(ctx, appNeeds{db: true, index: true, provider: true})
	if err != nil {
		return err
	}
	defer a.close()

	listing := fromFile
	if listing == nil {
		listing, err = a.db.GetListing(ctx, listingID)
		if err != nil {
			return err
		}
		if listing == nil {
			return fmt.Errorf("listing %s not found", listingID)
		}
	}

	experiences, err := a.rankingEngine().RankExperiences(ctx, a.session(), listing.Requirements, listing.Title, rankTopK, rankMaxBullets)
	if err != nil {
		return fmt.Errorf("failed to rank experiences: %w", err)
	}

	if err := writeOutput(rankOutput, rankResult{
		ListingID:   listing.ID,
		Title:       listing.Title,
		Company:     listing.Company,
		Experiences: experiences,
	}); err != nil {
		return err
	}

	_, _ = fmt.Fprintf(os.Stderr, "Ranked %d experiences for %s at %s\n", len(experiences), listing.Title, listing.Company)
	if verbose {
		observability.NewPrinter(os.Stderr).PrintRankedExperiences(listing, experiences)
	}
	return nil
}

// loadListingFile reads and validates a single listing object
func loadListingFile(path string) (*types.Listing, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read listing file %s: %w", path, err)
	}

	var listing types.Listing
	if err := json.Unmarshal(data, &listing); err != nil {
		return nil, fmt.Errorf("failed to unmarshal listing JSON: %w", err)
	}
	if err := listing.Validate(); err != nil {
		return nil, fmt.Errorf("invalid listing %s: %w", path, err)
	}
	return &listing, nil
}
