package types

import "github.com/google/uuid"

// DraftStatus is the dedup outcome for one listing in an ingestion batch
type DraftStatus string

// Draft statuses
const (
	DraftUnique            DraftStatus = "unique"
	DraftDuplicateURL      DraftStatus = "duplicate_url"
	DraftDuplicateSemantic DraftStatus = "duplicate_semantic"
	DraftFailed            DraftStatus = "failed"
)

// ListingDraft is a listing awaiting user confirmation, annotated with its dedup outcome
type ListingDraft struct {
	ID          uuid.UUID   `json:"id"`
	Status      DraftStatus `json:"status"`
	URL         string      `json:"url"`
	Listing     *Listing    `json:"listing,omitempty"`
	DuplicateOf *Listing    `json:"duplicate_of,omitempty"`
	Score       float64     `json:"score,omitempty"`
	Method      MatchMethod `json:"method,omitempty"`
	Error       string      `json:"error,omitempty"`
}

// IsDuplicate reports whether the draft was flagged as a duplicate of a known listing
func (d *ListingDraft) IsDuplicate() bool {
	return d.Status == DraftDuplicateURL || d.Status == DraftDuplicateSemantic
}
