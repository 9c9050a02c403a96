// Package types provides type definitions for structured data used throughout the job-tracker system.
//
//nolint:revive // types is a standard Go package name pattern
package types

import (
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// Listing represents a job posting with its extracted structured fields
type Listing struct {
	ID           uuid.UUID `json:"id"`
	URL          string    `json:"url" validate:"required,url"`
	Title        string    `json:"title" validate:"required"`
	Company      string    `json:"company" validate:"required"`
	Domain       string    `json:"domain,omitempty"`
	Location     string    `json:"location,omitempty"`
	Description  string    `json:"description,omitempty"`
	PostedDate   string    `json:"posted_date,omitempty" validate:"omitempty,datetime=2006-01-02"`
	Skills       []string  `json:"skills"`
	Requirements []string  `json:"requirements"`
}

// Validate validates the Listing using the validator.
func (l *Listing) Validate() error {
	validate := validator.New()
	return validate.Struct(l)
}

// EmbeddingText builds the text that represents a listing in the vector index.
// Each non-empty field goes on its own line in a fixed order.
func (l *Listing) EmbeddingText() string {
	fields := []string{
		l.Company,
		l.Title,
		l.Location,
		l.Description,
		strings.Join(l.Skills, ", "),
		strings.Join(l.Requirements, ", "),
	}

	lines := make([]string, 0, len(fields))
	for _, f := range fields {
		if strings.TrimSpace(f) != "" {
			lines = append(lines, f)
		}
	}
	return strings.Join(lines, "\n")
}
