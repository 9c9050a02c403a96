package types

import (
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// ExperienceType is the employment type of a work-history entry
type ExperienceType string

// Supported experience types
const (
	ExperienceFullTime   ExperienceType = "Full-time"
	ExperiencePartTime   ExperienceType = "Part-time"
	ExperienceInternship ExperienceType = "Internship"
	ExperienceFreelance  ExperienceType = "Freelance"
	ExperienceContract   ExperienceType = "Contract"
)

// Experience represents a single work-history entry with ordered achievement bullets
type Experience struct {
	ID           uuid.UUID      `json:"id"`
	Title        string         `json:"title" validate:"required"`
	Organization string         `json:"organization" validate:"required"`
	Type         ExperienceType `json:"type" validate:"required,oneof=Full-time Part-time Internship Freelance Contract"`
	Location     string         `json:"location,omitempty"`
	StartDate    string         `json:"start_date" validate:"required,datetime=2006-01"`
	EndDate      string         `json:"end_date,omitempty" validate:"omitempty,datetime=2006-01"`
	Bullets      []string       `json:"bullets"`
}

// Validate validates the Experience using the validator.
func (e *Experience) Validate() error {
	validate := validator.New()
	return validate.Struct(e)
}

// BulletEmbeddingText builds the indexed text for one bullet of the experience.
func (e *Experience) BulletEmbeddingText(index int) string {
	return fmt.Sprintf("Role: %s\nAchievement: %s\n", e.Title, e.Bullets[index])
}

// WithBullets returns a copy of the experience carrying only the given bullets.
func (e Experience) WithBullets(bullets []string) Experience {
	e.Bullets = bullets
	return e
}
