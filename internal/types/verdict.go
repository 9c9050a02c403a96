package types

import "github.com/google/uuid"

// MatchMethod identifies which comparison pass produced a verdict
type MatchMethod string

// Match methods
const (
	MethodSemantic  MatchMethod = "semantic"
	MethodHeuristic MatchMethod = "heuristic"
)

// MatchVerdict is the outcome of a duplicate check for one candidate listing
type MatchVerdict struct {
	Matched bool        `json:"matched"`
	Target  *Listing    `json:"target,omitempty"`
	Score   float64     `json:"score"`
	Method  MatchMethod `json:"method,omitempty"`
}

// NoMatch is the verdict returned when no sufficiently similar listing exists
func NoMatch() MatchVerdict {
	return MatchVerdict{}
}

// ScoredBullet tracks the accumulated relevance of one experience bullet
type ScoredBullet struct {
	ExperienceID     uuid.UUID `json:"experience_id"`
	BulletIndex      int       `json:"bullet_index"`
	AccumulatedScore float64   `json:"accumulated_score"`
	Text             string    `json:"text"`
}
