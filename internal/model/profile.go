package model

// Availability mirrors the jsonb availability column on users.
type Availability struct {
	Days      []string `json:"days,omitempty"`
	TimeSlots []string `json:"timeSlots,omitempty"`
}

// MatchProfile is the minimal view of a user the compatibility scorer sees.
// Interests are normalized (trimmed, lower-cased, de-duplicated, sorted).
type MatchProfile struct {
	ID           string        `json:"id" validate:"required"`
	Interests    []string      `json:"interests"`
	Age          *int          `json:"age,omitempty"`
	ShortBio     *string       `json:"shortBio,omitempty"`
	Availability *Availability `json:"availability,omitempty"`
}

type MatchSource string

const (
	MatchSourceProvider MatchSource = "provider"
	MatchSourceFallback MatchSource = "fallback"
)

// MatchResult is one ranked candidate. Score is in [0, 100].
type MatchResult struct {
	CandidateID string      `json:"candidateId"`
	Score       float64     `json:"score"`
	Explanation string      `json:"explanation"`
	Source      MatchSource `json:"source"`
}
