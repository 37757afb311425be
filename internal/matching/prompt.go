package matching

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/generations-connect/connect-server-go/internal/model"
)

const systemPrompt = "You score how compatible volunteers and older adults are for shared activities. " +
	"Answer with JSON only."

type promptCandidate struct {
	ID        string   `json:"id"`
	Age       *int     `json:"age,omitempty"`
	Interests []string `json:"interests"`
	ShortBio  *string  `json:"shortBio,omitempty"`
}

// BuildPrompt renders the scoring request for the provider. Every candidate
// is listed and the provider is asked to score all of them; truncation to
// topK happens locally after sorting.
func BuildPrompt(target model.MatchProfile, candidates []model.MatchProfile) (string, error) {
	list := make([]promptCandidate, 0, len(candidates))
	for _, c := range candidates {
		interests := c.Interests
		if interests == nil {
			interests = []string{}
		}
		list = append(list, promptCandidate{ID: c.ID, Age: c.Age, Interests: interests, ShortBio: c.ShortBio})
	}
	encoded, err := json.MarshalIndent(list, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode candidates: %w", err)
	}

	var b strings.Builder
	b.WriteString("Score how compatible each candidate is with the person below.\n\n")
	b.WriteString("Person:\n")
	fmt.Fprintf(&b, "- Interests: %s\n", orNA(strings.Join(target.Interests, ", ")))
	if target.Age != nil {
		fmt.Fprintf(&b, "- Age: %d\n", *target.Age)
	}
	if target.ShortBio != nil {
		fmt.Fprintf(&b, "- Description: %s\n", *target.ShortBio)
	} else {
		b.WriteString("- Description: N/A\n")
	}
	if a := target.Availability; a != nil && (len(a.Days) > 0 || len(a.TimeSlots) > 0) {
		fmt.Fprintf(&b, "- Availability: %s / %s\n", orNA(strings.Join(a.Days, ", ")), orNA(strings.Join(a.TimeSlots, ", ")))
	}
	b.WriteString("\nCandidates:\n")
	b.Write(encoded)
	b.WriteString("\n\nReturn only a JSON array with one object per candidate: ")
	b.WriteString(`[{"id": string, "score": number (0-100), "explanation": string}]. `)
	fmt.Fprintf(&b, "Score all %d candidates.", len(candidates))
	return b.String(), nil
}

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}
