package matching

import (
	"encoding/json"
	"math"
	"strings"

	apperrors "github.com/generations-connect/connect-server-go/internal/errors"
	"github.com/generations-connect/connect-server-go/internal/model"
)

type providerEntry struct {
	ID          string  `json:"id"`
	Score       float64 `json:"score"`
	Explanation string  `json:"explanation"`
}

// ParseRanking extracts the first JSON array of {id, score, explanation}
// objects from the provider text. Entries for unknown ids are dropped,
// duplicates keep their first occurrence and scores are clamped to [0, 100].
func ParseRanking(text string, candidateIDs map[string]struct{}) ([]model.MatchResult, error) {
	entries, ok := firstArray(text)
	if !ok {
		return nil, apperrors.ScoringParse("no JSON array in provider response")
	}

	seen := make(map[string]struct{}, len(entries))
	results := make([]model.MatchResult, 0, len(entries))
	for _, e := range entries {
		id := strings.TrimSpace(e.ID)
		if _, known := candidateIDs[id]; !known {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		if math.IsNaN(e.Score) {
			continue
		}
		seen[id] = struct{}{}
		results = append(results, model.MatchResult{
			CandidateID: id,
			Score:       round2(math.Min(100, math.Max(0, e.Score))),
			Explanation: strings.TrimSpace(e.Explanation),
			Source:      model.MatchSourceProvider,
		})
	}
	if len(results) == 0 {
		return nil, apperrors.ScoringParse("provider response has no usable entries")
	}
	return results, nil
}

// firstArray tries every '[' in order and returns the first one that
// decodes as an entry array.
func firstArray(text string) ([]providerEntry, bool) {
	for i := 0; i < len(text); i++ {
		if text[i] != '[' {
			continue
		}
		var entries []providerEntry
		dec := json.NewDecoder(strings.NewReader(text[i:]))
		if err := dec.Decode(&entries); err == nil {
			return entries, true
		}
	}
	return nil, false
}
