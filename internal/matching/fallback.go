package matching

import (
	"math"
	"strings"

	"github.com/generations-connect/connect-server-go/internal/model"
)

const noSharedInterests = "No shared interests"

// FallbackRank scores candidates by interest overlap:
// 100 * |T ∩ C| / max(1, |T ∪ C|). Every candidate gets a result, an empty
// union scoring 0, unless no profile on either side carries any interest,
// in which case there is nothing to rank and the result is empty. The
// result is unsorted.
func FallbackRank(target model.MatchProfile, candidates []model.MatchProfile) []model.MatchResult {
	if !anyInterests(target, candidates) {
		return []model.MatchResult{}
	}
	results := make([]model.MatchResult, 0, len(candidates))
	for _, c := range candidates {
		results = append(results, fallbackScore(target, c))
	}
	return results
}

func anyInterests(target model.MatchProfile, candidates []model.MatchProfile) bool {
	if len(target.Interests) > 0 {
		return true
	}
	for _, c := range candidates {
		if len(c.Interests) > 0 {
			return true
		}
	}
	return false
}

func fallbackScore(target, candidate model.MatchProfile) model.MatchResult {
	shared, union := overlap(target.Interests, candidate.Interests)
	return model.MatchResult{
		CandidateID: candidate.ID,
		Score:       round2(100 * float64(len(shared)) / float64(max(1, union))),
		Explanation: explain(shared),
		Source:      model.MatchSourceFallback,
	}
}

// overlap expects normalized interest sets and returns the shared names in
// the target's order plus the union size.
func overlap(target, candidate []string) ([]string, int) {
	inCandidate := make(map[string]struct{}, len(candidate))
	for _, name := range candidate {
		inCandidate[name] = struct{}{}
	}

	var shared []string
	for _, name := range target {
		if _, ok := inCandidate[name]; ok {
			shared = append(shared, name)
		}
	}
	return shared, len(target) + len(candidate) - len(shared)
}

func explain(shared []string) string {
	if len(shared) == 0 {
		return noSharedInterests
	}
	return "Shared interests: " + strings.Join(shared, ", ")
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
