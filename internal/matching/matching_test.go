package matching

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/generations-connect/connect-server-go/internal/errors"
	"github.com/generations-connect/connect-server-go/internal/model"
)

func profile(id string, interests ...string) model.MatchProfile {
	return model.MatchProfile{ID: id, Interests: NormalizeInterests(interests)}
}

func TestNormalizeInterests(t *testing.T) {
	got := NormalizeInterests([]string{" Music", "reading", "MUSIC", "", "  ", "Cooking "})
	assert.Equal(t, []string{"cooking", "music", "reading"}, got)
	assert.Empty(t, NormalizeInterests(nil))
}

func TestProject(t *testing.T) {
	now := time.Date(2026, 6, 15, 12, 0, 0, 0, time.UTC)
	birth := time.Date(1950, 6, 16, 0, 0, 0, 0, time.UTC)
	bio := "  Retired   teacher who loves\nbooks  "
	availability := json.RawMessage(`{"days":["mon","wed"],"timeSlots":["morning"]}`)

	user := &model.User{
		ID:           "elder-1",
		UserType:     model.UserTypeElder,
		Bio:          &bio,
		BirthDate:    &birth,
		Availability: &availability,
		Interests:    []string{"Reading", "music", "reading"},
	}

	p := Project(user, now)
	assert.Equal(t, "elder-1", p.ID)
	assert.Equal(t, []string{"music", "reading"}, p.Interests)
	require.NotNil(t, p.Age)
	assert.Equal(t, 75, *p.Age, "birthday not yet reached this year")
	require.NotNil(t, p.ShortBio)
	assert.Equal(t, "Retired teacher who loves books", *p.ShortBio)
	require.NotNil(t, p.Availability)
	assert.Equal(t, []string{"mon", "wed"}, p.Availability.Days)

	t.Run("tolerates unreadable availability", func(t *testing.T) {
		broken := json.RawMessage(`"weekends"`)
		p := Project(&model.User{ID: "u", Availability: &broken}, now)
		assert.Nil(t, p.Availability)
		assert.Nil(t, p.Age)
		assert.Nil(t, p.ShortBio)
	})

	t.Run("truncates long bios", func(t *testing.T) {
		long := strings.Repeat("a", shortBioLimit+50)
		p := Project(&model.User{ID: "u", Bio: &long}, now)
		require.NotNil(t, p.ShortBio)
		assert.True(t, strings.HasSuffix(*p.ShortBio, "…"))
	})
}

func TestFallbackRank(t *testing.T) {
	t.Run("one shared interest out of three", func(t *testing.T) {
		target := profile("t", "reading", "music")
		results := FallbackRank(target, []model.MatchProfile{profile("c1", "reading", "cooking")})

		require.Len(t, results, 1)
		assert.Equal(t, "c1", results[0].CandidateID)
		assert.Equal(t, 33.33, results[0].Score)
		assert.Equal(t, "Shared interests: reading", results[0].Explanation)
		assert.Equal(t, model.MatchSourceFallback, results[0].Source)
	})

	t.Run("deterministic for identical input", func(t *testing.T) {
		target := profile("t", "reading", "music", "games")
		candidates := []model.MatchProfile{
			profile("c1", "reading", "games"),
			profile("c2", "music"),
			profile("c3", "cooking"),
		}
		first := FallbackRank(target, candidates)
		second := FallbackRank(target, candidates)
		assert.Equal(t, first, second)
	})

	t.Run("no shared interests", func(t *testing.T) {
		results := FallbackRank(profile("t", "reading"), []model.MatchProfile{profile("c1", "cooking")})
		require.Len(t, results, 1)
		assert.Equal(t, 0.0, results[0].Score)
		assert.Equal(t, "No shared interests", results[0].Explanation)
	})

	t.Run("empty when no profile has interests", func(t *testing.T) {
		results := FallbackRank(profile("t"), []model.MatchProfile{profile("c1"), profile("c2")})
		assert.Empty(t, results)
	})

	t.Run("keeps candidates with an empty union", func(t *testing.T) {
		results := FallbackRank(profile("t"), []model.MatchProfile{
			profile("c1", "music"),
			profile("c2"),
			profile("c3"),
		})

		require.Len(t, results, 3)
		for _, r := range results {
			assert.Equal(t, 0.0, r.Score)
			assert.Equal(t, noSharedInterests, r.Explanation)
		}
	})
}

func TestFallbackTop(t *testing.T) {
	target := profile("t", "reading", "music")
	candidates := []model.MatchProfile{
		profile("c1", "cooking"),
		profile("c2", "reading", "music"),
		profile("c3"),
		profile("c4", "music"),
	}

	results := FallbackTop(target, candidates, 3)

	require.Len(t, results, 3)
	assert.Equal(t, "c2", results[0].CandidateID)
	assert.Equal(t, "c4", results[1].CandidateID)
	assert.Equal(t, "c1", results[2].CandidateID)
}

func TestParseRanking(t *testing.T) {
	ids := map[string]struct{}{"a": {}, "b": {}, "c": {}}

	t.Run("extracts array from surrounding prose", func(t *testing.T) {
		text := "Sure! Here you go:\n```json\n[{\"id\":\"a\",\"score\":87.456,\"explanation\":\" both love music \"}]\n```"
		results, err := ParseRanking(text, ids)
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, 87.46, results[0].Score)
		assert.Equal(t, "both love music", results[0].Explanation)
		assert.Equal(t, model.MatchSourceProvider, results[0].Source)
	})

	t.Run("skips brackets that are not entry arrays", func(t *testing.T) {
		text := `Scores [see below] [{"id":"b","score":40,"explanation":"ok"}]`
		results, err := ParseRanking(text, ids)
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, "b", results[0].CandidateID)
	})

	t.Run("filters unknown ids, duplicates and clamps", func(t *testing.T) {
		text := `[{"id":"a","score":140},{"id":"zzz","score":90},{"id":"a","score":10},{"id":"c","score":-5}]`
		results, err := ParseRanking(text, ids)
		require.NoError(t, err)
		require.Len(t, results, 2)
		assert.Equal(t, 100.0, results[0].Score)
		assert.Equal(t, "c", results[1].CandidateID)
		assert.Equal(t, 0.0, results[1].Score)
	})

	t.Run("missing array", func(t *testing.T) {
		_, err := ParseRanking("I cannot help with that.", ids)
		require.Error(t, err)
		assert.True(t, apperrors.Is(err, apperrors.ErrCodeScoringParse))
	})

	t.Run("no usable entries", func(t *testing.T) {
		_, err := ParseRanking(`[{"id":"nobody","score":50}]`, ids)
		require.Error(t, err)
		assert.True(t, apperrors.Is(err, apperrors.ErrCodeScoringParse))
	})
}

func TestBuildPrompt(t *testing.T) {
	age := 72
	target := profile("t", "reading", "music")
	target.Age = &age
	prompt, err := BuildPrompt(target, []model.MatchProfile{profile("c1", "reading"), profile("c2")})
	require.NoError(t, err)

	assert.Contains(t, prompt, "Interests: music, reading")
	assert.Contains(t, prompt, "Age: 72")
	assert.Contains(t, prompt, "Description: N/A")
	assert.Contains(t, prompt, `"id": "c1"`)
	assert.Contains(t, prompt, `"interests": []`)
	assert.Contains(t, prompt, "Score all 2 candidates.")
}

func TestSortResults(t *testing.T) {
	results := []model.MatchResult{
		{CandidateID: "b", Score: 50},
		{CandidateID: "c", Score: 90},
		{CandidateID: "a", Score: 50},
	}
	SortResults(results)
	assert.Equal(t, "c", results[0].CandidateID)
	assert.Equal(t, "a", results[1].CandidateID)
	assert.Equal(t, "b", results[2].CandidateID)
}
