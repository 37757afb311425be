package matching

import (
	"encoding/json"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog/log"

	"github.com/generations-connect/connect-server-go/internal/model"
)

// shortBioLimit caps the bio forwarded to the scoring provider, in runes.
const shortBioLimit = 280

// NormalizeInterests trims, lower-cases and de-duplicates interest names and
// returns them sorted. Empty names are dropped.
func NormalizeInterests(interests []string) []string {
	seen := make(map[string]struct{}, len(interests))
	out := make([]string, 0, len(interests))
	for _, raw := range interests {
		name := strings.ToLower(strings.TrimSpace(raw))
		if name == "" {
			continue
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Project builds the scorer's view of a user. now is used for the age.
func Project(user *model.User, now time.Time) model.MatchProfile {
	profile := model.MatchProfile{
		ID:        user.ID,
		Interests: NormalizeInterests(user.Interests),
	}

	if user.BirthDate != nil {
		age := ageAt(*user.BirthDate, now)
		if age >= 0 {
			profile.Age = &age
		}
	}

	if user.Bio != nil {
		if bio := shortBio(*user.Bio); bio != "" {
			profile.ShortBio = &bio
		}
	}

	if user.Availability != nil && len(*user.Availability) > 0 {
		var availability model.Availability
		if err := json.Unmarshal(*user.Availability, &availability); err != nil {
			log.Debug().Err(err).Str("userId", user.ID).Msg("ignoring unreadable availability")
		} else {
			profile.Availability = &availability
		}
	}

	return profile
}

// ProjectAll projects every user in order.
func ProjectAll(users []model.User, now time.Time) []model.MatchProfile {
	profiles := make([]model.MatchProfile, 0, len(users))
	for i := range users {
		profiles = append(profiles, Project(&users[i], now))
	}
	return profiles
}

func ageAt(birth, now time.Time) int {
	age := now.Year() - birth.Year()
	if now.Month() < birth.Month() || (now.Month() == birth.Month() && now.Day() < birth.Day()) {
		age--
	}
	return age
}

func shortBio(bio string) string {
	bio = strings.Join(strings.Fields(bio), " ")
	if utf8.RuneCountInString(bio) <= shortBioLimit {
		return bio
	}
	runes := []rune(bio)
	return strings.TrimSpace(string(runes[:shortBioLimit])) + "…"
}
