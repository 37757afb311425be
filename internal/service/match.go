package service

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	apperrors "github.com/generations-connect/connect-server-go/internal/errors"
	"github.com/generations-connect/connect-server-go/internal/config"
	"github.com/generations-connect/connect-server-go/internal/matching"
	"github.com/generations-connect/connect-server-go/internal/model"
)

type Ranker interface {
	Rank(ctx context.Context, target model.MatchProfile, candidates []model.MatchProfile, topK int) ([]model.MatchResult, error)
}

type MatchService struct {
	pool        *CandidatePool
	ranker      Ranker
	defaultTopK int
	// rankBudget bounds a shared ranking run, which outlives the caller
	// that started it.
	rankBudget time.Duration
	flight     singleflight.Group
}

func NewMatchService(pool *CandidatePool, ranker Ranker, defaultTopK int) *MatchService {
	return &MatchService{
		pool:        pool,
		ranker:      ranker,
		defaultTopK: defaultTopK,
		rankBudget:  config.MatchRankBudget,
	}
}

// FindMatches ranks the candidate pool of targetID. Concurrent calls for the
// same target and topK share one scoring run. A caller whose context ends
// before the shared run finishes gets the interest-overlap ranking of its
// own pool.
func (s *MatchService) FindMatches(ctx context.Context, targetID string, topK int) ([]model.MatchResult, error) {
	topK, err := s.resolveTopK(topK)
	if err != nil {
		return nil, err
	}

	pool, err := s.pool.Build(ctx, targetID, 0)
	if err != nil {
		return nil, err
	}

	key := fmt.Sprintf("%s:%d", targetID, topK)
	ch := s.flight.DoChan(key, func() (interface{}, error) {
		rankCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.rankBudget)
		defer cancel()
		return s.ranker.Rank(rankCtx, pool.Target, pool.Candidates, topK)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		results := res.Val.([]model.MatchResult)
		log.Debug().
			Str("targetId", targetID).
			Int("topK", topK).
			Int("results", len(results)).
			Bool("shared", res.Shared).
			Msg("matches ranked")
		return slices.Clone(results), nil

	case <-ctx.Done():
		log.Warn().Err(ctx.Err()).
			Str("targetId", targetID).
			Int("topK", topK).
			Msg("caller deadline reached before ranking finished, using overlap ranking")
		return matching.FallbackTop(pool.Target, pool.Candidates, topK), nil
	}
}

// ScoreProfiles ranks caller-supplied profiles without touching the user
// directory.
func (s *MatchService) ScoreProfiles(ctx context.Context, target model.MatchProfile, candidates []model.MatchProfile, topK int) ([]model.MatchResult, error) {
	topK, err := s.resolveTopK(topK)
	if err != nil {
		return nil, err
	}

	target.Interests = matching.NormalizeInterests(target.Interests)
	normalized := make([]model.MatchProfile, len(candidates))
	for i, c := range candidates {
		c.Interests = matching.NormalizeInterests(c.Interests)
		normalized[i] = c
	}
	return s.ranker.Rank(ctx, target, normalized, topK)
}

func (s *MatchService) resolveTopK(topK int) (int, error) {
	if topK == 0 {
		topK = s.defaultTopK
	}
	if topK < 1 {
		return 0, apperrors.BadRequest("topK must be at least 1")
	}
	if topK > config.MaxTopK {
		return 0, apperrors.BadRequest(fmt.Sprintf("topK must be at most %d", config.MaxTopK))
	}
	return topK, nil
}
