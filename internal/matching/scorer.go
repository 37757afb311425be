package matching

import (
	"context"
	"sort"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	apperrors "github.com/generations-connect/connect-server-go/internal/errors"
	"github.com/generations-connect/connect-server-go/internal/model"
)

// Provider is the external scoring model: prompt in, free text out.
type Provider interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

type ScorerConfig struct {
	RequestTimeout  time.Duration
	MaxRetries      int
	BackoffBase     time.Duration
	FallbackEnabled bool
}

func DefaultScorerConfig() ScorerConfig {
	return ScorerConfig{
		RequestTimeout:  8 * time.Second,
		MaxRetries:      2,
		BackoffBase:     200 * time.Millisecond,
		FallbackEnabled: true,
	}
}

// Scorer ranks candidates against a target. It asks the provider first and
// falls back to interest overlap when the provider cannot produce a usable
// answer. Rank has no side effects besides metrics and logs.
type Scorer struct {
	provider Provider
	cfg      ScorerConfig
}

// NewScorer creates a scorer. A nil provider ranks with the fallback only.
func NewScorer(provider Provider, cfg ScorerConfig) *Scorer {
	return &Scorer{provider: provider, cfg: cfg}
}

func (s *Scorer) Rank(ctx context.Context, target model.MatchProfile, candidates []model.MatchProfile, topK int) ([]model.MatchResult, error) {
	if topK < 1 {
		return nil, apperrors.BadRequest("topK must be at least 1")
	}
	candidates = uniqueCandidates(target.ID, candidates)
	if len(candidates) == 0 {
		return []model.MatchResult{}, nil
	}

	ctx, span := tracer().Start(ctx, "matching.Rank")
	defer span.End()
	span.SetAttributes(
		attribute.String("match.target_id", target.ID),
		attribute.Int("match.candidates", len(candidates)),
		attribute.Int("match.top_k", topK),
	)

	start := time.Now()
	results, source, err := s.rank(ctx, target, candidates)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "scoring unavailable")
		rankTotal.WithLabelValues("error").Inc()
		return nil, err
	}
	rankTotal.WithLabelValues(string(source)).Inc()
	rankDuration.WithLabelValues(string(source)).Observe(time.Since(start).Seconds())
	span.SetAttributes(attribute.String("match.source", string(source)))

	SortResults(results)
	if len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

func (s *Scorer) rank(ctx context.Context, target model.MatchProfile, candidates []model.MatchProfile) ([]model.MatchResult, model.MatchSource, error) {
	if s.provider == nil {
		if !s.cfg.FallbackEnabled {
			return nil, "", apperrors.ScoringUnavailable()
		}
		return FallbackRank(target, candidates), model.MatchSourceFallback, nil
	}

	results, err := s.scoreWithProvider(ctx, target, candidates)
	if err == nil {
		return mergeMissing(target, candidates, results), model.MatchSourceProvider, nil
	}

	log.Warn().Err(err).
		Str("targetId", target.ID).
		Int("candidates", len(candidates)).
		Msg("scoring provider failed")

	if !s.cfg.FallbackEnabled {
		return nil, "", apperrors.ScoringUnavailable().WithCause(err)
	}
	return FallbackRank(target, candidates), model.MatchSourceFallback, nil
}

func (s *Scorer) scoreWithProvider(ctx context.Context, target model.MatchProfile, candidates []model.MatchProfile) ([]model.MatchResult, error) {
	prompt, err := BuildPrompt(target, candidates)
	if err != nil {
		return nil, err
	}

	ids := make(map[string]struct{}, len(candidates))
	for _, c := range candidates {
		ids[c.ID] = struct{}{}
	}

	attempt := func() ([]model.MatchResult, error) {
		attemptCtx, cancel := context.WithTimeout(ctx, s.cfg.RequestTimeout)
		defer cancel()

		start := time.Now()
		text, err := s.provider.Complete(attemptCtx, prompt)
		providerDuration.Observe(time.Since(start).Seconds())
		if err != nil {
			providerAttempts.WithLabelValues("transport_error").Inc()
			if ctx.Err() != nil {
				return nil, backoff.Permanent(ctx.Err())
			}
			return nil, err
		}

		results, err := ParseRanking(text, ids)
		if err != nil {
			providerAttempts.WithLabelValues("parse_error").Inc()
			return nil, err
		}
		providerAttempts.WithLabelValues("ok").Inc()
		return results, nil
	}

	return backoff.Retry(ctx, attempt,
		backoff.WithBackOff(s.newBackOff()),
		backoff.WithMaxTries(uint(max(0, s.cfg.MaxRetries)+1)),
		backoff.WithNotify(func(err error, wait time.Duration) {
			log.Debug().Err(err).Dur("retryIn", wait).Msg("retrying scoring provider")
		}),
	)
}

func (s *Scorer) newBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.cfg.BackoffBase
	b.RandomizationFactor = 0.2
	b.Multiplier = 2
	b.MaxInterval = 4 * s.cfg.BackoffBase
	return b
}

// mergeMissing gives candidates the provider skipped their overlap score so
// every candidate is ranked.
func mergeMissing(target model.MatchProfile, candidates []model.MatchProfile, results []model.MatchResult) []model.MatchResult {
	scored := make(map[string]struct{}, len(results))
	for _, r := range results {
		scored[r.CandidateID] = struct{}{}
	}
	for _, c := range candidates {
		if _, ok := scored[c.ID]; ok {
			continue
		}
		results = append(results, fallbackScore(target, c))
	}
	return results
}

// FallbackTop ranks candidates by interest overlap alone, sorted and
// truncated to topK.
func FallbackTop(target model.MatchProfile, candidates []model.MatchProfile, topK int) []model.MatchResult {
	results := FallbackRank(target, uniqueCandidates(target.ID, candidates))
	SortResults(results)
	if len(results) > topK {
		results = results[:topK]
	}
	return results
}

// SortResults orders by score descending, then candidate id ascending.
func SortResults(results []model.MatchResult) {
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].CandidateID < results[j].CandidateID
	})
}

// uniqueCandidates drops the target itself and repeated ids.
func uniqueCandidates(targetID string, candidates []model.MatchProfile) []model.MatchProfile {
	seen := make(map[string]struct{}, len(candidates))
	out := make([]model.MatchProfile, 0, len(candidates))
	for _, c := range candidates {
		if c.ID == "" || c.ID == targetID {
			continue
		}
		if _, ok := seen[c.ID]; ok {
			continue
		}
		seen[c.ID] = struct{}{}
		out = append(out, c)
	}
	return out
}
