package matching

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/generations-connect/connect-server-go/internal/errors"
	"github.com/generations-connect/connect-server-go/internal/model"
)

type reply struct {
	text string
	err  error
}

// scriptedProvider returns the scripted replies in order, repeating the last.
type scriptedProvider struct {
	mu      sync.Mutex
	replies []reply
	calls   int
	prompts []string
}

func (p *scriptedProvider) Complete(ctx context.Context, prompt string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.prompts = append(p.prompts, prompt)
	r := p.replies[min(p.calls, len(p.replies)-1)]
	p.calls++
	return r.text, r.err
}

func (p *scriptedProvider) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

// blockingProvider waits for the context to end.
type blockingProvider struct{}

func (blockingProvider) Complete(ctx context.Context, prompt string) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

func testConfig() ScorerConfig {
	return ScorerConfig{
		RequestTimeout:  time.Second,
		MaxRetries:      2,
		BackoffBase:     time.Millisecond,
		FallbackEnabled: true,
	}
}

func TestScorer_Rank_Validation(t *testing.T) {
	scorer := NewScorer(nil, testConfig())
	ctx := context.Background()

	t.Run("topK below one", func(t *testing.T) {
		_, err := scorer.Rank(ctx, profile("t", "music"), []model.MatchProfile{profile("c", "music")}, 0)
		require.Error(t, err)
		assert.True(t, apperrors.Is(err, apperrors.ErrCodeBadRequest))
	})

	t.Run("empty candidates", func(t *testing.T) {
		results, err := scorer.Rank(ctx, profile("t", "music"), nil, 5)
		require.NoError(t, err)
		assert.NotNil(t, results)
		assert.Empty(t, results)
	})

	t.Run("target is never its own candidate", func(t *testing.T) {
		results, err := scorer.Rank(ctx, profile("t", "music"), []model.MatchProfile{profile("t", "music")}, 5)
		require.NoError(t, err)
		assert.Empty(t, results)
	})
}

func TestScorer_Rank_Fallback(t *testing.T) {
	scorer := NewScorer(nil, testConfig())
	target := profile("t", "reading", "music")

	results, err := scorer.Rank(context.Background(), target, []model.MatchProfile{profile("c1", "reading", "cooking")}, 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, 33.33, results[0].Score)
	assert.Equal(t, model.MatchSourceFallback, results[0].Source)
}

func TestScorer_Rank_OrderingAndLength(t *testing.T) {
	scorer := NewScorer(nil, testConfig())
	target := profile("t", "a", "b", "c", "d")
	candidates := []model.MatchProfile{
		profile("c5", "a"),
		profile("c2", "a", "b"),
		profile("c4", "a", "b", "c", "d"),
		profile("c1", "b", "a"),
		profile("c3", "z"),
	}

	for _, k := range []int{1, 2, 3, 5, 10} {
		results, err := scorer.Rank(context.Background(), target, candidates, k)
		require.NoError(t, err)
		assert.Len(t, results, min(k, len(candidates)))
		for i := 1; i < len(results); i++ {
			prev, cur := results[i-1], results[i]
			assert.True(t, prev.Score > cur.Score || (prev.Score == cur.Score && prev.CandidateID < cur.CandidateID),
				"results out of order at %d: %+v then %+v", i, prev, cur)
		}
	}

	results, err := scorer.Rank(context.Background(), target, candidates, 3)
	require.NoError(t, err)
	assert.Equal(t, []string{"c4", "c1", "c2"}, ids(results))
}

func TestScorer_Rank_Provider(t *testing.T) {
	provider := &scriptedProvider{replies: []reply{{
		text: `Here: [{"id":"c1","score":55,"explanation":"music"},{"id":"c2","score":91,"explanation":"books"},{"id":"c3","score":55,"explanation":"ok"}]`,
	}}}
	scorer := NewScorer(provider, testConfig())
	candidates := []model.MatchProfile{profile("c1", "music"), profile("c2", "reading"), profile("c3", "games")}

	results, err := scorer.Rank(context.Background(), profile("t", "music"), candidates, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"c2", "c1"}, ids(results))
	assert.Equal(t, model.MatchSourceProvider, results[0].Source)
	assert.Equal(t, 1, provider.Calls())
	assert.Contains(t, provider.prompts[0], "Score all 3 candidates.")
}

func TestScorer_Rank_ProviderSkipsCandidates(t *testing.T) {
	provider := &scriptedProvider{replies: []reply{{text: `[{"id":"c1","score":10,"explanation":"meh"}]`}}}
	scorer := NewScorer(provider, testConfig())
	candidates := []model.MatchProfile{profile("c1", "music"), profile("c2", "music")}

	results, err := scorer.Rank(context.Background(), profile("t", "music"), candidates, 5)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "c2", results[0].CandidateID)
	assert.Equal(t, 100.0, results[0].Score)
	assert.Equal(t, model.MatchSourceFallback, results[0].Source)
	assert.Equal(t, model.MatchSourceProvider, results[1].Source)
}

func TestScorer_Rank_RetriesThenSucceeds(t *testing.T) {
	provider := &scriptedProvider{replies: []reply{
		{err: errors.New("connection reset")},
		{text: "not json at all"},
		{text: `[{"id":"c1","score":77,"explanation":"good"}]`},
	}}
	scorer := NewScorer(provider, testConfig())

	results, err := scorer.Rank(context.Background(), profile("t", "music"), []model.MatchProfile{profile("c1", "music")}, 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, 77.0, results[0].Score)
	assert.Equal(t, 3, provider.Calls())
}

func TestScorer_Rank_FallsBackAfterRetries(t *testing.T) {
	provider := &scriptedProvider{replies: []reply{{err: errors.New("503 from provider")}}}
	scorer := NewScorer(provider, testConfig())
	target := profile("t", "reading", "music")

	results, err := scorer.Rank(context.Background(), target, []model.MatchProfile{profile("c1", "reading", "cooking")}, 3)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, 33.33, results[0].Score)
	assert.Equal(t, model.MatchSourceFallback, results[0].Source)
	assert.Equal(t, 3, provider.Calls(), "one attempt plus two retries")
}

func TestScorer_Rank_FallbackDisabled(t *testing.T) {
	cfg := testConfig()
	cfg.FallbackEnabled = false
	provider := &scriptedProvider{replies: []reply{{text: "garbage"}}}
	scorer := NewScorer(provider, cfg)

	_, err := scorer.Rank(context.Background(), profile("t", "music"), []model.MatchProfile{profile("c1", "music")}, 3)
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrCodeScoringUnavailable))
}

func TestScorer_Rank_CancelledContextUsesFallback(t *testing.T) {
	scorer := NewScorer(blockingProvider{}, testConfig())
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	results, err := scorer.Rank(ctx, profile("t", "music"), []model.MatchProfile{profile("c1", "music")}, 3)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, model.MatchSourceFallback, results[0].Source)
}

func TestScorer_Rank_PerAttemptTimeout(t *testing.T) {
	cfg := testConfig()
	cfg.RequestTimeout = 10 * time.Millisecond
	cfg.MaxRetries = 1
	scorer := NewScorer(blockingProvider{}, cfg)

	start := time.Now()
	results, err := scorer.Rank(context.Background(), profile("t", "music"), []model.MatchProfile{profile("c1", "music")}, 3)
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Equal(t, model.MatchSourceFallback, results[0].Source)
}

func TestOpenAIProvider_Complete(t *testing.T) {
	var gotModel string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var body struct {
			Model string `json:"model"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		gotModel = body.Model

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "chatcmpl-1",
			"object": "chat.completion",
			"created": 1700000000,
			"model": "test-model",
			"choices": [{
				"index": 0,
				"message": {"role": "assistant", "content": "[{\"id\":\"c1\",\"score\":64,\"explanation\":\"music\"}]"},
				"finish_reason": "stop"
			}]
		}`))
	}))
	defer server.Close()

	provider := NewOpenAIProvider("test-key", server.URL+"/v1", "test-model", 0)
	scorer := NewScorer(provider, testConfig())

	results, err := scorer.Rank(context.Background(), profile("t", "music"), []model.MatchProfile{profile("c1", "music")}, 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, 64.0, results[0].Score)
	assert.Equal(t, model.MatchSourceProvider, results[0].Source)
	assert.Equal(t, "test-model", gotModel)
}

func TestOpenAIProvider_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":{"message":"boom","type":"server_error"}}`))
	}))
	defer server.Close()

	provider := NewOpenAIProvider("test-key", server.URL+"/v1", "test-model", 100)
	_, err := provider.Complete(context.Background(), "hello")
	require.Error(t, err)
}

func ids(results []model.MatchResult) []string {
	out := make([]string, len(results))
	for i, r := range results {
		out[i] = r.CandidateID
	}
	return out
}
