package matching

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"
)

// OpenAIProvider calls any OpenAI-compatible chat completion endpoint.
// Setting baseURL targets compatible hosts such as Gemini's OpenAI endpoint.
type OpenAIProvider struct {
	client  *openai.Client
	model   string
	limiter *rate.Limiter
}

// NewOpenAIProvider creates a provider throttled to ratePerSecond calls.
// A non-positive rate disables the throttle.
func NewOpenAIProvider(apiKey, baseURL, model string, ratePerSecond float64) *OpenAIProvider {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}

	limit := rate.Inf
	burst := 1
	if ratePerSecond > 0 {
		limit = rate.Limit(ratePerSecond)
		burst = max(1, int(ratePerSecond))
	}

	log.Info().Str("model", model).Str("baseUrl", cfg.BaseURL).Msg("initializing scoring provider")
	return &OpenAIProvider{
		client:  openai.NewClientWithConfig(cfg),
		model:   model,
		limiter: rate.NewLimiter(limit, burst),
	}
}

func (p *OpenAIProvider) Complete(ctx context.Context, prompt string) (string, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("scoring provider throttle: %w", err)
	}

	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: p.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: 0.2,
	})
	if err != nil {
		return "", fmt.Errorf("scoring provider call failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("scoring provider returned no choices")
	}

	log.Debug().Str("finishReason", string(resp.Choices[0].FinishReason)).Msg("scoring provider responded")
	return resp.Choices[0].Message.Content, nil
}
