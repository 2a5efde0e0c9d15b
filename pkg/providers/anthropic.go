package providers

import (
	"context"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// AnthropicSummarizer implements Summarizer against Claude.
type AnthropicSummarizer struct {
	client anthropic.Client
	model  anthropic.Model
	retry  RetryPolicy
}

// NewAnthropicSummarizer builds an AnthropicSummarizer. model defaults to
// Claude's Haiku tier when empty, matching the pack's convention of using
// the cheapest model for auxiliary, non-agentic calls.
func NewAnthropicSummarizer(apiKey, model string) *AnthropicSummarizer {
	m := anthropic.Model(model)
	if model == "" {
		m = anthropic.ModelClaude3_5HaikuLatest
	}
	return &AnthropicSummarizer{
		client: anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:  m,
		retry:  DefaultRetryPolicy,
	}
}

// Summarize asks Claude to condense messages into roughly targetWords words.
func (s *AnthropicSummarizer) Summarize(ctx context.Context, messages []string, targetWords int) (string, error) {
	prompt := summarizePrompt(messages, targetWords)

	var summary string
	err := withRetry(ctx, s.retry, func() error {
		resp, apiErr := s.client.Messages.New(ctx, anthropic.MessageNewParams{
			Model:     s.model,
			MaxTokens: int64(targetWords * 4),
			Messages: []anthropic.MessageParam{
				anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
			},
		})
		if apiErr != nil {
			return apiErr
		}
		if len(resp.Content) == 0 {
			return errUnavailable(nil, "anthropic")
		}
		summary = resp.Content[0].Text
		return nil
	})
	if err != nil {
		return "", errUnavailable(err, "anthropic")
	}
	return summary, nil
}
