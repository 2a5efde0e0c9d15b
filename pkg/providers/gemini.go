package providers

import (
	"context"

	"google.golang.org/genai"
)

// GeminiEmbedder implements Embedder against Gemini's embedding models.
type GeminiEmbedder struct {
	client    *genai.Client
	model     string
	dimension int
	retry     RetryPolicy
}

// NewGeminiEmbedder builds a GeminiEmbedder using an API-key-backed client.
// model defaults to "text-embedding-004" (768 dimensions) when empty.
func NewGeminiEmbedder(ctx context.Context, apiKey, model string, dimension int) (*GeminiEmbedder, error) {
	if model == "" {
		model = "text-embedding-004"
	}
	if dimension <= 0 {
		dimension = 768
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		Backend: genai.BackendGeminiAPI,
		APIKey:  apiKey,
	})
	if err != nil {
		return nil, errUnavailable(err, "gemini")
	}
	return &GeminiEmbedder{client: client, model: model, dimension: dimension, retry: DefaultRetryPolicy}, nil
}

// Embed calls the Gemini embed-content API, retrying transient failures.
func (e *GeminiEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	content := genai.NewContentFromParts([]*genai.Part{genai.NewPartFromText(text)}, genai.RoleUser)

	var vector []float32
	err := withRetry(ctx, e.retry, func() error {
		resp, apiErr := e.client.Models.EmbedContent(ctx, e.model, []*genai.Content{content}, nil)
		if apiErr != nil {
			return apiErr
		}
		if len(resp.Embeddings) == 0 {
			return errUnavailable(nil, "gemini")
		}
		vector = resp.Embeddings[0].Values
		return nil
	})
	if err != nil {
		return nil, errUnavailable(err, "gemini")
	}
	return vector, nil
}

// Dimension returns the configured embedding width.
func (e *GeminiEmbedder) Dimension() int { return e.dimension }

// GeminiSummarizer implements Summarizer against a Gemini chat model.
type GeminiSummarizer struct {
	client *genai.Client
	model  string
	retry  RetryPolicy
}

// NewGeminiSummarizer builds a GeminiSummarizer. model defaults to
// "gemini-2.5-flash" when empty, matching the pack's "weak model" convention
// for cheap, latency-sensitive auxiliary calls.
func NewGeminiSummarizer(ctx context.Context, apiKey, model string) (*GeminiSummarizer, error) {
	if model == "" {
		model = "gemini-2.5-flash"
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		Backend: genai.BackendGeminiAPI,
		APIKey:  apiKey,
	})
	if err != nil {
		return nil, errUnavailable(err, "gemini")
	}
	return &GeminiSummarizer{client: client, model: model, retry: DefaultRetryPolicy}, nil
}

// Summarize asks Gemini to condense messages into roughly targetWords words.
func (s *GeminiSummarizer) Summarize(ctx context.Context, messages []string, targetWords int) (string, error) {
	prompt := summarizePrompt(messages, targetWords)
	content := genai.NewContentFromParts([]*genai.Part{genai.NewPartFromText(prompt)}, genai.RoleUser)

	var summary string
	err := withRetry(ctx, s.retry, func() error {
		resp, apiErr := s.client.Models.GenerateContent(ctx, s.model, []*genai.Content{content}, &genai.GenerateContentConfig{
			Temperature: genai.Ptr(float32(0.3)),
		})
		if apiErr != nil {
			return apiErr
		}
		summary = resp.Text()
		if summary == "" {
			return errUnavailable(nil, "gemini")
		}
		return nil
	})
	if err != nil {
		return "", errUnavailable(err, "gemini")
	}
	return summary, nil
}
