package providers

import (
	"context"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIEmbedder implements Embedder against OpenAI's embeddings endpoint.
type OpenAIEmbedder struct {
	client    *openai.Client
	model     string
	dimension int
	retry     RetryPolicy
}

// NewOpenAIEmbedder builds an OpenAIEmbedder. model defaults to
// text-embedding-3-small (1536 dimensions) when empty.
func NewOpenAIEmbedder(apiKey, model string, dimension int) *OpenAIEmbedder {
	if model == "" {
		model = string(openai.SmallEmbedding3)
	}
	if dimension <= 0 {
		dimension = 1536
	}
	return &OpenAIEmbedder{
		client:    openai.NewClient(apiKey),
		model:     model,
		dimension: dimension,
		retry:     DefaultRetryPolicy,
	}
}

// Embed calls the OpenAI embeddings API, retrying transient failures.
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	var vector []float32
	err := withRetry(ctx, e.retry, func() error {
		resp, apiErr := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequestStrings{
			Input: []string{text},
			Model: openai.EmbeddingModel(e.model),
		})
		if apiErr != nil {
			return apiErr
		}
		if len(resp.Data) == 0 {
			return errUnavailable(nil, "openai")
		}
		vector = resp.Data[0].Embedding
		return nil
	})
	if err != nil {
		return nil, errUnavailable(err, "openai")
	}
	return vector, nil
}

// Dimension returns the configured embedding width.
func (e *OpenAIEmbedder) Dimension() int { return e.dimension }
