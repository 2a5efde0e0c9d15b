package providers

import (
	"context"
	"os"
	"strings"

	"github.com/convomem/convomem/pkg/repositories"
)

func apiKeyFromEnv(envVar *string) string {
	if envVar == nil || *envVar == "" {
		return ""
	}
	return os.Getenv(*envVar)
}

// NewEmbedder builds the Embedder named by cfg, falling back to
// NullEmbedder for kind=local or an unrecognized name so the caller never
// has to special-case "no embedder configured".
func NewEmbedder(ctx context.Context, cfg repositories.ProviderConfig) (Embedder, error) {
	switch {
	case cfg.Kind == repositories.ProviderLocal || cfg.Name == "":
		return NewNullEmbedder(0), nil
	case cfg.Name == "openai":
		return NewOpenAIEmbedder(apiKeyFromEnv(cfg.APIKeyEnv), cfg.ModelName, 0), nil
	case cfg.Name == "gemini":
		return NewGeminiEmbedder(ctx, apiKeyFromEnv(cfg.APIKeyEnv), cfg.ModelName, 0)
	default:
		return NewNullEmbedder(0), nil
	}
}

// NewSummarizer builds the Summarizer named by cfg, falling back to
// TemplateSummarizer for kind=local or an unrecognized name.
func NewSummarizer(ctx context.Context, cfg repositories.ProviderConfig) (Summarizer, error) {
	switch {
	case cfg.Kind == repositories.ProviderLocal || cfg.Name == "":
		return NewTemplateSummarizer(), nil
	case cfg.Name == "anthropic":
		return NewAnthropicSummarizer(apiKeyFromEnv(cfg.APIKeyEnv), cfg.ModelName), nil
	case cfg.Name == "gemini":
		return NewGeminiSummarizer(ctx, apiKeyFromEnv(cfg.APIKeyEnv), cfg.ModelName)
	case cfg.Name == "enterprise" && cfg.Endpoint != nil:
		clientIDEnv := strings.ToUpper(cfg.Name) + "_CLIENT_ID"
		clientSecretEnv := ""
		if cfg.APIKeyEnv != nil {
			clientSecretEnv = *cfg.APIKeyEnv
		}
		return NewEnterpriseSummarizer(*cfg.Endpoint, clientIDEnv, clientSecretEnv, cfg.ModelName), nil
	default:
		return NewTemplateSummarizer(), nil
	}
}
