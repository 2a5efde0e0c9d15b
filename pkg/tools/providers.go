package tools

import (
	"context"
	"encoding/json"

	"github.com/invopop/jsonschema"

	cmerrors "github.com/convomem/convomem/pkg/errors"
	"github.com/convomem/convomem/pkg/repositories"
)

// ConfigureLLMProviderTool registers an LLM provider configuration. Active
// providers are read by the summarizer/embedder factories only at startup,
// so a new configuration takes effect on the next start.
type ConfigureLLMProviderTool struct {
	Providers *repositories.ProviderConfigRepository
}

type ConfigureLLMProviderInput struct {
	Name            string  `json:"name" jsonschema:"required"`
	Kind            string  `json:"kind" jsonschema:"required,enum=local,enum=external"`
	Endpoint        *string `json:"endpoint,omitempty"`
	APIKeyEnv       *string `json:"apiKeyEnv,omitempty"`
	ModelName       string  `json:"modelName" jsonschema:"required"`
	MaxTokens       int     `json:"maxTokens" jsonschema:"required"`
	Temperature     float64 `json:"temperature,omitempty"`
	IsActive        bool    `json:"isActive,omitempty"`
	Priority        int     `json:"priority,omitempty"`
	CostPer1kTokens float64 `json:"costPer1kTokens,omitempty"`
}

func (ConfigureLLMProviderTool) Name() string        { return "configure_llm_provider" }
func (ConfigureLLMProviderTool) Description() string { return "Register an LLM provider configuration; active providers are used for summarization and embedding from the next server start." }
func (ConfigureLLMProviderTool) InputSchema() *jsonschema.Schema { return GenerateSchema[ConfigureLLMProviderInput]() }

func (t *ConfigureLLMProviderTool) Run(ctx context.Context, raw json.RawMessage) (any, error) {
	var in ConfigureLLMProviderInput
	if err := json.Unmarshal(raw, &in); err != nil {
		return nil, cmerrors.Validationf("input", "%v", err)
	}
	return t.Providers.Create(ctx, repositories.ProviderConfig{
		Name:            in.Name,
		Kind:            repositories.ProviderKind(in.Kind),
		Endpoint:        in.Endpoint,
		APIKeyEnv:       in.APIKeyEnv,
		ModelName:       in.ModelName,
		MaxTokens:       in.MaxTokens,
		Temperature:     in.Temperature,
		IsActive:        in.IsActive,
		Priority:        in.Priority,
		CostPer1kTokens: in.CostPer1kTokens,
	})
}
