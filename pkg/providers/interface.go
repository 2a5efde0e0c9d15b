// Package providers defines the opaque Embed/Summarize collaborators
// spec.md treats as external, plus concrete adapters selected at startup by
// ProviderConfig.kind/name. VectorIndex is "optional" in practice because
// NullEmbedder/TemplateSummarizer are always available as a local fallback.
package providers

import (
	"context"

	cmerrors "github.com/convomem/convomem/pkg/errors"
)

// Embedder turns text into a fixed-dimension dense vector for VectorIndex.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimension() int
}

// Summarizer condenses a window of messages into a shorter text for
// ConversationSummary generation.
type Summarizer interface {
	Summarize(ctx context.Context, messages []string, targetWords int) (string, error)
}

// ConversationMessage is the minimal shape a Summarizer needs, decoupled
// from pkg/repositories.Message so providers doesn't import repositories.
type ConversationMessage struct {
	Role    string
	Content string
}

func errUnavailable(cause error, provider string) error {
	return cmerrors.Wrap(cmerrors.ExternalProviderUnavailable, cause, provider+" provider call failed")
}
