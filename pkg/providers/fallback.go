package providers

import (
	"context"
	"fmt"
	"hash/fnv"
	"strings"
)

// NullEmbedder is the zero-dependency Embedder used when no external
// embedding provider is configured, or when enableVectorIndex=false. It
// produces a deterministic, low-quality hash-bucketed vector rather than an
// error so VectorIndex can still be exercised (e.g. in tests) without a live
// API key; SearchEngine treats a NullEmbedder-backed index the same as any
// other, it just won't carry real semantic structure.
type NullEmbedder struct {
	dimension int
}

// NewNullEmbedder builds a NullEmbedder of the given dimension.
func NewNullEmbedder(dimension int) *NullEmbedder {
	if dimension <= 0 {
		dimension = 64
	}
	return &NullEmbedder{dimension: dimension}
}

// Embed hashes each token of text into one of the vector's buckets.
func (n *NullEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, n.dimension)
	for _, tok := range strings.Fields(strings.ToLower(text)) {
		h := fnv.New32a()
		h.Write([]byte(tok))
		vec[int(h.Sum32())%n.dimension] += 1
	}
	return vec, nil
}

// Dimension returns the configured vector width.
func (n *NullEmbedder) Dimension() int { return n.dimension }

// TemplateSummarizer is the zero-dependency Summarizer fallback: it builds a
// deterministic extractive summary (the first sentence of each message, in
// order, until about targetWords words are collected) rather than calling
// an LLM.
type TemplateSummarizer struct{}

// NewTemplateSummarizer builds a TemplateSummarizer.
func NewTemplateSummarizer() *TemplateSummarizer { return &TemplateSummarizer{} }

// Summarize extracts lead sentences from the window until targetWords is
// roughly reached.
func (TemplateSummarizer) Summarize(_ context.Context, messages []string, targetWords int) (string, error) {
	if targetWords <= 0 {
		targetWords = 50
	}
	var b strings.Builder
	words := 0
	for _, m := range messages {
		sentence := firstSentence(m)
		if sentence == "" {
			continue
		}
		b.WriteString(sentence)
		b.WriteString(" ")
		words += len(strings.Fields(sentence))
		if words >= targetWords {
			break
		}
	}
	return strings.TrimSpace(b.String()), nil
}

func firstSentence(text string) string {
	text = strings.TrimSpace(text)
	if idx := strings.IndexAny(text, ".!?"); idx >= 0 {
		return text[:idx+1]
	}
	return text
}

func summarizePrompt(messages []string, targetWords int) string {
	return fmt.Sprintf(
		"Summarize the following conversation in about %d words, preserving decisions and action items:\n\n%s",
		targetWords, strings.Join(messages, "\n"),
	)
}
