package tools

import (
	"context"
	"encoding/json"

	"github.com/invopop/jsonschema"

	"github.com/convomem/convomem/pkg/contextassembler"
	cmerrors "github.com/convomem/convomem/pkg/errors"
	"github.com/convomem/convomem/pkg/providers"
	"github.com/convomem/convomem/pkg/repositories"
)

// GetContextSummaryTool returns the most recent summary at the requested
// level, generating and persisting one on first request.
type GetContextSummaryTool struct {
	Summaries  *repositories.SummaryRepository
	Messages   *repositories.MessageRepository
	Summarizer providers.Summarizer
}

type GetContextSummaryInput struct {
	ConversationID string `json:"conversationId" jsonschema:"required"`
	Level          string `json:"level,omitempty" jsonschema:"enum=brief,enum=standard,enum=detailed,enum=full"`
}

func (GetContextSummaryTool) Name() string { return "get_context_summary" }
func (GetContextSummaryTool) Description() string {
	return "Return the most recent summary of a conversation at the requested granularity, generating one if none exists yet."
}
func (GetContextSummaryTool) InputSchema() *jsonschema.Schema { return GenerateSchema[GetContextSummaryInput]() }

func (t *GetContextSummaryTool) Run(ctx context.Context, raw json.RawMessage) (any, error) {
	var in GetContextSummaryInput
	if err := json.Unmarshal(raw, &in); err != nil {
		return nil, cmerrors.Validationf("input", "%v", err)
	}
	level := repositories.SummaryLevel(in.Level)
	if level == "" {
		level = repositories.SummaryStandard
	}

	existing, err := t.Summaries.LatestFor(ctx, in.ConversationID, level)
	if err == nil {
		return existing, nil
	}
	if !cmerrors.Is(err, cmerrors.NotFound) {
		return nil, err
	}

	messages, err := t.Messages.FindByConversationId(ctx, in.ConversationID, 200, nil, nil)
	if err != nil {
		return nil, err
	}
	if len(messages) == 0 {
		return nil, cmerrors.NotFoundf("conversation_summary", in.ConversationID)
	}

	targetWords := targetWordsForLevel(level)
	lines := make([]string, 0, len(messages))
	for _, m := range messages {
		lines = append(lines, string(m.Role)+": "+m.Content)
	}
	text, err := t.Summarizer.Summarize(ctx, lines, targetWords)
	if err != nil {
		return nil, err
	}

	start, end := messages[0].ID, messages[len(messages)-1].ID
	return t.Summaries.Upsert(ctx, repositories.ConversationSummary{
		ConversationID: in.ConversationID,
		Level:          level,
		Text:           text,
		TokenCount:     ApproxTokenizer{}.Tokenize(text, ""),
		Provider:       "convomem",
		Model:          "auto",
		GeneratedAt:    timeNowMs(),
		MessageCount:   len(messages),
		StartMessageID: &start,
		EndMessageID:   &end,
	})
}

func targetWordsForLevel(level repositories.SummaryLevel) int {
	switch level {
	case repositories.SummaryBrief:
		return 30
	case repositories.SummaryDetailed:
		return 300
	case repositories.SummaryFull:
		return 800
	default:
		return 120
	}
}

// ApproxTokenizer re-exports contextassembler's default heuristic so tools
// outside that package can estimate token counts without a circular import.
type ApproxTokenizer = contextassembler.ApproxTokenizer

// GetRelevantSnippetsTool returns the topically highest-scoring message
// snippets for a query under a token budget.
type GetRelevantSnippetsTool struct{ Assembler *contextassembler.Assembler }

type GetRelevantSnippetsInput struct {
	Query          string `json:"query" jsonschema:"required"`
	ConversationID string `json:"conversationId,omitempty"`
	MaxTokens      int    `json:"maxTokens,omitempty"`
}

func (GetRelevantSnippetsTool) Name() string        { return "get_relevant_snippets" }
func (GetRelevantSnippetsTool) Description() string { return "Return the highest-scoring message snippets for a query within a token budget." }
func (GetRelevantSnippetsTool) InputSchema() *jsonschema.Schema { return GenerateSchema[GetRelevantSnippetsInput]() }

func (t *GetRelevantSnippetsTool) Run(ctx context.Context, raw json.RawMessage) (any, error) {
	var in GetRelevantSnippetsInput
	if err := json.Unmarshal(raw, &in); err != nil {
		return nil, cmerrors.Validationf("input", "%v", err)
	}
	maxTokens := in.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 2000
	}
	var convIDs []string
	if in.ConversationID != "" {
		convIDs = []string{in.ConversationID}
	}
	return t.Assembler.Assemble(ctx, contextassembler.Options{
		Query:           in.Query,
		MaxTokens:       maxTokens,
		Strategy:        contextassembler.StrategyTopical,
		ConversationIDs: convIDs,
	})
}

// GetProgressiveDetailTool drills from a brief summary down to raw messages
// as the caller asks for more detail.
type GetProgressiveDetailTool struct {
	Summaries *repositories.SummaryRepository
	Messages  *repositories.MessageRepository
}

type GetProgressiveDetailInput struct {
	ConversationID string `json:"conversationId" jsonschema:"required"`
	Level          string `json:"level" jsonschema:"required,enum=brief,enum=standard,enum=detailed,enum=full"`
}

func (GetProgressiveDetailTool) Name() string        { return "get_progressive_detail" }
func (GetProgressiveDetailTool) Description() string { return "Return conversation content at an increasing level of detail, from a brief summary up to raw messages." }
func (GetProgressiveDetailTool) InputSchema() *jsonschema.Schema { return GenerateSchema[GetProgressiveDetailInput]() }

func (t *GetProgressiveDetailTool) Run(ctx context.Context, raw json.RawMessage) (any, error) {
	var in GetProgressiveDetailInput
	if err := json.Unmarshal(raw, &in); err != nil {
		return nil, cmerrors.Validationf("input", "%v", err)
	}
	level := repositories.SummaryLevel(in.Level)
	if level == repositories.SummaryFull {
		return t.Messages.FindByConversationId(ctx, in.ConversationID, 1000, nil, nil)
	}
	if s, err := t.Summaries.LatestFor(ctx, in.ConversationID, level); err == nil {
		return s, nil
	}
	return t.Summaries.ListFor(ctx, in.ConversationID)
}
