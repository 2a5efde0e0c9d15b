package tools

import (
	"context"
	"encoding/json"

	"github.com/invopop/jsonschema"

	cmerrors "github.com/convomem/convomem/pkg/errors"
	"github.com/convomem/convomem/pkg/search"
)

type searchInputBase struct {
	Query          string `json:"query" jsonschema:"required"`
	ConversationID string `json:"conversationId,omitempty"`
	Limit          int    `json:"limit,omitempty"`
	Offset         int    `json:"offset,omitempty"`
}

// SearchMessagesTool runs the engine's auto strategy: fts for short/
// punctuation-heavy queries, hybrid otherwise when a vector index is
// available (fts when it is not).
type SearchMessagesTool struct{ Engine *search.Engine }

type SearchMessagesInput = searchInputBase

func (SearchMessagesTool) Name() string        { return "search_messages" }
func (SearchMessagesTool) Description() string { return "Search messages, letting the engine choose between full-text and hybrid strategy per query shape." }
func (SearchMessagesTool) InputSchema() *jsonschema.Schema { return GenerateSchema[SearchMessagesInput]() }

func (t *SearchMessagesTool) Run(ctx context.Context, raw json.RawMessage) (any, error) {
	return runSearch(ctx, t.Engine, raw, search.StrategyAuto)
}

// SemanticSearchTool forces vector-only search.
type SemanticSearchTool struct{ Engine *search.Engine }

type SemanticSearchInput = searchInputBase

func (SemanticSearchTool) Name() string        { return "semantic_search" }
func (SemanticSearchTool) Description() string { return "Search messages by embedding similarity only." }
func (SemanticSearchTool) InputSchema() *jsonschema.Schema { return GenerateSchema[SemanticSearchInput]() }

func (t *SemanticSearchTool) Run(ctx context.Context, raw json.RawMessage) (any, error) {
	return runSearch(ctx, t.Engine, raw, search.StrategySemantic)
}

// HybridSearchTool forces the fused fts+semantic strategy.
type HybridSearchTool struct{ Engine *search.Engine }

type HybridSearchInput = searchInputBase

func (HybridSearchTool) Name() string        { return "hybrid_search" }
func (HybridSearchTool) Description() string { return "Search messages with the weighted fusion of full-text and semantic scores." }
func (HybridSearchTool) InputSchema() *jsonschema.Schema { return GenerateSchema[HybridSearchInput]() }

func (t *HybridSearchTool) Run(ctx context.Context, raw json.RawMessage) (any, error) {
	return runSearch(ctx, t.Engine, raw, search.StrategyHybrid)
}

func runSearch(ctx context.Context, engine *search.Engine, raw json.RawMessage, strategy search.Strategy) (any, error) {
	var in searchInputBase
	if err := json.Unmarshal(raw, &in); err != nil {
		return nil, cmerrors.Validationf("input", "%v", err)
	}
	return engine.Search(ctx, in.Query, search.Options{
		Strategy:       strategy,
		ConversationID: in.ConversationID,
		Limit:          in.Limit,
		Offset:         in.Offset,
	})
}
