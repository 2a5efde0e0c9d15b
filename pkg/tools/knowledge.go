package tools

import (
	"context"
	"encoding/json"

	"github.com/invopop/jsonschema"

	cmerrors "github.com/convomem/convomem/pkg/errors"
	"github.com/convomem/convomem/pkg/knowledge"
	"github.com/convomem/convomem/pkg/repositories"
)

// GetEntityHistoryTool returns every mention of one entity, optionally
// bounded to a time range.
type GetEntityHistoryTool struct{ Knowledge *knowledge.Service }

type GetEntityHistoryInput struct {
	Entity  string `json:"entity" jsonschema:"required"`
	Type    string `json:"type,omitempty" jsonschema:"enum=person,enum=organization,enum=product,enum=technical,enum=location,enum=concept,enum=event"`
	SinceMs int64  `json:"sinceMs,omitempty"`
	UntilMs int64  `json:"untilMs,omitempty"`
}

func (GetEntityHistoryTool) Name() string        { return "get_entity_history" }
func (GetEntityHistoryTool) Description() string { return "Return every mention of one entity across all conversations, most recent first, optionally bounded by time." }
func (GetEntityHistoryTool) InputSchema() *jsonschema.Schema { return GenerateSchema[GetEntityHistoryInput]() }

func (t *GetEntityHistoryTool) Run(ctx context.Context, raw json.RawMessage) (any, error) {
	var in GetEntityHistoryInput
	if err := json.Unmarshal(raw, &in); err != nil {
		return nil, cmerrors.Validationf("input", "%v", err)
	}
	entity, history, err := t.Knowledge.EntityHistory(ctx, in.Entity, repositories.EntityType(in.Type), knowledge.TimeRange{
		SinceMs: in.SinceMs,
		UntilMs: in.UntilMs,
	})
	if err != nil {
		return nil, err
	}
	return map[string]any{"entity": entity, "history": history}, nil
}

// FindRelatedConversationsTool finds conversations that mention any of a
// given set of entities, ranked by match count and recency.
type FindRelatedConversationsTool struct{ Knowledge *knowledge.Service }

type FindRelatedConversationsInput struct {
	EntityIDs []string `json:"entityIds" jsonschema:"required"`
	Limit     int      `json:"limit,omitempty"`
}

func (FindRelatedConversationsTool) Name() string        { return "find_related_conversations" }
func (FindRelatedConversationsTool) Description() string { return "Find conversations mentioning any of the given entities, ranked by match count then recency." }
func (FindRelatedConversationsTool) InputSchema() *jsonschema.Schema { return GenerateSchema[FindRelatedConversationsInput]() }

func (t *FindRelatedConversationsTool) Run(ctx context.Context, raw json.RawMessage) (any, error) {
	var in FindRelatedConversationsInput
	if err := json.Unmarshal(raw, &in); err != nil {
		return nil, cmerrors.Validationf("input", "%v", err)
	}
	if len(in.EntityIDs) == 0 {
		return nil, cmerrors.Validationf("entityIds", "must contain at least one id")
	}
	limit := in.Limit
	if limit <= 0 {
		limit = 10
	}
	return t.Knowledge.FindRelatedConversations(ctx, in.EntityIDs, limit)
}

// GetKnowledgeGraphTool walks the entity relationship graph outward from a
// starting entity.
type GetKnowledgeGraphTool struct{ Knowledge *knowledge.Service }

type GetKnowledgeGraphInput struct {
	EntityID    string  `json:"entityId" jsonschema:"required"`
	MaxDepth    int     `json:"maxDepth,omitempty"`
	MinStrength float64 `json:"minStrength,omitempty"`
}

func (GetKnowledgeGraphTool) Name() string        { return "get_knowledge_graph" }
func (GetKnowledgeGraphTool) Description() string { return "Walk the entity relationship graph outward from a starting entity, bounded by depth and minimum edge strength." }
func (GetKnowledgeGraphTool) InputSchema() *jsonschema.Schema { return GenerateSchema[GetKnowledgeGraphInput]() }

func (t *GetKnowledgeGraphTool) Run(ctx context.Context, raw json.RawMessage) (any, error) {
	var in GetKnowledgeGraphInput
	if err := json.Unmarshal(raw, &in); err != nil {
		return nil, cmerrors.Validationf("input", "%v", err)
	}
	maxDepth := in.MaxDepth
	if maxDepth <= 0 {
		maxDepth = 2
	}
	minStrength := in.MinStrength
	if minStrength <= 0 {
		minStrength = 0.1
	}
	return t.Knowledge.Traverse(ctx, in.EntityID, maxDepth, minStrength)
}
