package tools

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/invopop/jsonschema"

	cmerrors "github.com/convomem/convomem/pkg/errors"
	"github.com/convomem/convomem/pkg/repositories"
)

// now is overridable in tests.
var now = func() int64 { return timeNowMs() }

// SaveMessageTool persists one message, creating its parent conversation on
// first use if conversationId names one that doesn't yet exist.
type SaveMessageTool struct {
	Conversations *repositories.ConversationRepository
	Messages      *repositories.MessageRepository
}

type SaveMessageInput struct {
	ConversationID  string  `json:"conversationId" jsonschema:"required"`
	Role            string  `json:"role" jsonschema:"required,enum=user,enum=assistant,enum=system"`
	Content         string  `json:"content" jsonschema:"required"`
	ParentMessageID *string `json:"parentMessageId,omitempty"`
}

func (SaveMessageTool) Name() string { return "save_message" }
func (SaveMessageTool) Description() string {
	return "Persist one message into a conversation, creating the conversation if it does not already exist."
}
func (SaveMessageTool) InputSchema() *jsonschema.Schema { return GenerateSchema[SaveMessageInput]() }

func (t *SaveMessageTool) Run(ctx context.Context, raw json.RawMessage) (any, error) {
	var in SaveMessageInput
	if err := json.Unmarshal(raw, &in); err != nil {
		return nil, cmerrors.Validationf("input", "%v", err)
	}

	at := now()
	if _, err := t.Conversations.FindById(ctx, in.ConversationID); err != nil {
		if !cmerrors.Is(err, cmerrors.NotFound) {
			return nil, err
		}
		if err := t.Conversations.Create(ctx, repositories.Conversation{
			ID: in.ConversationID, CreatedAt: at, UpdatedAt: at,
		}); err != nil {
			return nil, err
		}
	}

	msg := repositories.Message{
		ID:              uuid.NewString(),
		ConversationID:  in.ConversationID,
		Role:            repositories.Role(in.Role),
		Content:         in.Content,
		CreatedAt:       at,
		ParentMessageID: in.ParentMessageID,
		Metadata:        json.RawMessage(`{}`),
	}
	if err := t.Messages.Create(ctx, msg); err != nil {
		return nil, err
	}
	return msg, nil
}

// GetConversationTool loads one conversation's messages.
type GetConversationTool struct {
	Messages *repositories.MessageRepository
}

type GetConversationInput struct {
	ConversationID string  `json:"conversationId" jsonschema:"required"`
	Limit          int     `json:"limit,omitempty"`
	BeforeID       *string `json:"beforeId,omitempty"`
	AfterID        *string `json:"afterId,omitempty"`
}

func (GetConversationTool) Name() string { return "get_conversation" }
func (GetConversationTool) Description() string {
	return "List messages in a conversation, oldest first, optionally paginated around a message id."
}
func (GetConversationTool) InputSchema() *jsonschema.Schema {
	return GenerateSchema[GetConversationInput]()
}

func (t *GetConversationTool) Run(ctx context.Context, raw json.RawMessage) (any, error) {
	var in GetConversationInput
	if err := json.Unmarshal(raw, &in); err != nil {
		return nil, cmerrors.Validationf("input", "%v", err)
	}
	return t.Messages.FindByConversationId(ctx, in.ConversationID, in.Limit, in.BeforeID, in.AfterID)
}

// GetConversationsTool lists conversations, paginated.
type GetConversationsTool struct {
	Conversations *repositories.ConversationRepository
}

type GetConversationsInput struct {
	Limit   int    `json:"limit,omitempty"`
	Offset  int    `json:"offset,omitempty"`
	OrderBy string `json:"orderBy,omitempty" jsonschema:"enum=created_at,enum=updated_at"`
	Dir     string `json:"dir,omitempty" jsonschema:"enum=ASC,enum=DESC"`

	// TitlePattern, if set, restricts the listing to conversations whose
	// title matches a shell-style glob ("project-*", "*standup*") instead
	// of ordering the full table.
	TitlePattern string `json:"titlePattern,omitempty"`
}

func (GetConversationsTool) Name() string { return "get_conversations" }
func (GetConversationsTool) Description() string {
	return "List conversations ordered by creation or update time, paginated; optionally restrict to titles matching a glob pattern."
}
func (GetConversationsTool) InputSchema() *jsonschema.Schema {
	return GenerateSchema[GetConversationsInput]()
}

func (t *GetConversationsTool) Run(ctx context.Context, raw json.RawMessage) (any, error) {
	var in GetConversationsInput
	if err := json.Unmarshal(raw, &in); err != nil {
		return nil, cmerrors.Validationf("input", "%v", err)
	}
	if in.TitlePattern != "" {
		return t.Conversations.FindByTitlePattern(ctx, in.TitlePattern, in.Limit, in.Offset)
	}
	if in.OrderBy == "" {
		in.OrderBy = "updated_at"
	}
	if in.Dir == "" {
		in.Dir = "DESC"
	}
	return t.Conversations.FindAll(ctx, in.Limit, in.Offset, in.OrderBy, in.Dir)
}

// DeleteConversationTool soft- or hard-deletes a conversation.
type DeleteConversationTool struct {
	Conversations *repositories.ConversationRepository
}

type DeleteConversationInput struct {
	ConversationID string `json:"conversationId" jsonschema:"required"`
	Permanent      bool   `json:"permanent,omitempty"`
}

func (DeleteConversationTool) Name() string { return "delete_conversation" }
func (DeleteConversationTool) Description() string {
	return "Delete a conversation, soft by default or permanently when requested."
}
func (DeleteConversationTool) InputSchema() *jsonschema.Schema {
	return GenerateSchema[DeleteConversationInput]()
}

func (t *DeleteConversationTool) Run(ctx context.Context, raw json.RawMessage) (any, error) {
	var in DeleteConversationInput
	if err := json.Unmarshal(raw, &in); err != nil {
		return nil, cmerrors.Validationf("input", "%v", err)
	}
	if err := t.Conversations.Delete(ctx, in.ConversationID, in.Permanent, now()); err != nil {
		return nil, err
	}
	return map[string]any{"deleted": true, "conversationId": in.ConversationID, "permanent": in.Permanent}, nil
}
