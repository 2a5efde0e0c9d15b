package repositories

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/convomem/convomem/pkg/cache"
	convomemdb "github.com/convomem/convomem/pkg/db"
	cmerrors "github.com/convomem/convomem/pkg/errors"
)

// MessageRepository provides CRUD over messages. Create relies on the
// messages_reject_deleted_conversation and messages_touch_conversation
// triggers (migration 006) plus messages_fts_insert (migration 002) for the
// invariants the repository layer would otherwise have to re-check and
// maintain by hand.
type MessageRepository struct {
	store *convomemdb.Store
	cache cache.Cache

	// OnCreate, if set, is invoked after a successful Create with the
	// persisted message, letting KnowledgeGraphService enqueue extraction
	// without MessageRepository depending on it directly.
	OnCreate func(ctx context.Context, m Message)

	// OnDelete, if set, is invoked after a successful Delete with the
	// deleted message's id, letting KnowledgeGraphService garbage-collect
	// the mentions and entities that message owned.
	OnDelete func(ctx context.Context, messageID string)
}

// NewMessageRepository binds a repository to a store and the shared query
// cache; cache may be nil to disable caching.
func NewMessageRepository(store *convomemdb.Store, c cache.Cache) *MessageRepository {
	return &MessageRepository{store: store, cache: c}
}

// Create inserts a message. Orphan conversationId and self-referencing
// parentMessageId are rejected by foreign-key and CHECK constraints
// respectively; Create maps both to Validation/NotFound before hitting the
// database so the caller gets a precise error.
func (r *MessageRepository) Create(ctx context.Context, m Message) error {
	if strings.TrimSpace(m.Content) == "" {
		return cmerrors.Validationf("content", "must not be empty")
	}
	if m.ParentMessageID != nil && *m.ParentMessageID == m.ID {
		return cmerrors.Validationf("parentMessageId", "must not reference itself")
	}
	if len(m.Metadata) == 0 {
		m.Metadata = json.RawMessage(`{}`)
	}

	if _, err := (&ConversationRepository{store: r.store}).FindById(ctx, m.ConversationID); err != nil {
		if cmerrors.Is(err, cmerrors.NotFound) {
			return cmerrors.Wrap(cmerrors.Validation, err, "conversationId does not reference an existing conversation")
		}
		return err
	}

	_, err := r.store.Exec(ctx, `
		INSERT INTO messages (id, conversation_id, role, content, created_at, parent_message_id, metadata, embedding)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, m.ID, m.ConversationID, string(m.Role), m.Content, m.CreatedAt, m.ParentMessageID, string(m.Metadata), m.Embedding)
	if err != nil {
		return cmerrors.Wrap(cmerrors.Internal, err, "failed to create message")
	}
	if r.cache != nil {
		r.cache.Invalidate("messages")
		r.cache.Invalidate("conversations")
	}
	if r.OnCreate != nil {
		r.OnCreate(ctx, m)
	}
	return nil
}

// FindByConversationId returns messages for a conversation ordered by
// createdAt ascending, optionally bounded by a key-set cursor on either
// side so pagination stays stable under concurrent inserts.
func (r *MessageRepository) FindByConversationId(ctx context.Context, conversationID string, limit int, beforeID, afterID *string) ([]Message, error) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 1000 {
		limit = 1000
	}

	query := `SELECT m.id, m.conversation_id, m.role, m.content, m.created_at, m.parent_message_id, m.metadata, m.embedding
		FROM messages m WHERE m.conversation_id = ?`
	args := []any{conversationID}

	if beforeID != nil {
		query += ` AND m.created_at < (SELECT created_at FROM messages WHERE id = ?)`
		args = append(args, *beforeID)
	}
	if afterID != nil {
		query += ` AND m.created_at > (SELECT created_at FROM messages WHERE id = ?)`
		args = append(args, *afterID)
	}
	query += ` ORDER BY m.created_at ASC LIMIT ?`
	args = append(args, limit)

	rows, err := r.store.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		var m Message
		if err := rows.StructScan(&m); err != nil {
			return nil, cmerrors.Wrap(cmerrors.Internal, err, "failed to scan message")
		}
		out = append(out, m)
	}
	return out, nil
}

// FindByID loads a single message, used by SearchEngine to resolve the
// createdAt tie-break field for a scored hit.
func (r *MessageRepository) FindByID(ctx context.Context, id string) (Message, error) {
	var m Message
	rows, err := r.store.Query(ctx, `
		SELECT id, conversation_id, role, content, created_at, parent_message_id, metadata, embedding
		FROM messages WHERE id = ?
	`, id)
	if err != nil {
		return m, err
	}
	defer rows.Close()
	if !rows.Next() {
		return m, cmerrors.NotFoundf("message", id)
	}
	if err := rows.StructScan(&m); err != nil {
		return m, cmerrors.Wrap(cmerrors.Internal, err, "failed to scan message")
	}
	return m, nil
}

// Count returns the number of messages in a conversation.
func (r *MessageRepository) Count(ctx context.Context, conversationID string) (int, error) {
	var n int
	if err := r.store.DB().GetContext(ctx, &n, `SELECT COUNT(*) FROM messages WHERE conversation_id = ?`, conversationID); err != nil {
		return 0, cmerrors.Wrap(cmerrors.Internal, err, "failed to count messages")
	}
	return n, nil
}

// DeleteByConversation removes every message belonging to a conversation.
// Nothing in this repository calls it; ConversationRepository.Delete relies
// on the foreign-key cascade instead. Unlike Delete, this does not run entity garbage
// collection: a conversation delete orphans the mentions those messages
// owned instead (see ConversationRepository.Delete), so the mentions and
// any Entity they reference survive with their mention_count untouched.
func (r *MessageRepository) DeleteByConversation(ctx context.Context, conversationID string) error {
	_, err := r.store.Exec(ctx, `DELETE FROM messages WHERE conversation_id = ?`, conversationID)
	if err != nil {
		return cmerrors.Wrap(cmerrors.Internal, err, "failed to delete messages")
	}
	if r.cache != nil {
		r.cache.Invalidate("messages")
	}
	return nil
}

// Delete removes a single message outright. OnDelete runs first, while the
// message row (and therefore the entity_mentions rows still pointing at it)
// still exists, so KnowledgeGraphService can delete those mentions and
// garbage-collect any Entity they leave at zero mentions before the
// message's own row — and the foreign key's ON DELETE SET NULL action on
// whatever mentions OnDelete didn't already remove — takes effect. This is
// the per-message ownership rule that DeleteByConversation's bulk path
// deliberately does not apply.
func (r *MessageRepository) Delete(ctx context.Context, id string) error {
	if r.OnDelete != nil {
		r.OnDelete(ctx, id)
	}
	res, err := r.store.Exec(ctx, `DELETE FROM messages WHERE id = ?`, id)
	if err != nil {
		return cmerrors.Wrap(cmerrors.Internal, err, "failed to delete message")
	}
	if err := requireRowsAffected(res, "message", id); err != nil {
		return err
	}
	if r.cache != nil {
		r.cache.Invalidate("messages")
		r.cache.Invalidate("conversations")
	}
	return nil
}
