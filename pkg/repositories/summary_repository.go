package repositories

import (
	"context"

	"github.com/convomem/convomem/pkg/cache"
	convomemdb "github.com/convomem/convomem/pkg/db"
	cmerrors "github.com/convomem/convomem/pkg/errors"
	"github.com/google/uuid"
)

// SummaryRepository provides upsert and lookup over conversation_summaries.
// Superseded summaries for the same (conversation, level) are retained, not
// overwritten; readers pick the most recent by generatedAt.
type SummaryRepository struct {
	store *convomemdb.Store
	cache cache.Cache
}

// NewSummaryRepository binds a repository to a store and the shared query cache.
func NewSummaryRepository(store *convomemdb.Store, c cache.Cache) *SummaryRepository {
	return &SummaryRepository{store: store, cache: c}
}

// Upsert inserts a new summary row (assigning an id if absent) rather than
// overwriting an older one, so multiple generations for the same level can
// coexist per spec.md's lifetime note.
func (r *SummaryRepository) Upsert(ctx context.Context, s ConversationSummary) (ConversationSummary, error) {
	if s.MessageCount > 1 && s.StartMessageID != nil && s.EndMessageID != nil && *s.StartMessageID == *s.EndMessageID {
		return s, cmerrors.Validationf("endMessageId", "must differ from startMessageId when messageCount > 1")
	}
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	_, err := r.store.Exec(ctx, `
		INSERT INTO conversation_summaries (
			id, conversation_id, level, text, token_count, provider, model,
			generated_at, message_count, start_message_id, end_message_id
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, s.ID, s.ConversationID, string(s.Level), s.Text, s.TokenCount, s.Provider, s.Model,
		s.GeneratedAt, s.MessageCount, s.StartMessageID, s.EndMessageID)
	if err != nil {
		return s, cmerrors.Wrap(cmerrors.Internal, err, "failed to upsert conversation summary")
	}
	if r.cache != nil {
		r.cache.Invalidate("summaries")
	}
	return s, nil
}

// LatestFor returns the most recently generated summary at the given level
// for a conversation.
func (r *SummaryRepository) LatestFor(ctx context.Context, conversationID string, level SummaryLevel) (ConversationSummary, error) {
	var s ConversationSummary
	rows, err := r.store.Query(ctx, `
		SELECT id, conversation_id, level, text, token_count, provider, model,
		       generated_at, message_count, start_message_id, end_message_id
		FROM conversation_summaries
		WHERE conversation_id = ? AND level = ?
		ORDER BY generated_at DESC LIMIT 1
	`, conversationID, string(level))
	if err != nil {
		return s, err
	}
	defer rows.Close()

	if !rows.Next() {
		return s, cmerrors.NotFoundf("conversation_summary", conversationID+":"+string(level))
	}
	if err := rows.StructScan(&s); err != nil {
		return s, cmerrors.Wrap(cmerrors.Internal, err, "failed to scan conversation summary")
	}
	return s, nil
}

// ListFor returns every summary generation recorded for a conversation,
// newest first.
func (r *SummaryRepository) ListFor(ctx context.Context, conversationID string) ([]ConversationSummary, error) {
	rows, err := r.store.Query(ctx, `
		SELECT id, conversation_id, level, text, token_count, provider, model,
		       generated_at, message_count, start_message_id, end_message_id
		FROM conversation_summaries
		WHERE conversation_id = ?
		ORDER BY generated_at DESC
	`, conversationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ConversationSummary
	for rows.Next() {
		var s ConversationSummary
		if err := rows.StructScan(&s); err != nil {
			return nil, cmerrors.Wrap(cmerrors.Internal, err, "failed to scan conversation summary")
		}
		out = append(out, s)
	}
	return out, nil
}
