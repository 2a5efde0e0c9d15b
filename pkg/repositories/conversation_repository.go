package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/convomem/convomem/pkg/cache"
	convomemdb "github.com/convomem/convomem/pkg/db"
	cmerrors "github.com/convomem/convomem/pkg/errors"
	"github.com/gobwas/glob"
	"github.com/pkg/errors"
)

// ConversationRepository provides CRUD and range queries over conversations.
// Writes invalidate the "conversations" cache tag.
type ConversationRepository struct {
	store *convomemdb.Store
	cache cache.Cache
}

// NewConversationRepository binds a repository to a store and the shared
// query cache; cache may be nil to disable caching for this repository.
func NewConversationRepository(store *convomemdb.Store, c cache.Cache) *ConversationRepository {
	return &ConversationRepository{store: store, cache: c}
}

// Create inserts a new conversation row. createdAt must be <= updatedAt.
func (r *ConversationRepository) Create(ctx context.Context, c Conversation) error {
	if c.CreatedAt > c.UpdatedAt {
		return cmerrors.Validationf("updatedAt", "must be >= createdAt")
	}
	if len(c.Metadata) == 0 {
		c.Metadata = json.RawMessage(`{}`)
	}
	_, err := r.store.Exec(ctx, `
		INSERT INTO conversations (id, created_at, updated_at, title, metadata, deleted_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, c.ID, c.CreatedAt, c.UpdatedAt, c.Title, string(c.Metadata), c.DeletedAt)
	if err != nil {
		return cmerrors.Wrap(cmerrors.Internal, err, "failed to create conversation")
	}
	r.invalidate()
	return nil
}

// FindById loads a single conversation by id.
func (r *ConversationRepository) FindById(ctx context.Context, id string) (Conversation, error) {
	var c Conversation
	rows, err := r.store.Query(ctx, `
		SELECT id, created_at, updated_at, title, metadata, deleted_at
		FROM conversations WHERE id = ?
	`, id)
	if err != nil {
		return c, err
	}
	defer rows.Close()

	if !rows.Next() {
		return c, cmerrors.NotFoundf("conversation", id)
	}
	if err := rows.StructScan(&c); err != nil {
		return c, cmerrors.Wrap(cmerrors.Internal, err, "failed to scan conversation")
	}
	return c, nil
}

// FindByDateRange returns conversations whose createdAt falls in [start,end],
// newest first, paginated.
func (r *ConversationRepository) FindByDateRange(ctx context.Context, start, end int64, limit, offset int) (Paginated[Conversation], error) {
	if start > end {
		return Paginated[Conversation]{}, cmerrors.Validationf("start/end", "start must be <= end")
	}
	return r.query(ctx, `WHERE created_at BETWEEN ? AND ?`, []any{start, end}, limit, offset)
}

// FindAll returns conversations ordered by orderBy (created_at or
// updated_at) in the given direction, paginated.
func (r *ConversationRepository) FindAll(ctx context.Context, limit, offset int, orderBy, dir string) (Paginated[Conversation], error) {
	switch orderBy {
	case "created_at", "updated_at":
	default:
		return Paginated[Conversation]{}, cmerrors.Validationf("orderBy", "must be created_at or updated_at")
	}
	switch dir {
	case "ASC", "DESC":
	default:
		return Paginated[Conversation]{}, cmerrors.Validationf("dir", "must be ASC or DESC")
	}
	return r.queryOrdered(ctx, "", nil, orderBy, dir, limit, offset)
}

// FindByTitlePattern returns conversations whose title matches a shell-style
// glob pattern (e.g. "project-*", "*[Ss]tandup*"), newest-updated first,
// paginated. Matching happens in-process rather than in SQL since glob
// syntax ('*', '?', character classes) has no direct SQLite equivalent;
// conversations are capped at 5000 candidates, ordered before filtering so
// the page returned is still deterministic.
func (r *ConversationRepository) FindByTitlePattern(ctx context.Context, pattern string, limit, offset int) (Paginated[Conversation], error) {
	g, err := glob.Compile(pattern)
	if err != nil {
		return Paginated[Conversation]{}, cmerrors.Validationf("titlePattern", "invalid glob pattern: %v", err)
	}
	if limit <= 0 {
		limit = 50
	}
	if limit > 1000 {
		limit = 1000
	}

	rows, err := r.store.Query(ctx, `
		SELECT id, created_at, updated_at, title, metadata, deleted_at
		FROM conversations ORDER BY updated_at DESC LIMIT 5000
	`)
	if err != nil {
		return Paginated[Conversation]{}, err
	}
	defer rows.Close()

	var matched []Conversation
	for rows.Next() {
		var c Conversation
		if err := rows.StructScan(&c); err != nil {
			return Paginated[Conversation]{}, cmerrors.Wrap(cmerrors.Internal, err, "failed to scan conversation")
		}
		if c.Title != nil && g.Match(*c.Title) {
			matched = append(matched, c)
		}
	}

	total := len(matched)
	if offset >= total {
		return Paginated[Conversation]{Items: nil, Total: total, Limit: limit, Offset: offset}, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return Paginated[Conversation]{Items: matched[offset:end], Total: total, Limit: limit, Offset: offset}, nil
}

func (r *ConversationRepository) query(ctx context.Context, where string, args []any, limit, offset int) (Paginated[Conversation], error) {
	return r.queryOrdered(ctx, where, args, "created_at", "DESC", limit, offset)
}

func (r *ConversationRepository) queryOrdered(ctx context.Context, where string, args []any, orderBy, dir string, limit, offset int) (Paginated[Conversation], error) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 1000 {
		limit = 1000
	}
	countQuery := "SELECT COUNT(*) FROM conversations " + where
	var total int
	countArgs := make([]any, len(args))
	copy(countArgs, args)
	if err := r.store.DB().GetContext(ctx, &total, countQuery, countArgs...); err != nil {
		return Paginated[Conversation]{}, cmerrors.Wrap(cmerrors.Internal, err, "failed to count conversations")
	}

	query := fmt.Sprintf(`
		SELECT id, created_at, updated_at, title, metadata, deleted_at
		FROM conversations %s
		ORDER BY %s %s
		LIMIT ? OFFSET ?
	`, where, orderBy, dir)
	rows, err := r.store.Query(ctx, query, append(append([]any{}, args...), limit, offset)...)
	if err != nil {
		return Paginated[Conversation]{}, err
	}
	defer rows.Close()

	var items []Conversation
	for rows.Next() {
		var c Conversation
		if err := rows.StructScan(&c); err != nil {
			return Paginated[Conversation]{}, cmerrors.Wrap(cmerrors.Internal, err, "failed to scan conversation")
		}
		items = append(items, c)
	}
	return Paginated[Conversation]{Items: items, Total: total, Limit: limit, Offset: offset}, nil
}

// UpdateMetadata replaces a conversation's title and metadata, advancing
// updatedAt to now.
func (r *ConversationRepository) UpdateMetadata(ctx context.Context, id string, title *string, metadata json.RawMessage, now int64) error {
	res, err := r.store.Exec(ctx, `
		UPDATE conversations SET title = ?, metadata = ?, updated_at = MAX(updated_at, ?)
		WHERE id = ?
	`, title, string(metadata), now, id)
	if err != nil {
		return cmerrors.Wrap(cmerrors.Internal, err, "failed to update conversation metadata")
	}
	if err := requireRowsAffected(res, "conversation", id); err != nil {
		return err
	}
	r.invalidate()
	return nil
}

// Delete removes a conversation. If permanent, the row and its owned
// children (messages, summaries) are hard-deleted by cascade; any
// EntityMention that pointed at one of those messages is orphaned rather
// than deleted (message_id set to NULL by the entity_mentions foreign key,
// entity_id and the detection provenance retained), since a bulk
// conversation delete must not silently garbage-collect Entities that may
// still be relevant elsewhere. A single Message's own delete, by contrast,
// does run that garbage collection (see MessageRepository.Delete).
// Otherwise deleted_at is set and the row is retained.
func (r *ConversationRepository) Delete(ctx context.Context, id string, permanent bool, now int64) error {
	var res sql.Result
	var err error
	if permanent {
		res, err = r.store.Exec(ctx, `DELETE FROM conversations WHERE id = ?`, id)
	} else {
		res, err = r.store.Exec(ctx, `UPDATE conversations SET deleted_at = ? WHERE id = ? AND deleted_at IS NULL`, now, id)
	}
	if err != nil {
		return cmerrors.Wrap(cmerrors.Internal, errors.Wrap(err, "delete failed"), "failed to delete conversation")
	}
	if err := requireRowsAffected(res, "conversation", id); err != nil {
		return err
	}
	r.invalidate()
	return nil
}

func (r *ConversationRepository) invalidate() {
	if r.cache != nil {
		r.cache.Invalidate("conversations")
	}
}

func requireRowsAffected(res sql.Result, kind, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return cmerrors.Wrap(cmerrors.Internal, err, "failed to read rows affected")
	}
	if n == 0 {
		return cmerrors.NotFoundf(kind, id)
	}
	return nil
}
