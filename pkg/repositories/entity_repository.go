package repositories

import (
	"context"

	"github.com/convomem/convomem/pkg/cache"
	convomemdb "github.com/convomem/convomem/pkg/db"
	cmerrors "github.com/convomem/convomem/pkg/errors"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// EntityRepository provides upsert-by-identity and lookup over entities and
// their per-message mentions.
type EntityRepository struct {
	store *convomemdb.Store
	cache cache.Cache
}

// NewEntityRepository binds a repository to a store and the shared query cache.
func NewEntityRepository(store *convomemdb.Store, c cache.Cache) *EntityRepository {
	return &EntityRepository{store: store, cache: c}
}

// UpsertByNormalized returns the id of the existing entity matching
// (normalizedName, type) if one exists, otherwise inserts a new row and
// returns its freshly assigned id.
func (r *EntityRepository) UpsertByNormalized(ctx context.Context, name, normalizedName string, typ EntityType, confidence float64, atMs int64) (string, error) {
	existing, err := r.FindByName(ctx, normalizedName, typ)
	if err == nil {
		return existing.ID, nil
	}
	if !cmerrors.Is(err, cmerrors.NotFound) {
		return "", err
	}

	id := uuid.NewString()
	_, err = r.store.Exec(ctx, `
		INSERT INTO entities (id, name, normalized_name, type, confidence_score, mention_count, first_seen_at, last_mentioned_at, metadata)
		VALUES (?, ?, ?, ?, ?, 0, ?, ?, '{}')
	`, id, name, normalizedName, string(typ), confidence, atMs, atMs)
	if err != nil {
		return "", cmerrors.Wrap(cmerrors.Internal, err, "failed to create entity")
	}
	if r.cache != nil {
		r.cache.Invalidate("entities")
	}
	return id, nil
}

// FindById loads a single entity by id.
func (r *EntityRepository) FindById(ctx context.Context, id string) (Entity, error) {
	return r.findOne(ctx, `WHERE id = ?`, id)
}

// FindByName loads a single entity by (normalizedName, type).
func (r *EntityRepository) FindByName(ctx context.Context, normalizedName string, typ EntityType) (Entity, error) {
	return r.findOne(ctx, `WHERE normalized_name = ? AND type = ?`, normalizedName, string(typ))
}

func (r *EntityRepository) findOne(ctx context.Context, where string, args ...any) (Entity, error) {
	var e Entity
	query := `SELECT id, name, normalized_name, type, confidence_score, mention_count, first_seen_at, last_mentioned_at, metadata FROM entities ` + where
	rows, err := r.store.Query(ctx, query, args...)
	if err != nil {
		return e, err
	}
	defer rows.Close()

	if !rows.Next() {
		return e, cmerrors.NotFoundf("entity", where)
	}
	if err := rows.StructScan(&e); err != nil {
		return e, cmerrors.Wrap(cmerrors.Internal, err, "failed to scan entity")
	}
	return e, nil
}

// IncrementMention bumps mention_count and advances last_mentioned_at for
// an entity. Nothing in this repository calls it: the
// entities_touch_last_mentioned trigger already does both for every
// inserted entity_mentions row.
func (r *EntityRepository) IncrementMention(ctx context.Context, id string, atMs int64) error {
	res, err := r.store.Exec(ctx, `
		UPDATE entities SET mention_count = mention_count + 1, last_mentioned_at = MAX(last_mentioned_at, ?)
		WHERE id = ?
	`, atMs, id)
	if err != nil {
		return cmerrors.Wrap(cmerrors.Internal, err, "failed to increment entity mention count")
	}
	if err := requireRowsAffected(res, "entity", id); err != nil {
		return err
	}
	if r.cache != nil {
		r.cache.Invalidate("entities")
	}
	return nil
}

// CreateMention inserts an entity_mentions row. The insert is idempotent by
// the table's (entity_id, message_id, start_offset) unique constraint: a
// duplicate mention is silently ignored via INSERT OR IGNORE so re-running
// extraction on the same message cannot double-count.
func (r *EntityRepository) CreateMention(ctx context.Context, m EntityMention) error {
	id := m.ID
	if id == "" {
		id = uuid.NewString()
	}
	_, err := r.store.Exec(ctx, `
		INSERT OR IGNORE INTO entity_mentions (id, entity_id, message_id, start_offset, end_offset, method, confidence)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, id, m.EntityID, m.MessageID, m.StartOffset, m.EndOffset, string(m.Method), m.Confidence)
	if err != nil {
		return cmerrors.Wrap(cmerrors.Internal, err, "failed to create entity mention")
	}
	if r.cache != nil {
		r.cache.Invalidate("entities")
	}
	return nil
}

// MentionsForEntity returns every mention of entityID within [since, until]
// (inclusive; untilMs <= 0 means no upper bound), most recent first.
func (r *EntityRepository) MentionsForEntity(ctx context.Context, entityID string, sinceMs, untilMs int64) ([]EntityMention, error) {
	query := `
		SELECT m.id, m.entity_id, m.message_id, m.start_offset, m.end_offset, m.method, m.confidence
		FROM entity_mentions m
		JOIN messages msg ON msg.id = m.message_id
		WHERE m.entity_id = ? AND msg.created_at >= ?
	`
	args := []any{entityID, sinceMs}
	if untilMs > 0 {
		query += ` AND msg.created_at <= ?`
		args = append(args, untilMs)
	}
	query += ` ORDER BY msg.created_at DESC`

	rows, err := r.store.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []EntityMention
	for rows.Next() {
		var m EntityMention
		if err := rows.StructScan(&m); err != nil {
			return nil, cmerrors.Wrap(cmerrors.Internal, err, "failed to scan entity mention")
		}
		out = append(out, m)
	}
	return out, nil
}

// GCMentionsForMessage implements the ownership rule for a Message's own
// delete: every entity_mentions row pointing at messageID is removed
// outright (not orphaned — that softer treatment is reserved for a
// Conversation's bulk permanent delete, which lets the foreign key's
// ON DELETE SET NULL action detach mentions instead), and each Entity that
// loses a mention has its mention_count decremented; an Entity whose
// mention_count reaches zero is deleted along with it, since nothing else
// in the graph refers to it anymore.
func (r *EntityRepository) GCMentionsForMessage(ctx context.Context, messageID string) error {
	err := r.store.Tx(ctx, func(tx *sqlx.Tx) error {
		var entityIDs []string
		if err := tx.SelectContext(ctx, &entityIDs, `SELECT DISTINCT entity_id FROM entity_mentions WHERE message_id = ?`, messageID); err != nil {
			return cmerrors.Wrap(cmerrors.Internal, err, "failed to list entities mentioned by message")
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM entity_mentions WHERE message_id = ?`, messageID); err != nil {
			return cmerrors.Wrap(cmerrors.Internal, err, "failed to delete message mentions")
		}
		for _, id := range entityIDs {
			if _, err := tx.ExecContext(ctx, `
				UPDATE entities SET mention_count = mention_count - 1 WHERE id = ? AND mention_count > 0
			`, id); err != nil {
				return cmerrors.Wrap(cmerrors.Internal, err, "failed to decrement entity mention count")
			}
			if _, err := tx.ExecContext(ctx, `DELETE FROM entities WHERE id = ? AND mention_count <= 0`, id); err != nil {
				return cmerrors.Wrap(cmerrors.Internal, err, "failed to garbage collect entity")
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	if r.cache != nil {
		r.cache.Invalidate("entities")
	}
	return nil
}

// MentionsForMessage returns every entity mention recorded against a message.
func (r *EntityRepository) MentionsForMessage(ctx context.Context, messageID string) ([]EntityMention, error) {
	rows, err := r.store.Query(ctx, `
		SELECT id, entity_id, message_id, start_offset, end_offset, method, confidence
		FROM entity_mentions WHERE message_id = ?
	`, messageID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []EntityMention
	for rows.Next() {
		var m EntityMention
		if err := rows.StructScan(&m); err != nil {
			return nil, cmerrors.Wrap(cmerrors.Internal, err, "failed to scan entity mention")
		}
		out = append(out, m)
	}
	return out, nil
}
