package migrations

import (
	"database/sql"

	"github.com/convomem/convomem/pkg/db"
	"github.com/pkg/errors"
)

// migration006ValidationTriggers adds the application-invariant guards that
// a CHECK constraint can't express because they cross rows or tables:
// messages must belong to a conversation that isn't soft-deleted, a
// conversation's updated_at must advance whenever a message is appended to
// it, and entity_mentions offsets must fall within the referenced message's
// content length.
func migration006ValidationTriggers() db.Migration {
	return db.Migration{
		Version:     6,
		Description: "create cross-table validation and bookkeeping triggers",
		Up: []func(*sql.Tx) error{
			func(tx *sql.Tx) error {
				_, err := tx.Exec(`
					CREATE TRIGGER IF NOT EXISTS messages_reject_deleted_conversation
					BEFORE INSERT ON messages
					WHEN (SELECT deleted_at FROM conversations WHERE id = new.conversation_id) IS NOT NULL
					BEGIN
						SELECT RAISE(ABORT, 'cannot add a message to a deleted conversation');
					END
				`)
				return errors.Wrap(err, "failed to create messages_reject_deleted_conversation trigger")
			},
			func(tx *sql.Tx) error {
				_, err := tx.Exec(`
					CREATE TRIGGER IF NOT EXISTS messages_touch_conversation
					AFTER INSERT ON messages
					BEGIN
						UPDATE conversations
						SET updated_at = new.created_at
						WHERE id = new.conversation_id AND updated_at < new.created_at;
					END
				`)
				return errors.Wrap(err, "failed to create messages_touch_conversation trigger")
			},
			func(tx *sql.Tx) error {
				_, err := tx.Exec(`
					CREATE TRIGGER IF NOT EXISTS entity_mentions_reject_out_of_range
					BEFORE INSERT ON entity_mentions
					WHEN new.end_offset > (SELECT LENGTH(content) FROM messages WHERE id = new.message_id)
					BEGIN
						SELECT RAISE(ABORT, 'entity mention offset exceeds message content length');
					END
				`)
				return errors.Wrap(err, "failed to create entity_mentions_reject_out_of_range trigger")
			},
			func(tx *sql.Tx) error {
				_, err := tx.Exec(`
					CREATE TRIGGER IF NOT EXISTS entities_touch_last_mentioned
					AFTER INSERT ON entity_mentions
					BEGIN
						UPDATE entities
						SET mention_count = mention_count + 1,
						    last_mentioned_at = (
						        SELECT MAX(last_mentioned_at, (SELECT created_at FROM messages WHERE id = new.message_id))
						        FROM entities WHERE id = new.entity_id
						    )
						WHERE id = new.entity_id;
					END
				`)
				return errors.Wrap(err, "failed to create entities_touch_last_mentioned trigger")
			},
		},
		Down: []func(*sql.Tx) error{
			func(tx *sql.Tx) error { _, err := tx.Exec(`DROP TRIGGER IF EXISTS entities_touch_last_mentioned`); return err },
			func(tx *sql.Tx) error {
				_, err := tx.Exec(`DROP TRIGGER IF EXISTS entity_mentions_reject_out_of_range`)
				return err
			},
			func(tx *sql.Tx) error { _, err := tx.Exec(`DROP TRIGGER IF EXISTS messages_touch_conversation`); return err },
			func(tx *sql.Tx) error {
				_, err := tx.Exec(`DROP TRIGGER IF EXISTS messages_reject_deleted_conversation`)
				return err
			},
		},
	}
}
