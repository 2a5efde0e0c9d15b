package migrations

import (
	"database/sql"

	"github.com/convomem/convomem/pkg/db"
	"github.com/pkg/errors"
)

// migration008OrphanMentions relaxes entity_mentions.message_id from a
// cascading foreign key to a nullable, SET-NULL one. A Message's own delete
// still removes its mentions outright (MessageRepository.Delete handles
// that explicitly and garbage-collects any Entity it leaves at zero
// mentions), but a Conversation's permanent delete cascades straight
// through messages without going through that path, and the mentions it
// leaves behind must survive as orphaned provenance (entity_id, offsets,
// method, confidence) rather than disappear with the message rows.
func migration008OrphanMentions() db.Migration {
	return db.Migration{
		Version:     8,
		Description: "make entity_mentions.message_id nullable with ON DELETE SET NULL",
		Up: []func(*sql.Tx) error{
			func(tx *sql.Tx) error {
				_, err := tx.Exec(`DROP TRIGGER IF EXISTS entity_mentions_reject_out_of_range`)
				return errors.Wrap(err, "failed to drop entity_mentions_reject_out_of_range trigger")
			},
			func(tx *sql.Tx) error {
				_, err := tx.Exec(`DROP TRIGGER IF EXISTS entities_touch_last_mentioned`)
				return errors.Wrap(err, "failed to drop entities_touch_last_mentioned trigger")
			},
			func(tx *sql.Tx) error {
				_, err := tx.Exec(`
					CREATE TABLE entity_mentions_new (
						id TEXT PRIMARY KEY,
						entity_id TEXT NOT NULL REFERENCES entities(id) ON DELETE CASCADE,
						message_id TEXT REFERENCES messages(id) ON DELETE SET NULL,
						start_offset INTEGER NOT NULL CHECK (start_offset >= 0),
						end_offset INTEGER NOT NULL CHECK (end_offset >= start_offset),
						method TEXT NOT NULL CHECK (method IN ('pattern','statistical','manual')),
						confidence REAL NOT NULL CHECK (confidence >= 0.0 AND confidence <= 1.0),
						UNIQUE (entity_id, message_id, start_offset)
					)
				`)
				return errors.Wrap(err, "failed to create entity_mentions_new table")
			},
			func(tx *sql.Tx) error {
				_, err := tx.Exec(`
					INSERT INTO entity_mentions_new (id, entity_id, message_id, start_offset, end_offset, method, confidence)
					SELECT id, entity_id, message_id, start_offset, end_offset, method, confidence FROM entity_mentions
				`)
				return errors.Wrap(err, "failed to copy entity_mentions rows")
			},
			func(tx *sql.Tx) error {
				_, err := tx.Exec(`DROP TABLE entity_mentions`)
				return errors.Wrap(err, "failed to drop old entity_mentions table")
			},
			func(tx *sql.Tx) error {
				_, err := tx.Exec(`ALTER TABLE entity_mentions_new RENAME TO entity_mentions`)
				return errors.Wrap(err, "failed to rename entity_mentions_new")
			},
			func(tx *sql.Tx) error {
				_, err := tx.Exec(`CREATE INDEX IF NOT EXISTS idx_entity_mentions_message ON entity_mentions(message_id)`)
				return errors.Wrap(err, "failed to recreate entity_mentions message index")
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
				return errors.Wrap(err, "failed to recreate entity_mentions_reject_out_of_range trigger")
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
				return errors.Wrap(err, "failed to recreate entities_touch_last_mentioned trigger")
			},
		},
		Down: []func(*sql.Tx) error{
			func(tx *sql.Tx) error {
				_, err := tx.Exec(`DROP TRIGGER IF EXISTS entities_touch_last_mentioned`)
				return err
			},
			func(tx *sql.Tx) error {
				_, err := tx.Exec(`DROP TRIGGER IF EXISTS entity_mentions_reject_out_of_range`)
				return err
			},
			func(tx *sql.Tx) error {
				// Rollback drops any mention orphaned since the forward
				// migration ran: the original schema requires message_id
				// NOT NULL and cannot represent them.
				_, err := tx.Exec(`
					CREATE TABLE entity_mentions_old (
						id TEXT PRIMARY KEY,
						entity_id TEXT NOT NULL REFERENCES entities(id) ON DELETE CASCADE,
						message_id TEXT NOT NULL REFERENCES messages(id) ON DELETE CASCADE,
						start_offset INTEGER NOT NULL CHECK (start_offset >= 0),
						end_offset INTEGER NOT NULL CHECK (end_offset >= start_offset),
						method TEXT NOT NULL CHECK (method IN ('pattern','statistical','manual')),
						confidence REAL NOT NULL CHECK (confidence >= 0.0 AND confidence <= 1.0),
						UNIQUE (entity_id, message_id, start_offset)
					)
				`)
				return err
			},
			func(tx *sql.Tx) error {
				_, err := tx.Exec(`
					INSERT INTO entity_mentions_old (id, entity_id, message_id, start_offset, end_offset, method, confidence)
					SELECT id, entity_id, message_id, start_offset, end_offset, method, confidence
					FROM entity_mentions WHERE message_id IS NOT NULL
				`)
				return err
			},
			func(tx *sql.Tx) error {
				_, err := tx.Exec(`DROP TABLE entity_mentions`)
				return err
			},
			func(tx *sql.Tx) error {
				_, err := tx.Exec(`ALTER TABLE entity_mentions_old RENAME TO entity_mentions`)
				return err
			},
			func(tx *sql.Tx) error {
				_, err := tx.Exec(`CREATE INDEX IF NOT EXISTS idx_entity_mentions_message ON entity_mentions(message_id)`)
				return err
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
				return err
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
				return err
			},
		},
	}
}
