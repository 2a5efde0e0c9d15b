package migrations

import (
	"database/sql"

	"github.com/convomem/convomem/pkg/db"
	"github.com/pkg/errors"
)

// migration001Core creates the conversations and messages tables: the two
// tables every other table either references or denormalizes from.
func migration001Core() db.Migration {
	return db.Migration{
		Version:     1,
		Description: "create conversations and messages tables",
		Up: []func(*sql.Tx) error{
			func(tx *sql.Tx) error {
				_, err := tx.Exec(`
					CREATE TABLE IF NOT EXISTS conversations (
						id TEXT PRIMARY KEY,
						created_at INTEGER NOT NULL,
						updated_at INTEGER NOT NULL,
						title TEXT,
						metadata TEXT NOT NULL DEFAULT '{}',
						deleted_at INTEGER,
						CHECK (created_at <= updated_at)
					)
				`)
				return errors.Wrap(err, "failed to create conversations table")
			},
			func(tx *sql.Tx) error {
				_, err := tx.Exec(`
					CREATE TABLE IF NOT EXISTS messages (
						id TEXT PRIMARY KEY,
						conversation_id TEXT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
						role TEXT NOT NULL CHECK (role IN ('user','assistant','system')),
						content TEXT NOT NULL,
						created_at INTEGER NOT NULL,
						parent_message_id TEXT REFERENCES messages(id) ON DELETE SET NULL,
						metadata TEXT NOT NULL DEFAULT '{}',
						embedding BLOB,
						CHECK (parent_message_id IS NULL OR parent_message_id <> id)
					)
				`)
				return errors.Wrap(err, "failed to create messages table")
			},
			func(tx *sql.Tx) error {
				_, err := tx.Exec(`CREATE INDEX IF NOT EXISTS idx_messages_conversation_created ON messages(conversation_id, created_at)`)
				return errors.Wrap(err, "failed to create messages conversation/created index")
			},
			func(tx *sql.Tx) error {
				_, err := tx.Exec(`CREATE INDEX IF NOT EXISTS idx_conversations_created_at ON conversations(created_at DESC)`)
				return errors.Wrap(err, "failed to create conversations created_at index")
			},
			func(tx *sql.Tx) error {
				_, err := tx.Exec(`CREATE INDEX IF NOT EXISTS idx_conversations_updated_at ON conversations(updated_at DESC)`)
				return errors.Wrap(err, "failed to create conversations updated_at index")
			},
		},
		Down: []func(*sql.Tx) error{
			func(tx *sql.Tx) error {
				_, err := tx.Exec(`DROP TABLE IF EXISTS messages`)
				return err
			},
			func(tx *sql.Tx) error {
				_, err := tx.Exec(`DROP TABLE IF EXISTS conversations`)
				return err
			},
		},
	}
}
