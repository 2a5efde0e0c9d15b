package migrations

import (
	"database/sql"

	"github.com/convomem/convomem/pkg/db"
	"github.com/pkg/errors"
)

// migration003ContextSummary creates conversation_summaries (with a CHECK
// on the level enum) and summary_cache, the pre-assembled-context cache
// ContextAssembler can warm.
func migration003ContextSummary() db.Migration {
	return db.Migration{
		Version:     3,
		Description: "create conversation_summaries and summary_cache tables",
		Up: []func(*sql.Tx) error{
			func(tx *sql.Tx) error {
				_, err := tx.Exec(`
					CREATE TABLE IF NOT EXISTS conversation_summaries (
						id TEXT PRIMARY KEY,
						conversation_id TEXT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
						level TEXT NOT NULL CHECK (level IN ('brief','standard','detailed','full')),
						text TEXT NOT NULL,
						token_count INTEGER NOT NULL DEFAULT 0 CHECK (token_count >= 0),
						provider TEXT NOT NULL DEFAULT '',
						model TEXT NOT NULL DEFAULT '',
						generated_at INTEGER NOT NULL,
						message_count INTEGER NOT NULL DEFAULT 1 CHECK (message_count >= 1),
						start_message_id TEXT,
						end_message_id TEXT,
						CHECK (message_count = 1 OR start_message_id IS NULL OR start_message_id <> end_message_id)
					)
				`)
				return errors.Wrap(err, "failed to create conversation_summaries table")
			},
			func(tx *sql.Tx) error {
				_, err := tx.Exec(`CREATE INDEX IF NOT EXISTS idx_summaries_conversation_level ON conversation_summaries(conversation_id, level, generated_at DESC)`)
				return errors.Wrap(err, "failed to create conversation_summaries index")
			},
			func(tx *sql.Tx) error {
				_, err := tx.Exec(`
					CREATE TABLE IF NOT EXISTS summary_cache (
						cache_key TEXT PRIMARY KEY,
						summary_ids TEXT NOT NULL DEFAULT '[]',
						assembled_context TEXT NOT NULL,
						token_count INTEGER NOT NULL DEFAULT 0,
						created_at INTEGER NOT NULL,
						accessed_at INTEGER NOT NULL
					)
				`)
				return errors.Wrap(err, "failed to create summary_cache table")
			},
		},
		Down: []func(*sql.Tx) error{
			func(tx *sql.Tx) error { _, err := tx.Exec(`DROP TABLE IF EXISTS summary_cache`); return err },
			func(tx *sql.Tx) error { _, err := tx.Exec(`DROP TABLE IF EXISTS conversation_summaries`); return err },
		},
	}
}
