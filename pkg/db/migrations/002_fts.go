package migrations

import (
	"database/sql"

	"github.com/convomem/convomem/pkg/db"
	"github.com/pkg/errors"
)

// migration002FTS creates the messages_fts shadow table (an FTS5 virtual
// table content-linked to messages) and the insert/update/delete triggers
// that keep it in sync. No application code ever writes to messages_fts
// directly; pkg/search/fts only issues SELECTs against it.
func migration002FTS() db.Migration {
	return db.Migration{
		Version:     2,
		Description: "create messages_fts shadow table and maintenance triggers",
		Up: []func(*sql.Tx) error{
			func(tx *sql.Tx) error {
				_, err := tx.Exec(`
					CREATE VIRTUAL TABLE IF NOT EXISTS messages_fts USING fts5(
						content,
						content='messages',
						content_rowid='rowid',
						tokenize='porter unicode61 remove_diacritics 2'
					)
				`)
				return errors.Wrap(err, "failed to create messages_fts virtual table")
			},
			func(tx *sql.Tx) error {
				_, err := tx.Exec(`
					CREATE TRIGGER IF NOT EXISTS messages_fts_insert AFTER INSERT ON messages BEGIN
						INSERT INTO messages_fts(rowid, content) VALUES (new.rowid, new.content);
					END
				`)
				return errors.Wrap(err, "failed to create messages_fts insert trigger")
			},
			func(tx *sql.Tx) error {
				_, err := tx.Exec(`
					CREATE TRIGGER IF NOT EXISTS messages_fts_delete AFTER DELETE ON messages BEGIN
						INSERT INTO messages_fts(messages_fts, rowid, content) VALUES ('delete', old.rowid, old.content);
					END
				`)
				return errors.Wrap(err, "failed to create messages_fts delete trigger")
			},
			func(tx *sql.Tx) error {
				_, err := tx.Exec(`
					CREATE TRIGGER IF NOT EXISTS messages_fts_update AFTER UPDATE ON messages BEGIN
						INSERT INTO messages_fts(messages_fts, rowid, content) VALUES ('delete', old.rowid, old.content);
						INSERT INTO messages_fts(rowid, content) VALUES (new.rowid, new.content);
					END
				`)
				return errors.Wrap(err, "failed to create messages_fts update trigger")
			},
		},
		Down: []func(*sql.Tx) error{
			func(tx *sql.Tx) error { _, err := tx.Exec(`DROP TRIGGER IF EXISTS messages_fts_update`); return err },
			func(tx *sql.Tx) error { _, err := tx.Exec(`DROP TRIGGER IF EXISTS messages_fts_delete`); return err },
			func(tx *sql.Tx) error { _, err := tx.Exec(`DROP TRIGGER IF EXISTS messages_fts_insert`); return err },
			func(tx *sql.Tx) error { _, err := tx.Exec(`DROP TABLE IF EXISTS messages_fts`); return err },
		},
	}
}
