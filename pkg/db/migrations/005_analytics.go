package migrations

import (
	"database/sql"

	"github.com/convomem/convomem/pkg/db"
	"github.com/pkg/errors"
)

// migration005Analytics creates the derived-insight tables: per-conversation
// analytics rollups, detected productivity patterns, knowledge gaps, decision
// tracking, free-form insights, topic evolution snapshots, and the search
// configuration/metrics tables SearchEngine reads and writes.
func migration005Analytics() db.Migration {
	return db.Migration{
		Version:     5,
		Description: "create analytics, pattern, and search configuration tables",
		Up: []func(*sql.Tx) error{
			func(tx *sql.Tx) error {
				_, err := tx.Exec(`
					CREATE TABLE IF NOT EXISTS conversation_analytics (
						id TEXT PRIMARY KEY,
						conversation_id TEXT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
						message_count INTEGER NOT NULL DEFAULT 0,
						total_tokens INTEGER NOT NULL DEFAULT 0,
						entity_count INTEGER NOT NULL DEFAULT 0,
						avg_response_latency_ms REAL NOT NULL DEFAULT 0,
						computed_at INTEGER NOT NULL,
						UNIQUE (conversation_id)
					)
				`)
				return errors.Wrap(err, "failed to create conversation_analytics table")
			},
			func(tx *sql.Tx) error {
				_, err := tx.Exec(`
					CREATE TABLE IF NOT EXISTS productivity_patterns (
						id TEXT PRIMARY KEY,
						conversation_id TEXT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
						pattern_type TEXT NOT NULL,
						description TEXT NOT NULL,
						confidence REAL NOT NULL CHECK (confidence >= 0.0 AND confidence <= 1.0),
						window_start INTEGER NOT NULL,
						window_end INTEGER NOT NULL,
						detected_at INTEGER NOT NULL,
						CHECK (window_end > window_start)
					)
				`)
				return errors.Wrap(err, "failed to create productivity_patterns table")
			},
			func(tx *sql.Tx) error {
				_, err := tx.Exec(`CREATE INDEX IF NOT EXISTS idx_productivity_patterns_conversation ON productivity_patterns(conversation_id)`)
				return errors.Wrap(err, "failed to create productivity_patterns index")
			},
			func(tx *sql.Tx) error {
				_, err := tx.Exec(`
					CREATE TABLE IF NOT EXISTS knowledge_gaps (
						id TEXT PRIMARY KEY,
						conversation_id TEXT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
						topic TEXT NOT NULL,
						description TEXT NOT NULL,
						severity TEXT NOT NULL CHECK (severity IN ('low','medium','high')),
						frequency INTEGER NOT NULL CHECK (frequency > 0),
						detected_at INTEGER NOT NULL,
						resolution_date INTEGER,
						resolution_conversation_id TEXT REFERENCES conversations(id) ON DELETE SET NULL,
						CHECK (
							(resolution_date IS NULL AND resolution_conversation_id IS NULL)
							OR (resolution_date IS NOT NULL AND resolution_conversation_id IS NOT NULL)
						)
					)
				`)
				return errors.Wrap(err, "failed to create knowledge_gaps table")
			},
			func(tx *sql.Tx) error {
				_, err := tx.Exec(`
					CREATE TABLE IF NOT EXISTS decision_tracking (
						id TEXT PRIMARY KEY,
						conversation_id TEXT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
						decision TEXT NOT NULL,
						rationale TEXT NOT NULL DEFAULT '',
						problem_identified_at INTEGER NOT NULL,
						options_considered_at INTEGER,
						decision_made_at INTEGER NOT NULL,
						implemented_at INTEGER,
						outcome_observed_at INTEGER,
						effectiveness_score REAL CHECK (effectiveness_score IS NULL OR (effectiveness_score >= 0.0 AND effectiveness_score <= 100.0)),
						source_message_id TEXT REFERENCES messages(id) ON DELETE SET NULL,
						superseded_by TEXT REFERENCES decision_tracking(id) ON DELETE SET NULL,
						CHECK (problem_identified_at <= decision_made_at),
						CHECK (options_considered_at IS NULL OR options_considered_at <= decision_made_at),
						CHECK (implemented_at IS NULL OR implemented_at >= decision_made_at),
						CHECK (outcome_observed_at IS NULL OR implemented_at IS NULL OR outcome_observed_at >= implemented_at)
					)
				`)
				return errors.Wrap(err, "failed to create decision_tracking table")
			},
			func(tx *sql.Tx) error {
				_, err := tx.Exec(`
					CREATE TABLE IF NOT EXISTS insights (
						id TEXT PRIMARY KEY,
						conversation_id TEXT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
						category TEXT NOT NULL,
						text TEXT NOT NULL,
						confidence REAL NOT NULL CHECK (confidence >= 0.0 AND confidence <= 1.0),
						created_at INTEGER NOT NULL
					)
				`)
				return errors.Wrap(err, "failed to create insights table")
			},
			func(tx *sql.Tx) error {
				_, err := tx.Exec(`
					CREATE TABLE IF NOT EXISTS topic_evolution (
						id TEXT PRIMARY KEY,
						conversation_id TEXT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
						topic TEXT NOT NULL,
						window_start INTEGER NOT NULL,
						window_end INTEGER NOT NULL,
						salience REAL NOT NULL CHECK (salience >= 0.0 AND salience <= 1.0),
						CHECK (window_start <= window_end)
					)
				`)
				return errors.Wrap(err, "failed to create topic_evolution table")
			},
			func(tx *sql.Tx) error {
				_, err := tx.Exec(`
					CREATE TABLE IF NOT EXISTS search_config (
						key TEXT PRIMARY KEY,
						value TEXT NOT NULL,
						updated_at INTEGER NOT NULL
					)
				`)
				return errors.Wrap(err, "failed to create search_config table")
			},
			func(tx *sql.Tx) error {
				_, err := tx.Exec(`
					CREATE TABLE IF NOT EXISTS search_metrics (
						id TEXT PRIMARY KEY,
						strategy TEXT NOT NULL,
						query_length INTEGER NOT NULL,
						result_count INTEGER NOT NULL,
						latency_ms REAL NOT NULL,
						fallback_used INTEGER NOT NULL DEFAULT 0 CHECK (fallback_used IN (0,1)),
						fallback_reason TEXT NOT NULL DEFAULT '',
						recorded_at INTEGER NOT NULL
					)
				`)
				return errors.Wrap(err, "failed to create search_metrics table")
			},
			func(tx *sql.Tx) error {
				_, err := tx.Exec(`CREATE INDEX IF NOT EXISTS idx_search_metrics_recorded_at ON search_metrics(recorded_at DESC)`)
				return errors.Wrap(err, "failed to create search_metrics index")
			},
		},
		Down: []func(*sql.Tx) error{
			func(tx *sql.Tx) error { _, err := tx.Exec(`DROP TABLE IF EXISTS search_metrics`); return err },
			func(tx *sql.Tx) error { _, err := tx.Exec(`DROP TABLE IF EXISTS search_config`); return err },
			func(tx *sql.Tx) error { _, err := tx.Exec(`DROP TABLE IF EXISTS topic_evolution`); return err },
			func(tx *sql.Tx) error { _, err := tx.Exec(`DROP TABLE IF EXISTS insights`); return err },
			func(tx *sql.Tx) error { _, err := tx.Exec(`DROP TABLE IF EXISTS decision_tracking`); return err },
			func(tx *sql.Tx) error { _, err := tx.Exec(`DROP TABLE IF EXISTS knowledge_gaps`); return err },
			func(tx *sql.Tx) error { _, err := tx.Exec(`DROP TABLE IF EXISTS productivity_patterns`); return err },
			func(tx *sql.Tx) error { _, err := tx.Exec(`DROP TABLE IF EXISTS conversation_analytics`); return err },
		},
	}
}
