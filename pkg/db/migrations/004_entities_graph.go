package migrations

import (
	"database/sql"

	"github.com/convomem/convomem/pkg/db"
	"github.com/pkg/errors"
)

// migration004EntitiesGraph creates the knowledge-graph tables: entities,
// their per-message mentions (the provenance trail extraction is keyed on
// for idempotent re-ingestion), typed relationships between entities, and
// the llm_providers table ProviderConfigRepository manages.
func migration004EntitiesGraph() db.Migration {
	return db.Migration{
		Version:     4,
		Description: "create entities, entity_mentions, entity_relationships, and llm_providers tables",
		Up: []func(*sql.Tx) error{
			func(tx *sql.Tx) error {
				_, err := tx.Exec(`
					CREATE TABLE IF NOT EXISTS entities (
						id TEXT PRIMARY KEY,
						name TEXT NOT NULL,
						normalized_name TEXT NOT NULL,
						type TEXT NOT NULL CHECK (type IN ('person','organization','product','technical','location','concept','event','decision')),
						confidence_score REAL NOT NULL DEFAULT 0.5 CHECK (confidence_score >= 0.0 AND confidence_score <= 1.0),
						mention_count INTEGER NOT NULL DEFAULT 0 CHECK (mention_count >= 0),
						first_seen_at INTEGER NOT NULL,
						last_mentioned_at INTEGER NOT NULL,
						metadata TEXT NOT NULL DEFAULT '{}',
						CHECK (first_seen_at <= last_mentioned_at)
					)
				`)
				return errors.Wrap(err, "failed to create entities table")
			},
			func(tx *sql.Tx) error {
				_, err := tx.Exec(`CREATE UNIQUE INDEX IF NOT EXISTS idx_entities_normalized_type ON entities(normalized_name, type)`)
				return errors.Wrap(err, "failed to create entities normalized-name/type unique index")
			},
			func(tx *sql.Tx) error {
				_, err := tx.Exec(`
					CREATE TABLE IF NOT EXISTS entity_mentions (
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
				return errors.Wrap(err, "failed to create entity_mentions table")
			},
			func(tx *sql.Tx) error {
				_, err := tx.Exec(`CREATE INDEX IF NOT EXISTS idx_entity_mentions_message ON entity_mentions(message_id)`)
				return errors.Wrap(err, "failed to create entity_mentions message index")
			},
			func(tx *sql.Tx) error {
				_, err := tx.Exec(`
					CREATE TABLE IF NOT EXISTS entity_relationships (
						id TEXT PRIMARY KEY,
						source_entity_id TEXT NOT NULL REFERENCES entities(id) ON DELETE CASCADE,
						target_entity_id TEXT NOT NULL REFERENCES entities(id) ON DELETE CASCADE,
						relationship_type TEXT NOT NULL CHECK (relationship_type IN (
							'works_for','created_by','discussed_with','part_of',
							'related_to','mentioned_with','temporal_sequence','cause_effect'
						)),
						strength REAL NOT NULL CHECK (strength >= 0.0 AND strength <= 1.0),
						semantic_weight REAL NOT NULL DEFAULT 1.0 CHECK (semantic_weight >= 0.0 AND semantic_weight <= 1.0),
						mention_count INTEGER NOT NULL DEFAULT 1 CHECK (mention_count >= 1),
						context_message_ids TEXT NOT NULL DEFAULT '[]',
						first_mentioned_at INTEGER NOT NULL,
						last_mentioned_at INTEGER NOT NULL,
						CHECK (source_entity_id <> target_entity_id),
						UNIQUE (source_entity_id, target_entity_id, relationship_type)
					)
				`)
				return errors.Wrap(err, "failed to create entity_relationships table")
			},
			func(tx *sql.Tx) error {
				_, err := tx.Exec(`CREATE INDEX IF NOT EXISTS idx_relationships_source ON entity_relationships(source_entity_id)`)
				return errors.Wrap(err, "failed to create entity_relationships source index")
			},
			func(tx *sql.Tx) error {
				_, err := tx.Exec(`CREATE INDEX IF NOT EXISTS idx_relationships_target ON entity_relationships(target_entity_id)`)
				return errors.Wrap(err, "failed to create entity_relationships target index")
			},
			func(tx *sql.Tx) error {
				_, err := tx.Exec(`
					CREATE TABLE IF NOT EXISTS llm_providers (
						id TEXT PRIMARY KEY,
						name TEXT NOT NULL UNIQUE,
						kind TEXT NOT NULL CHECK (kind IN ('local','external')),
						endpoint TEXT,
						api_key_env TEXT,
						model_name TEXT NOT NULL,
						max_tokens INTEGER NOT NULL CHECK (max_tokens > 0),
						temperature REAL NOT NULL DEFAULT 1.0 CHECK (temperature >= 0.0 AND temperature <= 2.0),
						is_active INTEGER NOT NULL DEFAULT 0 CHECK (is_active IN (0,1)),
						priority INTEGER NOT NULL DEFAULT 0,
						cost_per_1k_tokens REAL NOT NULL DEFAULT 0.0 CHECK (cost_per_1k_tokens >= 0.0),
						metadata TEXT NOT NULL DEFAULT '{}'
					)
				`)
				return errors.Wrap(err, "failed to create llm_providers table")
			},
		},
		Down: []func(*sql.Tx) error{
			func(tx *sql.Tx) error { _, err := tx.Exec(`DROP TABLE IF EXISTS llm_providers`); return err },
			func(tx *sql.Tx) error { _, err := tx.Exec(`DROP TABLE IF EXISTS entity_relationships`); return err },
			func(tx *sql.Tx) error { _, err := tx.Exec(`DROP TABLE IF EXISTS entity_mentions`); return err },
			func(tx *sql.Tx) error { _, err := tx.Exec(`DROP TABLE IF EXISTS entities`); return err },
		},
	}
}
