package migrations

import (
	"database/sql"

	"github.com/convomem/convomem/pkg/db"
	"github.com/pkg/errors"
)

// migration007Monitoring creates trigger_performance_log, a table for
// recording how long trigger-bearing writes took, so repeated runs can be
// compared for regressions. No code in this repository writes rows to it;
// the benchmark harness and ToolRegistry keep their timings in memory.
func migration007Monitoring() db.Migration {
	return db.Migration{
		Version:     7,
		Description: "create trigger_performance_log table",
		Up: []func(*sql.Tx) error{
			func(tx *sql.Tx) error {
				_, err := tx.Exec(`
					CREATE TABLE IF NOT EXISTS trigger_performance_log (
						id TEXT PRIMARY KEY,
						operation TEXT NOT NULL,
						table_name TEXT NOT NULL,
						duration_us INTEGER NOT NULL CHECK (duration_us >= 0),
						row_count INTEGER NOT NULL DEFAULT 1,
						recorded_at INTEGER NOT NULL
					)
				`)
				return errors.Wrap(err, "failed to create trigger_performance_log table")
			},
			func(tx *sql.Tx) error {
				_, err := tx.Exec(`CREATE INDEX IF NOT EXISTS idx_trigger_perf_log_recorded_at ON trigger_performance_log(recorded_at DESC)`)
				return errors.Wrap(err, "failed to create trigger_performance_log index")
			},
		},
		Down: []func(*sql.Tx) error{
			func(tx *sql.Tx) error { _, err := tx.Exec(`DROP TABLE IF EXISTS trigger_performance_log`); return err },
		},
	}
}
