package db

import (
	"context"
	"database/sql"
	"sort"
	"strconv"
	"time"

	cmerrors "github.com/convomem/convomem/pkg/errors"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
)

// Migration is one ordered, idempotent schema change. Versions are dense
// positive integers starting at 1; MigrationRunner rejects a migration set
// with gaps or duplicates at load time, per spec.md §4.D.
type Migration struct {
	Version     int64
	Description string
	Up          []func(tx *sql.Tx) error
	Down        []func(tx *sql.Tx) error
}

// MigrationRunner applies Migrations in ascending version order inside one
// transaction per migration, recording progress in persistence_state so a
// second run is a fixpoint (applies zero migrations).
type MigrationRunner struct {
	db *sqlx.DB
}

// NewMigrationRunner builds a runner bound to db.
func NewMigrationRunner(db *sqlx.DB) *MigrationRunner {
	return &MigrationRunner{db: db}
}

// Validate checks a migration set for the load-time invariants spec.md
// §4.D requires: versions are unique, contiguous from 1, and every
// migration has a non-empty description and at least one up statement.
func Validate(migrations []Migration) error {
	sorted := make([]Migration, len(migrations))
	copy(sorted, migrations)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Version < sorted[j].Version })

	seen := map[int64]bool{}
	for i, m := range sorted {
		if m.Version < 1 {
			return errors.Errorf("migration version must be >= 1, got %d", m.Version)
		}
		if seen[m.Version] {
			return errors.Errorf("duplicate migration version %d", m.Version)
		}
		seen[m.Version] = true
		if want := int64(i + 1); m.Version != want {
			return errors.Errorf("missing migration version %d", want)
		}
		if m.Description == "" {
			return errors.Errorf("migration %d has no description", m.Version)
		}
		if len(m.Up) == 0 {
			return errors.Errorf("migration %d has no up statements", m.Version)
		}
	}
	return nil
}

func (r *MigrationRunner) ensureStateTable(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS persistence_state (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			updated_at DATETIME NOT NULL
		)
	`)
	return errors.Wrap(err, "failed to create persistence_state table")
}

// CurrentVersion returns the schema version recorded in
// persistence_state.schema_version, or 0 if none has been recorded yet.
func (r *MigrationRunner) CurrentVersion(ctx context.Context) (int64, error) {
	if err := r.ensureStateTable(ctx); err != nil {
		return 0, cmerrors.Wrap(cmerrors.StoreUnavailable, err, "failed to prepare migration state")
	}
	var value string
	err := r.db.QueryRowContext(ctx, "SELECT value FROM persistence_state WHERE key = 'schema_version'").Scan(&value)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, cmerrors.Wrap(cmerrors.StoreUnavailable, err, "failed to read schema version")
	}
	version, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, cmerrors.Wrap(cmerrors.Internal, err, "corrupt schema_version value")
	}
	return version, nil
}

// Run validates migrations, then applies every version greater than the
// currently recorded schema version, in order, each inside its own
// transaction. Running Run twice with the same migration set applies zero
// migrations on the second call.
func (r *MigrationRunner) Run(ctx context.Context, migrations []Migration) error {
	if err := Validate(migrations); err != nil {
		return cmerrors.Wrap(cmerrors.Validation, err, "invalid migration set")
	}

	current, err := r.CurrentVersion(ctx)
	if err != nil {
		return err
	}

	sorted := make([]Migration, len(migrations))
	copy(sorted, migrations)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Version < sorted[j].Version })

	for _, m := range sorted {
		if m.Version <= current {
			continue
		}
		if err := r.apply(ctx, m); err != nil {
			return cmerrors.Wrap(cmerrors.Internal, err, "migration "+m.Description+" failed")
		}
	}
	return nil
}

func (r *MigrationRunner) apply(ctx context.Context, m Migration) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to begin migration transaction")
	}
	defer tx.Rollback()

	for _, stmt := range m.Up {
		if err := stmt(tx.Tx); err != nil {
			return errors.Wrapf(err, "migration %d up statement failed", m.Version)
		}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO persistence_state (key, value, updated_at) VALUES ('schema_version', ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, strconv.FormatInt(m.Version, 10), time.Now().UTC())
	if err != nil {
		return errors.Wrap(err, "failed to record schema version")
	}

	return tx.Commit()
}

// RollbackTo applies Down statements, in descending version order, for
// every applied migration whose version is greater than target.
func (r *MigrationRunner) RollbackTo(ctx context.Context, migrations []Migration, target int64) error {
	current, err := r.CurrentVersion(ctx)
	if err != nil {
		return err
	}

	sorted := make([]Migration, len(migrations))
	copy(sorted, migrations)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Version > sorted[j].Version })

	for _, m := range sorted {
		if m.Version <= target || m.Version > current {
			continue
		}
		if len(m.Down) == 0 {
			return cmerrors.New(cmerrors.Internal, "migration has no rollback statements")
		}
		if err := r.rollback(ctx, m); err != nil {
			return err
		}
	}
	return nil
}

func (r *MigrationRunner) rollback(ctx context.Context, m Migration) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to begin rollback transaction")
	}
	defer tx.Rollback()

	// Down statements are authored in application order already (reverse of
	// the dependency order Up statements create, e.g. drop children before
	// parents), so they run forward rather than reversed again here.
	for _, stmt := range m.Down {
		if err := stmt(tx.Tx); err != nil {
			return errors.Wrapf(err, "migration %d down statement failed", m.Version)
		}
	}

	prior := m.Version - 1
	_, err = tx.ExecContext(ctx, `
		INSERT INTO persistence_state (key, value, updated_at) VALUES ('schema_version', ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, strconv.FormatInt(prior, 10), time.Now().UTC())
	if err != nil {
		return errors.Wrap(err, "failed to record schema version")
	}

	return tx.Commit()
}
