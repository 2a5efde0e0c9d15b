// Package db implements the storage substrate: a single-file SQLite-backed
// store with write-ahead logging, a bounded connection pool, a versioned
// migration runner, and the pragma configuration the rest of convomem
// depends on for concurrent readers under a single writer.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	cmerrors "github.com/convomem/convomem/pkg/errors"
	"github.com/convomem/convomem/pkg/telemetry"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	_ "modernc.org/sqlite"
)

// LatestSchemaVersion is the highest migration version this binary knows
// how to apply. Store.Init refuses to run against a database whose recorded
// schema_version exceeds this.
const LatestSchemaVersion = 8

// Options configure how Store opens the underlying database file.
type Options struct {
	Path           string
	ReadOnly       bool
	MaxConnections int
	CacheSizeKB    int
	BusyTimeoutMs  int
}

// Store owns the single underlying database file: pragma configuration,
// transactions, and the handful of maintenance operations (Checkpoint,
// Analyze, Vacuum) operators invoke directly.
type Store struct {
	opts Options
	db   *sqlx.DB
	pool *ConnectionPool

	schemaVersion int64
}

// Open creates the database directory if needed, opens the SQLite file
// with WAL and the tuned pragmas, and wraps it with a ConnectionPool. It
// does not run migrations; call Init for that (Init skips migrations in
// ReadOnly mode but still checks the schema version, per spec).
func Open(ctx context.Context, opts Options) (*Store, error) {
	if opts.Path == "" {
		return nil, cmerrors.New(cmerrors.Validation, "db path must not be empty")
	}
	if opts.MaxConnections <= 0 {
		opts.MaxConnections = 10
	}
	if opts.CacheSizeKB <= 0 {
		opts.CacheSizeKB = 2000
	}
	if opts.BusyTimeoutMs <= 0 {
		opts.BusyTimeoutMs = 5000
	}

	dir := filepath.Dir(opts.Path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, cmerrors.Wrap(cmerrors.StoreUnavailable, err, "failed to create database directory")
		}
	}

	sqlDB, err := sqlx.Open("sqlite", opts.Path)
	if err != nil {
		return nil, cmerrors.Wrap(cmerrors.StoreUnavailable, err, "failed to open database")
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		sqlDB.Close()
		return nil, cmerrors.Wrap(cmerrors.StoreUnavailable, err, "failed to ping database")
	}

	if err := configure(ctx, sqlDB, opts); err != nil {
		sqlDB.Close()
		return nil, cmerrors.Wrap(cmerrors.StoreUnavailable, err, "failed to configure database")
	}

	sqlDB.SetMaxOpenConns(opts.MaxConnections)
	sqlDB.SetMaxIdleConns(opts.MaxConnections)

	s := &Store{
		opts: opts,
		db:   sqlDB,
		pool: newConnectionPool(sqlDB, 2, opts.MaxConnections),
	}
	return s, nil
}

// configure applies the pragma set spec.md §4.A requires: WAL journaling,
// NORMAL synchronous under WAL, a memory-resident temp store, a large
// memory-mapped region, a bounded busy timeout, and the configured
// page-cache size.
func configure(ctx context.Context, db *sqlx.DB, opts Options) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA temp_store=MEMORY",
		"PRAGMA mmap_size=268435456",
		fmt.Sprintf("PRAGMA busy_timeout=%d", opts.BusyTimeoutMs),
		fmt.Sprintf("PRAGMA cache_size=-%d", opts.CacheSizeKB),
	}
	for _, p := range pragmas {
		pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		_, err := db.ExecContext(pctx, p)
		cancel()
		if err != nil {
			return errors.Wrapf(err, "failed to execute pragma: %s", p)
		}
	}

	var journalMode string
	if err := db.QueryRowContext(ctx, "PRAGMA journal_mode").Scan(&journalMode); err != nil {
		return errors.Wrap(err, "failed to query journal mode")
	}
	if strings.ToLower(journalMode) != "wal" {
		return errors.Errorf("WAL mode not enabled, got %q", journalMode)
	}
	return nil
}

// Init runs the versioned migrations against the store unless the store is
// read-only, in which case migrations are skipped per spec.md §4.A and the
// recorded schema version is merely checked for compatibility.
func (s *Store) Init(ctx context.Context, migrations []Migration) error {
	runner := NewMigrationRunner(s.db)

	version, err := runner.CurrentVersion(ctx)
	if err != nil {
		return err
	}
	if version > LatestSchemaVersion {
		return cmerrors.New(cmerrors.SchemaTooNew, "on-disk schema is newer than this binary supports")
	}

	if s.opts.ReadOnly {
		s.schemaVersion = version
		return nil
	}

	if err := runner.Run(ctx, migrations); err != nil {
		return err
	}
	version, err = runner.CurrentVersion(ctx)
	if err != nil {
		return err
	}
	s.schemaVersion = version
	return nil
}

// Close releases the underlying database handle. Safe to call once.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Tx runs fn inside a transaction acquired from the connection pool. The
// transaction is committed if fn returns nil and rolled back otherwise
// (including on panic, which is re-raised after rollback). The connection
// is released on every exit path.
func (s *Store) Tx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	return telemetry.WithSpan(ctx, "db.tx", func(spanCtx context.Context) error {
		return s.pool.WithTransaction(spanCtx, fn)
	})
}

// Exec runs a single statement through the pool without an explicit
// transaction (SQLite itself wraps it in an implicit one).
func (s *Store) Exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	var result sql.Result
	err := s.pool.WithConnection(ctx, func(conn *sqlx.Conn) error {
		r, err := conn.ExecContext(ctx, query, args...)
		if err != nil {
			return err
		}
		result = r
		return nil
	})
	return result, err
}

// Rows wraps *sqlx.Rows so that closing it also returns the pool connection
// and ticket it was issued on. database/sql's Conn.Close blocks until any
// Rows borrowed from it are closed, so the ticket must not be released
// until the caller is done iterating.
type Rows struct {
	*sqlx.Rows
	conn *sqlx.Conn
	pool *ConnectionPool
}

// Close closes the underlying rows, then releases the connection back to
// the pool. Safe to call once; matches sql.Rows semantics for a second
// call (returns nil).
func (r *Rows) Close() error {
	err := r.Rows.Close()
	if r.conn != nil {
		r.pool.release(r.conn)
		r.conn = nil
	}
	return err
}

// Query runs a read query through the pool. The caller owns the returned
// Rows and must close them; doing so releases the underlying connection
// and pool ticket.
func (s *Store) Query(ctx context.Context, query string, args ...any) (*Rows, error) {
	conn, err := s.pool.acquire(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := conn.QueryxContext(ctx, query, args...)
	if err != nil {
		s.pool.release(conn)
		return nil, cmerrors.Wrap(cmerrors.Internal, err, "query failed")
	}
	return &Rows{Rows: rows, conn: conn, pool: s.pool}, nil
}

// DB exposes the underlying *sqlx.DB for repositories that need to build
// their own prepared statements; repositories must still route
// acquisition/release through the Pool for anything beyond a single
// one-shot query (use Store.Tx/Exec/Query instead where possible).
func (s *Store) DB() *sqlx.DB { return s.db }

// Pool exposes the connection pool for repositories and tools that need
// WithConnection/WithTransaction directly.
func (s *Store) Pool() *ConnectionPool { return s.pool }

// Checkpoint forces a WAL checkpoint, truncating the WAL file back into
// the main database file.
func (s *Store) Checkpoint(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, "PRAGMA wal_checkpoint(TRUNCATE)")
	if err != nil {
		return cmerrors.Wrap(cmerrors.Internal, err, "checkpoint failed")
	}
	return nil
}

// Analyze refreshes the query planner's statistics.
func (s *Store) Analyze(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, "ANALYZE")
	if err != nil {
		return cmerrors.Wrap(cmerrors.Internal, err, "analyze failed")
	}
	return nil
}

// Vacuum rebuilds the database file to reclaim space from deleted rows.
func (s *Store) Vacuum(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, "VACUUM")
	if err != nil {
		return cmerrors.Wrap(cmerrors.Internal, err, "vacuum failed")
	}
	return nil
}

// SchemaVersion returns the schema version recorded at the last Init call.
func (s *Store) SchemaVersion() int64 { return s.schemaVersion }
