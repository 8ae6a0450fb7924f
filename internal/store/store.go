package store

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// Schema version tracking (SQLite user_version):
// 0 - Empty database
// 1 - Initial relational schema
// 2 - Added work_type to identifiers
const currentSchemaVersion = 2

// Driver names accepted by OpenDriver.
const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "pgx"
)

// Store provides durable storage for reconciled DMP graphs.
// SQLite (the default) runs in WAL mode with a single connection; PostgreSQL
// is reached through the pgx database/sql driver.
type Store struct {
	reader
	db *sql.DB
}

// Open creates or opens a SQLite database at the given path.
// Applies required pragmas and migrations automatically.
//
// The database is configured with:
//   - WAL mode for concurrent reads during writes
//   - NORMAL synchronous mode (balance durability/performance)
//   - 5-second busy timeout for lock contention
//   - Foreign key enforcement (required for ON DELETE CASCADE)
//
// This function is idempotent - safe to call multiple times.
func Open(path string) (*Store, error) {
	return OpenDriver(DriverSQLite, path)
}

// OpenDriver opens a store with an explicit database/sql driver name:
// "sqlite3" with a file path, or "pgx" with a PostgreSQL DSN.
func OpenDriver(driver, dsn string) (*Store, error) {
	var d dialect
	switch driver {
	case DriverSQLite, "sqlite", "":
		driver, d = DriverSQLite, dialectSQLite
	case DriverPostgres, "postgres", "postgresql":
		driver, d = DriverPostgres, dialectPostgres
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if d == dialectSQLite {
		// SQLite only supports one writer at a time, so limit connections
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)

		if err := applyPragmas(db); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply pragmas: %w", err)
		}
	}

	if err := applySchema(db, d); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &Store{reader: reader{q: db, dialect: d}, db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// DB returns the underlying sql.DB for direct queries.
// Use with caution - prefer using Store methods when available.
func (s *Store) DB() *sql.DB {
	return s.db
}

// InTx runs fn inside one transaction. The transaction commits when fn
// returns nil and rolls back otherwise; nothing fn wrote is visible to
// other connections until commit.
func (s *Store) InTx(ctx context.Context, fn func(*Tx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer sqlTx.Rollback() // No-op if committed

	if err := fn(&Tx{reader: reader{q: sqlTx, dialect: s.dialect}}); err != nil {
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// CountRows returns the number of rows in each entity table. Used by replay
// and tests to check that reconciliation did not create duplicates.
func (s *Store) CountRows(ctx context.Context) (map[string]int, error) {
	counts := make(map[string]int, len(countedTables))
	for _, table := range countedTables {
		var n int
		if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&n); err != nil {
			return nil, fmt.Errorf("count %s: %w", table, err)
		}
		counts[table] = n
	}
	return counts, nil
}

// countedTables lists entity tables in dependency order.
var countedTables = []string{
	"affiliations",
	"contributors",
	"plans",
	"contributor_roles",
	"projects",
	"fundings",
	"funded_affiliations",
	"costs",
	"datasets",
	"dataset_keywords",
	"metadata",
	"dataset_metadata",
	"security_privacy_statements",
	"technical_resources",
	"hosts",
	"distributions",
	"licenses",
	"identifiers",
}

// applyPragmas sets required SQLite configuration.
func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	return nil
}

// applySchema creates tables if they don't exist and runs migrations.
// This function is idempotent.
func applySchema(db *sql.DB, d dialect) error {
	if d == dialectSQLite {
		// Databases created before work_type existed need the column before
		// the schema's CREATE statements are re-run.
		if err := migrateSQLite(db); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}

	if d == dialectPostgres {
		_, err := db.Exec(`ALTER TABLE identifiers ADD COLUMN IF NOT EXISTS work_type TEXT NOT NULL DEFAULT ''`)
		if err != nil {
			return fmt.Errorf("migrate identifiers.work_type: %w", err)
		}
		return nil
	}

	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}
	return nil
}

// migrateSQLite applies incremental migrations based on user_version.
func migrateSQLite(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}

	if version == 1 {
		if err := migrateToV2(db); err != nil {
			return err
		}
	}
	return nil
}

// migrateToV2 adds identifiers.work_type for databases created at v1.
func migrateToV2(db *sql.DB) error {
	_, err := db.Exec(`ALTER TABLE identifiers ADD COLUMN work_type TEXT NOT NULL DEFAULT ''`)
	if err != nil && !strings.Contains(err.Error(), "duplicate column") {
		return fmt.Errorf("migrate to v2: %w", err)
	}
	return nil
}

// verifyPragma checks that a pragma is set to the expected value.
// Used for testing.
func (s *Store) verifyPragma(name, expected string) error {
	var value string
	query := fmt.Sprintf("PRAGMA %s", name)
	if err := s.db.QueryRow(query).Scan(&value); err != nil {
		return fmt.Errorf("failed to query %s: %w", name, err)
	}
	if value != expected {
		return fmt.Errorf("%s = %q, expected %q", name, value, expected)
	}
	return nil
}
