package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/golang-migrate/migrate/v4"
	migratepostgres "github.com/golang-migrate/migrate/v4/database/postgres"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/lib/pq"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/SHESHU45/UrumiAssignment/migrations"
)

// Dialect selects the SQL flavor of the backing database.
type Dialect string

// Supported dialects.
const (
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite"
)

const (
	defaultPageLimit = 100
	maxPageLimit     = 1000
)

// SQLStore implements Store over database/sql using squirrel-built queries.
type SQLStore struct {
	db      *sql.DB
	sb      sq.StatementBuilderType
	dialect Dialect
	now     func() time.Time
}

// NewPostgresStore creates a store backed by PostgreSQL.
func NewPostgresStore(db *sql.DB) *SQLStore {
	return newSQLStore(db, DialectPostgres)
}

// NewSQLiteStore creates a store backed by SQLite.
func NewSQLiteStore(db *sql.DB) *SQLStore {
	return newSQLStore(db, DialectSQLite)
}

func newSQLStore(db *sql.DB, dialect Dialect) *SQLStore {
	var placeholder sq.PlaceholderFormat = sq.Question
	if dialect == DialectPostgres {
		placeholder = sq.Dollar
	}
	return &SQLStore{
		db:      db,
		sb:      sq.StatementBuilder.PlaceholderFormat(placeholder),
		dialect: dialect,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Open connects to the database for the given dialect.
func Open(ctx context.Context, dialect Dialect, dsn string) (*sql.DB, error) {
	var driverName string
	switch dialect {
	case DialectPostgres:
		driverName = "postgres"
	case DialectSQLite:
		driverName = "sqlite"
	default:
		return nil, fmt.Errorf("unsupported dialect %q", dialect)
	}

	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("opening %s database: %w", dialect, err)
	}
	if dialect == DialectSQLite {
		// One writer connection keeps SQLite free of SQLITE_BUSY and makes
		// :memory: databases visible to every query.
		db.SetMaxOpenConns(1)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("connecting to %s database: %w", dialect, err)
	}
	return db, nil
}

// MigrationResult reports the schema version after migration.
type MigrationResult struct {
	Version uint
	Dirty   bool
}

// Migrate applies the embedded migrations for the dialect.
func Migrate(db *sql.DB, dialect Dialect) (MigrationResult, error) {
	source, err := iofs.New(migrations.FS, string(dialect))
	if err != nil {
		return MigrationResult{}, fmt.Errorf("loading %s migrations: %w", dialect, err)
	}

	var m *migrate.Migrate
	switch dialect {
	case DialectPostgres:
		driver, driverErr := migratepostgres.WithInstance(db, &migratepostgres.Config{})
		if driverErr != nil {
			return MigrationResult{}, fmt.Errorf("creating postgres migration driver: %w", driverErr)
		}
		m, err = migrate.NewWithInstance("iofs", source, "postgres", driver)
	case DialectSQLite:
		driver, driverErr := migratesqlite.WithInstance(db, &migratesqlite.Config{})
		if driverErr != nil {
			return MigrationResult{}, fmt.Errorf("creating sqlite migration driver: %w", driverErr)
		}
		m, err = migrate.NewWithInstance("iofs", source, "sqlite", driver)
	default:
		return MigrationResult{}, fmt.Errorf("unsupported dialect %q", dialect)
	}
	if err != nil {
		return MigrationResult{}, fmt.Errorf("initializing migrations: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return MigrationResult{}, fmt.Errorf("applying migrations: %w", err)
	}

	version, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return MigrationResult{}, fmt.Errorf("reading migration version: %w", err)
	}
	return MigrationResult{Version: version, Dirty: dirty}, nil
}

// Ping checks database connectivity.
func (s *SQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		code := liteErr.Code()
		if code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY {
			return true
		}
		return code&0xff == sqlite3.SQLITE_CONSTRAINT && strings.Contains(liteErr.Error(), "UNIQUE")
	}
	return false
}

func rowsAffectedAsInt(res sql.Result, operation string) (int, error) {
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("reading rows affected for %s: %w", operation, err)
	}
	return int(affected), nil
}

func optionalTimeValue(v *time.Time) any {
	if v == nil {
		return nil
	}
	return v.UTC()
}

func optionalStringValue(v *string) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullTimePtr(v sql.NullTime) *time.Time {
	if !v.Valid {
		return nil
	}
	t := v.Time.UTC()
	return &t
}

func nullStringPtr(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}

func normalizePageLimit(limit int) int {
	if limit <= 0 {
		return defaultPageLimit
	}
	if limit > maxPageLimit {
		return maxPageLimit
	}
	return limit
}
