// Package store implements the embedded SQL persistence layer: schema
// management, player/world/clan upserts, leaderboards, snapshots, and
// server-wide aggregation (spec §4.4).
package store

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	"github.com/savecore/humanitz-core/internal/store/migrations"
)

// schemaVersion is bumped whenever the migration ladder grows; written to
// the `meta` table's `schema_version` key on every successful Open (spec
// §4.4 "Initialization").
const schemaVersion = "1"

var gooseOnce sync.Once

// Store wraps a single-writer/many-reader embedded sqlite database plus a
// cache of prepared hot statements (spec §4.4 "Prepared-statement cache").
//
// Grounded on the teacher's internal/db.DB pool-wrapper shape, adapted from
// pgxpool.Pool to database/sql + modernc.org/sqlite: a client-server pool
// has no place in an embedded single-file store, so Store holds one *sql.DB
// configured for a single writer connection and any number of readers.
type Store struct {
	db    *sql.DB
	stmts map[string]*sql.Stmt
	mu    sync.Mutex // serializes writes per spec §4.4 "single-writer"
}

// Open opens (creating if absent) the sqlite database at path, applies
// pending migrations, sets the required pragmas, and prepares hot
// statements (spec §4.4).
func Open(ctx context.Context, path string) (*Store, error) {
	dsn := path + "?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening store at %q: %w", path, err)
	}
	db.SetMaxOpenConns(1) // modernc.org/sqlite serializes through one *sql.DB connection

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging store at %q: %w", path, err)
	}

	if err := runMigrations(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating store at %q: %w", path, err)
	}

	if _, err := db.ExecContext(ctx,
		`INSERT INTO meta(key, value) VALUES ('schema_version', ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`, schemaVersion); err != nil {
		db.Close()
		return nil, fmt.Errorf("writing schema_version: %w", err)
	}

	s := &Store{db: db, stmts: make(map[string]*sql.Stmt)}
	if err := s.prepareStatements(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("preparing statements: %w", err)
	}
	return s, nil
}

func runMigrations(ctx context.Context, db *sql.DB) error {
	var dialectErr error
	gooseOnce.Do(func() {
		goose.SetBaseFS(migrations.FS)
		dialectErr = goose.SetDialect("sqlite3")
	})
	if dialectErr != nil {
		return fmt.Errorf("setting goose dialect: %w", dialectErr)
	}
	return goose.UpContext(ctx, db, ".")
}

// hotStatements names every prepared-at-startup statement keyed by a short
// label used elsewhere in the package.
var hotStatements = map[string]string{
	"upsertPlayer": upsertPlayerSQL,
	"getPlayer":    getPlayerSQL,
	"upsertWorldStateEntry": `
		INSERT INTO world_state(key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
	"upsertServerSetting": `
		INSERT INTO server_settings(key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
	"upsertMeta": `
		INSERT INTO meta(key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
	"getMeta": `SELECT value FROM meta WHERE key = ?`,
}

func (s *Store) prepareStatements(ctx context.Context) error {
	for name, query := range hotStatements {
		stmt, err := s.db.PrepareContext(ctx, query)
		if err != nil {
			return fmt.Errorf("preparing %q: %w", name, err)
		}
		s.stmts[name] = stmt
	}
	return nil
}

func (s *Store) stmt(name string) *sql.Stmt {
	stmt, ok := s.stmts[name]
	if !ok {
		panic(fmt.Sprintf("store: unprepared statement %q", name))
	}
	return stmt
}

// Close releases the prepared statements and the underlying connection.
func (s *Store) Close() error {
	for _, stmt := range s.stmts {
		_ = stmt.Close()
	}
	return s.db.Close()
}

// DB exposes the underlying *sql.DB for callers that need raw access
// (tests, ad-hoc diagnostics).
func (s *Store) DB() *sql.DB { return s.db }

// timeLayout is the text encoding used for every time.Time column; sqlite
// has no native timestamp type, so times are stored as sortable RFC3339.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
