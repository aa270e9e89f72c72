package db

import (
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"  // postgres driver
	_ "modernc.org/sqlite" // embedded sqlite driver
)

// DB holds the database connection for the metadata index.
type DB struct {
	*sqlx.DB
}

// schema is portable across postgres and sqlite: text UUID primary
// keys generated in Go, timestamps written in Go, and the
// (package_id, version) uniqueness enforced by constraint so
// concurrent publishes of the same pair race inside the database,
// not in application code.
const schema = `
CREATE TABLE IF NOT EXISTS users (
    id            TEXT PRIMARY KEY,
    username      TEXT NOT NULL UNIQUE,
    password_hash TEXT NOT NULL,
    created_at    TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS tokens (
    id           TEXT PRIMARY KEY,
    user_id      TEXT NOT NULL REFERENCES users(id),
    name         TEXT,
    token_hash   TEXT NOT NULL UNIQUE,
    created_at   TIMESTAMP NOT NULL,
    expires_at   TIMESTAMP,
    last_used_at TIMESTAMP
);

CREATE TABLE IF NOT EXISTS packages (
    id          TEXT PRIMARY KEY,
    name        TEXT NOT NULL UNIQUE,
    description TEXT NOT NULL DEFAULT '',
    created_at  TIMESTAMP NOT NULL,
    updated_at  TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS versions (
    id           TEXT PRIMARY KEY,
    package_id   TEXT NOT NULL REFERENCES packages(id),
    version      TEXT NOT NULL,
    digest       TEXT NOT NULL,
    size_bytes   INTEGER NOT NULL,
    publisher    TEXT NOT NULL,
    dependencies TEXT NOT NULL,
    published_at TIMESTAMP NOT NULL,
    UNIQUE (package_id, version)
);

CREATE INDEX IF NOT EXISTS idx_versions_digest ON versions(digest)
`

// driverFor picks the SQL driver from the configured URL: postgres
// URLs use lib/pq, anything else is treated as a sqlite path or DSN.
func driverFor(databaseURL string) string {
	if strings.HasPrefix(databaseURL, "postgres://") || strings.HasPrefix(databaseURL, "postgresql://") {
		return "postgres"
	}
	return "sqlite"
}

// Connect opens the metadata index database and applies the schema.
func Connect(databaseURL string) (*DB, error) {
	driver := driverFor(databaseURL)

	sqlxDB, err := sqlx.Connect(driver, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s database: %w", driver, err)
	}

	if driver == "sqlite" {
		// A single connection avoids SQLITE_BUSY under concurrent
		// publishes; the constraint check still serializes in SQL.
		sqlxDB.SetMaxOpenConns(1)
	}

	db := &DB{sqlxDB}
	if err := db.Migrate(); err != nil {
		sqlxDB.Close()
		return nil, err
	}

	return db, nil
}

// Migrate applies the schema. Statements are idempotent.
func (db *DB) Migrate() error {
	for _, stmt := range strings.Split(schema, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.DB.Close()
}

// Health checks if the database connection is healthy.
func (db *DB) Health() error {
	return db.Ping()
}
