// Package sqlite is the embedded analysis store. It needs no server and is the
// default for single node installs and tests.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/bryanwahyu/automaton-cam/internal/infra/db/sqlstore"
)

// MemoryPath opens a private in-memory database
const MemoryPath = ":memory:"

// Connect opens (creating when needed) the database at path and applies the
// schema. SQLite allows a single writer, so the pool holds one connection.
func Connect(ctx context.Context, path string) (*sql.DB, error) {
	if path != MemoryPath {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create store dir: %w", err)
		}
	}
	dsn := path
	if !strings.Contains(dsn, "?") {
		dsn += "?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	if err := sqlstore.Migrate(ctx, db, Dialect); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate sqlite: %w", err)
	}
	return db, nil
}

func NewAnalysisRepository(db *sql.DB) *sqlstore.Repository {
	return sqlstore.New(db, Dialect)
}
