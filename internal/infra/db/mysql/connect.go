package mysql

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/go-sql-driver/mysql"

	"github.com/bryanwahyu/automaton-cam/internal/infra/db/sqlstore"
)

func Connect(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	// test ping
	ctx2, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx2); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// NewAnalysisRepository returns the analysis store backed by db
func NewAnalysisRepository(db *sql.DB) *sqlstore.Repository {
	return sqlstore.New(db, Dialect)
}
