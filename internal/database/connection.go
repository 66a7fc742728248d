package database

import (
	"fmt"

	_ "github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/jkoufopoulos/shopq-prototype-sub003/internal/config"
)

type DB struct {
	*sqlx.DB
	Dialect Dialect
}

// NewConnection creates a new database connection using the provided config
func NewConnection(cfg *config.StoreConfig) (*DB, error) {
	dialect, err := DialectFor(cfg.Backend)
	if err != nil {
		return nil, err
	}

	db, err := sqlx.Open(dialect.Driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}

	// Test connection
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{DB: db, Dialect: dialect}, nil
}

// Wrap adopts an already-open handle, e.g. a sqlmock connection in tests.
func Wrap(db *sqlx.DB, dialect Dialect) *DB {
	return &DB{DB: db, Dialect: dialect}
}
