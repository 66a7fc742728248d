package database

import (
	"context"
	"fmt"
)

// KVTable holds every record and index entry of the order store.
const KVTable = "shopq_kv"

// Dialect captures the handful of statements that differ between engines.
type Dialect struct {
	Name   string
	Driver string
	// CreateKV creates the key-value table.
	CreateKV string
	// Upsert inserts or replaces one key. Written with ? placeholders and
	// rebound per driver.
	Upsert string
}

var dialects = map[string]Dialect{
	"mysql": {
		Name:   "mysql",
		Driver: "mysql",
		CreateKV: `CREATE TABLE IF NOT EXISTS shopq_kv (
		    k VARCHAR(255) NOT NULL PRIMARY KEY,
		    v LONGBLOB NOT NULL,
		    updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
		Upsert: `INSERT INTO shopq_kv (k, v) VALUES (?, ?) ON DUPLICATE KEY UPDATE v = VALUES(v)`,
	},
	"sqlite": {
		Name:   "sqlite",
		Driver: "sqlite",
		CreateKV: `CREATE TABLE IF NOT EXISTS shopq_kv (
		    k TEXT NOT NULL PRIMARY KEY,
		    v BLOB NOT NULL,
		    updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		Upsert: `INSERT INTO shopq_kv (k, v) VALUES (?, ?) ON CONFLICT (k) DO UPDATE SET v = excluded.v`,
	},
	"postgres": {
		Name:   "postgres",
		Driver: "postgres",
		CreateKV: `CREATE TABLE IF NOT EXISTS shopq_kv (
		    k TEXT NOT NULL PRIMARY KEY,
		    v BYTEA NOT NULL,
		    updated_at TIMESTAMPTZ DEFAULT NOW()
		)`,
		Upsert: `INSERT INTO shopq_kv (k, v) VALUES (?, ?) ON CONFLICT (k) DO UPDATE SET v = EXCLUDED.v`,
	},
}

// DialectFor returns the dialect registered for a store backend name.
func DialectFor(backend string) (Dialect, error) {
	d, ok := dialects[backend]
	if !ok {
		return Dialect{}, fmt.Errorf("unsupported SQL backend: %s", backend)
	}
	return d, nil
}

// SetupSchema creates the key-value table
func (db *DB) SetupSchema(ctx context.Context) error {
	if _, err := db.ExecContext(ctx, db.Dialect.CreateKV); err != nil {
		return fmt.Errorf("failed to create %s: %w", KVTable, err)
	}
	return nil
}
