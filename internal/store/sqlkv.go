package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"

	"github.com/jkoufopoulos/shopq-prototype-sub003/internal/database"
)

// SQLKV stores records in the shopq_kv table. Each batch is one transaction.
type SQLKV struct {
	db *database.DB
}

func NewSQLKV(db *database.DB) *SQLKV {
	return &SQLKV{db: db}
}

type kvRow struct {
	K string `db:"k"`
	V []byte `db:"v"`
}

func (s *SQLKV) BatchRead(ctx context.Context, keys []string) (map[string][]byte, error) {
	out := make(map[string][]byte, len(keys))
	if len(keys) == 0 {
		return out, nil
	}

	query, args, err := sqlx.In("SELECT k, v FROM shopq_kv WHERE k IN (?)", keys)
	if err != nil {
		return nil, fmt.Errorf("failed to expand batch read: %w", err)
	}

	var rows []kvRow
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to batch read %d keys: %w", len(keys), err)
	}
	for _, r := range rows {
		out[r.K] = r.V
	}
	return out, nil
}

func (s *SQLKV) BatchWrite(ctx context.Context, b *Batch) (err error) {
	if b.Len() == 0 {
		return nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				log.Error().Err(rbErr).Msg("store: failed to rollback batch")
			}
			return
		}
		if commitErr := tx.Commit(); commitErr != nil {
			err = fmt.Errorf("failed to commit batch: %w", commitErr)
		}
	}()

	upsert := tx.Rebind(s.db.Dialect.Upsert)
	for _, kv := range b.Puts() {
		if _, err = tx.ExecContext(ctx, upsert, kv.Key, kv.Value); err != nil {
			return fmt.Errorf("failed to write %s: %w", kv.Key, err)
		}
	}

	del := tx.Rebind("DELETE FROM shopq_kv WHERE k = ?")
	for _, k := range b.Deletes() {
		if _, err = tx.ExecContext(ctx, del, k); err != nil {
			return fmt.Errorf("failed to delete %s: %w", k, err)
		}
	}
	return nil
}

func (s *SQLKV) ScanPrefix(ctx context.Context, prefix string) (map[string][]byte, error) {
	query := s.db.Rebind("SELECT k, v FROM shopq_kv WHERE k LIKE ? ESCAPE '!'")

	var rows []kvRow
	if err := s.db.SelectContext(ctx, &rows, query, escapeLike(prefix)+"%"); err != nil {
		return nil, fmt.Errorf("failed to scan prefix %s: %w", prefix, err)
	}

	// LIKE is case-insensitive on some engines
	out := make(map[string][]byte, len(rows))
	for _, r := range rows {
		if strings.HasPrefix(r.K, prefix) {
			out[r.K] = r.V
		}
	}
	return out, nil
}

func (s *SQLKV) Close() error {
	return s.db.Close()
}

var likeEscaper = strings.NewReplacer("!", "!!", "%", "!%", "_", "!_")

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

// Compile-time interface check
var _ KV = (*SQLKV)(nil)
