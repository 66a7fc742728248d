package store

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/jkoufopoulos/shopq-prototype-sub003/internal/config"
	"github.com/jkoufopoulos/shopq-prototype-sub003/internal/database"
)

// Open returns the KV engine selected by cfg.Backend. SQL engines get their
// table created if it does not exist yet.
func Open(ctx context.Context, cfg *config.StoreConfig) (KV, error) {
	switch cfg.Backend {
	case "memory":
		return NewMemoryKV(), nil
	case "redis":
		kv := NewRedisKV(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, cfg.KeyPrefix)
		if err := kv.Ping(ctx); err != nil {
			_ = kv.Close()
			return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Redis.Addr, err)
		}
		log.Info().Str("addr", cfg.Redis.Addr).Msg("store: connected to redis")
		return kv, nil
	case "sqlite", "mysql", "postgres":
		db, err := database.NewConnection(cfg)
		if err != nil {
			return nil, err
		}
		if err := db.SetupSchema(ctx); err != nil {
			_ = db.Close()
			return nil, err
		}
		log.Info().Str("backend", cfg.Backend).Msg("store: connected to database")
		return NewSQLKV(db), nil
	default:
		return nil, fmt.Errorf("unsupported store backend: %s", cfg.Backend)
	}
}
