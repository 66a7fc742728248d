package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
)

// RedisKV maps the KV contract onto Redis strings. Batches run as
// MULTI/EXEC so readers never observe half of a batch.
type RedisKV struct {
	client *redis.Client
	prefix string
}

// NewRedisKV creates a new store backed by Redis.
func NewRedisKV(addr, password string, db int, prefix string) *RedisKV {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return &RedisKV{client: rdb, prefix: prefix}
}

// Ping verifies connectivity.
func (r *RedisKV) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisKV) BatchRead(ctx context.Context, keys []string) (map[string][]byte, error) {
	out := make(map[string][]byte, len(keys))
	if len(keys) == 0 {
		return out, nil
	}

	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = r.prefix + k
	}

	vals, err := r.client.MGet(ctx, full...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to mget %d keys: %w", len(keys), err)
	}
	for i, v := range vals {
		if s, ok := v.(string); ok {
			out[keys[i]] = []byte(s)
		}
	}
	return out, nil
}

func (r *RedisKV) BatchWrite(ctx context.Context, b *Batch) error {
	if b.Len() == 0 {
		return nil
	}

	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, kv := range b.Puts() {
			pipe.Set(ctx, r.prefix+kv.Key, kv.Value, 0)
		}
		for _, k := range b.Deletes() {
			pipe.Del(ctx, r.prefix+k)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to exec batch: %w", err)
	}
	return nil
}

func (r *RedisKV) ScanPrefix(ctx context.Context, prefix string) (map[string][]byte, error) {
	var keys []string
	iter := r.client.Scan(ctx, 0, r.prefix+prefix+"*", 200).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, strings.TrimPrefix(iter.Val(), r.prefix))
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan prefix %s: %w", prefix, err)
	}
	return r.BatchRead(ctx, keys)
}

func (r *RedisKV) Close() error {
	return r.client.Close()
}

// Compile-time interface check
var _ KV = (*RedisKV)(nil)
