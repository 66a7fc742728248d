package store

import (
	"context"
	"os"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jkoufopoulos/shopq-prototype-sub003/internal/database"
)

// runConformance exercises the behaviour every KV engine must share.
func runConformance(t *testing.T, kv KV) {
	ctx := context.Background()

	t.Run("read missing keys", func(t *testing.T) {
		got, err := kv.BatchRead(ctx, []string{"nope:1", "nope:2"})
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("batch put then read", func(t *testing.T) {
		b := NewBatch()
		b.Put("order:a", []byte(`{"k":"a"}`))
		b.Put("order:b", []byte(`{"k":"b"}`))
		b.Put("idx:tracking:1Z", []byte(`"a"`))
		require.NoError(t, kv.BatchWrite(ctx, b))

		got, err := kv.BatchRead(ctx, []string{"order:a", "order:b", "order:c"})
		require.NoError(t, err)
		assert.Len(t, got, 2)
		assert.Equal(t, `{"k":"a"}`, string(got["order:a"]))
	})

	t.Run("overwrite and delete in one batch", func(t *testing.T) {
		b := NewBatch()
		b.Put("order:a", []byte(`{"k":"a2"}`))
		b.Delete("order:b")
		require.NoError(t, kv.BatchWrite(ctx, b))

		got, err := kv.BatchRead(ctx, []string{"order:a", "order:b"})
		require.NoError(t, err)
		assert.Equal(t, `{"k":"a2"}`, string(got["order:a"]))
		assert.NotContains(t, got, "order:b")
	})

	t.Run("scan prefix", func(t *testing.T) {
		b := NewBatch()
		b.Put("order:x_y", []byte(`1`))
		b.Put("orderz", []byte(`2`))
		require.NoError(t, kv.BatchWrite(ctx, b))

		got, err := kv.ScanPrefix(ctx, "order:")
		require.NoError(t, err)
		assert.Contains(t, got, "order:a")
		assert.Contains(t, got, "order:x_y")
		assert.NotContains(t, got, "orderz")
		assert.NotContains(t, got, "idx:tracking:1Z")

		// underscore is literal, not a wildcard
		got, err = kv.ScanPrefix(ctx, "order:x_")
		require.NoError(t, err)
		assert.Len(t, got, 1)
	})

	t.Run("empty batch is a no-op", func(t *testing.T) {
		require.NoError(t, kv.BatchWrite(ctx, NewBatch()))
	})
}

func TestMemoryKV(t *testing.T) {
	kv := NewMemoryKV()
	runConformance(t, kv)

	require.NoError(t, kv.Close())
	_, err := kv.BatchRead(context.Background(), []string{"a"})
	assert.ErrorIs(t, err, ErrClosed)
}

func TestSQLiteKV(t *testing.T) {
	dialect, err := database.DialectFor("sqlite")
	require.NoError(t, err)

	raw, err := sqlx.Open(dialect.Driver, ":memory:")
	require.NoError(t, err)
	// a second connection would see a different in-memory database
	raw.SetMaxOpenConns(1)

	db := database.Wrap(raw, dialect)
	require.NoError(t, db.SetupSchema(context.Background()))

	kv := NewSQLKV(db)
	defer kv.Close()
	runConformance(t, kv)
}

func TestRedisKV(t *testing.T) {
	addr := os.Getenv("SHOPQ_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("SHOPQ_TEST_REDIS_ADDR not set")
	}

	kv := NewRedisKV(addr, "", 0, "shopq-test:"+t.Name()+":")
	require.NoError(t, kv.Ping(context.Background()))
	defer kv.Close()
	runConformance(t, kv)
}

func TestBatch_LastWriteWins(t *testing.T) {
	b := NewBatch()
	b.Put("k", []byte("1"))
	b.Delete("k")
	v, ok := b.Pending("k")
	assert.True(t, ok)
	assert.Nil(t, v)
	assert.Empty(t, b.Puts())
	assert.Equal(t, []string{"k"}, b.Deletes())

	b.Put("k", []byte("2"))
	v, ok = b.Pending("k")
	assert.True(t, ok)
	assert.Equal(t, "2", string(v))
	assert.Empty(t, b.Deletes())
	assert.Equal(t, 1, b.Len())

	_, ok = b.Pending("other")
	assert.False(t, ok)
}

func TestEscapeLike(t *testing.T) {
	assert.Equal(t, "a!_b!%c!!", escapeLike("a_b%c!"))
}
