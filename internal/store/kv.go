// Package store provides the transactional key-value contract the order
// repository is built on, with memory, SQL and Redis engines.
package store

import (
	"context"
	"errors"
	"sort"
)

var ErrClosed = errors.New("store is closed")

// KV is a transactional key-value store. BatchWrite must apply every put and
// delete of a batch atomically or not at all.
type KV interface {
	BatchRead(ctx context.Context, keys []string) (map[string][]byte, error)
	BatchWrite(ctx context.Context, b *Batch) error
	ScanPrefix(ctx context.Context, prefix string) (map[string][]byte, error)
	Close() error
}

// Batch is an ordered-independent set of mutations. A later Put or Delete on
// the same key replaces the earlier one.
type Batch struct {
	ops map[string][]byte
	del map[string]bool
}

func NewBatch() *Batch {
	return &Batch{ops: make(map[string][]byte), del: make(map[string]bool)}
}

func (b *Batch) Put(key string, value []byte) {
	b.ops[key] = value
	delete(b.del, key)
}

func (b *Batch) Delete(key string) {
	delete(b.ops, key)
	b.del[key] = true
}

// Len is the number of distinct keys touched.
func (b *Batch) Len() int {
	return len(b.ops) + len(b.del)
}

// Puts returns the pending writes sorted by key.
func (b *Batch) Puts() []KeyValue {
	out := make([]KeyValue, 0, len(b.ops))
	for k, v := range b.ops {
		out = append(out, KeyValue{Key: k, Value: v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// Deletes returns the pending deletions sorted by key.
func (b *Batch) Deletes() []string {
	out := make([]string, 0, len(b.del))
	for k := range b.del {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Pending returns the value a key will have after the batch commits. The
// second result is false when the batch does not touch the key.
func (b *Batch) Pending(key string) ([]byte, bool) {
	if v, ok := b.ops[key]; ok {
		return v, true
	}
	if b.del[key] {
		return nil, true
	}
	return nil, false
}

type KeyValue struct {
	Key   string
	Value []byte
}
