package orders

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/jkoufopoulos/shopq-prototype-sub003/internal/models"
	"github.com/jkoufopoulos/shopq-prototype-sub003/internal/store"
)

// Tx accumulates Order, index, email and rule mutations and commits them as a
// single store batch. Reads through the Tx see its own pending writes.
//
// A Tx is not safe for concurrent use; callers serialise writers.
type Tx struct {
	repo      *Repository
	batch     *store.Batch
	merchants map[string][]string
	committed bool
}

// Begin starts a new write transaction.
func (r *Repository) Begin() *Tx {
	return &Tx{
		repo:      r,
		batch:     store.NewBatch(),
		merchants: make(map[string][]string),
	}
}

// SaveOrder writes next and moves its index entries from the state described
// by prev. prev is nil for a new Order.
func (t *Tx) SaveOrder(ctx context.Context, prev, next *models.Order) error {
	if next.OrderKey == "" {
		return fmt.Errorf("failed to save order: empty order key")
	}

	data, err := json.Marshal(next)
	if err != nil {
		return fmt.Errorf("failed to encode order %s: %w", next.OrderKey, err)
	}
	t.batch.Put(orderKey(next.OrderKey), data)

	var prevOrderID, prevTracking, prevMerchant string
	if prev != nil {
		prevMerchant = normalizedMerchant(prev)
		if prev.OrderID != "" {
			prevOrderID = orderIDIndexKey(orderIDScope(prev), prev.OrderID)
		}
		if prev.TrackingNumber != "" {
			prevTracking = trackingIndexKey(prev.TrackingNumber)
		}
	}

	nextMerchant := normalizedMerchant(next)
	var nextOrderID, nextTracking string
	if next.OrderID != "" {
		nextOrderID = orderIDIndexKey(orderIDScope(next), next.OrderID)
	}
	if next.TrackingNumber != "" {
		nextTracking = trackingIndexKey(next.TrackingNumber)
	}

	if err := t.moveIndex(ctx, prevOrderID, nextOrderID, next.OrderKey); err != nil {
		return err
	}
	if err := t.moveIndex(ctx, prevTracking, nextTracking, next.OrderKey); err != nil {
		return err
	}

	if prev != nil && prevMerchant != nextMerchant {
		if err := t.removeFromMerchant(ctx, prevMerchant, next.OrderKey); err != nil {
			return err
		}
	}
	return t.addToMerchant(ctx, nextMerchant, next.OrderKey)
}

// DeleteOrder removes o together with every index entry that points at it.
func (t *Tx) DeleteOrder(ctx context.Context, o *models.Order) error {
	t.batch.Delete(orderKey(o.OrderKey))

	merchant := normalizedMerchant(o)
	if o.OrderID != "" {
		if err := t.dropIndexIfOwned(ctx, orderIDIndexKey(orderIDScope(o), o.OrderID), o.OrderKey); err != nil {
			return err
		}
	}
	if o.TrackingNumber != "" {
		if err := t.dropIndexIfOwned(ctx, trackingIndexKey(o.TrackingNumber), o.OrderKey); err != nil {
			return err
		}
	}
	return t.removeFromMerchant(ctx, merchant, o.OrderKey)
}

func (t *Tx) PutEmail(e *models.OrderEmail) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to encode email %s: %w", e.EmailID, err)
	}
	t.batch.Put(emailKey(e.EmailID), data)
	return nil
}

func (t *Tx) PutRule(rule *models.MerchantRule) error {
	data, err := json.Marshal(rule)
	if err != nil {
		return fmt.Errorf("failed to encode rule %s: %w", rule.MerchantDomain, err)
	}
	t.batch.Put(ruleKey(rule.MerchantDomain), data)
	return nil
}

func (t *Tx) DeleteRule(domain string) {
	t.batch.Delete(ruleKey(domain))
}

// Commit writes every pending mutation in one batch. A Tx can only be
// committed once.
func (t *Tx) Commit(ctx context.Context) error {
	if t.committed {
		return fmt.Errorf("failed to commit: transaction already committed")
	}
	t.committed = true

	for merchant, keys := range t.merchants {
		if len(keys) == 0 {
			t.batch.Delete(merchantIndexKey(merchant))
			continue
		}
		data, err := json.Marshal(keys)
		if err != nil {
			return fmt.Errorf("failed to encode merchant index %s: %w", merchant, err)
		}
		t.batch.Put(merchantIndexKey(merchant), data)
	}

	if err := t.repo.kv.BatchWrite(ctx, t.batch); err != nil {
		return fmt.Errorf("failed to commit order batch: %w", err)
	}
	return nil
}

func (t *Tx) moveIndex(ctx context.Context, from, to, owner string) error {
	if from == to {
		if to != "" {
			t.batch.Put(to, []byte(owner))
		}
		return nil
	}
	if from != "" {
		if err := t.dropIndexIfOwned(ctx, from, owner); err != nil {
			return err
		}
	}
	if to != "" {
		t.batch.Put(to, []byte(owner))
	}
	return nil
}

func (t *Tx) dropIndexIfOwned(ctx context.Context, key, owner string) error {
	current, ok, err := t.read(ctx, key)
	if err != nil {
		return err
	}
	if ok && string(current) == owner {
		t.batch.Delete(key)
	}
	return nil
}

func (t *Tx) read(ctx context.Context, key string) ([]byte, bool, error) {
	if v, ok := t.batch.Pending(key); ok {
		return v, v != nil, nil
	}
	raw, err := t.repo.kv.BatchRead(ctx, []string{key})
	if err != nil {
		return nil, false, fmt.Errorf("failed to read %s: %w", key, err)
	}
	v, ok := raw[key]
	return v, ok, nil
}

func (t *Tx) merchantKeys(ctx context.Context, merchant string) ([]string, error) {
	if keys, ok := t.merchants[merchant]; ok {
		return keys, nil
	}
	keys, err := t.repo.MerchantOrders(ctx, merchant)
	if err != nil {
		return nil, err
	}
	t.merchants[merchant] = keys
	return keys, nil
}

func (t *Tx) addToMerchant(ctx context.Context, merchant, key string) error {
	keys, err := t.merchantKeys(ctx, merchant)
	if err != nil {
		return err
	}
	i := sort.SearchStrings(keys, key)
	if i < len(keys) && keys[i] == key {
		return nil
	}
	keys = append(keys, "")
	copy(keys[i+1:], keys[i:])
	keys[i] = key
	t.merchants[merchant] = keys
	return nil
}

func (t *Tx) removeFromMerchant(ctx context.Context, merchant, key string) error {
	keys, err := t.merchantKeys(ctx, merchant)
	if err != nil {
		return err
	}
	out := keys[:0:0]
	for _, k := range keys {
		if k != key {
			out = append(out, k)
		}
	}
	t.merchants[merchant] = out
	return nil
}
