// Package orders persists Orders, processed messages and merchant rules on a
// store.KV, together with the order-id, tracking-number and merchant indices.
package orders

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/jkoufopoulos/shopq-prototype-sub003/internal/models"
	"github.com/jkoufopoulos/shopq-prototype-sub003/internal/store"
)

var (
	ErrOrderNotFound = errors.New("order not found")
	ErrEmailNotFound = errors.New("email not found")
	ErrRuleNotFound  = errors.New("merchant rule not found")
)

type Repository struct {
	kv store.KV
}

func NewRepository(kv store.KV) *Repository {
	return &Repository{kv: kv}
}

// GetOrder loads a single Order by its surrogate key.
func (r *Repository) GetOrder(ctx context.Context, key string) (*models.Order, error) {
	got, err := r.GetOrders(ctx, []string{key})
	if err != nil {
		return nil, err
	}
	o, ok := got[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrOrderNotFound, key)
	}
	return o, nil
}

// GetOrders loads the Orders that exist among keys.
func (r *Repository) GetOrders(ctx context.Context, keys []string) (map[string]*models.Order, error) {
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = orderKey(k)
	}
	raw, err := r.kv.BatchRead(ctx, full)
	if err != nil {
		return nil, fmt.Errorf("failed to read orders: %w", err)
	}

	out := make(map[string]*models.Order, len(raw))
	for k, v := range raw {
		var o models.Order
		if err := json.Unmarshal(v, &o); err != nil {
			return nil, fmt.Errorf("failed to decode %s: %w", k, err)
		}
		out[o.OrderKey] = &o
	}
	return out, nil
}

// ListOrders returns every Order, oldest first.
func (r *Repository) ListOrders(ctx context.Context) ([]*models.Order, error) {
	raw, err := r.kv.ScanPrefix(ctx, prefixOrder)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}

	out := make([]*models.Order, 0, len(raw))
	for k, v := range raw {
		var o models.Order
		if err := json.Unmarshal(v, &o); err != nil {
			return nil, fmt.Errorf("failed to decode %s: %w", k, err)
		}
		out = append(out, &o)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].OrderKey < out[j].OrderKey
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// LookupOrderID resolves an order id to an order key within scope, as
// returned by OrderIDScope.
func (r *Repository) LookupOrderID(ctx context.Context, scope, id string) (string, bool, error) {
	return r.lookup(ctx, orderIDIndexKey(scope, id))
}

// LookupTracking resolves a tracking number to an order key.
func (r *Repository) LookupTracking(ctx context.Context, number string) (string, bool, error) {
	return r.lookup(ctx, trackingIndexKey(number))
}

func (r *Repository) lookup(ctx context.Context, key string) (string, bool, error) {
	raw, err := r.kv.BatchRead(ctx, []string{key})
	if err != nil {
		return "", false, fmt.Errorf("failed to read index %s: %w", key, err)
	}
	v, ok := raw[key]
	if !ok {
		return "", false, nil
	}
	return string(v), true, nil
}

// MerchantOrders returns the keys of every Order filed under a normalised
// merchant.
func (r *Repository) MerchantOrders(ctx context.Context, merchant string) ([]string, error) {
	key := merchantIndexKey(merchant)
	raw, err := r.kv.BatchRead(ctx, []string{key})
	if err != nil {
		return nil, fmt.Errorf("failed to read merchant index: %w", err)
	}
	return decodeKeyList(raw[key])
}

// GetEmail loads the processed-message record for id.
func (r *Repository) GetEmail(ctx context.Context, id string) (*models.OrderEmail, error) {
	got, err := r.GetEmails(ctx, []string{id})
	if err != nil {
		return nil, err
	}
	e, ok := got[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrEmailNotFound, id)
	}
	return e, nil
}

// GetEmails loads the processed-message records that exist among ids.
func (r *Repository) GetEmails(ctx context.Context, ids []string) (map[string]*models.OrderEmail, error) {
	full := make([]string, len(ids))
	for i, id := range ids {
		full[i] = emailKey(id)
	}
	raw, err := r.kv.BatchRead(ctx, full)
	if err != nil {
		return nil, fmt.Errorf("failed to read emails: %w", err)
	}

	out := make(map[string]*models.OrderEmail, len(raw))
	for k, v := range raw {
		var e models.OrderEmail
		if err := json.Unmarshal(v, &e); err != nil {
			return nil, fmt.Errorf("failed to decode %s: %w", k, err)
		}
		out[e.EmailID] = &e
	}
	return out, nil
}

// GetRule returns the merchant rule for domain.
func (r *Repository) GetRule(ctx context.Context, domain string) (*models.MerchantRule, error) {
	key := ruleKey(domain)
	raw, err := r.kv.BatchRead(ctx, []string{key})
	if err != nil {
		return nil, fmt.Errorf("failed to read merchant rule: %w", err)
	}
	v, ok := raw[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRuleNotFound, domain)
	}
	var rule models.MerchantRule
	if err := json.Unmarshal(v, &rule); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", key, err)
	}
	return &rule, nil
}

// RuleDays returns the merchant rule window that applies to o, looked up by
// normalised merchant first and sender domain second.
func (r *Repository) RuleDays(ctx context.Context, o *models.Order) (*int, error) {
	keys := []string{ruleKey(o.NormalizedMerchant)}
	if o.MerchantDomain != "" {
		keys = append(keys, ruleKey(o.MerchantDomain))
	}
	raw, err := r.kv.BatchRead(ctx, keys)
	if err != nil {
		return nil, fmt.Errorf("failed to read merchant rule: %w", err)
	}
	for _, k := range keys {
		v, ok := raw[k]
		if !ok {
			continue
		}
		var rule models.MerchantRule
		if err := json.Unmarshal(v, &rule); err != nil {
			return nil, fmt.Errorf("failed to decode %s: %w", k, err)
		}
		days := rule.ReturnWindowDays
		return &days, nil
	}
	return nil, nil
}

// ListRules returns every merchant rule sorted by domain.
func (r *Repository) ListRules(ctx context.Context) ([]*models.MerchantRule, error) {
	raw, err := r.kv.ScanPrefix(ctx, prefixRule)
	if err != nil {
		return nil, fmt.Errorf("failed to list merchant rules: %w", err)
	}

	out := make([]*models.MerchantRule, 0, len(raw))
	for k, v := range raw {
		var rule models.MerchantRule
		if err := json.Unmarshal(v, &rule); err != nil {
			return nil, fmt.Errorf("failed to decode %s: %w", k, err)
		}
		out = append(out, &rule)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MerchantDomain < out[j].MerchantDomain })
	return out, nil
}

// Reset deletes every record. Used by tests and `setup --reset`.
func (r *Repository) Reset(ctx context.Context) error {
	b := store.NewBatch()
	for _, prefix := range []string{prefixOrder, prefixEmail, prefixRule, "idx:"} {
		raw, err := r.kv.ScanPrefix(ctx, prefix)
		if err != nil {
			return fmt.Errorf("failed to scan %s: %w", prefix, err)
		}
		for k := range raw {
			b.Delete(k)
		}
	}
	return r.kv.BatchWrite(ctx, b)
}

func decodeKeyList(v []byte) ([]string, error) {
	if len(v) == 0 {
		return nil, nil
	}
	var keys []string
	if err := json.Unmarshal(v, &keys); err != nil {
		return nil, fmt.Errorf("failed to decode key list: %w", err)
	}
	return keys, nil
}

func normalizedMerchant(o *models.Order) string {
	return strings.ToLower(o.NormalizedMerchant)
}

// orderIDScope is the namespace of o's order id: the normalised merchant,
// or the sender domain when the merchant is unknown.
func orderIDScope(o *models.Order) string {
	return OrderIDScope(o.NormalizedMerchant, o.MerchantDomain)
}

// OrderIDScope picks the order-id namespace for a merchant and sender domain.
func OrderIDScope(merchant, domain string) string {
	if merchant != "" {
		return strings.ToLower(merchant)
	}
	return "@" + strings.ToLower(domain)
}
