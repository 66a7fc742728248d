package orders

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/jkoufopoulos/shopq-prototype-sub003/internal/models"
)

// Problem describes one inconsistency between Orders and their indices.
type Problem struct {
	Key    string `json:"key"`
	Detail string `json:"detail"`
}

func (p Problem) String() string {
	return p.Key + ": " + p.Detail
}

// Verify cross-checks every Order against the three indices and reports
// dangling, missing or mismatched entries. An empty result means the store is
// consistent.
func (r *Repository) Verify(ctx context.Context) ([]Problem, error) {
	list, err := r.ListOrders(ctx)
	if err != nil {
		return nil, err
	}
	byKey := make(map[string]*models.Order, len(list))
	for _, o := range list {
		byKey[o.OrderKey] = o
	}

	idx, err := r.kv.ScanPrefix(ctx, "idx:")
	if err != nil {
		return nil, fmt.Errorf("failed to scan indices: %w", err)
	}

	var problems []Problem
	report := func(key, format string, args ...any) {
		problems = append(problems, Problem{Key: key, Detail: fmt.Sprintf(format, args...)})
	}

	// Orders must be reachable from the entries their fields imply.
	for _, o := range list {
		merchant := normalizedMerchant(o)
		if o.OrderID != "" {
			k := orderIDIndexKey(orderIDScope(o), o.OrderID)
			if got, ok := idx[k]; !ok {
				report(orderKey(o.OrderKey), "missing order_id index entry %s", k)
			} else if string(got) != o.OrderKey {
				report(orderKey(o.OrderKey), "order_id index entry %s points at %s", k, got)
			}
		}
		if o.TrackingNumber != "" {
			k := trackingIndexKey(o.TrackingNumber)
			if got, ok := idx[k]; !ok {
				report(orderKey(o.OrderKey), "missing tracking index entry %s", k)
			} else if string(got) != o.OrderKey {
				report(orderKey(o.OrderKey), "tracking index entry %s points at %s", k, got)
			}
		}
		keys, err := decodeKeyList(idx[merchantIndexKey(merchant)])
		if err != nil {
			return nil, err
		}
		if !containsString(keys, o.OrderKey) {
			report(orderKey(o.OrderKey), "not listed under merchant %s", merchant)
		}
	}

	// Every index entry must point back at an Order that claims it.
	keys := make([]string, 0, len(idx))
	for k := range idx {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		v := idx[k]
		switch {
		case strings.HasPrefix(k, prefixMerchantIdx):
			merchant := strings.TrimPrefix(k, prefixMerchantIdx)
			var listed []string
			if err := json.Unmarshal(v, &listed); err != nil {
				report(k, "undecodable merchant list: %v", err)
				continue
			}
			for _, key := range listed {
				o, ok := byKey[key]
				if !ok {
					report(k, "dangling order %s", key)
				} else if normalizedMerchant(o) != merchant {
					report(k, "order %s belongs to merchant %s", key, normalizedMerchant(o))
				}
			}
		case strings.HasPrefix(k, prefixOrderIDIdx):
			o, ok := byKey[string(v)]
			if !ok {
				report(k, "dangling order %s", v)
			} else if o.OrderID == "" || orderIDIndexKey(orderIDScope(o), o.OrderID) != k {
				report(k, "order %s does not carry this order_id", v)
			}
		case strings.HasPrefix(k, prefixTrackingIdx):
			o, ok := byKey[string(v)]
			if !ok {
				report(k, "dangling order %s", v)
			} else if o.TrackingNumber == "" || trackingIndexKey(o.TrackingNumber) != k {
				report(k, "order %s does not carry this tracking number", v)
			}
		default:
			report(k, "unknown index family")
		}
	}
	return problems, nil
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
