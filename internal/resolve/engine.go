package resolve

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/jkoufopoulos/shopq-prototype-sub003/internal/lifecycle"
	"github.com/jkoufopoulos/shopq-prototype-sub003/internal/models"
	"github.com/jkoufopoulos/shopq-prototype-sub003/internal/orders"
)

var (
	ErrSelfMerge          = errors.New("cannot merge an order into itself")
	ErrIdentifierConflict = errors.New("orders carry conflicting identifiers")
)

// Action says how a message was resolved.
type Action string

const (
	ActionCreated Action = "created"
	ActionLinked  Action = "linked" // primary key
	ActionThread  Action = "thread" // thread hint, fields untouched
	ActionFuzzy   Action = "fuzzy"
	ActionMerged  Action = "merged"
)

type Outcome struct {
	OrderKey string
	Action   Action
	Score    float64
	// MergedKey is the absorbed Order when Action is merged.
	MergedKey string
}

type Options struct {
	Threshold      float64
	TimeWindowDays int
	ThreadHints    bool
}

// Engine runs the resolution pipeline for one observation at a time.
// Callers serialise Upsert calls.
type Engine struct {
	repo      *orders.Repository
	matcher   *Matcher
	lifecycle *lifecycle.Engine
	opts      Options
	now       func() time.Time
	newKey    func() string
}

func NewEngine(repo *orders.Repository, lc *lifecycle.Engine, opts Options) *Engine {
	return &Engine{
		repo:      repo,
		matcher:   NewMatcher(opts.Threshold, opts.TimeWindowDays),
		lifecycle: lc,
		opts:      opts,
		now:       time.Now,
		newKey:    uuid.NewString,
	}
}

// WithClock replaces the time source, for tests and replays.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

// Upsert resolves obs to an Order, applies what it carries and persists the
// Order, its indices and email (when non-nil) in one batch.
func (e *Engine) Upsert(ctx context.Context, obs Observation, email *models.OrderEmail) (Outcome, error) {
	logger := log.With().Str("email_id", obs.EmailID).Str("merchant", obs.Merchant.Normalized).Logger()

	tx := e.repo.Begin()
	out, target, prev, err := e.resolve(ctx, tx, &obs)
	if err != nil {
		return Outcome{}, err
	}

	if out.Action == ActionThread {
		target.AddEmails(obs.EmailID)
		target.UpdatedAt = e.now()
	} else {
		e.apply(target, obs)
		rule, err := e.repo.RuleDays(ctx, target)
		if err != nil {
			return Outcome{}, err
		}
		e.lifecycle.Apply(target, lifecycle.Inputs{RuleDays: rule})
	}

	if err := tx.SaveOrder(ctx, prev, target); err != nil {
		return Outcome{}, err
	}
	if email != nil {
		email.OrderKey = target.OrderKey
		if err := tx.PutEmail(email); err != nil {
			return Outcome{}, err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return Outcome{}, err
	}

	out.OrderKey = target.OrderKey
	logger.Info().
		Str("order_key", out.OrderKey).
		Str("action", string(out.Action)).
		Str("confidence", string(target.DeadlineConfidence)).
		Msg("resolve: message resolved")
	return out, nil
}

// resolve finds the Order obs belongs to: primary key, thread hint, fuzzy
// match, or a fresh Order. It returns the working copy and its stored state.
// Identifiers the Order must not adopt are cleared from obs.
func (e *Engine) resolve(ctx context.Context, tx *orders.Tx, obs *Observation) (Outcome, *models.Order, *models.Order, error) {
	byID, byTracking, err := e.primaryKeys(ctx, *obs)
	if err != nil {
		return Outcome{}, nil, nil, err
	}

	switch {
	case byID != nil && byTracking != nil && byID.OrderKey != byTracking.OrderKey && ordersConflict(byID, byTracking):
		// two distinct purchases: the merchant-scoped order id wins and the
		// tracking entry stays with its owner
		log.Warn().
			Str("email_id", obs.EmailID).
			Str("order_key", byID.OrderKey).
			Str("tracking_owner", byTracking.OrderKey).
			Msg("resolve: identifiers point at conflicting orders, not merging")
		obs.Fields.TrackingNumber = ""
		return Outcome{Action: ActionLinked}, byID.Clone(), byID, nil
	case byID != nil && byTracking != nil && byID.OrderKey != byTracking.OrderKey:
		target, source := byID, byTracking
		if source.CreatedAt.Before(target.CreatedAt) {
			target, source = source, target
		}
		merged, err := e.merge(ctx, tx, target, source, ReasonIdentifierSplit)
		if err != nil {
			return Outcome{}, nil, nil, err
		}
		return Outcome{Action: ActionMerged, MergedKey: source.OrderKey}, merged, target, nil
	case byID != nil:
		return Outcome{Action: ActionLinked}, byID.Clone(), byID, nil
	case byTracking != nil && identifierConflict(obs.Fields, byTracking):
		// the tracking number belongs to a purchase with another order id
		log.Warn().
			Str("email_id", obs.EmailID).
			Str("tracking_owner", byTracking.OrderKey).
			Str("order_id", obs.Fields.OrderID).
			Msg("resolve: tracking number owned by an order with a different order id")
		obs.Fields.TrackingNumber = ""
	case byTracking != nil:
		return Outcome{Action: ActionLinked}, byTracking.Clone(), byTracking, nil
	}

	var candidates []*models.Order
	if obs.Merchant.Normalized != "" {
		// an unknown merchant only ever links by primary key
		candidates, err = e.merchantCandidates(ctx, obs.Merchant.Normalized)
		if err != nil {
			return Outcome{}, nil, nil, err
		}
	}

	if e.opts.ThreadHints && obs.ThreadID != "" {
		hit, err := e.threadHint(ctx, *obs, candidates)
		if err != nil {
			return Outcome{}, nil, nil, err
		}
		if hit != nil {
			return Outcome{Action: ActionThread}, hit.Clone(), hit, nil
		}
	}

	if best, score, ok := e.matcher.Best(*obs, candidates); ok {
		return Outcome{Action: ActionFuzzy, Score: score}, best.Clone(), best, nil
	}

	now := e.now()
	created := &models.Order{
		OrderKey:            e.newKey(),
		MerchantDomain:      obs.Merchant.Domain,
		NormalizedMerchant:  obs.Merchant.Normalized,
		MerchantDisplayName: obs.Merchant.DisplayName,
		DeadlineConfidence:  models.ConfidenceUnknown,
		OrderStatus:         models.OrderStatusActive,
		SourceEmailIDs:      []string{},
		CreatedAt:           obs.ReceivedAt,
		UpdatedAt:           now,
	}
	if created.CreatedAt.IsZero() {
		created.CreatedAt = now
	}
	return Outcome{Action: ActionCreated}, created, nil, nil
}

func (e *Engine) primaryKeys(ctx context.Context, obs Observation) (*models.Order, *models.Order, error) {
	var keys []string
	var idKey, trackingKey string

	if obs.Fields.OrderID != "" {
		k, ok, err := e.repo.LookupOrderID(ctx, orders.OrderIDScope(obs.Merchant.Normalized, obs.Merchant.Domain), obs.Fields.OrderID)
		if err != nil {
			return nil, nil, err
		}
		if ok {
			idKey = k
			keys = append(keys, k)
		}
	}
	if obs.Fields.TrackingNumber != "" {
		k, ok, err := e.repo.LookupTracking(ctx, obs.Fields.TrackingNumber)
		if err != nil {
			return nil, nil, err
		}
		if ok {
			trackingKey = k
			keys = append(keys, k)
		}
	}
	if len(keys) == 0 {
		return nil, nil, nil
	}

	found, err := e.repo.GetOrders(ctx, keys)
	if err != nil {
		return nil, nil, err
	}
	return found[idKey], found[trackingKey], nil
}

func (e *Engine) merchantCandidates(ctx context.Context, merchant string) ([]*models.Order, error) {
	keys, err := e.repo.MerchantOrders(ctx, merchant)
	if err != nil {
		return nil, err
	}
	if len(keys) == 0 {
		return nil, nil
	}
	found, err := e.repo.GetOrders(ctx, keys)
	if err != nil {
		return nil, err
	}
	out := make([]*models.Order, 0, len(found))
	for _, k := range keys {
		if o, ok := found[k]; ok {
			out = append(out, o)
		}
	}
	return out, nil
}

// threadHint returns the most recently updated candidate that already holds
// a message from the same thread. Candidates with conflicting identifiers are
// skipped.
func (e *Engine) threadHint(ctx context.Context, obs Observation, candidates []*models.Order) (*models.Order, error) {
	var ids []string
	for _, c := range candidates {
		ids = append(ids, c.SourceEmailIDs...)
	}
	if len(ids) == 0 {
		return nil, nil
	}
	emails, err := e.repo.GetEmails(ctx, ids)
	if err != nil {
		return nil, err
	}

	var hit *models.Order
	for _, c := range candidates {
		if identifierConflict(obs.Fields, c) {
			continue
		}
		for _, id := range c.SourceEmailIDs {
			em, ok := emails[id]
			if !ok || em.ThreadID != obs.ThreadID {
				continue
			}
			if hit == nil || c.UpdatedAt.After(hit.UpdatedAt) {
				hit = c
			}
			break
		}
	}
	return hit, nil
}

// apply folds the observation's facts into o. Identifiers are only adopted
// when o has none; terminal statuses are never reverted.
func (e *Engine) apply(o *models.Order, obs Observation) {
	f := obs.Fields
	o.AddEmails(obs.EmailID)

	if o.OrderID == "" && f.OrderID != "" {
		o.OrderID = f.OrderID
	}
	if o.TrackingNumber == "" && f.TrackingNumber != "" {
		o.TrackingNumber = f.TrackingNumber
	}
	if o.ItemSummary == "" {
		o.ItemSummary = f.ItemSummary
	}
	if o.Amount == nil && f.Amount != nil {
		a := *f.Amount
		o.Amount = &a
	}
	if o.MerchantDisplayName == "" {
		o.MerchantDisplayName = obs.Merchant.DisplayName
	}

	o.PurchaseDate = earlier(o.PurchaseDate, f.PurchaseDate)
	if o.ShipDate == nil {
		o.ShipDate = models.CloneTime(f.ShipDate)
	}
	if o.DeliveryDate == nil && f.DeliveryDate != nil {
		o.DeliveryDate = models.CloneTime(f.DeliveryDate)
	}
	switch {
	case o.DeliveryDate != nil:
		// an actual delivery supersedes any estimate
		o.EstimatedDeliveryDate = nil
	case f.EstimatedDeliveryDate != nil:
		o.EstimatedDeliveryDate = models.CloneTime(f.EstimatedDeliveryDate)
	}

	if f.FinalSale {
		o.FinalSale = true
	}
	if f.Cancelled && o.OrderStatus == models.OrderStatusActive {
		o.OrderStatus = models.OrderStatusCancelled
	}
	o.UpdatedAt = e.now()
}

// Merge folds source into target as a manual escalation and persists the
// result atomically.
func (e *Engine) Merge(ctx context.Context, targetKey, sourceKey, reason string) (*models.Order, error) {
	if targetKey == sourceKey {
		return nil, fmt.Errorf("%w: %s", ErrSelfMerge, targetKey)
	}
	found, err := e.repo.GetOrders(ctx, []string{targetKey, sourceKey})
	if err != nil {
		return nil, err
	}
	target, ok := found[targetKey]
	if !ok {
		return nil, fmt.Errorf("%w: %s", orders.ErrOrderNotFound, targetKey)
	}
	source, ok := found[sourceKey]
	if !ok {
		return nil, fmt.Errorf("%w: %s", orders.ErrOrderNotFound, sourceKey)
	}
	if ordersConflict(target, source) {
		return nil, fmt.Errorf("%w: %s and %s", ErrIdentifierConflict, targetKey, sourceKey)
	}
	if reason == "" {
		reason = ReasonManual
	}

	tx := e.repo.Begin()
	merged, err := e.merge(ctx, tx, target, source, reason)
	if err != nil {
		return nil, err
	}
	if err := tx.SaveOrder(ctx, target, merged); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return merged, nil
}

// merge reconciles source into target, recomputes the deadline, moves the
// absorbed Order's emails over and stages the source deletion. The caller
// must save the returned survivor in the same Tx.
func (e *Engine) merge(ctx context.Context, tx *orders.Tx, target, source *models.Order, reason string) (*models.Order, error) {
	merged := Reconcile(target, source, reason, e.now())

	rule, err := e.repo.RuleDays(ctx, merged)
	if err != nil {
		return nil, err
	}
	e.lifecycle.Apply(merged, lifecycle.Inputs{RuleDays: rule})

	emails, err := e.repo.GetEmails(ctx, source.SourceEmailIDs)
	if err != nil {
		return nil, err
	}
	for _, em := range emails {
		em.OrderKey = merged.OrderKey
		if err := tx.PutEmail(em); err != nil {
			return nil, err
		}
	}

	// Entries the survivor adopts are dropped here and re-pointed when the
	// caller saves the survivor in the same batch.
	if err := tx.DeleteOrder(ctx, source); err != nil {
		return nil, err
	}

	log.Info().
		Str("order_key", merged.OrderKey).
		Str("merged_key", source.OrderKey).
		Str("reason", reason).
		Msg("resolve: orders merged")
	return merged, nil
}
