// Package tracker is the operation surface over the purchase pipeline: it
// reads Orders, applies user intent and serialises every Order mutation
// behind one write lock.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"

	"github.com/jkoufopoulos/shopq-prototype-sub003/internal/enrich"
	"github.com/jkoufopoulos/shopq-prototype-sub003/internal/ingest"
	"github.com/jkoufopoulos/shopq-prototype-sub003/internal/lifecycle"
	"github.com/jkoufopoulos/shopq-prototype-sub003/internal/mailbox"
	"github.com/jkoufopoulos/shopq-prototype-sub003/internal/merchant"
	"github.com/jkoufopoulos/shopq-prototype-sub003/internal/models"
	"github.com/jkoufopoulos/shopq-prototype-sub003/internal/orders"
	"github.com/jkoufopoulos/shopq-prototype-sub003/internal/resolve"
)

var (
	ErrInvalidStatus = errors.New("invalid order status")
	ErrInvalidRule   = errors.New("invalid merchant rule")
	ErrInvalidOrder  = errors.New("invalid order")
)

type Service struct {
	repo      *orders.Repository
	resolver  *resolve.Engine
	lifecycle *lifecycle.Engine
	scanner   *ingest.Scanner
	enricher  *enrich.Orchestrator
	validate  *validator.Validate

	mu  sync.Mutex
	now func() time.Time
}

// New wires the service. The scanner and the enricher are switched over to
// the service's write lock.
func New(repo *orders.Repository, resolver *resolve.Engine, lc *lifecycle.Engine, scanner *ingest.Scanner, enricher *enrich.Orchestrator) *Service {
	s := &Service{
		repo:      repo,
		resolver:  resolver,
		lifecycle: lc,
		scanner:   scanner,
		enricher:  enricher,
		validate:  validator.New(),
		now:       time.Now,
	}
	scanner.WithWriteLock(&s.mu)
	enricher.WithWriteLock(&s.mu)
	return s
}

// WithClock replaces the time source.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

func (s *Service) GetOrder(ctx context.Context, key string) (*models.Order, error) {
	return s.repo.GetOrder(ctx, key)
}

func (s *Service) GetAllOrders(ctx context.Context) ([]*models.Order, error) {
	return s.repo.ListOrders(ctx)
}

// GetOrdersWithDeadlines returns active Orders with a known deadline, soonest
// first.
func (s *Service) GetOrdersWithDeadlines(ctx context.Context) ([]*models.Order, error) {
	all, err := s.repo.ListOrders(ctx)
	if err != nil {
		return nil, err
	}
	var out []*models.Order
	for _, o := range all {
		if o.OrderStatus == models.OrderStatusActive && o.HasDeadline() {
			out = append(out, o)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if !a.ReturnByDate.Equal(*b.ReturnByDate) {
			return a.ReturnByDate.Before(*b.ReturnByDate)
		}
		return a.OrderKey < b.OrderKey
	})
	return out, nil
}

// UpsertOrder runs a caller-supplied Order through the same resolution as a
// scanned message, so it links, merges or creates exactly as mail would.
func (s *Service) UpsertOrder(ctx context.Context, draft *models.Order) (*models.Order, resolve.Outcome, error) {
	if draft == nil || strings.TrimSpace(draft.MerchantDomain) == "" {
		return nil, resolve.Outcome{}, fmt.Errorf("%w: merchant_domain is required", ErrInvalidOrder)
	}

	received := s.now()
	if draft.PurchaseDate != nil {
		received = *draft.PurchaseDate
	}
	obs := resolve.Observation{
		ReceivedAt: received,
		EmailType:  models.EmailTypeConfirmation,
		Merchant:   merchant.Resolve(draft.MerchantDomain, draft.MerchantDisplayName),
		Fields: models.ExtractedFields{
			OrderID:               strings.ToUpper(strings.TrimSpace(draft.OrderID)),
			TrackingNumber:        strings.ToUpper(strings.TrimSpace(draft.TrackingNumber)),
			ItemSummary:           strings.TrimSpace(draft.ItemSummary),
			PurchaseDate:          dayOf(draft.PurchaseDate),
			ShipDate:              dayOf(draft.ShipDate),
			DeliveryDate:          dayOf(draft.DeliveryDate),
			EstimatedDeliveryDate: dayOf(draft.EstimatedDeliveryDate),
			Amount:                draft.Amount,
			FinalSale:             draft.FinalSale,
			Cancelled:             draft.OrderStatus == models.OrderStatusCancelled,
		},
	}

	s.mu.Lock()
	out, err := s.resolver.Upsert(ctx, obs, nil)
	s.mu.Unlock()
	if err != nil {
		return nil, resolve.Outcome{}, fmt.Errorf("failed to upsert order: %w", err)
	}

	o, err := s.repo.GetOrder(ctx, out.OrderKey)
	if err != nil {
		return nil, out, err
	}
	return o, out, nil
}

// UpdateOrderStatus sets the status directly. Terminal statuses may be
// reverted here because the change is explicit.
func (s *Service) UpdateOrderStatus(ctx context.Context, key string, status models.OrderStatus) (*models.Order, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}
	return s.mutate(ctx, key, func(o *models.Order) error {
		o.OrderStatus = status
		return nil
	})
}

// SetManualDeadline records a user-entered deadline. It counts as exact.
func (s *Service) SetManualDeadline(ctx context.Context, key string, returnBy time.Time) (*models.Order, error) {
	if returnBy.IsZero() {
		return nil, fmt.Errorf("%w: return_by_date is required", ErrInvalidOrder)
	}
	return s.mutate(ctx, key, func(o *models.Order) error {
		o.FinalSale = false
		o.WindowSource = models.WindowSourceManual
		o.ExplicitReturnBy = models.DayPtr(returnBy)
		o.EvidenceQuote = ""
		o.EvidenceMessageID = ""
		return s.recompute(ctx, o, false)
	})
}

// InvalidateEvidence drops grounded deadline evidence and recomputes from
// rules. It is the one path allowed to lower confidence.
func (s *Service) InvalidateEvidence(ctx context.Context, key string) (*models.Order, error) {
	return s.mutate(ctx, key, func(o *models.Order) error {
		if !lifecycle.InvalidateEvidence(o) {
			return nil
		}
		return s.recompute(ctx, o, true)
	})
}

func (s *Service) EnrichOrder(ctx context.Context, key string) (enrich.Outcome, error) {
	return s.enricher.EnrichOrder(ctx, key)
}

func (s *Service) EnrichPending(ctx context.Context) ([]enrich.Outcome, error) {
	return s.enricher.EnrichPending(ctx)
}

// MergeOrders folds source into target as a manual escalation.
func (s *Service) MergeOrders(ctx context.Context, targetKey, sourceKey, reason string) (*models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	merged, err := s.resolver.Merge(ctx, targetKey, sourceKey, reason)
	if err != nil {
		return nil, fmt.Errorf("failed to merge orders: %w", err)
	}
	return merged, nil
}

func (s *Service) ListMerchantRules(ctx context.Context) ([]*models.MerchantRule, error) {
	return s.repo.ListRules(ctx)
}

// SetMerchantRule stores a rule and recomputes the deadlines of the active
// Orders it covers in the same batch.
func (s *Service) SetMerchantRule(ctx context.Context, domain string, days int) (*models.MerchantRule, error) {
	rule := &models.MerchantRule{
		MerchantDomain:   strings.ToLower(strings.TrimSpace(domain)),
		ReturnWindowDays: days,
		UpdatedAt:        s.now(),
	}
	if err := s.validate.Struct(rule); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRule, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rules, err := s.ruleTable(ctx)
	if err != nil {
		return nil, err
	}
	rules[rule.MerchantDomain] = days

	tx := s.repo.Begin()
	if err := tx.PutRule(rule); err != nil {
		return nil, err
	}
	n, err := s.recomputeCovered(ctx, tx, rule.MerchantDomain, rules, false)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to store merchant rule: %w", err)
	}

	log.Info().Str("merchant", rule.MerchantDomain).Int("days", days).Int("orders", n).Msg("tracker: merchant rule set")
	return rule, nil
}

// DeleteMerchantRule removes a rule. Orders that relied on it fall back to
// the default window, or to unknown.
func (s *Service) DeleteMerchantRule(ctx context.Context, domain string) error {
	domain = strings.ToLower(strings.TrimSpace(domain))

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.repo.GetRule(ctx, domain); err != nil {
		return err
	}
	rules, err := s.ruleTable(ctx)
	if err != nil {
		return err
	}
	delete(rules, domain)

	tx := s.repo.Begin()
	tx.DeleteRule(domain)
	n, err := s.recomputeCovered(ctx, tx, domain, rules, true)
	if err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to delete merchant rule: %w", err)
	}

	log.Info().Str("merchant", domain).Int("orders", n).Msg("tracker: merchant rule deleted")
	return nil
}

func (s *Service) Scan(ctx context.Context, q mailbox.Query) (*ingest.ScanReport, error) {
	return s.scanner.Scan(ctx, q)
}

func (s *Service) Verify(ctx context.Context) ([]orders.Problem, error) {
	return s.repo.Verify(ctx)
}

// Reset deletes every Order, message record and merchant rule.
func (s *Service) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.repo.Reset(ctx); err != nil {
		return fmt.Errorf("failed to reset store: %w", err)
	}
	return nil
}

// mutate applies fn to a copy of the Order under the write lock and saves
// it.
func (s *Service) mutate(ctx context.Context, key string, fn func(o *models.Order) error) (*models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, err := s.repo.GetOrder(ctx, key)
	if err != nil {
		return nil, err
	}
	next := prev.Clone()
	if err := fn(next); err != nil {
		return nil, err
	}
	next.UpdatedAt = s.now()

	tx := s.repo.Begin()
	if err := tx.SaveOrder(ctx, prev, next); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to save order %s: %w", key, err)
	}
	return next, nil
}

func (s *Service) recompute(ctx context.Context, o *models.Order, allowDowngrade bool) error {
	rule, err := s.repo.RuleDays(ctx, o)
	if err != nil {
		return err
	}
	s.lifecycle.Apply(o, lifecycle.Inputs{RuleDays: rule, AllowDowngrade: allowDowngrade})
	return nil
}

func (s *Service) ruleTable(ctx context.Context) (map[string]int, error) {
	rules, err := s.repo.ListRules(ctx)
	if err != nil {
		return nil, err
	}
	table := make(map[string]int, len(rules))
	for _, r := range rules {
		table[r.MerchantDomain] = r.ReturnWindowDays
	}
	return table, nil
}

// recomputeCovered stages a deadline recompute for every active Order whose
// merchant matches domain, using the rule table as it will be after commit.
func (s *Service) recomputeCovered(ctx context.Context, tx *orders.Tx, domain string, rules map[string]int, allowDowngrade bool) (int, error) {
	all, err := s.repo.ListOrders(ctx)
	if err != nil {
		return 0, err
	}

	n := 0
	for _, prev := range all {
		if prev.OrderStatus != models.OrderStatusActive {
			continue
		}
		if prev.NormalizedMerchant != domain && prev.MerchantDomain != domain {
			continue
		}
		next := prev.Clone()
		res := s.lifecycle.Apply(next, lifecycle.Inputs{RuleDays: ruleFor(next, rules), AllowDowngrade: allowDowngrade})
		if !res.Changed {
			continue
		}
		next.UpdatedAt = s.now()
		if err := tx.SaveOrder(ctx, prev, next); err != nil {
			return 0, err
		}
		n++
	}
	return n, nil
}

// ruleFor mirrors orders.Repository.RuleDays against an in-memory table.
func ruleFor(o *models.Order, rules map[string]int) *int {
	for _, domain := range []string{o.NormalizedMerchant, o.MerchantDomain} {
		if days, ok := rules[strings.ToLower(domain)]; ok && domain != "" {
			return &days
		}
	}
	return nil
}

func dayOf(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	return models.DayPtr(*t)
}
