// Package enrich looks for literal return-policy evidence in an Order's
// messages and upgrades its deadline when a claim is grounded.
package enrich

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/jkoufopoulos/shopq-prototype-sub003/internal/evidence"
	"github.com/jkoufopoulos/shopq-prototype-sub003/internal/lifecycle"
	"github.com/jkoufopoulos/shopq-prototype-sub003/internal/mailbox"
	"github.com/jkoufopoulos/shopq-prototype-sub003/internal/models"
	"github.com/jkoufopoulos/shopq-prototype-sub003/internal/orders"
	"github.com/jkoufopoulos/shopq-prototype-sub003/internal/types"
)

type Options struct {
	ContextBudget int
	WindowRadius  int
	// MaxCandidates caps the messages examined per Order. Zero means all.
	MaxCandidates int
	MaxTokens     int
}

// Attempt is stored on a message record after it was sent for extraction.
type Attempt struct {
	Model    string          `json:"model"`
	Response json.RawMessage `json:"response,omitempty"`
	Grounded map[string]any  `json:"grounded,omitempty"`
	Errors   []string        `json:"errors,omitempty"`
	At       time.Time       `json:"at"`
}

// Outcome reports what EnrichOrder did.
type Outcome struct {
	OrderKey          string                    `json:"order_key"`
	Enriched          bool                      `json:"enriched"`
	Skipped           string                    `json:"skipped,omitempty"`
	Examined          int                       `json:"examined"`
	EvidenceMessageID string                    `json:"evidence_message_id,omitempty"`
	EvidenceQuote     string                    `json:"evidence_quote,omitempty"`
	Before            models.DeadlineConfidence `json:"before"`
	After             models.DeadlineConfidence `json:"after"`
	// ManualOverrideSuggested is set when nothing was grounded and the Order
	// still has no deadline, so the user should enter a merchant rule.
	ManualOverrideSuggested bool          `json:"manual_override_suggested"`
	Order                   *models.Order `json:"order,omitempty"`
}

// Orchestrator provides the evidence enrichment pipeline
type Orchestrator struct {
	repo          *orders.Repository
	source        mailbox.Source
	generator     types.Generator
	validator     *evidence.Validator
	lifecycle     *lifecycle.Engine
	contexts      *ContextBuilder
	promptBuilder *PromptBuilder
	opts          Options
	write         sync.Locker
	now           func() time.Time
}

func NewOrchestrator(repo *orders.Repository, source mailbox.Source, generator types.Generator, lc *lifecycle.Engine, opts Options) *Orchestrator {
	return &Orchestrator{
		repo:          repo,
		source:        source,
		generator:     generator,
		validator:     evidence.NewValidator(),
		lifecycle:     lc,
		contexts:      NewContextBuilder(opts.WindowRadius, opts.ContextBudget),
		promptBuilder: NewPromptBuilder(),
		opts:          opts,
		write:         &sync.Mutex{},
		now:           time.Now,
	}
}

// WithWriteLock shares the lock that serialises every Order mutation. It is
// held for the whole of one Order's enrichment.
func (o *Orchestrator) WithWriteLock(l sync.Locker) *Orchestrator {
	o.write = l
	return o
}

// WithClock replaces the time source.
func (o *Orchestrator) WithClock(now func() time.Time) *Orchestrator {
	o.now = now
	return o
}

// EnrichOrder examines the Order's messages in priority order and stops at
// the first one whose extraction grounds a deadline.
func (o *Orchestrator) EnrichOrder(ctx context.Context, key string) (Outcome, error) {
	return o.enrich(ctx, key, false)
}

// EnrichPending runs EnrichOrder over every Order still lacking evidence,
// skipping messages that were already examined.
func (o *Orchestrator) EnrichPending(ctx context.Context) ([]Outcome, error) {
	all, err := o.repo.ListOrders(ctx)
	if err != nil {
		return nil, err
	}

	var outcomes []Outcome
	for _, order := range all {
		if !order.NeedsEnrichment() {
			continue
		}
		out, err := o.enrich(ctx, order.OrderKey, true)
		if err != nil {
			if ctx.Err() != nil {
				return outcomes, ctx.Err()
			}
			log.Error().Err(err).Str("order_key", order.OrderKey).Msg("enrich: order failed")
			continue
		}
		outcomes = append(outcomes, out)
	}
	return outcomes, nil
}

func (o *Orchestrator) enrich(ctx context.Context, key string, skipExamined bool) (Outcome, error) {
	logger := log.With().Str("order_key", key).Logger()

	o.write.Lock()
	defer o.write.Unlock()

	order, err := o.repo.GetOrder(ctx, key)
	if err != nil {
		return Outcome{}, err
	}
	out := Outcome{OrderKey: key, Before: order.DeadlineConfidence, After: order.DeadlineConfidence, Order: order}

	switch {
	case order.OrderStatus != models.OrderStatusActive:
		out.Skipped = "order is " + order.OrderStatus.String()
		return out, nil
	case !order.NeedsEnrichment():
		out.Skipped = "deadline already grounded"
		return out, nil
	}

	candidates, err := o.candidates(ctx, order, skipExamined)
	if err != nil {
		return Outcome{}, err
	}

	next := order.Clone()
	var examined []*models.OrderEmail
	for _, email := range candidates {
		if err := ctx.Err(); err != nil {
			return Outcome{}, err
		}

		attempt, fields, err := o.extract(ctx, order, email)
		if err != nil {
			if ctx.Err() != nil {
				return Outcome{}, ctx.Err()
			}
			// transient failures were already retried; try the next message
			logger.Warn().Err(err).Str("email_id", email.EmailID).Msg("enrich: candidate failed")
			continue
		}
		out.Examined++

		raw, err := json.Marshal(attempt)
		if err != nil {
			return Outcome{}, fmt.Errorf("failed to encode extraction attempt: %w", err)
		}
		email.LLMExtraction = raw
		examined = append(examined, email)

		if !fields.Any() {
			continue
		}
		applyEvidence(next, email.EmailID, fields)
		if fields.HasDeadline() {
			out.Enriched = true
			out.EvidenceMessageID = next.EvidenceMessageID
			out.EvidenceQuote = next.EvidenceQuote
			break
		}
	}

	if len(examined) == 0 && !out.Enriched {
		out.ManualOverrideSuggested = order.DeadlineConfidence == models.ConfidenceUnknown
		return out, nil
	}

	if out.Enriched {
		rule, err := o.repo.RuleDays(ctx, next)
		if err != nil {
			return Outcome{}, err
		}
		o.lifecycle.Apply(next, lifecycle.Inputs{RuleDays: rule})
	}
	next.UpdatedAt = o.now()

	tx := o.repo.Begin()
	if err := tx.SaveOrder(ctx, order, next); err != nil {
		return Outcome{}, err
	}
	for _, email := range examined {
		if err := tx.PutEmail(email); err != nil {
			return Outcome{}, err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return Outcome{}, fmt.Errorf("failed to store enrichment: %w", err)
	}

	out.After = next.DeadlineConfidence
	out.Order = next
	out.ManualOverrideSuggested = !out.Enriched && next.DeadlineConfidence == models.ConfidenceUnknown

	logger.Info().
		Bool("enriched", out.Enriched).
		Int("examined", out.Examined).
		Str("before", string(out.Before)).
		Str("after", string(out.After)).
		Msg("enrich: order processed")
	return out, nil
}

// candidates orders the Order's unblocked messages: confirmations first, then
// messages with return-policy phrases, then the rest, oldest first within
// each group.
func (o *Orchestrator) candidates(ctx context.Context, order *models.Order, skipExamined bool) ([]*models.OrderEmail, error) {
	emails, err := o.repo.GetEmails(ctx, order.SourceEmailIDs)
	if err != nil {
		return nil, err
	}

	var out []*models.OrderEmail
	for _, e := range emails {
		if e.Blocked {
			continue
		}
		if skipExamined && len(e.LLMExtraction) > 0 {
			continue
		}
		out = append(out, e)
	}

	rank := func(e *models.OrderEmail) int {
		switch {
		case e.EmailType == models.EmailTypeConfirmation:
			return 0
		case len(e.Extracted.ReturnAnchors) > 0:
			return 1
		}
		return 2
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if rank(a) != rank(b) {
			return rank(a) < rank(b)
		}
		if !a.ReceivedAt.Equal(b.ReceivedAt) {
			return a.ReceivedAt.Before(b.ReceivedAt)
		}
		return a.EmailID < b.EmailID
	})

	if o.opts.MaxCandidates > 0 && len(out) > o.opts.MaxCandidates {
		out = out[:o.opts.MaxCandidates]
	}
	return out, nil
}

// extract runs one message through context building, the external call and
// evidence validation.
func (o *Orchestrator) extract(ctx context.Context, order *models.Order, email *models.OrderEmail) (Attempt, evidence.Validated, error) {
	attempt := Attempt{Model: o.generator.Model(), At: o.now()}

	source, err := o.sourceText(ctx, email)
	if err != nil {
		return attempt, evidence.Validated{}, err
	}
	if strings.TrimSpace(source) == "" {
		attempt.Errors = []string{"no text"}
		return attempt, evidence.Validated{}, nil
	}

	excerpt, _ := o.contexts.Build(source)
	prompt := o.promptBuilder.BuildExtractionPrompt(order, email, excerpt)

	response, err := o.generator.Complete(ctx, prompt, map[string]any{
		"max_tokens":  o.opts.MaxTokens,
		"temperature": 0.0,
	})
	if err != nil {
		return attempt, evidence.Validated{}, fmt.Errorf("failed to run extraction: %w", err)
	}

	x, raw, err := ParseExtraction(response)
	if err != nil {
		attempt.Errors = []string{err.Error()}
		return attempt, evidence.Validated{}, nil
	}
	attempt.Response = raw
	if x.Empty() {
		return attempt, evidence.Validated{}, nil
	}

	res := o.validator.Validate(x, source)
	for _, fe := range res.Errors {
		attempt.Errors = append(attempt.Errors, fe.Error())
	}
	attempt.Grounded = res.Fields.Summary()

	log.Debug().
		Str("email_id", email.EmailID).
		Bool("valid", res.Valid).
		Int("rejected", len(res.Errors)).
		Msg("enrich: extraction validated")
	return attempt, res.Fields, nil
}

// sourceText is the message body, falling back to the stored subject and
// snippet when the body cannot be fetched.
func (o *Orchestrator) sourceText(ctx context.Context, email *models.OrderEmail) (string, error) {
	fallback := strings.TrimSpace(email.Subject + "\n" + email.Snippet)
	if o.source == nil {
		return fallback, nil
	}
	body, err := o.source.FetchBody(ctx, email.EmailID)
	if err != nil {
		if errors.Is(err, mailbox.ErrMessageNotFound) && fallback != "" {
			return fallback, nil
		}
		return "", fmt.Errorf("failed to fetch body for %s: %w", email.EmailID, err)
	}
	if strings.TrimSpace(body) == "" {
		return fallback, nil
	}
	return body, nil
}

// applyEvidence copies grounded claims onto o. A calendar date wins over a
// day count when both are present.
func applyEvidence(o *models.Order, emailID string, v evidence.Validated) {
	if amount, _, ok := v.Amount(); ok && o.Amount == nil {
		o.Amount = &amount
	}

	if quote, ok := v.FinalSale(); ok {
		o.FinalSale = true
		o.EvidenceQuote = quote
		o.EvidenceMessageID = emailID
		return
	}

	days, daysQuote, hasDays := v.WindowDays()
	date, dateQuote, hasDate := v.ReturnBy()
	if !hasDays && !hasDate {
		return
	}

	o.WindowSource = models.WindowSourceEvidence
	o.EvidenceMessageID = emailID
	o.ExplicitReturnBy = nil
	if hasDays {
		o.ReturnWindowDays = &days
		o.EvidenceQuote = daysQuote
	}
	if hasDate {
		d := models.Day(date)
		o.ExplicitReturnBy = &d
		o.EvidenceQuote = dateQuote
	}
}
