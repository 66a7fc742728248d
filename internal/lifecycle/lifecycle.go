// Package lifecycle computes an Order's return deadline and the confidence
// tier that goes with it.
package lifecycle

import (
	"time"

	"github.com/rs/zerolog/log"

	"github.com/jkoufopoulos/shopq-prototype-sub003/internal/models"
)

// Anchor names the date a deadline is counted from.
type Anchor string

const (
	AnchorDelivery  Anchor = "delivery"
	AnchorEstimated Anchor = "estimated_delivery"
	AnchorShip      Anchor = "ship"
	AnchorPurchase  Anchor = "purchase"
	AnchorCreated   Anchor = "created"
)

// Basis returns the first populated anchor in priority order: actual
// delivery, estimated delivery, ship, purchase. An Order with none of them
// counts from the day it was first seen.
func Basis(o *models.Order) (time.Time, Anchor) {
	switch {
	case o.DeliveryDate != nil:
		return models.Day(*o.DeliveryDate), AnchorDelivery
	case o.EstimatedDeliveryDate != nil:
		return models.Day(*o.EstimatedDeliveryDate), AnchorEstimated
	case o.ShipDate != nil:
		return models.Day(*o.ShipDate), AnchorShip
	case o.PurchaseDate != nil:
		return models.Day(*o.PurchaseDate), AnchorPurchase
	}
	return models.Day(o.CreatedAt), AnchorCreated
}

// Inputs carries the windows that are not stored on the Order itself.
type Inputs struct {
	// RuleDays is the merchant rule for the Order's merchant, if any.
	RuleDays *int
	// AllowDowngrade permits a lower confidence than the Order already has.
	// Only explicit causes (evidence invalidation, rule removal) set it.
	AllowDowngrade bool
}

// Engine applies the deadline algorithm.
type Engine struct {
	// DefaultWindowDays applies when no merchant rule exists. Zero disables it.
	DefaultWindowDays int
}

func NewEngine(defaultWindowDays int) *Engine {
	return &Engine{DefaultWindowDays: defaultWindowDays}
}

// Result describes the outcome of Apply.
type Result struct {
	Before  models.DeadlineConfidence
	After   models.DeadlineConfidence
	Anchor  Anchor
	Changed bool
	// Held is set when a computed downgrade was refused.
	Held bool
}

// Apply recomputes ReturnByDate, ReturnWindowDays, DeadlineConfidence and
// WindowSource on o.
func (e *Engine) Apply(o *models.Order, in Inputs) Result {
	before := snapshot(o)
	res := Result{Before: o.DeadlineConfidence}

	next := o.Clone()
	res.Anchor = e.compute(next, in)

	if next.DeadlineConfidence.Rank() < o.DeadlineConfidence.Rank() && !in.AllowDowngrade {
		log.Debug().
			Str("order_key", o.OrderKey).
			Str("current", string(o.DeadlineConfidence)).
			Str("computed", string(next.DeadlineConfidence)).
			Msg("lifecycle: refusing confidence downgrade")
		res.Held = true
		res.After = o.DeadlineConfidence
		return res
	}

	o.ReturnByDate = next.ReturnByDate
	o.ReturnWindowDays = next.ReturnWindowDays
	o.DeadlineConfidence = next.DeadlineConfidence
	o.WindowSource = next.WindowSource

	res.After = o.DeadlineConfidence
	res.Changed = snapshot(o) != before
	return res
}

func (e *Engine) compute(o *models.Order, in Inputs) Anchor {
	basis, anchor := Basis(o)

	if o.FinalSale {
		o.ReturnByDate = nil
		o.ReturnWindowDays = nil
		o.DeadlineConfidence = models.ConfidenceExact
		o.WindowSource = models.WindowSourceFinalSale
		return anchor
	}

	if o.WindowSource == models.WindowSourceEvidence || o.WindowSource == models.WindowSourceManual {
		if o.ExplicitReturnBy != nil {
			o.ReturnByDate = models.DayPtr(*o.ExplicitReturnBy)
			o.DeadlineConfidence = models.ConfidenceExact
			return anchor
		}
		if o.ReturnWindowDays != nil {
			o.ReturnByDate = ptr(models.AddDays(basis, *o.ReturnWindowDays))
			o.DeadlineConfidence = models.ConfidenceExact
			return anchor
		}
	}

	switch {
	case in.RuleDays != nil:
		e.estimate(o, basis, *in.RuleDays, models.WindowSourceRule)
	case e.DefaultWindowDays > 0:
		e.estimate(o, basis, e.DefaultWindowDays, models.WindowSourceDefault)
	default:
		o.ReturnByDate = nil
		o.ReturnWindowDays = nil
		o.DeadlineConfidence = models.ConfidenceUnknown
		o.WindowSource = models.WindowSourceNone
	}
	return anchor
}

func (e *Engine) estimate(o *models.Order, basis time.Time, days int, source models.WindowSource) {
	o.ReturnWindowDays = &days
	o.ReturnByDate = ptr(models.AddDays(basis, days))
	o.DeadlineConfidence = models.ConfidenceEstimated
	o.WindowSource = source
}

// InvalidateEvidence drops every grounded window from o so the next Apply,
// with AllowDowngrade, falls back to rules. It reports whether anything was
// removed.
func InvalidateEvidence(o *models.Order) bool {
	if !o.WindowSource.Grounded() && o.EvidenceQuote == "" && o.ExplicitReturnBy == nil {
		return false
	}
	if o.WindowSource == models.WindowSourceFinalSale {
		o.FinalSale = false
	}
	o.WindowSource = models.WindowSourceNone
	o.ExplicitReturnBy = nil
	o.ReturnWindowDays = nil
	o.EvidenceQuote = ""
	o.EvidenceMessageID = ""
	return true
}

type deadlineState struct {
	returnBy   time.Time
	hasDate    bool
	window     int
	hasWindow  bool
	confidence models.DeadlineConfidence
	source     models.WindowSource
}

func snapshot(o *models.Order) deadlineState {
	s := deadlineState{confidence: o.DeadlineConfidence, source: o.WindowSource}
	if o.ReturnByDate != nil {
		s.returnBy, s.hasDate = *o.ReturnByDate, true
	}
	if o.ReturnWindowDays != nil {
		s.window, s.hasWindow = *o.ReturnWindowDays, true
	}
	return s
}

func ptr(t time.Time) *time.Time { return &t }
