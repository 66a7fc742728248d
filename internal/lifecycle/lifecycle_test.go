package lifecycle

import (
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jkoufopoulos/shopq-prototype-sub003/internal/models"
)

func d(m time.Month, day int) *time.Time {
	t := time.Date(2024, m, day, 0, 0, 0, 0, time.UTC)
	return &t
}

func days(n int) *int { return &n }

func baseOrder() *models.Order {
	return &models.Order{
		OrderKey:           "k",
		OrderStatus:        models.OrderStatusActive,
		DeadlineConfidence: models.ConfidenceUnknown,
		CreatedAt:          time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC),
	}
}

func TestBasis_Priority(t *testing.T) {
	o := baseOrder()
	_, a := Basis(o)
	assert.Equal(t, AnchorCreated, a)

	o.PurchaseDate = d(3, 1)
	_, a = Basis(o)
	assert.Equal(t, AnchorPurchase, a)

	o.ShipDate = d(3, 3)
	_, a = Basis(o)
	assert.Equal(t, AnchorShip, a)

	o.EstimatedDeliveryDate = d(3, 8)
	at, a := Basis(o)
	assert.Equal(t, AnchorEstimated, a)
	assert.Equal(t, *d(3, 8), at)

	o.DeliveryDate = d(3, 7)
	at, a = Basis(o)
	assert.Equal(t, AnchorDelivery, a)
	assert.Equal(t, *d(3, 7), at)
}

func TestApply(t *testing.T) {
	tests := []struct {
		name       string
		setup      func(o *models.Order)
		in         Inputs
		defaultDay int
		confidence models.DeadlineConfidence
		source     models.WindowSource
		returnBy   *time.Time
	}{
		{
			name:       "no window is unknown",
			setup:      func(o *models.Order) { o.ShipDate = d(3, 3) },
			confidence: models.ConfidenceUnknown,
		},
		{
			name:       "merchant rule is estimated",
			setup:      func(o *models.Order) { o.ShipDate = d(3, 3) },
			in:         Inputs{RuleDays: days(30)},
			confidence: models.ConfidenceEstimated,
			source:     models.WindowSourceRule,
			returnBy:   d(4, 2),
		},
		{
			name:       "default window is estimated",
			setup:      func(o *models.Order) { o.PurchaseDate = d(3, 1) },
			defaultDay: 14,
			confidence: models.ConfidenceEstimated,
			source:     models.WindowSourceDefault,
			returnBy:   d(3, 15),
		},
		{
			name: "grounded window is exact from delivery",
			setup: func(o *models.Order) {
				o.ShipDate = d(3, 3)
				o.DeliveryDate = d(3, 6)
				o.ReturnWindowDays = days(45)
				o.WindowSource = models.WindowSourceEvidence
			},
			in:         Inputs{RuleDays: days(30)},
			confidence: models.ConfidenceExact,
			source:     models.WindowSourceEvidence,
			returnBy:   d(4, 20),
		},
		{
			name: "explicit date is used verbatim",
			setup: func(o *models.Order) {
				o.ShipDate = d(3, 3)
				o.ExplicitReturnBy = d(5, 1)
				o.WindowSource = models.WindowSourceManual
			},
			confidence: models.ConfidenceExact,
			source:     models.WindowSourceManual,
			returnBy:   d(5, 1),
		},
		{
			name: "final sale has no deadline",
			setup: func(o *models.Order) {
				o.ShipDate = d(3, 3)
				o.FinalSale = true
			},
			in:         Inputs{RuleDays: days(30)},
			confidence: models.ConfidenceExact,
			source:     models.WindowSourceFinalSale,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := baseOrder()
			tt.setup(o)
			NewEngine(tt.defaultDay).Apply(o, tt.in)

			assert.Equal(t, tt.confidence, o.DeadlineConfidence)
			assert.Equal(t, tt.source, o.WindowSource)
			if tt.returnBy == nil {
				assert.Nil(t, o.ReturnByDate)
			} else {
				require.NotNil(t, o.ReturnByDate)
				assert.Equal(t, *tt.returnBy, *o.ReturnByDate)
			}
		})
	}
}

func TestApply_RefusesSilentDowngrade(t *testing.T) {
	e := NewEngine(0)
	o := baseOrder()
	o.ShipDate = d(3, 3)
	e.Apply(o, Inputs{RuleDays: days(30)})
	require.Equal(t, models.ConfidenceEstimated, o.DeadlineConfidence)

	// rule vanished without an explicit cause
	res := e.Apply(o, Inputs{})
	assert.True(t, res.Held)
	assert.Equal(t, models.ConfidenceEstimated, o.DeadlineConfidence)
	assert.Equal(t, *d(4, 2), *o.ReturnByDate)

	res = e.Apply(o, Inputs{AllowDowngrade: true})
	assert.False(t, res.Held)
	assert.True(t, res.Changed)
	assert.Equal(t, models.ConfidenceUnknown, o.DeadlineConfidence)
	assert.Nil(t, o.ReturnByDate)
}

func TestInvalidateEvidence(t *testing.T) {
	e := NewEngine(0)
	o := baseOrder()
	o.DeliveryDate = d(3, 6)
	o.ReturnWindowDays = days(45)
	o.WindowSource = models.WindowSourceEvidence
	o.EvidenceQuote = "Return within 45 days of delivery"
	e.Apply(o, Inputs{})
	require.Equal(t, models.ConfidenceExact, o.DeadlineConfidence)

	assert.True(t, InvalidateEvidence(o))
	e.Apply(o, Inputs{RuleDays: days(30), AllowDowngrade: true})
	assert.Equal(t, models.ConfidenceEstimated, o.DeadlineConfidence)
	assert.Equal(t, models.WindowSourceRule, o.WindowSource)
	assert.Empty(t, o.EvidenceQuote)
	assert.Equal(t, *d(4, 5), *o.ReturnByDate)

	assert.False(t, InvalidateEvidence(o))
}

// Once exact, no sequence of non-evidence recomputations lowers confidence.
func TestApply_ConfidenceMonotonicProperty(t *testing.T) {
	params := gopter.DefaultTestParameters()
	params.MinSuccessfulTests = 200
	properties := gopter.NewProperties(params)

	properties.Property("exact never downgrades without explicit cause", prop.ForAll(
		func(window int, ruleDays []int, defaultDays int, delivered bool) bool {
			e := NewEngine(defaultDays)
			o := baseOrder()
			o.ShipDate = d(3, 3)
			o.ReturnWindowDays = &window
			o.WindowSource = models.WindowSourceEvidence
			e.Apply(o, Inputs{})
			if o.DeadlineConfidence != models.ConfidenceExact {
				return false
			}

			for i, r := range ruleDays {
				if delivered && i == len(ruleDays)/2 {
					o.DeliveryDate = d(3, 9)
				}
				in := Inputs{}
				if r > 0 {
					rd := r
					in.RuleDays = &rd
				}
				e.Apply(o, in)
				if o.DeadlineConfidence != models.ConfidenceExact {
					return false
				}
			}
			return true
		},
		gen.IntRange(1, 365),
		gen.SliceOf(gen.IntRange(0, 120)),
		gen.IntRange(0, 60),
		gen.Bool(),
	))

	properties.TestingRun(t)
}
