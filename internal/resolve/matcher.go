package resolve

import (
	"sort"

	"github.com/rs/zerolog/log"

	"github.com/jkoufopoulos/shopq-prototype-sub003/internal/models"
)

// Matcher scores merchant-scoped candidates when no identifier links a
// message.
type Matcher struct {
	Threshold      float64
	TimeWindowDays int
}

func NewMatcher(threshold float64, timeWindowDays int) *Matcher {
	return &Matcher{Threshold: threshold, TimeWindowDays: timeWindowDays}
}

type scored struct {
	order *models.Order
	score float64
}

// Best returns the qualifying candidate with the highest similarity, ties
// going to the most recently updated. Candidates must already be restricted
// to the message's merchant.
func (m *Matcher) Best(obs Observation, candidates []*models.Order) (*models.Order, float64, bool) {
	tokens := Tokenize(obs.Fields.ItemSummary)
	purchase := obs.PurchaseTime()

	var qualified []scored
	for _, c := range candidates {
		if identifierConflict(obs.Fields, c) {
			log.Debug().Str("order_key", c.OrderKey).Str("email_id", obs.EmailID).Msg("resolve: identifier conflict")
			continue
		}
		if dayDistance(c.CreatedAt, purchase) > m.TimeWindowDays {
			continue
		}
		score := Jaccard(tokens, Tokenize(c.ItemSummary))
		if score >= m.Threshold {
			qualified = append(qualified, scored{order: c, score: score})
		}
	}
	if len(qualified) == 0 {
		return nil, 0, false
	}

	sort.SliceStable(qualified, func(i, j int) bool {
		a, b := qualified[i], qualified[j]
		if a.score != b.score {
			return a.score > b.score
		}
		if !a.order.UpdatedAt.Equal(b.order.UpdatedAt) {
			return a.order.UpdatedAt.After(b.order.UpdatedAt)
		}
		return a.order.OrderKey < b.order.OrderKey
	})
	best := qualified[0]
	return best.order, best.score, true
}
