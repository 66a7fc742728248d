package resolve

import (
	"time"

	"github.com/jkoufopoulos/shopq-prototype-sub003/internal/models"
)

const (
	ReasonIdentifierSplit = "order_id and tracking_number resolved to different orders"
	ReasonManual          = "manual merge"
)

// Reconcile folds source into a copy of target and returns it. target and
// source are left untouched. Index bookkeeping is the caller's job.
func Reconcile(target, source *models.Order, reason string, now time.Time) *models.Order {
	out := target.Clone()

	out.AddEmails(source.SourceEmailIDs...)

	out.PurchaseDate = earlier(out.PurchaseDate, source.PurchaseDate)
	if out.ShipDate == nil {
		out.ShipDate = models.CloneTime(source.ShipDate)
	}
	if out.DeliveryDate == nil {
		out.DeliveryDate = models.CloneTime(source.DeliveryDate)
	}
	if out.DeliveryDate != nil {
		out.EstimatedDeliveryDate = nil
	} else if out.EstimatedDeliveryDate == nil {
		out.EstimatedDeliveryDate = models.CloneTime(source.EstimatedDeliveryDate)
	}

	// An Order is reachable from at most one entry per index, so a second
	// identifier on the source is dropped rather than redirected.
	if out.TrackingNumber == "" {
		out.TrackingNumber = source.TrackingNumber
	}
	if out.OrderID == "" {
		out.OrderID = source.OrderID
	}

	if out.ItemSummary == "" {
		out.ItemSummary = source.ItemSummary
	}
	if out.Amount == nil && source.Amount != nil {
		a := *source.Amount
		out.Amount = &a
	}
	if out.MerchantDisplayName == "" {
		out.MerchantDisplayName = source.MerchantDisplayName
	}
	out.FinalSale = out.FinalSale || source.FinalSale

	if grounded(source) && !grounded(out) {
		out.WindowSource = source.WindowSource
		out.ReturnWindowDays = cloneInt(source.ReturnWindowDays)
		out.ExplicitReturnBy = models.CloneTime(source.ExplicitReturnBy)
		out.EvidenceQuote = source.EvidenceQuote
		out.EvidenceMessageID = source.EvidenceMessageID
	}

	if out.OrderStatus == models.OrderStatusActive && source.OrderStatus.Terminal() {
		out.OrderStatus = source.OrderStatus
	}

	out.MergeHistory = append(out.MergeHistory, source.MergeHistory...)
	out.MergeHistory = append(out.MergeHistory, models.MergeRecord{
		SourceKey: source.OrderKey,
		Reason:    reason,
		MergedAt:  now,
	})
	out.UpdatedAt = now
	return out
}

func grounded(o *models.Order) bool {
	return o.WindowSource == models.WindowSourceEvidence || o.WindowSource == models.WindowSourceManual
}

func earlier(a, b *time.Time) *time.Time {
	switch {
	case a == nil:
		return models.CloneTime(b)
	case b == nil:
		return models.CloneTime(a)
	case b.Before(*a):
		return models.CloneTime(b)
	}
	return models.CloneTime(a)
}

func cloneInt(n *int) *int {
	if n == nil {
		return nil
	}
	v := *n
	return &v
}
