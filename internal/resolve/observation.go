// Package resolve links an incoming purchase message to an existing Order or
// creates a new one, escalating to a merge when two Orders turn out to be the
// same purchase.
package resolve

import (
	"strings"
	"time"

	"github.com/jkoufopoulos/shopq-prototype-sub003/internal/merchant"
	"github.com/jkoufopoulos/shopq-prototype-sub003/internal/models"
)

// Observation is everything the pipeline learned from one message.
type Observation struct {
	EmailID    string
	ThreadID   string
	ReceivedAt time.Time
	EmailType  models.EmailType
	Merchant   merchant.Identity
	Fields     models.ExtractedFields
}

// PurchaseTime is the timestamp compared against candidate creation times.
func (o Observation) PurchaseTime() time.Time {
	if o.Fields.PurchaseDate != nil {
		return *o.Fields.PurchaseDate
	}
	return o.ReceivedAt
}

// identifierConflict reports whether both sides carry an order id or a
// tracking number and they differ.
func identifierConflict(f models.ExtractedFields, o *models.Order) bool {
	if f.OrderID != "" && o.OrderID != "" && !strings.EqualFold(f.OrderID, o.OrderID) {
		return true
	}
	if f.TrackingNumber != "" && o.TrackingNumber != "" && !strings.EqualFold(f.TrackingNumber, o.TrackingNumber) {
		return true
	}
	return false
}

// ordersConflict reports whether two Orders carry different order ids or
// different tracking numbers. Such Orders are never merged.
func ordersConflict(a, b *models.Order) bool {
	return identifierConflict(models.ExtractedFields{OrderID: a.OrderID, TrackingNumber: a.TrackingNumber}, b)
}

// dayDistance is the absolute number of calendar days between a and b.
func dayDistance(a, b time.Time) int {
	n := int(models.Day(a).Sub(models.Day(b)).Hours() / 24)
	if n < 0 {
		return -n
	}
	return n
}
