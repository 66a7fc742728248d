package models

import (
	"time"
)

// Order is the canonical record of one real-world purchase.
type Order struct {
	OrderKey       string `json:"order_key"`
	OrderID        string `json:"order_id,omitempty"`
	TrackingNumber string `json:"tracking_number,omitempty"`

	MerchantDomain      string `json:"merchant_domain"`
	NormalizedMerchant  string `json:"normalized_merchant"`
	MerchantDisplayName string `json:"merchant_display_name,omitempty"`

	ItemSummary string   `json:"item_summary,omitempty"`
	Amount      *float64 `json:"amount,omitempty"`

	PurchaseDate          *time.Time `json:"purchase_date,omitempty"`
	ShipDate              *time.Time `json:"ship_date,omitempty"`
	DeliveryDate          *time.Time `json:"delivery_date,omitempty"`
	EstimatedDeliveryDate *time.Time `json:"estimated_delivery_date,omitempty"`

	ReturnWindowDays   *int               `json:"return_window_days,omitempty"`
	ReturnByDate       *time.Time         `json:"return_by_date,omitempty"`
	DeadlineConfidence DeadlineConfidence `json:"deadline_confidence"`
	WindowSource       WindowSource       `json:"window_source,omitempty"`
	// ExplicitReturnBy holds a grounded or manually entered calendar deadline
	// that is used verbatim instead of basis + window.
	ExplicitReturnBy *time.Time `json:"explicit_return_by,omitempty"`
	FinalSale        bool       `json:"final_sale,omitempty"`

	OrderStatus OrderStatus `json:"order_status"`

	SourceEmailIDs []string `json:"source_email_ids"`

	EvidenceQuote     string `json:"evidence_quote,omitempty"`
	EvidenceMessageID string `json:"evidence_message_id,omitempty"`

	MergeHistory []MergeRecord `json:"merge_history,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// MergeRecord is the audit entry left on a survivor after merge escalation.
type MergeRecord struct {
	SourceKey string    `json:"source_key"`
	Reason    string    `json:"reason"`
	MergedAt  time.Time `json:"merged_at"`
}

type OrderStatus string

const (
	OrderStatusActive    OrderStatus = "active"
	OrderStatusReturned  OrderStatus = "returned"
	OrderStatusDismissed OrderStatus = "dismissed"
	OrderStatusCancelled OrderStatus = "cancelled"
)

func (s OrderStatus) String() string {
	return string(s)
}

// Terminal reports whether the status must survive re-processing untouched.
func (s OrderStatus) Terminal() bool {
	switch s {
	case OrderStatusReturned, OrderStatusDismissed, OrderStatusCancelled:
		return true
	}
	return false
}

// Valid reports whether s is one of the known statuses.
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusActive, OrderStatusReturned, OrderStatusDismissed, OrderStatusCancelled:
		return true
	}
	return false
}

type DeadlineConfidence string

const (
	ConfidenceExact     DeadlineConfidence = "exact"
	ConfidenceEstimated DeadlineConfidence = "estimated"
	ConfidenceUnknown   DeadlineConfidence = "unknown"
)

// Rank orders confidence tiers: exact > estimated > unknown.
func (c DeadlineConfidence) Rank() int {
	switch c {
	case ConfidenceExact:
		return 2
	case ConfidenceEstimated:
		return 1
	}
	return 0
}

// WindowSource records where the return window came from.
type WindowSource string

const (
	WindowSourceNone      WindowSource = ""
	WindowSourceFinalSale WindowSource = "final_sale"
	WindowSourceEvidence  WindowSource = "evidence"
	WindowSourceManual    WindowSource = "manual"
	WindowSourceRule      WindowSource = "merchant_rule"
	WindowSourceDefault   WindowSource = "default"
)

// Grounded reports whether the window is backed by literal evidence or
// explicit user input rather than a rule of thumb.
func (w WindowSource) Grounded() bool {
	return w == WindowSourceFinalSale || w == WindowSourceEvidence || w == WindowSourceManual
}

// HasDeadline reports whether the order carries a usable return deadline.
func (o *Order) HasDeadline() bool {
	return o.ReturnByDate != nil && o.DeadlineConfidence != ConfidenceUnknown
}

// NeedsEnrichment reports whether the order should be offered to the
// enrichment orchestrator: it is active and its deadline is not yet backed by
// evidence.
func (o *Order) NeedsEnrichment() bool {
	return o.OrderStatus == OrderStatusActive && !o.FinalSale &&
		(o.DeadlineConfidence != ConfidenceExact || o.ReturnByDate == nil)
}

// HasEmail reports whether id already contributed to the order.
func (o *Order) HasEmail(id string) bool {
	for _, existing := range o.SourceEmailIDs {
		if existing == id {
			return true
		}
	}
	return false
}

// AddEmails unions ids into SourceEmailIDs, preserving order.
func (o *Order) AddEmails(ids ...string) bool {
	added := false
	for _, id := range ids {
		if id == "" || o.HasEmail(id) {
			continue
		}
		o.SourceEmailIDs = append(o.SourceEmailIDs, id)
		added = true
	}
	return added
}

// Clone returns a deep copy so callers can diff before/after states.
func (o *Order) Clone() *Order {
	if o == nil {
		return nil
	}
	c := *o
	c.Amount = cloneFloat(o.Amount)
	c.PurchaseDate = CloneTime(o.PurchaseDate)
	c.ShipDate = CloneTime(o.ShipDate)
	c.DeliveryDate = CloneTime(o.DeliveryDate)
	c.EstimatedDeliveryDate = CloneTime(o.EstimatedDeliveryDate)
	c.ReturnByDate = CloneTime(o.ReturnByDate)
	c.ExplicitReturnBy = CloneTime(o.ExplicitReturnBy)
	if o.ReturnWindowDays != nil {
		days := *o.ReturnWindowDays
		c.ReturnWindowDays = &days
	}
	c.SourceEmailIDs = append([]string(nil), o.SourceEmailIDs...)
	c.MergeHistory = append([]MergeRecord(nil), o.MergeHistory...)
	return &c
}

func cloneFloat(f *float64) *float64 {
	if f == nil {
		return nil
	}
	v := *f
	return &v
}
