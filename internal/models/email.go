package models

import (
	"encoding/json"
	"time"
)

// OrderEmail is the record of one processed message. Its existence doubles as
// the idempotency marker for the message id.
type OrderEmail struct {
	EmailID        string          `json:"email_id"`
	ThreadID       string          `json:"thread_id,omitempty"`
	ReceivedAt     time.Time       `json:"received_at"`
	MerchantDomain string          `json:"merchant_domain,omitempty"`
	Subject        string          `json:"subject,omitempty"`
	Snippet        string          `json:"snippet,omitempty"`
	EmailType      EmailType       `json:"email_type"`
	Blocked        bool            `json:"blocked"`
	BlockReason    string          `json:"block_reason,omitempty"`
	OrderKey       string          `json:"order_key,omitempty"`
	Extracted      ExtractedFields `json:"extracted"`
	LLMExtraction  json.RawMessage `json:"llm_extraction,omitempty"`
	ProcessedAt    time.Time       `json:"processed_at"`
}

type EmailType string

const (
	EmailTypeConfirmation EmailType = "confirmation"
	EmailTypeShipping     EmailType = "shipping"
	EmailTypeDelivery     EmailType = "delivery"
	EmailTypeOther        EmailType = "other"
)

// ExtractedFields is the best-effort, pattern-derived view of a message.
type ExtractedFields struct {
	OrderID               string     `json:"order_id,omitempty"`
	TrackingNumber        string     `json:"tracking_number,omitempty"`
	ItemSummary           string     `json:"item_summary,omitempty"`
	PurchaseDate          *time.Time `json:"purchase_date,omitempty"`
	ShipDate              *time.Time `json:"ship_date,omitempty"`
	DeliveryDate          *time.Time `json:"delivery_date,omitempty"`
	EstimatedDeliveryDate *time.Time `json:"estimated_delivery_date,omitempty"`
	Amount                *float64   `json:"amount,omitempty"`
	ReturnAnchors         []string   `json:"return_anchors,omitempty"`
	FinalSale             bool       `json:"final_sale,omitempty"`
	Cancelled             bool       `json:"cancelled,omitempty"`
	BodyFetched           bool       `json:"body_fetched,omitempty"`
}

// HasIdentifier reports whether a primary key was extracted.
func (f ExtractedFields) HasIdentifier() bool {
	return f.OrderID != "" || f.TrackingNumber != ""
}

// MerchantRule overrides the return window for a merchant domain.
type MerchantRule struct {
	MerchantDomain   string    `json:"merchant_domain" yaml:"merchant_domain" validate:"required,hostname"`
	ReturnWindowDays int       `json:"return_window_days" yaml:"return_window_days" validate:"gte=0,lte=365"`
	UpdatedAt        time.Time `json:"updated_at" yaml:"-"`
}
