package extract

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jkoufopoulos/shopq-prototype-sub003/internal/models"
)

var received = time.Date(2024, 3, 10, 15, 0, 0, 0, time.UTC)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestExtract_Identifiers(t *testing.T) {
	x := NewExtractor()
	tests := []struct {
		name     string
		in       Input
		orderID  string
		tracking string
	}{
		{
			name:    "labelled order number",
			in:      Input{Subject: "Your order #A1B2-3344 is confirmed"},
			orderID: "A1B2-3344",
		},
		{
			name:    "order number with colon",
			in:      Input{Snippet: "Order number: 554433. Thanks for shopping"},
			orderID: "554433",
		},
		{
			name:    "words after order are not ids",
			in:      Input{Subject: "Order Confirmed: Blue Hiking Boots"},
			orderID: "",
		},
		{
			name:     "short labelled tracking number",
			in:       Input{Subject: "Shipped: Blue Hiking Boots", Snippet: "Tracking number: 1Z999"},
			tracking: "1Z999",
		},
		{
			name:     "ups format without label",
			in:       Input{Body: "Your package 1Z12345E0205271688 is on its way"},
			tracking: "1Z12345E0205271688",
		},
		{
			name:     "tracking label followed by words",
			in:       Input{Snippet: "Tracking information will follow"},
			tracking: "",
		},
		{
			name:    "merchant specific pattern first",
			in:      Input{Merchant: "amazon.com", Snippet: "Order #112-3456789-1234567 placed"},
			orderID: "112-3456789-1234567",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.in.ReceivedAt = received
			f := x.Extract(tt.in)
			assert.Equal(t, tt.orderID, f.OrderID)
			assert.Equal(t, tt.tracking, f.TrackingNumber)
		})
	}
}

func TestExtract_Dates(t *testing.T) {
	x := NewExtractor()
	f := x.Extract(Input{
		Snippet:    "Order date: March 3, 2024\nShipped on 3/5\nEstimated delivery: Mar 12",
		ReceivedAt: received,
	})
	require.NotNil(t, f.PurchaseDate)
	assert.Equal(t, day(2024, 3, 3), *f.PurchaseDate)
	require.NotNil(t, f.ShipDate)
	assert.Equal(t, day(2024, 3, 5), *f.ShipDate)
	require.NotNil(t, f.EstimatedDeliveryDate)
	assert.Equal(t, day(2024, 3, 12), *f.EstimatedDeliveryDate)
	assert.Nil(t, f.DeliveryDate)
}

func TestExtract_DeliverySupersedesEstimate(t *testing.T) {
	x := NewExtractor()
	f := x.Extract(Input{
		Snippet:    "Delivered on March 9. Estimated delivery was March 11.",
		ReceivedAt: received,
	})
	require.NotNil(t, f.DeliveryDate)
	assert.Equal(t, day(2024, 3, 9), *f.DeliveryDate)
	assert.Nil(t, f.EstimatedDeliveryDate)
}

func TestInferYear(t *testing.T) {
	jan := time.Date(2024, 1, 4, 0, 0, 0, 0, time.UTC)

	// a December purchase mentioned in January happened last year
	got, ok := inferYear(time.December, 28, jan, past)
	require.True(t, ok)
	assert.Equal(t, 2023, got.Year())

	dec := time.Date(2023, 12, 28, 0, 0, 0, 0, time.UTC)
	got, ok = inferYear(time.January, 3, dec, future)
	require.True(t, ok)
	assert.Equal(t, 2024, got.Year())

	_, ok = inferYear(time.February, 30, jan, past)
	assert.False(t, ok)
}

func TestExtract_AmountAnchorsAndFlags(t *testing.T) {
	x := NewExtractor()
	f := x.Extract(Input{
		Subject:    "Ordered: Walnut Desk",
		Body:       "Subtotal $1,100.00\nOrder total: $1,234.50\nReturns accepted within 30 days of delivery.",
		ReceivedAt: received,
	})
	require.NotNil(t, f.Amount)
	assert.InDelta(t, 1234.50, *f.Amount, 0.001)
	assert.Contains(t, f.ReturnAnchors, "returns accepted")
	assert.Contains(t, f.ReturnAnchors, "days of delivery")
	assert.False(t, f.FinalSale)
	assert.True(t, f.BodyFetched)

	sale := x.Extract(Input{Subject: "Ordered: Clearance Jacket", Body: "This item is FINAL SALE.", ReceivedAt: received})
	assert.True(t, sale.FinalSale)

	cancel := x.Extract(Input{Subject: "Your order has been cancelled", ReceivedAt: received})
	assert.True(t, cancel.Cancelled)

	// cancellation wording in a policy body is not a cancellation
	policy := x.Extract(Input{Subject: "Ordered: Lamp", Body: "If your order was cancelled you will be refunded.", ReceivedAt: received})
	assert.False(t, policy.Cancelled)
}

func TestExtract_FinalSaleNamesTheItem(t *testing.T) {
	x := NewExtractor()

	tests := []struct {
		body string
		want bool
	}{
		{"This item is FINAL SALE.", true},
		{"This item is a final sale and cannot be returned.", true},
		{"Your purchase is non-returnable.", true},
		{"The items in this order are marked as final sale.", true},
		{"Heads up: this item cannot be returned.", true},
		{"Items not eligible for return include gift cards.", false},
		{"No returns on clearance.", false},
		{"Final sale items cannot be returned.", false},
		{"All sales are final on clearance items.", false},
		{"Gift cards and items marked final sale cannot be returned.", false},
	}
	for _, tt := range tests {
		t.Run(tt.body, func(t *testing.T) {
			f := x.Extract(Input{Subject: "Ordered: Clearance Jacket", Body: tt.body, ReceivedAt: received})
			assert.Equal(t, tt.want, f.FinalSale)
		})
	}
}

func TestItemSummary(t *testing.T) {
	x := NewExtractor()
	tests := []struct {
		subject string
		want    string
	}{
		{"Ordered: Blue Hiking Boots Size 10", "Blue Hiking Boots Size 10"},
		{"Shipped: \"Blue Hiking Boots\" and 2 more items", "Blue Hiking Boots"},
		{"Re: Delivered: Lamp (Order #A1234)", "Lamp"},
		{"Your Walnut Desk has shipped", "Walnut Desk"},
		{"Weekly deals for you", ""},
	}
	for _, tt := range tests {
		t.Run(tt.subject, func(t *testing.T) {
			assert.Equal(t, tt.want, x.ItemSummary(tt.subject))
		})
	}
}

func TestNeedsBody(t *testing.T) {
	assert.True(t, NeedsBody(models.ExtractedFields{}, models.EmailTypeShipping))
	assert.False(t, NeedsBody(models.ExtractedFields{TrackingNumber: "T1"}, models.EmailTypeShipping))
	assert.True(t, NeedsBody(models.ExtractedFields{OrderID: "1"}, models.EmailTypeConfirmation))
	assert.False(t, NeedsBody(models.ExtractedFields{BodyFetched: true}, models.EmailTypeConfirmation))
}
