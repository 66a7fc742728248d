package evidence

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intPtr(n int) *int { return &n }

func floatPtr(f float64) *float64 { return &f }

func TestGroundDate_Renderings(t *testing.T) {
	v := NewValidator()
	d := time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC)

	accepted := []string{
		"Returns accepted until January 5, 2024",
		"return by jan 5 2024",
		"Return by Jan. 5, 2024 at the latest",
		"deadline: 5 January 2024",
		"deadline 1/5/2024",
		"deadline 01/05/2024",
		"deadline 1/5/24.",
		"deadline 2024-01-05",
		"Return by January 5, 2024",
	}
	for _, quote := range accepted {
		t.Run(quote, func(t *testing.T) {
			_, err := v.GroundDate(d, quote, "")
			assert.NoError(t, err)
		})
	}

	rejected := []string{
		"Returns accepted until January 15, 2024",
		"deadline 11/5/2024",
		"deadline 1/5/2025",
		"Thanks for your order",
	}
	for _, quote := range rejected {
		t.Run(quote, func(t *testing.T) {
			_, err := v.GroundDate(d, quote, "")
			assert.ErrorIs(t, err, ErrNotGrounded)
		})
	}
}

func TestGroundDate_RegroundsFromSource(t *testing.T) {
	v := NewValidator()
	d := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	source := "Thanks for your order! Returns accepted until January 15, 2024. Enjoy your boots."

	quote, err := v.GroundDate(d, "Returns accepted until January 15, 2024", source)
	require.NoError(t, err)
	assert.Equal(t, "Returns accepted until January 15, 2024", quote)

	quote, err = v.GroundDate(d, "Thanks for your order", source)
	require.NoError(t, err)
	assert.Equal(t, "Returns accepted until January 15, 2024.", quote)

	_, err = v.GroundDate(d, "Thanks for your order", "Thanks for your order!")
	assert.ErrorIs(t, err, ErrNotGrounded)
}

func TestGroundDate_QuoteMustAppearInSource(t *testing.T) {
	v := NewValidator()
	d := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)

	// an invented quote is not trusted just because it contains the value
	_, err := v.GroundDate(d, "Return by January 15, 2024", "Returns are not accepted.")
	assert.ErrorIs(t, err, ErrNotGrounded)
}

func TestGroundDays(t *testing.T) {
	v := NewValidator()
	for _, quote := range []string{"Return within 45 days of delivery", "a 45-day window", "45day returns"} {
		_, err := v.GroundDays(45, quote, "")
		assert.NoError(t, err, quote)
	}
	_, err := v.GroundDays(45, "Return within 145 days", "")
	assert.ErrorIs(t, err, ErrNotGrounded)
	_, err = v.GroundDays(5, "Return within 15 days", "")
	assert.ErrorIs(t, err, ErrNotGrounded)
}

func TestGroundDays_NonASCIISource(t *testing.T) {
	v := NewValidator()

	// these letters change byte length when lower-cased
	for _, prefix := range []string{strings.Repeat("Ⱥ", 20), strings.Repeat("İ", 40), "Straße ÅNGSTRÖM"} {
		source := prefix + " Return within 30 days of delivery."
		t.Run(prefix[:2], func(t *testing.T) {
			var quote string
			var err error
			require.NotPanics(t, func() { quote, err = v.GroundDays(30, "", source) })
			require.NoError(t, err)
			assert.Contains(t, quote, "30 days")
			assert.Contains(t, source, quote)
		})
	}

	quote, err := v.GroundDays(30, "", "İİİİ. RETURN WITHIN 30 DAYS OF DELIVERY.")
	require.NoError(t, err)
	assert.Equal(t, "RETURN WITHIN 30 DAYS OF DELIVERY.", quote)
}

func TestGroundAmount(t *testing.T) {
	v := NewValidator()
	_, err := v.GroundAmount(1234.5, "Order total: $1,234.50", "")
	assert.NoError(t, err)
	_, err = v.GroundAmount(1234.5, "Order total: $1234.50", "")
	assert.NoError(t, err)
	_, err = v.GroundAmount(34.5, "Order total: $1,234.50", "")
	assert.ErrorIs(t, err, ErrNotGrounded)
	assert.Equal(t, "1,234,567.00", groupThousands("1234567.00"))
}

func TestValidate_FieldsAreIndependent(t *testing.T) {
	v := NewValidator()
	source := "Order total: $89.99. You may return items within 30 days of delivery."

	res := v.Validate(Extraction{
		ReturnWindowDays: intPtr(30),
		ReturnByDate:     "2024-02-01",
		Amount:           floatPtr(89.99),
		EvidenceQuote:    "return items within 30 days of delivery",
	}, source)

	assert.False(t, res.Valid)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, "return_by_date", res.Errors[0].Field)
	assert.ErrorIs(t, res.Errors[0], ErrNotGrounded)

	days, quote, ok := res.Fields.WindowDays()
	require.True(t, ok)
	assert.Equal(t, 30, days)
	assert.Equal(t, "return items within 30 days of delivery", quote)

	_, amountQuote, ok := res.Fields.Amount()
	require.True(t, ok)
	assert.Contains(t, amountQuote, "$89.99")

	_, _, ok = res.Fields.ReturnBy()
	assert.False(t, ok)
	assert.True(t, res.Fields.HasDeadline())
}

func TestValidate_RejectsNonsense(t *testing.T) {
	v := NewValidator()
	res := v.Validate(Extraction{ReturnByDate: "next tuesday", ReturnWindowDays: intPtr(0)}, "anything")
	assert.False(t, res.Valid)
	assert.Len(t, res.Errors, 2)
	assert.False(t, res.Fields.Any())

	empty := v.Validate(Extraction{}, "anything")
	assert.False(t, empty.Valid)
	assert.True(t, Extraction{}.Empty())
}

func TestValidate_FinalSale(t *testing.T) {
	v := NewValidator()
	res := v.Validate(Extraction{FinalSale: true}, "Clearance items are FINAL SALE and cannot be exchanged.")
	require.True(t, res.Valid)
	quote, ok := res.Fields.FinalSale()
	assert.True(t, ok)
	assert.Contains(t, quote, "FINAL SALE")
}
