package merchant

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeDomain(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Acme.com", "acme.com"},
		{"www.acme.com", "acme.com"},
		{"email.orders.acme.com", "acme.com"},
		{"shop.acme.co.uk", "acme.co.uk"},
		{"acme.co.uk", "acme.co.uk"},
		{"m.e.zappos.com.", "zappos.com"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeDomain(tt.in))
		})
	}
}

func TestResolve(t *testing.T) {
	direct := Resolve("mail.acme.com", "")
	assert.Equal(t, "acme.com", direct.Normalized)
	assert.Equal(t, "Acme", direct.DisplayName)

	viaService := Resolve("shopifyemail.com", "Trail & Co. Outfitters")
	assert.Equal(t, "trail-co-outfitters", viaService.Normalized)
	assert.Equal(t, "shopifyemail.com", viaService.Domain)
	assert.True(t, IsEmailService(viaService.Domain))

	anonymous := Resolve("klaviyomail.com", "")
	assert.Empty(t, anonymous.Normalized, "a platform domain alone does not identify the merchant")
	assert.Equal(t, "klaviyomail.com", anonymous.Domain)

	punctuation := Resolve("shopifyemail.com", "!!!")
	assert.Empty(t, punctuation.Normalized)
}

func TestSlug(t *testing.T) {
	assert.Equal(t, "blue-sky-gear", Slug("  Blue Sky -- Gear! "))
	assert.Equal(t, "", Slug("!!!"))
}
