// Package merchant derives the merchant identity used to scope entity
// resolution.
package merchant

import (
	"strings"
	"unicode"

	"golang.org/x/net/publicsuffix"
)

// Identity is the merchant view of a sender.
type Identity struct {
	// Domain is the sender's domain as seen on the wire, lower-cased.
	Domain string
	// Normalized scopes resolution: the registrable domain, or a
	// display-name slug when the mail came through a shared email service.
	// It is empty when neither identifies the merchant.
	Normalized  string
	DisplayName string
}

var strippedPrefixes = []string{
	"www.", "mail.", "email.", "emails.", "e.", "em.", "m.", "news.", "info.", "orders.", "order.",
	"shop.", "store.", "us.", "reply.", "noreply.", "notifications.", "notify.", "ship.", "shipping.",
}

// emailServices send on behalf of many merchants, so their domain says
// nothing about who the merchant is.
var emailServices = map[string]bool{
	"shopify.com":         true,
	"shopifyemail.com":    true,
	"myshopify.com":       true,
	"klaviyomail.com":     true,
	"klaviyo.com":         true,
	"sendgrid.net":        true,
	"mailchimp.com":       true,
	"mcsv.net":            true,
	"mailgun.org":         true,
	"amazonses.com":       true,
	"squarespace.com":     true,
	"bigcommerce.com":     true,
	"narvar.com":          true,
	"aftership.com":       true,
	"route.com":           true,
	"gmail.com":           true,
	"rsgsv.net":           true,
	"customeriomail.com":  true,
	"exacttarget.com":     true,
	"salesforce.com":      true,
	"returnlogic.com":     true,
	"loopreturns.com":     true,
	"postmarkapp.com":     true,
	"sparkpostmail.com":   true,
	"emarsys.net":         true,
	"attentivemobile.com": true,
}

// NormalizeDomain lower-cases domain, strips common sending subdomains and
// reduces it to the registrable domain.
func NormalizeDomain(domain string) string {
	d := strings.TrimSuffix(strings.ToLower(strings.TrimSpace(domain)), ".")
	for {
		stripped := false
		for _, p := range strippedPrefixes {
			if strings.HasPrefix(d, p) && strings.Count(d, ".") > 1 {
				d = strings.TrimPrefix(d, p)
				stripped = true
			}
		}
		if !stripped {
			break
		}
	}
	if etld1, err := publicsuffix.EffectiveTLDPlusOne(d); err == nil {
		return etld1
	}
	return d
}

// IsEmailService reports whether domain belongs to a shared sending platform.
func IsEmailService(domain string) bool {
	return emailServices[NormalizeDomain(domain)]
}

// Resolve derives the Identity for a sender domain and display name.
func Resolve(domain, displayName string) Identity {
	id := Identity{
		Domain:      strings.ToLower(strings.TrimSpace(domain)),
		DisplayName: strings.TrimSpace(displayName),
	}

	normalized := NormalizeDomain(domain)
	if !emailServices[normalized] {
		id.Normalized = normalized
		if id.DisplayName == "" {
			id.DisplayName = displayFromDomain(normalized)
		}
		return id
	}

	// a platform domain without a display name leaves the merchant unknown
	id.Normalized = Slug(displayName)
	return id
}

// Slug reduces a display name to a lower-case, hyphen-separated key.
func Slug(name string) string {
	var b strings.Builder
	pendingDash := false
	for _, r := range strings.ToLower(name) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if pendingDash && b.Len() > 0 {
				b.WriteByte('-')
			}
			b.WriteRune(r)
			pendingDash = false
			continue
		}
		pendingDash = true
	}
	return b.String()
}

func displayFromDomain(domain string) string {
	label := domain
	if i := strings.IndexByte(domain, '.'); i > 0 {
		label = domain[:i]
	}
	if label == "" {
		return ""
	}
	return strings.ToUpper(label[:1]) + label[1:]
}
