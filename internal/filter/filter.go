// Package filter decides from headers alone whether a message may enter the
// purchase pipeline.
package filter

import (
	"net/mail"
	"regexp"
	"strings"

	"github.com/jkoufopoulos/shopq-prototype-sub003/internal/merchant"
)

// Input is the header view the filter is allowed to see. Bodies are never
// consulted here.
type Input struct {
	From    string
	Subject string
	Snippet string
}

type Decision struct {
	Blocked  bool
	Reason   string
	Merchant merchant.Identity
}

const (
	ReasonMalformedSender = "malformed_sender"
	ReasonEmpty           = "empty_message"
	ReasonDeniedSender    = "denied_sender"
	ReasonDeniedDomain    = "denied_domain"
	ReasonMarketing       = "marketing_template"
)

var deniedLocalParts = []string{
	"newsletter", "newsletters", "marketing", "promo", "promotions", "deals", "offers",
	"news", "digest", "survey", "reviews", "feedback", "rewards",
}

var deniedDomains = map[string]bool{
	"facebookmail.com": true,
	"linkedin.com":     true,
	"twitter.com":      true,
	"x.com":            true,
	"instagram.com":    true,
	"pinterest.com":    true,
	"medium.com":       true,
	"substack.com":     true,
	"quora.com":        true,
	"nextdoor.com":     true,
}

// Marketing footers and promotional templates regularly carry words like
// "order" and fool naive purchase detection.
var marketingSubjects = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b\d{1,2}\s?% off\b`),
	regexp.MustCompile(`(?i)\bsale (ends|starts)\b`),
	regexp.MustCompile(`(?i)\b(newsletter|unsubscribe|gift guide|lookbook)\b`),
	regexp.MustCompile(`(?i)\b(rate|review) your (purchase|order|experience)\b`),
	regexp.MustCompile(`(?i)\bhow did we do\b`),
	regexp.MustCompile(`(?i)\b(back in stock|recommended for you|you may also like|new arrivals)\b`),
	regexp.MustCompile(`(?i)\b(still thinking|left (something|items) in your cart|complete your (order|purchase))\b`),
	regexp.MustCompile(`(?i)\bfree shipping on (all|your next)\b`),
}

// Evaluate applies the sender and template denylists. It is pure.
func Evaluate(in Input) Decision {
	addr, err := mail.ParseAddress(in.From)
	if err != nil {
		return Decision{Blocked: true, Reason: ReasonMalformedSender}
	}

	at := strings.LastIndexByte(addr.Address, '@')
	if at <= 0 || at == len(addr.Address)-1 {
		return Decision{Blocked: true, Reason: ReasonMalformedSender}
	}
	local := strings.ToLower(addr.Address[:at])
	domain := strings.ToLower(addr.Address[at+1:])

	d := Decision{Merchant: merchant.Resolve(domain, addr.Name)}

	switch {
	case strings.TrimSpace(in.Subject) == "" && strings.TrimSpace(in.Snippet) == "":
		d.Blocked, d.Reason = true, ReasonEmpty
	case deniedDomains[merchant.NormalizeDomain(domain)]:
		d.Blocked, d.Reason = true, ReasonDeniedDomain
	case deniedLocalPart(local):
		d.Blocked, d.Reason = true, ReasonDeniedSender
	case marketingSubject(in.Subject):
		d.Blocked, d.Reason = true, ReasonMarketing
	}
	return d
}

func deniedLocalPart(local string) bool {
	// "news+deals", "newsletter-us"
	base := strings.FieldsFunc(local, func(r rune) bool { return r == '+' || r == '-' || r == '.' || r == '_' })
	if len(base) == 0 {
		return false
	}
	for _, denied := range deniedLocalParts {
		if base[0] == denied {
			return true
		}
	}
	return false
}

func marketingSubject(subject string) bool {
	for _, re := range marketingSubjects {
		if re.MatchString(subject) {
			return true
		}
	}
	return false
}
