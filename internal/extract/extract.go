// Package extract pulls identifiers, anchor dates, amounts and return-policy
// markers out of message text with layered pattern matching.
package extract

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/jkoufopoulos/shopq-prototype-sub003/internal/models"
)

// Input is the text available for one message. Body is empty until fetched.
type Input struct {
	Subject    string
	Snippet    string
	Body       string
	Merchant   string // normalised merchant, selects merchant-specific patterns
	ReceivedAt time.Time
}

func (in Input) text() string {
	parts := []string{in.Subject, in.Snippet}
	if in.Body != "" {
		parts = append(parts, in.Body)
	}
	return strings.Join(parts, "\n")
}

// merchantPatterns holds identifier formats specific to one merchant. They
// are tried before the generic patterns.
type merchantPatterns struct {
	orderID  []*regexp.Regexp
	tracking []*regexp.Regexp
}

type datePattern struct {
	label *regexp.Regexp
	tense tense
}

// Extractor holds the compiled pattern layers.
type Extractor struct {
	merchants map[string]merchantPatterns

	orderID  []*regexp.Regexp
	tracking []*regexp.Regexp

	purchase  []datePattern
	ship      []datePattern
	delivered []datePattern
	estimated []datePattern

	amountLabelled *regexp.Regexp
	amountBare     *regexp.Regexp

	anchors   *regexp.Regexp
	finalSale *regexp.Regexp
	cancelled *regexp.Regexp

	itemSubject []*regexp.Regexp
	itemTail    *regexp.Regexp
	itemOrderNo *regexp.Regexp
}

func NewExtractor() *Extractor {
	return &Extractor{
		merchants: map[string]merchantPatterns{
			"amazon.com": {
				orderID: []*regexp.Regexp{regexp.MustCompile(`\b(\d{3}-\d{7}-\d{7})\b`)},
				tracking: []*regexp.Regexp{
					regexp.MustCompile(`\b(TBA\d{12})\b`),
				},
			},
			"ebay.com": {
				orderID: []*regexp.Regexp{regexp.MustCompile(`\b(\d{2}-\d{5}-\d{5})\b`)},
			},
			"bestbuy.com": {
				orderID: []*regexp.Regexp{regexp.MustCompile(`\b(BBY01-\d{12})\b`)},
			},
			"target.com": {
				orderID: []*regexp.Regexp{regexp.MustCompile(`(?i)\border\s*#?\s*(\d{12,15})\b`)},
			},
			"walmart.com": {
				orderID: []*regexp.Regexp{regexp.MustCompile(`\b(\d{7}-\d{8})\b`)},
			},
		},

		orderID: []*regexp.Regexp{
			regexp.MustCompile(`(?i)\border\s*(?:number|num|no\.?|id|#)?\s*(?:[:#]\s*)+#?([A-Z0-9][A-Z0-9-]{3,30})\b`),
			regexp.MustCompile(`(?i)\border\s+#?(\d[\d-]{4,30})\b`),
			regexp.MustCompile(`(?i)\bconfirmation\s*(?:number|no\.?|#|code)\s*:?\s*#?([A-Z0-9][A-Z0-9-]{3,30})\b`),
		},
		tracking: []*regexp.Regexp{
			regexp.MustCompile(`\b(1Z[0-9A-Z]{16})\b`),
			regexp.MustCompile(`\b(9[2-5]\d{20,24})\b`),
			regexp.MustCompile(`(?i)\btracking\s*(?:number|num|no\.?|#|id)?\s*[:#]?\s*([A-Z0-9]{5,34})\b`),
		},

		purchase: []datePattern{
			{regexp.MustCompile(`(?i)\b(?:order(?:ed)?|purchase|placed)\s*(?:date|on)\b\s*:?`), past},
			{regexp.MustCompile(`(?i)\bdate\s+(?:ordered|placed)\b\s*:?`), past},
		},
		ship: []datePattern{
			{regexp.MustCompile(`(?i)\b(?:shipped|dispatched)\s*(?:on)?\b\s*:?`), past},
			{regexp.MustCompile(`(?i)\bship(?:ping|ment)?\s+date\b\s*:?`), past},
		},
		delivered: []datePattern{
			{regexp.MustCompile(`(?i)\bdelivered\s*(?:on)?\b\s*:?`), past},
			{regexp.MustCompile(`(?i)\bdelivery\s+date\b\s*:?`), past},
		},
		estimated: []datePattern{
			{regexp.MustCompile(`(?i)\b(?:estimated|expected|scheduled)\s+(?:delivery|arrival)(?:\s+date)?\b\s*:?`), future},
			{regexp.MustCompile(`(?i)\b(?:arriving|arrives|arrive by|expected by|get it by)\b\s*:?`), future},
		},

		amountLabelled: regexp.MustCompile(`(?i)\b(?:grand total|order total|total charged|amount charged|total|amount paid)\s*:?\s*(?:USD\s*)?\$\s?(\d{1,3}(?:,\d{3})*(?:\.\d{2})|\d+(?:\.\d{2}))`),
		amountBare:     regexp.MustCompile(`\$\s?(\d{1,3}(?:,\d{3})*(?:\.\d{2})|\d+\.\d{2})`),

		anchors:   AnchorPattern,
		finalSale: FinalSalePattern,
		cancelled: regexp.MustCompile(`(?i)\b(?:(?:your )?order (?:has been |was |is )?cancel+ed|cancel+ation (?:confirmed|confirmation)|we(?:'ve| have) cancel+ed your order)\b`),

		itemSubject: []*regexp.Regexp{
			regexp.MustCompile(`(?i)^(?:ordered|shipped|delivered|out for delivery|arriving(?:\s+\w+)?|order confirmed|order confirmation|your order)\s*[:\-–]\s*"?(.+?)"?\s*$`),
			regexp.MustCompile(`(?i)^your (.+?) (?:has|have) (?:shipped|been shipped|been delivered|arrived)\b`),
			regexp.MustCompile(`(?i)^(?:thanks|thank you) for (?:your order|ordering)\s*(?:of|:|-)\s*"?(.+?)"?\s*$`),
		},
		itemTail:    regexp.MustCompile(`(?i)\s*(?:\.\.\.|…)?\s*(?:,|and|\+)\s*\d+\s+(?:more|other)\b.*$`),
		itemOrderNo: regexp.MustCompile(`(?i)\s*\(?\border\s*(?:#\s*[A-Z0-9-]+|\d[A-Z0-9-]*)\)?\s*`),
	}
}

// AnchorPattern finds return-policy phrases. The enrichment context builder
// centres its windows on these matches.
var AnchorPattern = regexp.MustCompile(`(?i)\b(returns? within|returns? by|return window|return policy|returns? accepted|days of (?:delivery|receipt|purchase)|eligible for (?:a )?returns?|free returns|refund within|return (?:or|and) exchange|return deadline|final sale|non-returnable)\b`)

// FinalSalePattern finds wording that makes the purchased item itself
// non-returnable. Store-wide policy lines ("final sale items cannot be
// returned", "no returns on clearance") name no particular item and do not
// match.
var FinalSalePattern = regexp.MustCompile(`(?i)\b(?:this|the|your)\s+(?:items?|products?|purchases?|orders?)(?:\s+in\s+(?:this|your)\s+order)?\s+(?:(?:is|are|was|were)\s+(?:marked\s+(?:as\s+)?)?(?:an?\s+)?(?:final[- ]sale|non-?returnable|not returnable|not eligible for (?:a\s+)?returns?)|(?:cannot|can't|can not)\s+be\s+returned)\b`)

var replyPrefix = regexp.MustCompile(`(?i)^\s*(?:(?:re|fw|fwd)\s*:\s*)+`)

// Extract runs every pattern layer over the message text.
func (e *Extractor) Extract(in Input) models.ExtractedFields {
	text := in.text()
	f := models.ExtractedFields{BodyFetched: in.Body != ""}

	mp := e.merchants[in.Merchant]
	f.OrderID = firstIdentifier(append(append([]*regexp.Regexp{}, mp.orderID...), e.orderID...), text)
	f.TrackingNumber = firstIdentifier(append(append([]*regexp.Regexp{}, mp.tracking...), e.tracking...), text)
	if f.OrderID != "" && strings.EqualFold(f.OrderID, f.TrackingNumber) {
		f.OrderID = ""
	}

	f.PurchaseDate = e.labelledDate(e.purchase, text, in.ReceivedAt)
	f.ShipDate = e.labelledDate(e.ship, text, in.ReceivedAt)
	f.DeliveryDate = e.labelledDate(e.delivered, text, in.ReceivedAt)
	if f.DeliveryDate == nil {
		f.EstimatedDeliveryDate = e.labelledDate(e.estimated, text, in.ReceivedAt)
	}

	f.Amount = e.amount(text)
	f.ItemSummary = e.ItemSummary(in.Subject)
	f.ReturnAnchors = e.returnAnchors(text)
	f.FinalSale = e.finalSale.MatchString(text)
	f.Cancelled = e.cancelled.MatchString(in.Subject) || e.cancelled.MatchString(in.Snippet)
	return f
}

// NeedsBody reports whether headers alone are not enough. Bodies carry the
// return policy and final-sale wording of confirmations, and the identifiers
// that subjects often omit.
func NeedsBody(f models.ExtractedFields, t models.EmailType) bool {
	if f.BodyFetched {
		return false
	}
	return !f.HasIdentifier() || t == models.EmailTypeConfirmation
}

// ItemSummary derives free item text from a subject line.
func (e *Extractor) ItemSummary(subject string) string {
	s := strings.TrimSpace(replyPrefix.ReplaceAllString(subject, ""))
	for _, re := range e.itemSubject {
		m := re.FindStringSubmatch(s)
		if m == nil {
			continue
		}
		item := e.itemTail.ReplaceAllString(m[1], "")
		item = e.itemOrderNo.ReplaceAllString(item, " ")
		item = strings.Trim(strings.TrimSpace(item), `"'.`)
		if item != "" {
			return item
		}
	}
	return ""
}

func firstIdentifier(patterns []*regexp.Regexp, text string) string {
	for _, re := range patterns {
		for _, m := range re.FindAllStringSubmatch(text, -1) {
			id := strings.Trim(m[1], "-")
			if hasDigit(id) {
				return strings.ToUpper(id)
			}
		}
	}
	return ""
}

func (e *Extractor) labelledDate(patterns []datePattern, text string, ref time.Time) *time.Time {
	for _, p := range patterns {
		for _, loc := range p.label.FindAllStringIndex(text, -1) {
			end := loc[1] + 60
			if end > len(text) {
				end = len(text)
			}
			segment := text[loc[1]:end]
			// only the same line belongs to the label
			if nl := strings.IndexByte(segment, '\n'); nl >= 0 {
				segment = segment[:nl]
			}
			if at, ok := parseFirstDate(segment, ref, p.tense); ok {
				return &at
			}
		}
	}
	return nil
}

func (e *Extractor) amount(text string) *float64 {
	m := e.amountLabelled.FindStringSubmatch(text)
	if m == nil {
		m = e.amountBare.FindStringSubmatch(text)
	}
	if m == nil {
		return nil
	}
	v, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", ""), 64)
	if err != nil {
		return nil
	}
	return &v
}

func (e *Extractor) returnAnchors(text string) []string {
	seen := map[string]bool{}
	for _, m := range e.anchors.FindAllString(text, -1) {
		seen[strings.ToLower(m)] = true
	}
	if len(seen) == 0 {
		return nil
	}
	out := make([]string, 0, len(seen))
	for k := range seen {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func hasDigit(s string) bool {
	for _, r := range s {
		if r >= '0' && r <= '9' {
			return true
		}
	}
	return false
}
