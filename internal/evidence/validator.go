// Package evidence grounds externally extracted claims in the literal source
// text they were taken from. A claimed value that cannot be found in the text
// is rejected.
package evidence

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"

	"github.com/jkoufopoulos/shopq-prototype-sub003/internal/models"
)

var ErrNotGrounded = errors.New("value not found in source text")

// Extraction is the untrusted payload of an external extraction call. Nothing
// outside this package reads its values; they only become usable through
// Validated.
type Extraction struct {
	ReturnByDate     string   `json:"return_by_date,omitempty"`
	ReturnWindowDays *int     `json:"return_window_days,omitempty"`
	Amount           *float64 `json:"amount,omitempty"`
	FinalSale        bool     `json:"final_sale,omitempty"`
	EvidenceQuote    string   `json:"evidence_quote,omitempty"`
	Confidence       string   `json:"confidence,omitempty"`
}

// Empty reports whether the extraction claims nothing.
func (x Extraction) Empty() bool {
	return x.ReturnByDate == "" && x.ReturnWindowDays == nil && x.Amount == nil && !x.FinalSale
}

type FieldError struct {
	Field string `json:"field"`
	Err   error  `json:"-"`
}

func (e FieldError) Error() string {
	return e.Field + ": " + e.Err.Error()
}

func (e FieldError) Unwrap() error { return e.Err }

// Result reports what survived validation. Valid means at least one claim was
// grounded and none failed.
type Result struct {
	Valid  bool
	Errors []FieldError
	Fields Validated
}

// Validator checks claims against quotes and source text.
type Validator struct {
	// Radius bounds the re-grounded quote around a match, in bytes.
	Radius int
}

func NewValidator() *Validator {
	return &Validator{Radius: 120}
}

// Validate grounds each claimed field independently.
func (v *Validator) Validate(x Extraction, source string) Result {
	var res Result
	fail := func(field string, err error) {
		res.Errors = append(res.Errors, FieldError{Field: field, Err: err})
	}

	if x.ReturnByDate != "" {
		d, err := models.ParseDay(strings.TrimSpace(x.ReturnByDate))
		if err != nil {
			fail("return_by_date", fmt.Errorf("unparseable date %q", x.ReturnByDate))
		} else if quote, err := v.GroundDate(d, x.EvidenceQuote, source); err != nil {
			fail("return_by_date", err)
		} else {
			res.Fields.returnBy = &grounded[time.Time]{value: d, quote: quote}
		}
	}

	if x.ReturnWindowDays != nil {
		n := *x.ReturnWindowDays
		if n <= 0 || n > 365 {
			fail("return_window_days", fmt.Errorf("out of range: %d", n))
		} else if quote, err := v.GroundDays(n, x.EvidenceQuote, source); err != nil {
			fail("return_window_days", err)
		} else {
			res.Fields.windowDays = &grounded[int]{value: n, quote: quote}
		}
	}

	if x.Amount != nil {
		if quote, err := v.GroundAmount(*x.Amount, x.EvidenceQuote, source); err != nil {
			fail("amount", err)
		} else {
			res.Fields.amount = &grounded[float64]{value: *x.Amount, quote: quote}
		}
	}

	if x.FinalSale {
		if quote, err := v.ground(finalSaleRenderings, x.EvidenceQuote, source); err != nil {
			fail("final_sale", err)
		} else {
			res.Fields.finalSale = &grounded[bool]{value: true, quote: quote}
		}
	}

	res.Valid = len(res.Errors) == 0 && res.Fields.Any()
	return res
}

// GroundDate returns the supporting quote for d.
func (v *Validator) GroundDate(d time.Time, quote, source string) (string, error) {
	return v.ground(dateRenderings(d), quote, source)
}

// GroundDays returns the supporting quote for an n-day window.
func (v *Validator) GroundDays(n int, quote, source string) (string, error) {
	return v.ground(dayRenderings(n), quote, source)
}

// GroundAmount returns the supporting quote for a currency amount.
func (v *Validator) GroundAmount(a float64, quote, source string) (string, error) {
	return v.ground(amountRenderings(a), quote, source)
}

// ground accepts the claimed quote when it contains a rendering and itself
// appears in the source. Otherwise it searches the source and returns a
// window around the first hit.
func (v *Validator) ground(renderings []string, quote, source string) (string, error) {
	q := normalize(quote)
	src := normalize(source)

	if q != "" && findAny(q, renderings) >= 0 {
		if src == "" || strings.Contains(strings.ToLower(src), strings.ToLower(q)) {
			return q, nil
		}
	}

	start, end := findAnySpan(src, renderings)
	if start < 0 {
		return "", ErrNotGrounded
	}
	if w := window(src, start, end, v.Radius); findAny(w, renderings) >= 0 {
		return w, nil
	}
	return strings.TrimSpace(src[start:end]), nil
}

// normalize folds compatibility characters (non-breaking spaces, full-width
// digits) and collapses whitespace.
func normalize(s string) string {
	s = norm.NFKC.String(s)
	return strings.Join(strings.FieldsFunc(s, unicode.IsSpace), " ")
}

func findAny(text string, renderings []string) int {
	start, _ := findAnySpan(text, renderings)
	return start
}

// findAnySpan returns the earliest case-insensitive, boundary-checked match
// of any rendering. Offsets index text itself.
func findAnySpan(text string, renderings []string) (int, int) {
	bestStart, bestEnd := -1, -1
	for _, r := range renderings {
		if r == "" {
			continue
		}
		re := regexp.MustCompile("(?i)" + regexp.QuoteMeta(r))
		for _, m := range re.FindAllStringIndex(text, -1) {
			if !bounded(text, m[0], m[1]) {
				continue
			}
			if bestStart < 0 || m[0] < bestStart {
				bestStart, bestEnd = m[0], m[1]
			}
			break
		}
	}
	return bestStart, bestEnd
}

// bounded rejects matches glued to a neighbouring digit, so "5 day" does not
// match inside "15 days" and "1/5/24" not inside "11/5/245".
func bounded(text string, start, end int) bool {
	if start > 0 {
		r, _ := utf8.DecodeLastRuneInString(text[:start])
		if unicode.IsDigit(r) || (unicode.IsLetter(r) && startsAlnum(text[start:])) {
			return false
		}
	}
	if end < len(text) {
		r, _ := utf8.DecodeRuneInString(text[end:])
		if unicode.IsDigit(r) && endsDigit(text[:end]) {
			return false
		}
	}
	return true
}

func startsAlnum(s string) bool {
	r, _ := utf8.DecodeRuneInString(s)
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

func endsDigit(s string) bool {
	r, _ := utf8.DecodeLastRuneInString(s)
	return unicode.IsDigit(r)
}

// window cuts a quote of at most radius bytes either side of [start, end),
// trimmed to sentence boundaries when one falls inside the window.
func window(text string, start, end, radius int) string {
	lo := start - radius
	if lo < 0 {
		lo = 0
	}
	hi := end + radius
	if hi > len(text) {
		hi = len(text)
	}
	for lo > 0 && !utf8.RuneStart(text[lo]) {
		lo++
	}
	for hi < len(text) && !utf8.RuneStart(text[hi]) {
		hi--
	}

	if i := lastSentenceBreak(text[lo:start]); i >= 0 {
		lo += i + 1
	}
	if j := firstSentenceBreak(text[end:hi]); j >= 0 {
		hi = end + j + 1
	}
	return strings.TrimSpace(text[lo:hi])
}

// A period followed by a space ends a sentence; "Jan." and "1,234.50" inside
// the match are never scanned.
func lastSentenceBreak(s string) int {
	for i := len(s) - 1; i >= 0; i-- {
		switch s[i] {
		case '!', '?', '\n':
			return i
		case '.':
			if i+1 < len(s) && s[i+1] == ' ' {
				return i
			}
		}
	}
	return -1
}

func firstSentenceBreak(s string) int {
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '!', '?', '\n':
			return i
		case '.':
			if i+1 == len(s) || s[i+1] == ' ' {
				return i
			}
		}
	}
	return -1
}
