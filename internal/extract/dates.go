package extract

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/jkoufopoulos/shopq-prototype-sub003/internal/models"
)

var months = map[string]time.Month{
	"jan": time.January, "feb": time.February, "mar": time.March, "apr": time.April,
	"may": time.May, "jun": time.June, "jul": time.July, "aug": time.August,
	"sep": time.September, "oct": time.October, "nov": time.November, "dec": time.December,
}

var (
	monthNameDate = regexp.MustCompile(`(?i)\b(jan(?:uary)?|feb(?:ruary)?|mar(?:ch)?|apr(?:il)?|may|june?|july?|aug(?:ust)?|sep(?:t(?:ember)?)?|oct(?:ober)?|nov(?:ember)?|dec(?:ember)?)\.?\s+(\d{1,2})(?:st|nd|rd|th)?\b(?:,?\s+(\d{4}))?`)
	dayMonthDate  = regexp.MustCompile(`(?i)\b(\d{1,2})(?:st|nd|rd|th)?\s+(jan(?:uary)?|feb(?:ruary)?|mar(?:ch)?|apr(?:il)?|may|june?|july?|aug(?:ust)?|sep(?:t(?:ember)?)?|oct(?:ober)?|nov(?:ember)?|dec(?:ember)?)\b(?:,?\s+(\d{4}))?`)
	isoDate       = regexp.MustCompile(`\b(\d{4})-(\d{2})-(\d{2})\b`)
	slashDate     = regexp.MustCompile(`\b(\d{1,2})/(\d{1,2})(?:/(\d{4}|\d{2}))?\b`)
)

// tense tells year inference which side of the received time a yearless date
// is expected to fall on.
type tense int

const (
	past tense = iota
	future
)

// parseFirstDate returns the earliest-positioned date in s. Dates without a
// year take one from ref.
func parseFirstDate(s string, ref time.Time, t tense) (time.Time, bool) {
	type hit struct {
		pos int
		at  time.Time
	}
	var best *hit
	consider := func(pos int, at time.Time, ok bool) {
		if !ok {
			return
		}
		if best == nil || pos < best.pos {
			best = &hit{pos: pos, at: at}
		}
	}

	if m := isoDate.FindStringSubmatchIndex(s); m != nil {
		y, _ := strconv.Atoi(s[m[2]:m[3]])
		mo, _ := strconv.Atoi(s[m[4]:m[5]])
		d, _ := strconv.Atoi(s[m[6]:m[7]])
		at, ok := buildDate(y, time.Month(mo), d)
		consider(m[0], at, ok)
	}
	if m := monthNameDate.FindStringSubmatchIndex(s); m != nil {
		mo := months[strings.ToLower(s[m[2]:m[2]+3])]
		d, _ := strconv.Atoi(s[m[4]:m[5]])
		at, ok := withYear(s, m[6], m[7], mo, d, ref, t)
		consider(m[0], at, ok)
	}
	if m := dayMonthDate.FindStringSubmatchIndex(s); m != nil {
		d, _ := strconv.Atoi(s[m[2]:m[3]])
		mo := months[strings.ToLower(s[m[4]:m[4]+3])]
		at, ok := withYear(s, m[6], m[7], mo, d, ref, t)
		consider(m[0], at, ok)
	}
	if m := slashDate.FindStringSubmatchIndex(s); m != nil {
		mo, _ := strconv.Atoi(s[m[2]:m[3]])
		d, _ := strconv.Atoi(s[m[4]:m[5]])
		if mo >= 1 && mo <= 12 {
			at, ok := withYear(s, m[6], m[7], time.Month(mo), d, ref, t)
			consider(m[0], at, ok)
		}
	}

	if best == nil {
		return time.Time{}, false
	}
	return best.at, true
}

func withYear(s string, start, end int, mo time.Month, d int, ref time.Time, t tense) (time.Time, bool) {
	if start >= 0 {
		y, _ := strconv.Atoi(s[start:end])
		if y < 100 {
			y += 2000
		}
		return buildDate(y, mo, d)
	}
	return inferYear(mo, d, ref, t)
}

// inferYear places a yearless date in the year of ref, shifted by one when
// that would put a past event months after the message or a future event
// months before it.
func inferYear(mo time.Month, d int, ref time.Time, t tense) (time.Time, bool) {
	at, ok := buildDate(ref.Year(), mo, d)
	if !ok {
		return at, false
	}
	refDay := models.Day(ref)
	switch t {
	case past:
		if at.After(refDay.AddDate(0, 1, 0)) {
			return buildDate(ref.Year()-1, mo, d)
		}
	case future:
		if at.Before(refDay.AddDate(0, -1, 0)) {
			return buildDate(ref.Year()+1, mo, d)
		}
	}
	return at, true
}

func buildDate(y int, mo time.Month, d int) (time.Time, bool) {
	if d < 1 || d > 31 || mo < time.January || mo > time.December {
		return time.Time{}, false
	}
	at := time.Date(y, mo, d, 0, 0, 0, 0, time.UTC)
	// time.Date normalises Feb 30 into March
	if at.Month() != mo {
		return time.Time{}, false
	}
	return at, true
}
