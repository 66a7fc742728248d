package evidence

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// dateRenderings lists the human-readable spellings a calendar date is
// accepted in.
func dateRenderings(d time.Time) []string {
	full := d.Format("January")
	abbr := d.Format("Jan")
	day := strconv.Itoa(d.Day())
	year := strconv.Itoa(d.Year())
	yy := fmt.Sprintf("%02d", d.Year()%100)
	m := strconv.Itoa(int(d.Month()))
	mm := fmt.Sprintf("%02d", int(d.Month()))
	dd := fmt.Sprintf("%02d", d.Day())

	return []string{
		d.Format("2006-01-02"),
		full + " " + day + ", " + year,
		full + " " + day + " " + year,
		abbr + " " + day + ", " + year,
		abbr + ". " + day + ", " + year,
		abbr + " " + day + " " + year,
		day + " " + full + " " + year,
		day + " " + abbr + " " + year,
		m + "/" + day + "/" + year,
		mm + "/" + dd + "/" + year,
		m + "/" + day + "/" + yy,
		mm + "/" + dd + "/" + yy,
	}
}

func dayRenderings(n int) []string {
	s := strconv.Itoa(n)
	return []string{s + " day", s + "-day", s + "day"}
}

func amountRenderings(a float64) []string {
	plain := strconv.FormatFloat(a, 'f', 2, 64)
	out := []string{plain}
	if grouped := groupThousands(plain); grouped != plain {
		out = append(out, grouped)
	}
	return out
}

func groupThousands(s string) string {
	intPart, frac, _ := strings.Cut(s, ".")
	neg := strings.HasPrefix(intPart, "-")
	intPart = strings.TrimPrefix(intPart, "-")
	if len(intPart) <= 3 {
		return s
	}

	var b strings.Builder
	if neg {
		b.WriteByte('-')
	}
	lead := len(intPart) % 3
	if lead > 0 {
		b.WriteString(intPart[:lead])
	}
	for i := lead; i < len(intPart); i += 3 {
		if b.Len() > 0 && !(neg && b.Len() == 1) {
			b.WriteByte(',')
		}
		b.WriteString(intPart[i : i+3])
	}
	return b.String() + "." + frac
}

var finalSaleRenderings = []string{
	"final sale",
	"non-returnable",
	"nonreturnable",
	"not returnable",
	"all sales are final",
	"all sales final",
	"not eligible for return",
	"cannot be returned",
}
