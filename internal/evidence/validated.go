package evidence

import "time"

type grounded[T any] struct {
	value T
	quote string
}

// Validated holds only claims that passed grounding. Its fields are
// unexported so the values are reachable solely through Validator.
type Validated struct {
	returnBy   *grounded[time.Time]
	windowDays *grounded[int]
	amount     *grounded[float64]
	finalSale  *grounded[bool]
}

// Any reports whether anything was grounded.
func (v Validated) Any() bool {
	return v.returnBy != nil || v.windowDays != nil || v.amount != nil || v.finalSale != nil
}

// HasDeadline reports whether a deadline-bearing claim survived.
func (v Validated) HasDeadline() bool {
	return v.returnBy != nil || v.windowDays != nil || v.finalSale != nil
}

func (v Validated) ReturnBy() (time.Time, string, bool) {
	if v.returnBy == nil {
		return time.Time{}, "", false
	}
	return v.returnBy.value, v.returnBy.quote, true
}

func (v Validated) WindowDays() (int, string, bool) {
	if v.windowDays == nil {
		return 0, "", false
	}
	return v.windowDays.value, v.windowDays.quote, true
}

func (v Validated) Amount() (float64, string, bool) {
	if v.amount == nil {
		return 0, "", false
	}
	return v.amount.value, v.amount.quote, true
}

func (v Validated) FinalSale() (string, bool) {
	if v.finalSale == nil {
		return "", false
	}
	return v.finalSale.quote, true
}

// Summary maps each grounded field to its value and quote, for logging and
// the persisted extraction record.
func (v Validated) Summary() map[string]any {
	out := map[string]any{}
	if v.returnBy != nil {
		out["return_by_date"] = map[string]any{"value": v.returnBy.value.Format("2006-01-02"), "quote": v.returnBy.quote}
	}
	if v.windowDays != nil {
		out["return_window_days"] = map[string]any{"value": v.windowDays.value, "quote": v.windowDays.quote}
	}
	if v.amount != nil {
		out["amount"] = map[string]any{"value": v.amount.value, "quote": v.amount.quote}
	}
	if v.finalSale != nil {
		out["final_sale"] = map[string]any{"value": true, "quote": v.finalSale.quote}
	}
	return out
}
