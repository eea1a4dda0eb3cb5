package ingest

// convert.go provides coercion from raw field values to normalized types.
//
// Field values arrive as strings from CSV cells and as arbitrary JSON
// scalars from webhook bodies, so every coercion accepts `any` and reports
// success with an ok bool rather than an error. Invalid input is an
// expected, per-row outcome.

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Date layouts accepted by ParseDate, ISO first. Dashboards receive
// exports with US, EU, and dotted date styles; all are normalized to a
// plain calendar date.
var dateLayouts = []string{
	"2006-01-02",
	"2006/01/02",
	"2006.01.02",
	"1/2/2006", "01/02/2006",
	"1-2-2006", "01-02-2006",
	"1.2.2006", "01.02.2006",
	"Jan 2, 2006", "2 Jan 2006",
	"20060102",
}

// ParseDate parses a calendar date from a string. Accepts ISO dates, the
// common slash/dot variants, and timestamps whose leading ten characters
// form an ISO date. The result carries no time component.
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}

	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}

	// ISO timestamp: keep the date part, drop the time.
	if len(s) > 10 {
		if t, err := time.Parse("2006-01-02", s[:10]); err == nil {
			return t, true
		}
	}

	return time.Time{}, false
}

// ToNumber coerces a raw field value to a number. Native numbers pass
// through; strings are trimmed, stripped of thousands-separator commas,
// and parsed as decimals. Anything else, including the empty string, is
// not a number.
func ToNumber(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int32:
		return float64(x), true
	case int64:
		return float64(x), true
	case json.Number:
		f, err := x.Float64()
		return f, err == nil
	case string:
		s := strings.ReplaceAll(strings.TrimSpace(x), ",", "")
		if s == "" {
			return 0, false
		}
		f, err := strconv.ParseFloat(s, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// ToText coerces a raw field value to a string. An empty result is
// reported as absent rather than the literal empty string.
func ToText(v any) (string, bool) {
	var s string
	switch x := v.(type) {
	case nil:
		return "", false
	case string:
		s = x
	case float64:
		s = strconv.FormatFloat(x, 'g', -1, 64)
	case int:
		s = strconv.Itoa(x)
	case int64:
		s = strconv.FormatInt(x, 10)
	case bool:
		s = strconv.FormatBool(x)
	case json.Number:
		s = x.String()
	default:
		s = fmt.Sprintf("%v", x)
	}

	if s == "" {
		return "", false
	}
	return s, true
}
