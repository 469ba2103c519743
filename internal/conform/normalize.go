package conform

import (
	"math"
	"strings"
	"time"

	"github.com/spf13/cast"
)

// extraDateLayouts are tried before cast's own list; cast does not know the
// slash-separated month-first forms common in spreadsheet exports.
var extraDateLayouts = []string{
	"2006-01-02",
	"01/02/2006",
	"1/2/2006",
	"2006/01/02",
}

// ParseDate interprets v as a calendar day in UTC. The second result is false
// when v is null, empty or unparsable; the day is then the zero time.
func ParseDate(v interface{}) (time.Time, bool) {
	switch d := v.(type) {
	case nil:
		return time.Time{}, false
	case time.Time:
		if d.IsZero() {
			return time.Time{}, false
		}
		return day(d), true
	case string:
		s := strings.TrimSpace(d)
		if s == "" {
			return time.Time{}, false
		}
		for _, layout := range extraDateLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return day(t), true
			}
		}
		t, err := cast.ToTimeE(s)
		if err != nil || t.IsZero() {
			return time.Time{}, false
		}
		return day(t), true
	default:
		return time.Time{}, false
	}
}

func day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseNumber coerces v to a float. The second result is false when v was
// present but unparsable; null, empty and unparsable values yield 0.
func ParseNumber(v interface{}) (float64, bool) {
	if v == nil {
		return 0, true
	}
	if s, ok := v.(string); ok {
		s = strings.TrimSpace(s)
		if s == "" {
			return 0, true
		}
		v = s
	}
	f, err := cast.ToFloat64E(v)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// ParseInteger coerces v to a whole number, truncating fractions.
func ParseInteger(v interface{}) (int64, bool) {
	f, ok := ParseNumber(v)
	if !ok || f >= math.MaxInt64 || f < math.MinInt64 {
		return 0, false
	}
	return int64(f), true
}

// TextValue renders v as a string; null becomes "".
func TextValue(v interface{}) string {
	if v == nil {
		return ""
	}
	if t, ok := v.(time.Time); ok {
		if t.IsZero() {
			return ""
		}
		return t.UTC().Format(time.RFC3339)
	}
	s, err := cast.ToStringE(v)
	if err != nil {
		return ""
	}
	return s
}

// KeyValue is TextValue with surrounding whitespace removed.
func KeyValue(v interface{}) string {
	return strings.TrimSpace(TextValue(v))
}

// IdentityValue is KeyValue lower-cased.
func IdentityValue(v interface{}) string {
	return strings.ToLower(KeyValue(v))
}
