// Package calendar generates the gap-free day table behind dim_time.
package calendar

import (
	"fmt"
	"time"

	"github.com/ajitpratap0/scholar/pkg/errors"
)

// KeyLayout formats a date key.
const KeyLayout = "20060102"

// Day is one row of dim_time.
type Day struct {
	DateKey   string
	Date      time.Time
	Year      int
	Quarter   int
	Month     int
	MonthName string
	Day       int
	// DayOfWeek counts from Monday = 0 to Sunday = 6.
	DayOfWeek int
	DayName   string
	IsWeekend bool
}

// DateKey returns the dim_time key of t.
func DateKey(t time.Time) string {
	return t.Format(KeyLayout)
}

// NewDay describes the calendar day containing t.
func NewDay(t time.Time) Day {
	y, m, d := t.Date()
	date := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	dow := (int(date.Weekday()) + 6) % 7
	return Day{
		DateKey:   DateKey(date),
		Date:      date,
		Year:      y,
		Quarter:   (int(m)-1)/3 + 1,
		Month:     int(m),
		MonthName: m.String(),
		Day:       d,
		DayOfWeek: dow,
		DayName:   date.Weekday().String(),
		IsWeekend: dow >= 5,
	}
}

// Generate returns every day from start to end inclusive, in order.
func Generate(start, end time.Time) ([]Day, error) {
	first := NewDay(start).Date
	last := NewDay(end).Date
	if last.Before(first) {
		return nil, errors.New(errors.ErrorTypeConfig,
			fmt.Sprintf("calendar end %s is before start %s", last.Format(time.DateOnly), first.Format(time.DateOnly)))
	}

	days := make([]Day, 0, int(last.Sub(first).Hours()/24)+1)
	for d := first; !d.After(last); d = d.AddDate(0, 0, 1) {
		days = append(days, NewDay(d))
	}
	return days, nil
}

// Index resolves dates to keys within a generated horizon.
type Index struct {
	keys  map[string]struct{}
	first time.Time
	last  time.Time
}

// NewIndex indexes days.
func NewIndex(days []Day) *Index {
	idx := &Index{keys: make(map[string]struct{}, len(days))}
	for i, d := range days {
		idx.keys[d.DateKey] = struct{}{}
		if i == 0 || d.Date.Before(idx.first) {
			idx.first = d.Date
		}
		if i == 0 || d.Date.After(idx.last) {
			idx.last = d.Date
		}
	}
	return idx
}

// Resolve returns the key of t if t falls inside the horizon. The zero
// time never resolves.
func (idx *Index) Resolve(t time.Time) (string, bool) {
	if t.IsZero() {
		return "", false
	}
	key := DateKey(t)
	_, ok := idx.keys[key]
	return key, ok
}

// Has reports whether key is a calendar key.
func (idx *Index) Has(key string) bool {
	_, ok := idx.keys[key]
	return ok
}

// Len returns the number of days.
func (idx *Index) Len() int {
	return len(idx.keys)
}

// Bounds returns the first and last day.
func (idx *Index) Bounds() (time.Time, time.Time) {
	return idx.first, idx.last
}
