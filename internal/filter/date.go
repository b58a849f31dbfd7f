package filter

import (
	"time"
)

const (
	// DayLayout is the operator-facing date format.
	DayLayout   = "20060102"
	boundLayout = "20060102150405"
)

// Today returns now's UTC calendar date in DayLayout.
func Today(now time.Time) string {
	return now.UTC().Format(DayLayout)
}

// ParseBound widens a YYYYMMDD date to midnight UTC. If the text does not
// parse, now is returned and ok is false.
func ParseBound(day string, now time.Time) (t time.Time, ok bool) {
	t, err := time.ParseInLocation(boundLayout, day+"000000", time.UTC)
	if err != nil {
		return now, false
	}
	return t, true
}

// DateRange is an inclusive [From, To] interval.
type DateRange struct {
	From time.Time
	To   time.Time

	// Invalid lists the bounds that failed to parse and were replaced by now.
	Invalid []string
}

// NewDateRange builds the range from operator input. Empty bounds default to
// today.
func NewDateRange(from, to string, now time.Time) DateRange {
	if from == "" {
		from = Today(now)
	}
	if to == "" {
		to = Today(now)
	}

	var r DateRange
	var ok bool
	if r.From, ok = ParseBound(from, now); !ok {
		r.Invalid = append(r.Invalid, from)
	}
	if r.To, ok = ParseBound(to, now); !ok {
		r.Invalid = append(r.Invalid, to)
	}
	return r
}

// Contains reports whether t lies within the range, bounds included.
func (r DateRange) Contains(t time.Time) bool {
	return !t.Before(r.From) && !t.After(r.To)
}
