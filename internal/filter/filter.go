// Package filter holds the client-side predicates applied to feed entries.
package filter

import (
	"iter"
	"strings"

	"github.com/gustycube/abusech-cli/internal/types"
)

const (
	StatusOnline  = "online"
	StatusOffline = "offline"
)

// URLOptions selects URLhaus entries.
type URLOptions struct {
	ExcludeOnline  bool
	ExcludeOffline bool
	Reporter       string
	Dates          DateRange
}

// Match reports whether e passes every URL predicate.
func (o URLOptions) Match(e types.URLEntry) bool {
	status := (e.Status == StatusOnline && !o.ExcludeOnline) ||
		(e.Status == StatusOffline && !o.ExcludeOffline)
	return status &&
		strings.Contains(e.Reporter, o.Reporter) &&
		o.Dates.Contains(e.DateAdded.Time)
}

// IOCOptions selects ThreatFox entries.
type IOCOptions struct {
	Reporter   string
	ExcludeIOC string
	Dates      DateRange
}

// Match reports whether e passes every IOC predicate. An empty ExcludeIOC
// matches every ioc_type and so excludes everything.
func (o IOCOptions) Match(e types.IOCEntry) bool {
	return strings.Contains(e.Reporter, o.Reporter) &&
		!strings.Contains(e.IOCType, o.ExcludeIOC) &&
		o.Dates.Contains(e.FirstSeen.Time)
}

// Filter yields the entries accepted by match, in input order. Nothing is
// evaluated until the sequence is ranged over.
func Filter[T any](entries []T, match func(T) bool) iter.Seq[T] {
	return func(yield func(T) bool) {
		for _, e := range entries {
			if !match(e) {
				continue
			}
			if !yield(e) {
				return
			}
		}
	}
}
