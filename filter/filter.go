// Package filter defines the predicate and value-mapper abstractions the
// continuous query cache treats as opaque: Filter and ValueExtractor are
// evaluated both server-side (as part of a query or a server-side listener
// registration) and client-side (when the engine re-checks a boundary
// crossing or validates a write against the view's own predicate).
package filter

// Entry is the (key, value) pair a Filter or ValueExtractor is evaluated
// against. It is a plain value, not a handle into any store.
type Entry struct {
	Key   interface{}
	Value interface{}
}

// Filter is an opaque predicate over entries.
type Filter interface {
	Evaluate(e Entry) bool
}

// Func adapts a plain function to Filter.
type Func func(Entry) bool

// Evaluate implements Filter.
func (f Func) Evaluate(e Entry) bool { return f(e) }

// ValueExtractor is an opaque value mapper, applied before local storage
// when a view builder specifies a transformer. Forces the view read-only
// (spec.md §4.10).
type ValueExtractor interface {
	Extract(value interface{}) (interface{}, error)
}

// ExtractorFunc adapts a plain function to ValueExtractor.
type ExtractorFunc func(interface{}) (interface{}, error)

// Extract implements ValueExtractor.
func (f ExtractorFunc) Extract(v interface{}) (interface{}, error) { return f(v) }

// Always is the default filter a view builder uses when the caller doesn't
// supply one: every entry satisfies it, so the view mirrors the whole cache.
var Always Filter = Func(func(Entry) bool { return true })

// And returns a Filter satisfied only when every one of filters is
// satisfied. Evaluation short-circuits on the first false.
func And(filters ...Filter) Filter {
	if len(filters) == 1 {
		return filters[0]
	}
	cp := make([]Filter, len(filters))
	copy(cp, filters)
	return andFilter(cp)
}

type andFilter []Filter

func (a andFilter) Evaluate(e Entry) bool {
	for _, f := range a {
		if !f.Evaluate(e) {
			return false
		}
	}
	return true
}

// Merge builds the filter a CQC uses for filter-based queries, invocations
// and aggregations against a view that is a strict subset of the backing
// cache: the view's own filter ANDed with the filter the caller supplied
// (spec.md §4.5). If userFilter is nil, viewFilter alone is returned.
func Merge(viewFilter, userFilter Filter) Filter {
	if userFilter == nil {
		return viewFilter
	}
	return And(viewFilter, userFilter)
}
