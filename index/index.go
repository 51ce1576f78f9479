// Package index defines the value type describing an index registered
// against a cache (spec.md §3): an extractor, whether it's ordered, and an
// optional comparator for ordered traversal.
package index

import "github.com/teranos/gridcache/filter"

// Comparator orders two extracted values, returning a negative number, zero,
// or a positive number as a < b, a == b, or a > b.
type Comparator func(a, b interface{}) int

// Descriptor is a pure value; it does not need prototype-style cloning, only
// value copy (spec.md §9). Name is the stable identifier the CQC's index map
// is keyed by (spec.md §3: "a map keyed by extractor") — a plain string
// rather than the extractor value itself, since extractors are frequently
// backed by closures and Go map keys must be comparable.
type Descriptor struct {
	Name       string
	Extractor  filter.ValueExtractor
	Ordered    bool
	Comparator Comparator
}
