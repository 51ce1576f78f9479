package filter

import "github.com/teranos/gridcache/event"

// Mask is the wire-compatible bitmask a MapEventFilter serializes as when
// registered with a remote cache. Values match spec.md §6 exactly so a
// remotecache.Cache implementation that talks to a real grid node can pass
// them through unchanged.
type Mask uint32

const (
	MaskInserted       Mask = 0x01
	MaskUpdated        Mask = 0x02
	MaskDeleted        Mask = 0x04
	MaskUpdatedEntered Mask = 0x08
	MaskUpdatedLeft    Mask = 0x10
	MaskUpdatedWithin  Mask = 0x20
	MaskAll            Mask = 0x07
	MaskKeySet         Mask = 0x1d
)

// MapEventFilter wraps a value Filter so it can be evaluated against a
// event.MapEvent instead of a single Entry, selecting which kinds of
// transition are of interest via Mask.
type MapEventFilter struct {
	Mask   Mask
	Filter Filter
}

// NewMapEventFilter builds a MapEventFilter with an explicit mask.
func NewMapEventFilter(mask Mask, f Filter) *MapEventFilter {
	return &MapEventFilter{Mask: mask, Filter: f}
}

// NewAddedFilter builds the server-side subscription filter for the add
// stream (spec.md §4.8): fires on an event whose new value satisfies f,
// whether that's a fresh insert into the view or an update that stays
// within it.
func NewAddedFilter(f Filter) *MapEventFilter {
	return NewMapEventFilter(MaskInserted|MaskUpdatedEntered|MaskUpdatedWithin, f)
}

// NewRemovedFilter builds the server-side subscription filter for the
// remove stream (spec.md §4.8): fires on an event whose old value satisfied
// f but whose new value does not, or on an outright delete of a key that
// satisfied f.
func NewRemovedFilter(f Filter) *MapEventFilter {
	return NewMapEventFilter(MaskUpdatedLeft|MaskDeleted, f)
}

// Evaluate classifies ev against the wrapped Filter and reports whether the
// resulting transition is one Mask selects.
func (mf *MapEventFilter) Evaluate(ev event.MapEvent) bool {
	oldIn := ev.Old != nil && mf.Filter.Evaluate(Entry{Key: ev.Key, Value: ev.Old})
	newIn := ev.New != nil && mf.Filter.Evaluate(Entry{Key: ev.Key, Value: ev.New})

	var transition Mask
	switch ev.Kind {
	case event.Inserted:
		if newIn {
			transition = MaskInserted
		}
	case event.Deleted:
		if oldIn {
			transition = MaskDeleted
		}
	case event.Updated:
		switch {
		case !oldIn && newIn:
			transition = MaskUpdatedEntered
		case oldIn && !newIn:
			transition = MaskUpdatedLeft
		case oldIn && newIn:
			transition = MaskUpdatedWithin
		default:
			return false
		}
	}
	return transition != 0 && mf.Mask&transition != 0
}
