// Package event defines the value types that flow from a remote cache's
// change stream through the continuous query cache to user listeners.
package event

import "fmt"

// Kind identifies what happened to an entry.
type Kind int

const (
	// Inserted means the key did not previously satisfy the view and now
	// does (or, for a raw cache-level stream, the key did not previously
	// exist and now does).
	Inserted Kind = iota
	// Updated means the key satisfied the view before and after the change.
	Updated
	// Deleted means the key satisfied the view before the change and no
	// longer does (or the entry was removed outright).
	Deleted
)

func (k Kind) String() string {
	switch k {
	case Inserted:
		return "Inserted"
	case Updated:
		return "Updated"
	case Deleted:
		return "Deleted"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// MapEvent is an immutable value object describing a single change to a
// single key in a cache. Old is nil for Inserted, New is nil for Deleted.
// Equality is by (Kind, Key, Old, New, Source); two events from different
// sources are never equal even if otherwise identical.
//
// A "lite" event is one whose Old/New have been elided because no standard
// (non-lite) subscriber needs them — Lite is advisory metadata, not part of
// the equality tuple.
type MapEvent struct {
	Kind   Kind
	Key    interface{}
	Old    interface{}
	New    interface{}
	Source string
	Lite   bool

	// Seq is the server-assigned sequence number for this key's change
	// stream, when the remote cache façade supplies one. Together with Key
	// it identifies one logical change across the add and remove streams
	// (spec.md §9's open question). Nothing in this module deduplicates on
	// it; the CQC's duplicate handling is described in DESIGN.md.
	Seq uint64
}

// NewInserted builds an Inserted MapEvent.
func NewInserted(source string, key, newValue interface{}) MapEvent {
	return MapEvent{Kind: Inserted, Key: key, New: newValue, Source: source}
}

// NewUpdated builds an Updated MapEvent.
func NewUpdated(source string, key, oldValue, newValue interface{}) MapEvent {
	return MapEvent{Kind: Updated, Key: key, Old: oldValue, New: newValue, Source: source}
}

// NewDeleted builds a Deleted MapEvent.
func NewDeleted(source string, key, oldValue interface{}) MapEvent {
	return MapEvent{Kind: Deleted, Key: key, Old: oldValue, Source: source}
}

// AsLite returns a copy of e with Old/New elided and Lite set, leaving Kind,
// Key, Source and Seq untouched. Used when no matching subscriber is
// standard (non-lite), saving the work of carrying values the dispatcher
// would only discard.
func (e MapEvent) AsLite() MapEvent {
	lite := e
	lite.Old = nil
	lite.New = nil
	lite.Lite = true
	return lite
}

// Equal implements the value-object equality spec.md §3 describes.
func (e MapEvent) Equal(other MapEvent) bool {
	return e.Kind == other.Kind &&
		e.Key == other.Key &&
		e.Old == other.Old &&
		e.New == other.New &&
		e.Source == other.Source
}

func (e MapEvent) String() string {
	return fmt.Sprintf("MapEvent{%s key=%v old=%v new=%v source=%q lite=%v}", e.Kind, e.Key, e.Old, e.New, e.Source, e.Lite)
}
