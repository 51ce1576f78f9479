package cqc

import "fmt"

// State is one of the four lifecycle states a continuous query cache moves
// through while it is being (re)synchronized with its backing cache
// (spec.md §4.7). The zero value is Disconnected, matching a freshly
// constructed, not-yet-synchronized CQC.
type State int

const (
	// Disconnected means no active server-side subscriptions; the local
	// store may be stale or empty.
	Disconnected State = iota
	// Configuring means a (re)sync is in progress: server listeners are
	// being attached and initial data is being fetched. Events arriving
	// during this window are logged as deferred, keyed by key.
	Configuring
	// Configured means server listeners are attached and initial data is in
	// the local store, but deferred events have not yet been reconciled.
	Configured
	// Synchronized is the steady state: events drive the store directly and
	// reads are served locally.
	Synchronized
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "Disconnected"
	case Configuring:
		return "Configuring"
	case Configured:
		return "Configured"
	case Synchronized:
		return "Synchronized"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// legalTransition reports whether moving from `from` to `to` is one of the
// transitions spec.md §4.7 names. Any other pair is an internal invariant
// violation.
func legalTransition(from, to State) bool {
	switch {
	case from == Disconnected && to == Configuring:
		return true
	case from == Configuring && to == Configured:
		return true
	case from == Configured && to == Synchronized:
		return true
	case to == Disconnected &&
		(from == Synchronized || from == Configured || from == Configuring):
		return true
	default:
		return false
	}
}
