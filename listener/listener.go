// Package listener implements the per-key and per-filter subscription
// registry that resolves, for a given event, which user listeners fire
// (spec.md §4.2).
package listener

import (
	"sync"

	"github.com/google/uuid"

	"github.com/teranos/gridcache/event"
	"github.com/teranos/gridcache/filter"
)

// MapListener receives change notifications. Implementations must not
// assume they run on any particular goroutine — a Registry hands every
// matching subscription, lite or standard, to its Dispatcher (in a CQC, the
// async dispatcher's single goroutine, package dispatch); see
// Registry.Publish.
type MapListener interface {
	Inserted(e event.MapEvent)
	Updated(e event.MapEvent)
	Deleted(e event.MapEvent)
}

// Func adapts three plain functions to MapListener. A nil field is a no-op
// for that event kind.
type Func struct {
	OnInserted func(event.MapEvent)
	OnUpdated  func(event.MapEvent)
	OnDeleted  func(event.MapEvent)
}

func (f Func) Inserted(e event.MapEvent) {
	if f.OnInserted != nil {
		f.OnInserted(e)
	}
}

func (f Func) Updated(e event.MapEvent) {
	if f.OnUpdated != nil {
		f.OnUpdated(e)
	}
}

func (f Func) Deleted(e event.MapEvent) {
	if f.OnDeleted != nil {
		f.OnDeleted(e)
	}
}

// dispatch fires the hook matching ev.Kind.
func dispatch(l MapListener, ev event.MapEvent) {
	switch ev.Kind {
	case event.Inserted:
		l.Inserted(ev)
	case event.Updated:
		l.Updated(ev)
	case event.Deleted:
		l.Deleted(ev)
	}
}

// Subscription is a listener plus a target — a specific key or a filter —
// plus the lite flag it was registered with. Multiple subscriptions may
// hold the same listener (spec.md §3).
type Subscription struct {
	ID       uuid.UUID
	Listener MapListener
	Key      interface{} // meaningful only when HasKey is true
	HasKey   bool
	Filter   filter.Filter // meaningful only when HasKey is false
	Lite     bool
}

func matchesFilter(ev event.MapEvent, f filter.Filter) bool {
	switch ev.Kind {
	case event.Inserted:
		return ev.New != nil && f.Evaluate(filter.Entry{Key: ev.Key, Value: ev.New})
	case event.Deleted:
		return ev.Old != nil && f.Evaluate(filter.Entry{Key: ev.Key, Value: ev.Old})
	case event.Updated:
		oldIn := ev.Old != nil && f.Evaluate(filter.Entry{Key: ev.Key, Value: ev.Old})
		newIn := ev.New != nil && f.Evaluate(filter.Entry{Key: ev.Key, Value: ev.New})
		return oldIn || newIn
	default:
		return false
	}
}

// Dispatcher is the subset of dispatch.Dispatcher the registry needs: a
// non-blocking handoff of one (event, listener) pair. Declared here, not in
// package dispatch, so listener does not depend on dispatch's concrete type.
type Dispatcher interface {
	Schedule(ev event.MapEvent, l MapListener)
}

// SyncDispatcher runs listener hooks synchronously on the publishing
// goroutine. Reserved for internal use (spec.md §4.2), never for
// user-registered subscriptions; the CQC engine itself does not use it, and
// its registry always delivers through the async dispatcher.
type SyncDispatcher struct{}

// Schedule implements Dispatcher by calling the listener immediately.
func (SyncDispatcher) Schedule(ev event.MapEvent, l MapListener) { dispatch(l, ev) }

// Registry holds a CQC's key- and filter-keyed subscriptions and fans out
// events to the matching ones. It is safe for concurrent use: consulted
// from the event-ingest goroutine while add/remove subscribe calls arrive
// from arbitrary user goroutines.
type Registry struct {
	mu          sync.RWMutex
	byKey       map[interface{}][]*Subscription
	byFilter    []*Subscription
	async       Dispatcher
	observedStd bool // at least one non-lite or filter-based subscription
}

// NewRegistry builds an empty Registry that hands matching (event,
// listener) pairs to async for delivery.
func NewRegistry(async Dispatcher) *Registry {
	return &Registry{
		byKey: make(map[interface{}][]*Subscription),
		async: async,
	}
}

// AddKeyListener registers l for events on key. lite elides Old/New from
// events delivered to l when no other standard subscriber needs them.
func (r *Registry) AddKeyListener(key interface{}, l MapListener, lite bool) *Subscription {
	sub := &Subscription{ID: uuid.New(), Listener: l, Key: key, HasKey: true, Lite: lite}
	r.mu.Lock()
	r.byKey[key] = append(r.byKey[key], sub)
	if !lite {
		r.observedStd = true
	}
	r.mu.Unlock()
	return sub
}

// AddFilterListener registers l for every event f concerns. A nil f is
// treated as filter.Always.
func (r *Registry) AddFilterListener(f filter.Filter, l MapListener, lite bool) *Subscription {
	if f == nil {
		f = filter.Always
	}
	sub := &Subscription{ID: uuid.New(), Listener: l, Filter: f, Lite: lite}
	r.mu.Lock()
	r.byFilter = append(r.byFilter, sub)
	r.observedStd = true // any filter-based subscription forces cache_values, per spec.md §4.10
	r.mu.Unlock()
	return sub
}

// Remove unregisters sub. Safe to call more than once.
func (r *Registry) Remove(sub *Subscription) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if sub.HasKey {
		subs := r.byKey[sub.Key]
		for i, s := range subs {
			if s == sub {
				r.byKey[sub.Key] = append(subs[:i], subs[i+1:]...)
				break
			}
		}
		if len(r.byKey[sub.Key]) == 0 {
			delete(r.byKey, sub.Key)
		}
	} else {
		for i, s := range r.byFilter {
			if s == sub {
				r.byFilter = append(r.byFilter[:i], r.byFilter[i+1:]...)
				break
			}
		}
	}
	r.recomputeObserved()
}

// RemoveListener unregisters every subscription holding l, for either a key
// or a filter target.
func (r *Registry) RemoveListener(l MapListener) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for key, subs := range r.byKey {
		kept := subs[:0]
		for _, s := range subs {
			if s.Listener != l {
				kept = append(kept, s)
			}
		}
		if len(kept) == 0 {
			delete(r.byKey, key)
		} else {
			r.byKey[key] = kept
		}
	}
	kept := r.byFilter[:0]
	for _, s := range r.byFilter {
		if s.Listener != l {
			kept = append(kept, s)
		}
	}
	r.byFilter = kept
	r.recomputeObserved()
}

// recomputeObserved must run with r.mu held.
func (r *Registry) recomputeObserved() {
	if len(r.byFilter) > 0 {
		r.observedStd = true
		return
	}
	for _, subs := range r.byKey {
		for _, s := range subs {
			if !s.Lite {
				r.observedStd = true
				return
			}
		}
	}
	r.observedStd = false
}

// Observed reports whether at least one subscription is non-lite or
// filter-based, which per spec.md §4.10 forces CacheValues on.
func (r *Registry) Observed() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.observedStd
}

// Publish evaluates ev against every registered subscription and hands each
// match to the async dispatcher. Fan-out never blocks on user code: a full
// dispatcher queue is the dispatcher's problem, not the publisher's.
func (r *Registry) Publish(ev event.MapEvent) {
	r.mu.RLock()
	matches := make([]*Subscription, 0, 4)
	if subs, ok := r.byKey[ev.Key]; ok {
		matches = append(matches, subs...)
	}
	for _, s := range r.byFilter {
		if matchesFilter(ev, s.Filter) {
			matches = append(matches, s)
		}
	}
	anyStandard := false
	for _, s := range matches {
		if !s.Lite {
			anyStandard = true
			break
		}
	}
	r.mu.RUnlock()

	out := ev
	if !anyStandard && len(matches) > 0 {
		out = ev.AsLite()
	}
	for _, s := range matches {
		r.async.Schedule(out, s.Listener)
	}
}
