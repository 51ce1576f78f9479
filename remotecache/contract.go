// Package remotecache defines the façade the continuous query cache
// consumes but does not implement (spec.md §4.6): the thin contract a
// remote, server-backed NamedCache must satisfy. The wire transport, codec,
// and concrete NamedCache behind this interface are out of this module's
// scope (spec.md §1) — package gridrpc supplies one concrete adapter, and
// internal/fakecache supplies the in-memory test double the unit and
// scenario tests drive.
package remotecache

import (
	"context"
	"time"

	"github.com/teranos/gridcache/event"
	"github.com/teranos/gridcache/filter"
	"github.com/teranos/gridcache/index"
)

// EntryProcessor is an opaque unit of work invoked against one or more
// entries on the server (spec.md §4.6's invoke family).
type EntryProcessor interface {
	Process(e filter.Entry) (interface{}, error)
}

// Aggregator is an opaque reduction over a set of entries, evaluated
// server-side (spec.md §4.6's aggregate family, and spec.md §4.9 step 6's
// "aggregate with identity-with-transform" initial population).
type Aggregator interface {
	Aggregate(entries []filter.Entry) (interface{}, error)
}

// DeactivationReason distinguishes the two server-side events a
// deactivation listener reports (spec.md §6).
type DeactivationReason int

const (
	// Destroyed means the backing cache was destroyed server-side.
	Destroyed DeactivationReason = iota
	// Truncated means the backing cache was truncated server-side.
	Truncated
)

// EventHandler receives MapEvents for a subscription registered with
// AddFilterListener or AddKeyListener. Invoked on whatever goroutine the
// Cache implementation uses to deliver server events — never assumed to be
// the caller's goroutine.
type EventHandler func(event.MapEvent)

// DeactivationHandler receives lifecycle notifications for a cache
// destroy/truncate (spec.md §6).
type DeactivationHandler func(reason DeactivationReason)

// MemberHandler receives service-membership notifications. Cluster
// membership itself is a non-goal (spec.md §1); the CQC only needs to know
// that a member-left style signal can cause a transition to Disconnected.
type MemberHandler func(left bool)

// Subscription is an opaque handle returned by the listener-registration
// methods. Handles from AddFilterListener and AddKeyListener are passed back
// to RemoveListener; Cache has no method that removes the handles
// AddMemberListener and AddDeactivationListener return.
type Subscription interface {
	// unexported marker — only a Cache implementation can mint one, which
	// keeps callers from constructing a Subscription by hand.
	isSubscription()
}

// Cache is the remote-cache façade spec.md §4.6 describes. Every method
// that can talk to the network takes a context so callers can bound or
// cancel an in-flight call; spec.md §5 notes per-operation timeouts are
// inherited from the transport.
type Cache interface {
	// Name returns the display name of the backing cache, if the underlying
	// implementation has one.
	Name() string

	// Read.
	Get(ctx context.Context, key interface{}) (value interface{}, found bool, err error)
	GetAll(ctx context.Context, keys []interface{}) (map[interface{}]interface{}, error)
	ContainsKey(ctx context.Context, key interface{}) (bool, error)
	Size(ctx context.Context) (int, error)

	// Write.
	Put(ctx context.Context, key, value interface{}) error
	PutWithTTL(ctx context.Context, key, value interface{}, ttl time.Duration) error
	PutAll(ctx context.Context, entries map[interface{}]interface{}) error
	Remove(ctx context.Context, key interface{}) error
	RemoveIfEqual(ctx context.Context, key, value interface{}) (bool, error)
	Replace(ctx context.Context, key, value interface{}) (bool, error)
	ReplaceIfEqual(ctx context.Context, key, expected, newValue interface{}) (bool, error)
	Clear(ctx context.Context) error
	Truncate(ctx context.Context) error

	// Query.
	KeySet(ctx context.Context, f filter.Filter) ([]interface{}, error)
	EntrySet(ctx context.Context, f filter.Filter, cmp index.Comparator) (map[interface{}]interface{}, error)

	// Invocation.
	Invoke(ctx context.Context, key interface{}, proc EntryProcessor) (interface{}, error)
	InvokeAllKeys(ctx context.Context, keys []interface{}, proc EntryProcessor) (map[interface{}]interface{}, error)
	InvokeAllFilter(ctx context.Context, f filter.Filter, proc EntryProcessor) (map[interface{}]interface{}, error)
	AggregateKeys(ctx context.Context, keys []interface{}, agg Aggregator) (interface{}, error)
	AggregateFilter(ctx context.Context, f filter.Filter, agg Aggregator) (interface{}, error)

	// Concurrency.
	Lock(ctx context.Context, key interface{}, wait time.Duration) (bool, error)
	Unlock(ctx context.Context, key interface{}) error

	// Indexes.
	AddIndex(ctx context.Context, d index.Descriptor) error
	RemoveIndex(ctx context.Context, name string) error

	// Event subscription.
	AddFilterListener(ctx context.Context, mf *filter.MapEventFilter, lite bool, h EventHandler) (Subscription, error)
	AddKeyListener(ctx context.Context, key interface{}, lite bool, h EventHandler) (Subscription, error)
	RemoveListener(ctx context.Context, sub Subscription) error

	// Lifecycle.
	IsActive() bool
	Release(ctx context.Context) error
	Destroy(ctx context.Context) error
	AddMemberListener(h MemberHandler) (Subscription, error)
	AddDeactivationListener(h DeactivationHandler) (Subscription, error)
}
