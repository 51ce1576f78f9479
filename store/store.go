// Package store implements the continuous query cache's local replica: an
// unordered key-to-value mapping (cached-values mode) or key-to-sentinel
// mapping (key-only mode), with an observation side-channel that turns its
// own mutations into events for the listener registry (spec.md §4.3).
//
// Only the CQC engine mutates a Store; it is not a general-purpose
// concurrent map for outside use.
package store

import (
	"sync"

	"github.com/teranos/gridcache/errors"
	"github.com/teranos/gridcache/event"
	"github.com/teranos/gridcache/listener"
)

// present is the sentinel value stored for a key in key-only mode, where
// the store tracks membership but never holds the value itself.
type present struct{}

// Present is the sentinel indicating "key is in the view, value not
// cached". In key-only mode Entries reports it as the value of every key.
var Present = present{}

// Store is the local replica. Safe for concurrent use.
type Store struct {
	mu          sync.RWMutex
	source      string
	cacheValues bool
	data        map[interface{}]interface{}
	registry    *listener.Registry
	modCount    uint64
}

// New builds an empty Store. source identifies the emitting cache in events
// the store publishes (spec.md §3's MapEvent.source). cacheValues selects
// key-only mode (false) or cached-values mode (true).
func New(source string, cacheValues bool) *Store {
	return &Store{
		source:      source,
		cacheValues: cacheValues,
		data:        make(map[interface{}]interface{}),
	}
}

// Subscribe attaches r as the destination for events this store's own
// mutations generate. Call during synchronization (spec.md §4.9 step 3) so
// reconciliation events reach the registry.
func (s *Store) Subscribe(r *listener.Registry) {
	s.mu.Lock()
	s.registry = r
	s.mu.Unlock()
}

// Unsubscribe detaches the registry; subsequent mutations emit nothing.
func (s *Store) Unsubscribe() {
	s.mu.Lock()
	s.registry = nil
	s.mu.Unlock()
}

// CacheValues reports whether this store holds values (true) or only
// tracks membership via the sentinel (false).
func (s *Store) CacheValues() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cacheValues
}

func storedValue(cacheValues bool, v interface{}) interface{} {
	if cacheValues {
		return v
	}
	return Present
}

func externalValue(cacheValues bool, stored interface{}) interface{} {
	if !cacheValues {
		return nil
	}
	return stored
}

// Get returns the locally cached value for k. In key-only mode this is
// always a miss (ok=false) regardless of membership — spec.md §4.3: the
// caller (the CQC façade) must consult the remote cache for the value.
func (s *Store) Get(k interface{}) (interface{}, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.cacheValues {
		return nil, false
	}
	v, ok := s.data[k]
	if !ok {
		return nil, false
	}
	return v, true
}

// Contains reports membership regardless of mode.
func (s *Store) Contains(k interface{}) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.data[k]
	return ok
}

// Size returns the number of keys currently in the view.
func (s *Store) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}

// Keys returns a snapshot of the current key set. Insertion order is
// irrelevant per spec.md §3; callers must not assume any ordering.
func (s *Store) Keys() []interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]interface{}, 0, len(s.data))
	for k := range s.data {
		out = append(out, k)
	}
	return out
}

// Entries returns a snapshot of the current key/value pairs. In key-only
// mode every value is store.Present.
func (s *Store) Entries() map[interface{}]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[interface{}]interface{}, len(s.data))
	for k, v := range s.data {
		out[k] = v
	}
	return out
}

// Put inserts or updates k with v, emitting Inserted or Updated to the
// attached registry (if any).
func (s *Store) Put(k, v interface{}) {
	s.mu.Lock()
	old, existed := s.data[k]
	stored := storedValue(s.cacheValues, v)
	s.data[k] = stored
	s.modCount++
	cacheValues := s.cacheValues
	reg := s.registry
	source := s.source
	s.mu.Unlock()

	if reg == nil {
		return
	}
	if existed {
		reg.Publish(event.NewUpdated(source, k, externalValue(cacheValues, old), externalValue(cacheValues, stored)))
	} else {
		reg.Publish(event.NewInserted(source, k, externalValue(cacheValues, stored)))
	}
}

// Remove deletes k, emitting Deleted to the attached registry (if any) when
// k was present. A no-op, with no event, if k was absent.
func (s *Store) Remove(k interface{}) {
	s.mu.Lock()
	old, existed := s.data[k]
	if !existed {
		s.mu.Unlock()
		return
	}
	delete(s.data, k)
	s.modCount++
	cacheValues := s.cacheValues
	reg := s.registry
	source := s.source
	s.mu.Unlock()

	if reg != nil {
		reg.Publish(event.NewDeleted(source, k, externalValue(cacheValues, old)))
	}
}

// Clear removes every key, emitting one Deleted event per removed key —
// the ordinary bulk-delete semantics a remote clear() produces when it
// arrives as a stream of individual remove events.
func (s *Store) Clear() {
	s.mu.Lock()
	old := s.data
	s.data = make(map[interface{}]interface{})
	s.modCount++
	cacheValues := s.cacheValues
	reg := s.registry
	source := s.source
	s.mu.Unlock()

	if reg == nil {
		return
	}
	for k, v := range old {
		reg.Publish(event.NewDeleted(source, k, externalValue(cacheValues, v)))
	}
}

// Truncate empties the store with no events, mirroring a server-side
// truncate (spec.md §6): the view becomes empty but no per-key Deleted is
// delivered to observers.
func (s *Store) Truncate() {
	s.mu.Lock()
	s.data = make(map[interface{}]interface{})
	s.modCount++
	s.mu.Unlock()
}

// ForEach walks the store's current entries, calling fn(key, value) for
// each until fn returns false or every entry has been visited. Unlike
// Cursor, ForEach is fail-fast: if the store is mutated by anyone else
// while the walk is in progress, it stops and returns a
// errors.ConcurrentModification error rather than silently iterating a
// stale view (spec.md §7 — raised by iterators, never by event fan-out
// into registered listeners).
func (s *Store) ForEach(fn func(key, value interface{}) bool) error {
	s.mu.RLock()
	keys := make([]interface{}, 0, len(s.data))
	for k := range s.data {
		keys = append(keys, k)
	}
	startMod := s.modCount
	cacheValues := s.cacheValues
	s.mu.RUnlock()

	for _, k := range keys {
		s.mu.RLock()
		if s.modCount != startMod {
			s.mu.RUnlock()
			return errors.ConcurrentModification("local store mutated during iteration")
		}
		v, ok := s.data[k]
		s.mu.RUnlock()
		if !ok {
			continue
		}
		if !fn(k, externalValue(cacheValues, v)) {
			break
		}
	}
	return nil
}

// Cursor iterates a point-in-time snapshot of the store's keys, exposing a
// Remove that applies back to the live store (and fans out through the
// registry) rather than mutating the snapshot it's walking — the
// cursor-plus-side-channel-apply shape spec.md §9 calls for, instead of
// iteration entangled with live map mutation.
type Cursor struct {
	store    *Store
	keys     []interface{}
	startMod uint64
	i        int
}

// Cursor returns a new Cursor over the store's current key set.
func (s *Store) Cursor() *Cursor {
	s.mu.RLock()
	keys := make([]interface{}, 0, len(s.data))
	for k := range s.data {
		keys = append(keys, k)
	}
	mod := s.modCount
	s.mu.RUnlock()
	return &Cursor{store: s, keys: keys, startMod: mod, i: -1}
}

// Next advances the cursor. Returns false when exhausted.
func (c *Cursor) Next() bool {
	c.i++
	return c.i < len(c.keys)
}

// Key returns the current key.
func (c *Cursor) Key() interface{} { return c.keys[c.i] }

// Value returns the current key's live value, re-read from the store (it
// may have changed since the cursor snapshot was taken).
func (c *Cursor) Value() (interface{}, bool) { return c.store.Get(c.Key()) }

// Remove removes the cursor's current key from the live store.
func (c *Cursor) Remove() { c.store.Remove(c.Key()) }
