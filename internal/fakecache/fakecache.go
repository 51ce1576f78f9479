// Package fakecache is an in-memory remotecache.Cache used by gridcache's
// own tests, the way original_source's tests/common/include/mock doubles
// stand in for the real grid. It is not wire-compatible with anything; it
// exists purely to drive the continuous query cache's synchronization and
// event-fan-out logic deterministically.
package fakecache

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/teranos/gridcache/errors"
	"github.com/teranos/gridcache/event"
	"github.com/teranos/gridcache/filter"
	"github.com/teranos/gridcache/index"
	"github.com/teranos/gridcache/remotecache"
)

type subscription struct {
	id      uuid.UUID
	hasKey  bool
	key     interface{}
	mf      *filter.MapEventFilter
	handler remotecache.EventHandler
	lite    bool
}

func (*subscription) isSubscription() {}

type memberSub struct {
	id      uuid.UUID
	handler remotecache.MemberHandler
}

func (*memberSub) isSubscription() {}

type deactivationSub struct {
	id      uuid.UUID
	handler remotecache.DeactivationHandler
}

func (*deactivationSub) isSubscription() {}

// Cache is the in-memory stand-in for a server-backed NamedCache.
type Cache struct {
	mu                     sync.RWMutex
	name                   string
	active                 bool
	data                   map[interface{}]interface{}
	indexes                map[string]index.Descriptor
	locks                  map[interface{}]bool
	subs                   []*subscription
	memberListeners        []*memberSub
	deactivationListeners  []*deactivationSub
	seq                    uint64
	// Synchronous delivers events on the caller's goroutine instead of a
	// fresh goroutine per event. Off by default so tests exercise the same
	// concurrency a real transport would.
	Synchronous bool
}

// New builds an empty, active fake cache named name.
func New(name string) *Cache {
	return &Cache{
		name:    name,
		active:  true,
		data:    make(map[interface{}]interface{}),
		indexes: make(map[string]index.Descriptor),
		locks:   make(map[interface{}]bool),
	}
}

func (c *Cache) Name() string { return c.name }

func (c *Cache) Get(_ context.Context, key interface{}) (interface{}, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.data[key]
	return v, ok, nil
}

func (c *Cache) GetAll(_ context.Context, keys []interface{}) (map[interface{}]interface{}, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[interface{}]interface{})
	for _, k := range keys {
		if v, ok := c.data[k]; ok {
			out[k] = v
		}
	}
	return out, nil
}

func (c *Cache) ContainsKey(_ context.Context, key interface{}) (bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.data[key]
	return ok, nil
}

func (c *Cache) Size(_ context.Context) (int, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.data), nil
}

func (c *Cache) Put(_ context.Context, key, value interface{}) error {
	c.mu.Lock()
	old, existed := c.data[key]
	c.data[key] = value
	c.seq++
	seq := c.seq
	subs := append([]*subscription(nil), c.subs...)
	c.mu.Unlock()

	var ev event.MapEvent
	if existed {
		ev = event.NewUpdated(c.name, key, old, value)
	} else {
		ev = event.NewInserted(c.name, key, value)
	}
	ev.Seq = seq
	c.publish(subs, ev)
	return nil
}

func (c *Cache) PutWithTTL(ctx context.Context, key, value interface{}, _ time.Duration) error {
	// TTL expiry isn't modeled; the fake never evicts on its own.
	return c.Put(ctx, key, value)
}

func (c *Cache) PutAll(ctx context.Context, entries map[interface{}]interface{}) error {
	for k, v := range entries {
		if err := c.Put(ctx, k, v); err != nil {
			return err
		}
	}
	return nil
}

func (c *Cache) Remove(_ context.Context, key interface{}) error {
	c.mu.Lock()
	old, existed := c.data[key]
	if !existed {
		c.mu.Unlock()
		return nil
	}
	delete(c.data, key)
	c.seq++
	seq := c.seq
	subs := append([]*subscription(nil), c.subs...)
	c.mu.Unlock()

	ev := event.NewDeleted(c.name, key, old)
	ev.Seq = seq
	c.publish(subs, ev)
	return nil
}

func (c *Cache) RemoveIfEqual(ctx context.Context, key, value interface{}) (bool, error) {
	c.mu.Lock()
	cur, ok := c.data[key]
	if !ok || cur != value {
		c.mu.Unlock()
		return false, nil
	}
	c.mu.Unlock()
	return true, c.Remove(ctx, key)
}

func (c *Cache) Replace(ctx context.Context, key, value interface{}) (bool, error) {
	c.mu.Lock()
	_, ok := c.data[key]
	c.mu.Unlock()
	if !ok {
		return false, nil
	}
	return true, c.Put(ctx, key, value)
}

func (c *Cache) ReplaceIfEqual(ctx context.Context, key, expected, newValue interface{}) (bool, error) {
	c.mu.Lock()
	cur, ok := c.data[key]
	if !ok || cur != expected {
		c.mu.Unlock()
		return false, nil
	}
	c.mu.Unlock()
	return true, c.Put(ctx, key, newValue)
}

func (c *Cache) Clear(_ context.Context) error {
	c.mu.Lock()
	old := c.data
	c.data = make(map[interface{}]interface{})
	c.seq++
	seq := c.seq
	subs := append([]*subscription(nil), c.subs...)
	c.mu.Unlock()

	for k, v := range old {
		ev := event.NewDeleted(c.name, k, v)
		ev.Seq = seq
		c.publish(subs, ev)
	}
	return nil
}

// Truncate empties the cache and notifies deactivation listeners with
// Truncated, with no per-key events — mirroring the real server's truncate
// semantics (spec.md §6).
func (c *Cache) Truncate(_ context.Context) error {
	c.mu.Lock()
	c.data = make(map[interface{}]interface{})
	handlers := make([]remotecache.DeactivationHandler, 0, len(c.deactivationListeners))
	for _, d := range c.deactivationListeners {
		handlers = append(handlers, d.handler)
	}
	c.mu.Unlock()

	for _, h := range handlers {
		c.deliver(func() { h(remotecache.Truncated) })
	}
	return nil
}

func (c *Cache) KeySet(_ context.Context, f filter.Filter) ([]interface{}, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]interface{}, 0, len(c.data))
	for k, v := range c.data {
		if f == nil || f.Evaluate(filter.Entry{Key: k, Value: v}) {
			out = append(out, k)
		}
	}
	return out, nil
}

func (c *Cache) EntrySet(_ context.Context, f filter.Filter, _ index.Comparator) (map[interface{}]interface{}, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[interface{}]interface{})
	for k, v := range c.data {
		if f == nil || f.Evaluate(filter.Entry{Key: k, Value: v}) {
			out[k] = v
		}
	}
	return out, nil
}

func (c *Cache) Invoke(_ context.Context, key interface{}, proc remotecache.EntryProcessor) (interface{}, error) {
	c.mu.RLock()
	v := c.data[key]
	c.mu.RUnlock()
	return proc.Process(filter.Entry{Key: key, Value: v})
}

func (c *Cache) InvokeAllKeys(_ context.Context, keys []interface{}, proc remotecache.EntryProcessor) (map[interface{}]interface{}, error) {
	out := make(map[interface{}]interface{}, len(keys))
	c.mu.RLock()
	snapshot := make(map[interface{}]interface{}, len(keys))
	for _, k := range keys {
		snapshot[k] = c.data[k]
	}
	c.mu.RUnlock()
	for k, v := range snapshot {
		r, err := proc.Process(filter.Entry{Key: k, Value: v})
		if err != nil {
			return nil, err
		}
		out[k] = r
	}
	return out, nil
}

func (c *Cache) InvokeAllFilter(ctx context.Context, f filter.Filter, proc remotecache.EntryProcessor) (map[interface{}]interface{}, error) {
	matches, err := c.EntrySet(ctx, f, nil)
	if err != nil {
		return nil, err
	}
	keys := make([]interface{}, 0, len(matches))
	for k := range matches {
		keys = append(keys, k)
	}
	return c.InvokeAllKeys(ctx, keys, proc)
}

func (c *Cache) AggregateKeys(_ context.Context, keys []interface{}, agg remotecache.Aggregator) (interface{}, error) {
	c.mu.RLock()
	entries := make([]filter.Entry, 0, len(keys))
	for _, k := range keys {
		if v, ok := c.data[k]; ok {
			entries = append(entries, filter.Entry{Key: k, Value: v})
		}
	}
	c.mu.RUnlock()
	return agg.Aggregate(entries)
}

func (c *Cache) AggregateFilter(_ context.Context, f filter.Filter, agg remotecache.Aggregator) (interface{}, error) {
	c.mu.RLock()
	entries := make([]filter.Entry, 0)
	for k, v := range c.data {
		if f == nil || f.Evaluate(filter.Entry{Key: k, Value: v}) {
			entries = append(entries, filter.Entry{Key: k, Value: v})
		}
	}
	c.mu.RUnlock()
	return agg.Aggregate(entries)
}

func (c *Cache) Lock(_ context.Context, key interface{}, _ time.Duration) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.locks[key] {
		return false, nil
	}
	c.locks[key] = true
	return true, nil
}

func (c *Cache) Unlock(_ context.Context, key interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.locks, key)
	return nil
}

func (c *Cache) AddIndex(_ context.Context, d index.Descriptor) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.indexes[d.Name] = d
	return nil
}

func (c *Cache) RemoveIndex(_ context.Context, name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.indexes, name)
	return nil
}

func (c *Cache) AddFilterListener(_ context.Context, mf *filter.MapEventFilter, lite bool, h remotecache.EventHandler) (remotecache.Subscription, error) {
	sub := &subscription{id: uuid.New(), mf: mf, handler: h, lite: lite}
	c.mu.Lock()
	c.subs = append(c.subs, sub)
	c.mu.Unlock()
	return sub, nil
}

func (c *Cache) AddKeyListener(_ context.Context, key interface{}, lite bool, h remotecache.EventHandler) (remotecache.Subscription, error) {
	sub := &subscription{id: uuid.New(), hasKey: true, key: key, handler: h, lite: lite}
	c.mu.Lock()
	c.subs = append(c.subs, sub)
	c.mu.Unlock()
	return sub, nil
}

func (c *Cache) RemoveListener(_ context.Context, sub remotecache.Subscription) error {
	s, ok := sub.(*subscription)
	if !ok {
		return errors.InvalidArgument("not a fakecache subscription")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, existing := range c.subs {
		if existing == s {
			c.subs = append(c.subs[:i], c.subs[i+1:]...)
			return nil
		}
	}
	return nil
}

func (c *Cache) IsActive() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.active
}

func (c *Cache) Release(_ context.Context) error {
	c.mu.Lock()
	c.active = false
	c.mu.Unlock()
	return nil
}

// Destroy marks the cache inactive and notifies deactivation listeners with
// Destroyed.
func (c *Cache) Destroy(_ context.Context) error {
	c.mu.Lock()
	c.active = false
	handlers := make([]remotecache.DeactivationHandler, 0, len(c.deactivationListeners))
	for _, d := range c.deactivationListeners {
		handlers = append(handlers, d.handler)
	}
	c.mu.Unlock()

	for _, h := range handlers {
		c.deliver(func() { h(remotecache.Destroyed) })
	}
	return nil
}

func (c *Cache) AddMemberListener(h remotecache.MemberHandler) (remotecache.Subscription, error) {
	sub := &memberSub{id: uuid.New(), handler: h}
	c.mu.Lock()
	c.memberListeners = append(c.memberListeners, sub)
	c.mu.Unlock()
	return sub, nil
}

func (c *Cache) AddDeactivationListener(h remotecache.DeactivationHandler) (remotecache.Subscription, error) {
	sub := &deactivationSub{id: uuid.New(), handler: h}
	c.mu.Lock()
	c.deactivationListeners = append(c.deactivationListeners, sub)
	c.mu.Unlock()
	return sub, nil
}

// SimulateMemberLeft fires every registered member listener with left=true,
// the trigger spec.md §4.9 names for an unsolicited transition to
// Disconnected.
func (c *Cache) SimulateMemberLeft() {
	c.mu.RLock()
	handlers := make([]remotecache.MemberHandler, 0, len(c.memberListeners))
	for _, m := range c.memberListeners {
		handlers = append(handlers, m.handler)
	}
	c.mu.RUnlock()
	for _, h := range handlers {
		c.deliver(func() { h(true) })
	}
}

func (c *Cache) publish(subs []*subscription, ev event.MapEvent) {
	for _, s := range subs {
		s := s
		if s.hasKey {
			if s.key != ev.Key {
				continue
			}
		} else if s.mf != nil {
			if !s.mf.Evaluate(ev) {
				continue
			}
		}
		out := ev
		if s.lite {
			out = ev.AsLite()
		}
		c.deliver(func() { s.handler(out) })
	}
}

func (c *Cache) deliver(fn func()) {
	if c.Synchronous {
		fn()
		return
	}
	go fn()
}
