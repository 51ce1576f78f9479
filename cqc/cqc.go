// Package cqc implements the continuous query cache engine: a client-side
// materialized view of a filtered subset of a remote cache, kept coherent by
// a (re)synchronization protocol and a pair of server-side event
// subscriptions (spec.md §1–§4).
package cqc

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/teranos/gridcache/dispatch"
	"github.com/teranos/gridcache/errors"
	"github.com/teranos/gridcache/filter"
	"github.com/teranos/gridcache/index"
	"github.com/teranos/gridcache/listener"
	"github.com/teranos/gridcache/remotecache"
	"github.com/teranos/gridcache/store"
)

// CQC is a client-resident, incrementally-maintained materialized view of
// `filter(remote)`. The zero value is not usable; build one with New, or
// preferably with a view.Builder.
//
// mu guards state, the sync log, the cacheValues/readOnly/active flags, the
// index bookkeeping map, and the server subscription handles — every field
// spec.md §4.7 calls "read from many threads and written under the CQC
// monitor". syncMu is held for the full duration of one run of the
// synchronization protocol, serializing concurrent sync attempts without
// forcing every quick state check elsewhere to wait for a sync to finish.
type CQC struct {
	remote      remotecache.Cache
	cacheFilter filter.Filter
	transformer filter.ValueExtractor
	nameFn      func() string
	logger      *zap.SugaredLogger

	store      *store.Store
	registry   *listener.Registry
	dispatcher *dispatch.Dispatcher

	syncMu sync.Mutex

	mu                sync.RWMutex
	state             State
	cacheValues       bool
	readOnly          bool
	reconnectInterval time.Duration
	active            bool
	lastSyncAttempt   time.Time
	syncLog           map[interface{}]struct{}
	indexes           map[string]index.Descriptor
	addSub            remotecache.Subscription
	removeSub         remotecache.Subscription
	lifecycle         []LifecycleListener
}

// LifecycleListener receives a notification when the backing cache is
// destroyed or truncated server-side, regardless of whether that event also
// produces per-key MapEvents for ordinary listeners (spec.md §6: a truncate
// fires no per-key Deleted events, but still reaches any registered
// lifecycle observer).
type LifecycleListener func(reason remotecache.DeactivationReason)

// New builds a CQC over remote, restricted to entries satisfying f (a nil f
// behaves as filter.Always), and synchronizes it before returning. f is
// fixed for the CQC's lifetime.
func New(ctx context.Context, remote remotecache.Cache, f filter.Filter, opts ...Option) (*CQC, error) {
	if remote == nil {
		return nil, errors.InvalidArgument("remote cache must not be nil")
	}
	if f == nil {
		f = filter.Always
	}
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = zap.NewNop().Sugar()
	}

	q := &CQC{
		remote:            remote,
		cacheFilter:       f,
		transformer:       o.transformer,
		nameFn:            o.cacheNameSupplier,
		logger:            o.logger,
		cacheValues:       o.cacheValues,
		readOnly:          o.readOnly,
		reconnectInterval: o.reconnectInterval,
		state:             Disconnected,
		indexes:           make(map[string]index.Descriptor),
	}
	q.dispatcher = dispatch.New(o.logger)
	q.dispatcher.Start()
	q.registry = listener.NewRegistry(q.dispatcher)
	q.store = store.New(q.Name(), q.cacheValues)

	if o.initial != nil {
		q.registry.AddFilterListener(f, o.initial.listener, o.initial.lite)
		if !q.cacheValues {
			// A filter subscription marks the registry observed, which forces
			// cached-values mode (see WithCacheValues).
			q.cacheValues = true
			q.store = store.New(q.Name(), true)
		}
	}

	if _, err := remote.AddDeactivationListener(q.onDeactivation); err != nil {
		q.dispatcher.Stop(false)
		return nil, errors.Transport(err, "register deactivation listener")
	}
	if _, err := remote.AddMemberListener(q.onMemberEvent); err != nil {
		q.dispatcher.Stop(false)
		return nil, errors.Transport(err, "register member listener")
	}

	if err := q.sync(ctx); err != nil {
		q.dispatcher.Stop(false)
		return nil, err
	}
	return q, nil
}

// Name returns the CQC's display name: the configured supplier's result, if
// any, else the backing cache's own name.
func (q *CQC) Name() string {
	if q.nameFn != nil {
		return q.nameFn()
	}
	return q.remote.Name()
}

// State reports the current lifecycle state (spec.md §6's inspection
// surface).
func (q *CQC) State() State {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.state
}

// CacheValues reports whether the local store holds values (true) or only
// tracks membership (false).
func (q *CQC) CacheValues() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.cacheValues
}

// ReadOnly reports whether writes through this CQC are currently rejected.
func (q *CQC) ReadOnly() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.readOnly
}

// IsActive reports whether the CQC has not been released or destroyed since
// its last successful synchronization.
func (q *CQC) IsActive() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.active
}

// Ready reports whether synchronization has completed at least once and is
// still current — roughly "state is Synchronized", distinct from IsActive's
// "has not been explicitly released" (spec.md §6, following the original
// isActive()/isReady() split).
func (q *CQC) Ready() bool {
	return q.State() == Synchronized
}

// AddLifecycleListener registers h to be notified of a server-side destroy
// or truncate, independent of whatever per-key MapEvents (if any) that same
// occurrence produces for ordinary listeners (spec.md §6). Returns an index
// token usable with RemoveLifecycleListener.
func (q *CQC) AddLifecycleListener(h LifecycleListener) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.lifecycle = append(q.lifecycle, h)
	return len(q.lifecycle) - 1
}

// RemoveLifecycleListener unregisters the listener returned by
// AddLifecycleListener at token. Safe to call more than once; a token
// already cleared is a no-op.
func (q *CQC) RemoveLifecycleListener(token int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if token < 0 || token >= len(q.lifecycle) {
		return
	}
	q.lifecycle[token] = nil
}

func (q *CQC) notifyLifecycle(reason remotecache.DeactivationReason) {
	q.mu.RLock()
	listeners := make([]LifecycleListener, len(q.lifecycle))
	copy(listeners, q.lifecycle)
	q.mu.RUnlock()
	for _, h := range listeners {
		if h != nil {
			h(reason)
		}
	}
}

func (q *CQC) transitionLocked(to State) {
	if !legalTransition(q.state, to) {
		panic("cqc: illegal state transition " + q.state.String() + " -> " + to.String())
	}
	q.state = to
}

// SetReadOnly sets the read-only latch. Per spec.md §4.10 and testable
// property 5, the latch is one-way: once true, a call with enabled=false
// raises invalid-state instead of clearing it.
func (q *CQC) SetReadOnly(enabled bool) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !enabled && q.readOnly {
		return errors.InvalidState("read_only is a one-way latch and cannot be reset to false")
	}
	q.readOnly = enabled
	return nil
}

// SetCacheValues promotes to cached-values mode, or demotes to key-only
// mode when no standard listener currently observes this CQC. Either
// direction re-runs the synchronization protocol to repopulate the local
// store under the new mode (spec.md §4.10).
func (q *CQC) SetCacheValues(ctx context.Context, enabled bool) error {
	q.mu.Lock()
	if enabled == q.cacheValues {
		q.mu.Unlock()
		return nil
	}
	if !enabled && q.registry.Observed() {
		q.mu.Unlock()
		return errors.InvalidState("cannot demote cache_values while a standard listener is registered")
	}
	q.cacheValues = enabled
	q.mu.Unlock()

	q.store = store.New(q.Name(), enabled)
	q.releaseSubscriptions(ctx)
	q.mu.Lock()
	q.transitionLocked(Disconnected)
	q.mu.Unlock()
	return q.sync(ctx)
}

// CheckEntry evaluates the CQC's filter against (k,v), the validation
// spec.md §4.11 calls for on every user-initiated write.
func (q *CQC) CheckEntry(k, v interface{}) error {
	if !q.cacheFilter.Evaluate(filter.Entry{Key: k, Value: v}) {
		return errors.InvalidArgument("entry %v does not satisfy the view filter", k)
	}
	return nil
}

func (q *CQC) ensureWritable() error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.readOnly {
		return errors.InvalidState("write attempted on a read-only view")
	}
	return nil
}

// ensureSynchronized implements the reconnect-interval stale-read policy
// spec.md §4.9 closes with: a Disconnected CQC either serves a stale local
// read (interval not yet elapsed), triggers a resync (interval elapsed), or
// rejects the operation outright (reconnect disabled).
func (q *CQC) ensureSynchronized(ctx context.Context) error {
	q.mu.RLock()
	state := q.state
	interval := q.reconnectInterval
	last := q.lastSyncAttempt
	q.mu.RUnlock()

	if state != Disconnected {
		return nil
	}
	if interval <= 0 {
		return errors.InvalidState("operation attempted while disconnected and reconnect_interval is disabled")
	}
	if time.Since(last) < interval {
		return nil
	}
	return q.sync(ctx)
}

// Get serves a hit from the local store in cached-values mode; in key-only
// mode it consults the remote cache once membership is confirmed locally
// (spec.md §4.10).
func (q *CQC) Get(ctx context.Context, key interface{}) (interface{}, bool, error) {
	if err := q.ensureSynchronized(ctx); err != nil {
		return nil, false, err
	}
	if q.CacheValues() {
		v, ok := q.store.Get(key)
		return v, ok, nil
	}
	if !q.store.Contains(key) {
		return nil, false, nil
	}
	v, found, err := q.remote.Get(ctx, key)
	if err != nil {
		return nil, false, errors.Transport(err, "get %v", key)
	}
	return v, found, nil
}

func (q *CQC) GetAll(ctx context.Context, keys []interface{}) (map[interface{}]interface{}, error) {
	if err := q.ensureSynchronized(ctx); err != nil {
		return nil, err
	}
	out := make(map[interface{}]interface{})
	if q.CacheValues() {
		for _, k := range keys {
			if v, ok := q.store.Get(k); ok {
				out[k] = v
			}
		}
		return out, nil
	}
	var remoteKeys []interface{}
	for _, k := range keys {
		if q.store.Contains(k) {
			remoteKeys = append(remoteKeys, k)
		}
	}
	if len(remoteKeys) == 0 {
		return out, nil
	}
	got, err := q.remote.GetAll(ctx, remoteKeys)
	if err != nil {
		return nil, errors.Transport(err, "get_all")
	}
	return got, nil
}

func (q *CQC) ContainsKey(ctx context.Context, key interface{}) (bool, error) {
	if err := q.ensureSynchronized(ctx); err != nil {
		return false, err
	}
	return q.store.Contains(key), nil
}

func (q *CQC) Size(ctx context.Context) (int, error) {
	if err := q.ensureSynchronized(ctx); err != nil {
		return 0, err
	}
	return q.store.Size(), nil
}

func (q *CQC) Put(ctx context.Context, key, value interface{}) error {
	if err := q.ensureWritable(); err != nil {
		return err
	}
	if err := q.CheckEntry(key, value); err != nil {
		return err
	}
	if err := q.ensureSynchronized(ctx); err != nil {
		return err
	}
	if err := q.remote.Put(ctx, key, value); err != nil {
		return errors.Transport(err, "put %v", key)
	}
	return nil
}

func (q *CQC) PutWithTTL(ctx context.Context, key, value interface{}, ttl time.Duration) error {
	if err := q.ensureWritable(); err != nil {
		return err
	}
	if err := q.CheckEntry(key, value); err != nil {
		return err
	}
	if err := q.ensureSynchronized(ctx); err != nil {
		return err
	}
	if err := q.remote.PutWithTTL(ctx, key, value, ttl); err != nil {
		return errors.Transport(err, "put_with_ttl %v", key)
	}
	return nil
}

func (q *CQC) PutAll(ctx context.Context, entries map[interface{}]interface{}) error {
	if err := q.ensureWritable(); err != nil {
		return err
	}
	for k, v := range entries {
		if err := q.CheckEntry(k, v); err != nil {
			return err
		}
	}
	if err := q.ensureSynchronized(ctx); err != nil {
		return err
	}
	if err := q.remote.PutAll(ctx, entries); err != nil {
		return errors.Transport(err, "put_all")
	}
	return nil
}

func (q *CQC) Remove(ctx context.Context, key interface{}) error {
	if err := q.ensureWritable(); err != nil {
		return err
	}
	if err := q.ensureSynchronized(ctx); err != nil {
		return err
	}
	if err := q.remote.Remove(ctx, key); err != nil {
		return errors.Transport(err, "remove %v", key)
	}
	return nil
}

func (q *CQC) RemoveIfEqual(ctx context.Context, key, value interface{}) (bool, error) {
	if err := q.ensureWritable(); err != nil {
		return false, err
	}
	if err := q.ensureSynchronized(ctx); err != nil {
		return false, err
	}
	ok, err := q.remote.RemoveIfEqual(ctx, key, value)
	if err != nil {
		return false, errors.Transport(err, "remove_if_equal %v", key)
	}
	return ok, nil
}

func (q *CQC) Replace(ctx context.Context, key, value interface{}) (bool, error) {
	if err := q.ensureWritable(); err != nil {
		return false, err
	}
	if err := q.CheckEntry(key, value); err != nil {
		return false, err
	}
	if err := q.ensureSynchronized(ctx); err != nil {
		return false, err
	}
	ok, err := q.remote.Replace(ctx, key, value)
	if err != nil {
		return false, errors.Transport(err, "replace %v", key)
	}
	return ok, nil
}

func (q *CQC) ReplaceIfEqual(ctx context.Context, key, expected, newValue interface{}) (bool, error) {
	if err := q.ensureWritable(); err != nil {
		return false, err
	}
	if err := q.CheckEntry(key, newValue); err != nil {
		return false, err
	}
	if err := q.ensureSynchronized(ctx); err != nil {
		return false, err
	}
	ok, err := q.remote.ReplaceIfEqual(ctx, key, expected, newValue)
	if err != nil {
		return false, errors.Transport(err, "replace_if_equal %v", key)
	}
	return ok, nil
}

func (q *CQC) Clear(ctx context.Context) error {
	if err := q.ensureWritable(); err != nil {
		return err
	}
	if err := q.ensureSynchronized(ctx); err != nil {
		return err
	}
	if err := q.remote.Clear(ctx); err != nil {
		return errors.Transport(err, "clear")
	}
	return nil
}

// Truncate delegates to the remote cache; the local emptying happens when
// the resulting deactivation notification arrives (spec.md §4.10). A
// server-side truncate always propagates, even through a read-only CQC —
// only the local call through this method is rejected.
func (q *CQC) Truncate(ctx context.Context) error {
	if err := q.ensureWritable(); err != nil {
		return err
	}
	if err := q.ensureSynchronized(ctx); err != nil {
		return err
	}
	if err := q.remote.Truncate(ctx); err != nil {
		return errors.Transport(err, "truncate")
	}
	return nil
}

func (q *CQC) mergeFilter(f filter.Filter) filter.Filter {
	return filter.Merge(q.cacheFilter, f)
}

func (q *CQC) KeySet(ctx context.Context, f filter.Filter) ([]interface{}, error) {
	if err := q.ensureSynchronized(ctx); err != nil {
		return nil, err
	}
	merged := q.mergeFilter(f)
	if q.CacheValues() {
		var out []interface{}
		for k, v := range q.store.Entries() {
			if merged.Evaluate(filter.Entry{Key: k, Value: v}) {
				out = append(out, k)
			}
		}
		return out, nil
	}
	keys, err := q.remote.KeySet(ctx, merged)
	if err != nil {
		return nil, errors.Transport(err, "key_set")
	}
	return keys, nil
}

func (q *CQC) EntrySet(ctx context.Context, f filter.Filter, cmp index.Comparator) (map[interface{}]interface{}, error) {
	if err := q.ensureSynchronized(ctx); err != nil {
		return nil, err
	}
	merged := q.mergeFilter(f)
	if q.CacheValues() {
		out := make(map[interface{}]interface{})
		for k, v := range q.store.Entries() {
			if merged.Evaluate(filter.Entry{Key: k, Value: v}) {
				out[k] = v
			}
		}
		return out, nil
	}
	entries, err := q.remote.EntrySet(ctx, merged, cmp)
	if err != nil {
		return nil, errors.Transport(err, "entry_set")
	}
	return entries, nil
}

func (q *CQC) Invoke(ctx context.Context, key interface{}, proc remotecache.EntryProcessor) (interface{}, error) {
	if err := q.ensureSynchronized(ctx); err != nil {
		return nil, err
	}
	v, err := q.remote.Invoke(ctx, key, proc)
	if err != nil {
		return nil, errors.Transport(err, "invoke %v", key)
	}
	return v, nil
}

func (q *CQC) InvokeAllKeys(ctx context.Context, keys []interface{}, proc remotecache.EntryProcessor) (map[interface{}]interface{}, error) {
	if err := q.ensureSynchronized(ctx); err != nil {
		return nil, err
	}
	out, err := q.remote.InvokeAllKeys(ctx, keys, proc)
	if err != nil {
		return nil, errors.Transport(err, "invoke_all(keys)")
	}
	return out, nil
}

func (q *CQC) InvokeAllFilter(ctx context.Context, f filter.Filter, proc remotecache.EntryProcessor) (map[interface{}]interface{}, error) {
	if err := q.ensureSynchronized(ctx); err != nil {
		return nil, err
	}
	out, err := q.remote.InvokeAllFilter(ctx, q.mergeFilter(f), proc)
	if err != nil {
		return nil, errors.Transport(err, "invoke_all(filter)")
	}
	return out, nil
}

func (q *CQC) AggregateKeys(ctx context.Context, keys []interface{}, agg remotecache.Aggregator) (interface{}, error) {
	if err := q.ensureSynchronized(ctx); err != nil {
		return nil, err
	}
	out, err := q.remote.AggregateKeys(ctx, keys, agg)
	if err != nil {
		return nil, errors.Transport(err, "aggregate(keys)")
	}
	return out, nil
}

func (q *CQC) AggregateFilter(ctx context.Context, f filter.Filter, agg remotecache.Aggregator) (interface{}, error) {
	if err := q.ensureSynchronized(ctx); err != nil {
		return nil, err
	}
	out, err := q.remote.AggregateFilter(ctx, q.mergeFilter(f), agg)
	if err != nil {
		return nil, errors.Transport(err, "aggregate(filter)")
	}
	return out, nil
}

func (q *CQC) Lock(ctx context.Context, key interface{}, wait time.Duration) (bool, error) {
	ok, err := q.remote.Lock(ctx, key, wait)
	if err != nil {
		return false, errors.Transport(err, "lock %v", key)
	}
	return ok, nil
}

func (q *CQC) Unlock(ctx context.Context, key interface{}) error {
	if err := q.remote.Unlock(ctx, key); err != nil {
		return errors.Transport(err, "unlock %v", key)
	}
	return nil
}

// AddIndex applies d to the backing cache, and — in cached-values mode — to
// the local index bookkeeping too (spec.md §4.10).
func (q *CQC) AddIndex(ctx context.Context, d index.Descriptor) error {
	if err := q.remote.AddIndex(ctx, d); err != nil {
		return errors.Transport(err, "add_index %s", d.Name)
	}
	if q.CacheValues() {
		q.mu.Lock()
		q.indexes[d.Name] = d
		q.mu.Unlock()
	}
	return nil
}

// RemoveIndex undoes a local index, if one was tracked, then removes it on
// the backing cache. In key-only mode nothing local was ever tracked, so
// there is nothing to undo — the removal just reaches the remote cache.
func (q *CQC) RemoveIndex(ctx context.Context, name string) error {
	if q.CacheValues() {
		q.mu.Lock()
		delete(q.indexes, name)
		q.mu.Unlock()
	}
	if err := q.remote.RemoveIndex(ctx, name); err != nil {
		return errors.Transport(err, "remove_index %s", name)
	}
	return nil
}

// AddFilterListener registers l locally against f (a nil f matches every
// event). Any filter listener, lite or not, forces cache_values on if it was
// off, triggering a resync.
func (q *CQC) AddFilterListener(ctx context.Context, f filter.Filter, l listener.MapListener, lite bool) *listener.Subscription {
	sub := q.registry.AddFilterListener(f, l, lite)
	q.promoteIfObserved(ctx)
	return sub
}

// AddKeyListener registers l locally against key. A non-lite key listener
// forces cache_values on if it was off, triggering a resync; a lite one does
// not.
func (q *CQC) AddKeyListener(ctx context.Context, key interface{}, l listener.MapListener, lite bool) *listener.Subscription {
	sub := q.registry.AddKeyListener(key, l, lite)
	q.promoteIfObserved(ctx)
	return sub
}

// RemoveListener unregisters sub.
func (q *CQC) RemoveListener(sub *listener.Subscription) {
	q.registry.Remove(sub)
}

// RemoveListenerByValue unregisters every subscription currently holding l.
func (q *CQC) RemoveListenerByValue(l listener.MapListener) {
	q.registry.RemoveListener(l)
}

func (q *CQC) promoteIfObserved(ctx context.Context) {
	if q.CacheValues() {
		return
	}
	if !q.registry.Observed() {
		return
	}
	if err := q.SetCacheValues(ctx, true); err != nil {
		q.logger.Warnw("failed to promote cache_values after observed listener registration", "error", err)
	}
}

// Release unregisters this CQC's server-side subscriptions, stops its
// dispatcher, and marks it inactive (spec.md §5). A subsequent operation
// that calls ensureSynchronized re-enters the sync protocol if the
// reconnect policy allows it.
func (q *CQC) Release(ctx context.Context) error {
	return q.teardown(ctx)
}

// Destroy releases this CQC the same way Release does, and additionally
// destroys the backing cache.
func (q *CQC) Destroy(ctx context.Context) error {
	if err := q.teardown(ctx); err != nil {
		return err
	}
	if err := q.remote.Destroy(ctx); err != nil {
		return errors.Transport(err, "destroy")
	}
	return nil
}

func (q *CQC) teardown(ctx context.Context) error {
	q.releaseSubscriptions(ctx)
	q.dispatcher.Stop(false)
	q.mu.Lock()
	q.active = false
	if q.state != Disconnected {
		q.transitionLocked(Disconnected)
	}
	q.mu.Unlock()
	return nil
}

func (q *CQC) releaseSubscriptions(ctx context.Context) {
	q.mu.Lock()
	addSub, removeSub := q.addSub, q.removeSub
	q.addSub, q.removeSub = nil, nil
	q.mu.Unlock()

	if addSub != nil {
		if err := q.remote.RemoveListener(ctx, addSub); err != nil {
			q.logger.Warnw("failed to release add listener", "error", err)
		}
	}
	if removeSub != nil {
		if err := q.remote.RemoveListener(ctx, removeSub); err != nil {
			q.logger.Warnw("failed to release remove listener", "error", err)
		}
	}
}
