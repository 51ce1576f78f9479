package cqc

import (
	"context"
	"time"

	"github.com/teranos/gridcache/dispatch"
	"github.com/teranos/gridcache/errors"
	"github.com/teranos/gridcache/event"
	"github.com/teranos/gridcache/filter"
	"github.com/teranos/gridcache/listener"
	"github.com/teranos/gridcache/remotecache"
)

// sync runs the synchronization protocol (spec.md §4.9), serialized against
// any other concurrent sync attempt on this CQC.
func (q *CQC) sync(ctx context.Context) error {
	q.syncMu.Lock()
	defer q.syncMu.Unlock()
	return q.syncLocked(ctx)
}

func (q *CQC) syncLocked(ctx context.Context) error {
	q.mu.Lock()
	if q.state != Disconnected && q.state != Synchronized {
		st := q.state
		q.mu.Unlock()
		return errors.InvalidState("sync requires state Disconnected or Synchronized, got %s", st)
	}
	if !q.active && !q.lastSyncAttempt.IsZero() {
		// Reconnecting after an explicit release/destroy: the dispatcher was
		// stopped for good, so a fresh one is needed before events can flow
		// again. User subscriptions registered before the release do not
		// survive it.
		q.dispatcher = dispatch.New(q.logger)
		q.dispatcher.Start()
		q.registry = listener.NewRegistry(q.dispatcher)
	}
	q.transitionLocked(Configuring)
	q.syncLog = make(map[interface{}]struct{})
	q.mu.Unlock()

	q.store.Subscribe(q.registry)

	removeSub, err := q.remote.AddFilterListener(ctx, filter.NewRemovedFilter(q.cacheFilter), true, q.onRemoveEvent)
	if err != nil {
		return q.abortSync(errors.Transport(err, "attach remove listener"))
	}
	q.mu.Lock()
	q.removeSub = removeSub
	q.mu.Unlock()

	lite := !q.CacheValues() && q.transformer == nil
	addSub, err := q.remote.AddFilterListener(ctx, filter.NewAddedFilter(q.cacheFilter), lite, q.onAddEvent)
	if err != nil {
		return q.abortSync(errors.Transport(err, "attach add listener"))
	}
	q.mu.Lock()
	q.addSub = addSub
	q.mu.Unlock()

	if err := q.fetchInitial(ctx); err != nil {
		return q.abortSync(err)
	}

	q.mu.Lock()
	q.transitionLocked(Configured)
	q.mu.Unlock()

	if err := q.reconcile(ctx); err != nil {
		return q.abortSync(err)
	}

	q.mu.Lock()
	q.transitionLocked(Synchronized)
	q.lastSyncAttempt = time.Now()
	q.active = true
	q.mu.Unlock()
	return nil
}

// fetchInitial performs step 6 of the synchronization protocol: one
// round-trip to populate the local store, shaped by cache mode and whether a
// transformer is configured.
func (q *CQC) fetchInitial(ctx context.Context) error {
	switch {
	case !q.CacheValues():
		keys, err := q.remote.KeySet(ctx, q.cacheFilter)
		if err != nil {
			return errors.Transport(err, "initial key_set")
		}
		for _, k := range keys {
			q.store.Put(k, nil)
		}
	case q.transformer != nil:
		agg := &transformAggregator{extractor: q.transformer, filter: q.cacheFilter}
		result, err := q.remote.AggregateFilter(ctx, q.cacheFilter, agg)
		if err != nil {
			return errors.Transport(err, "initial aggregate")
		}
		entries, _ := result.(map[interface{}]interface{})
		for k, v := range entries {
			q.store.Put(k, v)
		}
	default:
		entries, err := q.remote.EntrySet(ctx, q.cacheFilter, nil)
		if err != nil {
			return errors.Transport(err, "initial entry_set")
		}
		for k, v := range entries {
			q.store.Put(k, v)
		}
	}
	return nil
}

// reconcile performs step 8: for each key logged while Configuring or
// Configured, fetch the authoritative value and reconcile it into the local
// store, emitting an event only when the authoritative state disagrees with
// what's already there (testable property 1 in spec.md §8).
//
// An add/remove event can still land in the sync log while this function is
// draining it (state stays Configured until it returns), so it loops until a
// drain pass adds nothing new rather than risking keys stuck in a log that
// never gets read again once the caller moves to Synchronized.
func (q *CQC) reconcile(ctx context.Context) error {
	for {
		q.mu.Lock()
		if len(q.syncLog) == 0 {
			q.mu.Unlock()
			return nil
		}
		keys := make([]interface{}, 0, len(q.syncLog))
		for k := range q.syncLog {
			keys = append(keys, k)
		}
		q.syncLog = make(map[interface{}]struct{})
		q.mu.Unlock()

		for _, k := range keys {
			if err := q.reconcileKey(ctx, k); err != nil {
				return err
			}
		}
	}
}

func (q *CQC) reconcileKey(ctx context.Context, k interface{}) error {
	v, found, err := q.remote.Get(ctx, k)
	if err != nil {
		return errors.Transport(err, "reconcile key %v", k)
	}
	inView := found && q.cacheFilter.Evaluate(filter.Entry{Key: k, Value: v})

	switch {
	case inView && q.CacheValues():
		if cur, ok := q.store.Get(k); !ok || cur != v {
			q.store.Put(k, v)
		}
	case inView && !q.CacheValues():
		if !q.store.Contains(k) {
			q.store.Put(k, v)
		}
	default:
		if q.store.Contains(k) {
			q.store.Remove(k)
		}
	}
	return nil
}

// abortSync implements step 10: on any sync failure, release whatever
// server listeners were partially attached and transition to Disconnected,
// then propagate the failure.
func (q *CQC) abortSync(cause error) error {
	q.mu.Lock()
	addSub, removeSub := q.addSub, q.removeSub
	q.addSub, q.removeSub = nil, nil
	q.transitionLocked(Disconnected)
	q.mu.Unlock()

	ctx := context.Background()
	if addSub != nil {
		if err := q.remote.RemoveListener(ctx, addSub); err != nil {
			q.logger.Warnw("failed to release add listener during sync abort", "error", err)
		}
	}
	if removeSub != nil {
		if err := q.remote.RemoveListener(ctx, removeSub); err != nil {
			q.logger.Warnw("failed to release remove listener during sync abort", "error", err)
		}
	}
	return cause
}

// onAddEvent is the add-stream handler (spec.md §4.8): during Configuring or
// Configured it defers to the sync log; once Synchronized it applies
// directly.
func (q *CQC) onAddEvent(ev event.MapEvent) {
	q.mu.Lock()
	if q.state == Configuring || q.state == Configured {
		q.syncLog[ev.Key] = struct{}{}
		q.mu.Unlock()
		return
	}
	q.mu.Unlock()
	q.store.Put(ev.Key, ev.New)
}

// onRemoveEvent is the remove-stream handler (spec.md §4.8).
func (q *CQC) onRemoveEvent(ev event.MapEvent) {
	q.mu.Lock()
	if q.state == Configuring || q.state == Configured {
		q.syncLog[ev.Key] = struct{}{}
		q.mu.Unlock()
		return
	}
	q.mu.Unlock()
	q.store.Remove(ev.Key)
}

// onDeactivation reacts to a server-side destroy or truncate. Destroy
// transitions the CQC to Disconnected and empties the store with a
// synthetic Deleted per prior key. Truncate leaves the state at Synchronized
// and empties the store silently — spec.md §8's S6 scenario is explicit that
// a server-side truncate neither drops the CQC's connection nor generates
// per-key Deleted events, which takes precedence over §6's general summary.
func (q *CQC) onDeactivation(reason remotecache.DeactivationReason) {
	defer q.notifyLifecycle(reason)
	if reason == remotecache.Destroyed {
		q.mu.Lock()
		if q.state != Disconnected {
			q.transitionLocked(Disconnected)
		}
		q.mu.Unlock()
		q.store.Clear()
		return
	}
	q.store.Truncate()
}

// onMemberEvent reacts to a member-left style signal by transitioning to
// Disconnected (spec.md §4.9's sync triggers).
func (q *CQC) onMemberEvent(left bool) {
	if !left {
		return
	}
	q.mu.Lock()
	if q.state != Disconnected {
		q.transitionLocked(Disconnected)
	}
	q.mu.Unlock()
}

// transformAggregator implements remotecache.Aggregator for the
// cached-values-with-transformer initial population path (spec.md §4.9 step
// 6's "aggregate with identity-with-transform").
type transformAggregator struct {
	extractor filter.ValueExtractor
	filter    filter.Filter
}

func (a *transformAggregator) Aggregate(entries []filter.Entry) (interface{}, error) {
	out := make(map[interface{}]interface{}, len(entries))
	for _, e := range entries {
		if a.filter != nil && !a.filter.Evaluate(e) {
			continue
		}
		v, err := a.extractor.Extract(e.Value)
		if err != nil {
			return nil, err
		}
		out[e.Key] = v
	}
	return out, nil
}
