package view_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/gridcache/cqc"
	"github.com/teranos/gridcache/event"
	"github.com/teranos/gridcache/filter"
	"github.com/teranos/gridcache/internal/fakecache"
	"github.com/teranos/gridcache/listener"
	"github.com/teranos/gridcache/view"
)

func TestBuilderDefaultsToKeyOnlyAndAlwaysFilter(t *testing.T) {
	ctx := context.Background()
	remote := fakecache.New("nums")
	remote.Synchronous = true
	require.NoError(t, remote.Put(ctx, "a", 1))

	q, err := view.New(remote).Build(ctx)
	require.NoError(t, err)

	assert.False(t, q.CacheValues())
	assert.Equal(t, cqc.Synchronized, q.State())
}

func TestBuilderValuesSelectsCachedValuesMode(t *testing.T) {
	ctx := context.Background()
	remote := fakecache.New("nums")
	remote.Synchronous = true
	require.NoError(t, remote.Put(ctx, "a", 1))

	q, err := view.New(remote).Values().Build(ctx)
	require.NoError(t, err)

	assert.True(t, q.CacheValues())
	v, ok, err := q.Get(ctx, "a")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 1, v)
}

func TestBuilderKeysAfterValuesLastCallWins(t *testing.T) {
	ctx := context.Background()
	remote := fakecache.New("nums")
	remote.Synchronous = true

	q, err := view.New(remote).Values().Keys().Build(ctx)
	require.NoError(t, err)
	assert.False(t, q.CacheValues())
}

func TestBuilderMapForcesReadOnlyAndCachedValues(t *testing.T) {
	ctx := context.Background()
	remote := fakecache.New("nums")
	remote.Synchronous = true
	require.NoError(t, remote.Put(ctx, "a", 10))

	double := filter.ExtractorFunc(func(v interface{}) (interface{}, error) {
		return v.(int) * 2, nil
	})

	q, err := view.New(remote).Map(double).Build(ctx)
	require.NoError(t, err)

	v, ok, err := q.Get(ctx, "a")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 20, v)

	err = q.Put(ctx, "a", 99)
	require.Error(t, err)
}

func TestBuilderListenerReceivesInitialPopulation(t *testing.T) {
	ctx := context.Background()
	remote := fakecache.New("nums")
	remote.Synchronous = true
	require.NoError(t, remote.Put(ctx, "a", 1))
	require.NoError(t, remote.Put(ctx, "b", 2))

	// Listener callbacks run on the CQC's dispatcher goroutine.
	var mu sync.Mutex
	var inserted []event.MapEvent
	l := &listener.Func{OnInserted: func(e event.MapEvent) {
		mu.Lock()
		defer mu.Unlock()
		inserted = append(inserted, e)
	}}
	count := func() int {
		mu.Lock()
		defer mu.Unlock()
		return len(inserted)
	}

	_, err := view.New(remote).Values().Listener(l).Build(ctx)
	require.NoError(t, err)

	require.Eventually(t, func() bool { return count() >= 2 }, 2*time.Second, time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	assert.Len(t, inserted, 2)
}

func TestBuilderReadOnlyLatchesFromConstruction(t *testing.T) {
	ctx := context.Background()
	remote := fakecache.New("nums")
	remote.Synchronous = true

	q, err := view.New(remote).Values().ReadOnly().Build(ctx)
	require.NoError(t, err)
	assert.True(t, q.ReadOnly())

	err = q.Put(ctx, "a", 1)
	require.Error(t, err)
}

func TestBuilderCacheNameOverridesDisplayName(t *testing.T) {
	ctx := context.Background()
	remote := fakecache.New("nums")
	remote.Synchronous = true

	q, err := view.New(remote).CacheName(func() string { return "custom" }).Build(ctx)
	require.NoError(t, err)
	assert.Equal(t, "custom", q.Name())
}
