package fakecache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/gridcache/event"
	"github.com/teranos/gridcache/filter"
	"github.com/teranos/gridcache/remotecache"
)

func TestPutGetRemove(t *testing.T) {
	ctx := context.Background()
	c := New("people")
	require.NoError(t, c.Put(ctx, "k1", "v1"))

	v, ok, err := c.Get(ctx, "k1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "v1", v)

	require.NoError(t, c.Remove(ctx, "k1"))
	_, ok, err = c.Get(ctx, "k1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func waitForEvent(t *testing.T, ch <-chan event.MapEvent) event.MapEvent {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return event.MapEvent{}
	}
}

func TestFilterListenerFires(t *testing.T) {
	ctx := context.Background()
	c := New("people")
	c.Synchronous = true

	ch := make(chan event.MapEvent, 8)
	f := filter.Func(func(e filter.Entry) bool {
		age, _ := e.Value.(int)
		return age >= 18
	})
	_, err := c.AddFilterListener(ctx, filterAll(f), false, func(ev event.MapEvent) { ch <- ev })
	require.NoError(t, err)

	require.NoError(t, c.Put(ctx, "alice", 30))
	ev := waitForEvent(t, ch)
	assert.Equal(t, event.Inserted, ev.Kind)
	assert.Equal(t, 30, ev.New)
}

func filterAll(f filter.Filter) *filter.MapEventFilter {
	return filter.NewMapEventFilter(filter.MaskAll|filter.MaskUpdatedEntered|filter.MaskUpdatedLeft|filter.MaskUpdatedWithin, f)
}

func TestKeyListenerIgnoresOtherKeys(t *testing.T) {
	ctx := context.Background()
	c := New("people")
	c.Synchronous = true

	ch := make(chan event.MapEvent, 8)
	_, err := c.AddKeyListener(ctx, "bob", false, func(ev event.MapEvent) { ch <- ev })
	require.NoError(t, err)

	require.NoError(t, c.Put(ctx, "alice", 1))
	require.NoError(t, c.Put(ctx, "bob", 2))

	ev := waitForEvent(t, ch)
	assert.Equal(t, "bob", ev.Key)
	select {
	case extra := <-ch:
		t.Fatalf("unexpected second event: %v", extra)
	default:
	}
}

func TestTruncateFiresDeactivationListener(t *testing.T) {
	ctx := context.Background()
	c := New("people")
	c.Synchronous = true
	require.NoError(t, c.Put(ctx, "k1", "v1"))

	reasons := make(chan remotecache.DeactivationReason, 1)
	_, err := c.AddDeactivationListener(func(reason remotecache.DeactivationReason) { reasons <- reason })
	require.NoError(t, err)

	require.NoError(t, c.Truncate(ctx))
	size, _ := c.Size(ctx)
	assert.Equal(t, 0, size)

	select {
	case reason := <-reasons:
		assert.Equal(t, remotecache.Truncated, reason)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for deactivation notification")
	}
}

func TestKeySetAndEntrySetRespectFilter(t *testing.T) {
	ctx := context.Background()
	c := New("people")
	require.NoError(t, c.Put(ctx, "alice", 30))
	require.NoError(t, c.Put(ctx, "bob", 10))

	f := filter.Func(func(e filter.Entry) bool {
		age, _ := e.Value.(int)
		return age >= 18
	})
	keys, err := c.KeySet(ctx, f)
	require.NoError(t, err)
	assert.Equal(t, []interface{}{"alice"}, keys)

	entries, err := c.EntrySet(ctx, f, nil)
	require.NoError(t, err)
	assert.Equal(t, map[interface{}]interface{}{"alice": 30}, entries)
}

func TestMemberLeftNotification(t *testing.T) {
	c := New("people")
	c.Synchronous = true

	ch := make(chan bool, 1)
	_, err := c.AddMemberListener(func(left bool) { ch <- left })
	require.NoError(t, err)

	c.SimulateMemberLeft()
	select {
	case left := <-ch:
		assert.True(t, left)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for member-left notification")
	}
}
