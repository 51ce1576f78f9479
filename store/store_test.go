package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/gridcache/errors"
	"github.com/teranos/gridcache/event"
	"github.com/teranos/gridcache/listener"
)

func newTestRegistry() (*listener.Registry, *captureListener) {
	reg := listener.NewRegistry(listener.SyncDispatcher{})
	cap := &captureListener{}
	reg.AddFilterListener(nil, cap, false)
	return reg, cap
}

type captureListener struct {
	events []event.MapEvent
}

func (c *captureListener) Inserted(e event.MapEvent) { c.events = append(c.events, e) }
func (c *captureListener) Updated(e event.MapEvent)  { c.events = append(c.events, e) }
func (c *captureListener) Deleted(e event.MapEvent)  { c.events = append(c.events, e) }

func TestCachedValuesMode(t *testing.T) {
	s := New("view0", true)
	s.Put("k1", "v1")

	v, ok := s.Get("k1")
	require.True(t, ok)
	assert.Equal(t, "v1", v)
	assert.Equal(t, 1, s.Size())
}

func TestKeyOnlyModeGetIsAlwaysMiss(t *testing.T) {
	s := New("view0", false)
	s.Put("k1", "v1")

	assert.True(t, s.Contains("k1"))
	_, ok := s.Get("k1")
	assert.False(t, ok)
}

func TestPutEmitsInsertedThenUpdated(t *testing.T) {
	reg, cap := newTestRegistry()
	s := New("view0", true)
	s.Subscribe(reg)

	s.Put("k1", "v1")
	s.Put("k1", "v2")

	require.Len(t, cap.events, 2)
	assert.Equal(t, event.Inserted, cap.events[0].Kind)
	assert.Equal(t, event.Updated, cap.events[1].Kind)
	assert.Equal(t, "v1", cap.events[1].Old)
	assert.Equal(t, "v2", cap.events[1].New)
}

func TestRemoveEmitsDeletedOnlyWhenPresent(t *testing.T) {
	reg, cap := newTestRegistry()
	s := New("view0", true)
	s.Subscribe(reg)

	s.Remove("missing")
	assert.Empty(t, cap.events)

	s.Put("k1", "v1")
	s.Remove("k1")
	require.Len(t, cap.events, 2)
	assert.Equal(t, event.Deleted, cap.events[1].Kind)
}

func TestClearEmitsPerKeyDeletes(t *testing.T) {
	reg, cap := newTestRegistry()
	s := New("view0", true)
	s.Subscribe(reg)
	s.Put("k1", "v1")
	s.Put("k2", "v2")
	cap.events = nil

	s.Clear()
	assert.Equal(t, 0, s.Size())
	assert.Len(t, cap.events, 2)
	for _, e := range cap.events {
		assert.Equal(t, event.Deleted, e.Kind)
	}
}

func TestTruncateEmitsNothing(t *testing.T) {
	reg, cap := newTestRegistry()
	s := New("view0", true)
	s.Subscribe(reg)
	s.Put("k1", "v1")
	cap.events = nil

	s.Truncate()
	assert.Equal(t, 0, s.Size())
	assert.Empty(t, cap.events)
}

func TestUnsubscribeStopsEmission(t *testing.T) {
	reg, cap := newTestRegistry()
	s := New("view0", true)
	s.Subscribe(reg)
	s.Unsubscribe()

	s.Put("k1", "v1")
	assert.Empty(t, cap.events)
}

func TestCursorRemoveAppliesToLiveStore(t *testing.T) {
	s := New("view0", true)
	s.Put("k1", "v1")
	s.Put("k2", "v2")

	c := s.Cursor()
	for c.Next() {
		if c.Key() == "k1" {
			c.Remove()
		}
	}

	assert.False(t, s.Contains("k1"))
	assert.True(t, s.Contains("k2"))
}

func TestForEachDetectsConcurrentModification(t *testing.T) {
	s := New("view0", true)
	s.Put("k1", "v1")
	s.Put("k2", "v2")

	err := s.ForEach(func(key, value interface{}) bool {
		s.Put("k3", "v3") // mutate mid-walk
		return true
	})

	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindConcurrentModification))
}

func TestForEachSucceedsWithoutMutation(t *testing.T) {
	s := New("view0", true)
	s.Put("k1", "v1")
	s.Put("k2", "v2")

	seen := map[interface{}]interface{}{}
	err := s.ForEach(func(key, value interface{}) bool {
		seen[key] = value
		return true
	})

	require.NoError(t, err)
	assert.Equal(t, "v1", seen["k1"])
	assert.Equal(t, "v2", seen["k2"])
}
