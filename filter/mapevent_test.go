package filter

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/teranos/gridcache/event"
)

func gt300() Filter {
	return Func(func(e Entry) bool {
		v, _ := e.Value.(int)
		return v > 300
	})
}

func TestAddedFilterInsertIntoView(t *testing.T) {
	af := NewAddedFilter(gt300())

	// key6: 320, entering the view from nothing — Inserted.
	assert.True(t, af.Evaluate(event.NewInserted("cache", "key6", 320)))
	// key3: 3, never in view — no event of interest.
	assert.False(t, af.Evaluate(event.NewInserted("cache", "key3", 3)))
}

func TestAddedFilterUpdateWithinView(t *testing.T) {
	af := NewAddedFilter(gt300())
	assert.True(t, af.Evaluate(event.NewUpdated("cache", "key6", 320, 400)))
}

func TestAddedFilterIgnoresCrossingOut(t *testing.T) {
	af := NewAddedFilter(gt300())
	assert.False(t, af.Evaluate(event.NewUpdated("cache", "key1", 435, 100)))
}

func TestRemovedFilterCrossingOut(t *testing.T) {
	rf := NewRemovedFilter(gt300())
	assert.True(t, rf.Evaluate(event.NewUpdated("cache", "key1", 435, 100)))
	assert.False(t, rf.Evaluate(event.NewUpdated("cache", "key6", 100, 320)))
}

func TestRemovedFilterDelete(t *testing.T) {
	rf := NewRemovedFilter(gt300())
	assert.True(t, rf.Evaluate(event.NewDeleted("cache", "key1", 435)))
	assert.False(t, rf.Evaluate(event.NewDeleted("cache", "key3", 3)))
}

func TestAddAndRemoveFiltersAreDisjointOnCrossing(t *testing.T) {
	af := NewAddedFilter(gt300())
	rf := NewRemovedFilter(gt300())
	crossingOut := event.NewUpdated("cache", "key1", 435, 100)

	// spec.md §4.8: exactly one of the two streams must fire for a crossing.
	assert.NotEqual(t, af.Evaluate(crossingOut), rf.Evaluate(crossingOut))
}
