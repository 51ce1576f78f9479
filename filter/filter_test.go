package filter

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func greaterThan(n int) Filter {
	return Func(func(e Entry) bool {
		v, ok := e.Value.(int)
		return ok && v > n
	})
}

func TestAlways(t *testing.T) {
	assert.True(t, Always.Evaluate(Entry{Key: "k", Value: 1}))
	assert.True(t, Always.Evaluate(Entry{Key: "k", Value: nil}))
}

func TestAnd(t *testing.T) {
	f := And(greaterThan(10), greaterThan(20))
	assert.False(t, f.Evaluate(Entry{Value: 15}))
	assert.True(t, f.Evaluate(Entry{Value: 25}))
}

func TestAndSingle(t *testing.T) {
	f := greaterThan(10)
	combined := And(f)
	assert.Equal(t, f.Evaluate(Entry{Value: 15}), combined.Evaluate(Entry{Value: 15}))
}

func TestMerge(t *testing.T) {
	view := greaterThan(300)
	unmerged := Merge(view, nil)
	assert.Equal(t, view.Evaluate(Entry{Value: 400}), unmerged.Evaluate(Entry{Value: 400}))

	merged := Merge(view, greaterThan(390))
	assert.False(t, merged.Evaluate(Entry{Value: 350}))
	assert.True(t, merged.Evaluate(Entry{Value: 400}))
}
