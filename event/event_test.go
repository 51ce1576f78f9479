package event

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFactories(t *testing.T) {
	ins := NewInserted("cache0", "k1", "v1")
	assert.Equal(t, Inserted, ins.Kind)
	assert.Nil(t, ins.Old)
	assert.Equal(t, "v1", ins.New)

	upd := NewUpdated("cache0", "k1", "v1", "v2")
	assert.Equal(t, Updated, upd.Kind)
	assert.Equal(t, "v1", upd.Old)
	assert.Equal(t, "v2", upd.New)

	del := NewDeleted("cache0", "k1", "v2")
	assert.Equal(t, Deleted, del.Kind)
	assert.Equal(t, "v2", del.Old)
	assert.Nil(t, del.New)
}

func TestEqual(t *testing.T) {
	a := NewUpdated("cache0", "k1", "v1", "v2")
	b := NewUpdated("cache0", "k1", "v1", "v2")
	c := NewUpdated("cache1", "k1", "v1", "v2")

	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(c))
}

func TestAsLite(t *testing.T) {
	full := NewUpdated("cache0", "k1", "v1", "v2")
	lite := full.AsLite()

	require.True(t, lite.Lite)
	assert.Nil(t, lite.Old)
	assert.Nil(t, lite.New)
	assert.Equal(t, full.Kind, lite.Kind)
	assert.Equal(t, full.Key, lite.Key)
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "Inserted", Inserted.String())
	assert.Equal(t, "Updated", Updated.String())
	assert.Equal(t, "Deleted", Deleted.String())
}
