package gridrpc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/teranos/gridcache/filter"
)

func TestJSONCodecRoundTrip(t *testing.T) {
	c := jsonCodec{}
	assert.Equal(t, CodecName, c.Name())

	in := &putRequest{Key: "k1", Value: 42, TTL: 0}
	data, err := c.Marshal(in)
	require.NoError(t, err)

	var out putRequest
	require.NoError(t, c.Unmarshal(data, &out))
	assert.Equal(t, "k1", out.Key)
	assert.InDelta(t, 42, out.Value, 0)
}

func TestJSONCodecRoundTripEventMessage(t *testing.T) {
	c := jsonCodec{}
	in := &eventMessage{Kind: "updated", Key: "k", Old: 1.0, New: 2.0, Source: "nums", Seq: 7}
	data, err := c.Marshal(in)
	require.NoError(t, err)

	var out eventMessage
	require.NoError(t, c.Unmarshal(data, &out))
	assert.Equal(t, in.Kind, out.Kind)
	assert.Equal(t, in.Key, out.Key)
	assert.Equal(t, in.Seq, out.Seq)
}

func TestWireExprOfRejectsOpaqueFilter(t *testing.T) {
	_, err := wireExprOf(opaqueFilter{})
	require.Error(t, err)
}

func TestWireExprOfAcceptsSerializable(t *testing.T) {
	expr, err := wireExprOf(serializableFilter{expr: "value > 300"})
	require.NoError(t, err)
	assert.Equal(t, "value > 300", expr)
}

func TestWireExprOfNilFilterIsEmpty(t *testing.T) {
	expr, err := wireExprOf(nil)
	require.NoError(t, err)
	assert.Empty(t, expr)
}

func TestWithRateLimitConfiguresLimiter(t *testing.T) {
	c := &Client{subs: make(map[uint64]func())}
	WithRateLimit(rate.Limit(5), 1)(c)
	require.NotNil(t, c.limiter)
	assert.Equal(t, rate.Limit(5), c.limiter.Limit())
	assert.Equal(t, 1, c.limiter.Burst())
}

func TestClientWithoutRateLimitHasNilLimiter(t *testing.T) {
	c := &Client{subs: make(map[uint64]func())}
	assert.Nil(t, c.limiter)
}

type opaqueFilter struct{}

func (opaqueFilter) Evaluate(filter.Entry) bool { return true }

type serializableFilter struct{ expr string }

func (serializableFilter) Evaluate(filter.Entry) bool { return true }
func (f serializableFilter) WireExpr() string         { return f.expr }
