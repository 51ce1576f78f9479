package gridrpc

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/teranos/gridcache/errors"
	"github.com/teranos/gridcache/event"
	"github.com/teranos/gridcache/filter"
	"github.com/teranos/gridcache/index"
	"github.com/teranos/gridcache/remotecache"
)

const serviceName = "gridrpc.Cache"

func fullMethod(name string) string { return fmt.Sprintf("/%s/%s", serviceName, name) }

// Serializable is the optional interface a filter.Filter implements to cross
// the wire as a server-evaluated query, since an arbitrary Go closure cannot
// be serialized. A filter that doesn't implement it can still be used
// locally (store queries, check_entry) but not handed to KeySet/EntrySet/
// InvokeAllFilter/AggregateFilter through this adapter.
type Serializable interface {
	filter.Filter
	WireExpr() string
}

func wireExprOf(f filter.Filter) (string, error) {
	if f == nil {
		return "", nil
	}
	s, ok := f.(Serializable)
	if !ok {
		return "", errors.Unsupported("gridrpc: filter %T does not implement Serializable", f)
	}
	return s.WireExpr(), nil
}

// Client implements remotecache.Cache over a gRPC channel using the JSON
// codec registered in codec.go, in place of generated protobuf stubs.
type Client struct {
	name    string
	conn    *grpc.ClientConn
	limiter *rate.Limiter // nil means unlimited

	mu   sync.Mutex
	subs map[uint64]func()
	next uint64
}

// DialOption configures a Client at Dial time.
type DialOption func(*Client)

// WithRateLimit bounds unary RPCs issued through this Client to r requests
// per second, with burst b — protecting a remote grid node from a CQC
// resync storm (a sudden reconnect fan-out re-issuing KeySet/EntrySet calls
// across many views at once) the way a well-behaved grid client should.
// Subscriptions (AddFilterListener, AddKeyListener, AddMemberListener,
// AddDeactivationListener) are exempt — a stream open is a one-time cost,
// not a repeated call worth throttling.
func WithRateLimit(r rate.Limit, b int) DialOption {
	return func(c *Client) { c.limiter = rate.NewLimiter(r, b) }
}

// Dial connects to target (e.g. "grid.internal:9080") and returns a Client
// for the named cache. Callers own the returned Client's lifetime; Close
// releases the underlying channel.
func Dial(ctx context.Context, target, cacheName string, opts ...DialOption) (*Client, error) {
	conn, err := grpc.NewClient(target, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, errors.Transport(err, "dial %s", target)
	}
	c := &Client{name: cacheName, conn: conn, subs: make(map[uint64]func())}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Close tears down the gRPC channel.
func (c *Client) Close() error {
	return c.conn.Close()
}

func (c *Client) invoke(ctx context.Context, method string, req, resp interface{}) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return errors.Transport(err, "rate limit wait for %s", method)
		}
	}
	return c.conn.Invoke(ctx, fullMethod(method), req, resp, grpc.CallContentSubtype(CodecName))
}

func (c *Client) Name() string { return c.name }

func (c *Client) Get(ctx context.Context, key interface{}) (interface{}, bool, error) {
	var resp getResponse
	if err := c.invoke(ctx, "Get", &getRequest{Key: key}, &resp); err != nil {
		return nil, false, errors.Transport(err, "get %v", key)
	}
	return resp.Value, resp.Found, nil
}

func (c *Client) GetAll(ctx context.Context, keys []interface{}) (map[interface{}]interface{}, error) {
	var resp entriesResponse
	if err := c.invoke(ctx, "GetAll", &getAllRequest{Keys: keys}, &resp); err != nil {
		return nil, errors.Transport(err, "get_all")
	}
	return widen(resp.Entries), nil
}

func (c *Client) ContainsKey(ctx context.Context, key interface{}) (bool, error) {
	var resp boolResponse
	if err := c.invoke(ctx, "ContainsKey", &containsKeyRequest{Key: key}, &resp); err != nil {
		return false, errors.Transport(err, "contains_key %v", key)
	}
	return resp.Value, nil
}

func (c *Client) Size(ctx context.Context) (int, error) {
	var resp sizeResponse
	if err := c.invoke(ctx, "Size", &emptyRequest{}, &resp); err != nil {
		return 0, errors.Transport(err, "size")
	}
	return resp.Size, nil
}

func (c *Client) Put(ctx context.Context, key, value interface{}) error {
	return c.invoke(ctx, "Put", &putRequest{Key: key, Value: value}, &emptyRequest{})
}

func (c *Client) PutWithTTL(ctx context.Context, key, value interface{}, ttl time.Duration) error {
	return c.invoke(ctx, "Put", &putRequest{Key: key, Value: value, TTL: ttl}, &emptyRequest{})
}

func (c *Client) PutAll(ctx context.Context, entries map[interface{}]interface{}) error {
	return c.invoke(ctx, "PutAll", &putAllRequest{Entries: narrow(entries)}, &emptyRequest{})
}

func (c *Client) Remove(ctx context.Context, key interface{}) error {
	return c.invoke(ctx, "Remove", &removeRequest{Key: key}, &emptyRequest{})
}

func (c *Client) RemoveIfEqual(ctx context.Context, key, value interface{}) (bool, error) {
	var resp boolResponse
	if err := c.invoke(ctx, "RemoveIfEqual", &compareRequest{Key: key, Expected: value}, &resp); err != nil {
		return false, errors.Transport(err, "remove_if_equal %v", key)
	}
	return resp.Value, nil
}

func (c *Client) Replace(ctx context.Context, key, value interface{}) (bool, error) {
	var resp boolResponse
	if err := c.invoke(ctx, "Replace", &compareRequest{Key: key, New: value}, &resp); err != nil {
		return false, errors.Transport(err, "replace %v", key)
	}
	return resp.Value, nil
}

func (c *Client) ReplaceIfEqual(ctx context.Context, key, expected, newValue interface{}) (bool, error) {
	var resp boolResponse
	req := &compareRequest{Key: key, Expected: expected, New: newValue}
	if err := c.invoke(ctx, "ReplaceIfEqual", req, &resp); err != nil {
		return false, errors.Transport(err, "replace_if_equal %v", key)
	}
	return resp.Value, nil
}

func (c *Client) Clear(ctx context.Context) error {
	return c.invoke(ctx, "Clear", &emptyRequest{}, &emptyRequest{})
}

func (c *Client) Truncate(ctx context.Context) error {
	return c.invoke(ctx, "Truncate", &emptyRequest{}, &emptyRequest{})
}

func (c *Client) KeySet(ctx context.Context, f filter.Filter) ([]interface{}, error) {
	expr, err := wireExprOf(f)
	if err != nil {
		return nil, err
	}
	var resp keySetResponse
	if err := c.invoke(ctx, "KeySet", &keySetRequest{FilterExpr: expr}, &resp); err != nil {
		return nil, errors.Transport(err, "key_set")
	}
	return resp.Keys, nil
}

func (c *Client) EntrySet(ctx context.Context, f filter.Filter, _ index.Comparator) (map[interface{}]interface{}, error) {
	expr, err := wireExprOf(f)
	if err != nil {
		return nil, err
	}
	var resp entriesResponse
	if err := c.invoke(ctx, "EntrySet", &keySetRequest{FilterExpr: expr}, &resp); err != nil {
		return nil, errors.Transport(err, "entry_set")
	}
	return widen(resp.Entries), nil
}

// Invoke, InvokeAllKeys, InvokeAllFilter, AggregateKeys and AggregateFilter
// run entry processors and aggregators that are themselves opaque Go code;
// this adapter cannot ship them over the wire any more than it can ship a
// closure-backed Filter. A production transport would require processors
// and aggregators to be registered server-side operation names instead.
func (c *Client) Invoke(context.Context, interface{}, remotecache.EntryProcessor) (interface{}, error) {
	return nil, errors.Unsupported("gridrpc: invoke requires a server-registered processor name")
}

func (c *Client) InvokeAllKeys(context.Context, []interface{}, remotecache.EntryProcessor) (map[interface{}]interface{}, error) {
	return nil, errors.Unsupported("gridrpc: invoke_all requires a server-registered processor name")
}

func (c *Client) InvokeAllFilter(context.Context, filter.Filter, remotecache.EntryProcessor) (map[interface{}]interface{}, error) {
	return nil, errors.Unsupported("gridrpc: invoke_all requires a server-registered processor name")
}

func (c *Client) AggregateKeys(context.Context, []interface{}, remotecache.Aggregator) (interface{}, error) {
	return nil, errors.Unsupported("gridrpc: aggregate requires a server-registered aggregator name")
}

func (c *Client) AggregateFilter(context.Context, filter.Filter, remotecache.Aggregator) (interface{}, error) {
	return nil, errors.Unsupported("gridrpc: aggregate requires a server-registered aggregator name")
}

func (c *Client) Lock(ctx context.Context, key interface{}, wait time.Duration) (bool, error) {
	var resp boolResponse
	if err := c.invoke(ctx, "Lock", &lockRequest{Key: key, Wait: wait}, &resp); err != nil {
		return false, errors.Transport(err, "lock %v", key)
	}
	return resp.Value, nil
}

func (c *Client) Unlock(ctx context.Context, key interface{}) error {
	return c.invoke(ctx, "Unlock", &removeRequest{Key: key}, &emptyRequest{})
}

func (c *Client) AddIndex(ctx context.Context, d index.Descriptor) error {
	return c.invoke(ctx, "AddIndex", &indexRequest{Name: d.Name, Ordered: d.Ordered}, &emptyRequest{})
}

func (c *Client) RemoveIndex(ctx context.Context, name string) error {
	return c.invoke(ctx, "RemoveIndex", &removeIndexRequest{Name: name}, &emptyRequest{})
}

type subscription struct{ id uint64 }

func (*subscription) isSubscription() {}

func (c *Client) addSubscription(cancel func()) *subscription {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.next++
	id := c.next
	c.subs[id] = cancel
	return &subscription{id: id}
}

func (c *Client) AddFilterListener(ctx context.Context, mf *filter.MapEventFilter, lite bool, h remotecache.EventHandler) (remotecache.Subscription, error) {
	expr, err := wireExprOf(mf.Filter)
	if err != nil {
		return nil, err
	}
	return c.subscribe(ctx, &subscribeRequest{FilterExpr: expr, Mask: uint32(mf.Mask), Lite: lite}, h)
}

func (c *Client) AddKeyListener(ctx context.Context, key interface{}, lite bool, h remotecache.EventHandler) (remotecache.Subscription, error) {
	return c.subscribe(ctx, &subscribeRequest{Key: key, HasKey: true, Lite: lite}, h)
}

// subscribe opens a server-streaming call and decodes eventMessage frames
// onto h in a background goroutine until the stream ends or ctx is
// cancelled.
func (c *Client) subscribe(ctx context.Context, req *subscribeRequest, h remotecache.EventHandler) (remotecache.Subscription, error) {
	streamCtx, cancel := context.WithCancel(ctx)
	stream, err := c.conn.NewStream(streamCtx, &grpc.StreamDesc{ServerStreams: true}, fullMethod("Subscribe"), grpc.CallContentSubtype(CodecName))
	if err != nil {
		cancel()
		return nil, errors.Transport(err, "subscribe")
	}
	if err := stream.SendMsg(req); err != nil {
		cancel()
		return nil, errors.Transport(err, "subscribe: send request")
	}
	if err := stream.CloseSend(); err != nil {
		cancel()
		return nil, errors.Transport(err, "subscribe: close send")
	}

	go func() {
		defer cancel()
		for {
			var msg eventMessage
			if err := stream.RecvMsg(&msg); err != nil {
				// Stream end (EOF) or transport failure both just stop
				// delivery; the caller learns of a dead subscription by its
				// handler going quiet, there being no error channel on
				// remotecache.EventHandler to report one through.
				return
			}
			h(decodeEvent(msg))
		}
	}()

	return c.addSubscription(cancel), nil
}

func (c *Client) RemoveListener(_ context.Context, sub remotecache.Subscription) error {
	s, ok := sub.(*subscription)
	if !ok {
		return errors.InvalidArgument("gridrpc: not a gridrpc subscription")
	}
	c.mu.Lock()
	cancel, ok := c.subs[s.id]
	delete(c.subs, s.id)
	c.mu.Unlock()
	if ok {
		cancel()
	}
	return nil
}

func (c *Client) IsActive() bool {
	return c.conn.GetState().String() != "SHUTDOWN"
}

func (c *Client) Release(context.Context) error { return c.Close() }

func (c *Client) Destroy(ctx context.Context) error {
	if err := c.invoke(ctx, "Destroy", &emptyRequest{}, &emptyRequest{}); err != nil {
		return errors.Transport(err, "destroy")
	}
	return c.Close()
}

func (c *Client) AddMemberListener(h remotecache.MemberHandler) (remotecache.Subscription, error) {
	ctx, cancel := context.WithCancel(context.Background())
	stream, err := c.conn.NewStream(ctx, &grpc.StreamDesc{ServerStreams: true}, fullMethod("MemberEvents"), grpc.CallContentSubtype(CodecName))
	if err != nil {
		cancel()
		return nil, errors.Transport(err, "add_member_listener")
	}
	go func() {
		defer cancel()
		for {
			var msg memberMessage
			if err := stream.RecvMsg(&msg); err != nil {
				return
			}
			h(msg.Left)
		}
	}()
	return c.addSubscription(cancel), nil
}

func (c *Client) AddDeactivationListener(h remotecache.DeactivationHandler) (remotecache.Subscription, error) {
	ctx, cancel := context.WithCancel(context.Background())
	stream, err := c.conn.NewStream(ctx, &grpc.StreamDesc{ServerStreams: true}, fullMethod("LifecycleEvents"), grpc.CallContentSubtype(CodecName))
	if err != nil {
		cancel()
		return nil, errors.Transport(err, "add_deactivation_listener")
	}
	go func() {
		defer cancel()
		for {
			var msg lifecycleMessage
			if err := stream.RecvMsg(&msg); err != nil {
				return
			}
			reason := remotecache.Destroyed
			if msg.Reason == "truncated" {
				reason = remotecache.Truncated
			}
			h(reason)
		}
	}()
	return c.addSubscription(cancel), nil
}

func decodeEvent(msg eventMessage) event.MapEvent {
	var ev event.MapEvent
	switch msg.Kind {
	case "inserted":
		ev = event.NewInserted(msg.Source, msg.Key, msg.New)
	case "deleted":
		ev = event.NewDeleted(msg.Source, msg.Key, msg.Old)
	default:
		ev = event.NewUpdated(msg.Source, msg.Key, msg.Old, msg.New)
	}
	ev.Seq = msg.Seq
	return ev
}

func narrow(m map[interface{}]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[fmt.Sprint(k)] = v
	}
	return out
}

func widen(m map[string]interface{}) map[interface{}]interface{} {
	out := make(map[interface{}]interface{}, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
