package dispatch

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/gridcache/event"
	"github.com/teranos/gridcache/listener"
)

type recordingListener struct {
	mu     sync.Mutex
	events []event.MapEvent
}

func (r *recordingListener) record(e event.MapEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recordingListener) Inserted(e event.MapEvent) { r.record(e) }
func (r *recordingListener) Updated(e event.MapEvent)  { r.record(e) }
func (r *recordingListener) Deleted(e event.MapEvent)  { r.record(e) }

func (r *recordingListener) snapshot() []event.MapEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]event.MapEvent, len(r.events))
	copy(out, r.events)
	return out
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	require.True(t, cond(), "condition not met before deadline")
}

func TestInOrderDeliveryPerListener(t *testing.T) {
	d := New(nil)
	d.Start()
	defer d.Stop(true)

	rl := &recordingListener{}
	for i := 0; i < 5; i++ {
		d.Schedule(event.NewInserted("c", i, i), rl)
	}

	waitFor(t, func() bool { return len(rl.snapshot()) == 5 })
	got := rl.snapshot()
	for i, e := range got {
		assert.Equal(t, i, e.Key)
	}
}

func TestPanickingListenerDoesNotStopDispatcher(t *testing.T) {
	d := New(nil)
	d.Start()
	defer d.Stop(true)

	panicky := listener.Func{OnInserted: func(event.MapEvent) { panic("boom") }}
	rl := &recordingListener{}

	d.Schedule(event.NewInserted("c", "k1", 1), panicky)
	d.Schedule(event.NewInserted("c", "k2", 2), rl)

	waitFor(t, func() bool { return len(rl.snapshot()) == 1 })
}

func TestStopAbandonsPendingByDefault(t *testing.T) {
	d := New(nil)
	// Don't start the consumer — everything scheduled stays queued.
	rl := &recordingListener{}
	d.Schedule(event.NewInserted("c", "k1", 1), rl)
	require.Equal(t, 1, d.Pending())

	d.Stop(false)
	assert.Equal(t, 0, len(rl.snapshot()))
}

func TestStopFlushesWhenRequested(t *testing.T) {
	d := New(nil)
	rl := &recordingListener{}
	d.Schedule(event.NewInserted("c", "k1", 1), rl)
	d.Start()

	d.Stop(true)
	assert.Equal(t, 1, len(rl.snapshot()))
}

func TestScheduleAfterStopIsDropped(t *testing.T) {
	d := New(nil)
	d.Start()
	d.Stop(true)

	rl := &recordingListener{}
	d.Schedule(event.NewInserted("c", "k1", 1), rl)
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, 0, len(rl.snapshot()))
}
