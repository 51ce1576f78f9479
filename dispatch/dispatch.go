// Package dispatch implements the continuous query cache's single-consumer
// task queue, which drains queued (event, listener) pairs off the event
// ingest path so that a slow or misbehaving user callback never blocks the
// thread delivering server events (spec.md §4.3).
package dispatch

import (
	"sync"

	"go.uber.org/zap"

	"github.com/teranos/gridcache/event"
	"github.com/teranos/gridcache/listener"
)

type task struct {
	ev event.MapEvent
	l  listener.MapListener
}

// Dispatcher is a FIFO of (event, listener) pairs drained by a single
// goroutine. Properties: per-listener in-order delivery, per-key in-order
// delivery (inherited from the order events are scheduled in), no
// cross-listener ordering guarantee. Schedule is non-blocking: it never
// waits for the consumer goroutine.
type Dispatcher struct {
	logger *zap.SugaredLogger

	mu     sync.Mutex
	cond   *sync.Cond
	queue  []task
	closed bool
	wg     sync.WaitGroup
}

// New builds a Dispatcher. Call Start before the first Schedule.
func New(logger *zap.SugaredLogger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	d := &Dispatcher{logger: logger}
	d.cond = sync.NewCond(&d.mu)
	return d
}

// Start launches the consumer goroutine.
func (d *Dispatcher) Start() {
	d.wg.Add(1)
	go d.run()
}

// Schedule enqueues (ev, l) for asynchronous delivery. Non-blocking; a call
// after Stop is silently dropped.
func (d *Dispatcher) Schedule(ev event.MapEvent, l listener.MapListener) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.queue = append(d.queue, task{ev: ev, l: l})
	d.cond.Signal()
	d.mu.Unlock()
}

// Pending reports how many tasks are currently queued. Diagnostic only.
func (d *Dispatcher) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.queue)
}

func (d *Dispatcher) run() {
	defer d.wg.Done()
	for {
		d.mu.Lock()
		for len(d.queue) == 0 && !d.closed {
			d.cond.Wait()
		}
		if len(d.queue) == 0 && d.closed {
			d.mu.Unlock()
			return
		}
		t := d.queue[0]
		d.queue = d.queue[1:]
		d.mu.Unlock()

		d.invoke(t)
	}
}

// invoke calls the listener hook matching t.ev.Kind. A panicking listener
// callback is caught and logged; it does not stop the dispatcher and is
// never propagated (spec.md §7).
func (d *Dispatcher) invoke(t task) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Warnw("listener callback panicked", "panic", r, "event", t.ev.String())
		}
	}()
	switch t.ev.Kind {
	case event.Inserted:
		t.l.Inserted(t.ev)
	case event.Updated:
		t.l.Updated(t.ev)
	case event.Deleted:
		t.l.Deleted(t.ev)
	}
}

// Stop signals the consumer goroutine and joins it. When flush is true,
// tasks already queued are delivered before the goroutine exits; when
// false, they are discarded. Either way, no new task scheduled after Stop
// is ever delivered.
func (d *Dispatcher) Stop(flush bool) {
	d.mu.Lock()
	d.closed = true
	if !flush {
		d.queue = nil
	}
	d.cond.Broadcast()
	d.mu.Unlock()
	d.wg.Wait()
}
