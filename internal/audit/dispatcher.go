package audit

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Config sizes the queue between reconciler commits and the sink.
type Config struct {
	Enabled    bool
	BufferSize int
	// DropIfFull sheds events instead of stalling the emitting commit.
	DropIfFull bool
}

// Dispatcher hands reconciler audit events to a Sink on its own goroutine,
// so a slow sink never holds up a state commit. A nil *Dispatcher is valid
// and discards everything.
type Dispatcher struct {
	sink       Sink
	queue      chan Event
	stop       chan struct{}
	relayDone  sync.WaitGroup
	shed       bool
	dropped    atomic.Uint64
	panics     atomic.Uint64
	stopped    atomic.Bool
	stopOnce   sync.Once
	clock      func() time.Time
	newEventID func() string
}

// NewDispatcher starts the relay goroutine, or returns nil when auditing is
// off.
func NewDispatcher(cfg Config, sink Sink) *Dispatcher {
	if !cfg.Enabled {
		return nil
	}
	if sink == nil {
		sink = NoOpSink{}
	}

	d := &Dispatcher{
		sink:       sink,
		queue:      make(chan Event, max(cfg.BufferSize, 1)),
		stop:       make(chan struct{}),
		shed:       cfg.DropIfFull,
		clock:      time.Now,
		newEventID: uuid.NewString,
	}
	d.relayDone.Add(1)
	go d.relay()
	return d
}

func (d *Dispatcher) relay() {
	defer d.relayDone.Done()

	for {
		select {
		case event := <-d.queue:
			d.deliver(event)
		case <-d.stop:
			// Flush what commits already queued, then exit.
			for {
				select {
				case event := <-d.queue:
					d.deliver(event)
				default:
					return
				}
			}
		}
	}
}

// deliver isolates the relay from a sink that panics.
func (d *Dispatcher) deliver(event Event) {
	defer func() {
		if recover() != nil {
			d.panics.Add(1)
		}
	}()
	d.sink.Emit(context.Background(), event)
}

func (d *Dispatcher) stamp(event Event) Event {
	if event.ID == "" {
		event.ID = d.newEventID()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = d.clock().UTC()
	}
	return event
}

// Emit queues event with an ID and UTC timestamp filled in. When shedding,
// a full queue drops the event and counts it; otherwise Emit waits for room
// until ctx ends or the dispatcher closes.
func (d *Dispatcher) Emit(ctx context.Context, event Event) {
	if d == nil || d.stopped.Load() {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	event = d.stamp(event)

	if d.shed {
		select {
		case d.queue <- event:
		case <-d.stop:
		default:
			d.dropped.Add(1)
		}
		return
	}

	select {
	case d.queue <- event:
	case <-ctx.Done():
	case <-d.stop:
	}
}

// Close refuses further events and blocks until the queue reaches the sink.
func (d *Dispatcher) Close() {
	if d == nil {
		return
	}
	d.stopOnce.Do(func() {
		d.stopped.Store(true)
		close(d.stop)
		d.relayDone.Wait()
	})
}

// Dropped reports events shed on a full queue.
func (d *Dispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}

// SinkPanics reports deliveries whose sink panicked.
func (d *Dispatcher) SinkPanics() uint64 {
	if d == nil {
		return 0
	}
	return d.panics.Load()
}
