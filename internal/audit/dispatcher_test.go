package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"
)

type blockingSink struct {
	release chan struct{}
	got     chan Event
}

func (s *blockingSink) Emit(_ context.Context, e Event) {
	<-s.release
	s.got <- e
}

func TestDispatcherDisabledIsNil(t *testing.T) {
	d := NewDispatcher(Config{Enabled: false}, NoOpSink{})
	if d != nil {
		t.Fatal("expected nil dispatcher when disabled")
	}
	d.Emit(context.Background(), Event{EventType: "x"})
	d.Close()
	if d.Dropped() != 0 {
		t.Fatal("nil dispatcher must report zero drops")
	}
}

func TestDispatcherStampsAndDelivers(t *testing.T) {
	sink := NewChannelSink(4)
	d := NewDispatcher(Config{Enabled: true, BufferSize: 4}, sink)
	d.Emit(context.Background(), Event{EventType: "initialize", UserID: "u1", Success: true})
	d.Close()

	select {
	case e := <-sink.Events():
		if e.ID == "" || e.Timestamp.IsZero() {
			t.Fatalf("expected id and timestamp to be stamped: %+v", e)
		}
		if e.EventType != "initialize" || e.UserID != "u1" {
			t.Fatalf("unexpected event: %+v", e)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestDispatcherDropIfFullCountsDrops(t *testing.T) {
	sink := &blockingSink{release: make(chan struct{}), got: make(chan Event, 8)}
	d := NewDispatcher(Config{Enabled: true, BufferSize: 1, DropIfFull: true}, sink)

	for i := 0; i < 5; i++ {
		d.Emit(context.Background(), Event{EventType: "x"})
	}
	close(sink.release)
	d.Close()

	if d.Dropped() == 0 {
		t.Fatal("expected drops with a full buffer")
	}
	if d.Dropped() > 4 {
		t.Fatalf("expected at most 4 drops, got %d", d.Dropped())
	}
}

func TestDispatcherEmitAfterCloseIsIgnored(t *testing.T) {
	sink := NewChannelSink(1)
	d := NewDispatcher(Config{Enabled: true, BufferSize: 1}, sink)
	d.Close()
	d.Close()
	d.Emit(context.Background(), Event{EventType: "late"})

	select {
	case e := <-sink.Events():
		t.Fatalf("expected no delivery after close, got %+v", e)
	default:
	}
}

func TestJSONWriterSinkWritesLines(t *testing.T) {
	var buf bytes.Buffer
	sink := NewJSONWriterSink(&buf)
	sink.Emit(context.Background(), Event{EventType: "sign_out", UserID: "u1"})
	sink.Emit(context.Background(), Event{EventType: "initialize"})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d: %q", len(lines), buf.String())
	}
	var e Event
	if err := json.Unmarshal([]byte(lines[0]), &e); err != nil {
		t.Fatalf("decode line: %v", err)
	}
	if e.EventType != "sign_out" || e.UserID != "u1" {
		t.Fatalf("unexpected decoded event: %+v", e)
	}
}

type panickySink struct {
	got chan Event
}

func (s *panickySink) Emit(_ context.Context, e Event) {
	if e.EventType == "boom" {
		panic("sink failure")
	}
	s.got <- e
}

func TestDispatcherSurvivesPanickingSink(t *testing.T) {
	sink := &panickySink{got: make(chan Event, 2)}
	d := NewDispatcher(Config{Enabled: true, BufferSize: 4}, sink)
	d.Emit(context.Background(), Event{EventType: "boom"})
	d.Emit(context.Background(), Event{EventType: "sign_out", UserID: "u1"})
	d.Close()

	if d.SinkPanics() != 1 {
		t.Fatalf("expected one sink panic, got %d", d.SinkPanics())
	}
	select {
	case e := <-sink.got:
		if e.EventType != "sign_out" {
			t.Fatalf("unexpected event after panic: %+v", e)
		}
	default:
		t.Fatal("expected delivery to continue after a sink panic")
	}
}

func TestDispatcherStampsWithInjectedClock(t *testing.T) {
	sink := NewChannelSink(1)
	d := NewDispatcher(Config{Enabled: true, BufferSize: 1}, sink)
	at := time.Date(2024, 5, 6, 7, 8, 9, 0, time.FixedZone("x", 3600))
	d.clock = func() time.Time { return at }
	d.newEventID = func() string { return "evt-1" }

	d.Emit(context.Background(), Event{EventType: "mount"})
	d.Close()

	e := <-sink.Events()
	if e.ID != "evt-1" || !e.Timestamp.Equal(at) || e.Timestamp.Location() != time.UTC {
		t.Fatalf("expected injected id and UTC timestamp, got %+v", e)
	}
}
