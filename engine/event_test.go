package engine

import (
	"testing"
)

func TestNotifierFanOut(t *testing.T) {
	n := NewNotifier()
	a := &eventSink{}
	b := &eventSink{}
	n.Register(a)
	token := n.Register(b)

	n.Notify(Event{Type: EventStarted, ExecutionID: "e1"})
	if len(a.byType(EventStarted)) != 1 || len(b.byType(EventStarted)) != 1 {
		t.Error("event not delivered to all observers")
	}

	n.Unregister(token)
	n.Notify(Event{Type: EventStarted, ExecutionID: "e2"})
	if len(a.byType(EventStarted)) != 2 {
		t.Error("remaining observer missed an event")
	}
	if len(b.byType(EventStarted)) != 1 {
		t.Error("unregistered observer still receives events")
	}
}

func TestNotifierStampsTimestamp(t *testing.T) {
	n := NewNotifier()
	sink := &eventSink{}
	n.Register(sink)

	n.Notify(Event{Type: EventStdout, Line: "hello"})
	events := sink.byType(EventStdout)
	if len(events) != 1 || events[0].Timestamp.IsZero() {
		t.Error("notifier did not stamp a timestamp")
	}
}

func TestNotifierSurvivesPanickingObserver(t *testing.T) {
	n := NewNotifier()
	n.Register(ObserverFunc(func(Event) { panic("observer bug") }))
	sink := &eventSink{}
	n.Register(sink)

	n.Notify(Event{Type: EventStarted})
	if len(sink.byType(EventStarted)) != 1 {
		t.Error("a panicking observer starved the others")
	}
}
