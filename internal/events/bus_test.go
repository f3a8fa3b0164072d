package events

import (
	"fmt"
	"testing"
	"time"
)

func started(id string) TaskStartedEvent {
	return TaskStartedEvent{
		SessionID:   "s-1",
		ID:          id,
		Description: "Write the handler",
		Role:        "coder",
		Timestamp:   time.Now(),
	}
}

func progress() SessionProgressEvent {
	return SessionProgressEvent{
		SessionID: "s-1",
		Total:     4,
		Completed: 2,
		Running:   1,
		Pending:   1,
		Overall:   62.5,
		Timestamp: time.Now(),
	}
}

func receive(t *testing.T, ch <-chan Event) Event {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(100 * time.Millisecond):
		t.Fatal("timeout waiting for event")
		return nil
	}
}

func expectNothing(t *testing.T, ch <-chan Event) {
	t.Helper()
	select {
	case ev, ok := <-ch:
		if ok {
			t.Errorf("unexpected event %s", ev.EventType())
		}
	case <-time.After(10 * time.Millisecond):
	}
}

// TestPublishSubscribe verifies basic publish/subscribe functionality.
func TestPublishSubscribe(t *testing.T) {
	bus := NewEventBus()
	defer bus.Close()

	ch := bus.Subscribe(TopicTask, 10)
	bus.Publish(TopicTask, started("task-1"))

	received := receive(t, ch)
	if received.TaskID() != "task-1" {
		t.Errorf("expected task ID 'task-1', got '%s'", received.TaskID())
	}
	if received.EventType() != EventTypeTaskStarted {
		t.Errorf("expected event type '%s', got '%s'", EventTypeTaskStarted, received.EventType())
	}
	if received.Session() != "s-1" {
		t.Errorf("expected session 's-1', got '%s'", received.Session())
	}
}

// TestMultipleSubscribers verifies every subscriber of a topic receives the event.
func TestMultipleSubscribers(t *testing.T) {
	bus := NewEventBus()
	defer bus.Close()

	ch1 := bus.Subscribe(TopicTask, 10)
	ch2 := bus.Subscribe(TopicTask, 10)

	bus.Publish(TopicTask, TaskCompletedEvent{SessionID: "s-1", ID: "task-2", Content: "done", Timestamp: time.Now()})

	for i, ch := range []<-chan Event{ch1, ch2} {
		if got := receive(t, ch).TaskID(); got != "task-2" {
			t.Errorf("subscriber %d: expected task ID 'task-2', got '%s'", i+1, got)
		}
	}
}

// TestNonBlockingSend verifies publishing never blocks on a full subscriber.
func TestNonBlockingSend(t *testing.T) {
	bus := NewEventBus()
	defer bus.Close()

	ch := bus.Subscribe(TopicTask, 1)

	done := make(chan struct{})
	go func() {
		for i := range 10 {
			bus.Publish(TopicTask, started(fmt.Sprintf("task-%d", i)))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(100 * time.Millisecond):
		t.Fatal("publisher blocked (expected non-blocking behavior)")
	}

	if got := receive(t, ch).TaskID(); got != "task-0" {
		t.Errorf("expected the first event to be buffered, got %s", got)
	}
	if bus.Dropped() != 9 {
		t.Errorf("Dropped() = %d, want 9", bus.Dropped())
	}
}

// TestCloseSignalsSubscribers verifies closing the bus closes subscriber channels.
func TestCloseSignalsSubscribers(t *testing.T) {
	bus := NewEventBus()
	ch := bus.Subscribe(TopicTask, 10)
	all := bus.SubscribeAll(10)

	bus.Close()
	bus.Close()

	for _, c := range []<-chan Event{ch, all} {
		received := 0
		for range c {
			received++
		}
		if received != 0 {
			t.Errorf("expected 0 events after close, got %d", received)
		}
	}

	// Subscriptions after close are born closed
	if _, ok := <-bus.Subscribe(TopicTask, 1); ok {
		t.Error("subscription after close should be closed")
	}
}

// TestPublishAfterClose verifies publishing after close doesn't panic.
func TestPublishAfterClose(t *testing.T) {
	bus := NewEventBus()
	ch := bus.Subscribe(TopicTask, 10)
	bus.Close()

	defer func() {
		if r := recover(); r != nil {
			t.Errorf("publishing after close caused panic: %v", r)
		}
	}()

	bus.Publish(TopicTask, started("task-1"))
	expectNothing(t, ch)
}

// TestNilBusPublish verifies a nil bus is a usable no-op publisher.
func TestNilBusPublish(t *testing.T) {
	var bus *EventBus
	var pub Publisher = bus
	pub.Publish(TopicTask, started("task-1"))
}

// TestMultipleTopics verifies topic isolation.
func TestMultipleTopics(t *testing.T) {
	bus := NewEventBus()
	defer bus.Close()

	taskCh := bus.Subscribe(TopicTask, 10)
	sessionCh := bus.Subscribe(TopicSession, 10)

	bus.Publish(TopicTask, started("task-1"))
	bus.Publish(TopicSession, progress())

	if got := receive(t, taskCh).EventType(); got != EventTypeTaskStarted {
		t.Errorf("task channel: expected task event, got %s", got)
	}
	if got := receive(t, sessionCh).EventType(); got != EventTypeSessionProgress {
		t.Errorf("session channel: expected progress event, got %s", got)
	}

	expectNothing(t, taskCh)
	expectNothing(t, sessionCh)
}

// TestSubscribeAll verifies SubscribeAll receives events from all topics.
func TestSubscribeAll(t *testing.T) {
	bus := NewEventBus()
	defer bus.Close()

	allCh := bus.SubscribeAll(20)

	bus.Publish(TopicTask, started("task-1"))
	bus.Publish(TopicSession, progress())
	bus.Publish(TopicTool, ToolCallEvent{SessionID: "s-1", ID: "task-1", Tool: "write_file", Success: true})

	receivedTypes := make(map[string]bool)
	for range 3 {
		receivedTypes[receive(t, allCh).EventType()] = true
	}

	for _, want := range []string{EventTypeTaskStarted, EventTypeSessionProgress, EventTypeToolCall} {
		if !receivedTypes[want] {
			t.Errorf("SubscribeAll did not receive %s", want)
		}
	}
	expectNothing(t, allCh)
}

// TestUnsubscribe verifies an unsubscribed channel is closed and skipped.
func TestUnsubscribe(t *testing.T) {
	bus := NewEventBus()
	defer bus.Close()

	keep := bus.Subscribe(TopicTask, 10)
	gone := bus.Subscribe(TopicTask, 10)
	all := bus.SubscribeAll(10)

	bus.Unsubscribe(gone)
	bus.Unsubscribe(all)
	bus.Unsubscribe(make(chan Event)) // unknown, ignored

	bus.Publish(TopicTask, started("task-1"))

	if _, ok := <-gone; ok {
		t.Error("unsubscribed topic channel should be closed")
	}
	if _, ok := <-all; ok {
		t.Error("unsubscribed all-topics channel should be closed")
	}
	if got := receive(t, keep).TaskID(); got != "task-1" {
		t.Errorf("remaining subscriber got %s", got)
	}
}
