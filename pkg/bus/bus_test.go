package bus

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestPublishFanOutInOrder(t *testing.T) {
	b := New(8)
	var got []string
	b.Subscribe(TopicPinChange, func(Event) { got = append(got, "a") })
	b.Subscribe(TopicPinChange, func(Event) { got = append(got, "b") })
	b.Subscribe(TopicPWMChange, func(Event) { got = append(got, "other") })
	b.Subscribe(TopicPinChange, func(Event) { got = append(got, "c") })

	b.Publish(TopicPinChange, PinChange{Pin: 2})

	if strings.Join(got, "") != "abc" {
		t.Fatalf("expected delivery order abc, got %v", got)
	}
}

func TestPanickingHandlerDoesNotStopDelivery(t *testing.T) {
	var logs bytes.Buffer
	b := New(8, WithLogger(slog.New(slog.NewTextHandler(&logs, nil))))

	reached := false
	b.Subscribe(TopicConsoleLog, func(Event) { panic("boom") })
	b.Subscribe(TopicConsoleLog, func(Event) { reached = true })

	b.Publish(TopicConsoleLog, ConsoleLog{Message: "hi"})

	if !reached {
		t.Fatal("second handler was not invoked after the first panicked")
	}
	if !strings.Contains(logs.String(), "boom") {
		t.Errorf("panic was not logged, got %q", logs.String())
	}
}

func TestUnsubscribeDuringDispatchKeepsSnapshot(t *testing.T) {
	b := New(8)
	calls := 0
	var unsubB func()
	b.Subscribe(TopicPinChange, func(Event) { unsubB() })
	unsubB = b.Subscribe(TopicPinChange, func(Event) { calls++ })

	b.Publish(TopicPinChange, nil)
	if calls != 1 {
		t.Fatalf("in-flight delivery should still reach the removed handler, calls=%d", calls)
	}

	b.Publish(TopicPinChange, nil)
	if calls != 1 {
		t.Fatalf("removed handler invoked on a later publish, calls=%d", calls)
	}
}

func TestSubscribeOnce(t *testing.T) {
	b := New(8)
	n := 0
	b.SubscribeOnce(TopicEngineState, func(Event) { n++ })
	b.Publish(TopicEngineState, EngineState{State: "running"})
	b.Publish(TopicEngineState, EngineState{State: "stopped"})
	if n != 1 {
		t.Fatalf("expected exactly one delivery, got %d", n)
	}
	if b.Subscribers(TopicEngineState) != 0 {
		t.Errorf("once subscription still registered")
	}
}

func TestWildcardSubscription(t *testing.T) {
	b := New(8)
	var topics []Topic
	b.Subscribe(TopicAll, func(ev Event) { topics = append(topics, ev.Topic) })
	b.Publish(TopicGPIOReset, GPIOReset{})
	b.Publish(TopicEngineReset, EngineReset{})
	if len(topics) != 2 || topics[0] != TopicGPIOReset || topics[1] != TopicEngineReset {
		t.Fatalf("wildcard got %v", topics)
	}
}

func TestHistoryRingBuffer(t *testing.T) {
	b := New(3)
	for i := 0; i < 5; i++ {
		b.Publish(TopicPinChange, PinChange{Pin: i})
	}
	b.Publish(TopicConsoleLog, ConsoleLog{Message: "x"})

	all := b.History()
	if len(all) != 3 {
		t.Fatalf("expected 3 retained events, got %d", len(all))
	}
	if all[0].Payload.(PinChange).Pin != 3 || all[1].Payload.(PinChange).Pin != 4 {
		t.Errorf("oldest events were not discarded first: %+v", all)
	}

	pins := b.History(TopicPinChange)
	if len(pins) != 2 {
		t.Errorf("topic filter returned %d events, want 2", len(pins))
	}

	b.Clear()
	if len(b.History()) != 0 {
		t.Errorf("history not cleared")
	}
}

func TestPublishOnWildcardIsIgnored(t *testing.T) {
	var logs bytes.Buffer
	b := New(4, WithLogger(slog.New(slog.NewTextHandler(&logs, nil))))
	called := false
	b.Subscribe(TopicAll, func(Event) { called = true })
	b.Publish(TopicAll, nil)
	if called || len(b.History()) != 0 {
		t.Fatal("publishing on the wildcard topic must be a no-op")
	}
}
