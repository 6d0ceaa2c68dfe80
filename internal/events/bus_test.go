package events

import (
	"testing"

	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestBusPublishOrder(t *testing.T) {
	bus := NewBus()
	sub := bus.Subscribe(TopicProgress)
	defer sub.Unsubscribe()

	for i := 0; i < 5; i++ {
		bus.Publish(TopicProgress, map[string]any{"seq": i})
	}
	for i := 0; i < 5; i++ {
		ev := <-sub.C
		if ev.Payload["seq"] != i {
			t.Fatalf("event %d has seq %v", i, ev.Payload["seq"])
		}
	}
}

func TestBusTopicFilter(t *testing.T) {
	bus := NewBus()
	progress := bus.Subscribe(TopicProgress)
	defer progress.Unsubscribe()
	all := bus.Subscribe()
	defer all.Unsubscribe()

	bus.Publish(TopicConfigChanged, map[string]any{"k": "v"})
	bus.Publish(TopicProgress, map[string]any{"k": "v"})

	if ev := <-progress.C; ev.Topic != TopicProgress {
		t.Fatalf("filtered subscriber got %s", ev.Topic)
	}
	select {
	case ev := <-progress.C:
		t.Fatalf("filtered subscriber got extra event %s", ev.Topic)
	default:
	}

	if ev := <-all.C; ev.Topic != TopicConfigChanged {
		t.Fatalf("catch-all subscriber got %s first", ev.Topic)
	}
	if ev := <-all.C; ev.Topic != TopicProgress {
		t.Fatalf("catch-all subscriber got %s second", ev.Topic)
	}
}

func TestBusSlowConsumerDropsOldest(t *testing.T) {
	bus := NewBus()
	sub := bus.Subscribe(TopicProgress)
	defer sub.Unsubscribe()

	// Overfill the buffer without draining.
	for i := 0; i < 300; i++ {
		bus.Publish(TopicProgress, map[string]any{"seq": i})
	}

	first := <-sub.C
	if first.Payload["seq"] == 0 {
		t.Fatal("oldest event survived a full buffer")
	}

	// The newest event must be present.
	last := first
	for {
		select {
		case ev := <-sub.C:
			last = ev
		default:
			if last.Payload["seq"] != 299 {
				t.Fatalf("newest event seq = %v, want 299", last.Payload["seq"])
			}
			return
		}
	}
}

func TestBusUnsubscribeIdempotent(t *testing.T) {
	bus := NewBus()
	sub := bus.Subscribe(TopicProgress)
	sub.Unsubscribe()
	sub.Unsubscribe() // second call is a no-op

	// Publishing after unsubscribe must not panic on the closed channel.
	bus.Publish(TopicProgress, nil)
}
