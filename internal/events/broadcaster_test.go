package events

import (
	"encoding/json"
	"testing"
	"time"
)

func TestSubscribeUnsubscribe(t *testing.T) {
	b := NewBroadcaster(0)

	ch1 := b.Subscribe()
	ch2 := b.Subscribe()
	if b.Count() != 2 {
		t.Fatalf("expected 2 subscribers, got %d", b.Count())
	}

	b.Unsubscribe(ch1)
	if b.Count() != 1 {
		t.Fatalf("expected 1 subscriber after unsubscribe, got %d", b.Count())
	}
	if _, ok := <-ch1; ok {
		t.Error("unsubscribed channel is still open")
	}

	// A second unsubscribe is harmless.
	b.Unsubscribe(ch1)
	b.Unsubscribe(ch2)
	if b.Count() != 0 {
		t.Fatalf("expected 0 subscribers, got %d", b.Count())
	}
}

func TestPublishReachesEverySubscriber(t *testing.T) {
	b := NewBroadcaster(4)
	ch1 := b.Subscribe()
	ch2 := b.Subscribe()
	defer b.Unsubscribe(ch1)
	defer b.Unsubscribe(ch2)

	b.Publish(Event{Type: EventThumbnail, Path: "/photos/a.jpg", Ordinal: 3})

	for i, ch := range []chan Event{ch1, ch2} {
		select {
		case got := <-ch:
			if got.Path != "/photos/a.jpg" || got.Ordinal != 3 {
				t.Errorf("subscriber %d: got %+v", i, got)
			}
			if got.Timestamp == 0 {
				t.Errorf("subscriber %d: timestamp not set", i)
			}
		case <-time.After(time.Second):
			t.Fatalf("subscriber %d: timed out", i)
		}
	}
}

func TestPublishDropsForSlowSubscriber(t *testing.T) {
	b := NewBroadcaster(2)
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	for i := 0; i < 5; i++ {
		b.Publish(Event{Type: EventThumbnail, Ordinal: i})
	}
	if len(ch) != 2 {
		t.Errorf("buffered %d events, want 2", len(ch))
	}
}

func TestMarshal(t *testing.T) {
	data, err := Marshal(Event{Type: EventReload, Epoch: 7, Timestamp: 1})
	if err != nil {
		t.Fatal(err)
	}
	var got map[string]any
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatal(err)
	}
	if got["type"] != "reload" || got["epoch"] != float64(7) {
		t.Errorf("Marshal() = %s", data)
	}
	if _, ok := got["path"]; ok {
		t.Errorf("empty path was encoded: %s", data)
	}
}
