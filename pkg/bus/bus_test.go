package bus

import (
	"testing"
	"time"
)

func TestPublishSubscribeBasic(t *testing.T) {
	b := New[int]()
	id, ch := b.Subscribe()
	defer b.Unsubscribe(id)

	b.Publish(42)

	select {
	case env := <-ch:
		if env.Event != 42 || env.Lagged != 0 {
			t.Fatalf("got %+v, want Event=42 Lagged=0", env)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for publish")
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	b := New[int]()
	id, ch := b.Subscribe()
	b.Unsubscribe(id)

	_, ok := <-ch
	if ok {
		t.Fatal("expected channel to be closed after Unsubscribe")
	}
}

func TestSlowSubscriberReportsLag(t *testing.T) {
	b := New[int]()
	_, ch := b.Subscribe()

	// Flood well past the buffer capacity without draining.
	const total = subscriberBuffer + 10
	for i := 0; i < total; i++ {
		b.Publish(i)
	}

	var got []Envelope[int]
	for len(got) < subscriberBuffer {
		select {
		case env := <-ch:
			got = append(got, env)
		case <-time.After(time.Second):
			t.Fatalf("timed out after reading %d envelopes", len(got))
		}
	}

	// The buffered envelopes were all queued before any drop, so the
	// missed count rides on the next envelope delivered after draining.
	b.Publish(total)
	select {
	case env := <-ch:
		got = append(got, env)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for the envelope after draining")
	}

	var totalLagged uint64
	for _, env := range got {
		totalLagged += env.Lagged
	}
	if totalLagged != total-subscriberBuffer {
		t.Fatalf("total lagged = %d, want %d", totalLagged, total-subscriberBuffer)
	}
}

func TestSubscriberCount(t *testing.T) {
	b := New[int]()
	if b.SubscriberCount() != 0 {
		t.Fatalf("expected 0 subscribers initially")
	}
	id, _ := b.Subscribe()
	if b.SubscriberCount() != 1 {
		t.Fatalf("expected 1 subscriber")
	}
	b.Unsubscribe(id)
	if b.SubscriberCount() != 0 {
		t.Fatalf("expected 0 subscribers after unsubscribe")
	}
}
