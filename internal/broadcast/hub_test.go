package broadcast

import (
	"testing"

	"github.com/voxquery/voxquery/pkg/models"
)

func TestHubDeliversToAllListeners(t *testing.T) {
	hub := NewHub[models.TranscriptEvent](8)
	a := hub.Subscribe(nil)
	b := hub.Subscribe(nil)
	defer a.Close()
	defer b.Close()

	hub.Publish(models.TranscriptEvent{Kind: models.EventAssistant, Payload: "hello"})

	for _, sub := range []*Subscription[models.TranscriptEvent]{a, b} {
		got := <-sub.C
		if got.Payload != "hello" {
			t.Fatalf("expected hello, got %q", got.Payload)
		}
	}
}

func TestHubPublishWithoutListenersIsNoop(t *testing.T) {
	hub := NewHub[models.TranscriptEvent](8)
	hub.Publish(models.TranscriptEvent{Payload: "nobody home"})
	if hub.Listeners() != 0 {
		t.Fatalf("expected no listeners, got %d", hub.Listeners())
	}
}

func TestHubDropsOldestWhenFull(t *testing.T) {
	hub := NewHub[int](2)
	dropped := 0
	hub.OnDrop(func() { dropped++ })

	sub := hub.Subscribe(nil)
	defer sub.Close()

	for i := 1; i <= 5; i++ {
		hub.Publish(i)
	}

	// Queue of 2 keeps only the newest two events.
	if got := <-sub.C; got != 4 {
		t.Fatalf("expected 4 first, got %d", got)
	}
	if got := <-sub.C; got != 5 {
		t.Fatalf("expected 5 second, got %d", got)
	}
	if dropped != 3 {
		t.Fatalf("expected 3 drops, got %d", dropped)
	}
}

func TestHubFilterBySession(t *testing.T) {
	hub := NewHub[models.EnrichmentEvent](8)
	sub := hub.Subscribe(func(e models.EnrichmentEvent) bool {
		return e.SessionID == "sess-1"
	})
	defer sub.Close()

	hub.Publish(models.EnrichmentEvent{SessionID: "sess-2", Index: 1, Total: 2})
	hub.Publish(models.EnrichmentEvent{SessionID: "sess-1", Index: 1, Total: 2})

	got := <-sub.C
	if got.SessionID != "sess-1" {
		t.Fatalf("filter leaked event for %q", got.SessionID)
	}
	select {
	case extra := <-sub.C:
		t.Fatalf("unexpected extra event %+v", extra)
	default:
	}
}

func TestSubscriptionCloseIsIdempotent(t *testing.T) {
	hub := NewHub[int](2)
	sub := hub.Subscribe(nil)
	sub.Close()
	sub.Close()
	if hub.Listeners() != 0 {
		t.Fatalf("expected 0 listeners after close, got %d", hub.Listeners())
	}
}
