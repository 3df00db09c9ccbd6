package events

import (
	"context"
	"testing"
	"time"
)

func TestPublishAssignsSequence(t *testing.T) {
	hub := NewHub(8)
	hub.Publish(Event{Type: TypeProjectUpdated, ProjectID: "p1"})
	hub.Publish(Event{Type: TypeVariantUpdated, RecordID: "v1"})

	got, next, err := hub.Fetch(context.Background(), 0, 10, false)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 events, got %d", len(got))
	}
	if got[0].Sequence != 1 || got[1].Sequence != 2 {
		t.Fatalf("unexpected sequences: %d, %d", got[0].Sequence, got[1].Sequence)
	}
	if next != 2 {
		t.Fatalf("expected cursor 2, got %d", next)
	}
	if got[0].Timestamp.IsZero() {
		t.Fatal("expected publish to stamp the event")
	}
}

func TestFetchCursorSkipsSeenEvents(t *testing.T) {
	hub := NewHub(8)
	for i := 0; i < 5; i++ {
		hub.Publish(Event{Type: TypeShotUpdated})
	}

	got, next, err := hub.Fetch(context.Background(), 3, 10, false)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(got) != 2 || got[0].Sequence != 4 {
		t.Fatalf("expected events after cursor 3, got %#v", got)
	}
	if next != 5 {
		t.Fatalf("expected cursor 5, got %d", next)
	}
}

func TestFetchWaitWakesOnPublish(t *testing.T) {
	hub := NewHub(8)

	done := make(chan []Event, 1)
	go func() {
		got, _, _ := hub.Fetch(context.Background(), 0, 10, true)
		done <- got
	}()

	// Give the fetcher a moment to block before publishing.
	time.Sleep(20 * time.Millisecond)
	hub.Publish(Event{Type: TypeReelUpdated, Status: "ready"})

	select {
	case got := <-done:
		if len(got) != 1 || got[0].Type != TypeReelUpdated {
			t.Fatalf("unexpected events: %#v", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("blocked fetch never woke")
	}
}

func TestFetchWaitHonorsContext(t *testing.T) {
	hub := NewHub(8)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, _, err := hub.Fetch(ctx, 0, 10, true)
	if err == nil {
		t.Fatal("expected context error from abandoned wait")
	}
}

func TestBufferEvictsOldest(t *testing.T) {
	hub := NewHub(3)
	for i := 0; i < 5; i++ {
		hub.Publish(Event{Type: TypeSceneUpdated})
	}

	got, _ := hub.Tail(10)
	if len(got) != 3 {
		t.Fatalf("expected buffer capped at 3, got %d", len(got))
	}
	if got[0].Sequence != 3 {
		t.Fatalf("expected oldest surviving sequence 3, got %d", got[0].Sequence)
	}
}

func TestNilHubIsSafe(t *testing.T) {
	var hub *Hub
	hub.Publish(Event{Type: TypeProjectUpdated})
	if got, _, err := hub.Fetch(context.Background(), 0, 10, false); err != nil || got != nil {
		t.Fatalf("expected nil hub no-op, got %v, %v", got, err)
	}
}
