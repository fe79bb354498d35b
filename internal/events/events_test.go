package events

import (
	"context"
	"io"
	"log/slog"
	"testing"
)

func TestNewEvent(t *testing.T) {
	payload := &AttemptEvent{AttemptID: 42, UserID: "u-1", Kind: "exam", Status: "submitted"}
	event := NewEvent(EventAttemptSubmitted, payload)

	if event.ID == "" {
		t.Error("expected a generated event ID")
	}
	if event.Type != EventAttemptSubmitted {
		t.Errorf("got type %q, want %q", event.Type, EventAttemptSubmitted)
	}
	if event.Source != "assessment-engine" {
		t.Errorf("got source %q, want assessment-engine", event.Source)
	}
	if event.Version != "1.0" {
		t.Errorf("got version %q, want 1.0", event.Version)
	}
	if event.Timestamp.IsZero() {
		t.Error("expected a timestamp")
	}
	if event.Data != payload {
		t.Error("payload was not carried through")
	}

	other := NewEvent(EventAttemptSubmitted, payload)
	if other.ID == event.ID {
		t.Error("expected unique IDs per event")
	}
}

func TestMockEventPublisher(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	publisher := NewMockEventPublisher(logger)
	ctx := context.Background()

	if err := publisher.Publish(ctx, NewEvent(EventAttemptStarted, &AttemptEvent{AttemptID: 1})); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if err := publisher.Publish(ctx, NewEvent(EventAttemptGraded, &AttemptEvent{AttemptID: 1})); err != nil {
		t.Fatalf("publish: %v", err)
	}

	recorded := publisher.GetPublishedEvents()
	if len(recorded) != 2 {
		t.Fatalf("got %d events, want 2", len(recorded))
	}
	if recorded[0].Type != EventAttemptStarted || recorded[1].Type != EventAttemptGraded {
		t.Errorf("events recorded out of order: %q, %q", recorded[0].Type, recorded[1].Type)
	}

	publisher.ClearEvents()
	if remaining := publisher.GetPublishedEvents(); len(remaining) != 0 {
		t.Errorf("expected no events after clear, got %d", len(remaining))
	}

	if err := publisher.Close(); err != nil {
		t.Errorf("close: %v", err)
	}
}
