package events

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Event types published by the engine.
const (
	EventAttemptStarted   = "attempt.started"
	EventAttemptPaused    = "attempt.paused"
	EventAttemptResumed   = "attempt.resumed"
	EventAttemptCompleted = "attempt.completed"
	EventAttemptSubmitted = "attempt.submitted"
	EventAttemptExpired   = "attempt.expired"
	EventAttemptGraded    = "attempt.graded"
	EventTemplatePublished = "template.published"
)

// Event is the envelope every published message carries. Data holds the
// type-specific payload.
type Event struct {
	ID        string      `json:"id"`
	Type      string      `json:"type"`
	Source    string      `json:"source"`
	Version   string      `json:"version"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
}

// NewEvent builds an envelope with a fresh ID and current timestamp.
func NewEvent(eventType string, data interface{}) *Event {
	return &Event{
		ID:        uuid.New().String(),
		Type:      eventType,
		Source:    "assessment-engine",
		Version:   "1.0",
		Timestamp: time.Now(),
		Data:      data,
	}
}

// AttemptEvent is the payload for attempt lifecycle events.
type AttemptEvent struct {
	AttemptID  uint    `json:"attempt_id"`
	TemplateID uint    `json:"template_id"`
	UserID     string  `json:"user_id"`
	Kind       string  `json:"kind"`
	Status     string  `json:"status"`
	TotalScore float64 `json:"total_score,omitempty"`
	Percentage float64 `json:"percentage,omitempty"`
	Passed     *bool   `json:"passed,omitempty"`
}

// TemplateEvent is the payload for template lifecycle events.
type TemplateEvent struct {
	TemplateID uint   `json:"template_id"`
	Title      string `json:"title"`
	Kind       string `json:"kind"`
	Status     string `json:"status"`
	CreatedBy  string `json:"created_by"`
}

// EventPublisher abstracts the message transport so services can publish
// without knowing about Kafka.
type EventPublisher interface {
	Publish(ctx context.Context, event *Event) error
	Close() error
}
