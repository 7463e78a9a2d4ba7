package events

import (
	"context"
	"time"
)

// Type names an enrollment domain event.
type Type string

const (
	TypeEnrolled     Type = "enrollment.enrolled"
	TypeWaitlisted   Type = "enrollment.waitlisted"
	TypeDropped      Type = "enrollment.dropped"
	TypePromoted     Type = "enrollment.promoted"
	TypeWaitlistLeft Type = "enrollment.waitlist_left"
	TypeCompleted    Type = "enrollment.completed"
	TypeOverride     Type = "enrollment.override"
)

// Event is published after the section transaction that produced it commits.
type Event struct {
	ID           string    `json:"id"`
	Type         Type      `json:"type"`
	EnrollmentID string    `json:"enrollment_id"`
	StudentID    string    `json:"student_id"`
	SectionID    string    `json:"section_id"`
	ActorID      string    `json:"actor_id,omitempty"`
	Status       string    `json:"status"`
	Override     bool      `json:"override"`
	Position     int       `json:"position,omitempty"`
	Reason       string    `json:"reason,omitempty"`
	OccurredAt   time.Time `json:"occurred_at"`
}

// Sink delivers events to their final destination.
type Sink interface {
	Publish(ctx context.Context, event Event) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, event Event) error

// Publish implements Sink.
func (f SinkFunc) Publish(ctx context.Context, event Event) error {
	return f(ctx, event)
}
