// Package events carries domain events from the engine to downstream
// collaborators (notification, billing, audit). Events are published
// fire-and-forget after a mutation has committed, never inside it; delivery is
// at-least-once and consumers deduplicate on the stable event ID.
package events

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Event types emitted by the engine.
const (
	TypeAppointmentBooked      = "appointment.booked"
	TypeAppointmentCancelled   = "appointment.cancelled"
	TypeAppointmentRescheduled = "appointment.rescheduled"
	TypeAppointmentNoShow      = "appointment.no_show"
	TypeQueueCalled            = "queue.called"
	TypeBedAdmitted            = "bed.admitted"
	TypeBedDischarged          = "bed.discharged"
	TypeBedTransferred         = "bed.transferred"
)

// Event is a single domain event with a stable identity.
type Event struct {
	ID         string          `json:"id"`
	Type       string          `json:"type"`
	ResourceID string          `json:"resource_id"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	OccurredAt time.Time       `json:"occurred_at"`
}

// New builds an event with a fresh stable ID. The payload must already be
// serializable; a marshal failure drops the payload, never the event.
func New(eventType, resourceID string, payload interface{}) Event {
	ev := Event{
		ID:         uuid.New().String(),
		Type:       eventType,
		ResourceID: resourceID,
		OccurredAt: time.Now().UTC(),
	}
	if payload != nil {
		if raw, err := json.Marshal(payload); err == nil {
			ev.Payload = raw
		}
	}
	return ev
}

// Sink receives committed domain events. Publish must not block the caller
// beyond a bounded enqueue and must never return an error into the mutation
// path; the engine treats event delivery as best effort.
type Sink interface {
	Publish(ev Event)
}

// Discard is a Sink that drops everything, for tests and tools that do not
// care about events.
type Discard struct{}

func (Discard) Publish(Event) {}
