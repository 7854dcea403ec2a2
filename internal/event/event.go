package event

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type Type string

const (
	AppointmentBooked       Type = "APPOINTMENT_BOOKED"
	AppointmentApproved     Type = "APPOINTMENT_APPROVED"
	AppointmentCancelled    Type = "APPOINTMENT_CANCELLED"
	AppointmentCompleted    Type = "APPOINTMENT_COMPLETED"
	SubscriptionActivated   Type = "SUBSCRIPTION_ACTIVATED"
	SubscriptionExpired     Type = "SUBSCRIPTION_EXPIRED"
	SubscriptionDeactivated Type = "SUBSCRIPTION_DEACTIVATED"
	PrescriptionReady       Type = "PRESCRIPTION_READY"
	PrescriptionDispatched  Type = "PRESCRIPTION_DISPATCHED"
)

// Event is an immutable lifecycle fact. Delivery to consumers is
// at-least-once; consumers deduplicate by ID.
type Event struct {
	ID         uuid.UUID
	Type       Type
	EntityID   uuid.UUID
	OccurredAt time.Time
	Payload    map[string]any
}

func New(t Type, entityID uuid.UUID, payload map[string]any) Event {
	return Event{
		ID:         uuid.New(),
		Type:       t,
		EntityID:   entityID,
		OccurredAt: time.Now().UTC(),
		Payload:    payload,
	}
}

// Sink receives published events for delivery to the notification
// layer. Fire-and-forget from the core's perspective: a sink failure
// never fails the state transition that produced the event.
type Sink interface {
	Publish(ctx context.Context, ev Event) error
}
