package scheduling

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrAppointmentNotFound = errors.New("appointment not found")
	ErrSchedulingConflict  = errors.New("doctor already has an appointment within the slot window")
	ErrPastDate            = errors.New("appointment time must be in the future")
	ErrInvalidTransition   = errors.New("invalid appointment status transition")
	ErrValidation          = errors.New("invalid booking request")
)

// Repository contains all DB interactions needed by the scheduler.
type Repository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error)

	// CreateIfFree inserts the appointment only if the doctor holds no
	// pending or approved appointment strictly within one slot window
	// of its time. Check and insert are a single atomic operation;
	// ErrSchedulingConflict reports the losing writer.
	CreateIfFree(ctx context.Context, appt *Appointment, window time.Duration) (*Appointment, error)

	// UpdateStatus applies the transition only while the row is still
	// in the expected status. ErrAppointmentNotFound means the
	// precondition failed.
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to AppointmentStatus) (*Appointment, error)

	// FindApprovedEndedBefore lists approved appointments whose
	// scheduled time is at or before the cutoff, for the auto-complete
	// sweep.
	FindApprovedEndedBefore(ctx context.Context, cutoff time.Time) ([]Appointment, error)

	List(ctx context.Context, f Filter) (*PagedAppointments, error)
}
