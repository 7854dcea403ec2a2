package caresession

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrConsultationNotFound = errors.New("video consultation not found")
	ErrPrescriptionNotFound = errors.New("prescription not found")
	ErrInvalidTransition    = errors.New("invalid care session status transition")
	ErrValidation           = errors.New("invalid prescription details")
)

// Repository contains all DB interactions needed by the orchestrator.
type Repository interface {
	CreateConsultation(ctx context.Context, c *VideoConsultation) error
	GetConsultationByID(ctx context.Context, id uuid.UUID) (*VideoConsultation, error)
	GetConsultationByAppointment(ctx context.Context, appointmentID uuid.UUID) (*VideoConsultation, error)

	// UpdateConsultationStatus applies the transition only while the
	// row is still in the expected status.
	UpdateConsultationStatus(ctx context.Context, id uuid.UUID, from, to ConsultationStatus) (*VideoConsultation, error)
	SetConsultationRoom(ctx context.Context, id uuid.UUID, roomID, meetingURL string) (*VideoConsultation, error)

	// FindStaleSessions lists non-terminal consultations scheduled at
	// or before the cutoff, for the timeout sweep.
	FindStaleSessions(ctx context.Context, cutoff time.Time) ([]VideoConsultation, error)

	CreatePrescription(ctx context.Context, p *Prescription) error
	GetPrescriptionByID(ctx context.Context, id uuid.UUID) (*Prescription, error)
	UpdateDispatchStatus(ctx context.Context, id uuid.UUID, from, to DispatchStatus, pharmacyID *uuid.UUID) (*Prescription, error)
}
