package caresession

import (
	"time"

	"github.com/google/uuid"
)

// ConsultationStatus mirrors and is driven by the owning appointment:
//
//	scheduled → in_progress → ended
//	scheduled → ended (timeout before anyone joined)
//	scheduled, in_progress → cancelled (appointment cancelled)
type ConsultationStatus string

const (
	ConsultationScheduled  ConsultationStatus = "scheduled"
	ConsultationInProgress ConsultationStatus = "in_progress"
	ConsultationEnded      ConsultationStatus = "ended"
	ConsultationCancelled  ConsultationStatus = "cancelled"
)

func (s ConsultationStatus) IsTerminal() bool {
	return s == ConsultationEnded || s == ConsultationCancelled
}

// VideoConsultation is created 1:1 from an approved appointment. An
// empty RoomID marks a session whose room provisioning failed and is
// awaiting retry.
type VideoConsultation struct {
	ID            uuid.UUID
	AppointmentID uuid.UUID
	RoomID        string
	MeetingURL    string
	Status        ConsultationStatus
	ScheduledAt   time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// DispatchStatus only ever advances: ready → sent → delivered.
type DispatchStatus string

const (
	DispatchReady     DispatchStatus = "ready"
	DispatchSent      DispatchStatus = "sent"
	DispatchDelivered DispatchStatus = "delivered"
)

type Prescription struct {
	ID             uuid.UUID
	AppointmentID  uuid.UUID
	DoctorID       uuid.UUID
	PatientID      uuid.UUID
	PharmacyID     *uuid.UUID
	Medication     string
	Dosage         string
	Frequency      string
	Instructions   string
	DispatchStatus DispatchStatus
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// PrescriptionDetails is the doctor-supplied content of a new
// prescription.
type PrescriptionDetails struct {
	Medication   string
	Dosage       string
	Frequency    string
	Instructions string
}
