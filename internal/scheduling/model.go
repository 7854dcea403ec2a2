package scheduling

import (
	"time"

	"github.com/google/uuid"
)

// State transitions:
//
//	pending → approved → completed
//	pending → cancelled
//	approved → cancelled
//
// No edge re-enters pending or approved from a terminal state.
type AppointmentStatus string

const (
	StatusPending   AppointmentStatus = "pending"
	StatusApproved  AppointmentStatus = "approved"
	StatusCancelled AppointmentStatus = "cancelled"
	StatusCompleted AppointmentStatus = "completed"
)

func (s AppointmentStatus) IsValid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusCancelled, StatusCompleted:
		return true
	}
	return false
}

func (s AppointmentStatus) CanTransitionTo(to AppointmentStatus) bool {
	allowed := map[AppointmentStatus][]AppointmentStatus{
		StatusPending:   {StatusApproved, StatusCancelled},
		StatusApproved:  {StatusCancelled, StatusCompleted},
		StatusCancelled: {},
		StatusCompleted: {},
	}
	for _, t := range allowed[s] {
		if t == to {
			return true
		}
	}
	return false
}

// Appointment's Time is an absolute UTC instant. Serializing and
// re-parsing it must reproduce the exact same instant; booking conflict
// detection depends on it.
type Appointment struct {
	ID        uuid.UUID
	DoctorID  uuid.UUID
	PatientID uuid.UUID
	Time      time.Time
	Reason    string
	Status    AppointmentStatus
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Filter struct {
	DoctorID  *uuid.UUID
	PatientID *uuid.UUID
	Status    *AppointmentStatus
	Page      int
	PageSize  int
}

type PagedAppointments struct {
	Appointments []Appointment
	TotalCount   int64
	Page         int
	PageSize     int
}
