package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/carebridge/telehealth-core/internal/caresession"
	"github.com/carebridge/telehealth-core/internal/scheduling"
	"github.com/carebridge/telehealth-core/internal/subscription"
)

type BookAppointmentRequest struct {
	DoctorID  string    `json:"doctor_id"`
	PatientID string    `json:"patient_id,omitempty"`
	Time      time.Time `json:"time"`
	Reason    string    `json:"reason"`
}

type AppointmentResponse struct {
	ID        uuid.UUID `json:"id"`
	DoctorID  uuid.UUID `json:"doctor_id"`
	PatientID uuid.UUID `json:"patient_id"`
	Time      time.Time `json:"time"`
	Reason    string    `json:"reason"`
	Status    string    `json:"status"`
}

func toAppointmentResponse(a *scheduling.Appointment) AppointmentResponse {
	return AppointmentResponse{
		ID:        a.ID,
		DoctorID:  a.DoctorID,
		PatientID: a.PatientID,
		Time:      a.Time,
		Reason:    a.Reason,
		Status:    string(a.Status),
	}
}

type PagedResponse[T any] struct {
	Items      []T   `json:"items"`
	TotalCount int64 `json:"total_count"`
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
}

type CreateSubscriptionRequest struct {
	UserID     string    `json:"user_id"`
	Plan       string    `json:"plan"`
	StartDate  time.Time `json:"start_date"`
	EndDate    time.Time `json:"end_date"`
	Amount     int64     `json:"amount"`
	Currency   string    `json:"currency"`
	PaymentRef string    `json:"payment_ref,omitempty"`
}

type ReactivateSubscriptionRequest struct {
	EndDate time.Time `json:"end_date"`
}

type SubscriptionResponse struct {
	ID        uuid.UUID `json:"id"`
	UserID    uuid.UUID `json:"user_id"`
	Plan      string    `json:"plan"`
	Status    string    `json:"status"`
	StartDate time.Time `json:"start_date"`
	EndDate   time.Time `json:"end_date"`
	Amount    int64     `json:"amount"`
	Currency  string    `json:"currency"`
}

func toSubscriptionResponse(s *subscription.Subscription) SubscriptionResponse {
	return SubscriptionResponse{
		ID:        s.ID,
		UserID:    s.UserID,
		Plan:      string(s.Plan),
		Status:    string(s.Status),
		StartDate: s.StartDate,
		EndDate:   s.EndDate,
		Amount:    s.Amount,
		Currency:  s.Currency,
	}
}

type PaymentConfirmationRequest struct {
	SubscriptionID  string `json:"subscription_id"`
	ConfirmedAmount int64  `json:"confirmed_amount"`
	Reference       string `json:"reference"`
}

type ConsultationResponse struct {
	ID            uuid.UUID `json:"id"`
	AppointmentID uuid.UUID `json:"appointment_id"`
	RoomID        string    `json:"room_id,omitempty"`
	MeetingURL    string    `json:"meeting_url,omitempty"`
	Status        string    `json:"status"`
	ScheduledAt   time.Time `json:"scheduled_at"`
}

func toConsultationResponse(c *caresession.VideoConsultation) ConsultationResponse {
	return ConsultationResponse{
		ID:            c.ID,
		AppointmentID: c.AppointmentID,
		RoomID:        c.RoomID,
		MeetingURL:    c.MeetingURL,
		Status:        string(c.Status),
		ScheduledAt:   c.ScheduledAt,
	}
}

type IssuePrescriptionRequest struct {
	Medication   string `json:"medication"`
	Dosage       string `json:"dosage"`
	Frequency    string `json:"frequency"`
	Instructions string `json:"instructions,omitempty"`
}

type DispatchPrescriptionRequest struct {
	PharmacyID string `json:"pharmacy_id,omitempty"`
}

type PrescriptionResponse struct {
	ID             uuid.UUID  `json:"id"`
	AppointmentID  uuid.UUID  `json:"appointment_id"`
	DoctorID       uuid.UUID  `json:"doctor_id"`
	PatientID      uuid.UUID  `json:"patient_id"`
	PharmacyID     *uuid.UUID `json:"pharmacy_id,omitempty"`
	Medication     string     `json:"medication"`
	Dosage         string     `json:"dosage"`
	Frequency      string     `json:"frequency"`
	Instructions   string     `json:"instructions,omitempty"`
	DispatchStatus string     `json:"dispatch_status"`
}

func toPrescriptionResponse(p *caresession.Prescription) PrescriptionResponse {
	return PrescriptionResponse{
		ID:             p.ID,
		AppointmentID:  p.AppointmentID,
		DoctorID:       p.DoctorID,
		PatientID:      p.PatientID,
		PharmacyID:     p.PharmacyID,
		Medication:     p.Medication,
		Dosage:         p.Dosage,
		Frequency:      p.Frequency,
		Instructions:   p.Instructions,
		DispatchStatus: string(p.DispatchStatus),
	}
}
