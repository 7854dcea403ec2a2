package caresession

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryRepository is the in-memory Repository used in tests, with the
// same conditional-transition semantics as the Postgres implementation.
type MemoryRepository struct {
	mu            sync.Mutex
	consultations map[uuid.UUID]*VideoConsultation
	prescriptions map[uuid.UUID]*Prescription
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		consultations: make(map[uuid.UUID]*VideoConsultation),
		prescriptions: make(map[uuid.UUID]*Prescription),
	}
}

// Put seeds a consultation directly; fixture helper for tests.
func (r *MemoryRepository) Put(c VideoConsultation) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.consultations[c.ID] = &c
}

func (r *MemoryRepository) CreateConsultation(_ context.Context, c *VideoConsultation) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cp := *c
	r.consultations[c.ID] = &cp
	return nil
}

func (r *MemoryRepository) GetConsultationByID(_ context.Context, id uuid.UUID) (*VideoConsultation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.consultations[id]
	if !ok {
		return nil, ErrConsultationNotFound
	}
	cp := *c
	return &cp, nil
}

func (r *MemoryRepository) GetConsultationByAppointment(_ context.Context, appointmentID uuid.UUID) (*VideoConsultation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, c := range r.consultations {
		if c.AppointmentID == appointmentID {
			cp := *c
			return &cp, nil
		}
	}
	return nil, ErrConsultationNotFound
}

func (r *MemoryRepository) UpdateConsultationStatus(_ context.Context, id uuid.UUID, from, to ConsultationStatus) (*VideoConsultation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.consultations[id]
	if !ok || c.Status != from {
		return nil, ErrConsultationNotFound
	}
	c.Status = to
	c.UpdatedAt = time.Now().UTC()
	cp := *c
	return &cp, nil
}

func (r *MemoryRepository) SetConsultationRoom(_ context.Context, id uuid.UUID, roomID, meetingURL string) (*VideoConsultation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.consultations[id]
	if !ok {
		return nil, ErrConsultationNotFound
	}
	c.RoomID = roomID
	c.MeetingURL = meetingURL
	c.UpdatedAt = time.Now().UTC()
	cp := *c
	return &cp, nil
}

func (r *MemoryRepository) FindStaleSessions(_ context.Context, cutoff time.Time) ([]VideoConsultation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var result []VideoConsultation
	for _, c := range r.consultations {
		if !c.Status.IsTerminal() && !c.ScheduledAt.After(cutoff) {
			result = append(result, *c)
		}
	}
	return result, nil
}

func (r *MemoryRepository) CreatePrescription(_ context.Context, p *Prescription) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cp := *p
	r.prescriptions[p.ID] = &cp
	return nil
}

func (r *MemoryRepository) GetPrescriptionByID(_ context.Context, id uuid.UUID) (*Prescription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.prescriptions[id]
	if !ok {
		return nil, ErrPrescriptionNotFound
	}
	cp := *p
	return &cp, nil
}

func (r *MemoryRepository) UpdateDispatchStatus(_ context.Context, id uuid.UUID, from, to DispatchStatus, pharmacyID *uuid.UUID) (*Prescription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.prescriptions[id]
	if !ok || p.DispatchStatus != from {
		return nil, ErrPrescriptionNotFound
	}
	p.DispatchStatus = to
	if pharmacyID != nil {
		id := *pharmacyID
		p.PharmacyID = &id
	}
	p.UpdatedAt = time.Now().UTC()
	cp := *p
	return &cp, nil
}
