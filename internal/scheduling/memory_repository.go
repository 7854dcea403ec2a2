package scheduling

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryRepository is the in-memory Repository used in tests. The
// conflict check and insert happen under one mutex hold, mirroring the
// single-statement atomicity of the Postgres implementation.
type MemoryRepository struct {
	mu    sync.Mutex
	appts map[uuid.UUID]*Appointment
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{appts: make(map[uuid.UUID]*Appointment)}
}

// Put seeds an appointment directly, bypassing the conflict check;
// fixture helper for tests.
func (r *MemoryRepository) Put(a Appointment) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.appts[a.ID] = &a
}

func (r *MemoryRepository) GetByID(_ context.Context, id uuid.UUID) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.appts[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	cp := *a
	return &cp, nil
}

func (r *MemoryRepository) CreateIfFree(_ context.Context, appt *Appointment, window time.Duration) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.appts {
		if existing.DoctorID != appt.DoctorID {
			continue
		}
		if existing.Status != StatusPending && existing.Status != StatusApproved {
			continue
		}
		delta := existing.Time.Sub(appt.Time)
		if delta < 0 {
			delta = -delta
		}
		if delta < window {
			return nil, ErrSchedulingConflict
		}
	}

	cp := *appt
	r.appts[appt.ID] = &cp
	out := cp
	return &out, nil
}

func (r *MemoryRepository) UpdateStatus(_ context.Context, id uuid.UUID, from, to AppointmentStatus) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.appts[id]
	if !ok || a.Status != from {
		return nil, ErrAppointmentNotFound
	}
	a.Status = to
	a.UpdatedAt = time.Now().UTC()
	cp := *a
	return &cp, nil
}

func (r *MemoryRepository) FindApprovedEndedBefore(_ context.Context, cutoff time.Time) ([]Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var result []Appointment
	for _, a := range r.appts {
		if a.Status == StatusApproved && !a.Time.After(cutoff) {
			result = append(result, *a)
		}
	}
	return result, nil
}

func (r *MemoryRepository) List(_ context.Context, f Filter) (*PagedAppointments, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var all []Appointment
	for _, a := range r.appts {
		if f.DoctorID != nil && a.DoctorID != *f.DoctorID {
			continue
		}
		if f.PatientID != nil && a.PatientID != *f.PatientID {
			continue
		}
		if f.Status != nil && a.Status != *f.Status {
			continue
		}
		all = append(all, *a)
	}

	sort.Slice(all, func(i, j int) bool {
		return all[i].Time.After(all[j].Time)
	})

	page := &PagedAppointments{
		TotalCount: int64(len(all)),
		Page:       f.Page,
		PageSize:   f.PageSize,
	}

	start := (f.Page - 1) * f.PageSize
	if start < len(all) {
		end := start + f.PageSize
		if end > len(all) {
			end = len(all)
		}
		page.Appointments = all[start:end]
	}

	return page, nil
}
