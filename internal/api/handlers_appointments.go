package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/carebridge/telehealth-core/internal/identity"
	"github.com/carebridge/telehealth-core/internal/scheduling"
)

type AppointmentHandler struct {
	scheduler *scheduling.Scheduler
}

func NewAppointmentHandler(scheduler *scheduling.Scheduler) *AppointmentHandler {
	return &AppointmentHandler{scheduler: scheduler}
}

func (h *AppointmentHandler) Book(w http.ResponseWriter, r *http.Request) {
	actor, ok := identity.ActorFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing actor")
		return
	}

	var req BookAppointmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "malformed JSON body")
		return
	}

	doctorID, err := uuid.Parse(req.DoctorID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation", "doctor_id must be a valid UUID")
		return
	}

	// Patients book for themselves; an explicit patient_id is only
	// honoured for admins acting on a patient's behalf.
	patientID := actor.ID
	if req.PatientID != "" && actor.IsAdmin() {
		patientID, err = uuid.Parse(req.PatientID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "validation", "patient_id must be a valid UUID")
			return
		}
	}

	appt, err := h.scheduler.Book(r.Context(), actor, doctorID, patientID, req.Time, req.Reason)
	if err != nil {
		handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toAppointmentResponse(appt))
}

func (h *AppointmentHandler) Approve(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.scheduler.Approve)
}

func (h *AppointmentHandler) Decline(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.scheduler.Decline)
}

func (h *AppointmentHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.scheduler.Cancel)
}

func (h *AppointmentHandler) Complete(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation", "id must be a valid UUID")
		return
	}
	appt, err := h.scheduler.Complete(r.Context(), id)
	if err != nil {
		handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
}

func (h *AppointmentHandler) Get(w http.ResponseWriter, r *http.Request) {
	actor, ok := identity.ActorFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing actor")
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation", "id must be a valid UUID")
		return
	}
	appt, err := h.scheduler.Get(r.Context(), actor, id)
	if err != nil {
		handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
}

func (h *AppointmentHandler) List(w http.ResponseWriter, r *http.Request) {
	actor, ok := identity.ActorFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing actor")
		return
	}

	f := scheduling.Filter{
		Page:     queryInt(r, "page", 1),
		PageSize: queryInt(r, "page_size", 20),
	}
	if v := r.URL.Query().Get("doctor_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "validation", "doctor_id must be a valid UUID")
			return
		}
		f.DoctorID = &id
	}
	if v := r.URL.Query().Get("patient_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "validation", "patient_id must be a valid UUID")
			return
		}
		f.PatientID = &id
	}
	if v := r.URL.Query().Get("status"); v != "" {
		st := scheduling.AppointmentStatus(v)
		if !st.IsValid() {
			writeError(w, http.StatusBadRequest, "validation", "unknown appointment status")
			return
		}
		f.Status = &st
	}

	page, err := h.scheduler.List(r.Context(), actor, f)
	if err != nil {
		handleDomainError(w, err)
		return
	}

	items := make([]AppointmentResponse, 0, len(page.Appointments))
	for i := range page.Appointments {
		items = append(items, toAppointmentResponse(&page.Appointments[i]))
	}
	writeJSON(w, http.StatusOK, PagedResponse[AppointmentResponse]{
		Items:      items,
		TotalCount: page.TotalCount,
		Page:       page.Page,
		PageSize:   page.PageSize,
	})
}

func (h *AppointmentHandler) transition(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, actor identity.Actor, id uuid.UUID) (*scheduling.Appointment, error)) {
	actor, ok := identity.ActorFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing actor")
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation", "id must be a valid UUID")
		return
	}
	appt, err := fn(r.Context(), actor, id)
	if err != nil {
		handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
}
