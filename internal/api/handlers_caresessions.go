package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/carebridge/telehealth-core/internal/access"
	"github.com/carebridge/telehealth-core/internal/caresession"
	"github.com/carebridge/telehealth-core/internal/identity"
)

type CareSessionHandler struct {
	orchestrator *caresession.Orchestrator
}

func NewCareSessionHandler(orchestrator *caresession.Orchestrator) *CareSessionHandler {
	return &CareSessionHandler{orchestrator: orchestrator}
}

func (h *CareSessionHandler) GetConsultation(w http.ResponseWriter, r *http.Request) {
	actor, ok := identity.ActorFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing actor")
		return
	}
	appointmentID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation", "id must be a valid UUID")
		return
	}
	c, err := h.orchestrator.GetConsultationForAppointment(r.Context(), actor, appointmentID)
	if err != nil {
		handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toConsultationResponse(c))
}

func (h *CareSessionHandler) Join(w http.ResponseWriter, r *http.Request) {
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
	c, err := h.orchestrator.JoinSession(r.Context(), id, actor.ID)
	if err != nil {
		handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toConsultationResponse(c))
}

func (h *CareSessionHandler) End(w http.ResponseWriter, r *http.Request) {
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
	c, err := h.orchestrator.EndSession(r.Context(), actor, id)
	if err != nil {
		handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toConsultationResponse(c))
}

func (h *CareSessionHandler) Provision(w http.ResponseWriter, r *http.Request) {
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
	c, err := h.orchestrator.RetryProvisioning(r.Context(), actor, id)
	if err != nil {
		handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toConsultationResponse(c))
}

func (h *CareSessionHandler) IssuePrescription(w http.ResponseWriter, r *http.Request) {
	actor, ok := identity.ActorFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing actor")
		return
	}
	appointmentID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation", "id must be a valid UUID")
		return
	}

	var req IssuePrescriptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "malformed JSON body")
		return
	}

	p, err := h.orchestrator.IssuePrescription(r.Context(), actor, appointmentID, caresession.PrescriptionDetails{
		Medication:   req.Medication,
		Dosage:       req.Dosage,
		Frequency:    req.Frequency,
		Instructions: req.Instructions,
	})
	if err != nil {
		handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toPrescriptionResponse(p))
}

func (h *CareSessionHandler) GetPrescription(w http.ResponseWriter, r *http.Request) {
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
	p, err := h.orchestrator.GetPrescription(r.Context(), id)
	if err != nil {
		handleDomainError(w, err)
		return
	}
	// Visible to the prescribing doctor, the patient, the assigned
	// pharmacy, or staff.
	owner := p.PatientID
	if actor.ID == p.DoctorID || (p.PharmacyID != nil && actor.ID == *p.PharmacyID) {
		owner = actor.ID
	}
	if err := access.Evaluate(actor, access.ActionView, owner, ""); err != nil {
		handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPrescriptionResponse(p))
}

func (h *CareSessionHandler) Dispatch(w http.ResponseWriter, r *http.Request) {
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

	var req DispatchPrescriptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "malformed JSON body")
		return
	}

	// A pharmacy dispatches to itself; an admin may name the pharmacy.
	pharmacyID := actor.ID
	if req.PharmacyID != "" && actor.IsAdmin() {
		pharmacyID, err = uuid.Parse(req.PharmacyID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "validation", "pharmacy_id must be a valid UUID")
			return
		}
	}
	if actor.Role != identity.RolePharmacy && !actor.IsAdmin() {
		handleDomainError(w, access.ErrForbidden)
		return
	}

	p, err := h.orchestrator.Dispatch(r.Context(), id, pharmacyID)
	if err != nil {
		handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPrescriptionResponse(p))
}

func (h *CareSessionHandler) ConfirmDelivery(w http.ResponseWriter, r *http.Request) {
	actor, ok := identity.ActorFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing actor")
		return
	}
	if actor.Role != identity.RolePharmacy && !actor.IsAdmin() {
		handleDomainError(w, access.ErrForbidden)
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation", "id must be a valid UUID")
		return
	}
	p, err := h.orchestrator.ConfirmDelivery(r.Context(), id)
	if err != nil {
		handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPrescriptionResponse(p))
}
