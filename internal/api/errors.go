package api

import (
	"errors"
	"net/http"

	"github.com/carebridge/telehealth-core/internal/access"
	"github.com/carebridge/telehealth-core/internal/caresession"
	"github.com/carebridge/telehealth-core/internal/scheduling"
	"github.com/carebridge/telehealth-core/internal/subscription"
	"github.com/carebridge/telehealth-core/internal/user"
)

// handleDomainError maps the core error taxonomy onto HTTP. Every
// sentinel is reported verbatim; nothing is retried here.
func handleDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, scheduling.ErrValidation),
		errors.Is(err, caresession.ErrValidation),
		errors.Is(err, subscription.ErrInvalidPlan),
		errors.Is(err, subscription.ErrInvalidPeriod):
		writeError(w, http.StatusBadRequest, "validation_error", err.Error())

	case errors.Is(err, scheduling.ErrPastDate):
		writeError(w, http.StatusBadRequest, "past_date", err.Error())

	case errors.Is(err, scheduling.ErrSchedulingConflict):
		writeError(w, http.StatusConflict, "scheduling_conflict", err.Error())

	case errors.Is(err, access.ErrSubscriptionRequired):
		writeError(w, http.StatusForbidden, "subscription_required", err.Error())

	case errors.Is(err, access.ErrDoctorUnavailable):
		writeError(w, http.StatusForbidden, "doctor_unavailable", err.Error())

	case errors.Is(err, access.ErrForbidden):
		writeError(w, http.StatusForbidden, "forbidden", err.Error())

	case errors.Is(err, scheduling.ErrInvalidTransition),
		errors.Is(err, subscription.ErrInvalidTransition),
		errors.Is(err, caresession.ErrInvalidTransition):
		writeError(w, http.StatusConflict, "invalid_transition", err.Error())

	case errors.Is(err, scheduling.ErrAppointmentNotFound),
		errors.Is(err, subscription.ErrSubscriptionNotFound),
		errors.Is(err, caresession.ErrConsultationNotFound),
		errors.Is(err, caresession.ErrPrescriptionNotFound),
		errors.Is(err, user.ErrUserNotFound):
		writeError(w, http.StatusNotFound, "not_found", err.Error())

	case errors.Is(err, caresession.ErrProviderUnavailable):
		writeError(w, http.StatusServiceUnavailable, "provider_unavailable", "session provider unavailable, retry later")

	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}
