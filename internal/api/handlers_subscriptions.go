package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/carebridge/telehealth-core/internal/access"
	"github.com/carebridge/telehealth-core/internal/identity"
	"github.com/carebridge/telehealth-core/internal/subscription"
)

type SubscriptionHandler struct {
	ledger *subscription.Ledger
	log    zerolog.Logger
}

func NewSubscriptionHandler(ledger *subscription.Ledger, log zerolog.Logger) *SubscriptionHandler {
	return &SubscriptionHandler{ledger: ledger, log: log}
}

func (h *SubscriptionHandler) Create(w http.ResponseWriter, r *http.Request) {
	actor, ok := identity.ActorFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing actor")
		return
	}

	var req CreateSubscriptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "malformed JSON body")
		return
	}

	// Users create their own pending subscriptions; admins may create
	// one for any user.
	userID := actor.ID
	if req.UserID != "" {
		parsed, err := uuid.Parse(req.UserID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "validation", "user_id must be a valid UUID")
			return
		}
		if parsed != actor.ID && !actor.IsAdmin() {
			handleDomainError(w, access.ErrForbidden)
			return
		}
		userID = parsed
	}

	sub, err := h.ledger.CreatePending(r.Context(), userID, subscription.Plan(req.Plan), req.StartDate, req.EndDate, req.Amount, req.Currency, req.PaymentRef)
	if err != nil {
		handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toSubscriptionResponse(sub))
}

func (h *SubscriptionHandler) Activate(w http.ResponseWriter, r *http.Request) {
	actor, ok := identity.ActorFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing actor")
		return
	}
	if err := access.Evaluate(actor, access.ActionManageSubscriptions, uuid.Nil, ""); err != nil {
		handleDomainError(w, err)
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation", "id must be a valid UUID")
		return
	}
	sub, err := h.ledger.Activate(r.Context(), id)
	if err != nil {
		handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSubscriptionResponse(sub))
}

func (h *SubscriptionHandler) Deactivate(w http.ResponseWriter, r *http.Request) {
	actor, ok := identity.ActorFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing actor")
		return
	}
	if err := access.Evaluate(actor, access.ActionDeactivateSubscription, uuid.Nil, ""); err != nil {
		handleDomainError(w, err)
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation", "id must be a valid UUID")
		return
	}
	sub, err := h.ledger.Deactivate(r.Context(), id)
	if err != nil {
		handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSubscriptionResponse(sub))
}

func (h *SubscriptionHandler) Reactivate(w http.ResponseWriter, r *http.Request) {
	actor, ok := identity.ActorFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing actor")
		return
	}
	if err := access.Evaluate(actor, access.ActionManageSubscriptions, uuid.Nil, ""); err != nil {
		handleDomainError(w, err)
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation", "id must be a valid UUID")
		return
	}

	var req ReactivateSubscriptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "malformed JSON body")
		return
	}

	sub, err := h.ledger.Reactivate(r.Context(), id, req.EndDate)
	if err != nil {
		handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSubscriptionResponse(sub))
}

func (h *SubscriptionHandler) Get(w http.ResponseWriter, r *http.Request) {
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
	sub, err := h.ledger.Get(r.Context(), id)
	if err != nil {
		handleDomainError(w, err)
		return
	}
	if err := access.Evaluate(actor, access.ActionView, sub.UserID, ""); err != nil {
		handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSubscriptionResponse(sub))
}

func (h *SubscriptionHandler) List(w http.ResponseWriter, r *http.Request) {
	actor, ok := identity.ActorFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing actor")
		return
	}

	f := subscription.Filter{
		Page:     queryInt(r, "page", 1),
		PageSize: queryInt(r, "page_size", 20),
	}
	if v := r.URL.Query().Get("user_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "validation", "user_id must be a valid UUID")
			return
		}
		f.UserID = &id
	}
	if v := r.URL.Query().Get("status"); v != "" {
		st := subscription.Status(v)
		if !st.IsValid() {
			writeError(w, http.StatusBadRequest, "validation", "unknown subscription status")
			return
		}
		f.Status = &st
	}
	if v := r.URL.Query().Get("plan"); v != "" {
		p := subscription.Plan(v)
		if !p.IsValid() {
			writeError(w, http.StatusBadRequest, "validation", "unknown plan")
			return
		}
		f.Plan = &p
	}

	// Non-staff callers only ever see their own ledger.
	if !actor.IsAdmin() && actor.Role != identity.RoleSupport {
		f.UserID = &actor.ID
	}

	page, err := h.ledger.List(r.Context(), f)
	if err != nil {
		handleDomainError(w, err)
		return
	}

	items := make([]SubscriptionResponse, 0, len(page.Subscriptions))
	for i := range page.Subscriptions {
		items = append(items, toSubscriptionResponse(&page.Subscriptions[i]))
	}
	writeJSON(w, http.StatusOK, PagedResponse[SubscriptionResponse]{
		Items:      items,
		TotalCount: page.TotalCount,
		Page:       page.Page,
		PageSize:   page.PageSize,
	})
}

// PaymentWebhook is mounted outside the actor middleware: the payment
// provider authenticates with a shared reference, not an actor header.
func (h *SubscriptionHandler) PaymentWebhook(w http.ResponseWriter, r *http.Request) {
	var req PaymentConfirmationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "malformed JSON body")
		return
	}
	id, err := uuid.Parse(req.SubscriptionID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation", "subscription_id must be a valid UUID")
		return
	}

	sub, err := h.ledger.Get(r.Context(), id)
	if err != nil {
		handleDomainError(w, err)
		return
	}
	// Providers retry deliveries; a repeated confirmation for an already
	// active subscription is acknowledged, not rejected.
	if sub.Status == subscription.StatusActive {
		writeJSON(w, http.StatusOK, toSubscriptionResponse(sub))
		return
	}
	if req.ConfirmedAmount != sub.Amount {
		h.log.Warn().
			Str("subscription_id", id.String()).
			Int64("expected", sub.Amount).
			Int64("confirmed", req.ConfirmedAmount).
			Msg("payment amount mismatch, rejecting confirmation")
		writeError(w, http.StatusUnprocessableEntity, "amount_mismatch", "confirmed amount does not match subscription amount")
		return
	}

	sub, err = h.ledger.Activate(r.Context(), id)
	if err != nil {
		handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSubscriptionResponse(sub))
}
