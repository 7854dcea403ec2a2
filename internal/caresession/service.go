package caresession

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/carebridge/telehealth-core/internal/access"
	"github.com/carebridge/telehealth-core/internal/event"
	"github.com/carebridge/telehealth-core/internal/identity"
	"github.com/carebridge/telehealth-core/internal/metrics"
	"github.com/carebridge/telehealth-core/internal/scheduling"
	"github.com/carebridge/telehealth-core/internal/subscription"
)

// Appointments is the read-only view of the scheduler the orchestrator
// needs. It never mutates appointment state.
type Appointments interface {
	GetByID(ctx context.Context, id uuid.UUID) (*scheduling.Appointment, error)
}

// Entitlements resolves a user's current subscription status with lazy
// expiry applied.
type Entitlements interface {
	CurrentStatusForUser(ctx context.Context, userID uuid.UUID) (subscription.Status, error)
}

type Config struct {
	SlotDuration time.Duration
	SessionGrace time.Duration // inactivity past scheduled end before force-ending
}

// Orchestrator derives video consultations and prescriptions from
// appointment lifecycle events and keeps the three entities consistent
// under cancellation.
type Orchestrator struct {
	repo         Repository
	appts        Appointments
	entitlements Entitlements
	provider     RoomProvider
	bus          *event.Bus
	cfg          Config
	log          zerolog.Logger
}

func NewOrchestrator(repo Repository, appts Appointments, entitlements Entitlements, provider RoomProvider, bus *event.Bus, cfg Config, log zerolog.Logger) *Orchestrator {
	return &Orchestrator{
		repo:         repo,
		appts:        appts,
		entitlements: entitlements,
		provider:     provider,
		bus:          bus,
		cfg:          cfg,
		log:          log.With().Str("component", "care_session_orchestrator").Logger(),
	}
}

// Register subscribes the orchestrator to the appointment lifecycle.
func (o *Orchestrator) Register(bus *event.Bus) {
	bus.Subscribe(event.AppointmentApproved, o.handleAppointmentApproved)
	bus.Subscribe(event.AppointmentCancelled, o.handleAppointmentCancelled)
}

// handleAppointmentApproved creates the consultation for a freshly
// approved appointment. A provider failure leaves the consultation
// without a room; the approval itself is never rolled back and
// provisioning is retried later.
func (o *Orchestrator) handleAppointmentApproved(ctx context.Context, ev event.Event) {
	appt, err := o.appts.GetByID(ctx, ev.EntityID)
	if err != nil {
		o.log.Error().Err(err).Str("appointment_id", ev.EntityID.String()).Msg("load approved appointment failed")
		return
	}

	now := time.Now().UTC()
	consultation := &VideoConsultation{
		ID:            uuid.New(),
		AppointmentID: appt.ID,
		Status:        ConsultationScheduled,
		ScheduledAt:   appt.Time,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := o.repo.CreateConsultation(ctx, consultation); err != nil {
		o.log.Error().Err(err).Str("appointment_id", appt.ID.String()).Msg("create consultation failed")
		return
	}

	if err := o.provisionRoom(ctx, consultation.ID); err != nil {
		o.log.Warn().Err(err).
			Str("consultation_id", consultation.ID.String()).
			Msg("room provisioning failed, consultation pending retry")
	}
}

// handleAppointmentCancelled cascades the cancellation to any
// non-terminal consultation of that appointment.
func (o *Orchestrator) handleAppointmentCancelled(ctx context.Context, ev event.Event) {
	c, err := o.repo.GetConsultationByAppointment(ctx, ev.EntityID)
	if err != nil {
		if errors.Is(err, ErrConsultationNotFound) {
			return
		}
		o.log.Error().Err(err).Str("appointment_id", ev.EntityID.String()).Msg("load consultation for cancel failed")
		return
	}
	if c.Status.IsTerminal() {
		return
	}

	if _, err := o.repo.UpdateConsultationStatus(ctx, c.ID, c.Status, ConsultationCancelled); err != nil && !errors.Is(err, ErrConsultationNotFound) {
		o.log.Error().Err(err).Str("consultation_id", c.ID.String()).Msg("cascade cancel failed")
	}
}

func (o *Orchestrator) provisionRoom(ctx context.Context, consultationID uuid.UUID) error {
	room, err := o.provider.CreateRoom(ctx, consultationID)
	if err != nil {
		metrics.ProviderFailuresTotal.Inc()
		return err
	}

	if _, err := o.repo.SetConsultationRoom(ctx, consultationID, room.RoomID, room.JoinURL); err != nil {
		return fmt.Errorf("store room: %w", err)
	}
	return nil
}

// requireParticipant admits the appointment's doctor and patient, plus
// admin/superadmin. Everything session-scoped goes through it.
func (o *Orchestrator) requireParticipant(ctx context.Context, actor identity.Actor, appointmentID uuid.UUID) error {
	if actor.IsAdmin() {
		return nil
	}
	appt, err := o.appts.GetByID(ctx, appointmentID)
	if err != nil {
		return fmt.Errorf("load appointment: %w", err)
	}
	if actor.ID != appt.DoctorID && actor.ID != appt.PatientID {
		return access.ErrForbidden
	}
	return nil
}

// RetryProvisioning requests a room for a consultation whose initial
// provisioning failed. No-op if the room already exists.
func (o *Orchestrator) RetryProvisioning(ctx context.Context, actor identity.Actor, consultationID uuid.UUID) (*VideoConsultation, error) {
	c, err := o.repo.GetConsultationByID(ctx, consultationID)
	if err != nil {
		return nil, err
	}
	if err := o.requireParticipant(ctx, actor, c.AppointmentID); err != nil {
		return nil, err
	}
	if c.RoomID != "" {
		return c, nil
	}
	if c.Status.IsTerminal() {
		return nil, ErrInvalidTransition
	}

	if err := o.provisionRoom(ctx, c.ID); err != nil {
		return nil, err
	}
	return o.repo.GetConsultationByID(ctx, consultationID)
}

// JoinSession marks the session in progress on first join by either
// participant; repeated joins are no-ops.
func (o *Orchestrator) JoinSession(ctx context.Context, consultationID, participantID uuid.UUID) (*VideoConsultation, error) {
	c, err := o.repo.GetConsultationByID(ctx, consultationID)
	if err != nil {
		return nil, err
	}

	appt, err := o.appts.GetByID(ctx, c.AppointmentID)
	if err != nil {
		return nil, fmt.Errorf("load appointment: %w", err)
	}
	if participantID != appt.DoctorID && participantID != appt.PatientID {
		return nil, access.ErrForbidden
	}

	switch c.Status {
	case ConsultationInProgress:
		return c, nil
	case ConsultationScheduled:
		updated, err := o.repo.UpdateConsultationStatus(ctx, c.ID, ConsultationScheduled, ConsultationInProgress)
		if err != nil {
			if errors.Is(err, ErrConsultationNotFound) {
				// Concurrent first join; re-read and accept.
				return o.repo.GetConsultationByID(ctx, consultationID)
			}
			return nil, fmt.Errorf("join session: %w", err)
		}
		return updated, nil
	default:
		return nil, ErrInvalidTransition
	}
}

// EndSession closes a session on behalf of one of its participants,
// whether or not anyone joined. Idempotent once ended.
func (o *Orchestrator) EndSession(ctx context.Context, actor identity.Actor, consultationID uuid.UUID) (*VideoConsultation, error) {
	c, err := o.repo.GetConsultationByID(ctx, consultationID)
	if err != nil {
		return nil, err
	}
	if err := o.requireParticipant(ctx, actor, c.AppointmentID); err != nil {
		return nil, err
	}
	return o.endSession(ctx, c)
}

// endSession is the transition itself, shared with the timeout sweep.
func (o *Orchestrator) endSession(ctx context.Context, c *VideoConsultation) (*VideoConsultation, error) {
	switch c.Status {
	case ConsultationEnded:
		return c, nil
	case ConsultationScheduled, ConsultationInProgress:
		updated, err := o.repo.UpdateConsultationStatus(ctx, c.ID, c.Status, ConsultationEnded)
		if err != nil {
			if errors.Is(err, ErrConsultationNotFound) {
				return o.repo.GetConsultationByID(ctx, c.ID)
			}
			return nil, fmt.Errorf("end session: %w", err)
		}
		return updated, nil
	default:
		return nil, ErrInvalidTransition
	}
}

// GetConsultationForAppointment is the read used by portals to surface
// the join URL. Visible to the appointment's parties and to staff.
func (o *Orchestrator) GetConsultationForAppointment(ctx context.Context, actor identity.Actor, appointmentID uuid.UUID) (*VideoConsultation, error) {
	c, err := o.repo.GetConsultationByAppointment(ctx, appointmentID)
	if err != nil {
		return nil, err
	}

	appt, err := o.appts.GetByID(ctx, c.AppointmentID)
	if err != nil {
		return nil, fmt.Errorf("load appointment: %w", err)
	}
	ownerID := appt.PatientID
	if actor.ID == appt.DoctorID {
		ownerID = appt.DoctorID
	}
	if err := access.Evaluate(actor, access.ActionView, ownerID, subscription.StatusUnsubscribed); err != nil {
		return nil, err
	}
	return c, nil
}

// IssuePrescription creates a prescription for an appointment that
// reached at least approved. The issuing doctor must own the
// appointment and hold an active subscription.
func (o *Orchestrator) IssuePrescription(ctx context.Context, actor identity.Actor, appointmentID uuid.UUID, details PrescriptionDetails) (*Prescription, error) {
	if details.Medication == "" || details.Dosage == "" || details.Frequency == "" {
		return nil, ErrValidation
	}

	appt, err := o.appts.GetByID(ctx, appointmentID)
	if err != nil {
		return nil, fmt.Errorf("load appointment: %w", err)
	}
	if !actor.IsAdmin() && actor.ID != appt.DoctorID {
		return nil, access.ErrForbidden
	}

	doctorStatus, err := o.entitlements.CurrentStatusForUser(ctx, appt.DoctorID)
	if err != nil {
		return nil, fmt.Errorf("resolve doctor entitlement: %w", err)
	}
	if err := access.Evaluate(actor, access.ActionIssuePrescription, appt.DoctorID, doctorStatus); err != nil {
		return nil, err
	}

	if appt.Status != scheduling.StatusApproved && appt.Status != scheduling.StatusCompleted {
		return nil, ErrInvalidTransition
	}

	now := time.Now().UTC()
	p := &Prescription{
		ID:             uuid.New(),
		AppointmentID:  appt.ID,
		DoctorID:       appt.DoctorID,
		PatientID:      appt.PatientID,
		Medication:     details.Medication,
		Dosage:         details.Dosage,
		Frequency:      details.Frequency,
		Instructions:   details.Instructions,
		DispatchStatus: DispatchReady,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := o.repo.CreatePrescription(ctx, p); err != nil {
		return nil, fmt.Errorf("create prescription: %w", err)
	}

	metrics.PrescriptionsIssuedTotal.Inc()
	o.bus.Publish(ctx, event.New(event.PrescriptionReady, p.ID, map[string]any{
		"appointment_id": p.AppointmentID.String(),
		"patient_id":     p.PatientID.String(),
	}))

	return p, nil
}

// Dispatch hands the prescription to a pharmacy: ready → sent.
func (o *Orchestrator) Dispatch(ctx context.Context, prescriptionID, pharmacyID uuid.UUID) (*Prescription, error) {
	if pharmacyID == uuid.Nil {
		return nil, ErrValidation
	}

	updated, err := o.repo.UpdateDispatchStatus(ctx, prescriptionID, DispatchReady, DispatchSent, &pharmacyID)
	if err != nil {
		if errors.Is(err, ErrPrescriptionNotFound) {
			if _, getErr := o.repo.GetPrescriptionByID(ctx, prescriptionID); getErr == nil {
				return nil, ErrInvalidTransition
			}
			return nil, ErrPrescriptionNotFound
		}
		return nil, fmt.Errorf("dispatch prescription: %w", err)
	}

	o.bus.Publish(ctx, event.New(event.PrescriptionDispatched, updated.ID, map[string]any{
		"pharmacy_id": pharmacyID.String(),
	}))

	return updated, nil
}

// ConfirmDelivery closes the dispatch flow: sent → delivered.
func (o *Orchestrator) ConfirmDelivery(ctx context.Context, prescriptionID uuid.UUID) (*Prescription, error) {
	updated, err := o.repo.UpdateDispatchStatus(ctx, prescriptionID, DispatchSent, DispatchDelivered, nil)
	if err != nil {
		if errors.Is(err, ErrPrescriptionNotFound) {
			if _, getErr := o.repo.GetPrescriptionByID(ctx, prescriptionID); getErr == nil {
				return nil, ErrInvalidTransition
			}
			return nil, ErrPrescriptionNotFound
		}
		return nil, fmt.Errorf("confirm delivery: %w", err)
	}
	return updated, nil
}

func (o *Orchestrator) GetPrescription(ctx context.Context, prescriptionID uuid.UUID) (*Prescription, error) {
	return o.repo.GetPrescriptionByID(ctx, prescriptionID)
}

// SweepStaleSessions force-ends sessions past the grace window after
// their scheduled end. Run periodically by the sweeper.
func (o *Orchestrator) SweepStaleSessions(ctx context.Context) error {
	cutoff := time.Now().Add(-o.cfg.SlotDuration - o.cfg.SessionGrace)
	stale, err := o.repo.FindStaleSessions(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("find stale sessions: %w", err)
	}

	for i := range stale {
		if _, err := o.endSession(ctx, &stale[i]); err != nil && !errors.Is(err, ErrInvalidTransition) {
			o.log.Error().Err(err).Str("consultation_id", stale[i].ID.String()).Msg("sweep end session failed")
		}
	}
	return nil
}
