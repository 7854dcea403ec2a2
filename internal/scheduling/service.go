package scheduling

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
	redisclient "github.com/carebridge/telehealth-core/internal/redis"
	"github.com/carebridge/telehealth-core/internal/subscription"
	"github.com/carebridge/telehealth-core/internal/user"
)

// Entitlements resolves a user's current subscription status with lazy
// expiry applied. Implemented by the subscription ledger.
type Entitlements interface {
	CurrentStatusForUser(ctx context.Context, userID uuid.UUID) (subscription.Status, error)
}

type Config struct {
	SlotDuration time.Duration // conflict window around the requested instant
	CancelCutoff time.Duration // cancellation closes this long before the appointment
}

// Scheduler owns the appointment lifecycle and the conflict-free
// booking invariant. It is the only writer of appointment status.
type Scheduler struct {
	repo         Repository
	users        user.Repository
	entitlements Entitlements
	locker       redisclient.Locker
	bus          *event.Bus
	cfg          Config
	log          zerolog.Logger
}

func NewScheduler(repo Repository, users user.Repository, entitlements Entitlements, locker redisclient.Locker, bus *event.Bus, cfg Config, log zerolog.Logger) *Scheduler {
	return &Scheduler{
		repo:         repo,
		users:        users,
		entitlements: entitlements,
		locker:       locker,
		bus:          bus,
		cfg:          cfg,
		log:          log.With().Str("component", "scheduler").Logger(),
	}
}

// Book reserves a consultation for a patient with a doctor. The
// conflict check and insert run under a per-doctor lock so two
// concurrent bookings for the same doctor cannot both succeed; the
// storage layer additionally enforces the window check atomically.
func (s *Scheduler) Book(ctx context.Context, actor identity.Actor, doctorID, patientID uuid.UUID, at time.Time, reason string) (*Appointment, error) {
	if doctorID == uuid.Nil || patientID == uuid.Nil || reason == "" {
		return nil, ErrValidation
	}

	at = at.UTC()
	if !at.After(time.Now()) {
		return nil, ErrPastDate
	}

	doctor, err := s.users.GetByID(ctx, doctorID)
	if err != nil {
		return nil, fmt.Errorf("load doctor: %w", err)
	}
	if doctor.Role != identity.RoleDoctor {
		return nil, ErrValidation
	}
	if _, err := s.users.GetByID(ctx, patientID); err != nil {
		return nil, fmt.Errorf("load patient: %w", err)
	}

	doctorStatus, err := s.entitlements.CurrentStatusForUser(ctx, doctorID)
	if err != nil {
		return nil, fmt.Errorf("resolve doctor entitlement: %w", err)
	}
	if err := access.Evaluate(actor, access.ActionBookAppointment, doctorID, doctorStatus); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	appt := &Appointment{
		ID:        uuid.New(),
		DoctorID:  doctorID,
		PatientID: patientID,
		Time:      at,
		Reason:    reason,
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}

	var created *Appointment
	err = s.locker.WithDoctorLock(ctx, doctorID, func(lockCtx context.Context) error {
		a, err := s.repo.CreateIfFree(lockCtx, appt, s.cfg.SlotDuration)
		if err != nil {
			return err
		}
		created = a
		return nil
	})
	if errors.Is(err, redisclient.ErrLockNotAcquired) {
		// A busy lock only means another booking for this doctor is in
		// flight, not that the requested window is taken. The
		// conditional insert is atomic on its own, so ask storage.
		created, err = s.repo.CreateIfFree(ctx, appt, s.cfg.SlotDuration)
	}
	if err != nil {
		if errors.Is(err, ErrSchedulingConflict) {
			metrics.BookingConflictsTotal.Inc()
		}
		return nil, err
	}

	metrics.BookingsTotal.Inc()
	s.bus.Publish(ctx, event.New(event.AppointmentBooked, created.ID, map[string]any{
		"doctor_id":  created.DoctorID.String(),
		"patient_id": created.PatientID.String(),
		"time":       created.Time,
	}))

	return created, nil
}

// Approve moves a pending appointment to approved. Only the owning
// doctor (or an admin) may approve, and the doctor must hold an active
// subscription at approval time.
func (s *Scheduler) Approve(ctx context.Context, actor identity.Actor, appointmentID uuid.UUID) (*Appointment, error) {
	appt, err := s.repo.GetByID(ctx, appointmentID)
	if err != nil {
		return nil, err
	}
	if !actor.IsAdmin() && actor.ID != appt.DoctorID {
		return nil, access.ErrForbidden
	}

	doctorStatus, err := s.entitlements.CurrentStatusForUser(ctx, appt.DoctorID)
	if err != nil {
		return nil, fmt.Errorf("resolve doctor entitlement: %w", err)
	}
	if err := access.Evaluate(actor, access.ActionApproveAppointment, appt.DoctorID, doctorStatus); err != nil {
		return nil, err
	}

	if !appt.Status.CanTransitionTo(StatusApproved) {
		return nil, ErrInvalidTransition
	}

	updated, err := s.repo.UpdateStatus(ctx, appt.ID, StatusPending, StatusApproved)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, ErrInvalidTransition
		}
		return nil, fmt.Errorf("approve appointment: %w", err)
	}

	s.bus.Publish(ctx, event.New(event.AppointmentApproved, updated.ID, map[string]any{
		"doctor_id":  updated.DoctorID.String(),
		"patient_id": updated.PatientID.String(),
		"time":       updated.Time,
	}))

	return updated, nil
}

// Decline is the doctor rejecting a pending appointment; it shares the
// cancellation transition.
func (s *Scheduler) Decline(ctx context.Context, actor identity.Actor, appointmentID uuid.UUID) (*Appointment, error) {
	appt, err := s.repo.GetByID(ctx, appointmentID)
	if err != nil {
		return nil, err
	}
	if !actor.IsAdmin() && actor.ID != appt.DoctorID {
		return nil, access.ErrForbidden
	}
	return s.cancel(ctx, actor, appt)
}

// Cancel is available to either party of the appointment until the
// cancellation cutoff.
func (s *Scheduler) Cancel(ctx context.Context, actor identity.Actor, appointmentID uuid.UUID) (*Appointment, error) {
	appt, err := s.repo.GetByID(ctx, appointmentID)
	if err != nil {
		return nil, err
	}
	return s.cancel(ctx, actor, appt)
}

func (s *Scheduler) cancel(ctx context.Context, actor identity.Actor, appt *Appointment) (*Appointment, error) {
	ownerID := appt.PatientID
	if actor.ID == appt.DoctorID {
		ownerID = appt.DoctorID
	}
	if err := access.Evaluate(actor, access.ActionCancel, ownerID, subscription.StatusUnsubscribed); err != nil {
		return nil, err
	}

	if !appt.Status.CanTransitionTo(StatusCancelled) {
		return nil, ErrInvalidTransition
	}

	deadline := appt.Time.Add(-s.cfg.CancelCutoff)
	if !time.Now().Before(deadline) {
		return nil, ErrInvalidTransition
	}

	updated, err := s.repo.UpdateStatus(ctx, appt.ID, appt.Status, StatusCancelled)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, ErrInvalidTransition
		}
		return nil, fmt.Errorf("cancel appointment: %w", err)
	}

	s.bus.Publish(ctx, event.New(event.AppointmentCancelled, updated.ID, map[string]any{
		"doctor_id":    updated.DoctorID.String(),
		"patient_id":   updated.PatientID.String(),
		"cancelled_by": actor.ID.String(),
	}))

	return updated, nil
}

// Complete closes an approved appointment once its scheduled instant
// has elapsed. Idempotent when already completed.
func (s *Scheduler) Complete(ctx context.Context, appointmentID uuid.UUID) (*Appointment, error) {
	appt, err := s.repo.GetByID(ctx, appointmentID)
	if err != nil {
		return nil, err
	}
	if appt.Status == StatusCompleted {
		return appt, nil
	}
	if !appt.Status.CanTransitionTo(StatusCompleted) {
		return nil, ErrInvalidTransition
	}
	if time.Now().Before(appt.Time) {
		return nil, ErrInvalidTransition
	}

	updated, err := s.repo.UpdateStatus(ctx, appt.ID, StatusApproved, StatusCompleted)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			// Lost the race: either completed concurrently (fine) or
			// cancelled underneath us.
			cur, getErr := s.repo.GetByID(ctx, appt.ID)
			if getErr == nil && cur.Status == StatusCompleted {
				return cur, nil
			}
			return nil, ErrInvalidTransition
		}
		return nil, fmt.Errorf("complete appointment: %w", err)
	}

	s.bus.Publish(ctx, event.New(event.AppointmentCompleted, updated.ID, map[string]any{
		"doctor_id":  updated.DoctorID.String(),
		"patient_id": updated.PatientID.String(),
	}))

	return updated, nil
}

// Get returns a single appointment, visible to its parties and to
// admin/support.
func (s *Scheduler) Get(ctx context.Context, actor identity.Actor, appointmentID uuid.UUID) (*Appointment, error) {
	appt, err := s.repo.GetByID(ctx, appointmentID)
	if err != nil {
		return nil, err
	}

	ownerID := appt.PatientID
	if actor.ID == appt.DoctorID {
		ownerID = appt.DoctorID
	}
	if err := access.Evaluate(actor, access.ActionView, ownerID, subscription.StatusUnsubscribed); err != nil {
		return nil, err
	}
	return appt, nil
}

// List is a paginated read. Non-privileged actors only ever see their
// own appointments; the filter is scoped before it reaches storage.
func (s *Scheduler) List(ctx context.Context, actor identity.Actor, f Filter) (*PagedAppointments, error) {
	switch {
	case actor.IsAdmin() || actor.Role == identity.RoleSupport:
		// full visibility
	case actor.Role == identity.RoleDoctor:
		id := actor.ID
		f.DoctorID = &id
	case actor.Role == identity.RolePatient:
		id := actor.ID
		f.PatientID = &id
	default:
		return nil, access.ErrForbidden
	}

	if f.Page < 1 {
		f.Page = 1
	}
	if f.PageSize <= 0 {
		f.PageSize = 20
	}
	if f.PageSize > 100 {
		f.PageSize = 100
	}

	page, err := s.repo.List(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	return page, nil
}

// SweepCompletable promotes approved appointments whose slot ended at
// least grace ago to completed. Eagerness only; the explicit Complete
// operation remains authoritative.
func (s *Scheduler) SweepCompletable(ctx context.Context, slotDuration, grace time.Duration) error {
	cutoff := time.Now().Add(-slotDuration - grace)
	due, err := s.repo.FindApprovedEndedBefore(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("find completable appointments: %w", err)
	}

	for _, appt := range due {
		if _, err := s.Complete(ctx, appt.ID); err != nil && !errors.Is(err, ErrInvalidTransition) {
			s.log.Error().Err(err).Str("appointment_id", appt.ID.String()).Msg("sweep complete failed")
		}
	}
	return nil
}
