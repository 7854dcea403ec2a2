package scheduling_test

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carebridge/telehealth-core/internal/access"
	"github.com/carebridge/telehealth-core/internal/event"
	"github.com/carebridge/telehealth-core/internal/identity"
	redisclient "github.com/carebridge/telehealth-core/internal/redis"
	"github.com/carebridge/telehealth-core/internal/scheduling"
	"github.com/carebridge/telehealth-core/internal/subscription"
	"github.com/carebridge/telehealth-core/internal/user"
)

type captureSink struct {
	mu     sync.Mutex
	events []event.Event
}

func (s *captureSink) Publish(_ context.Context, ev event.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
	return nil
}

func (s *captureSink) ofType(t event.Type) []event.Event {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []event.Event
	for _, ev := range s.events {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

type fixture struct {
	scheduler *scheduling.Scheduler
	repo      *scheduling.MemoryRepository
	users     *user.MemoryRepository
	ledger    *subscription.Ledger
	sink      *captureSink

	doctorID  uuid.UUID
	patientID uuid.UUID
}

func newFixture(t *testing.T, cfg scheduling.Config) *fixture {
	t.Helper()

	if cfg.SlotDuration == 0 {
		cfg.SlotDuration = 30 * time.Minute
	}

	repo := scheduling.NewMemoryRepository()
	users := user.NewMemoryRepository()
	subRepo := subscription.NewMemoryRepository()
	sink := &captureSink{}
	bus := event.NewBus(sink, zerolog.Nop())
	ledger := subscription.NewLedger(subRepo, users, bus, zerolog.Nop())

	f := &fixture{
		scheduler: scheduling.NewScheduler(repo, users, ledger, redisclient.NewLocalLocker(), bus, cfg, zerolog.Nop()),
		repo:      repo,
		users:     users,
		ledger:    ledger,
		sink:      sink,
		doctorID:  uuid.New(),
		patientID: uuid.New(),
	}

	users.Put(user.User{ID: f.doctorID, Name: "Dr Fixture", Role: identity.RoleDoctor})
	users.Put(user.User{ID: f.patientID, Name: "Pat Fixture", Role: identity.RolePatient})
	f.activateSubscription(t, f.doctorID)

	return f
}

func (f *fixture) activateSubscription(t *testing.T, userID uuid.UUID) {
	t.Helper()
	now := time.Now()
	sub, err := f.ledger.CreatePending(context.Background(), userID, subscription.PlanMonthly, now, now.AddDate(0, 1, 0), 2999, "USD", "")
	require.NoError(t, err)
	_, err = f.ledger.Activate(context.Background(), sub.ID)
	require.NoError(t, err)
}

func (f *fixture) patient() identity.Actor {
	return identity.Actor{ID: f.patientID, Role: identity.RolePatient}
}

func (f *fixture) doctor() identity.Actor {
	return identity.Actor{ID: f.doctorID, Role: identity.RoleDoctor}
}

func TestBookValidation(t *testing.T) {
	f := newFixture(t, scheduling.Config{})
	future := time.Now().Add(24 * time.Hour)

	_, err := f.scheduler.Book(context.Background(), f.patient(), f.doctorID, f.patientID, future, "")
	assert.ErrorIs(t, err, scheduling.ErrValidation)

	_, err = f.scheduler.Book(context.Background(), f.patient(), uuid.Nil, f.patientID, future, "checkup")
	assert.ErrorIs(t, err, scheduling.ErrValidation)

	_, err = f.scheduler.Book(context.Background(), f.patient(), f.doctorID, f.patientID, time.Now().Add(-time.Minute), "checkup")
	assert.ErrorIs(t, err, scheduling.ErrPastDate)

	// Booking against a non-doctor user is rejected outright.
	_, err = f.scheduler.Book(context.Background(), f.patient(), f.patientID, f.patientID, future, "checkup")
	assert.ErrorIs(t, err, scheduling.ErrValidation)
}

func TestBookRequiresEntitledDoctor(t *testing.T) {
	f := newFixture(t, scheduling.Config{})

	unentitled := uuid.New()
	f.users.Put(user.User{ID: unentitled, Name: "Dr Lapsed", Role: identity.RoleDoctor})

	_, err := f.scheduler.Book(context.Background(), f.patient(), unentitled, f.patientID, time.Now().Add(24*time.Hour), "checkup")
	assert.ErrorIs(t, err, access.ErrDoctorUnavailable)
}

func TestBookConflictWindow(t *testing.T) {
	f := newFixture(t, scheduling.Config{SlotDuration: 30 * time.Minute})
	base := time.Now().Add(24 * time.Hour).Truncate(time.Minute)

	first, err := f.scheduler.Book(context.Background(), f.patient(), f.doctorID, f.patientID, base, "checkup")
	require.NoError(t, err)
	assert.Equal(t, scheduling.StatusPending, first.Status)

	// Anything closer than the slot duration collides, in both directions.
	_, err = f.scheduler.Book(context.Background(), f.patient(), f.doctorID, f.patientID, base.Add(15*time.Minute), "follow-up")
	assert.ErrorIs(t, err, scheduling.ErrSchedulingConflict)

	_, err = f.scheduler.Book(context.Background(), f.patient(), f.doctorID, f.patientID, base.Add(-15*time.Minute), "follow-up")
	assert.ErrorIs(t, err, scheduling.ErrSchedulingConflict)

	// Exactly one slot away is free.
	_, err = f.scheduler.Book(context.Background(), f.patient(), f.doctorID, f.patientID, base.Add(30*time.Minute), "follow-up")
	assert.NoError(t, err)

	// A cancelled appointment frees its slot.
	_, err = f.scheduler.Cancel(context.Background(), f.patient(), first.ID)
	require.NoError(t, err)
	_, err = f.scheduler.Book(context.Background(), f.patient(), f.doctorID, f.patientID, base, "retry")
	assert.NoError(t, err)
}

func TestBookConcurrentSameSlot(t *testing.T) {
	f := newFixture(t, scheduling.Config{SlotDuration: 30 * time.Minute})
	at := time.Now().Add(24 * time.Hour)

	otherPatient := uuid.New()
	f.users.Put(user.User{ID: otherPatient, Name: "Second Patient", Role: identity.RolePatient})

	type result struct {
		appt *scheduling.Appointment
		err  error
	}
	results := make(chan result, 2)

	var wg sync.WaitGroup
	for _, pid := range []uuid.UUID{f.patientID, otherPatient} {
		wg.Add(1)
		go func(pid uuid.UUID) {
			defer wg.Done()
			actor := identity.Actor{ID: pid, Role: identity.RolePatient}
			appt, err := f.scheduler.Book(context.Background(), actor, f.doctorID, pid, at, "checkup")
			results <- result{appt, err}
		}(pid)
	}
	wg.Wait()
	close(results)

	var succeeded, conflicted int
	for r := range results {
		switch {
		case r.err == nil:
			succeeded++
		case assert.ErrorIs(t, r.err, scheduling.ErrSchedulingConflict):
			conflicted++
		}
	}
	assert.Equal(t, 1, succeeded, "exactly one concurrent booking must win")
	assert.Equal(t, 1, conflicted)
}

// busyLocker simulates a held per-doctor lock.
type busyLocker struct{}

func (busyLocker) WithDoctorLock(_ context.Context, _ uuid.UUID, _ func(ctx context.Context) error) error {
	return redisclient.ErrLockNotAcquired
}

func TestBookBusyLockFallsThroughToStorage(t *testing.T) {
	f := newFixture(t, scheduling.Config{SlotDuration: 30 * time.Minute})
	base := time.Now().Add(24 * time.Hour).Truncate(time.Minute)

	taken, err := f.scheduler.Book(context.Background(), f.patient(), f.doctorID, f.patientID, base, "checkup")
	require.NoError(t, err)

	busy := scheduling.NewScheduler(f.repo, f.users, f.ledger, busyLocker{}, event.NewBus(f.sink, zerolog.Nop()), scheduling.Config{
		SlotDuration: 30 * time.Minute,
	}, zerolog.Nop())

	// A held lock means a concurrent booking for this doctor, not a
	// window collision: a non-overlapping request still succeeds off
	// the atomic storage check.
	appt, err := busy.Book(context.Background(), f.patient(), f.doctorID, f.patientID, base.Add(2*time.Hour), "follow-up")
	require.NoError(t, err)
	assert.Equal(t, scheduling.StatusPending, appt.Status)

	// An overlapping request still conflicts.
	_, err = busy.Book(context.Background(), f.patient(), f.doctorID, f.patientID, taken.Time.Add(10*time.Minute), "follow-up")
	assert.ErrorIs(t, err, scheduling.ErrSchedulingConflict)
}

func TestApproveLifecycle(t *testing.T) {
	f := newFixture(t, scheduling.Config{})
	appt, err := f.scheduler.Book(context.Background(), f.patient(), f.doctorID, f.patientID, time.Now().Add(24*time.Hour), "checkup")
	require.NoError(t, err)

	// Only the owning doctor or an admin may approve.
	_, err = f.scheduler.Approve(context.Background(), f.patient(), appt.ID)
	assert.ErrorIs(t, err, access.ErrForbidden)

	approved, err := f.scheduler.Approve(context.Background(), f.doctor(), appt.ID)
	require.NoError(t, err)
	assert.Equal(t, scheduling.StatusApproved, approved.Status)
	require.Len(t, f.sink.ofType(event.AppointmentApproved), 1)

	_, err = f.scheduler.Approve(context.Background(), f.doctor(), appt.ID)
	assert.ErrorIs(t, err, scheduling.ErrInvalidTransition)
}

func TestApproveRequiresActiveSubscription(t *testing.T) {
	f := newFixture(t, scheduling.Config{})
	appt, err := f.scheduler.Book(context.Background(), f.patient(), f.doctorID, f.patientID, time.Now().Add(24*time.Hour), "checkup")
	require.NoError(t, err)

	// Doctor's subscription lapses between booking and approval.
	sub, err := f.ledger.CurrentStatusForUser(context.Background(), f.doctorID)
	require.NoError(t, err)
	require.Equal(t, subscription.StatusActive, sub)

	active, err := f.ledger.List(context.Background(), subscription.Filter{UserID: &f.doctorID})
	require.NoError(t, err)
	require.Len(t, active.Subscriptions, 1)
	_, err = f.ledger.Deactivate(context.Background(), active.Subscriptions[0].ID)
	require.NoError(t, err)

	_, err = f.scheduler.Approve(context.Background(), f.doctor(), appt.ID)
	assert.ErrorIs(t, err, access.ErrSubscriptionRequired)
}

func TestApproveSurvivesPendingRenewal(t *testing.T) {
	f := newFixture(t, scheduling.Config{})
	appt, err := f.scheduler.Book(context.Background(), f.patient(), f.doctorID, f.patientID, time.Now().Add(24*time.Hour), "checkup")
	require.NoError(t, err)

	// The doctor buys next month's renewal before approving: the newer
	// pending record must not mask the still-active entitlement.
	now := time.Now()
	_, err = f.ledger.CreatePending(context.Background(), f.doctorID, subscription.PlanMonthly, now.AddDate(0, 1, 0), now.AddDate(0, 2, 0), 2999, "USD", "")
	require.NoError(t, err)

	approved, err := f.scheduler.Approve(context.Background(), f.doctor(), appt.ID)
	require.NoError(t, err)
	assert.Equal(t, scheduling.StatusApproved, approved.Status)
}

func TestDeclineAndCancel(t *testing.T) {
	f := newFixture(t, scheduling.Config{})
	appt, err := f.scheduler.Book(context.Background(), f.patient(), f.doctorID, f.patientID, time.Now().Add(24*time.Hour), "checkup")
	require.NoError(t, err)

	// A stranger cannot decline or cancel.
	stranger := identity.Actor{ID: uuid.New(), Role: identity.RolePatient}
	_, err = f.scheduler.Decline(context.Background(), stranger, appt.ID)
	assert.ErrorIs(t, err, access.ErrForbidden)
	_, err = f.scheduler.Cancel(context.Background(), stranger, appt.ID)
	assert.ErrorIs(t, err, access.ErrForbidden)

	declined, err := f.scheduler.Decline(context.Background(), f.doctor(), appt.ID)
	require.NoError(t, err)
	assert.Equal(t, scheduling.StatusCancelled, declined.Status)
	require.Len(t, f.sink.ofType(event.AppointmentCancelled), 1)

	// Terminal states reject further cancellation.
	_, err = f.scheduler.Cancel(context.Background(), f.patient(), appt.ID)
	assert.ErrorIs(t, err, scheduling.ErrInvalidTransition)
}

func TestCancelCutoff(t *testing.T) {
	f := newFixture(t, scheduling.Config{CancelCutoff: 48 * time.Hour})
	appt, err := f.scheduler.Book(context.Background(), f.patient(), f.doctorID, f.patientID, time.Now().Add(24*time.Hour), "checkup")
	require.NoError(t, err)

	// Inside the cutoff window cancellation is closed.
	_, err = f.scheduler.Cancel(context.Background(), f.patient(), appt.ID)
	assert.ErrorIs(t, err, scheduling.ErrInvalidTransition)
}

func TestCompleteLifecycle(t *testing.T) {
	f := newFixture(t, scheduling.Config{})

	// Pending appointments cannot complete.
	appt, err := f.scheduler.Book(context.Background(), f.patient(), f.doctorID, f.patientID, time.Now().Add(24*time.Hour), "checkup")
	require.NoError(t, err)
	_, err = f.scheduler.Complete(context.Background(), appt.ID)
	assert.ErrorIs(t, err, scheduling.ErrInvalidTransition)

	// An approved appointment in the future has not elapsed yet.
	_, err = f.scheduler.Approve(context.Background(), f.doctor(), appt.ID)
	require.NoError(t, err)
	_, err = f.scheduler.Complete(context.Background(), appt.ID)
	assert.ErrorIs(t, err, scheduling.ErrInvalidTransition)

	// Seed an elapsed approved appointment directly.
	elapsed := scheduling.Appointment{
		ID:        uuid.New(),
		DoctorID:  f.doctorID,
		PatientID: f.patientID,
		Time:      time.Now().Add(-time.Hour).UTC(),
		Reason:    "checkup",
		Status:    scheduling.StatusApproved,
	}
	f.repo.Put(elapsed)

	completed, err := f.scheduler.Complete(context.Background(), elapsed.ID)
	require.NoError(t, err)
	assert.Equal(t, scheduling.StatusCompleted, completed.Status)

	// Complete is idempotent.
	again, err := f.scheduler.Complete(context.Background(), elapsed.ID)
	require.NoError(t, err)
	assert.Equal(t, scheduling.StatusCompleted, again.Status)
	assert.Len(t, f.sink.ofType(event.AppointmentCompleted), 1)
}

func TestSweepCompletable(t *testing.T) {
	f := newFixture(t, scheduling.Config{})

	old := scheduling.Appointment{
		ID:        uuid.New(),
		DoctorID:  f.doctorID,
		PatientID: f.patientID,
		Time:      time.Now().Add(-2 * time.Hour).UTC(),
		Reason:    "checkup",
		Status:    scheduling.StatusApproved,
	}
	f.repo.Put(old)

	recent := scheduling.Appointment{
		ID:        uuid.New(),
		DoctorID:  f.doctorID,
		PatientID: f.patientID,
		Time:      time.Now().Add(-5 * time.Minute).UTC(),
		Reason:    "checkup",
		Status:    scheduling.StatusApproved,
	}
	f.repo.Put(recent)

	require.NoError(t, f.scheduler.SweepCompletable(context.Background(), 30*time.Minute, 15*time.Minute))

	got, err := f.repo.GetByID(context.Background(), old.ID)
	require.NoError(t, err)
	assert.Equal(t, scheduling.StatusCompleted, got.Status)

	got, err = f.repo.GetByID(context.Background(), recent.ID)
	require.NoError(t, err)
	assert.Equal(t, scheduling.StatusApproved, got.Status, "appointment still inside the grace window stays approved")
}

func TestGetVisibility(t *testing.T) {
	f := newFixture(t, scheduling.Config{})
	appt, err := f.scheduler.Book(context.Background(), f.patient(), f.doctorID, f.patientID, time.Now().Add(24*time.Hour), "checkup")
	require.NoError(t, err)

	for _, actor := range []identity.Actor{
		f.patient(),
		f.doctor(),
		{ID: uuid.New(), Role: identity.RoleAdmin},
		{ID: uuid.New(), Role: identity.RoleSupport},
	} {
		_, err := f.scheduler.Get(context.Background(), actor, appt.ID)
		assert.NoError(t, err, "role %s", actor.Role)
	}

	stranger := identity.Actor{ID: uuid.New(), Role: identity.RolePatient}
	_, err = f.scheduler.Get(context.Background(), stranger, appt.ID)
	assert.ErrorIs(t, err, access.ErrForbidden)
}

func TestListScoping(t *testing.T) {
	f := newFixture(t, scheduling.Config{})

	otherPatient := uuid.New()
	f.users.Put(user.User{ID: otherPatient, Name: "Second Patient", Role: identity.RolePatient})

	base := time.Now().Add(24 * time.Hour)
	_, err := f.scheduler.Book(context.Background(), f.patient(), f.doctorID, f.patientID, base, "checkup")
	require.NoError(t, err)
	other := identity.Actor{ID: otherPatient, Role: identity.RolePatient}
	_, err = f.scheduler.Book(context.Background(), other, f.doctorID, otherPatient, base.Add(time.Hour), "checkup")
	require.NoError(t, err)

	// A patient sees only their own appointments, filter or not.
	page, err := f.scheduler.List(context.Background(), f.patient(), scheduling.Filter{PatientID: &otherPatient})
	require.NoError(t, err)
	require.Len(t, page.Appointments, 1)
	assert.Equal(t, f.patientID, page.Appointments[0].PatientID)

	// The doctor sees both.
	page, err = f.scheduler.List(context.Background(), f.doctor(), scheduling.Filter{})
	require.NoError(t, err)
	assert.Len(t, page.Appointments, 2)

	// Admin has full visibility.
	admin := identity.Actor{ID: uuid.New(), Role: identity.RoleAdmin}
	page, err = f.scheduler.List(context.Background(), admin, scheduling.Filter{})
	require.NoError(t, err)
	assert.EqualValues(t, 2, page.TotalCount)
}

func TestStatusTransitionEdges(t *testing.T) {
	assert.True(t, scheduling.StatusPending.CanTransitionTo(scheduling.StatusApproved))
	assert.True(t, scheduling.StatusPending.CanTransitionTo(scheduling.StatusCancelled))
	assert.True(t, scheduling.StatusApproved.CanTransitionTo(scheduling.StatusCancelled))
	assert.True(t, scheduling.StatusApproved.CanTransitionTo(scheduling.StatusCompleted))

	assert.False(t, scheduling.StatusPending.CanTransitionTo(scheduling.StatusCompleted))
	assert.False(t, scheduling.StatusApproved.CanTransitionTo(scheduling.StatusApproved))
	for _, terminal := range []scheduling.AppointmentStatus{scheduling.StatusCancelled, scheduling.StatusCompleted} {
		for _, to := range []scheduling.AppointmentStatus{scheduling.StatusPending, scheduling.StatusApproved, scheduling.StatusCancelled, scheduling.StatusCompleted} {
			assert.False(t, terminal.CanTransitionTo(to), "%s -> %s", terminal, to)
		}
	}
}

func TestAppointmentTimeRoundTrip(t *testing.T) {
	instant := time.Date(2025, 6, 10, 14, 30, 0, 0, time.UTC)
	appt := scheduling.Appointment{
		ID:       uuid.New(),
		DoctorID: uuid.New(),
		Time:     instant,
		Status:   scheduling.StatusPending,
	}

	raw, err := json.Marshal(appt)
	require.NoError(t, err)

	var back scheduling.Appointment
	require.NoError(t, json.Unmarshal(raw, &back))
	assert.True(t, back.Time.Equal(instant), "serialized instant must survive a round trip unchanged")
}
