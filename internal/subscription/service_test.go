package subscription_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carebridge/telehealth-core/internal/event"
	"github.com/carebridge/telehealth-core/internal/identity"
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

func newTestLedger(t *testing.T) (*subscription.Ledger, *subscription.MemoryRepository, *user.MemoryRepository, *captureSink) {
	t.Helper()

	repo := subscription.NewMemoryRepository()
	users := user.NewMemoryRepository()
	sink := &captureSink{}
	bus := event.NewBus(sink, zerolog.Nop())
	return subscription.NewLedger(repo, users, bus, zerolog.Nop()), repo, users, sink
}

func seedUser(users *user.MemoryRepository, role identity.Role) uuid.UUID {
	id := uuid.New()
	users.Put(user.User{ID: id, Name: "Test User", Role: role, SubscriptionState: subscription.StatusUnsubscribed})
	return id
}

func TestCreatePendingValidation(t *testing.T) {
	ledger, _, users, _ := newTestLedger(t)
	userID := seedUser(users, identity.RolePatient)
	now := time.Now()

	_, err := ledger.CreatePending(context.Background(), userID, "weekly", now, now.AddDate(0, 1, 0), 2999, "USD", "")
	assert.ErrorIs(t, err, subscription.ErrInvalidPlan)

	_, err = ledger.CreatePending(context.Background(), userID, subscription.PlanMonthly, now, now, 2999, "USD", "")
	assert.ErrorIs(t, err, subscription.ErrInvalidPeriod)

	sub, err := ledger.CreatePending(context.Background(), userID, subscription.PlanMonthly, now, now.AddDate(0, 1, 0), 2999, "USD", "pay_123")
	require.NoError(t, err)
	assert.Equal(t, subscription.StatusPending, sub.Status)
	assert.Equal(t, time.UTC, sub.StartDate.Location())
}

func TestActivatePendingSubscription(t *testing.T) {
	ledger, _, users, sink := newTestLedger(t)
	userID := seedUser(users, identity.RolePatient)
	now := time.Now()

	sub, err := ledger.CreatePending(context.Background(), userID, subscription.PlanMonthly, now, now.AddDate(0, 1, 0), 2999, "USD", "")
	require.NoError(t, err)

	activated, err := ledger.Activate(context.Background(), sub.ID)
	require.NoError(t, err)
	assert.Equal(t, subscription.StatusActive, activated.Status)

	u, err := users.GetByID(context.Background(), userID)
	require.NoError(t, err)
	assert.Equal(t, subscription.StatusActive, u.SubscriptionState)

	require.Len(t, sink.ofType(event.SubscriptionActivated), 1)

	// Re-activating an already active subscription is rejected.
	_, err = ledger.Activate(context.Background(), sub.ID)
	assert.ErrorIs(t, err, subscription.ErrInvalidTransition)
}

func TestActivateSupersedesExistingActive(t *testing.T) {
	ledger, _, users, sink := newTestLedger(t)
	userID := seedUser(users, identity.RolePatient)
	now := time.Now()

	first, err := ledger.CreatePending(context.Background(), userID, subscription.PlanMonthly, now, now.AddDate(0, 1, 0), 2999, "USD", "")
	require.NoError(t, err)
	_, err = ledger.Activate(context.Background(), first.ID)
	require.NoError(t, err)

	second, err := ledger.CreatePending(context.Background(), userID, subscription.PlanYearly, now, now.AddDate(1, 0, 0), 29999, "USD", "")
	require.NoError(t, err)
	_, err = ledger.Activate(context.Background(), second.ID)
	require.NoError(t, err)

	got, err := ledger.Get(context.Background(), first.ID)
	require.NoError(t, err)
	assert.Equal(t, subscription.StatusExpired, got.Status, "previous active subscription must be superseded")

	got, err = ledger.Get(context.Background(), second.ID)
	require.NoError(t, err)
	assert.Equal(t, subscription.StatusActive, got.Status)

	assert.Len(t, sink.ofType(event.SubscriptionExpired), 1)
}

func TestLazyExpiryOnRead(t *testing.T) {
	ledger, _, users, sink := newTestLedger(t)
	userID := seedUser(users, identity.RolePatient)

	// Period already over at activation time: the next read expires it.
	start := time.Now().AddDate(0, -2, 0)
	end := time.Now().Add(-time.Hour)
	sub, err := ledger.CreatePending(context.Background(), userID, subscription.PlanMonthly, start, end, 2999, "USD", "")
	require.NoError(t, err)
	_, err = ledger.Activate(context.Background(), sub.ID)
	require.NoError(t, err)

	got, err := ledger.Get(context.Background(), sub.ID)
	require.NoError(t, err)
	assert.Equal(t, subscription.StatusExpired, got.Status)

	u, err := users.GetByID(context.Background(), userID)
	require.NoError(t, err)
	assert.Equal(t, subscription.StatusExpired, u.SubscriptionState)

	// Repeated reads stay expired and emit no further events.
	got, err = ledger.Get(context.Background(), sub.ID)
	require.NoError(t, err)
	assert.Equal(t, subscription.StatusExpired, got.Status)
	assert.Len(t, sink.ofType(event.SubscriptionExpired), 1)
}

func TestDeactivateAndReactivate(t *testing.T) {
	ledger, _, users, sink := newTestLedger(t)
	userID := seedUser(users, identity.RolePatient)
	now := time.Now()

	sub, err := ledger.CreatePending(context.Background(), userID, subscription.PlanMonthly, now, now.AddDate(0, 1, 0), 2999, "USD", "")
	require.NoError(t, err)
	_, err = ledger.Activate(context.Background(), sub.ID)
	require.NoError(t, err)

	deactivated, err := ledger.Deactivate(context.Background(), sub.ID)
	require.NoError(t, err)
	assert.Equal(t, subscription.StatusDeactivated, deactivated.Status)
	require.Len(t, sink.ofType(event.SubscriptionDeactivated), 1)

	// Deactivation is admin-driven, so it must not flip back on read.
	got, err := ledger.Get(context.Background(), sub.ID)
	require.NoError(t, err)
	assert.Equal(t, subscription.StatusDeactivated, got.Status)

	_, err = ledger.Deactivate(context.Background(), sub.ID)
	assert.ErrorIs(t, err, subscription.ErrInvalidTransition)

	_, err = ledger.Reactivate(context.Background(), sub.ID, now.Add(-time.Hour))
	assert.ErrorIs(t, err, subscription.ErrInvalidPeriod)

	newEnd := now.AddDate(0, 1, 0)
	reactivated, err := ledger.Reactivate(context.Background(), sub.ID, newEnd)
	require.NoError(t, err)
	assert.Equal(t, subscription.StatusActive, reactivated.Status)
	assert.WithinDuration(t, newEnd, reactivated.EndDate, time.Second)
}

func TestCurrentStatusForUser(t *testing.T) {
	ledger, _, users, _ := newTestLedger(t)
	userID := seedUser(users, identity.RolePatient)

	st, err := ledger.CurrentStatusForUser(context.Background(), userID)
	require.NoError(t, err)
	assert.Equal(t, subscription.StatusUnsubscribed, st)

	now := time.Now()
	sub, err := ledger.CreatePending(context.Background(), userID, subscription.PlanMonthly, now, now.AddDate(0, 1, 0), 2999, "USD", "")
	require.NoError(t, err)

	st, err = ledger.CurrentStatusForUser(context.Background(), userID)
	require.NoError(t, err)
	assert.Equal(t, subscription.StatusPending, st)

	_, err = ledger.Activate(context.Background(), sub.ID)
	require.NoError(t, err)

	st, err = ledger.CurrentStatusForUser(context.Background(), userID)
	require.NoError(t, err)
	assert.Equal(t, subscription.StatusActive, st)
}

func TestCurrentStatusForUserSurvivesPendingRenewal(t *testing.T) {
	ledger, _, users, _ := newTestLedger(t)
	userID := seedUser(users, identity.RoleDoctor)
	now := time.Now()

	sub, err := ledger.CreatePending(context.Background(), userID, subscription.PlanMonthly, now, now.AddDate(0, 1, 0), 2999, "USD", "")
	require.NoError(t, err)
	_, err = ledger.Activate(context.Background(), sub.ID)
	require.NoError(t, err)

	// Buying next month's renewal creates a newer pending record; the
	// current period's entitlement must not flip to pending.
	_, err = ledger.CreatePending(context.Background(), userID, subscription.PlanMonthly, now.AddDate(0, 1, 0), now.AddDate(0, 2, 0), 2999, "USD", "")
	require.NoError(t, err)

	st, err := ledger.CurrentStatusForUser(context.Background(), userID)
	require.NoError(t, err)
	assert.Equal(t, subscription.StatusActive, st)
}

func TestCurrentStatusForUserExpiredWithPendingRenewal(t *testing.T) {
	ledger, _, users, _ := newTestLedger(t)
	userID := seedUser(users, identity.RoleDoctor)

	// Active subscription whose period already ended, plus a pending
	// renewal: only once the active one lapses does the newer record
	// decide the status.
	start := time.Now().AddDate(0, -2, 0)
	sub, err := ledger.CreatePending(context.Background(), userID, subscription.PlanMonthly, start, time.Now().Add(-time.Hour), 2999, "USD", "")
	require.NoError(t, err)
	_, err = ledger.Activate(context.Background(), sub.ID)
	require.NoError(t, err)

	_, err = ledger.CreatePending(context.Background(), userID, subscription.PlanMonthly, time.Now(), time.Now().AddDate(0, 1, 0), 2999, "USD", "")
	require.NoError(t, err)

	st, err := ledger.CurrentStatusForUser(context.Background(), userID)
	require.NoError(t, err)
	assert.Equal(t, subscription.StatusPending, st)
}

func TestSweepExpired(t *testing.T) {
	ledger, _, users, sink := newTestLedger(t)
	userID := seedUser(users, identity.RolePatient)

	start := time.Now().AddDate(0, -2, 0)
	end := time.Now().Add(-time.Minute)
	sub, err := ledger.CreatePending(context.Background(), userID, subscription.PlanMonthly, start, end, 2999, "USD", "")
	require.NoError(t, err)
	_, err = ledger.Activate(context.Background(), sub.ID)
	require.NoError(t, err)

	require.NoError(t, ledger.SweepExpired(context.Background()))

	got, err := ledger.Get(context.Background(), sub.ID)
	require.NoError(t, err)
	assert.Equal(t, subscription.StatusExpired, got.Status)

	// A second sweep is a no-op.
	require.NoError(t, ledger.SweepExpired(context.Background()))
	assert.Len(t, sink.ofType(event.SubscriptionExpired), 1)
}
