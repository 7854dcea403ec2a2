package subscription

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/carebridge/telehealth-core/internal/event"
	"github.com/carebridge/telehealth-core/internal/metrics"
)

// Ledger owns subscription records and their status transitions. It is
// the only writer of the denormalized user entitlement state.
type Ledger struct {
	repo  Repository
	users UserStates
	bus   *event.Bus
	log   zerolog.Logger
}

func NewLedger(repo Repository, users UserStates, bus *event.Bus, log zerolog.Logger) *Ledger {
	return &Ledger{
		repo:  repo,
		users: users,
		bus:   bus,
		log:   log.With().Str("component", "subscription_ledger").Logger(),
	}
}

// CreatePending records a purchased-but-unconfirmed subscription. The
// payment provider's confirmation later activates it.
func (l *Ledger) CreatePending(ctx context.Context, userID uuid.UUID, plan Plan, start, end time.Time, amount int64, currency, paymentRef string) (*Subscription, error) {
	if !plan.IsValid() {
		return nil, ErrInvalidPlan
	}
	if !end.After(start) {
		return nil, ErrInvalidPeriod
	}

	now := time.Now().UTC()
	sub := &Subscription{
		ID:         uuid.New(),
		UserID:     userID,
		Plan:       plan,
		Status:     StatusPending,
		StartDate:  start.UTC(),
		EndDate:    end.UTC(),
		Amount:     amount,
		Currency:   currency,
		PaymentRef: paymentRef,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if err := l.repo.Create(ctx, sub); err != nil {
		return nil, fmt.Errorf("create pending subscription: %w", err)
	}
	return sub, nil
}

// Activate moves a pending subscription to active, superseding any
// other active subscription the user holds.
func (l *Ledger) Activate(ctx context.Context, id uuid.UUID) (*Subscription, error) {
	sub, err := l.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load subscription: %w", err)
	}
	if sub.Status != StatusPending {
		return nil, ErrInvalidTransition
	}

	if err := l.supersedeActive(ctx, sub.UserID, sub.ID); err != nil {
		return nil, err
	}

	updated, err := l.repo.UpdateStatus(ctx, sub.ID, StatusPending, StatusActive)
	if err != nil {
		if errors.Is(err, ErrSubscriptionNotFound) {
			return nil, ErrInvalidTransition
		}
		return nil, fmt.Errorf("activate subscription: %w", err)
	}

	l.setUserState(ctx, updated.UserID, StatusActive)
	l.bus.Publish(ctx, event.New(event.SubscriptionActivated, updated.ID, map[string]any{
		"user_id":  updated.UserID.String(),
		"plan":     string(updated.Plan),
		"end_date": updated.EndDate,
	}))

	return updated, nil
}

// ExpireIfDue is the lazy expiry applied on every read: an active
// subscription whose period has ended transitions to expired before
// the caller ever observes it. Idempotent; a lost race against a
// concurrent expiry is treated as already done.
func (l *Ledger) ExpireIfDue(ctx context.Context, sub *Subscription) (*Subscription, error) {
	if sub.Status != StatusActive || !sub.Ended(time.Now()) {
		return sub, nil
	}

	updated, err := l.repo.UpdateStatus(ctx, sub.ID, StatusActive, StatusExpired)
	if err != nil {
		if errors.Is(err, ErrSubscriptionNotFound) {
			return l.repo.GetByID(ctx, sub.ID)
		}
		return nil, fmt.Errorf("expire subscription: %w", err)
	}

	metrics.SubscriptionExpirationsTotal.Inc()
	l.setUserState(ctx, updated.UserID, StatusExpired)
	l.bus.Publish(ctx, event.New(event.SubscriptionExpired, updated.ID, map[string]any{
		"user_id": updated.UserID.String(),
	}))

	return updated, nil
}

// Deactivate is the manual admin suspension: active → deactivated.
// Distinct from natural expiry so renewal logic never silently
// reinstates it.
func (l *Ledger) Deactivate(ctx context.Context, id uuid.UUID) (*Subscription, error) {
	sub, err := l.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load subscription: %w", err)
	}
	if sub.Status != StatusActive {
		return nil, ErrInvalidTransition
	}

	updated, err := l.repo.UpdateStatus(ctx, sub.ID, StatusActive, StatusDeactivated)
	if err != nil {
		if errors.Is(err, ErrSubscriptionNotFound) {
			return nil, ErrInvalidTransition
		}
		return nil, fmt.Errorf("deactivate subscription: %w", err)
	}

	l.setUserState(ctx, updated.UserID, StatusDeactivated)
	l.bus.Publish(ctx, event.New(event.SubscriptionDeactivated, updated.ID, map[string]any{
		"user_id": updated.UserID.String(),
	}))

	return updated, nil
}

// Reactivate returns an expired or deactivated subscription to active
// with a new period end. The new end must be in the future.
func (l *Ledger) Reactivate(ctx context.Context, id uuid.UUID, newEndDate time.Time) (*Subscription, error) {
	if !newEndDate.After(time.Now()) {
		return nil, ErrInvalidPeriod
	}

	sub, err := l.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load subscription: %w", err)
	}
	if sub.Status != StatusExpired && sub.Status != StatusDeactivated {
		return nil, ErrInvalidTransition
	}

	if err := l.supersedeActive(ctx, sub.UserID, sub.ID); err != nil {
		return nil, err
	}

	updated, err := l.repo.UpdateStatusAndEndDate(ctx, sub.ID, sub.Status, StatusActive, newEndDate.UTC())
	if err != nil {
		if errors.Is(err, ErrSubscriptionNotFound) {
			return nil, ErrInvalidTransition
		}
		return nil, fmt.Errorf("reactivate subscription: %w", err)
	}

	l.setUserState(ctx, updated.UserID, StatusActive)
	l.bus.Publish(ctx, event.New(event.SubscriptionActivated, updated.ID, map[string]any{
		"user_id":  updated.UserID.String(),
		"end_date": updated.EndDate,
	}))

	return updated, nil
}

// Get returns the subscription with lazy expiry applied.
func (l *Ledger) Get(ctx context.Context, id uuid.UUID) (*Subscription, error) {
	sub, err := l.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return l.ExpireIfDue(ctx, sub)
}

// CurrentStatusForUser resolves the user's entitlement from the ledger
// itself, never from the denormalized cache. An active subscription
// wins over any newer record: a pending renewal must not revoke the
// entitlement the current period still grants. Users with no
// subscription history resolve to unsubscribed.
func (l *Ledger) CurrentStatusForUser(ctx context.Context, userID uuid.UUID) (Status, error) {
	active, err := l.repo.GetActiveByUser(ctx, userID)
	if err == nil {
		cur, err := l.ExpireIfDue(ctx, active)
		if err != nil {
			return "", err
		}
		if cur.Status == StatusActive {
			return StatusActive, nil
		}
	} else if !errors.Is(err, ErrSubscriptionNotFound) {
		return "", fmt.Errorf("load active subscription: %w", err)
	}

	sub, err := l.repo.GetLatestByUser(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrSubscriptionNotFound) {
			return StatusUnsubscribed, nil
		}
		return "", fmt.Errorf("load latest subscription: %w", err)
	}

	cur, err := l.ExpireIfDue(ctx, sub)
	if err != nil {
		return "", err
	}
	return cur.Status, nil
}

// List is a paginated read for admin views, with lazy expiry applied
// to each returned row so no stale active status escapes.
func (l *Ledger) List(ctx context.Context, f Filter) (*PagedSubscriptions, error) {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.PageSize <= 0 {
		f.PageSize = 20
	}
	if f.PageSize > 100 {
		f.PageSize = 100
	}

	page, err := l.repo.List(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("list subscriptions: %w", err)
	}

	for i := range page.Subscriptions {
		cur, err := l.ExpireIfDue(ctx, &page.Subscriptions[i])
		if err != nil {
			return nil, err
		}
		page.Subscriptions[i] = *cur
	}

	return page, nil
}

// SweepExpired eagerly expires ended subscriptions. Purely an
// optimization over the lazy path; correctness never depends on it.
func (l *Ledger) SweepExpired(ctx context.Context) error {
	due, err := l.repo.FindActiveEnded(ctx, time.Now())
	if err != nil {
		return fmt.Errorf("find ended subscriptions: %w", err)
	}

	for i := range due {
		if _, err := l.ExpireIfDue(ctx, &due[i]); err != nil {
			l.log.Error().Err(err).Str("subscription_id", due[i].ID.String()).Msg("sweep expire failed")
		}
	}

	return nil
}

// supersedeActive expires any other active subscription the user
// holds, keeping the one-active-per-user invariant.
func (l *Ledger) supersedeActive(ctx context.Context, userID, exceptID uuid.UUID) error {
	active, err := l.repo.GetActiveByUser(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrSubscriptionNotFound) {
			return nil
		}
		return fmt.Errorf("load active subscription: %w", err)
	}
	if active.ID == exceptID {
		return nil
	}

	if _, err := l.repo.UpdateStatus(ctx, active.ID, StatusActive, StatusExpired); err != nil {
		if errors.Is(err, ErrSubscriptionNotFound) {
			return nil
		}
		return fmt.Errorf("supersede active subscription: %w", err)
	}

	l.bus.Publish(ctx, event.New(event.SubscriptionExpired, active.ID, map[string]any{
		"user_id": userID.String(),
		"reason":  "superseded",
	}))

	return nil
}

func (l *Ledger) setUserState(ctx context.Context, userID uuid.UUID, status Status) {
	if err := l.users.SetSubscriptionState(ctx, userID, status); err != nil {
		l.log.Error().Err(err).Str("user_id", userID.String()).Msg("denormalize user subscription state failed")
	}
}
