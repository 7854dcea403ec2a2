package subscription

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrSubscriptionNotFound = errors.New("subscription not found")
	ErrInvalidTransition    = errors.New("invalid subscription status transition")
	ErrInvalidPeriod        = errors.New("subscription period end must be after its start and in the future")
	ErrInvalidPlan          = errors.New("invalid subscription plan")
)

// Repository contains all DB interactions needed by the ledger.
type Repository interface {
	Create(ctx context.Context, s *Subscription) error
	GetByID(ctx context.Context, id uuid.UUID) (*Subscription, error)

	// GetLatestByUser returns the most recently created subscription
	// for the user, whatever its status.
	GetLatestByUser(ctx context.Context, userID uuid.UUID) (*Subscription, error)
	GetActiveByUser(ctx context.Context, userID uuid.UUID) (*Subscription, error)

	// Conditional transitions: the update applies only when the row is
	// still in the expected status, so concurrent writers cannot both
	// win. ErrSubscriptionNotFound means the precondition failed.
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to Status) (*Subscription, error)
	UpdateStatusAndEndDate(ctx context.Context, id uuid.UUID, from, to Status, endDate time.Time) (*Subscription, error)

	// FindActiveEnded lists active subscriptions whose period ended,
	// for the optional eagerness sweep.
	FindActiveEnded(ctx context.Context, now time.Time) ([]Subscription, error)

	List(ctx context.Context, f Filter) (*PagedSubscriptions, error)
}

// UserStates is where the ledger denormalizes the owning user's
// current entitlement. The cache is never authoritative on its own.
type UserStates interface {
	SetSubscriptionState(ctx context.Context, userID uuid.UUID, status Status) error
}
