package user

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/carebridge/telehealth-core/internal/identity"
	"github.com/carebridge/telehealth-core/internal/subscription"
)

var ErrUserNotFound = errors.New("user not found")

// User is the identity anchor. SubscriptionState is a cache of the
// user's current entitlement, written only by the subscription ledger
// and never authoritative on its own.
type User struct {
	ID                uuid.UUID
	Name              string
	Email             *string
	Role              identity.Role
	SubscriptionState subscription.Status
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

type Repository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*User, error)

	// SetSubscriptionState satisfies subscription.UserStates.
	SetSubscriptionState(ctx context.Context, userID uuid.UUID, status subscription.Status) error
}
