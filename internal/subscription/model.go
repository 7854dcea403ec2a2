package subscription

import (
	"time"

	"github.com/google/uuid"
)

type Plan string

const (
	PlanMonthly Plan = "monthly"
	PlanYearly  Plan = "yearly"
)

func (p Plan) IsValid() bool {
	switch p {
	case PlanMonthly, PlanYearly:
		return true
	}
	return false
}

// Status machine:
//
//	unsubscribed → pending → active → {expired, deactivated} → active (reactivate)
//
// A user owns many subscription records over time but at most one in
// active status at once; activating a new record supersedes the old
// one by expiring it.
type Status string

const (
	StatusUnsubscribed Status = "unsubscribed"
	StatusPending      Status = "pending"
	StatusActive       Status = "active"
	StatusExpired      Status = "expired"
	StatusDeactivated  Status = "deactivated"
)

func (s Status) IsValid() bool {
	switch s {
	case StatusUnsubscribed, StatusPending, StatusActive, StatusExpired, StatusDeactivated:
		return true
	}
	return false
}

type Subscription struct {
	ID         uuid.UUID
	UserID     uuid.UUID
	Plan       Plan
	Status     Status
	StartDate  time.Time
	EndDate    time.Time
	Amount     int64 // minor currency units
	Currency   string
	PaymentRef string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Ended reports whether the paid period is over at the given instant.
func (s *Subscription) Ended(now time.Time) bool {
	return !now.Before(s.EndDate)
}

type Filter struct {
	UserID   *uuid.UUID
	Plan     *Plan
	Status   *Status
	Page     int
	PageSize int
}

type PagedSubscriptions struct {
	Subscriptions []Subscription
	TotalCount    int64
	Page          int
	PageSize      int
}
