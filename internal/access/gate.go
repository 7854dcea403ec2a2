package access

import (
	"errors"

	"github.com/google/uuid"

	"github.com/carebridge/telehealth-core/internal/identity"
	"github.com/carebridge/telehealth-core/internal/subscription"
)

var (
	ErrForbidden            = errors.New("forbidden")
	ErrSubscriptionRequired = errors.New("active subscription required")
	ErrDoctorUnavailable    = errors.New("doctor has no active subscription")
)

type Action string

const (
	ActionView                   Action = "view"
	ActionList                   Action = "list"
	ActionCancel                 Action = "cancel"
	ActionBookAppointment        Action = "book_appointment"
	ActionApproveAppointment     Action = "approve_appointment"
	ActionIssuePrescription      Action = "issue_prescription"
	ActionDeactivateSubscription Action = "deactivate_subscription"
	ActionManageSubscriptions    Action = "manage_subscriptions"
)

func (a Action) isRead() bool {
	return a == ActionView || a == ActionList
}

// doctor-privileged actions require the acting doctor's subscription
// to be active at evaluation time.
func (a Action) isDoctorPrivileged() bool {
	return a == ActionApproveAppointment || a == ActionIssuePrescription
}

// Evaluate is the single authorization policy table. Rules are ordered;
// the first match wins. subStatus is the relevant resolved subscription
// status: the actor's own for doctor-privileged actions, the target
// doctor's for booking. Callers pass StatusUnsubscribed when the action
// never inspects it.
//
//  1. admin/superadmin: full bypass.
//  2. support: reads only.
//  3. view/cancel: resource owner, regardless of subscription.
//  4. approve/issue: doctor with an active subscription.
//  5. book: any patient, unless the target doctor is not entitled.
//  6. default deny.
func Evaluate(actor identity.Actor, action Action, resourceOwnerID uuid.UUID, subStatus subscription.Status) error {
	if actor.IsAdmin() {
		return nil
	}

	if actor.Role == identity.RoleSupport {
		if action.isRead() {
			return nil
		}
		return ErrForbidden
	}

	if (action == ActionView || action == ActionCancel) && actor.ID == resourceOwnerID {
		return nil
	}

	if action.isDoctorPrivileged() {
		if actor.Role != identity.RoleDoctor {
			return ErrForbidden
		}
		if subStatus != subscription.StatusActive {
			return ErrSubscriptionRequired
		}
		return nil
	}

	if action == ActionBookAppointment {
		if actor.Role != identity.RolePatient {
			return ErrForbidden
		}
		if subStatus != subscription.StatusActive {
			return ErrDoctorUnavailable
		}
		return nil
	}

	return ErrForbidden
}
