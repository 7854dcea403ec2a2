package access

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/carebridge/telehealth-core/internal/identity"
	"github.com/carebridge/telehealth-core/internal/subscription"
)

func TestEvaluateAdminBypass(t *testing.T) {
	admin := identity.Actor{ID: uuid.New(), Role: identity.RoleAdmin}
	super := identity.Actor{ID: uuid.New(), Role: identity.RoleSuperAdmin}
	owner := uuid.New()

	for _, action := range []Action{ActionView, ActionCancel, ActionBookAppointment, ActionApproveAppointment, ActionIssuePrescription, ActionDeactivateSubscription} {
		assert.NoError(t, Evaluate(admin, action, owner, subscription.StatusExpired), "admin %s", action)
		assert.NoError(t, Evaluate(super, action, owner, subscription.StatusExpired), "superadmin %s", action)
	}
}

func TestEvaluateSupportReadOnly(t *testing.T) {
	support := identity.Actor{ID: uuid.New(), Role: identity.RoleSupport}
	owner := uuid.New()

	assert.NoError(t, Evaluate(support, ActionView, owner, subscription.StatusActive))
	assert.NoError(t, Evaluate(support, ActionList, owner, subscription.StatusActive))

	assert.ErrorIs(t, Evaluate(support, ActionCancel, owner, subscription.StatusActive), ErrForbidden)
	assert.ErrorIs(t, Evaluate(support, ActionApproveAppointment, owner, subscription.StatusActive), ErrForbidden)
	assert.ErrorIs(t, Evaluate(support, ActionDeactivateSubscription, owner, subscription.StatusActive), ErrForbidden)
}

func TestEvaluateOwnerViewCancel(t *testing.T) {
	patient := identity.Actor{ID: uuid.New(), Role: identity.RolePatient}

	// Owner may view and cancel regardless of subscription state.
	assert.NoError(t, Evaluate(patient, ActionView, patient.ID, subscription.StatusUnsubscribed))
	assert.NoError(t, Evaluate(patient, ActionCancel, patient.ID, subscription.StatusUnsubscribed))

	// Non-owner may not.
	assert.ErrorIs(t, Evaluate(patient, ActionView, uuid.New(), subscription.StatusActive), ErrForbidden)
	assert.ErrorIs(t, Evaluate(patient, ActionCancel, uuid.New(), subscription.StatusActive), ErrForbidden)
}

func TestEvaluateDoctorPrivileged(t *testing.T) {
	doctor := identity.Actor{ID: uuid.New(), Role: identity.RoleDoctor}

	assert.NoError(t, Evaluate(doctor, ActionApproveAppointment, doctor.ID, subscription.StatusActive))
	assert.NoError(t, Evaluate(doctor, ActionIssuePrescription, doctor.ID, subscription.StatusActive))

	for _, status := range []subscription.Status{subscription.StatusExpired, subscription.StatusDeactivated, subscription.StatusPending, subscription.StatusUnsubscribed} {
		assert.ErrorIs(t, Evaluate(doctor, ActionApproveAppointment, doctor.ID, status), ErrSubscriptionRequired, "status %s", status)
		assert.ErrorIs(t, Evaluate(doctor, ActionIssuePrescription, doctor.ID, status), ErrSubscriptionRequired, "status %s", status)
	}

	patient := identity.Actor{ID: uuid.New(), Role: identity.RolePatient}
	assert.ErrorIs(t, Evaluate(patient, ActionApproveAppointment, patient.ID, subscription.StatusActive), ErrForbidden)
}

func TestEvaluateBooking(t *testing.T) {
	patient := identity.Actor{ID: uuid.New(), Role: identity.RolePatient}
	doctorID := uuid.New()

	// Booking is not gated on the patient's subscription, only on the
	// target doctor's entitlement.
	assert.NoError(t, Evaluate(patient, ActionBookAppointment, doctorID, subscription.StatusActive))
	assert.ErrorIs(t, Evaluate(patient, ActionBookAppointment, doctorID, subscription.StatusExpired), ErrDoctorUnavailable)
	assert.ErrorIs(t, Evaluate(patient, ActionBookAppointment, doctorID, subscription.StatusDeactivated), ErrDoctorUnavailable)

	doctor := identity.Actor{ID: uuid.New(), Role: identity.RoleDoctor}
	assert.ErrorIs(t, Evaluate(doctor, ActionBookAppointment, doctorID, subscription.StatusActive), ErrForbidden)
}

func TestEvaluateDefaultDeny(t *testing.T) {
	pharmacy := identity.Actor{ID: uuid.New(), Role: identity.RolePharmacy}
	assert.ErrorIs(t, Evaluate(pharmacy, ActionDeactivateSubscription, uuid.New(), subscription.StatusActive), ErrForbidden)

	// Subscription administration stays staff-only no matter the role
	// or entitlement of the caller.
	for _, actor := range []identity.Actor{
		{ID: uuid.New(), Role: identity.RolePatient},
		{ID: uuid.New(), Role: identity.RoleDoctor},
		{ID: uuid.New(), Role: identity.RolePharmacy},
	} {
		assert.ErrorIs(t, Evaluate(actor, ActionManageSubscriptions, uuid.New(), subscription.StatusActive), ErrForbidden)
	}

	admin := identity.Actor{ID: uuid.New(), Role: identity.RoleAdmin}
	assert.NoError(t, Evaluate(admin, ActionManageSubscriptions, uuid.New(), subscription.StatusUnsubscribed))
}
