package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	BookingsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "telehealth_bookings_total",
		Help: "Appointments booked successfully.",
	})

	BookingConflictsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "telehealth_booking_conflicts_total",
		Help: "Booking attempts rejected because the slot window was taken.",
	})

	SubscriptionExpirationsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "telehealth_subscription_expirations_total",
		Help: "Subscriptions transitioned to expired (lazy reads and sweeps).",
	})

	PrescriptionsIssuedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "telehealth_prescriptions_issued_total",
		Help: "Prescriptions created in ready state.",
	})

	ProviderFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "telehealth_session_provider_failures_total",
		Help: "Failed calls to the video session-token provider.",
	})
)
