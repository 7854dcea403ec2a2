package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/carebridge/telehealth-core/internal/caresession"
	"github.com/carebridge/telehealth-core/internal/scheduling"
	"github.com/carebridge/telehealth-core/internal/subscription"
)

type RouterConfig struct {
	Scheduler    *scheduling.Scheduler
	Ledger       *subscription.Ledger
	Orchestrator *caresession.Orchestrator
	Pool         *pgxpool.Pool
	Redis        *redis.Client
	Log          zerolog.Logger
	Env          string
	Version      string
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Log))

	appointments := NewAppointmentHandler(cfg.Scheduler)
	subscriptions := NewSubscriptionHandler(cfg.Ledger, cfg.Log)
	sessions := NewCareSessionHandler(cfg.Orchestrator)
	health := NewHealthHandler(cfg.Pool, cfg.Redis, cfg.Env, cfg.Version)

	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)
	r.Handle("/metrics", promhttp.Handler())

	// Machine-to-machine callbacks carry no actor headers.
	r.Post("/webhooks/payment", subscriptions.PaymentWebhook)

	r.Group(func(r chi.Router) {
		r.Use(ActorMiddleware)

		r.Route("/appointments", func(r chi.Router) {
			r.Post("/", appointments.Book)
			r.Get("/", appointments.List)
			r.Get("/{id}", appointments.Get)
			r.Post("/{id}/approve", appointments.Approve)
			r.Post("/{id}/decline", appointments.Decline)
			r.Post("/{id}/cancel", appointments.Cancel)
			r.Post("/{id}/complete", appointments.Complete)
			r.Get("/{id}/consultation", sessions.GetConsultation)
			r.Post("/{id}/prescriptions", sessions.IssuePrescription)
		})

		r.Route("/subscriptions", func(r chi.Router) {
			r.Post("/", subscriptions.Create)
			r.Get("/", subscriptions.List)
			r.Get("/{id}", subscriptions.Get)
			r.Post("/{id}/activate", subscriptions.Activate)
			r.Post("/{id}/deactivate", subscriptions.Deactivate)
			r.Post("/{id}/reactivate", subscriptions.Reactivate)
		})

		r.Route("/consultations", func(r chi.Router) {
			r.Post("/{id}/join", sessions.Join)
			r.Post("/{id}/end", sessions.End)
			r.Post("/{id}/provision", sessions.Provision)
		})

		r.Route("/prescriptions", func(r chi.Router) {
			r.Get("/{id}", sessions.GetPrescription)
			r.Post("/{id}/dispatch", sessions.Dispatch)
			r.Post("/{id}/deliver", sessions.ConfirmDelivery)
		})
	})

	return r
}
