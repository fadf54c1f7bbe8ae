package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/hackgods/doctor-availability-scheduling/internal/scheduling"
)

type RouterConfig struct {
	Service        *scheduling.Service
	Logger         zerolog.Logger
	Auth           *Authenticator
	HealthChecks   []HealthCheck
	RateLimitRPS   float64
	RateLimitBurst int
	Env            string
	Version        string
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Logger))
	r.Use(RecoverMiddleware)

	health := NewHealthHandler(cfg.HealthChecks, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	validate := newValidator()

	r.Group(func(r chi.Router) {
		if cfg.RateLimitRPS > 0 {
			r.Use(NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst).Middleware)
		}
		r.Use(cfg.Auth.Middleware)

		// Availability endpoints
		r.Post("/doctors/{doctorId}/availability", declareAvailabilityHandler(cfg.Service, validate))
		r.Get("/doctors/{doctorId}/availability", listWindowsHandler(cfg.Service))
		r.Get("/availability/{windowId}", getWindowHandler(cfg.Service))
		r.Delete("/availability/{windowId}", deleteWindowHandler(cfg.Service))
		r.Get("/doctors/{doctorId}/slots", listSlotsHandler(cfg.Service))

		// Appointment endpoints
		r.Post("/appointments", bookAppointmentHandler(cfg.Service, validate))
		r.Get("/appointments", listAppointmentsHandler(cfg.Service))
		r.Get("/appointments/{id}", getAppointmentHandler(cfg.Service))
		r.Post("/appointments/{id}/cancel", cancelAppointmentHandler(cfg.Service))
		r.Post("/appointments/{id}/complete", completeAppointmentHandler(cfg.Service))
	})

	return r
}
