package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hackgods/clinic-booking/internal/booking"
)

type RouterConfig struct {
	Service        *booking.Service
	Logger         *slog.Logger
	JWTSecret      string
	Limiter        *RateLimiter
	RequestTimeout time.Duration
	Gatherer       prometheus.Gatherer
	Deps           map[string]Pinger
	Env            string
	Version        string
}

func NewRouter(cfg RouterConfig) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Limiter == nil {
		cfg.Limiter = NewRateLimiter(20, 40)
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 10 * time.Second
	}

	r := chi.NewRouter()

	// Apply middleware
	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(logger))
	r.Use(middleware.Recoverer)

	// Health endpoints
	health := NewHealthHandler(cfg.Deps, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	if cfg.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))
	}

	h := NewHandler(cfg.Service, logger)
	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.Timeout(cfg.RequestTimeout))
		r.Use(AuthMiddleware(cfg.JWTSecret, logger))

		// Availability endpoints; the id is the doctor for reads and writes
		// and the entry for deletes.
		r.Get("/availability/{id}", h.ListAvailability)
		r.Post("/availability/{id}", h.AddAvailability)
		r.Delete("/availability/{id}", h.DeleteAvailability)

		// Appointment endpoints
		r.With(cfg.Limiter.Middleware).Post("/appointments", h.CreateAppointment)
		r.Get("/appointments/doctor/{doctorID}", h.ListDoctorAppointments)
		r.Get("/appointments/patient/{patientID}", h.ListPatientAppointments)
		r.Get("/appointments/{id}", h.GetAppointment)
		r.Put("/appointments/{id}/status", h.UpdateAppointmentStatus)
	})

	return r
}
