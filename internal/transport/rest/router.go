package rest

import (
	"database/sql"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mediconnect/appointment-management/internal/appointment"
	"github.com/mediconnect/appointment-management/internal/auth"
	"github.com/mediconnect/appointment-management/internal/payment"
	"github.com/mediconnect/appointment-management/internal/transport/middleware"
	"github.com/mediconnect/appointment-management/internal/transport/swagger"
)

// RouterConfig carries the cross-cutting knobs the router needs.
type RouterConfig struct {
	AllowedOrigins string
	MetricsEnabled bool
}

func RegisterAllRoutes(router *chi.Mux, db *sql.DB, cfg RouterConfig, authMiddleware *auth.Middleware, appointmentHandler *appointment.Handler, callbackHandler *payment.CallbackHandler, logger *slog.Logger) {
	healthHandler := NewHealthHandler(db)

	router.Use(middleware.CORS(cfg.AllowedOrigins))
	router.Use(middleware.RequestID)
	router.Use(middleware.RecoveryMiddleware(logger))
	router.Use(middleware.LoggingMiddleware(logger))

	// Serve OpenAPI spec at root (outside API prefix)
	router.Get("/openapi.yml", func(w http.ResponseWriter, r *http.Request) {
		http.ServeFile(w, r, "./api/openapi.yml")
	})
	router.Handle("/swagger/*", swagger.Handler())

	if cfg.MetricsEnabled {
		router.Handle("/metrics", promhttp.Handler())
	}

	router.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", healthHandler.healthCheckHandler)
		r.Get("/ping", healthHandler.pingHandler)

		// Daraja posts the STK push result here; unauthenticated
		if callbackHandler != nil {
			r.Post("/mpesa-callback", callbackHandler.HandleMpesaCallback)
		}

		if appointmentHandler != nil && authMiddleware != nil {
			r.Group(func(pr chi.Router) {
				pr.Use(authMiddleware.Authenticate)

				pr.Post("/book", appointmentHandler.Book)
				pr.Get("/appointments/client", appointmentHandler.ClientAppointments)
				pr.Get("/appointments/doctor", appointmentHandler.DoctorAppointments)
			})
		}
	})
}
