package httpserver

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"evroaming/backend/services/sessions-service/internal/http/handlers"
)

// Routes groups handlers.
type Routes struct {
	Reservations *handlers.ReservationsHandler
	Sessions     *handlers.SessionsHandler
	Whitelist    http.HandlerFunc
	Health       http.HandlerFunc
	AuditStream  http.HandlerFunc
	// Auth guards every route except /health. Nil leaves routes open.
	Auth func(http.Handler) http.Handler
}

// NewRouter registers endpoints.
func NewRouter(routes Routes) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Recoverer)

	if routes.Health != nil {
		r.Get("/health", routes.Health)
	}

	r.Group(func(r chi.Router) {
		if routes.Auth != nil {
			r.Use(routes.Auth)
		}
		if h := routes.Reservations; h != nil {
			r.Get("/reservations", h.HandleList)
			r.Post("/reservations", h.HandleReserve)
			r.Delete("/reservations/{id}", h.HandleCancel)
		}
		if h := routes.Sessions; h != nil {
			r.Get("/sessions", h.HandleList)
			r.Post("/sessions", h.HandleStart)
			r.Get("/sessions/{id}", h.HandleGet)
			r.Post("/sessions/{id}/stop", h.HandleStop)
			r.Post("/sessions/{id}/meter-values", h.HandleMeterValues)
			r.Post("/sessions/{id}/cdr", h.HandleCDR)
		}
		if routes.Whitelist != nil {
			r.Put("/whitelist", routes.Whitelist)
		}
		if routes.AuditStream != nil {
			r.Get("/ws/audit", routes.AuditStream)
		}
	})
	return r
}
