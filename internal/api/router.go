package api

import (
	"log/slog"
	"net/http"

	"github.com/Priya8975/notification-dispatch/internal/dispatch"
	"github.com/Priya8975/notification-dispatch/internal/preference"
	ws "github.com/Priya8975/notification-dispatch/internal/websocket"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Deps are the services the router exposes. Queue and Hub are optional.
type Deps struct {
	Dispatch    *dispatch.Service
	Preferences *preference.Service
	Hub         *ws.Hub
	Queue       QueueDepther
	Logger      *slog.Logger
}

// NewRouter creates and configures the HTTP router.
func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()

	// Middleware stack
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Heartbeat("/ping"))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// Handlers
	notifHandler := NewNotificationHandler(d.Dispatch, d.Logger)
	epHandler := NewEndpointHandler(d.Dispatch, d.Logger)
	prefHandler := NewPreferenceHandler(d.Preferences, d.Logger)
	failHandler := NewFailureHandler(d.Dispatch, d.Logger)
	statsHandler := NewStatsHandler(d.Dispatch, d.Logger)

	r.Handle("/metrics", promhttp.Handler())

	// WebSocket endpoint
	if d.Hub != nil {
		r.Get("/ws", d.Hub.HandleWebSocket)
	}

	// API routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", HealthHandler(d.Queue, d.Hub))

		r.Route("/notifications", func(r chi.Router) {
			r.Post("/", notifHandler.Send)
			r.Post("/report", notifHandler.Report)
		})

		r.Route("/endpoints", func(r chi.Router) {
			r.Post("/", epHandler.Create)
			r.Get("/", epHandler.List)
			r.Post("/test", epHandler.TestAdHoc)
			r.Post("/bulk", epHandler.Bulk)
			r.Get("/{id}", epHandler.Get)
			r.Patch("/{id}", epHandler.Update)
			r.Delete("/{id}", epHandler.Delete)
			r.Post("/{id}/test", epHandler.Test)
			r.Post("/{id}/send", epHandler.Send)
			r.Post("/{id}/ack", epHandler.Ack)
		})

		r.Route("/users/{userID}", func(r chi.Router) {
			if d.Hub != nil {
				r.Get("/presence", PresenceHandler(d.Hub))
			}
			r.Route("/preferences", func(r chi.Router) {
				r.Get("/", prefHandler.List)
				r.Patch("/", prefHandler.BulkUpdate)
				r.Post("/initialize", prefHandler.Initialize)
				r.Post("/reset", prefHandler.Reset)
				r.Get("/{type}", prefHandler.Get)
				r.Post("/{type}", prefHandler.Create)
				r.Patch("/{type}", prefHandler.Update)
			})
		})

		r.Route("/failures", func(r chi.Router) {
			r.Get("/", failHandler.List)
			r.Post("/retry", failHandler.Retry)
		})

		r.Get("/stats", statsHandler.Get)
	})

	return r
}
