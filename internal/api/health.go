package api

import (
	"context"
	"net/http"

	ws "github.com/Priya8975/notification-dispatch/internal/websocket"
	"github.com/go-chi/chi/v5"
)

// QueueDepther reports how many scheduled sends are waiting.
type QueueDepther interface {
	Depth(ctx context.Context) (int64, error)
}

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status           string `json:"status"`
	Version          string `json:"version"`
	QueueDepth       int64  `json:"queue_depth"`
	WebSocketClients int    `json:"websocket_clients"`
}

// HealthHandler returns the health check handler. queue and hub may be nil.
func HealthHandler(queue QueueDepther, hub *ws.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := HealthResponse{
			Status:  "healthy",
			Version: "1.0.0",
		}

		if queue != nil {
			if depth, err := queue.Depth(r.Context()); err == nil {
				resp.QueueDepth = depth
			}
		}
		if hub != nil {
			resp.WebSocketClients = hub.ClientCount()
		}

		respondJSON(w, http.StatusOK, resp)
	}
}

// PresenceHandler reports whether a user has an open in-app connection.
func PresenceHandler(hub *ws.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := chi.URLParam(r, "userID")
		respondJSON(w, http.StatusOK, map[string]any{
			"user_id": userID,
			"online":  hub.IsOnline(userID),
		})
	}
}
