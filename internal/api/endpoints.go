package api

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/Priya8975/notification-dispatch/internal/dispatch"
	"github.com/Priya8975/notification-dispatch/internal/domain"
	"github.com/go-chi/chi/v5"
)

type EndpointHandler struct {
	dispatch *dispatch.Service
	logger   *slog.Logger
}

func NewEndpointHandler(d *dispatch.Service, logger *slog.Logger) *EndpointHandler {
	return &EndpointHandler{dispatch: d, logger: logger}
}

// Create registers an endpoint, or refreshes the one already stored for
// the same URL.
func (h *EndpointHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req domain.Endpoint
	if err := decode(r, &req); err != nil {
		respondErr(w, h.logger, r, err)
		return
	}

	ep, err := h.dispatch.RegisterEndpoint(r.Context(), req)
	if err != nil {
		respondErr(w, h.logger, r, err)
		return
	}

	respondJSON(w, http.StatusCreated, ep)
}

func (h *EndpointHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := domain.EndpointFilter{
		UserIDs:         splitParam(q.Get("user_id")),
		DeviceTypes:     splitParam(q.Get("device_type")),
		Category:        q.Get("category"),
		IncludeInactive: q.Get("include_inactive") == "true",
	}
	for _, c := range splitParam(q.Get("channel")) {
		f.Channels = append(f.Channels, domain.ChannelType(c))
	}

	endpoints, err := h.dispatch.ListEndpoints(r.Context(), f)
	if err != nil {
		respondErr(w, h.logger, r, err)
		return
	}
	if endpoints == nil {
		endpoints = []domain.Endpoint{}
	}

	respondJSON(w, http.StatusOK, endpoints)
}

func (h *EndpointHandler) Get(w http.ResponseWriter, r *http.Request) {
	ep, err := h.dispatch.GetEndpoint(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondErr(w, h.logger, r, err)
		return
	}

	respondJSON(w, http.StatusOK, ep)
}

func (h *EndpointHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req domain.EndpointUpdate
	if err := decode(r, &req); err != nil {
		respondErr(w, h.logger, r, err)
		return
	}

	ep, err := h.dispatch.UpdateEndpoint(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		respondErr(w, h.logger, r, err)
		return
	}

	respondJSON(w, http.StatusOK, ep)
}

func (h *EndpointHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.dispatch.Unsubscribe(r.Context(), id); err != nil {
		respondErr(w, h.logger, r, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"id": id, "status": "deleted"})
}

// Test sends a test message to a stored endpoint.
func (h *EndpointHandler) Test(w http.ResponseWriter, r *http.Request) {
	result := h.dispatch.TestEndpoint(r.Context(), dispatch.TestTarget{EndpointID: chi.URLParam(r, "id")})
	respondJSON(w, http.StatusOK, result)
}

// TestAdHoc sends a test message to an unregistered URL or subscription.
func (h *EndpointHandler) TestAdHoc(w http.ResponseWriter, r *http.Request) {
	var req dispatch.TestTarget
	if err := decode(r, &req); err != nil {
		respondErr(w, h.logger, r, err)
		return
	}
	req.EndpointID = ""

	respondJSON(w, http.StatusOK, h.dispatch.TestEndpoint(r.Context(), req))
}

// Send delivers a notification to one endpoint only.
func (h *EndpointHandler) Send(w http.ResponseWriter, r *http.Request) {
	var req dispatch.SendRequest
	if err := decode(r, &req); err != nil {
		respondErr(w, h.logger, r, err)
		return
	}

	report, err := h.dispatch.SendToEndpoint(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		respondErr(w, h.logger, r, err)
		return
	}

	respondJSON(w, http.StatusOK, report)
}

// Ack records that the client displayed a notification.
func (h *EndpointHandler) Ack(w http.ResponseWriter, r *http.Request) {
	if err := h.dispatch.Acknowledge(r.Context(), chi.URLParam(r, "id")); err != nil {
		respondErr(w, h.logger, r, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"status": "received"})
}

type bulkRequest struct {
	Operation string                 `json:"operation"`
	IDs       []string               `json:"ids"`
	Update    *domain.EndpointUpdate `json:"update,omitempty"`
}

func (h *EndpointHandler) Bulk(w http.ResponseWriter, r *http.Request) {
	var req bulkRequest
	if err := decode(r, &req); err != nil {
		respondErr(w, h.logger, r, err)
		return
	}
	if len(req.IDs) == 0 {
		respondError(w, http.StatusBadRequest, "at least one id is required")
		return
	}

	result, err := h.dispatch.Bulk(r.Context(), req.Operation, req.IDs, req.Update)
	if err != nil {
		respondErr(w, h.logger, r, err)
		return
	}

	respondJSON(w, http.StatusOK, result)
}

func splitParam(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
