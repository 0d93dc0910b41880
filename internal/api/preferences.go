package api

import (
	"log/slog"
	"net/http"

	"github.com/Priya8975/notification-dispatch/internal/domain"
	"github.com/Priya8975/notification-dispatch/internal/preference"
	"github.com/go-chi/chi/v5"
)

type PreferenceHandler struct {
	prefs  *preference.Service
	logger *slog.Logger
}

func NewPreferenceHandler(p *preference.Service, logger *slog.Logger) *PreferenceHandler {
	return &PreferenceHandler{prefs: p, logger: logger}
}

func (h *PreferenceHandler) List(w http.ResponseWriter, r *http.Request) {
	prefs, err := h.prefs.List(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		respondErr(w, h.logger, r, err)
		return
	}

	respondJSON(w, http.StatusOK, prefs)
}

func (h *PreferenceHandler) Get(w http.ResponseWriter, r *http.Request) {
	pref, err := h.prefs.Get(r.Context(), chi.URLParam(r, "userID"), domain.NotificationType(chi.URLParam(r, "type")))
	if err != nil {
		respondErr(w, h.logger, r, err)
		return
	}

	respondJSON(w, http.StatusOK, pref)
}

func (h *PreferenceHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req domain.NotificationPreference
	if err := decode(r, &req); err != nil {
		respondErr(w, h.logger, r, err)
		return
	}
	req.UserID = chi.URLParam(r, "userID")
	req.NotificationType = domain.NotificationType(chi.URLParam(r, "type"))

	pref, err := h.prefs.Create(r.Context(), req)
	if err != nil {
		respondErr(w, h.logger, r, err)
		return
	}

	respondJSON(w, http.StatusCreated, pref)
}

func (h *PreferenceHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req domain.PreferenceUpdate
	if err := decode(r, &req); err != nil {
		respondErr(w, h.logger, r, err)
		return
	}

	pref, err := h.prefs.Update(r.Context(), chi.URLParam(r, "userID"), domain.NotificationType(chi.URLParam(r, "type")), req)
	if err != nil {
		respondErr(w, h.logger, r, err)
		return
	}

	respondJSON(w, http.StatusOK, pref)
}

// BulkUpdate applies one partial update to every notification type.
func (h *PreferenceHandler) BulkUpdate(w http.ResponseWriter, r *http.Request) {
	var req domain.PreferenceUpdate
	if err := decode(r, &req); err != nil {
		respondErr(w, h.logger, r, err)
		return
	}

	prefs, err := h.prefs.BulkUpdate(r.Context(), chi.URLParam(r, "userID"), req)
	if err != nil {
		respondErr(w, h.logger, r, err)
		return
	}

	respondJSON(w, http.StatusOK, prefs)
}

func (h *PreferenceHandler) Initialize(w http.ResponseWriter, r *http.Request) {
	created, err := h.prefs.InitializeDefaults(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		respondErr(w, h.logger, r, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]int{"created": created})
}

func (h *PreferenceHandler) Reset(w http.ResponseWriter, r *http.Request) {
	prefs, err := h.prefs.ResetToDefaults(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		respondErr(w, h.logger, r, err)
		return
	}

	respondJSON(w, http.StatusOK, prefs)
}
