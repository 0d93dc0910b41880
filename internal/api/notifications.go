package api

import (
	"log/slog"
	"net/http"

	"github.com/Priya8975/notification-dispatch/internal/dispatch"
	"github.com/Priya8975/notification-dispatch/internal/domain"
)

type NotificationHandler struct {
	dispatch *dispatch.Service
	logger   *slog.Logger
}

func NewNotificationHandler(d *dispatch.Service, logger *slog.Logger) *NotificationHandler {
	return &NotificationHandler{dispatch: d, logger: logger}
}

// Send fans one notification out and returns the delivery report.
func (h *NotificationHandler) Send(w http.ResponseWriter, r *http.Request) {
	var req dispatch.SendRequest
	if err := decode(r, &req); err != nil {
		respondErr(w, h.logger, r, err)
		return
	}

	report, err := h.dispatch.SendNotification(r.Context(), req)
	if err != nil {
		respondErr(w, h.logger, r, err)
		return
	}

	status := http.StatusOK
	if report.Scheduled {
		status = http.StatusAccepted
	}
	respondJSON(w, status, report)
}

type reportNotificationRequest struct {
	domain.ReportNotificationContext
	Type     domain.NotificationType `json:"type"`
	Priority domain.Priority         `json:"priority"`
}

// Report sends a notification built from a report workflow event.
func (h *NotificationHandler) Report(w http.ResponseWriter, r *http.Request) {
	var req reportNotificationRequest
	if err := decode(r, &req); err != nil {
		respondErr(w, h.logger, r, err)
		return
	}
	if req.Type == "" {
		req.Type = domain.TypeReportGenerated
	}

	report, err := h.dispatch.NotifyReport(r.Context(), req.ReportNotificationContext, req.Type, req.Priority)
	if err != nil {
		respondErr(w, h.logger, r, err)
		return
	}

	respondJSON(w, http.StatusOK, report)
}
