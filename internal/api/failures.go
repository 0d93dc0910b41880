package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/Priya8975/notification-dispatch/internal/dispatch"
	"github.com/Priya8975/notification-dispatch/internal/domain"
	"github.com/hashicorp/go-multierror"
)

type FailureHandler struct {
	dispatch *dispatch.Service
	logger   *slog.Logger
}

func NewFailureHandler(d *dispatch.Service, logger *slog.Logger) *FailureHandler {
	return &FailureHandler{dispatch: d, logger: logger}
}

func (h *FailureHandler) List(w http.ResponseWriter, r *http.Request) {
	f := domain.FailureFilter{
		UnresolvedOnly: r.URL.Query().Get("resolved") != "true",
		Limit:          queryInt(r, "limit", 50),
	}

	failures, err := h.dispatch.ListFailures(r.Context(), f)
	if err != nil {
		respondErr(w, h.logger, r, err)
		return
	}
	if failures == nil {
		failures = []domain.FailureRecord{}
	}

	respondJSON(w, http.StatusOK, failures)
}

type retryRequest struct {
	IDs []string `json:"ids,omitempty"`
}

type retryResponse struct {
	Resolved int      `json:"resolved"`
	Errors   []string `json:"errors"`
}

// Retry replays the given failure records, or runs a full sweep when no
// ids are sent. Per-item failures are reported, not treated as a request
// error.
func (h *FailureHandler) Retry(w http.ResponseWriter, r *http.Request) {
	var req retryRequest
	if r.ContentLength != 0 {
		if err := decode(r, &req); err != nil {
			respondErr(w, h.logger, r, err)
			return
		}
	}

	resolved, err := h.dispatch.RetryFailed(r.Context(), req.IDs)
	resp := retryResponse{Resolved: resolved, Errors: []string{}}
	if err != nil {
		h.logger.Warn("manual retry finished with errors", "resolved", resolved, "error", err)
		var merr *multierror.Error
		if errors.As(err, &merr) {
			for _, e := range merr.Errors {
				resp.Errors = append(resp.Errors, e.Error())
			}
		} else {
			resp.Errors = append(resp.Errors, err.Error())
		}
	}

	respondJSON(w, http.StatusOK, resp)
}
