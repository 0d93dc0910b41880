package api

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/Priya8975/notification-dispatch/internal/dispatch"
	"github.com/Priya8975/notification-dispatch/internal/domain"
)

type StatsHandler struct {
	dispatch *dispatch.Service
	logger   *slog.Logger
	now      func() time.Time
}

func NewStatsHandler(d *dispatch.Service, logger *slog.Logger) *StatsHandler {
	return &StatsHandler{dispatch: d, logger: logger, now: time.Now}
}

// Get returns aggregate delivery stats for ?from=&to= (YYYY-MM-DD). The
// range defaults to the last 7 days.
func (h *StatsHandler) Get(w http.ResponseWriter, r *http.Request) {
	to := h.now().UTC()
	from := to.AddDate(0, 0, -7)

	var err error
	if s := r.URL.Query().Get("from"); s != "" {
		if from, err = parseDay(s); err != nil {
			respondErr(w, h.logger, r, err)
			return
		}
	}
	if s := r.URL.Query().Get("to"); s != "" {
		if to, err = parseDay(s); err != nil {
			respondErr(w, h.logger, r, err)
			return
		}
	}

	stats, err := h.dispatch.GetStats(r.Context(), from, to)
	if err != nil {
		respondErr(w, h.logger, r, err)
		return
	}

	respondJSON(w, http.StatusOK, stats)
}

func parseDay(s string) (time.Time, error) {
	d, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: date %q must be YYYY-MM-DD", domain.ErrValidation, s)
	}
	return d, nil
}
