package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/equitybot/internal/domain"
	"github.com/alanyoungcy/equitybot/internal/strategy"
)

// CycleRunner runs one decision cycle on demand.
type CycleRunner interface {
	OnDecisionCycle(ctx context.Context) (strategy.CycleReport, error)
}

// CycleHandler lets an operator trigger a decision cycle outside the
// schedule.
type CycleHandler struct {
	runner CycleRunner
	logger *slog.Logger
}

// NewCycleHandler creates a CycleHandler. A nil runner answers 503.
func NewCycleHandler(runner CycleRunner, logger *slog.Logger) *CycleHandler {
	return &CycleHandler{runner: runner, logger: logger}
}

type cycleResponse struct {
	Exposure  float64 `json:"exposure"`
	Halted    bool    `json:"halted"`
	Abandoned bool    `json:"abandoned"`
	Evaluated int     `json:"evaluated"`
	Skipped   int     `json:"skipped"`
	Intents   int     `json:"intents"`
}

// TriggerCycle runs a decision cycle and returns its report. The cycle is
// serialized with the scheduled callbacks, so the call may wait for one in
// progress.
// POST /api/cycle
func (h *CycleHandler) TriggerCycle(w http.ResponseWriter, r *http.Request) {
	if h.runner == nil {
		writeError(w, http.StatusServiceUnavailable, "strategy engine not running in this mode")
		return
	}
	h.logger.InfoContext(r.Context(), "handler: manual decision cycle requested")

	rep, err := h.runner.OnDecisionCycle(r.Context())
	switch {
	case errors.Is(err, domain.ErrNoUniverse):
		writeError(w, http.StatusConflict, "no universe ranked for this session")
		return
	case err != nil:
		h.logger.ErrorContext(r.Context(), "handler: manual decision cycle failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "decision cycle failed")
		return
	}
	writeJSON(w, http.StatusOK, cycleResponse{
		Exposure:  rep.Exposure,
		Halted:    rep.Halted,
		Abandoned: rep.Abandoned,
		Evaluated: rep.Evaluated,
		Skipped:   rep.Skipped,
		Intents:   rep.Intents,
	})
}
