package handler

import (
	"log/slog"
	"net/http"
	"sort"

	"github.com/alanyoungcy/equitybot/internal/domain"
)

// HoldingPeriods exposes the tracker's per-instrument counters.
type HoldingPeriods interface {
	HoldingPeriods() map[domain.Instrument]int
}

// HoldingHandler serves the held instruments and their holding periods.
type HoldingHandler struct {
	periods   HoldingPeriods
	portfolio domain.PortfolioSource
	logger    *slog.Logger
}

// NewHoldingHandler creates a HoldingHandler. portfolio may be nil, in which
// case only the counters are reported.
func NewHoldingHandler(periods HoldingPeriods, portfolio domain.PortfolioSource, logger *slog.Logger) *HoldingHandler {
	return &HoldingHandler{periods: periods, portfolio: portfolio, logger: logger}
}

type holdingView struct {
	Instrument  domain.Instrument `json:"instrument"`
	HoldingDays int               `json:"holding_days"`
	Quantity    float64           `json:"quantity"`
	CostBasis   float64           `json:"cost_basis"`
}

// ListHoldings returns one row per tracked or held instrument, sorted by
// instrument.
// GET /api/holdings
func (h *HoldingHandler) ListHoldings(w http.ResponseWriter, r *http.Request) {
	rows := map[domain.Instrument]*holdingView{}
	for inst, days := range h.periods.HoldingPeriods() {
		rows[inst] = &holdingView{Instrument: inst, HoldingDays: days}
	}

	if h.portfolio != nil {
		positions, err := h.portfolio.Positions(r.Context())
		if err != nil {
			h.logger.ErrorContext(r.Context(), "handler: load positions failed", slog.String("error", err.Error()))
			writeError(w, http.StatusBadGateway, "failed to load positions")
			return
		}
		for inst, pos := range positions {
			if pos.Quantity == 0 {
				continue
			}
			row, ok := rows[inst]
			if !ok {
				row = &holdingView{Instrument: inst}
				rows[inst] = row
			}
			row.Quantity = pos.Quantity
			row.CostBasis = pos.CostBasis
		}
	}

	out := make([]holdingView, 0, len(rows))
	for _, row := range rows {
		out = append(out, *row)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Instrument < out[j].Instrument })
	writeJSON(w, http.StatusOK, map[string]any{"holdings": out})
}
