package handler

import (
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/equitybot/internal/domain"
)

// RecentIntents exposes the engine's in-memory ring of emitted intents.
type RecentIntents interface {
	RecentIntents(limit int) []domain.OrderIntent
}

// IntentHandler serves recently emitted order intents.
type IntentHandler struct {
	recent RecentIntents
	store  domain.IntentStore
	logger *slog.Logger
}

// NewIntentHandler creates an IntentHandler. The store, when set, is
// preferred because it carries the execution outcome of each intent.
func NewIntentHandler(recent RecentIntents, store domain.IntentStore, logger *slog.Logger) *IntentHandler {
	return &IntentHandler{recent: recent, store: store, logger: logger}
}

type listIntentsResponse struct {
	Intents []domain.IntentRecord `json:"intents"`
}

// ListIntents returns up to ?limit= intents, newest first.
// GET /api/intents
func (h *IntentHandler) ListIntents(w http.ResponseWriter, r *http.Request) {
	limit := parseLimit(r)

	if h.store != nil {
		recs, err := h.store.ListRecent(r.Context(), domain.ListOpts{Limit: limit})
		if err != nil {
			h.logger.ErrorContext(r.Context(), "handler: list intents failed", slog.String("error", err.Error()))
			writeError(w, http.StatusInternalServerError, "failed to list intents")
			return
		}
		if recs == nil {
			recs = []domain.IntentRecord{}
		}
		writeJSON(w, http.StatusOK, listIntentsResponse{Intents: recs})
		return
	}

	recs := []domain.IntentRecord{}
	if h.recent != nil {
		for _, in := range h.recent.RecentIntents(limit) {
			recs = append(recs, domain.IntentRecord{Intent: in, Status: domain.OrderStatusPending})
		}
	}
	writeJSON(w, http.StatusOK, listIntentsResponse{Intents: recs})
}
