package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/equitybot/internal/domain"
)

// UniverseSource exposes the in-memory ranked universe.
type UniverseSource interface {
	Universe() (domain.RankedUniverse, bool)
}

// UniverseHandler serves the current session's ranked universe.
type UniverseHandler struct {
	source UniverseSource
	store  domain.UniverseStore
	logger *slog.Logger
}

// NewUniverseHandler creates a UniverseHandler. store may be nil; when set it
// answers for processes that have not ranked a universe themselves, such as
// an API-only replica.
func NewUniverseHandler(source UniverseSource, store domain.UniverseStore, logger *slog.Logger) *UniverseHandler {
	return &UniverseHandler{source: source, store: store, logger: logger}
}

// GetUniverse returns the ranked universe.
// GET /api/universe
func (h *UniverseHandler) GetUniverse(w http.ResponseWriter, r *http.Request) {
	if h.source != nil {
		if u, ok := h.source.Universe(); ok {
			writeJSON(w, http.StatusOK, u)
			return
		}
	}
	if h.store == nil {
		writeError(w, http.StatusNotFound, "no universe ranked yet")
		return
	}
	u, err := h.store.Latest(r.Context())
	if errors.Is(err, domain.ErrNotFound) {
		writeError(w, http.StatusNotFound, "no universe ranked yet")
		return
	}
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: load universe failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to load universe")
		return
	}
	writeJSON(w, http.StatusOK, u)
}
