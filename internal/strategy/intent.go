package strategy

import (
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/equitybot/internal/domain"
)

// newIntent stamps an OrderIntent with a fresh id and creation time.
func newIntent(inst domain.Instrument, kind domain.TargetKind, target float64, reason domain.IntentReason, meta map[string]string) domain.OrderIntent {
	return domain.OrderIntent{
		ID:         uuid.New().String(),
		Instrument: inst,
		Kind:       kind,
		Target:     target,
		Reason:     reason,
		Metadata:   meta,
		CreatedAt:  time.Now().UTC(),
	}
}
