package automation

import (
	"context"

	"broker_crm_backend/platform/logger"

	"github.com/google/uuid"
)

// sideEffects runs secondary work after a committed write. A failure is
// logged and kept, and never stops the remaining effects.
type sideEffects struct {
	log    *logger.Logger
	leadID uuid.UUID
	errs   []error
}

func (e *Engine) sideEffects(ctx context.Context, leadID uuid.UUID) *sideEffects {
	return &sideEffects{log: e.log.WithContext(ctx), leadID: leadID}
}

func (s *sideEffects) run(effect string, fn func() error) {
	if err := fn(); err != nil {
		s.record(effect, err)
	}
}

func (s *sideEffects) record(effect string, err error) {
	s.log.SideEffectFailure(effect, err, "lead_id", s.leadID.String())
	s.errs = append(s.errs, err)
}
