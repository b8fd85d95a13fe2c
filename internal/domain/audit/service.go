package audit

import (
	"context"
	"strings"
	"time"

	"funding-share-gateway/internal/platform/logger"

	"github.com/google/uuid"
)

type Service struct {
	repo Repository
	log  logger.Logger
	now  func() time.Time
}

func NewService(repo Repository, log logger.Logger) *Service {
	return &Service{
		repo: repo,
		log:  log,
		now:  time.Now,
	}
}

// Record es best-effort desde el punto de vista del caller: un fallo del log
// de auditoría jamás bloquea ni falla el request primario. Pero tampoco se
// pierde en silencio: queda en telemetría operacional vía logger.
// Registrar una denegación importa tanto como registrar un éxito.
func (s *Service) Record(ctx context.Context, e Entry) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.now()
	}

	if err := s.repo.Append(ctx, e); err != nil && s.log != nil {
		s.log.Error("audit append failed", map[string]any{
			"grant_id": e.GrantID,
			"action":   e.Action,
			"error":    err.Error(),
		})
	}
}

func (s *Service) ListByGrant(ctx context.Context, grantID string) ([]Entry, error) {
	grantID = strings.TrimSpace(grantID)
	if grantID == "" {
		return nil, nil
	}
	return s.repo.ListByGrant(ctx, grantID)
}
