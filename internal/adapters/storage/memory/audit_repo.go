package memory

import (
	"context"
	"sync"

	"funding-share-gateway/internal/domain/audit"
)

type auditRepo struct {
	mu      sync.Mutex
	entries []audit.Entry
}

func NewAuditRepo() audit.Repository {
	return &auditRepo{}
}

// Append guarda una copia; el slice solo crece, nunca se muta ni se borra.
func (r *auditRepo) Append(ctx context.Context, e audit.Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.entries = append(r.entries, e)
	return nil
}

func (r *auditRepo) ListByGrant(ctx context.Context, grantID string) ([]audit.Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]audit.Entry, 0)
	for _, e := range r.entries {
		if e.GrantID == grantID {
			out = append(out, e)
		}
	}
	return out, nil
}
