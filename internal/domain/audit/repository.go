package audit

import "context"

// Repository es append-only: no hay update ni delete.
type Repository interface {
	Append(ctx context.Context, e Entry) error
	ListByGrant(ctx context.Context, grantID string) ([]Entry, error)
}
