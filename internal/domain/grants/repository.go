package grants

import (
	"context"
	"time"
)

type Repository interface {
	// Create falla con ErrTokenTaken si el token ya existe: una colisión se
	// trata como fallo de generación, nunca se pisa el grant existente.
	Create(ctx context.Context, g Grant) error

	GetByToken(ctx context.Context, token string) (Grant, error)
	GetByID(ctx context.Context, id string) (Grant, error)
	ListByApplication(ctx context.Context, applicationID string) ([]Grant, error)

	// Revoke setea revoked_at solo si aún no estaba seteado.
	Revoke(ctx context.Context, id string, at time.Time) error

	// ConsumeDownload es la única primitiva que muta download_count:
	// incrementa en una sola operación condicional e indivisible, solo si el
	// grant sigue vigente (no revocado, no expirado) y count < max.
	// Devuelve los downloads restantes, o ErrRevoked/ErrExpired/ErrQuotaExceeded.
	// Un read-compare-write en dos round-trips no cumple este contrato.
	ConsumeDownload(ctx context.Context, id string, now time.Time) (int, error)
}
