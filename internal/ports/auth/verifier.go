package auth

import "context"

// AuthVerifier verifica un token de sesión de owner y devuelve claims o error.
// No aplica a los share tokens: esos se resuelven contra el grant store.
type AuthVerifier interface {
	Verify(ctx context.Context, token string) (Claims, error)
}
