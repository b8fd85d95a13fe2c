package middleware

import (
	"context"
	"net/http"
	"strings"
)

const actorKey ctxKey = "actor"

// Actor es la identidad observable del caller externo: dirección y user
// agent. No autentica nada; alimenta el audit trail y la allow-list de IP.
type Actor struct {
	Address string
	Agent   string
}

// ActorContext captura address + agent en el contexto. Debe ir después de
// chi RealIP para que RemoteAddr ya traiga la IP real detrás del proxy.
func ActorContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor := Actor{
			Address: strings.TrimSpace(r.RemoteAddr),
			Agent:   strings.TrimSpace(r.UserAgent()),
		}
		ctx := context.WithValue(r.Context(), actorKey, actor)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func GetActor(ctx context.Context) Actor {
	v := ctx.Value(actorKey)
	if v == nil {
		return Actor{}
	}
	a, _ := v.(Actor)
	return a
}
