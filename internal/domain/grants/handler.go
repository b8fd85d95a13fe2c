package grants

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"funding-share-gateway/internal/middleware"

	"github.com/go-chi/chi/v5"
)

// ApplicationOwnerLookup evita importar el paquete applications (rompe ciclos).
type ApplicationOwnerLookup interface {
	OwnerOf(ctx context.Context, applicationID string) (string, error)
}

// RegisterRoutes monta la superficie de owner: emisión, listado, revocación
// y audit trail. Todo requiere claims (atlas en prod, X-Debug-User-ID en dev).
func RegisterRoutes(r chi.Router, svc *Service, appOwners ApplicationOwnerLookup) {
	r.Route("/applications/{applicationID}/shares", func(sr chi.Router) {
		sr.Post("/", issueShareHandler(svc, appOwners))
		sr.Get("/", listSharesHandler(svc, appOwners))
	})

	r.Route("/shares/{grantID}", func(sr chi.Router) {
		sr.Post("/revoke", revokeShareHandler(svc, appOwners))
		sr.Get("/log", shareLogHandler(svc, appOwners))
	})
}

type issueShareRequest struct {
	LenderID          string   `json:"lender_id"`
	RecipientEmail    string   `json:"recipient_email"`
	AccessLevel       string   `json:"access_level" enums:"summary,full"`
	ExpiresInHours    int      `json:"expires_in_hours"`
	MaxDownloads      *int     `json:"max_downloads"`
	AllowedIPPrefixes []string `json:"allowed_ip_prefixes"`
}

type shareResponse struct {
	ID                 string     `json:"id"`
	Token              string     `json:"token"`
	ApplicationID      string     `json:"application_id"`
	LenderID           string     `json:"lender_id,omitempty"`
	RecipientEmail     string     `json:"recipient_email"`
	AccessLevel        string     `json:"access_level"`
	Status             string     `json:"status"`
	ExpiresAt          time.Time  `json:"expires_at"`
	MaxDownloads       int        `json:"max_downloads"`
	DownloadCount      int        `json:"download_count"`
	AllowedIPPrefixes  []string   `json:"allowed_ip_prefixes,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	RevokedAt          *time.Time `json:"revoked_at,omitempty"`
}

type logEntryResponse struct {
	Action       string    `json:"action"`
	ActorAddress string    `json:"actor_address"`
	ActorAgent   string    `json:"actor_agent"`
	Detail       string    `json:"detail,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// issueShareHandler godoc
// @Summary Emitir un share link
// @Description Crea un grant con token nuevo para compartir la aplicación con un lender/underwriter externo. Solo el owner de la aplicación puede emitir.
// @Tags shares
// @Accept json
// @Produce json
// @Param applicationID path string true "ID de la aplicación"
// @Param payload body issueShareRequest true "Parámetros del grant"
// @Success 201 {object} shareResponse
// @Failure 400 {string} string "invalid input"
// @Failure 401 {string} string "unauthorized"
// @Failure 403 {string} string "forbidden"
// @Failure 404 {string} string "application not found"
// @Router /applications/{applicationID}/shares [post]
func issueShareHandler(svc *Service, appOwners ApplicationOwnerLookup) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		applicationID, ok := requireOwner(w, r, appOwners, chi.URLParam(r, "applicationID"))
		if !ok {
			return
		}

		var req issueShareRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}

		g, err := svc.Issue(r.Context(), IssueInput{
			ApplicationID:     applicationID,
			LenderID:          req.LenderID,
			RecipientEmail:    req.RecipientEmail,
			AccessLevel:       req.AccessLevel,
			ExpiresIn:         time.Duration(req.ExpiresInHours) * time.Hour,
			MaxDownloads:      req.MaxDownloads,
			AllowedIPPrefixes: req.AllowedIPPrefixes,
		})
		if err != nil {
			switch {
			case errors.Is(err, ErrInvalidInput):
				http.Error(w, err.Error(), http.StatusBadRequest)
			default:
				http.Error(w, "internal error", http.StatusInternalServerError)
			}
			return
		}

		writeJSON(w, http.StatusCreated, toShareResponse(g, time.Now()))
	}
}

// listSharesHandler godoc
// @Summary Listar shares de una aplicación
// @Tags shares
// @Produce json
// @Param applicationID path string true "ID de la aplicación"
// @Success 200 {array} shareResponse
// @Failure 401 {string} string "unauthorized"
// @Failure 403 {string} string "forbidden"
// @Failure 404 {string} string "application not found"
// @Router /applications/{applicationID}/shares [get]
func listSharesHandler(svc *Service, appOwners ApplicationOwnerLookup) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		applicationID, ok := requireOwner(w, r, appOwners, chi.URLParam(r, "applicationID"))
		if !ok {
			return
		}

		items, err := svc.ListByApplication(r.Context(), applicationID)
		if err != nil {
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}

		now := time.Now()
		out := make([]shareResponse, 0, len(items))
		for _, g := range items {
			out = append(out, toShareResponse(g, now))
		}
		writeJSON(w, http.StatusOK, out)
	}
}

// revokeShareHandler godoc
// @Summary Revocar un share
// @Description Revocación inmediata y terminal: corta lecturas, descargas y links de documento ya emitidos. Idempotente.
// @Tags shares
// @Produce json
// @Param grantID path string true "ID del grant"
// @Success 200 {object} shareResponse
// @Failure 401 {string} string "unauthorized"
// @Failure 403 {string} string "forbidden"
// @Failure 404 {string} string "not found"
// @Router /shares/{grantID}/revoke [post]
func revokeShareHandler(svc *Service, appOwners ApplicationOwnerLookup) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		g, ok := requireGrantOwner(w, r, svc, appOwners)
		if !ok {
			return
		}

		revoked, err := svc.Revoke(r.Context(), g.ID)
		if err != nil {
			switch {
			case errors.Is(err, ErrNotFound):
				http.Error(w, "not found", http.StatusNotFound)
			default:
				http.Error(w, "internal error", http.StatusInternalServerError)
			}
			return
		}

		writeJSON(w, http.StatusOK, toShareResponse(revoked, time.Now()))
	}
}

// shareLogHandler godoc
// @Summary Audit trail de un share
// @Description Devuelve el log inmutable de intentos de acceso y consumos del grant, con razones específicas de rechazo.
// @Tags shares
// @Produce json
// @Param grantID path string true "ID del grant"
// @Success 200 {array} logEntryResponse
// @Failure 401 {string} string "unauthorized"
// @Failure 403 {string} string "forbidden"
// @Failure 404 {string} string "not found"
// @Router /shares/{grantID}/log [get]
func shareLogHandler(svc *Service, appOwners ApplicationOwnerLookup) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		g, ok := requireGrantOwner(w, r, svc, appOwners)
		if !ok {
			return
		}

		entries, err := svc.AuditTrail(r.Context(), g.ID)
		if err != nil {
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}

		out := make([]logEntryResponse, 0, len(entries))
		for _, e := range entries {
			out = append(out, logEntryResponse{
				Action:       e.Action,
				ActorAddress: e.ActorAddress,
				ActorAgent:   e.ActorAgent,
				Detail:       e.Detail,
				CreatedAt:    e.CreatedAt,
			})
		}
		writeJSON(w, http.StatusOK, out)
	}
}

// requireOwner corta con 401/403/404 si el caller no es el owner de la
// aplicación. Devuelve el applicationID listo para usar.
func requireOwner(w http.ResponseWriter, r *http.Request, appOwners ApplicationOwnerLookup, applicationID string) (string, bool) {
	claims, ok := middleware.GetClaims(r.Context())
	if !ok || strings.TrimSpace(claims.UserID) == "" {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return "", false
	}

	ownerID, err := appOwners.OwnerOf(r.Context(), applicationID)
	if err != nil || strings.TrimSpace(ownerID) == "" {
		http.Error(w, "application not found", http.StatusNotFound)
		return "", false
	}
	if ownerID != claims.UserID {
		http.Error(w, "forbidden", http.StatusForbidden)
		return "", false
	}
	return applicationID, true
}

func requireGrantOwner(w http.ResponseWriter, r *http.Request, svc *Service, appOwners ApplicationOwnerLookup) (Grant, bool) {
	claims, ok := middleware.GetClaims(r.Context())
	if !ok || strings.TrimSpace(claims.UserID) == "" {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return Grant{}, false
	}

	g, err := svc.GetByID(r.Context(), chi.URLParam(r, "grantID"))
	if err != nil {
		http.Error(w, "not found", http.StatusNotFound)
		return Grant{}, false
	}

	ownerID, err := appOwners.OwnerOf(r.Context(), g.ApplicationID)
	if err != nil || ownerID != claims.UserID {
		http.Error(w, "forbidden", http.StatusForbidden)
		return Grant{}, false
	}
	return g, true
}

func toShareResponse(g Grant, now time.Time) shareResponse {
	return shareResponse{
		ID:                g.ID,
		Token:             g.Token,
		ApplicationID:     g.ApplicationID,
		LenderID:          g.LenderID,
		RecipientEmail:    g.RecipientEmail,
		AccessLevel:       string(g.AccessLevel),
		Status:            string(g.Status(now)),
		ExpiresAt:         g.ExpiresAt,
		MaxDownloads:      g.MaxDownloads,
		DownloadCount:     g.DownloadCount,
		AllowedIPPrefixes: g.AllowedIPPrefixes,
		CreatedAt:         g.CreatedAt,
		RevokedAt:         g.RevokedAt,
	}
}

// writeJSON está duplicado intencionalmente en handlers de distintos módulos
// para evitar crear paquetes/helpers compartidos demasiado pronto.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
