package share

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"funding-share-gateway/internal/domain/applications"
	"funding-share-gateway/internal/domain/grants"
	"funding-share-gateway/internal/middleware"

	"github.com/go-chi/chi/v5"
)

// RegisterRoutes monta la superficie pública del gateway: todo cuelga del
// token opaco, sin cuenta ni sesión. El actor (IP + agent) viene del contexto.
func RegisterRoutes(r chi.Router, grantsSvc *grants.Service, appsSvc *applications.Service) {
	r.Route("/access/{token}", func(ar chi.Router) {
		ar.Get("/", viewAccessHandler(grantsSvc, appsSvc))
		ar.Post("/", consumeAccessHandler(grantsSvc))
		ar.Get("/document/{documentID}", downloadDocumentHandler(grantsSvc, appsSvc))
		ar.Patch("/offer/{offerID}", decideOfferHandler(grantsSvc, appsSvc))
	})
}

// grantInfo es lo que el destinatario puede saber de su propio grant.
// Nunca incluye el token (ya lo tiene) ni contadores internos crudos.
type grantInfo struct {
	AccessLevel        string    `json:"access_level"`
	ExpiresAt          time.Time `json:"expires_at"`
	DownloadsRemaining int       `json:"downloads_remaining"`
	RecipientEmail     string    `json:"recipient_email"`
	LenderID           string    `json:"lender_id,omitempty"`
}

type accessResponse struct {
	Grant grantInfo                  `json:"grant"`
	Data  applications.ProjectedView `json:"data"`
}

type consumeRequest struct {
	Action string `json:"action"`
}

type consumeResponse struct {
	DownloadsRemaining int `json:"downloads_remaining"`
}

type decideOfferRequest struct {
	Action string `json:"action"` // accept | reject
}

// viewAccessHandler godoc
// @Summary Ver aplicación compartida
// @Description Resuelve un share token y devuelve la vista proyectada según el nivel de acceso del grant. La lectura no consume cuota de descargas.
// @Tags access
// @Produce json
// @Param token path string true "Share token (64 hex)"
// @Success 200 {object} accessResponse
// @Failure 403 {string} string "access denied"
// @Failure 404 {string} string "not found"
// @Failure 410 {string} string "access expired"
// @Router /access/{token} [get]
func viewAccessHandler(grantsSvc *grants.Service, appsSvc *applications.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := chi.URLParam(r, "token")
		actor := actorFrom(r)

		g, err := grantsSvc.Verify(r.Context(), token, actor)
		if err != nil {
			writeGrantError(w, err)
			return
		}

		app, err := appsSvc.GetByID(r.Context(), g.ApplicationID)
		if err != nil {
			if errors.Is(err, applications.ErrNotFound) {
				http.Error(w, "not found", http.StatusNotFound)
				return
			}
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}

		writeJSON(w, http.StatusOK, accessResponse{
			Grant: toGrantInfo(g),
			Data:  applications.Project(g, app, time.Now()),
		})
	}
}

// consumeAccessHandler godoc
// @Summary Consumir una unidad de descarga
// @Description Descuenta una unidad de la cuota del grant en una sola operación atómica contra el store. Dos requests concurrentes jamás superan max_downloads.
// @Tags access
// @Accept json
// @Produce json
// @Param token path string true "Share token (64 hex)"
// @Param payload body consumeRequest true "action debe ser download"
// @Success 200 {object} consumeResponse
// @Failure 400 {string} string "invalid action"
// @Failure 403 {string} string "access denied"
// @Failure 410 {string} string "access expired"
// @Failure 429 {string} string "download limit reached"
// @Router /access/{token} [post]
func consumeAccessHandler(grantsSvc *grants.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req consumeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}
		if strings.TrimSpace(req.Action) != "download" {
			http.Error(w, "invalid action", http.StatusBadRequest)
			return
		}

		_, remaining, err := grantsSvc.Consume(r.Context(), chi.URLParam(r, "token"), actorFrom(r))
		if err != nil {
			writeGrantError(w, err)
			return
		}

		// remaining es informativo, nunca autorización.
		writeJSON(w, http.StatusOK, consumeResponse{DownloadsRemaining: remaining})
	}
}

// downloadDocumentHandler godoc
// @Summary Descargar un documento
// @Description Requiere nivel full y el token derivado por documento (query t). Consume una unidad de cuota antes de streamear los bytes.
// @Tags access
// @Produce octet-stream
// @Param token path string true "Share token (64 hex)"
// @Param documentID path string true "ID del documento"
// @Param t query string true "Token de descarga derivado (viene en la vista full)"
// @Success 200 {string} string "bytes del documento"
// @Failure 403 {string} string "access denied"
// @Failure 404 {string} string "not found"
// @Failure 410 {string} string "access expired"
// @Failure 429 {string} string "download limit reached"
// @Router /access/{token}/document/{documentID} [get]
func downloadDocumentHandler(grantsSvc *grants.Service, appsSvc *applications.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := chi.URLParam(r, "token")
		documentID := chi.URLParam(r, "documentID")
		docToken := r.URL.Query().Get("t")

		g, _, err := grantsSvc.ConsumeDocument(r.Context(), token, documentID, docToken, actorFrom(r))
		if err != nil {
			writeGrantError(w, err)
			return
		}

		// El documento siempre se busca acotado al application del grant:
		// un documentID ajeno lee como inexistente.
		rc, doc, err := appsSvc.OpenDocument(r.Context(), g.ApplicationID, documentID)
		if err != nil {
			if errors.Is(err, applications.ErrNotFound) {
				http.Error(w, "not found", http.StatusNotFound)
				return
			}
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		defer rc.Close()

		ct := doc.ContentType
		if ct == "" {
			ct = "application/octet-stream"
		}
		w.Header().Set("Content-Type", ct)
		if doc.Name != "" {
			w.Header().Set("Content-Disposition", `attachment; filename="`+doc.Name+`"`)
		}
		if doc.Size > 0 {
			w.Header().Set("Content-Length", strconv.FormatInt(doc.Size, 10))
		}
		w.WriteHeader(http.StatusOK)
		_, _ = io.Copy(w, rc)
	}
}

// decideOfferHandler godoc
// @Summary Aceptar o rechazar una oferta
// @Description Requiere nivel full y oferta en estado pending. Repetir la decisión sobre una oferta ya decidida devuelve 400, nunca éxito silencioso.
// @Tags access
// @Accept json
// @Produce json
// @Param token path string true "Share token (64 hex)"
// @Param offerID path string true "ID de la oferta"
// @Param payload body decideOfferRequest true "action: accept o reject"
// @Success 200 {object} applications.OfferView
// @Failure 400 {string} string "invalid action / offer already decided"
// @Failure 403 {string} string "access denied"
// @Failure 404 {string} string "not found"
// @Failure 410 {string} string "access expired"
// @Router /access/{token}/offer/{offerID} [patch]
func decideOfferHandler(grantsSvc *grants.Service, appsSvc *applications.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor := actorFrom(r)

		var req decideOfferRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}

		var decision applications.OfferStatus
		switch strings.TrimSpace(req.Action) {
		case "accept":
			decision = applications.OfferAccepted
		case "reject":
			decision = applications.OfferRejected
		default:
			http.Error(w, "invalid action", http.StatusBadRequest)
			return
		}

		g, err := grantsSvc.VerifyLevel(r.Context(), chi.URLParam(r, "token"), actor, grants.LevelFull)
		if err != nil {
			writeGrantError(w, err)
			return
		}

		offerID := chi.URLParam(r, "offerID")
		offer, err := appsSvc.DecideOffer(r.Context(), g.ApplicationID, offerID, decision)
		if err != nil {
			switch {
			case errors.Is(err, applications.ErrAlreadyDecided):
				http.Error(w, "offer already decided", http.StatusBadRequest)
			case errors.Is(err, applications.ErrNotFound):
				http.Error(w, "not found", http.StatusNotFound)
			default:
				http.Error(w, "internal error", http.StatusInternalServerError)
			}
			return
		}

		grantsSvc.RecordOfferDecision(r.Context(), g, actor, offerID, decision == applications.OfferAccepted)

		writeJSON(w, http.StatusOK, applications.OfferView{
			ID:         offer.ID,
			LenderID:   offer.LenderID,
			Amount:     offer.Amount,
			RateAPR:    offer.RateAPR,
			TermMonths: offer.TermMonths,
			Status:     string(offer.Status),
			DecidedAt:  offer.DecidedAt,
		})
	}
}

func toGrantInfo(g grants.Grant) grantInfo {
	return grantInfo{
		AccessLevel:        string(g.AccessLevel),
		ExpiresAt:          g.ExpiresAt,
		DownloadsRemaining: g.DownloadsRemaining(),
		RecipientEmail:     g.RecipientEmail,
		LenderID:           g.LenderID,
	}
}

func actorFrom(r *http.Request) grants.Actor {
	a := middleware.GetActor(r.Context())
	return grants.Actor{Address: a.Address, Agent: a.Agent}
}

// writeGrantError mapea la taxonomía interna a status fijos con mensajes
// genéricos. La asimetría es deliberada: auditoría rica adentro, error seco
// afuera. Malformado y not-found son indistinguibles; revocado, IP bloqueada,
// nivel insuficiente y firma inválida colapsan en un mismo 403.
func writeGrantError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, grants.ErrMalformedToken), errors.Is(err, grants.ErrNotFound):
		http.Error(w, "not found", http.StatusNotFound)
	case errors.Is(err, grants.ErrRevoked),
		errors.Is(err, grants.ErrIPNotAllowed),
		errors.Is(err, grants.ErrInsufficientAccess),
		errors.Is(err, grants.ErrBadDocumentToken):
		http.Error(w, "access denied", http.StatusForbidden)
	case errors.Is(err, grants.ErrExpired):
		http.Error(w, "access expired", http.StatusGone)
	case errors.Is(err, grants.ErrQuotaExceeded):
		http.Error(w, "download limit reached", http.StatusTooManyRequests)
	case errors.Is(err, grants.ErrTransient):
		http.Error(w, "temporarily unavailable", http.StatusServiceUnavailable)
	default:
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

// writeJSON está duplicado a propósito en handlers de distintos módulos;
// si aparece en más lugares recién conviene extraerlo a un helper común.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
