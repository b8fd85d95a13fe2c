package grants

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"funding-share-gateway/internal/domain/audit"

	"github.com/google/uuid"
)

var (
	ErrInvalidInput       = errors.New("invalid input")
	ErrMalformedToken     = errors.New("malformed token")
	ErrNotFound           = errors.New("not found")
	ErrRevoked            = errors.New("revoked")
	ErrExpired            = errors.New("expired")
	ErrIPNotAllowed       = errors.New("ip not allowed")
	ErrQuotaExceeded      = errors.New("quota exceeded")
	ErrInsufficientAccess = errors.New("insufficient access level")
	ErrBadDocumentToken   = errors.New("invalid document token")
	ErrTokenTaken         = errors.New("token already exists")
	ErrTransient          = errors.New("store unavailable")
)

const (
	defaultTTL          = 7 * 24 * time.Hour
	defaultMaxDownloads = 10

	// Reintentos acotados: generación de token y consumo ante errores transitorios.
	tokenAttempts   = 3
	consumeAttempts = 3
	consumeBackoff  = 50 * time.Millisecond
)

type Service struct {
	repo  Repository
	audit *audit.Service
	now   func() time.Time
	sleep func(time.Duration)
}

func NewService(repo Repository, auditSvc *audit.Service) *Service {
	return &Service{
		repo:  repo,
		audit: auditSvc,
		now:   time.Now,
		sleep: time.Sleep,
	}
}

type IssueInput struct {
	ApplicationID  string
	LenderID       string
	RecipientEmail string
	AccessLevel    string
	ExpiresIn      time.Duration

	// MaxDownloads nil => default. Cero explícito es válido (grant sin descargas).
	MaxDownloads *int

	AllowedIPPrefixes []string
}

// Issue crea un grant con token nuevo. Todos los campos quedan fijos salvo
// download_count y revoked_at, que solo mutan vía ConsumeDownload/Revoke.
func (s *Service) Issue(ctx context.Context, in IssueInput) (Grant, error) {
	appID := strings.TrimSpace(in.ApplicationID)
	email := strings.TrimSpace(in.RecipientEmail)

	if appID == "" || email == "" || !strings.Contains(email, "@") {
		return Grant{}, ErrInvalidInput
	}

	// Nivel: vacío => summary. Valores desconocidos se rechazan en emisión
	// (en proyección, en cambio, caen a summary: fail closed).
	level := LevelSummary
	if raw := strings.TrimSpace(in.AccessLevel); raw != "" {
		switch AccessLevel(raw) {
		case LevelSummary, LevelFull:
			level = AccessLevel(raw)
		default:
			return Grant{}, ErrInvalidInput
		}
	}

	ttl := in.ExpiresIn
	if ttl <= 0 {
		ttl = defaultTTL
	}

	maxDownloads := defaultMaxDownloads
	if in.MaxDownloads != nil {
		if *in.MaxDownloads < 0 {
			return Grant{}, ErrInvalidInput
		}
		maxDownloads = *in.MaxDownloads
	}

	prefixes := make([]string, 0, len(in.AllowedIPPrefixes))
	for _, p := range in.AllowedIPPrefixes {
		if p = strings.TrimSpace(p); p != "" {
			prefixes = append(prefixes, p)
		}
	}

	now := s.now()
	g := Grant{
		ID:                uuid.NewString(),
		ApplicationID:     appID,
		LenderID:          strings.TrimSpace(in.LenderID),
		RecipientEmail:    email,
		AccessLevel:       level,
		ExpiresAt:         now.Add(ttl),
		MaxDownloads:      maxDownloads,
		AllowedIPPrefixes: prefixes,
		CreatedAt:         now,
	}

	// Colisión de token = fallo de generación: regeneramos con tope de intentos.
	var err error
	for i := 0; i < tokenAttempts; i++ {
		g.Token, err = NewToken()
		if err != nil {
			return Grant{}, err
		}
		err = s.repo.Create(ctx, g)
		if err == nil {
			s.record(ctx, g.ID, audit.ActionGrantIssued, Actor{}, "level="+string(level))
			return g, nil
		}
		if !errors.Is(err, ErrTokenTaken) {
			return Grant{}, err
		}
	}
	return Grant{}, err
}

// Verify resuelve un token a un grant activo para lectura.
// Equivale a VerifyLevel con el nivel mínimo (summary).
func (s *Service) Verify(ctx context.Context, token string, actor Actor) (Grant, error) {
	return s.VerifyLevel(ctx, token, actor, LevelSummary)
}

// VerifyLevel valida forma, existencia, revocación, expiración, allow-list de
// IP y nivel requerido, en ese orden. Cada llamada deja exactamente una
// entrada de auditoría con la razón específica: los patrones de abuso
// (reuso de links vencidos vs brute force vs mismatch de red) se distinguen
// solo desde el log, nunca desde la respuesta al caller.
func (s *Service) VerifyLevel(ctx context.Context, token string, actor Actor, required AccessLevel) (Grant, error) {
	g, reason, err := s.resolve(ctx, token, actor)
	if err != nil {
		s.record(ctx, g.ID, audit.ActionVerifyFailure(reason), actor, "")
		return Grant{}, err
	}

	if required == LevelFull && g.AccessLevel != LevelFull {
		s.record(ctx, g.ID, audit.ActionVerifyFailure(audit.ReasonInsufficient), actor, "")
		return Grant{}, ErrInsufficientAccess
	}

	s.record(ctx, g.ID, audit.ActionVerifySuccess, actor, "")
	return g, nil
}

// Consume descuenta una unidad de cuota vía la primitiva atómica del store.
// Expiración y revocación se re-chequean dentro de esa misma operación: un
// grant puede vencer entre la verificación y el consumo en un request lento.
func (s *Service) Consume(ctx context.Context, token string, actor Actor) (Grant, int, error) {
	g, reason, err := s.resolve(ctx, token, actor)
	if err != nil {
		s.record(ctx, g.ID, audit.ActionVerifyFailure(reason), actor, "")
		return Grant{}, 0, err
	}
	return s.consumeQuota(ctx, g, actor, "")
}

// ConsumeDocument es Consume para el path de descarga de documentos:
// exige nivel full y firma derivada válida antes de gastar cuota.
func (s *Service) ConsumeDocument(ctx context.Context, token, documentID, documentToken string, actor Actor) (Grant, int, error) {
	detail := "document=" + documentID

	g, reason, err := s.resolve(ctx, token, actor)
	if err != nil {
		s.record(ctx, g.ID, audit.ActionVerifyFailure(reason), actor, detail)
		return Grant{}, 0, err
	}

	if g.AccessLevel != LevelFull {
		s.record(ctx, g.ID, audit.ActionVerifyFailure(audit.ReasonInsufficient), actor, detail)
		return Grant{}, 0, ErrInsufficientAccess
	}
	if !ValidDocumentToken(g.Token, documentID, documentToken, s.now()) {
		s.record(ctx, g.ID, audit.ActionVerifyFailure(audit.ReasonBadDocToken), actor, detail)
		return Grant{}, 0, ErrBadDocumentToken
	}

	return s.consumeQuota(ctx, g, actor, detail)
}

// Revoke es idempotente y terminal: un grant revocado no resucita.
func (s *Service) Revoke(ctx context.Context, grantID string) (Grant, error) {
	grantID = strings.TrimSpace(grantID)
	if grantID == "" {
		return Grant{}, ErrInvalidInput
	}

	g, err := s.repo.GetByID(ctx, grantID)
	if err != nil {
		return Grant{}, ErrNotFound
	}
	if g.RevokedAt != nil {
		return g, nil
	}

	now := s.now()
	if err := s.repo.Revoke(ctx, g.ID, now); err != nil {
		return Grant{}, err
	}
	g.RevokedAt = &now

	s.record(ctx, g.ID, audit.ActionGrantRevoked, Actor{}, "")
	return g, nil
}

func (s *Service) GetByID(ctx context.Context, grantID string) (Grant, error) {
	grantID = strings.TrimSpace(grantID)
	if grantID == "" {
		return Grant{}, ErrInvalidInput
	}
	g, err := s.repo.GetByID(ctx, grantID)
	if err != nil {
		return Grant{}, ErrNotFound
	}
	return g, nil
}

func (s *Service) ListByApplication(ctx context.Context, applicationID string) ([]Grant, error) {
	applicationID = strings.TrimSpace(applicationID)
	if applicationID == "" {
		return nil, ErrInvalidInput
	}
	return s.repo.ListByApplication(ctx, applicationID)
}

// RecordOfferDecision deja la entrada de auditoría de una decisión de oferta.
func (s *Service) RecordOfferDecision(ctx context.Context, g Grant, actor Actor, offerID string, accepted bool) {
	action := audit.ActionOfferRejected
	if accepted {
		action = audit.ActionOfferAccepted
	}
	s.record(ctx, g.ID, action, actor, "offer="+offerID)
}

// AuditTrail devuelve el log del grant (superficie de owner).
func (s *Service) AuditTrail(ctx context.Context, grantID string) ([]audit.Entry, error) {
	if s.audit == nil {
		return nil, nil
	}
	return s.audit.ListByGrant(ctx, grantID)
}

// resolve hace los chequeos de verificación sin auditar; el caller decide la
// entrada. Devuelve el grant (puede traer ID aun en fallo, para el log) y la
// razón específica del rechazo.
func (s *Service) resolve(ctx context.Context, token string, actor Actor) (Grant, string, error) {
	token = strings.TrimSpace(token)
	if !ValidToken(token) {
		// Basura sintáctica: se rechaza sin tocar el store.
		return Grant{}, audit.ReasonMalformed, ErrMalformedToken
	}

	g, err := s.repo.GetByToken(ctx, token)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			// Indistinguible de "token inválido" para el caller: no
			// confirmamos si un token bien formado existió alguna vez.
			return Grant{}, audit.ReasonNotFound, ErrNotFound
		}
		return Grant{}, audit.ReasonTransient, ErrTransient
	}

	switch g.Status(s.now()) {
	case StatusRevoked:
		return g, audit.ReasonRevoked, ErrRevoked
	case StatusExpired:
		return g, audit.ReasonExpired, ErrExpired
	}

	if !g.IPAllowed(actor.Address) {
		return g, audit.ReasonIPNotAllowed, ErrIPNotAllowed
	}

	return g, "", nil
}

// consumeQuota ejecuta la primitiva atómica con reintentos acotados y backoff
// exponencial solo ante errores transitorios; las denegaciones son finales.
func (s *Service) consumeQuota(ctx context.Context, g Grant, actor Actor, detail string) (Grant, int, error) {
	var remaining int
	var err error

	for attempt := 0; ; attempt++ {
		remaining, err = s.repo.ConsumeDownload(ctx, g.ID, s.now())
		if err == nil || !errors.Is(err, ErrTransient) {
			break
		}
		if attempt+1 >= consumeAttempts || ctx.Err() != nil {
			break
		}
		s.sleep(consumeBackoff << attempt)
	}

	if err != nil {
		reason := audit.ReasonTransient
		switch {
		case errors.Is(err, ErrRevoked):
			reason = audit.ReasonRevoked
		case errors.Is(err, ErrExpired):
			reason = audit.ReasonExpired
		case errors.Is(err, ErrQuotaExceeded):
			reason = audit.ReasonQuota
		case errors.Is(err, ErrNotFound):
			reason = audit.ReasonNotFound
		}
		s.record(ctx, g.ID, audit.ActionVerifyFailure(reason), actor, detail)
		return Grant{}, 0, err
	}

	g.DownloadCount = g.MaxDownloads - remaining

	d := fmt.Sprintf("remaining=%d", remaining)
	if detail != "" {
		d = detail + " " + d
	}
	s.record(ctx, g.ID, audit.ActionDownload, actor, d)

	return g, remaining, nil
}

func (s *Service) record(ctx context.Context, grantID, action string, actor Actor, detail string) {
	if s.audit == nil {
		return
	}
	s.audit.Record(ctx, audit.Entry{
		GrantID:      grantID,
		Action:       action,
		ActorAddress: actor.Address,
		ActorAgent:   actor.Agent,
		Detail:       detail,
	})
}
