package grants

import (
	"net"
	"strings"
	"time"
)

// AccessLevel define el nivel de visibilidad del grant.
// Enum cerrado: summary (solo lectura proyectada) o full (descargas + ofertas).
type AccessLevel string

const (
	LevelSummary AccessLevel = "summary"
	LevelFull    AccessLevel = "full"
)

// Status se deriva del estado del grant; nunca se persiste por separado.
type Status string

const (
	StatusActive    Status = "active"
	StatusExpired   Status = "expired"
	StatusExhausted Status = "exhausted"
	StatusRevoked   Status = "revoked"
)

// Grant es la capability: acceso acotado a una aplicación de financiamiento
// sin cuenta de usuario. El token es opaco; toda la semántica vive acá.
type Grant struct {
	ID    string
	Token string

	ApplicationID string

	// LenderID es opcional: referencia al lender externo al que se emitió.
	LenderID string

	// RecipientEmail es para auditoría y notificación, no autenticación.
	RecipientEmail string

	AccessLevel AccessLevel

	ExpiresAt     time.Time
	MaxDownloads  int
	DownloadCount int

	// AllowedIPPrefixes vacío = sin restricción de red.
	AllowedIPPrefixes []string

	CreatedAt time.Time
	RevokedAt *time.Time
}

// Status calcula el estado vigente. Revocado y expirado son terminales;
// exhausted solo bloquea consumo, no la vista de lectura.
func (g Grant) Status(now time.Time) Status {
	switch {
	case g.RevokedAt != nil:
		return StatusRevoked
	case !now.Before(g.ExpiresAt):
		return StatusExpired
	case g.DownloadCount >= g.MaxDownloads:
		return StatusExhausted
	default:
		return StatusActive
	}
}

func (g Grant) DownloadsRemaining() int {
	if g.DownloadCount >= g.MaxDownloads {
		return 0
	}
	return g.MaxDownloads - g.DownloadCount
}

// IPAllowed matchea la dirección del caller contra la allow-list por prefijo.
func (g Grant) IPAllowed(addr string) bool {
	if len(g.AllowedIPPrefixes) == 0 {
		return true
	}
	host := strings.TrimSpace(addr)
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	if host == "" {
		return false
	}
	for _, p := range g.AllowedIPPrefixes {
		if p = strings.TrimSpace(p); p != "" && prefixMatches(host, p) {
			return true
		}
	}
	return false
}

// prefixMatches exige que el prefijo cierre en un límite de octeto (o de
// grupo, en IPv6): "10.1" admite 10.1.0.5 pero nunca 10.100.0.5.
func prefixMatches(host, prefix string) bool {
	if !strings.HasPrefix(host, prefix) {
		return false
	}
	if len(host) == len(prefix) {
		return true
	}
	if last := prefix[len(prefix)-1]; last == '.' || last == ':' {
		return true
	}
	next := host[len(prefix)]
	return next == '.' || next == ':'
}

// Actor identifica al caller externo (no autenticado) para el audit trail.
type Actor struct {
	Address string
	Agent   string
}
