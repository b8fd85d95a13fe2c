package audit

import "time"

// Acciones registradas en el access log.
const (
	ActionVerifySuccess = "verify_success"
	ActionDownload      = "download"
	ActionGrantIssued   = "grant_issued"
	ActionGrantRevoked  = "grant_revoked"
	ActionOfferAccepted = "offer_accepted"
	ActionOfferRejected = "offer_rejected"
)

// Razones específicas de rechazo. El caller externo ve un mensaje genérico;
// la razón fina queda solo acá, que es la señal forense primaria.
const (
	ReasonMalformed    = "malformed_token"
	ReasonNotFound     = "not_found"
	ReasonRevoked      = "revoked"
	ReasonExpired      = "expired"
	ReasonIPNotAllowed = "ip_not_allowed"
	ReasonQuota        = "quota_exceeded"
	ReasonInsufficient = "insufficient_access_level"
	ReasonBadDocToken  = "invalid_document_token"
	ReasonTransient    = "store_error"
)

// ActionVerifyFailure arma la acción de rechazo con su razón.
func ActionVerifyFailure(reason string) string {
	return "verify_failure:" + reason
}

// Entry es un hecho inmutable: se crea una vez por intento, jamás se muta
// ni se borra. GrantID puede ir vacío (token malformado o inexistente).
type Entry struct {
	ID           string
	GrantID      string
	Action       string
	ActorAddress string
	ActorAgent   string
	Detail       string
	CreatedAt    time.Time
}
