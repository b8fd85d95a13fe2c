package applications

import (
	"context"
	"errors"
	"io"
)

var (
	// ErrNotFound cubre también referencias cross-tenant: un documento u
	// oferta de otra aplicación se reporta como inexistente, no como
	// prohibido, para no confirmar su existencia.
	ErrNotFound        = errors.New("not found")
	ErrAlreadyDecided  = errors.New("offer already decided")
	ErrInvalidDecision = errors.New("invalid decision")
)

// Repository es el puerto hacia el dueño de los datos (la plataforma core).
type Repository interface {
	GetByID(ctx context.Context, id string) (Application, error)
	OwnerOf(ctx context.Context, id string) (string, error)

	// OpenDocument streamea los bytes de un documento, siempre acotado a la
	// aplicación indicada. El caller cierra el reader.
	OpenDocument(ctx context.Context, applicationID, documentID string) (io.ReadCloser, Document, error)

	// DecideOffer transiciona una oferta pending a accepted/rejected.
	// Sobre una oferta ya decidida devuelve ErrAlreadyDecided, nunca éxito
	// silencioso.
	DecideOffer(ctx context.Context, applicationID, offerID string, decision OfferStatus) (Offer, error)
}
