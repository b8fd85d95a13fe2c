package applications

import (
	"context"
	"io"
	"strings"
)

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) GetByID(ctx context.Context, id string) (Application, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Application{}, ErrNotFound
	}
	return s.repo.GetByID(ctx, id)
}

// OwnerOf expone el dueño de una aplicación. Lo usan los handlers de otros
// módulos vía interfaz local (mismo patrón anti-ciclos de lookup por owner).
func (s *Service) OwnerOf(ctx context.Context, id string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", ErrNotFound
	}
	return s.repo.OwnerOf(ctx, id)
}

func (s *Service) OpenDocument(ctx context.Context, applicationID, documentID string) (io.ReadCloser, Document, error) {
	applicationID = strings.TrimSpace(applicationID)
	documentID = strings.TrimSpace(documentID)
	if applicationID == "" || documentID == "" {
		return nil, Document{}, ErrNotFound
	}
	return s.repo.OpenDocument(ctx, applicationID, documentID)
}

func (s *Service) DecideOffer(ctx context.Context, applicationID, offerID string, decision OfferStatus) (Offer, error) {
	applicationID = strings.TrimSpace(applicationID)
	offerID = strings.TrimSpace(offerID)
	if applicationID == "" || offerID == "" {
		return Offer{}, ErrNotFound
	}
	if decision != OfferAccepted && decision != OfferRejected {
		return Offer{}, ErrInvalidDecision
	}
	return s.repo.DecideOffer(ctx, applicationID, offerID, decision)
}
