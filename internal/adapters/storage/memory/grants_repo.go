package memory

import (
	"context"
	"errors"
	"sync"
	"time"

	"funding-share-gateway/internal/domain/grants"
)

type grantsRepo struct {
	mu      sync.Mutex
	byID    map[string]grants.Grant
	byToken map[string]string // token -> id
}

func NewGrantsRepo() grants.Repository {
	return &grantsRepo{
		byID:    make(map[string]grants.Grant),
		byToken: make(map[string]string),
	}
}

func (r *grantsRepo) Create(ctx context.Context, g grants.Grant) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if g.ID == "" || g.Token == "" {
		return errors.New("grant id and token required")
	}
	if _, exists := r.byID[g.ID]; exists {
		return errors.New("grant already exists")
	}
	if _, exists := r.byToken[g.Token]; exists {
		return grants.ErrTokenTaken
	}
	r.byID[g.ID] = g
	r.byToken[g.Token] = g.ID
	return nil
}

func (r *grantsRepo) GetByToken(ctx context.Context, token string) (grants.Grant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id, ok := r.byToken[token]
	if !ok {
		return grants.Grant{}, grants.ErrNotFound
	}
	return r.byID[id], nil
}

func (r *grantsRepo) GetByID(ctx context.Context, id string) (grants.Grant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	g, ok := r.byID[id]
	if !ok {
		return grants.Grant{}, grants.ErrNotFound
	}
	return g, nil
}

func (r *grantsRepo) ListByApplication(ctx context.Context, applicationID string) ([]grants.Grant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]grants.Grant, 0)
	for _, g := range r.byID {
		if g.ApplicationID == applicationID {
			out = append(out, g)
		}
	}
	return out, nil
}

func (r *grantsRepo) Revoke(ctx context.Context, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	g, ok := r.byID[id]
	if !ok {
		return grants.ErrNotFound
	}
	if g.RevokedAt == nil {
		t := at
		g.RevokedAt = &t
		r.byID[id] = g
	}
	return nil
}

// ConsumeDownload cumple el mismo contrato atómico que el UPDATE condicional
// de Postgres: chequeo e incremento bajo un solo lock, sin ventana entre
// leer y escribir. Es lo que permite testear la propiedad de cuota con
// callers concurrentes reales.
func (r *grantsRepo) ConsumeDownload(ctx context.Context, id string, now time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	g, ok := r.byID[id]
	if !ok {
		return 0, grants.ErrNotFound
	}

	switch g.Status(now) {
	case grants.StatusRevoked:
		return 0, grants.ErrRevoked
	case grants.StatusExpired:
		return 0, grants.ErrExpired
	case grants.StatusExhausted:
		return 0, grants.ErrQuotaExceeded
	}

	g.DownloadCount++
	r.byID[id] = g
	return g.MaxDownloads - g.DownloadCount, nil
}
