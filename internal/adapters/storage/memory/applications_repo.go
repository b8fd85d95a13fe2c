package memory

import (
	"bytes"
	"context"
	"io"
	"sync"
	"time"

	"funding-share-gateway/internal/domain/applications"
)

// ApplicationsRepo es el fake del dueño de datos (la plataforma core).
// Sirve para modo dev sin upstream y para los tests end-to-end, que lo
// siembran con Put antes de levantar el router.
type ApplicationsRepo struct {
	mu   sync.Mutex
	apps map[string]applications.Application
	docs map[string][]byte // applicationID/documentID -> contenido
	now  func() time.Time
}

func NewApplicationsRepo() *ApplicationsRepo {
	return &ApplicationsRepo{
		apps: make(map[string]applications.Application),
		docs: make(map[string][]byte),
		now:  time.Now,
	}
}

// Put siembra una aplicación con el contenido de sus documentos.
func (r *ApplicationsRepo) Put(app applications.Application, docContents map[string][]byte) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.apps[app.ID] = app
	for docID, content := range docContents {
		r.docs[app.ID+"/"+docID] = content
	}
}

func (r *ApplicationsRepo) GetByID(ctx context.Context, id string) (applications.Application, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	app, ok := r.apps[id]
	if !ok {
		return applications.Application{}, applications.ErrNotFound
	}
	return app, nil
}

func (r *ApplicationsRepo) OwnerOf(ctx context.Context, id string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	app, ok := r.apps[id]
	if !ok {
		return "", applications.ErrNotFound
	}
	return app.OwnerUserID, nil
}

func (r *ApplicationsRepo) OpenDocument(ctx context.Context, applicationID, documentID string) (io.ReadCloser, applications.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	app, ok := r.apps[applicationID]
	if !ok {
		return nil, applications.Document{}, applications.ErrNotFound
	}

	var doc applications.Document
	found := false
	for _, d := range app.Documents {
		if d.ID == documentID {
			doc = d
			found = true
			break
		}
	}
	if !found {
		// Cubre también documentID de otra aplicación: not found, no forbidden.
		return nil, applications.Document{}, applications.ErrNotFound
	}

	content := r.docs[applicationID+"/"+documentID]
	return io.NopCloser(bytes.NewReader(content)), doc, nil
}

func (r *ApplicationsRepo) DecideOffer(ctx context.Context, applicationID, offerID string, decision applications.OfferStatus) (applications.Offer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	app, ok := r.apps[applicationID]
	if !ok {
		return applications.Offer{}, applications.ErrNotFound
	}

	for i, o := range app.Offers {
		if o.ID != offerID {
			continue
		}
		if o.Status != applications.OfferPending {
			return applications.Offer{}, applications.ErrAlreadyDecided
		}
		now := r.now()
		o.Status = decision
		o.DecidedAt = &now
		app.Offers[i] = o
		r.apps[applicationID] = app
		return o, nil
	}
	return applications.Offer{}, applications.ErrNotFound
}
