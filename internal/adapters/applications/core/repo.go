package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"funding-share-gateway/internal/domain/applications"
	"funding-share-gateway/internal/platform/httpclient"
)

var (
	ErrCoreNotConfigured = errors.New("core client not configured")
	ErrCoreUpstream      = errors.New("core upstream error")
)

// Repo implementa applications.Repository contra la plataforma core, el
// sistema (fuera de este gateway) que es dueño de aplicaciones, documentos
// y ofertas. Este gateway nunca persiste esos datos localmente.
type Repo struct {
	http *httpclient.Client
}

func NewRepo(baseURL string, timeout time.Duration) (*Repo, error) {
	hc, err := httpclient.NewWithBaseURL(strings.TrimSpace(baseURL), timeout)
	if err != nil {
		return nil, err
	}
	return &Repo{http: hc}, nil
}

func (r *Repo) IsConfigured() bool {
	return r != nil && r.http != nil && r.http.BaseURL != ""
}

type applicationDTO struct {
	ID          string `json:"id"`
	OwnerUserID string `json:"owner_user_id"`

	CompanyName string `json:"company_name"`
	Industry    string `json:"industry"`

	RequestedAmount int64 `json:"requested_amount"`
	AnnualRevenue   int64 `json:"annual_revenue"`
	NetProfit       int64 `json:"net_profit"`
	YearsTrading    int   `json:"years_trading"`

	Documents []documentDTO `json:"documents"`
	Offers    []offerDTO    `json:"offers"`
}

type documentDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Type        string `json:"type"`
	Size        int64  `json:"size"`
	ContentType string `json:"content_type"`
}

type offerDTO struct {
	ID         string     `json:"id"`
	LenderID   string     `json:"lender_id"`
	Amount     int64      `json:"amount"`
	RateAPR    float64    `json:"rate_apr"`
	TermMonths int        `json:"term_months"`
	Status     string     `json:"status"`
	DecidedAt  *time.Time `json:"decided_at"`
}

func (r *Repo) GetByID(ctx context.Context, id string) (applications.Application, error) {
	if !r.IsConfigured() {
		return applications.Application{}, ErrCoreNotConfigured
	}

	var dto applicationDTO
	err := r.http.DoJSON(ctx, http.MethodGet, "/internal/applications/"+id, nil, nil, &dto)
	if err != nil {
		return applications.Application{}, mapCoreError(err)
	}
	return toApplication(dto), nil
}

func (r *Repo) OwnerOf(ctx context.Context, id string) (string, error) {
	if !r.IsConfigured() {
		return "", ErrCoreNotConfigured
	}

	var out struct {
		OwnerUserID string `json:"owner_user_id"`
	}
	err := r.http.DoJSON(ctx, http.MethodGet, "/internal/applications/"+id+"/owner", nil, nil, &out)
	if err != nil {
		return "", mapCoreError(err)
	}
	return strings.TrimSpace(out.OwnerUserID), nil
}

func (r *Repo) OpenDocument(ctx context.Context, applicationID, documentID string) (io.ReadCloser, applications.Document, error) {
	if !r.IsConfigured() {
		return nil, applications.Document{}, ErrCoreNotConfigured
	}

	// Path acotado a la aplicación: el core responde 404 para documentos
	// de otra aplicación, que acá se propaga como not found.
	rc, headers, err := r.http.DoStream(ctx, "/internal/applications/"+applicationID+"/documents/"+documentID, nil)
	if err != nil {
		return nil, applications.Document{}, mapCoreError(err)
	}

	doc := applications.Document{
		ID:          documentID,
		Name:        headers.Get("X-Document-Name"),
		Type:        headers.Get("X-Document-Type"),
		ContentType: headers.Get("Content-Type"),
	}
	if cl := headers.Get("Content-Length"); cl != "" {
		if n, err := strconv.ParseInt(cl, 10, 64); err == nil {
			doc.Size = n
		}
	}
	return rc, doc, nil
}

func (r *Repo) DecideOffer(ctx context.Context, applicationID, offerID string, decision applications.OfferStatus) (applications.Offer, error) {
	if !r.IsConfigured() {
		return applications.Offer{}, ErrCoreNotConfigured
	}

	var dto offerDTO
	err := r.http.DoJSON(ctx, http.MethodPost,
		"/internal/applications/"+applicationID+"/offers/"+offerID+"/decision",
		nil,
		map[string]string{"decision": string(decision)},
		&dto,
	)
	if err != nil {
		return applications.Offer{}, mapCoreError(err)
	}
	return toOffer(dto), nil
}

func mapCoreError(err error) error {
	var httpErr *httpclient.HTTPError
	if errors.As(err, &httpErr) {
		switch httpErr.StatusCode {
		case http.StatusNotFound:
			return applications.ErrNotFound
		case http.StatusConflict:
			return applications.ErrAlreadyDecided
		}
		return fmt.Errorf("%w: status=%d", ErrCoreUpstream, httpErr.StatusCode)
	}
	return fmt.Errorf("%w: %v", ErrCoreUpstream, err)
}

func toApplication(dto applicationDTO) applications.Application {
	app := applications.Application{
		ID:              dto.ID,
		OwnerUserID:     dto.OwnerUserID,
		CompanyName:     dto.CompanyName,
		Industry:        dto.Industry,
		RequestedAmount: dto.RequestedAmount,
		AnnualRevenue:   dto.AnnualRevenue,
		NetProfit:       dto.NetProfit,
		YearsTrading:    dto.YearsTrading,
	}
	for _, d := range dto.Documents {
		app.Documents = append(app.Documents, applications.Document{
			ID:          d.ID,
			Name:        d.Name,
			Type:        d.Type,
			Size:        d.Size,
			ContentType: d.ContentType,
		})
	}
	for _, o := range dto.Offers {
		app.Offers = append(app.Offers, toOffer(o))
	}
	return app
}

func toOffer(dto offerDTO) applications.Offer {
	return applications.Offer{
		ID:         dto.ID,
		LenderID:   dto.LenderID,
		Amount:     dto.Amount,
		RateAPR:    dto.RateAPR,
		TermMonths: dto.TermMonths,
		Status:     applications.OfferStatus(dto.Status),
		DecidedAt:  dto.DecidedAt,
	}
}
