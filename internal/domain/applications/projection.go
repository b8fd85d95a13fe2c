package applications

import (
	"fmt"
	"time"

	"funding-share-gateway/internal/domain/grants"
)

// ProjectedView es la vista que ve el destinatario del share link.
// Los campos "solo full" van con omitempty: en summary directamente no existen.
type ProjectedView struct {
	ApplicationID string         `json:"application_id"`
	CompanyName   string         `json:"company_name"`
	Industry      string         `json:"industry"`
	Financials    FinancialView  `json:"financials"`
	Documents     []DocumentView `json:"documents"`
	Offers        []OfferView    `json:"offers,omitempty"`
}

type FinancialView struct {
	// RevenueBand es el resumen redactado que ve summary.
	RevenueBand  string `json:"revenue_band"`
	YearsTrading int    `json:"years_trading"`

	// Cifras exactas, solo en full.
	RequestedAmount *int64 `json:"requested_amount,omitempty"`
	AnnualRevenue   *int64 `json:"annual_revenue,omitempty"`
	NetProfit       *int64 `json:"net_profit,omitempty"`
}

type DocumentView struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Type string `json:"type"`

	// Capability de descarga derivada del grant (nunca el token padre),
	// solo en full. Vence por ventana de tiempo.
	DownloadToken string     `json:"download_token,omitempty"`
	DownloadPath  string     `json:"download_path,omitempty"`
	TokenExpires  *time.Time `json:"token_expires,omitempty"`
}

type OfferView struct {
	ID         string     `json:"id"`
	LenderID   string     `json:"lender_id"`
	Amount     int64      `json:"amount"`
	RateAPR    float64    `json:"rate_apr"`
	TermMonths int        `json:"term_months"`
	Status     string     `json:"status"`
	DecidedAt  *time.Time `json:"decided_at,omitempty"`
}

// Project construye la vista permitida por el nivel del grant. Es una función
// pura y total: mismo input, misma vista, sin efectos, nunca panic.
// Cualquier nivel desconocido o vacío cae a summary: fail closed, no open.
func Project(g grants.Grant, app Application, now time.Time) ProjectedView {
	view := ProjectedView{
		ApplicationID: app.ID,
		CompanyName:   app.CompanyName,
		Industry:      app.Industry,
		Financials: FinancialView{
			RevenueBand:  revenueBand(app.AnnualRevenue),
			YearsTrading: app.YearsTrading,
		},
		Documents: make([]DocumentView, 0, len(app.Documents)),
	}

	for _, d := range app.Documents {
		view.Documents = append(view.Documents, DocumentView{
			ID:   d.ID,
			Name: d.Name,
			Type: d.Type,
		})
	}

	switch g.AccessLevel {
	case grants.LevelFull:
		req, rev, net := app.RequestedAmount, app.AnnualRevenue, app.NetProfit
		view.Financials.RequestedAmount = &req
		view.Financials.AnnualRevenue = &rev
		view.Financials.NetProfit = &net

		expires := now.Truncate(grants.DocumentTokenWindow).Add(2 * grants.DocumentTokenWindow)
		for i := range view.Documents {
			d := &view.Documents[i]
			dt := grants.DocumentToken(g.Token, d.ID, now)
			d.DownloadToken = dt
			d.DownloadPath = fmt.Sprintf("/access/%s/document/%s?t=%s", g.Token, d.ID, dt)
			e := expires
			d.TokenExpires = &e
		}

		view.Offers = make([]OfferView, 0, len(app.Offers))
		for _, o := range app.Offers {
			view.Offers = append(view.Offers, OfferView{
				ID:         o.ID,
				LenderID:   o.LenderID,
				Amount:     o.Amount,
				RateAPR:    o.RateAPR,
				TermMonths: o.TermMonths,
				Status:     string(o.Status),
				DecidedAt:  o.DecidedAt,
			})
		}

	case grants.LevelSummary:
		// nada extra

	default:
		// nivel no reconocido => queda la vista summary armada arriba
	}

	return view
}

func revenueBand(v int64) string {
	// Bandas en unidades monetarias (v viene en centavos).
	switch {
	case v <= 0:
		return "undisclosed"
	case v < 100_000_00:
		return "under_100k"
	case v < 1_000_000_00:
		return "100k_to_1m"
	case v < 10_000_000_00:
		return "1m_to_10m"
	default:
		return "over_10m"
	}
}
