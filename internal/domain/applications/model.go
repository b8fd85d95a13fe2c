package applications

import "time"

// Application es el agregado que vive en la plataforma core (externa a este
// gateway). Acá solo se lee y se proyecta; nunca se persiste localmente.
type Application struct {
	ID          string
	OwnerUserID string

	CompanyName string
	Industry    string

	// Montos en centavos.
	RequestedAmount int64
	AnnualRevenue   int64
	NetProfit       int64
	YearsTrading    int

	Documents []Document
	Offers    []Offer
}

type Document struct {
	ID          string
	Name        string
	Type        string // bank_statement, tax_return, accounts, other
	Size        int64
	ContentType string
}

type OfferStatus string

const (
	OfferPending   OfferStatus = "pending"
	OfferAccepted  OfferStatus = "accepted"
	OfferRejected  OfferStatus = "rejected"
	OfferWithdrawn OfferStatus = "withdrawn"
)

type Offer struct {
	ID         string
	LenderID   string
	Amount     int64
	RateAPR    float64
	TermMonths int
	Status     OfferStatus
	DecidedAt  *time.Time
}
