package dto

import (
	"time"

	"github.com/shopspring/decimal"
)

// InvoiceResponse factura para GET /api/invoices/:id.
type InvoiceResponse struct {
	ID              string          `json:"id"`
	Number          string          `json:"number"` // PPPPP-NNNNNNNN
	Numero          int64           `json:"numero"`
	PuntoVenta      int             `json:"punto_venta"`
	TipoComprobante int             `json:"tipo_comprobante"`
	ProviderID      string          `json:"provider_id"`
	SubscriptionID  string          `json:"subscription_id"`
	CycleNumber     int             `json:"cycle_number"`
	PlanType        string          `json:"plan_type"`
	PlanName        string          `json:"plan_name,omitempty"`
	NetAmount       decimal.Decimal `json:"net_amount"`
	VATAmount       decimal.Decimal `json:"vat_amount"`
	Amount          decimal.Decimal `json:"amount"`
	Currency        string          `json:"currency"`
	Status          string          `json:"status"`        // PENDING|PAID|OVERDUE|CANCELLED|FAILED
	FiscalStatus    string          `json:"fiscal_status"` // DRAFT|AUTHORIZATION_PENDING|AUTHORIZED|REJECTED
	AFIPStatus      string          `json:"afip_status"`   // pendiente|aprobada|rechazada
	PeriodStart     time.Time       `json:"period_start"`
	PeriodEnd       time.Time       `json:"period_end"`
	IssueDate       time.Time       `json:"issue_date"`
	DueDate         time.Time       `json:"due_date"`
	PaidAt          *time.Time      `json:"paid_at,omitempty"`
	PaymentMethod   string          `json:"payment_method,omitempty"`
	PaymentID       string          `json:"payment_id,omitempty"`
	CAE             string          `json:"cae,omitempty"`
	CAEExpiration   *time.Time      `json:"cae_expiration,omitempty"`
	AFIPErrors      string          `json:"afip_errors,omitempty"`
	AuthAttempts    int             `json:"auth_attempts"`
}

// InvoiceListResponse listado paginado de facturas de una suscripción.
type InvoiceListResponse struct {
	Items []InvoiceResponse `json:"items"`
	Page  InvoicePage       `json:"page"`
}

// BillingCycleResponse ciclo vigente de una suscripción.
type BillingCycleResponse struct {
	ID              string     `json:"id"`
	SubscriptionID  string     `json:"subscription_id"`
	StartDate       time.Time  `json:"start_date"`
	EndDate         time.Time  `json:"end_date"`
	LastBillingDate *time.Time `json:"last_billing_date,omitempty"`
	NextBillingDate time.Time  `json:"next_billing_date"`
	Status          string     `json:"status"`
	Frequency       string     `json:"frequency"`
	CycleNumber     int        `json:"cycle_number"`
	LastInvoiceID   string     `json:"last_invoice_id,omitempty"`
}

// RegisterPaymentRequest body para POST /api/invoices/:id/payments.
type RegisterPaymentRequest struct {
	PaymentID string     `json:"payment_id"`
	PaidAt    *time.Time `json:"paid_at,omitempty"` // vacío = ahora
}

// AuthorizationResponse resultado de POST /api/invoices/:id/authorize.
type AuthorizationResponse struct {
	Outcome string          `json:"outcome"`
	Invoice InvoiceResponse `json:"invoice"`
}

// RunSummaryResponse resultado de POST /api/billing/runs.
type RunSummaryResponse struct {
	RunID         string    `json:"run_id"`
	StartedAt     time.Time `json:"started_at"`
	FinishedAt    time.Time `json:"finished_at"`
	Total         int       `json:"total"`
	Skipped       int       `json:"skipped"`
	NotDue        int       `json:"not_due"`
	Invoiced      int       `json:"invoiced"`
	Pending       int       `json:"pending"`
	Rejected      int       `json:"rejected"`
	AlreadyBilled int       `json:"already_billed"`
	LookupErrors  int       `json:"lookup_errors"`
	Failed        int       `json:"failed"`
}
