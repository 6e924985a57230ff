package entity

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/jhoicas/facturacion-suscripciones/internal/domain"
)

// Estados de cobro de la factura.
type InvoiceStatus string

const (
	InvoiceStatusPending   InvoiceStatus = "PENDING"
	InvoiceStatusPaid      InvoiceStatus = "PAID"
	InvoiceStatusOverdue   InvoiceStatus = "OVERDUE"
	InvoiceStatusCancelled InvoiceStatus = "CANCELLED"
	InvoiceStatusFailed    InvoiceStatus = "FAILED"
)

// Estados fiscales frente a AFIP.
type FiscalStatus string

const (
	FiscalStatusDraft                FiscalStatus = "DRAFT"                 // guardada para reservar número
	FiscalStatusAuthorizationPending FiscalStatus = "AUTHORIZATION_PENDING" // AFIP no respondió
	FiscalStatusAuthorized           FiscalStatus = "AUTHORIZED"            // CAE otorgado
	FiscalStatusRejected             FiscalStatus = "REJECTED"              // AFIP rechazó el comprobante
)

// Legacy devuelve el estado en la variante simple (aprobada, rechazada, pendiente) que leen los reportes del marketplace.
func (s FiscalStatus) Legacy() string {
	switch s {
	case FiscalStatusAuthorized:
		return "aprobada"
	case FiscalStatusRejected:
		return "rechazada"
	default:
		return "pendiente"
	}
}

// IsOpen indica si la factura todavía puede (re)enviarse a AFIP.
func (s FiscalStatus) IsOpen() bool {
	return s == FiscalStatusDraft || s == FiscalStatusAuthorizationPending || s == FiscalStatusRejected
}

// BillingPeriod es el período de servicio facturado.
type BillingPeriod struct {
	StartDate time.Time
	EndDate   time.Time
}

// PlanSnapshot copia del plan al momento de facturar; los cambios de precio
// posteriores no alteran facturas históricas.
type PlanSnapshot struct {
	ID        string
	Type      string
	Name      string
	Price     decimal.Decimal
	Currency  string
	Frequency Frequency
}

// SnapshotOf copia el plan vigente.
func SnapshotOf(p *Plan) PlanSnapshot {
	if p == nil {
		return PlanSnapshot{}
	}
	return PlanSnapshot{
		ID: p.ID, Type: p.Type, Name: p.Name,
		Price: p.Price, Currency: p.Currency, Frequency: p.Frequency.Normalize(),
	}
}

// Invoice es la factura de un período de una suscripción.
// (Numero, PuntoVenta, TipoComprobante) es único.
type Invoice struct {
	ID              string
	Numero          int64
	PuntoVenta      int
	TipoComprobante int
	ProviderID      string
	SubscriptionID  string
	CycleNumber     int
	Plan            PlanSnapshot
	NetAmount       decimal.Decimal
	VATAmount       decimal.Decimal
	Amount          decimal.Decimal // total
	Currency        string
	Status          InvoiceStatus
	FiscalStatus    FiscalStatus
	BillingPeriod   BillingPeriod
	IssueDate       time.Time
	DueDate         time.Time
	PaidAt          *time.Time
	PaymentMethod   string
	PaymentID       string
	BuyerDocType    int
	BuyerDocNumber  string
	CAE             string     // código de autorización electrónico
	CAEExpiration   *time.Time // vencimiento del CAE
	AFIPErrors      string     // errores/observaciones de AFIP (JSON)
	AuthAttempts    int
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// IsAuthorized indica si la factura ya es un comprobante fiscal válido.
func (i *Invoice) IsAuthorized() bool {
	return i.CAE != ""
}

// ApplyAuthorization registra el CAE otorgado por AFIP. Una factura con CAE no se modifica.
func (i *Invoice) ApplyAuthorization(cae string, expiration time.Time, now time.Time) error {
	if i.IsAuthorized() {
		return fmt.Errorf("%w: %s", domain.ErrInvoiceAuthorized, i.ID)
	}
	if cae == "" {
		return fmt.Errorf("%w: CAE vacío", domain.ErrInvalidInput)
	}
	exp := expiration
	i.CAE = cae
	i.CAEExpiration = &exp
	i.FiscalStatus = FiscalStatusAuthorized
	i.AFIPErrors = ""
	i.UpdatedAt = now
	return nil
}

// MarkAuthorizationFailed deja la factura reintentable sin CAE.
func (i *Invoice) MarkAuthorizationFailed(status FiscalStatus, errorsJSON string, now time.Time) error {
	if i.IsAuthorized() {
		return fmt.Errorf("%w: %s", domain.ErrInvoiceAuthorized, i.ID)
	}
	i.FiscalStatus = status
	i.AFIPErrors = errorsJSON
	i.UpdatedAt = now
	return nil
}

// MarkPaid registra el cobro. No toca el contenido fiscal. Sin CAE la factura no es
// un comprobante y no se cobra.
func (i *Invoice) MarkPaid(paymentID string, at time.Time) error {
	if !i.IsAuthorized() {
		return fmt.Errorf("%w: factura %s sin CAE (%s)", domain.ErrConflict, i.ID, i.FiscalStatus)
	}
	switch i.Status {
	case InvoiceStatusPaid:
		return fmt.Errorf("%w: factura %s ya cobrada", domain.ErrConflict, i.ID)
	case InvoiceStatusCancelled:
		return fmt.Errorf("%w: factura %s anulada", domain.ErrConflict, i.ID)
	}
	paid := at
	i.Status = InvoiceStatusPaid
	i.PaidAt = &paid
	i.PaymentID = paymentID
	i.UpdatedAt = at
	return nil
}

// FullNumber devuelve el número con formato PPPPP-NNNNNNNN.
func (i *Invoice) FullNumber() string {
	return fmt.Sprintf("%05d-%08d", i.PuntoVenta, i.Numero)
}
