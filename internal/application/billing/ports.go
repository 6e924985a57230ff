package billing

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/jhoicas/facturacion-suscripciones/internal/domain/entity"
	"github.com/jhoicas/facturacion-suscripciones/internal/domain/repository"
	"github.com/jhoicas/facturacion-suscripciones/pkg/afip"
)

// BillingTxRunner ejecuta una función dentro de una transacción con los repos de facturación.
// Si fn devuelve error se hace rollback de todo lo escrito.
type BillingTxRunner interface {
	RunBilling(ctx context.Context, fn func(
		invoiceRepo repository.InvoiceRepository,
		cycleRepo repository.BillingCycleRepository,
		pointRepo repository.BillingPointRepository,
	) error) error
}

// TaxAuthority autoriza comprobantes ante AFIP (WSFEv1).
// Un error significa que no hubo respuesta utilizable (timeout, red, SOAP fault);
// un rechazo llega como AuthorizationResult con Approved=false.
type TaxAuthority interface {
	Authorize(ctx context.Context, req AuthorizationRequest) (*AuthorizationResult, error)

	// LastAuthorized devuelve el último número autorizado para el punto de venta y tipo.
	LastAuthorized(ctx context.Context, puntoVenta, cbteTipo int) (int64, error)
}

// RunObserver recibe el resultado de cada corrida y de cada marcado de vencidas.
// summary es nil cuando la corrida no llegó a enumerar suscripciones.
type RunObserver interface {
	ObserveRun(summary *RunSummary, err error)
	ObserveOverdue(marked int64, err error)
}

// AuthorizationRequest datos de un comprobante a autorizar (FECAESolicitar, un solo detalle).
type AuthorizationRequest struct {
	PuntoVenta  int
	CbteTipo    int
	Numero      int64
	Concepto    int
	DocTipo     int
	DocNro      string
	IssueDate   time.Time
	ServiceFrom time.Time
	ServiceTo   time.Time
	PaymentDue  time.Time
	Net         decimal.Decimal
	VAT         decimal.Decimal
	Total       decimal.Decimal
	AliquotID   int // 0 para comprobantes C
	Currency    string
}

// AuthorizationResult respuesta de AFIP para el comprobante.
type AuthorizationResult struct {
	Approved      bool
	CAE           string
	CAEExpiration time.Time
	Errors        []afip.Message
	Observations  []afip.Message
}

// InvoicePDFGenerator genera la representación impresa de una factura autorizada.
type InvoicePDFGenerator interface {
	GenerateInvoicePDF(ctx context.Context, inv *entity.Invoice, issuer Issuer) ([]byte, error)
}

// Clock devuelve la hora actual. Se inyecta para poder testear fechas.
type Clock func() time.Time

// Issuer datos fiscales del emisor (el marketplace).
type Issuer struct {
	CUIT              string
	RazonSocial       string
	CondicionIVA      string
	Domicilio         string
	InicioActividades string
}
