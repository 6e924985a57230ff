package repository

import (
	"context"
	"time"

	"github.com/jhoicas/facturacion-suscripciones/internal/domain/entity"
)

// InvoiceRepository define el puerto de persistencia para Invoice.
type InvoiceRepository interface {
	// Create persiste la factura. Si ya existe (numero, punto_venta, tipo_comprobante) devuelve
	// un error que envuelve domain.ErrNumberTaken; si ya existe (subscription_id, cycle_number)
	// uno que envuelve domain.ErrDuplicate.
	Create(ctx context.Context, invoice *entity.Invoice) error

	GetByID(ctx context.Context, id string) (*entity.Invoice, error)
	FindBySubscriptionCycle(ctx context.Context, subscriptionID string, cycleNumber int) (*entity.Invoice, error)

	// FindOpenBySubscription devuelve la factura sin CAE más antigua de la suscripción
	// (DRAFT, AUTHORIZATION_PENDING o REJECTED), o nil.
	FindOpenBySubscription(ctx context.Context, subscriptionID string) (*entity.Invoice, error)

	ListBySubscription(ctx context.Context, subscriptionID string, limit, offset int) ([]*entity.Invoice, error)

	// UpdateAuthorization actualiza estado fiscal, CAE, vencimiento, errores e intentos.
	// Solo afecta facturas sin CAE; si la factura ya fue autorizada devuelve domain.ErrInvoiceAuthorized.
	UpdateAuthorization(ctx context.Context, invoice *entity.Invoice) error

	// UpdatePayment actualiza estado de cobro, paid_at y payment_id.
	UpdatePayment(ctx context.Context, invoice *entity.Invoice) error

	// MarkOverdue pasa a OVERDUE las facturas PENDING vencidas antes de now.
	MarkOverdue(ctx context.Context, now time.Time) (int64, error)
}
