package repository

import (
	"context"

	"github.com/jhoicas/facturacion-suscripciones/internal/domain/entity"
)

// BillingPointRepository define el puerto de persistencia para puntos de venta AFIP.
type BillingPointRepository interface {
	// Ensure crea el punto de venta si no existe (idempotente).
	Ensure(ctx context.Context, point *entity.BillingPoint) error

	GetByPoint(ctx context.Context, puntoVenta, tipoComprobante int) (*entity.BillingPoint, error)

	// ReserveNumber toma el próximo número del punto de venta de forma atómica.
	// Devuelve domain.ErrNotFound si el punto no existe o está inactivo.
	ReserveNumber(ctx context.Context, puntoVenta, tipoComprobante int) (int64, error)

	// SyncNextNumber garantiza next_number >= lastAuthorized+1 (nunca lo baja).
	SyncNextNumber(ctx context.Context, puntoVenta, tipoComprobante int, lastAuthorized int64) error
}
