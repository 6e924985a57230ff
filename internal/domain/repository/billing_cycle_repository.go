package repository

import (
	"context"

	"github.com/jhoicas/facturacion-suscripciones/internal/domain/entity"
)

// BillingCycleRepository define el puerto de persistencia para BillingCycle.
type BillingCycleRepository interface {
	// GetBySubscriptionID devuelve nil, nil si la suscripción todavía no tiene ciclo.
	GetBySubscriptionID(ctx context.Context, subscriptionID string) (*entity.BillingCycle, error)

	// Save inserta o actualiza el ciclo de la suscripción. Devuelve domain.ErrCycleRewind
	// si next_billing_date quedaría antes del valor guardado.
	Save(ctx context.Context, cycle *entity.BillingCycle) error
}
