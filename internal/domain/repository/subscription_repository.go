package repository

import (
	"context"

	"github.com/jhoicas/facturacion-suscripciones/internal/domain/entity"
)

// SubscriptionRepository es el puerto de lectura del subsistema de suscripciones.
// La facturación nunca escribe suscripciones.
type SubscriptionRepository interface {
	// ListActive devuelve las suscripciones activas con su plan, en orden estable.
	ListActive(ctx context.Context) ([]*entity.Subscription, error)
	GetByID(ctx context.Context, id string) (*entity.Subscription, error)
}
