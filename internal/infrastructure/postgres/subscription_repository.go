package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/jhoicas/facturacion-suscripciones/internal/domain/entity"
	"github.com/jhoicas/facturacion-suscripciones/internal/domain/repository"
)

var _ repository.SubscriptionRepository = (*SubscriptionRepo)(nil)

// SubscriptionRepo lee suscripciones y planes del subsistema de suscripciones (solo lectura).
type SubscriptionRepo struct {
	q Querier
}

// NewSubscriptionRepository construye el adaptador.
func NewSubscriptionRepository(q Querier) *SubscriptionRepo {
	return &SubscriptionRepo{q: q}
}

// LEFT JOIN: una suscripción con plan inexistente llega sin Plan y el generador la reporta.
const subscriptionSelect = `
	SELECT s.id, COALESCE(s.provider_id::text, ''), COALESCE(pr.name, ''), COALESCE(pr.tax_id, ''),
	       COALESCE(s.plan_type, ''), s.is_active, COALESCE(s.payment_method, ''),
	       p.id, p.type, p.name, p.price, p.currency, p.frequency
	FROM subscriptions s
	LEFT JOIN providers pr ON pr.id = s.provider_id
	LEFT JOIN plans p ON p.type = s.plan_type`

// ListActive devuelve las suscripciones activas ordenadas por fecha de alta.
func (r *SubscriptionRepo) ListActive(ctx context.Context) ([]*entity.Subscription, error) {
	rows, err := r.q.Query(ctx, subscriptionSelect+` WHERE s.is_active = true ORDER BY s.created_at, s.id`)
	if err != nil {
		return nil, fmt.Errorf("list active subscriptions: %w", err)
	}
	defer rows.Close()
	var list []*entity.Subscription
	for rows.Next() {
		s, err := scanSubscription(rows)
		if err != nil {
			return nil, fmt.Errorf("scan subscription: %w", err)
		}
		list = append(list, s)
	}
	return list, rows.Err()
}

func (r *SubscriptionRepo) GetByID(ctx context.Context, id string) (*entity.Subscription, error) {
	s, err := scanSubscription(r.q.QueryRow(ctx, subscriptionSelect+` WHERE s.id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get subscription: %w", err)
	}
	return s, nil
}

func scanSubscription(row pgx.Row) (*entity.Subscription, error) {
	var s entity.Subscription
	var planID, planType, planName, planCurrency, planFrequency *string
	var planPrice decimal.NullDecimal // NUMERIC nullable vía pgx-shopspring-decimal
	err := row.Scan(
		&s.ID, &s.ProviderID, &s.ProviderName, &s.ProviderTaxID,
		&s.PlanType, &s.IsActive, &s.PaymentMethod,
		&planID, &planType, &planName, &planPrice, &planCurrency, &planFrequency,
	)
	if err != nil {
		return nil, err
	}
	if planID != nil {
		s.Plan = &entity.Plan{
			ID:        *planID,
			Type:      derefStr(planType),
			Name:      derefStr(planName),
			Price:     planPrice.Decimal,
			Currency:  derefStr(planCurrency),
			Frequency: entity.Frequency(derefStr(planFrequency)),
		}
	}
	return &s, nil
}
