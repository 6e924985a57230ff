package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/jhoicas/facturacion-suscripciones/internal/domain"
	"github.com/jhoicas/facturacion-suscripciones/internal/domain/entity"
	"github.com/jhoicas/facturacion-suscripciones/internal/domain/repository"
)

var _ repository.BillingCycleRepository = (*BillingCycleRepo)(nil)

// BillingCycleRepo implementación de BillingCycleRepository (usable con pool o tx).
type BillingCycleRepo struct {
	q Querier
}

// NewBillingCycleRepository construye el adaptador.
func NewBillingCycleRepository(q Querier) *BillingCycleRepo {
	return &BillingCycleRepo{q: q}
}

// GetBySubscriptionID devuelve nil, nil si la suscripción nunca fue facturada.
func (r *BillingCycleRepo) GetBySubscriptionID(ctx context.Context, subscriptionID string) (*entity.BillingCycle, error) {
	const query = `
		SELECT id, subscription_id, start_date, end_date, last_billing_date, next_billing_date,
		       status, frequency, cycle_number, COALESCE(last_invoice_id::text, ''), created_at, updated_at
		FROM billing_cycles WHERE subscription_id = $1`
	var c entity.BillingCycle
	var freq string
	err := r.q.QueryRow(ctx, query, subscriptionID).Scan(
		&c.ID, &c.SubscriptionID, &c.StartDate, &c.EndDate, &c.LastBillingDate, &c.NextBillingDate,
		&c.Status, &freq, &c.CycleNumber, &c.LastInvoiceID, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get billing cycle: %w", err)
	}
	c.Frequency = entity.Frequency(freq)
	return &c, nil
}

// Save inserta o actualiza el ciclo. La condición del ON CONFLICT impide que
// next_billing_date retroceda aunque dos escritores compitan.
func (r *BillingCycleRepo) Save(ctx context.Context, c *entity.BillingCycle) error {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	const query = `
		INSERT INTO billing_cycles
			(id, subscription_id, start_date, end_date, last_billing_date, next_billing_date,
			 status, frequency, cycle_number, last_invoice_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (subscription_id) DO UPDATE
		SET start_date        = EXCLUDED.start_date,
		    end_date          = EXCLUDED.end_date,
		    last_billing_date = EXCLUDED.last_billing_date,
		    next_billing_date = EXCLUDED.next_billing_date,
		    status            = EXCLUDED.status,
		    frequency         = EXCLUDED.frequency,
		    cycle_number      = EXCLUDED.cycle_number,
		    last_invoice_id   = EXCLUDED.last_invoice_id,
		    updated_at        = EXCLUDED.updated_at
		WHERE billing_cycles.next_billing_date <= EXCLUDED.next_billing_date`
	tag, err := r.q.Exec(ctx, query,
		c.ID, c.SubscriptionID, c.StartDate, c.EndDate, c.LastBillingDate, c.NextBillingDate,
		c.Status, string(c.Frequency), c.CycleNumber, nullIfEmpty(c.LastInvoiceID), c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("save billing cycle: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: suscripción %s", domain.ErrCycleRewind, c.SubscriptionID)
	}
	return nil
}
