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

var _ repository.BillingPointRepository = (*BillingPointRepo)(nil)

// BillingPointRepo implementa BillingPointRepository sobre PostgreSQL.
type BillingPointRepo struct {
	q Querier
}

// NewBillingPointRepository construye el repositorio.
func NewBillingPointRepository(q Querier) *BillingPointRepo {
	return &BillingPointRepo{q: q}
}

func (r *BillingPointRepo) Ensure(ctx context.Context, p *entity.BillingPoint) error {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	if p.NextNumber < 1 {
		p.NextNumber = 1
	}
	const q = `
		INSERT INTO billing_points (id, punto_venta, tipo_comprobante, next_number, description, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, now(), now())
		ON CONFLICT (punto_venta, tipo_comprobante) DO NOTHING`
	_, err := r.q.Exec(ctx, q, p.ID, p.PuntoVenta, p.TipoComprobante, p.NextNumber, p.Description, p.IsActive)
	if err != nil {
		return fmt.Errorf("ensure billing_point: %w", err)
	}
	return nil
}

func (r *BillingPointRepo) GetByPoint(ctx context.Context, puntoVenta, tipoComprobante int) (*entity.BillingPoint, error) {
	const q = `
		SELECT id, punto_venta, tipo_comprobante, next_number, description, is_active, created_at, updated_at
		FROM billing_points WHERE punto_venta = $1 AND tipo_comprobante = $2`
	var p entity.BillingPoint
	err := r.q.QueryRow(ctx, q, puntoVenta, tipoComprobante).Scan(
		&p.ID, &p.PuntoVenta, &p.TipoComprobante, &p.NextNumber, &p.Description, &p.IsActive, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get billing_point: %w", err)
	}
	return &p, nil
}

// ReserveNumber es la consulta crítica de la numeración: el UPDATE toma el lock de la
// fila hasta el fin de la transacción, así dos workers nunca reciben el mismo número.
func (r *BillingPointRepo) ReserveNumber(ctx context.Context, puntoVenta, tipoComprobante int) (int64, error) {
	const q = `
		UPDATE billing_points
		SET next_number = next_number + 1, updated_at = now()
		WHERE punto_venta = $1 AND tipo_comprobante = $2 AND is_active = true
		RETURNING next_number - 1`
	var n int64
	if err := r.q.QueryRow(ctx, q, puntoVenta, tipoComprobante).Scan(&n); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, fmt.Errorf("%w: punto de venta %d tipo %d", domain.ErrNotFound, puntoVenta, tipoComprobante)
		}
		return 0, fmt.Errorf("reserve number: %w", err)
	}
	return n, nil
}

// SyncNextNumber alinea la numeración local con el último comprobante autorizado en AFIP.
func (r *BillingPointRepo) SyncNextNumber(ctx context.Context, puntoVenta, tipoComprobante int, lastAuthorized int64) error {
	const q = `
		UPDATE billing_points
		SET next_number = GREATEST(next_number, $3 + 1), updated_at = now()
		WHERE punto_venta = $1 AND tipo_comprobante = $2`
	tag, err := r.q.Exec(ctx, q, puntoVenta, tipoComprobante, lastAuthorized)
	if err != nil {
		return fmt.Errorf("sync billing_point number: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}
