package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/jhoicas/facturacion-suscripciones/internal/domain"
	"github.com/jhoicas/facturacion-suscripciones/internal/domain/entity"
	"github.com/jhoicas/facturacion-suscripciones/internal/domain/repository"
)

var _ repository.InvoiceRepository = (*InvoiceRepo)(nil)

// InvoiceRepo implementación de InvoiceRepository (usable con pool o tx).
type InvoiceRepo struct {
	q Querier
}

// NewInvoiceRepository construye el adaptador. Pasar pool o tx (Querier).
func NewInvoiceRepository(q Querier) *InvoiceRepo {
	return &InvoiceRepo{q: q}
}

const invoiceColumns = `
	id, numero, punto_venta, tipo_comprobante, provider_id, subscription_id, cycle_number,
	plan_id, plan_type, plan_name, plan_price, plan_currency, plan_frequency,
	net_amount, vat_amount, amount, currency, status, fiscal_status,
	period_start, period_end, issue_date, due_date, paid_at, payment_method, payment_id,
	buyer_doc_type, buyer_doc_number, cae, cae_expiration, afip_errors, auth_attempts,
	created_at, updated_at`

// Create persiste la factura. Un número ya usado se reporta como domain.ErrNumberTaken y
// un período ya facturado como domain.ErrDuplicate.
func (r *InvoiceRepo) Create(ctx context.Context, inv *entity.Invoice) error {
	if inv.ID == "" {
		inv.ID = uuid.New().String()
	}
	query := `INSERT INTO invoices (` + invoiceColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17,
		        $18, $19, $20, $21, $22, $23, $24, $25, $26, $27, $28, $29, $30, $31, $32, $33, $34)`
	_, err := r.q.Exec(ctx, query,
		inv.ID, inv.Numero, inv.PuntoVenta, inv.TipoComprobante, inv.ProviderID, inv.SubscriptionID, inv.CycleNumber,
		nullIfEmpty(inv.Plan.ID), inv.Plan.Type, inv.Plan.Name, inv.Plan.Price, inv.Plan.Currency, string(inv.Plan.Frequency),
		inv.NetAmount, inv.VATAmount, inv.Amount, inv.Currency, inv.Status, inv.FiscalStatus,
		inv.BillingPeriod.StartDate, inv.BillingPeriod.EndDate, inv.IssueDate, inv.DueDate, inv.PaidAt,
		nullIfEmpty(inv.PaymentMethod), nullIfEmpty(inv.PaymentID),
		inv.BuyerDocType, inv.BuyerDocNumber, nullIfEmpty(inv.CAE), inv.CAEExpiration, nullIfEmpty(inv.AFIPErrors), inv.AuthAttempts,
		inv.CreatedAt, inv.UpdatedAt,
	)
	if err != nil {
		return mapWriteError("insert invoice", err)
	}
	return nil
}

// GetByID obtiene una factura por ID. Devuelve nil, nil si no existe.
func (r *InvoiceRepo) GetByID(ctx context.Context, id string) (*entity.Invoice, error) {
	query := `SELECT ` + invoiceColumns + ` FROM invoices WHERE id = $1`
	inv, err := scanInvoice(r.q.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get invoice: %w", err)
	}
	return inv, nil
}

// FindBySubscriptionCycle devuelve la factura del período, o nil.
func (r *InvoiceRepo) FindBySubscriptionCycle(ctx context.Context, subscriptionID string, cycleNumber int) (*entity.Invoice, error) {
	query := `SELECT ` + invoiceColumns + ` FROM invoices WHERE subscription_id = $1 AND cycle_number = $2`
	inv, err := scanInvoice(r.q.QueryRow(ctx, query, subscriptionID, cycleNumber))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find invoice by cycle: %w", err)
	}
	return inv, nil
}

// FindOpenBySubscription devuelve la factura sin CAE más antigua de la suscripción.
func (r *InvoiceRepo) FindOpenBySubscription(ctx context.Context, subscriptionID string) (*entity.Invoice, error) {
	query := `SELECT ` + invoiceColumns + `
		FROM invoices
		WHERE subscription_id = $1
		  AND cae IS NULL
		  AND fiscal_status IN ('DRAFT', 'AUTHORIZATION_PENDING', 'REJECTED')
		  AND status <> 'CANCELLED'
		ORDER BY cycle_number ASC
		LIMIT 1`
	inv, err := scanInvoice(r.q.QueryRow(ctx, query, subscriptionID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find open invoice: %w", err)
	}
	return inv, nil
}

// ListBySubscription lista las facturas de la suscripción, la más reciente primero.
func (r *InvoiceRepo) ListBySubscription(ctx context.Context, subscriptionID string, limit, offset int) ([]*entity.Invoice, error) {
	query := `SELECT ` + invoiceColumns + `
		FROM invoices WHERE subscription_id = $1
		ORDER BY cycle_number DESC
		LIMIT $2 OFFSET $3`
	rows, err := r.q.Query(ctx, query, subscriptionID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list invoices: %w", err)
	}
	defer rows.Close()
	var list []*entity.Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, fmt.Errorf("scan invoice: %w", err)
		}
		list = append(list, inv)
	}
	return list, rows.Err()
}

// UpdateAuthorization guarda el resultado de AFIP. El WHERE cae IS NULL impide
// modificar una factura ya autorizada.
func (r *InvoiceRepo) UpdateAuthorization(ctx context.Context, inv *entity.Invoice) error {
	const query = `
		UPDATE invoices
		SET fiscal_status  = $2,
		    cae            = $3,
		    cae_expiration = $4,
		    afip_errors    = $5,
		    auth_attempts  = $6,
		    issue_date     = $7,
		    updated_at     = $8
		WHERE id = $1 AND cae IS NULL`
	tag, err := r.q.Exec(ctx, query,
		inv.ID, inv.FiscalStatus, nullIfEmpty(inv.CAE), inv.CAEExpiration,
		nullIfEmpty(inv.AFIPErrors), inv.AuthAttempts, inv.IssueDate, inv.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update invoice authorization: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return r.missingOrAuthorized(ctx, inv.ID)
	}
	return nil
}

func (r *InvoiceRepo) missingOrAuthorized(ctx context.Context, id string) error {
	var exists bool
	if err := r.q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM invoices WHERE id = $1)`, id).Scan(&exists); err != nil {
		return fmt.Errorf("check invoice: %w", err)
	}
	if !exists {
		return domain.ErrNotFound
	}
	return fmt.Errorf("%w: %s", domain.ErrInvoiceAuthorized, id)
}

// UpdatePayment actualiza solo los campos de cobro de una factura con CAE.
func (r *InvoiceRepo) UpdatePayment(ctx context.Context, inv *entity.Invoice) error {
	const query = `
		UPDATE invoices
		SET status = $2, paid_at = $3, payment_id = $4, updated_at = $5
		WHERE id = $1 AND cae IS NOT NULL`
	tag, err := r.q.Exec(ctx, query, inv.ID, inv.Status, inv.PaidAt, nullIfEmpty(inv.PaymentID), inv.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update invoice payment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return r.missingOrUnauthorized(ctx, inv.ID)
	}
	return nil
}

func (r *InvoiceRepo) missingOrUnauthorized(ctx context.Context, id string) error {
	var exists bool
	if err := r.q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM invoices WHERE id = $1)`, id).Scan(&exists); err != nil {
		return fmt.Errorf("check invoice: %w", err)
	}
	if !exists {
		return domain.ErrNotFound
	}
	return fmt.Errorf("%w: factura %s sin CAE", domain.ErrConflict, id)
}

// MarkOverdue pasa a OVERDUE las facturas PENDING con CAE y due_date anterior a now.
func (r *InvoiceRepo) MarkOverdue(ctx context.Context, now time.Time) (int64, error) {
	const query = `
		UPDATE invoices SET status = 'OVERDUE', updated_at = $1
		WHERE status = 'PENDING' AND cae IS NOT NULL AND due_date < $1`
	tag, err := r.q.Exec(ctx, query, now)
	if err != nil {
		return 0, fmt.Errorf("mark overdue invoices: %w", err)
	}
	return tag.RowsAffected(), nil
}

func scanInvoice(row pgx.Row) (*entity.Invoice, error) {
	var inv entity.Invoice
	var planID, paymentMethod, paymentID, cae, afipErrors *string
	var planFrequency string
	err := row.Scan(
		&inv.ID, &inv.Numero, &inv.PuntoVenta, &inv.TipoComprobante, &inv.ProviderID, &inv.SubscriptionID, &inv.CycleNumber,
		&planID, &inv.Plan.Type, &inv.Plan.Name, &inv.Plan.Price, &inv.Plan.Currency, &planFrequency,
		&inv.NetAmount, &inv.VATAmount, &inv.Amount, &inv.Currency, &inv.Status, &inv.FiscalStatus,
		&inv.BillingPeriod.StartDate, &inv.BillingPeriod.EndDate, &inv.IssueDate, &inv.DueDate, &inv.PaidAt,
		&paymentMethod, &paymentID,
		&inv.BuyerDocType, &inv.BuyerDocNumber, &cae, &inv.CAEExpiration, &afipErrors, &inv.AuthAttempts,
		&inv.CreatedAt, &inv.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	inv.Plan.ID = derefStr(planID)
	inv.Plan.Frequency = entity.Frequency(planFrequency)
	inv.PaymentMethod = derefStr(paymentMethod)
	inv.PaymentID = derefStr(paymentID)
	inv.CAE = derefStr(cae)
	inv.AFIPErrors = derefStr(afipErrors)
	return &inv, nil
}
