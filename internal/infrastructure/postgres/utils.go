package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/jhoicas/facturacion-suscripciones/internal/domain"
)

// Querier es lo común entre *pgxpool.Pool y pgx.Tx; los repos funcionan con ambos.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// isUniqueViolation verifica si un error es una violación de constraint único (23505).
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" // unique_violation
	}
	return strings.Contains(err.Error(), "23505")
}

// constraintName devuelve el constraint violado, si el error viene de PostgreSQL.
func constraintName(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.ConstraintName
	}
	return ""
}

// numberingConstraint clave única (numero, punto_venta, tipo_comprobante) de invoices.
const numberingConstraint = "ux_invoices_numbering"

// mapWriteError traduce violaciones de unicidad a domain.ErrDuplicate, salvo la de
// numeración que se reporta como domain.ErrNumberTaken.
func mapWriteError(op string, err error) error {
	if isUniqueViolation(err) {
		c := constraintName(err)
		if c == numberingConstraint {
			return fmt.Errorf("%s: %s: %w", op, c, domain.ErrNumberTaken)
		}
		if c != "" {
			return fmt.Errorf("%s: %s: %w", op, c, domain.ErrDuplicate)
		}
		return fmt.Errorf("%s: %w", op, domain.ErrDuplicate)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func derefStr(p *string) string {
	if p != nil {
		return *p
	}
	return ""
}
