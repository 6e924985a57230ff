package entity

import (
	"fmt"
	"time"

	"github.com/jhoicas/facturacion-suscripciones/internal/domain"
)

// Estados del ciclo de facturación.
type CycleStatus string

const (
	CycleStatusActive    CycleStatus = "ACTIVE"    // última factura autorizada
	CycleStatusPending   CycleStatus = "PENDING"   // última factura sin respuesta de AFIP
	CycleStatusFailed    CycleStatus = "FAILED"    // última factura rechazada por AFIP
	CycleStatusCancelled CycleStatus = "CANCELLED" // suscripción dada de baja
)

// BillingCycle es el período vigente de una suscripción (uno por suscripción).
type BillingCycle struct {
	ID              string
	SubscriptionID  string
	StartDate       time.Time
	EndDate         time.Time
	LastBillingDate *time.Time
	NextBillingDate time.Time
	Status          CycleStatus
	Frequency       Frequency
	CycleNumber     int // cantidad de períodos facturados
	LastInvoiceID   string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// IsDue indica si a la hora now corresponde emitir una nueva factura.
func (c *BillingCycle) IsDue(now time.Time) bool {
	return !now.Before(c.NextBillingDate)
}

// Advance mueve el ciclo al período que comienza en now.
// nextBillingDate nunca retrocede: si el nuevo valor es anterior al actual devuelve ErrCycleRewind.
func (c *BillingCycle) Advance(now time.Time, freq Frequency, cycleNumber int, invoiceID string, status CycleStatus) error {
	next := now.Add(freq.Period())
	if !c.NextBillingDate.IsZero() && next.Before(c.NextBillingDate) {
		return fmt.Errorf("%w: %s < %s", domain.ErrCycleRewind,
			next.Format(time.RFC3339), c.NextBillingDate.Format(time.RFC3339))
	}
	last := now
	c.StartDate = now
	c.EndDate = next
	c.LastBillingDate = &last
	c.NextBillingDate = next
	c.Frequency = freq.Normalize()
	c.CycleNumber = cycleNumber
	c.LastInvoiceID = invoiceID
	c.Status = status
	c.UpdatedAt = now
	return nil
}

// NextCycleNumber devuelve el número de período que se factura a continuación.
func NextCycleNumber(c *BillingCycle) int {
	if c == nil {
		return 1
	}
	return c.CycleNumber + 1
}
