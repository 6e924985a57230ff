package entity_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/facturacion-suscripciones/internal/domain"
	"github.com/jhoicas/facturacion-suscripciones/internal/domain/entity"
)

var t0 = time.Date(2026, 10, 1, 3, 1, 0, 0, time.UTC)

func TestFrequency_Period(t *testing.T) {
	assert.Equal(t, 30*24*time.Hour, entity.FrequencyMonthly.Period(), "mensual son exactamente 30 días")
	assert.Equal(t, 90*24*time.Hour, entity.FrequencyQuarterly.Period())
	assert.Equal(t, 365*24*time.Hour, entity.FrequencyYearly.Period())
	assert.Equal(t, entity.FrequencyMonthly, entity.Frequency("").Normalize(), "sin frecuencia se asume mensual")
	assert.Equal(t, entity.FrequencyYearly, entity.Frequency(" YEARLY ").Normalize())
}

func TestBillingCycle_Advance(t *testing.T) {
	c := &entity.BillingCycle{}
	assert.Equal(t, 1, entity.NextCycleNumber(nil))

	require.NoError(t, c.Advance(t0, entity.FrequencyMonthly, 1, "inv-1", entity.CycleStatusActive))
	assert.Equal(t, t0.Add(30*24*time.Hour), c.NextBillingDate)
	assert.Equal(t, t0, *c.LastBillingDate)
	assert.Equal(t, 2, entity.NextCycleNumber(c))
	assert.False(t, c.IsDue(t0.Add(29*24*time.Hour)))
	assert.True(t, c.IsDue(c.NextBillingDate), "vence exactamente en nextBillingDate")

	err := c.Advance(t0.Add(-time.Hour), entity.FrequencyMonthly, 2, "inv-2", entity.CycleStatusActive)
	assert.ErrorIs(t, err, domain.ErrCycleRewind, "nextBillingDate nunca retrocede")
	assert.Equal(t, 1, c.CycleNumber, "un avance rechazado no modifica el ciclo")
}

func TestInvoice_ApplyAuthorization(t *testing.T) {
	inv := &entity.Invoice{ID: "inv-1", FiscalStatus: entity.FiscalStatusAuthorizationPending, AFIPErrors: `[{"code":0}]`}

	assert.ErrorIs(t, inv.ApplyAuthorization("", t0, t0), domain.ErrInvalidInput)

	require.NoError(t, inv.ApplyAuthorization("76123456789012", t0.Add(10*24*time.Hour), t0))
	assert.True(t, inv.IsAuthorized())
	assert.Equal(t, entity.FiscalStatusAuthorized, inv.FiscalStatus)
	assert.Empty(t, inv.AFIPErrors)

	assert.ErrorIs(t, inv.ApplyAuthorization("otro", t0, t0), domain.ErrInvoiceAuthorized, "con CAE la factura es inmutable")
	assert.ErrorIs(t, inv.MarkAuthorizationFailed(entity.FiscalStatusRejected, "", t0), domain.ErrInvoiceAuthorized)
	assert.Equal(t, "76123456789012", inv.CAE)
}

func TestInvoice_MarkPaid(t *testing.T) {
	inv := &entity.Invoice{ID: "inv-1", CAE: "76123456789012", Status: entity.InvoiceStatusPending}

	require.NoError(t, inv.MarkPaid("mp-1", t0), "el cobro se registra aunque la factura tenga CAE")
	assert.Equal(t, entity.InvoiceStatusPaid, inv.Status)
	assert.ErrorIs(t, inv.MarkPaid("mp-2", t0), domain.ErrConflict)
	assert.Equal(t, "mp-1", inv.PaymentID)
}

func TestInvoice_MarkPaidSinCAE(t *testing.T) {
	for _, fs := range []entity.FiscalStatus{entity.FiscalStatusDraft, entity.FiscalStatusAuthorizationPending, entity.FiscalStatusRejected} {
		inv := &entity.Invoice{ID: "inv-1", Status: entity.InvoiceStatusPending, FiscalStatus: fs}
		assert.ErrorIs(t, inv.MarkPaid("mp-1", t0), domain.ErrConflict, string(fs))
		assert.Equal(t, entity.InvoiceStatusPending, inv.Status, "sin CAE el estado de cobro no cambia")
		assert.Nil(t, inv.PaidAt)
	}
}

func TestFiscalStatus(t *testing.T) {
	assert.True(t, entity.FiscalStatusRejected.IsOpen(), "un rechazo se puede reenviar")
	assert.False(t, entity.FiscalStatusAuthorized.IsOpen())
	assert.Equal(t, "aprobada", entity.FiscalStatusAuthorized.Legacy())
	assert.Equal(t, "pendiente", entity.FiscalStatusDraft.Legacy())
	assert.Equal(t, "00003-00000042", (&entity.Invoice{PuntoVenta: 3, Numero: 42}).FullNumber())
}

func TestNewSubscription(t *testing.T) {
	_, err := entity.NewSubscription("S1", "P1", "", true, "", nil)
	assert.ErrorIs(t, err, domain.ErrInvalidSubscription, "sin planType no se factura")

	_, err = entity.NewSubscription("S1", " ", "pro", true, "", nil)
	assert.ErrorIs(t, err, domain.ErrInvalidSubscription)

	_, err = entity.NewSubscription("S1", "P1", "pro", false, "", nil)
	assert.ErrorIs(t, err, domain.ErrInvalidSubscription)

	sub, err := entity.NewSubscription("S1", "P1", "pro", true, "transferencia", nil)
	require.NoError(t, err)
	assert.Equal(t, "P1", sub.ProviderID)
}
