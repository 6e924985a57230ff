package billing_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/facturacion-suscripciones/internal/application/billing"
	"github.com/jhoicas/facturacion-suscripciones/internal/application/dto"
	"github.com/jhoicas/facturacion-suscripciones/internal/domain"
	"github.com/jhoicas/facturacion-suscripciones/internal/domain/entity"
)

func newUseCase(h *harness) *billing.InvoiceUseCase {
	return billing.NewInvoiceUseCase(h.store, h.store, h.generator, h.scheduler, h.clock.Now)
}

func TestInvoiceUseCase_RegisterPayment(t *testing.T) {
	h := newHarness(billing.AdvanceOnAuthorized, 1, validSub("S1", "P1"))
	_, err := h.scheduler.RunOnce(context.Background())
	require.NoError(t, err)
	inv := h.store.allInvoices()[0]
	uc := newUseCase(h)

	_, err = uc.RegisterPayment(context.Background(), inv.ID, dto.RegisterPaymentRequest{})
	assert.ErrorIs(t, err, domain.ErrInvalidInput, "payment_id es obligatorio")

	out, err := uc.RegisterPayment(context.Background(), inv.ID, dto.RegisterPaymentRequest{PaymentID: "mp-123"})
	require.NoError(t, err)
	assert.Equal(t, string(entity.InvoiceStatusPaid), out.Status)
	assert.Equal(t, "mp-123", out.PaymentID)
	require.NotNil(t, out.PaidAt)

	stored := h.store.allInvoices()[0]
	assert.Equal(t, inv.CAE, stored.CAE, "el cobro no toca el contenido fiscal")
	assert.Equal(t, entity.InvoiceStatusPaid, stored.Status)

	_, err = uc.RegisterPayment(context.Background(), inv.ID, dto.RegisterPaymentRequest{PaymentID: "mp-124"})
	assert.ErrorIs(t, err, domain.ErrConflict, "no se cobra dos veces")

	_, err = uc.RegisterPayment(context.Background(), "otra", dto.RegisterPaymentRequest{PaymentID: "x"})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestInvoiceUseCase_RegisterPaymentSinCAE(t *testing.T) {
	h := newHarness(billing.AdvanceOnAuthorized, 1, validSub("S1", "P1"))
	h.tax.fn = func(billing.AuthorizationRequest) (*billing.AuthorizationResult, error) {
		return nil, errors.New("wsfe: 503")
	}
	_, err := h.scheduler.RunOnce(context.Background())
	require.NoError(t, err)
	inv := h.store.allInvoices()[0]
	require.Empty(t, inv.CAE)

	_, err = newUseCase(h).RegisterPayment(context.Background(), inv.ID, dto.RegisterPaymentRequest{PaymentID: "mp-1"})
	assert.ErrorIs(t, err, domain.ErrConflict, "sin CAE no hay cobro")
	stored := h.store.allInvoices()[0]
	assert.Equal(t, entity.InvoiceStatusPending, stored.Status)
	assert.Empty(t, stored.PaymentID)
}

func TestInvoiceUseCase_Consultas(t *testing.T) {
	h := newHarness(billing.AdvanceOnAuthorized, 1, validSub("S1", "P1"))
	uc := newUseCase(h)

	_, err := uc.GetBillingCycle(context.Background(), "S1")
	assert.ErrorIs(t, err, domain.ErrNotFound, "sin facturar no hay ciclo")

	for i := 0; i < 3; i++ {
		_, err := h.scheduler.RunOnce(context.Background())
		require.NoError(t, err)
		h.clock.Advance(month)
	}

	list, err := uc.ListBySubscription(context.Background(), "S1", dto.InvoicePageRequest{Limit: 2})
	require.NoError(t, err)
	require.Len(t, list.Items, 2)
	assert.True(t, list.Page.HasMore, "queda la factura del primer período")

	last, err := uc.ListBySubscription(context.Background(), "S1", dto.InvoicePageRequest{Limit: 2, Offset: 2})
	require.NoError(t, err)
	require.Len(t, last.Items, 1)
	assert.False(t, last.Page.HasMore)
	assert.Equal(t, 1, last.Items[0].CycleNumber)
	assert.Equal(t, 3, list.Items[0].CycleNumber, "primero la más reciente")
	assert.Equal(t, "aprobada", list.Items[0].AFIPStatus)
	assert.Equal(t, "00003-00000003", list.Items[0].Number)

	cycle, err := uc.GetBillingCycle(context.Background(), "S1")
	require.NoError(t, err)
	assert.Equal(t, 3, cycle.CycleNumber)
	assert.Equal(t, list.Items[0].ID, cycle.LastInvoiceID)

	got, err := uc.GetByID(context.Background(), list.Items[1].ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.CycleNumber)
}

func TestInvoiceUseCase_RunNowYAuthorize(t *testing.T) {
	h := newHarness(billing.AdvanceOnAuthorized, 1, validSub("S1", "P1"))
	h.tax.fn = func(billing.AuthorizationRequest) (*billing.AuthorizationResult, error) {
		return nil, errors.New("no such host")
	}
	uc := newUseCase(h)

	sum, err := uc.RunNow(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Pending)

	inv := h.store.allInvoices()[0]
	h.tax.fn = nil
	h.clock.Advance(time.Hour)
	out, err := uc.Authorize(context.Background(), inv.ID)
	require.NoError(t, err)
	assert.Equal(t, string(billing.OutcomeAuthorized), out.Outcome)
	assert.NotEmpty(t, out.Invoice.CAE)
}

type stubPDF struct{ called bool }

func (s *stubPDF) GenerateInvoicePDF(_ context.Context, inv *entity.Invoice, issuer billing.Issuer) ([]byte, error) {
	s.called = true
	return []byte("%PDF-" + inv.FullNumber() + issuer.CUIT), nil
}

func TestPDFUseCase_SoloConCAE(t *testing.T) {
	h := newHarness(billing.AdvanceOnAuthorized, 1, validSub("S1", "P1"))
	h.tax.fn = func(billing.AuthorizationRequest) (*billing.AuthorizationResult, error) {
		return nil, errors.New("timeout")
	}
	_, err := h.scheduler.RunOnce(context.Background())
	require.NoError(t, err)
	inv := h.store.allInvoices()[0]

	gen := &stubPDF{}
	uc := billing.NewPDFUseCase(h.store, gen, billing.Issuer{CUIT: "30712345671"})

	_, _, err = uc.DownloadInvoicePDF(context.Background(), inv.ID)
	assert.ErrorIs(t, err, domain.ErrInvalidInput, "sin CAE no hay PDF")
	assert.False(t, gen.called)

	h.tax.fn = nil
	_, err = h.generator.Reauthorize(context.Background(), inv.ID)
	require.NoError(t, err)

	pdf, name, err := uc.DownloadInvoicePDF(context.Background(), inv.ID)
	require.NoError(t, err)
	assert.Equal(t, "factura_00003-00000001.pdf", name)
	assert.Contains(t, string(pdf), "30712345671")
}
