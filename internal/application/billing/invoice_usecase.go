package billing

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jhoicas/facturacion-suscripciones/internal/application/dto"
	"github.com/jhoicas/facturacion-suscripciones/internal/domain"
	"github.com/jhoicas/facturacion-suscripciones/internal/domain/entity"
	"github.com/jhoicas/facturacion-suscripciones/internal/domain/repository"
)

// InvoiceUseCase consultas y cobros de facturas para la API de administración.
type InvoiceUseCase struct {
	invoices  repository.InvoiceRepository
	cycles    repository.BillingCycleRepository
	generator *Generator
	scheduler *Scheduler
	now       Clock
}

// NewInvoiceUseCase construye el caso de uso.
func NewInvoiceUseCase(
	invoices repository.InvoiceRepository,
	cycles repository.BillingCycleRepository,
	generator *Generator,
	scheduler *Scheduler,
	now Clock,
) *InvoiceUseCase {
	if now == nil {
		now = time.Now
	}
	return &InvoiceUseCase{invoices: invoices, cycles: cycles, generator: generator, scheduler: scheduler, now: now}
}

// GetByID devuelve la factura o domain.ErrNotFound.
func (uc *InvoiceUseCase) GetByID(ctx context.Context, id string) (*dto.InvoiceResponse, error) {
	inv, err := uc.invoices.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if inv == nil {
		return nil, domain.ErrNotFound
	}
	out := ToInvoiceResponse(inv)
	return &out, nil
}

// ListBySubscription lista las facturas de la suscripción (más recientes primero).
func (uc *InvoiceUseCase) ListBySubscription(ctx context.Context, subscriptionID string, page dto.InvoicePageRequest) (*dto.InvoiceListResponse, error) {
	page = page.Normalize()
	// Una fila de más alcanza para saber si hay otra página.
	list, err := uc.invoices.ListBySubscription(ctx, subscriptionID, page.Limit+1, page.Offset)
	if err != nil {
		return nil, err
	}
	hasMore := len(list) > page.Limit
	if hasMore {
		list = list[:page.Limit]
	}
	items := make([]dto.InvoiceResponse, 0, len(list))
	for _, inv := range list {
		items = append(items, ToInvoiceResponse(inv))
	}
	return &dto.InvoiceListResponse{
		Items: items,
		Page:  dto.InvoicePage{Limit: page.Limit, Offset: page.Offset, HasMore: hasMore},
	}, nil
}

// GetBillingCycle devuelve el ciclo vigente o domain.ErrNotFound si nunca se facturó.
func (uc *InvoiceUseCase) GetBillingCycle(ctx context.Context, subscriptionID string) (*dto.BillingCycleResponse, error) {
	c, err := uc.cycles.GetBySubscriptionID(ctx, subscriptionID)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, domain.ErrNotFound
	}
	return &dto.BillingCycleResponse{
		ID:              c.ID,
		SubscriptionID:  c.SubscriptionID,
		StartDate:       c.StartDate,
		EndDate:         c.EndDate,
		LastBillingDate: c.LastBillingDate,
		NextBillingDate: c.NextBillingDate,
		Status:          string(c.Status),
		Frequency:       string(c.Frequency),
		CycleNumber:     c.CycleNumber,
		LastInvoiceID:   c.LastInvoiceID,
	}, nil
}

// RegisterPayment registra el cobro de la factura. Solo cambia el estado de cobro.
func (uc *InvoiceUseCase) RegisterPayment(ctx context.Context, invoiceID string, in dto.RegisterPaymentRequest) (*dto.InvoiceResponse, error) {
	if strings.TrimSpace(in.PaymentID) == "" {
		return nil, fmt.Errorf("%w: payment_id requerido", domain.ErrInvalidInput)
	}
	inv, err := uc.invoices.GetByID(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	if inv == nil {
		return nil, domain.ErrNotFound
	}
	paidAt := uc.now()
	if in.PaidAt != nil {
		paidAt = *in.PaidAt
	}
	if err := inv.MarkPaid(strings.TrimSpace(in.PaymentID), paidAt); err != nil {
		return nil, err
	}
	if err := uc.invoices.UpdatePayment(ctx, inv); err != nil {
		return nil, err
	}
	out := ToInvoiceResponse(inv)
	return &out, nil
}

// Authorize reintenta la autorización AFIP de una factura sin CAE.
func (uc *InvoiceUseCase) Authorize(ctx context.Context, invoiceID string) (*dto.AuthorizationResponse, error) {
	res, err := uc.generator.Reauthorize(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	return &dto.AuthorizationResponse{Outcome: string(res.Outcome), Invoice: ToInvoiceResponse(res.Invoice)}, nil
}

// RunNow dispara una corrida manual. Devuelve ErrRunInProgress si ya hay una activa.
func (uc *InvoiceUseCase) RunNow(ctx context.Context) (*dto.RunSummaryResponse, error) {
	s, err := uc.scheduler.RunOnce(ctx)
	if err != nil {
		return nil, err
	}
	return &dto.RunSummaryResponse{
		RunID:         s.RunID,
		StartedAt:     s.StartedAt,
		FinishedAt:    s.FinishedAt,
		Total:         s.Total,
		Skipped:       s.Skipped,
		NotDue:        s.NotDue,
		Invoiced:      s.Invoiced,
		Pending:       s.Pending,
		Rejected:      s.Rejected,
		AlreadyBilled: s.AlreadyBilled,
		LookupErrors:  s.LookupErrors,
		Failed:        s.Failed,
	}, nil
}

// ToInvoiceResponse mapea la entidad al DTO de respuesta.
func ToInvoiceResponse(inv *entity.Invoice) dto.InvoiceResponse {
	return dto.InvoiceResponse{
		ID:              inv.ID,
		Number:          inv.FullNumber(),
		Numero:          inv.Numero,
		PuntoVenta:      inv.PuntoVenta,
		TipoComprobante: inv.TipoComprobante,
		ProviderID:      inv.ProviderID,
		SubscriptionID:  inv.SubscriptionID,
		CycleNumber:     inv.CycleNumber,
		PlanType:        inv.Plan.Type,
		PlanName:        inv.Plan.Name,
		NetAmount:       inv.NetAmount,
		VATAmount:       inv.VATAmount,
		Amount:          inv.Amount,
		Currency:        inv.Currency,
		Status:          string(inv.Status),
		FiscalStatus:    string(inv.FiscalStatus),
		AFIPStatus:      inv.FiscalStatus.Legacy(),
		PeriodStart:     inv.BillingPeriod.StartDate,
		PeriodEnd:       inv.BillingPeriod.EndDate,
		IssueDate:       inv.IssueDate,
		DueDate:         inv.DueDate,
		PaidAt:          inv.PaidAt,
		PaymentMethod:   inv.PaymentMethod,
		PaymentID:       inv.PaymentID,
		CAE:             inv.CAE,
		CAEExpiration:   inv.CAEExpiration,
		AFIPErrors:      inv.AFIPErrors,
		AuthAttempts:    inv.AuthAttempts,
	}
}
