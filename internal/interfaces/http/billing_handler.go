package http

import (
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"

	"github.com/jhoicas/facturacion-suscripciones/internal/application/billing"
	"github.com/jhoicas/facturacion-suscripciones/internal/application/dto"
	"github.com/jhoicas/facturacion-suscripciones/internal/domain"
	"github.com/jhoicas/facturacion-suscripciones/pkg/logger"
)

// BillingHandler expone la facturación de suscripciones a los operadores (rol admin).
type BillingHandler struct {
	invoices *billing.InvoiceUseCase
	pdf      *billing.PDFUseCase
	log      *logger.Logger
}

// NewBillingHandler construye el handler.
func NewBillingHandler(invoices *billing.InvoiceUseCase, pdf *billing.PDFUseCase, log *logger.Logger) *BillingHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &BillingHandler{invoices: invoices, pdf: pdf, log: log}
}

// RunNow godoc
// @Summary      Ejecutar corrida de facturación
// @Description  Dispara la misma corrida que el cron diario. Es idempotente: las suscripciones al día no se facturan.
// @Tags         billing
// @Security     Bearer
// @Produce      json
// @Success      200  {object}  dto.RunSummaryResponse
// @Failure      409  {object}  dto.ErrorResponse
// @Router       /api/billing/runs [post]
func (h *BillingHandler) RunNow(c *fiber.Ctx) error {
	out, err := h.invoices.RunNow(c.UserContext())
	if err != nil {
		return h.fail(c, err)
	}
	h.log.Info().Str("user_id", GetUserID(c)).Str("run_id", out.RunID).Msg("corrida manual de facturación")
	return c.JSON(out)
}

// GetInvoice godoc
// @Summary      Obtener factura
// @Tags         invoices
// @Security     Bearer
// @Produce      json
// @Param        id   path      string  true  "ID de la factura"
// @Success      200  {object}  dto.InvoiceResponse
// @Failure      404  {object}  dto.ErrorResponse
// @Router       /api/invoices/{id} [get]
func (h *BillingHandler) GetInvoice(c *fiber.Ctx) error {
	out, err := h.invoices.GetByID(c.UserContext(), c.Params("id"))
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(out)
}

// ListSubscriptionInvoices godoc
// @Summary      Facturas de una suscripción
// @Tags         invoices
// @Security     Bearer
// @Produce      json
// @Param        id      path   string  true   "ID de la suscripción"
// @Param        limit   query  int     false  "máximo 100"
// @Param        offset  query  int     false  "desplazamiento"
// @Success      200  {object}  dto.InvoiceListResponse
// @Failure      400  {object}  dto.ErrorResponse
// @Router       /api/subscriptions/{id}/invoices [get]
func (h *BillingHandler) ListSubscriptionInvoices(c *fiber.Ctx) error {
	var page dto.InvoicePageRequest
	if err := c.QueryParser(&page); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "VALIDATION", Message: "limit/offset inválidos"})
	}
	out, err := h.invoices.ListBySubscription(c.UserContext(), c.Params("id"), page)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(out)
}

// GetBillingCycle godoc
// @Summary      Ciclo de facturación vigente
// @Tags         billing
// @Security     Bearer
// @Produce      json
// @Param        id   path      string  true  "ID de la suscripción"
// @Success      200  {object}  dto.BillingCycleResponse
// @Failure      404  {object}  dto.ErrorResponse
// @Router       /api/subscriptions/{id}/billing-cycle [get]
func (h *BillingHandler) GetBillingCycle(c *fiber.Ctx) error {
	out, err := h.invoices.GetBillingCycle(c.UserContext(), c.Params("id"))
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(out)
}

// Authorize godoc
// @Summary      Reintentar autorización AFIP
// @Description  Reenvía a AFIP una factura sin CAE con el mismo número.
// @Tags         invoices
// @Security     Bearer
// @Produce      json
// @Param        id   path      string  true  "ID de la factura"
// @Success      200  {object}  dto.AuthorizationResponse
// @Failure      404  {object}  dto.ErrorResponse
// @Failure      409  {object}  dto.ErrorResponse
// @Router       /api/invoices/{id}/authorize [post]
func (h *BillingHandler) Authorize(c *fiber.Ctx) error {
	out, err := h.invoices.Authorize(c.UserContext(), c.Params("id"))
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(out)
}

// RegisterPayment godoc
// @Summary      Registrar cobro
// @Tags         invoices
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        id    path  string                      true  "ID de la factura"
// @Param        body  body  dto.RegisterPaymentRequest  true  "payment_id y fecha de cobro opcional"
// @Success      200   {object}  dto.InvoiceResponse
// @Failure      400   {object}  dto.ErrorResponse
// @Failure      404   {object}  dto.ErrorResponse
// @Failure      409   {object}  dto.ErrorResponse
// @Router       /api/invoices/{id}/payments [post]
func (h *BillingHandler) RegisterPayment(c *fiber.Ctx) error {
	var in dto.RegisterPaymentRequest
	if err := c.BodyParser(&in); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "INVALID_BODY", Message: "cuerpo inválido"})
	}
	out, err := h.invoices.RegisterPayment(c.UserContext(), c.Params("id"), in)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(out)
}

// DownloadPDF godoc
// @Summary      Descargar factura en PDF
// @Tags         invoices
// @Security     Bearer
// @Produce      application/pdf
// @Param        id   path  string  true  "ID de la factura"
// @Success      200  {file}    binary
// @Failure      400  {object}  dto.ErrorResponse
// @Failure      404  {object}  dto.ErrorResponse
// @Router       /api/invoices/{id}/pdf [get]
func (h *BillingHandler) DownloadPDF(c *fiber.Ctx) error {
	pdfBytes, filename, err := h.pdf.DownloadInvoicePDF(c.UserContext(), c.Params("id"))
	if err != nil {
		return h.fail(c, err)
	}
	c.Set(fiber.HeaderContentType, "application/pdf")
	c.Set(fiber.HeaderContentDisposition, fmt.Sprintf(`attachment; filename="%s"`, filename))
	return c.Send(pdfBytes)
}

// fail traduce errores de dominio a respuestas HTTP.
func (h *BillingHandler) fail(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{Code: "NOT_FOUND", Message: "recurso no encontrado"})
	case errors.Is(err, domain.ErrInvalidInput):
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "VALIDATION", Message: err.Error()})
	case errors.Is(err, billing.ErrRunInProgress):
		return c.Status(fiber.StatusConflict).JSON(dto.ErrorResponse{Code: "RUN_IN_PROGRESS", Message: err.Error()})
	case errors.Is(err, domain.ErrInvoiceAuthorized):
		return c.Status(fiber.StatusConflict).JSON(dto.ErrorResponse{Code: "ALREADY_AUTHORIZED", Message: err.Error()})
	case errors.Is(err, domain.ErrConflict), errors.Is(err, domain.ErrDuplicate):
		return c.Status(fiber.StatusConflict).JSON(dto.ErrorResponse{Code: "CONFLICT", Message: err.Error()})
	default:
		h.log.Error().Err(err).Str("path", c.Path()).Msg("error en API de facturación")
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Code: "INTERNAL", Message: "error interno"})
	}
}
