package billing

import (
	"context"
	"fmt"

	"github.com/jhoicas/facturacion-suscripciones/internal/domain"
	"github.com/jhoicas/facturacion-suscripciones/internal/domain/repository"
)

// PDFUseCase genera la representación impresa de una factura autorizada.
// Solo se permite si la factura ya tiene CAE.
type PDFUseCase struct {
	invoiceRepo repository.InvoiceRepository
	generator   InvoicePDFGenerator
	issuer      Issuer
}

// NewPDFUseCase construye el caso de uso inyectando todas sus dependencias.
func NewPDFUseCase(invoiceRepo repository.InvoiceRepository, generator InvoicePDFGenerator, issuer Issuer) *PDFUseCase {
	return &PDFUseCase{invoiceRepo: invoiceRepo, generator: generator, issuer: issuer}
}

// DownloadInvoicePDF devuelve el PDF y el nombre de archivo sugerido.
//
// Retorna:
//   - domain.ErrNotFound     si la factura no existe.
//   - domain.ErrInvalidInput si la factura todavía no tiene CAE.
func (uc *PDFUseCase) DownloadInvoicePDF(ctx context.Context, invoiceID string) (pdfBytes []byte, filename string, err error) {
	inv, err := uc.invoiceRepo.GetByID(ctx, invoiceID)
	if err != nil {
		return nil, "", fmt.Errorf("pdf: obtener factura: %w", err)
	}
	if inv == nil {
		return nil, "", domain.ErrNotFound
	}
	if !inv.IsAuthorized() {
		return nil, "", fmt.Errorf("%w: la factura está en estado %s, solo se imprime con CAE",
			domain.ErrInvalidInput, inv.FiscalStatus)
	}

	pdfBytes, err = uc.generator.GenerateInvoicePDF(ctx, inv, uc.issuer)
	if err != nil {
		return nil, "", fmt.Errorf("pdf: generación fallida: %w", err)
	}
	filename = fmt.Sprintf("factura_%s.pdf", inv.FullNumber())
	return pdfBytes, filename, nil
}
