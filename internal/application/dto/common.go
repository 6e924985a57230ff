package dto

// Listado de facturas de una suscripción: paginación por offset, más recientes primero.
const (
	DefaultInvoicePageSize = 20
	MaxInvoicePageSize     = 100
)

// InvoicePageRequest query ?limit=&offset= del listado de facturas.
type InvoicePageRequest struct {
	Limit  int `query:"limit"`
	Offset int `query:"offset"`
}

// Normalize acota limit a [1, MaxInvoicePageSize]; cero o negativo toma el default.
func (p InvoicePageRequest) Normalize() InvoicePageRequest {
	switch {
	case p.Limit <= 0:
		p.Limit = DefaultInvoicePageSize
	case p.Limit > MaxInvoicePageSize:
		p.Limit = MaxInvoicePageSize
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	return p
}

// InvoicePage página devuelta. HasMore indica que quedan facturas más antiguas.
type InvoicePage struct {
	Limit   int  `json:"limit"`
	Offset  int  `json:"offset"`
	HasMore bool `json:"has_more"`
}

// ErrorResponse cuerpo de los 4xx/5xx. Code es estable (NOT_FOUND, ALREADY_AUTHORIZED, ...).
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
