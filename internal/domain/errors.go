package domain

import "errors"

// Errores de dominio (sin dependencias externas).
var (
	ErrNotFound            = errors.New("recurso no encontrado")
	ErrInvalidInput        = errors.New("entrada inválida")
	ErrDuplicate           = errors.New("recurso duplicado")
	ErrUnauthorized        = errors.New("no autorizado")
	ErrForbidden           = errors.New("acceso denegado")
	ErrConflict            = errors.New("conflicto con el estado actual")
	ErrInvalidSubscription = errors.New("suscripción inválida")
	ErrInvoiceAuthorized   = errors.New("la factura ya tiene CAE y no puede modificarse")
	ErrCycleRewind         = errors.New("el ciclo de facturación no puede retroceder")

	// ErrNumberTaken: el número reservado en el punto de venta ya lo tiene otra factura.
	ErrNumberTaken = errors.New("número de comprobante ya usado")
)
