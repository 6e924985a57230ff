package entity

import "time"

// BillingPoint representa un punto de venta habilitado en AFIP para un tipo de comprobante.
// Lleva el próximo número a emitir; AFIP exige numeración correlativa por
// (punto de venta, tipo de comprobante).
type BillingPoint struct {
	ID              string
	PuntoVenta      int    // número de punto de venta (ej: 3)
	TipoComprobante int    // código AFIP (1=A, 6=B, 11=C)
	NextNumber      int64  // próximo número a reservar
	Description     string // ej: "Web Service - Suscripciones"
	IsActive        bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
}
