package entity

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/jhoicas/facturacion-suscripciones/internal/domain"
)

// Frecuencias de facturación soportadas por los planes.
type Frequency string

const (
	FrequencyMonthly   Frequency = "monthly"
	FrequencyQuarterly Frequency = "quarterly"
	FrequencyYearly    Frequency = "yearly"
)

// Period devuelve la duración de un período de facturación.
// Mensual es 30 días fijos: es la cadencia con la que siempre se facturó.
func (f Frequency) Period() time.Duration {
	switch f.Normalize() {
	case FrequencyQuarterly:
		return 90 * 24 * time.Hour
	case FrequencyYearly:
		return 365 * 24 * time.Hour
	default:
		return 30 * 24 * time.Hour
	}
}

// Normalize aplica el valor por defecto (mensual) a frecuencias vacías o desconocidas.
func (f Frequency) Normalize() Frequency {
	switch Frequency(strings.ToLower(strings.TrimSpace(string(f)))) {
	case FrequencyQuarterly:
		return FrequencyQuarterly
	case FrequencyYearly:
		return FrequencyYearly
	default:
		return FrequencyMonthly
	}
}

// Plan es el plan contratado por el proveedor, tal como lo devuelve el store de suscripciones.
type Plan struct {
	ID        string
	Type      string
	Name      string
	Price     decimal.Decimal // neto, sin IVA
	Currency  string          // código de moneda AFIP ("PES")
	Frequency Frequency
}

// Subscription es la suscripción de un proveedor del marketplace.
// El subsistema de suscripciones es su dueño; la facturación solo la lee.
type Subscription struct {
	ID            string
	ProviderID    string
	ProviderName  string
	ProviderTaxID string // CUIT del proveedor; vacío = consumidor final
	PlanType      string
	IsActive      bool
	PaymentMethod string
	Plan          *Plan
}

// Validate verifica los campos mínimos para facturar. Los datos vienen de otro
// subsistema, así que un registro incompleto se reporta y no se factura.
func (s *Subscription) Validate() error {
	if s == nil {
		return fmt.Errorf("%w: nil", domain.ErrInvalidSubscription)
	}
	if strings.TrimSpace(s.ProviderID) == "" {
		return fmt.Errorf("%w: providerId vacío", domain.ErrInvalidSubscription)
	}
	if strings.TrimSpace(s.PlanType) == "" {
		return fmt.Errorf("%w: planType vacío", domain.ErrInvalidSubscription)
	}
	if !s.IsActive {
		return fmt.Errorf("%w: suscripción inactiva", domain.ErrInvalidSubscription)
	}
	return nil
}

// NewSubscription construye una suscripción validada.
func NewSubscription(id, providerID, planType string, active bool, paymentMethod string, plan *Plan) (*Subscription, error) {
	s := &Subscription{
		ID:            id,
		ProviderID:    providerID,
		PlanType:      planType,
		IsActive:      active,
		PaymentMethod: paymentMethod,
		Plan:          plan,
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}
